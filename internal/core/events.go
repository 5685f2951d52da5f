package core

import (
	"github.com/bytedance/sonic"

	"github.com/ordermesh/pingpong/internal/bus"
	"github.com/ordermesh/pingpong/internal/engine"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/risk"
	"github.com/ordermesh/pingpong/internal/state"
	"github.com/ordermesh/pingpong/internal/transport"
)

// handle dispatches one bus event onto the engine. It is the single
// choke point every inbound transport notification and chaos-injected
// replay record passes through, keeping the engine's state machine
// single-threaded.
func (r *Reactor) handle(ev bus.Event) {
	switch ev.Kind {
	case bus.KindTransport:
		r.handleTransport(ev)
	case bus.KindMaintenance:
		r.onMaintenance(market.Market(ev.Market))
	case bus.KindChaos:
		r.log.Debug("chaos event observed", "market", ev.Market)
	case bus.KindConfigReload:
		r.handleConfigReload(ev)
	default:
		r.log.Warn("unrecognized bus event kind", "kind", ev.Kind)
	}
}

func (r *Reactor) handleTransport(ev bus.Event) {
	switch payload := ev.Payload.(type) {
	case transport.TickerEvent:
		r.eng.ProcessTicker(payload)
	case transport.OpenOrdersEvent:
		r.eng.ProcessOpenOrders(payload)
	case transport.NewOrderAckEvent:
		r.handleNewOrderAck(payload)
	case transport.CancelAckEvent:
		r.handleCancelAck(payload)
	case transport.OrderStatusEvent:
		r.handleOrderStatus(payload)
	case transport.FillNotificationEvent:
		r.handleFillNotification(payload)
	default:
		r.log.Warn("unrecognized transport payload", "market", ev.Market)
	}
}

func (r *Reactor) handleNewOrderAck(ack transport.NewOrderAckEvent) {
	pos, ok := r.store.ByHandle(ack.Handle)
	if !ok {
		return
	}
	if ack.ErrorMessage != "" {
		r.log.Warn("new_order rejected", "market", pos.Market, "error", ack.ErrorMessage)
		return
	}
	if err := r.eng.ActivateAck(pos, ack.OrderNumber); err != nil {
		r.log.Warn("activate_ack failed", "market", pos.Market, "error", err)
	}
}

func (r *Reactor) handleCancelAck(ack transport.CancelAckEvent) {
	pos, ok := r.store.ByOrderID(ack.OrderNumber)
	if !ok {
		return
	}
	if ack.Status != transport.OrderCanceled {
		r.log.Warn("cancel rejected", "market", pos.Market, "order", ack.OrderNumber)
		return
	}
	if err := r.eng.ProcessCancelledOrder(pos); err != nil {
		r.log.Warn("process_cancelled_order failed", "market", pos.Market, "error", err)
	}
}

func (r *Reactor) handleOrderStatus(status transport.OrderStatusEvent) {
	if status.Status != transport.StatusFilled {
		return
	}
	pos, ok := r.store.ByOrderID(status.OrderNumber)
	if !ok {
		return
	}
	if err := r.eng.Fill(status.OrderNumber, engine.FillGetOrder); err != nil {
		r.log.Warn("fill failed", "market", pos.Market, "error", err)
		return
	}
	r.recordFill(pos, engine.FillGetOrder)
}

func (r *Reactor) handleFillNotification(ev transport.FillNotificationEvent) {
	pos, ok := r.store.ByOrderID(ev.OrderNumber)
	if !ok {
		return
	}
	if err := r.eng.Fill(ev.OrderNumber, engine.FillWSS); err != nil {
		r.log.Warn("fill failed", "market", pos.Market, "error", err)
		return
	}
	r.recordFill(pos, engine.FillWSS)
}

func encodeFillRecord(fill state.FillRecord) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(fill)
}

// handleConfigReload applies a hot-reloaded risk.Config, published by a
// host process watching its config file for changes. Routed through the
// bus rather than called directly so the swap happens on the reactor's
// single goroutine, same as every other state mutation.
func (r *Reactor) handleConfigReload(ev bus.Event) {
	cfg, ok := ev.Payload.(risk.Config)
	if !ok {
		r.log.Warn("config reload event carried unexpected payload type")
		return
	}
	r.risk.UpdateConfig(cfg)
	r.log.Info("risk config reloaded")
}
