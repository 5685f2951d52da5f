// Package paper implements transport.Outbound entirely in-process: orders
// ack instantly and every command resolves synchronously with no network
// round trip, the paper-trading counterpart to internal/venue's real
// REST/WS client. Fills themselves are driven by the lifecycle engine's
// own ProcessTicker cross-detection (engine/reconcile_events.go), not by
// this adapter — a paper venue only needs to ack/cancel/report, the same
// division of responsibility as the retrieval pack's paper trading
// engines (e.g. AlejandroRuiz99-polybot/internal/application/engine/paper)
// keep between order bookkeeping and fill detection.
package paper

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ordermesh/pingpong/internal/bus"
	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
	"github.com/ordermesh/pingpong/internal/transport"
)

// Config controls the simulated exchange's order-status reports.
type Config struct {
	// FeeRate is applied to notional (quantity × price) to compute the
	// FilledFee that GetOrder reports.
	FeeRate coin.Coin
}

type simOrder struct {
	handle    position.Handle
	market    market.Market
	side      market.Side
	price     coin.Coin
	qty       coin.Coin
	cancelled bool
}

// Client is a synchronous, single-process transport.Outbound: every call
// resolves immediately by publishing the corresponding Inbound event onto
// queue, with no network round trip and no backpressure.
type Client struct {
	cfg   Config
	queue *bus.Queue

	mu     sync.Mutex
	orders map[string]*simOrder

	nextID atomic.Uint64
}

// New creates a paper client publishing onto queue.
func New(cfg Config, queue *bus.Queue) *Client {
	return &Client{
		cfg:    cfg,
		queue:  queue,
		orders: make(map[string]*simOrder),
	}
}

// Submit records pos as a resting order and acks it immediately.
func (c *Client) Submit(pos *position.Position) error {
	id := fmt.Sprintf("PAPER-%d", c.nextID.Add(1))
	so := &simOrder{
		handle: pos.Handle,
		market: pos.Market,
		side:   pos.Side,
		price:  pos.Price,
		qty:    pos.Quantity,
	}
	c.mu.Lock()
	c.orders[id] = so
	c.mu.Unlock()

	c.publish(pos.Market, transport.NewOrderAckEvent{Handle: pos.Handle, OrderNumber: id})
	return nil
}

// Cancel marks orderNumber cancelled.
func (c *Client) Cancel(orderNumber string) error {
	c.mu.Lock()
	so, ok := c.orders[orderNumber]
	status := transport.OrderCancelRejected
	var mkt market.Market
	if ok {
		mkt = so.market
		so.cancelled = true
		status = transport.OrderCanceled
	}
	c.mu.Unlock()

	c.publish(mkt, transport.CancelAckEvent{OrderNumber: orderNumber, Status: status})
	return nil
}

// GetOrder reports orderNumber's current simulated state. Since fills are
// applied synchronously by the engine itself, a known order is either
// resting or cancelled by the time this is polled.
func (c *Client) GetOrder(orderNumber string) error {
	c.mu.Lock()
	so, ok := c.orders[orderNumber]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	status := transport.StatusUnknown
	if so.cancelled {
		status = transport.StatusCancelled
	}
	c.publish(so.market, transport.OrderStatusEvent{
		OrderNumber:    orderNumber,
		Status:         status,
		FilledQuantity: so.qty,
		FilledFee:      c.fee(so.qty, so.price),
	})
	return nil
}

// GetOpenOrders reports every resting order in m.
func (c *Client) GetOpenOrders(m market.Market) error {
	c.mu.Lock()
	var ids []string
	var infos []transport.OrderInfo
	for id, so := range c.orders {
		if so.market != m || so.cancelled {
			continue
		}
		ids = append(ids, id)
		infos = append(infos, transport.OrderInfo{ID: id, Side: so.side, Price: so.price, BTCAmount: so.qty})
	}
	c.mu.Unlock()

	c.publish(m, transport.OpenOrdersEvent{
		OrderIDs:    ids,
		ByMarket:    map[market.Market][]transport.OrderInfo{m: infos},
		RequestTime: now(),
	})
	return nil
}

// GetTicker is a no-op: paper runs are driven by ticker events injected
// straight onto the bus, never by a polled round trip.
func (c *Client) GetTicker(market.Market) error { return nil }

// ShouldYield never reports backpressure: there is no real network to
// saturate.
func (c *Client) ShouldYield() bool { return false }

// InFlightCount is always zero: every command above resolves inline.
func (c *Client) InFlightCount() int { return 0 }

func (c *Client) fee(qty, price coin.Coin) coin.Coin {
	if c.cfg.FeeRate.IsZeroOrLess() {
		return coin.Zero
	}
	return qty.Mul(price).Mul(c.cfg.FeeRate)
}

func now() int64 { return time.Now().UnixNano() }

func (c *Client) publish(m market.Market, payload any) {
	if c.queue == nil {
		return
	}
	_ = c.queue.TryPublish(bus.Event{Kind: bus.KindTransport, Market: string(m), Ts: now(), Payload: payload})
}
