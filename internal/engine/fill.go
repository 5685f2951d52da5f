package engine

import (
	"strconv"

	"github.com/ordermesh/pingpong/internal/errs"
	internalerrors "github.com/ordermesh/pingpong/internal/errors"
	"github.com/ordermesh/pingpong/internal/gateway"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
)

// FillType is how a fill was detected (§4.2.2).
type FillType uint8

const (
	FillGetOrder FillType = iota
	FillHistory
	FillTicker
	FillCancel
	FillWSS
)

func (f FillType) String() string {
	switch f {
	case FillGetOrder:
		return "get_order"
	case FillHistory:
		return "history"
	case FillTicker:
		return "ticker"
	case FillCancel:
		return "cancel"
	case FillWSS:
		return "wss"
	default:
		return "unknown"
	}
}

// Fill is fill(order_id, fill_type, extra) from §4.2.2. It advances the
// slot's fill count, emits the fill to the stats collaborator, then either
// deletes a one-time position or flips a ping-pong one to the opposite
// side using the slot's *current* data.
func (e *Engine) Fill(orderNumber string, fillType FillType) error {
	pos, ok := e.Store.ByOrderID(orderNumber)
	if !ok {
		e.Log.Warn("fill references unknown order id", "order", orderNumber)
		return internalerrors.Wrap(errs.ErrUnknownFillOrderID, orderNumber)
	}
	return e.fillPosition(pos, fillType)
}

func (e *Engine) fillPosition(pos *position.Position, fillType FillType) error {
	info := e.Store.Market(pos.Market)
	if info != nil {
		info.AdvanceFill(pos.MarketIndices)
	}
	e.Stats.RecordFill(pos, fillType)

	if pos.IsOnetime {
		return e.Store.Remove(pos)
	}
	return e.flip(pos, info)
}

// flip reconstructs the opposite-side order from the slot's current data
// (picking up any alternate_size toggle) and removes the filled position,
// preserving market_indices.
func (e *Engine) flip(pos *position.Position, info *market.Info) error {
	newSide := pos.Side.Opposite()

	buy, sell, size := pos.BuyPrice, pos.SellPrice, pos.Quantity
	if info != nil {
		lo := pos.LowestIndex()
		if slot, ok := info.Slot(lo); ok {
			buy, sell = slot.BuyPrice, slot.SellPrice
			size = slot.CurrentSize()
		}
	}

	sidePrice := buy
	if newSide == market.Sell {
		sidePrice = sell
	}

	replacement := &position.Position{
		Market:            pos.Market,
		Side:              newSide,
		MarketIndices:     append([]int(nil), pos.MarketIndices...),
		StrategyTag:       pos.StrategyTag,
		BuyPrice:          buy,
		SellPrice:         sell,
		BuyPriceOriginal:  buy,
		SellPriceOriginal: sell,
		Quantity:          size,
		IsLandmark:        pos.IsLandmark,
		OrderRequestTime:  e.Now(),
	}
	if info != nil {
		replacement.Price = info.ApplyOffset(sidePrice)
	} else {
		replacement.Price = sidePrice
	}

	if err := e.Store.Add(replacement); err != nil {
		return err
	}
	if err := e.Store.Remove(pos); err != nil {
		return err
	}

	if e.TestMode {
		synth := string(replacement.Market) + strconv.Itoa(replacement.LowestIndex())
		return e.Store.Activate(replacement, synth, e.Now())
	}
	if err := e.Transport.Submit(replacement); err != nil {
		e.Log.Warn("submit failed on flip", "market", string(replacement.Market), "err", err.Error())
		return nil
	}
	e.Gateway.Track(replacement.Handle, gateway.RequestSubmit, e.Now())
	return nil
}
