package engine

import (
	"fmt"

	"github.com/ordermesh/pingpong/internal/errs"
	internalerrors "github.com/ordermesh/pingpong/internal/errors"
	"github.com/ordermesh/pingpong/internal/gateway"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
)

// ActivateAck handles new_order_ack: it records the exchange-assigned
// order number via the store, and if a cancel was requested while pos was
// still queued, immediately reissues it now that an id exists (§4.1
// activate, and the queued-cancel race in §8 scenario S3).
func (e *Engine) ActivateAck(pos *position.Position, orderNumber string) error {
	e.Gateway.Complete(pos.Handle, gateway.RequestSubmit)
	wasCancelling := pos.IsCancelling
	reason := pos.CancelReason
	if err := e.Store.Activate(pos, orderNumber, e.Now()); err != nil {
		return err
	}
	if wasCancelling {
		return e.Cancel(pos, reason)
	}
	return nil
}

// Cancel implements the cancellation state machine's entry point (§4.2.5).
// A queued position only records the intent; ActivateAck fires the
// actual transport cancel once the submission ack supplies an order number.
func (e *Engine) Cancel(pos *position.Position, reason market.CancelReason) error {
	if pos.IsQueued() {
		pos.IsCancelling = true
		pos.OrderCancelTime = 1
		pos.CancelReason = reason
		return nil
	}

	if pos.IsCancelling {
		// Re-cancel: reason semantics are preserved (first reason wins),
		// but the transport request is reissued in case the prior one
		// was dropped.
		return e.sendCancel(pos)
	}

	pos.IsCancelling = true
	pos.OrderCancelTime = e.Now()
	pos.CancelReason = reason
	return e.sendCancel(pos)
}

func (e *Engine) sendCancel(pos *position.Position) error {
	if e.TestMode {
		return e.ProcessCancelledOrder(pos)
	}
	if err := e.Transport.Cancel(pos.OrderNumber); err != nil {
		return internalerrors.Wrap(err, "submit cancel")
	}
	e.Gateway.Track(pos.Handle, gateway.RequestCancel, e.Now())
	return nil
}

// ProcessCancelledOrder is process_cancelled_order(pos) from §4.2.5,
// invoked once the exchange acknowledges the cancel.
func (e *Engine) ProcessCancelledOrder(pos *position.Position) error {
	switch {
	case pos.IsSlippage && pos.CancelReason == market.CancelReasonSlippageReset:
		return e.rebuildAtOriginal(pos)
	case pos.CancelReason == market.CancelReasonDC:
		if e.DC == nil {
			return internalerrors.Wrap(errs.ErrDCGroupNotFound, "no DC handler wired")
		}
		return e.DC.HandleCancelledDC(pos)
	case pos.CancelReason == market.CancelReasonShortLong:
		return e.shortLongFlip(pos)
	default:
		return e.Store.Remove(pos)
	}
}

// rebuildAtOriginal reconstructs pos from its own slot data at the
// *original* prices, on the same side, undoing an earlier slippage walk.
func (e *Engine) rebuildAtOriginal(pos *position.Position) error {
	info := e.Store.Market(pos.Market)
	replacement := &position.Position{
		Market:            pos.Market,
		Side:              pos.Side,
		MarketIndices:     append([]int(nil), pos.MarketIndices...),
		StrategyTag:       pos.StrategyTag,
		BuyPrice:          pos.BuyPriceOriginal,
		SellPrice:         pos.SellPriceOriginal,
		BuyPriceOriginal:  pos.BuyPriceOriginal,
		SellPriceOriginal: pos.SellPriceOriginal,
		Quantity:          pos.Quantity,
		IsLandmark:        pos.IsLandmark,
		OrderRequestTime:  e.Now(),
	}
	sidePrice := replacement.BuyPrice
	if replacement.Side == market.Sell {
		sidePrice = replacement.SellPrice
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
	return e.submitOrActivate(replacement)
}

// shortLongFlip reverses pos's side, reinstating from slot data, used by
// the portfolio rebalancer's SHORTLONG cancel reason.
func (e *Engine) shortLongFlip(pos *position.Position) error {
	info := e.Store.Market(pos.Market)
	if err := e.flip(pos, info); err != nil {
		return err
	}
	e.Stats.RecordStrategy(pos, market.CancelReasonShortLong)
	return nil
}

// CancelAll walks every active position in market m and cancels it with
// reason User through the normal cancellation state machine: each
// position only leaves the store once its cancel is acknowledged, same as
// a single user-initiated cancel (§11 cancelAll). Queued positions are
// left as they are.
func (e *Engine) CancelAll(m market.Market) error {
	for _, pos := range e.Store.ActiveSnapshot(m) {
		if err := e.Cancel(pos, market.CancelReasonUser); err != nil {
			return err
		}
	}
	return nil
}

// CancelLocal immediately removes every active and queued position in
// market m from the store without waiting for a cancel acknowledgment
// (§11 cancelLocal), for use at clean shutdown or a scheduled maintenance
// epoch where the running process no longer needs to track exchange-side
// state. A best-effort transport cancel is still issued for any position
// that already carries a live order number, but the local removal does
// not wait on its result.
func (e *Engine) CancelLocal(m market.Market) error {
	for _, pos := range e.Store.ActiveSnapshot(m) {
		if !e.TestMode && pos.OrderNumber != "" {
			_ = e.Transport.Cancel(pos.OrderNumber)
		}
		if err := e.Store.Remove(pos); err != nil {
			return err
		}
	}
	for _, pos := range e.Store.QueuedSnapshot(m) {
		if err := e.Store.Remove(pos); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) submitOrActivate(pos *position.Position) error {
	if e.TestMode {
		synth := fmt.Sprintf("%s%d-r%d", pos.Market, pos.LowestIndex(), pos.Handle)
		return e.Store.Activate(pos, synth, e.Now())
	}
	if err := e.Transport.Submit(pos); err != nil {
		return internalerrors.Wrap(err, "resubmit after cancel")
	}
	e.Gateway.Track(pos.Handle, gateway.RequestSubmit, e.Now())
	return nil
}
