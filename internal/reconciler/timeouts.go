package reconciler

import (
	internalerrors "github.com/ordermesh/pingpong/internal/errors"
	"github.com/ordermesh/pingpong/internal/gateway"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
)

// CheckTimeouts is on_check_timeouts, the fast timer from §4.3: it rebalances
// buy/sell counts, resends one stalled queued submission, and walks active
// positions for cancel retries, slippage recovery, and one-time max-age
// expiry.
func (r *Reconciler) CheckTimeouts(now int64) error {
	if r.yield() {
		return nil
	}

	r.checkBuySellCount(now)

	for _, m := range r.Store.Markets() {
		for _, pos := range r.Store.QueuedSnapshot(m) {
			if pos.OrderSetTime == 0 && pos.OrderRequestTime < now-r.Eng.Config.RequestTimeout {
				return r.resendSubmit(pos)
			}
		}
	}

	for _, m := range r.Store.Markets() {
		info := r.Store.Market(m)
		for _, pos := range r.Store.ActiveSnapshot(m) {
			if r.yield() {
				return nil
			}

			switch {
			case pos.IsCancelling && pos.OrderCancelTime < now-r.Eng.Config.CancelTimeout:
				if err := r.Eng.Cancel(pos, pos.CancelReason); err != nil {
					r.Log.Warn("timeout recancel failed", "err", err.Error())
				}

			case pos.IsSlippage && !pos.IsCancelling && info != nil && pos.OrderSetTime < now-info.SlippageTimeout:
				if r.Eng.TryMoveOrder(pos) {
					if err := r.Eng.Cancel(pos, market.CancelReasonSlippageReset); err != nil {
						r.Log.Warn("slippage reset cancel failed", "err", err.Error())
					}
				} else {
					pos.OrderSetTime += r.Eng.Config.SafetyDelayTime
				}

			case pos.IsOnetime && pos.OrderSetTime+int64(pos.MaxAgeMinutes)*60_000 < now:
				if err := r.Eng.Cancel(pos, market.CancelReasonMaxAge); err != nil {
					r.Log.Warn("max-age cancel failed", "err", err.Error())
				}
			}
		}
	}
	return nil
}

// resendSubmit reissues a stalled queued position's submission directly
// through transport, since the position is already registered in the store
// and only the exchange round trip needs repeating.
func (r *Reconciler) resendSubmit(pos *position.Position) error {
	if r.Eng.TestMode {
		return nil
	}
	if err := r.Eng.Transport.Submit(pos); err != nil {
		return internalerrors.Wrap(err, "resend queued submission")
	}
	r.Eng.Gateway.Track(pos.Handle, gateway.RequestSubmit, r.Eng.Now())
	return nil
}
