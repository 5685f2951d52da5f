// Package errs collects the sentinel errors raised by the position store,
// lifecycle engine, reconciler and DC coordinator. Each is a flat
// errors.New so callers can compare with errors.Is; context is layered on
// with internal/errors.Wrap at the call site rather than baked into the
// sentinel text.
package errs

import "errors"

// Position Store
var (
	ErrPositionExists     = errors.New("position already present in store")
	ErrPositionNotFound   = errors.New("position not found in store")
	ErrOrderIDEmpty       = errors.New("order id is empty")
	ErrOrderIDKnown       = errors.New("order id already registered")
	ErrSlotIndexOutOfRange = errors.New("slot index out of range")
)

// add_position validation (§4.2.1)
var (
	ErrUnknownOrderType   = errors.New("unrecognized order type")
	ErrUnknownSide        = errors.New("side must be buy or sell")
	ErrEmptyPrice         = errors.New("price is empty")
	ErrEmptySize          = errors.New("size is empty")
	ErrPingPongPriceOrder = errors.New("ping-pong sell price must exceed buy price, both positive")
	ErrOneTimePriceZero   = errors.New("one-time order price must be positive")
	ErrOverPrecision      = errors.New("submitted value carries more precision than canonical form")
	ErrTakerOutOfBand     = errors.New("taker price outside +-10% of top of book")
	ErrPercentPriceBand   = errors.New("price outside exchange percent-price band")
	ErrLandmarkOneTime    = errors.New("a one-time order cannot be a landmark")
)

// Transport / reconciliation
var (
	ErrUnknownFillOrderID = errors.New("fill references unknown order id")
	ErrNotCancelling      = errors.New("position is not in a cancelling state")
	ErrDCGroupNotFound    = errors.New("no diverge/converge group for cancelled position")
	ErrInvariantViolation = errors.New("internal invariant violation")
)
