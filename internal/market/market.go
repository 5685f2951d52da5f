// Package market holds the declarative per-market configuration and the
// PositionSlot grid that the lifecycle engine places orders against.
package market

import "github.com/ordermesh/pingpong/internal/coin"

// Market identifies a trading pair, e.g. "BTC_USDT".
type Market string

// Side is the direction of a position or slot.
type Side uint8

const (
	SideUnknown Side = iota
	Buy
	Sell
)

func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return SideUnknown
	}
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// CancelReason records why a position was asked to cancel, driving the
// branch that process_cancelled_order takes once the ack arrives.
type CancelReason uint8

const (
	CancelReasonNone CancelReason = iota
	CancelReasonDC
	CancelReasonShortLong
	CancelReasonSlippageReset
	CancelReasonMaxAge
	CancelReasonLowest
	CancelReasonHighest
	CancelReasonUser
	CancelReasonMaintenance
)

func (r CancelReason) String() string {
	switch r {
	case CancelReasonDC:
		return "DC"
	case CancelReasonShortLong:
		return "SHORTLONG"
	case CancelReasonSlippageReset:
		return "SLIPPAGE_RESET"
	case CancelReasonMaxAge:
		return "MAX_AGE"
	case CancelReasonLowest:
		return "LOWEST"
	case CancelReasonHighest:
		return "HIGHEST"
	case CancelReasonUser:
		return "USER"
	case CancelReasonMaintenance:
		return "MAINTENANCE"
	default:
		return "NONE"
	}
}

// PositionSlot is one declarative entry in a market's position_index: a
// planned ping-pong pair at fixed prices. Slots are immutable apart from
// FillCount, which advances on every fill and, when AlternateSize is set,
// toggles which size is handed out next.
type PositionSlot struct {
	BuyPrice      coin.Coin
	SellPrice     coin.Coin
	OrderSize     coin.Coin
	AlternateSize coin.Coin // zero value means "no alternate"
	FillCount     uint64
}

// HasAlternate reports whether this slot toggles size on fill.
func (s PositionSlot) HasAlternate() bool {
	return s.AlternateSize.IsGreaterThanZero()
}

// CurrentSize returns the size that the next position built from this slot
// should use, given FillCount so far.
func (s PositionSlot) CurrentSize() coin.Coin {
	if !s.HasAlternate() {
		return s.OrderSize
	}
	if s.FillCount%2 == 0 {
		return s.OrderSize
	}
	return s.AlternateSize
}

// Settings are the per-market tunables, injected from configuration
// (set_market_settings in the external interface) rather than hardcoded.
type Settings struct {
	PriceTicksize      coin.Coin
	QuantityTicksize   coin.Coin
	OrderMin           int
	OrderMax           int
	OrderDC            int // required run length to form a landmark; >=2
	OrderDCNice        int // hysteresis
	OrderLandmarkStart int
	OrderLandmarkThresh int
	MarketSentiment    coin.Coin
	MarketOffset       coin.Coin
	SlippageTimeout    int64 // milliseconds
	PriceMinMul        float64
	PriceMaxMul        float64
}

// Info is the full runtime record for one market: its settings, its
// declarative slot grid, its live order-price multiset, and the latest
// observed top of book.
type Info struct {
	Market Market
	Settings

	PositionIndex []PositionSlot

	// orderPrices is the multiset of prices currently posted by active
	// positions in this market, keyed by canonical decimal string.
	orderPrices map[string]int

	HighestBuy coin.Coin
	LowestSell coin.Coin
}

// New creates an Info with an empty slot grid.
func New(m Market, settings Settings) *Info {
	return &Info{
		Market:      m,
		Settings:    settings,
		orderPrices: make(map[string]int),
	}
}

// AddOrderPrice records one occurrence of price in the order_prices multiset.
func (i *Info) AddOrderPrice(price coin.Coin) {
	i.orderPrices[price.String()]++
}

// RemoveOrderPrice withdraws one occurrence of price. A no-op if the price
// is not present (defensive; callers should not hit this path).
func (i *Info) RemoveOrderPrice(price coin.Coin) {
	key := price.String()
	if i.orderPrices[key] <= 1 {
		delete(i.orderPrices, key)
		return
	}
	i.orderPrices[key]--
}

// HasOrderPrice reports whether price currently has at least one occurrence.
func (i *Info) HasOrderPrice(price coin.Coin) bool {
	return i.orderPrices[price.String()] > 0
}

// AppendSlot appends a new declarative slot and returns its index.
func (i *Info) AppendSlot(slot PositionSlot) int {
	i.PositionIndex = append(i.PositionIndex, slot)
	return len(i.PositionIndex) - 1
}

// Slot returns the slot at idx, or false if out of range.
func (i *Info) Slot(idx int) (PositionSlot, bool) {
	if idx < 0 || idx >= len(i.PositionIndex) {
		return PositionSlot{}, false
	}
	return i.PositionIndex[idx], true
}

// AdvanceFill bumps the fill count for every index in indices.
func (i *Info) AdvanceFill(indices []int) {
	for _, idx := range indices {
		if idx < 0 || idx >= len(i.PositionIndex) {
			continue
		}
		i.PositionIndex[idx].FillCount++
	}
}

// ApplyOffset transforms an internal slot price into the externally visible
// order price, folding in the market's sentiment skew and flat offset.
func (i *Info) ApplyOffset(price coin.Coin) coin.Coin {
	return price.Add(i.MarketOffset).Add(i.MarketSentiment)
}
