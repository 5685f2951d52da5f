// Package position owns the Position type and the Position Store: the
// authoritative record of every queued and active order and the indices
// the lifecycle engine and reconciler query to drive the grid.
package position

import (
	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/market"
)

// Handle is a stable internal id for a Position, used by secondary indices
// and in-flight transport requests so they never hold an owning reference.
type Handle uint64

// OrderKind distinguishes the three families add_position can create.
type OrderKind uint8

const (
	KindActive OrderKind = iota
	KindGhost
	KindOneTime
)

// Position is a live or queued exchange order owned by the engine.
type Position struct {
	Handle Handle

	Market        market.Market
	Side          market.Side
	MarketIndices []int // sorted increasing; len 1 normal, len==OrderDC landmark
	StrategyTag   string
	OrderNumber   string // exchange-assigned, empty until acknowledged

	BuyPrice, SellPrice                 coin.Coin
	BuyPriceOriginal, SellPriceOriginal coin.Coin
	Price                               coin.Coin // current side's price, offset/sentiment applied

	Quantity  coin.Coin
	BTCAmount coin.Coin

	IsOnetime      bool
	IsTaker        bool
	IsLandmark     bool
	IsSlippage     bool
	IsCancelling   bool
	IsNewHiLoOrder bool

	OrderRequestTime int64
	OrderSetTime     int64
	OrderCancelTime  int64
	OrderGetOrderTime int64
	MaxAgeMinutes    int
	MaxAgeEpoch      int64

	CancelReason    market.CancelReason
	PriceResetCount int
}

// CurrentSidePrice returns the raw (pre-offset) price on pos's active side.
func (p *Position) CurrentSidePrice() coin.Coin {
	if p.Side == market.Sell {
		return p.SellPrice
	}
	return p.BuyPrice
}

// OriginalSidePrice returns the price captured at construction for pos's
// active side, the slippage-walk bound.
func (p *Position) OriginalSidePrice() coin.Coin {
	if p.Side == market.Sell {
		return p.SellPriceOriginal
	}
	return p.BuyPriceOriginal
}

// IsQueued reports whether pos is still awaiting an exchange ack.
func (p *Position) IsQueued() bool {
	return p.OrderNumber == ""
}

// LowestIndex returns the lowest slot index this position spans.
func (p *Position) LowestIndex() int {
	if len(p.MarketIndices) == 0 {
		return -1
	}
	lo := p.MarketIndices[0]
	for _, idx := range p.MarketIndices[1:] {
		if idx < lo {
			lo = idx
		}
	}
	return lo
}

// HighestIndex returns the highest slot index this position spans.
func (p *Position) HighestIndex() int {
	hi := -1
	for _, idx := range p.MarketIndices {
		if idx > hi {
			hi = idx
		}
	}
	return hi
}
