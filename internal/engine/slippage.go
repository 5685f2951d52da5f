package engine

import (
	"math"

	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
)

const maxRatchetSteps = 100000

// TryMoveOrder is the post-only price walk from §4.2.3. It nudges pos's
// active-side price toward the spread without crossing the matcher,
// reporting whether a change was applied.
func (e *Engine) TryMoveOrder(pos *position.Position) bool {
	info := e.Store.Market(pos.Market)
	if info == nil {
		return false
	}
	tick := info.PriceTicksize
	switch pos.Side {
	case market.Buy:
		return tryMoveBuy(pos, info, tick)
	case market.Sell:
		return tryMoveSell(pos, info, tick)
	default:
		return false
	}
}

func tryMoveBuy(pos *position.Position, info *market.Info, tick coin.Coin) bool {
	lowestSell := info.LowestSell
	if lowestSell.IsZeroOrLess() {
		return false
	}
	current := pos.BuyPrice

	if current.GreaterOrEqual(lowestSell) && lowestSell.GreaterThan(tick) {
		pos.BuyPrice = lowestSell.Sub(tick)
		pos.IsSlippage = true
		return true
	}

	limit := lowestSell.Sub(tick)
	if pos.BuyPriceOriginal.LessThan(limit) {
		limit = pos.BuyPriceOriginal
	}

	candidate := current
	for i := 0; i < maxRatchetSteps && candidate.LessThan(limit); i++ {
		candidate = candidate.Add(tick)
	}

	if candidate.GreaterThan(current) && candidate.LessOrEqual(pos.BuyPriceOriginal) && candidate.LessThan(lowestSell) {
		pos.BuyPrice = candidate
		return true
	}
	return false
}

func tryMoveSell(pos *position.Position, info *market.Info, tick coin.Coin) bool {
	highestBuy := info.HighestBuy
	if highestBuy.IsZeroOrLess() {
		return false
	}
	current := pos.SellPrice

	if current.LessOrEqual(highestBuy) && highestBuy.GreaterThan(tick) {
		pos.SellPrice = highestBuy.Add(tick)
		pos.IsSlippage = true
		return true
	}

	limit := highestBuy.Add(tick)
	if pos.SellPriceOriginal.GreaterThan(limit) {
		limit = pos.SellPriceOriginal
	}

	candidate := current
	for i := 0; i < maxRatchetSteps && candidate.GreaterThan(limit); i++ {
		candidate = candidate.Sub(tick)
	}

	if candidate.LessThan(current) && candidate.GreaterOrEqual(pos.SellPriceOriginal) && candidate.GreaterThan(highestBuy) {
		pos.SellPrice = candidate
		return true
	}
	return false
}

// FindBetterPrice is find_better_price(pos) from §4.2.4, the slippage step
// taken when a post-only placement was rejected by the matcher. ticksize
// grows with price_reset_count so repeated rejections widen the step.
func (e *Engine) FindBetterPrice(pos *position.Position) coin.Coin {
	info := e.Store.Market(pos.Market)
	if info == nil {
		return pos.CurrentSidePrice()
	}

	tick := growTicksize(info.PriceTicksize, pos.PriceResetCount)

	if pos.PriceResetCount == 0 && (info.LowestSell.IsGreaterThanZero() || info.HighestBuy.IsGreaterThanZero()) {
		return calculatedBetterPrice(pos, info, tick)
	}
	return additiveBetterPrice(pos, tick)
}

// growTicksize implements ticksize * (1 + floor(price_reset_count^1.11)).
func growTicksize(tick coin.Coin, resetCount int) coin.Coin {
	if resetCount <= 0 {
		return tick
	}
	growth := ipow111(resetCount)
	return tick.Ratio(1+float64(growth), tick.Precision())
}

// ipow111 returns floor(n^1.11); n is always small (a per-position retry
// counter), so float64 precision is not a concern.
func ipow111(n int) int64 {
	return int64(math.Floor(math.Pow(float64(n), 1.11)))
}

func calculatedBetterPrice(pos *position.Position, info *market.Info, tick coin.Coin) coin.Coin {
	if pos.Side == market.Buy {
		return info.LowestSell.Sub(tick)
	}
	return info.HighestBuy.Add(tick)
}

func additiveBetterPrice(pos *position.Position, tick coin.Coin) coin.Coin {
	current := pos.CurrentSidePrice()
	if pos.Side == market.Buy {
		return current.Sub(tick)
	}
	return current.Add(tick)
}
