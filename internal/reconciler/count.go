package reconciler

import "github.com/ordermesh/pingpong/internal/market"

// checkBuySellCount is check_buy_sell_count from §4.3.1: loop per market
// until the non-cancelling buy/sell tallies sit inside [order_min,
// order_max), preferring a landmark top-up once there is room below
// order_max - order_landmark_thresh. The local buys/sells tallies are
// adjusted in place rather than re-queried, since a freshly placed
// position may still be queued and so would not yet show up in an active
// count.
func (r *Reconciler) checkBuySellCount(now int64) {
	for _, m := range r.Store.Markets() {
		info := r.Store.Market(m)
		if info == nil {
			continue
		}

		buys := r.Store.BuyTotal(m)
		sells := r.Store.SellTotal(m)

		for {
			if r.yield() {
				return
			}
			changed := false

			switch {
			case buys > info.OrderMax:
				if pos, ok := r.Store.LowestActiveByPrice(m, market.Buy); ok {
					_ = r.Eng.Cancel(pos, market.CancelReasonLowest)
				}
				buys--
				changed = true
			case buys < info.OrderMin:
				if r.setNextLowest(m, info, false) {
					buys++
					changed = true
				}
			case info.OrderDC > 1 && buys < info.OrderMax-info.OrderLandmarkThresh:
				if r.setNextLowest(m, info, true) {
					buys++
					changed = true
				}
			}

			switch {
			case sells > info.OrderMax:
				if pos, ok := r.Store.HighestActiveByPrice(m, market.Sell); ok {
					_ = r.Eng.Cancel(pos, market.CancelReasonHighest)
				}
				sells--
				changed = true
			case sells < info.OrderMin:
				if r.setNextHighest(m, info, false) {
					sells++
					changed = true
				}
			case info.OrderDC > 1 && sells < info.OrderMax-info.OrderLandmarkThresh:
				if r.setNextHighest(m, info, true) {
					sells++
					changed = true
				}
			}

			if !changed {
				break
			}
		}
	}
}

// occupiedIndexBounds returns the lowest and highest slot index spanned by
// any active or queued position in m.
func (r *Reconciler) occupiedIndexBounds(m market.Market) (lowest, highest int, found bool) {
	lowest, highest = -1, -1
	for _, pos := range r.Store.AllSnapshot(m) {
		if li := pos.LowestIndex(); lowest == -1 || li < lowest {
			lowest = li
		}
		if hi := pos.HighestIndex(); hi > highest {
			highest = hi
		}
		found = true
	}
	return lowest, highest, found
}

// indexClaimed reports whether idx is already spoken for: actively held,
// DC-reserved, or spanned by a position still awaiting activation. Queued
// positions aren't in the store's byIndex map yet, so IndexOccupied alone
// would let set_next_lowest/highest double-place the same slot within one
// reconciler pass.
func (r *Reconciler) indexClaimed(m market.Market, info *market.Info, idx int) bool {
	if idx < 0 || idx >= len(info.PositionIndex) {
		return true
	}
	if r.Store.IndexOccupied(m, idx) {
		return true
	}
	for _, q := range r.Store.QueuedSnapshot(m) {
		for _, qi := range q.MarketIndices {
			if qi == idx {
				return true
			}
		}
	}
	return false
}

// setNextLowest is set_next_lowest(market, BUY, landmark) from §4.3.1: it
// walks down from the lowest index currently in use, skipping claimed
// slots, and places either a single new buy or a consecutive order_dc-run
// landmark buy.
func (r *Reconciler) setNextLowest(m market.Market, info *market.Info, landmark bool) bool {
	lowest, _, found := r.occupiedIndexBounds(m)
	start := lowest - 1
	if !found {
		// Bootstrap: with nothing placed yet there is no boundary to walk
		// down from, so split the grid in half and claim the lower side,
		// leaving set_next_highest the upper side.
		start = len(info.PositionIndex)/2 - 1
	}

	idx := start
	for idx >= 0 && r.indexClaimed(m, info, idx) {
		idx--
	}
	if idx < 0 {
		return false
	}

	if !landmark {
		_, err := r.Eng.AddFromSlot(m, market.Buy, []int{idx}, false, "")
		return err == nil
	}

	run, ok := r.buildRunDown(m, info, idx)
	if !ok {
		return false
	}
	_, err := r.Eng.AddFromSlot(m, market.Buy, run, true, "")
	return err == nil
}

// setNextHighest is set_next_highest(market, SELL, landmark), symmetric on
// the high end and bounded by position_index's size.
func (r *Reconciler) setNextHighest(m market.Market, info *market.Info, landmark bool) bool {
	_, highest, found := r.occupiedIndexBounds(m)
	start := highest + 1
	if !found {
		start = len(info.PositionIndex) / 2
	}

	idx := start
	for idx < len(info.PositionIndex) && r.indexClaimed(m, info, idx) {
		idx++
	}
	if idx >= len(info.PositionIndex) {
		return false
	}

	if !landmark {
		_, err := r.Eng.AddFromSlot(m, market.Sell, []int{idx}, false, "")
		return err == nil
	}

	run, ok := r.buildRunUp(m, info, idx)
	if !ok {
		return false
	}
	_, err := r.Eng.AddFromSlot(m, market.Sell, run, true, "")
	return err == nil
}

// buildRunDown extends a landmark run downward from idx toward index 0. A
// run that reaches 0 before accumulating order_dc members is accepted as a
// partial run (it includes the boundary); a run blocked by a claimed slot
// before either condition is rejected outright.
func (r *Reconciler) buildRunDown(m market.Market, info *market.Info, idx int) ([]int, bool) {
	run := []int{idx}
	cursor := idx
	for len(run) < info.OrderDC {
		if cursor == 0 {
			break
		}
		cursor--
		if r.indexClaimed(m, info, cursor) {
			return nil, false
		}
		run = append(run, cursor)
	}
	for i, j := 0, len(run)-1; i < j; i, j = i+1, j-1 {
		run[i], run[j] = run[j], run[i]
	}
	return run, true
}

// buildRunUp mirrors buildRunDown, extending toward the last valid index.
func (r *Reconciler) buildRunUp(m market.Market, info *market.Info, idx int) ([]int, bool) {
	run := []int{idx}
	cursor := idx
	last := len(info.PositionIndex) - 1
	for len(run) < info.OrderDC {
		if cursor == last {
			break
		}
		cursor++
		if r.indexClaimed(m, info, cursor) {
			return nil, false
		}
		run = append(run, cursor)
	}
	return run, true
}
