package engine

import (
	"sort"

	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
	"github.com/ordermesh/pingpong/internal/transport"
)

// ProcessOpenOrders is process_open_orders(order_ids, orders_by_market,
// request_time) from §4.2.6: cancel-all routing, stray-order
// reconciliation, the blank-orderbook mitigation, and fill inference.
func (e *Engine) ProcessOpenOrders(event transport.OpenOrdersEvent) {
	reported := make(map[string]struct{}, len(event.OrderIDs))
	for _, id := range event.OrderIDs {
		reported[id] = struct{}{}
	}

	if e.cancelAll != nil {
		e.processCancelAll(event, reported)
		return
	}

	e.processStrayOrders(event)

	if e.Config.BlankOrderbookMitigation && len(event.OrderIDs) == 0 && e.totalActive() > e.Config.BlankOrderbookThreshold {
		e.Log.Warn("blank open-orders response suppressed", "active", e.totalActive())
		return
	}

	e.inferFillsFromOpenOrders(reported, event.RequestTime)
}

// CleanGraceTimes drops stray-order grace stamps older than horizon
// milliseconds, the reconciler's "clean grace_times older than 2 *
// stray_grace_time_limit" step (§4.3, on_check_diverge_converge).
func (e *Engine) CleanGraceTimes(now, horizon int64) {
	for id, seen := range e.graceTimes {
		if now-seen > horizon {
			delete(e.graceTimes, id)
		}
	}
}

func (e *Engine) totalActive() int {
	n := 0
	for _, m := range e.Store.Markets() {
		n += e.Store.ActiveCount(m)
	}
	return n
}

func (e *Engine) processCancelAll(event transport.OpenOrdersEvent, reported map[string]struct{}) {
	filter := e.cancelAll
	orders, ok := event.ByMarket[filter.market]
	if !ok {
		return
	}
	for _, o := range orders {
		if filter.side != market.SideUnknown && o.Side != filter.side {
			continue
		}
		if pos, ok := e.Store.ByOrderID(o.ID); ok {
			_ = e.Cancel(pos, market.CancelReasonUser)
			continue
		}
		_ = e.Transport.Cancel(o.ID)
	}
}

func (e *Engine) processStrayOrders(event transport.OpenOrdersEvent) {
	now := e.Now()
	var toCancel []string

	for m, orders := range event.ByMarket {
		info := e.Store.Market(m)
		for _, o := range orders {
			if _, owned := e.Store.ByOrderID(o.ID); owned {
				continue
			}
			if !e.Config.StrictMode && info != nil && !info.HasOrderPrice(o.Price) {
				continue
			}

			seen, known := e.graceTimes[o.ID]
			if !known {
				if matched := e.matchQueuedPosition(m, o, now); matched != nil {
					_ = e.Store.Activate(matched, o.ID, now)
					continue
				}
				e.graceTimes[o.ID] = now
				continue
			}

			if now-seen > e.Config.StrayGraceTimeLimit {
				toCancel = append(toCancel, o.ID)
				e.graceTimes[o.ID] = seen + e.Config.StrayGraceTimeLimit
			}
		}
	}

	if len(toCancel) > e.Config.BulkCancelBurstCap {
		e.Log.Warn("stray cancel burst suppressed", "count", len(toCancel))
		return
	}
	for _, id := range toCancel {
		_ = e.Transport.Cancel(id)
	}
}

// matchQueuedPosition implements the ±0.1% btc_amount tolerance match used
// to adopt an exchange-reported stray order as one of our queued
// positions (§4.2.6.B, and the open question about the consequence of a
// wrong match: the exchange id becomes canonical for whichever queued
// position matched first).
func (e *Engine) matchQueuedPosition(m market.Market, o transport.OrderInfo, now int64) *position.Position {
	const requestAgeFloor = 10_000
	for _, pos := range e.Store.QueuedSnapshot(m) {
		if pos.Side != o.Side || !pos.Price.Equal(o.Price) {
			continue
		}
		if now-pos.OrderRequestTime < requestAgeFloor {
			continue
		}
		if !withinTolerance(pos.BTCAmount, o.BTCAmount) {
			continue
		}
		return pos
	}
	return nil
}

// withinTolerance reports whether b is within ±0.1% of a, the btc_amount
// tolerance the stray matcher allows (§4.2.6.B, and the accepted risk
// noted in the design notes: a wrong match adopts the exchange's id as
// canonical for that queued position).
func withinTolerance(a, b coin.Coin) bool {
	if a.IsZero() {
		return b.IsZero()
	}
	diff := a.Sub(b).Abs()
	band := a.Abs().Ratio(0.001, a.Precision()+4)
	return diff.LessOrEqual(band)
}

func (e *Engine) inferFillsFromOpenOrders(reported map[string]struct{}, requestTime int64) {
	getOrderBudget := e.Config.GetOrderRateLimit
	var batch []*position.Position

	for _, m := range e.Store.Markets() {
		for _, pos := range e.Store.ActiveSnapshot(m) {
			if pos.OrderSetTime <= 0 || pos.IsCancelling {
				continue
			}
			if pos.OrderSetTime > e.Now()-e.Config.SafetyDelayTime {
				continue
			}
			if requestTime > 0 && pos.OrderSetTime > requestTime {
				continue
			}
			if _, ok := reported[pos.OrderNumber]; ok {
				continue
			}
			if e.Config.GetOrderRateLimit > 0 {
				if getOrderBudget <= 0 {
					continue
				}
				getOrderBudget--
				_ = e.Transport.GetOrder(pos.OrderNumber)
				continue
			}
			batch = append(batch, pos)
		}
	}

	if len(batch) > 0 {
		e.ProcessFilledOrders(batch, FillHistory)
	}
}

// ProcessTicker is process_ticker(ticker_map, request_time) from §4.2.7.
func (e *Engine) ProcessTicker(event transport.TickerEvent) {
	for m, q := range event.Quotes {
		if !q.Ask.GreaterThan(q.Bid) {
			e.Log.Warn("discarding crossed/invalid quote", "market", string(m))
			continue
		}
		info := e.Store.Market(m)
		if info == nil {
			continue
		}
		info.HighestBuy = q.Bid
		info.LowestSell = q.Ask
	}

	if event.RequestTime <= 0 {
		return
	}

	getOrderBudget := e.Config.GetOrderRateLimit
	var batch []*position.Position

	for m := range event.Quotes {
		for _, pos := range e.Store.ActiveSnapshot(m) {
			detail := fillDetail(pos, event.Quotes[m])
			if detail == 0 {
				continue
			}
			if pos.IsCancelling {
				continue
			}
			safe := pos.OrderSetTime <= event.RequestTime-e.Config.TickerSafetyDelayTime &&
				pos.OrderSetTime <= e.Now()-e.Config.TickerSafetyDelayTime
			if !safe {
				if e.Config.GetOrderRateLimit > 0 && getOrderBudget > 0 {
					getOrderBudget--
					_ = e.Transport.GetOrder(pos.OrderNumber)
				}
				continue
			}
			batch = append(batch, pos)
		}
	}

	if len(batch) > 0 {
		e.ProcessFilledOrders(batch, FillTicker)
	}
}

// fillDetail returns the 1..4 signal from §4.2.7, or 0 for no signal.
func fillDetail(pos *position.Position, q transport.Quote) int {
	switch {
	case pos.Side == market.Sell && pos.SellPrice.LessOrEqual(q.Bid):
		return 1
	case pos.Side == market.Buy && pos.BuyPrice.GreaterOrEqual(q.Ask):
		return 2
	case pos.Side == market.Sell && pos.SellPrice.LessThan(q.Ask):
		return 3
	case pos.Side == market.Buy && pos.BuyPrice.GreaterThan(q.Bid):
		return 4
	default:
		return 0
	}
}

// ProcessFilledOrders is process_filled_orders(batch, fill_type) from
// §4.2.8: dispatch in ascending buy/sell-price-ratio order so the widest
// spreads (furthest from mid) flip first.
func (e *Engine) ProcessFilledOrders(batch []*position.Position, fillType FillType) {
	ordered := append([]*position.Position(nil), batch...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return priceRatio(ordered[i]) < priceRatio(ordered[j])
	})
	for _, pos := range ordered {
		if err := e.fillPosition(pos, fillType); err != nil {
			e.Log.Warn("fill dispatch failed", "market", string(pos.Market), "err", err.Error())
		}
	}
}

// priceRatio is buy_price/sell_price; one-time orders sort as ratio=1 so
// they are processed last.
func priceRatio(pos *position.Position) float64 {
	if pos.IsOnetime {
		return 1
	}
	if pos.SellPrice.IsZeroOrLess() {
		return 0
	}
	buy, _ := pos.BuyPrice.Decimal().Float64()
	sell, _ := pos.SellPrice.Decimal().Float64()
	if sell == 0 {
		return 0
	}
	return buy / sell
}
