package reconciler

import (
	"sort"

	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
)

// CheckDivergeConverge is on_check_diverge_converge, the slower timer from
// §4.3: maintenance, grace-time cleanup, and the DC scan that queues
// consecutive runs for convergence or landmarks that have drifted toward
// the spread for divergence.
func (r *Reconciler) CheckDivergeConverge(now int64) error {
	if r.yield() {
		return nil
	}

	r.checkMaintenance(now)
	r.Eng.CleanGraceTimes(now, r.StrayGraceCleanupMultiple*r.Eng.Config.StrayGraceTimeLimit)

	for _, m := range r.Store.Markets() {
		if r.yield() {
			return nil
		}
		info := r.Store.Market(m)
		if info == nil || info.OrderDC < 2 {
			continue
		}

		maxBuy := r.maxBuyIndex(m)
		sellBoundary := maxBuy + 1 + info.OrderLandmarkStart

		buyConverge, buyDiverge := r.scanBuys(m, info, maxBuy)
		sellConverge, sellDiverge := r.scanSells(m, info, sellBoundary)

		if _, err := r.DC.Converge(m, buyConverge, info.OrderDC, 1); err != nil {
			r.Log.Warn("buy converge failed", "market", string(m), "err", err.Error())
		}
		if _, err := r.DC.Converge(m, sellConverge, info.OrderDC, -1); err != nil {
			r.Log.Warn("sell converge failed", "market", string(m), "err", err.Error())
		}
		if _, err := r.DC.Diverge(m, buyDiverge); err != nil {
			r.Log.Warn("buy diverge failed", "market", string(m), "err", err.Error())
		}
		if _, err := r.DC.Diverge(m, sellDiverge); err != nil {
			r.Log.Warn("sell diverge failed", "market", string(m), "err", err.Error())
		}
	}
	return nil
}

// checkMaintenance fires the maintenance hook once the configured
// interval has elapsed, per §7's clean-shutdown/maintenance-epoch note. A
// zero MaintenanceIntervalMs disables it.
func (r *Reconciler) checkMaintenance(now int64) {
	if r.MaintenanceIntervalMs <= 0 || r.onMaintenance == nil {
		return
	}
	if now-r.lastMaintenance < r.MaintenanceIntervalMs {
		return
	}
	r.lastMaintenance = now
	for _, m := range r.Store.Markets() {
		r.onMaintenance(m)
	}
}

func (r *Reconciler) maxBuyIndex(m market.Market) int {
	max := -1
	for _, pos := range r.Store.ActiveSnapshot(m) {
		if pos.Side != market.Buy {
			continue
		}
		if hi := pos.HighestIndex(); hi > max {
			max = hi
		}
	}
	return max
}

func (r *Reconciler) eligible(pos *position.Position) bool {
	return !pos.IsOnetime && !pos.IsCancelling && !pos.IsSlippage && pos.OrderNumber != ""
}

// scanBuys partitions active buys into converge candidates (ordinary
// orders that have drifted well below max_buy_index) and diverge
// candidates (landmarks that have crept back up toward it).
func (r *Reconciler) scanBuys(m market.Market, info *market.Info, maxBuy int) (converge, diverge []*position.Position) {
	for _, pos := range r.Store.ActiveSnapshot(m) {
		if pos.Side != market.Buy || !r.eligible(pos) {
			continue
		}
		switch {
		case !pos.IsLandmark && pos.HighestIndex() < maxBuy-info.OrderLandmarkStart-info.OrderDCNice:
			converge = append(converge, pos)
		case pos.IsLandmark && pos.HighestIndex() > maxBuy-info.OrderLandmarkStart:
			diverge = append(diverge, pos)
		}
	}
	sort.Slice(converge, func(i, j int) bool { return converge[i].LowestIndex() < converge[j].LowestIndex() })
	return converge, diverge
}

// scanSells mirrors scanBuys around sellBoundary = max_buy_index + 1 +
// order_landmark_start.
func (r *Reconciler) scanSells(m market.Market, info *market.Info, sellBoundary int) (converge, diverge []*position.Position) {
	for _, pos := range r.Store.ActiveSnapshot(m) {
		if pos.Side != market.Sell || !r.eligible(pos) {
			continue
		}
		switch {
		case !pos.IsLandmark && pos.LowestIndex() > sellBoundary+info.OrderDCNice:
			converge = append(converge, pos)
		case pos.IsLandmark && pos.LowestIndex() < sellBoundary:
			diverge = append(diverge, pos)
		}
	}
	sort.Slice(converge, func(i, j int) bool { return converge[i].LowestIndex() > converge[j].LowestIndex() })
	return converge, diverge
}
