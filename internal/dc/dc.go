// Package dc implements the DC Coordinator: it decides when adjacent
// resting orders consolidate into a landmark order (converge) or split
// back into singletons (diverge), and tracks the two-phase cancel→replace
// dance via the diverge_converge/diverging_converging maps from §3 and
// §4.4.
package dc

import (
	"github.com/ordermesh/pingpong/internal/engine"
	"github.com/ordermesh/pingpong/internal/errs"
	internalerrors "github.com/ordermesh/pingpong/internal/errors"
	"github.com/ordermesh/pingpong/internal/logging"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
)

// group is one entry of the diverge_converge map: a pending cancel-group
// awaiting completion.
type group struct {
	market         market.Market
	side           market.Side
	willBeLandmark bool
	newIndices     []int // the indices the eventual replacement(s) will use
	remaining      map[position.Handle]*position.Position
}

// Coordinator owns the diverge_converge and diverging_converging maps and
// drives converge/diverge. It is wired into the Store as the
// DCReservations provider and into the Engine as the DCHandler for
// reason=DC cancel acks.
type Coordinator struct {
	store *position.Store
	eng   *engine.Engine
	log   logging.Logger

	reserved map[market.Market]map[int]struct{}
	groups   []*group
}

// New creates a Coordinator bound to eng's store. It registers an
// OnRemove hook so a position that leaves the store through any path
// other than HandleCancelledDC (e.g. cancelLocal, a one-time max-age
// expiry, or a stray cleanup) still excises itself from its pending
// group and releases its reserved indices, instead of leaking them.
func New(eng *engine.Engine) *Coordinator {
	c := &Coordinator{
		store:    eng.Store,
		eng:      eng,
		log:      logging.Nop(),
		reserved: make(map[market.Market]map[int]struct{}),
	}
	eng.Store.OnRemove(c.handleRemoved)
	return c
}

// handleRemoved is the OnRemove hook: if pos was still a member of a
// pending diverge/converge group when it was removed, it excises pos
// from that group's remaining set, releases pos's own indices at once and
// drops them from the group's replacement indices; the rest are released
// once the group drains. HandleCancelledDC already excises pos from its
// group before calling Store.Remove, so this is a no-op on that path —
// it only matters for removal through every other path.
func (c *Coordinator) handleRemoved(pos *position.Position) {
	g := c.findGroup(pos)
	if g == nil {
		return
	}
	delete(g.remaining, pos.Handle)
	c.release(g.market, pos.MarketIndices)
	var kept []int
	for _, idx := range g.newIndices {
		own := false
		for _, pi := range pos.MarketIndices {
			if pi == idx {
				own = true
				break
			}
		}
		if !own {
			kept = append(kept, idx)
		}
	}
	g.newIndices = kept
	if len(g.remaining) > 0 {
		return
	}
	c.removeGroup(g)
	c.release(g.market, g.newIndices)
}

// IsReserved satisfies position.DCReservations.
func (c *Coordinator) IsReserved(m market.Market, idx int) bool {
	_, ok := c.reserved[m][idx]
	return ok
}

func (c *Coordinator) reserve(m market.Market, indices []int) {
	set := c.reserved[m]
	if set == nil {
		set = make(map[int]struct{})
		c.reserved[m] = set
	}
	for _, idx := range indices {
		set[idx] = struct{}{}
	}
}

func (c *Coordinator) release(m market.Market, indices []int) {
	set := c.reserved[m]
	if set == nil {
		return
	}
	for _, idx := range indices {
		delete(set, idx)
	}
}

// Converge walks candidates (pre-sorted by the reconciler: buys ascending,
// sells descending) looking for a consecutive run of orderDC indices. On
// the first complete run it cancels every member with reason DC, reserves
// their indices, and records the pending group, then returns true. A
// non-consecutive break restarts the run from that index. Only one
// converge is emitted per call, matching "exactly one converge per market
// per pass".
func (c *Coordinator) Converge(m market.Market, candidates []*position.Position, orderDC int, step int) (bool, error) {
	if orderDC < 2 || len(candidates) == 0 {
		return false, nil
	}

	run := candidates[:1]
	lastIdx := candidates[0].LowestIndex()

	for i := 1; i < len(candidates); i++ {
		idx := candidates[i].LowestIndex()
		if idx == lastIdx+step {
			run = append(run, candidates[i])
		} else {
			run = candidates[i : i+1]
		}
		lastIdx = idx

		if len(run) == orderDC {
			return true, c.startConverge(m, run)
		}
	}
	return false, nil
}

func (c *Coordinator) startConverge(m market.Market, run []*position.Position) error {
	indices := make([]int, 0, len(run))
	remaining := make(map[position.Handle]*position.Position, len(run))
	side := run[0].Side

	for _, pos := range run {
		indices = append(indices, pos.MarketIndices...)
		remaining[pos.Handle] = pos
	}

	c.reserve(m, indices)
	c.groups = append(c.groups, &group{
		market:         m,
		side:           side,
		willBeLandmark: true,
		newIndices:     indices,
		remaining:      remaining,
	})

	for _, pos := range run {
		if err := c.eng.Cancel(pos, market.CancelReasonDC); err != nil {
			return internalerrors.Wrap(err, "converge cancel")
		}
	}
	return nil
}

// Diverge takes the lowest-index landmark from candidates, cancels it with
// reason DC, reserves its indices, and records the split-back group.
func (c *Coordinator) Diverge(m market.Market, candidates []*position.Position) (bool, error) {
	if len(candidates) == 0 {
		return false, nil
	}

	lowest := candidates[0]
	for _, pos := range candidates[1:] {
		if pos.LowestIndex() < lowest.LowestIndex() {
			lowest = pos
		}
	}

	indices := append([]int(nil), lowest.MarketIndices...)
	c.reserve(m, indices)
	c.groups = append(c.groups, &group{
		market:         m,
		side:           lowest.Side,
		willBeLandmark: false,
		newIndices:     indices,
		remaining:      map[position.Handle]*position.Position{lowest.Handle: lowest},
	})

	if err := c.eng.Cancel(lowest, market.CancelReasonDC); err != nil {
		return false, internalerrors.Wrap(err, "diverge cancel")
	}
	return true, nil
}

// HandleCancelledDC is cancel_order_meat_dc(pos) from §4.4, invoked by the
// engine once a DC-reason cancel is acknowledged.
func (c *Coordinator) HandleCancelledDC(pos *position.Position) error {
	g := c.findGroup(pos)
	if g == nil {
		return internalerrors.Wrap(errs.ErrDCGroupNotFound, "cancel_order_meat_dc")
	}

	delete(g.remaining, pos.Handle)
	if err := c.store.Remove(pos); err != nil {
		return err
	}

	if len(g.remaining) > 0 {
		return nil
	}

	c.removeGroup(g)
	c.release(g.market, g.newIndices)

	if g.willBeLandmark {
		_, err := c.eng.AddFromSlot(g.market, g.side, g.newIndices, true, pos.StrategyTag)
		return err
	}

	for _, idx := range g.newIndices {
		if _, err := c.eng.AddFromSlot(g.market, g.side, []int{idx}, false, pos.StrategyTag); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) findGroup(pos *position.Position) *group {
	for _, g := range c.groups {
		if _, ok := g.remaining[pos.Handle]; ok {
			return g
		}
	}
	return nil
}

func (c *Coordinator) removeGroup(target *group) {
	out := c.groups[:0]
	for _, g := range c.groups {
		if g != target {
			out = append(out, g)
		}
	}
	c.groups = out
}
