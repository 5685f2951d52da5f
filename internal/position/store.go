package position

import (
	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/errs"
	internalerrors "github.com/ordermesh/pingpong/internal/errors"
	"github.com/ordermesh/pingpong/internal/market"
)

// DCReservations is queried by the store to decide whether a slot index is
// currently blocked from fresh placement by an in-flight diverge/converge
// group. It is satisfied by the dc package's reservation map; the store
// only reads it, never mutates it.
type DCReservations interface {
	IsReserved(m market.Market, index int) bool
}

type noReservations struct{}

func (noReservations) IsReserved(market.Market, int) bool { return false }

// Store is the authoritative owner of every Position. Positions live in a
// flat map keyed by Handle; every other index below is a non-owning lookup
// over that map, matching the ownership model in the design notes.
type Store struct {
	markets map[market.Market]*market.Info

	all    map[Handle]*Position
	queued map[Handle]struct{}
	active map[Handle]struct{}

	byOrderID map[string]Handle
	byIndex   map[market.Market]map[int]Handle

	dc DCReservations

	nextHandle  Handle
	onRemove    []func(*Position)
}

// NewStore creates an empty store. Attach markets with RegisterMarket
// before calling Add.
func NewStore() *Store {
	return &Store{
		markets:   make(map[market.Market]*market.Info),
		all:       make(map[Handle]*Position),
		queued:    make(map[Handle]struct{}),
		active:    make(map[Handle]struct{}),
		byOrderID: make(map[string]Handle),
		byIndex:   make(map[market.Market]map[int]Handle),
		dc:        noReservations{},
	}
}

// SetDCReservations wires the DC coordinator's reservation set in. Called
// once during reactor construction to break the import cycle between the
// position and dc packages.
func (s *Store) SetDCReservations(dc DCReservations) {
	s.dc = dc
}

// OnRemove registers a hook invoked whenever a position leaves the store,
// used by the gateway to detach any in-flight transport request bound to
// the position's handle.
func (s *Store) OnRemove(fn func(*Position)) {
	s.onRemove = append(s.onRemove, fn)
}

// RegisterMarket attaches a market.Info the store will maintain
// order_prices for. Must be called before any Add targeting that market.
func (s *Store) RegisterMarket(info *market.Info) {
	s.markets[info.Market] = info
}

// Market returns the Info for m, or nil if unregistered.
func (s *Store) Market(m market.Market) *market.Info {
	return s.markets[m]
}

// Markets returns every registered market identifier.
func (s *Store) Markets() []market.Market {
	out := make([]market.Market, 0, len(s.markets))
	for m := range s.markets {
		out = append(out, m)
	}
	return out
}

func (s *Store) nextID() Handle {
	s.nextHandle++
	return s.nextHandle
}

// Add inserts pos into the queued set and the all-positions map, and
// records its price in the market's order_prices multiset. Fails if pos
// (by Handle) is already present.
func (s *Store) Add(pos *Position) error {
	if pos.Handle == 0 {
		pos.Handle = s.nextID()
	} else if _, ok := s.all[pos.Handle]; ok {
		return errs.ErrPositionExists
	}
	s.all[pos.Handle] = pos
	s.queued[pos.Handle] = struct{}{}
	if info := s.markets[pos.Market]; info != nil {
		info.AddOrderPrice(pos.Price)
	}
	return nil
}

// Activate records an exchange acknowledgment: sets order_set_time,
// removes pos from queued, inserts into active and by-order-id, clears
// is_new_hilo_order, and registers it against its slot indices. The
// canonical id may be pre-prefixed by the caller for exchanges whose order
// ids collide across markets.
func (s *Store) Activate(pos *Position, orderNumber string, now int64) error {
	if orderNumber == "" {
		return errs.ErrOrderIDEmpty
	}
	if _, ok := s.byOrderID[orderNumber]; ok {
		return errs.ErrOrderIDKnown
	}
	if _, ok := s.all[pos.Handle]; !ok {
		return errs.ErrPositionNotFound
	}

	pos.OrderNumber = orderNumber
	pos.OrderSetTime = now
	pos.IsNewHiLoOrder = false

	delete(s.queued, pos.Handle)
	s.active[pos.Handle] = struct{}{}
	s.byOrderID[orderNumber] = pos.Handle

	idx := s.byIndex[pos.Market]
	if idx == nil {
		idx = make(map[int]Handle)
		s.byIndex[pos.Market] = idx
	}
	for _, i := range pos.MarketIndices {
		idx[i] = pos.Handle
	}
	return nil
}

// Remove withdraws pos from every index, releases its order_prices
// occurrence, and runs every registered OnRemove hook (transport
// detachment, DC reservation release).
func (s *Store) Remove(pos *Position) error {
	if _, ok := s.all[pos.Handle]; !ok {
		return internalerrors.Wrap(errs.ErrPositionNotFound, "store.Remove")
	}

	if info := s.markets[pos.Market]; info != nil && !pos.Price.IsZero() {
		info.RemoveOrderPrice(pos.Price)
	}

	delete(s.all, pos.Handle)
	delete(s.queued, pos.Handle)
	delete(s.active, pos.Handle)
	if pos.OrderNumber != "" {
		delete(s.byOrderID, pos.OrderNumber)
	}
	if idx := s.byIndex[pos.Market]; idx != nil {
		for _, i := range pos.MarketIndices {
			if idx[i] == pos.Handle {
				delete(idx, i)
			}
		}
	}

	for _, hook := range s.onRemove {
		hook(pos)
	}
	return nil
}

// ByHandle looks up a position by its stable internal handle.
func (s *Store) ByHandle(h Handle) (*Position, bool) {
	p, ok := s.all[h]
	return p, ok
}

// ByOrderID looks up the active position for an exchange order id.
func (s *Store) ByOrderID(orderNumber string) (*Position, bool) {
	h, ok := s.byOrderID[orderNumber]
	if !ok {
		return nil, false
	}
	return s.all[h], true
}

// ByIndex returns the active position covering (market, idx), if any. DC
// reservations are not consulted.
func (s *Store) ByIndex(m market.Market, idx int) (*Position, bool) {
	h, ok := s.byIndex[m][idx]
	if !ok {
		return nil, false
	}
	return s.all[h], true
}

// IsIndexDivergingConverging reports whether idx is reserved by an
// in-flight DC group and therefore must not be auto-set.
func (s *Store) IsIndexDivergingConverging(m market.Market, idx int) bool {
	return s.dc.IsReserved(m, idx)
}

// activeSnapshot returns a defensive copy of active positions in m, so
// callers may cancel/remove while iterating without corrupting the sweep.
func (s *Store) activeSnapshot(m market.Market) []*Position {
	out := make([]*Position, 0, len(s.active))
	for h := range s.active {
		pos := s.all[h]
		if pos != nil && pos.Market == m {
			out = append(out, pos)
		}
	}
	return out
}

// ActiveSnapshot is the exported form of activeSnapshot, used by the
// reconciler and DC coordinator sweeps.
func (s *Store) ActiveSnapshot(m market.Market) []*Position {
	return s.activeSnapshot(m)
}

// AllSnapshot returns a defensive copy of every active and queued position
// in m, used by the reconciler to compute occupied-index bounds.
func (s *Store) AllSnapshot(m market.Market) []*Position {
	out := s.activeSnapshot(m)
	out = append(out, s.QueuedSnapshot(m)...)
	return out
}

// QueuedSnapshot returns a defensive copy of queued positions in m.
func (s *Store) QueuedSnapshot(m market.Market) []*Position {
	out := make([]*Position, 0, len(s.queued))
	for h := range s.queued {
		pos := s.all[h]
		if pos != nil && pos.Market == m {
			out = append(out, pos)
		}
	}
	return out
}

// HighestActiveByPrice returns the highest-priced active position on side
// in market m (landmarks compare by their stored Price).
func (s *Store) HighestActiveByPrice(m market.Market, side market.Side) (*Position, bool) {
	return s.extremeActiveByPrice(m, side, true, false)
}

// LowestActiveByPrice returns the lowest-priced active position on side.
func (s *Store) LowestActiveByPrice(m market.Market, side market.Side) (*Position, bool) {
	return s.extremeActiveByPrice(m, side, false, false)
}

// HighestActivePingPong mirrors HighestActiveByPrice but excludes one-time
// orders, as used by set_next_highest/lowest bookkeeping.
func (s *Store) HighestActivePingPong(m market.Market) (*Position, bool) {
	return s.extremeActiveByPrice(m, market.SideUnknown, true, true)
}

// LowestActivePingPong mirrors LowestActiveByPrice excluding one-time orders.
func (s *Store) LowestActivePingPong(m market.Market) (*Position, bool) {
	return s.extremeActiveByPrice(m, market.SideUnknown, false, true)
}

func (s *Store) extremeActiveByPrice(m market.Market, side market.Side, highest bool, pingPongOnly bool) (*Position, bool) {
	var best *Position
	for h := range s.active {
		pos := s.all[h]
		if pos == nil || pos.Market != m {
			continue
		}
		if side != market.SideUnknown && pos.Side != side {
			continue
		}
		if pingPongOnly && pos.IsOnetime {
			continue
		}
		if best == nil {
			best = pos
			continue
		}
		if highest && pos.Price.GreaterThan(best.Price) {
			best = pos
		}
		if !highest && pos.Price.LessThan(best.Price) {
			best = pos
		}
	}
	return best, best != nil
}

// BuyTotal counts non-cancelling active buys in market m.
func (s *Store) BuyTotal(m market.Market) int {
	return s.sideTotal(m, market.Buy)
}

// SellTotal counts non-cancelling active sells in market m.
func (s *Store) SellTotal(m market.Market) int {
	return s.sideTotal(m, market.Sell)
}

func (s *Store) sideTotal(m market.Market, side market.Side) int {
	n := 0
	for h := range s.active {
		pos := s.all[h]
		if pos != nil && pos.Market == m && pos.Side == side && !pos.IsCancelling {
			n++
		}
	}
	return n
}

// MaxOccupiedIndex returns the highest slot index spanned by any active
// position in m, used by the DC sweep to compute max_buy_index.
func (s *Store) MaxOccupiedIndex(m market.Market) int {
	max := -1
	for h := range s.active {
		pos := s.all[h]
		if pos == nil || pos.Market != m {
			continue
		}
		if hi := pos.HighestIndex(); hi > max {
			max = hi
		}
	}
	return max
}

// IndexOccupied reports whether any active, non-reserved position covers
// (market, idx) or idx is currently reserved by a DC group.
func (s *Store) IndexOccupied(m market.Market, idx int) bool {
	if s.IsIndexDivergingConverging(m, idx) {
		return true
	}
	_, ok := s.ByIndex(m, idx)
	return ok
}

// ActiveCount returns the number of active positions in m, used by the
// blank-orderbook mitigation threshold.
func (s *Store) ActiveCount(m market.Market) int {
	return len(s.activeSnapshot(m))
}

// FlipHiBuyPrice returns the price of the highest active buy in m, used by
// the portfolio-rebalancing collaborator to pick which slot to flip next.
func (s *Store) FlipHiBuyPrice(m market.Market) (coin.Coin, bool) {
	pos, ok := s.HighestActiveByPrice(m, market.Buy)
	if !ok {
		return coin.Coin{}, false
	}
	return pos.Price, true
}

// FlipHiBuyIndex returns the slot index of the highest active buy in m.
func (s *Store) FlipHiBuyIndex(m market.Market) (int, bool) {
	pos, ok := s.HighestActiveByPrice(m, market.Buy)
	if !ok {
		return 0, false
	}
	return pos.HighestIndex(), true
}

// FlipLoSellPrice returns the price of the lowest active sell in m.
func (s *Store) FlipLoSellPrice(m market.Market) (coin.Coin, bool) {
	pos, ok := s.LowestActiveByPrice(m, market.Sell)
	if !ok {
		return coin.Coin{}, false
	}
	return pos.Price, true
}

// FlipLoSellIndex returns the slot index of the lowest active sell in m.
func (s *Store) FlipLoSellIndex(m market.Market) (int, bool) {
	pos, ok := s.LowestActiveByPrice(m, market.Sell)
	if !ok {
		return 0, false
	}
	return pos.LowestIndex(), true
}
