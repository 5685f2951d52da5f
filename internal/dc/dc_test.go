package dc

import (
	"testing"

	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/engine"
	"github.com/ordermesh/pingpong/internal/gateway"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
	"github.com/ordermesh/pingpong/internal/transport"
)

type fakeTransport struct{ cancelled []string }

func (f *fakeTransport) Submit(pos *position.Position) error { return nil }
func (f *fakeTransport) Cancel(orderNumber string) error {
	f.cancelled = append(f.cancelled, orderNumber)
	return nil
}
func (f *fakeTransport) GetOrder(string) error                { return nil }
func (f *fakeTransport) GetOpenOrders(market.Market) error    { return nil }
func (f *fakeTransport) GetTicker(market.Market) error        { return nil }
func (f *fakeTransport) ShouldYield() bool                    { return false }
func (f *fakeTransport) InFlightCount() int                   { return 0 }

var _ transport.Outbound = (*fakeTransport)(nil)

// S1. Converge: slots 0..9, buys active at {2,3,4,5,6}, order_dc=3.
// Expect the first converge pass to collapse {2,3,4}.
func TestConvergeCollapsesFirstRun(t *testing.T) {
	store := position.NewStore()
	m := market.Market("X_Y")
	info := market.New(m, market.Settings{
		PriceTicksize: coin.MustFromString("1"),
		OrderDC:       3,
	})
	for i := 0; i < 10; i++ {
		info.AppendSlot(market.PositionSlot{
			BuyPrice:  coin.MustFromString("100"),
			SellPrice: coin.MustFromString("110"),
			OrderSize: coin.MustFromString("1"),
		})
	}
	store.RegisterMarket(info)

	clock := func() int64 { return 1 }
	ft := &fakeTransport{}
	eng := engine.New(store, ft, gateway.New(), clock)

	coord := New(eng)
	store.SetDCReservations(coord)
	eng.DC = coord

	var positions []*position.Position
	for _, idx := range []int{2, 3, 4, 5, 6} {
		pos := &position.Position{
			Market:        m,
			Side:          market.Buy,
			MarketIndices: []int{idx},
			Price:         coin.MustFromString("100"),
		}
		if err := store.Add(pos); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := store.Activate(pos, "ord"+string(rune('0'+idx)), 1); err != nil {
			t.Fatalf("activate: %v", err)
		}
		positions = append(positions, pos)
	}

	changed, err := coord.Converge(m, positions, 3, 1)
	if err != nil {
		t.Fatalf("converge: %v", err)
	}
	if !changed {
		t.Fatalf("expected converge to find a run")
	}

	for _, idx := range []int{2, 3, 4} {
		if !coord.IsReserved(m, idx) {
			t.Fatalf("expected index %d to be reserved", idx)
		}
	}
	if coord.IsReserved(m, 5) || coord.IsReserved(m, 6) {
		t.Fatalf("only {2,3,4} should be reserved")
	}
	if len(ft.cancelled) != 3 {
		t.Fatalf("expected 3 cancels, got %d", len(ft.cancelled))
	}

	for _, pos := range positions[:3] {
		if err := eng.ProcessCancelledOrder(pos); err != nil {
			t.Fatalf("process cancelled: %v", err)
		}
	}

	var landmark *position.Position
	for _, pos := range store.QueuedSnapshot(m) {
		if pos.IsLandmark {
			landmark = pos
		}
	}
	if landmark == nil {
		t.Fatalf("expected a queued landmark position after all acks")
	}
	if len(landmark.MarketIndices) != 3 {
		t.Fatalf("expected landmark to span 3 indices, got %v", landmark.MarketIndices)
	}
	for _, idx := range []int{2, 3, 4} {
		if coord.IsReserved(m, idx) {
			t.Fatalf("index %d should be released once the landmark is in place", idx)
		}
	}
}

// A position that is a member of a pending converge group but gets removed
// through a path other than cancel_order_meat_dc (here, a direct
// Store.Remove standing in for a cancelLocal/invariant-cleanup removal)
// must still release its reserved indices instead of leaking them forever.
func TestRemovingGroupMemberOutsideCancelReleasesReservation(t *testing.T) {
	store := position.NewStore()
	m := market.Market("X_Y")
	info := market.New(m, market.Settings{
		PriceTicksize: coin.MustFromString("1"),
		OrderDC:       3,
	})
	for i := 0; i < 10; i++ {
		info.AppendSlot(market.PositionSlot{
			BuyPrice:  coin.MustFromString("100"),
			SellPrice: coin.MustFromString("110"),
			OrderSize: coin.MustFromString("1"),
		})
	}
	store.RegisterMarket(info)

	clock := func() int64 { return 1 }
	ft := &fakeTransport{}
	eng := engine.New(store, ft, gateway.New(), clock)

	coord := New(eng)
	store.SetDCReservations(coord)
	eng.DC = coord

	var positions []*position.Position
	for _, idx := range []int{2, 3, 4} {
		pos := &position.Position{
			Market:        m,
			Side:          market.Buy,
			MarketIndices: []int{idx},
			Price:         coin.MustFromString("100"),
		}
		if err := store.Add(pos); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := store.Activate(pos, "ord"+string(rune('0'+idx)), 1); err != nil {
			t.Fatalf("activate: %v", err)
		}
		positions = append(positions, pos)
	}

	if _, err := coord.Converge(m, positions, 3, 1); err != nil {
		t.Fatalf("converge: %v", err)
	}
	for _, idx := range []int{2, 3, 4} {
		if !coord.IsReserved(m, idx) {
			t.Fatalf("expected index %d to be reserved", idx)
		}
	}

	// Remove one group member directly (e.g. a maintenance-epoch
	// cancelLocal sweep), bypassing ProcessCancelledOrder/HandleCancelledDC
	// entirely.
	if err := store.Remove(positions[0]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if coord.IsReserved(m, 2) {
		t.Fatalf("index 2 should be released once its position leaves outside cancel_order_meat_dc")
	}

	// The remaining two members finish through the normal path; their
	// indices must already be gone from the group so this doesn't panic or
	// double-release.
	for _, pos := range positions[1:] {
		if err := eng.ProcessCancelledOrder(pos); err != nil {
			t.Fatalf("process cancelled: %v", err)
		}
	}
	for _, idx := range []int{3, 4} {
		if coord.IsReserved(m, idx) {
			t.Fatalf("index %d should be released once the group drains", idx)
		}
	}
}
