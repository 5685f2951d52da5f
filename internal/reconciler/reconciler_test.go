package reconciler

import (
	"testing"

	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/dc"
	"github.com/ordermesh/pingpong/internal/engine"
	"github.com/ordermesh/pingpong/internal/gateway"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
	"github.com/ordermesh/pingpong/internal/transport"
)

type fakeTransport struct {
	submitted []string
	cancelled []string
}

func (f *fakeTransport) Submit(pos *position.Position) error {
	f.submitted = append(f.submitted, string(pos.Market)+"-sub")
	return nil
}
func (f *fakeTransport) Cancel(orderNumber string) error {
	f.cancelled = append(f.cancelled, orderNumber)
	return nil
}
func (f *fakeTransport) GetOrder(string) error             { return nil }
func (f *fakeTransport) GetOpenOrders(market.Market) error { return nil }
func (f *fakeTransport) GetTicker(market.Market) error     { return nil }
func (f *fakeTransport) ShouldYield() bool                 { return false }
func (f *fakeTransport) InFlightCount() int                { return 0 }

var _ transport.Outbound = (*fakeTransport)(nil)

func newTestReconciler(t *testing.T, m market.Market, settings market.Settings, slots int) (*Reconciler, *position.Store, *engine.Engine, *fakeTransport) {
	t.Helper()
	store := position.NewStore()
	info := market.New(m, settings)
	for i := 0; i < slots; i++ {
		info.AppendSlot(market.PositionSlot{
			BuyPrice:  coin.MustFromString("100"),
			SellPrice: coin.MustFromString("110"),
			OrderSize: coin.MustFromString("1"),
		})
	}
	store.RegisterMarket(info)

	clock := func() int64 { return 1000 }
	ft := &fakeTransport{}
	eng := engine.New(store, ft, gateway.New(), clock)
	eng.TestMode = true

	coord := dc.New(eng)
	store.SetDCReservations(coord)
	eng.DC = coord

	r := New(eng, coord)
	return r, store, eng, ft
}

func TestCheckBuySellCountToppsUpBelowMin(t *testing.T) {
	m := market.Market("X_Y")
	settings := market.Settings{
		PriceTicksize:      coin.MustFromString("1"),
		OrderMin:           2,
		OrderMax:           5,
		OrderDC:            1,
		OrderLandmarkStart: 1,
		OrderLandmarkThresh: 1,
	}
	r, store, _, _ := newTestReconciler(t, m, settings, 5)

	r.checkBuySellCount(1000)

	if got := store.BuyTotal(m); got != 2 {
		t.Fatalf("expected 2 active buys, got %d", got)
	}
	if got := store.SellTotal(m); got != 2 {
		t.Fatalf("expected 2 active sells, got %d", got)
	}
}

func TestCheckBuySellCountCancelsAboveMax(t *testing.T) {
	m := market.Market("X_Y")
	settings := market.Settings{
		PriceTicksize: coin.MustFromString("1"),
		OrderMin:      0,
		OrderMax:      1,
		OrderDC:       1,
	}
	r, store, eng, _ := newTestReconciler(t, m, settings, 4)

	for _, idx := range []int{0, 1} {
		pos := &position.Position{Market: m, Side: market.Buy, MarketIndices: []int{idx}, Price: coin.MustFromString("100")}
		if err := store.Add(pos); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := eng.ActivateAck(pos, "buy"+string(rune('0'+idx))); err != nil {
			t.Fatalf("activate: %v", err)
		}
	}

	r.checkBuySellCount(1000)

	if got := store.BuyTotal(m); got != 1 {
		t.Fatalf("expected exactly order_max=1 active buy after trim, got %d", got)
	}
}

func TestCheckTimeoutsRecancelsStalledCancel(t *testing.T) {
	m := market.Market("X_Y")
	settings := market.Settings{PriceTicksize: coin.MustFromString("1"), OrderMin: 0, OrderMax: 0}
	r, store, eng, ft := newTestReconciler(t, m, settings, 2)
	eng.TestMode = false // keep the cancel in flight instead of auto-resolving

	pos := &position.Position{Market: m, Side: market.Buy, MarketIndices: []int{0}, Price: coin.MustFromString("100")}
	if err := store.Add(pos); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Activate(pos, "ord1", 0); err != nil {
		t.Fatalf("activate: %v", err)
	}
	pos.IsCancelling = true
	pos.OrderCancelTime = 0
	pos.CancelReason = market.CancelReasonUser

	eng.Config.CancelTimeout = 100
	if err := r.CheckTimeouts(1000); err != nil {
		t.Fatalf("check timeouts: %v", err)
	}

	found := false
	for _, id := range ft.cancelled {
		if id == "ord1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a re-sent cancel for ord1, got %v", ft.cancelled)
	}
}

func TestCheckTimeoutsExpiresOneTimeMaxAge(t *testing.T) {
	m := market.Market("X_Y")
	settings := market.Settings{PriceTicksize: coin.MustFromString("1"), OrderMin: 0, OrderMax: 5}
	r, store, eng, _ := newTestReconciler(t, m, settings, 2)

	pos := &position.Position{
		Market:        m,
		Side:          market.Buy,
		MarketIndices: []int{0},
		Price:         coin.MustFromString("100"),
		IsOnetime:     true,
		MaxAgeMinutes: 1,
	}
	if err := store.Add(pos); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := eng.ActivateAck(pos, "ord1"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	pos.OrderSetTime = 0

	if err := r.CheckTimeouts(60_001); err != nil {
		t.Fatalf("check timeouts: %v", err)
	}

	if _, ok := store.ByOrderID("ord1"); ok {
		t.Fatalf("expected the expired one-time order to be removed")
	}
}

func TestCheckDivergeConvergeRunsMaintenanceCancelLocal(t *testing.T) {
	m := market.Market("X_Y")
	settings := market.Settings{PriceTicksize: coin.MustFromString("1"), OrderDC: 1}
	r, store, eng, _ := newTestReconciler(t, m, settings, 4)

	active := &position.Position{Market: m, Side: market.Buy, MarketIndices: []int{0}, Price: coin.MustFromString("100")}
	if err := store.Add(active); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := eng.ActivateAck(active, "ord1"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	queued := &position.Position{Market: m, Side: market.Sell, MarketIndices: []int{1}, Price: coin.MustFromString("110")}
	if err := store.Add(queued); err != nil {
		t.Fatalf("add: %v", err)
	}

	var maintained []market.Market
	r.MaintenanceIntervalMs = 1
	r.OnMaintenance(func(m market.Market) {
		maintained = append(maintained, m)
		if err := eng.CancelLocal(m); err != nil {
			t.Fatalf("cancel local: %v", err)
		}
	})

	if err := r.CheckDivergeConverge(1000); err != nil {
		t.Fatalf("check diverge converge: %v", err)
	}

	if len(maintained) != 1 || maintained[0] != m {
		t.Fatalf("expected maintenance to fire once for %s, got %v", m, maintained)
	}
	if store.ActiveCount(m) != 0 {
		t.Fatalf("expected cancelLocal to clear active positions, got %d", store.ActiveCount(m))
	}
	if _, ok := store.ByOrderID("ord1"); ok {
		t.Fatalf("expected ord1 to be removed by cancelLocal")
	}
	if got := len(store.QueuedSnapshot(m)); got != 0 {
		t.Fatalf("expected cancelLocal to clear queued positions, got %d", got)
	}
}

func TestScanBuysPartitionsConvergeAndDivergeCandidates(t *testing.T) {
	m := market.Market("X_Y")
	settings := market.Settings{
		PriceTicksize:       coin.MustFromString("1"),
		OrderDC:             3,
		OrderLandmarkStart:  2,
		OrderDCNice:         1,
	}
	r, store, eng, _ := newTestReconciler(t, m, settings, 20)

	far := &position.Position{Market: m, Side: market.Buy, MarketIndices: []int{0}, Price: coin.MustFromString("100")}
	near := &position.Position{Market: m, Side: market.Buy, MarketIndices: []int{12, 13, 14}, Price: coin.MustFromString("100"), IsLandmark: true}
	top := &position.Position{Market: m, Side: market.Buy, MarketIndices: []int{15}, Price: coin.MustFromString("100")}

	for i, pos := range []*position.Position{far, near, top} {
		if err := store.Add(pos); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := eng.ActivateAck(pos, "b"+string(rune('0'+i))); err != nil {
			t.Fatalf("activate: %v", err)
		}
	}

	maxBuy := r.maxBuyIndex(m)
	if maxBuy != 15 {
		t.Fatalf("expected max_buy_index 15, got %d", maxBuy)
	}

	converge, diverge := r.scanBuys(m, store.Market(m), maxBuy)
	if len(converge) != 1 || converge[0] != far {
		t.Fatalf("expected only the far order queued for converge, got %v", converge)
	}
	if len(diverge) != 1 || diverge[0] != near {
		t.Fatalf("expected only the near landmark queued for diverge, got %v", diverge)
	}
}
