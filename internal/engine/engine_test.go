package engine

import (
	"testing"

	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/gateway"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
	"github.com/ordermesh/pingpong/internal/transport"
)

type fakeTransport struct {
	submitted []*position.Position
	cancelled []string
	gotOrder  []string
}

func (f *fakeTransport) Submit(pos *position.Position) error {
	f.submitted = append(f.submitted, pos)
	return nil
}
func (f *fakeTransport) Cancel(orderNumber string) error {
	f.cancelled = append(f.cancelled, orderNumber)
	return nil
}
func (f *fakeTransport) GetOrder(orderNumber string) error {
	f.gotOrder = append(f.gotOrder, orderNumber)
	return nil
}
func (f *fakeTransport) GetOpenOrders(market.Market) error { return nil }
func (f *fakeTransport) GetTicker(market.Market) error     { return nil }
func (f *fakeTransport) ShouldYield() bool                 { return false }
func (f *fakeTransport) InFlightCount() int                { return 0 }

var _ transport.Outbound = (*fakeTransport)(nil)

func newTestEngine(t *testing.T) (*Engine, market.Market, *fakeTransport) {
	t.Helper()
	store := position.NewStore()
	m := market.Market("X_Y")
	info := market.New(m, market.Settings{
		PriceTicksize:    coin.MustFromString("1"),
		QuantityTicksize: coin.MustFromString("0.00000001"),
		OrderDC:          3,
	})
	store.RegisterMarket(info)

	clockValue := int64(1_000_000)
	clock := func() int64 { return clockValue }

	ft := &fakeTransport{}
	e := New(store, ft, gateway.New(), clock)
	return e, m, ft
}

// S5. Slippage walk.
func TestTryMoveOrderRatchetsBoundedByOriginal(t *testing.T) {
	e, m, _ := newTestEngine(t)
	info := e.Store.Market(m)
	info.LowestSell = coin.MustFromString("105")

	pos := &position.Position{
		Market:           m,
		Side:             market.Buy,
		BuyPrice:         coin.MustFromString("100"),
		BuyPriceOriginal: coin.MustFromString("100"),
	}
	if changed := e.TryMoveOrder(pos); changed {
		t.Fatalf("expected no change when original equals current, got %s", pos.BuyPrice)
	}

	pos2 := &position.Position{
		Market:           m,
		Side:             market.Buy,
		BuyPrice:         coin.MustFromString("100"),
		BuyPriceOriginal: coin.MustFromString("105"),
	}
	if changed := e.TryMoveOrder(pos2); !changed {
		t.Fatalf("expected a ratchet when original allows room")
	}
	if !pos2.BuyPrice.Equal(coin.MustFromString("104")) {
		t.Fatalf("expected ratchet to 104, got %s", pos2.BuyPrice)
	}
}

// S2. Fill flip.
func TestFillFlipsToOppositeSideUsingCurrentSlot(t *testing.T) {
	e, m, _ := newTestEngine(t)
	info := e.Store.Market(m)
	slot := market.PositionSlot{
		BuyPrice:  coin.MustFromString("100"),
		SellPrice: coin.MustFromString("110"),
		OrderSize: coin.MustFromString("1"),
	}
	idx := info.AppendSlot(slot)

	pos := &position.Position{
		Market:            m,
		Side:              market.Buy,
		MarketIndices:     []int{idx},
		BuyPrice:          coin.MustFromString("100"),
		SellPrice:         coin.MustFromString("110"),
		BuyPriceOriginal:  coin.MustFromString("100"),
		SellPriceOriginal: coin.MustFromString("110"),
		Quantity:          coin.MustFromString("1"),
		Price:             coin.MustFromString("100"),
	}
	e.TestMode = true
	if err := e.Store.Add(pos); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := e.Store.Activate(pos, "P1", 0); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := e.fillPosition(pos, FillTicker); err != nil {
		t.Fatalf("fill: %v", err)
	}

	replacement, ok := e.Store.ByIndex(m, idx)
	if !ok {
		t.Fatalf("expected a replacement position at slot %d", idx)
	}
	if replacement.Side != market.Sell {
		t.Fatalf("expected replacement to be on the sell side, got %v", replacement.Side)
	}
	if !replacement.SellPrice.Equal(coin.MustFromString("110")) {
		t.Fatalf("expected sell price 110, got %s", replacement.SellPrice)
	}
	if slot, _ := info.Slot(idx); slot.FillCount != 1 {
		t.Fatalf("expected fill count to advance to 1, got %d", slot.FillCount)
	}
}

// S3. Queued cancel race.
func TestCancelWhileQueuedThenActivate(t *testing.T) {
	e, m, ft := newTestEngine(t)
	pos := &position.Position{
		Market: m,
		Side:   market.Buy,
		Price:  coin.MustFromString("100"),
	}
	if err := e.Store.Add(pos); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := e.Cancel(pos, market.CancelReasonUser); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !pos.IsCancelling || pos.OrderCancelTime != 1 {
		t.Fatalf("expected queued cancel to just mark the intent")
	}

	if err := e.ActivateAck(pos, "abc"); err != nil {
		t.Fatalf("activate ack: %v", err)
	}
	if len(ft.cancelled) != 1 || ft.cancelled[0] != "abc" {
		t.Fatalf("expected a transport cancel for abc, got %v", ft.cancelled)
	}
}

// S6. Blank flash mitigation.
func TestBlankOpenOrdersMitigation(t *testing.T) {
	e, m, _ := newTestEngine(t)
	for i := 0; i < 60; i++ {
		pos := &position.Position{
			Market:        m,
			Side:          market.Buy,
			MarketIndices: []int{i},
			Price:         coin.MustFromString("100"),
		}
		_ = e.Store.Add(pos)
		_ = e.Store.Activate(pos, "order-"+string(rune('A'+i%26))+string(rune('0'+i/26)), 1)
	}

	e.ProcessOpenOrders(transport.OpenOrdersEvent{
		OrderIDs:    nil,
		ByMarket:    map[market.Market][]transport.OrderInfo{},
		RequestTime: 2000,
	})

	for _, pos := range e.Store.ActiveSnapshot(m) {
		if pos.IsCancelling {
			t.Fatalf("mitigation should prevent any inferred cancels/fills")
		}
	}
}
