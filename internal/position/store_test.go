package position

import (
	"testing"

	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/market"
)

func newTestStore() (*Store, market.Market) {
	s := NewStore()
	m := market.Market("X_Y")
	info := market.New(m, market.Settings{
		PriceTicksize: coin.MustFromString("1"),
		OrderDC:       3,
	})
	s.RegisterMarket(info)
	return s, m
}

func TestAddActivateRemove(t *testing.T) {
	s, m := newTestStore()
	pos := &Position{
		Market:        m,
		Side:          market.Buy,
		MarketIndices: []int{5},
		Price:         coin.MustFromString("100"),
	}
	if err := s.Add(pos); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, ok := s.ByOrderID("abc"); ok {
		t.Fatalf("unexpected order id before activation")
	}

	if err := s.Activate(pos, "abc", 1000); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if got, ok := s.ByIndex(m, 5); !ok || got != pos {
		t.Fatalf("by-index lookup failed")
	}
	if !s.Market(m).HasOrderPrice(coin.MustFromString("100")) {
		t.Fatalf("order price not recorded")
	}

	if err := s.Remove(pos); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.Market(m).HasOrderPrice(coin.MustFromString("100")) {
		t.Fatalf("order price should be withdrawn after remove")
	}
	if _, ok := s.ByIndex(m, 5); ok {
		t.Fatalf("index should be cleared after remove")
	}
}

func TestOnRemoveHookFires(t *testing.T) {
	s, m := newTestStore()
	pos := &Position{Market: m, Side: market.Buy, MarketIndices: []int{1}, Price: coin.MustFromString("50")}
	fired := false
	s.OnRemove(func(p *Position) { fired = true })
	_ = s.Add(pos)
	_ = s.Remove(pos)
	if !fired {
		t.Fatalf("expected OnRemove hook to fire")
	}
}

func TestExtremeActiveByPrice(t *testing.T) {
	s, m := newTestStore()
	low := &Position{Market: m, Side: market.Buy, MarketIndices: []int{1}, Price: coin.MustFromString("90")}
	high := &Position{Market: m, Side: market.Buy, MarketIndices: []int{2}, Price: coin.MustFromString("95")}
	_ = s.Add(low)
	_ = s.Add(high)
	_ = s.Activate(low, "low", 1)
	_ = s.Activate(high, "high", 1)

	got, ok := s.HighestActiveByPrice(m, market.Buy)
	if !ok || got != high {
		t.Fatalf("expected highest to be the 95 position")
	}
	got, ok = s.LowestActiveByPrice(m, market.Buy)
	if !ok || got != low {
		t.Fatalf("expected lowest to be the 90 position")
	}
}
