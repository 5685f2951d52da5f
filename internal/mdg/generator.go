// Package mdg generates synthetic ticker ticks for paper trading and
// chaos/replay testing, the way the teacher's internal/mdg package
// (generator.go/normalize.go) synthesized schema.MarketData from a
// registry of scaled-int symbols — reworked here to produce
// transport.TickerEvent quotes over market.Market/coin.Coin.
package mdg

import (
	"fmt"
	"time"

	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/market"
)

// Generator creates synthetic ticker ticks cycling through a fixed set of
// markets, walking each one's mid price by a small deterministic step so
// consecutive ticks are distinguishable in a replay log.
type Generator struct {
	markets   []market.Market
	source    uint16
	basePrice coin.Coin
	step      coin.Coin
	spread    coin.Coin
	index     int
	round     int
}

// NewGenerator creates a generator for the given markets.
func NewGenerator(markets []market.Market, source uint16, basePrice, step, spread coin.Coin) (*Generator, error) {
	if len(markets) == 0 {
		return nil, fmt.Errorf("no markets configured")
	}
	return &Generator{
		markets:   markets,
		source:    source,
		basePrice: basePrice,
		step:      step,
		spread:    spread,
	}, nil
}

// RawTick is one synthetic quote before it is folded into a TickerEvent.
type RawTick struct {
	Market   market.Market
	Mid      coin.Coin
	BidPrice coin.Coin
	AskPrice coin.Coin
	Source   uint16
	TsEvent  int64
	TsRecv   int64
}

// Next creates the next raw tick in sequence.
func (g *Generator) Next(now time.Time) RawTick {
	m := g.markets[g.index]
	walk := g.step.Ratio(float64(g.round), g.step.Precision())
	mid := g.basePrice.Add(walk)
	g.index = (g.index + 1) % len(g.markets)
	if g.index == 0 {
		g.round++
	}
	return RawTick{
		Market:   m,
		Mid:      mid,
		BidPrice: mid.Sub(g.spread),
		AskPrice: mid.Add(g.spread),
		Source:   g.source,
		TsEvent:  now.UnixNano(),
		TsRecv:   now.UnixNano(),
	}
}
