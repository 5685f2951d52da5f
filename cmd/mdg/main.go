package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/mdg"
	"github.com/ordermesh/pingpong/internal/ops"
	"github.com/ordermesh/pingpong/internal/recorder"
)

func main() {
	walDir := flag.String("wal-dir", "testdata/wal", "WAL directory for market data")
	configPath := flag.String("config", "", "Path to JSON config (for the market list)")
	ticks := flag.Int("ticks", 10, "Number of ticker batches to generate")
	interval := flag.Duration("interval", 0, "Delay between batches")
	basePrice := flag.String("base-price", "100", "Base mid price")
	step := flag.String("step", "0.01", "Per-tick walk step")
	spread := flag.String("spread", "0.05", "Bid/ask half spread")
	source := flag.Uint("source", 1, "Synthetic source id")
	flag.Parse()

	if *ticks <= 0 {
		log.Fatalf("ticks must be > 0")
	}

	markets, err := loadMarkets(*configPath)
	if err != nil {
		log.Fatalf("market list load failed: %v", err)
	}

	base, err := coin.NewFromString(*basePrice)
	if err != nil {
		log.Fatalf("invalid base-price: %v", err)
	}
	stepCoin, err := coin.NewFromString(*step)
	if err != nil {
		log.Fatalf("invalid step: %v", err)
	}
	spreadCoin, err := coin.NewFromString(*spread)
	if err != nil {
		log.Fatalf("invalid spread: %v", err)
	}

	generator, err := mdg.NewGenerator(markets, uint16(*source), base, stepCoin, spreadCoin)
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}
	normalizer := mdg.NewNormalizer()

	ctx := context.Background()
	cfg := recorder.DefaultConfig(*walDir)
	writer, err := recorder.NewWriter(cfg)
	if err != nil {
		log.Fatalf("wal init failed: %v", err)
	}
	if err := writer.Start(ctx); err != nil {
		log.Fatalf("wal start failed: %v", err)
	}

	seq := uint64(0)
	for i := 0; i < *ticks; i++ {
		seq++
		now := time.Now().UTC()
		batch := make([]mdg.RawTick, 0, len(markets))
		for range markets {
			batch = append(batch, generator.Next(now))
		}
		header, tick := normalizer.Normalize(seq, batch)
		payload, err := sonic.ConfigFastest.Marshal(tick)
		if err != nil {
			log.Fatalf("encode failed: %v", err)
		}
		if err := writer.TryAppend(header, payload); err != nil {
			log.Fatalf("wal append failed: %v", err)
		}
		if *interval > 0 && i < *ticks-1 {
			time.Sleep(*interval)
		}
	}

	if err := writer.Close(); err != nil {
		log.Fatalf("wal close failed: %v", err)
	}
	log.Printf("generated %d ticker batches across %d markets into %s", *ticks, len(markets), *walDir)
}

func loadMarkets(path string) ([]market.Market, error) {
	if path == "" {
		return []market.Market{"TEST_USD"}, nil
	}
	infos, err := ops.LoadMarkets(path)
	if err != nil {
		return nil, err
	}
	out := make([]market.Market, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Market)
	}
	return out, nil
}
