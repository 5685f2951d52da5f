package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ordermesh/pingpong/internal/bus"
	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/core"
	"github.com/ordermesh/pingpong/internal/ops"
	"github.com/ordermesh/pingpong/internal/paper"
	"github.com/ordermesh/pingpong/internal/recorder"
	"github.com/ordermesh/pingpong/internal/transport"
	"github.com/ordermesh/pingpong/internal/wal"
)

func main() {
	inputDir := flag.String("input-dir", "testdata/wal", "Input WAL directory of ticker events (cmd/mdg output)")
	inputPrefix := flag.String("input-prefix", "", "Input WAL file prefix (default: wal)")
	outputDir := flag.String("output-dir", "testdata/wal_paper", "Output WAL directory for simulated fills")
	outputPrefix := flag.String("output-prefix", "paper", "Output WAL file prefix")
	configPath := flag.String("config", "", "Path to JSON market config")
	feeRate := flag.String("fee-rate", "0", "Simulated fee rate, as a fraction of notional")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation on the input WAL")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	flag.Parse()

	if *configPath == "" {
		log.Fatalf("-config is required")
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	fee, err := coin.NewFromString(*feeRate)
	if err != nil {
		log.Fatalf("invalid fee-rate: %v", err)
	}

	outCfg := recorder.DefaultConfig(*outputDir)
	outCfg.FilePrefix = *outputPrefix
	writer, err := recorder.NewWriter(outCfg)
	if err != nil {
		log.Fatalf("output wal init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := writer.Start(ctx); err != nil {
		log.Fatalf("output wal start failed: %v", err)
	}

	queue := bus.NewQueue(1024)
	client := paper.New(paper.Config{FeeRate: fee}, queue)

	reactor := core.New(core.Config{
		Markets:   loaded.Markets,
		Transport: client,
		Risk:      loaded.Risk,
		WAL:       writer,
		Queue:     queue,
	})

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- reactor.Run(ctx) }()

	playback, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             *inputDir,
		FilePrefix:      *inputPrefix,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	})
	if err != nil {
		log.Fatalf("input playback init failed: %v", err)
	}

	var ticks int
	err = playback.Run(ctx, func(header wal.Header, payload []byte) error {
		var tick transport.TickerEvent
		if err := sonic.Unmarshal(payload, &tick); err != nil {
			return err
		}
		ticks++
		return queue.TryPublish(bus.Event{Kind: bus.KindTransport, Ts: header.TsRecv, Payload: tick})
	})
	if err != nil {
		log.Fatalf("input playback failed: %v", err)
	}

	// Give the reactor goroutine a moment to drain the queue before tearing
	// it down; there is no further input once playback.Run returns.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-runErrCh

	if err := writer.Close(); err != nil {
		log.Fatalf("output wal close failed: %v", err)
	}

	var active int
	for _, m := range reactor.Markets() {
		active += reactor.Store().ActiveCount(m)
	}
	log.Printf("paper completed: ticks=%d markets=%d active_positions=%d", ticks, len(reactor.Markets()), active)
}
