package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"log"

	"github.com/ordermesh/pingpong/internal/admin"
	"github.com/ordermesh/pingpong/internal/bus"
	"github.com/ordermesh/pingpong/internal/core"
	"github.com/ordermesh/pingpong/internal/logging"
	"github.com/ordermesh/pingpong/internal/obs"
	"github.com/ordermesh/pingpong/internal/ops"
	"github.com/ordermesh/pingpong/internal/recorder"
	"github.com/ordermesh/pingpong/internal/snapshotstore"
	"github.com/ordermesh/pingpong/internal/state"
	"github.com/ordermesh/pingpong/internal/transport"
	"github.com/ordermesh/pingpong/internal/venue"
	"github.com/ordermesh/pingpong/pkg/conn"
)

func main() {
	cfg, err := loadTraderConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if cfg.PyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "pingpong/trader",
			ServerAddress:   cfg.PyroscopeAddr,
			Tags:            map[string]string{"reactor": cfg.ReactorName},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	rlog := logging.New("trader")

	loaded, err := ops.Load(cfg.ConfigPath)
	if err != nil {
		log.Fatalf("market config load failed: %v", err)
	}

	walCfg := recorder.DefaultConfig(cfg.WALDir)
	writer, err := recorder.NewWriter(walCfg)
	if err != nil {
		log.Fatalf("wal init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := writer.Start(ctx); err != nil {
		log.Fatalf("wal start failed: %v", err)
	}

	recovery, err := state.RecoverPositions(ctx, state.RecoverConfig{
		WALDir:       cfg.WALDir,
		SnapshotPath: cfg.SnapshotPath,
	})
	if err != nil {
		log.Fatalf("crash recovery failed: %v", err)
	}
	rlog.Info("recovered position state", "last_seq", recovery.LastSeq, "last_event_ts", recovery.LastEventTs, "markets", recovery.Positions.Count())

	var snapshots *snapshotstore.Store
	if cfg.PostgresDSN != "" {
		client, err := conn.New(conn.Option{ConnString: cfg.PostgresDSN})
		if err != nil {
			log.Fatalf("postgres connect failed: %v", err)
		}
		defer client.Close()
		snapshots = snapshotstore.New(client)
		if err := snapshots.AutoMigrate(); err != nil {
			log.Fatalf("snapshot table migration failed: %v", err)
		}
	}

	queue := bus.NewQueue(4096)
	metrics := obs.NewMetrics()

	var outbound transport.Outbound
	if cfg.DryRun {
		outbound = newDryRunClient(queue)
		rlog.Info("starting in dry-run mode, no exchange connection")
	} else {
		venueClient, err := venue.New(venue.Config{
			BaseURL:     cfg.VenueBaseURL,
			APIKey:      cfg.VenueAPIKey,
			APISecret:   cfg.VenueAPISecret,
			HTTPTimeout: 5 * time.Second,
			MaxInFlight: 64,
			WSHost:      cfg.VenueWSHost,
			WSPort:      cfg.VenueWSPort,
			WSPath:      cfg.VenueWSPath,
			Markets:     marketList(loaded),
		}, queue, logging.New("venue"))
		if err != nil {
			log.Fatalf("venue client init failed: %v", err)
		}
		outbound = venueClient
		go func() {
			if err := venueClient.Run(ctx); err != nil && ctx.Err() == nil {
				rlog.Error("venue feed stopped", "error", err)
			}
		}()
	}

	reactor := core.New(core.Config{
		Markets:   loaded.Markets,
		Transport: outbound,
		Risk:      loaded.Risk,
		Metrics:   metrics,
		WAL:       writer,
		Queue:     queue,
		Log:       logging.New("reactor"),
	})

	adminServer, err := admin.New(cfg.AdminSocketPath, reactor, logging.New("admin"))
	if err != nil {
		log.Fatalf("admin socket init failed: %v", err)
	}
	go func() {
		if err := adminServer.Run(); err != nil {
			rlog.Warn("admin socket stopped", "error", err)
		}
	}()
	defer adminServer.Close()

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rlog.Warn("metrics server stopped", "error", err)
		}
	}()

	if snapshots != nil {
		go runSnapshotLoop(ctx, snapshots, reactor, cfg.ReactorName, cfg.SnapshotInterval, rlog)
	}
	go watchConfig(ctx, cfg.ConfigPath, cfg.ConfigReloadInterval, queue)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- reactor.Run(sigCtx) }()

	<-sigCtx.Done()
	rlog.Info("shutdown signal received, draining reactor")
	cancel()
	<-runErrCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	if err := writer.Close(); err != nil {
		rlog.Error("wal close failed", "error", err)
	}
	rlog.Info("trader stopped")
}

func runSnapshotLoop(ctx context.Context, store *snapshotstore.Store, reactor *core.Reactor, name string, interval time.Duration, log logging.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := reactor.Reducer().SnapshotWithMeta(reactor.Seq(), time.Now().UnixMilli())
			body, err := sonic.ConfigFastest.Marshal(snapshot)
			if err != nil {
				log.Warn("snapshot encode failed", "error", err)
				continue
			}
			if err := store.Save(ctx, name, snapshot, body); err != nil {
				log.Warn("snapshot save failed", "error", err)
			}
		}
	}
}
