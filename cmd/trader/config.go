package main

import (
	"flag"
	"time"

	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/ops"
)

// traderConfig gathers every flag the entrypoint needs to wire a Reactor.
type traderConfig struct {
	ConfigPath           string
	ConfigReloadInterval time.Duration
	WALDir               string
	SnapshotPath         string
	SnapshotInterval     time.Duration
	AdminSocketPath      string
	MetricsAddr          string
	PostgresDSN          string
	PyroscopeAddr        string
	ReactorName          string

	DryRun         bool
	VenueBaseURL   string
	VenueAPIKey    string
	VenueAPISecret string
	VenueWSHost    string
	VenueWSPort    string
	VenueWSPath    string
}

func loadTraderConfig() (traderConfig, error) {
	var cfg traderConfig
	flag.StringVar(&cfg.ConfigPath, "config", "config.json", "Path to the JSON market/risk config")
	flag.DurationVar(&cfg.ConfigReloadInterval, "config-reload-interval", 5*time.Second, "Poll interval for hot-reloading the risk config section")
	flag.StringVar(&cfg.WALDir, "wal-dir", "data/wal", "WAL directory")
	flag.StringVar(&cfg.SnapshotPath, "snapshot-path", "", "Flat-file snapshot path for crash recovery (optional)")
	flag.DurationVar(&cfg.SnapshotInterval, "snapshot-interval", 30*time.Second, "Postgres snapshot interval")
	flag.StringVar(&cfg.AdminSocketPath, "admin-socket", "/tmp/pingpong-trader.sock", "Admin control socket path")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", ":9090", "Prometheus metrics listen address")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", "", "Postgres connection string for snapshot persistence (optional)")
	flag.StringVar(&cfg.PyroscopeAddr, "pyroscope-addr", "", "Pyroscope server address for continuous profiling (optional)")
	flag.StringVar(&cfg.ReactorName, "reactor-name", "trader", "Reactor instance name, tags profiles and snapshot rows")

	flag.BoolVar(&cfg.DryRun, "dry-run", false, "Run against the in-process paper venue instead of a real exchange")
	flag.StringVar(&cfg.VenueBaseURL, "venue-base-url", "", "Exchange REST base URL")
	flag.StringVar(&cfg.VenueAPIKey, "venue-api-key", "", "Exchange API key")
	flag.StringVar(&cfg.VenueAPISecret, "venue-api-secret", "", "Exchange API secret")
	flag.StringVar(&cfg.VenueWSHost, "venue-ws-host", "", "Exchange WebSocket host")
	flag.StringVar(&cfg.VenueWSPort, "venue-ws-port", "443", "Exchange WebSocket port")
	flag.StringVar(&cfg.VenueWSPath, "venue-ws-path", "/ws", "Exchange WebSocket path")
	flag.Parse()

	return cfg, nil
}

func marketList(loaded ops.Loaded) []market.Market {
	out := make([]market.Market, 0, len(loaded.Markets))
	for _, info := range loaded.Markets {
		out = append(out, info.Market)
	}
	return out
}
