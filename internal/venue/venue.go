// Package venue implements transport.Outbound against a real exchange: a
// REST leg (net/http + internal/codec's sonic encoders) for order
// placement, cancellation and polling, and a streaming leg built on
// pkg/websocket's Manager for ticker pushes. Both legs publish their
// results onto the reactor's bus.Queue as the transport.Inbound events
// the lifecycle engine expects, mirroring how the teacher's
// internal/ingest adapters fed internal/bus from exchange connections.
package venue

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ordermesh/pingpong/internal/bus"
	"github.com/ordermesh/pingpong/internal/logging"
	"github.com/ordermesh/pingpong/internal/market"
	ws "github.com/ordermesh/pingpong/pkg/websocket"
)

// Config controls one venue client instance.
type Config struct {
	BaseURL       string
	APIKey        string
	APISecret     string
	HTTPTimeout   time.Duration
	MaxInFlight   int
	WSHost        string
	WSPort        string
	WSPath        string
	Markets       []market.Market
}

// Client is a transport.Outbound implementation talking to one exchange.
type Client struct {
	cfg    Config
	http   *http.Client
	queue  *bus.Queue
	log    logging.Logger
	wsMgr  *ws.Manager
	topics map[market.Market]ws.TopicID

	inFlight atomic.Int64
}

// New builds a venue client. Call Run to start the WS feed; the REST leg
// needs no background goroutine.
func New(cfg Config, queue *bus.Queue, log logging.Logger) (*Client, error) {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 64
	}
	if log == nil {
		log = logging.Nop()
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		queue:  queue,
		log:    log,
		topics: make(map[market.Market]ws.TopicID, len(cfg.Markets)),
	}
	for i, m := range cfg.Markets {
		c.topics[m] = ws.TopicID(i + 1)
	}

	if cfg.WSHost != "" {
		mgr, err := c.buildManager()
		if err != nil {
			return nil, err
		}
		c.wsMgr = mgr
	}
	return c, nil
}

// Run drives the streaming leg until ctx is cancelled. A no-op if no WS
// host was configured (REST-only / paper mode).
func (c *Client) Run(ctx context.Context) error {
	if c.wsMgr == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return c.wsMgr.Run(ctx)
}

// ShouldYield reports transport backpressure; sweeps stop issuing new
// work once in-flight requests reach the configured ceiling.
func (c *Client) ShouldYield() bool {
	return c.inFlight.Load() >= int64(c.cfg.MaxInFlight)
}

// InFlightCount returns the number of outstanding REST requests.
func (c *Client) InFlightCount() int {
	return int(c.inFlight.Load())
}

func (c *Client) publish(mk market.Market, kind bus.Kind, payload any) {
	ev := bus.Event{Kind: kind, Market: string(mk), Ts: time.Now().UnixNano(), Payload: payload}
	if err := c.queue.TryPublish(ev); err != nil {
		c.log.Warn("venue: dropped inbound event", "market", mk, "error", err)
	}
}
