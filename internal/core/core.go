// Package core wires the position store, lifecycle engine, DC coordinator
// and reconciler into a single Reactor: one goroutine draining the bus
// queue plus two timers driving CheckTimeouts/CheckDivergeConverge, the
// single-threaded strategy executor the teacher's core package doc
// described in terms of in-memory bus / strategy runtime / position
// reducer / risk engine.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/ordermesh/pingpong/internal/bus"
	"github.com/ordermesh/pingpong/internal/dc"
	"github.com/ordermesh/pingpong/internal/engine"
	"github.com/ordermesh/pingpong/internal/gateway"
	"github.com/ordermesh/pingpong/internal/logging"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/obs"
	"github.com/ordermesh/pingpong/internal/position"
	"github.com/ordermesh/pingpong/internal/reconciler"
	"github.com/ordermesh/pingpong/internal/recorder"
	"github.com/ordermesh/pingpong/internal/risk"
	"github.com/ordermesh/pingpong/internal/state"
	"github.com/ordermesh/pingpong/internal/transport"
	"github.com/ordermesh/pingpong/internal/wal"
)

// Config gathers every dependency the Reactor wires together. Markets must
// already carry their settings and initial slot ladder (internal/ops
// builds these from the on-disk config file).
type Config struct {
	Markets    []*market.Info
	Transport  transport.Outbound
	Risk       risk.Config
	Metrics    *obs.Metrics
	WAL        *recorder.Writer
	Queue      *bus.Queue
	Log        logging.Logger
	Now        engine.Clock

	TimeoutInterval         time.Duration
	DivergeConvergeInterval time.Duration
}

// Reactor is the single-threaded strategy executor: Run handles every
// inbound transport event and every timer tick one at a time under a
// single lock, so the engine, store, and DC coordinator never need
// locking among themselves.
type Reactor struct {
	store      *position.Store
	eng        *engine.Engine
	dc         *dc.Coordinator
	reconciler *reconciler.Reconciler
	gateway    *gateway.Gateway
	risk       *risk.Engine
	metrics    *obs.Metrics
	wal        *recorder.Writer
	reducer    *state.PositionReducer
	queue      *bus.Queue
	log        logging.Logger

	markets []market.Market
	seq     uint64

	timeoutInterval         time.Duration
	divergeConvergeInterval time.Duration
}

// New assembles a Reactor from cfg. It registers every market and wires
// the position/dc/gateway import-cycle breaks the way the package docs
// describe.
func New(cfg Config) *Reactor {
	if cfg.Log == nil {
		cfg.Log = logging.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = func() int64 { return time.Now().UnixMilli() }
	}
	if cfg.TimeoutInterval <= 0 {
		cfg.TimeoutInterval = 250 * time.Millisecond
	}
	if cfg.DivergeConvergeInterval <= 0 {
		cfg.DivergeConvergeInterval = 2 * time.Second
	}

	store := position.NewStore()
	gw := gateway.New()
	store.OnRemove(gw.Detach)

	eng := engine.New(store, cfg.Transport, gw, cfg.Now)
	eng.Log = cfg.Log
	coord := dc.New(eng)
	store.SetDCReservations(coord)
	eng.DC = coord

	rec := reconciler.New(eng, coord)
	rec.Log = cfg.Log

	markets := make([]market.Market, 0, len(cfg.Markets))
	for _, info := range cfg.Markets {
		store.RegisterMarket(info)
		markets = append(markets, info.Market)
	}

	r := &Reactor{
		store:           store,
		eng:             eng,
		dc:              coord,
		reconciler:      rec,
		gateway:         gw,
		risk:            risk.NewEngine(cfg.Risk),
		metrics:         cfg.Metrics,
		wal:             cfg.WAL,
		reducer:         state.NewPositionReducer(),
		queue:           cfg.Queue,
		log:             cfg.Log,
		markets:                 markets,
		timeoutInterval:         cfg.TimeoutInterval,
		divergeConvergeInterval: cfg.DivergeConvergeInterval,
	}
	rec.OnMaintenance(r.onMaintenance)
	return r
}

// Engine exposes the lifecycle engine for the admin control socket.
func (r *Reactor) Engine() *engine.Engine { return r.eng }

// Markets returns every configured market.
func (r *Reactor) Markets() []market.Market { return r.markets }

// Store exposes the position store for snapshotting.
func (r *Reactor) Store() *position.Store { return r.store }

// Reducer exposes the net-position reducer a periodic snapshot job
// persists, e.g. through internal/snapshotstore.
func (r *Reactor) Reducer() *state.PositionReducer { return r.reducer }

// Seq returns the WAL sequence number of the last fill recorded.
func (r *Reactor) Seq() uint64 { return r.seq }

// Run drains the bus queue and drives the two reconciler timers until ctx
// is cancelled.
func (r *Reactor) Run(ctx context.Context) error {
	timeouts := time.NewTicker(r.timeoutInterval)
	defer timeouts.Stop()
	diverge := time.NewTicker(r.divergeConvergeInterval)
	defer diverge.Stop()

	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		r.queue.Run(ctx, func(ev bus.Event) {
			mu.Lock()
			defer mu.Unlock()
			r.handle(ev)
		})
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return ctx.Err()
		case <-timeouts.C:
			mu.Lock()
			err := r.reconciler.CheckTimeouts(r.eng.Now())
			mu.Unlock()
			if err != nil {
				r.log.Warn("check_timeouts failed", "error", err)
			}
		case <-diverge.C:
			mu.Lock()
			err := r.reconciler.CheckDivergeConverge(r.eng.Now())
			mu.Unlock()
			if err != nil {
				r.log.Warn("check_diverge_converge failed", "error", err)
			}
		}
	}
}

// onMaintenance is the reconciler's maintenance hook: it removes every
// position in m from the store through CancelLocal. It saves no market
// indices.
func (r *Reactor) onMaintenance(m market.Market) {
	if err := r.eng.CancelLocal(m); err != nil {
		r.log.Warn("maintenance cancel_local failed", "market", m, "error", err)
	}
	if r.metrics != nil {
		r.metrics.IncCancel(m, market.CancelReasonMaintenance)
	}
}

func (r *Reactor) recordFill(pos *position.Position, fillType engine.FillType) {
	if r.metrics != nil {
		r.metrics.IncFill(pos.Market, fillType)
	}
	r.reducer.ApplyFill(state.FillRecord{Market: pos.Market, Side: pos.Side, Qty: pos.Quantity})
	if r.wal == nil {
		return
	}
	r.seq++
	header := wal.NewHeader(wal.EventFill, 0, r.seq, r.eng.Now(), r.eng.Now())
	payload, err := encodeFillRecord(state.FillRecord{Market: pos.Market, Side: pos.Side, Qty: pos.Quantity})
	if err != nil {
		r.log.Warn("encode fill record failed", "error", err)
		return
	}
	if err := r.wal.TryAppend(header, payload); err != nil {
		r.log.Warn("wal append failed", "error", err)
	}
}
