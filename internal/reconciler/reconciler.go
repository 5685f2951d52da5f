// Package reconciler runs the two timed sweeps from §4.3: the fast
// on_check_timeouts pass (buy/sell count balancing, resubmits, recancels,
// slippage recovery, max-age expiry) and the slower
// on_check_diverge_converge pass (maintenance, grace-time cleanup and the
// DC scan). Both yield to transport flow control.
package reconciler

import (
	"github.com/ordermesh/pingpong/internal/dc"
	"github.com/ordermesh/pingpong/internal/engine"
	"github.com/ordermesh/pingpong/internal/logging"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
)

// Reconciler wires the engine and DC coordinator together under the two
// timers; apart from its settings it holds only the last maintenance time
// and the maintenance hook, since everything else lives on the store or
// the coordinator.
type Reconciler struct {
	Store *position.Store
	Eng   *engine.Engine
	DC    *dc.Coordinator
	Log   logging.Logger

	// LimitCommandsQueuedDCCheck bounds the in-flight transport queue
	// depth the DC sweep is willing to add to; when exceeded the sweep
	// yields, matching nam_queue_size < limit_commands_queued_dc_check.
	LimitCommandsQueuedDCCheck int

	// MaintenanceIntervalMs gates how often checkMaintenance fires.
	MaintenanceIntervalMs int64
	lastMaintenance       int64

	// StrayGraceCleanupMultiple is the "2 *" in "clean grace_times older
	// than 2 * stray_grace_time_limit".
	StrayGraceCleanupMultiple int64

	onMaintenance func(m market.Market)
}

// New creates a Reconciler over the given engine and DC coordinator.
func New(eng *engine.Engine, coord *dc.Coordinator) *Reconciler {
	return &Reconciler{
		Store:                      eng.Store,
		Eng:                        eng,
		DC:                         coord,
		Log:                        logging.Nop(),
		LimitCommandsQueuedDCCheck: 200,
		StrayGraceCleanupMultiple:  2,
	}
}

// OnMaintenance registers the hook checkMaintenance invokes for each
// market once the maintenance interval elapses. The reactor registers a
// local cancel-all (engine CancelLocal); no market indices are saved.
func (r *Reconciler) OnMaintenance(fn func(m market.Market)) {
	r.onMaintenance = fn
}

func (r *Reconciler) yield() bool {
	return r.Eng.Transport.ShouldYield() || r.Eng.Transport.InFlightCount() >= r.LimitCommandsQueuedDCCheck
}
