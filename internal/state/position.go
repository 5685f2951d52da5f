// Package state tracks each market's net filled position outside the
// lifecycle engine's own Position Store, the way the teacher's
// PositionReducer (internal/state/position.go) rebuilt per-symbol
// quantities from the fill stream for crash recovery — reworked here over
// market.Market/coin.Coin instead of a uint32 symbol id.
package state

import (
	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/market"
)

// FillRecord is the WAL payload decoded from a wal.EventFill record.
type FillRecord struct {
	Market market.Market `json:"market"`
	Side   market.Side   `json:"side"`
	Qty    coin.Coin     `json:"qty"`
}

// PositionReducer accumulates net position per market from a stream of
// fills, independent of (and a cross-check against) the live Position
// Store's own bookkeeping.
type PositionReducer struct {
	positions map[market.Market]coin.Coin
}

// NewPositionReducer creates an empty reducer.
func NewPositionReducer() *PositionReducer {
	return &PositionReducer{positions: make(map[market.Market]coin.Coin)}
}

// ApplyFill folds fill into the running position and returns the new total.
func (r *PositionReducer) ApplyFill(fill FillRecord) coin.Coin {
	current := r.positions[fill.Market]
	var next coin.Coin
	switch fill.Side {
	case market.Buy:
		next = current.Add(fill.Qty)
	case market.Sell:
		next = current.Sub(fill.Qty)
	default:
		next = current
	}
	r.positions[fill.Market] = next
	return next
}

// ApplySnapshot replaces positions with a snapshot.
func (r *PositionReducer) ApplySnapshot(snapshot Snapshot) {
	if r.positions == nil {
		r.positions = make(map[market.Market]coin.Coin, len(snapshot.Positions))
	} else {
		for key := range r.positions {
			delete(r.positions, key)
		}
	}
	for _, entry := range snapshot.Positions {
		r.positions[entry.Market] = entry.Qty
	}
}

// Position returns the current net position for m.
func (r *PositionReducer) Position(m market.Market) coin.Coin {
	return r.positions[m]
}

// Count returns the number of tracked markets.
func (r *PositionReducer) Count() int {
	return len(r.positions)
}
