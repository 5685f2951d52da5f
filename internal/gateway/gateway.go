// Package gateway tracks in-flight transport requests bound to a
// position.Handle. It exists so Store.Remove can detach any outstanding
// submit/cancel/get_order request before a position drops out of the
// store, instead of leaving a dangling reference a late completion could
// resurrect.
package gateway

import (
	"sync"

	"github.com/ordermesh/pingpong/internal/position"
)

// RequestKind identifies which outbound call is in flight.
type RequestKind uint8

const (
	RequestSubmit RequestKind = iota
	RequestCancel
	RequestGetOrder
)

// Request is one outstanding transport call bound to a position handle.
type Request struct {
	Handle   position.Handle
	Kind     RequestKind
	IssuedAt int64
}

// Gateway is the in-flight request tracker. It is safe to register a
// removal hook with a position.Store via Detach.
type Gateway struct {
	mu       sync.Mutex
	inFlight map[position.Handle]map[RequestKind]Request
}

// New creates an empty tracker.
func New() *Gateway {
	return &Gateway{inFlight: make(map[position.Handle]map[RequestKind]Request)}
}

// Track records a new in-flight request for handle.
func (g *Gateway) Track(handle position.Handle, kind RequestKind, now int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	byKind := g.inFlight[handle]
	if byKind == nil {
		byKind = make(map[RequestKind]Request)
		g.inFlight[handle] = byKind
	}
	byKind[kind] = Request{Handle: handle, Kind: kind, IssuedAt: now}
}

// Complete clears a request once its completion (ack, reject, timeout) is
// observed.
func (g *Gateway) Complete(handle position.Handle, kind RequestKind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if byKind, ok := g.inFlight[handle]; ok {
		delete(byKind, kind)
		if len(byKind) == 0 {
			delete(g.inFlight, handle)
		}
	}
}

// InFlight reports whether a request of kind is outstanding for handle.
func (g *Gateway) InFlight(handle position.Handle, kind RequestKind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	byKind, ok := g.inFlight[handle]
	if !ok {
		return false
	}
	_, ok = byKind[kind]
	return ok
}

// Detach drops every in-flight request bound to pos. Register this with
// position.Store.OnRemove so a dropped position can never receive a late
// completion as if it still existed.
func (g *Gateway) Detach(pos *position.Position) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, pos.Handle)
}
