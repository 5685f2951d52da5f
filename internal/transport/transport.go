// Package transport defines the contract the lifecycle engine consumes
// from exchange adapters: outbound commands the engine issues, and the
// typed events an adapter delivers back onto the reactor's queue. Concrete
// adapters live in internal/venue (real REST/WebSocket exchange) and
// internal/paper (in-process simulator that acks, cancels and reports
// orders but produces no fills).
package transport

import (
	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
)

// Outbound is the set of commands the lifecycle engine issues against an
// exchange adapter. Every call is non-blocking; completion is delivered
// asynchronously as one of the Inbound events below.
type Outbound interface {
	Submit(pos *position.Position) error
	Cancel(orderNumber string) error
	GetOrder(orderNumber string) error
	GetOpenOrders(m market.Market) error
	GetTicker(m market.Market) error

	// ShouldYield reports transport backpressure; sweeps must stop issuing
	// new work and resume on the next tick when this is true.
	ShouldYield() bool
	InFlightCount() int
}

// Quote is the latest observed top of book for one market.
type Quote struct {
	Bid coin.Coin
	Ask coin.Coin
}

// OrderInfo is one entry in an open_orders snapshot.
type OrderInfo struct {
	ID        string
	Side      market.Side
	Price     coin.Coin
	BTCAmount coin.Coin
}

// OrderStatus is the terminal state an order_status query resolves to.
type OrderStatus uint8

const (
	StatusUnknown OrderStatus = iota
	StatusFilled
	StatusCancelled
	StatusPartial
)

// CancelAckStatus is the result of a cancel request.
type CancelAckStatus uint8

const (
	CancelAckUnknown CancelAckStatus = iota
	OrderCanceled
	OrderCancelRejected
)

// Inbound events, delivered onto the reactor's queue by an adapter.
type (
	TickerEvent struct {
		Quotes      map[market.Market]Quote
		RequestTime int64
	}

	OpenOrdersEvent struct {
		OrderIDs    []string
		ByMarket    map[market.Market][]OrderInfo
		RequestTime int64
	}

	OrderStatusEvent struct {
		OrderNumber     string
		Status          OrderStatus
		FilledQuantity  coin.Coin
		FilledFee       coin.Coin
	}

	NewOrderAckEvent struct {
		Handle       position.Handle
		OrderNumber  string
		ErrorMessage string
	}

	CancelAckEvent struct {
		OrderNumber string
		Status      CancelAckStatus
	}

	FillNotificationEvent struct {
		OrderNumber string
	}
)
