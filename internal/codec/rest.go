// Package codec serializes outbound exchange REST bodies and decodes their
// acknowledgments, the way internal/order/delegator/btcc/delegator.go in
// the original teacher encoded place/cancel requests with sonic.
package codec

import (
	"github.com/bytedance/sonic"

	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
)

// PlaceOrderRequest is the REST body for a new limit order, field names
// matching what a typical spot exchange expects (market/side/price/amount).
type PlaceOrderRequest struct {
	Market    string `json:"market"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	ClientTag string `json:"client_id,omitempty"`
}

// CancelOrderRequest is the REST body for a cancel-by-id request.
type CancelOrderRequest struct {
	Market      string `json:"market"`
	OrderNumber string `json:"order_id"`
}

// PlaceOrderResponse is the decoded acknowledgment for a submitted order.
type PlaceOrderResponse struct {
	OrderNumber string `json:"order_id"`
}

// EncodePlaceOrder builds the REST payload for submitting pos.
func EncodePlaceOrder(pos *position.Position) ([]byte, error) {
	side := "buy"
	if pos.Side == market.Sell {
		side = "sell"
	}
	req := PlaceOrderRequest{
		Market: string(pos.Market),
		Side:   side,
		Price:  pos.Price.String(),
		Amount: pos.Quantity.String(),
	}
	return sonic.ConfigFastest.Marshal(req)
}

// EncodeCancelOrder builds the REST payload for cancelling orderNumber in m.
func EncodeCancelOrder(m market.Market, orderNumber string) ([]byte, error) {
	req := CancelOrderRequest{Market: string(m), OrderNumber: orderNumber}
	return sonic.ConfigFastest.Marshal(req)
}

// DecodePlaceOrderResponse parses a place-order acknowledgment body.
func DecodePlaceOrderResponse(body []byte) (PlaceOrderResponse, error) {
	var resp PlaceOrderResponse
	if err := sonic.ConfigFastest.Unmarshal(body, &resp); err != nil {
		return PlaceOrderResponse{}, err
	}
	return resp, nil
}
