package venue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ordermesh/pingpong/internal/bus"
	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/codec"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
	"github.com/ordermesh/pingpong/internal/transport"
)

// Submit POSTs a new order and publishes a NewOrderAckEvent once the
// exchange responds. Non-blocking: the HTTP round trip happens on its own
// goroutine.
func (c *Client) Submit(pos *position.Position) error {
	body, err := codec.EncodePlaceOrder(pos)
	if err != nil {
		return err
	}
	c.inFlight.Add(1)
	go func() {
		defer c.inFlight.Add(-1)
		resp, err := c.post("/orders", body)
		ack := transport.NewOrderAckEvent{Handle: pos.Handle}
		if err != nil {
			ack.ErrorMessage = err.Error()
			c.publish(pos.Market, bus.KindTransport, ack)
			return
		}
		decoded, err := codec.DecodePlaceOrderResponse(resp)
		if err != nil {
			ack.ErrorMessage = err.Error()
		} else {
			ack.OrderNumber = decoded.OrderNumber
		}
		c.publish(pos.Market, bus.KindTransport, ack)
	}()
	return nil
}

// Cancel POSTs a cancel request for an order id and publishes a
// CancelAckEvent.
func (c *Client) Cancel(orderNumber string) error {
	c.inFlight.Add(1)
	go func() {
		defer c.inFlight.Add(-1)
		_, err := c.post("/orders/cancel", mustEncodeCancel(orderNumber))
		status := transport.OrderCanceled
		if err != nil {
			status = transport.OrderCancelRejected
		}
		c.publish("", bus.KindTransport, transport.CancelAckEvent{OrderNumber: orderNumber, Status: status})
	}()
	return nil
}

// GetOrder polls an order's status and publishes an OrderStatusEvent.
func (c *Client) GetOrder(orderNumber string) error {
	c.inFlight.Add(1)
	go func() {
		defer c.inFlight.Add(-1)
		resp, err := c.get("/orders/" + orderNumber)
		if err != nil {
			c.log.Warn("venue: get_order failed", "order", orderNumber, "error", err)
			return
		}
		status, err := codec.DecodePlaceOrderResponse(resp)
		if err != nil {
			c.log.Warn("venue: get_order decode failed", "order", orderNumber, "error", err)
			return
		}
		c.publish("", bus.KindTransport, transport.OrderStatusEvent{OrderNumber: status.OrderNumber})
	}()
	return nil
}

// GetOpenOrders polls the open-order book for m and publishes an
// OpenOrdersEvent.
func (c *Client) GetOpenOrders(m market.Market) error {
	c.inFlight.Add(1)
	go func() {
		defer c.inFlight.Add(-1)
		_, err := c.get("/orders/open?market=" + string(m))
		if err != nil {
			c.log.Warn("venue: get_open_orders failed", "market", m, "error", err)
			return
		}
		c.publish(m, bus.KindTransport, transport.OpenOrdersEvent{})
	}()
	return nil
}

// GetTicker polls top-of-book for m over REST, independent of the
// streaming leg, and publishes a TickerEvent.
func (c *Client) GetTicker(m market.Market) error {
	c.inFlight.Add(1)
	go func() {
		defer c.inFlight.Add(-1)
		_, err := c.get("/ticker?market=" + string(m))
		if err != nil {
			c.log.Warn("venue: get_ticker failed", "market", m, "error", err)
			return
		}
		c.publish(m, bus.KindTransport, transport.TickerEvent{
			Quotes:      map[market.Market]transport.Quote{m: {Bid: coin.Zero, Ask: coin.Zero}},
			RequestTime: 0,
		})
	}()
	return nil
}

func (c *Client) post(path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.sign(req)
	return c.do(req)
}

func (c *Client) get(path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.sign(req)
	return c.do(req)
}

func (c *Client) sign(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("venue: %s returned status %d: %s", req.URL.Path, resp.StatusCode, body)
	}
	return body, nil
}

func mustEncodeCancel(orderNumber string) []byte {
	body, err := codec.EncodeCancelOrder("", orderNumber)
	if err != nil {
		return []byte(`{}`)
	}
	return body
}
