package venue

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/ordermesh/pingpong/internal/bus"
	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/transport"
	ws "github.com/ordermesh/pingpong/pkg/websocket"
)

// tickerFrame is the wire shape of one streamed ticker push.
type tickerFrame struct {
	Market string `json:"market"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
}

// topicCodec implements ws.TopicDecoder and ws.ControlEncoder for the
// venue's ticker channel: every frame carries its market name as a JSON
// field, decoded into the TopicID assigned at Client construction.
type topicCodec struct {
	byMarket map[market.Market]ws.TopicID
	byTopic  map[ws.TopicID]market.Market
}

func newTopicCodec(topics map[market.Market]ws.TopicID) *topicCodec {
	tc := &topicCodec{byMarket: topics, byTopic: make(map[ws.TopicID]market.Market, len(topics))}
	for m, t := range topics {
		tc.byTopic[t] = m
	}
	return tc
}

func (tc *topicCodec) DecodeTopic(payload []byte) (ws.TopicID, bool) {
	var frame tickerFrame
	if err := sonic.ConfigFastest.Unmarshal(payload, &frame); err != nil {
		return 0, false
	}
	topic, ok := tc.byMarket[market.Market(frame.Market)]
	return topic, ok
}

func (tc *topicCodec) EncodeSubscribe(dst []byte, topic ws.TopicID) (ws.MessageType, []byte, error) {
	m, ok := tc.byTopic[topic]
	if !ok {
		return 0, nil, fmt.Errorf("venue: unknown topic %d", topic)
	}
	body, err := sonic.ConfigFastest.Marshal(struct {
		Op     string `json:"op"`
		Market string `json:"market"`
	}{Op: "subscribe", Market: string(m)})
	if err != nil {
		return 0, nil, err
	}
	return ws.MessageText, append(dst, body...), nil
}

func (tc *topicCodec) EncodeUnsubscribe(dst []byte, topic ws.TopicID) (ws.MessageType, []byte, error) {
	m, ok := tc.byTopic[topic]
	if !ok {
		return 0, nil, fmt.Errorf("venue: unknown topic %d", topic)
	}
	body, err := sonic.ConfigFastest.Marshal(struct {
		Op     string `json:"op"`
		Market string `json:"market"`
	}{Op: "unsubscribe", Market: string(m)})
	if err != nil {
		return 0, nil, err
	}
	return ws.MessageText, append(dst, body...), nil
}

func (c *Client) buildManager() (*ws.Manager, error) {
	dialer := ws.NewDialer(context.Background(), c.cfg.WSHost, c.cfg.WSPort, c.cfg.WSPath)
	codec := newTopicCodec(c.topics)

	router := ws.NewRouter(ws.FanoutCopy, ws.NewFramePool(ws.DefaultBufferPool()))
	mgr, err := ws.NewManager(ws.Config{
		Dialer:       dialer,
		Parser:       codec,
		Encoder:      codec,
		Router:       router,
		MaxFrameSize: 64 << 10,
		OnConnect: func(ctx context.Context, w *ws.Writer) error {
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	consumer := ws.NewConsumer(256, ws.OverflowDropOldest)
	for _, topic := range c.topics {
		if err := mgr.AddConsumer(topic, consumer); err != nil {
			return nil, err
		}
	}
	go c.consumeTicks(consumer)
	return mgr, nil
}

func (c *Client) consumeTicks(consumer *ws.Consumer) {
	for {
		frame, ok := consumer.Next()
		if !ok {
			return
		}
		c.handleTickFrame(frame.Buf)
		frame.Release()
	}
}

func (c *Client) handleTickFrame(payload []byte) {
	var frame tickerFrame
	if err := sonic.ConfigFastest.Unmarshal(payload, &frame); err != nil {
		c.log.Warn("venue: malformed ticker frame", "error", err)
		return
	}
	bid, err := coin.NewFromString(frame.Bid)
	if err != nil {
		return
	}
	ask, err := coin.NewFromString(frame.Ask)
	if err != nil {
		return
	}
	mk := market.Market(frame.Market)
	c.publish(mk, bus.KindTransport, transport.TickerEvent{
		Quotes: map[market.Market]transport.Quote{mk: {Bid: bid, Ask: ask}},
	})
}
