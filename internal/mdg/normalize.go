package mdg

import (
	"time"

	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/transport"
	"github.com/ordermesh/pingpong/internal/wal"
)

// Normalizer folds a batch of raw ticks collected within one polling
// interval into a single transport.TickerEvent, the shape a real exchange
// adapter would deliver from a ticker poll or websocket push.
type Normalizer struct{}

// NewNormalizer creates a normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize converts a batch of raw ticks into a WAL header plus the
// transport-level ticker event the reactor's bus queue carries.
func (n *Normalizer) Normalize(seq uint64, ticks []RawTick) (wal.Header, transport.TickerEvent) {
	now := time.Now().UTC()
	quotes := make(map[market.Market]transport.Quote, len(ticks))
	var tsEvent, tsRecv int64
	var source uint16
	for _, tick := range ticks {
		if tick.TsRecv == 0 {
			tick.TsRecv = now.UnixNano()
		}
		if tick.TsEvent == 0 {
			tick.TsEvent = tick.TsRecv
		}
		if tick.TsEvent > tsEvent {
			tsEvent = tick.TsEvent
		}
		if tick.TsRecv > tsRecv {
			tsRecv = tick.TsRecv
		}
		source = tick.Source
		quotes[tick.Market] = transport.Quote{Bid: tick.BidPrice, Ask: tick.AskPrice}
	}
	header := wal.NewHeader(wal.EventUnknown, source, seq, tsEvent, tsRecv)
	return header, transport.TickerEvent{Quotes: quotes, RequestTime: tsRecv}
}
