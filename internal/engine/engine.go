// Package engine implements the lifecycle engine: it submits new orders,
// handles acknowledgments, runs the slippage and cancellation state
// machines, and dispatches fills. It is the largest of the four reactor
// components and the one most directly driven by inbound transport events.
package engine

import (
	"fmt"
	"strings"

	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/errs"
	internalerrors "github.com/ordermesh/pingpong/internal/errors"
	"github.com/ordermesh/pingpong/internal/gateway"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
	"github.com/ordermesh/pingpong/internal/transport"
	"github.com/ordermesh/pingpong/internal/logging"
)

// StatsCollector receives fill and strategy notifications. Implementations
// outside the engine (e.g. a metrics or PnL module) are out of scope for
// this package; the default collector is a no-op.
type StatsCollector interface {
	RecordFill(pos *position.Position, fillType FillType)
	RecordStrategy(pos *position.Position, reason market.CancelReason)
}

type noopStats struct{}

func (noopStats) RecordFill(*position.Position, FillType)             {}
func (noopStats) RecordStrategy(*position.Position, market.CancelReason) {}

// DCHandler is implemented by the DC coordinator. process_cancelled_order
// hands a DC-reason cancel ack to it rather than importing the dc package
// directly, avoiding an import cycle (dc itself depends on this engine's
// AddFromSlot/Cancel to fulfil reservations).
type DCHandler interface {
	HandleCancelledDC(pos *position.Position) error
}

// Clock is injected so tests can drive deterministic timestamps instead of
// time.Now(); the reactor wires in a real monotonic millisecond clock.
type Clock func() int64

// Engine is the lifecycle engine. It holds no goroutines of its own: every
// method is called synchronously from the reactor's single event loop.
type Engine struct {
	Store     *position.Store
	Transport transport.Outbound
	Gateway   *gateway.Gateway
	Stats     StatsCollector
	DC        DCHandler
	Now       Clock
	Log       logging.Logger

	// TestMode synthesizes order numbers and activates immediately,
	// bypassing the transport round trip, for paper trading and tests.
	TestMode bool

	Config Config

	// grace observation times for stray order ids, §4.2.6.B.
	graceTimes map[string]int64

	cancelAll *cancelAllState
}

// Config holds the timing and heuristic knobs named throughout §4 and §5.
// All are dependency-injected rather than hardcoded, per the design notes.
type Config struct {
	RequestTimeout          int64
	CancelTimeout           int64
	SafetyDelayTime         int64
	TickerSafetyDelayTime   int64
	StrayGraceTimeLimit     int64
	StrictMode              bool
	BlankOrderbookMitigation bool
	BlankOrderbookThreshold int
	BulkCancelBurstCap      int
	GetOrderRateLimit       int
}

// DefaultConfig returns the illustrative defaults named in the spec text.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:           10_000,
		CancelTimeout:            10_000,
		SafetyDelayTime:          5_000,
		TickerSafetyDelayTime:    5_000,
		StrayGraceTimeLimit:      10_000,
		BlankOrderbookMitigation: true,
		BlankOrderbookThreshold:  50,
		BulkCancelBurstCap:       50,
		GetOrderRateLimit:        5,
	}
}

// cancelAllState tracks a user-initiated cancel-all-matching-filter pass
// across process_open_orders invocations (§4.2.6.A).
type cancelAllState struct {
	market market.Market
	side   market.Side // SideUnknown means "either side"
}

// New creates an Engine. Stats and Log may be nil; sensible no-ops are
// substituted.
func New(store *position.Store, t transport.Outbound, gw *gateway.Gateway, now Clock) *Engine {
	e := &Engine{
		Store:      store,
		Transport:  t,
		Gateway:    gw,
		Stats:      noopStats{},
		Now:        now,
		Log:        logging.Nop(),
		Config:     DefaultConfig(),
		graceTimes: make(map[string]int64),
	}
	return e
}

// StartCancelAll arms cancel-all mode: the next process_open_orders calls
// will route every reported order matching the filter to cancel(pos,
// USER) or a stray one-shot cancel. Pass market.SideUnknown for side to
// match both.
func (e *Engine) StartCancelAll(m market.Market, side market.Side) {
	e.cancelAll = &cancelAllState{market: m, side: side}
}

// StopCancelAll disarms cancel-all mode.
func (e *Engine) StopCancelAll() {
	e.cancelAll = nil
}

// AddPositionRequest is the parsed form of add_position's arguments. Raw
// market/size strings are pre-split by the caller's config/CLI loader;
// this struct is what the validation pipeline actually consumes.
type AddPositionRequest struct {
	Market      string
	Side        market.Side
	Kind        position.OrderKind
	BuyPrice    string
	SellPrice   string
	Size        string // "primary" or "primary/alternate"
	StrategyTag string
	Indices     []int // caller-supplied; empty means "append a new slot"
	Landmark    bool
	IsTaker     bool
	IsOverride  bool
	TimeoutMinutes int
}

// normalizeMarket applies the exchange-specific dash/underscore casing
// convention: uppercase, dashes folded to underscores.
func normalizeMarket(raw string) market.Market {
	return market.Market(strings.ToUpper(strings.ReplaceAll(raw, "-", "_")))
}

// parseSize splits "primary/alternate" and parses both halves, used by
// validation step 2.
func parseSize(raw string) (primary, alternate coin.Coin, err error) {
	parts := strings.SplitN(raw, "/", 2)
	primary, err = coin.NewFromString(strings.TrimSpace(parts[0]))
	if err != nil {
		return coin.Zero, coin.Zero, internalerrors.Wrap(err, "parse primary size")
	}
	if len(parts) == 2 {
		alternate, err = coin.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil {
			return coin.Zero, coin.Zero, internalerrors.Wrap(err, "parse alternate size")
		}
	}
	return primary, alternate, nil
}

// checkPrecision rejects a value whose canonical decimal has more
// fractional digits than tick's, guarding against fat-fingered literals
// (validation step 5).
func checkPrecision(value, tick coin.Coin) error {
	if tick.IsZeroOrLess() {
		return nil
	}
	if value.Precision() > tick.Precision() {
		return errs.ErrOverPrecision
	}
	return nil
}

// AddPosition is add_position(market, side, buy, sell, size, type, tag,
// indices, landmark) from §4.2.1. It runs the full validation pipeline,
// then (unless ghost) registers the position and submits it.
func (e *Engine) AddPosition(req AddPositionRequest) (*position.Position, error) {
	m := normalizeMarket(req.Market)
	info := e.Store.Market(m)
	if info == nil {
		return nil, internalerrors.Wrap(errs.ErrPositionNotFound, fmt.Sprintf("market %s not registered", m))
	}

	primarySize, alternateSize, err := parseSize(req.Size)
	if err != nil {
		return nil, err
	}

	if req.Kind != position.KindActive && req.Kind != position.KindGhost && req.Kind != position.KindOneTime {
		return nil, errs.ErrUnknownOrderType
	}
	if req.Side != market.Buy && req.Side != market.Sell {
		return nil, errs.ErrUnknownSide
	}
	if req.Kind == position.KindOneTime && req.Landmark {
		return nil, errs.ErrLandmarkOneTime
	}

	buy, sell := coin.Zero, coin.Zero
	if req.BuyPrice != "" {
		if buy, err = coin.NewFromString(req.BuyPrice); err != nil {
			return nil, internalerrors.Wrap(err, "parse buy price")
		}
	}
	if req.SellPrice != "" {
		if sell, err = coin.NewFromString(req.SellPrice); err != nil {
			return nil, internalerrors.Wrap(err, "parse sell price")
		}
	}
	if primarySize.IsZeroOrLess() {
		return nil, errs.ErrEmptySize
	}

	if req.Kind != position.KindOneTime {
		if !(sell.GreaterThan(buy) && buy.IsGreaterThanZero()) {
			return nil, errs.ErrPingPongPriceOrder
		}
	} else {
		sidePrice := buy
		if req.Side == market.Sell {
			sidePrice = sell
		}
		if sidePrice.IsZeroOrLess() {
			return nil, errs.ErrOneTimePriceZero
		}
	}

	if err := checkPrecision(buy, info.PriceTicksize); err != nil {
		return nil, err
	}
	if err := checkPrecision(sell, info.PriceTicksize); err != nil {
		return nil, err
	}
	if err := checkPrecision(primarySize, info.QuantityTicksize); err != nil {
		return nil, err
	}

	sidePrice := buy
	if req.Side == market.Sell {
		sidePrice = sell
	}

	if req.IsTaker && !req.IsOverride {
		if err := checkTakerBand(sidePrice, req.Side, info); err != nil {
			return nil, err
		}
	}
	if err := checkPercentPriceBand(sidePrice, req.Side, info); err != nil {
		return nil, err
	}

	indices := req.Indices
	if len(indices) == 0 {
		slot := market.PositionSlot{BuyPrice: buy, SellPrice: sell, OrderSize: primarySize, AlternateSize: alternateSize}
		idx := info.AppendSlot(slot)
		indices = []int{idx}
	}

	if req.Kind == position.KindGhost {
		return nil, nil
	}

	pos := &position.Position{
		Market:            m,
		Side:              req.Side,
		MarketIndices:     indices,
		StrategyTag:       req.StrategyTag,
		BuyPrice:          buy,
		SellPrice:         sell,
		BuyPriceOriginal:  buy,
		SellPriceOriginal: sell,
		Quantity:          primarySize,
		IsOnetime:         req.Kind == position.KindOneTime,
		IsTaker:           req.IsTaker,
		IsLandmark:        req.Landmark,
		MaxAgeMinutes:     req.TimeoutMinutes,
		OrderRequestTime:  e.Now(),
	}
	pos.Price = info.ApplyOffset(sidePrice)

	if !pos.IsTaker {
		if e.TryMoveOrder(pos) {
			pos.Price = info.ApplyOffset(pos.CurrentSidePrice())
		}
	}

	if err := e.Store.Add(pos); err != nil {
		return nil, err
	}

	if e.TestMode {
		synth := fmt.Sprintf("%s%d-%d", m, pos.LowestIndex(), pos.Handle)
		if err := e.Store.Activate(pos, synth, e.Now()); err != nil {
			return nil, err
		}
		return pos, nil
	}

	if err := e.Transport.Submit(pos); err != nil {
		e.Log.Warn("submit failed", "market", string(m), "err", err.Error())
	} else {
		e.Gateway.Track(pos.Handle, gateway.RequestSubmit, e.Now())
	}
	return pos, nil
}

// AddFromSlot is add_landmark_position_for(pos) and its diverge-side
// counterpart from §4.4: it builds and submits a Position directly from
// already-registered slot data at the given indices, bypassing the
// string-validation pipeline AddPosition runs, because the DC coordinator
// has already established the indices are valid, consecutive and
// unreserved. The lowest index's slot supplies the prices, matching the
// landmark convention in §4.1.
func (e *Engine) AddFromSlot(m market.Market, side market.Side, indices []int, landmark bool, strategyTag string) (*position.Position, error) {
	info := e.Store.Market(m)
	if info == nil {
		return nil, internalerrors.Wrap(errs.ErrPositionNotFound, "market not registered")
	}
	if len(indices) == 0 {
		return nil, errs.ErrSlotIndexOutOfRange
	}
	lo := indices[0]
	for _, idx := range indices[1:] {
		if idx < lo {
			lo = idx
		}
	}
	slot, ok := info.Slot(lo)
	if !ok {
		return nil, errs.ErrSlotIndexOutOfRange
	}

	sidePrice := slot.BuyPrice
	if side == market.Sell {
		sidePrice = slot.SellPrice
	}

	pos := &position.Position{
		Market:            m,
		Side:              side,
		MarketIndices:     append([]int(nil), indices...),
		StrategyTag:       strategyTag,
		BuyPrice:          slot.BuyPrice,
		SellPrice:         slot.SellPrice,
		BuyPriceOriginal:  slot.BuyPrice,
		SellPriceOriginal: slot.SellPrice,
		Quantity:          slot.CurrentSize(),
		IsLandmark:        landmark,
		IsNewHiLoOrder:    true,
		OrderRequestTime:  e.Now(),
	}
	pos.Price = info.ApplyOffset(sidePrice)
	if e.TryMoveOrder(pos) {
		pos.Price = info.ApplyOffset(pos.CurrentSidePrice())
	}

	if err := e.Store.Add(pos); err != nil {
		return nil, err
	}
	return pos, e.submitOrActivate(pos)
}

func checkTakerBand(price coin.Coin, side market.Side, info *market.Info) error {
	var top coin.Coin
	if side == market.Buy {
		top = info.LowestSell
	} else {
		top = info.HighestBuy
	}
	if top.IsZeroOrLess() {
		return nil
	}
	band := top.Ratio(0.10, top.Precision())
	lo := top.Sub(band)
	hi := top.Add(band)
	if price.LessThan(lo) || price.GreaterThan(hi) {
		return errs.ErrTakerOutOfBand
	}
	return nil
}

func checkPercentPriceBand(price coin.Coin, side market.Side, info *market.Info) error {
	if info.HighestBuy.IsZeroOrLess() || info.LowestSell.IsZeroOrLess() {
		return nil
	}
	if info.PriceMinMul <= 0 || info.PriceMaxMul <= 0 {
		return nil
	}
	lo := info.HighestBuy.Ratio(info.PriceMinMul*1.2, price.Precision())
	hi := info.LowestSell.Ratio(info.PriceMaxMul*0.8, price.Precision())
	if price.LessThan(lo) || price.GreaterThan(hi) {
		return errs.ErrPercentPriceBand
	}
	return nil
}
