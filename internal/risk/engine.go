// Package risk is a pre-trade gate consulted before the reactor hands a
// new position to engine.AddPosition: a kill switch, an order-rate
// limiter, and per-order/per-market notional and position ceilings, the
// same checks the teacher's schema-bound risk engine ran over
// schema.OrderIntent, reworked here over coin.Coin/market.Market.
package risk

import (
	"time"

	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/market"
)

// Action is the risk engine's verdict on a proposed position.
type Action int

const (
	ActionAllow Action = iota
	ActionDeny
)

// Reason explains why a proposed position was denied.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonRateLimit
	ReasonMaxQty
	ReasonPriceBand
	ReasonMaxNotional
	ReasonPositionLimit
)

func (r Reason) String() string {
	switch r {
	case ReasonKillSwitch:
		return "kill_switch"
	case ReasonRateLimit:
		return "rate_limit"
	case ReasonMaxQty:
		return "max_qty"
	case ReasonPriceBand:
		return "price_band"
	case ReasonMaxNotional:
		return "max_notional"
	case ReasonPositionLimit:
		return "position_limit"
	default:
		return "none"
	}
}

// Config defines per-market risk limits, loaded from internal/ops.
type Config struct {
	KillSwitch           bool          `json:"killSwitch"`
	MaxOrderQty          coin.Coin     `json:"maxOrderQty"`
	MaxOrderNotional      coin.Coin     `json:"maxOrderNotional"`
	MaxPosition          coin.Coin     `json:"maxPosition"`
	OrderRateLimit       int           `json:"orderRateLimit"`
	OrderRateWindow      time.Duration `json:"orderRateWindow"`
	MaxPriceDeviationBps int64         `json:"maxPriceDeviationBps"`
}

// StateView is the market state the engine checks a proposal against.
type StateView struct {
	Position       coin.Coin
	ReferencePrice coin.Coin
	Now            int64
}

// Intent is the proposed order the engine evaluates, mirroring the fields
// of an add_position call.
type Intent struct {
	Market market.Market
	Side   market.Side
	Price  coin.Coin
	Qty    coin.Coin
}

// Decision is the engine's verdict plus the inputs it was computed from,
// kept around for logging/metrics the way schema.RiskDecision was.
type Decision struct {
	Market      market.Market
	Action      Action
	Reason      Reason
	CurrentPos  coin.Coin
	MaxPosition coin.Coin
	MaxNotional coin.Coin
}

// Engine evaluates risk decisions per market, one rate-limit window shared
// across every market it is asked about.
type Engine struct {
	cfg             Config
	rateWindowStart int64
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// UpdateConfig swaps the engine's limits in place. Callers must only
// invoke this from the same single-threaded reactor goroutine that calls
// Evaluate — the rate-limit window state below is not synchronized.
func (e *Engine) UpdateConfig(cfg Config) {
	e.cfg = cfg
}

// Evaluate applies the configured checks to a proposed position.
func (e *Engine) Evaluate(intent Intent, state StateView) Decision {
	decision := Decision{
		Market:      intent.Market,
		Action:      ActionAllow,
		Reason:      ReasonNone,
		CurrentPos:  state.Position,
		MaxPosition: e.cfg.MaxPosition,
		MaxNotional: e.cfg.MaxOrderNotional,
	}

	now := state.Now
	if now == 0 {
		now = time.Now().UTC().UnixNano()
	}

	if e.cfg.KillSwitch {
		decision.Action = ActionDeny
		decision.Reason = ReasonKillSwitch
		return decision
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		window := int64(e.cfg.OrderRateWindow)
		if e.rateWindowStart == 0 || now-e.rateWindowStart >= window {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			decision.Action = ActionDeny
			decision.Reason = ReasonRateLimit
			return decision
		}
	}

	if e.cfg.MaxOrderQty.IsPositive() && intent.Qty.GreaterThan(e.cfg.MaxOrderQty) {
		decision.Action = ActionDeny
		decision.Reason = ReasonMaxQty
		return decision
	}

	if e.cfg.MaxPriceDeviationBps > 0 && intent.Price.IsPositive() && state.ReferencePrice.IsPositive() {
		if exceedsDeviation(intent.Price, state.ReferencePrice, e.cfg.MaxPriceDeviationBps) {
			decision.Action = ActionDeny
			decision.Reason = ReasonPriceBand
			return decision
		}
	}

	notional := intent.Price.Mul(intent.Qty)
	if e.cfg.MaxOrderNotional.IsPositive() && notional.GreaterThan(e.cfg.MaxOrderNotional) {
		decision.Action = ActionDeny
		decision.Reason = ReasonMaxNotional
		return decision
	}

	nextPos := applySide(state.Position, intent.Side, intent.Qty)
	if e.cfg.MaxPosition.IsPositive() && nextPos.Abs().GreaterThan(e.cfg.MaxPosition) {
		decision.Action = ActionDeny
		decision.Reason = ReasonPositionLimit
		return decision
	}

	return decision
}

func applySide(pos coin.Coin, side market.Side, qty coin.Coin) coin.Coin {
	switch side {
	case market.Buy:
		return pos.Add(qty)
	case market.Sell:
		return pos.Sub(qty)
	default:
		return pos
	}
}

// exceedsDeviation reports whether price deviates from ref by more than
// bps basis points.
func exceedsDeviation(price, ref coin.Coin, bps int64) bool {
	diff := price.Sub(ref).Abs()
	limit := ref.Ratio(float64(bps)/10000.0, ref.Precision()+4)
	return diff.GreaterThan(limit)
}
