package core

import (
	"strings"
	"time"

	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/engine"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/position"
	"github.com/ordermesh/pingpong/internal/risk"
)

// SubmitIntent is the only path an operator or strategy driver has into
// add_position: it evaluates req against the risk engine before handing
// it to the lifecycle engine, denying anything that trips the kill
// switch, rate limit, or a configured ceiling.
func (r *Reactor) SubmitIntent(req engine.AddPositionRequest) (*position.Position, risk.Decision, error) {
	m := market.Market(req.Market)
	price, err := intentPrice(req)
	if err != nil {
		return nil, risk.Decision{}, err
	}
	qty, err := intentQty(req)
	if err != nil {
		return nil, risk.Decision{}, err
	}

	info := r.store.Market(m)
	state := risk.StateView{Now: r.eng.Now() * int64(time.Millisecond)}
	if info != nil {
		state.ReferencePrice = info.HighestBuy
	}

	decision := r.risk.Evaluate(risk.Intent{Market: m, Side: req.Side, Price: price, Qty: qty}, state)
	if decision.Action == risk.ActionDeny {
		if r.metrics != nil {
			r.metrics.IncRiskDeny(m, decision.Reason)
		}
		return nil, decision, nil
	}

	pos, err := r.eng.AddPosition(req)
	return pos, decision, err
}

func intentPrice(req engine.AddPositionRequest) (coin.Coin, error) {
	raw := req.BuyPrice
	if req.Side == market.Sell {
		raw = req.SellPrice
	}
	if raw == "" {
		return coin.Zero, nil
	}
	return coin.NewFromString(raw)
}

// intentQty parses only the primary half of a "primary/alternate" size;
// the full split lives in engine.AddPosition's own validation pipeline
// and runs again there.
func intentQty(req engine.AddPositionRequest) (coin.Coin, error) {
	primary := strings.SplitN(req.Size, "/", 2)[0]
	return coin.NewFromString(strings.TrimSpace(primary))
}
