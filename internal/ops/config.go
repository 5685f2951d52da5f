// Package ops loads the JSON configuration file that describes every
// market's settings, its declarative position-slot grid, and the risk
// engine's limits, the way the teacher's internal/ops/config.go built a
// schema.Registry from JSON — reworked here to build a market.Info
// registry directly.
package ops

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ordermesh/pingpong/internal/coin"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/risk"
)

// FileConfig mirrors the JSON config layout on disk.
type FileConfig struct {
	Markets  []MarketConfig     `json:"markets"`
	Risk     risk.Config        `json:"risk"`
	Features FeatureFlagsConfig `json:"features"`
}

// MarketConfig describes one market's settings and its slot grid.
type MarketConfig struct {
	Name  string         `json:"name"`
	Settings SettingsConfig `json:"settings"`
	Slots []SlotConfig   `json:"slots"`
}

// SettingsConfig mirrors market.Settings in JSON-friendly form.
type SettingsConfig struct {
	PriceTicksize       coin.Coin `json:"priceTicksize"`
	QuantityTicksize    coin.Coin `json:"quantityTicksize"`
	OrderMin            int       `json:"orderMin"`
	OrderMax            int       `json:"orderMax"`
	OrderDC             int       `json:"orderDc"`
	OrderDCNice         int       `json:"orderDcNice"`
	OrderLandmarkStart  int       `json:"orderLandmarkStart"`
	OrderLandmarkThresh int       `json:"orderLandmarkThresh"`
	MarketSentiment     coin.Coin `json:"marketSentiment"`
	MarketOffset        coin.Coin `json:"marketOffset"`
	SlippageTimeout     int64     `json:"slippageTimeoutMs"`
	PriceMinMul         float64   `json:"priceMinMul"`
	PriceMaxMul         float64   `json:"priceMaxMul"`
}

func (s SettingsConfig) toSettings() market.Settings {
	return market.Settings{
		PriceTicksize:       s.PriceTicksize,
		QuantityTicksize:    s.QuantityTicksize,
		OrderMin:            s.OrderMin,
		OrderMax:            s.OrderMax,
		OrderDC:             s.OrderDC,
		OrderDCNice:         s.OrderDCNice,
		OrderLandmarkStart:  s.OrderLandmarkStart,
		OrderLandmarkThresh: s.OrderLandmarkThresh,
		MarketSentiment:     s.MarketSentiment,
		MarketOffset:        s.MarketOffset,
		SlippageTimeout:     s.SlippageTimeout,
		PriceMinMul:         s.PriceMinMul,
		PriceMaxMul:         s.PriceMaxMul,
	}
}

// SlotConfig is one declarative position_index entry.
type SlotConfig struct {
	BuyPrice      coin.Coin `json:"buyPrice"`
	SellPrice     coin.Coin `json:"sellPrice"`
	OrderSize     coin.Coin `json:"orderSize"`
	AlternateSize coin.Coin `json:"alternateSize"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableOrderFlow *bool `json:"enableOrderFlow"`
	EnableFills     *bool `json:"enableFills"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableOrderFlow bool
	EnableFills     bool
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Markets  []*market.Info
	Risk     risk.Config
	Features FeatureFlags
}

// Load reads a JSON config file and builds every market's Info.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	markets, err := buildMarkets(cfg.Markets)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{
		Markets:  markets,
		Risk:     cfg.Risk,
		Features: resolveFeatures(cfg.Features),
	}, nil
}

// LoadMarkets reads a JSON config file and only builds the market registry.
func LoadMarkets(path string) ([]*market.Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return buildMarkets(cfg.Markets)
}

func buildMarkets(cfgs []MarketConfig) ([]*market.Info, error) {
	out := make([]*market.Info, 0, len(cfgs))
	seen := make(map[string]struct{}, len(cfgs))
	for _, mc := range cfgs {
		if mc.Name == "" {
			return nil, fmt.Errorf("market name is empty")
		}
		if _, dup := seen[mc.Name]; dup {
			return nil, fmt.Errorf("duplicate market: %s", mc.Name)
		}
		seen[mc.Name] = struct{}{}
		if err := validateSettings(mc.Settings); err != nil {
			return nil, fmt.Errorf("invalid settings for %s: %w", mc.Name, err)
		}
		info := market.New(market.Market(mc.Name), mc.Settings.toSettings())
		for _, slot := range mc.Slots {
			info.AppendSlot(market.PositionSlot{
				BuyPrice:      slot.BuyPrice,
				SellPrice:     slot.SellPrice,
				OrderSize:     slot.OrderSize,
				AlternateSize: slot.AlternateSize,
			})
		}
		out = append(out, info)
	}
	return out, nil
}

func validateSettings(s SettingsConfig) error {
	if s.PriceTicksize.IsZeroOrLess() {
		return fmt.Errorf("priceTicksize must be > 0")
	}
	if s.OrderMax > 0 && s.OrderMin > s.OrderMax {
		return fmt.Errorf("orderMin must be <= orderMax")
	}
	if s.OrderDC < 0 {
		return fmt.Errorf("orderDc must be >= 0")
	}
	return nil
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableOrderFlow: true,
		EnableFills:     true,
	}
	if cfg.EnableOrderFlow != nil {
		flags.EnableOrderFlow = *cfg.EnableOrderFlow
	}
	if cfg.EnableFills != nil {
		flags.EnableFills = *cfg.EnableFills
	}
	return flags
}
