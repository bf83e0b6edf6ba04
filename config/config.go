package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"gridbot/internal/domain"
	"gridbot/internal/exchange"
)

// Config is the top-level runtime configuration: one exchange,
// one or more trading pairs on it.
type Config struct {
	Platform exchange.Platform
	Pairs    []PairConfig
	Telegram TelegramConfig
}

// PairConfig holds grid and order-lifecycle parameters for a single pair.
type PairConfig struct {
	Pair          domain.Pair
	OrderSize     decimal.Decimal
	GridLevels    int
	UpperRangePct decimal.Decimal
	LowerRangePct decimal.Decimal
	FeePct        decimal.Decimal
	MinProfitBuy  decimal.Decimal
	MinProfitSell decimal.Decimal

	CycleInterval time.Duration

	MaxOrderAge       time.Duration
	RiskCancel        bool
	CloseThresholdPct decimal.Decimal
	MaxOrderPolls     int
}

type TelegramConfig struct {
	Enabled bool
	ChatID  int64
}

type configTmp struct {
	Platform string      `yaml:"platform"`
	Pairs    []pairTmp   `yaml:"pairs"`
	Telegram telegramTmp `yaml:"telegram"`
}

type pairTmp struct {
	Pair          string        `yaml:"pair"`
	OrderSize     string        `yaml:"order_size"`
	GridLevels    int           `yaml:"grid_levels"`
	UpperRangePct string        `yaml:"upper_range_pct"`
	LowerRangePct string        `yaml:"lower_range_pct"`
	FeePct        string        `yaml:"fee_pct,omitempty"`
	MinProfitBuy  string        `yaml:"min_profit_buy,omitempty"`
	MinProfitSell string        `yaml:"min_profit_sell,omitempty"`
	CycleInterval time.Duration `yaml:"cycle_interval,omitempty"`

	// pointer so an explicit zero can disable age-based cancellation
	MaxOrderAge       *time.Duration `yaml:"max_order_age,omitempty"`
	RiskCancel        bool           `yaml:"risk_cancel,omitempty"`
	CloseThresholdPct string         `yaml:"close_threshold_pct,omitempty"`
	MaxOrderPolls     string         `yaml:"max_order_polls,omitempty"`
}

type telegramTmp struct {
	Enabled bool  `yaml:"enabled"`
	ChatID  int64 `yaml:"chat_id"`
}

// Get loads configuration from the yaml file passed via --config.
func Get() (Config, error) {
	path := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()

	return getYaml(*path)
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	platform := exchange.Platform(tmp.Platform)
	if !platform.Valid() {
		return Config{}, fmt.Errorf("unsupported 'platform' param in yaml config: %s", tmp.Platform)
	}
	if len(tmp.Pairs) == 0 {
		return Config{}, fmt.Errorf("at least one pair must be configured")
	}

	conf := Config{
		Platform: platform,
		Telegram: TelegramConfig{Enabled: tmp.Telegram.Enabled, ChatID: tmp.Telegram.ChatID},
	}

	for _, p := range tmp.Pairs {
		pc, err := parsePair(p)
		if err != nil {
			return Config{}, err
		}
		conf.Pairs = append(conf.Pairs, pc)
	}

	return conf, nil
}

func parsePair(p pairTmp) (PairConfig, error) {
	pair, err := domain.ParsePair(p.Pair)
	if err != nil {
		return PairConfig{}, fmt.Errorf("incorrect 'pair' param in yaml config: %s, error: %w", p.Pair, err)
	}

	orderSize, err := decimal.NewFromString(p.OrderSize)
	if err != nil {
		return PairConfig{}, fmt.Errorf("incorrect 'order_size' param in yaml config (must be a decimal), error: %w", err)
	}

	if p.GridLevels < 2 {
		return PairConfig{}, fmt.Errorf("incorrect 'grid_levels' param in yaml config: must be at least 2")
	}

	upper, err := decimal.NewFromString(p.UpperRangePct)
	if err != nil {
		return PairConfig{}, fmt.Errorf("incorrect 'upper_range_pct' param in yaml config (must be a decimal), error: %w", err)
	}
	lower, err := decimal.NewFromString(p.LowerRangePct)
	if err != nil {
		return PairConfig{}, fmt.Errorf("incorrect 'lower_range_pct' param in yaml config (must be a decimal), error: %w", err)
	}
	if !upper.IsPositive() || !lower.IsPositive() {
		return PairConfig{}, fmt.Errorf("'upper_range_pct' and 'lower_range_pct' must be positive")
	}

	pc := PairConfig{
		Pair:          pair,
		OrderSize:     orderSize,
		GridLevels:    p.GridLevels,
		UpperRangePct: upper,
		LowerRangePct: lower,
		CycleInterval: p.CycleInterval,
		RiskCancel:    p.RiskCancel,
	}

	if pc.CycleInterval == 0 {
		pc.CycleInterval = 30 * time.Second
	}
	// absent key falls back to a day; an explicit zero disables age cancellation
	if p.MaxOrderAge == nil {
		pc.MaxOrderAge = 24 * time.Hour
	} else {
		pc.MaxOrderAge = *p.MaxOrderAge
	}

	pc.FeePct, err = decimalOrDefault(p.FeePct, "fee_pct", "0.1")
	if err != nil {
		return PairConfig{}, err
	}
	pc.MinProfitBuy, err = decimalOrDefault(p.MinProfitBuy, "min_profit_buy", "0.2")
	if err != nil {
		return PairConfig{}, err
	}
	pc.MinProfitSell, err = decimalOrDefault(p.MinProfitSell, "min_profit_sell", "0.2")
	if err != nil {
		return PairConfig{}, err
	}
	pc.CloseThresholdPct, err = decimalOrDefault(p.CloseThresholdPct, "close_threshold_pct", "-5")
	if err != nil {
		return PairConfig{}, err
	}

	if p.MaxOrderPolls == "" {
		pc.MaxOrderPolls = 0
	} else {
		pc.MaxOrderPolls, err = strconv.Atoi(p.MaxOrderPolls)
		if err != nil {
			return PairConfig{}, fmt.Errorf("incorrect 'max_order_polls' param in yaml config (must be an integer), error: %w", err)
		}
	}

	return pc, nil
}

func decimalOrDefault(raw, name, def string) (decimal.Decimal, error) {
	if raw == "" {
		raw = def
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("incorrect '%s' param in yaml config (must be a decimal), error: %w", name, err)
	}
	return d, nil
}
