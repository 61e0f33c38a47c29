package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"gopkg.in/yaml.v3"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// RouteCfg is the yaml shape of a configured cycle.
type RouteCfg struct {
	Base  string   `yaml:"base"`
	Mid   string   `yaml:"mid"`
	Alt   string   `yaml:"alt"`
	Venue string   `yaml:"venue"`
	Pools []string `yaml:"pools"`
}

// PoolCfg describes a constant-product pool for the paper-mode quoter.
type PoolCfg struct {
	Address   string `yaml:"address"`
	Token0    string `yaml:"token0"`
	Token1    string `yaml:"token1"`
	Reserve0  string `yaml:"reserve0"` // smallest units, decimal string
	Reserve1  string `yaml:"reserve1"`
	FeeBps    uint32 `yaml:"fee_bps"`
	Decimals0 int32  `yaml:"decimals0"`
	Decimals1 int32  `yaml:"decimals1"`
}

type Config struct {
	Mode   string `yaml:"mode"` // "live" or "paper"
	DryRun bool   `yaml:"dry_run"`

	Routes []RouteCfg `yaml:"routes"`
	Pools  []PoolCfg  `yaml:"pools"`

	Trade struct {
		NotionalUSD float64 `yaml:"notional_usd"`
	} `yaml:"trade"`

	Risk struct {
		BaseSlippageBps     float64 `yaml:"base_slippage_bps"`
		MaxLegSlippageBps   float64 `yaml:"max_leg_slippage_bps"`
		MaxTotalSlippageBps float64 `yaml:"max_total_slippage_bps"`
		MinProfitBps        float64 `yaml:"min_profit_bps"`
		SafetyMarginBps     float64 `yaml:"safety_margin_bps"`
		MaxLegLatencyMs     int64   `yaml:"max_leg_latency_ms"`

		// Session-level limits enforced by the risk engine.
		MinProfitUSD           float64 `yaml:"min_profit_usd"`
		MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"`
		MaxSessionNotionalUSD  float64 `yaml:"max_session_notional_usd"`
	} `yaml:"risk"`

	Gas struct {
		LimitLive  uint64 `yaml:"limit_live"`
		LimitPaper uint64 `yaml:"limit_paper"`

		// PriceGwei and NativeUSD are the standing assumptions used in
		// paper mode, where no chain feed supplies live values.
		PriceGwei float64 `yaml:"price_gwei"`
		NativeUSD float64 `yaml:"native_usd"`
	} `yaml:"gas"`

	Dedup struct {
		CooldownSec       int     `yaml:"cooldown_sec"`
		FingerprintTTLSec int     `yaml:"fingerprint_ttl_sec"`
		HysteresisPct     float64 `yaml:"hysteresis_pct"`
	} `yaml:"dedup"`

	Backtest struct {
		DataFile                string             `yaml:"data_file"`
		Start                   string             `yaml:"start"` // RFC3339, optional
		End                     string             `yaml:"end"`
		Seed                    int64              `yaml:"seed"`
		FillProbability         float64            `yaml:"fill_probability"`
		BaseSlippageBps         float64            `yaml:"base_slippage_bps"`
		ImpactBpsPer1kUSD       float64            `yaml:"impact_bps_per_1k_usd"`
		ImpactCapBps            float64            `yaml:"impact_cap_bps"`
		JitterBps               float64            `yaml:"jitter_bps"`
		PartialFillThresholdUSD float64            `yaml:"partial_fill_threshold_usd"`
		InterFillDelayMs        int                `yaml:"inter_fill_delay_ms"`
		MakerFeeBps             float64            `yaml:"maker_fee_bps"`
		TakerFeeBps             float64            `yaml:"taker_fee_bps"`
		TimeAccel               float64            `yaml:"time_accel"`
		InitialBalances         map[string]float64 `yaml:"initial_balances"`
	} `yaml:"backtest"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Stream   string `yaml:"stream"`
	} `yaml:"redis"`

	Audit struct {
		Path string `yaml:"path"`
	} `yaml:"audit"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`

	Timings struct {
		ScanIntervalMs int `yaml:"scan_interval_ms"`
	} `yaml:"timings"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Mode == "" {
		c.Mode = "paper"
	}
	if c.Timings.ScanIntervalMs == 0 {
		c.Timings.ScanIntervalMs = 500
	}
	if c.Risk.MaxLegLatencyMs == 0 {
		c.Risk.MaxLegLatencyMs = 250
	}
	if c.Risk.BaseSlippageBps == 0 {
		c.Risk.BaseSlippageBps = 5
	}
	if c.Risk.MaxLegSlippageBps == 0 {
		c.Risk.MaxLegSlippageBps = 50
	}
	if c.Risk.MaxTotalSlippageBps == 0 {
		c.Risk.MaxTotalSlippageBps = 120
	}
	if c.Risk.MaxConsecutiveFailures == 0 {
		c.Risk.MaxConsecutiveFailures = 5
	}
	if c.Gas.LimitLive == 0 {
		c.Gas.LimitLive = 700_000
	}
	if c.Gas.LimitPaper == 0 {
		c.Gas.LimitPaper = 450_000
	}
	if c.Gas.PriceGwei == 0 {
		c.Gas.PriceGwei = 10
	}
	if c.Gas.NativeUSD == 0 {
		c.Gas.NativeUSD = 2000
	}
	if c.Dedup.CooldownSec == 0 {
		c.Dedup.CooldownSec = 30
	}
	if c.Dedup.FingerprintTTLSec == 0 {
		c.Dedup.FingerprintTTLSec = 300
	}
	if c.Backtest.FillProbability == 0 {
		c.Backtest.FillProbability = 0.95
	}
	if c.Backtest.TakerFeeBps == 0 {
		c.Backtest.TakerFeeBps = 10
	}
	if c.Backtest.PartialFillThresholdUSD == 0 {
		c.Backtest.PartialFillThresholdUSD = 5_000
	}
	return &c, nil
}

// ParsedRoutes converts the yaml route blocks to domain routes, validating
// the pool addresses.
func (c *Config) ParsedRoutes() ([]types.Route, error) {
	routes := make([]types.Route, 0, len(c.Routes))
	for i, rc := range c.Routes {
		if rc.Base == "" || rc.Mid == "" || rc.Alt == "" {
			return nil, fmt.Errorf("route %d: base/mid/alt must all be set", i)
		}
		if len(rc.Pools) != 3 {
			return nil, fmt.Errorf("route %d: want 3 pools, got %d", i, len(rc.Pools))
		}
		r := types.Route{Base: rc.Base, Mid: rc.Mid, Alt: rc.Alt, Venue: rc.Venue}
		for _, p := range rc.Pools {
			if !common.IsHexAddress(p) {
				return nil, fmt.Errorf("route %d: bad pool address %q", i, p)
			}
			r.Pools = append(r.Pools, common.HexToAddress(p))
		}
		routes = append(routes, r)
	}
	return routes, nil
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Timings.ScanIntervalMs) * time.Millisecond
}

func (c *Config) DedupCooldown() time.Duration {
	return time.Duration(c.Dedup.CooldownSec) * time.Second
}

func (c *Config) FingerprintTTL() time.Duration {
	return time.Duration(c.Dedup.FingerprintTTLSec) * time.Second
}

// GasLimit returns the cycle gas assumption for the configured mode; paper
// runs carry a smaller overhead estimate than live.
func (c *Config) GasLimit() uint64 {
	if c.Mode == "live" {
		return c.Gas.LimitLive
	}
	return c.Gas.LimitPaper
}

// GasPriceWei converts the configured gwei assumption to wei.
func (c *Config) GasPriceWei() *big.Int {
	wei := new(big.Float).Mul(big.NewFloat(c.Gas.PriceGwei), big.NewFloat(params.GWei))
	out, _ := wei.Int(nil)
	return out
}
