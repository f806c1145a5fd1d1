package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"dscd/native/dsc"
	"dscd/oracle"
)

const (
	// OracleModeStatic serves fixed prices from the asset configuration.
	OracleModeStatic = "static"
	// OracleModeFeeds aggregates live prices from the configured sources.
	OracleModeFeeds = "feeds"
)

// Config captures the runtime settings for dscd.
type Config struct {
	ListenAddress      string `toml:"ListenAddress"`
	Environment        string `toml:"Environment"`
	RateLimitPerMinute int    `toml:"RateLimitPerMinute"`
	RateLimitBurst     int    `toml:"RateLimitBurst"`

	Log       LogConfig       `toml:"log"`
	Auth      AuthConfig      `toml:"auth"`
	Oracle    OracleConfig    `toml:"oracle"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Assets    []AssetConfig   `toml:"asset"`
}

// LogConfig tunes structured log output.
type LogConfig struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// AuthConfig guards the mutating RPC methods. Either a static bearer token or
// an HMAC JWT (secret, issuer, audience) may be configured; when both are
// empty, mutations are open, which is only sensible in dev environments.
type AuthConfig struct {
	Token       string `toml:"Token"`
	JWTSecret   string `toml:"JWTSecret"`
	JWTIssuer   string `toml:"JWTIssuer"`
	JWTAudience string `toml:"JWTAudience"`
}

// Enabled reports whether any auth scheme is configured.
func (a AuthConfig) Enabled() bool {
	return strings.TrimSpace(a.Token) != "" || strings.TrimSpace(a.JWTSecret) != ""
}

// OracleConfig selects and tunes the price oracle.
type OracleConfig struct {
	Mode            string         `toml:"Mode"`
	RefreshInterval string         `toml:"RefreshInterval"`
	MaxQuoteAge     string         `toml:"MaxQuoteAge"`
	MinFeeds        int            `toml:"MinFeeds"`
	Sources         []SourceConfig `toml:"source"`
}

// SourceConfig names one upstream price endpoint.
type SourceConfig struct {
	Name string `toml:"Name"`
	URL  string `toml:"URL"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// AssetConfig declares one approved collateral asset.
type AssetConfig struct {
	Address  string `toml:"Address"`
	Symbol   string `toml:"Symbol"`
	Decimals uint8  `toml:"Decimals"`
	FeedPair string `toml:"FeedPair"`
	// StaticPrice is the USD price per whole token used in static oracle
	// mode, as a decimal string, e.g. "2000".
	StaticPrice string `toml:"StaticPrice"`
}

// Load reads the configuration from the given path and applies defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = "0.0.0.0:8545"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 20
	}
	if strings.TrimSpace(c.Oracle.Mode) == "" {
		c.Oracle.Mode = OracleModeStatic
	}
	if strings.TrimSpace(c.Oracle.RefreshInterval) == "" {
		c.Oracle.RefreshInterval = "15s"
	}
	if strings.TrimSpace(c.Oracle.MaxQuoteAge) == "" {
		c.Oracle.MaxQuoteAge = "1m"
	}
	if c.Oracle.MinFeeds == 0 {
		c.Oracle.MinFeeds = 1
	}
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate limit per minute must be non-negative")
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("at least one collateral asset must be configured")
	}
	seen := make(map[common.Address]bool, len(c.Assets))
	for _, asset := range c.Assets {
		if !common.IsHexAddress(asset.Address) {
			return fmt.Errorf("asset %s: invalid address %q", asset.Symbol, asset.Address)
		}
		addr := common.HexToAddress(asset.Address)
		if seen[addr] {
			return fmt.Errorf("asset %s: duplicate address %s", asset.Symbol, asset.Address)
		}
		seen[addr] = true
		if strings.TrimSpace(asset.Symbol) == "" {
			return fmt.Errorf("asset %s: symbol required", asset.Address)
		}
		if asset.Decimals == 0 {
			return fmt.Errorf("asset %s: decimals required", asset.Symbol)
		}
	}

	switch c.Oracle.Mode {
	case OracleModeStatic:
		for _, asset := range c.Assets {
			if _, err := oracle.ParseDecimal(asset.StaticPrice); err != nil {
				return fmt.Errorf("asset %s: static oracle mode requires a valid StaticPrice: %w", asset.Symbol, err)
			}
		}
	case OracleModeFeeds:
		if len(c.Oracle.Sources) == 0 {
			return fmt.Errorf("feeds oracle mode requires at least one source")
		}
		for _, src := range c.Oracle.Sources {
			if strings.TrimSpace(src.Name) == "" || strings.TrimSpace(src.URL) == "" {
				return fmt.Errorf("oracle source requires both Name and URL")
			}
		}
		for _, asset := range c.Assets {
			if _, err := oracle.ParsePair(asset.FeedPair); err != nil {
				return fmt.Errorf("asset %s: feeds oracle mode requires a valid FeedPair: %w", asset.Symbol, err)
			}
		}
	default:
		return fmt.Errorf("unknown oracle mode %q", c.Oracle.Mode)
	}

	if _, err := c.Oracle.Interval(); err != nil {
		return err
	}
	if _, err := c.Oracle.QuoteMaxAge(); err != nil {
		return err
	}
	return nil
}

// Interval returns the parsed feed refresh interval.
func (o OracleConfig) Interval() (time.Duration, error) {
	interval, err := time.ParseDuration(o.RefreshInterval)
	if err != nil || interval <= 0 {
		return 0, fmt.Errorf("invalid oracle refresh interval %q", o.RefreshInterval)
	}
	return interval, nil
}

// QuoteMaxAge returns the parsed maximum quote age.
func (o OracleConfig) QuoteMaxAge() (time.Duration, error) {
	age, err := time.ParseDuration(o.MaxQuoteAge)
	if err != nil || age <= 0 {
		return 0, fmt.Errorf("invalid oracle max quote age %q", o.MaxQuoteAge)
	}
	return age, nil
}

// AssetInfos converts the configured assets into registry entries.
func (c *Config) AssetInfos() []dsc.AssetInfo {
	assets := make([]dsc.AssetInfo, 0, len(c.Assets))
	for _, asset := range c.Assets {
		assets = append(assets, dsc.AssetInfo{
			Address:  common.HexToAddress(asset.Address),
			Symbol:   strings.ToUpper(strings.TrimSpace(asset.Symbol)),
			Decimals: asset.Decimals,
			FeedPair: strings.TrimSpace(asset.FeedPair),
		})
	}
	return assets
}

// StaticPrices returns the per-asset price table for static oracle mode.
func (c *Config) StaticPrices() (map[common.Address]*big.Int, error) {
	prices := make(map[common.Address]*big.Int, len(c.Assets))
	for _, asset := range c.Assets {
		price, err := oracle.ParseDecimal(asset.StaticPrice)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", asset.Symbol, err)
		}
		prices[common.HexToAddress(asset.Address)] = price
	}
	return prices, nil
}

// FeedPairs returns the per-asset pair mapping for feeds oracle mode.
func (c *Config) FeedPairs() (map[common.Address]oracle.Pair, error) {
	pairs := make(map[common.Address]oracle.Pair, len(c.Assets))
	for _, asset := range c.Assets {
		pair, err := oracle.ParsePair(asset.FeedPair)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", asset.Symbol, err)
		}
		pairs[common.HexToAddress(asset.Address)] = pair
	}
	return pairs, nil
}
