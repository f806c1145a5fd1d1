// Package oracle supplies USD valuations for collateral assets. The engine
// consumes the PriceOracle capability defined in native/dsc; this package
// provides a static in-process implementation for development and tests plus
// a multi-source feed manager for live deployments.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrPriceUnavailable is returned when no valid price can be produced
	// for the requested asset.
	ErrPriceUnavailable = errors.New("oracle: price unavailable")
	// ErrStaleQuote is returned when the last good median is older than the
	// configured maximum age.
	ErrStaleQuote = errors.New("oracle: quote too old")
)

var scale = func() *big.Int {
	v, ok := new(big.Int).SetString("1000000000000000000", 10)
	if !ok {
		panic("invalid scale constant")
	}
	return v
}()

// Quote is a single price observation: USD per whole token at 1e18 scale.
type Quote struct {
	Price     *big.Int
	Timestamp time.Time
}

// Source resolves a price quote for a currency pair.
type Source interface {
	Name() string
	Fetch(ctx context.Context, base, quote string) (Quote, error)
}

// Pair identifies a base/quote pair, e.g. ETH/USD.
type Pair struct {
	Base  string
	Quote string
}

// ParsePair splits "ETH/USD" into its components.
func ParsePair(raw string) (Pair, error) {
	base, quote, found := strings.Cut(strings.TrimSpace(raw), "/")
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if !found || base == "" || quote == "" {
		return Pair{}, fmt.Errorf("oracle: invalid pair %q", raw)
	}
	return Pair{Base: base, Quote: quote}, nil
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// usdValue converts an asset amount into USD at the given price, both at 1e18
// scale.
func usdValue(amount, price *big.Int) *big.Int {
	value := new(big.Int).Mul(amount, price)
	return value.Quo(value, scale)
}

// tokenAmount converts a USD value into an asset amount at the given price.
func tokenAmount(usd, price *big.Int) *big.Int {
	amount := new(big.Int).Mul(usd, scale)
	return amount.Quo(amount, price)
}

// StaticOracle serves fixed per-asset prices loaded from configuration. It
// backs development deployments and tests; it never fails once constructed
// except for unknown assets.
type StaticOracle struct {
	prices map[common.Address]*big.Int
}

// NewStaticOracle copies the supplied price table.
func NewStaticOracle(prices map[common.Address]*big.Int) (*StaticOracle, error) {
	if len(prices) == 0 {
		return nil, fmt.Errorf("oracle: at least one static price required")
	}
	table := make(map[common.Address]*big.Int, len(prices))
	for asset, price := range prices {
		if price == nil || price.Sign() <= 0 {
			return nil, fmt.Errorf("oracle: invalid static price for %s", asset.Hex())
		}
		table[asset] = new(big.Int).Set(price)
	}
	return &StaticOracle{prices: table}, nil
}

// SetPrice replaces the price for an asset. Intended for tests simulating
// market moves; live deployments use the feed manager instead.
func (o *StaticOracle) SetPrice(asset common.Address, price *big.Int) {
	if price == nil || price.Sign() <= 0 {
		return
	}
	o.prices[asset] = new(big.Int).Set(price)
}

// USDValue implements dsc.PriceOracle.
func (o *StaticOracle) USDValue(_ context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	price, ok := o.prices[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, asset.Hex())
	}
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	return usdValue(amount, price), nil
}

// TokenAmountFromUSD implements dsc.PriceOracle.
func (o *StaticOracle) TokenAmountFromUSD(_ context.Context, asset common.Address, usd *big.Int) (*big.Int, error) {
	price, ok := o.prices[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, asset.Hex())
	}
	if usd == nil || usd.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	return tokenAmount(usd, price), nil
}
