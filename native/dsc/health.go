package dsc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceOracle converts between asset amounts and wei-scale USD value. The
// engine trusts a returned price for the duration of one operation; staleness
// and manipulation defenses live with the oracle implementation.
type PriceOracle interface {
	// USDValue returns the USD value of the given asset amount, 1e18 scale.
	USDValue(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error)
	// TokenAmountFromUSD returns the asset amount worth the given USD value.
	TokenAmountFromUSD(ctx context.Context, asset common.Address, usd *big.Int) (*big.Int, error)
}

// HealthEngine derives valuation snapshots from positions and oracle prices.
// It holds no mutable state; any oracle failure aborts the computation with no
// partial result.
type HealthEngine struct {
	registry *AssetRegistry
	oracle   PriceOracle
}

// NewHealthEngine constructs a health engine over the registry and oracle.
func NewHealthEngine(registry *AssetRegistry, oracle PriceOracle) *HealthEngine {
	return &HealthEngine{registry: registry, oracle: oracle}
}

// Snapshot values the position's collateral at current oracle prices and
// computes the health factor. Assets are visited in registry order so the
// valuation is deterministic for a given price set.
func (h *HealthEngine) Snapshot(ctx context.Context, position *Position) (HealthSnapshot, error) {
	if position == nil {
		position = NewPosition()
	}
	totalUSD := big.NewInt(0)
	for _, asset := range h.registry.Assets() {
		amount := position.CollateralBalance(asset.Address)
		if amount.Sign() == 0 {
			continue
		}
		value, err := h.oracle.USDValue(ctx, asset.Address, amount)
		if err != nil {
			return HealthSnapshot{}, fmt.Errorf("%w: %s: %v", ErrOracleUnavailable, asset.Symbol, err)
		}
		totalUSD.Add(totalUSD, value)
	}
	debt := big.NewInt(0)
	if position.Debt != nil {
		debt.Set(position.Debt)
	}
	return HealthSnapshot{
		CollateralUSD: totalUSD,
		Debt:          debt,
		HealthFactor:  healthFactor(totalUSD, debt),
	}, nil
}

// TokenAmountFromUSD resolves the collateral amount worth the USD value,
// wrapping oracle failures in the engine's error model.
func (h *HealthEngine) TokenAmountFromUSD(ctx context.Context, asset common.Address, usd *big.Int) (*big.Int, error) {
	amount, err := h.oracle.TokenAmountFromUSD(ctx, asset, usd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	return amount, nil
}
