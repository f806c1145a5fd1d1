package dsc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetInfo describes an approved collateral asset. Entries are registered
// once at startup and never mutated afterwards.
type AssetInfo struct {
	// Address is the token contract address identifying the asset.
	Address common.Address
	// Symbol is the human readable ticker, e.g. WETH.
	Symbol string
	// Decimals is the token's native precision. Amounts entering the engine
	// are already normalised to 18 fractional digits.
	Decimals uint8
	// FeedPair names the oracle price pair backing the asset, e.g. ETH/USD.
	FeedPair string
}

// Position maintains the collateral and debt balances for a single account.
// Amount values are wei-scale (1e18) big integers and are never negative.
type Position struct {
	// Collateral maps asset address to the deposited amount.
	Collateral map[common.Address]*big.Int
	// Debt stores the outstanding DSC minted against the collateral.
	Debt *big.Int
}

// NewPosition returns an empty position with all balances initialised.
func NewPosition() *Position {
	return &Position{
		Collateral: make(map[common.Address]*big.Int),
		Debt:       big.NewInt(0),
	}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return NewPosition()
	}
	clone := &Position{
		Collateral: make(map[common.Address]*big.Int, len(p.Collateral)),
		Debt:       big.NewInt(0),
	}
	for asset, amount := range p.Collateral {
		if amount == nil {
			continue
		}
		clone.Collateral[asset] = new(big.Int).Set(amount)
	}
	if p.Debt != nil {
		clone.Debt = new(big.Int).Set(p.Debt)
	}
	return clone
}

// CollateralBalance returns the deposited amount for the asset, zero when the
// asset has never been deposited.
func (p *Position) CollateralBalance(asset common.Address) *big.Int {
	if p == nil || p.Collateral == nil {
		return big.NewInt(0)
	}
	amount, ok := p.Collateral[asset]
	if !ok || amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(amount)
}

// IsZero reports whether the position carries no collateral and no debt.
func (p *Position) IsZero() bool {
	if p == nil {
		return true
	}
	if p.Debt != nil && p.Debt.Sign() != 0 {
		return false
	}
	for _, amount := range p.Collateral {
		if amount != nil && amount.Sign() != 0 {
			return false
		}
	}
	return true
}

func (p *Position) ensureDefaults() {
	if p.Collateral == nil {
		p.Collateral = make(map[common.Address]*big.Int)
	}
	if p.Debt == nil {
		p.Debt = big.NewInt(0)
	}
}

// HealthSnapshot captures the derived valuation of a position at a point in
// time. It is recomputed from oracle prices on every operation and never
// cached across calls.
type HealthSnapshot struct {
	// CollateralUSD is the oracle valuation of all deposited collateral.
	CollateralUSD *big.Int
	// Debt mirrors the position's outstanding DSC at snapshot time.
	Debt *big.Int
	// HealthFactor is the wei-scale collateralisation ratio. Positions with
	// zero debt report MaxHealthFactor.
	HealthFactor *big.Int
}

// Healthy reports whether the snapshot satisfies the minimum health factor.
func (s HealthSnapshot) Healthy() bool {
	if s.HealthFactor == nil {
		return false
	}
	return s.HealthFactor.Cmp(minHealthFactor) >= 0
}
