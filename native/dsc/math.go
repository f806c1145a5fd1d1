package dsc

import "math/big"

// All monetary amounts are integers carrying 18 fractional digits. Only half
// of the collateral value counts toward the health factor, so the protocol
// requires 2x overcollateralisation at the liquidation boundary.
var (
	scale                = mustBigInt("1000000000000000000") // 1e18
	liquidationThreshold = big.NewInt(50)
	liquidationPrecision = big.NewInt(100)
	liquidationBonus     = big.NewInt(10)

	minHealthFactor = new(big.Int).Set(scale)

	// MaxHealthFactor is the sentinel reported for debt-free positions.
	MaxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// MinHealthFactor returns the wei-scale minimum health factor (1.0).
func MinHealthFactor() *big.Int {
	return new(big.Int).Set(minHealthFactor)
}

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// healthFactor computes (collateralUSD * threshold / precision) * 1e18 / debt.
// Debt-free positions are maximally healthy regardless of collateral.
func healthFactor(collateralUSD, debt *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(MaxHealthFactor)
	}
	if collateralUSD == nil || collateralUSD.Sign() <= 0 {
		return big.NewInt(0)
	}
	adjusted := new(big.Int).Mul(collateralUSD, liquidationThreshold)
	adjusted.Quo(adjusted, liquidationPrecision)
	adjusted.Mul(adjusted, scale)
	return adjusted.Quo(adjusted, debt)
}

// seizureWithBonus applies the liquidation bonus to the base collateral amount
// owed for the covered debt.
func seizureWithBonus(base *big.Int) *big.Int {
	if base == nil || base.Sign() <= 0 {
		return big.NewInt(0)
	}
	bonus := new(big.Int).Mul(base, liquidationBonus)
	bonus.Quo(bonus, liquidationPrecision)
	return bonus.Add(bonus, base)
}
