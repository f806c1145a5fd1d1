package dsc

import "errors"

var (
	// ErrUnsupportedAsset is returned when an operation names a collateral
	// asset outside the configured registry.
	ErrUnsupportedAsset = errors.New("dsc engine: collateral asset not supported")
	// ErrInvalidAmount is returned for nil, zero or negative amounts.
	ErrInvalidAmount = errors.New("dsc engine: amount must be positive")
	// ErrInsufficientCollateral is returned when a redemption exceeds the
	// deposited balance for the asset.
	ErrInsufficientCollateral = errors.New("dsc engine: insufficient collateral")
	// ErrInsufficientDebt is returned when a burn exceeds the outstanding debt.
	ErrInsufficientDebt = errors.New("dsc engine: burn exceeds outstanding debt")
	// ErrBreaksHealthFactor is returned when a self-initiated mutation would
	// leave the account below the minimum health factor.
	ErrBreaksHealthFactor = errors.New("dsc engine: operation breaks health factor")
	// ErrHealthFactorOk is returned when liquidation targets a healthy account.
	ErrHealthFactorOk = errors.New("dsc engine: target health factor above minimum")
	// ErrInsufficientCollateralToSeize is returned when the target does not
	// hold enough of the chosen asset to cover the seizure plus bonus.
	ErrInsufficientCollateralToSeize = errors.New("dsc engine: target collateral cannot cover seizure")
	// ErrHealthFactorNotImproved is returned when a liquidation would leave
	// the target no healthier than before.
	ErrHealthFactorNotImproved = errors.New("dsc engine: liquidation did not improve health factor")
	// ErrOracleUnavailable wraps any price oracle failure. The enclosing
	// operation aborts with nothing committed; retries are the caller's
	// responsibility.
	ErrOracleUnavailable = errors.New("dsc engine: oracle price unavailable")
)
