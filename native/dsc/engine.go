package dsc

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"dscd/observability"
)

// Engine orchestrates the guarded state transitions for the DSC module:
// deposit, mint, redeem and burn on single accounts, plus liquidation across
// account pairs. Every mutation is all-or-nothing; a failure anywhere inside
// the tentative computation leaves the ledger untouched.
type Engine struct {
	registry *AssetRegistry
	ledger   *PositionLedger
	health   *HealthEngine
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewEngine constructs an engine over the asset registry and price oracle.
func NewEngine(registry *AssetRegistry, oracle PriceOracle) *Engine {
	return &Engine{
		registry: registry,
		ledger:   NewPositionLedger(),
		health:   NewHealthEngine(registry, oracle),
		logger:   slog.Default(),
		tracer:   otel.Tracer("dscd/native/dsc"),
	}
}

// SetLogger installs a custom logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// Registry exposes the configured collateral registry.
func (e *Engine) Registry() *AssetRegistry {
	if e == nil {
		return nil
	}
	return e.registry
}

// DepositCollateral credits the asset amount to the account's collateral.
// Depositing can only improve the health factor, so no post-condition check is
// required, but the fresh snapshot is still computed for caller visibility and
// an oracle outage aborts the whole operation.
func (e *Engine) DepositCollateral(ctx context.Context, account, asset common.Address, amount *big.Int) (HealthSnapshot, error) {
	start := time.Now()
	snapshot, err := e.depositCollateral(ctx, account, asset, amount)
	e.observe("deposit_collateral", start, err)
	return snapshot, err
}

func (e *Engine) depositCollateral(ctx context.Context, account, asset common.Address, amount *big.Int) (HealthSnapshot, error) {
	if amount == nil || amount.Sign() <= 0 {
		return HealthSnapshot{}, ErrInvalidAmount
	}
	if !e.registry.IsSupported(asset) {
		return HealthSnapshot{}, ErrUnsupportedAsset
	}

	var snapshot HealthSnapshot
	_, err := e.ledger.Apply(account, func(position *Position) error {
		balance := position.CollateralBalance(asset)
		position.Collateral[asset] = balance.Add(balance, amount)

		var snapErr error
		snapshot, snapErr = e.health.Snapshot(ctx, position)
		return snapErr
	})
	if err != nil {
		return HealthSnapshot{}, err
	}
	e.logger.Info("collateral deposited",
		"account", account.Hex(),
		"asset", asset.Hex(),
		"amount", amount.String(),
	)
	return snapshot, nil
}

// MintDSC increases the account's debt after verifying the tentative position
// stays at or above the minimum health factor.
func (e *Engine) MintDSC(ctx context.Context, account common.Address, amount *big.Int) (HealthSnapshot, error) {
	start := time.Now()
	snapshot, err := e.mintDSC(ctx, account, amount)
	e.observe("mint_dsc", start, err)
	return snapshot, err
}

func (e *Engine) mintDSC(ctx context.Context, account common.Address, amount *big.Int) (HealthSnapshot, error) {
	if amount == nil || amount.Sign() <= 0 {
		return HealthSnapshot{}, ErrInvalidAmount
	}

	var snapshot HealthSnapshot
	_, err := e.ledger.Apply(account, func(position *Position) error {
		position.Debt = new(big.Int).Add(position.Debt, amount)

		tentative, snapErr := e.health.Snapshot(ctx, position)
		if snapErr != nil {
			return snapErr
		}
		if !tentative.Healthy() {
			return ErrBreaksHealthFactor
		}
		snapshot = tentative
		return nil
	})
	if err != nil {
		return HealthSnapshot{}, err
	}
	e.logger.Info("dsc minted",
		"account", account.Hex(),
		"amount", amount.String(),
		"healthFactor", snapshot.HealthFactor.String(),
	)
	return snapshot, nil
}

// RedeemCollateral releases the asset amount back to the account, subject to
// the same health gate as minting: the tentative position after subtraction
// must remain healthy or nothing commits.
func (e *Engine) RedeemCollateral(ctx context.Context, account, asset common.Address, amount *big.Int) (HealthSnapshot, error) {
	start := time.Now()
	snapshot, err := e.redeemCollateral(ctx, account, asset, amount, nil)
	e.observe("redeem_collateral", start, err)
	return snapshot, err
}

// RedeemCollateralForDSC burns dscToBurn and redeems the collateral amount in
// a single atomic mutation, mirroring the combined action the original
// interface exposes.
func (e *Engine) RedeemCollateralForDSC(ctx context.Context, account, asset common.Address, amount, dscToBurn *big.Int) (HealthSnapshot, error) {
	start := time.Now()
	if dscToBurn == nil || dscToBurn.Sign() <= 0 {
		e.observe("redeem_collateral_for_dsc", start, ErrInvalidAmount)
		return HealthSnapshot{}, ErrInvalidAmount
	}
	snapshot, err := e.redeemCollateral(ctx, account, asset, amount, dscToBurn)
	e.observe("redeem_collateral_for_dsc", start, err)
	return snapshot, err
}

func (e *Engine) redeemCollateral(ctx context.Context, account, asset common.Address, amount, dscToBurn *big.Int) (HealthSnapshot, error) {
	if amount == nil || amount.Sign() <= 0 {
		return HealthSnapshot{}, ErrInvalidAmount
	}
	if !e.registry.IsSupported(asset) {
		return HealthSnapshot{}, ErrUnsupportedAsset
	}

	var snapshot HealthSnapshot
	_, err := e.ledger.Apply(account, func(position *Position) error {
		if dscToBurn != nil {
			if dscToBurn.Cmp(position.Debt) > 0 {
				return ErrInsufficientDebt
			}
			position.Debt = new(big.Int).Sub(position.Debt, dscToBurn)
		}

		balance := position.CollateralBalance(asset)
		if balance.Cmp(amount) < 0 {
			return ErrInsufficientCollateral
		}
		position.Collateral[asset] = balance.Sub(balance, amount)

		tentative, snapErr := e.health.Snapshot(ctx, position)
		if snapErr != nil {
			return snapErr
		}
		if !tentative.Healthy() {
			return ErrBreaksHealthFactor
		}
		snapshot = tentative
		return nil
	})
	if err != nil {
		return HealthSnapshot{}, err
	}
	e.logger.Info("collateral redeemed",
		"account", account.Hex(),
		"asset", asset.Hex(),
		"amount", amount.String(),
	)
	return snapshot, nil
}

// BurnDSC reduces the account's debt. Burning can only improve the health
// factor, so no post-condition check is needed; the debt simply may not go
// negative, enforced by the precondition rather than clamping.
func (e *Engine) BurnDSC(ctx context.Context, account common.Address, amount *big.Int) (HealthSnapshot, error) {
	start := time.Now()
	snapshot, err := e.burnDSC(ctx, account, amount)
	e.observe("burn_dsc", start, err)
	return snapshot, err
}

func (e *Engine) burnDSC(ctx context.Context, account common.Address, amount *big.Int) (HealthSnapshot, error) {
	if amount == nil || amount.Sign() <= 0 {
		return HealthSnapshot{}, ErrInvalidAmount
	}

	var snapshot HealthSnapshot
	_, err := e.ledger.Apply(account, func(position *Position) error {
		if amount.Cmp(position.Debt) > 0 {
			return ErrInsufficientDebt
		}
		position.Debt = new(big.Int).Sub(position.Debt, amount)

		var snapErr error
		snapshot, snapErr = e.health.Snapshot(ctx, position)
		return snapErr
	})
	if err != nil {
		return HealthSnapshot{}, err
	}
	e.logger.Info("dsc burned",
		"account", account.Hex(),
		"amount", amount.String(),
	)
	return snapshot, nil
}

// Position returns a copy of the account's last committed position.
func (e *Engine) Position(account common.Address) *Position {
	return e.ledger.Get(account)
}

// GetAccountInformation returns the account's outstanding debt and the oracle
// valuation of its collateral.
func (e *Engine) GetAccountInformation(ctx context.Context, account common.Address) (*big.Int, *big.Int, error) {
	snapshot, err := e.health.Snapshot(ctx, e.ledger.Get(account))
	if err != nil {
		return nil, nil, err
	}
	return snapshot.Debt, snapshot.CollateralUSD, nil
}

// HealthFactor returns the account's current health factor at live prices.
func (e *Engine) HealthFactor(ctx context.Context, account common.Address) (*big.Int, error) {
	snapshot, err := e.health.Snapshot(ctx, e.ledger.Get(account))
	if err != nil {
		return nil, err
	}
	return snapshot.HealthFactor, nil
}

// USDValue exposes the oracle valuation for an asset amount, used by the RPC
// surface for previews.
func (e *Engine) USDValue(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if !e.registry.IsSupported(asset) {
		return nil, ErrUnsupportedAsset
	}
	value, err := e.health.oracle.USDValue(ctx, asset, amount)
	if err != nil {
		return nil, ErrOracleUnavailable
	}
	return value, nil
}

func (e *Engine) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.EngineMetrics().Observe(op, outcome, time.Since(start))
}
