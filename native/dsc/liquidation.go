package dsc

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"dscd/observability"
)

// Liquidate lets the liquidator cover debtToCover of the target's outstanding
// DSC in exchange for the USD-equivalent collateral plus a 10% bonus in the
// chosen asset. The covered DSC is burned, never credited to a position. The
// whole protocol runs as one transaction over both positions: any failure
// leaves both accounts untouched.
func (e *Engine) Liquidate(ctx context.Context, liquidator, target, asset common.Address, debtToCover *big.Int) (HealthSnapshot, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "dsc.liquidate")
	defer span.End()
	span.SetAttributes(
		attribute.String("dsc.liquidator", liquidator.Hex()),
		attribute.String("dsc.target", target.Hex()),
		attribute.String("dsc.asset", asset.Hex()),
	)

	snapshot, seized, err := e.liquidate(ctx, liquidator, target, asset, debtToCover)
	e.observe("liquidate", start, err)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return HealthSnapshot{}, err
	}
	observability.EngineMetrics().ObserveLiquidation(debtToCover, seized)
	e.logger.Info("position liquidated",
		"liquidator", liquidator.Hex(),
		"target", target.Hex(),
		"asset", asset.Hex(),
		"debtCovered", debtToCover.String(),
		"collateralSeized", seized.String(),
		"targetHealthFactor", snapshot.HealthFactor.String(),
	)
	return snapshot, nil
}

func (e *Engine) liquidate(ctx context.Context, liquidator, target, asset common.Address, debtToCover *big.Int) (HealthSnapshot, *big.Int, error) {
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return HealthSnapshot{}, nil, ErrInvalidAmount
	}
	if !e.registry.IsSupported(asset) {
		return HealthSnapshot{}, nil, ErrUnsupportedAsset
	}

	var (
		snapshot HealthSnapshot
		seized   *big.Int
	)
	_, _, err := e.ledger.ApplyPair(liquidator, target, func(liqPos, targetPos *Position) error {
		before, snapErr := e.health.Snapshot(ctx, targetPos)
		if snapErr != nil {
			return snapErr
		}
		if before.Healthy() {
			return ErrHealthFactorOk
		}
		if debtToCover.Cmp(targetPos.Debt) > 0 {
			return ErrInsufficientDebt
		}

		base, convErr := e.health.TokenAmountFromUSD(ctx, asset, debtToCover)
		if convErr != nil {
			return convErr
		}
		seizure := seizureWithBonus(base)

		targetBalance := targetPos.CollateralBalance(asset)
		if targetBalance.Cmp(seizure) < 0 {
			return ErrInsufficientCollateralToSeize
		}

		targetPos.Debt = new(big.Int).Sub(targetPos.Debt, debtToCover)
		targetPos.Collateral[asset] = targetBalance.Sub(targetBalance, seizure)
		liqBalance := liqPos.CollateralBalance(asset)
		liqPos.Collateral[asset] = liqBalance.Add(liqBalance, seizure)

		after, snapErr := e.health.Snapshot(ctx, targetPos)
		if snapErr != nil {
			return snapErr
		}
		if after.HealthFactor.Cmp(before.HealthFactor) < 0 {
			return ErrHealthFactorNotImproved
		}

		// Acquiring collateral cannot weaken the liquidator, but the
		// invariant is re-checked like any other mutation when they carry
		// debt of their own.
		if liqPos.Debt.Sign() > 0 {
			liqSnapshot, liqErr := e.health.Snapshot(ctx, liqPos)
			if liqErr != nil {
				return liqErr
			}
			if !liqSnapshot.Healthy() {
				return ErrBreaksHealthFactor
			}
		}

		snapshot = after
		seized = seizure
		return nil
	})
	if err != nil {
		return HealthSnapshot{}, nil, err
	}
	return snapshot, seized, nil
}
