package dsc

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

func TestDepositAndMintKeepsHealthyPosition(t *testing.T) {
	oracle := newMockOracle()
	oracle.setPrice(weth, 2000)
	engine := newTestEngine(t, oracle)
	account := makeAddress(0x01)
	ctx := context.Background()

	snapshot, err := engine.DepositCollateral(ctx, account, weth, wei(10))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if snapshot.CollateralUSD.Cmp(wei(20_000)) != 0 {
		t.Fatalf("unexpected collateral value: %s", snapshot.CollateralUSD)
	}
	if snapshot.HealthFactor.Cmp(MaxHealthFactor) != 0 {
		t.Fatalf("debt-free position should be maximally healthy, got %s", snapshot.HealthFactor)
	}

	snapshot, err = engine.MintDSC(ctx, account, wei(9_000))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	// 20_000 * 50% = 10_000 adjusted; 10_000e18 * 1e18 / 9_000e18.
	want, _ := new(big.Int).SetString("1111111111111111111", 10)
	if snapshot.HealthFactor.Cmp(want) != 0 {
		t.Fatalf("unexpected health factor: %s", snapshot.HealthFactor)
	}
	if snapshot.Debt.Cmp(wei(9_000)) != 0 {
		t.Fatalf("unexpected debt: %s", snapshot.Debt)
	}
}

func TestMintRejectedWhenHealthFactorBreaks(t *testing.T) {
	oracle := newMockOracle()
	oracle.setPrice(weth, 2000)
	engine := newTestEngine(t, oracle)
	account := makeAddress(0x02)
	ctx := context.Background()

	if _, err := engine.DepositCollateral(ctx, account, weth, wei(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.MintDSC(ctx, account, wei(9_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// 10_000 adjusted collateral over 11_000 debt is below 1.0.
	if _, err := engine.MintDSC(ctx, account, wei(2_000)); !errors.Is(err, ErrBreaksHealthFactor) {
		t.Fatalf("expected ErrBreaksHealthFactor, got %v", err)
	}

	position := engine.Position(account)
	if position.Debt.Cmp(wei(9_000)) != 0 {
		t.Fatalf("failed mint must not change debt, got %s", position.Debt)
	}
}

func TestDepositValidation(t *testing.T) {
	oracle := newMockOracle()
	oracle.setPrice(weth, 2000)
	engine := newTestEngine(t, oracle)
	account := makeAddress(0x03)
	ctx := context.Background()

	if _, err := engine.DepositCollateral(ctx, account, weth, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if _, err := engine.DepositCollateral(ctx, account, weth, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	unknown := makeAddress(0xFF)
	if _, err := engine.DepositCollateral(ctx, account, unknown, wei(1)); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
	if !engine.Position(account).IsZero() {
		t.Fatal("rejected deposits must not create balances")
	}
}

func TestRedeemCollateralGuards(t *testing.T) {
	oracle := newMockOracle()
	oracle.setPrice(weth, 2000)
	engine := newTestEngine(t, oracle)
	account := makeAddress(0x04)
	ctx := context.Background()

	if _, err := engine.DepositCollateral(ctx, account, weth, wei(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.RedeemCollateral(ctx, account, weth, wei(11)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}

	if _, err := engine.MintDSC(ctx, account, wei(9_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	// Redeeming 2 WETH would leave 8_000 adjusted collateral against 9_000 debt.
	if _, err := engine.RedeemCollateral(ctx, account, weth, wei(2)); !errors.Is(err, ErrBreaksHealthFactor) {
		t.Fatalf("expected ErrBreaksHealthFactor, got %v", err)
	}
	position := engine.Position(account)
	if position.CollateralBalance(weth).Cmp(wei(10)) != 0 {
		t.Fatalf("failed redeem must not change collateral, got %s", position.CollateralBalance(weth))
	}

	if _, err := engine.BurnDSC(ctx, account, wei(9_000)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	snapshot, err := engine.RedeemCollateral(ctx, account, weth, wei(10))
	if err != nil {
		t.Fatalf("redeem after burn: %v", err)
	}
	if snapshot.CollateralUSD.Sign() != 0 {
		t.Fatalf("expected empty position, got %s", snapshot.CollateralUSD)
	}
}

func TestBurnDSCGuards(t *testing.T) {
	oracle := newMockOracle()
	oracle.setPrice(weth, 2000)
	engine := newTestEngine(t, oracle)
	account := makeAddress(0x05)
	ctx := context.Background()

	if _, err := engine.DepositCollateral(ctx, account, weth, wei(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.MintDSC(ctx, account, wei(5_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := engine.BurnDSC(ctx, account, wei(6_000)); !errors.Is(err, ErrInsufficientDebt) {
		t.Fatalf("expected ErrInsufficientDebt, got %v", err)
	}
	if debt := engine.Position(account).Debt; debt.Cmp(wei(5_000)) != 0 {
		t.Fatalf("failed burn must not change debt, got %s", debt)
	}
	if _, err := engine.BurnDSC(ctx, account, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	snapshot, err := engine.BurnDSC(ctx, account, wei(5_000))
	if err != nil {
		t.Fatalf("burn all: %v", err)
	}
	if snapshot.HealthFactor.Cmp(MaxHealthFactor) != 0 {
		t.Fatalf("debt-free position should be maximally healthy, got %s", snapshot.HealthFactor)
	}
}

func TestRedeemCollateralForDSC(t *testing.T) {
	oracle := newMockOracle()
	oracle.setPrice(weth, 2000)
	engine := newTestEngine(t, oracle)
	account := makeAddress(0x06)
	ctx := context.Background()

	if _, err := engine.DepositCollateral(ctx, account, weth, wei(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.MintDSC(ctx, account, wei(9_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// A plain redeem of 4 WETH would break the health factor, but burning
	// 5_000 DSC in the same transition keeps the position healthy:
	// 6 WETH = 12_000 USD, 6_000 adjusted against 4_000 debt.
	snapshot, err := engine.RedeemCollateralForDSC(ctx, account, weth, wei(4), wei(5_000))
	if err != nil {
		t.Fatalf("redeem for dsc: %v", err)
	}
	if snapshot.Debt.Cmp(wei(4_000)) != 0 {
		t.Fatalf("unexpected debt: %s", snapshot.Debt)
	}
	if balance := engine.Position(account).CollateralBalance(weth); balance.Cmp(wei(6)) != 0 {
		t.Fatalf("unexpected collateral: %s", balance)
	}
}

func TestOracleOutageAbortsOperation(t *testing.T) {
	oracle := newMockOracle()
	oracle.setPrice(weth, 2000)
	engine := newTestEngine(t, oracle)
	account := makeAddress(0x07)
	ctx := context.Background()

	if _, err := engine.DepositCollateral(ctx, account, weth, wei(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	oracle.err = errors.New("feed down")
	if _, err := engine.DepositCollateral(ctx, account, weth, wei(1)); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
	if _, err := engine.MintDSC(ctx, account, wei(1_000)); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}

	position := engine.Position(account)
	if position.CollateralBalance(weth).Cmp(wei(10)) != 0 || position.Debt.Sign() != 0 {
		t.Fatalf("oracle outage must not commit changes: collateral=%s debt=%s",
			position.CollateralBalance(weth), position.Debt)
	}
}

func TestMultiAssetCollateralValuation(t *testing.T) {
	oracle := newMockOracle()
	oracle.setPrice(weth, 2000)
	oracle.setPrice(wbtc, 60_000)
	engine := newTestEngine(t, oracle)
	account := makeAddress(0x08)
	ctx := context.Background()

	if _, err := engine.DepositCollateral(ctx, account, weth, wei(5)); err != nil {
		t.Fatalf("deposit weth: %v", err)
	}
	snapshot, err := engine.DepositCollateral(ctx, account, wbtc, wei(1))
	if err != nil {
		t.Fatalf("deposit wbtc: %v", err)
	}
	if snapshot.CollateralUSD.Cmp(wei(70_000)) != 0 {
		t.Fatalf("unexpected collateral value: %s", snapshot.CollateralUSD)
	}

	debt, collateralUSD, err := engine.GetAccountInformation(ctx, account)
	if err != nil {
		t.Fatalf("account information: %v", err)
	}
	if debt.Sign() != 0 || collateralUSD.Cmp(wei(70_000)) != 0 {
		t.Fatalf("unexpected account information: debt=%s collateral=%s", debt, collateralUSD)
	}
}
