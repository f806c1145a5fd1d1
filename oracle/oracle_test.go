package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var testAsset = common.HexToAddress("0x000000000000000000000000000000000000beef")

func weiUnits(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), scale)
}

func TestParsePair(t *testing.T) {
	pair, err := ParsePair(" eth/usd ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pair.Base != "ETH" || pair.Quote != "USD" {
		t.Fatalf("unexpected pair: %+v", pair)
	}
	if pair.String() != "ETH/USD" {
		t.Fatalf("unexpected string: %s", pair)
	}

	for _, raw := range []string{"", "ETH", "/USD", "ETH/", "/"} {
		if _, err := ParsePair(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestStaticOracleConversions(t *testing.T) {
	static, err := NewStaticOracle(map[common.Address]*big.Int{
		testAsset: weiUnits(2000),
	})
	if err != nil {
		t.Fatalf("new static oracle: %v", err)
	}
	ctx := context.Background()

	value, err := static.USDValue(ctx, testAsset, weiUnits(10))
	if err != nil {
		t.Fatalf("usd value: %v", err)
	}
	if value.Cmp(weiUnits(20_000)) != 0 {
		t.Fatalf("want 20000e18, got %s", value)
	}

	amount, err := static.TokenAmountFromUSD(ctx, testAsset, weiUnits(4_000))
	if err != nil {
		t.Fatalf("token amount: %v", err)
	}
	if amount.Cmp(weiUnits(2)) != 0 {
		t.Fatalf("want 2e18, got %s", amount)
	}

	if value, err := static.USDValue(ctx, testAsset, nil); err != nil || value.Sign() != 0 {
		t.Fatalf("nil amount must value to zero, got %s (%v)", value, err)
	}

	unknown := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	if _, err := static.USDValue(ctx, unknown, weiUnits(1)); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}

	static.SetPrice(testAsset, weiUnits(1000))
	value, err = static.USDValue(ctx, testAsset, weiUnits(10))
	if err != nil {
		t.Fatalf("usd value after reprice: %v", err)
	}
	if value.Cmp(weiUnits(10_000)) != 0 {
		t.Fatalf("want 10000e18 after reprice, got %s", value)
	}
}

func TestStaticOracleValidation(t *testing.T) {
	if _, err := NewStaticOracle(nil); err == nil {
		t.Fatal("expected error for empty price table")
	}
	if _, err := NewStaticOracle(map[common.Address]*big.Int{testAsset: big.NewInt(0)}); err == nil {
		t.Fatal("expected error for non-positive price")
	}
}

func TestComputeMedian(t *testing.T) {
	odd := []*big.Int{big.NewInt(30), big.NewInt(10), big.NewInt(20)}
	if got := computeMedian(odd); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("odd median: want 20, got %s", got)
	}
	even := []*big.Int{big.NewInt(10), big.NewInt(40), big.NewInt(20), big.NewInt(30)}
	if got := computeMedian(even); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("even median: want 25, got %s", got)
	}
	if got := computeMedian(nil); got != nil {
		t.Fatalf("empty median must be nil, got %s", got)
	}
}
