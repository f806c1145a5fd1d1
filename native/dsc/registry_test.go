package dsc

import (
	"errors"
	"testing"
)

func TestAssetRegistryValidation(t *testing.T) {
	valid := AssetInfo{Address: weth, Symbol: "WETH", Decimals: 18, FeedPair: "ETH/USD"}

	cases := []struct {
		name   string
		assets []AssetInfo
	}{
		{name: "empty", assets: nil},
		{name: "zero address", assets: []AssetInfo{{Symbol: "WETH", Decimals: 18}}},
		{name: "missing symbol", assets: []AssetInfo{{Address: weth, Decimals: 18}}},
		{name: "missing decimals", assets: []AssetInfo{{Address: weth, Symbol: "WETH"}}},
		{name: "duplicate", assets: []AssetInfo{valid, valid}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewAssetRegistry(tc.assets); err == nil {
				t.Fatal("expected constructor error")
			}
		})
	}
}

func TestAssetRegistryLookup(t *testing.T) {
	registry, err := NewAssetRegistry([]AssetInfo{
		{Address: weth, Symbol: "WETH", Decimals: 18, FeedPair: "ETH/USD"},
		{Address: wbtc, Symbol: "WBTC", Decimals: 8, FeedPair: "BTC/USD"},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if !registry.IsSupported(weth) {
		t.Fatal("weth should be supported")
	}
	if registry.IsSupported(makeAddress(0xFF)) {
		t.Fatal("unknown asset should not be supported")
	}

	info, err := registry.Get(wbtc)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info.Symbol != "WBTC" || info.Decimals != 8 {
		t.Fatalf("unexpected metadata: %+v", info)
	}
	if _, err := registry.Get(makeAddress(0xFF)); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}

	assets := registry.Assets()
	if len(assets) != 2 || assets[0].Address != weth || assets[1].Address != wbtc {
		t.Fatalf("assets must preserve configuration order: %+v", assets)
	}

	var nilRegistry *AssetRegistry
	if nilRegistry.IsSupported(weth) {
		t.Fatal("nil registry supports nothing")
	}
	if _, err := nilRegistry.Get(weth); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset from nil registry, got %v", err)
	}
	if got := nilRegistry.Assets(); got != nil {
		t.Fatalf("nil registry has no assets, got %+v", got)
	}
}

func TestHealthFactorMath(t *testing.T) {
	// 20_000 USD collateral against 9_000 debt: 10_000 adjusted, HF 1.111.
	hf := healthFactor(wei(20_000), wei(9_000))
	want := mustBigInt("1111111111111111111")
	if hf.Cmp(want) != 0 {
		t.Fatalf("want %s, got %s", want, hf)
	}

	if hf := healthFactor(wei(20_000), nil); hf.Cmp(MaxHealthFactor) != 0 {
		t.Fatalf("debt-free position must report the sentinel, got %s", hf)
	}
	if hf := healthFactor(wei(20_000), wei(0)); hf.Cmp(MaxHealthFactor) != 0 {
		t.Fatalf("zero debt must report the sentinel, got %s", hf)
	}
	if hf := healthFactor(nil, wei(100)); hf.Sign() != 0 {
		t.Fatalf("no collateral with debt must be zero, got %s", hf)
	}

	// Exactly 2x overcollateralised sits on the boundary.
	if hf := healthFactor(wei(2_000), wei(1_000)); hf.Cmp(MinHealthFactor()) != 0 {
		t.Fatalf("2x collateral must yield HF 1.0, got %s", hf)
	}
}

func TestSeizureWithBonus(t *testing.T) {
	if got := seizureWithBonus(wei(100)); got.Cmp(wei(110)) != 0 {
		t.Fatalf("want 110e18, got %s", got)
	}
	base := mustBigInt("3333333333333333333")
	want := mustBigInt("3666666666666666666")
	if got := seizureWithBonus(base); got.Cmp(want) != 0 {
		t.Fatalf("want %s, got %s", want, got)
	}
	if got := seizureWithBonus(nil); got.Sign() != 0 {
		t.Fatalf("nil base seizes nothing, got %s", got)
	}
}
