package dsc

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	weth = common.HexToAddress("0x000000000000000000000000000000000000beef")
	wbtc = common.HexToAddress("0x000000000000000000000000000000000000cafe")
)

func makeAddress(last byte) common.Address {
	var addr common.Address
	addr[len(addr)-1] = last
	return addr
}

// wei scales a whole-unit amount to 18 fractional digits.
func wei(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), scale)
}

type mockOracle struct {
	prices map[common.Address]*big.Int
	err    error
}

func newMockOracle() *mockOracle {
	return &mockOracle{prices: make(map[common.Address]*big.Int)}
}

func (o *mockOracle) setPrice(asset common.Address, usdPerUnit int64) {
	o.prices[asset] = wei(usdPerUnit)
}

func (o *mockOracle) USDValue(_ context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	if o.err != nil {
		return nil, o.err
	}
	price, ok := o.prices[asset]
	if !ok {
		return nil, fmt.Errorf("no price for %s", asset.Hex())
	}
	value := new(big.Int).Mul(amount, price)
	return value.Quo(value, scale), nil
}

func (o *mockOracle) TokenAmountFromUSD(_ context.Context, asset common.Address, usd *big.Int) (*big.Int, error) {
	if o.err != nil {
		return nil, o.err
	}
	price, ok := o.prices[asset]
	if !ok {
		return nil, fmt.Errorf("no price for %s", asset.Hex())
	}
	amount := new(big.Int).Mul(usd, scale)
	return amount.Quo(amount, price), nil
}

func newTestEngine(t *testing.T, oracle PriceOracle) *Engine {
	t.Helper()
	registry, err := NewAssetRegistry([]AssetInfo{
		{Address: weth, Symbol: "WETH", Decimals: 18, FeedPair: "ETH/USD"},
		{Address: wbtc, Symbol: "WBTC", Decimals: 18, FeedPair: "BTC/USD"},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return NewEngine(registry, oracle)
}
