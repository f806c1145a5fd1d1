package dsc

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AssetRegistry holds the approved collateral assets. It is constructed once
// from configuration and is read-only afterwards; adding an asset is an
// out-of-band reconfiguration, not an engine operation.
type AssetRegistry struct {
	assets map[common.Address]AssetInfo
	order  []common.Address
}

// NewAssetRegistry validates and indexes the configured assets.
func NewAssetRegistry(assets []AssetInfo) (*AssetRegistry, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("asset registry: at least one collateral asset required")
	}
	registry := &AssetRegistry{
		assets: make(map[common.Address]AssetInfo, len(assets)),
		order:  make([]common.Address, 0, len(assets)),
	}
	for _, asset := range assets {
		if asset.Address == (common.Address{}) {
			return nil, fmt.Errorf("asset registry: %s missing address", asset.Symbol)
		}
		if strings.TrimSpace(asset.Symbol) == "" {
			return nil, fmt.Errorf("asset registry: %s missing symbol", asset.Address.Hex())
		}
		if asset.Decimals == 0 {
			return nil, fmt.Errorf("asset registry: %s missing decimals", asset.Symbol)
		}
		if _, exists := registry.assets[asset.Address]; exists {
			return nil, fmt.Errorf("asset registry: duplicate asset %s", asset.Address.Hex())
		}
		registry.assets[asset.Address] = asset
		registry.order = append(registry.order, asset.Address)
	}
	return registry, nil
}

// IsSupported reports whether the asset is registered as collateral.
func (r *AssetRegistry) IsSupported(asset common.Address) bool {
	if r == nil {
		return false
	}
	_, ok := r.assets[asset]
	return ok
}

// Get returns the registered metadata for the asset.
func (r *AssetRegistry) Get(asset common.Address) (AssetInfo, error) {
	if r == nil {
		return AssetInfo{}, ErrUnsupportedAsset
	}
	info, ok := r.assets[asset]
	if !ok {
		return AssetInfo{}, ErrUnsupportedAsset
	}
	return info, nil
}

// Assets returns the registered assets in configuration order.
func (r *AssetRegistry) Assets() []AssetInfo {
	if r == nil {
		return nil
	}
	out := make([]AssetInfo, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.assets[addr])
	}
	return out
}
