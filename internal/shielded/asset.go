package shielded

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedAsset = errors.New("unsupported asset")

// Asset is a pool-supported token.
type Asset struct {
	Name     string
	Mint     string
	Decimals uint8
}

var (
	SOL  = Asset{Name: "sol", Mint: NativeMint, Decimals: 9}
	USDC = Asset{Name: "usdc", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6}
	USDT = Asset{Name: "usdt", Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6}
)

var assets = []Asset{SOL, USDC, USDT}

// IsNative reports the native SOL asset.
func (a Asset) IsNative() bool { return a.Mint == NativeMint }

// LookupAsset resolves an asset by name (case-insensitive) or mint address.
func LookupAsset(nameOrMint string) (Asset, error) {
	for _, a := range assets {
		if strings.EqualFold(a.Name, nameOrMint) || a.Mint == nameOrMint {
			return a, nil
		}
	}
	return Asset{}, fmt.Errorf("%w: %q", ErrUnsupportedAsset, nameOrMint)
}

// SplAssets lists the supported non-native assets.
func SplAssets() []Asset {
	var out []Asset
	for _, a := range assets {
		if !a.IsNative() {
			out = append(out, a)
		}
	}
	return out
}
