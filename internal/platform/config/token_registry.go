package config

import "fmt"

// TokenInfo contains token metadata for registered pools
type TokenInfo struct {
	Symbol       string // Display symbol (NEAR, USDC, etc.)
	AccountID    string // NEP-141 token contract account
	Decimals     int    // Token decimals (24 for wNEAR, 6 for USDC/USDT)
	IsStablecoin bool   // Whether this is a stablecoin
}

// TokenRegistry maps NEP-141 token account IDs to their metadata.
// A hardcoded registry of the well-known tokens the monitored pools use;
// tokens missing here fall back to the configured default decimals.
var TokenRegistry = map[string]TokenInfo{
	"wrap.near": {
		Symbol:       "NEAR",
		AccountID:    "wrap.near",
		Decimals:     24,
		IsStablecoin: false,
	},
	"usdt.tether-token.near": {
		Symbol:       "USDT",
		AccountID:    "usdt.tether-token.near",
		Decimals:     6,
		IsStablecoin: true,
	},
	"17208628f84f5d6ad33f0da3bbbeb27ffcb398eac501a31bd6ad2011e36133a1": {
		Symbol:       "USDC.e",
		AccountID:    "17208628f84f5d6ad33f0da3bbbeb27ffcb398eac501a31bd6ad2011e36133a1",
		Decimals:     6,
		IsStablecoin: true,
	},
	"token.v2.ref-finance.near": {
		Symbol:       "REF",
		AccountID:    "token.v2.ref-finance.near",
		Decimals:     18,
		IsStablecoin: false,
	},
	"aurora": {
		Symbol:       "ETH",
		AccountID:    "aurora",
		Decimals:     18,
		IsStablecoin: false,
	},
	"token.burrow.near": {
		Symbol:       "BRRR",
		AccountID:    "token.burrow.near",
		Decimals:     18,
		IsStablecoin: false,
	},
}

// LookupToken returns metadata for a token account ID.
func LookupToken(accountID string) (TokenInfo, error) {
	info, ok := TokenRegistry[accountID]
	if !ok {
		return TokenInfo{}, fmt.Errorf("unknown token: %s", accountID)
	}
	return info, nil
}

// TokenDecimals returns a token account ID → decimals map for liquidity
// valuation.
func TokenDecimals() map[string]int {
	decimals := make(map[string]int, len(TokenRegistry))
	for id, info := range TokenRegistry {
		decimals[id] = info.Decimals
	}
	return decimals
}

// TokenSymbol returns a display symbol for a token account ID, falling
// back to the account ID itself.
func TokenSymbol(accountID string) string {
	if info, ok := TokenRegistry[accountID]; ok {
		return info.Symbol
	}
	return accountID
}
