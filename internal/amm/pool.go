// Package amm models constant-product liquidity pools: per-poll pool
// snapshots, spot pricing, swap output math, and the ring-buffer moving
// average the arbitrage engine keeps per pool.
package amm

import (
	"fmt"
	"math/big"
)

// PoolState is an immutable snapshot of one liquidity pool's on-chain state
// at a single poll. The engine never mutates a PoolState; each poll produces
// a fresh one.
type PoolState struct {
	PoolID   uint64     `json:"pool_id"`
	TokenIDs []string   `json:"token_ids"`
	Reserves []*big.Int `json:"reserves"`
	// FeeBps is the pool's own fee in basis points. Retained from the
	// contract response for reporting; scan math uses the flat exchange
	// fee from configuration.
	FeeBps   uint32   `json:"fee_bps"`
	LPSupply *big.Int `json:"lp_supply"`
}

// IsTwoToken reports whether the pool is a plain two-token pool.
// Stable-swap and rated pools with other token counts are never tracked.
func (p *PoolState) IsTwoToken() bool {
	return p != nil && len(p.TokenIDs) == 2 && len(p.Reserves) == 2
}

// Price returns the instantaneous spot price as token1-per-token0 computed
// on raw reserve units. This assumes equal token decimals on both sides;
// pairs with mismatched decimals need the valuer hook below to report
// meaningful USD liquidity, but relative price moves are still correct.
func (p *PoolState) Price() float64 {
	if !p.IsTwoToken() {
		return 0
	}
	r0, _ := new(big.Float).SetInt(p.Reserves[0]).Float64()
	r1, _ := new(big.Float).SetInt(p.Reserves[1]).Float64()
	if r0 <= 0 {
		return 0
	}
	return r1 / r0
}

// Validate returns a descriptive error for snapshots the engine cannot track.
func (p *PoolState) Validate() error {
	if p == nil {
		return fmt.Errorf("nil pool state")
	}
	if len(p.TokenIDs) != 2 {
		return fmt.Errorf("pool %d has %d tokens, engine tracks 2-token pools only", p.PoolID, len(p.TokenIDs))
	}
	if len(p.Reserves) != 2 {
		return fmt.Errorf("pool %d has %d reserves, want 2", p.PoolID, len(p.Reserves))
	}
	if p.Reserves[0] == nil || p.Reserves[1] == nil {
		return fmt.Errorf("pool %d has nil reserves", p.PoolID)
	}
	return nil
}

// LiquidityValuer converts one side of a pool's reserves into an approximate
// USD figure. The default assumes the second token is a stablecoin-pegged
// asset with a fixed decimal count; deployments with heterogeneous pairs
// should plug a price-oracle-backed valuer instead.
type LiquidityValuer interface {
	LiquidityUSD(pool *PoolState) float64
}

// FixedDecimalValuer values liquidity as reserves[1] / 10^Decimals.
// It is a heuristic, not USD-accurate: correct only when token1 is a
// 1:1 USD-pegged asset with exactly Decimals decimals.
type FixedDecimalValuer struct {
	Decimals int
}

// LiquidityUSD implements LiquidityValuer.
func (v FixedDecimalValuer) LiquidityUSD(pool *PoolState) float64 {
	if !pool.IsTwoToken() {
		return 0
	}
	r1, _ := new(big.Float).SetInt(pool.Reserves[1]).Float64()
	scale := pow10(v.Decimals)
	if scale == 0 {
		return 0
	}
	return r1 / scale
}

// DecimalsValuer values reserves[1] using per-token decimals, falling
// back to Default for tokens missing from the map. Same stablecoin
// heuristic as FixedDecimalValuer, just decimal-aware per token.
type DecimalsValuer struct {
	Decimals map[string]int
	Default  int
}

// LiquidityUSD implements LiquidityValuer.
func (v DecimalsValuer) LiquidityUSD(pool *PoolState) float64 {
	if !pool.IsTwoToken() {
		return 0
	}
	decimals, ok := v.Decimals[pool.TokenIDs[1]]
	if !ok {
		decimals = v.Default
	}
	r1, _ := new(big.Float).SetInt(pool.Reserves[1]).Float64()
	scale := pow10(decimals)
	if scale == 0 {
		return 0
	}
	return r1 / scale
}

func pow10(n int) float64 {
	scale := 1.0
	for i := 0; i < n; i++ {
		scale *= 10
	}
	return scale
}
