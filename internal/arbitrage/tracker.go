package arbitrage

import (
	"fmt"

	"github.com/fastnear/ref-arb-monitor/internal/amm"
)

// PoolTracker owns one pool's latest snapshot plus its trailing price
// average. Price is quoted as token1 per token0 in reserve order.
type PoolTracker struct {
	poolID              uint64
	tokenPair           [2]string
	currentPrice        float64
	currentLiquidityUSD float64
	movingAverage       *amm.MovingAverageTracker
	lastState           *amm.PoolState
}

// newPoolTracker creates a tracker seeded with the pool's initial state so
// price and liquidity are valid before the first external tick arrives.
func newPoolTracker(pool *amm.PoolState, window int, valuer amm.LiquidityValuer) (*PoolTracker, error) {
	if !pool.IsTwoToken() {
		return nil, fmt.Errorf("pool %d is not a two-token pool", pool.PoolID)
	}
	ma, err := amm.NewMovingAverageTracker(window)
	if err != nil {
		return nil, fmt.Errorf("pool %d: %w", pool.PoolID, err)
	}
	t := &PoolTracker{
		poolID:        pool.PoolID,
		tokenPair:     [2]string{pool.TokenIDs[0], pool.TokenIDs[1]},
		movingAverage: ma,
	}
	t.update(pool, valuer)
	return t, nil
}

// update ingests a fresh snapshot and returns the previous price so the
// caller can decide whether the move is worth a scan.
func (t *PoolTracker) update(pool *amm.PoolState, valuer amm.LiquidityValuer) (prevPrice float64) {
	prevPrice = t.currentPrice
	t.currentPrice = pool.Price()
	t.currentLiquidityUSD = valuer.LiquidityUSD(pool)
	t.lastState = pool
	t.movingAverage.Update(t.currentPrice)
	return prevPrice
}

// Price returns the latest token1-per-token0 price.
func (t *PoolTracker) Price() float64 {
	return t.currentPrice
}

// AveragePrice returns the trailing mean price over the tracker's window.
func (t *PoolTracker) AveragePrice() float64 {
	return t.movingAverage.Value()
}

// LiquidityUSD returns the latest liquidity estimate for the pool.
func (t *PoolTracker) LiquidityUSD() float64 {
	return t.currentLiquidityUSD
}

// TokenPair returns the pool's tokens in reserve order.
func (t *PoolTracker) TokenPair() (string, string) {
	return t.tokenPair[0], t.tokenPair[1]
}

// State returns the most recent snapshot ingested for this pool.
func (t *PoolTracker) State() *amm.PoolState {
	return t.lastState
}

// orientedPrice returns the pool's exchange rate in the from→to direction,
// or 0 if the pool does not carry that edge or has no valid price.
func (t *PoolTracker) orientedPrice(from, to string) float64 {
	if t.currentPrice <= 0 {
		return 0
	}
	switch {
	case t.tokenPair[0] == from && t.tokenPair[1] == to:
		return t.currentPrice
	case t.tokenPair[1] == from && t.tokenPair[0] == to:
		return 1 / t.currentPrice
	}
	return 0
}
