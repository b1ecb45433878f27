package amm

import "math/big"

// Constant-product swap math. Mirrors the on-chain x*y=k pricing so the
// risk gates can estimate execution impact without an RPC round trip.

// GetReturn computes the output amount for swapping amountIn against a
// constant-product pool with the given reserves, charging feeBps on the
// input side. Returns 0 for degenerate inputs.
func GetReturn(reserveIn, reserveOut, amountIn float64, feeBps uint32) float64 {
	if reserveIn <= 0 || reserveOut <= 0 || amountIn <= 0 {
		return 0
	}
	inAfterFee := amountIn * (1 - float64(feeBps)/10000)
	return reserveOut * inAfterFee / (reserveIn + inAfterFee)
}

// SlippagePct returns the price impact, in percent, of swapping amountIn
// against the given reserves. The trade is walked through the fee-free
// x*y=k curve and the effective rate compared to spot; swap fees are
// costed by the profit model, not here. A pool with an empty output side
// has no curve to walk and reports total impact.
func SlippagePct(reserveIn, reserveOut, amountIn float64) float64 {
	if reserveIn <= 0 || amountIn <= 0 {
		return 0
	}
	if reserveOut <= 0 {
		return 100
	}
	amountOut := GetReturn(reserveIn, reserveOut, amountIn, 0)
	if amountOut <= 0 {
		return 100
	}
	spot := reserveOut / reserveIn
	effective := amountOut / amountIn
	return (1 - effective/spot) * 100
}

// TradeSlippagePct estimates the total price impact, in percent, of pushing
// a trade of tradeUSD through each pool in legs, walking each leg's curve
// with the trade expressed as a fraction of that pool's quote-side reserve.
// Per-leg impacts are summed; for the small exposures the risk gates allow
// this is a tight upper bound on the compounded impact.
func TradeSlippagePct(legs []*PoolState, tradeUSD float64, valuer LiquidityValuer) float64 {
	if tradeUSD <= 0 {
		return 0
	}
	total := 0.0
	for _, pool := range legs {
		if !pool.IsTwoToken() {
			continue
		}
		liq := valuer.LiquidityUSD(pool)
		if liq <= 0 {
			// No price reference for this leg: treat the whole trade as
			// impact so the slippage gate rejects it.
			return 100
		}
		r0, _ := new(big.Float).SetInt(pool.Reserves[0]).Float64()
		r1, _ := new(big.Float).SetInt(pool.Reserves[1]).Float64()
		amountIn := r1 * (tradeUSD / liq)
		total += SlippagePct(r1, r0, amountIn)
	}
	return total
}
