package arbitrage

import (
	"context"
	"math"
	"math/big"
	"testing"

	"github.com/fastnear/ref-arb-monitor/internal/amm"
	"github.com/fastnear/ref-arb-monitor/internal/platform/observability"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{
		Logger: observability.NewLogger("error", "text"),
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

// testPool builds a two-token snapshot with reserves in whole units scaled
// by 1e24, so price = r1/r0 and the liquidity heuristic reads r1 in USD.
func testPool(id uint64, token0, token1 string, r0, r1 float64) *amm.PoolState {
	scale := new(big.Float).SetFloat64(1e24)
	res0, _ := new(big.Float).Mul(new(big.Float).SetFloat64(r0), scale).Int(nil)
	res1, _ := new(big.Float).Mul(new(big.Float).SetFloat64(r1), scale).Int(nil)
	return &amm.PoolState{
		PoolID:   id,
		TokenIDs: []string{token0, token1},
		Reserves: []*big.Int{res0, res1},
		FeeBps:   25,
		LPSupply: big.NewInt(1),
	}
}

func TestTwoHopDetectionAfterStableBaseline(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	// Two deep pools on the same pair, both priced at 1.0.
	if !engine.RegisterPool(testPool(1, "wrap.near", "usdc.near", 100_000, 100_000)) {
		t.Fatal("pool 1 registration failed")
	}
	if !engine.RegisterPool(testPool(2, "wrap.near", "usdc.near", 100_000, 100_000)) {
		t.Fatal("pool 2 registration failed")
	}

	// Build a stable baseline: ten flat ticks per pool.
	for i := 0; i < 10; i++ {
		if opp := engine.OnPoolUpdate(ctx, testPool(1, "wrap.near", "usdc.near", 100_000, 100_000)); opp != nil {
			t.Fatalf("baseline tick produced opportunity: %+v", opp)
		}
		if opp := engine.OnPoolUpdate(ctx, testPool(2, "wrap.near", "usdc.near", 100_000, 100_000)); opp != nil {
			t.Fatalf("baseline tick produced opportunity: %+v", opp)
		}
	}

	// Pool 2 suddenly reprices 20% above pool 1.
	opp := engine.OnPoolUpdate(ctx, testPool(2, "wrap.near", "usdc.near", 100_000, 120_000))
	if opp == nil {
		t.Fatal("expected opportunity on sudden divergence")
	}
	if opp.Kind != TwoHop {
		t.Errorf("Kind = %v, want TwoHop", opp.Kind)
	}
	if opp.Spread <= 0.05 {
		t.Errorf("Spread = %v, want > 0.05", opp.Spread)
	}
	if opp.EstimatedProfitPct <= engine.minProfit {
		t.Errorf("EstimatedProfitPct = %v, want > %v", opp.EstimatedProfitPct, engine.minProfit)
	}
	if opp.Confidence < 0 || opp.Confidence > 1 {
		t.Errorf("Confidence = %v, want within [0,1]", opp.Confidence)
	}
	if len(opp.PoolIDs) != 2 || len(opp.Prices) != 2 || len(opp.LiquidityUSD) != 2 {
		t.Errorf("two-hop opportunity should carry 2 pools/prices/liquidities: %+v", opp)
	}
}

func TestNoFalsePositiveOnStructuralSpread(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	// Persistent 5% spread between the pools from the start.
	engine.RegisterPool(testPool(1, "wrap.near", "usdc.near", 100_000, 100_000))
	engine.RegisterPool(testPool(2, "wrap.near", "usdc.near", 100_000, 105_000))

	// Both pools drift upward in lockstep, preserving the 5% gap. Every
	// tick moves the price 0.1% so the scan throttle never suppresses it.
	for i := 1; i <= 60; i++ {
		drift := 1 + 0.001*float64(i)
		if opp := engine.OnPoolUpdate(ctx, testPool(1, "wrap.near", "usdc.near", 100_000, 100_000*drift)); opp != nil {
			t.Fatalf("tick %d pool 1: structural spread flagged as opportunity: %+v", i, opp)
		}
		if opp := engine.OnPoolUpdate(ctx, testPool(2, "wrap.near", "usdc.near", 100_000, 105_000*drift)); opp != nil {
			t.Fatalf("tick %d pool 2: structural spread flagged as opportunity: %+v", i, opp)
		}
	}
}

func TestPriceMoveThrottle(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	engine.RegisterPool(testPool(1, "wrap.near", "usdc.near", 100_000, 100_000))
	engine.RegisterPool(testPool(2, "wrap.near", "usdc.near", 100_000, 100_000))

	// 0.02% move: below the 0.05% threshold, no scan at all.
	if opp := engine.OnPoolUpdate(ctx, testPool(2, "wrap.near", "usdc.near", 100_000, 100_020)); opp != nil {
		t.Fatalf("sub-threshold move returned opportunity: %+v", opp)
	}
	if n := engine.ScanStats().Count; n != 0 {
		t.Errorf("scan count after sub-threshold move = %d, want 0", n)
	}

	// 1% move: scan runs (whatever its outcome).
	engine.OnPoolUpdate(ctx, testPool(2, "wrap.near", "usdc.near", 100_000, 101_020))
	if n := engine.ScanStats().Count; n != 1 {
		t.Errorf("scan count after 1%% move = %d, want 1", n)
	}
}

func TestScanStatsPercentiles(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	engine.RegisterPool(testPool(1, "wrap.near", "usdc.near", 100_000, 100_000))
	engine.RegisterPool(testPool(2, "wrap.near", "usdc.near", 100_000, 100_000))

	// Every tick moves the price 0.1% so each update runs a scan.
	scans := 25
	for i := 1; i <= scans; i++ {
		drift := 1 + 0.001*float64(i)
		engine.OnPoolUpdate(ctx, testPool(1, "wrap.near", "usdc.near", 100_000, 100_000*drift))
	}

	stats := engine.ScanStats()
	if stats.Count != scans {
		t.Fatalf("Count = %d, want %d", stats.Count, scans)
	}
	if stats.Max <= 0 {
		t.Errorf("Max = %v, want > 0", stats.Max)
	}
	if stats.P50 > stats.P95 || stats.P95 > stats.P99 || stats.P99 > stats.Max {
		t.Errorf("percentiles out of order: p50=%v p95=%v p99=%v max=%v",
			stats.P50, stats.P95, stats.P99, stats.Max)
	}
}

func TestUnknownPoolUpdateIsNoOp(t *testing.T) {
	engine := newTestEngine(t)

	opp := engine.OnPoolUpdate(context.Background(), testPool(99, "a.near", "b.near", 1000, 1000))
	if opp != nil {
		t.Errorf("update for unregistered pool returned %+v, want nil", opp)
	}
}

func TestInvalidPoolNeverEntersIndex(t *testing.T) {
	engine := newTestEngine(t)

	triToken := &amm.PoolState{
		PoolID:   7,
		TokenIDs: []string{"a.near", "b.near", "c.near"},
		Reserves: []*big.Int{big.NewInt(1), big.NewInt(1), big.NewInt(1)},
	}
	if engine.RegisterPool(triToken) {
		t.Fatal("three-token pool should not register")
	}
	if engine.TrackedPools() != 0 {
		t.Errorf("TrackedPools = %d, want 0", engine.TrackedPools())
	}
	twoHop, triangle := engine.PathCounts()
	if twoHop != 0 || triangle != 0 {
		t.Errorf("path counts = (%d, %d), want (0, 0)", twoHop, triangle)
	}
	if opp := engine.OnPoolUpdate(context.Background(), triToken); opp != nil {
		t.Errorf("rejected pool produced opportunity: %+v", opp)
	}
}

func TestFairTriangleNeverFires(t *testing.T) {
	engine := newTestEngine(t)

	// Prices 2 * 3 * 1/6 compound to exactly 1: an arbitrage-free cycle.
	engine.RegisterPool(testPool(1, "a.near", "b.near", 50_000, 100_000))
	engine.RegisterPool(testPool(2, "b.near", "c.near", 50_000, 150_000))
	engine.RegisterPool(testPool(3, "c.near", "a.near", 600_000, 100_000))

	_, triangles := engine.PathCounts()
	if triangles == 0 {
		t.Fatal("triangle path not discovered")
	}

	for _, poolID := range []uint64{1, 2, 3} {
		if opp := engine.scan(poolID); opp != nil {
			t.Errorf("fair triangle fired via pool %d: %+v", poolID, opp)
		}
	}
}

func TestSkewedTriangleFires(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	engine.RegisterPool(testPool(1, "a.near", "b.near", 50_000, 100_000))
	engine.RegisterPool(testPool(2, "b.near", "c.near", 50_000, 150_000))
	engine.RegisterPool(testPool(3, "c.near", "a.near", 600_000, 100_000))

	// Repricing the C→A leg 10% up makes the compound rate 1.1.
	opp := engine.OnPoolUpdate(ctx, testPool(3, "c.near", "a.near", 600_000, 110_000))
	if opp == nil {
		t.Fatal("expected triangle opportunity")
	}
	if opp.Kind != Triangle {
		t.Fatalf("Kind = %v, want Triangle", opp.Kind)
	}
	if math.Abs(opp.Spread-0.1) > 1e-6 {
		t.Errorf("Spread = %v, want ~0.1", opp.Spread)
	}
	if len(opp.PoolIDs) != 3 || len(opp.Prices) != 3 {
		t.Errorf("triangle opportunity should carry 3 pools/prices: %+v", opp)
	}
}

func TestCalculateProfit(t *testing.T) {
	engine := newTestEngine(t)

	twoHop := NewOpportunity(TwoHop)
	twoHop.Spread = 0.02

	triangle := NewOpportunity(Triangle)
	triangle.Spread = 0.02

	// fee 0.25% per swap: two hops cost 0.5%, three hops 0.75%.
	gotTwoHop := engine.CalculateProfit(twoHop, 1000)
	if math.Abs(gotTwoHop-15.0) > 1e-9 {
		t.Errorf("two-hop profit = %v, want 15.0", gotTwoHop)
	}
	gotTriangle := engine.CalculateProfit(triangle, 1000)
	if math.Abs(gotTriangle-12.5) > 1e-9 {
		t.Errorf("triangle profit = %v, want 12.5", gotTriangle)
	}

	if engine.CalculateProfit(nil, 1000) != 0 {
		t.Error("nil opportunity should yield 0 profit")
	}
	if engine.CalculateProfit(twoHop, 0) != 0 {
		t.Error("zero size should yield 0 profit")
	}
}

func TestOptimalSize(t *testing.T) {
	opp := NewOpportunity(TwoHop)
	opp.LiquidityUSD = []float64{50_000, 20_000}
	opp.Confidence = 0.5

	// 10% of the thinnest leg, scaled by confidence.
	if got := OptimalSize(opp); math.Abs(got-1000) > 1e-9 {
		t.Errorf("OptimalSize = %v, want 1000", got)
	}

	opp.LiquidityUSD = nil
	if got := OptimalSize(opp); got != 0 {
		t.Errorf("OptimalSize without liquidity = %v, want 0", got)
	}
}

func TestEngineConfigValidation(t *testing.T) {
	if _, err := NewEngine(EngineConfig{}); err == nil {
		t.Error("missing logger should fail construction")
	}
	if _, err := NewEngine(EngineConfig{
		Logger:              observability.NewLogger("error", "text"),
		MovingAverageWindow: -5,
	}); err == nil {
		t.Error("negative window should fail construction")
	}
}
