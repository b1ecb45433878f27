// Package arbitrage implements the real-time opportunity detection core:
// per-pool price tracking with trailing averages, incremental two-hop and
// triangle path discovery, and the anomaly-gated scan that turns pool
// updates into ranked opportunities.
package arbitrage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fastnear/ref-arb-monitor/internal/amm"
	"github.com/fastnear/ref-arb-monitor/internal/platform/observability"
)

// liquidityConfidenceScale is the liquidity level (USD heuristic) at which
// the confidence liquidity factor saturates at 1.
const liquidityConfidenceScale = 10_000

// Engine owns all pool trackers and the path index, and scans for
// opportunities on each pool update. It is single-threaded with respect to
// its own state: callers must serialize RegisterPool/OnPoolUpdate, e.g.
// behind a mutex or a single consumer goroutine. Nothing inside blocks.
type Engine struct {
	trackers      map[uint64]*PoolTracker
	paths         *PathIndex
	valuer        amm.LiquidityValuer
	fee           float64 // per-swap fee, fraction
	minProfit     float64 // minimum net profit, fraction
	moveThreshold float64 // minimum relative price move to scan, fraction
	maWindow      int
	scanLatencies *latencyRing
	logger        *observability.Logger
	metrics       *observability.Metrics
}

// EngineConfig holds engine configuration. Percentages are human units
// (0.25 means 0.25%); the engine converts to fractions internally.
type EngineConfig struct {
	FeePct                float64
	MinProfitPct          float64
	MovingAverageWindow   int
	PriceMoveThresholdPct float64
	LiquidityValuer       amm.LiquidityValuer
	Logger                *observability.Logger
	Metrics               *observability.Metrics
}

// NewEngine creates a new arbitrage engine
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Set defaults
	if cfg.FeePct == 0 {
		cfg.FeePct = 0.25 // flat Ref Finance simple-pool fee
	}
	if cfg.MinProfitPct == 0 {
		cfg.MinProfitPct = 0.3
	}
	if cfg.MovingAverageWindow == 0 {
		cfg.MovingAverageWindow = 50
	}
	if cfg.PriceMoveThresholdPct == 0 {
		cfg.PriceMoveThresholdPct = 0.05
	}
	if cfg.LiquidityValuer == nil {
		cfg.LiquidityValuer = amm.FixedDecimalValuer{Decimals: 24}
	}

	if cfg.FeePct < 0 || cfg.MinProfitPct < 0 {
		return nil, fmt.Errorf("fee and min profit must be non-negative")
	}
	if cfg.MovingAverageWindow < 1 {
		return nil, fmt.Errorf("moving average window must be >= 1, got %d", cfg.MovingAverageWindow)
	}

	return &Engine{
		trackers:      make(map[uint64]*PoolTracker),
		paths:         NewPathIndex(),
		valuer:        cfg.LiquidityValuer,
		fee:           cfg.FeePct / 100,
		minProfit:     cfg.MinProfitPct / 100,
		moveThreshold: cfg.PriceMoveThresholdPct / 100,
		maWindow:      cfg.MovingAverageWindow,
		scanLatencies: newLatencyRing(scanLatencyCapacity),
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}, nil
}

// RegisterPool starts tracking a pool and discovers the paths it completes.
// Pools without exactly two tokens are skipped, as are duplicates. Returns
// whether the pool is now tracked for the first time.
func (e *Engine) RegisterPool(pool *amm.PoolState) bool {
	if pool == nil || !pool.IsTwoToken() {
		e.logger.Debug("skipping pool with unsupported token count",
			"pool_id", poolIDOf(pool))
		return false
	}
	if _, exists := e.trackers[pool.PoolID]; exists {
		e.logger.Debug("pool already registered", "pool_id", pool.PoolID)
		return false
	}

	tracker, err := newPoolTracker(pool, e.maWindow, e.valuer)
	if err != nil {
		e.logger.Warn("failed to create pool tracker", "pool_id", pool.PoolID, "error", err)
		return false
	}
	e.trackers[pool.PoolID] = tracker
	e.paths.AddPool(pool.PoolID, pool.TokenIDs[0], pool.TokenIDs[1])

	e.logger.Info("registered pool",
		"pool_id", pool.PoolID,
		"tokens", pool.TokenIDs,
		"price", tracker.Price(),
		"liquidity_usd", tracker.LiquidityUSD(),
		"two_hop_paths", e.paths.TwoHopCount(),
		"triangle_paths", e.paths.TriangleCount(),
	)
	return true
}

func poolIDOf(pool *amm.PoolState) uint64 {
	if pool == nil {
		return 0
	}
	return pool.PoolID
}

// OnPoolUpdate ingests a fresh snapshot for a tracked pool and returns the
// best opportunity among the paths touching that pool, or nil. Updates for
// unregistered pools are a silent no-op so a registration race never turns
// into a hard error. Scans only run when the price moved enough to matter.
func (e *Engine) OnPoolUpdate(ctx context.Context, pool *amm.PoolState) *Opportunity {
	if pool == nil {
		return nil
	}
	tracker, ok := e.trackers[pool.PoolID]
	if !ok {
		return nil
	}

	prevPrice := tracker.update(pool, e.valuer)
	if e.metrics != nil {
		e.metrics.RecordPoolUpdate(ctx, pool.PoolID)
	}

	if prevPrice > 0 {
		move := math.Abs(tracker.Price()-prevPrice) / prevPrice
		if move < e.moveThreshold {
			return nil
		}
	} else if tracker.Price() <= 0 {
		return nil
	}

	start := time.Now()
	opp := e.scan(pool.PoolID)
	elapsed := time.Since(start)

	e.scanLatencies.record(elapsed)
	if e.metrics != nil {
		e.metrics.RecordScanDuration(ctx, elapsed)
	}

	if opp != nil {
		e.logger.Info("opportunity detected",
			"opportunity_id", opp.OpportunityID,
			"kind", opp.Kind.String(),
			"pool_ids", opp.PoolIDs,
			"spread_pct", opp.Spread*100,
			"estimated_profit_pct", opp.EstimatedProfitPct*100,
			"confidence", opp.Confidence,
			"scan_us", elapsed.Microseconds(),
		)
		if e.metrics != nil {
			e.metrics.RecordOpportunity(ctx, opp.Kind.String(), opp.Spread*100, opp.EstimatedProfitPct*100)
		}
	}
	return opp
}

// scan evaluates only the paths referencing the updated pool and returns
// the single highest-spread candidate. Two-hop and triangle candidates
// compete directly on spread magnitude.
func (e *Engine) scan(poolID uint64) *Opportunity {
	var best *Opportunity

	for _, path := range e.paths.TwoHopsFor(poolID) {
		if cand := e.evaluateTwoHop(path); cand != nil {
			if best == nil || cand.Spread > best.Spread {
				best = cand
			}
		}
	}
	for _, path := range e.paths.TrianglesFor(poolID) {
		if cand := e.evaluateTriangle(path); cand != nil {
			if best == nil || cand.Spread > best.Spread {
				best = cand
			}
		}
	}
	return best
}

// relativeSpread is the relative divergence of two prices, always >= 0.
func relativeSpread(a, b float64) float64 {
	return math.Abs(a-b) / math.Min(a, b)
}

func (e *Engine) evaluateTwoHop(path TwoHopPath) *Opportunity {
	ta := e.trackers[path.PoolA]
	tb := e.trackers[path.PoolB]
	if ta == nil || tb == nil {
		return nil
	}
	pa, pb := ta.Price(), tb.Price()
	if pa <= 0 || pb <= 0 {
		return nil
	}

	spread := relativeSpread(pa, pb)

	// Baseline divergence from the trailing averages. Without a usable
	// baseline the spread is its own baseline, which fails the anomaly
	// gate rather than crashing.
	maSpread := spread
	if maA, maB := ta.AveragePrice(), tb.AveragePrice(); maA > 0 && maB > 0 {
		maSpread = relativeSpread(maA, maB)
	}

	// Only a sudden widening counts. A persistently wide spread converges
	// into the baseline and stops firing.
	if spread <= 2*maSpread {
		return nil
	}

	profit := spread - 2*e.fee
	if profit <= e.minProfit {
		return nil
	}

	liqA, liqB := ta.LiquidityUSD(), tb.LiquidityUSD()

	anomaly := 1.0
	if maSpread > 0 {
		anomaly = math.Min(1, spread/maSpread)
	}
	liquidity := math.Min(1, math.Min(liqA, liqB)/liquidityConfidenceScale)

	t0, t1 := ta.TokenPair()
	opp := NewOpportunity(TwoHop)
	opp.PoolIDs = []uint64{path.PoolA, path.PoolB}
	opp.Tokens = []string{t0, t1}
	opp.Prices = []float64{pa, pb}
	opp.Spread = spread
	opp.MovingAverageSpread = maSpread
	opp.EstimatedProfitPct = profit
	opp.LiquidityUSD = []float64{liqA, liqB}
	opp.Confidence = anomaly * liquidity
	return opp
}

func (e *Engine) evaluateTriangle(path TrianglePath) *Opportunity {
	tab := e.trackers[path.PoolAB]
	tbc := e.trackers[path.PoolBC]
	tca := e.trackers[path.PoolCA]
	if tab == nil || tbc == nil || tca == nil {
		return nil
	}

	pab := tab.orientedPrice(path.TokenA, path.TokenB)
	pbc := tbc.orientedPrice(path.TokenB, path.TokenC)
	pca := tca.orientedPrice(path.TokenC, path.TokenA)
	if pab <= 0 || pbc <= 0 || pca <= 0 {
		return nil
	}

	// Walking the cycle once at fair prices multiplies to exactly 1.
	compound := pab * pbc * pca
	spread := math.Abs(compound - 1)

	profit := spread - 3*e.fee
	if profit <= e.minProfit {
		return nil
	}

	liqs := []float64{tab.LiquidityUSD(), tbc.LiquidityUSD(), tca.LiquidityUSD()}
	minLiq := math.Min(liqs[0], math.Min(liqs[1], liqs[2]))

	anomaly := 1.0
	if feeFloor := 3 * e.fee; feeFloor > 0 {
		anomaly = math.Min(1, spread/feeFloor)
	}
	liquidity := math.Min(1, minLiq/liquidityConfidenceScale)

	opp := NewOpportunity(Triangle)
	opp.PoolIDs = []uint64{path.PoolAB, path.PoolBC, path.PoolCA}
	opp.Tokens = []string{path.TokenA, path.TokenB, path.TokenC}
	opp.Prices = []float64{pab, pbc, pca}
	opp.Spread = spread
	opp.MovingAverageSpread = 0
	opp.EstimatedProfitPct = profit
	opp.LiquidityUSD = liqs
	opp.Confidence = anomaly * liquidity
	return opp
}

// CalculateProfit estimates gross profit for executing the opportunity at
// the given trade size: captured spread minus the per-swap fee on every hop.
func (e *Engine) CalculateProfit(opp *Opportunity, tradeSizeUSD float64) float64 {
	if opp == nil || tradeSizeUSD <= 0 {
		return 0
	}
	return tradeSizeUSD*opp.Spread - tradeSizeUSD*e.fee*float64(opp.HopCount())
}

// FeePct returns the configured per-swap fee in percent.
func (e *Engine) FeePct() float64 {
	return e.fee * 100
}

// TrackedPools returns the number of registered pools.
func (e *Engine) TrackedPools() int {
	return len(e.trackers)
}

// PoolState returns the latest snapshot for a tracked pool.
func (e *Engine) PoolState(poolID uint64) (*amm.PoolState, bool) {
	tracker, ok := e.trackers[poolID]
	if !ok {
		return nil, false
	}
	return tracker.State(), true
}

// PathCounts returns the number of discovered two-hop and triangle paths.
func (e *Engine) PathCounts() (twoHop, triangle int) {
	return e.paths.TwoHopCount(), e.paths.TriangleCount()
}
