// Package risk gates detected opportunities against a live capital ledger
// and per-trade exposure limits. Rejections are data, not errors: every
// failed gate produces a fully populated assessment with a reason string.
package risk

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/fastnear/ref-arb-monitor/internal/amm"
	"github.com/fastnear/ref-arb-monitor/internal/arbitrage"
	"github.com/fastnear/ref-arb-monitor/internal/platform/observability"
)

// PoolLookup resolves a pool ID to its latest snapshot. The engine's
// PoolState method satisfies this.
type PoolLookup func(poolID uint64) (*amm.PoolState, bool)

// Assessment is the outcome of evaluating one opportunity.
type Assessment struct {
	Approved             bool    `json:"approved"`
	MaxTradeSizeUSD      float64 `json:"max_trade_size_usd"`
	EstimatedSlippagePct float64 `json:"estimated_slippage_pct"`
	PoolExposurePct      float64 `json:"pool_exposure_pct"`
	AvailableCapitalUSD  float64 `json:"available_capital_usd"`
	RejectionReason      string  `json:"rejection_reason,omitempty"`
}

// LedgerSnapshot is a point-in-time copy of the capital ledger for
// reporting threads; live fields are never exposed directly.
type LedgerSnapshot struct {
	TotalCapitalUSD     float64 `json:"total_capital_usd"`
	AllocatedCapitalUSD float64 `json:"allocated_capital_usd"`
	AvailableCapitalUSD float64 `json:"available_capital_usd"`
	CompletedTrades     uint64  `json:"completed_trades"`
	CumulativePnLUSD    float64 `json:"cumulative_pnl_usd"`
}

// Manager owns the capital ledger and the risk thresholds. Assessment
// never mutates the ledger; allocation is a separate explicit step.
type Manager struct {
	mu sync.Mutex

	totalCapitalUSD     float64
	allocatedCapitalUSD float64
	completedTrades     uint64
	cumulativePnLUSD    float64

	maxTradeSizeUSD    float64
	minProfitPct       float64
	maxSlippagePct     float64
	maxPoolExposurePct float64

	valuer  amm.LiquidityValuer
	logger  *observability.Logger
	metrics *observability.Metrics
}

// ManagerConfig holds risk manager configuration. Thresholds are percent
// values (0.3 means 0.3%).
type ManagerConfig struct {
	TotalCapitalUSD    float64
	MaxTradeSizeUSD    float64
	MinProfitPct       float64
	MaxSlippagePct     float64
	MaxPoolExposurePct float64
	LiquidityValuer    amm.LiquidityValuer
	Logger             *observability.Logger
	Metrics            *observability.Metrics
}

// NewManager creates a new risk manager
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.TotalCapitalUSD <= 0 {
		return nil, fmt.Errorf("total capital must be positive, got %.2f", cfg.TotalCapitalUSD)
	}
	if cfg.MaxTradeSizeUSD <= 0 {
		return nil, fmt.Errorf("max trade size must be positive, got %.2f", cfg.MaxTradeSizeUSD)
	}
	if cfg.MaxTradeSizeUSD > cfg.TotalCapitalUSD {
		return nil, fmt.Errorf("max trade size %.2f exceeds total capital %.2f",
			cfg.MaxTradeSizeUSD, cfg.TotalCapitalUSD)
	}
	if cfg.MinProfitPct < 0 || cfg.MaxSlippagePct <= 0 || cfg.MaxPoolExposurePct <= 0 {
		return nil, fmt.Errorf("risk thresholds must be positive")
	}
	if cfg.LiquidityValuer == nil {
		cfg.LiquidityValuer = amm.FixedDecimalValuer{Decimals: 24}
	}

	return &Manager{
		totalCapitalUSD:    cfg.TotalCapitalUSD,
		maxTradeSizeUSD:    cfg.MaxTradeSizeUSD,
		minProfitPct:       cfg.MinProfitPct,
		maxSlippagePct:     cfg.MaxSlippagePct,
		maxPoolExposurePct: cfg.MaxPoolExposurePct,
		valuer:             cfg.LiquidityValuer,
		logger:             cfg.Logger,
		metrics:            cfg.Metrics,
	}, nil
}

// AssessTrade runs the sequential risk gates against an opportunity.
// Deterministic and read-only with respect to the ledger.
func (m *Manager) AssessTrade(ctx context.Context, opp *arbitrage.Opportunity, lookup PoolLookup) Assessment {
	snap := m.Snapshot()
	available := snap.AvailableCapitalUSD

	// Gate 1: capital availability.
	if available <= 0 {
		return m.reject(ctx, "capital", Assessment{
			AvailableCapitalUSD: available,
			RejectionReason: fmt.Sprintf("no capital available: %.2f of %.2f allocated",
				snap.AllocatedCapitalUSD, snap.TotalCapitalUSD),
		})
	}

	// Gate 2: sizing. Advisory optimal size bounded by the configured cap
	// and by what is actually free.
	tradeSize := math.Min(arbitrage.OptimalSize(opp), math.Min(m.maxTradeSizeUSD, available))

	// Gate 3: minimum profit.
	if profitPct := opp.EstimatedProfitPct * 100; profitPct < m.minProfitPct {
		return m.reject(ctx, "min_profit", Assessment{
			MaxTradeSizeUSD:     tradeSize,
			AvailableCapitalUSD: available,
			RejectionReason: fmt.Sprintf("estimated profit %.4f%% below minimum %.4f%%",
				profitPct, m.minProfitPct),
		})
	}

	// Gate 4: slippage across the constant-product curves of every leg.
	legs := make([]*amm.PoolState, 0, len(opp.PoolIDs))
	for _, poolID := range opp.PoolIDs {
		state, ok := lookup(poolID)
		if !ok || state == nil {
			return m.reject(ctx, "slippage", Assessment{
				MaxTradeSizeUSD:     tradeSize,
				AvailableCapitalUSD: available,
				RejectionReason:     fmt.Sprintf("pool %d state unavailable for slippage estimate", poolID),
			})
		}
		legs = append(legs, state)
	}
	slippage := amm.TradeSlippagePct(legs, tradeSize, m.valuer)
	if slippage > m.maxSlippagePct {
		return m.reject(ctx, "slippage", Assessment{
			MaxTradeSizeUSD:      tradeSize,
			EstimatedSlippagePct: slippage,
			AvailableCapitalUSD:  available,
			RejectionReason: fmt.Sprintf("estimated slippage %.4f%% exceeds max %.4f%%",
				slippage, m.maxSlippagePct),
		})
	}

	// Gate 5: exposure against the thinnest leg.
	minLiquidity := opp.MinLiquidityUSD()
	if minLiquidity <= 0 {
		return m.reject(ctx, "exposure", Assessment{
			MaxTradeSizeUSD:      tradeSize,
			EstimatedSlippagePct: slippage,
			PoolExposurePct:      100,
			AvailableCapitalUSD:  available,
			RejectionReason:      "pool exposure unbounded: no liquidity reference on thinnest leg",
		})
	}
	exposure := tradeSize / minLiquidity * 100
	if exposure > m.maxPoolExposurePct {
		return m.reject(ctx, "exposure", Assessment{
			MaxTradeSizeUSD:      tradeSize,
			EstimatedSlippagePct: slippage,
			PoolExposurePct:      exposure,
			AvailableCapitalUSD:  available,
			RejectionReason: fmt.Sprintf("pool exposure %.4f%% exceeds max %.4f%%",
				exposure, m.maxPoolExposurePct),
		})
	}

	return Assessment{
		Approved:             true,
		MaxTradeSizeUSD:      tradeSize,
		EstimatedSlippagePct: slippage,
		PoolExposurePct:      exposure,
		AvailableCapitalUSD:  available,
	}
}

func (m *Manager) reject(ctx context.Context, gate string, a Assessment) Assessment {
	m.logger.Info("trade rejected",
		"gate", gate,
		"reason", a.RejectionReason,
	)
	if m.metrics != nil {
		m.metrics.RecordRiskRejection(ctx, gate)
	}
	return a
}

// AllocateCapital reserves capital for a trade about to execute. Fails on
// non-positive amounts and on over-allocation, leaving the ledger intact.
func (m *Manager) AllocateCapital(ctx context.Context, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount <= 0 {
		return fmt.Errorf("allocation must be positive, got %.2f", amount)
	}
	available := m.totalCapitalUSD - m.allocatedCapitalUSD
	if amount > available {
		return fmt.Errorf("allocation %.2f exceeds available capital %.2f", amount, available)
	}
	m.allocatedCapitalUSD += amount

	m.recordCapital(ctx)
	return nil
}

// ReleaseCapital returns capital after a trade settles and books its P&L.
// Over-release floors at zero rather than failing; in a live system a
// racing pair of releases is better absorbed than crashed on.
func (m *Manager) ReleaseCapital(ctx context.Context, amount, pnlUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocatedCapitalUSD -= amount
	if m.allocatedCapitalUSD < 0 {
		m.allocatedCapitalUSD = 0
	}
	m.cumulativePnLUSD += pnlUSD
	m.completedTrades++

	m.logger.Info("capital released",
		"amount_usd", amount,
		"pnl_usd", pnlUSD,
		"allocated_usd", m.allocatedCapitalUSD,
		"completed_trades", m.completedTrades,
	)
	m.recordCapital(ctx)
}

// recordCapital publishes ledger gauges. Callers hold m.mu.
func (m *Manager) recordCapital(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordCapital(ctx, m.totalCapitalUSD, m.allocatedCapitalUSD)
}

// Snapshot returns a copy of the ledger for reporting.
func (m *Manager) Snapshot() LedgerSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return LedgerSnapshot{
		TotalCapitalUSD:     m.totalCapitalUSD,
		AllocatedCapitalUSD: m.allocatedCapitalUSD,
		AvailableCapitalUSD: m.totalCapitalUSD - m.allocatedCapitalUSD,
		CompletedTrades:     m.completedTrades,
		CumulativePnLUSD:    m.cumulativePnLUSD,
	}
}
