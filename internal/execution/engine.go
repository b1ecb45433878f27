// Package execution turns approved opportunities into an execution
// decision under the configured mode and renders the trade report.
package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fastnear/ref-arb-monitor/internal/arbitrage"
	"github.com/fastnear/ref-arb-monitor/internal/platform/observability"
	"github.com/fastnear/ref-arb-monitor/internal/risk"
)

// Mode selects how approved opportunities are handled.
type Mode int

const (
	// ModeDisplay only reports opportunities, no P&L modeling.
	ModeDisplay Mode = iota
	// ModeSimulate models net P&L with a flat gas estimate per swap.
	ModeSimulate
	// ModeExecute would submit real transactions; currently a stub that
	// logs intent and reports failure.
	ModeExecute
)

// String returns string representation of the mode
func (m Mode) String() string {
	switch m {
	case ModeDisplay:
		return "display"
	case ModeSimulate:
		return "simulate"
	case ModeExecute:
		return "execute"
	}
	return "unknown"
}

// ParseMode maps a configuration string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "display", "":
		return ModeDisplay, nil
	case "simulate":
		return ModeSimulate, nil
	case "execute":
		return ModeExecute, nil
	}
	return ModeDisplay, fmt.Errorf("unknown execution mode %q", s)
}

// ProfitCalculator estimates gross profit for a trade size. The arbitrage
// engine satisfies this.
type ProfitCalculator interface {
	CalculateProfit(opp *arbitrage.Opportunity, tradeSizeUSD float64) float64
}

// Result is the outcome of processing one approved opportunity.
type Result struct {
	OpportunityID  string    `json:"opportunity_id"`
	Mode           string    `json:"mode"`
	Success        bool      `json:"success"`
	TradeSizeUSD   float64   `json:"trade_size_usd"`
	GrossProfitUSD float64   `json:"gross_profit_usd"`
	GasCostUSD     float64   `json:"gas_cost_usd"`
	NetProfitUSD   float64   `json:"net_profit_usd"`
	Message        string    `json:"message"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// Engine applies the configured execution mode.
type Engine struct {
	mode              Mode
	calculator        ProfitCalculator
	gasCostPerSwapUSD float64
	accountID         string
	logger            *observability.Logger
	metrics           *observability.Metrics
}

// EngineConfig holds execution engine configuration.
type EngineConfig struct {
	Mode              Mode
	Calculator        ProfitCalculator
	GasCostPerSwapUSD float64
	AccountID         string
	Logger            *observability.Logger
	Metrics           *observability.Metrics
}

// NewEngine creates a new execution decision engine. Execute mode without
// a configured account is a misconfiguration and fails construction.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Calculator == nil {
		return nil, fmt.Errorf("profit calculator is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.GasCostPerSwapUSD < 0 {
		return nil, fmt.Errorf("gas cost must be non-negative, got %.4f", cfg.GasCostPerSwapUSD)
	}
	if cfg.Mode == ModeExecute && cfg.AccountID == "" {
		return nil, fmt.Errorf("execute mode requires an account ID")
	}

	return &Engine{
		mode:              cfg.Mode,
		calculator:        cfg.Calculator,
		gasCostPerSwapUSD: cfg.GasCostPerSwapUSD,
		accountID:         cfg.AccountID,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
	}, nil
}

// Mode returns the configured execution mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Process evaluates an approved opportunity under the configured mode.
// Unapproved assessments short-circuit into an unsuccessful result.
func (e *Engine) Process(ctx context.Context, opp *arbitrage.Opportunity, assessment risk.Assessment) *Result {
	result := &Result{
		OpportunityID: opp.OpportunityID,
		Mode:          e.mode.String(),
		TradeSizeUSD:  assessment.MaxTradeSizeUSD,
		ProcessedAt:   time.Now(),
	}

	if !assessment.Approved {
		result.Message = fmt.Sprintf("skipped: %s", assessment.RejectionReason)
		e.finish(ctx, result)
		return result
	}

	switch e.mode {
	case ModeDisplay:
		result.Success = true
		result.Message = "display only, no trade attempted"

	case ModeSimulate:
		gross := e.calculator.CalculateProfit(opp, assessment.MaxTradeSizeUSD)
		gas := e.gasCostPerSwapUSD * float64(opp.HopCount())
		net := gross - gas

		result.GrossProfitUSD = gross
		result.GasCostUSD = gas
		result.NetProfitUSD = net
		result.Success = net > 0
		if result.Success {
			result.Message = fmt.Sprintf("simulated net profit $%.2f", net)
		} else {
			result.Message = fmt.Sprintf("simulation unprofitable after gas: $%.2f", net)
		}

	case ModeExecute:
		// Real signing and broadcast are not wired up yet. Log the intent
		// loudly so the operator sees what would have been traded.
		e.logger.Warn("execute mode requested but transaction submission is not implemented",
			"opportunity_id", opp.OpportunityID,
			"account_id", e.accountID,
			"trade_size_usd", assessment.MaxTradeSizeUSD,
		)
		result.Message = fmt.Sprintf("execution not implemented: would trade $%.2f as %s",
			assessment.MaxTradeSizeUSD, e.accountID)
	}

	e.finish(ctx, result)
	return result
}

func (e *Engine) finish(ctx context.Context, result *Result) {
	e.logger.Info("execution decision",
		"opportunity_id", result.OpportunityID,
		"mode", result.Mode,
		"success", result.Success,
		"trade_size_usd", result.TradeSizeUSD,
		"net_profit_usd", result.NetProfitUSD,
		"message", result.Message,
	)
	if e.metrics != nil {
		e.metrics.RecordExecution(ctx, result.Mode, result.Success, result.NetProfitUSD)
	}
}

// FormatReport renders the full trade report for console output.
func FormatReport(opp *arbitrage.Opportunity, assessment risk.Assessment, result *Result) string {
	var sb strings.Builder

	sb.WriteString(opp.FormatOutput())

	sb.WriteString("─────────────────────────────────────────────────────────────────\n")
	sb.WriteString("RISK ASSESSMENT\n")
	sb.WriteString("─────────────────────────────────────────────────────────────────\n")
	if assessment.Approved {
		sb.WriteString("Decision:        APPROVED\n")
	} else {
		sb.WriteString("Decision:        REJECTED\n")
		sb.WriteString(fmt.Sprintf("Reason:          %s\n", assessment.RejectionReason))
	}
	sb.WriteString(fmt.Sprintf("Trade Size:      $%.2f\n", assessment.MaxTradeSizeUSD))
	sb.WriteString(fmt.Sprintf("Est. Slippage:   %.4f%%\n", assessment.EstimatedSlippagePct))
	sb.WriteString(fmt.Sprintf("Pool Exposure:   %.4f%%\n", assessment.PoolExposurePct))
	sb.WriteString(fmt.Sprintf("Available:       $%.2f\n", assessment.AvailableCapitalUSD))
	sb.WriteString("\n")

	if result != nil {
		sb.WriteString("─────────────────────────────────────────────────────────────────\n")
		sb.WriteString("EXECUTION\n")
		sb.WriteString("─────────────────────────────────────────────────────────────────\n")
		sb.WriteString(fmt.Sprintf("Mode:            %s\n", result.Mode))
		sb.WriteString(fmt.Sprintf("Success:         %t\n", result.Success))
		if result.Mode == ModeSimulate.String() {
			sb.WriteString(fmt.Sprintf("Gross Profit:    $%.2f\n", result.GrossProfitUSD))
			sb.WriteString(fmt.Sprintf("Gas Cost:        $%.2f\n", result.GasCostUSD))
			sb.WriteString(fmt.Sprintf("Net Profit:      $%.2f\n", result.NetProfitUSD))
		}
		sb.WriteString(fmt.Sprintf("Message:         %s\n", result.Message))
		sb.WriteString("\n")
	}

	sb.WriteString("═══════════════════════════════════════════════════════════════\n")

	return sb.String()
}
