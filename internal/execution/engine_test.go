package execution

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/fastnear/ref-arb-monitor/internal/arbitrage"
	"github.com/fastnear/ref-arb-monitor/internal/platform/observability"
	"github.com/fastnear/ref-arb-monitor/internal/risk"
)

// fixedFeeCalculator mirrors the arbitrage engine's profit formula with a
// fixed per-swap fee.
type fixedFeeCalculator struct {
	fee float64
}

func (c fixedFeeCalculator) CalculateProfit(opp *arbitrage.Opportunity, tradeSizeUSD float64) float64 {
	return tradeSizeUSD*opp.Spread - tradeSizeUSD*c.fee*float64(opp.HopCount())
}

func newTestEngine(t *testing.T, mode Mode, gasCost float64, accountID string) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{
		Mode:              mode,
		Calculator:        fixedFeeCalculator{fee: 0.0025},
		GasCostPerSwapUSD: gasCost,
		AccountID:         accountID,
		Logger:            observability.NewLogger("error", "text"),
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func approvedAssessment(size float64) risk.Assessment {
	return risk.Assessment{
		Approved:            true,
		MaxTradeSizeUSD:     size,
		AvailableCapitalUSD: 10_000,
	}
}

func testOpportunity(spread float64) *arbitrage.Opportunity {
	opp := arbitrage.NewOpportunity(arbitrage.TwoHop)
	opp.PoolIDs = []uint64{1, 2}
	opp.Spread = spread
	opp.EstimatedProfitPct = spread - 0.005
	return opp
}

func TestDisplayModeAlwaysSucceeds(t *testing.T) {
	engine := newTestEngine(t, ModeDisplay, 0.5, "")

	result := engine.Process(context.Background(), testOpportunity(0.02), approvedAssessment(1_000))
	if !result.Success {
		t.Errorf("display mode should succeed: %+v", result)
	}
	if result.NetProfitUSD != 0 || result.GrossProfitUSD != 0 {
		t.Errorf("display mode should report zero P&L: %+v", result)
	}
}

func TestSimulateModeProfitMath(t *testing.T) {
	engine := newTestEngine(t, ModeSimulate, 0.5, "")

	// 1000 * 0.02 - 1000 * 0.0025 * 2 = 15 gross, minus 2 * 0.5 gas = 14.
	result := engine.Process(context.Background(), testOpportunity(0.02), approvedAssessment(1_000))
	if !result.Success {
		t.Fatalf("expected profitable simulation: %+v", result)
	}
	if math.Abs(result.GrossProfitUSD-15.0) > 1e-9 {
		t.Errorf("GrossProfitUSD = %v, want 15.0", result.GrossProfitUSD)
	}
	if math.Abs(result.NetProfitUSD-14.0) > 1e-9 {
		t.Errorf("NetProfitUSD = %v, want 14.0", result.NetProfitUSD)
	}
}

func TestSimulateModeUnprofitableAfterGas(t *testing.T) {
	engine := newTestEngine(t, ModeSimulate, 10, "")

	// Gross 1000*0.006 - 1000*0.005 = 1, gas 20: net -19.
	result := engine.Process(context.Background(), testOpportunity(0.006), approvedAssessment(1_000))
	if result.Success {
		t.Fatalf("expected unprofitable simulation: %+v", result)
	}
	if result.NetProfitUSD >= 0 {
		t.Errorf("NetProfitUSD = %v, want negative", result.NetProfitUSD)
	}
}

func TestExecuteModeIsStub(t *testing.T) {
	engine := newTestEngine(t, ModeExecute, 0.5, "arb.near")

	result := engine.Process(context.Background(), testOpportunity(0.02), approvedAssessment(1_000))
	if result.Success {
		t.Errorf("execute stub should report failure: %+v", result)
	}
	if !strings.Contains(result.Message, "not implemented") {
		t.Errorf("Message = %q, should flag missing implementation", result.Message)
	}
}

func TestExecuteModeRequiresAccount(t *testing.T) {
	_, err := NewEngine(EngineConfig{
		Mode:       ModeExecute,
		Calculator: fixedFeeCalculator{fee: 0.0025},
		Logger:     observability.NewLogger("error", "text"),
	})
	if err == nil {
		t.Fatal("execute mode without account should fail construction")
	}
}

func TestRejectedAssessmentShortCircuits(t *testing.T) {
	engine := newTestEngine(t, ModeSimulate, 0.5, "")

	result := engine.Process(context.Background(), testOpportunity(0.02), risk.Assessment{
		Approved:        false,
		RejectionReason: "estimated profit 0.10% below minimum 0.30%",
	})
	if result.Success {
		t.Errorf("rejected assessment should not succeed: %+v", result)
	}
	if !strings.Contains(result.Message, "below minimum") {
		t.Errorf("Message = %q, should carry the rejection reason", result.Message)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"display", ModeDisplay, false},
		{"Simulate", ModeSimulate, false},
		{"EXECUTE", ModeExecute, false},
		{"", ModeDisplay, false},
		{"yolo", ModeDisplay, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatReportSections(t *testing.T) {
	engine := newTestEngine(t, ModeSimulate, 0.5, "")
	opp := testOpportunity(0.02)
	assessment := approvedAssessment(1_000)
	result := engine.Process(context.Background(), opp, assessment)

	report := FormatReport(opp, assessment, result)
	for _, want := range []string{"ARBITRAGE OPPORTUNITY DETECTED", "RISK ASSESSMENT", "APPROVED", "EXECUTION", "Net Profit"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}
