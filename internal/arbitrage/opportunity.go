package arbitrage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes the two path shapes an opportunity can take.
type Kind int

const (
	// TwoHop is a buy on one pool, sell on another pool with the same pair.
	TwoHop Kind = iota
	// Triangle is a three-pool cycle whose compound rate deviates from 1.
	Triangle
)

// String returns string representation of the kind
func (k Kind) String() string {
	if k == TwoHop {
		return "two-hop"
	}
	return "triangle"
}

// MarshalJSON implements JSON marshaling for Kind
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Opportunity represents a detected arbitrage opportunity. Spread, the
// moving-average baseline and the profit estimate are fractions (0.01 is
// 1%); liquidity figures use the engine's USD heuristic.
type Opportunity struct {
	OpportunityID       string    `json:"opportunity_id"`
	Kind                Kind      `json:"kind"`
	PoolIDs             []uint64  `json:"pool_ids"`
	Tokens              []string  `json:"tokens"`
	Prices              []float64 `json:"prices"`
	Spread              float64   `json:"spread"`
	MovingAverageSpread float64   `json:"moving_average_spread"`
	EstimatedProfitPct  float64   `json:"estimated_profit_pct"`
	LiquidityUSD        []float64 `json:"liquidity_usd"`
	Confidence          float64   `json:"confidence"`
	DetectedAt          time.Time `json:"detected_at"`
}

// NewOpportunity creates an opportunity stamped with a unique ID.
func NewOpportunity(kind Kind) *Opportunity {
	return &Opportunity{
		OpportunityID: fmt.Sprintf("%s-%d", kind.String(), time.Now().UnixNano()),
		Kind:          kind,
		DetectedAt:    time.Now(),
	}
}

// HopCount returns the number of swaps needed to realize the opportunity.
func (o *Opportunity) HopCount() int {
	if o.Kind == Triangle {
		return 3
	}
	return 2
}

// MinLiquidityUSD returns the thinnest leg's liquidity, 0 when unknown.
func (o *Opportunity) MinLiquidityUSD() float64 {
	if len(o.LiquidityUSD) == 0 {
		return 0
	}
	min := o.LiquidityUSD[0]
	for _, l := range o.LiquidityUSD[1:] {
		if l < min {
			min = l
		}
	}
	return min
}

// OptimalSize is a Kelly-flavored sizing heuristic: never risk more than
// 10% of the thinnest leg's liquidity, scaled down by confidence. Advisory
// only; the risk manager bounds the final size again.
func OptimalSize(o *Opportunity) float64 {
	return o.MinLiquidityUSD() * 0.10 * o.Confidence
}

// FormatOutput formats the opportunity for console output
func (o *Opportunity) FormatOutput() string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString("═══════════════════════════════════════════════════════════════\n")
	sb.WriteString("           ARBITRAGE OPPORTUNITY DETECTED\n")
	sb.WriteString("═══════════════════════════════════════════════════════════════\n")
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Opportunity ID:  %s\n", o.OpportunityID))
	sb.WriteString(fmt.Sprintf("Kind:            %s\n", o.Kind.String()))
	sb.WriteString(fmt.Sprintf("Detected At:     %s\n", o.DetectedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Route:           %s\n", strings.Join(o.Tokens, " → ")))
	sb.WriteString("\n")

	sb.WriteString("─────────────────────────────────────────────────────────────────\n")
	sb.WriteString("PATH DETAILS\n")
	sb.WriteString("─────────────────────────────────────────────────────────────────\n")
	for i, poolID := range o.PoolIDs {
		price := 0.0
		if i < len(o.Prices) {
			price = o.Prices[i]
		}
		liq := 0.0
		if i < len(o.LiquidityUSD) {
			liq = o.LiquidityUSD[i]
		}
		sb.WriteString(fmt.Sprintf("Leg %d:           pool %d  price %.8f  liquidity $%.2f\n",
			i+1, poolID, price, liq))
	}
	sb.WriteString("\n")

	sb.WriteString("─────────────────────────────────────────────────────────────────\n")
	sb.WriteString("SPREAD ANALYSIS\n")
	sb.WriteString("─────────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Spread:          %.4f%%\n", o.Spread*100))
	if o.Kind == TwoHop {
		sb.WriteString(fmt.Sprintf("Baseline Spread: %.4f%%\n", o.MovingAverageSpread*100))
	}
	sb.WriteString(fmt.Sprintf("Est. Profit:     %.4f%%\n", o.EstimatedProfitPct*100))
	sb.WriteString(fmt.Sprintf("Confidence:      %.2f\n", o.Confidence))
	sb.WriteString("\n")

	sb.WriteString("═══════════════════════════════════════════════════════════════\n")

	return sb.String()
}

// SerializableOpportunity is a JSON-friendly flattening of Opportunity
// used for Redis/SNS messaging.
type SerializableOpportunity struct {
	OpportunityID       string    `json:"opportunity_id"`
	Kind                string    `json:"kind"`
	PoolIDs             []uint64  `json:"pool_ids"`
	Tokens              []string  `json:"tokens"`
	Prices              []float64 `json:"prices"`
	SpreadPct           string    `json:"spread_pct"`
	MovingAvgSpreadPct  string    `json:"moving_avg_spread_pct"`
	EstimatedProfitPct  string    `json:"estimated_profit_pct"`
	LiquidityUSD        []float64 `json:"liquidity_usd"`
	Confidence          string    `json:"confidence"`
	DetectedAtUnixMilli int64     `json:"detected_at_unix_milli"`
}

// ToSerializable converts Opportunity to SerializableOpportunity
func (o *Opportunity) ToSerializable() *SerializableOpportunity {
	return &SerializableOpportunity{
		OpportunityID:       o.OpportunityID,
		Kind:                o.Kind.String(),
		PoolIDs:             o.PoolIDs,
		Tokens:              o.Tokens,
		Prices:              o.Prices,
		SpreadPct:           fmt.Sprintf("%.4f", o.Spread*100),
		MovingAvgSpreadPct:  fmt.Sprintf("%.4f", o.MovingAverageSpread*100),
		EstimatedProfitPct:  fmt.Sprintf("%.4f", o.EstimatedProfitPct*100),
		LiquidityUSD:        o.LiquidityUSD,
		Confidence:          fmt.Sprintf("%.2f", o.Confidence),
		DetectedAtUnixMilli: o.DetectedAt.UnixMilli(),
	}
}

// ToJSON converts opportunity to JSON
func (o *Opportunity) ToJSON() ([]byte, error) {
	return json.Marshal(o.ToSerializable())
}

// OpportunitySummary provides a compact summary of the opportunity
type OpportunitySummary struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	SpreadPct float64 `json:"spread_pct"`
	ProfitPct float64 `json:"profit_pct"`
	Pools     int     `json:"pools"`
}

// ToSummary creates a compact summary of the opportunity
func (o *Opportunity) ToSummary() *OpportunitySummary {
	return &OpportunitySummary{
		ID:        o.OpportunityID,
		Kind:      o.Kind.String(),
		SpreadPct: o.Spread * 100,
		ProfitPct: o.EstimatedProfitPct * 100,
		Pools:     len(o.PoolIDs),
	}
}
