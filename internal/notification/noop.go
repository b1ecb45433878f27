package notification

import (
	"context"

	"github.com/fastnear/ref-arb-monitor/internal/arbitrage"
	"github.com/fastnear/ref-arb-monitor/internal/platform/observability"
)

// NoOpPublisher logs opportunities instead of publishing them. Use this
// when neither Redis nor SNS is configured (local development, testing).
type NoOpPublisher struct {
	logger *observability.Logger
}

// NewNoOpPublisher creates a publisher that only logs.
func NewNoOpPublisher(logger *observability.Logger) *NoOpPublisher {
	return &NoOpPublisher{logger: logger}
}

// PublishOpportunity logs the opportunity summary.
func (p *NoOpPublisher) PublishOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error {
	if p.logger != nil {
		p.logger.Info("opportunity detected (publishing disabled)",
			"opportunity_id", opp.OpportunityID,
			"kind", opp.Kind.String(),
			"pools", opp.PoolIDs,
			"spread_pct", opp.Spread*100,
			"profit_pct", opp.EstimatedProfitPct*100,
			"confidence", opp.Confidence,
		)
	}
	return nil
}
