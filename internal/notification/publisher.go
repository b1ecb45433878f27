// Package notification delivers detected opportunities to downstream
// consumers. Publishers are fire-and-forget from the scan loop's point of
// view: a publish failure is logged and never blocks detection.
package notification

import (
	"context"
	"fmt"

	"github.com/fastnear/ref-arb-monitor/internal/arbitrage"
	"github.com/fastnear/ref-arb-monitor/internal/platform/aws"
	"github.com/fastnear/ref-arb-monitor/internal/platform/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Publisher delivers opportunities to a downstream channel.
type Publisher interface {
	PublishOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error
}

// SNSPublisher publishes opportunities to an SNS topic
type SNSPublisher struct {
	snsClient *aws.SNSClient
	topicARN  string
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    observability.Tracer
}

// SNSPublisherConfig holds publisher configuration
type SNSPublisherConfig struct {
	SNSClient *aws.SNSClient
	TopicARN  string
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracer    observability.Tracer
}

// NewSNSPublisher creates a new opportunity publisher backed by SNS
func NewSNSPublisher(cfg SNSPublisherConfig) (*SNSPublisher, error) {
	if cfg.SNSClient == nil {
		return nil, fmt.Errorf("SNS client is required")
	}
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}

	return &SNSPublisher{
		snsClient: cfg.SNSClient,
		topicARN:  cfg.TopicARN,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
	}, nil
}

// PublishOpportunity publishes an opportunity to the configured SNS topic.
func (p *SNSPublisher) PublishOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error {
	ctx, span := p.tracer.StartSpan(
		ctx,
		"SNSPublisher.PublishOpportunity",
		observability.WithAttributes(
			attribute.String("opportunity_id", opp.OpportunityID),
			attribute.String("kind", opp.Kind.String()),
			attribute.String("topic_arn", p.topicARN),
		),
	)
	defer span.End()

	payload, err := opp.ToJSON()
	if err != nil {
		span.NoticeError(err)
		return fmt.Errorf("failed to marshal opportunity: %w", err)
	}

	// Message attributes support SNS subscription filtering.
	attributes := map[string]string{
		"kind":      opp.Kind.String(),
		"spreadPct": fmt.Sprintf("%.4f", opp.Spread*100),
		"profitPct": fmt.Sprintf("%.4f", opp.EstimatedProfitPct*100),
	}

	if err := p.snsClient.Publish(ctx, p.topicARN, string(payload), attributes); err != nil {
		span.NoticeError(err)
		if p.logger != nil {
			p.logger.LogError(ctx, "failed to publish to SNS", err,
				"opportunity_id", opp.OpportunityID,
				"topic_arn", p.topicARN,
			)
		}
		return fmt.Errorf("SNS publish failed: %w", err)
	}

	if p.logger != nil {
		p.logger.Info("published opportunity to SNS",
			"opportunity_id", opp.OpportunityID,
			"kind", opp.Kind.String(),
			"topic_arn", p.topicARN,
		)
	}

	return nil
}

// CircuitBreakerState returns the current circuit breaker state
func (p *SNSPublisher) CircuitBreakerState() string {
	return p.snsClient.CircuitBreakerState().String()
}

// MultiPublisher fans out each opportunity to several publishers. Failures
// are collected; one failing sink never prevents the others from receiving
// the message.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher creates a fan-out publisher.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// PublishOpportunity delivers to every underlying publisher.
func (m *MultiPublisher) PublishOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error {
	var firstErr error
	failures := 0
	for _, p := range m.publishers {
		if err := p.PublishOpportunity(ctx, opp); err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d publishers failed: %w", failures, len(m.publishers), firstErr)
	}
	return nil
}
