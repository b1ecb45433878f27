package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fastnear/ref-arb-monitor/internal/arbitrage"
	"github.com/fastnear/ref-arb-monitor/internal/platform/observability"
)

// RedisPublisher publishes opportunities on a Redis pub/sub channel for
// local subscribers (dashboards, paper-trading consumers).
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *observability.Logger
}

// RedisPublisherConfig holds Redis publisher configuration
type RedisPublisherConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Logger   *observability.Logger
}

// NewRedisPublisher creates a Redis pub/sub publisher and verifies the
// connection.
func NewRedisPublisher(cfg RedisPublisherConfig) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("redis channel is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPublisher{
		client:  client,
		channel: cfg.Channel,
		logger:  cfg.Logger,
	}, nil
}

// PublishOpportunity publishes the opportunity JSON on the configured channel.
func (p *RedisPublisher) PublishOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error {
	payload, err := opp.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal opportunity: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		if p.logger != nil {
			p.logger.LogError(ctx, "failed to publish to redis", err,
				"opportunity_id", opp.OpportunityID,
				"channel", p.channel,
			)
		}
		return fmt.Errorf("redis publish failed: %w", err)
	}

	if p.logger != nil {
		p.logger.Debug("published opportunity to redis",
			"opportunity_id", opp.OpportunityID,
			"channel", p.channel,
		)
	}
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
