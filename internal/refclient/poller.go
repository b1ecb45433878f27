package refclient

import (
	"context"
	"fmt"
	"time"

	"github.com/fastnear/ref-arb-monitor/internal/amm"
	"github.com/fastnear/ref-arb-monitor/internal/platform/observability"
	"github.com/fastnear/ref-arb-monitor/internal/platform/worker"
)

// Poller fetches a fixed set of pools on an interval and delivers fresh
// snapshots on a single channel. Fetches within one tick fan out across a
// worker pool; delivery is serialized so the consumer never needs locks.
type Poller struct {
	client   *Client
	poolIDs  []uint64
	interval time.Duration
	workers  int
	logger   *observability.Logger

	updates chan *amm.PoolState
}

// PollerConfig holds poller configuration
type PollerConfig struct {
	Client   *Client
	PoolIDs  []uint64
	Interval time.Duration
	Workers  int
	Logger   *observability.Logger
}

// NewPoller creates a poller for the given pool set.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if len(cfg.PoolIDs) == 0 {
		return nil, fmt.Errorf("at least one pool ID is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	return &Poller{
		client:   cfg.Client,
		poolIDs:  cfg.PoolIDs,
		interval: cfg.Interval,
		workers:  cfg.Workers,
		logger:   cfg.Logger,
		updates:  make(chan *amm.PoolState, len(cfg.PoolIDs)),
	}, nil
}

// Updates returns the channel pool snapshots are delivered on. The channel
// is closed when Run returns.
func (p *Poller) Updates() <-chan *amm.PoolState {
	return p.updates
}

// Run polls until the context is cancelled. A failed fetch for one pool is
// logged and skipped; the remaining pools in the tick still deliver.
func (p *Poller) Run(ctx context.Context) error {
	defer close(p.updates)

	pool := worker.NewPool(ctx, p.workers, len(p.poolIDs))
	defer pool.Close()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("starting pool poller",
		"pools", len(p.poolIDs),
		"interval", p.interval.String(),
		"workers", p.workers,
	)

	// First tick immediately so the engine has state before the interval
	// elapses.
	p.pollOnce(ctx, pool)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pool poller stopping")
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx, pool)
		}
	}
}

// pollOnce fetches every configured pool concurrently and forwards the
// successful snapshots.
func (p *Poller) pollOnce(ctx context.Context, pool *worker.Pool) {
	jobs := make([]worker.Job, 0, len(p.poolIDs))
	for _, poolID := range p.poolIDs {
		id := poolID
		jobs = append(jobs, worker.Job{
			ID: fmt.Sprintf("pool-%d", id),
			Execute: func(ctx context.Context) (interface{}, error) {
				return p.client.GetPool(ctx, id)
			},
		})
	}

	for _, result := range pool.SubmitAndWait(jobs) {
		if result.Err != nil {
			p.logger.LogError(ctx, "failed to fetch pool state", result.Err,
				"job_id", result.JobID,
			)
			continue
		}
		state, ok := result.Value.(*amm.PoolState)
		if !ok || state == nil {
			continue
		}
		select {
		case p.updates <- state:
		case <-ctx.Done():
			return
		}
	}
}
