package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fastnear/ref-arb-monitor/internal/amm"
	"github.com/fastnear/ref-arb-monitor/internal/arbitrage"
	"github.com/fastnear/ref-arb-monitor/internal/execution"
	"github.com/fastnear/ref-arb-monitor/internal/notification"
	"github.com/fastnear/ref-arb-monitor/internal/platform/aws"
	"github.com/fastnear/ref-arb-monitor/internal/platform/cache"
	"github.com/fastnear/ref-arb-monitor/internal/platform/config"
	"github.com/fastnear/ref-arb-monitor/internal/platform/observability"
	"github.com/fastnear/ref-arb-monitor/internal/refclient"
	"github.com/fastnear/ref-arb-monitor/internal/risk"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	log.Println("Loading configuration...")
	cfg := config.MustLoad(os.Getenv("CONFIG_PATH"))

	// Setup observability (foundational - must be first)
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics("ref-arb-monitor", cfg.Observability.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tracer, err := observability.NewTracerProvider(ctx, "ref-arb-monitor", cfg.Observability.Tracing.Endpoint, cfg.Observability.Tracing.Enabled)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracer.Shutdown(ctx)

	logger.Info("observability setup complete")

	// Pool state cache: memory always, layered over Redis when available.
	memCache := cache.NewMemoryCache(cfg.Cache.MaxSize)
	defer memCache.Close()

	var poolCache cache.Cache = memCache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.LogError(ctx, "failed to create Redis cache", err)
			log.Fatalf("Failed to create Redis cache: %v", err)
		}
		defer redisCache.Close()
		poolCache = cache.NewLayeredCache(memCache, redisCache)
	}

	// NEAR RPC client
	logger.Info("connecting to NEAR...", "contract", cfg.Ref.ContractID)
	endpoints := make([]refclient.EndpointConfig, len(cfg.NEAR.RPCEndpoints))
	for i, ep := range cfg.NEAR.RPCEndpoints {
		endpoints[i] = refclient.EndpointConfig{URL: ep.URL, Weight: ep.Weight}
	}

	client, err := refclient.NewClient(refclient.ClientConfig{
		Endpoints:         endpoints,
		ContractID:        cfg.Ref.ContractID,
		Timeout:           cfg.NEAR.Timeout,
		RequestsPerMinute: cfg.NEAR.RateLimit.RequestsPerMinute,
		Burst:             cfg.NEAR.RateLimit.Burst,
		Cache:             poolCache,
		CacheTTL:          cfg.Cache.TTL,
		Logger:            logger,
		Metrics:           metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create NEAR client: %v", err)
	}

	// Detection, risk and execution engines
	valuer := amm.DecimalsValuer{
		Decimals: config.TokenDecimals(),
		Default:  cfg.Arbitrage.LiquidityDecimals,
	}

	engine, err := arbitrage.NewEngine(arbitrage.EngineConfig{
		FeePct:                cfg.Arbitrage.FeePct,
		MinProfitPct:          cfg.Arbitrage.MinProfitPct,
		MovingAverageWindow:   cfg.Arbitrage.MovingAverageWindow,
		PriceMoveThresholdPct: cfg.Arbitrage.PriceMoveThresholdPct,
		LiquidityValuer:       valuer,
		Logger:                logger,
		Metrics:               metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create arbitrage engine: %v", err)
	}

	riskManager, err := risk.NewManager(risk.ManagerConfig{
		TotalCapitalUSD:    cfg.Risk.TotalCapitalUSD,
		MaxTradeSizeUSD:    cfg.Risk.MaxTradeSizeUSD,
		MinProfitPct:       cfg.Risk.MinProfitPct,
		MaxSlippagePct:     cfg.Risk.MaxSlippagePct,
		MaxPoolExposurePct: cfg.Risk.MaxPoolExposurePct,
		LiquidityValuer:    valuer,
		Logger:             logger,
		Metrics:            metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create risk manager: %v", err)
	}

	mode, err := execution.ParseMode(cfg.Execution.Mode)
	if err != nil {
		log.Fatalf("Invalid execution mode: %v", err)
	}
	executor, err := execution.NewEngine(execution.EngineConfig{
		Mode:              mode,
		Calculator:        engine,
		GasCostPerSwapUSD: cfg.Execution.GasCostPerSwapUSD,
		AccountID:         cfg.Execution.AccountID,
		Logger:            logger,
		Metrics:           metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create execution engine: %v", err)
	}

	publisher := buildPublisher(ctx, cfg, logger, metrics)

	// Seed the engine with the configured pool universe.
	registered, err := registerPools(ctx, cfg, client, engine, valuer, logger)
	if err != nil {
		log.Fatalf("Failed to register pools: %v", err)
	}
	if registered == 0 {
		log.Fatalf("No pools registered, check ref.pool_ids and min_pool_liquidity_usd")
	}

	poller, err := refclient.NewPoller(refclient.PollerConfig{
		Client:   client,
		PoolIDs:  cfg.Ref.PoolIDs,
		Interval: cfg.Ref.PollInterval,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("Failed to create poller: %v", err)
	}

	// Start HTTP server for health checks and metrics
	go startHTTPServer(cfg.HTTP.Port, client, metrics, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("starting arbitrage monitor",
		"pools", registered,
		"poll_interval", cfg.Ref.PollInterval.String(),
		"mode", mode.String(),
	)

	go func() {
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			logger.LogError(ctx, "poller stopped", err)
			cancel()
		}
	}()

	go runMonitor(ctx, poller, engine, riskManager, executor, publisher, logger)

	<-sigCh
	logger.Info("shutdown signal received, gracefully stopping...")
	cancel()

	snap := riskManager.Snapshot()
	logger.Info("final capital ledger",
		"total_usd", snap.TotalCapitalUSD,
		"allocated_usd", snap.AllocatedCapitalUSD,
		"trades", snap.CompletedTrades,
		"realized_pnl_usd", snap.CumulativePnLUSD,
	)
	logScanStats(engine, logger)
	logger.Info("application stopped")
}

// buildPublisher assembles the notification fan-out from the enabled sinks.
func buildPublisher(
	ctx context.Context,
	cfg *config.Config,
	logger *observability.Logger,
	metrics *observability.Metrics,
) notification.Publisher {
	var sinks []notification.Publisher

	if cfg.Redis.Enabled {
		redisPub, err := notification.NewRedisPublisher(notification.RedisPublisherConfig{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
			Logger:   logger,
		})
		if err != nil {
			logger.LogError(ctx, "failed to create redis publisher", err)
			log.Fatalf("Failed to create redis publisher: %v", err)
		}
		sinks = append(sinks, redisPub)
	}

	if cfg.AWS.Enabled {
		awsCfg, err := aws.LoadAWSConfig(ctx, aws.Config{
			Region:   cfg.AWS.Region,
			Endpoint: cfg.AWS.Endpoint,
		})
		if err != nil {
			logger.LogError(ctx, "failed to load AWS config", err)
			log.Fatalf("Failed to load AWS config: %v", err)
		}
		snsClient := aws.NewSNSClient(aws.SNSClientConfig{
			AWSConfig: awsCfg,
			Logger:    logger,
			Metrics:   metrics,
		})
		// Publish spans go through the OTLP provider when tracing is on;
		// NewSNSPublisher substitutes a noop tracer otherwise.
		var pubTracer observability.Tracer
		if cfg.Observability.Tracing.Enabled {
			pubTracer = observability.NewTracer("notification")
		}
		snsPub, err := notification.NewSNSPublisher(notification.SNSPublisherConfig{
			SNSClient: snsClient,
			TopicARN:  cfg.AWS.SNSTopicARN,
			Logger:    logger,
			Metrics:   metrics,
			Tracer:    pubTracer,
		})
		if err != nil {
			log.Fatalf("Failed to create SNS publisher: %v", err)
		}
		sinks = append(sinks, snsPub)
	}

	switch len(sinks) {
	case 0:
		return notification.NewNoOpPublisher(logger)
	case 1:
		return sinks[0]
	default:
		return notification.NewMultiPublisher(sinks...)
	}
}

// registerPools fetches initial state for every configured pool concurrently
// and registers the ones above the liquidity floor.
func registerPools(
	ctx context.Context,
	cfg *config.Config,
	client *refclient.Client,
	engine *arbitrage.Engine,
	valuer amm.LiquidityValuer,
	logger *observability.Logger,
) (int, error) {
	states := make([]*amm.PoolState, len(cfg.Ref.PoolIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, poolID := range cfg.Ref.PoolIDs {
		i, poolID := i, poolID
		g.Go(func() error {
			state, err := client.GetPool(gctx, poolID)
			if err != nil {
				return fmt.Errorf("pool %d: %w", poolID, err)
			}
			states[i] = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	registered := 0
	for _, state := range states {
		liquidity := valuer.LiquidityUSD(state)
		if liquidity < cfg.Ref.MinPoolLiquidityUSD {
			logger.Info("skipping pool below liquidity floor",
				"pool_id", state.PoolID,
				"liquidity_usd", liquidity,
				"floor_usd", cfg.Ref.MinPoolLiquidityUSD,
			)
			continue
		}
		if engine.RegisterPool(state) {
			registered++
		}
	}
	return registered, nil
}

// runMonitor is the serialized scan loop: poll updates in, decisions out.
func runMonitor(
	ctx context.Context,
	poller *refclient.Poller,
	engine *arbitrage.Engine,
	riskManager *risk.Manager,
	executor *execution.Engine,
	publisher notification.Publisher,
	logger *observability.Logger,
) {
	statsTicker := time.NewTicker(time.Minute)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("monitor loop stopping")
			return
		case <-statsTicker.C:
			logScanStats(engine, logger)
		case state, ok := <-poller.Updates():
			if !ok {
				return
			}
			opp := engine.OnPoolUpdate(ctx, state)
			if opp == nil {
				continue
			}
			handleOpportunity(ctx, opp, engine, riskManager, executor, publisher, logger)
		}
	}
}

// logScanStats reports latency percentiles over the recent scan window.
func logScanStats(engine *arbitrage.Engine, logger *observability.Logger) {
	stats := engine.ScanStats()
	if stats.Count == 0 {
		return
	}
	logger.Info("scan latency",
		"scans", stats.Count,
		"p50", stats.P50.String(),
		"p95", stats.P95.String(),
		"p99", stats.P99.String(),
		"max", stats.Max.String(),
	)
}

// handleOpportunity runs one opportunity through risk gating, execution and
// publishing. Capital is allocated around the execution window so exposure
// accounting stays correct even in display mode.
func handleOpportunity(
	ctx context.Context,
	opp *arbitrage.Opportunity,
	engine *arbitrage.Engine,
	riskManager *risk.Manager,
	executor *execution.Engine,
	publisher notification.Publisher,
	logger *observability.Logger,
) {
	assessment := riskManager.AssessTrade(ctx, opp, engine.PoolState)

	if assessment.Approved {
		if err := riskManager.AllocateCapital(ctx, assessment.MaxTradeSizeUSD); err != nil {
			logger.LogError(ctx, "capital allocation failed", err,
				"opportunity_id", opp.OpportunityID,
			)
			return
		}
	}

	result := executor.Process(ctx, opp, assessment)
	fmt.Println(execution.FormatReport(opp, assessment, result))

	if assessment.Approved {
		pnl := 0.0
		if result != nil && result.Success {
			pnl = result.NetProfitUSD
		}
		riskManager.ReleaseCapital(ctx, assessment.MaxTradeSizeUSD, pnl)
	}

	if err := publisher.PublishOpportunity(ctx, opp); err != nil {
		logger.LogError(ctx, "failed to publish opportunity", err,
			"opportunity_id", opp.OpportunityID,
		)
	}
}

// startHTTPServer serves health, readiness and metrics endpoints.
func startHTTPServer(port int, client *refclient.Client, metrics *observability.Metrics, logger *observability.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Ready once at least one RPC endpoint is reachable.
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if client.HealthyEndpoints() == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"no healthy rpc endpoints"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	mux.Handle("/metrics", metrics.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("HTTP server listening", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.LogError(context.Background(), "HTTP server error", err)
	}
}
