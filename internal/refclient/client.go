// Package refclient fetches Ref Finance pool state over NEAR JSON-RPC.
// It is the upstream collaborator of the arbitrage engine: a thin polling
// client that turns get_pool view calls into amm.PoolState snapshots.
package refclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fastnear/ref-arb-monitor/internal/amm"
	"github.com/fastnear/ref-arb-monitor/internal/platform/cache"
	"github.com/fastnear/ref-arb-monitor/internal/platform/observability"
	"github.com/fastnear/ref-arb-monitor/internal/platform/resilience"
)

// Endpoint represents a single NEAR JSON-RPC endpoint
type Endpoint struct {
	URL     string
	Weight  int
	healthy atomic.Bool
}

// Client calls the Ref Finance contract's view functions over JSON-RPC
// with endpoint rotation, rate limiting, a circuit breaker, and retries.
type Client struct {
	httpClient *http.Client
	endpoints  []*Endpoint
	current    int
	mu         sync.Mutex

	contractID string
	limiter    *resilience.AdaptiveLimiter
	breaker    *resilience.CircuitBreaker
	retryCfg   resilience.RetryConfig
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// EndpointConfig represents endpoint configuration
type EndpointConfig struct {
	URL    string
	Weight int
}

// ClientConfig holds client configuration
type ClientConfig struct {
	Endpoints         []EndpointConfig
	ContractID        string
	Timeout           time.Duration
	RequestsPerMinute int
	Burst             int
	Cache             cache.Cache
	CacheTTL          time.Duration
	Logger            *observability.Logger
	Metrics           *observability.Metrics
}

// NewClient creates a new Ref Finance RPC client
func NewClient(cfg ClientConfig) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}
	if cfg.ContractID == "" {
		return nil, fmt.Errorf("contract ID is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Set defaults
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 600
	}
	if cfg.Burst == 0 {
		cfg.Burst = 20
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 60 * time.Second
	}

	endpoints := make([]*Endpoint, 0, len(cfg.Endpoints))
	for _, epCfg := range cfg.Endpoints {
		ep := &Endpoint{URL: epCfg.URL, Weight: epCfg.Weight}
		ep.healthy.Store(true)
		endpoints = append(endpoints, ep)
	}

	// Adaptive limiting backs off when public RPC nodes start returning
	// 429s and recovers once calls succeed again.
	baseRate := float64(cfg.RequestsPerMinute) / 60.0
	limiter := resilience.NewAdaptiveLimiter(resilience.AdaptiveLimiterConfig{
		BaseRate: baseRate,
		MinRate:  baseRate / 10,
		MaxRate:  baseRate * 2,
		Burst:    cfg.Burst,
	})

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoints:  endpoints,
		contractID: cfg.ContractID,
		limiter:    limiter,
		retryCfg: resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Jitter:      0.2,
		},
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}

	c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "near-rpc",
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		OnStateChange: func(from, to resilience.State) {
			cfg.Logger.Warn("RPC circuit breaker state change",
				"from", from.String(),
				"to", to.String(),
			)
			if cfg.Metrics != nil {
				cfg.Metrics.SetCircuitBreakerState(context.Background(), "near-rpc", int64(to))
			}
		},
	})

	return c, nil
}

// rpcRequest is a NEAR JSON-RPC request envelope.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type queryParams struct {
	RequestType string `json:"request_type"`
	Finality    string `json:"finality"`
	AccountID   string `json:"account_id"`
	MethodName  string `json:"method_name"`
	ArgsBase64  string `json:"args_base64"`
}

type rpcResponse struct {
	Result *callResult `json:"result"`
	Error  *rpcError   `json:"error"`
}

type callResult struct {
	Result      byteArray `json:"result"`
	Logs        []string  `json:"logs"`
	BlockHeight uint64    `json:"block_height"`
}

// byteArray decodes call_function results, which the RPC encodes as a JSON
// array of byte values rather than a base64 string.
type byteArray []byte

func (b *byteArray) UnmarshalJSON(data []byte) error {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

type rpcError struct {
	Name  string          `json:"name"`
	Cause json.RawMessage `json:"cause"`
	Data  string          `json:"data"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %s: %s", e.Name, e.Data)
}

// refPool is the get_pool view function's response shape.
type refPool struct {
	PoolKind          string   `json:"pool_kind"`
	TokenAccountIDs   []string `json:"token_account_ids"`
	Amounts           []string `json:"amounts"`
	TotalFee          uint32   `json:"total_fee"`
	SharesTotalSupply string   `json:"shares_total_supply"`
}

// GetPool fetches one pool's current state via the get_pool view function.
func (c *Client) GetPool(ctx context.Context, poolID uint64) (*amm.PoolState, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	state, err := resilience.ExecuteWithResult(c.breaker, ctx, func(ctx context.Context) (*amm.PoolState, error) {
		return resilience.RetryWithResult(ctx, c.retryCfg, func(ctx context.Context) (*amm.PoolState, error) {
			return c.fetchPool(ctx, poolID)
		})
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall(ctx, "get_pool", status, time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if cacheErr := c.cache.Set(ctx, poolCacheKey(poolID), state, c.cacheTTL); cacheErr != nil {
			c.logger.Debug("failed to cache pool state", "pool_id", poolID, "error", cacheErr)
		}
	}
	return state, nil
}

// LastGood returns the most recent successfully fetched state for a pool,
// if the cache still holds one.
func (c *Client) LastGood(ctx context.Context, poolID uint64) (*amm.PoolState, bool) {
	if c.cache == nil {
		return nil, false
	}
	val, err := c.cache.Get(ctx, poolCacheKey(poolID))
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordCacheMiss(ctx, "pool_state")
		}
		return nil, false
	}
	state, ok := val.(*amm.PoolState)
	if !ok {
		return nil, false
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, "pool_state")
	}
	return state, true
}

func poolCacheKey(poolID uint64) string {
	return fmt.Sprintf("pool_state:%d", poolID)
}

// fetchPool performs one view call against the next healthy endpoint.
func (c *Client) fetchPool(ctx context.Context, poolID uint64) (*amm.PoolState, error) {
	args, err := json.Marshal(map[string]uint64{"pool_id": poolID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode args: %w", err)
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      fmt.Sprintf("get_pool-%d", poolID),
		Method:  "query",
		Params: queryParams{
			RequestType: "call_function",
			Finality:    "final",
			AccountID:   c.contractID,
			MethodName:  "get_pool",
			ArgsBase64:  base64.StdEncoding.EncodeToString(args),
		},
	}

	resp, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}

	var pool refPool
	if err := json.Unmarshal(resp.Result, &pool); err != nil {
		return nil, fmt.Errorf("failed to decode pool %d: %w", poolID, err)
	}

	return poolStateFrom(poolID, pool)
}

// call posts a JSON-RPC request, rotating away from failing endpoints.
func (c *Client) call(ctx context.Context, req rpcRequest) (*callResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint, err := c.nextEndpoint()
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.limiter.RecordError()
		c.markUnhealthy(ctx, endpoint)
		return nil, fmt.Errorf("rpc call to %s failed: %w", endpoint.URL, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests {
		c.limiter.RecordRateLimitError()
		return nil, fmt.Errorf("rpc call to %s was rate limited", endpoint.URL)
	}
	if httpResp.StatusCode != http.StatusOK {
		c.limiter.RecordError()
		c.markUnhealthy(ctx, endpoint)
		return nil, fmt.Errorf("rpc call to %s returned status %d", endpoint.URL, httpResp.StatusCode)
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	if rpcResp.Result == nil {
		return nil, fmt.Errorf("rpc response missing result")
	}

	c.limiter.RecordSuccess()
	c.markHealthy(ctx, endpoint)
	return rpcResp.Result, nil
}

// nextEndpoint returns the next healthy endpoint round-robin. When all
// endpoints look unhealthy the least recently used one is tried anyway,
// which doubles as the recovery probe.
func (c *Client) nextEndpoint() (*Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempts := 0; attempts < len(c.endpoints); attempts++ {
		ep := c.endpoints[c.current]
		c.current = (c.current + 1) % len(c.endpoints)
		if ep.healthy.Load() {
			return ep, nil
		}
	}

	ep := c.endpoints[c.current]
	c.current = (c.current + 1) % len(c.endpoints)
	return ep, nil
}

func (c *Client) markUnhealthy(ctx context.Context, ep *Endpoint) {
	if ep.healthy.Swap(false) {
		c.logger.Warn("marking RPC endpoint as unhealthy", "url", ep.URL)
		if c.metrics != nil {
			c.metrics.RecordRPCEndpointHealth(ctx, ep.URL, false)
		}
	}
}

func (c *Client) markHealthy(ctx context.Context, ep *Endpoint) {
	if !ep.healthy.Swap(true) {
		c.logger.Info("RPC endpoint is healthy again", "url", ep.URL)
		if c.metrics != nil {
			c.metrics.RecordRPCEndpointHealth(ctx, ep.URL, true)
		}
	}
}

// HealthyEndpoints returns the number of endpoints currently marked healthy.
func (c *Client) HealthyEndpoints() int {
	count := 0
	for _, ep := range c.endpoints {
		if ep.healthy.Load() {
			count++
		}
	}
	return count
}

// poolStateFrom converts a get_pool response into an engine snapshot.
func poolStateFrom(poolID uint64, pool refPool) (*amm.PoolState, error) {
	if len(pool.TokenAccountIDs) != len(pool.Amounts) {
		return nil, fmt.Errorf("pool %d: %d tokens but %d amounts",
			poolID, len(pool.TokenAccountIDs), len(pool.Amounts))
	}

	reserves := make([]*big.Int, 0, len(pool.Amounts))
	for _, amount := range pool.Amounts {
		r, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("pool %d: invalid reserve amount %q", poolID, amount)
		}
		reserves = append(reserves, r)
	}

	lpSupply := new(big.Int)
	if pool.SharesTotalSupply != "" {
		if _, ok := lpSupply.SetString(pool.SharesTotalSupply, 10); !ok {
			return nil, fmt.Errorf("pool %d: invalid shares supply %q", poolID, pool.SharesTotalSupply)
		}
	}

	return &amm.PoolState{
		PoolID:   poolID,
		TokenIDs: pool.TokenAccountIDs,
		Reserves: reserves,
		FeeBps:   pool.TotalFee,
		LPSupply: lpSupply,
	}, nil
}
