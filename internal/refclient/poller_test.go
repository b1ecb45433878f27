package refclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// multiPoolServer serves get_pool for a set of pools and fails the rest.
func multiPoolServer(t *testing.T, pools map[uint64]refPool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     string      `json:"id"`
			Params queryParams `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode rpc request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		args, err := base64.StdEncoding.DecodeString(req.Params.ArgsBase64)
		if err != nil {
			t.Errorf("bad args_base64: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var call struct {
			PoolID uint64 `json:"pool_id"`
		}
		if err := json.Unmarshal(args, &call); err != nil {
			t.Errorf("bad args json: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		pool, ok := pools[call.PoolID]
		if !ok {
			resp := map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error": map[string]interface{}{
					"name": "HANDLER_ERROR",
					"data": fmt.Sprintf("pool %d not found", call.PoolID),
				},
			}
			json.NewEncoder(w).Encode(resp)
			return
		}

		body, _ := json.Marshal(pool)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]interface{}{"result": toByteValues(body)},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func simplePool(token0, token1, r0, r1 string) refPool {
	return refPool{
		PoolKind:        "SIMPLE_POOL",
		TokenAccountIDs: []string{token0, token1},
		Amounts:         []string{r0, r1},
		TotalFee:        30,
	}
}

func TestPollerDeliversAllPools(t *testing.T) {
	srv := multiPoolServer(t, map[uint64]refPool{
		4:  simplePool("wrap.near", "usdt.tether-token.near", "1000", "2000"),
		79: simplePool("wrap.near", "token.v2.ref-finance.near", "3000", "4000"),
	})
	defer srv.Close()

	poller, err := NewPoller(PollerConfig{
		Client:   newTestClient(t, srv.URL),
		PoolIDs:  []uint64{4, 79},
		Interval: time.Hour,
		Workers:  2,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("NewPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	seen := make(map[uint64]bool)
	timeout := time.After(5 * time.Second)
	for len(seen) < 2 {
		select {
		case state := <-poller.Updates():
			seen[state.PoolID] = true
		case <-timeout:
			t.Fatalf("timed out, saw pools %v", seen)
		}
	}
	if !seen[4] || !seen[79] {
		t.Errorf("missing pools in delivery: %v", seen)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}

func TestPollerSkipsFailedPool(t *testing.T) {
	srv := multiPoolServer(t, map[uint64]refPool{
		4: simplePool("wrap.near", "usdt.tether-token.near", "1000", "2000"),
	})
	defer srv.Close()

	poller, err := NewPoller(PollerConfig{
		Client:   newTestClient(t, srv.URL),
		PoolIDs:  []uint64{4, 999999},
		Interval: time.Hour,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("NewPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	select {
	case state := <-poller.Updates():
		if state.PoolID != 4 {
			t.Errorf("delivered pool %d, want 4", state.PoolID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("healthy pool was not delivered")
	}
}

func TestNewPollerValidation(t *testing.T) {
	client := newTestClient(t, "http://localhost:3030")

	tests := []struct {
		name string
		cfg  PollerConfig
	}{
		{"no client", PollerConfig{PoolIDs: []uint64{4}, Logger: testLogger()}},
		{"no pools", PollerConfig{Client: client, Logger: testLogger()}},
		{"no logger", PollerConfig{Client: client, PoolIDs: []uint64{4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPoller(tt.cfg); err == nil {
				t.Error("expected configuration error")
			}
		})
	}
}
