package arbitrage

import "testing"

func TestTwoHopDiscoveryIgnoresReserveOrder(t *testing.T) {
	idx := NewPathIndex()

	idx.AddPool(1, "wrap.near", "usdc.near")
	idx.AddPool(2, "usdc.near", "wrap.near") // same pair, reversed reserves
	idx.AddPool(3, "wrap.near", "usdt.near") // different pair

	if got := idx.TwoHopCount(); got != 1 {
		t.Fatalf("TwoHopCount = %d, want 1", got)
	}
	for _, poolID := range []uint64{1, 2} {
		paths := idx.TwoHopsFor(poolID)
		if len(paths) != 1 {
			t.Errorf("TwoHopsFor(%d) = %d paths, want 1", poolID, len(paths))
		}
	}
	if paths := idx.TwoHopsFor(3); len(paths) != 0 {
		t.Errorf("TwoHopsFor(3) = %d paths, want 0", len(paths))
	}
}

func TestTriangleDiscoveryAnyRegistrationOrder(t *testing.T) {
	orders := [][]struct {
		id       uint64
		from, to string
	}{
		{{1, "a", "b"}, {2, "b", "c"}, {3, "c", "a"}},
		{{3, "c", "a"}, {1, "a", "b"}, {2, "b", "c"}},
		{{2, "b", "c"}, {3, "c", "a"}, {1, "a", "b"}},
	}

	for i, order := range orders {
		idx := NewPathIndex()
		for _, p := range order {
			idx.AddPool(p.id, p.from, p.to)
		}
		if got := idx.TriangleCount(); got != 1 {
			t.Errorf("order %d: TriangleCount = %d, want 1", i, got)
			continue
		}
		for _, poolID := range []uint64{1, 2, 3} {
			if paths := idx.TrianglesFor(poolID); len(paths) != 1 {
				t.Errorf("order %d: TrianglesFor(%d) = %d, want 1", i, poolID, len(paths))
			}
		}
	}
}

func TestTriangleRequiresThreeDistinctPools(t *testing.T) {
	idx := NewPathIndex()

	idx.AddPool(1, "a", "b")
	idx.AddPool(2, "b", "a") // parallel pool, not a cycle closer

	if got := idx.TriangleCount(); got != 0 {
		t.Errorf("TriangleCount = %d, want 0", got)
	}
	if got := idx.TwoHopCount(); got != 1 {
		t.Errorf("TwoHopCount = %d, want 1", got)
	}
}

func TestParallelPoolsMultiplyTriangles(t *testing.T) {
	idx := NewPathIndex()

	idx.AddPool(1, "a", "b")
	idx.AddPool(2, "b", "c")
	idx.AddPool(3, "b", "c") // second pool on the b-c edge
	idx.AddPool(4, "c", "a")

	// Cycle a→b→c→a closes through either b-c pool.
	if got := idx.TriangleCount(); got != 2 {
		t.Errorf("TriangleCount = %d, want 2", got)
	}
}

func TestLatencyRingBounded(t *testing.T) {
	ring := newLatencyRing(scanLatencyCapacity)
	for i := 0; i < scanLatencyCapacity+500; i++ {
		ring.record(1)
	}
	if got := ring.count(); got != scanLatencyCapacity {
		t.Errorf("count = %d, want %d", got, scanLatencyCapacity)
	}
}
