package arbitrage

// PathIndex maintains the token-pair → pools index and the derived two-hop
// and triangle path lists. Discovery is incremental: adding a pool only
// inspects already-registered pools, existing paths are never recomputed.
//
// Pools are never removed. The deployment registers a fixed universe of
// high-liquidity pools at startup, so the index only grows during that
// phase and is read-only on the scan path.

// TrianglePath is a directed three-pool cycle TokenA→TokenB→TokenC→TokenA.
type TrianglePath struct {
	PoolAB uint64
	PoolBC uint64
	PoolCA uint64
	TokenA string
	TokenB string
	TokenC string
}

// TwoHopPath is an unordered pair of pools sharing the same token pair.
type TwoHopPath struct {
	PoolA uint64
	PoolB uint64
}

type PathIndex struct {
	// edges[from][to] lists every pool carrying the from→to edge. Each
	// pool appears under both orientations of its pair.
	edges map[string]map[string][]uint64

	twoHopPaths   []TwoHopPath
	trianglePaths []TrianglePath

	// Reverse indexes so a pool update only touches its own paths.
	twoHopByPool    map[uint64][]int
	trianglesByPool map[uint64][]int
}

func NewPathIndex() *PathIndex {
	return &PathIndex{
		edges:           make(map[string]map[string][]uint64),
		twoHopByPool:    make(map[uint64][]int),
		trianglesByPool: make(map[uint64][]int),
	}
}

// AddPool indexes a pool's token pair in both orientations and discovers
// the new two-hop and triangle paths it completes. O(registered pools) per
// call, which is fine off the hot path.
func (x *PathIndex) AddPool(poolID uint64, tokenA, tokenB string) {
	x.discoverTwoHops(poolID, tokenA, tokenB)
	x.discoverTriangles(poolID, tokenA, tokenB)

	x.addEdge(tokenA, tokenB, poolID)
	x.addEdge(tokenB, tokenA, poolID)
}

func (x *PathIndex) addEdge(from, to string, poolID uint64) {
	m, ok := x.edges[from]
	if !ok {
		m = make(map[string][]uint64)
		x.edges[from] = m
	}
	m[to] = append(m[to], poolID)
}

// poolsOn returns every pool carrying the from→to edge.
func (x *PathIndex) poolsOn(from, to string) []uint64 {
	return x.edges[from][to]
}

func (x *PathIndex) discoverTwoHops(poolID uint64, tokenA, tokenB string) {
	// Every existing pool with the same pair is already indexed under the
	// A→B orientation, regardless of its own reserve order.
	for _, other := range x.poolsOn(tokenA, tokenB) {
		if other == poolID {
			continue
		}
		idx := len(x.twoHopPaths)
		x.twoHopPaths = append(x.twoHopPaths, TwoHopPath{PoolA: poolID, PoolB: other})
		x.twoHopByPool[poolID] = append(x.twoHopByPool[poolID], idx)
		x.twoHopByPool[other] = append(x.twoHopByPool[other], idx)
	}
}

func (x *PathIndex) discoverTriangles(poolID uint64, tokenA, tokenB string) {
	// The new pool is the A→B edge of a candidate cycle A→B→C→A. Walk
	// every outgoing edge B→C, then look for a closing C→A edge. A token
	// with many parallel pools multiplies combinations here, so the
	// caller curates the registered universe rather than this index.
	for tokenC, bcPools := range x.edges[tokenB] {
		if tokenC == tokenA || tokenC == tokenB {
			continue
		}
		caPools := x.poolsOn(tokenC, tokenA)
		if len(caPools) == 0 {
			continue
		}
		for _, poolBC := range bcPools {
			if poolBC == poolID {
				continue
			}
			for _, poolCA := range caPools {
				if poolCA == poolID || poolCA == poolBC {
					continue
				}
				idx := len(x.trianglePaths)
				x.trianglePaths = append(x.trianglePaths, TrianglePath{
					PoolAB: poolID,
					PoolBC: poolBC,
					PoolCA: poolCA,
					TokenA: tokenA,
					TokenB: tokenB,
					TokenC: tokenC,
				})
				x.trianglesByPool[poolID] = append(x.trianglesByPool[poolID], idx)
				x.trianglesByPool[poolBC] = append(x.trianglesByPool[poolBC], idx)
				x.trianglesByPool[poolCA] = append(x.trianglesByPool[poolCA], idx)
			}
		}
	}
}

// TwoHopsFor returns the two-hop paths referencing the given pool.
func (x *PathIndex) TwoHopsFor(poolID uint64) []TwoHopPath {
	idxs := x.twoHopByPool[poolID]
	if len(idxs) == 0 {
		return nil
	}
	paths := make([]TwoHopPath, 0, len(idxs))
	for _, i := range idxs {
		paths = append(paths, x.twoHopPaths[i])
	}
	return paths
}

// TrianglesFor returns the triangle paths referencing the given pool.
func (x *PathIndex) TrianglesFor(poolID uint64) []TrianglePath {
	idxs := x.trianglesByPool[poolID]
	if len(idxs) == 0 {
		return nil
	}
	paths := make([]TrianglePath, 0, len(idxs))
	for _, i := range idxs {
		paths = append(paths, x.trianglePaths[i])
	}
	return paths
}

// TwoHopCount returns the total number of discovered two-hop paths.
func (x *PathIndex) TwoHopCount() int {
	return len(x.twoHopPaths)
}

// TriangleCount returns the total number of discovered triangle paths.
func (x *PathIndex) TriangleCount() int {
	return len(x.trianglePaths)
}
