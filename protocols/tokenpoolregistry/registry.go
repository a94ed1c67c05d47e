package tokenpoolregistry

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// TokenPoolRegistryView provides a complete snapshot of the graph's core data
// structures, for consumers that run their own traversal (route search, UIs).
type TokenPoolRegistryView struct {
	Tokens      []common.Address `json:"tokens"`
	Pools       []common.Address `json:"pools"`
	Adjacency   [][]int          `json:"adjacency"`
	EdgeTargets []int            `json:"edgeTargets"`
	EdgePools   [][]int          `json:"edgePools"`
}

// TokenPoolRegistry is a simple, non-thread-safe data structure that manages
// the relationship between tokens and pools using a graph representation.
// Every pool is a clique over its tokens; an edge carries every pool that
// trades that directed pair. Pools are never removed, matching deployments.
type TokenPoolRegistry struct {
	// Lookups for fast index retrieval
	tokenToIndex map[common.Address]int
	poolToIndex  map[common.Address]int

	// Core data stored in slices, indexed by insertion order
	tokens      []common.Address
	pools       []common.Address
	adjacency   [][]int
	edgeTargets []int
	edgePools   [][]int
}

// NewTokenPoolRegistry creates a new, properly initialized graph-based registry.
func NewTokenPoolRegistry() *TokenPoolRegistry {
	return &TokenPoolRegistry{
		tokenToIndex: make(map[common.Address]int),
		poolToIndex:  make(map[common.Address]int),
		tokens:       make([]common.Address, 0),
		pools:        make([]common.Address, 0),
		adjacency:    make([][]int, 0),
		edgeTargets:  make([]int, 0),
		edgePools:    make([][]int, 0),
	}
}

func (r *TokenPoolRegistry) tokenIndex(token common.Address) int {
	index, exists := r.tokenToIndex[token]
	if !exists {
		index = len(r.tokens)
		r.tokens = append(r.tokens, token)
		r.tokenToIndex[token] = index
		r.adjacency = append(r.adjacency, nil)
	}
	return index
}

// addEdge creates or updates a directed edge from a source token to a target token,
// associating it with the given pool.
func (r *TokenPoolRegistry) addEdge(from, to, pool common.Address) {
	fromIndex := r.tokenIndex(from)
	toIndex := r.tokenIndex(to)
	poolIndex, exists := r.poolToIndex[pool]
	if !exists {
		poolIndex = len(r.pools)
		r.pools = append(r.pools, pool)
		r.poolToIndex[pool] = poolIndex
	}

	// Search for an existing edge from the source to the target token.
	for _, edgeIndex := range r.adjacency[fromIndex] {
		if r.edgeTargets[edgeIndex] == toIndex {
			if !slices.Contains(r.edgePools[edgeIndex], poolIndex) {
				r.edgePools[edgeIndex] = append(r.edgePools[edgeIndex], poolIndex)
			}
			return
		}
	}

	// If no edge exists, create a new one.
	newEdgeIndex := len(r.edgeTargets)
	r.edgeTargets = append(r.edgeTargets, toIndex)
	r.edgePools = append(r.edgePools, []int{poolIndex})
	r.adjacency[fromIndex] = append(r.adjacency[fromIndex], newEdgeIndex)
}

// add creates a fully connected graph (a clique) between all tokens in the pool.
func (r *TokenPoolRegistry) add(tokens []common.Address, pool common.Address) {
	for i := 0; i < len(tokens); i++ {
		for j := i + 1; j < len(tokens); j++ {
			r.addEdge(tokens[i], tokens[j], pool)
			r.addEdge(tokens[j], tokens[i], pool)
		}
	}
}

// poolsForToken returns every pool holding token, in the order pools were added.
func (r *TokenPoolRegistry) poolsForToken(token common.Address) []common.Address {
	tokenIndex, exists := r.tokenToIndex[token]
	if !exists {
		return nil
	}

	// A token shares a pool with several partners, so collect unique indices.
	var poolIndices []int
	for _, edgeIndex := range r.adjacency[tokenIndex] {
		for _, poolIndex := range r.edgePools[edgeIndex] {
			if !slices.Contains(poolIndices, poolIndex) {
				poolIndices = append(poolIndices, poolIndex)
			}
		}
	}
	return r.resolve(poolIndices)
}

// poolsForPair returns every pool trading a against b, in the order pools were added.
func (r *TokenPoolRegistry) poolsForPair(a, b common.Address) []common.Address {
	fromIndex, ok := r.tokenToIndex[a]
	if !ok {
		return nil
	}
	toIndex, ok := r.tokenToIndex[b]
	if !ok {
		return nil
	}
	for _, edgeIndex := range r.adjacency[fromIndex] {
		if r.edgeTargets[edgeIndex] == toIndex {
			return r.resolve(slices.Clone(r.edgePools[edgeIndex]))
		}
	}
	return nil
}

func (r *TokenPoolRegistry) resolve(poolIndices []int) []common.Address {
	if len(poolIndices) == 0 {
		return nil
	}
	slices.Sort(poolIndices)
	out := make([]common.Address, len(poolIndices))
	for i, poolIndex := range poolIndices {
		out[i] = r.pools[poolIndex]
	}
	return out
}

// neighbors returns every token sharing at least one pool with token.
func (r *TokenPoolRegistry) neighbors(token common.Address) []common.Address {
	tokenIndex, exists := r.tokenToIndex[token]
	if !exists {
		return nil
	}
	var out []common.Address
	for _, edgeIndex := range r.adjacency[tokenIndex] {
		out = append(out, r.tokens[r.edgeTargets[edgeIndex]])
	}
	return out
}

// view returns a deep copy of the graph's core data structures.
func (r *TokenPoolRegistry) view() *TokenPoolRegistryView {
	return deepCopyView(&TokenPoolRegistryView{
		Tokens:      r.tokens,
		Pools:       r.pools,
		Adjacency:   r.adjacency,
		EdgeTargets: r.edgeTargets,
		EdgePools:   r.edgePools,
	})
}

// deepCopyView creates a new TokenPoolRegistryView with its own memory for all its slices.
func deepCopyView(v *TokenPoolRegistryView) *TokenPoolRegistryView {
	if v == nil {
		return nil
	}
	newV := &TokenPoolRegistryView{}
	newV.Tokens = append(make([]common.Address, 0, len(v.Tokens)), v.Tokens...)
	newV.Pools = append(make([]common.Address, 0, len(v.Pools)), v.Pools...)
	newV.EdgeTargets = append(make([]int, 0, len(v.EdgeTargets)), v.EdgeTargets...)

	newV.Adjacency = make([][]int, len(v.Adjacency))
	for i, inner := range v.Adjacency {
		if inner != nil {
			newV.Adjacency[i] = append(make([]int, 0, len(inner)), inner...)
		}
	}
	newV.EdgePools = make([][]int, len(v.EdgePools))
	for i, inner := range v.EdgePools {
		if inner != nil {
			newV.EdgePools[i] = append(make([]int, 0, len(inner)), inner...)
		}
	}
	return newV
}
