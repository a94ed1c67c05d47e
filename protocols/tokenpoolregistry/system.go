package tokenpoolregistry

import (
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// TokenPoolSystem provides a concurrency-safe layer for managing the graph-based TokenPoolRegistry.
// It uses a sync.RWMutex for writes and an atomic.Pointer for lock-free snapshot reads.
type TokenPoolSystem struct {
	mu         sync.RWMutex
	registry   *TokenPoolRegistry
	cachedView atomic.Pointer[TokenPoolRegistryView] // Read-optimized cache for the registry view
}

// NewTokenPoolSystem creates and initializes a new, concurrency-safe TokenPoolSystem.
func NewTokenPoolSystem() *TokenPoolSystem {
	s := &TokenPoolSystem{
		registry: NewTokenPoolRegistry(),
	}
	// Initialize the cached view with an empty, non-nil snapshot.
	s.cachedView.Store(s.registry.view())
	return s
}

// updateCachedView generates a fresh view from the registry and atomically updates the pointer.
// This method MUST be called from within a write lock (s.mu.Lock).
func (s *TokenPoolSystem) updateCachedView() {
	s.cachedView.Store(s.registry.view())
}

// --- Write Methods ---

// AddPool adds a single liquidity pool.
func (s *TokenPoolSystem) AddPool(tokens []common.Address, pool common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.add(tokens, pool)
	s.updateCachedView()
}

// --- Read Methods ---

// PoolsForToken returns every pool holding token, oldest first.
func (s *TokenPoolSystem) PoolsForToken(token common.Address) []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsForToken(token)
}

// PoolsForPair returns every pool that trades a against b, oldest first.
func (s *TokenPoolSystem) PoolsForPair(a, b common.Address) []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsForPair(a, b)
}

// Neighbors returns every token reachable from token through a single pool.
func (s *TokenPoolSystem) Neighbors(token common.Address) []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.neighbors(token)
}

// View returns a deep copy of the graph's core data structures. It reads the
// cached snapshot without taking the lock.
func (s *TokenPoolSystem) View() *TokenPoolRegistryView {
	cached := s.cachedView.Load()
	if cached == nil {
		return &TokenPoolRegistryView{}
	}
	// Copy so callers cannot modify the shared cache.
	return deepCopyView(cached)
}
