package sandbox

import (
	"fmt"
	"sync"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// --- Authorization ---

// StaticAuthorizer is an engine.Authorizer backed by an allow-list. With
// AllowAll set every account is treated as having signed the invocation.
// Every RequireAuth call is recorded so tests can assert which accounts
// an operation demanded.
type StaticAuthorizer struct {
	mu       sync.Mutex
	allowAll bool
	allowed  map[common.Address]struct{}
	calls    []common.Address
}

// NewStaticAuthorizer creates an authorizer. allowAll mirrors a host that
// mocks every signature.
func NewStaticAuthorizer(allowAll bool) *StaticAuthorizer {
	return &StaticAuthorizer{
		allowAll: allowAll,
		allowed:  make(map[common.Address]struct{}),
	}
}

// Grant marks account as having authorized subsequent invocations.
func (a *StaticAuthorizer) Grant(account common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allowed[account] = struct{}{}
}

// Revoke removes a previous grant.
func (a *StaticAuthorizer) Revoke(account common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allowed, account)
}

// SetAllowAll toggles blanket authorization.
func (a *StaticAuthorizer) SetAllowAll(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allowAll = v
}

// RequireAuth implements engine.Authorizer.
func (a *StaticAuthorizer) RequireAuth(account common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, account)
	if a.allowAll {
		return nil
	}
	if _, ok := a.allowed[account]; ok {
		return nil
	}
	return fmt.Errorf("%w: %s did not authorize the call", engine.ErrUnauthorized, account.Hex())
}

// Calls returns the accounts passed to RequireAuth, oldest first.
func (a *StaticAuthorizer) Calls() []common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]common.Address, len(a.calls))
	copy(out, a.calls)
	return out
}

// Reset forgets the recorded calls.
func (a *StaticAuthorizer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = nil
}

// --- Time ---

// ManualClock is an engine.Clock that only moves when told to.
type ManualClock struct {
	mu  sync.RWMutex
	now uint64
}

// NewManualClock creates a clock frozen at start.
func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements engine.Clock.
func (c *ManualClock) Now() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock forward by seconds.
func (c *ManualClock) Advance(seconds uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
}

// Set moves the clock to an absolute timestamp.
func (c *ManualClock) Set(ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ts
}

// --- Deployment ---

// CodeSpace is an engine.Deployer that tracks which addresses hold code.
type CodeSpace struct {
	mu       sync.RWMutex
	occupied map[common.Address]common.Hash
}

// NewCodeSpace creates an empty code space.
func NewCodeSpace() *CodeSpace {
	return &CodeSpace{occupied: make(map[common.Address]common.Hash)}
}

// DeployCode implements engine.Deployer.
func (c *CodeSpace) DeployCode(deployer common.Address, code common.Hash, salt common.Hash) (common.Address, error) {
	addr := engine.DeriveAddress(deployer, code, salt)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.occupied[addr]; exists {
		return common.Address{}, fmt.Errorf("%w: address %s already holds code", engine.ErrAlreadyExists, addr.Hex())
	}
	c.occupied[addr] = code
	return addr, nil
}

// CodeAt returns the code reference deployed at addr, if any.
func (c *CodeSpace) CodeAt(addr common.Address) (common.Hash, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	code, ok := c.occupied[addr]
	return code, ok
}

// --- Bundle ---

// Host groups the sandbox collaborators behind one value.
type Host struct {
	Ledger    *MemoryLedger
	Auth      *StaticAuthorizer
	Clock     *ManualClock
	CodeSpace *CodeSpace
}

// NewHost creates a sandbox with every signature mocked and the clock at start.
func NewHost(start uint64) *Host {
	return &Host{
		Ledger:    NewMemoryLedger(),
		Auth:      NewStaticAuthorizer(true),
		Clock:     NewManualClock(start),
		CodeSpace: NewCodeSpace(),
	}
}

// Env returns the host as an engine.Env.
func (h *Host) Env() engine.Env {
	return engine.Env{
		Ledger: h.Ledger,
		Auth:   h.Auth,
		Clock:  h.Clock,
	}
}
