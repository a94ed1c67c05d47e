package router

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/pool"
	constantproduct "github.com/defistate/defistate-amm-go/protocols/constantproduct"
	stableswap "github.com/defistate/defistate-amm-go/protocols/stableswap"
	tokenpoolregistry "github.com/defistate/defistate-amm-go/protocols/tokenpoolregistry"
	"github.com/defistate/defistate-amm-go/rewards"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Operation names used as metric labels.
const (
	opDeploy           = "deploy"
	opDeposit          = "deposit"
	opWithdraw         = "withdraw"
	opSwap             = "swap"
	opSwapExactOut     = "swap_exact_out"
	opSwapBest         = "swap_best"
	opSetRewardsConfig = "set_rewards_config"
	opClaim            = "claim"
	opTransferShares   = "transfer_shares"
)

// Config holds the router's identity, its host collaborators and the code
// references it deploys.
type Config struct {
	// Address is the router's own account. Pools are deployed from it.
	Address common.Address
	// Admin becomes the admin of every deployed pool.
	Admin       common.Address
	RewardToken common.Address
	// RewardStorage pays out pool rewards. Defaults to Address.
	RewardStorage common.Address

	Env      engine.Env
	Deployer engine.Deployer

	// ConstantProductCode defaults to DefaultConstantProductCode.
	ConstantProductCode common.Hash
	// StableSwapCodes maps a token count to its code reference. Missing
	// counts use DefaultStableSwapCode.
	StableSwapCodes map[int]common.Hash
	// MaxStablePools caps stableswap pools per token group. 0 means no cap.
	MaxStablePools int

	Registry prometheus.Registerer // Required for metrics.
	Logger   engine.Logger         // Required for logging.
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *Config) validate() error {
	if c.Registry == nil {
		return engine.InvalidArgumentf("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return engine.InvalidArgumentf("config: Logger cannot be nil")
	}
	if c.Deployer == nil {
		return engine.InvalidArgumentf("config: Deployer cannot be nil")
	}
	if c.Address == (common.Address{}) {
		return engine.InvalidArgumentf("config: Address cannot be zero")
	}
	if c.RewardToken == (common.Address{}) {
		return engine.InvalidArgumentf("config: RewardToken cannot be zero")
	}
	if c.MaxStablePools < 0 {
		return engine.InvalidArgumentf("config: MaxStablePools cannot be negative")
	}
	return c.Env.Validate()
}

// PoolParams selects the pool type to deploy. Exactly one field must be set.
type PoolParams struct {
	ConstantProduct *constantproduct.Params
	StableSwap      *stableswap.Params
}

// Router deploys pools at deterministic addresses, records them per token
// group and dispatches operations to them.
type Router struct {
	mu sync.RWMutex

	address       common.Address
	admin         common.Address
	rewardToken   common.Address
	rewardStorage common.Address
	cpCode        common.Hash
	ssCodes       map[int]common.Hash
	maxStable     int

	groups map[common.Hash]*group
	pools  map[common.Address]*pool.Pool
	graph  *tokenpoolregistry.TokenPoolSystem

	env      engine.Env
	deployer engine.Deployer
	metrics  *Metrics
	logger   engine.Logger
}

// New constructs a router from a configuration, returning an error if the config is invalid.
func New(cfg *Config) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	storage := cfg.RewardStorage
	if storage == (common.Address{}) {
		storage = cfg.Address
	}
	cpCode := cfg.ConstantProductCode
	if cpCode == (common.Hash{}) {
		cpCode = DefaultConstantProductCode
	}
	ssCodes := make(map[int]common.Hash, stableswap.MaxTokens-stableswap.MinTokens+1)
	for n := stableswap.MinTokens; n <= stableswap.MaxTokens; n++ {
		code, ok := cfg.StableSwapCodes[n]
		if !ok || code == (common.Hash{}) {
			code = DefaultStableSwapCode(n)
		}
		ssCodes[n] = code
	}

	return &Router{
		address:       cfg.Address,
		admin:         cfg.Admin,
		rewardToken:   cfg.RewardToken,
		rewardStorage: storage,
		cpCode:        cpCode,
		ssCodes:       ssCodes,
		maxStable:     cfg.MaxStablePools,
		groups:        make(map[common.Hash]*group),
		pools:         make(map[common.Address]*pool.Pool),
		graph:         tokenpoolregistry.NewTokenPoolSystem(),
		env:           cfg.Env,
		deployer:      cfg.Deployer,
		metrics:       NewMetrics(cfg.Registry),
		logger:        cfg.Logger,
	}, nil
}

// Address returns the router's own account.
func (r *Router) Address() common.Address { return r.address }

// begin starts timing op. Defer the returned func with the named error result.
func (r *Router) begin(op string) func(err *error) {
	timer := prometheus.NewTimer(r.metrics.operationDuration.WithLabelValues(op))
	return func(err *error) {
		r.metrics.observe(op, timer, *err)
		if *err != nil {
			r.logger.Warn("router operation failed", "op", op, "error", *err)
		}
	}
}

// --- Addressing ---

func (r *Router) codeFor(kind string, tokenCount int) (common.Hash, error) {
	switch kind {
	case constantproduct.Kind:
		return r.cpCode, nil
	case stableswap.Kind:
		code, ok := r.ssCodes[tokenCount]
		if !ok {
			return common.Hash{}, stableswap.ValidateTokenCount(tokenCount)
		}
		return code, nil
	default:
		return common.Hash{}, engine.InvalidArgumentf("unknown pool type %q", kind)
	}
}

// PoolAddress computes where the pool of the given type and sub-salt for
// tokens lives, whether or not it has been deployed.
func (r *Router) PoolAddress(tokens []common.Address, subSalt common.Hash, kind string) (common.Address, error) {
	if err := pool.ValidateTokens(tokens); err != nil {
		return common.Address{}, err
	}
	code, err := r.codeFor(kind, len(tokens))
	if err != nil {
		return common.Address{}, err
	}
	return engine.DeriveAddress(r.address, code, DeploymentSalt(GroupSalt(tokens), subSalt)), nil
}

// --- Deployment ---

// DeployStandardPool deploys the constant-product pool of a fee tier. A tier
// can be deployed once per token group.
func (r *Router) DeployStandardPool(caller common.Address, tokens []common.Address, feeBps uint32) (common.Hash, common.Address, error) {
	return r.Deploy(caller, tokens, PoolParams{ConstantProduct: &constantproduct.Params{FeeBps: feeBps}})
}

// DeployStableSwapPool deploys a new stableswap pool. Every call yields a
// fresh address.
func (r *Router) DeployStableSwapPool(caller common.Address, tokens []common.Address, amplification uint64, feeBps uint32) (common.Hash, common.Address, error) {
	return r.Deploy(caller, tokens, PoolParams{StableSwap: &stableswap.Params{Amplification: amplification, FeeBps: feeBps}})
}

// Deploy instantiates a pool for tokens at its deterministic address, wires
// its rewards to the router's reward token and records it. It returns the
// pool's sub-salt and address.
func (r *Router) Deploy(caller common.Address, tokens []common.Address, params PoolParams) (subSalt common.Hash, addr common.Address, err error) {
	defer r.begin(opDeploy)(&err)

	if err := r.env.Auth.RequireAuth(caller); err != nil {
		return common.Hash{}, common.Address{}, err
	}
	if err := pool.ValidateTokens(tokens); err != nil {
		return common.Hash{}, common.Address{}, err
	}
	if (params.ConstantProduct == nil) == (params.StableSwap == nil) {
		return common.Hash{}, common.Address{}, engine.InvalidArgumentf("exactly one of ConstantProduct and StableSwap must be set")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	groupSalt := GroupSalt(tokens)
	g, ok := r.groups[groupSalt]
	if !ok {
		g = &group{}
	}

	var kind string
	switch {
	case params.ConstantProduct != nil:
		kind = constantproduct.Kind
		subSalt = StandardSubSalt(params.ConstantProduct.FeeBps)
	default:
		kind = stableswap.Kind
		if r.maxStable > 0 && g.count(stableswap.Kind) >= r.maxStable {
			return common.Hash{}, common.Address{}, engine.InvalidArgumentf("token group already has %d stableswap pools", r.maxStable)
		}
		subSalt = StableSubSalt(g.stableCounter)
	}

	code, err := r.codeFor(kind, len(tokens))
	if err != nil {
		return common.Hash{}, common.Address{}, err
	}
	salt := DeploymentSalt(groupSalt, subSalt)

	// Build the pool first so invalid parameters never occupy an address.
	p, err := pool.New(pool.Config{
		Address:         engine.DeriveAddress(r.address, code, salt),
		Admin:           r.admin,
		Tokens:          tokens,
		ConstantProduct: params.ConstantProduct,
		StableSwap:      params.StableSwap,
		Env:             r.env,
		Logger:          r.logger,
	})
	if err != nil {
		return common.Hash{}, common.Address{}, err
	}

	addr, err = r.deployer.DeployCode(r.address, code, salt)
	if err != nil {
		return common.Hash{}, common.Address{}, err
	}
	if addr != p.Address() {
		return common.Hash{}, common.Address{}, fmt.Errorf("deployer placed code at %s, expected %s", addr.Hex(), p.Address().Hex())
	}
	if err := p.InitializeRewards(r.rewardToken, r.rewardStorage); err != nil {
		return common.Hash{}, common.Address{}, err
	}

	if kind == stableswap.Kind {
		g.stableCounter++
	}
	entry := RegistryEntry{
		Type:    kind,
		SubSalt: subSalt,
		Address: addr,
		Tokens:  p.Tokens(),
	}
	g.entries = append(g.entries, entry)
	r.groups[groupSalt] = g
	r.pools[addr] = p
	r.graph.AddPool(entry.Tokens, addr)

	r.metrics.poolsDeployed.WithLabelValues(kind).Inc()
	r.logger.Info("pool deployed",
		"tokens", entry.Tokens,
		"type", kind,
		"subSalt", subSalt.Hex(),
		"address", addr.Hex(),
	)
	return subSalt, addr, nil
}

// --- Enumeration ---

// Pools returns the entries of a token group in creation order.
func (r *Router) Pools(tokens []common.Address) []RegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[GroupSalt(tokens)]
	if !ok {
		return nil
	}
	out := make([]RegistryEntry, len(g.entries))
	for i, e := range g.entries {
		out[i] = e.clone()
	}
	return out
}

// PoolsForToken returns every pool holding token, oldest first.
func (r *Router) PoolsForToken(token common.Address) []RegistryEntry {
	return r.entries(r.graph.PoolsForToken(token))
}

// PoolsForPair returns every pool trading a against b, oldest first.
func (r *Router) PoolsForPair(a, b common.Address) []RegistryEntry {
	return r.entries(r.graph.PoolsForPair(a, b))
}

// Neighbors returns every token that trades directly against token.
func (r *Router) Neighbors(token common.Address) []common.Address {
	return r.graph.Neighbors(token)
}

// Graph returns a snapshot of the token/pool graph.
func (r *Router) Graph() *tokenpoolregistry.TokenPoolRegistryView {
	return r.graph.View()
}

func (r *Router) entries(addrs []common.Address) []RegistryEntry {
	if len(addrs) == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RegistryEntry, 0, len(addrs))
	for _, addr := range addrs {
		if e, ok := r.entryLocked(addr); ok {
			out = append(out, e)
		}
	}
	return out
}

// entryLocked must be called with r.mu held.
func (r *Router) entryLocked(addr common.Address) (RegistryEntry, bool) {
	p, ok := r.pools[addr]
	if !ok {
		return RegistryEntry{}, false
	}
	for _, e := range r.groups[GroupSalt(p.Tokens())].entries {
		if e.Address == addr {
			return e.clone(), true
		}
	}
	return RegistryEntry{}, false
}

// Entry returns the registry entry of the pool deployed at addr.
func (r *Router) Entry(addr common.Address) (RegistryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entryLocked(addr)
	if !ok {
		return RegistryEntry{}, fmt.Errorf("%w: no pool at %s", engine.ErrNotFound, addr.Hex())
	}
	return e, nil
}

// Pool returns the pool of a token group with the given sub-salt.
func (r *Router) Pool(tokens []common.Address, subSalt common.Hash) (*pool.Pool, error) {
	if err := pool.ValidateTokens(tokens); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[GroupSalt(tokens)]
	if !ok {
		return nil, fmt.Errorf("%w: no pools for token group", engine.ErrNotFound)
	}
	e, ok := g.find(subSalt)
	if !ok {
		return nil, fmt.Errorf("%w: no pool with sub-salt %s", engine.ErrNotFound, subSalt.Hex())
	}
	return r.pools[e.Address], nil
}

// PoolAt returns the deployed pool at addr.
func (r *Router) PoolAt(addr common.Address) (*pool.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[addr]
	if !ok {
		return nil, fmt.Errorf("%w: no pool at %s", engine.ErrNotFound, addr.Hex())
	}
	return p, nil
}

// --- Dispatch ---

// Deposit adds liquidity to a pool. desired and mins follow the order of
// tokens, as does the returned amounts slice.
func (r *Router) Deposit(caller common.Address, tokens []common.Address, subSalt common.Hash, desired, mins []*big.Int) (amounts []*big.Int, shares *big.Int, err error) {
	defer r.begin(opDeposit)(&err)

	p, perm, err := r.lookup(tokens, subSalt)
	if err != nil {
		return nil, nil, err
	}
	want, err := toPoolOrder(desired, perm)
	if err != nil {
		return nil, nil, err
	}
	floor, err := toPoolOrder(mins, perm)
	if err != nil {
		return nil, nil, err
	}
	actual, shares, err := p.Deposit(caller, want, floor)
	if err != nil {
		return nil, nil, err
	}
	return fromPoolOrder(actual, perm), shares, nil
}

// Withdraw burns shares of a pool. mins and the returned amounts follow the order of tokens.
func (r *Router) Withdraw(caller common.Address, tokens []common.Address, subSalt common.Hash, shareAmount *big.Int, mins []*big.Int) (amounts []*big.Int, err error) {
	defer r.begin(opWithdraw)(&err)

	p, perm, err := r.lookup(tokens, subSalt)
	if err != nil {
		return nil, err
	}
	floor, err := toPoolOrder(mins, perm)
	if err != nil {
		return nil, err
	}
	out, err := p.Withdraw(caller, shareAmount, floor)
	if err != nil {
		return nil, err
	}
	return fromPoolOrder(out, perm), nil
}

// Swap sells amountIn of tokenIn for at least minOut of tokenOut.
func (r *Router) Swap(caller common.Address, tokens []common.Address, subSalt common.Hash, tokenIn, tokenOut common.Address, amountIn, minOut *big.Int) (amountOut *big.Int, err error) {
	defer r.begin(opSwap)(&err)

	p, in, out, err := r.lookupPair(tokens, subSalt, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return p.Swap(caller, in, out, amountIn, minOut)
}

// SwapExactOut buys exactly amountOut of tokenOut for at most maxIn of tokenIn.
func (r *Router) SwapExactOut(caller common.Address, tokens []common.Address, subSalt common.Hash, tokenIn, tokenOut common.Address, amountOut, maxIn *big.Int) (amountIn *big.Int, err error) {
	defer r.begin(opSwapExactOut)(&err)

	p, in, out, err := r.lookupPair(tokens, subSalt, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return p.SwapExactOut(caller, in, out, amountOut, maxIn)
}

// EstimateSwap quotes Swap without changing state.
func (r *Router) EstimateSwap(tokens []common.Address, subSalt common.Hash, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	p, in, out, err := r.lookupPair(tokens, subSalt, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return p.Estimate(in, out, amountIn)
}

// EstimateSwapIn quotes SwapExactOut without changing state.
func (r *Router) EstimateSwapIn(tokens []common.Address, subSalt common.Hash, tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	p, in, out, err := r.lookupPair(tokens, subSalt, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return p.EstimateIn(in, out, amountOut)
}

// SetRewardsConfig sets a pool's reward schedule. Only the admin may call it.
func (r *Router) SetRewardsConfig(caller common.Address, tokens []common.Address, subSalt common.Hash, expiresAt uint64, amount *big.Int) (err error) {
	defer r.begin(opSetRewardsConfig)(&err)

	p, _, err := r.lookup(tokens, subSalt)
	if err != nil {
		return err
	}
	return p.SetRewardSchedule(caller, expiresAt, amount)
}

// Claim pays caller the rewards it has earned in a pool.
func (r *Router) Claim(caller common.Address, tokens []common.Address, subSalt common.Hash) (paid *big.Int, err error) {
	defer r.begin(opClaim)(&err)

	p, _, err := r.lookup(tokens, subSalt)
	if err != nil {
		return nil, err
	}
	return p.Claim(caller)
}

// TransferShares moves caller's shares of a pool to another account, keeping
// the reward each side earned before the move.
func (r *Router) TransferShares(caller common.Address, tokens []common.Address, subSalt common.Hash, to common.Address, amount *big.Int) (err error) {
	defer r.begin(opTransferShares)(&err)

	p, _, err := r.lookup(tokens, subSalt)
	if err != nil {
		return err
	}
	return p.TransferShares(caller, to, amount)
}

// PendingReward returns what Claim would pay account now.
func (r *Router) PendingReward(account common.Address, tokens []common.Address, subSalt common.Hash) (*big.Int, error) {
	p, _, err := r.lookup(tokens, subSalt)
	if err != nil {
		return nil, err
	}
	return p.PendingReward(account)
}

// RewardInfo returns the reward state of a pool as seen by account.
func (r *Router) RewardInfo(account common.Address, tokens []common.Address, subSalt common.Hash) (rewards.Info, error) {
	p, _, err := r.lookup(tokens, subSalt)
	if err != nil {
		return rewards.Info{}, err
	}
	return p.RewardInfo(account)
}

// --- Helpers ---

// lookup resolves a pool and maps each position of tokens to its pool index.
func (r *Router) lookup(tokens []common.Address, subSalt common.Hash) (*pool.Pool, []int, error) {
	p, err := r.Pool(tokens, subSalt)
	if err != nil {
		return nil, nil, err
	}
	perm := make([]int, len(tokens))
	for i, t := range tokens {
		idx, ok := p.TokenIndex(t)
		if !ok {
			return nil, nil, engine.InvalidArgumentf("token %s is not in pool %s", t.Hex(), p.Address().Hex())
		}
		perm[i] = idx
	}
	return p, perm, nil
}

func (r *Router) lookupPair(tokens []common.Address, subSalt common.Hash, tokenIn, tokenOut common.Address) (*pool.Pool, int, int, error) {
	p, err := r.Pool(tokens, subSalt)
	if err != nil {
		return nil, 0, 0, err
	}
	in, out, err := pairIndices(p, tokenIn, tokenOut)
	if err != nil {
		return nil, 0, 0, err
	}
	return p, in, out, nil
}

func pairIndices(p *pool.Pool, tokenIn, tokenOut common.Address) (int, int, error) {
	in, ok := p.TokenIndex(tokenIn)
	if !ok {
		return 0, 0, engine.InvalidArgumentf("token %s is not in pool %s", tokenIn.Hex(), p.Address().Hex())
	}
	out, ok := p.TokenIndex(tokenOut)
	if !ok {
		return 0, 0, engine.InvalidArgumentf("token %s is not in pool %s", tokenOut.Hex(), p.Address().Hex())
	}
	return in, out, nil
}

// toPoolOrder reorders vs from caller order to pool order. A nil slice stays nil.
func toPoolOrder(vs []*big.Int, perm []int) ([]*big.Int, error) {
	if vs == nil {
		return nil, nil
	}
	if len(vs) != len(perm) {
		return nil, engine.InvalidArgumentf("expected %d amounts, got %d", len(perm), len(vs))
	}
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[perm[i]] = v
	}
	return out, nil
}

func fromPoolOrder(vs []*big.Int, perm []int) []*big.Int {
	out := make([]*big.Int, len(perm))
	for i, idx := range perm {
		out[i] = vs[idx]
	}
	return out
}
