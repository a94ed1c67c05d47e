package pool

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/defistate/defistate-amm-go/engine"
	constantproduct "github.com/defistate/defistate-amm-go/protocols/constantproduct"
	stableswap "github.com/defistate/defistate-amm-go/protocols/stableswap"
	"github.com/defistate/defistate-amm-go/rewards"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Config holds the immutable fields of a pool. Exactly one of ConstantProduct
// and StableSwap must be set.
type Config struct {
	// Address is where the pool lives; it holds the reserves on the ledger.
	Address common.Address
	// Admin is the only account allowed to set reward schedules.
	Admin  common.Address
	Tokens []common.Address

	ConstantProduct *constantproduct.Params
	StableSwap      *stableswap.Params

	Env    engine.Env
	Logger engine.Logger
}

func (c *Config) validate() error {
	if err := c.Env.Validate(); err != nil {
		return err
	}
	if c.Logger == nil {
		return engine.InvalidArgumentf("Logger cannot be nil")
	}
	if c.Address == (common.Address{}) {
		return engine.InvalidArgumentf("Address cannot be zero")
	}
	if (c.ConstantProduct == nil) == (c.StableSwap == nil) {
		return engine.InvalidArgumentf("exactly one of ConstantProduct and StableSwap must be set")
	}
	return ValidateTokens(c.Tokens)
}

// ValidateTokens checks that tokens names at least two distinct assets.
func ValidateTokens(tokens []common.Address) error {
	if len(tokens) < 2 {
		return engine.InvalidArgumentf("a pool needs at least 2 tokens, got %d", len(tokens))
	}
	seen := make(map[common.Address]struct{}, len(tokens))
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			return engine.InvalidArgumentf("duplicate token %s", t.Hex())
		}
		seen[t] = struct{}{}
	}
	return nil
}

// SortTokens returns a sorted copy of tokens. Sorted order is the canonical
// index order used by every pool operation.
func SortTokens(tokens []common.Address) []common.Address {
	sorted := slices.Clone(tokens)
	slices.SortFunc(sorted, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return sorted
}

// ShareTokenAddress returns the address of the share token issued by the pool at addr.
func ShareTokenAddress(addr common.Address) common.Address {
	return crypto.CreateAddress(addr, 0)
}

// Pool is one liquidity pool: its reserves, its share supply and the reward
// engine attached to that supply. All methods are safe for concurrent use and
// each one runs as a single serialized invocation.
type Pool struct {
	mu sync.RWMutex

	address    common.Address
	admin      common.Address
	shareToken common.Address
	tokens     []common.Address
	curve      invariant

	reserves    []*uint256.Int
	totalShares *uint256.Int

	rewards       *rewards.Engine
	rewardToken   common.Address
	rewardStorage common.Address
	rewardsReady  bool

	env    engine.Env
	logger engine.Logger
}

// New initializes an empty pool: zero reserves and zero shares.
func New(cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var curve invariant
	if cfg.ConstantProduct != nil {
		if err := cfg.ConstantProduct.Validate(); err != nil {
			return nil, err
		}
		curve = constantProduct{params: *cfg.ConstantProduct}
	} else {
		if err := cfg.StableSwap.Validate(); err != nil {
			return nil, err
		}
		curve = stableSwap{params: *cfg.StableSwap}
	}
	if err := curve.validateTokenCount(len(cfg.Tokens)); err != nil {
		return nil, err
	}

	reserves := make([]*uint256.Int, len(cfg.Tokens))
	for i := range reserves {
		reserves[i] = new(uint256.Int)
	}

	return &Pool{
		address:     cfg.Address,
		admin:       cfg.Admin,
		shareToken:  ShareTokenAddress(cfg.Address),
		tokens:      SortTokens(cfg.Tokens),
		curve:       curve,
		reserves:    reserves,
		totalShares: new(uint256.Int),
		rewards:     rewards.New(cfg.Env.Clock.Now()),
		env:         cfg.Env,
		logger:      cfg.Logger,
	}, nil
}

// --- Getters ---

func (p *Pool) Address() common.Address    { return p.address }
func (p *Pool) ShareToken() common.Address { return p.shareToken }
func (p *Pool) Kind() string               { return p.curve.kind() }
func (p *Pool) FeeBps() uint32             { return p.curve.feeBps() }

// Tokens returns the pool's tokens in canonical order.
func (p *Pool) Tokens() []common.Address {
	return slices.Clone(p.tokens)
}

// TokenIndex returns the canonical index of token.
func (p *Pool) TokenIndex(token common.Address) (int, bool) {
	i := slices.Index(p.tokens, token)
	return i, i >= 0
}

// Reserves returns a copy of the reserves, index-aligned with Tokens.
func (p *Pool) Reserves() []*big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return engine.FromAmounts(p.reserves)
}

// TotalShares returns the outstanding share supply.
func (p *Pool) TotalShares() *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return engine.FromAmount(p.totalShares)
}

// SharesOf returns the share balance the pool has recorded for account. Shares
// moved on the ledger without TransferShares are not counted.
func (p *Pool) SharesOf(account common.Address) *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rewards.Shares(account).ToBig()
}

// --- Rewards configuration ---

// InitializeRewards sets the asset rewards are paid in and the account they
// are paid from. It can be called once.
func (p *Pool) InitializeRewards(rewardToken, rewardStorage common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rewardsReady {
		return fmt.Errorf("%w: rewards already configured for pool %s", engine.ErrAlreadyExists, p.address.Hex())
	}
	if rewardToken == (common.Address{}) || rewardStorage == (common.Address{}) {
		return engine.InvalidArgumentf("reward token and storage cannot be zero")
	}
	p.rewardToken = rewardToken
	p.rewardStorage = rewardStorage
	p.rewardsReady = true
	return nil
}

// --- Liquidity ---

// Deposit adds liquidity. The first deposit takes desired as-is and fixes the
// exchange rate; later deposits are scaled to the current reserve ratio. mins
// may be nil; otherwise each actual amount must reach its minimum.
func (p *Pool) Deposit(caller common.Address, desired, mins []*big.Int) ([]*big.Int, *big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	want, err := p.amounts("desired", desired)
	if err != nil {
		return nil, nil, err
	}
	floor, err := p.optionalAmounts("min", mins)
	if err != nil {
		return nil, nil, err
	}
	if err := p.env.Auth.RequireAuth(caller); err != nil {
		return nil, nil, err
	}

	var (
		actual []*uint256.Int
		minted *uint256.Int
	)
	if p.totalShares.IsZero() {
		for i, d := range want {
			if d.IsZero() {
				return nil, nil, engine.InvalidArgumentf("initial deposit of token %d must be positive", i)
			}
		}
		actual = want
		if minted, err = p.curve.initialShares(want); err != nil {
			return nil, nil, err
		}
		if minted.IsZero() {
			return nil, nil, engine.InvalidArgumentf("initial deposit mints zero shares")
		}
	} else {
		if actual, minted, err = proportionalDeposit(want, p.reserves, p.totalShares); err != nil {
			return nil, nil, err
		}
	}
	if err := checkMins(actual, floor); err != nil {
		return nil, nil, err
	}

	newReserves, err := addAll(p.reserves, actual)
	if err != nil {
		return nil, nil, err
	}
	newTotal, overflow := new(uint256.Int).AddOverflow(p.totalShares, minted)
	if overflow || engine.CheckAmount("total shares", newTotal) != nil {
		return nil, nil, engine.Overflowf("total shares")
	}

	held := p.rewards.Shares(caller)
	if err := p.rewards.Checkpoint(p.env.Clock.Now(), caller, p.totalShares); err != nil {
		return nil, nil, err
	}
	if err := p.pull(caller, actual); err != nil {
		return nil, nil, err
	}
	if err := p.env.Ledger.Mint(p.shareToken, caller, minted.ToBig()); err != nil {
		p.refund(caller, actual)
		return nil, nil, err
	}

	p.reserves = newReserves
	p.totalShares = newTotal
	p.rewards.SetShares(caller, new(uint256.Int).Add(held, minted))
	p.logger.Debug("deposit", "pool", p.address.Hex(), "caller", caller.Hex(), "shares", minted.Dec())
	return engine.FromAmounts(actual), minted.ToBig(), nil
}

// Withdraw burns shares and pays out the caller's pro-rata part of every
// reserve. mins may be nil; otherwise each paid amount must reach its minimum.
func (p *Pool) Withdraw(caller common.Address, shareAmount *big.Int, mins []*big.Int) ([]*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	shares, err := engine.ToAmount("share amount", shareAmount)
	if err != nil {
		return nil, err
	}
	if shares.IsZero() {
		return nil, engine.InvalidArgumentf("share amount must be positive")
	}
	floor, err := p.optionalAmounts("min", mins)
	if err != nil {
		return nil, err
	}
	if err := p.env.Auth.RequireAuth(caller); err != nil {
		return nil, err
	}

	held := p.rewards.Shares(caller)
	if p.totalShares.IsZero() {
		return nil, fmt.Errorf("%w: pool %s is empty", engine.ErrInsufficientLiquidity, p.address.Hex())
	}
	if held.Lt(shares) {
		return nil, fmt.Errorf("%w: %s holds %s shares, withdrawing %s", engine.ErrInsufficientBalance, caller.Hex(), held.Dec(), shares.Dec())
	}

	paid, err := proportionalWithdraw(shares, p.reserves, p.totalShares)
	if err != nil {
		return nil, err
	}
	if err := checkMins(paid, floor); err != nil {
		return nil, err
	}

	if err := p.rewards.Checkpoint(p.env.Clock.Now(), caller, p.totalShares); err != nil {
		return nil, err
	}
	if err := p.env.Ledger.Burn(p.shareToken, caller, shares.ToBig()); err != nil {
		return nil, err
	}
	if err := p.push(caller, paid); err != nil {
		p.rollback("restore burned shares", p.shareToken, p.env.Ledger.Mint(p.shareToken, caller, shares.ToBig()))
		return nil, err
	}

	for i := range p.reserves {
		p.reserves[i] = new(uint256.Int).Sub(p.reserves[i], paid[i])
	}
	p.totalShares = new(uint256.Int).Sub(p.totalShares, shares)
	p.rewards.SetShares(caller, new(uint256.Int).Sub(held, shares))
	p.logger.Debug("withdraw", "pool", p.address.Hex(), "caller", caller.Hex(), "shares", shares.Dec())
	return engine.FromAmounts(paid), nil
}

// TransferShares moves amount of the caller's shares to another account. Both
// accounts are settled first, so reward earned before the move stays with the
// caller and the receiver earns from now on.
func (p *Pool) TransferShares(caller, to common.Address, amount *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	shares, err := engine.ToAmount("share amount", amount)
	if err != nil {
		return err
	}
	if shares.IsZero() {
		return engine.InvalidArgumentf("share amount must be positive")
	}
	if to == caller || to == (common.Address{}) {
		return engine.InvalidArgumentf("cannot move shares from %s to %s", caller.Hex(), to.Hex())
	}
	if err := p.env.Auth.RequireAuth(caller); err != nil {
		return err
	}

	held := p.rewards.Shares(caller)
	if held.Lt(shares) {
		return fmt.Errorf("%w: %s holds %s shares, moving %s", engine.ErrInsufficientBalance, caller.Hex(), held.Dec(), shares.Dec())
	}
	received := p.rewards.Shares(to)

	now := p.env.Clock.Now()
	if err := p.rewards.Checkpoint(now, caller, p.totalShares); err != nil {
		return err
	}
	if err := p.rewards.Checkpoint(now, to, p.totalShares); err != nil {
		return err
	}
	if err := p.env.Ledger.Transfer(p.shareToken, caller, to, shares.ToBig()); err != nil {
		return err
	}

	p.rewards.SetShares(caller, new(uint256.Int).Sub(held, shares))
	p.rewards.SetShares(to, new(uint256.Int).Add(received, shares))
	p.logger.Debug("transfer shares", "pool", p.address.Hex(), "from", caller.Hex(), "to", to.Hex(), "shares", shares.Dec())
	return nil
}

// --- Swaps ---

// Swap trades exactly amountIn of token in for at least minOut of token out.
func (p *Pool) Swap(caller common.Address, in, out int, amountIn, minOut *big.Int) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dx, err := engine.ToAmount("amount in", amountIn)
	if err != nil {
		return nil, err
	}
	floor, err := engine.ToAmount("min out", minOut)
	if err != nil {
		return nil, err
	}
	if dx.IsZero() {
		return nil, engine.InvalidArgumentf("amount in must be positive")
	}
	if err := p.env.Auth.RequireAuth(caller); err != nil {
		return nil, err
	}

	dy, err := p.curve.amountOut(dx, in, out, p.reserves)
	if err != nil {
		return nil, err
	}
	if dy.IsZero() {
		return nil, engine.InvalidArgumentf("swap of %s returns nothing", dx.Dec())
	}
	if dy.Lt(floor) {
		return nil, fmt.Errorf("%w: output %s is below minimum %s", engine.ErrSlippageExceeded, dy.Dec(), floor.Dec())
	}

	if err := p.settleSwap(caller, in, out, dx, dy); err != nil {
		return nil, err
	}
	return dy.ToBig(), nil
}

// SwapExactOut trades at most maxIn of token in for exactly amountOut of
// token out and returns the input charged.
func (p *Pool) SwapExactOut(caller common.Address, in, out int, amountOut, maxIn *big.Int) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dy, err := engine.ToAmount("amount out", amountOut)
	if err != nil {
		return nil, err
	}
	ceiling, err := engine.ToAmount("max in", maxIn)
	if err != nil {
		return nil, err
	}
	if dy.IsZero() {
		return nil, engine.InvalidArgumentf("amount out must be positive")
	}
	if err := p.env.Auth.RequireAuth(caller); err != nil {
		return nil, err
	}

	dx, err := p.curve.amountIn(dy, in, out, p.reserves)
	if err != nil {
		return nil, err
	}
	if dx.Gt(ceiling) {
		return nil, fmt.Errorf("%w: input %s is above maximum %s", engine.ErrSlippageExceeded, dx.Dec(), ceiling.Dec())
	}

	if err := p.settleSwap(caller, in, out, dx, dy); err != nil {
		return nil, err
	}
	return dx.ToBig(), nil
}

// settleSwap moves dx in and dy out and updates the reserves.
// MUST be called with the write lock held.
func (p *Pool) settleSwap(caller common.Address, in, out int, dx, dy *uint256.Int) error {
	newIn, overflow := new(uint256.Int).AddOverflow(p.reserves[in], dx)
	if overflow || engine.CheckAmount("reserve", newIn) != nil {
		return engine.Overflowf("reserve %d", in)
	}
	if !dy.Lt(p.reserves[out]) {
		return fmt.Errorf("%w: output %s drains reserve %d", engine.ErrInsufficientLiquidity, dy.Dec(), out)
	}

	if err := p.env.Ledger.Transfer(p.tokens[in], caller, p.address, dx.ToBig()); err != nil {
		return err
	}
	if err := p.env.Ledger.Transfer(p.tokens[out], p.address, caller, dy.ToBig()); err != nil {
		p.rollback("return swap input", p.tokens[in], p.env.Ledger.Transfer(p.tokens[in], p.address, caller, dx.ToBig()))
		return err
	}

	p.reserves[in] = newIn
	p.reserves[out] = new(uint256.Int).Sub(p.reserves[out], dy)
	p.logger.Debug("swap", "pool", p.address.Hex(), "caller", caller.Hex(), "in", dx.Dec(), "out", dy.Dec())
	return nil
}

// Estimate returns what Swap would pay for amountIn without changing state.
// An output that rounds to zero is reported as 0.
func (p *Pool) Estimate(in, out int, amountIn *big.Int) (*big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dx, err := engine.ToAmount("amount in", amountIn)
	if err != nil {
		return nil, err
	}
	dy, err := p.curve.amountOut(dx, in, out, p.reserves)
	if err != nil {
		return nil, err
	}
	return dy.ToBig(), nil
}

// EstimateIn returns what SwapExactOut would charge for amountOut without changing state.
func (p *Pool) EstimateIn(in, out int, amountOut *big.Int) (*big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dy, err := engine.ToAmount("amount out", amountOut)
	if err != nil {
		return nil, err
	}
	dx, err := p.curve.amountIn(dy, in, out, p.reserves)
	if err != nil {
		return nil, err
	}
	return dx.ToBig(), nil
}

// --- Rewards ---

// SetRewardSchedule starts emitting amount of the reward token until
// expiresAt. Only the admin may call it.
func (p *Pool) SetRewardSchedule(caller common.Address, expiresAt uint64, amount *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.env.Auth.RequireAuth(caller); err != nil {
		return err
	}
	if caller != p.admin {
		return fmt.Errorf("%w: %s is not the pool admin", engine.ErrUnauthorized, caller.Hex())
	}
	if !p.rewardsReady {
		return engine.InvalidArgumentf("rewards are not configured for pool %s", p.address.Hex())
	}
	total, err := engine.ToAmount("reward amount", amount)
	if err != nil {
		return err
	}
	if err := p.rewards.SetSchedule(p.env.Clock.Now(), expiresAt, total, p.totalShares); err != nil {
		return err
	}
	p.logger.Info("reward schedule set", "pool", p.address.Hex(), "expiresAt", expiresAt, "amount", total.Dec())
	return nil
}

// Claim pays the caller every reward it has earned so far. Zero is a valid result.
func (p *Pool) Claim(caller common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.env.Auth.RequireAuth(caller); err != nil {
		return nil, err
	}
	if !p.rewardsReady {
		return nil, engine.InvalidArgumentf("rewards are not configured for pool %s", p.address.Hex())
	}

	paid, err := p.rewards.Claim(p.env.Clock.Now(), caller, p.totalShares, func(amount *uint256.Int) error {
		return p.env.Ledger.Transfer(p.rewardToken, p.rewardStorage, caller, amount.ToBig())
	})
	if err != nil {
		return nil, err
	}
	return paid.ToBig(), nil
}

// PendingReward returns what Claim would pay account now.
func (p *Pool) PendingReward(account common.Address) (*big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pending, err := p.rewards.Pending(p.env.Clock.Now(), account, p.totalShares)
	if err != nil {
		return nil, err
	}
	return pending.ToBig(), nil
}

// RewardInfo returns the schedule, accumulator and account reward state.
func (p *Pool) RewardInfo(account common.Address) (rewards.Info, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rewards.Info(p.env.Clock.Now(), account, p.totalShares)
}

// --- Helpers ---

func (p *Pool) amounts(name string, vs []*big.Int) ([]*uint256.Int, error) {
	if len(vs) != len(p.tokens) {
		return nil, engine.InvalidArgumentf("%s has %d amounts for %d tokens", name, len(vs), len(p.tokens))
	}
	return engine.ToAmounts(name, vs)
}

func (p *Pool) optionalAmounts(name string, vs []*big.Int) ([]*uint256.Int, error) {
	if vs == nil {
		return nil, nil
	}
	return p.amounts(name, vs)
}

// pull moves amounts from caller into the pool, undoing partial progress on failure.
func (p *Pool) pull(caller common.Address, amounts []*uint256.Int) error {
	for i, a := range amounts {
		if err := p.env.Ledger.Transfer(p.tokens[i], caller, p.address, a.ToBig()); err != nil {
			p.refund(caller, amounts[:i])
			return err
		}
	}
	return nil
}

// push moves amounts from the pool to caller, undoing partial progress on failure.
func (p *Pool) push(caller common.Address, amounts []*uint256.Int) error {
	for i, a := range amounts {
		if err := p.env.Ledger.Transfer(p.tokens[i], p.address, caller, a.ToBig()); err != nil {
			for j := range amounts[:i] {
				p.rollback("return withdrawn token", p.tokens[j], p.env.Ledger.Transfer(p.tokens[j], caller, p.address, amounts[j].ToBig()))
			}
			return err
		}
	}
	return nil
}

func (p *Pool) refund(caller common.Address, amounts []*uint256.Int) {
	for i, a := range amounts {
		p.rollback("refund deposit", p.tokens[i], p.env.Ledger.Transfer(p.tokens[i], p.address, caller, a.ToBig()))
	}
}

// rollback logs a compensating ledger call that failed. The pool's own state
// is untouched either way; the ledger is left for the host to roll back.
func (p *Pool) rollback(action string, token common.Address, err error) {
	if err != nil {
		p.logger.Error("rollback failed", "pool", p.address.Hex(), "action", action, "token", token.Hex(), "error", err)
	}
}

func checkMins(amounts, mins []*uint256.Int) error {
	if mins == nil {
		return nil
	}
	var errs []error
	for i := range amounts {
		if amounts[i].Lt(mins[i]) {
			errs = append(errs, fmt.Errorf("%w: token %d amount %s is below minimum %s", engine.ErrSlippageExceeded, i, amounts[i].Dec(), mins[i].Dec()))
		}
	}
	return errors.Join(errs...)
}

func addAll(reserves, amounts []*uint256.Int) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(reserves))
	for i := range reserves {
		sum, overflow := new(uint256.Int).AddOverflow(reserves[i], amounts[i])
		if overflow || engine.CheckAmount("reserve", sum) != nil {
			return nil, engine.Overflowf("reserve %d", i)
		}
		out[i] = sum
	}
	return out, nil
}
