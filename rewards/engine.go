package rewards

import (
	"math/big"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Scale is the fixed-point scale of the reward-per-share accumulator.
var Scale = uint256.NewInt(1_000_000_000_000_000_000)

// holder is one account's recorded share balance and its view of the accumulator.
type holder struct {
	shares     *uint256.Int
	checkpoint *uint256.Int
	owed       *uint256.Int
}

// Engine distributes time-bounded reward budgets to share holders with a
// reward-per-share accumulator and lazy per-holder checkpoints.
//
// The engine keeps its own record of every holder's shares; rewards are
// computed from that record only. Engine carries no lock. Its owner (a pool)
// serializes every call, settles a holder with Checkpoint before changing its
// balance and records the new balance with SetShares afterwards.
type Engine struct {
	// rate is reward units per second, scaled by Scale.
	rate        *uint256.Int
	startedAt   uint64
	expiresAt   uint64
	accumulator *uint256.Int
	// carry is emitted reward, scaled by Scale, too small to raise the accumulator yet.
	carry      *uint256.Int
	lastUpdate uint64
	holders    map[common.Address]*holder
}

// Info is a read-only snapshot of the schedule, the accumulator and one holder.
type Info struct {
	Rate        *big.Int `json:"rate"`
	StartedAt   uint64   `json:"startedAt"`
	ExpiresAt   uint64   `json:"expiresAt"`
	Accumulator *big.Int `json:"accumulator"`
	LastUpdate  uint64   `json:"lastUpdate"`
	Shares      *big.Int `json:"shares"`
	Checkpoint  *big.Int `json:"checkpoint"`
	Owed        *big.Int `json:"owed"`
	Pending     *big.Int `json:"pending"`
}

// New creates an idle engine whose accumulator starts at now.
func New(now uint64) *Engine {
	return &Engine{
		rate:        new(uint256.Int),
		accumulator: new(uint256.Int),
		carry:       new(uint256.Int),
		lastUpdate:  now,
		holders:     make(map[common.Address]*holder),
	}
}

// Accruing reports whether a schedule with a non-zero rate is emitting at now.
func (e *Engine) Accruing(now uint64) bool {
	return !e.rate.IsZero() && now < e.expiresAt
}

// accrued returns the accumulator and carry at now without storing them.
func (e *Engine) accrued(now uint64, totalShares *uint256.Int) (acc, carry *uint256.Int, last uint64, err error) {
	acc = new(uint256.Int).Set(e.accumulator)
	carry = new(uint256.Int).Set(e.carry)
	end := min(now, e.expiresAt)
	if end <= e.lastUpdate {
		return acc, carry, e.lastUpdate, nil
	}
	if totalShares.IsZero() || e.rate.IsZero() {
		// nobody holds shares, so this stretch of the budget is not emitted
		return acc, carry, end, nil
	}

	emitted, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(end-e.lastUpdate), e.rate)
	if overflow {
		return nil, nil, 0, engine.Overflowf("elapsed * rate")
	}
	if _, overflow = emitted.AddOverflow(emitted, carry); overflow {
		return nil, nil, 0, engine.Overflowf("emitted reward")
	}
	perShare, rem := new(uint256.Int).DivMod(emitted, totalShares, new(uint256.Int))
	if _, overflow = acc.AddOverflow(acc, perShare); overflow {
		return nil, nil, 0, engine.Overflowf("reward accumulator")
	}
	return acc, rem, end, nil
}

// Refresh folds the emission since the last update into the accumulator.
func (e *Engine) Refresh(now uint64, totalShares *uint256.Int) error {
	acc, carry, last, err := e.accrued(now, totalShares)
	if err != nil {
		return err
	}
	e.accumulator = acc
	e.carry = carry
	e.lastUpdate = last
	return nil
}

// SetSchedule starts emitting amount evenly until expiresAt. Pending accrual of
// the previous schedule is flushed first; its unemitted remainder is dropped.
func (e *Engine) SetSchedule(now, expiresAt uint64, amount, totalShares *uint256.Int) error {
	if expiresAt <= now {
		return engine.InvalidArgumentf("schedule expiry %d is not after now (%d)", expiresAt, now)
	}
	if amount == nil || amount.IsZero() {
		return engine.InvalidArgumentf("schedule amount must be positive")
	}
	if err := e.Refresh(now, totalShares); err != nil {
		return err
	}

	rate, overflow := new(uint256.Int).MulDivOverflow(amount, Scale, uint256.NewInt(expiresAt-now))
	if overflow {
		return engine.Overflowf("reward rate")
	}
	e.rate = rate
	e.startedAt = now
	e.expiresAt = expiresAt
	e.lastUpdate = now
	return nil
}

func (e *Engine) holder(account common.Address) *holder {
	h, ok := e.holders[account]
	if !ok {
		h = &holder{
			shares:     new(uint256.Int),
			checkpoint: new(uint256.Int).Set(e.accumulator),
			owed:       new(uint256.Int),
		}
		e.holders[account] = h
	}
	return h
}

// earned returns shares * (acc - checkpoint) / Scale.
func earned(shares, acc, checkpoint *uint256.Int) (*uint256.Int, error) {
	delta := new(uint256.Int).Sub(acc, checkpoint)
	out, overflow := new(uint256.Int).MulDivOverflow(shares, delta, Scale)
	if overflow {
		return nil, engine.Overflowf("earned reward")
	}
	return out, nil
}

// Shares returns the share balance recorded for account.
func (e *Engine) Shares(account common.Address) *uint256.Int {
	if h, ok := e.holders[account]; ok {
		return new(uint256.Int).Set(h.shares)
	}
	return new(uint256.Int)
}

// Checkpoint credits account with everything its recorded shares earned up to
// now and moves its checkpoint to the current accumulator. totalShares is the
// supply before the pending change.
func (e *Engine) Checkpoint(now uint64, account common.Address, totalShares *uint256.Int) error {
	if err := e.Refresh(now, totalShares); err != nil {
		return err
	}
	h := e.holder(account)
	gain, err := earned(h.shares, e.accumulator, h.checkpoint)
	if err != nil {
		return err
	}
	owed, overflow := new(uint256.Int).AddOverflow(h.owed, gain)
	if overflow {
		return engine.Overflowf("owed reward")
	}
	h.owed = owed
	h.checkpoint = new(uint256.Int).Set(e.accumulator)
	return nil
}

// SetShares records account's new share balance. It must follow a Checkpoint
// of account at the same instant.
func (e *Engine) SetShares(account common.Address, shares *uint256.Int) {
	e.holder(account).shares = new(uint256.Int).Set(shares)
}

// Claim settles account and hands its owed reward to pay. The owed balance is
// cleared only when pay succeeds. A zero claim skips pay and is not an error.
func (e *Engine) Claim(now uint64, account common.Address, totalShares *uint256.Int, pay func(amount *uint256.Int) error) (*uint256.Int, error) {
	if err := e.Checkpoint(now, account, totalShares); err != nil {
		return nil, err
	}
	h := e.holder(account)
	amount := new(uint256.Int).Set(h.owed)
	if amount.IsZero() {
		return amount, nil
	}
	if err := engine.CheckAmount("reward", amount); err != nil {
		return nil, err
	}
	if err := pay(amount); err != nil {
		return nil, err
	}
	h.owed = new(uint256.Int)
	return amount, nil
}

// Pending returns what Claim would pay at now, without changing any state.
func (e *Engine) Pending(now uint64, account common.Address, totalShares *uint256.Int) (*uint256.Int, error) {
	h, ok := e.holders[account]
	if !ok {
		return new(uint256.Int), nil
	}
	acc, _, _, err := e.accrued(now, totalShares)
	if err != nil {
		return nil, err
	}
	gain, err := earned(h.shares, acc, h.checkpoint)
	if err != nil {
		return nil, err
	}
	pending, overflow := new(uint256.Int).AddOverflow(h.owed, gain)
	if overflow {
		return nil, engine.Overflowf("pending reward")
	}
	return pending, nil
}

// Info returns the schedule and account state as of the last refresh, plus
// the account's pending reward at now. Rate is reported in whole units per
// second.
func (e *Engine) Info(now uint64, account common.Address, totalShares *uint256.Int) (Info, error) {
	pending, err := e.Pending(now, account, totalShares)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		Rate:        new(uint256.Int).Div(e.rate, Scale).ToBig(),
		StartedAt:   e.startedAt,
		ExpiresAt:   e.expiresAt,
		Accumulator: e.accumulator.ToBig(),
		LastUpdate:  e.lastUpdate,
		Shares:      new(big.Int),
		Checkpoint:  new(big.Int),
		Owed:        new(big.Int),
		Pending:     pending.ToBig(),
	}
	if h, ok := e.holders[account]; ok {
		info.Shares = h.shares.ToBig()
		info.Checkpoint = h.checkpoint.ToBig()
		info.Owed = h.owed.ToBig()
	}
	return info, nil
}
