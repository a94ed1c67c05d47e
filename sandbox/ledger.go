package sandbox

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// MemoryLedger is an in-process engine.Ledger holding balances for any number
// of assets. Every asset exists implicitly; the first mint creates its supply.
type MemoryLedger struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]*big.Int
	supply   map[common.Address]*big.Int
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[common.Address]map[common.Address]*big.Int),
		supply:   make(map[common.Address]*big.Int),
	}
}

func checkLedgerAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return engine.InvalidArgumentf("ledger amount must be non-nil and non-negative")
	}
	return nil
}

// balance returns the live balance pointer, creating it if needed.
// MUST be called with the write lock held.
func (l *MemoryLedger) balance(asset, account common.Address) *big.Int {
	accounts, ok := l.balances[asset]
	if !ok {
		accounts = make(map[common.Address]*big.Int)
		l.balances[asset] = accounts
	}
	b, ok := accounts[account]
	if !ok {
		b = new(big.Int)
		accounts[account] = b
	}
	return b
}

// Transfer moves amount of asset from one account to another.
func (l *MemoryLedger) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if err := checkLedgerAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.balance(asset, from)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", engine.ErrInsufficientBalance, from.Hex(), src.String(), asset.Hex(), amount.String())
	}
	src.Sub(src, amount)
	dst := l.balance(asset, to)
	dst.Add(dst, amount)
	return nil
}

// BalanceOf returns a copy of the account's balance of asset.
func (l *MemoryLedger) BalanceOf(asset, account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if b, ok := l.balances[asset][account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Mint credits amount of asset to an account and grows the supply.
func (l *MemoryLedger) Mint(asset, to common.Address, amount *big.Int) error {
	if err := checkLedgerAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dst := l.balance(asset, to)
	dst.Add(dst, amount)
	s, ok := l.supply[asset]
	if !ok {
		s = new(big.Int)
		l.supply[asset] = s
	}
	s.Add(s, amount)
	return nil
}

// Burn debits amount of asset from an account and shrinks the supply.
func (l *MemoryLedger) Burn(asset, from common.Address, amount *big.Int) error {
	if err := checkLedgerAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.balance(asset, from)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("%w: cannot burn %s of %s from %s", engine.ErrInsufficientBalance, amount.String(), asset.Hex(), from.Hex())
	}
	src.Sub(src, amount)
	if s, ok := l.supply[asset]; ok {
		s.Sub(s, amount)
	}
	return nil
}

// TotalSupply returns a copy of the asset's outstanding supply.
func (l *MemoryLedger) TotalSupply(asset common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if s, ok := l.supply[asset]; ok {
		return new(big.Int).Set(s)
	}
	return new(big.Int)
}
