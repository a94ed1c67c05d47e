package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the fungible-asset ledger the pools settle against. It holds the
// balances of every asset, including each pool's own share token.
//
// Implementations enforce their own transfer rules and report failures with
// ErrInsufficientBalance or ErrUnauthorized.
type Ledger interface {
	Transfer(asset, from, to common.Address, amount *big.Int) error
	BalanceOf(asset, account common.Address) *big.Int
	Mint(asset, to common.Address, amount *big.Int) error
	Burn(asset, from common.Address, amount *big.Int) error
}

// Authorizer proves that a named account authorized the current invocation.
// RequireAuth must return an error wrapping ErrUnauthorized when it did not.
type Authorizer interface {
	RequireAuth(account common.Address) error
}

// Clock reports the host timestamp, in seconds, of the current invocation.
type Clock interface {
	Now() uint64
}

// Deployer is the host's code-deployment primitive. DeployCode instantiates
// code at the address derived from (deployer, salt, code) and fails with
// ErrAlreadyExists if that address is already occupied.
type Deployer interface {
	DeployCode(deployer common.Address, code common.Hash, salt common.Hash) (common.Address, error)
}

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Env bundles the host collaborators a pool needs for one invocation.
type Env struct {
	Ledger Ledger
	Auth   Authorizer
	Clock  Clock
}

// Validate checks that every collaborator is present.
func (e Env) Validate() error {
	if e.Ledger == nil {
		return InvalidArgumentf("env: Ledger cannot be nil")
	}
	if e.Auth == nil {
		return InvalidArgumentf("env: Auth cannot be nil")
	}
	if e.Clock == nil {
		return InvalidArgumentf("env: Clock cannot be nil")
	}
	return nil
}
