package engine

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by the pool, reward and router layers wraps
// exactly one of these, so callers classify with errors.Is.
var (
	// ErrInvalidArgument covers bad indices, zero or negative amounts and malformed token sets.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSlippageExceeded is returned when an output falls below its minimum or an input exceeds its maximum.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrInsufficientLiquidity is returned when an operation would drain a reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrUnauthorized is returned when an authorization check fails.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAlreadyExists is returned on a deterministic address collision.
	ErrAlreadyExists = errors.New("already exists")
	// ErrArithmeticOverflow is returned when an intermediate value leaves the integer range.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	// ErrConvergenceFailure is returned when an iterative solve does not converge.
	ErrConvergenceFailure = errors.New("convergence failure")
	// ErrInsufficientBalance is returned by ledgers when an account cannot cover a debit.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNotFound is returned when a pool lookup has no match.
	ErrNotFound = errors.New("not found")
)

// InvalidArgumentf wraps ErrInvalidArgument with a formatted message.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Overflowf wraps ErrArithmeticOverflow with a formatted message.
func Overflowf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrArithmeticOverflow, fmt.Sprintf(format, args...))
}
