package router

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// BestPool quotes amountIn of tokenIn against every pool trading the pair and
// returns the one paying the most tokenOut. Ties go to the older pool. Pools
// that cannot quote (empty, or unable to converge) are skipped.
func (r *Router) BestPool(tokenIn, tokenOut common.Address, amountIn *big.Int) (RegistryEntry, *big.Int, error) {
	if tokenIn == tokenOut {
		return RegistryEntry{}, nil, engine.InvalidArgumentf("cannot route %s to itself", tokenIn.Hex())
	}
	if _, err := engine.ToAmount("amount in", amountIn); err != nil {
		return RegistryEntry{}, nil, err
	}

	candidates := r.PoolsForPair(tokenIn, tokenOut)
	if len(candidates) == 0 {
		return RegistryEntry{}, nil, fmt.Errorf("%w: no pool trades %s for %s", engine.ErrNotFound, tokenIn.Hex(), tokenOut.Hex())
	}

	var (
		best    RegistryEntry
		bestOut *big.Int
		errs    []error
	)
	for _, entry := range candidates {
		p, err := r.PoolAt(entry.Address)
		if err != nil {
			return RegistryEntry{}, nil, err
		}
		in, out, err := pairIndices(p, tokenIn, tokenOut)
		if err != nil {
			return RegistryEntry{}, nil, err
		}
		quote, err := p.Estimate(in, out, amountIn)
		if err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", entry.Address.Hex(), err))
			continue
		}
		if bestOut == nil || quote.Cmp(bestOut) > 0 {
			best, bestOut = entry, quote
		}
	}
	if bestOut == nil {
		return RegistryEntry{}, nil, fmt.Errorf("%w: no pool can quote the swap: %w", engine.ErrInsufficientLiquidity, errors.Join(errs...))
	}
	return best, bestOut, nil
}

// SwapBest executes Swap against the pool BestPool selects.
func (r *Router) SwapBest(caller common.Address, tokenIn, tokenOut common.Address, amountIn, minOut *big.Int) (entry RegistryEntry, amountOut *big.Int, err error) {
	defer r.begin(opSwapBest)(&err)

	entry, _, err = r.BestPool(tokenIn, tokenOut, amountIn)
	if err != nil {
		return RegistryEntry{}, nil, err
	}
	p, err := r.PoolAt(entry.Address)
	if err != nil {
		return RegistryEntry{}, nil, err
	}
	in, out, err := pairIndices(p, tokenIn, tokenOut)
	if err != nil {
		return RegistryEntry{}, nil, err
	}
	amountOut, err = p.Swap(caller, in, out, amountIn, minOut)
	if err != nil {
		return RegistryEntry{}, nil, err
	}
	return entry, amountOut, nil
}
