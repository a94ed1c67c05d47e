package router

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultMaxHops bounds route search when FindRoute is given no limit.
const DefaultMaxHops = 3

const opSwapRoute = "swap_route"

// Hop is one leg of a route: a swap of TokenIn for TokenOut in Pool.
type Hop struct {
	Pool     common.Address `json:"pool"`
	TokenIn  common.Address `json:"tokenIn"`
	TokenOut common.Address `json:"tokenOut"`
}

// quoteFunc quotes a swap through one pool.
type quoteFunc func(amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, error)

// tokenSet marks the graph token indices a route has already visited.
type tokenSet []uint64

func newTokenSet(n int) tokenSet {
	return make(tokenSet, (n+63)/64)
}

func (s tokenSet) has(i int) bool {
	return s[i/64]&(1<<(uint(i)%64)) != 0
}

// with returns a copy of s that also holds i.
func (s tokenSet) with(i int) tokenSet {
	out := slices.Clone(s)
	out[i/64] |= 1 << (uint(i) % 64)
	return out
}

// FindRoute searches the token/pool graph for the route of at most maxHops
// swaps that turns amountIn of tokenIn into the most tokenOut. Each round
// relaxes every edge once from the best amounts of the previous round, so a
// route never revisits a token. Hops are quoted against current reserves
// independently; a route through the same pool twice may execute below its
// quote, which SwapRoute's minOut guards.
func (r *Router) FindRoute(tokenIn, tokenOut common.Address, amountIn *big.Int, maxHops int) ([]Hop, *big.Int, error) {
	if tokenIn == tokenOut {
		return nil, nil, engine.InvalidArgumentf("cannot route %s to itself", tokenIn.Hex())
	}
	if _, err := engine.ToAmount("amount in", amountIn); err != nil {
		return nil, nil, err
	}
	if amountIn.Sign() == 0 {
		return nil, nil, engine.InvalidArgumentf("amount in must be positive")
	}
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	view := r.graph.View()
	tokenToIndex := make(map[common.Address]int, len(view.Tokens))
	for i, t := range view.Tokens {
		tokenToIndex[t] = i
	}
	start, ok := tokenToIndex[tokenIn]
	if !ok {
		return nil, nil, fmt.Errorf("%w: token %s has no pools", engine.ErrNotFound, tokenIn.Hex())
	}
	end, ok := tokenToIndex[tokenOut]
	if !ok {
		return nil, nil, fmt.Errorf("%w: token %s has no pools", engine.ErrNotFound, tokenOut.Hex())
	}

	quotes := make([]quoteFunc, len(view.Pools))
	for i, addr := range view.Pools {
		p, err := r.PoolAt(addr)
		if err != nil {
			return nil, nil, err
		}
		quotes[i] = func(amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, error) {
			in, out, err := pairIndices(p, tokenIn, tokenOut)
			if err != nil {
				return nil, err
			}
			return p.Estimate(in, out, amountIn)
		}
	}

	numTokens := len(view.Tokens)
	costs := make([]*big.Int, numTokens)
	paths := make([][]Hop, numTokens)
	known := make([]tokenSet, numTokens)
	costs[start] = new(big.Int).Set(amountIn)
	known[start] = newTokenSet(numTokens)

	for round := 0; round < maxHops; round++ {
		// Updates allocate fresh values, so shallow copies freeze the round's inputs.
		prevCosts := slices.Clone(costs)
		prevPaths := slices.Clone(paths)
		prevKnown := slices.Clone(known)

		for current := 0; current < numTokens; current++ {
			cost := prevCosts[current]
			if cost == nil || cost.Sign() == 0 {
				continue
			}
			visited := prevKnown[current].with(current)

			for _, edgeIndex := range view.Adjacency[current] {
				target := view.EdgeTargets[edgeIndex]
				if target == start || visited.has(target) {
					continue
				}

				var bestOut *big.Int
				bestPool := -1
				for _, poolIndex := range view.EdgePools[edgeIndex] {
					amountOut, err := quotes[poolIndex](cost, view.Tokens[current], view.Tokens[target])
					if err != nil || amountOut.Sign() == 0 {
						continue
					}
					if bestOut == nil || amountOut.Cmp(bestOut) > 0 {
						bestOut, bestPool = amountOut, poolIndex
					}
				}
				if bestPool == -1 {
					continue
				}

				if costs[target] == nil || bestOut.Cmp(costs[target]) > 0 {
					path := make([]Hop, len(prevPaths[current])+1)
					copy(path, prevPaths[current])
					path[len(path)-1] = Hop{
						Pool:     view.Pools[bestPool],
						TokenIn:  view.Tokens[current],
						TokenOut: view.Tokens[target],
					}
					costs[target] = bestOut
					paths[target] = path
					known[target] = visited
				}
			}
		}
	}

	if paths[end] == nil {
		return nil, nil, fmt.Errorf("%w: no route from %s to %s within %d hops", engine.ErrNotFound, tokenIn.Hex(), tokenOut.Hex(), maxHops)
	}
	return paths[end], new(big.Int).Set(costs[end]), nil
}

// SwapRoute executes hops in order, feeding each output into the next hop.
// Only the final output is checked against minOut. Hops are separate pool
// invocations: if one fails, the ones before it stand unless the host rolls
// the whole call back.
func (r *Router) SwapRoute(caller common.Address, hops []Hop, amountIn, minOut *big.Int) (amountOut *big.Int, err error) {
	defer r.begin(opSwapRoute)(&err)

	if len(hops) == 0 {
		return nil, engine.InvalidArgumentf("route has no hops")
	}
	for i := 1; i < len(hops); i++ {
		if hops[i].TokenIn != hops[i-1].TokenOut {
			return nil, engine.InvalidArgumentf("hop %d sells %s but hop %d bought %s", i, hops[i].TokenIn.Hex(), i-1, hops[i-1].TokenOut.Hex())
		}
	}
	if _, err := engine.ToAmount("min out", minOut); err != nil {
		return nil, err
	}

	amount := amountIn
	for i, hop := range hops {
		p, err := r.PoolAt(hop.Pool)
		if err != nil {
			return nil, err
		}
		in, out, err := pairIndices(p, hop.TokenIn, hop.TokenOut)
		if err != nil {
			return nil, err
		}
		floor := new(big.Int)
		if i == len(hops)-1 {
			floor = minOut
		}
		if amount, err = p.Swap(caller, in, out, amount, floor); err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
	}
	return amount, nil
}
