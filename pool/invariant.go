package pool

import (
	"github.com/defistate/defistate-amm-go/engine"
	constantproduct "github.com/defistate/defistate-amm-go/protocols/constantproduct"
	cpcalculator "github.com/defistate/defistate-amm-go/protocols/constantproduct/calculator"
	stableswap "github.com/defistate/defistate-amm-go/protocols/stableswap"
	sscalculator "github.com/defistate/defistate-amm-go/protocols/stableswap/calculator"
	"github.com/holiman/uint256"
)

// invariant is the pricing curve a pool trades on.
type invariant interface {
	kind() string
	feeBps() uint32
	amplification() uint64
	validateTokenCount(n int) error
	amountOut(amountIn *uint256.Int, in, out int, reserves []*uint256.Int) (*uint256.Int, error)
	amountIn(amountOut *uint256.Int, in, out int, reserves []*uint256.Int) (*uint256.Int, error)
	initialShares(amounts []*uint256.Int) (*uint256.Int, error)
}

type constantProduct struct {
	params constantproduct.Params
}

func (c constantProduct) kind() string          { return constantproduct.Kind }
func (c constantProduct) feeBps() uint32        { return c.params.FeeBps }
func (c constantProduct) amplification() uint64 { return 0 }

func (c constantProduct) validateTokenCount(n int) error {
	if n != constantproduct.TokenCount {
		return engine.InvalidArgumentf("constant product pools hold %d tokens, got %d", constantproduct.TokenCount, n)
	}
	return nil
}

func (c constantProduct) amountOut(amountIn *uint256.Int, in, out int, reserves []*uint256.Int) (*uint256.Int, error) {
	return cpcalculator.GetAmountOut(amountIn, in, out, reserves, c.params.FeeBps)
}

func (c constantProduct) amountIn(amountOut *uint256.Int, in, out int, reserves []*uint256.Int) (*uint256.Int, error) {
	return cpcalculator.GetAmountIn(amountOut, in, out, reserves, c.params.FeeBps)
}

func (c constantProduct) initialShares(amounts []*uint256.Int) (*uint256.Int, error) {
	return cpcalculator.InitialShares(amounts)
}

type stableSwap struct {
	params stableswap.Params
}

func (s stableSwap) kind() string          { return stableswap.Kind }
func (s stableSwap) feeBps() uint32        { return s.params.FeeBps }
func (s stableSwap) amplification() uint64 { return s.params.Amplification }

func (s stableSwap) validateTokenCount(n int) error {
	return stableswap.ValidateTokenCount(n)
}

func (s stableSwap) amountOut(amountIn *uint256.Int, in, out int, reserves []*uint256.Int) (*uint256.Int, error) {
	return sscalculator.GetAmountOut(amountIn, in, out, reserves, s.params)
}

func (s stableSwap) amountIn(amountOut *uint256.Int, in, out int, reserves []*uint256.Int) (*uint256.Int, error) {
	return sscalculator.GetAmountIn(amountOut, in, out, reserves, s.params)
}

func (s stableSwap) initialShares(amounts []*uint256.Int) (*uint256.Int, error) {
	return sscalculator.InitialShares(amounts, s.params.Amplification)
}
