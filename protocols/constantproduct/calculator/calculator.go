package constantproduct

import (
	"fmt"
	"sync"

	"github.com/defistate/defistate-amm-go/engine"
	constantproduct "github.com/defistate/defistate-amm-go/protocols/constantproduct"
	"github.com/holiman/uint256"
)

var (
	// basisPointDivisor is a constant representing 100% in basis points (10000).
	basisPointDivisor = uint256.NewInt(constantproduct.BasisPointDivisor)

	one = uint256.NewInt(1)
)

// Calculator holds reusable uint256 objects to avoid memory allocations during calculations.
// Instances of this struct are NOT safe for concurrent use by themselves.
// They are intended to be managed by the sync.Pool below.
type Calculator struct {
	// Reusable objects for GetAmountOut
	feeMultiplier   *uint256.Int
	amountInWithFee *uint256.Int
	denominator     *uint256.Int

	// Reusable objects for GetAmountIn
	scaledOut     *uint256.Int
	denominatorIn *uint256.Int
}

// calculatorPool manages a pool of Calculator objects, allowing for safe concurrent use
// and drastically reducing memory allocations.
var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			feeMultiplier:   new(uint256.Int),
			amountInWithFee: new(uint256.Int),
			denominator:     new(uint256.Int),
			scaledOut:       new(uint256.Int),
			denominatorIn:   new(uint256.Int),
		}
	},
}

// GetAmountOut calculates the exact-input swap output:
//
//	out = floor(in*(10000-fee) * reserveOut / (reserveIn*10000 + in*(10000-fee)))
func GetAmountOut(amountIn *uint256.Int, in, out int, reserves []*uint256.Int, feeBps uint32) (*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, in, out, reserves, feeBps)
}

// GetAmountIn calculates the input required for an exact output, rounded up in the pool's favor:
//
//	in = floor(reserveIn * out * 10000 / ((reserveOut - out) * (10000-fee))) + 1
func GetAmountIn(amountOut *uint256.Int, in, out int, reserves []*uint256.Int, feeBps uint32) (*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountIn(amountOut, in, out, reserves, feeBps)
}

// SimulateSwap calculates the result of an exact-input swap and the reserves it leaves behind.
// The input reserves are not modified.
func SimulateSwap(amountIn *uint256.Int, in, out int, reserves []*uint256.Int, feeBps uint32) (*uint256.Int, []*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.simulateSwap(amountIn, in, out, reserves, feeBps)
}

// InitialShares returns the share supply minted by the first deposit: the
// geometric mean of the two amounts, which fixes the initial exchange rate.
func InitialShares(amounts []*uint256.Int) (*uint256.Int, error) {
	if len(amounts) != constantproduct.TokenCount {
		return nil, engine.InvalidArgumentf("constant product pools hold %d tokens, got %d amounts", constantproduct.TokenCount, len(amounts))
	}
	product, overflow := new(uint256.Int).MulOverflow(amounts[0], amounts[1])
	if overflow {
		return nil, engine.Overflowf("initial deposit product")
	}
	return product.Sqrt(product), nil
}

// getAmountOut is the internal calculation method that uses the pre-allocated fields.
func (c *Calculator) getAmountOut(amountIn *uint256.Int, in, out int, reserves []*uint256.Int, feeBps uint32) (*uint256.Int, error) {
	if amountIn == nil {
		return nil, engine.InvalidArgumentf("nil pointer passed as amount")
	}
	if err := checkFee(feeBps); err != nil {
		return nil, err
	}

	reserveIn, reserveOut, err := GetReserves(in, out, reserves)
	if err != nil {
		return nil, err
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, fmt.Errorf("%w: pool reserves are empty", engine.ErrInsufficientLiquidity)
	}

	var overflow bool
	c.feeMultiplier.SetUint64(uint64(constantproduct.BasisPointDivisor - feeBps))
	if _, overflow = c.amountInWithFee.MulOverflow(amountIn, c.feeMultiplier); overflow {
		return nil, engine.Overflowf("amountIn * feeMultiplier")
	}
	if _, overflow = c.denominator.MulOverflow(reserveIn, basisPointDivisor); overflow {
		return nil, engine.Overflowf("reserveIn * %d", constantproduct.BasisPointDivisor)
	}
	if _, overflow = c.denominator.AddOverflow(c.denominator, c.amountInWithFee); overflow {
		return nil, engine.Overflowf("swap denominator")
	}

	amountOut, overflow := new(uint256.Int).MulDivOverflow(reserveOut, c.amountInWithFee, c.denominator)
	if overflow {
		return nil, engine.Overflowf("swap numerator")
	}
	return amountOut, nil
}

// getAmountIn is the internal calculation method for finding the required input for a desired output.
func (c *Calculator) getAmountIn(amountOut *uint256.Int, in, out int, reserves []*uint256.Int, feeBps uint32) (*uint256.Int, error) {
	if amountOut == nil {
		return nil, engine.InvalidArgumentf("nil pointer passed as amount")
	}
	if err := checkFee(feeBps); err != nil {
		return nil, err
	}

	reserveIn, reserveOut, err := GetReserves(in, out, reserves)
	if err != nil {
		return nil, err
	}
	if reserveIn.IsZero() || reserveOut.IsZero() || !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", engine.ErrInsufficientLiquidity, amountOut.Dec(), reserveOut.Dec())
	}

	var overflow bool
	if _, overflow = c.scaledOut.MulOverflow(amountOut, basisPointDivisor); overflow {
		return nil, engine.Overflowf("amountOut * %d", constantproduct.BasisPointDivisor)
	}
	c.feeMultiplier.SetUint64(uint64(constantproduct.BasisPointDivisor - feeBps))
	c.denominatorIn.Sub(reserveOut, amountOut)
	if _, overflow = c.denominatorIn.MulOverflow(c.denominatorIn, c.feeMultiplier); overflow {
		return nil, engine.Overflowf("(reserveOut - amountOut) * feeMultiplier")
	}

	// amountIn = (reserveIn * amountOut * 10000) / ((reserveOut - amountOut) * (10000 - fee)) + 1
	amountIn, overflow := new(uint256.Int).MulDivOverflow(reserveIn, c.scaledOut, c.denominatorIn)
	if overflow {
		return nil, engine.Overflowf("amountIn numerator")
	}
	if _, overflow = amountIn.AddOverflow(amountIn, one); overflow {
		return nil, engine.Overflowf("amountIn")
	}
	return amountIn, nil
}

// simulateSwap is the internal calculation method that uses pre-allocated fields.
func (c *Calculator) simulateSwap(amountIn *uint256.Int, in, out int, reserves []*uint256.Int, feeBps uint32) (*uint256.Int, []*uint256.Int, error) {
	amountOut, err := c.getAmountOut(amountIn, in, out, reserves, feeBps)
	if err != nil {
		return nil, nil, err
	}

	newReserves := make([]*uint256.Int, len(reserves))
	for i, r := range reserves {
		newReserves[i] = new(uint256.Int).Set(r)
	}
	if _, overflow := newReserves[in].AddOverflow(newReserves[in], amountIn); overflow {
		return nil, nil, engine.Overflowf("reserveIn + amountIn")
	}
	newReserves[out].Sub(newReserves[out], amountOut)

	return amountOut, newReserves, nil
}

// GetReserves returns the reserves for the given index pair.
func GetReserves(in, out int, reserves []*uint256.Int) (reserveIn, reserveOut *uint256.Int, err error) {
	if in == out {
		return nil, nil, engine.InvalidArgumentf("in and out index are both %d", in)
	}
	if in < 0 || in >= len(reserves) || out < 0 || out >= len(reserves) {
		return nil, nil, engine.InvalidArgumentf("index pair %d -> %d out of range for %d reserves", in, out, len(reserves))
	}
	return reserves[in], reserves[out], nil
}

func checkFee(feeBps uint32) error {
	return constantproduct.Params{FeeBps: feeBps}.Validate()
}
