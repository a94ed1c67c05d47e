package stableswap

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/defistate-amm-go/engine"
	stableswap "github.com/defistate/defistate-amm-go/protocols/stableswap"
	"github.com/holiman/uint256"
)

// MaxIterations caps every Newton solve.
const MaxIterations = 255

// maxInputCorrections caps the upward adjustments GetAmountIn makes to absorb
// Newton rounding.
const maxInputCorrections = 8

var (
	basisPointDivisor = big.NewInt(stableswap.BasisPointDivisor)

	one = big.NewInt(1)

	bigIntPool = sync.Pool{
		New: func() any {
			return new(big.Int)
		},
	}
)

// getBig grabs a *big.Int from the pool and zeros it.
func getBig() *big.Int {
	b := bigIntPool.Get().(*big.Int)
	b.SetUint64(0)
	return b
}

// putBig returns *big.Int values to the pool.
func putBig(bs ...*big.Int) {
	for _, b := range bs {
		if b != nil {
			bigIntPool.Put(b)
		}
	}
}

func toBigs(reserves []*uint256.Int) []*big.Int {
	out := make([]*big.Int, len(reserves))
	for i, r := range reserves {
		out[i] = getBig()
		r.IntoBig(&out[i])
	}
	return out
}

func fromBig(name string, b *big.Int) (*uint256.Int, error) {
	if b.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s is negative", engine.ErrConvergenceFailure, name)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, engine.Overflowf("%s does not fit 256 bits", name)
	}
	return v, nil
}

// withinOne reports whether |a - b| <= 1. scratch is overwritten.
func withinOne(a, b, scratch *big.Int) bool {
	scratch.Sub(a, b)
	return scratch.CmpAbs(one) <= 0
}

// ComputeD returns the invariant D of the given balances: the total value
// the pool would hold if every balance were equal.
func ComputeD(reserves []*uint256.Int, amp uint64) (*uint256.Int, error) {
	if err := stableswap.ValidateTokenCount(len(reserves)); err != nil {
		return nil, err
	}
	xp := toBigs(reserves)
	defer putBig(xp...)

	d := getBig()
	defer putBig(d)
	if err := computeD(d, xp, amp); err != nil {
		return nil, err
	}
	return fromBig("D", d)
}

// InitialShares returns the share supply minted by the first deposit, which
// is the invariant of the deposited balances.
func InitialShares(amounts []*uint256.Int, amp uint64) (*uint256.Int, error) {
	return ComputeD(amounts, amp)
}

// computeD solves for D with Newton's method:
//
//	D_P = D^(n+1) / (n^n * prod(x))
//	D'  = (Ann*S + D_P*n) * D / ((Ann-1)*D + (n+1)*D_P)
func computeD(d *big.Int, xp []*big.Int, amp uint64) error {
	s := getBig()
	defer putBig(s)
	for _, x := range xp {
		s.Add(s, x)
	}
	if s.Sign() == 0 {
		d.SetUint64(0)
		return nil
	}
	for i, x := range xp {
		if x.Sign() == 0 {
			return fmt.Errorf("%w: balance %d is empty", engine.ErrInsufficientLiquidity, i)
		}
	}

	n := getBig().SetInt64(int64(len(xp)))
	ann := getBig().SetUint64(amp)
	dP, prev, num, den, tmp := getBig(), getBig(), getBig(), getBig(), getBig()
	defer putBig(n, ann, dP, prev, num, den, tmp)
	ann.Mul(ann, n)

	d.Set(s)
	for i := 0; i < MaxIterations; i++ {
		dP.Set(d)
		for _, x := range xp {
			tmp.Mul(x, n)
			dP.Mul(dP, d)
			dP.Quo(dP, tmp)
		}
		prev.Set(d)

		num.Mul(ann, s)
		tmp.Mul(dP, n)
		num.Add(num, tmp)
		num.Mul(num, d)

		den.Sub(ann, one)
		den.Mul(den, d)
		tmp.Add(n, one)
		tmp.Mul(tmp, dP)
		den.Add(den, tmp)

		d.Quo(num, den)
		if withinOne(d, prev, tmp) {
			return nil
		}
	}
	return fmt.Errorf("%w: D did not converge in %d iterations", engine.ErrConvergenceFailure, MaxIterations)
}

// getY solves for the balance of token j that keeps D fixed once the balance
// of token i is set to x. All other balances are taken from xp.
//
//	y' = (y^2 + c) / (2y + b - D)
func getY(y *big.Int, i, j int, x *big.Int, xp []*big.Int, amp uint64) error {
	d := getBig()
	defer putBig(d)
	if err := computeD(d, xp, amp); err != nil {
		return err
	}

	n := getBig().SetInt64(int64(len(xp)))
	ann := getBig().SetUint64(amp)
	c, s, b, prev, num, den, tmp := getBig(), getBig(), getBig(), getBig(), getBig(), getBig(), getBig()
	defer putBig(n, ann, c, s, b, prev, num, den, tmp)
	ann.Mul(ann, n)

	c.Set(d)
	for k := range xp {
		var xk *big.Int
		switch k {
		case i:
			xk = x
		case j:
			continue
		default:
			xk = xp[k]
		}
		if xk.Sign() == 0 {
			return fmt.Errorf("%w: balance %d is empty", engine.ErrInsufficientLiquidity, k)
		}
		s.Add(s, xk)
		tmp.Mul(xk, n)
		c.Mul(c, d)
		c.Quo(c, tmp)
	}
	tmp.Mul(ann, n)
	c.Mul(c, d)
	c.Quo(c, tmp)

	b.Quo(d, ann)
	b.Add(b, s)

	y.Set(d)
	for iter := 0; iter < MaxIterations; iter++ {
		prev.Set(y)

		num.Mul(y, y)
		num.Add(num, c)

		den.Lsh(y, 1)
		den.Add(den, b)
		den.Sub(den, d)
		if den.Sign() <= 0 {
			return fmt.Errorf("%w: non-positive denominator solving for balance %d", engine.ErrConvergenceFailure, j)
		}

		y.Quo(num, den)
		if withinOne(y, prev, tmp) {
			return nil
		}
	}
	return fmt.Errorf("%w: y did not converge in %d iterations", engine.ErrConvergenceFailure, MaxIterations)
}

func checkSwap(amount *uint256.Int, in, out int, reserves []*uint256.Int, params stableswap.Params) error {
	if amount == nil {
		return engine.InvalidArgumentf("nil pointer passed as amount")
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if err := stableswap.ValidateTokenCount(len(reserves)); err != nil {
		return err
	}
	if in == out {
		return engine.InvalidArgumentf("in and out index are both %d", in)
	}
	if in < 0 || in >= len(reserves) || out < 0 || out >= len(reserves) {
		return engine.InvalidArgumentf("index pair %d -> %d out of range for %d reserves", in, out, len(reserves))
	}
	for k, r := range reserves {
		if r.IsZero() {
			return fmt.Errorf("%w: reserve %d is empty", engine.ErrInsufficientLiquidity, k)
		}
	}
	return nil
}

// GetAmountOut calculates the exact-input swap output. The fee is taken from
// the input before solving and stays in the pool; one unit is withheld from
// the output to absorb solver rounding.
func GetAmountOut(amountIn *uint256.Int, in, out int, reserves []*uint256.Int, params stableswap.Params) (*uint256.Int, error) {
	if err := checkSwap(amountIn, in, out, reserves, params); err != nil {
		return nil, err
	}
	xp := toBigs(reserves)
	defer putBig(xp...)
	return getAmountOut(amountIn, in, out, xp, params)
}

func getAmountOut(amountIn *uint256.Int, in, out int, xp []*big.Int, params stableswap.Params) (*uint256.Int, error) {
	x, y, tmp := getBig(), getBig(), getBig()
	defer putBig(x, y, tmp)

	// x = reserveIn + amountIn*(10000-fee)/10000
	amountIn.IntoBig(&x)
	tmp.SetUint64(uint64(stableswap.BasisPointDivisor - params.FeeBps))
	x.Mul(x, tmp)
	x.Quo(x, basisPointDivisor)
	x.Add(x, xp[in])

	if err := getY(y, in, out, x, xp, params.Amplification); err != nil {
		return nil, err
	}

	// amountOut = reserveOut - y - 1, floored at zero
	tmp.Sub(xp[out], y)
	tmp.Sub(tmp, one)
	if tmp.Sign() < 0 {
		tmp.SetUint64(0)
	}
	return fromBig("amountOut", tmp)
}

// GetAmountIn calculates the input required for an exact output. The quote
// is corrected upward until GetAmountOut covers amountOut.
func GetAmountIn(amountOut *uint256.Int, in, out int, reserves []*uint256.Int, params stableswap.Params) (*uint256.Int, error) {
	if err := checkSwap(amountOut, in, out, reserves, params); err != nil {
		return nil, err
	}
	// The output side keeps at least one unit plus the rounding unit.
	limit := new(uint256.Int).Add(amountOut, uint256.NewInt(1))
	if !limit.Lt(reserves[out]) {
		return nil, fmt.Errorf("%w: requested amountOut (%s) drains reserveOut (%s)", engine.ErrInsufficientLiquidity, amountOut.Dec(), reserves[out].Dec())
	}

	xp := toBigs(reserves)
	defer putBig(xp...)

	x, y, dx, tmp := getBig(), getBig(), getBig(), getBig()
	defer putBig(x, y, dx, tmp)

	// y = reserveOut - amountOut - 1
	amountOut.IntoBig(&tmp)
	y.Sub(xp[out], tmp)
	y.Sub(y, one)

	if err := getY(x, out, in, y, xp, params.Amplification); err != nil {
		return nil, err
	}

	// amountIn = ceil((x - reserveIn + 1) * 10000 / (10000-fee))
	dx.Sub(x, xp[in])
	if dx.Sign() < 0 {
		dx.SetUint64(0)
	}
	dx.Add(dx, one)
	dx.Mul(dx, basisPointDivisor)
	tmp.SetUint64(uint64(stableswap.BasisPointDivisor - params.FeeBps))
	dx.Add(dx, tmp)
	dx.Sub(dx, one)
	dx.Quo(dx, tmp)

	amountIn, err := fromBig("amountIn", dx)
	if err != nil {
		return nil, err
	}

	for i := 0; i < maxInputCorrections; i++ {
		got, err := getAmountOut(amountIn, in, out, xp, params)
		if err != nil {
			return nil, err
		}
		if !got.Lt(amountOut) {
			return amountIn, nil
		}
		if _, overflow := amountIn.AddOverflow(amountIn, uint256.NewInt(1)); overflow {
			return nil, engine.Overflowf("amountIn")
		}
	}
	return nil, fmt.Errorf("%w: no input found covering amountOut %s", engine.ErrConvergenceFailure, amountOut.Dec())
}

// SimulateSwap calculates the result of an exact-input swap and the reserves it leaves behind.
// The input reserves are not modified.
func SimulateSwap(amountIn *uint256.Int, in, out int, reserves []*uint256.Int, params stableswap.Params) (*uint256.Int, []*uint256.Int, error) {
	amountOut, err := GetAmountOut(amountIn, in, out, reserves, params)
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
