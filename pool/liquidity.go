package pool

import (
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/holiman/uint256"
)

// proportionalDeposit sizes a deposit into a funded pool. The binding token k
// is the one with the smallest desired[i]/reserves[i]; every other amount is
// scaled down to that ratio so no single contribution is donated at a skewed
// price. Minted shares are floor(ratio * totalShares), lowered further if a
// floored amount falls short of the ratio.
func proportionalDeposit(desired, reserves []*uint256.Int, totalShares *uint256.Int) ([]*uint256.Int, *uint256.Int, error) {
	k := 0
	for i := 1; i < len(desired); i++ {
		// desired[i]/reserves[i] < desired[k]/reserves[k]
		lhs, overflowL := new(uint256.Int).MulOverflow(desired[i], reserves[k])
		rhs, overflowR := new(uint256.Int).MulOverflow(desired[k], reserves[i])
		if overflowL || overflowR {
			return nil, nil, engine.Overflowf("deposit ratio")
		}
		if lhs.Lt(rhs) {
			k = i
		}
	}

	actual := make([]*uint256.Int, len(desired))
	for i := range desired {
		if i == k {
			actual[i] = new(uint256.Int).Set(desired[k])
			continue
		}
		a, overflow := new(uint256.Int).MulDivOverflow(desired[k], reserves[i], reserves[k])
		if overflow {
			return nil, nil, engine.Overflowf("deposit amount %d", i)
		}
		if a.IsZero() && !desired[i].IsZero() {
			return nil, nil, engine.InvalidArgumentf("deposit of token %d rounds to zero", i)
		}
		actual[i] = a
	}

	// Shares are priced off every floored amount, so no token's value per
	// share can fall.
	var shares *uint256.Int
	for i := range actual {
		s, overflow := new(uint256.Int).MulDivOverflow(actual[i], totalShares, reserves[i])
		if overflow {
			return nil, nil, engine.Overflowf("minted shares")
		}
		if shares == nil || s.Lt(shares) {
			shares = s
		}
	}
	if shares.IsZero() {
		return nil, nil, engine.InvalidArgumentf("deposit mints zero shares")
	}
	return actual, shares, nil
}

// proportionalWithdraw returns floor(shares * reserves[i] / totalShares) for each token.
func proportionalWithdraw(shares *uint256.Int, reserves []*uint256.Int, totalShares *uint256.Int) ([]*uint256.Int, error) {
	amounts := make([]*uint256.Int, len(reserves))
	for i, r := range reserves {
		a, overflow := new(uint256.Int).MulDivOverflow(shares, r, totalShares)
		if overflow {
			return nil, engine.Overflowf("withdraw amount %d", i)
		}
		amounts[i] = a
	}
	return amounts, nil
}
