package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// AmountBits is the width of the signed amount type at the API boundary.
// Amounts live in [0, 2^127-1]; the sign bit is never usable.
const AmountBits = 127

var (
	// MaxAmount is the largest amount accepted or produced by any operation.
	MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), AmountBits), big.NewInt(1))

	maxAmountU256 = uint256.MustFromBig(MaxAmount)
)

// ToAmount validates a boundary amount and converts it to fixed-width form.
// nil and negative values are ErrInvalidArgument, values above MaxAmount are
// ErrArithmeticOverflow.
func ToAmount(name string, v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return nil, InvalidArgumentf("%s is nil", name)
	}
	if v.Sign() < 0 {
		return nil, InvalidArgumentf("%s is negative (%s)", name, v.String())
	}
	if v.BitLen() > AmountBits {
		return nil, Overflowf("%s exceeds the amount range (%s)", name, v.String())
	}
	return uint256.MustFromBig(v), nil
}

// ToAmounts converts a slice of boundary amounts. The result has one entry per input.
func ToAmounts(name string, vs []*big.Int) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(vs))
	for i, v := range vs {
		u, err := ToAmount(name, v)
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}

// CheckAmount returns ErrArithmeticOverflow if v leaves the amount range.
func CheckAmount(name string, v *uint256.Int) error {
	if v.Gt(maxAmountU256) {
		return Overflowf("%s exceeds the amount range (%s)", name, v.Dec())
	}
	return nil
}

// FromAmount converts a fixed-width amount back to the boundary type.
func FromAmount(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

// FromAmounts converts a slice of fixed-width amounts back to the boundary type.
func FromAmounts(vs []*uint256.Int) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = FromAmount(v)
	}
	return out
}

// DeriveAddress returns the address code lands at when deployed by deployer
// with the given salt. It is the CREATE2 derivation with the code reference
// standing in for the init-code hash, so it needs no registry lookup.
func DeriveAddress(deployer common.Address, code common.Hash, salt common.Hash) common.Address {
	return crypto.CreateAddress2(deployer, salt, code.Bytes())
}
