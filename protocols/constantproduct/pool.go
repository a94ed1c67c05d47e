package constantproduct

import "github.com/defistate/defistate-amm-go/engine"

// Kind is the invariant name recorded for constant-product pools.
const Kind = "constant_product"

// BasisPointDivisor represents 100% in basis points.
const BasisPointDivisor = 10000

// TokenCount is the number of assets a constant-product pool holds.
const TokenCount = 2

// Params holds the immutable parameters of a constant-product pool.
type Params struct {
	FeeBps uint32 `json:"feeBps" yaml:"fee_bps"` // i.e 30 for 0.3%
}

// Validate checks that the fee is a fraction in [0, 1).
func (p Params) Validate() error {
	if p.FeeBps >= BasisPointDivisor {
		return engine.InvalidArgumentf("fee %d bps is outside [0, %d)", p.FeeBps, BasisPointDivisor)
	}
	return nil
}
