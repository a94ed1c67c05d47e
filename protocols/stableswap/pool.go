package stableswap

import "github.com/defistate/defistate-amm-go/engine"

// Kind is the invariant name recorded for stableswap pools.
const Kind = "stableswap"

// BasisPointDivisor represents 100% in basis points.
const BasisPointDivisor = 10000

const (
	// MinTokens and MaxTokens bound the number of assets a stableswap pool holds.
	MinTokens = 2
	MaxTokens = 4

	// MinAmplification and MaxAmplification bound the amplification coefficient.
	MinAmplification = 1
	MaxAmplification = 1_000_000
)

// Params holds the immutable parameters of a stableswap pool.
type Params struct {
	Amplification uint64 `json:"amplification" yaml:"amplification"`
	FeeBps        uint32 `json:"feeBps" yaml:"fee_bps"` // i.e 4 for 0.04%
}

// Validate checks the fee and amplification ranges.
func (p Params) Validate() error {
	if p.FeeBps >= BasisPointDivisor {
		return engine.InvalidArgumentf("fee %d bps is outside [0, %d)", p.FeeBps, BasisPointDivisor)
	}
	if p.Amplification < MinAmplification || p.Amplification > MaxAmplification {
		return engine.InvalidArgumentf("amplification %d is outside [%d, %d]", p.Amplification, MinAmplification, MaxAmplification)
	}
	return nil
}

// ValidateTokenCount checks that n assets can share one stableswap pool.
func ValidateTokenCount(n int) error {
	if n < MinTokens || n > MaxTokens {
		return engine.InvalidArgumentf("stableswap pools hold %d to %d tokens, got %d", MinTokens, MaxTokens, n)
	}
	return nil
}
