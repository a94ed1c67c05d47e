package router

import (
	"encoding/binary"

	"github.com/defistate/defistate-amm-go/pool"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const standardTag = "standard"

// GroupSalt identifies a token group. It hashes the sorted token list, so every
// ordering of the same tokens yields the same salt.
func GroupSalt(tokens []common.Address) common.Hash {
	sorted := pool.SortTokens(tokens)
	buf := make([]byte, 0, len(sorted)*common.AddressLength)
	for _, t := range sorted {
		buf = append(buf, t.Bytes()...)
	}
	return crypto.Keccak256Hash(buf)
}

// StandardSubSalt is the sub-salt of the constant-product pool with the given
// fee tier. There is at most one such pool per group and tier.
func StandardSubSalt(feeBps uint32) common.Hash {
	buf := make([]byte, 0, len(standardTag)+6)
	buf = append(buf, standardTag...)
	buf = append(buf, 0x00)
	buf = binary.BigEndian.AppendUint32(buf, feeBps)
	buf = append(buf, 0x00)
	return crypto.Keccak256Hash(buf)
}

// StableSubSalt is the sub-salt of the counter-th stableswap pool of a group.
func StableSubSalt(counter uint64) common.Hash {
	buf := make([]byte, 0, 10)
	buf = append(buf, 0x00)
	buf = binary.BigEndian.AppendUint64(buf, counter)
	buf = append(buf, 0x00)
	return crypto.Keccak256Hash(buf)
}

// DeploymentSalt merges a group salt and a sub-salt into the key the pool
// code is deployed under.
func DeploymentSalt(group, sub common.Hash) common.Hash {
	return crypto.Keccak256Hash(group.Bytes(), sub.Bytes())
}

// DefaultConstantProductCode is the code reference used for constant-product
// pools when the router config names none.
var DefaultConstantProductCode = crypto.Keccak256Hash([]byte("defistate-amm/constant_product"))

// DefaultStableSwapCode returns the code reference used for stableswap pools
// of n tokens when the router config names none.
func DefaultStableSwapCode(n int) common.Hash {
	return crypto.Keccak256Hash([]byte("defistate-amm/stableswap/"), []byte{byte(n)})
}
