package router

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
)

func TestGroupSalt(t *testing.T) {
	testCases := []struct {
		name  string
		left  []common.Address
		right []common.Address
		same  bool
	}{
		{name: "Order Independent Pair", left: []common.Address{tokenA, tokenB}, right: []common.Address{tokenB, tokenA}, same: true},
		{name: "Order Independent Triple", left: []common.Address{tokenC, tokenA, tokenB}, right: []common.Address{tokenB, tokenC, tokenA}, same: true},
		{name: "Different Pairs", left: []common.Address{tokenA, tokenB}, right: []common.Address{tokenA, tokenC}, same: false},
		{name: "Subset Differs", left: []common.Address{tokenA, tokenB}, right: []common.Address{tokenA, tokenB, tokenC}, same: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.same {
				assert.Equal(t, GroupSalt(tc.left), GroupSalt(tc.right))
			} else {
				assert.NotEqual(t, GroupSalt(tc.left), GroupSalt(tc.right))
			}
		})
	}

	t.Run("Hashes Sorted Addresses", func(t *testing.T) {
		expected := crypto.Keccak256Hash(tokenA.Bytes(), tokenB.Bytes())
		assert.Equal(t, expected, GroupSalt([]common.Address{tokenB, tokenA}))
	})

	t.Run("Does Not Reorder Input", func(t *testing.T) {
		tokens := []common.Address{tokenB, tokenA}
		GroupSalt(tokens)
		assert.Equal(t, []common.Address{tokenB, tokenA}, tokens)
	})
}

func TestSubSalts(t *testing.T) {
	t.Run("Standard", func(t *testing.T) {
		assert.Equal(t, StandardSubSalt(30), StandardSubSalt(30))
		assert.NotEqual(t, StandardSubSalt(30), StandardSubSalt(5))

		expected := crypto.Keccak256Hash([]byte("standard\x00\x00\x00\x00\x1e\x00"))
		assert.Equal(t, expected, StandardSubSalt(30))
	})

	t.Run("Stable", func(t *testing.T) {
		seen := make(map[common.Hash]struct{})
		for i := uint64(0); i < 16; i++ {
			s := StableSubSalt(i)
			_, dup := seen[s]
			assert.False(t, dup, "counter %d repeats a salt", i)
			seen[s] = struct{}{}
		}
		assert.NotEqual(t, StandardSubSalt(0), StableSubSalt(0))
	})

	t.Run("Deployment", func(t *testing.T) {
		group := GroupSalt([]common.Address{tokenA, tokenB})
		sub := StandardSubSalt(30)
		assert.Equal(t, crypto.Keccak256Hash(group.Bytes(), sub.Bytes()), DeploymentSalt(group, sub))
		assert.NotEqual(t, DeploymentSalt(group, sub), DeploymentSalt(sub, group))
	})

	t.Run("Default Codes", func(t *testing.T) {
		assert.NotEqual(t, DefaultStableSwapCode(2), DefaultStableSwapCode(3))
		assert.NotEqual(t, DefaultConstantProductCode, DefaultStableSwapCode(2))
	})
}
