package engine

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAmount(t *testing.T) {
	testCases := []struct {
		name        string
		in          *big.Int
		expectedErr error
	}{
		{name: "zero", in: big.NewInt(0)},
		{name: "positive", in: big.NewInt(1_000_000)},
		{name: "max amount", in: new(big.Int).Set(MaxAmount)},
		{name: "nil", in: nil, expectedErr: ErrInvalidArgument},
		{name: "negative", in: big.NewInt(-1), expectedErr: ErrInvalidArgument},
		{name: "above range", in: new(big.Int).Add(MaxAmount, big.NewInt(1)), expectedErr: ErrArithmeticOverflow},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToAmount("amount", tc.in)
			if tc.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Zero(t, tc.in.Cmp(got.ToBig()))
		})
	}
}

func TestCheckAmount(t *testing.T) {
	require.NoError(t, CheckAmount("x", uint256.MustFromBig(MaxAmount)))

	over := new(uint256.Int).AddUint64(uint256.MustFromBig(MaxAmount), 1)
	assert.ErrorIs(t, CheckAmount("x", over), ErrArithmeticOverflow)
}

func TestAmountsRoundTrip(t *testing.T) {
	in := []*big.Int{big.NewInt(1), big.NewInt(22), big.NewInt(333)}
	u, err := ToAmounts("amounts", in)
	require.NoError(t, err)
	out := FromAmounts(u)
	require.Len(t, out, len(in))
	for i := range in {
		assert.Zero(t, in[i].Cmp(out[i]))
	}

	_, err = ToAmounts("amounts", []*big.Int{big.NewInt(1), big.NewInt(-5)})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Equal(t, 0, FromAmount(nil).Sign())
}

func TestDeriveAddress(t *testing.T) {
	deployer := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	code := crypto.Keccak256Hash([]byte("code"))
	salt := crypto.Keccak256Hash([]byte("salt"))

	a := DeriveAddress(deployer, code, salt)
	assert.Equal(t, a, DeriveAddress(deployer, code, salt), "derivation must be deterministic")
	assert.Equal(t, crypto.CreateAddress2(deployer, salt, code.Bytes()), a)

	otherSalt := crypto.Keccak256Hash([]byte("salt2"))
	assert.NotEqual(t, a, DeriveAddress(deployer, code, otherSalt))
	assert.NotEqual(t, a, DeriveAddress(common.HexToAddress("0xbb"), code, salt))
}

func TestEnvValidate(t *testing.T) {
	assert.ErrorIs(t, Env{}.Validate(), ErrInvalidArgument)
}
