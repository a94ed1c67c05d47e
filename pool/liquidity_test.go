package pool

import (
	"testing"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func us(vs ...uint64) []*uint256.Int {
	out := make([]*uint256.Int, len(vs))
	for i, v := range vs {
		out[i] = uint256.NewInt(v)
	}
	return out
}

func TestProportionalDeposit(t *testing.T) {
	testCases := []struct {
		name           string
		desired        []*uint256.Int
		reserves       []*uint256.Int
		totalShares    uint64
		expectedActual []uint64
		expectedShares uint64
		expectedErr    error
	}{
		{
			name:           "Exact Ratio",
			desired:        us(50, 200),
			reserves:       us(100, 400),
			totalShares:    200,
			expectedActual: []uint64{50, 200},
			expectedShares: 100,
		},
		{
			name:           "First Token Binds",
			desired:        us(10, 1000),
			reserves:       us(100, 400),
			totalShares:    200,
			expectedActual: []uint64{10, 40},
			expectedShares: 20,
		},
		{
			name:           "Last Token Binds",
			desired:        us(30, 30, 3),
			reserves:       us(100, 100, 100),
			totalShares:    300,
			expectedActual: []uint64{3, 3, 3},
			expectedShares: 9,
		},
		{
			// the floored amount of the small reserve caps the shares
			name:           "Floor Lowers Shares",
			desired:        us(100, 999),
			reserves:       us(2, 1000),
			totalShares:    1000,
			expectedActual: []uint64{1, 999},
			expectedShares: 500,
		},
		{
			name:        "Rounds To Zero",
			desired:     us(1, 1),
			reserves:    us(1, 10_000),
			totalShares: 100,
			expectedErr: engine.ErrInvalidArgument,
		},
		{
			name:        "Zero Desired",
			desired:     us(0, 10),
			reserves:    us(100, 100),
			totalShares: 100,
			expectedErr: engine.ErrInvalidArgument,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual, shares, err := proportionalDeposit(tc.desired, tc.reserves, uint256.NewInt(tc.totalShares))
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, actual, len(tc.expectedActual))
			for i := range actual {
				assert.Equal(t, tc.expectedActual[i], actual[i].Uint64(), "amount %d", i)
				assert.False(t, actual[i].Gt(tc.desired[i]), "amount %d exceeds the desired amount", i)
			}
			assert.Equal(t, tc.expectedShares, shares.Uint64())
		})
	}
}

func TestProportionalWithdraw(t *testing.T) {
	out, err := proportionalWithdraw(uint256.NewInt(1), us(10, 7), uint256.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), out[0].Uint64())
	assert.Equal(t, uint64(2), out[1].Uint64())

	out, err = proportionalWithdraw(uint256.NewInt(3), us(10, 7), uint256.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), out[0].Uint64())
	assert.Equal(t, uint64(7), out[1].Uint64())
}
