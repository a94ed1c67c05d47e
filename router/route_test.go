package router

import (
	"testing"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routeFixture struct {
	*testRouter
	ab, bc, ac common.Address
}

// newRouteFixture deploys deep A/B and B/C pools and, if direct is set, a
// shallow A/C pool.
func newRouteFixture(t *testing.T, direct bool) *routeFixture {
	t.Helper()
	tr := newTestRouter(t, 0)
	f := &routeFixture{testRouter: tr}

	deploy := func(tokens []common.Address, amount int64) common.Address {
		sub, addr, err := tr.DeployStandardPool(admin, tokens, 30)
		require.NoError(t, err)
		tr.fund(t, tokens, sub, amount)
		return addr
	}
	f.ab = deploy([]common.Address{tokenA, tokenB}, 1_000_000)
	f.bc = deploy([]common.Address{tokenB, tokenC}, 1_000_000)
	if direct {
		f.ac = deploy([]common.Address{tokenA, tokenC}, 10_000)
	}
	return f
}

func TestRouter_FindRoute(t *testing.T) {
	t.Run("Two Hops Beat Shallow Direct Pool", func(t *testing.T) {
		f := newRouteFixture(t, true)

		hops, quote, err := f.FindRoute(tokenA, tokenC, bi(1_000), 0)
		require.NoError(t, err)
		assert.Equal(t, []Hop{
			{Pool: f.ab, TokenIn: tokenA, TokenOut: tokenB},
			{Pool: f.bc, TokenIn: tokenB, TokenOut: tokenC},
		}, hops)
		assert.Equal(t, int64(992), quote.Int64())
	})

	t.Run("Hop Limit", func(t *testing.T) {
		f := newRouteFixture(t, true)

		hops, quote, err := f.FindRoute(tokenA, tokenC, bi(1_000), 1)
		require.NoError(t, err)
		assert.Equal(t, []Hop{{Pool: f.ac, TokenIn: tokenA, TokenOut: tokenC}}, hops)
		assert.Equal(t, int64(906), quote.Int64())
	})

	t.Run("Reverse Direction", func(t *testing.T) {
		f := newRouteFixture(t, false)

		hops, quote, err := f.FindRoute(tokenC, tokenA, bi(1_000), 0)
		require.NoError(t, err)
		assert.Equal(t, []Hop{
			{Pool: f.bc, TokenIn: tokenC, TokenOut: tokenB},
			{Pool: f.ab, TokenIn: tokenB, TokenOut: tokenA},
		}, hops)
		assert.Equal(t, int64(992), quote.Int64())
	})

	t.Run("No Route Within Limit", func(t *testing.T) {
		f := newRouteFixture(t, false)

		_, _, err := f.FindRoute(tokenA, tokenC, bi(1_000), 1)
		assert.ErrorIs(t, err, engine.ErrNotFound)
	})

	t.Run("Errors", func(t *testing.T) {
		f := newRouteFixture(t, false)

		testCases := []struct {
			name     string
			tokenIn  common.Address
			tokenOut common.Address
			amount   int64
			wantErr  error
		}{
			{name: "Same Token", tokenIn: tokenA, tokenOut: tokenA, amount: 1_000, wantErr: engine.ErrInvalidArgument},
			{name: "Zero Amount", tokenIn: tokenA, tokenOut: tokenC, amount: 0, wantErr: engine.ErrInvalidArgument},
			{name: "Negative Amount", tokenIn: tokenA, tokenOut: tokenC, amount: -5, wantErr: engine.ErrInvalidArgument},
			{name: "Unknown Token", tokenIn: tokenA, tokenOut: tokenE, amount: 1_000, wantErr: engine.ErrNotFound},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, _, err := f.FindRoute(tc.tokenIn, tc.tokenOut, bi(tc.amount), 0)
				assert.ErrorIs(t, err, tc.wantErr)
			})
		}
	})
}

func TestRouter_SwapRoute(t *testing.T) {
	t.Run("Executes Quote", func(t *testing.T) {
		f := newRouteFixture(t, true)
		f.mint(t, admin, 1_000, tokenA)

		hops, quote, err := f.FindRoute(tokenA, tokenC, bi(1_000), 0)
		require.NoError(t, err)

		out, err := f.SwapRoute(admin, hops, bi(1_000), quote)
		require.NoError(t, err)
		assert.Equal(t, quote.Int64(), out.Int64())
		assert.Equal(t, int64(992), f.host.Ledger.BalanceOf(tokenC, admin).Int64())
		assert.Zero(t, f.host.Ledger.BalanceOf(tokenA, admin).Sign())
		assert.Zero(t, f.host.Ledger.BalanceOf(tokenB, admin).Sign())
		assert.Equal(t, float64(1), counterValue(t, f.reg, "amm_router_operations_total",
			map[string]string{"op": opSwapRoute, "result": "ok"}))
	})

	t.Run("Final Output Below Minimum", func(t *testing.T) {
		f := newRouteFixture(t, false)
		f.mint(t, admin, 1_000, tokenA)

		hops, _, err := f.FindRoute(tokenA, tokenC, bi(1_000), 0)
		require.NoError(t, err)

		_, err = f.SwapRoute(admin, hops, bi(1_000), bi(993))
		assert.ErrorIs(t, err, engine.ErrSlippageExceeded)
		assert.Zero(t, f.host.Ledger.BalanceOf(tokenC, admin).Sign())
	})

	t.Run("Invalid Routes", func(t *testing.T) {
		f := newRouteFixture(t, false)
		f.mint(t, admin, 1_000, tokenA)

		testCases := []struct {
			name    string
			hops    []Hop
			wantErr error
		}{
			{name: "Empty", hops: nil, wantErr: engine.ErrInvalidArgument},
			{
				name: "Broken Chain",
				hops: []Hop{
					{Pool: f.ab, TokenIn: tokenA, TokenOut: tokenB},
					{Pool: f.bc, TokenIn: tokenC, TokenOut: tokenB},
				},
				wantErr: engine.ErrInvalidArgument,
			},
			{
				name:    "Unknown Pool",
				hops:    []Hop{{Pool: routerAddr, TokenIn: tokenA, TokenOut: tokenB}},
				wantErr: engine.ErrNotFound,
			},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := f.SwapRoute(admin, tc.hops, bi(1_000), bi(0))
				assert.ErrorIs(t, err, tc.wantErr)
			})
		}
		assert.Equal(t, int64(1_000), f.host.Ledger.BalanceOf(tokenA, admin).Int64())
	})
}
