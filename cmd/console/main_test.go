package main

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/defistate-amm-go/cmd/console/config"
	"github.com/defistate/defistate-amm-go/router"
	"github.com/defistate/defistate-amm-go/sandbox"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsole(t *testing.T, mutate func(c *config.ConsoleConfig)) *console {
	t.Helper()
	cfg := &config.ConsoleConfig{
		Router:      "0x0000000000000000000000000000000000000e01",
		Admin:       "alice",
		RewardToken: "RWD",
		Accounts: map[string]string{
			"alice": "0x0000000000000000000000000000000000000b01",
			"RWD":   "0x0000000000000000000000000000000000000aff",
			"USDC":  "0x0000000000000000000000000000000000000a01",
			"DAI":   "0x0000000000000000000000000000000000000a02",
		},
		Mints: []config.Mint{{Account: "alice", Token: "USDC", Amount: big.NewInt(1_000)}},
		Pools: []config.Pool{{Type: "constant_product", Tokens: []string{"USDC", "DAI"}, FeeBps: 30}},
	}
	mutate(cfg)

	admin := common.HexToAddress(cfg.Accounts["alice"])
	host := sandbox.NewHost(1)
	r, err := router.New(&router.Config{
		Address:     common.HexToAddress(cfg.Router),
		Admin:       admin,
		RewardToken: common.HexToAddress(cfg.Accounts["RWD"]),
		Env:         host.Env(),
		Deployer:    host.CodeSpace,
		Registry:    prometheus.NewRegistry(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return &console{cfg: cfg, host: host, router: r, admin: admin}
}

func TestConsole_Bootstrap(t *testing.T) {
	t.Run("Applies Mints And Pools", func(t *testing.T) {
		c := newTestConsole(t, func(*config.ConsoleConfig) {})
		require.NoError(t, c.bootstrap())

		usdc := common.HexToAddress(c.cfg.Accounts["USDC"])
		assert.Equal(t, int64(1_000), c.host.Ledger.BalanceOf(usdc, c.admin).Int64())
		assert.Len(t, c.router.PoolsForToken(usdc), 1)
	})

	testCases := []struct {
		name    string
		mutate  func(c *config.ConsoleConfig)
		wantErr string
	}{
		{
			name:    "Unknown Mint Account",
			mutate:  func(c *config.ConsoleConfig) { c.Mints[0].Account = "carol" },
			wantErr: "mints[0].account",
		},
		{
			name:    "Unknown Mint Token",
			mutate:  func(c *config.ConsoleConfig) { c.Mints[0].Token = "WETH" },
			wantErr: "mints[0].token",
		},
		{
			name:    "Unknown Pool Token",
			mutate:  func(c *config.ConsoleConfig) { c.Pools[0].Tokens = []string{"USDC", "WETH"} },
			wantErr: "pools[0].tokens",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestConsole(t, tc.mutate)
			err := c.bootstrap()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
			usdc := common.HexToAddress(c.cfg.Accounts["USDC"])
			assert.Empty(t, c.router.PoolsForToken(usdc))
		})
	}
}
