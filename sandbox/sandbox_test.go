package sandbox

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/liquidity-converter-go/converter"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSandbox(t *testing.T, cfg *Config) *Sandbox {
	t.Helper()
	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	require.NoError(t, err)
	return s
}

func TestDeadline(t *testing.T) {
	block := state.BlockContext{Number: 1, Timestamp: 1_000}
	assert.Equal(t, uint64(1_000+20*60), Deadline(block, 20))
	assert.Equal(t, uint64(1_000), Deadline(block, 0))
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name        string
		mutate      func(c *Config)
		expectedErr string
	}{
		{name: "Default Scenario", mutate: func(c *Config) {}},
		{name: "No Tokens", mutate: func(c *Config) { c.Tokens = nil }, expectedErr: "at least one token"},
		{name: "Duplicate Token", mutate: func(c *Config) { c.Tokens = append(c.Tokens, c.Tokens[0]) }, expectedErr: "duplicate token CAKE"},
		{name: "Missing Init Code Hash", mutate: func(c *Config) { c.Exchanges[0].InitCodeHash = common.Hash{} }, expectedErr: "initCodeHash is required"},
		{name: "Pool On Unknown Exchange", mutate: func(c *Config) { c.Pools[0].Exchange = "biswap" }, expectedErr: `unknown exchange "biswap"`},
		{name: "Pool With Unknown Token", mutate: func(c *Config) { c.Pools[0].TokenB = "USDT" }, expectedErr: `unknown token "USDT"`},
		{name: "Unknown Destination", mutate: func(c *Config) { c.Converter.Destination = "sushiswap" }, expectedErr: `unknown exchange "sushiswap"`},
		{name: "Unknown Dust Policy", mutate: func(c *Config) { c.Converter.DustPolicy = "burn" }, expectedErr: "unknown dust policy"},
		{name: "Migration Without Caller", mutate: func(c *Config) { c.Migrations[0].Caller = common.Address{} }, expectedErr: "caller is required"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultScenario()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.expectedErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectedErr)
		})
	}
}

func TestSandbox_New(t *testing.T) {
	s := newTestSandbox(t, DefaultScenario())

	pools, index, err := s.Pools()
	require.NoError(t, err)
	assert.Len(t, pools, 5)

	cakeBusd, err := s.PairOf(Pancake, "BUSD", "CAKE")
	require.NoError(t, err)
	pancake, ok := s.Exchange(Pancake)
	require.True(t, ok)
	expected, err := pancake.PairFactory().PairFor(CAKE, BUSD)
	require.NoError(t, err)
	assert.Equal(t, expected, cakeBusd, "pairs live at their CREATE2 address")

	venues := index.GetByTokens(CAKE, BUSD)
	assert.Len(t, venues, 2, "CAKE/BUSD is listed on both exchanges")

	lp := s.BalanceOf(cakeBusd, CakeBusdHolder)
	assert.False(t, lp.IsZero())

	_, err = s.PairOf(Ape, "ADA", "WBNB")
	assert.ErrorIs(t, err, uniswapv2.ErrUnknownPair)

	first, err := s.Converter.WhitelistedRouter(0)
	require.NoError(t, err)
	assert.Equal(t, PancakeRouter, first)
	assert.False(t, s.Converter.IsWhitelisted(ApeRouter))
}

func TestSandbox_Impersonate(t *testing.T) {
	s := newTestSandbox(t, DefaultScenario())
	pool, err := s.PairOf(Pancake, "CAKE", "BUSD")
	require.NoError(t, err)

	held := s.BalanceOf(pool, CakeBusdHolder)
	moved, err := s.Impersonate(pool, CakeBusdHolder, Deployer)
	require.NoError(t, err)
	assert.Equal(t, held, moved)
	assert.True(t, s.BalanceOf(pool, CakeBusdHolder).IsZero())
	assert.Equal(t, held, s.BalanceOf(pool, Deployer))

	_, err = s.Impersonate(pool, CakeBusdHolder, Deployer)
	assert.ErrorIs(t, err, state.ErrInsufficientBalance)
}

// TestSandbox_Run migrates all four PancakeSwap positions into ApeSwap and checks
// every preview against the share formula and against what was actually withdrawn.
func TestSandbox_Run(t *testing.T) {
	s := newTestSandbox(t, DefaultScenario())

	reports, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 4)

	for _, r := range reports {
		t.Run(r.Token0.Symbol+"-"+r.Token1.Symbol, func(t *testing.T) {
			require.NotNil(t, r.Receipt)
			liquidity := r.Receipt.Liquidity.ToBig()

			// liquidity * balance / totalSupply, computed independently
			share := func(balance *big.Int) *big.Int {
				x := new(big.Int).Mul(liquidity, balance)
				return x.Div(x, r.PoolBefore.TotalSupply)
			}

			assert.True(t, r.Preview.Success)
			assert.Equal(t, uint8(18), r.Preview.Token0Decimals)
			assert.Equal(t, uint8(18), r.Preview.Token1Decimals)
			assert.Equal(t, share(r.PoolBefore.Reserve0), r.Preview.Token0Remove.ToBig())
			assert.Equal(t, share(r.PoolBefore.Reserve1), r.Preview.Token1Remove.ToBig())
			assert.Equal(t, r.Preview.Token0Remove, r.Receipt.Token0Removed)
			assert.Equal(t, r.Preview.Token1Remove, r.Receipt.Token1Removed)
			assert.Equal(t, r.Preview.Token0Deposit, r.Receipt.Token0Deposited, "the destination quote matches the deposit")
			assert.Equal(t, r.Preview.Token1Deposit, r.Receipt.Token1Deposited)
			assert.Equal(t, r.Preview.Token0Dust, r.Receipt.Token0Dust)
			assert.Equal(t, r.Preview.Token1Dust, r.Receipt.Token1Dust)

			// removed = deposited + dust for both tokens
			for _, leg := range []struct{ removed, deposited, dust *uint256.Int }{
				{r.Receipt.Token0Removed, r.Receipt.Token0Deposited, r.Receipt.Token0Dust},
				{r.Receipt.Token1Removed, r.Receipt.Token1Deposited, r.Receipt.Token1Dust},
			} {
				assert.Equal(t, leg.removed, new(uint256.Int).Add(leg.deposited, leg.dust))
			}

			assert.True(t, s.BalanceOf(r.Pool, Deployer).IsZero(), "the whole position left the source pool")
			assert.Equal(t, r.Receipt.LiquidityMinted, s.BalanceOf(r.Receipt.DestinationPool, Deployer))
			assert.NotEmpty(t, r.Diff.Updates, "the source pool moved")
			assert.NotEmpty(t, r.LogArgs())
		})
	}

	t.Run("Dust Only Where Ape Prices Differ", func(t *testing.T) {
		cakeBusd := reports[0]
		assert.Equal(t, "CAKE", cakeBusd.Token0.Symbol)
		assert.False(t, cakeBusd.Receipt.Token0Dust.IsZero(), "ApeSwap prices CAKE higher, so CAKE is left over")
		assert.True(t, cakeBusd.Receipt.Token1Dust.IsZero())
		assert.Empty(t, cakeBusd.Diff.Additions, "CAKE/BUSD already existed on ApeSwap")
		assert.True(t, cakeBusd.Tokens.IsEmpty())
		assert.Equal(t, "10", cakeBusd.SourcePrice.String())
		assert.Equal(t, "10.15", cakeBusd.DestinationPrice.String())
		assert.Equal(t, cakeBusd.Receipt.DestinationPool, cakeBusd.Preview.DestinationPool)

		for _, r := range reports[1:] {
			assert.True(t, r.Receipt.Token0Dust.IsZero())
			assert.True(t, r.Receipt.Token1Dust.IsZero())
			require.Len(t, r.Diff.Additions, 1, "the ApeSwap pair is created by the migration")
			assert.Equal(t, r.Receipt.DestinationPool, r.Diff.Additions[0].Address)
			assert.Equal(t, common.Address{}, r.Preview.DestinationPool, "the pair did not exist when previewed")
			assert.True(t, r.DestinationPrice.IsZero())
			require.Len(t, r.Tokens.Additions, 1, "the new pair deploys its LP token")
			assert.Equal(t, r.Receipt.DestinationPool, r.Tokens.Additions[0].Address)
			assert.Equal(t, "APE-LP", r.Tokens.Additions[0].Symbol)
		}

		_, tokens := s.Tokens()
		assert.Len(t, tokens.GetBySymbol("APE-LP"), 4, "one LP token per ApeSwap pair")

		assert.Equal(t, cakeBusd.Receipt.Token0Dust, s.BalanceOf(CAKE, ConverterAcc))
		swept, err := s.Converter.Sweep(Deployer, CAKE, Deployer)
		require.NoError(t, err)
		assert.Equal(t, cakeBusd.Receipt.Token0Dust, swept)
		assert.Contains(t, s.Holdings(Deployer), "CAKE")
	})

	t.Run("Pools End Up On ApeSwap", func(t *testing.T) {
		_, index, err := s.Pools()
		require.NoError(t, err)
		for _, pair := range [][2]common.Address{{CAKE, BUSD}, {CAKE, WBNB}, {BUSD, WBNB}, {ADA, WBNB}} {
			assert.Len(t, index.GetByTokens(pair[0], pair[1]), 2)
		}
	})
}

func TestSandbox_Migrate_Failures(t *testing.T) {
	t.Run("Router Removed From Whitelist", func(t *testing.T) {
		s := newTestSandbox(t, DefaultScenario())
		_, err := s.Converter.ToggleWhitelisted(Deployer, PancakeRouter)
		require.NoError(t, err)

		report, err := s.Migrate(context.Background(), DefaultScenario().Migrations[0])
		assert.ErrorIs(t, err, converter.ErrNotWhitelisted)
		require.NotNil(t, report)
		assert.Nil(t, report.Receipt)
	})

	t.Run("Partial Liquidity", func(t *testing.T) {
		s := newTestSandbox(t, DefaultScenario())
		m := DefaultScenario().Migrations[3]
		m.Liquidity = "1.5"

		report, err := s.Migrate(context.Background(), m)
		require.NoError(t, err)
		assert.Equal(t, "1500000000000000000", report.Receipt.Liquidity.Dec())
		assert.False(t, s.BalanceOf(report.Pool, Deployer).IsZero(), "the rest of the position stays on PancakeSwap")
	})

	t.Run("Unknown Pair", func(t *testing.T) {
		s := newTestSandbox(t, DefaultScenario())
		m := DefaultScenario().Migrations[0]
		m.TokenB = "ADA"
		_, err := s.Migrate(context.Background(), m)
		assert.ErrorIs(t, err, uniswapv2.ErrUnknownPair)
	})
}
