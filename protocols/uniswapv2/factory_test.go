package uniswapv2

import (
	"testing"

	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenX = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenY = common.HexToAddress("0x2222222222222222222222222222222222222222")
	alice  = common.HexToAddress("0xa11ce00000000000000000000000000000000001")

	testFactoryAddr = common.HexToAddress("0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73")
	testRouterAddr  = common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")
	testInitCode    = common.HexToHash("0x00fb7f630766e6a796048ea87d01acd3068e8ff67d078148a3fa3f4a84f69bd5")
)

// newTestExchange deploys two tokens, funds alice with 10M of each and returns a
// factory and router that alice has approved without limit.
func newTestExchange(t *testing.T) (*state.StateDB, *Factory, *Router) {
	t.Helper()
	db := state.NewStateDB(state.BlockContext{Number: 1, Timestamp: 1_000})
	for _, tok := range []state.Token{
		{Address: tokenX, Symbol: "X", Decimals: 18},
		{Address: tokenY, Symbol: "Y", Decimals: 6},
	} {
		require.NoError(t, db.DeployToken(tok))
		require.NoError(t, db.Mint(tok.Address, alice, uint256.NewInt(10_000_000)))
		require.NoError(t, db.Approve(tok.Address, alice, testRouterAddr, state.MaxAllowance))
	}
	factory := NewFactory(testFactoryAddr, testInitCode, "Pancake LPs", "Cake-LP")
	return db, factory, NewRouter(testRouterAddr, factory)
}

func TestSortTokens(t *testing.T) {
	t0, t1, err := SortTokens(tokenY, tokenX)
	require.NoError(t, err)
	assert.Equal(t, tokenX, t0)
	assert.Equal(t, tokenY, t1)

	_, _, err = SortTokens(tokenX, tokenX)
	assert.ErrorIs(t, err, ErrIdenticalAddresses)

	_, _, err = SortTokens(common.Address{}, tokenX)
	assert.ErrorIs(t, err, ErrZeroAddress)
}

func TestFactory_PairFor(t *testing.T) {
	// USDC/WETH on the Uniswap V2 mainnet factory.
	factory := NewFactory(
		common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f"),
		"Uniswap V2", "UNI-V2",
	)
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	pair, err := factory.PairFor(weth, usdc)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"), pair)

	reversed, err := factory.PairFor(usdc, weth)
	require.NoError(t, err)
	assert.Equal(t, pair, reversed, "token order does not matter")
}

func TestFactory_CreatePair(t *testing.T) {
	db, factory, _ := newTestExchange(t)

	pair, err := factory.CreatePair(db, tokenY, tokenX)
	require.NoError(t, err)

	expected, err := factory.PairFor(tokenX, tokenY)
	require.NoError(t, err)
	assert.Equal(t, expected, pair)

	t.Run("Registered In Both Directions", func(t *testing.T) {
		assert.Equal(t, pair, factory.GetPair(db, tokenX, tokenY))
		assert.Equal(t, pair, factory.GetPair(db, tokenY, tokenX))
		assert.Equal(t, uint64(1), factory.AllPairsLength(db))
		assert.Equal(t, []common.Address{pair}, factory.AllPairs(db))
	})

	t.Run("LP Token Deployed", func(t *testing.T) {
		lp, ok := db.Token(pair)
		require.True(t, ok)
		assert.Equal(t, uint8(LPDecimals), lp.Decimals)
		assert.Equal(t, "Cake-LP", lp.Symbol)
	})

	t.Run("Pair Storage Initialized", func(t *testing.T) {
		ps, err := ReadPair(db, pair)
		require.NoError(t, err)
		assert.Equal(t, tokenX, ps.Token0)
		assert.Equal(t, tokenY, ps.Token1)
		assert.True(t, ps.Reserve0.IsZero())
		assert.True(t, ps.Reserve1.IsZero())
	})

	t.Run("Duplicate Pair Rejected", func(t *testing.T) {
		_, err := factory.CreatePair(db, tokenX, tokenY)
		assert.ErrorIs(t, err, ErrPairExists)
	})

	t.Run("Unknown Token Rejected", func(t *testing.T) {
		_, err := factory.CreatePair(db, tokenX, alice)
		assert.ErrorIs(t, err, state.ErrUnknownToken)
	})
}
