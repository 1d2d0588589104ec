package indexer

import (
	"math/big"
	"testing"

	uniswapv2 "github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexableUniswapV2System(t *testing.T) {
	cake := common.HexToAddress("0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82")
	busd := common.HexToAddress("0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56")
	wbnb := common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")

	pancakeCakeBusd := common.HexToAddress("0x804678fa97d91B974ec2af3c843270886528a9E6")
	apeCakeBusd := common.HexToAddress("0x0000000000000000000000000000000000000a9e")
	pancakeBusdWbnb := common.HexToAddress("0x58F876857a02D6762E0101bb5C46A8c1ED44Dc16")

	testPools := []uniswapv2.Pool{
		{Address: pancakeCakeBusd, Token0: cake, Token1: busd, Reserve0: big.NewInt(1000), Reserve1: big.NewInt(2000), TotalSupply: big.NewInt(1414)},
		{Address: pancakeBusdWbnb, Token0: wbnb, Token1: busd, Reserve0: big.NewInt(3000), Reserve1: big.NewInt(4000), TotalSupply: big.NewInt(3464)},
		{Address: apeCakeBusd, Token0: cake, Token1: busd, Reserve0: big.NewInt(10), Reserve1: big.NewInt(20), TotalSupply: big.NewInt(14)},
	}

	indexer := New().Index(testPools)
	require.NotNil(t, indexer)

	t.Run("Successful Lookups", func(t *testing.T) {
		pool, found := indexer.GetByAddress(pancakeCakeBusd)
		assert.True(t, found)
		assert.Equal(t, cake, pool.Token0)
		assert.Equal(t, int64(1000), pool.Reserve0.Int64())
	})

	t.Run("Lookup By Tokens In Either Order", func(t *testing.T) {
		pools := indexer.GetByTokens(busd, cake)
		require.Len(t, pools, 2, "one pool per exchange")
		assert.Equal(t, pancakeCakeBusd, pools[0].Address)
		assert.Equal(t, apeCakeBusd, pools[1].Address)

		assert.Empty(t, indexer.GetByTokens(cake, wbnb))
		assert.Empty(t, indexer.GetByTokens(cake, cake))
	})

	t.Run("Not Found Lookups", func(t *testing.T) {
		_, found := indexer.GetByAddress(common.HexToAddress("0x999"))
		assert.False(t, found)
	})

	t.Run("All Method", func(t *testing.T) {
		allPools := indexer.All()
		assert.Len(t, allPools, 3)

		allPools[0].Token0 = common.Address{}
		originalPool, _ := indexer.GetByAddress(pancakeCakeBusd)
		assert.Equal(t, cake, originalPool.Token0, "Modifying the returned slice should not affect the internal state")
	})

	t.Run("Edge Case - Nil Slice", func(t *testing.T) {
		nilIndexer := NewIndexableUniswapV2System(nil)
		require.NotNil(t, nilIndexer)

		_, found := nilIndexer.GetByAddress(pancakeCakeBusd)
		assert.False(t, found)

		allPools := nilIndexer.All()
		assert.Len(t, allPools, 0)
		assert.NotNil(t, allPools, "All() should return an empty slice, not nil")
	})
}
