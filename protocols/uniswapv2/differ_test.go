package uniswapv2

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(addr string, r0, r1, supply int64) Pool {
	return Pool{
		Address:     common.HexToAddress(addr),
		Reserve0:    big.NewInt(r0),
		Reserve1:    big.NewInt(r1),
		TotalSupply: big.NewInt(supply),
	}
}

func TestDiffer(t *testing.T) {
	pool1Old := testPool("0x01", 1000, 2000, 1414)
	pool2Old := testPool("0x02", 3000, 4000, 3464)
	pool3Old := testPool("0x03", 5000, 6000, 5477)

	t.Run("should identify additions correctly", func(t *testing.T) {
		diff := Differ([]Pool{pool1Old}, []Pool{pool1Old, pool2Old})

		assert.Len(t, diff.Additions, 1, "Should have one addition")
		assert.Equal(t, pool2Old.Address, diff.Additions[0].Address)
		assert.Empty(t, diff.Updates)
		assert.Empty(t, diff.Deletions)
	})

	t.Run("should identify deletions correctly", func(t *testing.T) {
		diff := Differ([]Pool{pool1Old, pool2Old}, []Pool{pool1Old})

		assert.Empty(t, diff.Additions)
		assert.Empty(t, diff.Updates)
		require.Len(t, diff.Deletions, 1, "Should have one deletion")
		assert.Equal(t, pool2Old.Address, diff.Deletions[0])
	})

	t.Run("should identify reserve updates", func(t *testing.T) {
		pool1Updated := testPool("0x01", 1001, 2000, 1414)

		diff := Differ([]Pool{pool1Old}, []Pool{pool1Updated})

		assert.Empty(t, diff.Additions)
		require.Len(t, diff.Updates, 1)
		assert.Equal(t, int64(1001), diff.Updates[0].Reserve0.Int64())
		assert.Empty(t, diff.Deletions)
	})

	t.Run("should identify supply updates", func(t *testing.T) {
		pool1Minted := testPool("0x01", 1000, 2000, 2000)

		diff := Differ([]Pool{pool1Old}, []Pool{pool1Minted})
		require.Len(t, diff.Updates, 1)
		assert.Equal(t, int64(2000), diff.Updates[0].TotalSupply.Int64())
	})

	t.Run("should handle a mix of additions, updates, and deletions", func(t *testing.T) {
		pool1Updated := testPool("0x01", 1001, 2000, 1414)
		pool4New := testPool("0x04", 7000, 8000, 7483)
		pool5New := testPool("0x05", 1, 1, 1)

		diff := Differ(
			[]Pool{pool1Old, pool2Old, pool3Old},
			[]Pool{pool5New, pool1Updated, pool2Old, pool4New},
		)

		require.Len(t, diff.Additions, 2)
		assert.Equal(t, pool4New.Address, diff.Additions[0].Address, "additions are sorted by address")
		assert.Equal(t, pool5New.Address, diff.Additions[1].Address)

		require.Len(t, diff.Updates, 1)
		assert.Equal(t, pool1Updated.Address, diff.Updates[0].Address)

		require.Len(t, diff.Deletions, 1)
		assert.Equal(t, pool3Old.Address, diff.Deletions[0])
	})

	t.Run("should produce an empty diff when there are no changes", func(t *testing.T) {
		diff := Differ([]Pool{pool1Old, pool2Old}, []Pool{pool1Old, pool2Old})
		assert.True(t, diff.IsEmpty())
	})

	t.Run("should handle empty initial and new states", func(t *testing.T) {
		diff := Differ([]Pool{}, nil)
		assert.True(t, diff.IsEmpty())
	})
}

func TestPatcher(t *testing.T) {
	pool1 := testPool("0x01", 1000, 5000, 2236)
	pool2 := testPool("0x02", 2000, 6000, 3464)
	pool3 := testPool("0x03", 3000, 7000, 4582)
	initialState := []Pool{pool3, pool1, pool2}

	t.Run("should apply a mixed diff", func(t *testing.T) {
		pool1Updated := testPool("0x01", 1001, 5005, 2236)
		pool4 := testPool("0x04", 4000, 4000, 4000)

		newState, err := Patcher(initialState, UniswapV2SystemDiff{
			Additions: []Pool{pool4},
			Updates:   []Pool{pool1Updated},
			Deletions: []common.Address{pool2.Address},
		})
		require.NoError(t, err)

		require.Len(t, newState, 3)
		assert.Equal(t, pool1.Address, newState[0].Address, "result is sorted by address")
		assert.Equal(t, int64(1001), newState[0].Reserve0.Int64())
		assert.Equal(t, pool3.Address, newState[1].Address)
		assert.Equal(t, pool4.Address, newState[2].Address)
	})

	t.Run("should round-trip a differ result", func(t *testing.T) {
		target := []Pool{testPool("0x01", 900, 4500, 2100), pool3, testPool("0x09", 1, 2, 1)}
		newState, err := Patcher(initialState, Differ(initialState, target))
		require.NoError(t, err)

		assert.Empty(t, Differ(target, newState).Updates)
		assert.True(t, Differ(target, newState).IsEmpty())
	})

	t.Run("should deep copy so the new state is independent", func(t *testing.T) {
		update := testPool("0x01", 1001, 5005, 2236)
		newState, err := Patcher(initialState, UniswapV2SystemDiff{Updates: []Pool{update}})
		require.NoError(t, err)

		update.Reserve0.SetInt64(99999)
		initialState[2].Reserve1.SetInt64(1)

		assert.Equal(t, int64(1001), newState[0].Reserve0.Int64())
		assert.Equal(t, int64(6000), newState[1].Reserve1.Int64(), "pool2 must not share memory with the previous state")
		initialState[2].Reserve1.SetInt64(6000)
	})
}
