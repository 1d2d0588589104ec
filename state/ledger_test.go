package state

import (
	"errors"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := NewLedger(BlockContext{Number: 100, Timestamp: 1_700_000_000})
	_, err := l.Execute(func(db *StateDB) error {
		if err := db.DeployToken(Token{Address: tokenA, Symbol: "Cake", Decimals: 18}); err != nil {
			return err
		}
		return db.Mint(tokenA, alice, uint256.NewInt(1_000))
	})
	require.NoError(t, err)
	return l
}

func TestLedger_Execute(t *testing.T) {
	t.Run("Commit Returns Transaction Logs", func(t *testing.T) {
		l := newTestLedger(t)
		logs, err := l.Execute(func(db *StateDB) error {
			return db.Transfer(tokenA, alice, bob, uint256.NewInt(10))
		})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, TransferEventTopic, logs[0].Topics[0])
		assert.Equal(t, uint(1), logs[0].TxIndex, "second transaction on the ledger")
	})

	t.Run("Failure Reverts Everything", func(t *testing.T) {
		l := newTestLedger(t)
		boom := errors.New("boom")
		logs, err := l.Execute(func(db *StateDB) error {
			if err := db.Transfer(tokenA, alice, bob, uint256.NewInt(10)); err != nil {
				return err
			}
			if err := db.Approve(tokenA, bob, alice, uint256.NewInt(10)); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, logs)

		require.NoError(t, l.View(func(r Reader) error {
			assert.Equal(t, uint64(1_000), r.BalanceOf(tokenA, alice).Uint64())
			assert.True(t, r.BalanceOf(tokenA, bob).IsZero())
			assert.True(t, r.Allowance(tokenA, bob, alice).IsZero())
			assert.Len(t, r.Logs(), 1)
			return nil
		}))
	})
}

func TestLedger_Execute_PanicReverts(t *testing.T) {
	l := newTestLedger(t)
	assert.PanicsWithValue(t, "boom", func() {
		_, _ = l.Execute(func(db *StateDB) error {
			if err := db.Transfer(tokenA, alice, bob, uint256.NewInt(10)); err != nil {
				return err
			}
			panic("boom")
		})
	})

	require.NoError(t, l.View(func(r Reader) error {
		assert.Equal(t, uint64(1_000), r.BalanceOf(tokenA, alice).Uint64())
		assert.True(t, r.BalanceOf(tokenA, bob).IsZero())
		assert.Len(t, r.Logs(), 1, "the panicking transfer left no log")
		return nil
	}))

	logs, err := l.Execute(func(db *StateDB) error {
		return db.Transfer(tokenA, alice, bob, uint256.NewInt(5))
	})
	require.NoError(t, err, "the ledger stays usable after a panic")
	require.Len(t, logs, 1)
	assert.Equal(t, uint(1), logs[0].TxIndex, "the panicked transaction is not counted")
}

func TestLedger_Mine(t *testing.T) {
	l := newTestLedger(t)
	next := l.Mine(3)
	assert.Equal(t, BlockContext{Number: 101, Timestamp: 1_700_000_003}, next)
	assert.Equal(t, next, l.Block())
}

func TestLedger_ConcurrentTransactions(t *testing.T) {
	l := newTestLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = l.Execute(func(db *StateDB) error {
				return db.Transfer(tokenA, alice, bob, uint256.NewInt(1))
			})
		}()
		go func() {
			defer wg.Done()
			_ = l.View(func(r Reader) error {
				sum := new(uint256.Int).Add(r.BalanceOf(tokenA, alice), r.BalanceOf(tokenA, bob))
				assert.Equal(t, uint64(1_000), sum.Uint64(), "views never see a half-applied transfer")
				return nil
			})
		}()
	}
	wg.Wait()

	require.NoError(t, l.View(func(r Reader) error {
		assert.Equal(t, uint64(950), r.BalanceOf(tokenA, alice).Uint64())
		assert.Equal(t, uint64(50), r.BalanceOf(tokenA, bob).Uint64())
		return nil
	}))
}
