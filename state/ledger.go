package state

import (
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Ledger is the transactional boundary around a StateDB. Every Execute call is
// one all-or-nothing transaction: if fn returns an error, every change it made
// (balances, allowances, storage, logs) is reverted before the lock is released.
// View calls share a read lock and never observe a half-applied transaction.
type Ledger struct {
	mu      sync.RWMutex
	db      *StateDB
	txCount uint64
}

// NewLedger creates an empty ledger positioned at block.
func NewLedger(block BlockContext) *Ledger {
	return &Ledger{db: NewStateDB(block)}
}

// Execute runs fn as a single transaction and returns the logs it emitted.
func (l *Ledger) Execute(fn func(db *StateDB) error) ([]*types.Log, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	db := l.db
	db.txHash = l.nextTxHash()
	db.txIndex = uint(l.txCount)
	start := len(db.logs)
	snapshot := db.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			db.RevertToSnapshot(snapshot)
			db.finalise()
			panic(r)
		}
	}()

	if err := fn(db); err != nil {
		db.RevertToSnapshot(snapshot)
		db.finalise()
		return nil, err
	}

	logs := make([]*types.Log, len(db.logs)-start)
	copy(logs, db.logs[start:])
	db.finalise()
	l.txCount++
	return logs, nil
}

// View runs fn against a read-only view of the ledger.
func (l *Ledger) View(fn func(r Reader) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(l.db)
}

// Block returns the current block context.
func (l *Ledger) Block() BlockContext {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.db.block
}

// Mine advances the ledger by one block whose timestamp is seconds later than the current one.
func (l *Ledger) Mine(seconds uint64) BlockContext {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := BlockContext{
		Number:    l.db.block.Number + 1,
		Timestamp: l.db.block.Timestamp + seconds,
	}
	l.db.SetBlock(next)
	l.db.finalise()
	return next
}

func (l *Ledger) nextTxHash() common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], l.db.block.Number)
	binary.BigEndian.PutUint64(buf[8:], l.txCount)
	return crypto.Keccak256Hash([]byte("tx"), buf[:])
}
