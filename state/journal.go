package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// journalEntry is a modification entry in the state change journal that can be
// reverted on demand.
type journalEntry interface {
	revert(*StateDB)
}

// journal contains the list of state modifications applied since the last
// commit. These are tracked to be able to be reverted in the case of a failed
// transaction.
type journal struct {
	entries []journalEntry
}

func newJournal() *journal {
	return &journal{}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

// revert undoes a batch of journalled modifications, newest first.
func (j *journal) revert(db *StateDB, snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].revert(db)
	}
	j.entries = j.entries[:snapshot]
}

func (j *journal) length() int {
	return len(j.entries)
}

func (j *journal) reset() {
	j.entries = j.entries[:0]
}

type (
	tokenDeployChange struct {
		address common.Address
	}
	supplyChange struct {
		token common.Address
		prev  *uint256.Int
	}
	balanceChange struct {
		key  balanceKey
		prev *uint256.Int
	}
	allowanceChange struct {
		key  allowanceKey
		prev *uint256.Int
	}
	storageChange struct {
		address common.Address
		slot    common.Hash
		prev    common.Hash
	}
	addLogChange struct{}
	blockChange  struct {
		prev BlockContext
	}
)

func (ch tokenDeployChange) revert(s *StateDB) {
	delete(s.tokens, ch.address)
}

func (ch supplyChange) revert(s *StateDB) {
	if ch.prev == nil {
		delete(s.supplies, ch.token)
		return
	}
	s.supplies[ch.token] = ch.prev
}

func (ch balanceChange) revert(s *StateDB) {
	if ch.prev == nil {
		delete(s.balances, ch.key)
		return
	}
	s.balances[ch.key] = ch.prev
}

func (ch allowanceChange) revert(s *StateDB) {
	if ch.prev == nil {
		delete(s.allowances, ch.key)
		return
	}
	s.allowances[ch.key] = ch.prev
}

func (ch storageChange) revert(s *StateDB) {
	s.setStorage(ch.address, ch.slot, ch.prev)
}

func (ch addLogChange) revert(s *StateDB) {
	s.logs = s.logs[:len(s.logs)-1]
}

func (ch blockChange) revert(s *StateDB) {
	s.block = ch.prev
}
