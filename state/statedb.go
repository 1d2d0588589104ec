// Package state implements the in-memory ledger the converter and the AMM
// contracts execute against. It tracks ERC20 balances, allowances and supplies,
// contract storage and event logs, and journals every write so a failed
// transaction can be reverted as a unit.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

var (
	// ErrUnknownToken is returned when an operation references a token that was never deployed.
	ErrUnknownToken = errors.New("unknown token")
	// ErrTokenExists is returned when deploying a token at an address that is already in use.
	ErrTokenExists = errors.New("token already deployed")
	// ErrZeroAddress is returned when a token is deployed at the zero address.
	ErrZeroAddress = errors.New("zero address")
	// ErrInsufficientBalance is returned when a holder transfers or burns more than it owns.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAllowance is returned when a spender moves more than it was approved for.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrSupplyOverflow is returned when minting would push a token's supply beyond 256 bits.
	ErrSupplyOverflow = errors.New("total supply overflow")
)

// Reader is the read-only view of the ledger handed to previews.
type Reader interface {
	Block() BlockContext
	Token(addr common.Address) (Token, bool)
	Tokens() []Token
	Decimals(token common.Address) (uint8, error)
	TotalSupply(token common.Address) *uint256.Int
	BalanceOf(token, holder common.Address) *uint256.Int
	Allowance(token, owner, spender common.Address) *uint256.Int
	GetState(addr common.Address, slot common.Hash) common.Hash
	Logs() []*types.Log
}

type balanceKey struct {
	token  common.Address
	holder common.Address
}

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

type revision struct {
	id           int
	journalIndex int
}

// StateDB holds the full ledger state. It is NOT safe for concurrent use;
// Ledger provides the locking and transaction boundary around it.
type StateDB struct {
	block      BlockContext
	tokens     map[common.Address]Token
	supplies   map[common.Address]*uint256.Int
	balances   map[balanceKey]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	storage    map[common.Address]map[common.Hash]common.Hash
	logs       []*types.Log

	txHash  common.Hash
	txIndex uint

	journal        *journal
	validRevisions []revision
	nextRevisionID int
}

// NewStateDB creates an empty ledger state positioned at the given block.
func NewStateDB(block BlockContext) *StateDB {
	return &StateDB{
		block:      block,
		tokens:     make(map[common.Address]Token),
		supplies:   make(map[common.Address]*uint256.Int),
		balances:   make(map[balanceKey]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		storage:    make(map[common.Address]map[common.Hash]common.Hash),
		journal:    newJournal(),
	}
}

// --- Block ---

func (s *StateDB) Block() BlockContext {
	return s.block
}

// SetBlock moves the state to a new block context.
func (s *StateDB) SetBlock(block BlockContext) {
	s.journal.append(blockChange{prev: s.block})
	s.block = block
}

// --- Tokens ---

// DeployToken registers ERC20 metadata at t.Address with a zero supply.
func (s *StateDB) DeployToken(t Token) error {
	if t.Address == (common.Address{}) {
		return fmt.Errorf("%w: cannot deploy token %q", ErrZeroAddress, t.Symbol)
	}
	if _, exists := s.tokens[t.Address]; exists {
		return fmt.Errorf("%w: %s", ErrTokenExists, t.Address.Hex())
	}
	s.journal.append(tokenDeployChange{address: t.Address})
	s.tokens[t.Address] = t
	return nil
}

func (s *StateDB) Token(addr common.Address) (Token, bool) {
	t, ok := s.tokens[addr]
	return t, ok
}

// Tokens returns every deployed token sorted by address.
func (s *StateDB) Tokens() []Token {
	out := make([]Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// Decimals returns the decimals of a deployed token.
func (s *StateDB) Decimals(token common.Address) (uint8, error) {
	t, ok := s.tokens[token]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return t.Decimals, nil
}

// TotalSupply returns a copy of the token's total supply.
func (s *StateDB) TotalSupply(token common.Address) *uint256.Int {
	if v, ok := s.supplies[token]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

// BalanceOf returns a copy of holder's balance of token.
func (s *StateDB) BalanceOf(token, holder common.Address) *uint256.Int {
	if v, ok := s.balances[balanceKey{token, holder}]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

// Allowance returns a copy of the amount spender may move on behalf of owner.
func (s *StateDB) Allowance(token, owner, spender common.Address) *uint256.Int {
	if v, ok := s.allowances[allowanceKey{token, owner, spender}]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

// Mint creates amount new tokens owned by to.
func (s *StateDB) Mint(token, to common.Address, amount *uint256.Int) error {
	if err := s.requireToken(token); err != nil {
		return err
	}
	supply, overflow := new(uint256.Int).AddOverflow(s.TotalSupply(token), amount)
	if overflow {
		return fmt.Errorf("%w: minting %s of %s", ErrSupplyOverflow, amount.Dec(), token.Hex())
	}
	s.setSupply(token, supply)
	s.setBalance(token, to, new(uint256.Int).Add(s.BalanceOf(token, to), amount))
	s.AddLog(newTransferLog(token, common.Address{}, to, amount))
	return nil
}

// Burn destroys amount tokens held by from.
func (s *StateDB) Burn(token, from common.Address, amount *uint256.Int) error {
	if err := s.requireToken(token); err != nil {
		return err
	}
	balance := s.BalanceOf(token, from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, burning %s", ErrInsufficientBalance, from.Hex(), balance.Dec(), token.Hex(), amount.Dec())
	}
	s.setBalance(token, from, balance.Sub(balance, amount))
	s.setSupply(token, new(uint256.Int).Sub(s.TotalSupply(token), amount))
	s.AddLog(newTransferLog(token, from, common.Address{}, amount))
	return nil
}

// Transfer moves amount tokens from one holder to another.
func (s *StateDB) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if err := s.requireToken(token); err != nil {
		return err
	}
	balance := s.BalanceOf(token, from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, sending %s", ErrInsufficientBalance, from.Hex(), balance.Dec(), token.Hex(), amount.Dec())
	}
	s.setBalance(token, from, balance.Sub(balance, amount))
	s.setBalance(token, to, new(uint256.Int).Add(s.BalanceOf(token, to), amount))
	s.AddLog(newTransferLog(token, from, to, amount))
	return nil
}

// Approve sets the allowance of spender over owner's tokens.
func (s *StateDB) Approve(token, owner, spender common.Address, amount *uint256.Int) error {
	if err := s.requireToken(token); err != nil {
		return err
	}
	s.setAllowance(token, owner, spender, new(uint256.Int).Set(amount))
	s.AddLog(newApprovalLog(token, owner, spender, amount))
	return nil
}

// TransferFrom moves amount tokens from one holder to another using spender's allowance.
// An allowance of MaxAllowance is never decreased.
func (s *StateDB) TransferFrom(token, spender, from, to common.Address, amount *uint256.Int) error {
	if err := s.requireToken(token); err != nil {
		return err
	}
	allowance := s.Allowance(token, from, spender)
	if !allowance.Eq(MaxAllowance) {
		if allowance.Lt(amount) {
			return fmt.Errorf("%w: %s approved %s for %s of %s, moving %s", ErrInsufficientAllowance, from.Hex(), spender.Hex(), allowance.Dec(), token.Hex(), amount.Dec())
		}
		s.setAllowance(token, from, spender, allowance.Sub(allowance, amount))
	}
	return s.Transfer(token, from, to, amount)
}

func (s *StateDB) requireToken(token common.Address) error {
	if _, ok := s.tokens[token]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return nil
}

func (s *StateDB) setSupply(token common.Address, v *uint256.Int) {
	s.journal.append(supplyChange{token: token, prev: s.supplies[token]})
	s.supplies[token] = v
}

func (s *StateDB) setBalance(token, holder common.Address, v *uint256.Int) {
	key := balanceKey{token, holder}
	s.journal.append(balanceChange{key: key, prev: s.balances[key]})
	s.balances[key] = v
}

func (s *StateDB) setAllowance(token, owner, spender common.Address, v *uint256.Int) {
	key := allowanceKey{token, owner, spender}
	s.journal.append(allowanceChange{key: key, prev: s.allowances[key]})
	s.allowances[key] = v
}

// --- Contract storage ---

// GetState returns the value of a storage slot of a contract.
func (s *StateDB) GetState(addr common.Address, slot common.Hash) common.Hash {
	return s.storage[addr][slot]
}

// SetState writes a storage slot of a contract.
func (s *StateDB) SetState(addr common.Address, slot common.Hash, value common.Hash) {
	s.journal.append(storageChange{address: addr, slot: slot, prev: s.GetState(addr, slot)})
	s.setStorage(addr, slot, value)
}

func (s *StateDB) setStorage(addr common.Address, slot common.Hash, value common.Hash) {
	slots, ok := s.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		s.storage[addr] = slots
	}
	if value == (common.Hash{}) {
		delete(slots, slot)
		return
	}
	slots[slot] = value
}

// --- Logs ---

// AddLog appends an event log stamped with the current block and transaction.
func (s *StateDB) AddLog(log *types.Log) {
	s.journal.append(addLogChange{})
	log.BlockNumber = s.block.Number
	log.BlockHash = s.block.Hash()
	log.TxHash = s.txHash
	log.TxIndex = s.txIndex
	log.Index = uint(len(s.logs))
	s.logs = append(s.logs, log)
}

// Logs returns all logs emitted so far.
func (s *StateDB) Logs() []*types.Log {
	logs := make([]*types.Log, len(s.logs))
	copy(logs, s.logs)
	return logs
}

// --- Snapshots ---

// Snapshot returns an identifier for the current revision of the state.
func (s *StateDB) Snapshot() int {
	id := s.nextRevisionID
	s.nextRevisionID++
	s.validRevisions = append(s.validRevisions, revision{id, s.journal.length()})
	return id
}

// RevertToSnapshot reverts all state changes made since the given revision.
func (s *StateDB) RevertToSnapshot(revid int) {
	idx := sort.Search(len(s.validRevisions), func(i int) bool {
		return s.validRevisions[i].id >= revid
	})
	if idx == len(s.validRevisions) || s.validRevisions[idx].id != revid {
		panic(fmt.Errorf("revision id %v cannot be reverted", revid))
	}
	snapshot := s.validRevisions[idx].journalIndex

	s.journal.revert(s, snapshot)
	s.validRevisions = s.validRevisions[:idx]
}

// finalise drops the journal once a transaction has committed.
func (s *StateDB) finalise() {
	s.journal.reset()
	s.validRevisions = s.validRevisions[:0]
}
