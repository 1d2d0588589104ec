package state

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	// TransferEventTopic is the topic of the ERC20 Transfer(address,address,uint256) event.
	TransferEventTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	// ApprovalEventTopic is the topic of the ERC20 Approval(address,address,uint256) event.
	ApprovalEventTopic = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
)

// MaxAllowance is treated as an infinite approval: TransferFrom does not decrease it.
var MaxAllowance = new(uint256.Int).SetAllOne()

// Token is the ERC20 metadata of a token deployed on the ledger.
type Token struct {
	Address  common.Address `json:"address" yaml:"address"`
	Name     string         `json:"name" yaml:"name"`
	Symbol   string         `json:"symbol" yaml:"symbol"`
	Decimals uint8          `json:"decimals" yaml:"decimals"`
}

// BlockContext is the block the ledger is currently executing against.
type BlockContext struct {
	Number    uint64 `json:"number" yaml:"number"`
	Timestamp uint64 `json:"timestamp" yaml:"timestamp"`
}

// Hash returns a deterministic pseudo block hash derived from the block number.
func (b BlockContext) Hash() common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], b.Number)
	return crypto.Keccak256Hash([]byte("block"), buf[:])
}

// AddressTopic left-pads an address into a log topic.
func AddressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// AmountData encodes an amount as a single 32-byte ABI word.
func AmountData(amount *uint256.Int) []byte {
	word := amount.Bytes32()
	return word[:]
}

// DecodeAmounts splits log data into 32-byte words.
func DecodeAmounts(data []byte) []*uint256.Int {
	amounts := make([]*uint256.Int, 0, len(data)/32)
	for i := 0; i+32 <= len(data); i += 32 {
		amounts = append(amounts, new(uint256.Int).SetBytes(data[i:i+32]))
	}
	return amounts
}

func newTransferLog(token, from, to common.Address, amount *uint256.Int) *types.Log {
	return &types.Log{
		Address: token,
		Topics:  []common.Hash{TransferEventTopic, AddressTopic(from), AddressTopic(to)},
		Data:    AmountData(amount),
	}
}

func newApprovalLog(token, owner, spender common.Address, amount *uint256.Int) *types.Log {
	return &types.Log{
		Address: token,
		Topics:  []common.Hash{ApprovalEventTopic, AddressTopic(owner), AddressTopic(spender)},
		Data:    AmountData(amount),
	}
}
