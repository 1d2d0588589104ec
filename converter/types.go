package converter

import (
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging,
// compatible with the standard library's slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SourceRouter is the liquidity-removal surface of a whitelisted AMM router.
type SourceRouter interface {
	Address() common.Address
	GetPair(r state.Reader, tokenA, tokenB common.Address) common.Address
	RemoveLiquidity(
		db *state.StateDB,
		sender, tokenA, tokenB common.Address,
		liquidity, amountAMin, amountBMin *uint256.Int,
		to common.Address,
		deadline uint64,
	) (amountA, amountB *uint256.Int, err error)
}

// DestinationRouter is the liquidity-addition surface of the fixed destination AMM.
type DestinationRouter interface {
	Address() common.Address
	Factory() common.Address
	GetPair(r state.Reader, tokenA, tokenB common.Address) common.Address
	QuoteAddLiquidity(r state.Reader, tokenA, tokenB common.Address, amountADesired, amountBDesired *uint256.Int) (amountA, amountB *uint256.Int, err error)
	AddLiquidity(
		db *state.StateDB,
		sender, tokenA, tokenB common.Address,
		amountADesired, amountBDesired, amountAMin, amountBMin *uint256.Int,
		to common.Address,
		deadline uint64,
	) (amountA, amountB, liquidity *uint256.Int, err error)
}

// RouterLookupFunc resolves a router address to its implementation.
type RouterLookupFunc func(addr common.Address) (SourceRouter, bool)

// DustPolicy decides what happens to tokens the destination router did not take.
type DustPolicy uint8

const (
	// DustRetain keeps leftovers on the converter until the owner sweeps them.
	DustRetain DustPolicy = iota
	// DustRefund sends leftovers back to the caller in the same conversion.
	DustRefund
)

func (p DustPolicy) String() string {
	switch p {
	case DustRetain:
		return "retain"
	case DustRefund:
		return "refund"
	default:
		return "unknown"
	}
}

// ParseDustPolicy maps "retain" or "refund" (empty means retain) to a DustPolicy.
func ParseDustPolicy(s string) (DustPolicy, error) {
	switch s {
	case "", "retain":
		return DustRetain, nil
	case "refund":
		return DustRefund, nil
	default:
		return 0, ErrUnknownDustPolicy
	}
}

// ConversionResult is the outcome of a preview: what burning liquidity would release right now.
type ConversionResult struct {
	Success        bool
	Token0Decimals uint8
	Token1Decimals uint8
	Token0Remove   *uint256.Int
	Token1Remove   *uint256.Int
}

// MigrationPreview is a ConversionResult plus what the destination AMM would take.
// DestinationPool is zero when the conversion would create the pair.
type MigrationPreview struct {
	ConversionResult
	DestinationPool common.Address
	Token0Deposit   *uint256.Int
	Token1Deposit   *uint256.Int
	Token0Dust      *uint256.Int
	Token1Dust      *uint256.Int
}

// MigrationRequest asks the converter to move liquidity shares of Pool, held by the
// caller, from SourceRouter's AMM to the destination AMM.
type MigrationRequest struct {
	Pool         common.Address
	SourceRouter common.Address
	Liquidity    *uint256.Int
	Deadline     uint64
}

// ConversionReceipt records what a successful Convert did.
type ConversionReceipt struct {
	Caller          common.Address
	SourcePool      common.Address
	SourceRouter    common.Address
	DestinationPool common.Address
	Token0          common.Address
	Token1          common.Address

	Liquidity       *uint256.Int
	Token0Removed   *uint256.Int
	Token1Removed   *uint256.Int
	Token0Deposited *uint256.Int
	Token1Deposited *uint256.Int
	LiquidityMinted *uint256.Int
	Token0Dust      *uint256.Int
	Token1Dust      *uint256.Int
	DustPolicy      DustPolicy

	Block state.BlockContext
	Logs  []*types.Log
}

// DirectoryLookup resolves source routers from a uniswapv2.Directory.
func DirectoryLookup(d *uniswapv2.Directory) RouterLookupFunc {
	return func(addr common.Address) (SourceRouter, bool) {
		r, ok := d.Router(addr)
		if !ok {
			return nil, false
		}
		return r, true
	}
}
