package server

import (
	"github.com/defistate/liquidity-converter-go/converter"
	"github.com/defistate/liquidity-converter-go/protocols/tokenregistry"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

const (
	// RpcNamespace is the namespace under which the converter API is registered.
	RpcNamespace                 = "converter"
	PoolStreamSubscriptionMethod = "subscribePoolStream"

	EventTypeFull = "full"
	EventTypeDiff = "diff"
)

// SubscriptionEvent is the wrapper object sent to pool stream subscribers.
type SubscriptionEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	SentAt  int64  `json:"sentAt"`
}

// PoolSnapshot is every pool and token the server knows about at sequence Seq.
type PoolSnapshot struct {
	Seq    uint64             `json:"seq"`
	Block  state.BlockContext `json:"block"`
	Pools  []uniswapv2.Pool   `json:"pools"`
	Tokens []state.Token      `json:"tokens"`
}

// PoolDiff moves a subscriber from snapshot FromSeq to snapshot ToSeq.
type PoolDiff struct {
	FromSeq uint64                        `json:"fromSeq"`
	ToSeq   uint64                        `json:"toSeq"`
	Block   state.BlockContext            `json:"block"`
	Diff    uniswapv2.UniswapV2SystemDiff `json:"diff"`
	Tokens  tokenregistry.TokenSystemDiff `json:"tokens"`
}

// ConvertArgs are the parameters of converter_convert.
type ConvertArgs struct {
	Caller       common.Address `json:"caller"`
	Pool         common.Address `json:"pool"`
	SourceRouter common.Address `json:"sourceRouter"`
	Liquidity    *hexutil.Big   `json:"liquidity"`
	Deadline     hexutil.Uint64 `json:"deadline"`
}

// ConversionResult is the JSON form of converter.ConversionResult.
type ConversionResult struct {
	Success        bool         `json:"success"`
	Token0Decimals uint8        `json:"token0Decimals"`
	Token1Decimals uint8        `json:"token1Decimals"`
	Token0Remove   *hexutil.Big `json:"token0Remove"`
	Token1Remove   *hexutil.Big `json:"token1Remove"`
}

// Receipt is the JSON form of converter.ConversionReceipt.
type Receipt struct {
	Caller          common.Address `json:"caller"`
	SourcePool      common.Address `json:"sourcePool"`
	SourceRouter    common.Address `json:"sourceRouter"`
	DestinationPool common.Address `json:"destinationPool"`
	Token0          common.Address `json:"token0"`
	Token1          common.Address `json:"token1"`

	Liquidity       *hexutil.Big `json:"liquidity"`
	Token0Removed   *hexutil.Big `json:"token0Removed"`
	Token1Removed   *hexutil.Big `json:"token1Removed"`
	Token0Deposited *hexutil.Big `json:"token0Deposited"`
	Token1Deposited *hexutil.Big `json:"token1Deposited"`
	LiquidityMinted *hexutil.Big `json:"liquidityMinted"`
	Token0Dust      *hexutil.Big `json:"token0Dust"`
	Token1Dust      *hexutil.Big `json:"token1Dust"`
	DustPolicy      string       `json:"dustPolicy"`

	Block state.BlockContext `json:"block"`
	Logs  []*types.Log       `json:"logs"`
}

func toBig(x *uint256.Int) *hexutil.Big {
	if x == nil {
		return nil
	}
	return (*hexutil.Big)(x.ToBig())
}

func newConversionResult(r converter.ConversionResult) *ConversionResult {
	return &ConversionResult{
		Success:        r.Success,
		Token0Decimals: r.Token0Decimals,
		Token1Decimals: r.Token1Decimals,
		Token0Remove:   toBig(r.Token0Remove),
		Token1Remove:   toBig(r.Token1Remove),
	}
}

func newReceipt(r *converter.ConversionReceipt) *Receipt {
	return &Receipt{
		Caller:          r.Caller,
		SourcePool:      r.SourcePool,
		SourceRouter:    r.SourceRouter,
		DestinationPool: r.DestinationPool,
		Token0:          r.Token0,
		Token1:          r.Token1,
		Liquidity:       toBig(r.Liquidity),
		Token0Removed:   toBig(r.Token0Removed),
		Token1Removed:   toBig(r.Token1Removed),
		Token0Deposited: toBig(r.Token0Deposited),
		Token1Deposited: toBig(r.Token1Deposited),
		LiquidityMinted: toBig(r.LiquidityMinted),
		Token0Dust:      toBig(r.Token0Dust),
		Token1Dust:      toBig(r.Token1Dust),
		DustPolicy:      r.DustPolicy.String(),
		Block:           r.Block,
		Logs:            r.Logs,
	}
}
