package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/defistate/liquidity-converter-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

// Caller is a typed wrapper around the converter JSON-RPC methods.
// Errors carrying a known application code wrap the matching sentinel, so
// errors.Is(err, converter.ErrNotWhitelisted) works across the wire.
type Caller struct {
	rpc *rpc.Client
}

// Dial connects to a converter RPC endpoint.
func Dial(ctx context.Context, url string) (*Caller, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewCaller(c), nil
}

func NewCaller(c *rpc.Client) *Caller {
	return &Caller{rpc: c}
}

func (c *Caller) Close() {
	c.rpc.Close()
}

func (c *Caller) call(ctx context.Context, result any, method string, args ...any) error {
	err := c.rpc.CallContext(ctx, result, server.RpcNamespace+"_"+method, args...)
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if sentinel := server.SentinelForCode(rpcErr.ErrorCode()); sentinel != nil {
			return fmt.Errorf("%w: %s", sentinel, rpcErr.Error())
		}
	}
	return err
}

func (c *Caller) IsWhitelisted(ctx context.Context, router common.Address) (bool, error) {
	var ok bool
	err := c.call(ctx, &ok, "isWhitelisted", router)
	return ok, err
}

func (c *Caller) WhitelistedRouter(ctx context.Context, index uint64) (common.Address, error) {
	var addr common.Address
	err := c.call(ctx, &addr, "whitelistedRouter", hexutil.Uint64(index))
	return addr, err
}

func (c *Caller) WhitelistedRouters(ctx context.Context) ([]common.Address, error) {
	var routers []common.Address
	err := c.call(ctx, &routers, "whitelistedRouters")
	return routers, err
}

func (c *Caller) ToggleWhitelisted(ctx context.Context, caller, router common.Address) (bool, error) {
	var trusted bool
	err := c.call(ctx, &trusted, "toggleWhitelisted", caller, router)
	return trusted, err
}

func (c *Caller) PreviewConversion(ctx context.Context, pool, sourceRouter common.Address, liquidity *uint256.Int) (*server.ConversionResult, error) {
	var amount *hexutil.Big
	if liquidity != nil {
		amount = (*hexutil.Big)(liquidity.ToBig())
	}
	var result server.ConversionResult
	if err := c.call(ctx, &result, "previewConversion", pool, sourceRouter, amount); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Caller) Convert(ctx context.Context, args server.ConvertArgs) (*server.Receipt, error) {
	var receipt server.Receipt
	if err := c.call(ctx, &receipt, "convert", args); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Caller) Sweep(ctx context.Context, caller, token, to common.Address) (*big.Int, error) {
	var amount hexutil.Big
	if err := c.call(ctx, &amount, "sweep", caller, token, to); err != nil {
		return nil, err
	}
	return amount.ToInt(), nil
}

func (c *Caller) Pools(ctx context.Context) (*server.PoolSnapshot, error) {
	var snapshot server.PoolSnapshot
	if err := c.call(ctx, &snapshot, "pools"); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *Caller) Pool(ctx context.Context, addr common.Address) (*uniswapv2.Pool, error) {
	var pool uniswapv2.Pool
	if err := c.call(ctx, &pool, "pool", addr); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (c *Caller) Tokens(ctx context.Context) ([]state.Token, error) {
	var tokens []state.Token
	err := c.call(ctx, &tokens, "tokens")
	return tokens, err
}

func (c *Caller) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	var bal hexutil.Big
	if err := c.call(ctx, &bal, "balanceOf", token, holder); err != nil {
		return nil, err
	}
	return bal.ToInt(), nil
}

func (c *Caller) Approve(ctx context.Context, owner, token, spender common.Address, amount *big.Int) error {
	return c.call(ctx, nil, "approve", owner, token, spender, (*hexutil.Big)(amount))
}

func (c *Caller) Mine(ctx context.Context, seconds uint64) (state.BlockContext, error) {
	var block state.BlockContext
	err := c.call(ctx, &block, "mine", hexutil.Uint64(seconds))
	return block, err
}
