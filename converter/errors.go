package converter

import (
	"context"
	"errors"

	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2/calculator"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/defistate/liquidity-converter-go/whitelist"
)

var (
	// ErrNotWhitelisted is returned when the source router is not trusted.
	ErrNotWhitelisted = errors.New("source router is not whitelisted")
	// ErrDeadlineExpired is returned when the block timestamp is past the request deadline.
	ErrDeadlineExpired = errors.New("deadline expired")
	// ErrInvalidPoolState is returned when a pool cannot be redeemed against, e.g. it has no supply.
	ErrInvalidPoolState = errors.New("invalid pool state")
	// ErrSlippageExceeded is returned when the destination router rejects the deposit minimums.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrInvalidAmount is returned for a nil or zero liquidity amount.
	ErrInvalidAmount = errors.New("invalid liquidity amount")
	// ErrUnknownPool is returned when the pool is not a pair of the source router's factory.
	ErrUnknownPool = errors.New("unknown pool")
	// ErrUnknownRouter is returned when a whitelisted router has no implementation to call.
	ErrUnknownRouter = errors.New("unknown router")
	// ErrZeroAddress is returned when the zero address is used as a recipient,
	// router or owner.
	ErrZeroAddress = whitelist.ErrZeroAddress
	// ErrUnknownDustPolicy is returned when parsing an unrecognized dust policy.
	ErrUnknownDustPolicy = errors.New("unknown dust policy")
)

// resultLabel maps an operation outcome to the `result` metric label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotWhitelisted):
		return "not_whitelisted"
	case errors.Is(err, ErrDeadlineExpired):
		return "deadline_expired"
	case errors.Is(err, state.ErrInsufficientAllowance):
		return "insufficient_allowance"
	case errors.Is(err, state.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInvalidPoolState):
		return "invalid_pool_state"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrUnknownPool):
		return "unknown_pool"
	case errors.Is(err, ErrUnknownRouter):
		return "unknown_router"
	case errors.Is(err, whitelist.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, calculator.ErrOverflow), errors.Is(err, uniswapv2.ErrReserveOverflow):
		return "overflow"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
