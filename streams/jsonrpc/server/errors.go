package server

import (
	"errors"

	"github.com/defistate/liquidity-converter-go/converter"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/defistate/liquidity-converter-go/whitelist"
)

// Application error codes returned in the JSON-RPC error object.
const (
	CodeNotWhitelisted        = 3001
	CodeDeadlineExpired       = 3002
	CodeInvalidPoolState      = 3003
	CodeSlippageExceeded      = 3004
	CodeInvalidAmount         = 3005
	CodeUnknownPool           = 3006
	CodeUnknownRouter         = 3007
	CodeUnauthorized          = 3008
	CodeInsufficientAllowance = 3009
	CodeInsufficientBalance   = 3010
	CodeZeroAddress           = 3011
)

var errorCodes = []struct {
	code int
	err  error
}{
	{CodeNotWhitelisted, converter.ErrNotWhitelisted},
	{CodeDeadlineExpired, converter.ErrDeadlineExpired},
	{CodeInvalidPoolState, converter.ErrInvalidPoolState},
	{CodeSlippageExceeded, converter.ErrSlippageExceeded},
	{CodeInvalidAmount, converter.ErrInvalidAmount},
	{CodeUnknownPool, converter.ErrUnknownPool},
	{CodeUnknownRouter, converter.ErrUnknownRouter},
	{CodeUnauthorized, whitelist.ErrUnauthorized},
	{CodeInsufficientAllowance, state.ErrInsufficientAllowance},
	{CodeInsufficientBalance, state.ErrInsufficientBalance},
	{CodeZeroAddress, converter.ErrZeroAddress},
}

// codedError satisfies rpc.Error so the code reaches the client.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string  { return e.err.Error() }
func (e *codedError) ErrorCode() int { return e.code }
func (e *codedError) Unwrap() error  { return e.err }

func withCode(err error) error {
	if err == nil {
		return nil
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return &codedError{code: c.code, err: err}
		}
	}
	return err
}

// SentinelForCode returns the error a code was derived from, or nil.
func SentinelForCode(code int) error {
	for _, c := range errorCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
