// Package server exposes a Converter over go-ethereum's JSON-RPC server under the
// "converter" namespace, and streams pool state to subscribers as a full snapshot
// followed by diffs.
package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/defistate/liquidity-converter-go/converter"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var errSandboxDisabled = errors.New("sandbox methods are disabled")

// Config holds the configuration for the API.
type Config struct {
	Converter *converter.Converter
	Ledger    *state.Ledger
	Directory *uniswapv2.Directory
	Logger    Logger
	// StreamBufferSize is the per-subscriber diff buffer.
	StreamBufferSize uint
	// Sandbox enables every method that acts as a caller-supplied account
	// (toggleWhitelisted, transferOwnership, convert, sweep, approve) and mine.
	// The RPC layer does not authenticate callers, so leave it off on any
	// ledger mirroring real accounts. Reads and previews are always served.
	Sandbox bool
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Converter == nil {
		return errors.New("config: Converter is required")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.Directory == nil {
		return errors.New("config: Directory is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.StreamBufferSize < 1 {
		return errors.New("config: StreamBufferSize must be greater than 0")
	}
	return nil
}

// API is the receiver registered under RpcNamespace.
type API struct {
	converter  *converter.Converter
	ledger     *state.Ledger
	directory  *uniswapv2.Directory
	stream     *PoolStream
	bufferSize uint
	sandbox    bool
	logger     Logger
}

// NewAPI builds the API and reads the initial pool snapshot.
func NewAPI(cfg Config) (*API, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	stream, err := NewPoolStream(cfg.Ledger, cfg.Directory, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to read initial pool snapshot: %w", err)
	}
	return &API{
		converter:  cfg.Converter,
		ledger:     cfg.Ledger,
		directory:  cfg.Directory,
		stream:     stream,
		bufferSize: cfg.StreamBufferSize,
		sandbox:    cfg.Sandbox,
		logger:     cfg.Logger,
	}, nil
}

// NewServer registers a new API on a fresh rpc.Server.
func NewServer(cfg Config) (*rpc.Server, *API, error) {
	api, err := NewAPI(cfg)
	if err != nil {
		return nil, nil, err
	}
	server := rpc.NewServer()
	if err := server.RegisterName(RpcNamespace, api); err != nil {
		return nil, nil, fmt.Errorf("failed to register API: %w", err)
	}
	return server, api, nil
}

// Stream returns the pool stream fed by this API.
func (api *API) Stream() *PoolStream {
	return api.stream
}

// --- Whitelist ---

func (api *API) IsWhitelisted(router common.Address) bool {
	return api.converter.IsWhitelisted(router)
}

func (api *API) WhitelistedRouter(index hexutil.Uint64) (common.Address, error) {
	addr, err := api.converter.WhitelistedRouter(int(index))
	return addr, withCode(err)
}

func (api *API) WhitelistedRouters() []common.Address {
	return api.converter.WhitelistedRouters()
}

// ToggleWhitelisted flips router's trust on behalf of caller. Sandbox only.
func (api *API) ToggleWhitelisted(caller, router common.Address) (bool, error) {
	if !api.sandbox {
		return false, errSandboxDisabled
	}
	trusted, err := api.converter.ToggleWhitelisted(caller, router)
	return trusted, withCode(err)
}

func (api *API) Owner() common.Address {
	return api.converter.Owner()
}

// TransferOwnership hands the owner role to newOwner on behalf of caller. Sandbox only.
func (api *API) TransferOwnership(caller, newOwner common.Address) error {
	if !api.sandbox {
		return errSandboxDisabled
	}
	return withCode(api.converter.TransferOwnership(caller, newOwner))
}

// --- Conversion ---

func (api *API) PreviewConversion(pool, sourceRouter common.Address, liquidity *hexutil.Big) (*ConversionResult, error) {
	amount, err := fromBig(liquidity)
	if err != nil {
		return nil, withCode(err)
	}
	result, err := api.converter.PreviewConversion(pool, sourceRouter, amount)
	if err != nil {
		return nil, withCode(err)
	}
	return newConversionResult(result), nil
}

// Convert migrates liquidity on behalf of args.Caller. Sandbox only.
func (api *API) Convert(ctx context.Context, args ConvertArgs) (*Receipt, error) {
	if !api.sandbox {
		return nil, errSandboxDisabled
	}
	amount, err := fromBig(args.Liquidity)
	if err != nil {
		return nil, withCode(err)
	}
	receipt, err := api.converter.Convert(ctx, args.Caller, converter.MigrationRequest{
		Pool:         args.Pool,
		SourceRouter: args.SourceRouter,
		Liquidity:    amount,
		Deadline:     uint64(args.Deadline),
	})
	if err != nil {
		return nil, withCode(err)
	}
	api.refresh()
	return newReceipt(receipt), nil
}

// Sweep moves retained dust on behalf of caller. Sandbox only.
func (api *API) Sweep(caller, token, to common.Address) (*hexutil.Big, error) {
	if !api.sandbox {
		return nil, errSandboxDisabled
	}
	amount, err := api.converter.Sweep(caller, token, to)
	if err != nil {
		return nil, withCode(err)
	}
	return toBig(amount), nil
}

// Destination returns the destination router and its factory.
func (api *API) Destination() map[string]common.Address {
	router, factory := api.converter.Destination()
	return map[string]common.Address{"router": router, "factory": factory}
}

// --- Ledger reads ---

func (api *API) Block() state.BlockContext {
	return api.ledger.Block()
}

func (api *API) Pools() PoolSnapshot {
	return api.stream.Snapshot()
}

func (api *API) Pool(addr common.Address) (*uniswapv2.Pool, error) {
	var pool uniswapv2.Pool
	err := api.ledger.View(func(r state.Reader) error {
		var err error
		pool, err = uniswapv2.PoolOf(r, addr)
		return err
	})
	if err != nil {
		return nil, withCode(fmt.Errorf("%w: %w", converter.ErrUnknownPool, err))
	}
	return &pool, nil
}

// Tokens lists every deployed token, LP shares included.
func (api *API) Tokens() []state.Token {
	var tokens []state.Token
	_ = api.ledger.View(func(r state.Reader) error {
		tokens = r.Tokens()
		return nil
	})
	return tokens
}

func (api *API) BalanceOf(token, holder common.Address) (*hexutil.Big, error) {
	var bal *uint256.Int
	err := api.ledger.View(func(r state.Reader) error {
		if _, ok := r.Token(token); !ok {
			return fmt.Errorf("%w: %s", state.ErrUnknownToken, token.Hex())
		}
		bal = r.BalanceOf(token, holder)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toBig(bal), nil
}

func (api *API) Allowance(token, owner, spender common.Address) *hexutil.Big {
	var allowance *uint256.Int
	_ = api.ledger.View(func(r state.Reader) error {
		allowance = r.Allowance(token, owner, spender)
		return nil
	})
	return toBig(allowance)
}

// --- Sandbox ---

// Approve sets owner's allowance for spender. Sandbox only.
func (api *API) Approve(owner, token, spender common.Address, amount *hexutil.Big) error {
	if !api.sandbox {
		return errSandboxDisabled
	}
	value, err := fromBig(amount)
	if err != nil {
		return err
	}
	_, err = api.ledger.Execute(func(db *state.StateDB) error {
		return db.Approve(token, owner, spender, value)
	})
	return withCode(err)
}

// Mine advances the ledger by one block. Sandbox only.
func (api *API) Mine(seconds hexutil.Uint64) (state.BlockContext, error) {
	if !api.sandbox {
		return state.BlockContext{}, errSandboxDisabled
	}
	block := api.ledger.Mine(uint64(seconds))
	api.refresh()
	return block, nil
}

// --- Pool stream ---

// SubscribePoolStream sends the current pool snapshot, then a diff after every
// change observed through this API.
func (api *API) SubscribePoolStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	diffs := make(chan PoolDiff, api.bufferSize)
	snapshot, sub := api.stream.subscribe(diffs)

	go func() {
		defer sub.Unsubscribe()
		if err := notifier.Notify(rpcSub.ID, &SubscriptionEvent{Type: EventTypeFull, Payload: snapshot, SentAt: time.Now().UnixNano()}); err != nil {
			api.logger.Warn("failed to send pool snapshot", "subscription", rpcSub.ID, "error", err)
			return
		}
		for {
			select {
			case diff := <-diffs:
				if diff.ToSeq <= snapshot.Seq {
					continue
				}
				if err := notifier.Notify(rpcSub.ID, &SubscriptionEvent{Type: EventTypeDiff, Payload: diff, SentAt: time.Now().UnixNano()}); err != nil {
					api.logger.Warn("failed to send pool diff", "subscription", rpcSub.ID, "error", err)
					return
				}
			case <-rpcSub.Err():
				return
			case <-sub.Err():
				return
			}
		}
	}()
	return rpcSub, nil
}

func (api *API) refresh() {
	if _, err := api.stream.Refresh(); err != nil {
		api.logger.Error("failed to refresh pool stream", "error", err)
	}
}

func fromBig(b *hexutil.Big) (*uint256.Int, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: missing amount", converter.ErrInvalidAmount)
	}
	if (*big.Int)(b).Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount", converter.ErrInvalidAmount)
	}
	v, overflow := uint256.FromBig((*big.Int)(b))
	if overflow {
		return nil, fmt.Errorf("%w: amount does not fit in 256 bits", converter.ErrInvalidAmount)
	}
	return v, nil
}
