// Package converter migrates liquidity positions from whitelisted source AMMs
// to a fixed destination AMM. PreviewConversion computes what a withdrawal would
// release without touching state; Convert executes the withdrawal and redeposit
// as a single ledger transaction.
package converter

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/defistate/liquidity-converter-go/whitelist"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// maxBps is 100% in basis points.
const maxBps = 10_000

var (
	LiquidityConvertedEventTopic = crypto.Keccak256Hash([]byte("LiquidityConverted(address,address,address,uint256,uint256,uint256,uint256,uint256,uint256)"))
	WhitelistToggledEventTopic   = crypto.Keccak256Hash([]byte("WhitelistToggled(address,bool)"))
	DustSweptEventTopic          = crypto.Keccak256Hash([]byte("DustSwept(address,address,uint256)"))
	OwnershipTransferredTopic    = crypto.Keccak256Hash([]byte("OwnershipTransferred(address,address)"))
)

// Config holds all the dependencies and settings for a Converter.
type Config struct {
	// Address is the converter's own account on the ledger. It holds LP shares and
	// tokens in flight during a conversion, and retained dust afterwards.
	Address common.Address
	Owner   common.Address

	DestinationRouter DestinationRouter
	Ledger            *state.Ledger
	Routers           RouterLookupFunc

	// InitialWhitelist optionally seeds the trusted routers.
	InitialWhitelist []common.Address

	DustPolicy DustPolicy
	// MinDepositBps is the minimum share of each withdrawn token, in basis points,
	// that the destination deposit must take. Zero disables the check.
	MinDepositBps uint16

	Logger        Logger
	PrometheusReg prometheus.Registerer
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: Address is required")
	}
	if c.Owner == (common.Address{}) {
		return errors.New("config: Owner is required")
	}
	if c.DestinationRouter == nil {
		return errors.New("config: DestinationRouter is required")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.Routers == nil {
		return errors.New("config: Routers is required")
	}
	if c.DustPolicy != DustRetain && c.DustPolicy != DustRefund {
		return fmt.Errorf("config: %w: %d", ErrUnknownDustPolicy, c.DustPolicy)
	}
	if c.MinDepositBps > maxBps {
		return fmt.Errorf("config: MinDepositBps must not exceed %d", maxBps)
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.PrometheusReg == nil {
		return errors.New("config: PrometheusReg is required")
	}
	return nil
}

// Converter moves liquidity from whitelisted source routers into the destination AMM.
// It is safe for concurrent use; conversions serialize on the ledger.
type Converter struct {
	address       common.Address
	destination   DestinationRouter
	ledger        *state.Ledger
	routers       RouterLookupFunc
	whitelist     *whitelist.System
	dustPolicy    DustPolicy
	minDepositBps uint16
	logger        Logger
	metrics       *Metrics
}

// New constructs a Converter from a configuration, returning an error if the config is invalid.
func New(cfg *Config) (*Converter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	wl, err := whitelist.NewSystemFromView(cfg.Owner, &whitelist.RegistryView{Routers: cfg.InitialWhitelist})
	if err != nil {
		return nil, err
	}
	c := &Converter{
		address:       cfg.Address,
		destination:   cfg.DestinationRouter,
		ledger:        cfg.Ledger,
		routers:       cfg.Routers,
		whitelist:     wl,
		dustPolicy:    cfg.DustPolicy,
		minDepositBps: cfg.MinDepositBps,
		logger:        cfg.Logger,
		metrics:       NewMetrics(cfg.PrometheusReg),
	}
	c.metrics.WhitelistedRouters.Set(float64(wl.Len()))
	return c, nil
}

func (c *Converter) Address() common.Address {
	return c.address
}

// Destination returns the destination router and the factory it deposits through.
func (c *Converter) Destination() (router, factory common.Address) {
	return c.destination.Address(), c.destination.Factory()
}

func (c *Converter) DustPolicy() DustPolicy {
	return c.dustPolicy
}

// --- Whitelist administration ---

// ToggleWhitelisted flips whether router is a trusted source and records a
// WhitelistToggled log. Only the owner may call it.
func (c *Converter) ToggleWhitelisted(caller, router common.Address) (bool, error) {
	var trusted bool
	_, err := c.ledger.Execute(func(db *state.StateDB) error {
		var err error
		trusted, err = c.whitelist.Toggle(caller, router)
		if err != nil {
			return err
		}
		c.metrics.WhitelistedRouters.Set(float64(c.whitelist.Len()))
		flag := common.Hash{}
		if trusted {
			flag[common.HashLength-1] = 1
		}
		db.AddLog(&types.Log{
			Address: c.address,
			Topics:  []common.Hash{WhitelistToggledEventTopic, state.AddressTopic(router)},
			Data:    flag.Bytes(),
		})
		return nil
	})
	if err != nil {
		c.logger.Warn("whitelist toggle rejected", "caller", caller, "router", router, "error", err)
		return false, err
	}
	c.logger.Info("whitelist toggled", "router", router, "trusted", trusted)
	return trusted, nil
}

func (c *Converter) IsWhitelisted(router common.Address) bool {
	return c.whitelist.IsWhitelisted(router)
}

// WhitelistedRouter returns the i-th trusted router in enumeration order.
func (c *Converter) WhitelistedRouter(i int) (common.Address, error) {
	return c.whitelist.At(i)
}

func (c *Converter) WhitelistedRouters() []common.Address {
	return c.whitelist.All()
}

func (c *Converter) Owner() common.Address {
	return c.whitelist.Owner()
}

// TransferOwnership hands administration of the converter to newOwner.
func (c *Converter) TransferOwnership(caller, newOwner common.Address) error {
	var previous common.Address
	_, err := c.ledger.Execute(func(db *state.StateDB) error {
		previous = c.whitelist.Owner()
		if err := c.whitelist.TransferOwnership(caller, newOwner); err != nil {
			return err
		}
		db.AddLog(&types.Log{
			Address: c.address,
			Topics:  []common.Hash{OwnershipTransferredTopic, state.AddressTopic(previous), state.AddressTopic(newOwner)},
		})
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("ownership transferred", "from", previous, "to", newOwner)
	return nil
}

// --- Preview ---

// PreviewConversion returns the token amounts that burning liquidity shares of pool
// would release at the current ledger state. It never mutates state.
func (c *Converter) PreviewConversion(pool, sourceRouter common.Address, liquidity *uint256.Int) (result ConversionResult, err error) {
	defer func() {
		c.metrics.PreviewsTotal.WithLabelValues(resultLabel(err)).Inc()
	}()

	err = c.viewSource(pool, sourceRouter, liquidity, func(r state.Reader, pair uniswapv2.PairState) error {
		var err error
		result, err = preview(r, pool, pair, liquidity)
		return err
	})
	if err != nil {
		return ConversionResult{}, err
	}
	return result, nil
}

// PreviewMigration extends PreviewConversion with the deposit the destination
// router would accept for the released amounts, and the dust it would leave.
// Convert reproduces it exactly when nothing moves either pool in between.
func (c *Converter) PreviewMigration(pool, sourceRouter common.Address, liquidity *uint256.Int) (result MigrationPreview, err error) {
	defer func() {
		c.metrics.PreviewsTotal.WithLabelValues(resultLabel(err)).Inc()
	}()

	err = c.viewSource(pool, sourceRouter, liquidity, func(r state.Reader, pair uniswapv2.PairState) error {
		removal, err := preview(r, pool, pair, liquidity)
		if err != nil {
			return err
		}
		deposit0, deposit1, err := c.destination.QuoteAddLiquidity(r, pair.Token0, pair.Token1, removal.Token0Remove, removal.Token1Remove)
		if err != nil {
			return fmt.Errorf("quote destination deposit: %w", err)
		}
		result = MigrationPreview{
			ConversionResult: removal,
			DestinationPool:  c.destination.GetPair(r, pair.Token0, pair.Token1),
			Token0Deposit:    deposit0,
			Token1Deposit:    deposit1,
			Token0Dust:       new(uint256.Int).Sub(removal.Token0Remove, deposit0),
			Token1Dust:       new(uint256.Int).Sub(removal.Token1Remove, deposit1),
		}
		return nil
	})
	if err != nil {
		return MigrationPreview{}, err
	}
	return result, nil
}

// viewSource validates a preview request and runs fn under the ledger read lock
// with the resolved source pair.
func (c *Converter) viewSource(pool, sourceRouter common.Address, liquidity *uint256.Int, fn func(r state.Reader, pair uniswapv2.PairState) error) error {
	if !c.whitelist.IsWhitelisted(sourceRouter) {
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, sourceRouter.Hex())
	}
	if err := validateLiquidity(liquidity); err != nil {
		return err
	}
	router, err := c.resolveRouter(sourceRouter)
	if err != nil {
		return err
	}
	return c.ledger.View(func(r state.Reader) error {
		pair, err := c.sourcePair(r, pool, router)
		if err != nil {
			return err
		}
		return fn(r, pair)
	})
}

func preview(r state.Reader, pool common.Address, pair uniswapv2.PairState, liquidity *uint256.Int) (ConversionResult, error) {
	decimals0, err := r.Decimals(pair.Token0)
	if err != nil {
		return ConversionResult{}, fmt.Errorf("%w: %w", ErrInvalidPoolState, err)
	}
	decimals1, err := r.Decimals(pair.Token1)
	if err != nil {
		return ConversionResult{}, fmt.Errorf("%w: %w", ErrInvalidPoolState, err)
	}
	amount0, amount1, err := uniswapv2.BurnAmounts(
		liquidity,
		r.BalanceOf(pair.Token0, pool),
		r.BalanceOf(pair.Token1, pool),
		r.TotalSupply(pool),
	)
	if err != nil {
		return ConversionResult{}, fmt.Errorf("%w: %s: %w", ErrInvalidPoolState, pool.Hex(), err)
	}
	return ConversionResult{
		Success:        true,
		Token0Decimals: decimals0,
		Token1Decimals: decimals1,
		Token0Remove:   amount0,
		Token1Remove:   amount1,
	}, nil
}

// --- Convert ---

// Convert withdraws req.Liquidity shares of req.Pool from the caller through the source
// router and deposits the released tokens into the destination AMM on the caller's behalf.
// Every step runs in one ledger transaction: on any error no balance, allowance or log changes.
func (c *Converter) Convert(ctx context.Context, caller common.Address, req MigrationRequest) (receipt *ConversionReceipt, err error) {
	timer := prometheus.NewTimer(c.metrics.ConversionDuration.WithLabelValues())
	defer func() {
		timer.ObserveDuration()
		c.metrics.ConversionsTotal.WithLabelValues(resultLabel(err)).Inc()
		if err != nil {
			c.logger.Warn("conversion failed",
				"caller", caller, "pool", req.Pool, "router", req.SourceRouter, "error", err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logs, err := c.ledger.Execute(func(db *state.StateDB) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		receipt, err = c.convert(db, caller, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	receipt.Logs = logs

	c.logger.Info("liquidity converted",
		"caller", caller,
		"sourcePool", req.Pool,
		"destinationPool", receipt.DestinationPool,
		"liquidity", receipt.Liquidity.Dec(),
		"token0Deposited", receipt.Token0Deposited.Dec(),
		"token1Deposited", receipt.Token1Deposited.Dec(),
		"liquidityMinted", receipt.LiquidityMinted.Dec(),
		"dustPolicy", receipt.DustPolicy.String(),
	)
	return receipt, nil
}

func (c *Converter) convert(db *state.StateDB, caller common.Address, req MigrationRequest) (*ConversionReceipt, error) {
	// 1. the whitelist is re-checked here, never trusted from a preview
	if !c.whitelist.IsWhitelisted(req.SourceRouter) {
		return nil, fmt.Errorf("%w: %s", ErrNotWhitelisted, req.SourceRouter.Hex())
	}
	if err := validateLiquidity(req.Liquidity); err != nil {
		return nil, err
	}
	router, err := c.resolveRouter(req.SourceRouter)
	if err != nil {
		return nil, err
	}

	// 2.
	block := db.Block()
	if block.Timestamp > req.Deadline {
		return nil, fmt.Errorf("%w: block timestamp %d is past deadline %d", ErrDeadlineExpired, block.Timestamp, req.Deadline)
	}

	pair, err := c.sourcePair(db, req.Pool, router)
	if err != nil {
		return nil, err
	}
	if db.TotalSupply(req.Pool).IsZero() {
		return nil, fmt.Errorf("%w: %s has no liquidity", ErrInvalidPoolState, req.Pool.Hex())
	}

	// 3. pull the caller's shares
	if err := db.TransferFrom(req.Pool, c.address, caller, c.address, req.Liquidity); err != nil {
		return nil, err
	}

	// 4. burn them through the source router
	if err := db.Approve(req.Pool, c.address, router.Address(), req.Liquidity); err != nil {
		return nil, err
	}
	removed0, removed1, err := router.RemoveLiquidity(db, c.address, pair.Token0, pair.Token1,
		req.Liquidity, new(uint256.Int), new(uint256.Int), c.address, req.Deadline)
	if err != nil {
		return nil, fmt.Errorf("remove liquidity from %s: %w", req.Pool.Hex(), err)
	}

	// 5. approve the destination router for everything received
	dest := c.destination.Address()
	if err := db.Approve(pair.Token0, c.address, dest, removed0); err != nil {
		return nil, err
	}
	if err := db.Approve(pair.Token1, c.address, dest, removed1); err != nil {
		return nil, err
	}

	// 6. deposit on the caller's behalf
	min0, min1 := c.depositMinimum(removed0), c.depositMinimum(removed1)
	deposited0, deposited1, minted, err := c.destination.AddLiquidity(db, c.address, pair.Token0, pair.Token1,
		removed0, removed1, min0, min1, caller, req.Deadline)
	if err != nil {
		if errors.Is(err, uniswapv2.ErrInsufficientAAmount) || errors.Is(err, uniswapv2.ErrInsufficientBAmount) {
			return nil, fmt.Errorf("%w: %w", ErrSlippageExceeded, err)
		}
		return nil, fmt.Errorf("add liquidity to destination: %w", err)
	}
	destPool := c.destination.GetPair(db, pair.Token0, pair.Token1)

	// 7. settle leftovers
	dust0 := new(uint256.Int).Sub(removed0, deposited0)
	dust1 := new(uint256.Int).Sub(removed1, deposited1)
	if err := c.settleDust(db, caller, pair, dust0, dust1); err != nil {
		return nil, err
	}

	db.AddLog(&types.Log{
		Address: c.address,
		Topics: []common.Hash{
			LiquidityConvertedEventTopic,
			state.AddressTopic(caller),
			state.AddressTopic(req.Pool),
			state.AddressTopic(req.SourceRouter),
		},
		Data: concatWords(req.Liquidity, removed0, removed1, deposited0, deposited1, minted),
	})

	return &ConversionReceipt{
		Caller:          caller,
		SourcePool:      req.Pool,
		SourceRouter:    req.SourceRouter,
		DestinationPool: destPool,
		Token0:          pair.Token0,
		Token1:          pair.Token1,
		Liquidity:       new(uint256.Int).Set(req.Liquidity),
		Token0Removed:   removed0,
		Token1Removed:   removed1,
		Token0Deposited: deposited0,
		Token1Deposited: deposited1,
		LiquidityMinted: minted,
		Token0Dust:      dust0,
		Token1Dust:      dust1,
		DustPolicy:      c.dustPolicy,
		Block:           block,
	}, nil
}

// settleDust clears the destination router's leftover allowances and, under
// DustRefund, pays the leftovers back to the caller.
func (c *Converter) settleDust(db *state.StateDB, caller common.Address, pair uniswapv2.PairState, dust0, dust1 *uint256.Int) error {
	dest := c.destination.Address()
	for _, leg := range []struct {
		token common.Address
		dust  *uint256.Int
	}{{pair.Token0, dust0}, {pair.Token1, dust1}} {
		if leg.dust.IsZero() {
			continue
		}
		if err := db.Approve(leg.token, c.address, dest, new(uint256.Int)); err != nil {
			return err
		}
		if c.dustPolicy == DustRefund {
			if err := db.Transfer(leg.token, c.address, caller, leg.dust); err != nil {
				return err
			}
		}
	}
	return nil
}

// --- Sweep ---

// Sweep moves the converter's entire balance of token to `to`. Only the owner may call it.
func (c *Converter) Sweep(caller, token, to common.Address) (*uint256.Int, error) {
	var amount *uint256.Int
	_, err := c.ledger.Execute(func(db *state.StateDB) error {
		if owner := c.whitelist.Owner(); caller != owner {
			return fmt.Errorf("%w: %s", whitelist.ErrUnauthorized, caller.Hex())
		}
		if to == (common.Address{}) {
			return fmt.Errorf("%w: sweep recipient", ErrZeroAddress)
		}
		amount = db.BalanceOf(token, c.address)
		if amount.IsZero() {
			return nil
		}
		if err := db.Transfer(token, c.address, to, amount); err != nil {
			return err
		}
		db.AddLog(&types.Log{
			Address: c.address,
			Topics:  []common.Hash{DustSweptEventTopic, state.AddressTopic(token), state.AddressTopic(to)},
			Data:    state.AmountData(amount),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !amount.IsZero() {
		c.logger.Info("dust swept", "token", token, "to", to, "amount", amount.Dec())
	}
	return amount, nil
}

// --- helpers ---

func (c *Converter) resolveRouter(addr common.Address) (SourceRouter, error) {
	router, ok := c.routers(addr)
	if !ok || router == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRouter, addr.Hex())
	}
	return router, nil
}

// sourcePair reads the pool and checks it is the pair the router would withdraw from.
func (c *Converter) sourcePair(r state.Reader, pool common.Address, router SourceRouter) (uniswapv2.PairState, error) {
	pair, err := uniswapv2.ReadPair(r, pool)
	if err != nil {
		return uniswapv2.PairState{}, fmt.Errorf("%w: %w", ErrUnknownPool, err)
	}
	if got := router.GetPair(r, pair.Token0, pair.Token1); got != pool {
		return uniswapv2.PairState{}, fmt.Errorf("%w: %s is not a pair of router %s", ErrUnknownPool, pool.Hex(), router.Address().Hex())
	}
	return pair, nil
}

func (c *Converter) depositMinimum(received *uint256.Int) *uint256.Int {
	if c.minDepositBps == 0 {
		return new(uint256.Int)
	}
	// received fits in uint112, so the product cannot overflow
	minimum := new(uint256.Int).Mul(received, uint256.NewInt(uint64(c.minDepositBps)))
	return minimum.Div(minimum, uint256.NewInt(maxBps))
}

func validateLiquidity(liquidity *uint256.Int) error {
	if liquidity == nil || liquidity.IsZero() {
		return fmt.Errorf("%w: liquidity must be positive", ErrInvalidAmount)
	}
	return nil
}

func concatWords(words ...*uint256.Int) []byte {
	data := make([]byte, 0, 32*len(words))
	for _, w := range words {
		data = append(data, state.AmountData(w)...)
	}
	return data
}
