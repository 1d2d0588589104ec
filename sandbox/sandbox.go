// Package sandbox assembles a complete ledger from a scenario: tokens, Uniswap V2
// style exchanges, seeded pools and a converter. It stands in for a forked chain,
// including moving a holder's LP position to another account before migrating it.
package sandbox

import (
	"context"
	"fmt"

	"github.com/defistate/liquidity-converter-go/converter"
	"github.com/defistate/liquidity-converter-go/protocols/tokenregistry"
	tokenindexer "github.com/defistate/liquidity-converter-go/protocols/tokenregistry/indexer"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2/calculator"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2/indexer"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Deadline returns a deadline `minutes` after the block's timestamp.
func Deadline(block state.BlockContext, minutes uint64) uint64 {
	return block.Timestamp + minutes*60
}

// Sandbox is a ledger populated from a Config, with a converter deployed on it.
type Sandbox struct {
	Ledger    *state.Ledger
	Directory *uniswapv2.Directory
	Converter *converter.Converter

	tokens    map[string]state.Token
	exchanges map[string]*uniswapv2.Router
	cfg       Config
	logger    Logger
}

// New builds the scenario described by cfg.
func New(cfg *Config, logger Logger, reg prometheus.Registerer) (*Sandbox, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Sandbox{
		Ledger:    state.NewLedger(cfg.Block),
		Directory: uniswapv2.NewDirectory(),
		tokens:    make(map[string]state.Token, len(cfg.Tokens)),
		exchanges: make(map[string]*uniswapv2.Router, len(cfg.Exchanges)),
		cfg:       *cfg,
		logger:    logger,
	}

	_, err := s.Ledger.Execute(func(db *state.StateDB) error {
		for _, t := range cfg.Tokens {
			token := state.Token{Address: t.Address, Name: t.Name, Symbol: t.Symbol, Decimals: t.Decimals}
			if err := db.DeployToken(token); err != nil {
				return fmt.Errorf("deploy %s: %w", t.Symbol, err)
			}
			s.tokens[t.Symbol] = token
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, e := range cfg.Exchanges {
		router := uniswapv2.NewRouter(e.Router, uniswapv2.NewFactory(e.Factory, e.InitCodeHash, e.LPName, e.LPSymbol))
		if err := s.Directory.Register(router); err != nil {
			return nil, err
		}
		s.exchanges[e.Name] = router
	}

	for _, p := range cfg.Pools {
		if err := s.seed(p); err != nil {
			return nil, fmt.Errorf("seed %s %s/%s: %w", p.Exchange, p.TokenA, p.TokenB, err)
		}
	}

	dustPolicy, err := converter.ParseDustPolicy(cfg.Converter.DustPolicy)
	if err != nil {
		return nil, err
	}
	whitelist := make([]common.Address, 0, len(cfg.Converter.Whitelist))
	for _, name := range cfg.Converter.Whitelist {
		whitelist = append(whitelist, s.exchanges[name].Address())
	}
	s.Converter, err = converter.New(&converter.Config{
		Address:           cfg.Converter.Address,
		Owner:             cfg.Converter.Owner,
		DestinationRouter: s.exchanges[cfg.Converter.Destination],
		Ledger:            s.Ledger,
		Routers:           converter.DirectoryLookup(s.Directory),
		InitialWhitelist:  whitelist,
		DustPolicy:        dustPolicy,
		MinDepositBps:     cfg.Converter.MinDepositBps,
		Logger:            logger,
		PrometheusReg:     reg,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("sandbox ready",
		"block", cfg.Block.Number,
		"tokens", len(s.tokens),
		"exchanges", len(s.exchanges),
		"pools", len(cfg.Pools),
		"converter", cfg.Converter.Address,
	)
	return s, nil
}

// seed mints both amounts to the provider and deposits them through the exchange's router.
func (s *Sandbox) seed(p PoolConfig) error {
	router := s.exchanges[p.Exchange]
	tokenA, tokenB := s.tokens[p.TokenA], s.tokens[p.TokenB]
	amountA, err := calculator.ParseUnits(p.AmountA, tokenA.Decimals)
	if err != nil {
		return err
	}
	amountB, err := calculator.ParseUnits(p.AmountB, tokenB.Decimals)
	if err != nil {
		return err
	}

	_, err = s.Ledger.Execute(func(db *state.StateDB) error {
		for _, leg := range []struct {
			token  common.Address
			amount *uint256.Int
		}{{tokenA.Address, amountA}, {tokenB.Address, amountB}} {
			if err := db.Mint(leg.token, p.Provider, leg.amount); err != nil {
				return err
			}
			if err := db.Approve(leg.token, p.Provider, router.Address(), leg.amount); err != nil {
				return err
			}
		}
		zero := new(uint256.Int)
		_, _, liquidity, err := router.AddLiquidity(db, p.Provider, tokenA.Address, tokenB.Address,
			amountA, amountB, zero, zero, p.Provider, db.Block().Timestamp)
		if err != nil {
			return err
		}
		s.logger.Debug("pool seeded",
			"exchange", p.Exchange,
			"pair", router.GetPair(db, tokenA.Address, tokenB.Address),
			"provider", p.Provider,
			"liquidity", calculator.FormatUnits(liquidity, uniswapv2.LPDecimals).String(),
		)
		return nil
	})
	return err
}

// Token returns the token deployed under symbol.
func (s *Sandbox) Token(symbol string) (state.Token, bool) {
	t, ok := s.tokens[symbol]
	return t, ok
}

// Exchange returns the router deployed under name.
func (s *Sandbox) Exchange(name string) (*uniswapv2.Router, bool) {
	r, ok := s.exchanges[name]
	return r, ok
}

// PairOf returns the address of the exchange's pair for two token symbols, or an
// error if either is unknown or the pair was never created.
func (s *Sandbox) PairOf(exchange, symbolA, symbolB string) (common.Address, error) {
	router, ok := s.exchanges[exchange]
	if !ok {
		return common.Address{}, fmt.Errorf("unknown exchange %q", exchange)
	}
	tokenA, okA := s.tokens[symbolA]
	tokenB, okB := s.tokens[symbolB]
	if !okA || !okB {
		return common.Address{}, fmt.Errorf("unknown token in %s/%s", symbolA, symbolB)
	}
	var pair common.Address
	_ = s.Ledger.View(func(r state.Reader) error {
		pair = router.GetPair(r, tokenA.Address, tokenB.Address)
		return nil
	})
	if pair == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s has no %s/%s pair", uniswapv2.ErrUnknownPair, exchange, symbolA, symbolB)
	}
	return pair, nil
}

// BalanceOf reads holder's balance of token.
func (s *Sandbox) BalanceOf(token, holder common.Address) *uint256.Int {
	var bal *uint256.Int
	_ = s.Ledger.View(func(r state.Reader) error {
		bal = r.BalanceOf(token, holder)
		return nil
	})
	return bal
}

// Impersonate moves from's entire balance of token to `to`, as if from had signed
// the transfer, and returns the amount moved.
func (s *Sandbox) Impersonate(token, from, to common.Address) (*uint256.Int, error) {
	var moved *uint256.Int
	_, err := s.Ledger.Execute(func(db *state.StateDB) error {
		moved = db.BalanceOf(token, from)
		if moved.IsZero() {
			return fmt.Errorf("%w: %s holds no %s", state.ErrInsufficientBalance, from.Hex(), token.Hex())
		}
		return db.Transfer(token, from, to, moved)
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// Approve sets owner's allowance of token for spender.
func (s *Sandbox) Approve(token, owner, spender common.Address, amount *uint256.Int) error {
	_, err := s.Ledger.Execute(func(db *state.StateDB) error {
		return db.Approve(token, owner, spender, amount)
	})
	return err
}

// Pools returns every pool of every exchange, indexed for lookup.
func (s *Sandbox) Pools() ([]uniswapv2.Pool, indexer.IndexedUniswapV2, error) {
	var pools []uniswapv2.Pool
	err := s.Ledger.View(func(r state.Reader) error {
		var err error
		pools, err = s.Directory.Pools(r)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return pools, indexer.New().Index(pools), nil
}

// Tokens returns every deployed token, LP shares included, indexed for lookup.
func (s *Sandbox) Tokens() ([]state.Token, tokenindexer.IndexedTokenSystem) {
	var tokens []state.Token
	_ = s.Ledger.View(func(r state.Reader) error {
		tokens = r.Tokens()
		return nil
	})
	return tokens, tokenindexer.New().Index(tokens)
}

// MigrationReport is the outcome of one scenario migration.
type MigrationReport struct {
	Migration MigrationConfig
	Pool      common.Address
	Token0    state.Token
	Token1    state.Token

	// PoolBefore is the source pool just before the conversion.
	PoolBefore uniswapv2.Pool
	Preview    converter.MigrationPreview
	// SourcePrice and DestinationPrice are whole Token1 per whole Token0 in each
	// pool before the conversion. DestinationPrice is zero when the pair is new.
	SourcePrice      decimal.Decimal
	DestinationPrice decimal.Decimal
	Receipt    *converter.ConversionReceipt
	// Diff lists every pool the conversion touched or created.
	Diff uniswapv2.UniswapV2SystemDiff
	// Tokens holds the LP tokens of pairs the conversion created.
	Tokens tokenregistry.TokenSystemDiff
}

// LogArgs renders the report as slog key/value pairs with human readable amounts.
func (r *MigrationReport) LogArgs() []any {
	human := func(x *uint256.Int, decimals uint8) string {
		if x == nil {
			return "0"
		}
		return calculator.FormatUnits(x, decimals).StringFixed(int32(min(decimals, 6)))
	}
	args := []any{
		"exchange", r.Migration.Exchange,
		"pair", r.Token0.Symbol + "/" + r.Token1.Symbol,
		"pool", r.Pool,
		"previewToken0", human(r.Preview.Token0Remove, r.Token0.Decimals),
		"previewToken1", human(r.Preview.Token1Remove, r.Token1.Decimals),
		"sourcePrice", r.SourcePrice.StringFixed(6),
		"destinationPrice", r.DestinationPrice.StringFixed(6),
		"poolsChanged", len(r.Diff.Updates) + len(r.Diff.Additions),
		"tokensListed", len(r.Tokens.Additions),
	}
	if r.Receipt != nil {
		args = append(args,
			"destinationPool", r.Receipt.DestinationPool,
			"deposited0", human(r.Receipt.Token0Deposited, r.Token0.Decimals),
			"deposited1", human(r.Receipt.Token1Deposited, r.Token1.Decimals),
			"dust0", human(r.Receipt.Token0Dust, r.Token0.Decimals),
			"dust1", human(r.Receipt.Token1Dust, r.Token1.Decimals),
			"minted", human(r.Receipt.LiquidityMinted, uniswapv2.LPDecimals),
		)
	}
	return args
}

// Migrate runs one migration: optional impersonation, approval of the converter,
// preview, then conversion. The report is returned even when Convert fails so the
// caller can see what the preview promised.
func (s *Sandbox) Migrate(ctx context.Context, m MigrationConfig) (*MigrationReport, error) {
	pool, err := s.PairOf(m.Exchange, m.TokenA, m.TokenB)
	if err != nil {
		return nil, err
	}
	report := &MigrationReport{Migration: m, Pool: pool}

	if m.ImpersonateFrom != (common.Address{}) {
		moved, err := s.Impersonate(pool, m.ImpersonateFrom, m.Caller)
		if err != nil {
			return nil, fmt.Errorf("impersonate %s: %w", m.ImpersonateFrom.Hex(), err)
		}
		s.logger.Debug("position impersonated", "pool", pool, "from", m.ImpersonateFrom, "to", m.Caller, "liquidity", moved.Dec())
	}

	liquidity := s.BalanceOf(pool, m.Caller)
	if m.Liquidity != "" {
		if liquidity, err = calculator.ParseUnits(m.Liquidity, uniswapv2.LPDecimals); err != nil {
			return nil, err
		}
	}
	if err := s.Approve(pool, m.Caller, s.Converter.Address(), liquidity); err != nil {
		return nil, err
	}

	before, index, err := s.Pools()
	if err != nil {
		return nil, err
	}
	view, ok := index.GetByAddress(pool)
	if !ok {
		return nil, fmt.Errorf("%w: %s", uniswapv2.ErrUnknownPair, pool.Hex())
	}
	report.PoolBefore = view
	tokensBefore, tokens := s.Tokens()
	report.Token0, _ = tokens.GetByAddress(view.Token0)
	report.Token1, _ = tokens.GetByAddress(view.Token1)

	router := s.exchanges[m.Exchange].Address()
	report.Preview, err = s.Converter.PreviewMigration(pool, router, liquidity)
	if err != nil {
		return report, fmt.Errorf("preview: %w", err)
	}
	report.SourcePrice, err = poolPrice(view, report.Token0.Decimals, report.Token1.Decimals)
	if err != nil {
		return report, fmt.Errorf("source price: %w", err)
	}
	if dest, ok := index.GetByAddress(report.Preview.DestinationPool); ok {
		report.DestinationPrice, err = poolPrice(dest, report.Token0.Decimals, report.Token1.Decimals)
		if err != nil {
			return report, fmt.Errorf("destination price: %w", err)
		}
	}

	report.Receipt, err = s.Converter.Convert(ctx, m.Caller, converter.MigrationRequest{
		Pool:         pool,
		SourceRouter: router,
		Liquidity:    liquidity,
		Deadline:     Deadline(s.Ledger.Block(), m.DeadlineMinutes),
	})
	if err != nil {
		return report, fmt.Errorf("convert: %w", err)
	}

	after, _, err := s.Pools()
	if err != nil {
		return report, err
	}
	report.Diff = uniswapv2.Differ(before, after)
	tokensAfter, _ := s.Tokens()
	report.Tokens = tokenregistry.Differ(tokensBefore, tokensAfter)
	return report, nil
}

func poolPrice(p uniswapv2.Pool, decimals0, decimals1 uint8) (decimal.Decimal, error) {
	reserve0, err := calculator.FromBig(p.Reserve0)
	if err != nil {
		return decimal.Zero, err
	}
	reserve1, err := calculator.FromBig(p.Reserve1)
	if err != nil {
		return decimal.Zero, err
	}
	return calculator.Price(reserve0, reserve1, decimals0, decimals1)
}

// Run executes every configured migration in order and stops at the first failure.
func (s *Sandbox) Run(ctx context.Context) ([]*MigrationReport, error) {
	reports := make([]*MigrationReport, 0, len(s.cfg.Migrations))
	for _, m := range s.cfg.Migrations {
		report, err := s.Migrate(ctx, m)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, fmt.Errorf("migrate %s %s/%s: %w", m.Exchange, m.TokenA, m.TokenB, err)
		}
		s.logger.Info("migration complete", report.LogArgs()...)
	}
	return reports, nil
}

// Holdings returns holder's balance of every scenario token keyed by symbol,
// scaled by the token's decimals. Zero balances are omitted.
func (s *Sandbox) Holdings(holder common.Address) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for symbol, t := range s.tokens {
		bal := s.BalanceOf(t.Address, holder)
		if bal.IsZero() {
			continue
		}
		out[symbol] = calculator.FormatUnits(bal, t.Decimals)
	}
	return out
}
