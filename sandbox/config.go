package sandbox

import (
	"errors"
	"fmt"

	"github.com/defistate/liquidity-converter-go/converter"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
)

// TokenConfig deploys an ERC20 token on the ledger.
type TokenConfig struct {
	Symbol   string         `yaml:"symbol"`
	Name     string         `yaml:"name"`
	Address  common.Address `yaml:"address"`
	Decimals uint8          `yaml:"decimals"`
}

// ExchangeConfig deploys a Uniswap V2 style factory and router.
type ExchangeConfig struct {
	Name         string         `yaml:"name"`
	Router       common.Address `yaml:"router"`
	Factory      common.Address `yaml:"factory"`
	InitCodeHash common.Hash    `yaml:"initCodeHash"`
	LPName       string         `yaml:"lpName"`
	LPSymbol     string         `yaml:"lpSymbol"`
}

// PoolConfig seeds a pair with liquidity. Amounts are human readable and scaled
// by each token's decimals; Provider receives the LP shares.
type PoolConfig struct {
	Exchange string         `yaml:"exchange"`
	TokenA   string         `yaml:"tokenA"`
	TokenB   string         `yaml:"tokenB"`
	AmountA  string         `yaml:"amountA"`
	AmountB  string         `yaml:"amountB"`
	Provider common.Address `yaml:"provider"`
}

// ConverterConfig deploys the converter. Destination and Whitelist name exchanges.
type ConverterConfig struct {
	Address       common.Address `yaml:"address"`
	Owner         common.Address `yaml:"owner"`
	Destination   string         `yaml:"destination"`
	Whitelist     []string       `yaml:"whitelist"`
	DustPolicy    string         `yaml:"dustPolicy"`
	MinDepositBps uint16         `yaml:"minDepositBps"`
}

// MigrationConfig moves an LP position of Exchange's TokenA/TokenB pair through the converter.
type MigrationConfig struct {
	Exchange string         `yaml:"exchange"`
	TokenA   string         `yaml:"tokenA"`
	TokenB   string         `yaml:"tokenB"`
	Caller   common.Address `yaml:"caller"`
	// ImpersonateFrom, if set, hands that holder's entire LP balance to Caller first.
	ImpersonateFrom common.Address `yaml:"impersonateFrom"`
	// Liquidity is the LP amount to migrate in LP units; empty means Caller's whole balance.
	Liquidity       string `yaml:"liquidity"`
	DeadlineMinutes uint64 `yaml:"deadlineMinutes"`
}

// Config describes a complete scenario.
type Config struct {
	Block      state.BlockContext `yaml:"block"`
	Tokens     []TokenConfig      `yaml:"tokens"`
	Exchanges  []ExchangeConfig   `yaml:"exchanges"`
	Pools      []PoolConfig       `yaml:"pools"`
	Converter  ConverterConfig    `yaml:"converter"`
	Migrations []MigrationConfig  `yaml:"migrations"`
}

// Validate checks that every reference in the scenario resolves.
func (c *Config) Validate() error {
	if len(c.Tokens) == 0 {
		return errors.New("config: at least one token is required")
	}
	tokens := make(map[string]struct{}, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Symbol == "" {
			return errors.New("config: token symbol is required")
		}
		if t.Address == (common.Address{}) {
			return fmt.Errorf("config: token %s: address is required", t.Symbol)
		}
		if _, dup := tokens[t.Symbol]; dup {
			return fmt.Errorf("config: duplicate token %s", t.Symbol)
		}
		tokens[t.Symbol] = struct{}{}
	}

	exchanges := make(map[string]struct{}, len(c.Exchanges))
	for _, e := range c.Exchanges {
		if e.Name == "" {
			return errors.New("config: exchange name is required")
		}
		if e.Router == (common.Address{}) || e.Factory == (common.Address{}) {
			return fmt.Errorf("config: exchange %s: router and factory are required", e.Name)
		}
		if e.InitCodeHash == (common.Hash{}) {
			return fmt.Errorf("config: exchange %s: initCodeHash is required", e.Name)
		}
		if _, dup := exchanges[e.Name]; dup {
			return fmt.Errorf("config: duplicate exchange %s", e.Name)
		}
		exchanges[e.Name] = struct{}{}
	}

	known := func(kind string, set map[string]struct{}, names ...string) error {
		for _, n := range names {
			if _, ok := set[n]; !ok {
				return fmt.Errorf("config: unknown %s %q", kind, n)
			}
		}
		return nil
	}

	for _, p := range c.Pools {
		if err := known("exchange", exchanges, p.Exchange); err != nil {
			return err
		}
		if err := known("token", tokens, p.TokenA, p.TokenB); err != nil {
			return err
		}
		if p.Provider == (common.Address{}) {
			return fmt.Errorf("config: pool %s %s/%s: provider is required", p.Exchange, p.TokenA, p.TokenB)
		}
	}

	if c.Converter.Address == (common.Address{}) {
		return errors.New("config: converter address is required")
	}
	if c.Converter.Owner == (common.Address{}) {
		return errors.New("config: converter owner is required")
	}
	if err := known("exchange", exchanges, c.Converter.Destination); err != nil {
		return err
	}
	if err := known("exchange", exchanges, c.Converter.Whitelist...); err != nil {
		return err
	}
	if _, err := converter.ParseDustPolicy(c.Converter.DustPolicy); err != nil {
		return fmt.Errorf("config: %w: %q", err, c.Converter.DustPolicy)
	}

	for _, m := range c.Migrations {
		if err := known("exchange", exchanges, m.Exchange); err != nil {
			return err
		}
		if err := known("token", tokens, m.TokenA, m.TokenB); err != nil {
			return err
		}
		if m.Caller == (common.Address{}) {
			return fmt.Errorf("config: migration %s %s/%s: caller is required", m.Exchange, m.TokenA, m.TokenB)
		}
	}
	return nil
}
