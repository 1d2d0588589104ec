package uniswapv2

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2/calculator"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Uniswap V2 pair storage layout:
// slot 6: token0 (address)
// slot 7: token1 (address)
// slot 8: reserve0 (uint112), reserve1 (uint112), blockTimestampLast (uint32) - packed
var (
	slotToken0   = common.BigToHash(big.NewInt(6))
	slotToken1   = common.BigToHash(big.NewInt(7))
	slotReserves = common.BigToHash(big.NewInt(8))

	maxUint112 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 112), uint256.NewInt(1))
)

var (
	MintEventTopic = crypto.Keccak256Hash([]byte("Mint(address,uint256,uint256)"))
	BurnEventTopic = crypto.Keccak256Hash([]byte("Burn(address,uint256,uint256,address)"))
	SyncEventTopic = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))
)

var (
	// ErrUnknownPair is returned when an address holds no initialized pair.
	ErrUnknownPair = errors.New("unknown pair")
	// ErrReserveOverflow is returned when a pair balance no longer fits in a uint112 reserve.
	ErrReserveOverflow = errors.New("reserve overflow")
	// ErrInsufficientLiquidityBurned is returned when a burn would pay out zero of either token.
	ErrInsufficientLiquidityBurned = errors.New("insufficient liquidity burned")
)

// PairState is the decoded storage of a pair, with reserves in uint256 form.
type PairState struct {
	Token0             common.Address
	Token1             common.Address
	Reserve0           *uint256.Int
	Reserve1           *uint256.Int
	BlockTimestampLast uint32
}

// ReadPair decodes the pair stored at addr.
func ReadPair(r state.Reader, addr common.Address) (PairState, error) {
	token0 := common.BytesToAddress(r.GetState(addr, slotToken0).Bytes())
	if token0 == (common.Address{}) {
		return PairState{}, fmt.Errorf("%w: %s", ErrUnknownPair, addr.Hex())
	}
	token1 := common.BytesToAddress(r.GetState(addr, slotToken1).Bytes())
	reserve0, reserve1, ts := unpackReserves(r.GetState(addr, slotReserves))
	return PairState{
		Token0:             token0,
		Token1:             token1,
		Reserve0:           reserve0,
		Reserve1:           reserve1,
		BlockTimestampLast: ts,
	}, nil
}

// PoolOf builds the Pool view of the pair at addr.
func PoolOf(r state.Reader, addr common.Address) (Pool, error) {
	ps, err := ReadPair(r, addr)
	if err != nil {
		return Pool{}, err
	}
	return Pool{
		Address:            addr,
		Token0:             ps.Token0,
		Token1:             ps.Token1,
		Reserve0:           ps.Reserve0.ToBig(),
		Reserve1:           ps.Reserve1.ToBig(),
		TotalSupply:        r.TotalSupply(addr).ToBig(),
		BlockTimestampLast: ps.BlockTimestampLast,
	}, nil
}

// initializePair writes the token slots of a freshly deployed pair.
func initializePair(db *state.StateDB, addr, token0, token1 common.Address) {
	db.SetState(addr, slotToken0, common.BytesToHash(token0.Bytes()))
	db.SetState(addr, slotToken1, common.BytesToHash(token1.Bytes()))
}

// Mint issues LP shares to `to` for the tokens transferred to the pair since the
// last reserve update. The first mint locks MinimumLiquidity at the zero address.
func Mint(db *state.StateDB, pair, sender, to common.Address) (*uint256.Int, error) {
	ps, err := ReadPair(db, pair)
	if err != nil {
		return nil, err
	}
	balance0 := db.BalanceOf(ps.Token0, pair)
	balance1 := db.BalanceOf(ps.Token1, pair)
	if balance0.Lt(ps.Reserve0) || balance1.Lt(ps.Reserve1) {
		return nil, fmt.Errorf("%w: balances below reserves of %s", calculator.ErrInsufficientLiquidityMinted, pair.Hex())
	}
	amount0 := new(uint256.Int).Sub(balance0, ps.Reserve0)
	amount1 := new(uint256.Int).Sub(balance1, ps.Reserve1)

	var liquidity *uint256.Int
	totalSupply := db.TotalSupply(pair)
	if totalSupply.IsZero() {
		liquidity, err = calculator.InitialLiquidity(amount0, amount1)
		if err != nil {
			return nil, err
		}
		if err := db.Mint(pair, common.Address{}, uint256.NewInt(calculator.MinimumLiquidity)); err != nil {
			return nil, err
		}
	} else {
		liquidity, err = calculator.ProportionalLiquidity(amount0, amount1, ps.Reserve0, ps.Reserve1, totalSupply)
		if err != nil {
			return nil, err
		}
	}
	if err := db.Mint(pair, to, liquidity); err != nil {
		return nil, err
	}
	if err := update(db, pair, balance0, balance1); err != nil {
		return nil, err
	}
	db.AddLog(&types.Log{
		Address: pair,
		Topics:  []common.Hash{MintEventTopic, state.AddressTopic(sender)},
		Data:    append(state.AmountData(amount0), state.AmountData(amount1)...),
	})
	return liquidity, nil
}

// Burn redeems the LP shares held by the pair itself and pays both tokens to `to`.
// Each payout is liquidity * balance / totalSupply, rounded down.
func Burn(db *state.StateDB, pair, sender, to common.Address) (*uint256.Int, *uint256.Int, error) {
	ps, err := ReadPair(db, pair)
	if err != nil {
		return nil, nil, err
	}
	liquidity := db.BalanceOf(pair, pair)
	totalSupply := db.TotalSupply(pair)
	amount0, amount1, err := BurnAmounts(liquidity, db.BalanceOf(ps.Token0, pair), db.BalanceOf(ps.Token1, pair), totalSupply)
	if err != nil {
		return nil, nil, err
	}
	if amount0.IsZero() || amount1.IsZero() {
		return nil, nil, fmt.Errorf("%w: %s shares of %s", ErrInsufficientLiquidityBurned, liquidity.Dec(), pair.Hex())
	}

	if err := db.Burn(pair, pair, liquidity); err != nil {
		return nil, nil, err
	}
	if err := db.Transfer(ps.Token0, pair, to, amount0); err != nil {
		return nil, nil, err
	}
	if err := db.Transfer(ps.Token1, pair, to, amount1); err != nil {
		return nil, nil, err
	}
	if err := update(db, pair, db.BalanceOf(ps.Token0, pair), db.BalanceOf(ps.Token1, pair)); err != nil {
		return nil, nil, err
	}
	db.AddLog(&types.Log{
		Address: pair,
		Topics:  []common.Hash{BurnEventTopic, state.AddressTopic(sender), state.AddressTopic(to)},
		Data:    append(state.AmountData(amount0), state.AmountData(amount1)...),
	})
	return amount0, amount1, nil
}

// BurnAmounts returns what burning liquidity shares pays out against the given pair balances.
func BurnAmounts(liquidity, balance0, balance1, totalSupply *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	amount0, err := calculator.ShareOf(liquidity, balance0, totalSupply)
	if err != nil {
		return nil, nil, err
	}
	amount1, err := calculator.ShareOf(liquidity, balance1, totalSupply)
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// Sync forces the reserves to match the pair's token balances.
func Sync(db *state.StateDB, pair common.Address) error {
	ps, err := ReadPair(db, pair)
	if err != nil {
		return err
	}
	return update(db, pair, db.BalanceOf(ps.Token0, pair), db.BalanceOf(ps.Token1, pair))
}

func update(db *state.StateDB, pair common.Address, balance0, balance1 *uint256.Int) error {
	if balance0.Gt(maxUint112) || balance1.Gt(maxUint112) {
		return fmt.Errorf("%w: %s", ErrReserveOverflow, pair.Hex())
	}
	ts := uint32(db.Block().Timestamp)
	db.SetState(pair, slotReserves, packReserves(balance0, balance1, ts))
	db.AddLog(&types.Log{
		Address: pair,
		Topics:  []common.Hash{SyncEventTopic},
		Data:    append(state.AmountData(balance0), state.AmountData(balance1)...),
	})
	return nil
}

// packReserves lays out [blockTimestampLast (32)][reserve1 (112)][reserve0 (112)] from high to low bits.
func packReserves(reserve0, reserve1 *uint256.Int, ts uint32) common.Hash {
	packed := new(uint256.Int).Lsh(uint256.NewInt(uint64(ts)), 224)
	packed.Or(packed, new(uint256.Int).Lsh(reserve1, 112))
	packed.Or(packed, reserve0)
	return packed.Bytes32()
}

func unpackReserves(slot common.Hash) (*uint256.Int, *uint256.Int, uint32) {
	packed := new(uint256.Int).SetBytes32(slot[:])
	reserve0 := new(uint256.Int).And(packed, maxUint112)
	reserve1 := new(uint256.Int).Rsh(packed, 112)
	reserve1.And(reserve1, maxUint112)
	ts := new(uint256.Int).Rsh(packed, 224)
	return reserve0, reserve1, uint32(ts.Uint64())
}
