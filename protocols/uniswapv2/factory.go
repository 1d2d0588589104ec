package uniswapv2

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// LPDecimals is the decimals of every pair's LP token.
const LPDecimals = 18

// PairCreatedEventTopic is the topic of PairCreated(address,address,address,uint256).
var PairCreatedEventTopic = crypto.Keccak256Hash([]byte("PairCreated(address,address,address,uint256)"))

var (
	// ErrIdenticalAddresses is returned when creating a pair of a token with itself.
	ErrIdenticalAddresses = errors.New("identical addresses")
	// ErrZeroAddress is returned when one side of a pair is the zero address.
	ErrZeroAddress = errors.New("zero address")
	// ErrPairExists is returned when creating a pair that the factory already deployed.
	ErrPairExists = errors.New("pair exists")
)

// factory storage layout:
// slot 1: getPair[tokenA][tokenB] at keccak(tokenB . keccak(tokenA . 1))
// slot 2: allPairs.length, with allPairs[i] at keccak(2) + i
var (
	slotGetPair  = common.BigToHash(big.NewInt(1))
	slotAllPairs = common.BigToHash(big.NewInt(2))
)

// Factory deploys pairs at deterministic CREATE2 addresses and records them in its storage.
type Factory struct {
	address      common.Address
	initCodeHash common.Hash
	lpName       string
	lpSymbol     string
}

// NewFactory returns a factory living at address that derives pair addresses with initCodeHash.
// lpName and lpSymbol are the ERC20 metadata every pair's LP token is deployed with.
func NewFactory(address common.Address, initCodeHash common.Hash, lpName, lpSymbol string) *Factory {
	return &Factory{
		address:      address,
		initCodeHash: initCodeHash,
		lpName:       lpName,
		lpSymbol:     lpSymbol,
	}
}

func (f *Factory) Address() common.Address {
	return f.address
}

func (f *Factory) InitCodeHash() common.Hash {
	return f.initCodeHash
}

// SortTokens orders two token addresses the way pairs store them.
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: %s", ErrIdenticalAddresses, tokenA.Hex())
	}
	token0, token1 := tokenA, tokenB
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		token0, token1 = tokenB, tokenA
	}
	if token0 == (common.Address{}) {
		return common.Address{}, common.Address{}, ErrZeroAddress
	}
	return token0, token1, nil
}

// PairFor computes the CREATE2 address of the tokenA/tokenB pair without touching state.
func (f *Factory) PairFor(tokenA, tokenB common.Address) (common.Address, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(f.address, salt, f.initCodeHash.Bytes()), nil
}

// GetPair returns the deployed tokenA/tokenB pair, or the zero address.
func (f *Factory) GetPair(r state.Reader, tokenA, tokenB common.Address) common.Address {
	return common.BytesToAddress(r.GetState(f.address, getPairSlot(tokenA, tokenB)).Bytes())
}

// AllPairsLength returns how many pairs the factory has deployed.
func (f *Factory) AllPairsLength(r state.Reader) uint64 {
	return new(uint256.Int).SetBytes32(r.GetState(f.address, slotAllPairs).Bytes()).Uint64()
}

// AllPairs returns every pair the factory has deployed, in creation order.
func (f *Factory) AllPairs(r state.Reader) []common.Address {
	n := f.AllPairsLength(r)
	pairs := make([]common.Address, 0, n)
	for i := uint64(0); i < n; i++ {
		pairs = append(pairs, common.BytesToAddress(r.GetState(f.address, allPairsSlot(i)).Bytes()))
	}
	return pairs
}

// CreatePair deploys the tokenA/tokenB pair and its LP token.
func (f *Factory) CreatePair(db *state.StateDB, tokenA, tokenB common.Address) (common.Address, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	if existing := f.GetPair(db, token0, token1); existing != (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrPairExists, existing.Hex())
	}
	for _, t := range []common.Address{token0, token1} {
		if _, ok := db.Token(t); !ok {
			return common.Address{}, fmt.Errorf("%w: %s", state.ErrUnknownToken, t.Hex())
		}
	}
	pair, err := f.PairFor(token0, token1)
	if err != nil {
		return common.Address{}, err
	}
	if err := db.DeployToken(state.Token{Address: pair, Name: f.lpName, Symbol: f.lpSymbol, Decimals: LPDecimals}); err != nil {
		return common.Address{}, err
	}
	initializePair(db, pair, token0, token1)

	pairHash := common.BytesToHash(pair.Bytes())
	db.SetState(f.address, getPairSlot(token0, token1), pairHash)
	db.SetState(f.address, getPairSlot(token1, token0), pairHash)
	n := f.AllPairsLength(db)
	db.SetState(f.address, allPairsSlot(n), pairHash)
	db.SetState(f.address, slotAllPairs, uint256.NewInt(n+1).Bytes32())

	db.AddLog(&types.Log{
		Address: f.address,
		Topics:  []common.Hash{PairCreatedEventTopic, state.AddressTopic(token0), state.AddressTopic(token1)},
		Data:    append(common.LeftPadBytes(pair.Bytes(), 32), state.AmountData(uint256.NewInt(n+1))...),
	})
	return pair, nil
}

// getPairSlot is the storage key of the nested mapping getPair[tokenA][tokenB].
func getPairSlot(tokenA, tokenB common.Address) common.Hash {
	inner := crypto.Keccak256(common.LeftPadBytes(tokenA.Bytes(), 32), slotGetPair.Bytes())
	return crypto.Keccak256Hash(common.LeftPadBytes(tokenB.Bytes(), 32), inner)
}

// allPairsSlot is the storage key of allPairs[i].
func allPairsSlot(i uint64) common.Hash {
	base := new(uint256.Int).SetBytes(crypto.Keccak256(slotAllPairs.Bytes()))
	return base.Add(base, uint256.NewInt(i)).Bytes32()
}
