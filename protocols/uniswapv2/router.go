package uniswapv2

import (
	"errors"
	"fmt"

	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2/calculator"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrExpired is returned when a router call is made after its deadline.
	ErrExpired = errors.New("expired")
	// ErrInsufficientAAmount is returned when tokenA falls below the caller's minimum.
	ErrInsufficientAAmount = errors.New("insufficient A amount")
	// ErrInsufficientBAmount is returned when tokenB falls below the caller's minimum.
	ErrInsufficientBAmount = errors.New("insufficient B amount")
)

// Router is the liquidity half of a Uniswap V2 router: it adds and removes
// liquidity on pairs deployed by its factory, pulling tokens with allowances
// granted to the router's address.
type Router struct {
	address common.Address
	factory *Factory
}

// NewRouter returns a router at address bound to factory.
func NewRouter(address common.Address, factory *Factory) *Router {
	return &Router{address: address, factory: factory}
}

func (r *Router) Address() common.Address {
	return r.address
}

// Factory returns the address of the factory the router deploys pairs through.
func (r *Router) Factory() common.Address {
	return r.factory.Address()
}

// PairFactory returns the factory itself.
func (r *Router) PairFactory() *Factory {
	return r.factory
}

// GetPair returns the tokenA/tokenB pair deployed by the router's factory, or the zero address.
func (r *Router) GetPair(rd state.Reader, tokenA, tokenB common.Address) common.Address {
	return r.factory.GetPair(rd, tokenA, tokenB)
}

// AddLiquidity deposits up to the desired amounts into the tokenA/tokenB pair at the
// current reserve ratio, creating the pair if needed, and mints LP shares to `to`.
func (r *Router) AddLiquidity(
	db *state.StateDB,
	sender, tokenA, tokenB common.Address,
	amountADesired, amountBDesired, amountAMin, amountBMin *uint256.Int,
	to common.Address,
	deadline uint64,
) (amountA, amountB, liquidity *uint256.Int, err error) {
	if err := ensure(db, deadline); err != nil {
		return nil, nil, nil, err
	}
	pair := r.factory.GetPair(db, tokenA, tokenB)
	if pair == (common.Address{}) {
		if pair, err = r.factory.CreatePair(db, tokenA, tokenB); err != nil {
			return nil, nil, nil, err
		}
	}
	amountA, amountB, err = r.optimalAmounts(db, pair, tokenA, amountADesired, amountBDesired, amountAMin, amountBMin)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.TransferFrom(tokenA, r.address, sender, pair, amountA); err != nil {
		return nil, nil, nil, err
	}
	if err := db.TransferFrom(tokenB, r.address, sender, pair, amountB); err != nil {
		return nil, nil, nil, err
	}
	liquidity, err = Mint(db, pair, r.address, to)
	if err != nil {
		return nil, nil, nil, err
	}
	return amountA, amountB, liquidity, nil
}

// QuoteAddLiquidity returns the amounts AddLiquidity would pull without executing it.
// A missing pair accepts the desired amounts as they are.
func (r *Router) QuoteAddLiquidity(rd state.Reader, tokenA, tokenB common.Address, amountADesired, amountBDesired *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	pair := r.factory.GetPair(rd, tokenA, tokenB)
	if pair == (common.Address{}) {
		return new(uint256.Int).Set(amountADesired), new(uint256.Int).Set(amountBDesired), nil
	}
	return r.optimalAmounts(rd, pair, tokenA, amountADesired, amountBDesired, new(uint256.Int), new(uint256.Int))
}

// RemoveLiquidity pulls liquidity LP shares from sender into the tokenA/tokenB pair,
// burns them and pays both tokens to `to`.
func (r *Router) RemoveLiquidity(
	db *state.StateDB,
	sender, tokenA, tokenB common.Address,
	liquidity, amountAMin, amountBMin *uint256.Int,
	to common.Address,
	deadline uint64,
) (amountA, amountB *uint256.Int, err error) {
	if err := ensure(db, deadline); err != nil {
		return nil, nil, err
	}
	pair := r.factory.GetPair(db, tokenA, tokenB)
	if pair == (common.Address{}) {
		return nil, nil, fmt.Errorf("%w: no %s/%s pair on factory %s", ErrUnknownPair, tokenA.Hex(), tokenB.Hex(), r.factory.Address().Hex())
	}
	if err := db.TransferFrom(pair, r.address, sender, pair, liquidity); err != nil {
		return nil, nil, err
	}
	amount0, amount1, err := Burn(db, pair, r.address, to)
	if err != nil {
		return nil, nil, err
	}
	amountA, amountB = amount0, amount1
	if token0, _, _ := SortTokens(tokenA, tokenB); token0 != tokenA {
		amountA, amountB = amount1, amount0
	}
	if amountA.Lt(amountAMin) {
		return nil, nil, fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientAAmount, amountA.Dec(), amountAMin.Dec())
	}
	if amountB.Lt(amountBMin) {
		return nil, nil, fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientBAmount, amountB.Dec(), amountBMin.Dec())
	}
	return amountA, amountB, nil
}

func (r *Router) optimalAmounts(
	rd state.Reader,
	pair, tokenA common.Address,
	amountADesired, amountBDesired, amountAMin, amountBMin *uint256.Int,
) (*uint256.Int, *uint256.Int, error) {
	ps, err := ReadPair(rd, pair)
	if err != nil {
		return nil, nil, err
	}
	reserveA, reserveB := ps.Reserve0, ps.Reserve1
	if tokenA != ps.Token0 {
		reserveA, reserveB = reserveB, reserveA
	}
	if reserveA.IsZero() && reserveB.IsZero() {
		return new(uint256.Int).Set(amountADesired), new(uint256.Int).Set(amountBDesired), nil
	}

	amountBOptimal, err := calculator.Quote(amountADesired, reserveA, reserveB)
	if err != nil {
		return nil, nil, err
	}
	if !amountBOptimal.Gt(amountBDesired) {
		if amountBOptimal.Lt(amountBMin) {
			return nil, nil, fmt.Errorf("%w: optimal %s, want at least %s", ErrInsufficientBAmount, amountBOptimal.Dec(), amountBMin.Dec())
		}
		return new(uint256.Int).Set(amountADesired), amountBOptimal, nil
	}

	amountAOptimal, err := calculator.Quote(amountBDesired, reserveB, reserveA)
	if err != nil {
		return nil, nil, err
	}
	// amountAOptimal <= amountADesired holds whenever amountBOptimal > amountBDesired
	if amountAOptimal.Lt(amountAMin) {
		return nil, nil, fmt.Errorf("%w: optimal %s, want at least %s", ErrInsufficientAAmount, amountAOptimal.Dec(), amountAMin.Dec())
	}
	return amountAOptimal, new(uint256.Int).Set(amountBDesired), nil
}

func ensure(r state.Reader, deadline uint64) error {
	if now := r.Block().Timestamp; now > deadline {
		return fmt.Errorf("%w: block timestamp %d is past deadline %d", ErrExpired, now, deadline)
	}
	return nil
}
