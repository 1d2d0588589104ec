package indexer

import (
	uniswapv2 "github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedUniswapV2 views over pool snapshots.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed Uniswap V2 system from a raw slice of pools.
func (i *Indexer) Index(pools []uniswapv2.Pool) IndexedUniswapV2 {
	return NewIndexableUniswapV2System(pools)
}

type tokenPair struct {
	token0 common.Address
	token1 common.Address
}

// IndexableUniswapV2System provides fast, indexed access to Uniswap V2 pool data.
type IndexableUniswapV2System struct {
	byAddress map[common.Address]uniswapv2.Pool
	byTokens  map[tokenPair][]uniswapv2.Pool
	all       []uniswapv2.Pool
}

// NewIndexableUniswapV2System creates a new indexed Uniswap V2 system.
func NewIndexableUniswapV2System(pools []uniswapv2.Pool) *IndexableUniswapV2System {
	byAddress := make(map[common.Address]uniswapv2.Pool, len(pools))
	byTokens := make(map[tokenPair][]uniswapv2.Pool, len(pools))

	for _, p := range pools {
		byAddress[p.Address] = p
		key := tokenPair{p.Token0, p.Token1}
		byTokens[key] = append(byTokens[key], p)
	}

	return &IndexableUniswapV2System{
		byAddress: byAddress,
		byTokens:  byTokens,
		all:       pools,
	}
}

// GetByAddress retrieves a pool by its pair address.
func (ius *IndexableUniswapV2System) GetByAddress(addr common.Address) (uniswapv2.Pool, bool) {
	p, ok := ius.byAddress[addr]
	return p, ok
}

// GetByTokens returns every pool (one per factory) trading tokenA against tokenB, in either order.
func (ius *IndexableUniswapV2System) GetByTokens(tokenA, tokenB common.Address) []uniswapv2.Pool {
	token0, token1, err := uniswapv2.SortTokens(tokenA, tokenB)
	if err != nil {
		return nil
	}
	found := ius.byTokens[tokenPair{token0, token1}]
	out := make([]uniswapv2.Pool, len(found))
	copy(out, found)
	return out
}

// All returns a defensive copy of the slice of all pools.
func (ius *IndexableUniswapV2System) All() []uniswapv2.Pool {
	allCopy := make([]uniswapv2.Pool, len(ius.all))
	copy(allCopy, ius.all)
	return allCopy
}
