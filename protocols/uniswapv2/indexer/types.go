package indexer

import (
	uniswapv2 "github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedUniswapV2 defines the methods for accessing indexed Uniswap V2 pool data.
type IndexedUniswapV2 interface {
	GetByAddress(addr common.Address) (uniswapv2.Pool, bool)
	GetByTokens(tokenA, tokenB common.Address) []uniswapv2.Pool
	All() []uniswapv2.Pool
}
