package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is a point-in-time view of a Uniswap V2 pair.
type Pool struct {
	Address            common.Address `json:"address"`
	Token0             common.Address `json:"token0"`
	Token1             common.Address `json:"token1"`
	Reserve0           *big.Int       `json:"reserve0"`
	Reserve1           *big.Int       `json:"reserve1"`
	TotalSupply        *big.Int       `json:"totalSupply"`
	BlockTimestampLast uint32         `json:"blockTimestampLast"`
}
