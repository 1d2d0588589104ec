package indexer

import (
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedTokenSystem defines the methods for accessing indexed token data.
type IndexedTokenSystem interface {
	GetByAddress(address common.Address) (state.Token, bool)
	GetBySymbol(symbol string) []state.Token
	All() []state.Token
}
