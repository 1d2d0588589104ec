package indexer

import (
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedTokenSystem views.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed token system from a raw slice of tokens.
func (i *Indexer) Index(tokens []state.Token) IndexedTokenSystem {
	return NewIndexableTokenSystem(tokens)
}

// IndexableTokenSystem provides fast, indexed access to token metadata.
type IndexableTokenSystem struct {
	byAddress map[common.Address]state.Token
	bySymbol  map[string][]state.Token
	all       []state.Token
}

// NewIndexableTokenSystem creates a new indexed token system from a raw slice.
func NewIndexableTokenSystem(tokens []state.Token) *IndexableTokenSystem {
	byAddress := make(map[common.Address]state.Token, len(tokens))
	bySymbol := make(map[string][]state.Token, len(tokens))

	for _, t := range tokens {
		byAddress[t.Address] = t
		bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
	}

	return &IndexableTokenSystem{
		byAddress: byAddress,
		bySymbol:  bySymbol,
		all:       tokens,
	}
}

// GetByAddress retrieves a token by its contract address.
func (its *IndexableTokenSystem) GetByAddress(address common.Address) (state.Token, bool) {
	t, ok := its.byAddress[address]
	return t, ok
}

// GetBySymbol returns every token using symbol. LP shares of one exchange all
// share a symbol, so there may be many.
func (its *IndexableTokenSystem) GetBySymbol(symbol string) []state.Token {
	found := its.bySymbol[symbol]
	out := make([]state.Token, len(found))
	copy(out, found)
	return out
}

// All returns a defensive copy of the slice of all tokens in the system.
func (its *IndexableTokenSystem) All() []state.Token {
	allCopy := make([]state.Token, len(its.all))
	copy(allCopy, its.all)
	return allCopy
}
