package client

import (
	"encoding/json"

	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
)

// SubscriptionEvent is the wrapper object received from the server.
// Payload is kept raw until Type says how to decode it.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// PoolState is the reconstructed pool and token set after a full snapshot or a diff.
type PoolState struct {
	Seq    uint64
	Block  state.BlockContext
	Pools  []uniswapv2.Pool
	Tokens []state.Token
}

// Pool returns the pool at addr, if present.
func (s *PoolState) Pool(addr common.Address) (uniswapv2.Pool, bool) {
	for _, p := range s.Pools {
		if p.Address == addr {
			return p, true
		}
	}
	return uniswapv2.Pool{}, false
}
