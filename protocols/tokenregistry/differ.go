// Package tokenregistry diffs and patches the set of tokens deployed on the
// ledger, so stream subscribers can resolve symbols and decimals for every pool
// token and LP share without re-reading the whole list.
package tokenregistry

import (
	"bytes"
	"sort"

	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
)

type TokenSystemDiff struct {
	Additions []state.Token    `json:"additions,omitempty"`
	Updates   []state.Token    `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d TokenSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two token lists, keyed by address.
// Results are sorted by address.
func Differ(old, new []state.Token) TokenSystemDiff {
	oldTokensMap := make(map[common.Address]state.Token, len(old))
	for _, token := range old {
		oldTokensMap[token.Address] = token
	}

	newTokensMap := make(map[common.Address]state.Token, len(new))
	for _, token := range new {
		newTokensMap[token.Address] = token
	}

	var additions []state.Token
	var updates []state.Token
	var deletions []common.Address

	for addr, newToken := range newTokensMap {
		oldToken, exists := oldTokensMap[addr]
		if !exists {
			additions = append(additions, newToken)
			continue
		}
		if oldToken != newToken {
			updates = append(updates, newToken)
		}
	}

	for addr := range oldTokensMap {
		if _, exists := newTokensMap[addr]; !exists {
			deletions = append(deletions, addr)
		}
	}

	sortTokens(additions)
	sortTokens(updates)
	sort.Slice(deletions, func(i, j int) bool {
		return bytes.Compare(deletions[i][:], deletions[j][:]) < 0
	})

	return TokenSystemDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}

func sortTokens(tokens []state.Token) {
	sort.Slice(tokens, func(i, j int) bool {
		return bytes.Compare(tokens[i].Address[:], tokens[j].Address[:]) < 0
	})
}
