package tokenregistry

import (
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
)

// Patcher applies a diff to a previous token list and returns the new list,
// sorted by address. Token holds no pointers, so entries are copied by value.
func Patcher(prevState []state.Token, diff TokenSystemDiff) ([]state.Token, error) {
	newStateMap := make(map[common.Address]state.Token, len(prevState))
	for _, token := range prevState {
		newStateMap[token.Address] = token
	}

	for _, addr := range diff.Deletions {
		delete(newStateMap, addr)
	}
	for _, updatedToken := range diff.Updates {
		newStateMap[updatedToken.Address] = updatedToken
	}
	for _, addedToken := range diff.Additions {
		newStateMap[addedToken.Address] = addedToken
	}

	finalState := make([]state.Token, 0, len(newStateMap))
	for _, token := range newStateMap {
		finalState = append(finalState, token)
	}
	sortTokens(finalState)

	return finalState, nil
}
