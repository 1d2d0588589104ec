package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// deepCopyPool creates a new Pool with its own memory for the *big.Int fields,
// so a patched state never shares memory with the state it was built from.
func deepCopyPool(p Pool) Pool {
	newPool := p
	if p.Reserve0 != nil {
		newPool.Reserve0 = new(big.Int).Set(p.Reserve0)
	}
	if p.Reserve1 != nil {
		newPool.Reserve1 = new(big.Int).Set(p.Reserve1)
	}
	if p.TotalSupply != nil {
		newPool.TotalSupply = new(big.Int).Set(p.TotalSupply)
	}
	return newPool
}

// Patcher applies a diff to a previous pool snapshot and returns the new snapshot,
// sorted by address. Patcher(old, Differ(old, new)) reproduces new.
func Patcher(prevState []Pool, diff UniswapV2SystemDiff) ([]Pool, error) {
	newStateMap := make(map[common.Address]Pool, len(prevState))
	for _, pool := range prevState {
		newStateMap[pool.Address] = deepCopyPool(pool)
	}

	for _, addr := range diff.Deletions {
		delete(newStateMap, addr)
	}
	for _, updatedPool := range diff.Updates {
		newStateMap[updatedPool.Address] = deepCopyPool(updatedPool)
	}
	for _, addedPool := range diff.Additions {
		newStateMap[addedPool.Address] = deepCopyPool(addedPool)
	}

	finalState := make([]Pool, 0, len(newStateMap))
	for _, pool := range newStateMap {
		finalState = append(finalState, pool)
	}
	sortPools(finalState)

	return finalState, nil
}
