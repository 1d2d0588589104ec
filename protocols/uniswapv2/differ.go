package uniswapv2

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// --- Diff Structures with Helper Methods ---

type UniswapV2SystemDiff struct {
	Additions []Pool           `json:"additions,omitempty"`
	Updates   []Pool           `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d UniswapV2SystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two snapshots of Uniswap V2 pools.
// 1. Convert both lists into maps keyed by pair address.
// 2. Walk the new map to identify additions and updates.
// 3. Walk the old map to identify deletions.
// Results are sorted by address so reports are stable.
func Differ(old, new []Pool) UniswapV2SystemDiff {
	oldPoolsMap := make(map[common.Address]Pool, len(old))
	for _, pool := range old {
		oldPoolsMap[pool.Address] = pool
	}

	newPoolsMap := make(map[common.Address]Pool, len(new))
	for _, pool := range new {
		newPoolsMap[pool.Address] = pool
	}

	var additions []Pool
	var updates []Pool
	var deletions []common.Address

	for addr, newPool := range newPoolsMap {
		oldPool, exists := oldPoolsMap[addr]
		if !exists {
			additions = append(additions, newPool)
			continue
		}
		// Reserves and supply are the only fields that move once a pair exists.
		if oldPool.Reserve0.Cmp(newPool.Reserve0) != 0 ||
			oldPool.Reserve1.Cmp(newPool.Reserve1) != 0 ||
			oldPool.TotalSupply.Cmp(newPool.TotalSupply) != 0 {
			updates = append(updates, newPool)
		}
	}

	for addr := range oldPoolsMap {
		if _, exists := newPoolsMap[addr]; !exists {
			deletions = append(deletions, addr)
		}
	}

	sortPools(additions)
	sortPools(updates)
	sort.Slice(deletions, func(i, j int) bool {
		return bytes.Compare(deletions[i].Bytes(), deletions[j].Bytes()) < 0
	})

	return UniswapV2SystemDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}

func sortPools(pools []Pool) {
	sort.Slice(pools, func(i, j int) bool {
		return bytes.Compare(pools[i].Address.Bytes(), pools[j].Address.Bytes()) < 0
	})
}
