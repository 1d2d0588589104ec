package uniswapv2

import (
	"errors"
	"fmt"
	"sync"

	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/common"
)

// ErrRouterExists is returned when registering a router address twice.
var ErrRouterExists = errors.New("router already registered")

// Directory tracks the routers (and through them, the factories) deployed on a ledger.
// It is safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	routers map[common.Address]*Router
	order   []common.Address
}

func NewDirectory() *Directory {
	return &Directory{routers: make(map[common.Address]*Router)}
}

// Register adds a router to the directory.
func (d *Directory) Register(r *Router) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.routers[r.Address()]; exists {
		return fmt.Errorf("%w: %s", ErrRouterExists, r.Address().Hex())
	}
	d.routers[r.Address()] = r
	d.order = append(d.order, r.Address())
	return nil
}

// Router returns the router registered at addr.
func (d *Directory) Router(addr common.Address) (*Router, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.routers[addr]
	return r, ok
}

// Routers returns every registered router in registration order.
func (d *Directory) Routers() []*Router {
	d.mu.RLock()
	defer d.mu.RUnlock()
	routers := make([]*Router, 0, len(d.order))
	for _, addr := range d.order {
		routers = append(routers, d.routers[addr])
	}
	return routers
}

// Pools returns the view of every pair deployed by a registered router's factory.
// Factories shared by several routers are only walked once.
func (d *Directory) Pools(r state.Reader) ([]Pool, error) {
	seen := make(map[common.Address]struct{})
	var pools []Pool
	for _, router := range d.Routers() {
		factory := router.PairFactory()
		if _, ok := seen[factory.Address()]; ok {
			continue
		}
		seen[factory.Address()] = struct{}{}
		for _, pair := range factory.AllPairs(r) {
			pool, err := PoolOf(r, pair)
			if err != nil {
				return nil, err
			}
			pools = append(pools, pool)
		}
	}
	return pools, nil
}
