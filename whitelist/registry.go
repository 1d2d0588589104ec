// Package whitelist keeps the ordered set of source routers a converter trusts.
package whitelist

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
)

// Registry is the non-concurrent core of the whitelist: a membership set for
// O(1) checks plus an insertion-ordered slice for enumeration. A router is in
// the slice iff it is in the set.
type Registry struct {
	trusted mapset.Set[common.Address]
	ordered []common.Address
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		trusted: mapset.NewThreadUnsafeSet[common.Address](),
	}
}

// NewRegistryFromView rebuilds a registry from a snapshot, dropping duplicates.
func NewRegistryFromView(view *RegistryView) *Registry {
	r := NewRegistry()
	if view == nil {
		return r
	}
	for _, router := range view.Routers {
		if r.trusted.Add(router) {
			r.ordered = append(r.ordered, router)
		}
	}
	return r
}

// toggle flips the trusted flag of router and reports the new value.
// Removal keeps the relative order of the remaining routers.
func (r *Registry) toggle(router common.Address) bool {
	if r.trusted.Contains(router) {
		r.trusted.Remove(router)
		for i, addr := range r.ordered {
			if addr == router {
				r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
				break
			}
		}
		return false
	}
	r.trusted.Add(router)
	r.ordered = append(r.ordered, router)
	return true
}

func (r *Registry) contains(router common.Address) bool {
	return r.trusted.Contains(router)
}

// view returns an immutable snapshot of the registry.
func (r *Registry) view() *RegistryView {
	routers := make([]common.Address, len(r.ordered))
	copy(routers, r.ordered)
	index := make(map[common.Address]struct{}, len(routers))
	for _, router := range routers {
		index[router] = struct{}{}
	}
	return &RegistryView{Routers: routers, index: index}
}

// RegistryView is a point-in-time snapshot of the whitelist.
type RegistryView struct {
	Routers []common.Address `json:"routers" yaml:"routers"`
	index   map[common.Address]struct{}
}
