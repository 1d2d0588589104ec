package whitelist

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnauthorized is returned when a non-owner tries to change the whitelist.
	ErrUnauthorized = errors.New("caller is not the owner")
	// ErrZeroAddress is returned when the zero address is used as a router or owner.
	ErrZeroAddress = errors.New("zero address")
	// ErrIndexOutOfRange is returned when enumerating past the end of the whitelist.
	ErrIndexOutOfRange = errors.New("whitelist index out of range")
)

// System provides a concurrency-safe, owner-gated layer over a Registry.
// Writes take a mutex; reads go through an atomically swapped snapshot and never block.
type System struct {
	mu         sync.RWMutex
	owner      common.Address
	registry   *Registry
	cachedView atomic.Pointer[RegistryView]
}

// NewSystem creates an empty whitelist administered by owner.
func NewSystem(owner common.Address) (*System, error) {
	return NewSystemFromView(owner, nil)
}

// NewSystemFromView creates a whitelist administered by owner, seeded from a snapshot.
func NewSystemFromView(owner common.Address, view *RegistryView) (*System, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner", ErrZeroAddress)
	}
	if view != nil {
		for _, router := range view.Routers {
			if router == (common.Address{}) {
				return nil, fmt.Errorf("%w: router", ErrZeroAddress)
			}
		}
	}
	s := &System{
		owner:    owner,
		registry: NewRegistryFromView(view),
	}
	s.cachedView.Store(s.registry.view())
	return s, nil
}

// updateCachedView MUST be called from within a write lock.
func (s *System) updateCachedView() {
	s.cachedView.Store(s.registry.view())
}

// --- Write Methods ---

// Toggle flips whether router is trusted and returns the new flag.
func (s *System) Toggle(caller, router common.Address) (bool, error) {
	if router == (common.Address{}) {
		return false, fmt.Errorf("%w: router", ErrZeroAddress)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.owner {
		return false, fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	trusted := s.registry.toggle(router)
	s.updateCachedView()
	return trusted, nil
}

// TransferOwnership hands whitelist administration to newOwner.
func (s *System) TransferOwnership(caller, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return fmt.Errorf("%w: new owner", ErrZeroAddress)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.owner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	s.owner = newOwner
	return nil
}

// --- Read Methods ---

func (s *System) Owner() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// IsWhitelisted reports whether router is currently trusted.
func (s *System) IsWhitelisted(router common.Address) bool {
	_, ok := s.cachedView.Load().index[router]
	return ok
}

// At returns the router at position i of the enumeration.
func (s *System) At(i int) (common.Address, error) {
	routers := s.cachedView.Load().Routers
	if i < 0 || i >= len(routers) {
		return common.Address{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(routers))
	}
	return routers[i], nil
}

// Len returns the number of trusted routers.
func (s *System) Len() int {
	return len(s.cachedView.Load().Routers)
}

// All returns a copy of the trusted routers in enumeration order.
func (s *System) All() []common.Address {
	routers := s.cachedView.Load().Routers
	out := make([]common.Address, len(routers))
	copy(out, routers)
	return out
}

// View returns a snapshot suitable for NewSystemFromView.
func (s *System) View() *RegistryView {
	return &RegistryView{Routers: s.All()}
}
