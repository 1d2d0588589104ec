package server

import (
	"sync"

	"github.com/defistate/liquidity-converter-go/protocols/tokenregistry"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/ethereum/go-ethereum/event"
)

// PoolStream keeps the latest pool snapshot of every registered exchange and
// publishes a PoolDiff each time Refresh observes a change.
type PoolStream struct {
	ledger    *state.Ledger
	directory *uniswapv2.Directory
	logger    Logger

	// publishMu serializes Refresh so diffs are sent in seq order. mu guards
	// last only and is never held across a send.
	publishMu sync.Mutex
	mu        sync.Mutex
	feed      event.Feed
	last      PoolSnapshot
}

// NewPoolStream reads the initial snapshot from the ledger.
func NewPoolStream(ledger *state.Ledger, directory *uniswapv2.Directory, logger Logger) (*PoolStream, error) {
	s := &PoolStream{ledger: ledger, directory: directory, logger: logger}
	snapshot, err := s.read()
	if err != nil {
		return nil, err
	}
	s.last = snapshot
	return s, nil
}

// read takes a snapshot of the ledger with Seq left at zero.
func (s *PoolStream) read() (PoolSnapshot, error) {
	var snapshot PoolSnapshot
	err := s.ledger.View(func(r state.Reader) error {
		pools, err := s.directory.Pools(r)
		if err != nil {
			return err
		}
		snapshot = PoolSnapshot{Block: r.Block(), Pools: pools, Tokens: r.Tokens()}
		return nil
	})
	return snapshot, err
}

// Snapshot returns the latest published snapshot.
func (s *PoolStream) Snapshot() PoolSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Refresh re-reads the pools and, if any moved, publishes the diff.
// It returns whether a diff was published.
func (s *PoolStream) Refresh() (bool, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	next, err := s.read()
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	prev := s.last
	diff := uniswapv2.Differ(prev.Pools, next.Pools)
	tokens := tokenregistry.Differ(prev.Tokens, next.Tokens)
	if diff.IsEmpty() && tokens.IsEmpty() && next.Block == prev.Block {
		s.mu.Unlock()
		return false, nil
	}
	next.Seq = prev.Seq + 1
	s.last = next
	s.mu.Unlock()

	sent := s.feed.Send(PoolDiff{FromSeq: prev.Seq, ToSeq: next.Seq, Block: next.Block, Diff: diff, Tokens: tokens})
	s.logger.Debug("pool diff published",
		"seq", next.Seq,
		"additions", len(diff.Additions),
		"updates", len(diff.Updates),
		"deletions", len(diff.Deletions),
		"tokensAdded", len(tokens.Additions),
		"subscribers", sent,
	)
	return true, nil
}

// subscribe returns the current snapshot together with a subscription that
// receives every diff published after it. A subscriber joining while a diff
// is in flight may also receive that diff; its ToSeq is not above the
// snapshot's Seq and the receiver drops it.
func (s *PoolStream) subscribe(ch chan<- PoolDiff) (PoolSnapshot, event.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.feed.Subscribe(ch)
}
