package server

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/defistate/liquidity-converter-go/sandbox"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolStream_SlowSubscriberDoesNotBlockReads(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sb, err := sandbox.New(sandbox.DefaultScenario(), logger, prometheus.NewRegistry())
	require.NoError(t, err)
	stream, err := NewPoolStream(sb.Ledger, sb.Directory, logger)
	require.NoError(t, err)

	stuck := make(chan PoolDiff)
	_, sub := stream.subscribe(stuck)
	defer sub.Unsubscribe()

	sb.Ledger.Mine(12)
	done := make(chan struct{})
	go func() {
		defer close(done)
		published, err := stream.Refresh()
		assert.NoError(t, err)
		assert.True(t, published)
	}()

	require.Eventually(t, func() bool { return stream.Snapshot().Seq == 1 }, 2*time.Second, 10*time.Millisecond,
		"snapshot must be readable while a subscriber holds up the send")
	select {
	case <-done:
		t.Fatal("refresh returned before the subscriber received the diff")
	default:
	}

	late := make(chan PoolDiff, 1)
	snapshot, lateSub := stream.subscribe(late)
	defer lateSub.Unsubscribe()
	assert.Equal(t, uint64(1), snapshot.Seq)

	diff := <-stuck
	assert.Equal(t, uint64(0), diff.FromSeq)
	assert.Equal(t, uint64(1), diff.ToSeq)
	<-done

	select {
	case inflight := <-late:
		assert.LessOrEqual(t, inflight.ToSeq, snapshot.Seq, "an in-flight diff is already covered by the snapshot")
	default:
	}
}
