package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/defistate/liquidity-converter-go/protocols/tokenregistry"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/state"
	"github.com/defistate/liquidity-converter-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Setup: Mock RPC Server ---

type MockPoolStreamer struct {
	events chan *SubscriptionEvent
	t      *testing.T
}

func SetupMockPoolStreamer(ctx context.Context, t *testing.T, port int, events []*SubscriptionEvent) (<-chan error, error) {
	eventChan := make(chan *SubscriptionEvent, len(events))
	for _, e := range events {
		eventChan <- e
	}
	close(eventChan)

	api := &MockPoolStreamer{events: eventChan, t: t}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(server.RpcNamespace, api); err != nil {
		return nil, fmt.Errorf("failed to register API: %v", err)
	}

	wsHandler := rpcServer.WebsocketHandler([]string{"*"})
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: wsHandler}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	go func() {
		<-ctx.Done()
		rpcServer.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	return errChan, nil
}

func (api *MockPoolStreamer) SubscribePoolStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	go func() {
		for event := range api.events {
			select {
			case <-rpcSub.Err():
				return
			default:
				if err := notifier.Notify(rpcSub.ID, event); err != nil {
					api.t.Logf("Error notifying subscriber: %v", err)
					return
				}
			}
		}
	}()
	return rpcSub, nil
}

// --- Test Helpers & Data Generation ---

var (
	poolA  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	poolB  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	token0 = common.HexToAddress("0x1111111111111111111111111111111111111111")
	token1 = common.HexToAddress("0x2222222222222222222222222222222222222222")
	token2 = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func testPool(addr, t0, t1 common.Address, r0, r1, supply int64) uniswapv2.Pool {
	return uniswapv2.Pool{
		Address:     addr,
		Token0:      t0,
		Token1:      t1,
		Reserve0:    big.NewInt(r0),
		Reserve1:    big.NewInt(r1),
		TotalSupply: big.NewInt(supply),
	}
}

func mustEvent(t *testing.T, eventType string, payload any) *SubscriptionEvent {
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &SubscriptionEvent{Type: eventType, Payload: data, SentAt: time.Now().UnixNano()}
}

func mustMarshal(t *testing.T, v any) []byte {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func generateTestEvents(t *testing.T) []*SubscriptionEvent {
	// --- Event 1: Full Snapshot ---
	event1 := mustEvent(t, server.EventTypeFull, server.PoolSnapshot{
		Seq:    0,
		Block:  state.BlockContext{Number: 100, Timestamp: 1_700_000_000},
		Pools:  []uniswapv2.Pool{testPool(poolA, token0, token1, 4_000, 1_000, 2_000)},
		Tokens: []state.Token{
			{Address: token0, Name: "Token Zero", Symbol: "TK0", Decimals: 18},
			{Address: token1, Name: "Token One", Symbol: "TK1", Decimals: 6},
			{Address: poolA, Name: "Pancake LPs", Symbol: "Cake-LP", Decimals: 18},
		},
	})

	// --- Event 2: Diff ---
	// A conversion drains pool A and creates pool B within the same block.
	event2 := mustEvent(t, server.EventTypeDiff, server.PoolDiff{
		FromSeq: 0,
		ToSeq:   1,
		Block:   state.BlockContext{Number: 100, Timestamp: 1_700_000_000},
		Diff: uniswapv2.UniswapV2SystemDiff{
			Updates:   []uniswapv2.Pool{testPool(poolA, token0, token1, 2_000, 500, 1_000)},
			Additions: []uniswapv2.Pool{testPool(poolB, token0, token2, 2_000, 700, 1_183)},
		},
		Tokens: tokenregistry.TokenSystemDiff{
			Additions: []state.Token{{Address: poolB, Name: "ApeSwapFinance LPs", Symbol: "APE-LP", Decimals: 18}},
		},
	})

	// --- Event 3: Malformed ---
	event3 := &SubscriptionEvent{Type: server.EventTypeFull, Payload: json.RawMessage(`{"seq":"not-a-number"}`)}

	// --- Event 4: Another Full ---
	event4 := mustEvent(t, server.EventTypeFull, server.PoolSnapshot{
		Seq:   7,
		Block: state.BlockContext{Number: 2},
	})

	return []*SubscriptionEvent{event1, event2, event3, event4}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitState(t *testing.T, ch <-chan *PoolState, timeout time.Duration) *PoolState {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(timeout):
		t.Fatal("Test timed out waiting for pool state")
		return nil
	}
}

// --- Tests ---

func TestConfig_Validate(t *testing.T) {
	valid := Config{URL: "ws://localhost:8546", Logger: discardLogger(), BufferSize: 1, PoolPatcher: uniswapv2.Patcher}
	require.NoError(t, valid.validate())

	testCases := []struct {
		name        string
		mutate      func(c *Config)
		expectedErr string
	}{
		{name: "Missing URL", mutate: func(c *Config) { c.URL = "" }, expectedErr: "URL is required"},
		{name: "Zero Buffer", mutate: func(c *Config) { c.BufferSize = 0 }, expectedErr: "BufferSize must be greater than 0"},
		{name: "Missing Logger", mutate: func(c *Config) { c.Logger = nil }, expectedErr: "Logger is required"},
		{name: "Missing Patcher", mutate: func(c *Config) { c.PoolPatcher = nil }, expectedErr: "PoolPatcher is required"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectedErr)
		})
	}
}

func TestClient_SuccessfulSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testEvents := generateTestEvents(t)
	_, err := SetupMockPoolStreamer(ctx, t, 9988, testEvents[:1])
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{
		URL:         "ws://localhost:9988",
		Logger:      discardLogger(),
		BufferSize:  10,
		PoolPatcher: uniswapv2.Patcher,
	})
	require.NoError(t, err)

	view := waitState(t, client.State(), 2*time.Second)
	assert.Equal(t, uint64(100), view.Block.Number)
	require.Len(t, view.Pools, 1)
	pool, ok := view.Pool(poolA)
	require.True(t, ok, "Pool A should exist")
	assert.Equal(t, int64(4_000), pool.Reserve0.Int64())
}

func TestClient_DiffReconstruction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testEvents := generateTestEvents(t)
	_, err := SetupMockPoolStreamer(ctx, t, 9987, testEvents[:2])
	require.NoError(t, err)

	patcherCalled := false
	patcher := func(prev []uniswapv2.Pool, diff uniswapv2.UniswapV2SystemDiff) ([]uniswapv2.Pool, error) {
		patcherCalled = true
		require.Len(t, prev, 1)
		assert.Len(t, diff.Updates, 1)
		assert.Len(t, diff.Additions, 1)
		return uniswapv2.Patcher(prev, diff)
	}

	client, err := NewClient(ctx, Config{
		URL:         "ws://localhost:9987",
		Logger:      discardLogger(),
		BufferSize:  10,
		PoolPatcher: patcher,
	})
	require.NoError(t, err)

	view1 := waitState(t, client.State(), 2*time.Second)
	assert.Equal(t, uint64(0), view1.Seq)

	view2 := waitState(t, client.State(), 2*time.Second)
	assert.Equal(t, uint64(1), view2.Seq)
	require.Len(t, view2.Pools, 2)
	a, ok := view2.Pool(poolA)
	require.True(t, ok)
	assert.Equal(t, int64(1_000), a.TotalSupply.Int64())
	b, ok := view2.Pool(poolB)
	require.True(t, ok)
	assert.Equal(t, token2, b.Token1)

	assert.True(t, patcherCalled, "The injected pool patcher should have been called")
}

func TestClient_DropsMalformedMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testEvents := generateTestEvents(t)
	_, err := SetupMockPoolStreamer(ctx, t, 9989, []*SubscriptionEvent{testEvents[0], testEvents[2], testEvents[3]})
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{
		URL:         "ws://localhost:9989",
		Logger:      discardLogger(),
		BufferSize:  10,
		PoolPatcher: uniswapv2.Patcher,
	})
	require.NoError(t, err)

	expectedBlocks := map[uint64]bool{100: false, 2: false}
	for i := 0; i < 2; i++ {
		view := waitState(t, client.State(), 2*time.Second)
		expectedBlocks[view.Block.Number] = true
	}
	assert.True(t, expectedBlocks[100])
	assert.True(t, expectedBlocks[2])
}

func TestClient_Reconnection(t *testing.T) {
	const testPort = 9990
	clientCtx, clientCancel := context.WithCancel(context.Background())
	defer clientCancel()

	client, err := NewClient(clientCtx, Config{
		URL:         fmt.Sprintf("ws://localhost:%d", testPort),
		Logger:      discardLogger(),
		BufferSize:  10,
		PoolPatcher: uniswapv2.Patcher,
	})
	require.NoError(t, err)

	server1Ctx, server1Cancel := context.WithCancel(clientCtx)
	event1 := mustEvent(t, server.EventTypeFull, server.PoolSnapshot{Seq: 3, Block: state.BlockContext{Number: 1}})
	_, err = SetupMockPoolStreamer(server1Ctx, t, testPort, []*SubscriptionEvent{event1})
	require.NoError(t, err)

	view := waitState(t, client.State(), 3*time.Second)
	assert.Equal(t, uint64(1), view.Block.Number)

	server1Cancel()
	time.Sleep(100 * time.Millisecond)

	server2Ctx, server2Cancel := context.WithCancel(clientCtx)
	defer server2Cancel()
	event2 := mustEvent(t, server.EventTypeFull, server.PoolSnapshot{Seq: 0, Block: state.BlockContext{Number: 2}})
	_, err = SetupMockPoolStreamer(server2Ctx, t, testPort, []*SubscriptionEvent{event2})
	require.NoError(t, err)

	view = waitState(t, client.State(), 5*time.Second)
	assert.Equal(t, uint64(2), view.Block.Number)
	assert.Equal(t, uint64(0), view.Seq, "a new server restarts the sequence with a fresh snapshot")
}

// --- StreamProcessor Tests ---

func TestStreamProcessor_FullAndDiffFlow(t *testing.T) {
	sp := NewStreamProcessor(discardLogger(), 10, uniswapv2.Patcher)
	events := generateTestEvents(t)

	require.NoError(t, sp.ProcessMessage(mustMarshal(t, events[0])))
	full := waitState(t, sp.State(), time.Second)
	assert.Equal(t, uint64(0), full.Seq)
	assert.Len(t, full.Pools, 1)

	require.NoError(t, sp.ProcessMessage(mustMarshal(t, events[1])))
	patched := waitState(t, sp.State(), time.Second)
	assert.Equal(t, uint64(1), patched.Seq)
	assert.Len(t, patched.Pools, 2)
	require.Len(t, patched.Tokens, 4, "the new pair's LP token is streamed with it")
	assert.Len(t, full.Tokens, 3)

	a, _ := full.Pool(poolA)
	assert.Equal(t, int64(4_000), a.Reserve0.Int64(), "earlier states are not mutated by later diffs")
}

func TestStreamProcessor_ValidationErrors(t *testing.T) {
	sp := NewStreamProcessor(discardLogger(), 10, uniswapv2.Patcher)
	events := generateTestEvents(t)

	// 1. Diff before Full
	err := sp.ProcessMessage(mustMarshal(t, events[1]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "received diff before full snapshot")

	// 2. Malformed JSON
	err = sp.ProcessMessage([]byte(`{not-json}`))
	require.Error(t, err)

	// 3. Malformed payload
	err = sp.ProcessMessage(mustMarshal(t, events[2]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal pool snapshot")

	// 4. Unknown event type
	err = sp.ProcessMessage([]byte(`{"type":"partial","payload":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestStreamProcessor_PatcherError(t *testing.T) {
	failing := func([]uniswapv2.Pool, uniswapv2.UniswapV2SystemDiff) ([]uniswapv2.Pool, error) {
		return nil, errors.New("boom")
	}
	sp := NewStreamProcessor(discardLogger(), 10, failing)
	events := generateTestEvents(t)

	require.NoError(t, sp.ProcessMessage(mustMarshal(t, events[0])))
	<-sp.State()

	err := sp.ProcessMessage(mustMarshal(t, events[1]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to patch pools")
}

func TestStreamProcessor_OutOfOrderDiff(t *testing.T) {
	sp := NewStreamProcessor(discardLogger(), 10, uniswapv2.Patcher)
	events := generateTestEvents(t)

	require.NoError(t, sp.ProcessMessage(mustMarshal(t, events[0]))) // Seq 0
	<-sp.State()                                                     // Drain

	// Gap diff (5 -> 6)
	gapEvent := mustEvent(t, server.EventTypeDiff, server.PoolDiff{FromSeq: 5, ToSeq: 6})

	// Should not error, but log warn and not emit state
	err := sp.ProcessMessage(mustMarshal(t, gapEvent))
	require.NoError(t, err)

	select {
	case <-sp.State():
		t.Fatal("Should not emit state for out-of-order diff")
	default:
		// OK
	}
}
