package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/liquidity-converter-go/protocols/tokenregistry"
	"github.com/defistate/liquidity-converter-go/protocols/uniswapv2"
	"github.com/defistate/liquidity-converter-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PoolPatcherFunc applies a diff to a previous pool set.
type PoolPatcherFunc func(prev []uniswapv2.Pool, diff uniswapv2.UniswapV2SystemDiff) ([]uniswapv2.Pool, error)

// Config holds the configuration for the client.
type Config struct {
	URL         string
	Logger      Logger
	BufferSize  uint
	PoolPatcher PoolPatcherFunc
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.PoolPatcher == nil {
		return errors.New("config: PoolPatcher is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// StreamProcessor
// -----------------------------------------------------------------------------

// StreamProcessor parses pool stream events, keeps the latest pool set,
// applies diffs and broadcasts every new state.
// It is decoupled from the networking layer.
type StreamProcessor struct {
	lastState *PoolState
	patcher   PoolPatcherFunc
	stateCh   chan *PoolState
	logger    Logger
}

// NewStreamProcessor creates a pure logic processor without networking.
func NewStreamProcessor(logger Logger, bufferSize uint, patcher PoolPatcherFunc) *StreamProcessor {
	return &StreamProcessor{
		logger:  logger,
		stateCh: make(chan *PoolState, bufferSize),
		patcher: patcher,
	}
}

// State returns a read-only channel for receiving new states.
func (sp *StreamProcessor) State() <-chan *PoolState {
	return sp.stateCh
}

// ProcessMessage accepts a raw JSON event, processes it and updates the internal state.
func (sp *StreamProcessor) ProcessMessage(rawData json.RawMessage) error {
	processingStart := time.Now()
	var event SubscriptionEvent

	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	switch event.Type {
	case server.EventTypeFull:
		return sp.handleFull(event, processingStart)
	case server.EventTypeDiff:
		return sp.handleDiff(event, processingStart)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
}

func (sp *StreamProcessor) handleFull(event SubscriptionEvent, start time.Time) error {
	var snapshot server.PoolSnapshot
	if err := json.Unmarshal(event.Payload, &snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal pool snapshot: %w", err)
	}

	state := &PoolState{Seq: snapshot.Seq, Block: snapshot.Block, Pools: snapshot.Pools, Tokens: snapshot.Tokens}
	sp.logMetrics(state, time.Since(start), event.SentAt, server.EventTypeFull)
	sp.lastState = state
	sp.stateCh <- state
	return nil
}

func (sp *StreamProcessor) handleDiff(event SubscriptionEvent, start time.Time) error {
	var diff server.PoolDiff
	if err := json.Unmarshal(event.Payload, &diff); err != nil {
		return fmt.Errorf("failed to unmarshal pool diff: %w", err)
	}

	if sp.lastState == nil {
		return fmt.Errorf("received diff before full snapshot; from_seq: %d, to_seq: %d", diff.FromSeq, diff.ToSeq)
	}

	if diff.FromSeq != sp.lastState.Seq {
		sp.logger.Warn(
			"Received out-of-order diff; pool state may be out of sync. Discarding.",
			"last_known_seq", sp.lastState.Seq,
			"diff_from_seq", diff.FromSeq,
			"diff_to_seq", diff.ToSeq,
		)
		return nil // Non-fatal, just ignored
	}

	pools, err := sp.patcher(sp.lastState.Pools, diff.Diff)
	if err != nil {
		return fmt.Errorf("failed to patch pools: %w", err)
	}
	tokens, err := tokenregistry.Patcher(sp.lastState.Tokens, diff.Tokens)
	if err != nil {
		return fmt.Errorf("failed to patch tokens: %w", err)
	}

	state := &PoolState{Seq: diff.ToSeq, Block: diff.Block, Pools: pools, Tokens: tokens}
	sp.logMetrics(state, time.Since(start), event.SentAt, server.EventTypeDiff)
	sp.lastState = state
	sp.stateCh <- state
	return nil
}

func (sp *StreamProcessor) logMetrics(state *PoolState, processingDur time.Duration, sentAt int64, eventType string) {
	clientStartTime := time.Now().Add(-processingDur)
	transportTime := clientStartTime.Sub(time.Unix(0, sentAt))

	sp.logger.Debug("Pool state processed",
		"seq", state.Seq,
		"block", state.Block.Number,
		"type", eventType,
		"pools", len(state.Pools),
		"tokens", len(state.Tokens),
		"latency_transport_ms", transportTime.Milliseconds(),
		"latency_proc_ms", processingDur.Milliseconds(),
	)
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client manages the connection and uses StreamProcessor for logic.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewClient creates a new client with networking enabled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.PoolPatcher),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// State delegates to the processor's state channel.
func (c *Client) State() <-chan *PoolState {
	return c.processor.State()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context canceled, shutting down.")
				return
			}
			c.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, server.RpcNamespace, rawCh, server.PoolStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for data...")
	for {
		select {
		case rawData := <-rawCh:
			if err := c.processor.ProcessMessage(rawData); err != nil {
				c.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
