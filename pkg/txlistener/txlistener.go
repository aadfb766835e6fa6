// Package txlistener waits for submitted transactions to be mined,
// polling a client the way the teacher's bootstrap wires a listener with
// functional options for poll interval and timeout.
package txlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/batchswap/coordinator"
)

// Option configures a TxListener.
type Option func(*TxListener)

// WithPollInterval sets how often the listener polls for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(l *TxListener) { l.pollInterval = d }
}

// WithTimeout bounds how long WaitForTransaction waits before giving up.
func WithTimeout(d time.Duration) Option {
	return func(l *TxListener) { l.timeout = d }
}

// TxListener polls for a transaction's receipt until it is mined,
// reverted, or the configured timeout elapses.
type TxListener struct {
	eth          *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// New constructs a TxListener with sane defaults, overridable via opts.
func New(eth *ethclient.Client, opts ...Option) *TxListener {
	l := &TxListener{
		eth:          eth,
		pollInterval: 2 * time.Second,
		timeout:      2 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction blocks until hash is mined, returning its receipt.
// A receipt with Status == types.ReceiptStatusFailed means the
// transaction was mined but reverted on chain; the hook client's error
// selector decode happens separately, from the revert data surfaced at
// call/send time, not from the receipt.
func (l *TxListener) WaitForTransaction(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, batchswap.NewTransportError(batchswap.KindRpcError, err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for transaction %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
