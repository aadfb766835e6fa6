package hookclient

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/batchswap/coordinator"
	"github.com/batchswap/coordinator/pkg/executor"
	"github.com/batchswap/coordinator/pkg/txlistener"
)

// ExecutorAdapter narrows a *HookClient to pkg/executor.HookClient,
// waiting for each submitted transaction's receipt via Listener and
// translating it into the TxResult the executor needs for history and
// stats (block_number, gas_used).
type ExecutorAdapter struct {
	Client   *HookClient
	Listener *txlistener.TxListener
}

func (a ExecutorAdapter) Checker(ctx context.Context, poolID common.Hash) (bool, error) {
	return a.Client.Checker(ctx, poolID)
}

func (a ExecutorAdapter) RevealAndBatchExecute(ctx context.Context, poolID common.Hash, hashes []batchswap.CommitmentHash) (executor.TxResult, error) {
	tx, err := a.Client.RevealAndBatchExecute(ctx, poolID, hashes)
	if err != nil {
		return executor.TxResult{}, err
	}
	return a.await(ctx, tx)
}

func (a ExecutorAdapter) RevealAndBatchExecuteWithProofs(ctx context.Context, poolID common.Hash, hashes []batchswap.CommitmentHash, proofs [][]byte) (executor.TxResult, error) {
	tx, err := a.Client.RevealAndBatchExecuteWithProofs(ctx, poolID, hashes, proofs)
	if err != nil {
		return executor.TxResult{}, err
	}
	return a.await(ctx, tx)
}

// await waits for tx's receipt, when a Listener is configured, and folds
// the mined block number and gas used into a TxResult. With no Listener
// (e.g. a read-only or test wiring), it returns just the hash.
func (a ExecutorAdapter) await(ctx context.Context, tx *types.Transaction) (executor.TxResult, error) {
	if a.Listener == nil {
		return executor.TxResult{Hash: tx.Hash()}, nil
	}
	receipt, err := a.Listener.WaitForTransaction(ctx, tx.Hash())
	if err != nil {
		return executor.TxResult{}, err
	}
	var blockNumber uint64
	if receipt.BlockNumber != nil {
		blockNumber = receipt.BlockNumber.Uint64()
	}
	return executor.TxResult{
		Hash:        tx.Hash(),
		BlockNumber: blockNumber,
		GasUsed:     receipt.GasUsed,
	}, nil
}

// RevealSubmitter adapts *HookClient to pkg/reveal.Submitter, used when
// wiring the reveal manager's FIFO submission against the live chain.
type RevealSubmitter struct {
	Client *HookClient
	Ctx    context.Context
}

func (s RevealSubmitter) SubmitReveal(poolID common.Hash, r batchswap.RevealData) error {
	if r.IsZKVerified {
		_, err := s.Client.SubmitRevealForZK(s.Ctx, poolID, r.CommitmentHash, r.Intent)
		return err
	}
	_, err := s.Client.SubmitReveal(s.Ctx, poolID, r)
	return err
}
