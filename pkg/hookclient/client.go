// Package hookclient is the typed RPC surface over the batch-swap hook
// contract: commitment submission, reveal submission, batch execution,
// and view-function reads. It wraps *ethclient.Client the way the
// teacher's contractclient wraps a bound contract: one struct holding
// the client, address and parsed ABI, with every call going through
// Call (read) or Send (write).
package hookclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/batchswap/coordinator"
)

// HookClient is the bound hook contract plus the signing transactor used
// to send writes on its behalf.
type HookClient struct {
	eth       *ethclient.Client
	address   common.Address
	contract  abi.ABI
	transactOpts *bind.TransactOpts
}

// New builds a HookClient. transactOpts may be nil for a read-only
// client (only the view-function methods are usable in that case).
func New(eth *ethclient.Client, address common.Address, contract abi.ABI, transactOpts *bind.TransactOpts) *HookClient {
	return &HookClient{eth: eth, address: address, contract: contract, transactOpts: transactOpts}
}

// Abi exposes the parsed ABI, mirroring the teacher's contractclient
// accessor, so callers can encode calldata without re-parsing the ABI.
func (c *HookClient) Abi() abi.ABI {
	return c.contract
}

// Call invokes a read-only (view/pure) method and unpacks its outputs
// into out.
func (c *HookClient) Call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	input, err := c.contract.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack call %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: input}
	result, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		if decoded := c.tryDecodeRevert(err); decoded != nil {
			return decoded
		}
		return batchswap.NewTransportError(batchswap.KindRpcError, err)
	}

	if out == nil {
		return nil
	}
	if err := c.contract.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("failed to unpack result of %s: %w", method, err)
	}
	return nil
}

// Send invokes a state-changing method and returns the submitted
// transaction. It does not wait for the transaction to be mined; callers
// use pkg/txlistener for that.
func (c *HookClient) Send(ctx context.Context, method string, args ...interface{}) (*types.Transaction, error) {
	if c.transactOpts == nil {
		return nil, fmt.Errorf("hookclient: no transact opts configured, client is read-only")
	}

	input, err := c.contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack send %s: %w", method, err)
	}

	opts := *c.transactOpts
	opts.Context = ctx

	nonce, err := c.eth.PendingNonceAt(ctx, opts.From)
	if err != nil {
		return nil, batchswap.NewTransportError(batchswap.KindRpcError, err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, batchswap.NewTransportError(batchswap.KindRpcError, err)
	}

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: opts.From,
		To:   &c.address,
		Data: input,
	})
	if err != nil {
		if decoded := c.tryDecodeRevert(err); decoded != nil {
			return nil, decoded
		}
		return nil, batchswap.NewTransportError(batchswap.KindRpcError, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})

	signed, err := opts.Signer(opts.From, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s: %w", method, err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		if decoded := c.tryDecodeRevert(err); decoded != nil {
			return nil, decoded
		}
		return nil, batchswap.NewTransportError(batchswap.KindRpcError, err)
	}

	return signed, nil
}

// tryDecodeRevert best-effort extracts revert data from a JSON-RPC error
// and decodes it via the selector table. It returns nil (letting the
// caller fall back to a generic TransportError) when the error carries no
// decodable revert payload.
func (c *HookClient) tryDecodeRevert(err error) error {
	type dataError interface {
		ErrorData() interface{}
	}
	de, ok := err.(dataError)
	if !ok {
		return nil
	}
	hexStr, ok := de.ErrorData().(string)
	if !ok || len(hexStr) < 2 {
		return nil
	}
	data := common.FromHex(hexStr)
	if len(data) < 4 {
		return nil
	}
	return DecodeError(data)
}

// SubmitCommitment submits a bare commitment hash for a pool.
func (c *HookClient) SubmitCommitment(ctx context.Context, poolID common.Hash, commitment batchswap.CommitmentHash) (*types.Transaction, error) {
	return c.Send(ctx, "submitCommitment", poolID, commitment)
}

// SubmitCommitmentWithProof submits a commitment hash accompanied by an
// opaque ZK proof blob.
func (c *HookClient) SubmitCommitmentWithProof(ctx context.Context, poolID common.Hash, commitment batchswap.CommitmentHash, proof []byte) (*types.Transaction, error) {
	return c.Send(ctx, "submitCommitmentWithProof", poolID, commitment, proof)
}

// SubmitReveal submits the plaintext intent backing a previously
// committed hash.
func (c *HookClient) SubmitReveal(ctx context.Context, poolID common.Hash, reveal batchswap.RevealData) (*types.Transaction, error) {
	return c.Send(ctx, "submitReveal", poolID, reveal.Intent)
}

// SubmitRevealForZK submits a reveal whose verification the hook performs
// via the ZK proof already attached to commitmentHash at commit time,
// rather than recomputing the commitment hash from intent directly.
func (c *HookClient) SubmitRevealForZK(ctx context.Context, poolID common.Hash, commitmentHash batchswap.CommitmentHash, intent batchswap.SwapIntent) (*types.Transaction, error) {
	return c.Send(ctx, "submitRevealForZK", poolID, commitmentHash, intent)
}

// RevealAndBatchExecute settles every reveal hash previously submitted
// for the pool against a single batch-clearing execution.
func (c *HookClient) RevealAndBatchExecute(ctx context.Context, poolID common.Hash, commitmentHashes []batchswap.CommitmentHash) (*types.Transaction, error) {
	return c.Send(ctx, "revealAndBatchExecute", poolID, commitmentHashes)
}

// RevealAndBatchExecuteWithProofs is the ZK-verified counterpart of
// RevealAndBatchExecute: proofs is parallel to commitmentHashes.
func (c *HookClient) RevealAndBatchExecuteWithProofs(ctx context.Context, poolID common.Hash, commitmentHashes []batchswap.CommitmentHash, proofs [][]byte) (*types.Transaction, error) {
	return c.Send(ctx, "revealAndBatchExecuteWithProofs", poolID, commitmentHashes, proofs)
}

// Checker runs the hook's off-chain-callable readiness predicate for a
// pool: are there enough commitments, has the countdown elapsed, etc.
func (c *HookClient) Checker(ctx context.Context, poolID common.Hash) (bool, error) {
	var ready bool
	if err := c.Call(ctx, &ready, "checker", poolID); err != nil {
		return false, err
	}
	return ready, nil
}

// GetPendingCommitmentCount reads the number of commitments recorded for
// a pool that have not yet been revealed.
func (c *HookClient) GetPendingCommitmentCount(ctx context.Context, poolID common.Hash) (uint32, error) {
	var count uint32
	if err := c.Call(ctx, &count, "getPendingCommitmentCount", poolID); err != nil {
		return 0, err
	}
	return count, nil
}

// IsCommitmentVerified reads whether a commitment hash has already been
// accepted by the hook for a pool.
func (c *HookClient) IsCommitmentVerified(ctx context.Context, poolID common.Hash, commitment batchswap.CommitmentHash) (bool, error) {
	var verified bool
	if err := c.Call(ctx, &verified, "isCommitmentVerified", poolID, commitment); err != nil {
		return false, err
	}
	return verified, nil
}

// GetMinCommitments reads the hook-configured quorum floor for a pool.
func (c *HookClient) GetMinCommitments(ctx context.Context, poolID common.Hash) (uint32, error) {
	var min uint32
	if err := c.Call(ctx, &min, "getMinCommitments", poolID); err != nil {
		return 0, err
	}
	return min, nil
}

// swapIntentArgs is the fixed ABI tuple of a SwapIntent's 8 scalar fields,
// independent of any single contract method's signature. commitment
// hashing (GetPoolID's sibling) must not depend on which methods
// "submitReveal" happens to take, since those two concerns can evolve
// independently on-chain.
var swapIntentArgs = abi.Arguments{
	{Type: mustType("address")}, // user
	{Type: mustType("address")}, // tokenIn
	{Type: mustType("address")}, // tokenOut
	{Type: mustType("uint256")}, // amountIn
	{Type: mustType("uint256")}, // minAmountOut
	{Type: mustType("address")}, // recipient
	{Type: mustType("uint256")}, // nonce
	{Type: mustType("uint256")}, // deadline
}

// ComputeKeccakCommitmentHash abi-encodes intent the same way the hook
// contract does, then keccak256-hashes the encoding. This must match the
// on-chain hash byte-for-byte or every commitment will be rejected at
// reveal time.
func (c *HookClient) ComputeKeccakCommitmentHash(intent batchswap.SwapIntent) (batchswap.CommitmentHash, error) {
	encoded, err := swapIntentArgs.Pack(
		intent.User,
		intent.TokenIn,
		intent.TokenOut,
		intent.AmountIn,
		intent.MinAmountOut,
		intent.Recipient,
		intent.Nonce,
		big.NewInt(intent.Deadline),
	)
	if err != nil {
		return batchswap.CommitmentHash{}, fmt.Errorf("failed to abi-encode intent: %w", err)
	}

	var hash batchswap.CommitmentHash
	copy(hash[:], crypto.Keccak256(encoded))
	return hash, nil
}

// GetPoolID derives a pool's canonical id the same way the hook does:
// keccak256 of the abi-encoded PoolKey tuple.
func (c *HookClient) GetPoolID(key batchswap.PoolKey) (common.Hash, error) {
	args := abi.Arguments{
		{Type: mustType("address")},
		{Type: mustType("address")},
		{Type: mustType("uint32")},
		{Type: mustType("int32")},
		{Type: mustType("address")},
	}
	encoded, err := args.Pack(key.Currency0, key.Currency1, key.FeeBps, key.TickSpacing, key.HookAddress)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to abi-encode pool key: %w", err)
	}
	return common.BytesToHash(crypto.Keccak256(encoded)), nil
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err) // only ever called with constant, known-good type strings
	}
	return typ
}
