package reveal

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchswap/coordinator"
)

func sampleReveal(nonce int64) batchswap.RevealData {
	return batchswap.RevealData{
		CommitmentHash: batchswap.CommitmentHash{byte(nonce)},
		Intent: batchswap.SwapIntent{
			AmountIn:     big.NewInt(1000),
			MinAmountOut: big.NewInt(900),
			Nonce:        big.NewInt(nonce),
			Deadline:     time.Now().Add(time.Hour).Unix(),
		},
	}
}

func TestValidateReveal(t *testing.T) {
	pool := common.HexToHash("0x1")
	r := sampleReveal(1)
	hash := r.CommitmentHash

	t.Run("valid reveal passes", func(t *testing.T) {
		err := ValidateReveal(r, hash, time.Now().Unix())
		assert.NoError(t, err)
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		bad := r
		bad.Intent.AmountIn = big.NewInt(0)
		err := ValidateReveal(bad, hash, time.Now().Unix())
		var verr *batchswap.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, batchswap.KindZeroAmount, verr.Kind)
	})

	t.Run("expired deadline rejected", func(t *testing.T) {
		bad := r
		bad.Intent.Deadline = time.Now().Add(-time.Hour).Unix()
		err := ValidateReveal(bad, hash, time.Now().Unix())
		var verr *batchswap.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, batchswap.KindDeadlineExpired, verr.Kind)
	})

	t.Run("hash mismatch rejected", func(t *testing.T) {
		err := ValidateReveal(r, batchswap.CommitmentHash{0xff}, time.Now().Unix())
		var verr *batchswap.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, batchswap.KindCommitmentHashMismatch, verr.Kind)
	})

	_ = pool
}

func TestManager_AddReveal_Idempotent(t *testing.T) {
	m := New(nil)
	pool := common.HexToHash("0x1")
	r := sampleReveal(1)

	m.AddReveal(pool, r)
	m.AddReveal(pool, r)

	assert.Equal(t, 1, m.GetPendingCount(pool))
}

func TestManager_FIFOOrdering(t *testing.T) {
	m := New(nil)
	pool := common.HexToHash("0x1")

	for i := int64(1); i <= 3; i++ {
		m.AddReveal(pool, sampleReveal(i))
	}

	got := m.GetRevealsForPool(pool)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].Intent.Nonce.Int64())
	assert.Equal(t, int64(2), got[1].Intent.Nonce.Int64())
	assert.Equal(t, int64(3), got[2].Intent.Nonce.Int64())
}

type stubSubmitter struct {
	calls   []batchswap.CommitmentHash
	err     error
	failOn  int
	attempt int
}

func (s *stubSubmitter) SubmitReveal(poolID common.Hash, r batchswap.RevealData) error {
	s.attempt++
	if s.failOn > 0 && s.attempt == s.failOn {
		return s.err
	}
	s.calls = append(s.calls, r.CommitmentHash)
	return nil
}

func TestManager_SubmitAllReveals(t *testing.T) {
	pool := common.HexToHash("0x1")

	t.Run("submits all pending in order", func(t *testing.T) {
		m := New(nil)
		for i := int64(1); i <= 3; i++ {
			m.AddReveal(pool, sampleReveal(i))
		}
		sub := &stubSubmitter{}

		results := m.SubmitAllReveals(pool, sub, 0)
		require.Len(t, results, 3)
		for _, r := range results {
			assert.True(t, r.Submitted)
			assert.NoError(t, r.Err)
		}
		assert.Len(t, sub.calls, 3)
		assert.Equal(t, 0, m.GetPendingCount(pool))

		submitted := m.GetSubmittedHashesForPool(pool)
		assert.Len(t, submitted, 3)
	})

	t.Run("continues past a failure, recording the error per reveal", func(t *testing.T) {
		m := New(nil)
		for i := int64(1); i <= 3; i++ {
			m.AddReveal(pool, sampleReveal(i))
		}
		sub := &stubSubmitter{failOn: 2, err: assert.AnError}

		results := m.SubmitAllReveals(pool, sub, 0)
		require.Len(t, results, 3)
		assert.True(t, results[0].Submitted)
		assert.False(t, results[1].Submitted)
		assert.ErrorIs(t, results[1].Err, assert.AnError)
		assert.True(t, results[2].Submitted)
		assert.Equal(t, 1, m.GetPendingCount(pool))
	})
}

func TestManager_ClearExecutedReveals(t *testing.T) {
	m := New(nil)
	pool := common.HexToHash("0x1")
	r1 := sampleReveal(1)
	r2 := sampleReveal(2)
	m.AddReveal(pool, r1)
	m.AddReveal(pool, r2)

	sub := &stubSubmitter{}
	m.SubmitAllReveals(pool, sub, 0)

	m.ClearExecutedReveals(pool, []batchswap.CommitmentHash{r1.CommitmentHash})
	remaining := m.GetRevealsForPool(pool)
	require.Len(t, remaining, 1)
	assert.Equal(t, r2.CommitmentHash, remaining[0].CommitmentHash)
}

func TestManager_ClearPoolAndClearAll(t *testing.T) {
	m := New(nil)
	poolA := common.HexToHash("0x1")
	poolB := common.HexToHash("0x2")
	m.AddReveal(poolA, sampleReveal(1))
	m.AddReveal(poolB, sampleReveal(2))

	m.ClearPool(poolA)
	assert.Empty(t, m.GetRevealsForPool(poolA))
	assert.NotEmpty(t, m.GetRevealsForPool(poolB))

	m.ClearAll()
	assert.Empty(t, m.GetRevealsForPool(poolB))
}
