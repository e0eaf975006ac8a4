package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensestore-backend/internal/domains/wallet/model"
	"licensestore-backend/internal/infrastructure/bankfeed"
)

type reconcileFixture struct {
	*serviceFixture
	reconciler ReconcileService
}

func newReconcileFixture() *reconcileFixture {
	base := newServiceFixture()
	return &reconcileFixture{
		serviceFixture: base,
		reconciler: NewReconcileService(
			base.walletRepo, base.topupRepo, base.txManager,
			base.bankFeed, base.cache,
		),
	}
}

// statementLine builds a feed line whose memo carries the topup code in the
// position the bank proxy uses
func statementLine(code string, amount int64, at time.Time) bankfeed.Transaction {
	return bankfeed.Transaction{
		TransactionID:   fmt.Sprintf("FT%d", time.Now().UnixNano()),
		Amount:          amount,
		Description:     fmt.Sprintf("MBVCB.1234567.something.%s.CT tu 0123", code),
		TransactionDate: at.Format("2006-01-02 15:04:05"),
		Type:            bankfeed.DirectionIn,
	}
}

func TestReconcileQRTopup(t *testing.T) {
	ctx := context.Background()

	t.Run("matching transfer settles the entry", func(t *testing.T) {
		f := newReconcileFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 200000, model.PaymentMethodQRPay)
		f.bankFeed.transactions = []bankfeed.Transaction{
			statementLine("TOPUP_OTHER", 999999, time.Now()),
			statementLine(topup.TopupCode, 200000, time.Now()),
		}

		done, err := f.reconciler.ReconcileQRTopup(ctx, userID, topup.TopupCode)
		require.NoError(t, err)

		assert.True(t, done)
		assert.Equal(t, model.TopupStatusCompleted, f.topupRepo.statusOf(topup.TopupCode))
		assert.Equal(t, int64(200000), f.walletRepo.balanceOf(userID))
	})

	t.Run("no matching transfer keeps the entry pending", func(t *testing.T) {
		f := newReconcileFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 200000, model.PaymentMethodQRPay)
		f.bankFeed.transactions = []bankfeed.Transaction{
			statementLine("TOPUP_UNRELATED", 200000, time.Now()),
		}

		done, err := f.reconciler.ReconcileQRTopup(ctx, userID, topup.TopupCode)
		require.NoError(t, err)

		assert.False(t, done, "chain continues for the next attempt")
		assert.Equal(t, model.TopupStatusPending, f.topupRepo.statusOf(topup.TopupCode))
		assert.Equal(t, int64(0), f.walletRepo.balanceOf(userID))
	})

	t.Run("amount mismatch is not a match", func(t *testing.T) {
		f := newReconcileFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 200000, model.PaymentMethodQRPay)
		f.bankFeed.transactions = []bankfeed.Transaction{
			statementLine(topup.TopupCode, 150000, time.Now()),
		}

		done, err := f.reconciler.ReconcileQRTopup(ctx, userID, topup.TopupCode)
		require.NoError(t, err)

		assert.False(t, done)
		assert.Equal(t, model.TopupStatusPending, f.topupRepo.statusOf(topup.TopupCode))
	})

	t.Run("outgoing transfers are ignored", func(t *testing.T) {
		f := newReconcileFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 200000, model.PaymentMethodQRPay)
		out := statementLine(topup.TopupCode, 200000, time.Now())
		out.Type = bankfeed.DirectionOut
		f.bankFeed.transactions = []bankfeed.Transaction{out}

		done, err := f.reconciler.ReconcileQRTopup(ctx, userID, topup.TopupCode)
		require.NoError(t, err)
		assert.False(t, done)
	})

	t.Run("transfers dated before entry creation are ignored", func(t *testing.T) {
		f := newReconcileFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 200000, model.PaymentMethodQRPay)
		f.bankFeed.transactions = []bankfeed.Transaction{
			statementLine(topup.TopupCode, 200000, time.Now().Add(-2*time.Hour)),
		}

		done, err := f.reconciler.ReconcileQRTopup(ctx, userID, topup.TopupCode)
		require.NoError(t, err)

		assert.False(t, done)
		assert.Equal(t, model.TopupStatusPending, f.topupRepo.statusOf(topup.TopupCode))
	})

	t.Run("settled entry stops the chain without fetching the feed", func(t *testing.T) {
		f := newReconcileFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 200000, model.PaymentMethodQRPay)
		f.bankFeed.transactions = []bankfeed.Transaction{
			statementLine(topup.TopupCode, 200000, time.Now()),
		}

		done, err := f.reconciler.ReconcileQRTopup(ctx, userID, topup.TopupCode)
		require.NoError(t, err)
		require.True(t, done)

		again, err := f.reconciler.ReconcileQRTopup(ctx, userID, topup.TopupCode)
		require.NoError(t, err)

		assert.True(t, again)
		assert.Equal(t, 1, f.bankFeed.fetches, "terminal entry short-circuits")
		assert.Equal(t, int64(200000), f.walletRepo.balanceOf(userID), "no double credit")
	})

	t.Run("unknown code stops the chain", func(t *testing.T) {
		f := newReconcileFixture()

		done, err := f.reconciler.ReconcileQRTopup(ctx, uuid.New(), "TOPUP_20260831_00000000")
		require.NoError(t, err)
		assert.True(t, done)
	})

	t.Run("feed failure is retryable", func(t *testing.T) {
		f := newReconcileFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 200000, model.PaymentMethodQRPay)
		f.bankFeed.err = fmt.Errorf("proxy unreachable")

		done, err := f.reconciler.ReconcileQRTopup(ctx, userID, topup.TopupCode)
		require.Error(t, err)
		assert.False(t, done)
		assert.Equal(t, model.TopupStatusPending, f.topupRepo.statusOf(topup.TopupCode))
	})
}

func TestReconcileUserPendingTopups(t *testing.T) {
	ctx := context.Background()
	f := newReconcileFixture()
	userID := uuid.New()

	first := f.pendingTopup(t, userID, 100000, model.PaymentMethodQRPay)
	second := f.pendingTopup(t, userID, 250000, model.PaymentMethodQRPay)
	unpaid := f.pendingTopup(t, userID, 999000, model.PaymentMethodQRPay)

	f.bankFeed.transactions = []bankfeed.Transaction{
		statementLine(first.TopupCode, 100000, time.Now()),
		statementLine(second.TopupCode, 250000, time.Now()),
	}

	settled, err := f.reconciler.ReconcileUserPendingTopups(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, 2, settled)
	assert.Equal(t, 1, f.bankFeed.fetches, "one statement fetch for the whole pass")
	assert.Equal(t, model.TopupStatusCompleted, f.topupRepo.statusOf(first.TopupCode))
	assert.Equal(t, model.TopupStatusCompleted, f.topupRepo.statusOf(second.TopupCode))
	assert.Equal(t, model.TopupStatusPending, f.topupRepo.statusOf(unpaid.TopupCode))
	assert.Equal(t, int64(350000), f.walletRepo.balanceOf(userID))
}

func TestExtractMemoToken(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        string
	}{
		{
			name:        "token in the expected field",
			description: "MBVCB.6789.abc.TOPUP_20260831_AB12CD34.CT tu khach",
			want:        "TOPUP_20260831_AB12CD34",
		},
		{
			name:        "surrounding whitespace trimmed",
			description: "A.B.C. TOPUP_20260831_AB12CD34 .D",
			want:        "TOPUP_20260831_AB12CD34",
		},
		{
			name:        "too few fields",
			description: "TOPUP_20260831_AB12CD34",
			want:        "",
		},
		{
			name:        "empty memo",
			description: "",
			want:        "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractMemoToken(tt.description))
		})
	}
}
