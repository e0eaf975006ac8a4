package service

import (
	"context"

	"github.com/google/uuid"

	"licensestore-backend/internal/domains/wallet/model"
)

// =====================================================
// WALLET SERVICE INTERFACE
// =====================================================

// WalletService là settlement coordinator: tạo pending topup, xử lý gateway
// notification thành balance mutation exactly-once, và các query quanh wallet.
type WalletService interface {
	// CreateTopup creates a pending gateway topup and returns the signed
	// redirect URL. No balance mutation happens here.
	CreateTopup(ctx context.Context, userID uuid.UUID, req model.CreateTopupRequest, clientIP string) (*model.CreateTopupResponse, error)

	// CreateQRTopup creates a pending qr_pay topup, returns the QR image URL
	// and schedules the reconciliation task chain
	CreateQRTopup(ctx context.Context, userID uuid.UUID, req model.CreateQRTopupRequest, clientIP string) (*model.CreateQRTopupResponse, error)

	// ProcessGatewayNotification settles an IPN call. The ack is always
	// computed from the transaction outcome - gateway retry behavior depends
	// on it, so this method never returns an error, only an ack.
	ProcessGatewayNotification(ctx context.Context, rawParams map[string]string) model.NotificationAck

	// VerifyReturnRedirect verifies the browser-return parameters and reports
	// the current entry status. Read-only: settlement happens via IPN.
	VerifyReturnRedirect(ctx context.Context, rawParams map[string]string) *model.ReturnRedirectResult

	// GetBalance returns the wallet balance (cached read-through)
	GetBalance(ctx context.Context, userID uuid.UUID) (*model.BalanceResponse, error)

	// GetTopupHistory lists the user's topups, newest first
	GetTopupHistory(ctx context.Context, userID uuid.UUID, query model.TopupHistoryQuery) ([]*model.WalletTopup, int, error)

	// GetTopupDetail returns one topup entry, owner-scoped
	GetTopupDetail(ctx context.Context, userID uuid.UUID, topupCode string) (*model.WalletTopup, error)

	// CancelTopup cancels a pending entry, owner-scoped
	CancelTopup(ctx context.Context, userID uuid.UUID, topupCode string) error

	// AdminCreditWallet credits a wallet manually (payment method "admin"),
	// recording an audited topup entry through the same settlement path
	AdminCreditWallet(ctx context.Context, req model.AdminCreditRequest) (*model.WalletTopup, error)

	// GetTopupStatistics aggregates topup stats (admin)
	GetTopupStatistics(ctx context.Context) (*model.TopupStatistics, error)

	// ExpirePendingTopups cancels stale pending gateway topups (housekeeping)
	ExpirePendingTopups(ctx context.Context) (int, error)
}

// =====================================================
// RECONCILE SERVICE INTERFACE
// =====================================================

// ReconcileService matches pending QR topups against the bank statement.
// Không có chữ ký để verify - trust boundary là code + amount + date window.
type ReconcileService interface {
	// ReconcileQRTopup checks the bank feed for a transfer matching the given
	// pending topup. Returns done=true when the chain should stop (matched
	// and settled, or the entry is no longer pending).
	ReconcileQRTopup(ctx context.Context, userID uuid.UUID, topupCode string) (done bool, err error)

	// ReconcileUserPendingTopups matches all of a user's pending QR entries in
	// one pass. Returns the number of entries settled.
	ReconcileUserPendingTopups(ctx context.Context, userID uuid.UUID) (int, error)
}

// =====================================================
// TASK ENQUEUER INTERFACE
// =====================================================

// TaskEnqueuer abstracts the queue so services stay testable
type TaskEnqueuer interface {
	// EnqueueReconcileQRTopup schedules one reconciliation attempt after delaySeconds
	EnqueueReconcileQRTopup(ctx context.Context, userID uuid.UUID, topupCode string, attempt int, delaySeconds int) error
}
