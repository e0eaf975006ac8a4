package shared

// Task type constants cho asynq.
// Naming convention: "<domain>:<action>"
const (
	TypeReconcileQRTopup    = "wallet:reconcile_qr_topup"
	TypeExpirePendingTopups = "wallet:expire_pending_topups"
	TypeSyncLicenseKeys     = "license:sync_keys"
)

// Queue names
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// ReconcileQRTopupPayload là payload cho reconciliation task chain.
// Attempt đếm từ 1; task tự re-enqueue tới MaxReconcileAttempts.
type ReconcileQRTopupPayload struct {
	UserID    string `json:"userId"`
	TopupCode string `json:"topupCode"`
	Attempt   int    `json:"attempt"`
}

// MaxReconcileAttempts: sau 3 lần không match thì bỏ, entry vẫn pending
// cho manual reconciliation.
const MaxReconcileAttempts = 3
