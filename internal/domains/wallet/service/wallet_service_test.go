package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensestore-backend/internal/config"
	gatewaymock "licensestore-backend/internal/domains/payment/gateway/mock"
	"licensestore-backend/internal/domains/wallet/model"
	"licensestore-backend/internal/domains/wallet/repository"
	"licensestore-backend/internal/infrastructure/bankfeed"
)

// =====================================================
// IN-MEMORY FAKES
// =====================================================

type fakeWalletRepo struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*model.Wallet // keyed by wallet id
	reads   int
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{wallets: make(map[uuid.UUID]*model.Wallet)}
}

func (r *fakeWalletRepo) byUser(userID uuid.UUID) *model.Wallet {
	for _, w := range r.wallets {
		if w.UserID == userID {
			return w
		}
	}
	return nil
}

func (r *fakeWalletRepo) GetByUserIDForUpdateWithTx(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w := r.byUser(userID); w != nil {
		cp := *w
		return &cp, nil
	}
	return nil, model.ErrWalletNotFound
}

func (r *fakeWalletRepo) GetByIDForUpdateWithTx(_ context.Context, _ pgx.Tx, walletID uuid.UUID) (*model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.wallets[walletID]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, model.ErrWalletNotFound
}

func (r *fakeWalletRepo) CreditBalanceWithTx(_ context.Context, _ pgx.Tx, walletID uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return model.ErrWalletNotFound
	}
	w.Balance += amount
	now := time.Now()
	w.LastTransactionAt = &now
	return nil
}

func (r *fakeWalletRepo) DebitBalanceWithTx(_ context.Context, _ pgx.Tx, walletID uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return model.ErrWalletNotFound
	}
	if w.Balance < amount {
		return model.ErrInsufficientBalance
	}
	w.Balance -= amount
	now := time.Now()
	w.LastTransactionAt = &now
	return nil
}

func (r *fakeWalletRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if w := r.byUser(userID); w != nil {
		cp := *w
		return &cp, nil
	}
	return nil, model.ErrWalletNotFound
}

func (r *fakeWalletRepo) Create(_ context.Context, wallet *model.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[wallet.ID] = wallet
	return nil
}

func (r *fakeWalletRepo) GetOrCreate(_ context.Context, userID uuid.UUID) (*model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if w := r.byUser(userID); w != nil {
		cp := *w
		return &cp, nil
	}
	w := &model.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Balance:  0,
		Currency: model.DefaultCurrency,
		IsActive: true,
	}
	r.wallets[w.ID] = w
	return w, nil
}

func (r *fakeWalletRepo) balanceOf(userID uuid.UUID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w := r.byUser(userID); w != nil {
		return w.Balance
	}
	return 0
}

func (r *fakeWalletRepo) deactivate(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w := r.byUser(userID); w != nil {
		w.IsActive = false
	}
}

type fakeTopupRepo struct {
	mu      sync.Mutex
	entries map[string]*model.WalletTopup // keyed by topup_code
}

func newFakeTopupRepo() *fakeTopupRepo {
	return &fakeTopupRepo{entries: make(map[string]*model.WalletTopup)}
}

func (r *fakeTopupRepo) byID(id uuid.UUID) *model.WalletTopup {
	for _, t := range r.entries {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (r *fakeTopupRepo) GetByCodeForUpdateWithTx(_ context.Context, _ pgx.Tx, topupCode string) (*model.WalletTopup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.entries[topupCode]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, model.ErrTopupNotFound
}

func (r *fakeTopupRepo) MarkCompletedWithTx(_ context.Context, _ pgx.Tx, topupID uuid.UUID, meta repository.GatewayMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.byID(topupID)
	if t == nil {
		return model.ErrTopupNotFound
	}
	if t.Status != model.TopupStatusPending {
		return model.ErrTopupAlreadyFinal
	}
	now := time.Now()
	t.Status = model.TopupStatusCompleted
	t.CompletedAt = &now
	t.GatewayResponseCode = meta.ResponseCode
	t.GatewayTxnNo = meta.GatewayTxnNo
	t.GatewayBankCode = meta.BankCode
	t.PaymentDetails = meta.PaymentDetails
	return nil
}

func (r *fakeTopupRepo) MarkFailedWithTx(_ context.Context, _ pgx.Tx, topupID uuid.UUID, meta repository.GatewayMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.byID(topupID)
	if t == nil {
		return model.ErrTopupNotFound
	}
	if t.Status != model.TopupStatusPending {
		return model.ErrTopupAlreadyFinal
	}
	now := time.Now()
	t.Status = model.TopupStatusFailed
	t.FailedAt = &now
	t.GatewayResponseCode = meta.ResponseCode
	t.GatewayTxnNo = meta.GatewayTxnNo
	t.PaymentDetails = meta.PaymentDetails
	return nil
}

func (r *fakeTopupRepo) Create(_ context.Context, topup *model.WalletTopup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[topup.TopupCode]; exists {
		return model.ErrDuplicateTopupCode
	}
	if topup.CreatedAt.IsZero() {
		topup.CreatedAt = time.Now()
	}
	cp := *topup
	r.entries[topup.TopupCode] = &cp
	return nil
}

func (r *fakeTopupRepo) GetByCode(_ context.Context, topupCode string) (*model.WalletTopup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.entries[topupCode]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, model.ErrTopupNotFound
}

func (r *fakeTopupRepo) ListByUserID(_ context.Context, userID uuid.UUID, status string, page, limit int) ([]*model.WalletTopup, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WalletTopup
	for _, t := range r.entries {
		if t.UserID != userID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (r *fakeTopupRepo) ListPendingQRByUserID(_ context.Context, userID uuid.UUID, createdAfter time.Time) ([]*model.WalletTopup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WalletTopup
	for _, t := range r.entries {
		if t.UserID == userID && t.IsPendingQR() && t.CreatedAt.After(createdAfter) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTopupRepo) MarkCancelled(_ context.Context, topupID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.byID(topupID)
	if t == nil {
		return model.ErrTopupNotFound
	}
	if t.Status != model.TopupStatusPending {
		return model.ErrTopupNotCancellable
	}
	t.Status = model.TopupStatusCancelled
	return nil
}

func (r *fakeTopupRepo) CancelExpiredPending(_ context.Context, paymentMethod string, olderThan time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, t := range r.entries {
		if t.Status == model.TopupStatusPending && t.PaymentMethod == paymentMethod && t.CreatedAt.Before(olderThan) {
			t.Status = model.TopupStatusCancelled
			count++
		}
	}
	return count, nil
}

func (r *fakeTopupRepo) GetStatistics(_ context.Context) (*model.TopupStatistics, error) {
	return &model.TopupStatistics{ByMethod: map[string]int64{}}, nil
}

func (r *fakeTopupRepo) statusOf(code string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.entries[code]; ok {
		return t.Status
	}
	return ""
}

func (r *fakeTopupRepo) firstEntryOf(userID uuid.UUID) *model.WalletTopup {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.entries {
		if t.UserID == userID {
			cp := *t
			return &cp
		}
	}
	return nil
}

type fakeTxManager struct {
	mu        sync.Mutex
	begun      int
	commits    int
	rollbacks  int
	failBegin  bool
	failCommit bool
}

func (m *fakeTxManager) BeginTx(_ context.Context) (pgx.Tx, error) {
	return m.BeginSerializableTx(context.Background())
}

func (m *fakeTxManager) BeginSerializableTx(_ context.Context) (pgx.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failBegin {
		return nil, fmt.Errorf("fake: begin failed")
	}
	m.begun++
	return nil, nil
}

func (m *fakeTxManager) CommitTx(_ context.Context, _ pgx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCommit {
		return fmt.Errorf("fake: commit failed")
	}
	m.commits++
	return nil
}

func (m *fakeTxManager) RollbackTx(_ context.Context, _ pgx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks++
	return nil
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	hits  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.store[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store[key] = raw
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.store, k)
	}
	return nil
}

func (c *fakeCache) DeletePattern(_ context.Context, _ string) error { return nil }
func (c *fakeCache) Ping(_ context.Context) error                    { return nil }

type enqueueCall struct {
	UserID       uuid.UUID
	TopupCode    string
	Attempt      int
	DelaySeconds int
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []enqueueCall
}

func (e *fakeEnqueuer) EnqueueReconcileQRTopup(_ context.Context, userID uuid.UUID, topupCode string, attempt, delaySeconds int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, enqueueCall{UserID: userID, TopupCode: topupCode, Attempt: attempt, DelaySeconds: delaySeconds})
	return nil
}

type fakeBankFeed struct {
	mu           sync.Mutex
	transactions []bankfeed.Transaction
	err          error
	fetches      int
}

func (f *fakeBankFeed) GetRecentTransactions(_ context.Context) ([]bankfeed.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return f.transactions, nil
}

func (f *fakeBankFeed) BuildQRImageURL(amount int64, memo string) string {
	return fmt.Sprintf("https://qr.local/img?amount=%d&memo=%s", amount, memo)
}

// =====================================================
// FIXTURE
// =====================================================

type serviceFixture struct {
	walletRepo *fakeWalletRepo
	topupRepo  *fakeTopupRepo
	txManager  *fakeTxManager
	gateway    *gatewaymock.Gateway
	bankFeed   *fakeBankFeed
	cache      *fakeCache
	enqueuer   *fakeEnqueuer
	svc        WalletService
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		walletRepo: newFakeWalletRepo(),
		topupRepo:  newFakeTopupRepo(),
		txManager:  &fakeTxManager{},
		gateway:    gatewaymock.NewGateway(),
		bankFeed:   &fakeBankFeed{},
		cache:      newFakeCache(),
		enqueuer:   &fakeEnqueuer{},
	}
	f.svc = NewWalletService(
		f.walletRepo, f.topupRepo, f.txManager,
		f.gateway, f.bankFeed, f.cache, f.enqueuer,
		config.WalletConfig{
			MinTopupAmount:      10000,
			MaxTopupAmount:      100000000,
			PendingTopupTTLHour: 24,
		},
	)
	return f
}

// pendingTopup seeds a wallet and a pending entry, returning the entry
func (f *serviceFixture) pendingTopup(t *testing.T, userID uuid.UUID, amount int64, method string) *model.WalletTopup {
	t.Helper()
	wallet, err := f.walletRepo.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	topup := &model.WalletTopup{
		ID:            uuid.New(),
		UserID:        userID,
		WalletID:      wallet.ID,
		TopupCode:     fmt.Sprintf("TOPUP_20260831_%08X", len(f.topupRepo.entries)+1),
		Amount:        amount,
		PaymentMethod: method,
		Status:        model.TopupStatusPending,
		CreatedAt:     time.Now().Add(-time.Minute),
	}
	require.NoError(t, f.topupRepo.Create(context.Background(), topup))
	return topup
}

func ipnParams(code string, amountVND int64, responseCode string) map[string]string {
	return map[string]string{
		"vnp_TxnRef":        code,
		"vnp_Amount":        strconv.FormatInt(amountVND*100, 10),
		"vnp_ResponseCode":  responseCode,
		"vnp_TransactionNo": "14422574",
		"vnp_BankCode":      "NCB",
		"vnp_SecureHash":    "deadbeef",
	}
}

// =====================================================
// CREATE TOPUP
// =====================================================

func TestCreateTopup(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending entry and returns payment url", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()

		resp, err := f.svc.CreateTopup(ctx, userID, model.CreateTopupRequest{Amount: 50000}, "203.0.113.7")
		require.NoError(t, err)

		assert.Contains(t, resp.PaymentURL, resp.TopupCode)
		assert.Equal(t, int64(50000), resp.Amount)
		assert.Equal(t, model.TopupStatusPending, f.topupRepo.statusOf(resp.TopupCode))
		assert.Equal(t, int64(0), f.walletRepo.balanceOf(userID), "no credit before settlement")

		require.Len(t, f.gateway.CreateURLCalls, 1)
		assert.Equal(t, resp.TopupCode, f.gateway.CreateURLCalls[0].TopupCode)
	})

	t.Run("rejects amount below minimum", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.svc.CreateTopup(ctx, uuid.New(), model.CreateTopupRequest{Amount: 9999}, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInvalidTopupAmount)
	})

	t.Run("rejects amount above maximum", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.svc.CreateTopup(ctx, uuid.New(), model.CreateTopupRequest{Amount: 100000001}, "")
		assert.ErrorIs(t, err, model.ErrInvalidTopupAmount)
	})

	t.Run("rejects inactive wallet", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()
		_, err := f.walletRepo.GetOrCreate(ctx, userID)
		require.NoError(t, err)
		f.walletRepo.deactivate(userID)

		_, err = f.svc.CreateTopup(ctx, userID, model.CreateTopupRequest{Amount: 50000}, "")
		assert.ErrorIs(t, err, model.ErrWalletInactive)
	})

	t.Run("cancels entry when gateway url creation fails", func(t *testing.T) {
		f := newServiceFixture()
		f.gateway.ShouldFailCreateURL = true
		userID := uuid.New()

		_, err := f.svc.CreateTopup(ctx, userID, model.CreateTopupRequest{Amount: 50000}, "")
		require.Error(t, err)

		entry := f.topupRepo.firstEntryOf(userID)
		require.NotNil(t, entry)
		assert.Equal(t, model.TopupStatusCancelled, entry.Status)
	})
}

func TestCreateQRTopup(t *testing.T) {
	ctx := context.Background()

	t.Run("creates entry with memo and schedules reconciliation", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()

		resp, err := f.svc.CreateQRTopup(ctx, userID, model.CreateQRTopupRequest{Amount: 200000}, "")
		require.NoError(t, err)

		assert.Equal(t, resp.TopupCode, resp.TransferMemo)
		assert.Contains(t, resp.QRImageURL, "amount=200000")
		assert.Contains(t, resp.QRImageURL, resp.TopupCode)

		require.Len(t, f.enqueuer.calls, 1)
		assert.Equal(t, resp.TopupCode, f.enqueuer.calls[0].TopupCode)
		assert.Equal(t, 1, f.enqueuer.calls[0].Attempt)
	})

	t.Run("rejects amount out of bounds", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.svc.CreateQRTopup(ctx, uuid.New(), model.CreateQRTopupRequest{Amount: 500}, "")
		assert.ErrorIs(t, err, model.ErrInvalidTopupAmount)
		assert.Empty(t, f.enqueuer.calls)
	})
}

// =====================================================
// GATEWAY NOTIFICATION SETTLEMENT
// =====================================================

func TestProcessGatewayNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("settles successful payment and credits wallet", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)

		ack := f.svc.ProcessGatewayNotification(ctx, ipnParams(topup.TopupCode, 50000, "00"))

		assert.Equal(t, model.IPNCodeSuccess, ack.RspCode)
		assert.Equal(t, model.TopupStatusCompleted, f.topupRepo.statusOf(topup.TopupCode))
		assert.Equal(t, int64(50000), f.walletRepo.balanceOf(userID))
		assert.Equal(t, 1, f.txManager.commits)
	})

	t.Run("records failed payment without credit", func(t *testing.T) {
		f := newServiceFixture()
		f.gateway.CallbackStatus = "failed"
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)

		ack := f.svc.ProcessGatewayNotification(ctx, ipnParams(topup.TopupCode, 50000, "24"))

		assert.Equal(t, model.IPNCodeSuccess, ack.RspCode, "recorded failure still acks 00")
		assert.Equal(t, model.TopupStatusFailed, f.topupRepo.statusOf(topup.TopupCode))
		assert.Equal(t, int64(0), f.walletRepo.balanceOf(userID))
	})

	t.Run("rejects invalid signature without touching storage", func(t *testing.T) {
		f := newServiceFixture()
		f.gateway.SignatureValid = false
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)

		ack := f.svc.ProcessGatewayNotification(ctx, ipnParams(topup.TopupCode, 50000, "00"))

		assert.Equal(t, model.IPNCodeInvalidSignature, ack.RspCode)
		assert.Equal(t, model.TopupStatusPending, f.topupRepo.statusOf(topup.TopupCode))
		assert.Equal(t, int64(0), f.walletRepo.balanceOf(userID))
		assert.Equal(t, 0, f.txManager.begun, "no transaction for unsigned input")
	})

	t.Run("acks order not found for unknown ref", func(t *testing.T) {
		f := newServiceFixture()

		ack := f.svc.ProcessGatewayNotification(ctx, ipnParams("TOPUP_20260831_FFFFFFFF", 50000, "00"))

		assert.Equal(t, model.IPNCodeOrderNotFound, ack.RspCode)
	})

	t.Run("replayed notification is idempotent", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)
		params := ipnParams(topup.TopupCode, 50000, "00")

		first := f.svc.ProcessGatewayNotification(ctx, params)
		require.Equal(t, model.IPNCodeSuccess, first.RspCode)

		replay := f.svc.ProcessGatewayNotification(ctx, params)

		assert.Equal(t, model.IPNCodeAlreadyConfirmed, replay.RspCode)
		assert.Equal(t, int64(50000), f.walletRepo.balanceOf(userID), "balance credited exactly once")
	})

	t.Run("replay after recorded failure also acks already confirmed", func(t *testing.T) {
		f := newServiceFixture()
		f.gateway.CallbackStatus = "failed"
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)
		params := ipnParams(topup.TopupCode, 50000, "24")

		first := f.svc.ProcessGatewayNotification(ctx, params)
		require.Equal(t, model.IPNCodeSuccess, first.RspCode)

		replay := f.svc.ProcessGatewayNotification(ctx, params)
		assert.Equal(t, model.IPNCodeAlreadyConfirmed, replay.RspCode)
	})

	t.Run("amount mismatch leaves entry pending", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)

		ack := f.svc.ProcessGatewayNotification(ctx, ipnParams(topup.TopupCode, 60000, "00"))

		assert.Equal(t, model.IPNCodeInvalidAmount, ack.RspCode)
		assert.Equal(t, model.TopupStatusPending, f.topupRepo.statusOf(topup.TopupCode))
		assert.Equal(t, int64(0), f.walletRepo.balanceOf(userID))
	})

	t.Run("unparseable amount is rejected", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)
		params := ipnParams(topup.TopupCode, 50000, "00")
		params["vnp_Amount"] = "not-a-number"

		ack := f.svc.ProcessGatewayNotification(ctx, params)
		assert.Equal(t, model.IPNCodeInvalidAmount, ack.RspCode)
	})

	t.Run("commit failure is not acked as success", func(t *testing.T) {
		f := newServiceFixture()
		f.txManager.failCommit = true
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)

		ack := f.svc.ProcessGatewayNotification(ctx, ipnParams(topup.TopupCode, 50000, "00"))
		assert.Equal(t, model.IPNCodeUnknownError, ack.RspCode)
	})
}

// =====================================================
// RETURN REDIRECT
// =====================================================

func TestVerifyReturnRedirect(t *testing.T) {
	ctx := context.Background()

	t.Run("reports settled status after ipn", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)
		params := ipnParams(topup.TopupCode, 50000, "00")

		require.Equal(t, model.IPNCodeSuccess, f.svc.ProcessGatewayNotification(ctx, params).RspCode)

		res := f.svc.VerifyReturnRedirect(ctx, params)
		assert.True(t, res.IsValid)
		assert.Equal(t, topup.TopupCode, res.TopupCode)
		assert.Equal(t, model.TopupStatusCompleted, res.Status)
	})

	t.Run("invalid signature yields invalid result", func(t *testing.T) {
		f := newServiceFixture()
		f.gateway.SignatureValid = false

		res := f.svc.VerifyReturnRedirect(ctx, ipnParams("TOPUP_X", 50000, "00"))
		assert.False(t, res.IsValid)
		assert.Empty(t, res.Status)
	})

	t.Run("can arrive before the ipn", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)

		res := f.svc.VerifyReturnRedirect(ctx, ipnParams(topup.TopupCode, 50000, "00"))
		assert.True(t, res.IsValid)
		assert.Equal(t, model.TopupStatusPending, res.Status)
	})
}

// =====================================================
// CANCEL / BALANCE / HOUSEKEEPING
// =====================================================

func TestCancelTopup(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels own pending entry", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)

		require.NoError(t, f.svc.CancelTopup(ctx, userID, topup.TopupCode))
		assert.Equal(t, model.TopupStatusCancelled, f.topupRepo.statusOf(topup.TopupCode))
	})

	t.Run("other users cannot see the entry", func(t *testing.T) {
		f := newServiceFixture()
		topup := f.pendingTopup(t, uuid.New(), 50000, model.PaymentMethodGateway)

		err := f.svc.CancelTopup(ctx, uuid.New(), topup.TopupCode)
		assert.ErrorIs(t, err, model.ErrTopupNotFound)
	})

	t.Run("settled entry cannot be cancelled", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)
		require.Equal(t, model.IPNCodeSuccess,
			f.svc.ProcessGatewayNotification(ctx, ipnParams(topup.TopupCode, 50000, "00")).RspCode)

		err := f.svc.CancelTopup(ctx, userID, topup.TopupCode)
		assert.ErrorIs(t, err, model.ErrTopupNotCancellable)
	})
}

func TestGetBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("reads through cache", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()

		first, err := f.svc.GetBalance(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), first.Balance)

		readsAfterFirst := f.walletRepo.reads
		second, err := f.svc.GetBalance(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, first.Balance, second.Balance)
		assert.Equal(t, readsAfterFirst, f.walletRepo.reads, "second read served from cache")
	})

	t.Run("settlement invalidates the cached balance", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()
		topup := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)

		_, err := f.svc.GetBalance(ctx, userID)
		require.NoError(t, err)

		require.Equal(t, model.IPNCodeSuccess,
			f.svc.ProcessGatewayNotification(ctx, ipnParams(topup.TopupCode, 50000, "00")).RspCode)

		refreshed, err := f.svc.GetBalance(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(50000), refreshed.Balance)
	})
}

func TestAdminCreditWallet(t *testing.T) {
	ctx := context.Background()

	t.Run("credits wallet with an audit entry", func(t *testing.T) {
		f := newServiceFixture()
		userID := uuid.New()
		notes := "compensation"

		topup, err := f.svc.AdminCreditWallet(ctx, model.AdminCreditRequest{
			UserID: userID.String(),
			Amount: 150000,
			Notes:  &notes,
		})
		require.NoError(t, err)

		assert.Equal(t, model.TopupStatusCompleted, topup.Status)
		assert.Equal(t, model.PaymentMethodAdmin, topup.PaymentMethod)
		assert.Equal(t, int64(150000), f.walletRepo.balanceOf(userID))
	})

	t.Run("rejects invalid user id", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.svc.AdminCreditWallet(ctx, model.AdminCreditRequest{UserID: "nope", Amount: 1000})
		assert.Error(t, err)
	})
}

func TestExpirePendingTopups(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	userID := uuid.New()

	stale := f.pendingTopup(t, userID, 50000, model.PaymentMethodGateway)
	f.topupRepo.mu.Lock()
	f.topupRepo.entries[stale.TopupCode].CreatedAt = time.Now().Add(-48 * time.Hour)
	f.topupRepo.mu.Unlock()

	fresh := f.pendingTopup(t, userID, 60000, model.PaymentMethodGateway)
	qr := f.pendingTopup(t, userID, 70000, model.PaymentMethodQRPay)
	f.topupRepo.mu.Lock()
	f.topupRepo.entries[qr.TopupCode].CreatedAt = time.Now().Add(-48 * time.Hour)
	f.topupRepo.mu.Unlock()

	count, err := f.svc.ExpirePendingTopups(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, count)
	assert.Equal(t, model.TopupStatusCancelled, f.topupRepo.statusOf(stale.TopupCode))
	assert.Equal(t, model.TopupStatusPending, f.topupRepo.statusOf(fresh.TopupCode))
	assert.Equal(t, model.TopupStatusPending, f.topupRepo.statusOf(qr.TopupCode), "qr entries wait for reconciliation")
}
