package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensestore-backend/internal/config"
	"licensestore-backend/internal/domains/license/model"
	walletmodel "licensestore-backend/internal/domains/wallet/model"
	"licensestore-backend/internal/infrastructure/licenseapi"
)

// =====================================================
// IN-MEMORY FAKES
// =====================================================

type fakeLicenseRepo struct {
	mu   sync.Mutex
	keys []*model.LicenseKey
}

func (r *fakeLicenseRepo) AllocateOldestUnusedWithTx(_ context.Context, _ pgx.Tx, duration string) (*model.LicenseKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var candidate *model.LicenseKey
	for _, k := range r.keys {
		if k.Duration != duration || !k.IsAllocatable() {
			continue
		}
		if candidate == nil || k.CreatedAt.Before(candidate.CreatedAt) {
			candidate = k
		}
	}
	if candidate == nil {
		return nil, model.ErrNoAvailableKey
	}
	cp := *candidate
	return &cp, nil
}

func (r *fakeLicenseRepo) MarkUsedWithTx(_ context.Context, _ pgx.Tx, keyID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.ID == keyID {
			if k.IsUsed {
				return model.ErrNoAvailableKey
			}
			now := time.Now()
			k.IsUsed = true
			k.PurchasedBy = &userID
			k.PurchasedAt = &now
			return nil
		}
	}
	return model.ErrKeyNotFound
}

func (r *fakeLicenseRepo) Upsert(_ context.Context, key *model.LicenseKey) (bool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.keys {
		if existing.Key == key.Key {
			if existing.ExternalID != key.ExternalID || existing.IsActive != key.IsActive {
				existing.ExternalID = key.ExternalID
				existing.IsActive = key.IsActive
				return false, true, nil
			}
			return false, false, nil
		}
	}
	cp := *key
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.keys = append(r.keys, &cp)
	return true, false, nil
}

func (r *fakeLicenseRepo) ListByPurchaser(_ context.Context, userID uuid.UUID) ([]*model.LicenseKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.LicenseKey
	for _, k := range r.keys {
		if k.PurchasedBy != nil && *k.PurchasedBy == userID {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeLicenseRepo) List(_ context.Context, _ model.KeyListQuery) ([]*model.LicenseKey, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.LicenseKey, 0, len(r.keys))
	for _, k := range r.keys {
		cp := *k
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (r *fakeLicenseRepo) GetStats(_ context.Context) (*model.KeyStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &model.KeyStats{}
	perDuration := map[string]*model.DurationStats{}
	for _, k := range r.keys {
		stats.Total++
		d, ok := perDuration[k.Duration]
		if !ok {
			d = &model.DurationStats{Duration: k.Duration}
			perDuration[k.Duration] = d
		}
		d.Total++
		if k.IsUsed {
			stats.Used++
			d.Used++
		} else if k.IsActive {
			stats.Available++
			d.Available++
		}
	}
	durations := make([]string, 0, len(perDuration))
	for d := range perDuration {
		durations = append(durations, d)
	}
	sort.Strings(durations)
	for _, d := range durations {
		stats.ByDuration = append(stats.ByDuration, *perDuration[d])
	}
	return stats, nil
}

func (r *fakeLicenseRepo) keyByString(key string) *model.LicenseKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.Key == key {
			cp := *k
			return &cp
		}
	}
	return nil
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders []*model.PurchaseOrder
}

func (r *fakeOrderRepo) CreateWithTx(_ context.Context, _ pgx.Tx, order *model.PurchaseOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OrderCode == order.OrderCode {
			return model.ErrDuplicateOrderCode
		}
	}
	cp := *order
	cp.CreatedAt = time.Now()
	r.orders = append(r.orders, &cp)
	return nil
}

func (r *fakeOrderRepo) ListByUserID(_ context.Context, userID uuid.UUID, _, _ int) ([]*model.PurchaseOrder, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PurchaseOrder
	for _, o := range r.orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

type fakeWalletRepo struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*walletmodel.Wallet // keyed by user id

	// when set, the next GetByUserID returns this balance instead of the
	// stored one, mimicking a read that went stale before the row lock
	staleBalance *int64
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{wallets: make(map[uuid.UUID]*walletmodel.Wallet)}
}

func (r *fakeWalletRepo) seed(userID uuid.UUID, balance int64) *walletmodel.Wallet {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := &walletmodel.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Balance:  balance,
		Currency: walletmodel.DefaultCurrency,
		IsActive: true,
	}
	r.wallets[userID] = w
	return w
}

func (r *fakeWalletRepo) balanceOf(userID uuid.UUID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.wallets[userID]; ok {
		return w.Balance
	}
	return 0
}

func (r *fakeWalletRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*walletmodel.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.wallets[userID]; ok {
		cp := *w
		if r.staleBalance != nil {
			cp.Balance = *r.staleBalance
			r.staleBalance = nil
		}
		return &cp, nil
	}
	return nil, walletmodel.ErrWalletNotFound
}

func (r *fakeWalletRepo) GetByUserIDForUpdateWithTx(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*walletmodel.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.wallets[userID]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, walletmodel.ErrWalletNotFound
}

func (r *fakeWalletRepo) GetByIDForUpdateWithTx(_ context.Context, _ pgx.Tx, walletID uuid.UUID) (*walletmodel.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.ID == walletID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, walletmodel.ErrWalletNotFound
}

func (r *fakeWalletRepo) CreditBalanceWithTx(_ context.Context, _ pgx.Tx, walletID uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.ID == walletID {
			w.Balance += amount
			return nil
		}
	}
	return walletmodel.ErrWalletNotFound
}

func (r *fakeWalletRepo) DebitBalanceWithTx(_ context.Context, _ pgx.Tx, walletID uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.ID == walletID {
			if w.Balance < amount {
				return walletmodel.ErrInsufficientBalance
			}
			w.Balance -= amount
			return nil
		}
	}
	return walletmodel.ErrWalletNotFound
}

func (r *fakeWalletRepo) Create(_ context.Context, wallet *walletmodel.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[wallet.UserID] = wallet
	return nil
}

func (r *fakeWalletRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*walletmodel.Wallet, error) {
	if w, err := r.GetByUserID(ctx, userID); err == nil {
		return w, nil
	}
	return r.seed(userID, 0), nil
}

type fakeTxManager struct{}

func (fakeTxManager) BeginTx(_ context.Context) (pgx.Tx, error) { return nil, nil }
func (fakeTxManager) BeginSerializableTx(_ context.Context) (pgx.Tx, error) {
	return nil, nil
}
func (fakeTxManager) CommitTx(_ context.Context, _ pgx.Tx) error   { return nil }
func (fakeTxManager) RollbackTx(_ context.Context, _ pgx.Tx) error { return nil }

type fakeUpstream struct {
	keys        []licenseapi.ExternalKey
	generated   []string
	fetchErr    error
	generateErr error
}

func (f *fakeUpstream) FetchKeys(_ context.Context) ([]licenseapi.ExternalKey, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.keys, nil
}

func (f *fakeUpstream) GenerateKeys(_ context.Context, _ string, _ int) ([]string, error) {
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return f.generated, nil
}

type noopCache struct{}

func (noopCache) Get(_ context.Context, _ string, _ interface{}) (bool, error) { return false, nil }
func (noopCache) Set(_ context.Context, _ string, _ interface{}, _ time.Duration) error {
	return nil
}
func (noopCache) Delete(_ context.Context, _ ...string) error     { return nil }
func (noopCache) DeletePattern(_ context.Context, _ string) error { return nil }
func (noopCache) Ping(_ context.Context) error                    { return nil }

// =====================================================
// FIXTURE
// =====================================================

type licenseFixture struct {
	licenseRepo *fakeLicenseRepo
	orderRepo   *fakeOrderRepo
	walletRepo  *fakeWalletRepo
	upstream    *fakeUpstream
	svc         LicenseService
}

func newLicenseFixture() *licenseFixture {
	f := &licenseFixture{
		licenseRepo: &fakeLicenseRepo{},
		orderRepo:   &fakeOrderRepo{},
		walletRepo:  newFakeWalletRepo(),
		upstream:    &fakeUpstream{},
	}
	f.svc = NewLicenseService(
		f.licenseRepo, f.orderRepo, f.walletRepo, fakeTxManager{},
		f.upstream, noopCache{},
		config.LicenseConfig{
			Prices: map[string]int64{
				"30d":  300000,
				"90d":  800000,
				"180d": 1500000,
				"365d": 2800000,
			},
		},
	)
	return f
}

func (f *licenseFixture) seedKey(t *testing.T, duration string, createdAt time.Time) *model.LicenseKey {
	t.Helper()
	key := &model.LicenseKey{
		ID:         uuid.New(),
		ExternalID: fmt.Sprintf("ext-%s", uuid.NewString()[:8]),
		Key:        fmt.Sprintf("KEY-%s-V3", uuid.NewString()[:8]),
		Duration:   duration,
		IsActive:   true,
		CreatedAt:  createdAt,
	}
	f.licenseRepo.mu.Lock()
	f.licenseRepo.keys = append(f.licenseRepo.keys, key)
	f.licenseRepo.mu.Unlock()
	return key
}

// =====================================================
// PURCHASE
// =====================================================

func TestPurchaseKey(t *testing.T) {
	ctx := context.Background()

	t.Run("allocates oldest key and debits wallet", func(t *testing.T) {
		f := newLicenseFixture()
		userID := uuid.New()
		f.walletRepo.seed(userID, 500000)
		older := f.seedKey(t, "30d", time.Now().Add(-48*time.Hour))
		f.seedKey(t, "30d", time.Now().Add(-time.Hour))

		resp, err := f.svc.PurchaseKey(ctx, userID, model.PurchaseKeyRequest{Duration: "30d"})
		require.NoError(t, err)

		assert.Equal(t, older.Key, resp.Key, "oldest key drained first")
		assert.Equal(t, int64(300000), resp.Amount)
		assert.Equal(t, int64(200000), f.walletRepo.balanceOf(userID))

		sold := f.licenseRepo.keyByString(older.Key)
		require.NotNil(t, sold)
		assert.True(t, sold.IsUsed)
		require.NotNil(t, sold.PurchasedBy)
		assert.Equal(t, userID, *sold.PurchasedBy)

		orders, total, err := f.orderRepo.ListByUserID(ctx, userID, 1, 20)
		require.NoError(t, err)
		require.Equal(t, 1, total)
		assert.Equal(t, resp.OrderCode, orders[0].OrderCode)
		assert.Equal(t, model.OrderTypeLicenseKey, orders[0].OrderType)
		assert.Equal(t, model.PaymentMethodWallet, orders[0].PaymentMethod)
	})

	t.Run("rejects unknown duration", func(t *testing.T) {
		f := newLicenseFixture()

		_, err := f.svc.PurchaseKey(ctx, uuid.New(), model.PurchaseKeyRequest{Duration: "7d"})
		assert.ErrorIs(t, err, model.ErrUnknownDuration)
	})

	t.Run("insufficient balance makes no mutation", func(t *testing.T) {
		f := newLicenseFixture()
		userID := uuid.New()
		f.walletRepo.seed(userID, 100000)
		key := f.seedKey(t, "30d", time.Now())

		_, err := f.svc.PurchaseKey(ctx, userID, model.PurchaseKeyRequest{Duration: "30d"})
		assert.ErrorIs(t, err, walletmodel.ErrInsufficientBalance)

		assert.Equal(t, int64(100000), f.walletRepo.balanceOf(userID))
		assert.False(t, f.licenseRepo.keyByString(key.Key).IsUsed, "key stays in the pool")
	})

	t.Run("missing wallet reads as zero balance", func(t *testing.T) {
		f := newLicenseFixture()
		f.seedKey(t, "30d", time.Now())

		_, err := f.svc.PurchaseKey(ctx, uuid.New(), model.PurchaseKeyRequest{Duration: "30d"})
		assert.ErrorIs(t, err, walletmodel.ErrInsufficientBalance)
	})

	t.Run("drained inventory aborts without debit", func(t *testing.T) {
		f := newLicenseFixture()
		userID := uuid.New()
		f.walletRepo.seed(userID, 500000)
		f.seedKey(t, "30d", time.Now())
		f.licenseRepo.mu.Lock()
		f.licenseRepo.keys[0].IsUsed = true
		f.licenseRepo.mu.Unlock()
		f.seedKey(t, "90d", time.Now()) // wrong duration

		_, err := f.svc.PurchaseKey(ctx, userID, model.PurchaseKeyRequest{Duration: "30d"})
		assert.ErrorIs(t, err, model.ErrNoAvailableKey)
		assert.Equal(t, int64(500000), f.walletRepo.balanceOf(userID))
	})

	t.Run("debit failure under lock leaves the key unsold", func(t *testing.T) {
		f := newLicenseFixture()
		userID := uuid.New()
		f.walletRepo.seed(userID, 100000)
		key := f.seedKey(t, "30d", time.Now())

		// precondition sees 300000, a concurrent debit wins before the row
		// lock, the locked re-check then rejects the spend
		stale := int64(300000)
		f.walletRepo.staleBalance = &stale

		_, err := f.svc.PurchaseKey(ctx, userID, model.PurchaseKeyRequest{Duration: "30d"})
		assert.ErrorIs(t, err, walletmodel.ErrInsufficientBalance)
		assert.Equal(t, int64(100000), f.walletRepo.balanceOf(userID))
		assert.False(t, f.licenseRepo.keyByString(key.Key).IsUsed)
	})
}

// =====================================================
// MIRROR
// =====================================================

func TestSyncKeys(t *testing.T) {
	ctx := context.Background()

	t.Run("mirrors new keys and updates changed ones", func(t *testing.T) {
		f := newLicenseFixture()
		existing := f.seedKey(t, "30d", time.Now())

		f.upstream.keys = []licenseapi.ExternalKey{
			{ID: "mongo-1", Key: "KEY-NEW-001-V3", Duration: "90d", IsActive: true},
			{ID: "mongo-2", Key: existing.Key, Duration: "30d", IsActive: true}, // external id thay đổi
			{ID: "mongo-3", Key: "KEY-BAD-DUR-V3", Duration: "14d", IsActive: true},
		}

		result, err := f.svc.SyncKeys(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, 1, result.Updated)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, "mongo-2", f.licenseRepo.keyByString(existing.Key).ExternalID)
	})

	t.Run("sync never flips local is_used", func(t *testing.T) {
		f := newLicenseFixture()
		userID := uuid.New()
		f.walletRepo.seed(userID, 300000)
		key := f.seedKey(t, "30d", time.Now())
		_, err := f.svc.PurchaseKey(ctx, userID, model.PurchaseKeyRequest{Duration: "30d"})
		require.NoError(t, err)

		f.upstream.keys = []licenseapi.ExternalKey{
			{ID: key.ExternalID, Key: key.Key, Duration: "30d", IsActive: true},
		}
		_, err = f.svc.SyncKeys(ctx)
		require.NoError(t, err)

		assert.True(t, f.licenseRepo.keyByString(key.Key).IsUsed)
	})

	t.Run("upstream failure surfaces as upstream error", func(t *testing.T) {
		f := newLicenseFixture()
		f.upstream.fetchErr = fmt.Errorf("connect timeout")

		_, err := f.svc.SyncKeys(ctx)
		var licErr *model.LicenseError
		require.ErrorAs(t, err, &licErr)
		assert.Equal(t, model.ErrCodeUpstreamUnavailable, licErr.Code)
		assert.NotContains(t, licErr.Message, "timeout")
	})
}

func TestGenerateKeys(t *testing.T) {
	ctx := context.Background()
	f := newLicenseFixture()
	f.upstream.generated = []string{"KEY-GEN-001-V3", "KEY-GEN-002-V3"}

	resp, err := f.svc.GenerateKeys(ctx, model.GenerateKeysRequest{Duration: "90d", Quantity: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Generated)
	for _, k := range resp.Keys {
		mirrored := f.licenseRepo.keyByString(k)
		require.NotNil(t, mirrored)
		assert.Equal(t, "90d", mirrored.Duration)
		assert.False(t, mirrored.IsUsed)
	}
}

func TestGetPrices(t *testing.T) {
	f := newLicenseFixture()

	prices := f.svc.GetPrices()
	require.Len(t, prices, 4)
	assert.Equal(t, "30d", prices[0].Duration)
	assert.Equal(t, int64(300000), prices[0].Price)
	assert.Equal(t, "365d", prices[3].Duration)
	assert.Equal(t, int64(2800000), prices[3].Price)
}
