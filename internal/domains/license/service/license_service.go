package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"licensestore-backend/internal/config"
	"licensestore-backend/internal/domains/license/model"
	"licensestore-backend/internal/domains/license/repository"
	walletmodel "licensestore-backend/internal/domains/wallet/model"
	walletrepo "licensestore-backend/internal/domains/wallet/repository"
	"licensestore-backend/internal/infrastructure/licenseapi"
	"licensestore-backend/internal/shared/utils"
	"licensestore-backend/pkg/cache"
	"licensestore-backend/pkg/logger"
)

const balanceCacheKeyPrefix = "wallet:balance:"

type licenseService struct {
	licenseRepo repository.LicenseRepoInterface
	orderRepo   repository.OrderRepoInterface
	walletRepo  walletrepo.WalletRepoInterface
	txManager   walletrepo.TransactionManager
	upstream    licenseapi.Client
	cache       cache.Cache
	cfg         config.LicenseConfig
}

// NewLicenseService creates a new license service
func NewLicenseService(
	licenseRepo repository.LicenseRepoInterface,
	orderRepo repository.OrderRepoInterface,
	walletRepo walletrepo.WalletRepoInterface,
	txManager walletrepo.TransactionManager,
	upstream licenseapi.Client,
	cacheClient cache.Cache,
	cfg config.LicenseConfig,
) LicenseService {
	return &licenseService{
		licenseRepo: licenseRepo,
		orderRepo:   orderRepo,
		walletRepo:  walletRepo,
		txManager:   txManager,
		upstream:    upstream,
		cache:       cacheClient,
		cfg:         cfg,
	}
}

// =====================================================
// PURCHASE
// =====================================================

// PurchaseKey
// Business Logic Flow:
// 1. Resolve the price for the duration tag
// 2. Precondition check against the (possibly stale) balance - fail fast
// 3. One SERIALIZABLE transaction:
//    a. allocate the oldest unused key (FOR UPDATE SKIP LOCKED)
//    b. lock the wallet row, debit with the balance re-checked in SQL
//    c. record the purchase order audit entry
//    d. mark the key used + attach purchaser
// 4. Commit - any failure after allocation rolls the key back to the pool
//
// Balance re-check dưới lock đóng race hai purchase cùng pass precondition
// trên balance cũ: đúng một cái debit được, cái kia nhận insufficient.
func (s *licenseService) PurchaseKey(ctx context.Context, userID uuid.UUID, req model.PurchaseKeyRequest) (*model.PurchaseKeyResponse, error) {
	// Step 1: Resolve price
	if err := req.Validate(); err != nil {
		return nil, model.NewUnknownDurationError(req.Duration)
	}
	price, ok := s.cfg.Prices[req.Duration]
	if !ok {
		return nil, model.NewUnknownDurationError(req.Duration)
	}

	// Step 2: Precondition check - real check happens again under the lock
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, walletmodel.ErrWalletNotFound) {
			return nil, walletmodel.NewInsufficientBalanceError(0, price)
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if !wallet.CanSpend(price) {
		return nil, walletmodel.NewInsufficientBalanceError(wallet.Balance, price)
	}

	// Step 3: Atomic allocate + debit + audit + mark
	tx, err := s.txManager.BeginSerializableTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.txManager.RollbackTx(ctx, tx)

	key, err := s.licenseRepo.AllocateOldestUnusedWithTx(ctx, tx, req.Duration)
	if err != nil {
		if errors.Is(err, model.ErrNoAvailableKey) {
			return nil, model.NewNoAvailableKeyError(req.Duration)
		}
		return nil, err
	}

	lockedWallet, err := s.walletRepo.GetByUserIDForUpdateWithTx(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	if err := s.walletRepo.DebitBalanceWithTx(ctx, tx, lockedWallet.ID, price); err != nil {
		if errors.Is(err, walletmodel.ErrInsufficientBalance) {
			return nil, walletmodel.NewInsufficientBalanceError(lockedWallet.Balance, price)
		}
		return nil, fmt.Errorf("failed to debit wallet: %w", err)
	}

	order := &model.PurchaseOrder{
		ID:            uuid.New(),
		UserID:        userID,
		WalletID:      lockedWallet.ID,
		LicenseKeyID:  key.ID,
		OrderCode:     utils.GenerateBusinessCode(model.OrderCodePrefix),
		OrderType:     model.OrderTypeLicenseKey,
		Duration:      req.Duration,
		Amount:        price,
		PaymentMethod: model.PaymentMethodWallet,
		Status:        model.OrderStatusCompleted,
	}
	if err := s.orderRepo.CreateWithTx(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("failed to record purchase order: %w", err)
	}

	if err := s.licenseRepo.MarkUsedWithTx(ctx, tx, key.ID, userID); err != nil {
		return nil, fmt.Errorf("failed to mark key used: %w", err)
	}

	// Step 4: Commit
	if err := s.txManager.CommitTx(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}

	s.invalidateBalanceCache(ctx, userID)

	logger.Info("license key purchased", map[string]interface{}{
		"order_code": order.OrderCode,
		"user_id":    userID.String(),
		"duration":   req.Duration,
		"amount":     price,
	})

	return &model.PurchaseKeyResponse{
		Key:         key.Key,
		Duration:    key.Duration,
		OrderCode:   order.OrderCode,
		Amount:      price,
		PurchasedAt: time.Now(),
	}, nil
}

// =====================================================
// QUERIES
// =====================================================

func (s *licenseService) GetMyKeys(ctx context.Context, userID uuid.UUID) ([]*model.LicenseKey, error) {
	return s.licenseRepo.ListByPurchaser(ctx, userID)
}

func (s *licenseService) GetMyOrders(ctx context.Context, userID uuid.UUID, page, limit int) ([]*model.PurchaseOrder, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.orderRepo.ListByUserID(ctx, userID, page, limit)
}

func (s *licenseService) GetPrices() []model.PriceInfo {
	prices := make([]model.PriceInfo, 0, len(model.ValidDurations))
	for _, d := range model.ValidDurations {
		if price, ok := s.cfg.Prices[d]; ok {
			prices = append(prices, model.PriceInfo{
				Duration: d,
				Price:    price,
				Currency: walletmodel.DefaultCurrency,
			})
		}
	}
	return prices
}

func (s *licenseService) ListKeys(ctx context.Context, query model.KeyListQuery) ([]*model.LicenseKey, int, error) {
	query.Normalize()
	return s.licenseRepo.List(ctx, query)
}

func (s *licenseService) GetKeyStats(ctx context.Context) (*model.KeyStats, error) {
	return s.licenseRepo.GetStats(ctx)
}

// =====================================================
// UPSTREAM MIRROR
// =====================================================

// SyncKeys mirrors the upstream inventory. is_used là local-only state nên
// không bao giờ bị sync ghi đè.
func (s *licenseService) SyncKeys(ctx context.Context) (*model.SyncResult, error) {
	externalKeys, err := s.upstream.FetchKeys(ctx)
	if err != nil {
		return nil, model.NewUpstreamError(err)
	}

	result := &model.SyncResult{}
	for _, ext := range externalKeys {
		if ext.Key == "" || !model.IsValidDuration(ext.Duration) {
			result.Skipped++
			continue
		}

		created, updated, err := s.licenseRepo.Upsert(ctx, &model.LicenseKey{
			ID:         uuid.New(),
			ExternalID: ext.ID,
			Key:        ext.Key,
			Duration:   ext.Duration,
			IsActive:   ext.IsActive,
		})
		if err != nil {
			logger.Error("failed to mirror license key", err)
			result.Skipped++
			continue
		}
		switch {
		case created:
			result.Synced++
		case updated:
			result.Updated++
		default:
			result.Skipped++
		}
	}

	logger.Info("license key sync finished", map[string]interface{}{
		"synced":  result.Synced,
		"updated": result.Updated,
		"skipped": result.Skipped,
	})
	return result, nil
}

// GenerateKeys mints keys upstream then mirrors them. Upstream trả key string
// thôi nên external_id tạm dùng chính key string, lần sync sau sẽ sửa lại.
func (s *licenseService) GenerateKeys(ctx context.Context, req model.GenerateKeysRequest) (*model.GenerateKeysResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, model.NewLicenseError(model.ErrCodeUnknownDuration, err.Error(), err)
	}

	keys, err := s.upstream.GenerateKeys(ctx, req.Duration, req.Quantity)
	if err != nil {
		return nil, model.NewUpstreamError(err)
	}
	if len(keys) == 0 {
		return nil, model.NewUpstreamError(fmt.Errorf("no keys generated"))
	}

	resp := &model.GenerateKeysResponse{}
	for _, keyString := range keys {
		created, _, err := s.licenseRepo.Upsert(ctx, &model.LicenseKey{
			ID:         uuid.New(),
			ExternalID: keyString,
			Key:        keyString,
			Duration:   req.Duration,
			IsActive:   true,
		})
		if err != nil {
			logger.Error("failed to save generated key", err)
			continue
		}
		if created {
			resp.Generated++
			resp.Keys = append(resp.Keys, keyString)
		}
	}
	return resp, nil
}

func (s *licenseService) invalidateBalanceCache(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.Delete(ctx, balanceCacheKeyPrefix+userID.String()); err != nil {
		logger.Error("failed to invalidate balance cache", err)
	}
}
