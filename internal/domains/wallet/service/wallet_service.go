package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"licensestore-backend/internal/config"
	"licensestore-backend/internal/domains/payment/gateway"
	"licensestore-backend/internal/domains/wallet/model"
	"licensestore-backend/internal/domains/wallet/repository"
	"licensestore-backend/internal/infrastructure/bankfeed"
	"licensestore-backend/internal/shared/utils"
	"licensestore-backend/pkg/cache"
	"licensestore-backend/pkg/logger"
)

const (
	// payment URL hết hạn sau 15 phút (gateway enforce, đây chỉ để hiển thị)
	paymentURLExpireMinutes = 15

	balanceCacheTTL       = 30 * time.Second
	balanceCacheKeyPrefix = "wallet:balance:"

	// số lần retry khi topup_code bị trùng (4 random bytes, trùng là cực hiếm)
	maxCodeGenerationRetries = 3

	qrReconcileDelaySeconds = 60
)

type walletService struct {
	walletRepo repository.WalletRepoInterface
	topupRepo  repository.TopupRepoInterface
	txManager  repository.TransactionManager
	gateway    gateway.PaymentGateway
	bankFeed   bankfeed.Client
	cache      cache.Cache
	enqueuer   TaskEnqueuer
	cfg        config.WalletConfig
}

// NewWalletService creates a new wallet service
func NewWalletService(
	walletRepo repository.WalletRepoInterface,
	topupRepo repository.TopupRepoInterface,
	txManager repository.TransactionManager,
	paymentGateway gateway.PaymentGateway,
	bankFeed bankfeed.Client,
	cacheClient cache.Cache,
	enqueuer TaskEnqueuer,
	cfg config.WalletConfig,
) WalletService {
	return &walletService{
		walletRepo: walletRepo,
		topupRepo:  topupRepo,
		txManager:  txManager,
		gateway:    paymentGateway,
		bankFeed:   bankFeed,
		cache:      cacheClient,
		enqueuer:   enqueuer,
		cfg:        cfg,
	}
}

// =====================================================
// CREATE TOPUP (gateway redirect)
// =====================================================

// CreateTopup
// Business Logic Flow:
// 1. Validate request + config-driven amount bounds
// 2. Get or lazily create the user's wallet
// 3. Create a pending topup entry with a fresh business code
// 4. Build the signed gateway redirect URL
// Không có balance mutation ở đây - tiền chỉ vào ví khi IPN được settle.
func (s *walletService) CreateTopup(ctx context.Context, userID uuid.UUID, req model.CreateTopupRequest, clientIP string) (*model.CreateTopupResponse, error) {
	// Step 1: Validate
	if err := req.Validate(); err != nil {
		return nil, model.NewWalletError(model.ErrCodeInvalidTopupAmount, err.Error(), err)
	}
	if req.Amount < s.cfg.MinTopupAmount || req.Amount > s.cfg.MaxTopupAmount {
		return nil, model.NewInvalidTopupAmountError(req.Amount, s.cfg.MinTopupAmount, s.cfg.MaxTopupAmount)
	}

	// Step 2: Get or create wallet
	wallet, err := s.walletRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if !wallet.IsActive {
		return nil, model.NewWalletInactiveError(userID.String())
	}

	// Step 3: Create pending entry
	topup, err := s.createPendingEntry(ctx, wallet, req.Amount, model.PaymentMethodGateway, clientIP, req.Notes)
	if err != nil {
		return nil, err
	}

	// Step 4: Build payment URL. Entry đã persist - nếu gateway fail thì
	// cancel lại entry để không rác pending.
	paymentURL, err := s.gateway.CreatePaymentURL(ctx, gateway.PaymentURLRequest{
		TopupCode: topup.TopupCode,
		Amount:    decimal.NewFromInt(topup.Amount),
		ClientIP:  clientIP,
	})
	if err != nil {
		logger.Error("failed to create payment URL", err)
		if cancelErr := s.topupRepo.MarkCancelled(ctx, topup.ID); cancelErr != nil {
			logger.Error("failed to cancel orphaned topup entry", cancelErr)
		}
		return nil, model.NewGatewayUnavailableError(err)
	}

	logger.Info("topup created", map[string]interface{}{
		"topup_code": topup.TopupCode,
		"user_id":    userID.String(),
		"amount":     topup.Amount,
		"method":     topup.PaymentMethod,
	})

	return &model.CreateTopupResponse{
		PaymentURL: paymentURL,
		TopupCode:  topup.TopupCode,
		Amount:     topup.Amount,
		ExpiresIn:  paymentURLExpireMinutes,
	}, nil
}

// =====================================================
// CREATE QR TOPUP (bank transfer)
// =====================================================

// CreateQRTopup
// Business Logic Flow:
// 1. Validate request + amount bounds
// 2. Get or create wallet
// 3. Create a pending qr_pay entry - topup_code doubles as transfer memo
// 4. Build QR image URL (amount + memo pre-filled)
// 5. Schedule the first reconciliation attempt
func (s *walletService) CreateQRTopup(ctx context.Context, userID uuid.UUID, req model.CreateQRTopupRequest, clientIP string) (*model.CreateQRTopupResponse, error) {
	// Step 1: Validate
	if err := req.Validate(); err != nil {
		return nil, model.NewWalletError(model.ErrCodeInvalidTopupAmount, err.Error(), err)
	}
	if req.Amount < s.cfg.MinTopupAmount || req.Amount > s.cfg.MaxTopupAmount {
		return nil, model.NewInvalidTopupAmountError(req.Amount, s.cfg.MinTopupAmount, s.cfg.MaxTopupAmount)
	}

	// Step 2: Get or create wallet
	wallet, err := s.walletRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if !wallet.IsActive {
		return nil, model.NewWalletInactiveError(userID.String())
	}

	// Step 3: Create pending entry
	topup, err := s.createPendingEntry(ctx, wallet, req.Amount, model.PaymentMethodQRPay, clientIP, req.Notes)
	if err != nil {
		return nil, err
	}

	// Step 4: Build QR image URL
	qrURL := s.bankFeed.BuildQRImageURL(topup.Amount, topup.TopupCode)

	// Step 5: Schedule reconciliation. Enqueue fail không làm hỏng topup -
	// user vẫn chuyển khoản được, cron/manual reconcile sẽ bắt sau.
	if err := s.enqueuer.EnqueueReconcileQRTopup(ctx, userID, topup.TopupCode, 1, qrReconcileDelaySeconds); err != nil {
		logger.Error("failed to schedule QR reconciliation", err)
	}

	logger.Info("qr topup created", map[string]interface{}{
		"topup_code": topup.TopupCode,
		"user_id":    userID.String(),
		"amount":     topup.Amount,
	})

	return &model.CreateQRTopupResponse{
		QRImageURL:   qrURL,
		TopupCode:    topup.TopupCode,
		Amount:       topup.Amount,
		TransferMemo: topup.TopupCode,
	}, nil
}

// createPendingEntry persists a fresh pending topup, retrying on the rare
// business-code collision
func (s *walletService) createPendingEntry(ctx context.Context, wallet *model.Wallet, amount int64, method, clientIP string, notes *string) (*model.WalletTopup, error) {
	var ip *string
	if clientIP != "" {
		ip = &clientIP
	}

	for attempt := 0; attempt < maxCodeGenerationRetries; attempt++ {
		topup := &model.WalletTopup{
			ID:            uuid.New(),
			UserID:        wallet.UserID,
			WalletID:      wallet.ID,
			TopupCode:     utils.GenerateBusinessCode(model.TopupCodePrefix),
			Amount:        amount,
			PaymentMethod: method,
			Status:        model.TopupStatusPending,
			IPAddress:     ip,
			Notes:         notes,
		}

		err := s.topupRepo.Create(ctx, topup)
		if err == nil {
			return topup, nil
		}
		if errors.Is(err, model.ErrDuplicateTopupCode) {
			continue
		}
		return nil, fmt.Errorf("failed to create topup entry: %w", err)
	}
	return nil, model.NewWalletError(model.ErrCodeDuplicateTopupCode, "could not generate a unique topup code", model.ErrDuplicateTopupCode)
}

// =====================================================
// PROCESS GATEWAY NOTIFICATION (IPN)
// =====================================================

// ProcessGatewayNotification
// Business Logic Flow:
// 1. Verify signature (pure computation, no storage) -> 97 on failure
// 2. Parse the notified amount (gateway minor-unit scale)
// 3. Open a SERIALIZABLE transaction
// 4. Lock the topup entry BEFORE reading status -> 01 when unknown ref
// 5. Terminal status = duplicate notification -> 02, no writes
// 6. Compare amounts -> 04 on mismatch, entry stays pending
// 7. Settle: completed + credit wallet, or failed; both ack 00
//
// Lock order: topup entry first, wallet second. The ack is derived from the
// transaction outcome - a commit failure must not be acked as success,
// nếu không gateway sẽ ngừng retry và tiền không bao giờ vào ví.
func (s *walletService) ProcessGatewayNotification(ctx context.Context, rawParams map[string]string) model.NotificationAck {
	// Step 1: Verify signature
	result := s.gateway.VerifyCallback(rawParams)
	if !result.IsValid {
		logger.Warn("gateway notification rejected: invalid signature", map[string]interface{}{
			"topup_code": result.TopupCode,
		})
		return model.AckInvalidSignature()
	}

	// Step 2: Parse notified amount. Gateway gửi amount x100.
	notifiedAmount, ok := parseGatewayAmount(result.AmountRaw)
	if !ok {
		logger.Warn("gateway notification rejected: unparseable amount", map[string]interface{}{
			"topup_code": result.TopupCode,
			"amount_raw": result.AmountRaw,
		})
		return model.AckInvalidAmount()
	}

	// Step 3: Open serializable transaction
	tx, err := s.txManager.BeginSerializableTx(ctx)
	if err != nil {
		logger.Error("failed to begin settlement transaction", err)
		return model.AckUnknownError()
	}
	defer s.txManager.RollbackTx(ctx, tx)

	// Step 4: Lock the entry. Hai notification trùng nhau serialize ở đây.
	topup, err := s.topupRepo.GetByCodeForUpdateWithTx(ctx, tx, result.TopupCode)
	if err != nil {
		if errors.Is(err, model.ErrTopupNotFound) {
			return model.AckOrderNotFound()
		}
		logger.Error("failed to lock topup entry", err)
		return model.AckUnknownError()
	}

	// Step 5: Idempotency gate
	if topup.IsTerminal() {
		logger.Info("duplicate gateway notification ignored", map[string]interface{}{
			"topup_code": topup.TopupCode,
			"status":     topup.Status,
		})
		return model.AckAlreadyConfirmed()
	}

	// Step 6: Amount check - chặn notification bị sửa amount nhưng chữ ký
	// vẫn hợp lệ do secret bị lộ một phần flow khác
	if notifiedAmount != topup.Amount {
		logger.Warn("gateway notification rejected: amount mismatch", map[string]interface{}{
			"topup_code": topup.TopupCode,
			"expected":   topup.Amount,
			"notified":   notifiedAmount,
		})
		return model.AckInvalidAmount()
	}

	// Step 7: Settle
	meta := repository.GatewayMeta{
		ResponseCode:   strPtr(result.ResponseCode),
		GatewayTxnNo:   strPtrOrNil(result.GatewayTxnNo),
		BankCode:       extractBankCode(result.RawPayload),
		PaymentDetails: result.RawPayload,
	}

	if result.Status == gateway.CallbackStatusCompleted {
		if err := s.topupRepo.MarkCompletedWithTx(ctx, tx, topup.ID, meta); err != nil {
			logger.Error("failed to mark topup completed", err)
			return model.AckUnknownError()
		}
		wallet, err := s.walletRepo.GetByIDForUpdateWithTx(ctx, tx, topup.WalletID)
		if err != nil {
			logger.Error("failed to lock wallet for credit", err)
			return model.AckUnknownError()
		}
		if err := s.walletRepo.CreditBalanceWithTx(ctx, tx, wallet.ID, topup.Amount); err != nil {
			logger.Error("failed to credit wallet", err)
			return model.AckUnknownError()
		}
	} else {
		if err := s.topupRepo.MarkFailedWithTx(ctx, tx, topup.ID, meta); err != nil {
			logger.Error("failed to mark topup failed", err)
			return model.AckUnknownError()
		}
	}

	if err := s.txManager.CommitTx(ctx, tx); err != nil {
		logger.Error("failed to commit settlement transaction", err)
		return model.AckUnknownError()
	}

	s.invalidateBalanceCache(ctx, topup.UserID)

	logger.Info("gateway notification settled", map[string]interface{}{
		"topup_code":    topup.TopupCode,
		"status":        string(result.Status),
		"amount":        topup.Amount,
		"response_code": result.ResponseCode,
	})
	return model.AckSuccess()
}

// =====================================================
// RETURN REDIRECT (browser)
// =====================================================

// VerifyReturnRedirect verifies the browser-return parameters and reports the
// entry's current status. Chỉ để hiển thị - IPN mới là nguồn settle.
func (s *walletService) VerifyReturnRedirect(ctx context.Context, rawParams map[string]string) *model.ReturnRedirectResult {
	result := s.gateway.VerifyCallback(rawParams)
	if !result.IsValid {
		return &model.ReturnRedirectResult{
			IsValid:   false,
			TopupCode: result.TopupCode,
			Message:   "invalid payment verification data",
		}
	}

	res := &model.ReturnRedirectResult{
		IsValid:      true,
		TopupCode:    result.TopupCode,
		ResponseCode: result.ResponseCode,
	}
	if result.Status == gateway.CallbackStatusCompleted {
		res.Message = "Payment successful"
	} else {
		res.Message = "Payment failed or was cancelled"
	}

	// Status hiện tại của entry - IPN có thể đến trước hoặc sau browser return
	topup, err := s.topupRepo.GetByCode(ctx, result.TopupCode)
	if err == nil {
		res.Status = topup.Status
	} else if !errors.Is(err, model.ErrTopupNotFound) {
		logger.Error("failed to load topup for return redirect", err)
	}
	return res
}

// =====================================================
// QUERIES
// =====================================================

func (s *walletService) GetBalance(ctx context.Context, userID uuid.UUID) (*model.BalanceResponse, error) {
	cacheKey := balanceCacheKeyPrefix + userID.String()

	var cached model.BalanceResponse
	if found, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	wallet, err := s.walletRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	resp := &model.BalanceResponse{
		Balance:           wallet.Balance,
		Currency:          wallet.Currency,
		IsActive:          wallet.IsActive,
		LastTransactionAt: wallet.LastTransactionAt,
	}
	if err := s.cache.Set(ctx, cacheKey, resp, balanceCacheTTL); err != nil {
		logger.Error("failed to cache wallet balance", err)
	}
	return resp, nil
}

func (s *walletService) GetTopupHistory(ctx context.Context, userID uuid.UUID, query model.TopupHistoryQuery) ([]*model.WalletTopup, int, error) {
	if err := query.Validate(); err != nil {
		return nil, 0, model.NewWalletError(model.ErrCodeInternalError, err.Error(), err)
	}
	query.Normalize()
	return s.topupRepo.ListByUserID(ctx, userID, query.Status, query.Page, query.Limit)
}

func (s *walletService) GetTopupDetail(ctx context.Context, userID uuid.UUID, topupCode string) (*model.WalletTopup, error) {
	topup, err := s.topupRepo.GetByCode(ctx, topupCode)
	if err != nil {
		if errors.Is(err, model.ErrTopupNotFound) {
			return nil, model.NewTopupNotFoundError(topupCode)
		}
		return nil, err
	}
	// owner check - code là business key public trên URL gateway
	if topup.UserID != userID {
		return nil, model.NewTopupNotFoundError(topupCode)
	}
	return topup, nil
}

// =====================================================
// CANCEL TOPUP
// =====================================================

func (s *walletService) CancelTopup(ctx context.Context, userID uuid.UUID, topupCode string) error {
	topup, err := s.topupRepo.GetByCode(ctx, topupCode)
	if err != nil {
		if errors.Is(err, model.ErrTopupNotFound) {
			return model.NewTopupNotFoundError(topupCode)
		}
		return err
	}
	if topup.UserID != userID {
		return model.NewTopupNotFoundError(topupCode)
	}
	if !topup.CanBeCancelled() {
		return model.NewTopupNotCancellableError(topupCode, topup.Status)
	}

	// Guard lại trong SQL - IPN có thể settle entry giữa read và update
	if err := s.topupRepo.MarkCancelled(ctx, topup.ID); err != nil {
		if errors.Is(err, model.ErrTopupNotCancellable) {
			return model.NewTopupNotCancellableError(topupCode, topup.Status)
		}
		return err
	}

	logger.Info("topup cancelled", map[string]interface{}{
		"topup_code": topupCode,
		"user_id":    userID.String(),
	})
	return nil
}

// =====================================================
// ADMIN OPERATIONS
// =====================================================

// AdminCreditWallet credits a wallet manually. Đi qua đúng settlement path
// như IPN để mọi balance mutation đều có topup entry audit được.
func (s *walletService) AdminCreditWallet(ctx context.Context, req model.AdminCreditRequest) (*model.WalletTopup, error) {
	// Step 1: Validate
	if err := req.Validate(); err != nil {
		return nil, model.NewWalletError(model.ErrCodeInvalidTopupAmount, err.Error(), err)
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, model.NewWalletError(model.ErrCodeInvalidTopupAmount, "invalid user id", err)
	}

	// Step 2: Get or create wallet
	wallet, err := s.walletRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	// Step 3: Create the audit entry (pending)
	topup, err := s.createPendingEntry(ctx, wallet, req.Amount, model.PaymentMethodAdmin, "", req.Notes)
	if err != nil {
		return nil, err
	}

	// Step 4: Settle in one transaction, same lock order as IPN
	tx, err := s.txManager.BeginSerializableTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.txManager.RollbackTx(ctx, tx)

	locked, err := s.topupRepo.GetByCodeForUpdateWithTx(ctx, tx, topup.TopupCode)
	if err != nil {
		return nil, fmt.Errorf("failed to lock topup entry: %w", err)
	}
	meta := repository.GatewayMeta{
		PaymentDetails: map[string]interface{}{"source": "admin_credit"},
	}
	if err := s.topupRepo.MarkCompletedWithTx(ctx, tx, locked.ID, meta); err != nil {
		return nil, fmt.Errorf("failed to mark topup completed: %w", err)
	}
	lockedWallet, err := s.walletRepo.GetByIDForUpdateWithTx(ctx, tx, locked.WalletID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	if err := s.walletRepo.CreditBalanceWithTx(ctx, tx, lockedWallet.ID, locked.Amount); err != nil {
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}
	if err := s.txManager.CommitTx(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.invalidateBalanceCache(ctx, userID)

	logger.Info("admin credit applied", map[string]interface{}{
		"topup_code": topup.TopupCode,
		"user_id":    userID.String(),
		"amount":     req.Amount,
	})
	return s.topupRepo.GetByCode(ctx, topup.TopupCode)
}

func (s *walletService) GetTopupStatistics(ctx context.Context) (*model.TopupStatistics, error) {
	return s.topupRepo.GetStatistics(ctx)
}

// ExpirePendingTopups cancels gateway topups pending longer than the TTL.
// QR entries are left alone - chuyển khoản có thể đến muộn và chỉ được
// settle khi reconciliation match.
func (s *walletService) ExpirePendingTopups(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-time.Duration(s.cfg.PendingTopupTTLHour) * time.Hour)
	count, err := s.topupRepo.CancelExpiredPending(ctx, model.PaymentMethodGateway, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending topups: %w", err)
	}
	if count > 0 {
		logger.Info("expired pending topups cancelled", map[string]interface{}{
			"count":  count,
			"cutoff": cutoff.Format(time.RFC3339),
		})
	}
	return count, nil
}

// =====================================================
// HELPERS
// =====================================================

func (s *walletService) invalidateBalanceCache(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.Delete(ctx, balanceCacheKeyPrefix+userID.String()); err != nil {
		logger.Error("failed to invalidate balance cache", err)
	}
}

// parseGatewayAmount converts the gateway's minor-unit amount (VND x100)
// back to VND. Non-numeric or non-x100 values are rejected.
func parseGatewayAmount(raw string) (int64, bool) {
	scaled, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || scaled <= 0 || scaled%100 != 0 {
		return 0, false
	}
	return scaled / 100, true
}

func extractBankCode(payload map[string]interface{}) *string {
	if payload == nil {
		return nil
	}
	if v, ok := payload["vnp_BankCode"].(string); ok && v != "" {
		return &v
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
