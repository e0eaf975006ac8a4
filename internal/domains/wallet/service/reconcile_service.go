package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"licensestore-backend/internal/domains/wallet/model"
	"licensestore-backend/internal/domains/wallet/repository"
	"licensestore-backend/internal/infrastructure/bankfeed"
	"licensestore-backend/pkg/cache"
	"licensestore-backend/pkg/logger"
)

// memo format từ bank proxy: "BANK.REF.SUB.TOPUP_20250131_AB12CD34.trailing"
// - token nạp tiền nằm ở field thứ 4 (index 3) khi split theo dấu chấm
const memoTokenIndex = 3

const bankFeedDateLayout = "2006-01-02 15:04:05"

type reconcileService struct {
	walletRepo repository.WalletRepoInterface
	topupRepo  repository.TopupRepoInterface
	txManager  repository.TransactionManager
	bankFeed   bankfeed.Client
	cache      cache.Cache
}

// NewReconcileService creates a new QR reconciliation service
func NewReconcileService(
	walletRepo repository.WalletRepoInterface,
	topupRepo repository.TopupRepoInterface,
	txManager repository.TransactionManager,
	bankFeed bankfeed.Client,
	cacheClient cache.Cache,
) ReconcileService {
	return &reconcileService{
		walletRepo: walletRepo,
		topupRepo:  topupRepo,
		txManager:  txManager,
		bankFeed:   bankFeed,
		cache:      cacheClient,
	}
}

// ReconcileQRTopup
// Business Logic Flow:
// 1. Load the pending entry - terminal/missing means the chain is done
// 2. Fetch recent bank statement lines
// 3. Match: incoming only, memo token == topup_code, exact amount,
//    transfer date >= entry creation (trong match window)
// 4. Settle through the same exactly-once path as the gateway IPN
//
// Memo là free text người chuyển nhập - không có chữ ký. Trust boundary là
// token + amount + date, và entry lock vẫn chặn double-credit khi hai
// attempt chạy trùng nhau.
func (s *reconcileService) ReconcileQRTopup(ctx context.Context, userID uuid.UUID, topupCode string) (bool, error) {
	// Step 1: Load entry
	topup, err := s.topupRepo.GetByCode(ctx, topupCode)
	if err != nil {
		if errors.Is(err, model.ErrTopupNotFound) {
			logger.Warn("reconciliation target not found", map[string]interface{}{
				"topup_code": topupCode,
			})
			return true, nil
		}
		return false, fmt.Errorf("failed to load topup entry: %w", err)
	}
	if topup.UserID != userID {
		return true, nil
	}
	if !topup.IsPendingQR() {
		// đã settle (hoặc cancel) ở attempt trước / manual - dừng chain
		return true, nil
	}
	if time.Since(topup.CreatedAt) > model.QRMatchWindowHours*time.Hour {
		return true, nil
	}

	// Step 2: Fetch statement
	transactions, err := s.bankFeed.GetRecentTransactions(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to fetch bank feed: %w", err)
	}

	// Step 3: Match
	matched := findMatchingTransaction(transactions, topup)
	if matched == nil {
		return false, nil
	}

	// Step 4: Settle
	if err := s.settleMatchedTopup(ctx, topup, matched); err != nil {
		return false, err
	}

	s.invalidateBalanceCache(ctx, topup.UserID)

	logger.Info("qr topup reconciled", map[string]interface{}{
		"topup_code":    topup.TopupCode,
		"user_id":       topup.UserID.String(),
		"amount":        topup.Amount,
		"bank_txn_id":   matched.TransactionID,
		"transfer_date": matched.TransactionDate,
	})
	return true, nil
}

// ReconcileUserPendingTopups matches every pending QR entry of one user in a
// single pass ("check now" từ UI). One statement fetch, nhiều entry.
func (s *reconcileService) ReconcileUserPendingTopups(ctx context.Context, userID uuid.UUID) (int, error) {
	cutoff := time.Now().Add(-model.QRMatchWindowHours * time.Hour)
	pending, err := s.topupRepo.ListPendingQRByUserID(ctx, userID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending QR topups: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	transactions, err := s.bankFeed.GetRecentTransactions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch bank feed: %w", err)
	}

	settled := 0
	for _, topup := range pending {
		matched := findMatchingTransaction(transactions, topup)
		if matched == nil {
			continue
		}
		if err := s.settleMatchedTopup(ctx, topup, matched); err != nil {
			logger.Error("failed to settle matched topup", err)
			continue
		}
		settled++
		logger.Info("qr topup reconciled", map[string]interface{}{
			"topup_code":  topup.TopupCode,
			"user_id":     userID.String(),
			"amount":      topup.Amount,
			"bank_txn_id": matched.TransactionID,
		})
	}
	if settled > 0 {
		s.invalidateBalanceCache(ctx, userID)
	}
	return settled, nil
}

// settleMatchedTopup settles one matched bank transfer. Same lock order as
// the gateway notification path: entry row first, wallet row second.
func (s *reconcileService) settleMatchedTopup(ctx context.Context, topup *model.WalletTopup, bankTxn *bankfeed.Transaction) error {
	tx, err := s.txManager.BeginSerializableTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.txManager.RollbackTx(ctx, tx)

	locked, err := s.topupRepo.GetByCodeForUpdateWithTx(ctx, tx, topup.TopupCode)
	if err != nil {
		return fmt.Errorf("failed to lock topup entry: %w", err)
	}
	if locked.IsTerminal() {
		// attempt khác vừa settle xong - không sao, exactly-once giữ nguyên
		return nil
	}

	meta := repository.GatewayMeta{
		GatewayTxnNo: &bankTxn.TransactionID,
		PaymentDetails: map[string]interface{}{
			"source":          "qr_reconciliation",
			"bank_txn_id":     bankTxn.TransactionID,
			"transfer_date":   bankTxn.TransactionDate,
			"transfer_amount": bankTxn.Amount,
			"transfer_memo":   bankTxn.Description,
		},
	}
	if err := s.topupRepo.MarkCompletedWithTx(ctx, tx, locked.ID, meta); err != nil {
		return fmt.Errorf("failed to mark topup completed: %w", err)
	}

	wallet, err := s.walletRepo.GetByIDForUpdateWithTx(ctx, tx, locked.WalletID)
	if err != nil {
		return fmt.Errorf("failed to lock wallet: %w", err)
	}
	if err := s.walletRepo.CreditBalanceWithTx(ctx, tx, wallet.ID, locked.Amount); err != nil {
		return fmt.Errorf("failed to credit wallet: %w", err)
	}

	if err := s.txManager.CommitTx(ctx, tx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *reconcileService) invalidateBalanceCache(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.Delete(ctx, balanceCacheKeyPrefix+userID.String()); err != nil {
		logger.Error("failed to invalidate balance cache", err)
	}
}

// findMatchingTransaction scans the statement for the transfer that funds the
// entry: incoming, memo token == topup_code, exact amount, and dated at or
// after entry creation.
func findMatchingTransaction(transactions []bankfeed.Transaction, topup *model.WalletTopup) *bankfeed.Transaction {
	for i := range transactions {
		txn := &transactions[i]
		if txn.Type != bankfeed.DirectionIn {
			continue
		}
		if extractMemoToken(txn.Description) != topup.TopupCode {
			continue
		}
		if txn.Amount != topup.Amount {
			continue
		}
		txnTime, err := time.ParseInLocation(bankFeedDateLayout, txn.TransactionDate, time.Local)
		if err != nil {
			continue
		}
		// truncate to second: created_at mang microseconds từ Postgres còn
		// sao kê chỉ có độ phân giải giây
		if txnTime.Before(topup.CreatedAt.Truncate(time.Second)) {
			continue
		}
		return txn
	}
	return nil
}

// extractMemoToken pulls the topup code out of the free-text transfer memo.
// Bank proxy chèn token vào field thứ 4 của memo, ngăn cách bằng dấu chấm.
func extractMemoToken(description string) string {
	parts := strings.Split(description, ".")
	if len(parts) <= memoTokenIndex {
		return ""
	}
	return strings.TrimSpace(parts[memoTokenIndex])
}
