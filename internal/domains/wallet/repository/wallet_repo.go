package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"licensestore-backend/internal/domains/wallet/model"
)

// =====================================================
// WALLET REPOSITORY IMPLEMENTATION
// =====================================================
type walletRepository struct {
	pool *pgxpool.Pool
}

func NewWalletRepository(pool *pgxpool.Pool) WalletRepoInterface {
	return &walletRepository{pool: pool}
}

const walletColumns = `
	id, user_id, balance, currency, is_active,
	last_transaction_at, created_at, updated_at
`

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	var w model.Wallet
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Balance,
		&w.Currency,
		&w.IsActive,
		&w.LastTransactionAt,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// =====================================================
// TRANSACTION-AWARE METHODS
// =====================================================

// GetByUserIDForUpdateWithTx locks the wallet row for the rest of the transaction
func (r *walletRepository) GetByUserIDForUpdateWithTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*model.Wallet, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE
	`

	wallet, err := scanWallet(tx.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to lock wallet for user %s: %w", userID, err)
	}
	return wallet, nil
}

func (r *walletRepository) GetByIDForUpdateWithTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (*model.Wallet, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`

	wallet, err := scanWallet(tx.QueryRow(ctx, query, walletID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to lock wallet %s: %w", walletID, err)
	}
	return wallet, nil
}

// CreditBalanceWithTx áp dụng balance += amount.
// Caller phải giữ row lock sẵn (GetBy*ForUpdateWithTx).
func (r *walletRepository) CreditBalanceWithTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	query := `
		UPDATE wallets
		SET balance = balance + $1,
			last_transaction_at = NOW(),
			updated_at = NOW()
		WHERE id = $2
	`

	result, err := tx.Exec(ctx, query, amount, walletID)
	if err != nil {
		return fmt.Errorf("failed to credit wallet %s: %w", walletID, err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrWalletNotFound
	}
	return nil
}

// DebitBalanceWithTx áp dụng balance -= amount, re-check balance >= amount
// ngay trong SQL. Hai purchase đồng thời cùng pass precondition thì chỉ một
// request qua được check này.
func (r *walletRepository) DebitBalanceWithTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	query := `
		UPDATE wallets
		SET balance = balance - $1,
			last_transaction_at = NOW(),
			updated_at = NOW()
		WHERE id = $2 AND balance >= $1
	`

	result, err := tx.Exec(ctx, query, amount, walletID)
	if err != nil {
		return fmt.Errorf("failed to debit wallet %s: %w", walletID, err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrInsufficientBalance
	}
	return nil
}

// =====================================================
// STANDALONE METHODS
// =====================================================

func (r *walletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = $1
	`

	wallet, err := scanWallet(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet for user %s: %w", userID, err)
	}
	return wallet, nil
}

func (r *walletRepository) Create(ctx context.Context, wallet *model.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, balance, currency, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		wallet.ID,
		wallet.UserID,
		wallet.Balance,
		wallet.Currency,
		wallet.IsActive,
	).Scan(&wallet.CreatedAt, &wallet.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// unique constraint trên user_id - wallet đã tồn tại
			return model.ErrWalletNotFound
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// GetOrCreate: get-or-create chống double-create bằng unique constraint.
// Hai request đồng thời: một INSERT thành công, một dính 23505 rồi re-read.
func (r *walletRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	wallet, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, model.ErrWalletNotFound) {
		return nil, err
	}

	newWallet := &model.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Balance:  0,
		Currency: model.DefaultCurrency,
		IsActive: true,
	}

	query := `
		INSERT INTO wallets (id, user_id, balance, currency, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		newWallet.ID,
		newWallet.UserID,
		newWallet.Balance,
		newWallet.Currency,
		newWallet.IsActive,
	).Scan(&newWallet.CreatedAt, &newWallet.UpdatedAt)

	if err == nil {
		return newWallet, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		// Thua race - row đã được request khác insert, đọc lại
		return r.GetByUserID(ctx, userID)
	}
	return nil, fmt.Errorf("failed to get or create wallet for user %s: %w", userID, err)
}
