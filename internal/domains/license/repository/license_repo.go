package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"licensestore-backend/internal/domains/license/model"
	"licensestore-backend/internal/shared/utils"
	"licensestore-backend/pkg/database"
)

// =====================================================
// LICENSE KEY REPOSITORY IMPLEMENTATION
// =====================================================
type licenseRepository struct {
	pool *pgxpool.Pool
}

func NewLicenseRepository(pool *pgxpool.Pool) LicenseRepoInterface {
	return &licenseRepository{pool: pool}
}

const licenseColumns = `
	id, external_id, key, duration, is_active, is_used,
	purchased_by, purchased_at, created_at, updated_at
`

func scanLicenseKey(row pgx.Row) (*model.LicenseKey, error) {
	var k model.LicenseKey
	err := row.Scan(
		&k.ID,
		&k.ExternalID,
		&k.Key,
		&k.Duration,
		&k.IsActive,
		&k.IsUsed,
		&k.PurchasedBy,
		&k.PurchasedAt,
		&k.CreatedAt,
		&k.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// AllocateOldestUnusedWithTx drains inventory in FIFO order. SKIP LOCKED để
// hai purchase đồng thời lấy hai row khác nhau thay vì chờ nhau.
func (r *licenseRepository) AllocateOldestUnusedWithTx(ctx context.Context, tx pgx.Tx, duration string) (*model.LicenseKey, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM license_keys
		WHERE duration = $1 AND is_used = FALSE AND is_active = TRUE
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, licenseColumns)

	key, err := scanLicenseKey(tx.QueryRow(ctx, query, duration))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNoAvailableKey
		}
		return nil, fmt.Errorf("failed to allocate license key: %w", err)
	}
	return key, nil
}

func (r *licenseRepository) MarkUsedWithTx(ctx context.Context, tx pgx.Tx, keyID, userID uuid.UUID) error {
	result, err := tx.Exec(ctx, `
		UPDATE license_keys
		SET is_used = TRUE, purchased_by = $1, purchased_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND is_used = FALSE
	`, userID, keyID)
	if err != nil {
		return fmt.Errorf("failed to mark license key used: %w", err)
	}
	if result.RowsAffected() == 0 {
		return model.ErrNoAvailableKey
	}
	return nil
}

// Upsert mirrors one upstream key. Insert theo key string; conflict thì chỉ
// update khi external_id hoặc is_active thực sự đổi.
func (r *licenseRepository) Upsert(ctx context.Context, key *model.LicenseKey) (created bool, updated bool, err error) {
	err = database.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO license_keys (id, external_id, key, duration, is_active, is_used, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, FALSE, NOW(), NOW())
			ON CONFLICT (key) DO NOTHING
		`, key.ID, key.ExternalID, key.Key, key.Duration, key.IsActive)
		if err != nil {
			return fmt.Errorf("failed to insert license key: %w", err)
		}
		if tag.RowsAffected() == 1 {
			created = true
			return nil
		}

		// key đã tồn tại - sync lại external_id/is_active, không đụng is_used
		tag, err = tx.Exec(ctx, `
			UPDATE license_keys
			SET external_id = $1, is_active = $2, updated_at = NOW()
			WHERE key = $3 AND (external_id <> $1 OR is_active <> $2)
		`, key.ExternalID, key.IsActive, key.Key)
		if err != nil {
			return fmt.Errorf("failed to update license key: %w", err)
		}
		updated = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, false, err
	}
	return created, updated, nil
}

func (r *licenseRepository) ListByPurchaser(ctx context.Context, userID uuid.UUID) ([]*model.LicenseKey, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM license_keys
		WHERE purchased_by = $1
		ORDER BY purchased_at DESC
	`, licenseColumns)

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchased keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.LicenseKey
	for rows.Next() {
		k, err := scanLicenseKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *licenseRepository) List(ctx context.Context, query model.KeyListQuery) ([]*model.LicenseKey, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argIdx := 1

	if query.Duration != "" {
		conditions = append(conditions, fmt.Sprintf("duration = $%d", argIdx))
		args = append(args, query.Duration)
		argIdx++
	}
	if query.IsUsed != nil {
		conditions = append(conditions, fmt.Sprintf("is_used = $%d", argIdx))
		args = append(args, *query.IsUsed)
		argIdx++
	}
	if query.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *query.IsActive)
		argIdx++
	}
	where := utils.JoinWithAnd(conditions)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM license_keys WHERE %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count license keys: %w", err)
	}

	listQuery := fmt.Sprintf(`
		SELECT %s FROM license_keys
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, licenseColumns, where, argIdx, argIdx+1)
	args = append(args, query.Limit, (query.Page-1)*query.Limit)

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list license keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.LicenseKey
	for rows.Next() {
		k, err := scanLicenseKey(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan license key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, total, rows.Err()
}

func (r *licenseRepository) GetStats(ctx context.Context) (*model.KeyStats, error) {
	stats := &model.KeyStats{}

	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_used),
			COUNT(*) FILTER (WHERE NOT is_used AND is_active)
		FROM license_keys
	`).Scan(&stats.Total, &stats.Used, &stats.Available)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate key stats: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT
			duration,
			COUNT(*),
			COUNT(*) FILTER (WHERE is_used),
			COUNT(*) FILTER (WHERE NOT is_used AND is_active)
		FROM license_keys
		GROUP BY duration
		ORDER BY duration
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate per-duration stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d model.DurationStats
		if err := rows.Scan(&d.Duration, &d.Total, &d.Used, &d.Available); err != nil {
			return nil, fmt.Errorf("failed to scan duration stats: %w", err)
		}
		stats.ByDuration = append(stats.ByDuration, d)
	}
	return stats, rows.Err()
}
