package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxFunc được execute trong transaction. Return error -> rollback.
type TxFunc func(pgx.Tx) error

// WithTransaction chạy fn trong một transaction: auto rollback khi fn
// trả về error hoặc panic, auto commit khi success.
// Dùng cho các thao tác multi-statement trong một repository; flows
// span nhiều repository (settlement, purchase) đi qua TransactionManager
// để service giữ quyền điều khiển tx.
func WithTransaction(ctx context.Context, pool *pgxpool.Pool, fn TxFunc) error {
	return withTransactionOpts(ctx, pool, pgx.TxOptions{}, fn)
}

// WithSerializableTransaction chạy fn ở SERIALIZABLE isolation.
func WithSerializableTransaction(ctx context.Context, pool *pgxpool.Pool, fn TxFunc) error {
	return withTransactionOpts(ctx, pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
}

// WithSerializableTransactionResult là variant có return value, dùng cho
// reads cần consistent snapshot qua nhiều query (statistics).
func WithSerializableTransactionResult[T any](ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) (T, error)) (T, error) {
	var result T
	var fnErr error

	err := WithSerializableTransaction(ctx, pool, func(tx pgx.Tx) error {
		result, fnErr = fn(tx)
		return fnErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func withTransactionOpts(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn TxFunc) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			tx.Rollback(ctx)
		}
	}()

	err = fn(tx)
	if err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
