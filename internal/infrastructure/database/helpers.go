package database

import (
	"context"
	"log"
	"time"
)

// Close đóng pool và cleanup. Safe to call nhiều lần.
func (db *PostgresDB) Close() error {
	if db.Pool == nil {
		return nil
	}

	log.Println("[DATABASE] Closing database connection pool...")
	db.Pool.Close()
	db.Pool = nil
	log.Println("[DATABASE] Connection pool closed")
	return nil
}

// MonitorPool log cảnh báo khi pool sắp cạn hoặc acquire chậm.
// Chạy trong goroutine riêng, dừng khi ctx bị cancel.
// Settlement và purchase đều giữ row locks trong serializable tx,
// nên pool exhaustion ở đây thường là dấu hiệu lock contention.
func (db *PostgresDB) MonitorPool(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if db.Pool == nil {
				continue
			}
			stats := db.Pool.Stat()

			utilization := float64(stats.AcquiredConns()) / float64(stats.MaxConns()) * 100
			if utilization > 80 {
				log.Printf("[MONITOR] High pool utilization: %.1f%% (%d/%d)",
					utilization, stats.AcquiredConns(), stats.MaxConns())
			}

			if count := stats.AcquireCount(); count > 0 {
				avgAcquire := stats.AcquireDuration() / time.Duration(count)
				if avgAcquire > 100*time.Millisecond {
					log.Printf("[MONITOR] High acquire latency: %v", avgAcquire)
				}

				cancelRate := float64(stats.CanceledAcquireCount()) / float64(count) * 100
				if cancelRate > 5 {
					log.Printf("[MONITOR] High acquire cancel rate: %.1f%%", cancelRate)
				}
			}

		case <-ctx.Done():
			log.Println("[MONITOR] Stopping pool monitoring")
			return
		}
	}
}
