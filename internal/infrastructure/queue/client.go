package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"licensestore-backend/internal/shared"
	"licensestore-backend/pkg/logger"
)

// Client wraps the asynq client for task enqueueing from the API process.
// Implement các enqueuer interface mà domain service cần.
type Client struct {
	client *asynq.Client
}

func NewClient(redisAddress string) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddress}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueReconcileQRTopup schedules one QR reconciliation attempt
func (c *Client) EnqueueReconcileQRTopup(ctx context.Context, userID uuid.UUID, topupCode string, attempt, delaySeconds int) error {
	payload, err := json.Marshal(shared.ReconcileQRTopupPayload{
		UserID:    userID.String(),
		TopupCode: topupCode,
		Attempt:   attempt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal reconcile payload: %w", err)
	}

	task := asynq.NewTask(shared.TypeReconcileQRTopup, payload)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(shared.QueueDefault),
		asynq.ProcessIn(time.Duration(delaySeconds)*time.Second),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue reconcile task: %w", err)
	}

	logger.Info("reconcile task enqueued", map[string]interface{}{
		"task_id":    info.ID,
		"topup_code": topupCode,
		"attempt":    attempt,
		"delay_sec":  delaySeconds,
	})
	return nil
}

// EnqueueSyncLicenseKeys triggers an on-demand inventory sync
func (c *Client) EnqueueSyncLicenseKeys(ctx context.Context) error {
	task := asynq.NewTask(shared.TypeSyncLicenseKeys, nil)
	_, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(shared.QueueLow),
		asynq.MaxRetry(2),
		asynq.Timeout(5*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue license sync task: %w", err)
	}
	return nil
}
