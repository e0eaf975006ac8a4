package job

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"licensestore-backend/internal/domains/wallet/service"
	"licensestore-backend/internal/shared"
	"licensestore-backend/pkg/logger"
)

// delay giữa hai attempt - khớp với thời gian bank proxy refresh sao kê
const reconcileRetryDelaySeconds = 60

type ReconcileQRTopupHandler struct {
	reconcileService service.ReconcileService
	enqueuer         service.TaskEnqueuer
}

func NewReconcileQRTopupHandler(reconcileService service.ReconcileService, enqueuer service.TaskEnqueuer) *ReconcileQRTopupHandler {
	return &ReconcileQRTopupHandler{
		reconcileService: reconcileService,
		enqueuer:         enqueuer,
	}
}

// ProcessTask runs one reconciliation attempt. Không match thì tự schedule
// attempt kế tiếp; hết MaxReconcileAttempts thì dừng chain, entry vẫn pending
// và user có thể bấm "check now" hoặc chờ manual reconciliation.
func (h *ReconcileQRTopupHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload shared.ReconcileQRTopupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Error("Unmarshal fail due to ", err)
		return err
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		logger.Error("Invalid user id in reconcile payload", err)
		return nil // payload hỏng, retry cũng vô ích
	}

	log.Info().
		Str("topup_code", payload.TopupCode).
		Int("attempt", payload.Attempt).
		Msg("Running QR topup reconciliation attempt")

	done, err := h.reconcileService.ReconcileQRTopup(ctx, userID, payload.TopupCode)
	if err != nil {
		// asynq retry lo transient errors (bank proxy down etc.)
		logger.Error("Reconciliation attempt failed due to ", err)
		return err
	}
	if done {
		return nil
	}

	if payload.Attempt >= shared.MaxReconcileAttempts {
		log.Info().
			Str("topup_code", payload.TopupCode).
			Int("attempts", payload.Attempt).
			Msg("Reconciliation attempts exhausted, entry left pending")
		return nil
	}

	if err := h.enqueuer.EnqueueReconcileQRTopup(ctx, userID, payload.TopupCode, payload.Attempt+1, reconcileRetryDelaySeconds); err != nil {
		logger.Error("Failed to schedule next reconciliation attempt", err)
		return err
	}
	return nil
}
