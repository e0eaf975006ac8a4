package job

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"licensestore-backend/internal/domains/wallet/service"
	"licensestore-backend/pkg/logger"
)

type ExpirePendingTopupsPayload struct{}

type ExpirePendingTopupsHandler struct {
	walletService service.WalletService
}

func NewExpirePendingTopupsHandler(walletService service.WalletService) *ExpirePendingTopupsHandler {
	return &ExpirePendingTopupsHandler{
		walletService: walletService,
	}
}

// ProcessTask cancels gateway topups stuck in pending past the TTL.
// Người dùng bỏ ngang trang thanh toán là trường hợp phổ biến nhất.
func (h *ExpirePendingTopupsHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	count, err := h.walletService.ExpirePendingTopups(ctx)
	if err != nil {
		logger.Error("Expire pending topups failed due to ", err)
		return err
	}

	log.Info().
		Int("cancelled", count).
		Msg("Expired pending topups housekeeping finished")
	return nil
}
