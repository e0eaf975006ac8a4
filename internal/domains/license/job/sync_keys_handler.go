package job

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"licensestore-backend/internal/domains/license/service"
	"licensestore-backend/pkg/logger"
)

type SyncLicenseKeysHandler struct {
	licenseService service.LicenseService
}

func NewSyncLicenseKeysHandler(licenseService service.LicenseService) *SyncLicenseKeysHandler {
	return &SyncLicenseKeysHandler{
		licenseService: licenseService,
	}
}

// ProcessTask mirrors the upstream key inventory into the local table.
// Chạy định kỳ qua scheduler, admin cũng trigger được qua API.
func (h *SyncLicenseKeysHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	result, err := h.licenseService.SyncKeys(ctx)
	if err != nil {
		logger.Error("Sync license keys failed due to ", err)
		return err
	}

	log.Info().
		Int("synced", result.Synced).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Msg("License key inventory sync finished")
	return nil
}
