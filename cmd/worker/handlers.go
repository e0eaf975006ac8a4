package main

import (
	"github.com/hibiken/asynq"

	licenseJob "licensestore-backend/internal/domains/license/job"
	walletJob "licensestore-backend/internal/domains/wallet/job"
	"licensestore-backend/internal/shared"
	"licensestore-backend/pkg/container"
)

// HandlerRegistry holds all job handlers
type HandlerRegistry struct {
	// Wallet handlers
	reconcileQRTopup    *walletJob.ReconcileQRTopupHandler
	expirePendingTopups *walletJob.ExpirePendingTopupsHandler

	// License handlers
	syncLicenseKeys *licenseJob.SyncLicenseKeysHandler
}

// initializeHandlers creates all job handlers with their dependencies
func initializeHandlers(c *container.Container) *HandlerRegistry {
	return &HandlerRegistry{
		// Wallet: QR reconciliation chain + pending-topup housekeeping
		reconcileQRTopup:    walletJob.NewReconcileQRTopupHandler(c.ReconcileService, c.Queue),
		expirePendingTopups: walletJob.NewExpirePendingTopupsHandler(c.WalletService),

		// License: upstream inventory mirror
		syncLicenseKeys: licenseJob.NewSyncLicenseKeysHandler(c.LicenseService),
	}
}

// RegisterHandlers registers all handlers with the mux
func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	// Wallet tasks
	mux.HandleFunc(shared.TypeReconcileQRTopup, h.reconcileQRTopup.ProcessTask)
	mux.HandleFunc(shared.TypeExpirePendingTopups, h.expirePendingTopups.ProcessTask)

	// License tasks
	mux.HandleFunc(shared.TypeSyncLicenseKeys, h.syncLicenseKeys.ProcessTask)
}
