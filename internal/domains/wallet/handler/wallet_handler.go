package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"licensestore-backend/internal/domains/wallet/model"
	"licensestore-backend/internal/domains/wallet/service"
	"licensestore-backend/internal/shared/middleware"
	"licensestore-backend/internal/shared/response"
)

// =====================================================
// WALLET HANDLER
// =====================================================
type WalletHandler struct {
	walletService    service.WalletService
	reconcileService service.ReconcileService
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(walletService service.WalletService, reconcileService service.ReconcileService) *WalletHandler {
	return &WalletHandler{
		walletService:    walletService,
		reconcileService: reconcileService,
	}
}

// =====================================================
// ROUTES REGISTRATION
// =====================================================

// RegisterRoutes registers authenticated wallet routes
func (h *WalletHandler) RegisterRoutes(router *gin.RouterGroup) {
	// User routes (protected by auth middleware)
	userRoutes := router.Group("/wallet")
	{
		userRoutes.GET("/balance", h.GetBalance)                // GET /v1/wallet/balance
		userRoutes.POST("/topups", h.CreateTopup)               // POST /v1/wallet/topups
		userRoutes.POST("/topups/qr", h.CreateQRTopup)          // POST /v1/wallet/topups/qr
		userRoutes.POST("/topups/qr/check", h.CheckQRTopups)    // POST /v1/wallet/topups/qr/check
		userRoutes.GET("/topups", h.GetTopupHistory)            // GET /v1/wallet/topups?page=1&limit=20&status=pending
		userRoutes.GET("/topups/:code", h.GetTopupDetail)       // GET /v1/wallet/topups/TOPUP_20260831_AB12CD34
		userRoutes.PATCH("/topups/:code/cancel", h.CancelTopup) // PATCH /v1/wallet/topups/:code/cancel
	}

	// Admin routes (role check on top of auth)
	adminRoutes := router.Group("/admin/wallet")
	adminRoutes.Use(middleware.AdminMiddleware())
	{
		adminRoutes.POST("/credit", h.AdminCredit)           // POST /v1/admin/wallet/credit
		adminRoutes.GET("/statistics", h.GetTopupStatistics) // GET /v1/admin/wallet/statistics
	}
}

// RegisterCallbackRoutes registers the unauthenticated gateway callbacks.
// IPN đến từ server VNPay, return đến từ browser - cả hai không có JWT.
func (h *WalletHandler) RegisterCallbackRoutes(router *gin.RouterGroup) {
	callbacks := router.Group("/payments/vnpay")
	{
		callbacks.GET("/ipn", h.HandleGatewayNotification) // GET /v1/payments/vnpay/ipn
		callbacks.GET("/return", h.HandleReturnRedirect)   // GET /v1/payments/vnpay/return
	}
}

// =====================================================
// CREATE TOPUP
// =====================================================

// CreateTopup godoc
// @Summary Create a gateway topup
// @Description Create a pending topup and return the signed VNPay redirect URL
// @Tags Wallet
// @Accept json
// @Produce json
// @Param request body model.CreateTopupRequest true "Topup request"
// @Success 201 {object} response.Response{data=model.CreateTopupResponse}
// @Failure 400 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /v1/wallet/topups [post]
func (h *WalletHandler) CreateTopup(c *gin.Context) {
	userID, ok := h.userIDFromContext(c)
	if !ok {
		return
	}

	var req model.CreateTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	result, err := h.walletService.CreateTopup(c.Request.Context(), userID, req, h.clientIP(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, result)
}

// CreateQRTopup godoc
// @Summary Create a QR bank-transfer topup
// @Description Create a pending topup settled by bank statement reconciliation
// @Tags Wallet
// @Accept json
// @Produce json
// @Param request body model.CreateQRTopupRequest true "Topup request"
// @Success 201 {object} response.Response{data=model.CreateQRTopupResponse}
// @Router /v1/wallet/topups/qr [post]
func (h *WalletHandler) CreateQRTopup(c *gin.Context) {
	userID, ok := h.userIDFromContext(c)
	if !ok {
		return
	}

	var req model.CreateQRTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	result, err := h.walletService.CreateQRTopup(c.Request.Context(), userID, req, h.clientIP(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, result)
}

// CheckQRTopups triggers an on-demand reconciliation pass for the caller's
// pending QR topups ("I already transferred" button)
func (h *WalletHandler) CheckQRTopups(c *gin.Context) {
	userID, ok := h.userIDFromContext(c)
	if !ok {
		return
	}

	settled, err := h.reconcileService.ReconcileUserPendingTopups(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"settled": settled})
}

// =====================================================
// GATEWAY CALLBACKS
// =====================================================

// HandleGatewayNotification godoc
// @Summary VNPay IPN endpoint
// @Description Settle a gateway notification. Response body follows the VNPay
// @Description ack contract, not the API envelope - HTTP status is always 200
// @Description so the gateway's retry logic is driven by RspCode alone.
// @Tags Wallet
// @Produce json
// @Success 200 {object} model.NotificationAck
// @Router /v1/payments/vnpay/ipn [get]
func (h *WalletHandler) HandleGatewayNotification(c *gin.Context) {
	params := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	ack := h.walletService.ProcessGatewayNotification(c.Request.Context(), params)
	c.JSON(http.StatusOK, ack)
}

// HandleReturnRedirect reports the payment outcome to the returning browser.
// Read-only: nếu IPN chưa đến thì status vẫn là pending.
func (h *WalletHandler) HandleReturnRedirect(c *gin.Context) {
	params := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	result := h.walletService.VerifyReturnRedirect(c.Request.Context(), params)
	if !result.IsValid {
		response.ErrorWithDetails(c, http.StatusBadRequest, model.ErrCodeInvalidSignature, "Invalid payment verification data", result)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// =====================================================
// QUERIES
// =====================================================

// GetBalance godoc
// @Summary Get wallet balance
// @Tags Wallet
// @Produce json
// @Success 200 {object} response.Response{data=model.BalanceResponse}
// @Router /v1/wallet/balance [get]
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := h.userIDFromContext(c)
	if !ok {
		return
	}

	balance, err := h.walletService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, balance)
}

// GetTopupHistory godoc
// @Summary List own topups
// @Tags Wallet
// @Produce json
// @Param page query int false "Page (default 1)"
// @Param limit query int false "Page size (default 20, max 100)"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Response{data=[]model.WalletTopup}
// @Router /v1/wallet/topups [get]
func (h *WalletHandler) GetTopupHistory(c *gin.Context) {
	userID, ok := h.userIDFromContext(c)
	if !ok {
		return
	}

	var query model.TopupHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	topups, total, err := h.walletService.GetTopupHistory(c.Request.Context(), userID, query)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	query.Normalize()
	response.SuccessWithMeta(c, http.StatusOK, topups, &response.Meta{
		Page:  query.Page,
		Limit: query.Limit,
		Total: total,
	})
}

func (h *WalletHandler) GetTopupDetail(c *gin.Context) {
	userID, ok := h.userIDFromContext(c)
	if !ok {
		return
	}

	topup, err := h.walletService.GetTopupDetail(c.Request.Context(), userID, c.Param("code"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, topup)
}

// CancelTopup cancels one of the caller's pending topups
func (h *WalletHandler) CancelTopup(c *gin.Context) {
	userID, ok := h.userIDFromContext(c)
	if !ok {
		return
	}

	if err := h.walletService.CancelTopup(c.Request.Context(), userID, c.Param("code")); err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}

// =====================================================
// ADMIN
// =====================================================

// AdminCredit godoc
// @Summary Credit a user's wallet manually
// @Tags Wallet
// @Accept json
// @Produce json
// @Param request body model.AdminCreditRequest true "Credit request"
// @Success 200 {object} response.Response{data=model.WalletTopup}
// @Router /v1/admin/wallet/credit [post]
func (h *WalletHandler) AdminCredit(c *gin.Context) {
	var req model.AdminCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	topup, err := h.walletService.AdminCreditWallet(c.Request.Context(), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, topup)
}

func (h *WalletHandler) GetTopupStatistics(c *gin.Context) {
	stats, err := h.walletService.GetTopupStatistics(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// =====================================================
// HELPERS
// =====================================================

// userIDFromContext reads the user id set by the auth middleware. Writes the
// 401 itself so call sites stay one-liners.
func (h *WalletHandler) userIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get("userID")
	if !exists {
		response.Unauthorized(c, "Authentication required")
		return uuid.Nil, false
	}

	switch v := raw.(type) {
	case uuid.UUID:
		return v, true
	case string:
		userID, err := uuid.Parse(v)
		if err != nil {
			response.Unauthorized(c, "Authentication required")
			return uuid.Nil, false
		}
		return userID, true
	default:
		response.Unauthorized(c, "Authentication required")
		return uuid.Nil, false
	}
}

// clientIP prefers the value resolved by the client-ip middleware
func (h *WalletHandler) clientIP(c *gin.Context) string {
	if ip, exists := c.Get("client_ip"); exists {
		if s, ok := ip.(string); ok && s != "" {
			return s
		}
	}
	return c.ClientIP()
}

// handleServiceError maps domain errors to HTTP statuses
func (h *WalletHandler) handleServiceError(c *gin.Context, err error) {
	var walletErr *model.WalletError
	code := model.ErrCodeInternalError
	if errors.As(err, &walletErr) {
		code = walletErr.Code
	}

	switch {
	case errors.Is(err, model.ErrTopupNotFound), errors.Is(err, model.ErrWalletNotFound):
		response.ErrorResponse(c, http.StatusNotFound, code, err.Error())
	case errors.Is(err, model.ErrTopupNotCancellable), errors.Is(err, model.ErrTopupAlreadyFinal):
		response.ErrorResponse(c, http.StatusConflict, code, err.Error())
	case errors.Is(err, model.ErrInvalidTopupAmount), errors.Is(err, model.ErrInsufficientBalance):
		response.ErrorResponse(c, http.StatusUnprocessableEntity, code, err.Error())
	case errors.Is(err, model.ErrWalletInactive):
		response.ErrorResponse(c, http.StatusForbidden, code, err.Error())
	case code == model.ErrCodeGatewayUnavailable:
		response.ErrorResponse(c, http.StatusBadGateway, code, "Payment gateway is temporarily unavailable")
	default:
		response.InternalServerError(c, "Something went wrong")
	}
}
