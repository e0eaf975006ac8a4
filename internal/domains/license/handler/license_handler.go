package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"licensestore-backend/internal/domains/license/model"
	"licensestore-backend/internal/domains/license/service"
	walletmodel "licensestore-backend/internal/domains/wallet/model"
	"licensestore-backend/internal/shared/middleware"
	"licensestore-backend/internal/shared/response"
)

// =====================================================
// LICENSE HANDLER
// =====================================================
type LicenseHandler struct {
	licenseService service.LicenseService
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(licenseService service.LicenseService) *LicenseHandler {
	return &LicenseHandler{licenseService: licenseService}
}

// =====================================================
// ROUTES REGISTRATION
// =====================================================

// RegisterRoutes registers authenticated license routes
func (h *LicenseHandler) RegisterRoutes(router *gin.RouterGroup) {
	// User routes (protected by auth middleware)
	userRoutes := router.Group("/licenses")
	{
		userRoutes.POST("/purchase", h.PurchaseKey) // POST /v1/licenses/purchase
		userRoutes.GET("/mine", h.GetMyKeys)        // GET /v1/licenses/mine
		userRoutes.GET("/orders", h.GetMyOrders)    // GET /v1/licenses/orders?page=1&limit=20
	}

	// Admin routes (role check on top of auth)
	adminRoutes := router.Group("/admin/licenses")
	adminRoutes.Use(middleware.AdminMiddleware())
	{
		adminRoutes.GET("", h.ListKeys)               // GET /v1/admin/licenses?duration=30d&is_used=false
		adminRoutes.GET("/stats", h.GetKeyStats)      // GET /v1/admin/licenses/stats
		adminRoutes.POST("/sync", h.SyncKeys)         // POST /v1/admin/licenses/sync
		adminRoutes.POST("/generate", h.GenerateKeys) // POST /v1/admin/licenses/generate
	}
}

// RegisterPublicRoutes registers routes that need no JWT (bảng giá)
func (h *LicenseHandler) RegisterPublicRoutes(router *gin.RouterGroup) {
	router.GET("/licenses/prices", h.GetPrices) // GET /v1/licenses/prices
}

// =====================================================
// PURCHASE
// =====================================================

// PurchaseKey godoc
// @Summary Buy a license key with wallet balance
// @Description Allocate the oldest unused key of the duration, debit the wallet
// @Description and record the order - all in one transaction
// @Tags License
// @Accept json
// @Produce json
// @Param request body model.PurchaseKeyRequest true "Purchase request"
// @Success 201 {object} response.Response{data=model.PurchaseKeyResponse}
// @Failure 409 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /v1/licenses/purchase [post]
func (h *LicenseHandler) PurchaseKey(c *gin.Context) {
	userID, ok := h.userIDFromContext(c)
	if !ok {
		return
	}

	var req model.PurchaseKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	result, err := h.licenseService.PurchaseKey(c.Request.Context(), userID, req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, result)
}

// =====================================================
// QUERIES
// =====================================================

// GetMyKeys godoc
// @Summary List the caller's purchased keys
// @Tags License
// @Produce json
// @Success 200 {object} response.Response{data=[]model.LicenseKey}
// @Router /v1/licenses/mine [get]
func (h *LicenseHandler) GetMyKeys(c *gin.Context) {
	userID, ok := h.userIDFromContext(c)
	if !ok {
		return
	}

	keys, err := h.licenseService.GetMyKeys(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, keys)
}

func (h *LicenseHandler) GetMyOrders(c *gin.Context) {
	userID, ok := h.userIDFromContext(c)
	if !ok {
		return
	}

	var query paginationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}
	query.normalize()

	orders, total, err := h.licenseService.GetMyOrders(c.Request.Context(), userID, query.Page, query.Limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, orders, &response.Meta{
		Page:  query.Page,
		Limit: query.Limit,
		Total: total,
	})
}

// GetPrices returns the public duration price table
func (h *LicenseHandler) GetPrices(c *gin.Context) {
	response.Success(c, http.StatusOK, h.licenseService.GetPrices())
}

// =====================================================
// ADMIN
// =====================================================

// SyncKeys godoc
// @Summary Mirror the upstream key inventory into the local table
// @Tags License
// @Produce json
// @Success 200 {object} response.Response{data=model.SyncResult}
// @Failure 502 {object} response.Response
// @Router /v1/admin/licenses/sync [post]
func (h *LicenseHandler) SyncKeys(c *gin.Context) {
	result, err := h.licenseService.SyncKeys(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GenerateKeys godoc
// @Summary Mint new keys upstream and mirror them locally
// @Tags License
// @Accept json
// @Produce json
// @Param request body model.GenerateKeysRequest true "Generate request"
// @Success 201 {object} response.Response{data=model.GenerateKeysResponse}
// @Router /v1/admin/licenses/generate [post]
func (h *LicenseHandler) GenerateKeys(c *gin.Context) {
	var req model.GenerateKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	result, err := h.licenseService.GenerateKeys(c.Request.Context(), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, result)
}

func (h *LicenseHandler) ListKeys(c *gin.Context) {
	var query model.KeyListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	keys, total, err := h.licenseService.ListKeys(c.Request.Context(), query)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	query.Normalize()
	response.SuccessWithMeta(c, http.StatusOK, keys, &response.Meta{
		Page:  query.Page,
		Limit: query.Limit,
		Total: total,
	})
}

func (h *LicenseHandler) GetKeyStats(c *gin.Context) {
	stats, err := h.licenseService.GetKeyStats(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// =====================================================
// HELPERS
// =====================================================

type paginationQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

func (q *paginationQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}
}

// userIDFromContext reads the user id set by the auth middleware. Writes the
// 401 itself so call sites stay one-liners.
func (h *LicenseHandler) userIDFromContext(c *gin.Context) (uuid.UUID, bool) {
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

// handleServiceError maps domain errors to HTTP statuses
func (h *LicenseHandler) handleServiceError(c *gin.Context, err error) {
	var licErr *model.LicenseError
	var walletErr *walletmodel.WalletError
	code := model.ErrCodeInternalError
	if errors.As(err, &licErr) {
		code = licErr.Code
	} else if errors.As(err, &walletErr) {
		code = walletErr.Code
	}

	switch {
	case errors.Is(err, model.ErrUnknownDuration):
		response.ErrorResponse(c, http.StatusUnprocessableEntity, code, err.Error())
	case errors.Is(err, walletmodel.ErrInsufficientBalance):
		response.ErrorResponse(c, http.StatusUnprocessableEntity, code, err.Error())
	case errors.Is(err, model.ErrNoAvailableKey):
		response.ErrorResponse(c, http.StatusConflict, code, err.Error())
	case errors.Is(err, model.ErrKeyNotFound):
		response.ErrorResponse(c, http.StatusNotFound, code, err.Error())
	case code == model.ErrCodeUpstreamUnavailable:
		response.ErrorResponse(c, http.StatusBadGateway, code, "License inventory service is temporarily unavailable")
	default:
		response.InternalServerError(c, "Something went wrong")
	}
}
