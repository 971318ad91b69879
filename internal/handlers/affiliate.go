// internal/handlers/affiliate.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/stackdrive/stackdrive-backend/internal/models"
	"github.com/stackdrive/stackdrive-backend/internal/services"
	"github.com/stackdrive/stackdrive-backend/internal/utils"
)

type AffiliateHandler struct {
	affiliateService  *services.AffiliateService
	settlementService *services.SettlementService
}

func NewAffiliateHandler(affiliateService *services.AffiliateService, settlementService *services.SettlementService) *AffiliateHandler {
	return &AffiliateHandler{
		affiliateService:  affiliateService,
		settlementService: settlementService,
	}
}

// Create registers an affiliate for one listing or link.
// POST /v1/affiliates
func (h *AffiliateHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", nil)
		return
	}

	affiliate, err := h.affiliateService.CreateAffiliate(userID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, affiliate)
}

// ListOwned returns affiliates on the caller's content.
// GET /v1/affiliates/owned
func (h *AffiliateHandler) ListOwned(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	affiliates, err := h.affiliateService.ListForOwner(userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, affiliates)
}

// ListMine returns agreements where the caller earns commission.
// GET /v1/affiliates/mine
func (h *AffiliateHandler) ListMine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	affiliates, err := h.affiliateService.ListForUser(userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, affiliates)
}

// SetStatus activates, deactivates, or suspends an affiliate.
// PUT /v1/affiliates/:id/status
func (h *AffiliateHandler) SetStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	affiliateID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", nil)
		return
	}

	if err := h.affiliateService.SetStatus(userID, affiliateID, models.AffiliateStatus(req.Status)); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"status": req.Status})
}

// Settle pays out the caller's pending commissions on-chain.
// POST /v1/affiliates/payments
func (h *AffiliateHandler) Settle(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", nil)
		return
	}

	summary, err := h.settlementService.SettlePending(c.Request.Context(), userID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, summary)
}

// Payments returns the caller's commission ledger as a content owner.
// GET /v1/affiliates/payments
func (h *AffiliateHandler) Payments(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	commissions, total, totals, err := h.settlementService.GetPayments(userID, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	result := utils.CreatePaginationResult(commissions, total, params)
	utils.SetPaginationHeaders(c, result)
	utils.SuccessResponseWithMeta(c, commissions, gin.H{
		"totals": totals,
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}

// Earnings returns the caller's commission ledger as an affiliate.
// GET /v1/affiliates/earnings
func (h *AffiliateHandler) Earnings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	earnings, total, err := h.settlementService.GetEarnings(userID, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(earnings, total, params))
}
