// internal/handlers/shared_link.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stackdrive/stackdrive-backend/internal/payproto"
	"github.com/stackdrive/stackdrive-backend/internal/services"
	"github.com/stackdrive/stackdrive-backend/internal/utils"
)

type SharedLinkHandler struct {
	sharedLinkService *services.SharedLinkService
	purchaseService   *services.PurchaseService
}

func NewSharedLinkHandler(sharedLinkService *services.SharedLinkService, purchaseService *services.PurchaseService) *SharedLinkHandler {
	return &SharedLinkHandler{
		sharedLinkService: sharedLinkService,
		purchaseService:   purchaseService,
	}
}

// Create makes a public or monetized link for an owned item.
// POST /v1/shared-links
func (h *SharedLinkHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateSharedLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", nil)
		return
	}

	link, err := h.sharedLinkService.CreateLink(userID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, link)
}

// Resolve previews a link: the item's metadata plus whether payment is due.
// GET /v1/shared-links/:token
func (h *SharedLinkHandler) Resolve(c *gin.Context) {
	link, err := h.sharedLinkService.ResolveByToken(c.Param("token"))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, link)
}

// Save copies the linked item into the caller's drive. Free for public
// links; monetized links require prior payment via Pay.
// POST /v1/shared-links/:token/save
func (h *SharedLinkHandler) Save(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	item, err := h.sharedLinkService.SaveToDrive(userID, c.Param("token"))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, item)
}

// Pay settles a monetized link. Without an X-Payment header the response is
// 402 with the requirements; with one, the proof is verified, the sale is
// recorded, and the item is copied into the payer's drive.
// POST /v1/shared-links/:token/pay
func (h *SharedLinkHandler) Pay(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	token := c.Param("token")

	paymentHeader := c.GetHeader(payproto.PaymentHeader)
	if paymentHeader == "" {
		req, err := h.purchaseService.LinkRequirements(token)
		if err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusPaymentRequired, utils.APIResponse{
			Success: false,
			Data:    gin.H{"payment_requirements": req},
			Error: &utils.APIError{
				Code:    "PAYMENT_REQUIRED",
				Message: "payment proof required",
			},
		})
		return
	}

	affiliateCode := c.GetHeader(AffiliateCodeHeader)
	if affiliateCode == "" {
		affiliateCode = c.Query("ref")
	}

	result, err := h.purchaseService.PaySharedLink(c.Request.Context(), userID, token, paymentHeader, affiliateCode)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, result)
}

// Revoke deactivates a link.
// DELETE /v1/shared-links/:token
func (h *SharedLinkHandler) Revoke(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.sharedLinkService.RevokeLink(userID, c.Param("token")); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"revoked": true})
}

// List returns the caller's links.
// GET /v1/shared-links
func (h *SharedLinkHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	links, err := h.sharedLinkService.ListForOwner(userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, links)
}
