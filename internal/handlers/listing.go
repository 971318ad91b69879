// internal/handlers/listing.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stackdrive/stackdrive-backend/internal/payproto"
	"github.com/stackdrive/stackdrive-backend/internal/services"
	"github.com/stackdrive/stackdrive-backend/internal/utils"
)

// AffiliateCodeHeader carries an optional referral code on purchase requests.
const AffiliateCodeHeader = "X-Affiliate-Code"

type ListingHandler struct {
	listingService  *services.ListingService
	purchaseService *services.PurchaseService
}

func NewListingHandler(listingService *services.ListingService, purchaseService *services.PurchaseService) *ListingHandler {
	return &ListingHandler{
		listingService:  listingService,
		purchaseService: purchaseService,
	}
}

// Create lists an owned item for sale.
// POST /v1/listings
func (h *ListingHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", nil)
		return
	}

	listing, err := h.listingService.CreateListing(userID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, listing)
}

// Update edits a listing's price, copy, or status.
// PUT /v1/listings/:id
func (h *ListingHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", nil)
		return
	}

	listing, err := h.listingService.UpdateListing(listingID, userID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, listing)
}

// Get returns one listing.
// GET /v1/listings/:id
func (h *ListingHandler) Get(c *gin.Context) {
	listingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	listing, err := h.listingService.GetListing(listingID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, listing)
}

// Search returns active listings with search, sort, and pagination.
// GET /v1/listings
func (h *ListingHandler) Search(c *gin.Context) {
	params := services.ListingSearchParams{
		PaginationParams: utils.GetPaginationParams(c),
	}

	if raw := c.Query("seller_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, "invalid seller_id", nil)
			return
		}
		params.SellerID = &id
	}

	listings, total, err := h.listingService.SearchListings(params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(listings, total, params.PaginationParams))
}

// Purchase buys a listing. Without an X-Payment header the response is 402
// with the payment requirements the buyer must satisfy; with one, the proof
// is verified and the purchase completes.
// POST /v1/listings/:id/purchase
func (h *ListingHandler) Purchase(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	paymentHeader := c.GetHeader(payproto.PaymentHeader)
	if paymentHeader == "" {
		req, err := h.purchaseService.ListingRequirements(listingID)
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

	result, err := h.purchaseService.PurchaseListing(c.Request.Context(), userID, listingID, paymentHeader, affiliateCode)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, result)
}

// Transactions returns the caller's purchase or sale history.
// GET /v1/transactions?role=buyer|seller
func (h *ListingHandler) Transactions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	transactions, total, err := h.purchaseService.ListTransactions(userID, c.DefaultQuery("role", "buyer"), params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(transactions, total, params))
}

// Transaction returns one transaction visible to the caller.
// GET /v1/transactions/:id
func (h *ListingHandler) Transaction(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	transactionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	transaction, err := h.purchaseService.GetTransaction(userID, transactionID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, transaction)
}
