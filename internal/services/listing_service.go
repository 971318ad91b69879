// internal/services/listing_service.go
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/models"
	"github.com/stackdrive/stackdrive-backend/internal/utils"
)

type ListingService struct {
	db *gorm.DB
}

type CreateListingRequest struct {
	ItemID      uuid.UUID              `json:"item_id" validate:"required"`
	Title       string                 `json:"title" validate:"required,min=1,max=255"`
	Description string                 `json:"description,omitempty"`
	Price       decimal.Decimal        `json:"price" validate:"required"`
	Tags        map[string]interface{} `json:"tags,omitempty"`
}

type UpdateListingRequest struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Status      *string          `json:"status,omitempty"`
}

type ListingSearchParams struct {
	utils.PaginationParams
	SellerID *uuid.UUID
}

func NewListingService(db *gorm.DB) *ListingService {
	return &ListingService{db: db}
}

func (s *ListingService) CreateListing(sellerID uuid.UUID, req *CreateListingRequest) (*models.Listing, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "validation failed", err)
	}

	if !req.Price.IsPositive() {
		return nil, apperrors.New(apperrors.KindValidation, "price must be greater than zero")
	}

	var item models.Item
	if err := s.db.Where("id = ? AND owner_id = ?", req.ItemID, sellerID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "item not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	listing := &models.Listing{
		ItemID:      req.ItemID,
		SellerID:    sellerID,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Status:      models.ListingStatusActive,
		Tags:        models.JSONB(req.Tags),
	}

	if err := s.db.Create(listing).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.New(apperrors.KindConflict, "item is already listed")
		}
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	return listing, nil
}

func (s *ListingService) UpdateListing(listingID, sellerID uuid.UUID, req *UpdateListingRequest) (*models.Listing, error) {
	var listing models.Listing
	if err := s.db.Where("id = ? AND seller_id = ?", listingID, sellerID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "listing not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if req.Title != nil {
		listing.Title = *req.Title
	}
	if req.Description != nil {
		listing.Description = *req.Description
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return nil, apperrors.New(apperrors.KindValidation, "price must be greater than zero")
		}
		listing.Price = *req.Price
	}
	if req.Status != nil {
		status := models.ListingStatus(*req.Status)
		if status != models.ListingStatusActive && status != models.ListingStatusInactive {
			return nil, apperrors.Newf(apperrors.KindValidation, "invalid listing status %q", *req.Status)
		}
		listing.Status = status
	}

	if err := s.db.Save(&listing).Error; err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}

	return &listing, nil
}

func (s *ListingService) GetListing(listingID uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := s.db.Preload("Item").Preload("Seller").First(&listing, "id = ?", listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "listing not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	go s.incrementViewCount(listingID)

	return &listing, nil
}

func (s *ListingService) SearchListings(params ListingSearchParams) ([]models.Listing, int64, error) {
	query := s.db.Model(&models.Listing{}).
		Where("status = ?", models.ListingStatusActive).
		Preload("Item").Preload("Seller")

	if params.SellerID != nil {
		query = query.Where("seller_id = ?", *params.SellerID)
	}

	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count listings: %w", err)
	}

	allowedSortFields := []string{"created_at", "price", "view_count", "sales_count"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)

	var listings []models.Listing
	if err := query.Find(&listings).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch listings: %w", err)
	}

	return listings, total, nil
}

func (s *ListingService) incrementViewCount(listingID uuid.UUID) {
	err := s.db.Model(&models.Listing{}).Where("id = ?", listingID).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
	if err != nil {
		logrus.WithError(err).WithField("listing_id", listingID).Warn("Failed to increment view count")
	}
}
