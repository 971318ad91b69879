// internal/services/affiliate_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/config"
	"github.com/stackdrive/stackdrive-backend/internal/models"
	"github.com/stackdrive/stackdrive-backend/internal/utils"
)

// AffiliateService manages commission agreements and records the commission
// owed for each sale. Actual payout happens in the settlement service.
type AffiliateService struct {
	db     *gorm.DB
	config *config.Config
}

type CreateAffiliateRequest struct {
	ListingID       *uuid.UUID       `json:"listing_id,omitempty"`
	SharedLinkID    *uuid.UUID       `json:"shared_link_id,omitempty"`
	AffiliateUserID uuid.UUID        `json:"affiliate_user_id" validate:"required"`
	CommissionRate  *decimal.Decimal `json:"commission_rate,omitempty"`
}

func NewAffiliateService(db *gorm.DB, config *config.Config) *AffiliateService {
	return &AffiliateService{
		db:     db,
		config: config,
	}
}

// ComputeCommission returns round(saleAmount * rate / 100) at cent precision.
// Decimal arithmetic throughout; commissions never touch binary floats.
func ComputeCommission(saleAmount, rate decimal.Decimal) decimal.Decimal {
	return saleAmount.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
}

func (s *AffiliateService) CreateAffiliate(ownerID uuid.UUID, req *CreateAffiliateRequest) (*models.Affiliate, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "validation failed", err)
	}

	if (req.ListingID == nil) == (req.SharedLinkID == nil) {
		return nil, apperrors.New(apperrors.KindValidation, "exactly one of listing_id or shared_link_id is required")
	}

	rate := decimal.NewFromFloat(s.config.Affiliate.DefaultCommissionRate)
	if req.CommissionRate != nil {
		rate = *req.CommissionRate
	}
	maxRate := decimal.NewFromFloat(s.config.Affiliate.MaxCommissionRate)
	if !rate.IsPositive() || rate.GreaterThan(maxRate) {
		return nil, apperrors.Newf(apperrors.KindValidation, "commission rate must be in (0, %s]", maxRate)
	}

	if req.AffiliateUserID == ownerID {
		return nil, apperrors.New(apperrors.KindValidation, "cannot be an affiliate for your own content")
	}

	var affiliateUser models.User
	if err := s.db.First(&affiliateUser, "id = ?", req.AffiliateUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "affiliate user not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := s.checkContentOwnership(ownerID, req.ListingID, req.SharedLinkID); err != nil {
		return nil, err
	}

	code, err := utils.GenerateAffiliateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate affiliate code: %w", err)
	}

	affiliate := &models.Affiliate{
		ListingID:       req.ListingID,
		SharedLinkID:    req.SharedLinkID,
		OwnerID:         ownerID,
		AffiliateUserID: req.AffiliateUserID,
		CommissionRate:  rate,
		AffiliateCode:   code,
		Status:          models.AffiliateStatusActive,
		TotalEarnings:   decimal.Zero,
		PendingEarnings: decimal.Zero,
	}

	if err := s.db.Create(affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.New(apperrors.KindConflict, "affiliate relationship already exists for this content and user")
		}
		return nil, fmt.Errorf("failed to create affiliate: %w", err)
	}

	return affiliate, nil
}

// resolveForSale finds the active affiliate matching code for the sold
// content. A code that does not match this content resolves to nothing; an
// invalid code is not an error, it just earns no commission.
func (s *AffiliateService) resolveForSale(code string, listingID, sharedLinkID *uuid.UUID) (*models.Affiliate, error) {
	query := s.db.Where("affiliate_code = ? AND status = ?", code, models.AffiliateStatusActive)
	if listingID != nil {
		query = query.Where("listing_id = ?", *listingID)
	} else if sharedLinkID != nil {
		query = query.Where("shared_link_id = ?", *sharedLinkID)
	} else {
		return nil, nil
	}

	var affiliate models.Affiliate
	if err := query.First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve affiliate: %w", err)
	}

	return &affiliate, nil
}

// RecordCommission creates the pending commission for one completed sale.
// The rate is snapshotted onto the record; the unique index on
// (affiliate_id, original_transaction_id) keeps retries from double-paying.
// Returns (nil, nil) when the code earns nothing: unknown code, wrong
// content, or the affiliate buying through their own code.
func (s *AffiliateService) RecordCommission(code string, transaction *models.Transaction) (*models.AffiliateTransaction, error) {
	if code == "" {
		return nil, nil
	}

	affiliate, err := s.resolveForSale(code, transaction.ListingID, transaction.SharedLinkID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, nil
	}

	if affiliate.AffiliateUserID == transaction.BuyerID {
		logrus.WithFields(logrus.Fields{
			"affiliate_code": code,
			"buyer_id":       transaction.BuyerID,
		}).Info("Skipping commission: affiliate is the buyer")
		return nil, nil
	}

	commissionAmount := ComputeCommission(transaction.Amount, affiliate.CommissionRate)

	affiliateTx := &models.AffiliateTransaction{
		AffiliateID:           affiliate.ID,
		OriginalTransactionID: transaction.ID,
		AffiliateUserID:       affiliate.AffiliateUserID,
		OwnerID:               affiliate.OwnerID,
		BuyerID:               transaction.BuyerID,
		SaleAmount:            transaction.Amount,
		CommissionRate:        affiliate.CommissionRate,
		CommissionAmount:      commissionAmount,
		Status:                models.CommissionStatusPending,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(affiliateTx).Error; err != nil {
			return err
		}

		return tx.Model(&models.Affiliate{}).Where("id = ?", affiliate.ID).
			Updates(map[string]interface{}{
				"total_sales":      gorm.Expr("total_sales + 1"),
				"pending_earnings": gorm.Expr("pending_earnings + ?", commissionAmount),
			}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.New(apperrors.KindConflict, "commission already recorded for this sale")
		}
		return nil, fmt.Errorf("failed to record commission: %w", err)
	}

	return affiliateTx, nil
}

func (s *AffiliateService) ListForOwner(ownerID uuid.UUID) ([]models.Affiliate, error) {
	var affiliates []models.Affiliate
	if err := s.db.Preload("Listing").Preload("SharedLink").Preload("AffiliateUser").
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").Find(&affiliates).Error; err != nil {
		return nil, fmt.Errorf("failed to list affiliates: %w", err)
	}
	return affiliates, nil
}

func (s *AffiliateService) ListForUser(affiliateUserID uuid.UUID) ([]models.Affiliate, error) {
	var affiliates []models.Affiliate
	if err := s.db.Preload("Listing").Preload("SharedLink").
		Where("affiliate_user_id = ?", affiliateUserID).
		Order("created_at DESC").Find(&affiliates).Error; err != nil {
		return nil, fmt.Errorf("failed to list affiliates: %w", err)
	}
	return affiliates, nil
}

func (s *AffiliateService) SetStatus(ownerID, affiliateID uuid.UUID, status models.AffiliateStatus) error {
	switch status {
	case models.AffiliateStatusActive, models.AffiliateStatusInactive, models.AffiliateStatusSuspended:
	default:
		return apperrors.Newf(apperrors.KindValidation, "invalid affiliate status %q", status)
	}

	result := s.db.Model(&models.Affiliate{}).
		Where("id = ? AND owner_id = ?", affiliateID, ownerID).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update affiliate status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.KindNotFound, "affiliate not found")
	}
	return nil
}

func (s *AffiliateService) checkContentOwnership(ownerID uuid.UUID, listingID, sharedLinkID *uuid.UUID) error {
	if listingID != nil {
		var listing models.Listing
		if err := s.db.Where("id = ? AND seller_id = ?", *listingID, ownerID).First(&listing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.KindNotFound, "listing not found")
			}
			return fmt.Errorf("database error: %w", err)
		}
		return nil
	}

	var link models.SharedLink
	if err := s.db.Where("id = ? AND owner_id = ?", *sharedLinkID, ownerID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(apperrors.KindNotFound, "shared link not found")
		}
		return fmt.Errorf("database error: %w", err)
	}
	if link.Kind != models.SharedLinkKindMonetized {
		return apperrors.New(apperrors.KindValidation, "affiliates require a monetized link")
	}
	return nil
}
