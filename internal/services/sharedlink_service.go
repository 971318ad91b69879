// internal/services/sharedlink_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/models"
	"github.com/stackdrive/stackdrive-backend/internal/utils"
)

type SharedLinkService struct {
	db          *gorm.DB
	replication *ReplicationService
}

type CreateSharedLinkRequest struct {
	ItemID    uuid.UUID        `json:"item_id" validate:"required"`
	Kind      string           `json:"kind" validate:"required,oneof=public monetized"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

func NewSharedLinkService(db *gorm.DB, replication *ReplicationService) *SharedLinkService {
	return &SharedLinkService{
		db:          db,
		replication: replication,
	}
}

func (s *SharedLinkService) CreateLink(ownerID uuid.UUID, req *CreateSharedLinkRequest) (*models.SharedLink, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "validation failed", err)
	}

	kind := models.SharedLinkKind(req.Kind)
	if kind == models.SharedLinkKindMonetized {
		if req.Price == nil || !req.Price.IsPositive() {
			return nil, apperrors.New(apperrors.KindValidation, "monetized links require a positive price")
		}
	} else if req.Price != nil {
		return nil, apperrors.New(apperrors.KindValidation, "public links cannot carry a price")
	}

	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		return nil, apperrors.New(apperrors.KindValidation, "expiry must be in the future")
	}

	var item models.Item
	if err := s.db.Where("id = ? AND owner_id = ?", req.ItemID, ownerID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "item not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	token, err := utils.GenerateSecureToken(24)
	if err != nil {
		return nil, fmt.Errorf("failed to generate link token: %w", err)
	}

	link := &models.SharedLink{
		ItemID:    req.ItemID,
		OwnerID:   ownerID,
		LinkToken: token,
		Kind:      kind,
		Price:     req.Price,
		IsActive:  true,
		ExpiresAt: req.ExpiresAt,
	}

	if err := s.db.Create(link).Error; err != nil {
		return nil, fmt.Errorf("failed to create shared link: %w", err)
	}

	return link, nil
}

// ResolveByToken loads an active link by its token, enforcing expiry. Expiry
// applies to everyone, including users who already paid.
func (s *SharedLinkService) ResolveByToken(token string) (*models.SharedLink, error) {
	var link models.SharedLink
	if err := s.db.Preload("Item").Preload("Owner").
		Where("link_token = ?", token).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "shared link not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !link.IsActive {
		return nil, apperrors.New(apperrors.KindNotFound, "shared link not found")
	}

	if link.IsExpired() {
		return nil, apperrors.New(apperrors.KindExpired, "shared link has expired")
	}

	return &link, nil
}

// SaveToDrive copies the linked item into userID's tree. Public links are
// open to any authenticated user; monetized links require prior payment.
func (s *SharedLinkService) SaveToDrive(userID uuid.UUID, token string) (*models.Item, error) {
	link, err := s.ResolveByToken(token)
	if err != nil {
		return nil, err
	}

	if link.OwnerID == userID {
		return nil, apperrors.New(apperrors.KindValidation, "cannot save your own shared item")
	}

	if link.Kind == models.SharedLinkKindMonetized {
		paid, err := s.hasPaidAccess(userID, link)
		if err != nil {
			return nil, err
		}
		if !paid {
			return nil, apperrors.New(apperrors.KindPaymentRejected, "payment required before saving this item")
		}
	}

	copied, err := s.replication.Replicate(link.ItemID, userID, models.ContentSourceShared)
	if err != nil {
		return nil, err
	}

	go s.incrementAccessCount(link.ID)

	return copied, nil
}

// hasPaidAccess checks the link's paid set, then falls back to the user's
// completed purchases of the item. A buyer who already bought the item
// through a listing cannot pay the link again, so the purchase record has
// to grant access here.
func (s *SharedLinkService) hasPaidAccess(userID uuid.UUID, link *models.SharedLink) (bool, error) {
	var count int64
	err := s.db.Model(&models.SharedLinkPaidUser{}).
		Where("shared_link_id = ? AND user_id = ?", link.ID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check link payment: %w", err)
	}
	if count > 0 {
		return true, nil
	}

	err = s.db.Model(&models.Transaction{}).
		Where("buyer_id = ? AND item_id = ? AND status = ?", userID, link.ItemID, models.TransactionStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check purchase history: %w", err)
	}
	return count > 0, nil
}

func (s *SharedLinkService) RevokeLink(ownerID uuid.UUID, token string) error {
	result := s.db.Model(&models.SharedLink{}).
		Where("link_token = ? AND owner_id = ?", token, ownerID).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to revoke link: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.KindNotFound, "shared link not found")
	}
	return nil
}

func (s *SharedLinkService) ListForOwner(ownerID uuid.UUID) ([]models.SharedLink, error) {
	var links []models.SharedLink
	if err := s.db.Preload("Item").
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("failed to list shared links: %w", err)
	}
	return links, nil
}

// DeactivateExpired flips is_active off for every link past its expiry.
// Called by the background sweep; resolution also checks expiry inline, this
// just keeps listings and indexes honest.
func (s *SharedLinkService) DeactivateExpired() (int64, error) {
	result := s.db.Model(&models.SharedLink{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, time.Now()).
		Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to deactivate expired links: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *SharedLinkService) incrementAccessCount(linkID uuid.UUID) {
	err := s.db.Model(&models.SharedLink{}).Where("id = ?", linkID).
		UpdateColumn("access_count", gorm.Expr("access_count + 1")).Error
	if err != nil {
		logrus.WithError(err).WithField("link_id", linkID).Warn("Failed to increment access count")
	}
}
