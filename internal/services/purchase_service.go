// internal/services/purchase_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/config"
	"github.com/stackdrive/stackdrive-backend/internal/models"
	"github.com/stackdrive/stackdrive-backend/internal/payproto"
	"github.com/stackdrive/stackdrive-backend/internal/utils"
)

// ProofVerifier confirms a payment proof against payment requirements.
// Satisfied by *payproto.Verifier; tests substitute their own.
type ProofVerifier interface {
	Verify(ctx context.Context, header string, req payproto.Requirements) (*payproto.Receipt, error)
}

// PurchaseService runs the buy flow end to end: gate on a verified payment
// proof, record the sale atomically, copy the content into the buyer's
// drive, and hand the sale to the affiliate service for commission.
type PurchaseService struct {
	db            *gorm.DB
	config        *config.Config
	verifier      ProofVerifier
	replication   *ReplicationService
	affiliates    *AffiliateService
	notifications *NotificationService
}

// PurchaseResult reports one completed purchase. Warnings carry the parts
// that failed after the payment was already recorded; the purchase itself
// still succeeded.
type PurchaseResult struct {
	Transaction *models.Transaction          `json:"transaction"`
	CopiedItem  *models.Item                 `json:"copied_item,omitempty"`
	Commission  *models.AffiliateTransaction `json:"commission,omitempty"`
	Warnings    []string                     `json:"warnings,omitempty"`
}

func NewPurchaseService(db *gorm.DB, cfg *config.Config, verifier ProofVerifier,
	replication *ReplicationService, affiliates *AffiliateService, notifications *NotificationService) *PurchaseService {
	return &PurchaseService{
		db:            db,
		config:        cfg,
		verifier:      verifier,
		replication:   replication,
		affiliates:    affiliates,
		notifications: notifications,
	}
}

// ListingRequirements builds the payment requirements a buyer must satisfy
// for a listing. Returned alongside 402 when no proof accompanies the request.
func (s *PurchaseService) ListingRequirements(listingID uuid.UUID) (*payproto.Requirements, error) {
	listing, err := s.loadActiveListing(listingID)
	if err != nil {
		return nil, err
	}
	if listing.Seller.WalletAddress == "" {
		return nil, apperrors.New(apperrors.KindMissingWallet, "seller has no wallet address configured")
	}

	req := payproto.NewRequirements(listing.Price, listing.Seller.WalletAddress,
		s.config.Chain.Network, s.config.Chain.SettlementAsset,
		fmt.Sprintf("listing:%s", listing.ID))
	req.Description = listing.Title
	return &req, nil
}

// LinkRequirements builds the payment requirements for a monetized shared link.
func (s *PurchaseService) LinkRequirements(token string) (*payproto.Requirements, error) {
	link, err := s.loadPayableLink(token)
	if err != nil {
		return nil, err
	}
	if link.Owner.WalletAddress == "" {
		return nil, apperrors.New(apperrors.KindMissingWallet, "link owner has no wallet address configured")
	}

	req := payproto.NewRequirements(*link.Price, link.Owner.WalletAddress,
		s.config.Chain.Network, s.config.Chain.SettlementAsset,
		fmt.Sprintf("shared-link:%s", link.LinkToken))
	return &req, nil
}

// PurchaseListing executes one marketplace purchase. The sequence is strict:
// eligibility checks, proof verification, then a single database transaction
// that records the completed sale. Replication and commission run after the
// commit; their failures degrade the result but never void a paid purchase.
func (s *PurchaseService) PurchaseListing(ctx context.Context, buyerID, listingID uuid.UUID, paymentHeader, affiliateCode string) (*PurchaseResult, error) {
	listing, err := s.loadActiveListing(listingID)
	if err != nil {
		return nil, err
	}

	if listing.SellerID == buyerID {
		return nil, apperrors.New(apperrors.KindSelfPurchase, "cannot purchase your own listing")
	}

	purchased, err := s.hasCompletedPurchase(buyerID, listing.ItemID)
	if err != nil {
		return nil, err
	}
	if purchased {
		return nil, apperrors.New(apperrors.KindAlreadyPurchased, "item already purchased")
	}

	if listing.Seller.WalletAddress == "" {
		return nil, apperrors.New(apperrors.KindMissingWallet, "seller has no wallet address configured")
	}

	req := payproto.NewRequirements(listing.Price, listing.Seller.WalletAddress,
		s.config.Chain.Network, s.config.Chain.SettlementAsset,
		fmt.Sprintf("listing:%s", listing.ID))

	receipt, err := s.verifier.Verify(ctx, paymentHeader, req)
	if err != nil {
		return nil, err
	}

	transaction, err := s.recordSale(buyerID, listing.SellerID, listing.ItemID, &listing.ID, nil, listing.Price, receipt, affiliateCode,
		func(tx *gorm.DB) error {
			return tx.Model(&models.Listing{}).Where("id = ?", listing.ID).
				UpdateColumn("sales_count", gorm.Expr("sales_count + 1")).Error
		})
	if err != nil {
		return nil, err
	}

	result := s.finishPurchase(transaction, models.ContentSourceMarketplace, affiliateCode)

	if s.notifications != nil {
		go s.notifications.SendPurchaseReceipt(transaction)
		go s.notifications.SendSaleNotice(transaction)
	}

	return result, nil
}

// PaySharedLink executes payment for a monetized shared link and copies the
// item into the buyer's drive. Payment also marks the buyer in the link's
// paid set, so later SaveToDrive calls need no second payment.
func (s *PurchaseService) PaySharedLink(ctx context.Context, buyerID uuid.UUID, token, paymentHeader, affiliateCode string) (*PurchaseResult, error) {
	link, err := s.loadPayableLink(token)
	if err != nil {
		return nil, err
	}

	if link.OwnerID == buyerID {
		return nil, apperrors.New(apperrors.KindSelfPurchase, "cannot pay for your own shared link")
	}

	alreadyPaid, err := s.hasPaidLink(link.ID, buyerID)
	if err != nil {
		return nil, err
	}
	if alreadyPaid {
		return nil, apperrors.New(apperrors.KindAlreadyPurchased, "link already paid for")
	}

	purchased, err := s.hasCompletedPurchase(buyerID, link.ItemID)
	if err != nil {
		return nil, err
	}
	if purchased {
		return nil, apperrors.New(apperrors.KindAlreadyPurchased, "item already purchased")
	}

	if link.Owner.WalletAddress == "" {
		return nil, apperrors.New(apperrors.KindMissingWallet, "link owner has no wallet address configured")
	}

	req := payproto.NewRequirements(*link.Price, link.Owner.WalletAddress,
		s.config.Chain.Network, s.config.Chain.SettlementAsset,
		fmt.Sprintf("shared-link:%s", link.LinkToken))

	receipt, err := s.verifier.Verify(ctx, paymentHeader, req)
	if err != nil {
		return nil, err
	}

	transaction, err := s.recordSale(buyerID, link.OwnerID, link.ItemID, nil, &link.ID, *link.Price, receipt, affiliateCode,
		func(tx *gorm.DB) error {
			// Keyed insert, so concurrent buyers register independently.
			entry := models.SharedLinkPaidUser{SharedLinkID: link.ID, UserID: buyerID}
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error
		})
	if err != nil {
		return nil, err
	}

	result := s.finishPurchase(transaction, models.ContentSourceShared, affiliateCode)

	if s.notifications != nil {
		go s.notifications.SendPurchaseReceipt(transaction)
		go s.notifications.SendSaleNotice(transaction)
	}

	return result, nil
}

// GetTransaction loads one transaction visible to userID as buyer or seller.
func (s *PurchaseService) GetTransaction(userID, transactionID uuid.UUID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := s.db.Preload("Item").Preload("Buyer").Preload("Seller").
		Where("id = ? AND (buyer_id = ? OR seller_id = ?)", transactionID, userID, userID).
		First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "transaction not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &transaction, nil
}

// ListTransactions returns userID's purchase or sale history.
func (s *PurchaseService) ListTransactions(userID uuid.UUID, role string, params utils.PaginationParams) ([]models.Transaction, int64, error) {
	query := s.db.Model(&models.Transaction{}).Preload("Item")
	switch role {
	case "seller":
		query = query.Where("seller_id = ?", userID)
	default:
		query = query.Where("buyer_id = ?", userID)
	}

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "amount"})
	query = utils.ApplyPagination(query, params)

	var transactions []models.Transaction
	if err := query.Find(&transactions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	return transactions, total, nil
}

// recordSale writes the completed transaction row plus any side update in one
// database transaction. The partial unique index on completed (buyer, item)
// rows backstops the read-check: a concurrent duplicate loses here, after
// which we surface AlreadyPurchased.
func (s *PurchaseService) recordSale(buyerID, sellerID, itemID uuid.UUID, listingID, sharedLinkID *uuid.UUID,
	amount decimal.Decimal, receipt *payproto.Receipt, affiliateCode string, sideEffect func(*gorm.DB) error) (*models.Transaction, error) {

	txnID, err := utils.GenerateTransactionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate transaction id: %w", err)
	}
	receiptNumber, err := utils.GenerateReceiptNumber()
	if err != nil {
		return nil, fmt.Errorf("failed to generate receipt number: %w", err)
	}

	metadata := models.JSONB{
		"payment_tx_hash": receipt.TransactionHash,
		"payment_network": receipt.Network,
		"payer_address":   receipt.PayerAddress,
	}
	if affiliateCode != "" {
		metadata["affiliate_code"] = affiliateCode
	}

	transaction := &models.Transaction{
		ListingID:     listingID,
		SharedLinkID:  sharedLinkID,
		BuyerID:       buyerID,
		SellerID:      sellerID,
		ItemID:        itemID,
		Amount:        amount,
		Status:        models.TransactionStatusCompleted,
		TransactionID: txnID,
		ReceiptNumber: receiptNumber,
		PurchaseDate:  time.Now(),
		Metadata:      metadata,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(transaction).Error; err != nil {
			return err
		}
		if sideEffect != nil {
			return sideEffect(tx)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.New(apperrors.KindAlreadyPurchased, "item already purchased")
		}
		return nil, fmt.Errorf("failed to record sale: %w", err)
	}

	return transaction, nil
}

// finishPurchase runs the post-commit steps. The payment is final at this
// point, so every failure downgrades to a warning on the result.
func (s *PurchaseService) finishPurchase(transaction *models.Transaction, source models.ContentSource, affiliateCode string) *PurchaseResult {
	result := &PurchaseResult{Transaction: transaction}

	copied, err := s.replication.Replicate(transaction.ItemID, transaction.BuyerID, source)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"transaction_id": transaction.TransactionID,
			"item_id":        transaction.ItemID,
		}).Error("Content replication failed after payment")
		result.Warnings = append(result.Warnings,
			"payment recorded but content copy failed; contact support with your receipt number")
	} else {
		result.CopiedItem = copied
	}

	commission, err := s.affiliates.RecordCommission(affiliateCode, transaction)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"transaction_id": transaction.TransactionID,
			"affiliate_code": affiliateCode,
		}).Error("Commission recording failed")
		result.Warnings = append(result.Warnings, "affiliate commission could not be recorded")
	} else {
		result.Commission = commission
	}

	return result
}

func (s *PurchaseService) loadActiveListing(listingID uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.Preload("Item").Preload("Seller").
		Where("id = ? AND status = ?", listingID, models.ListingStatusActive).
		First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "listing not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &listing, nil
}

// loadPayableLink resolves an active monetized link by token, enforcing expiry.
func (s *PurchaseService) loadPayableLink(token string) (*models.SharedLink, error) {
	var link models.SharedLink
	err := s.db.Preload("Item").Preload("Owner").
		Where("link_token = ?", token).First(&link).Error
	if err != nil {
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
	if link.Kind != models.SharedLinkKindMonetized || link.Price == nil {
		return nil, apperrors.New(apperrors.KindValidation, "link does not require payment")
	}

	return &link, nil
}

func (s *PurchaseService) hasPaidLink(linkID, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.Model(&models.SharedLinkPaidUser{}).
		Where("shared_link_id = ? AND user_id = ?", linkID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check link payment: %w", err)
	}
	return count > 0, nil
}

func (s *PurchaseService) hasCompletedPurchase(buyerID, itemID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.Model(&models.Transaction{}).
		Where("buyer_id = ? AND item_id = ? AND status = ?", buyerID, itemID, models.TransactionStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check purchase history: %w", err)
	}
	return count > 0, nil
}
