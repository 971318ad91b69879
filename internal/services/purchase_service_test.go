// internal/services/purchase_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/models"
)

const (
	sellerWallet = "0x1111111111111111111111111111111111111111"
	buyerWallet  = "0x2222222222222222222222222222222222222222"
)

func TestPurchaseListing_Completes(t *testing.T) {
	db := setupTestDB(t)
	seller := createTestUser(t, db, "seller", sellerWallet)
	buyer := createTestUser(t, db, "buyer", buyerWallet)
	item := createTestFile(t, db, seller, "report.pdf", nil)
	listing := createTestListing(t, db, seller, item, "10.00")

	verifier := &stubVerifier{}
	svc := newTestPurchaseService(db, verifier)

	result, err := svc.PurchaseListing(context.Background(), buyer.ID, listing.ID, "proof", "")
	require.NoError(t, err)
	require.NotNil(t, result.Transaction)
	assert.Empty(t, result.Warnings)

	tx := result.Transaction
	assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, buyer.ID, tx.BuyerID)
	assert.Equal(t, seller.ID, tx.SellerID)
	assert.NotEmpty(t, tx.TransactionID)
	assert.NotEmpty(t, tx.ReceiptNumber)
	assert.Equal(t, "0xabc123", tx.Metadata["payment_tx_hash"])

	// The copy landed in the buyer's marketplace folder with provenance.
	require.NotNil(t, result.CopiedItem)
	assert.Equal(t, buyer.ID, result.CopiedItem.OwnerID)
	assert.Equal(t, "report.pdf (Purchased)", result.CopiedItem.Name)
	assert.Equal(t, models.ContentSourceMarketplace, result.CopiedItem.ContentSource)
	assert.Equal(t, item.BlobRef, result.CopiedItem.BlobRef)

	var mirror models.Item
	require.NoError(t, db.First(&mirror, "id = ?", *result.CopiedItem.ParentID).Error)
	assert.Equal(t, "marketplace", mirror.Name)

	var listingAfter models.Listing
	require.NoError(t, db.First(&listingAfter, "id = ?", listing.ID).Error)
	assert.Equal(t, int64(1), listingAfter.SalesCount)
}

func TestPurchaseListing_SelfPurchaseRejected(t *testing.T) {
	db := setupTestDB(t)
	seller := createTestUser(t, db, "seller", sellerWallet)
	item := createTestFile(t, db, seller, "report.pdf", nil)
	listing := createTestListing(t, db, seller, item, "10.00")

	svc := newTestPurchaseService(db, &stubVerifier{})

	_, err := svc.PurchaseListing(context.Background(), seller.ID, listing.ID, "proof", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindSelfPurchase))
}

func TestPurchaseListing_SecondPurchaseRejected(t *testing.T) {
	db := setupTestDB(t)
	seller := createTestUser(t, db, "seller", sellerWallet)
	buyer := createTestUser(t, db, "buyer", buyerWallet)
	item := createTestFile(t, db, seller, "report.pdf", nil)
	listing := createTestListing(t, db, seller, item, "10.00")

	svc := newTestPurchaseService(db, &stubVerifier{})

	_, err := svc.PurchaseListing(context.Background(), buyer.ID, listing.ID, "proof", "")
	require.NoError(t, err)

	_, err = svc.PurchaseListing(context.Background(), buyer.ID, listing.ID, "proof", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAlreadyPurchased))

	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).
		Where("buyer_id = ? AND item_id = ?", buyer.ID, item.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPurchaseListing_DuplicateGuardIndex(t *testing.T) {
	// The read-check can race; the partial unique index is the real guard.
	// Two completed rows for the same (buyer, item) must not both insert.
	db := setupTestDB(t)
	seller := createTestUser(t, db, "seller", sellerWallet)
	buyer := createTestUser(t, db, "buyer", buyerWallet)
	item := createTestFile(t, db, seller, "report.pdf", nil)

	makeTx := func(txnID, receipt string) *models.Transaction {
		return &models.Transaction{
			BuyerID:       buyer.ID,
			SellerID:      seller.ID,
			ItemID:        item.ID,
			Amount:        decimal.RequireFromString("10.00"),
			Status:        models.TransactionStatusCompleted,
			TransactionID: txnID,
			ReceiptNumber: receipt,
			PurchaseDate:  time.Now(),
		}
	}

	require.NoError(t, db.Create(makeTx("txn_1", "RCP-1")).Error)
	err := db.Create(makeTx("txn_2", "RCP-2")).Error
	require.Error(t, err)
}

func TestPurchaseListing_RejectedProofLeavesNoRecord(t *testing.T) {
	db := setupTestDB(t)
	seller := createTestUser(t, db, "seller", sellerWallet)
	buyer := createTestUser(t, db, "buyer", buyerWallet)
	item := createTestFile(t, db, seller, "report.pdf", nil)
	listing := createTestListing(t, db, seller, item, "10.00")

	verifier := &stubVerifier{err: apperrors.New(apperrors.KindPaymentRejected, "amount mismatch")}
	svc := newTestPurchaseService(db, verifier)

	_, err := svc.PurchaseListing(context.Background(), buyer.ID, listing.ID, "proof", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindPaymentRejected))

	var txCount, itemCount int64
	require.NoError(t, db.Model(&models.Transaction{}).Count(&txCount).Error)
	require.NoError(t, db.Model(&models.Item{}).Where("owner_id = ?", buyer.ID).Count(&itemCount).Error)
	assert.Zero(t, txCount)
	assert.Zero(t, itemCount)
}

func TestPurchaseListing_SellerWithoutWallet(t *testing.T) {
	db := setupTestDB(t)
	seller := createTestUser(t, db, "seller", "")
	buyer := createTestUser(t, db, "buyer", buyerWallet)
	item := createTestFile(t, db, seller, "report.pdf", nil)
	listing := createTestListing(t, db, seller, item, "10.00")

	verifier := &stubVerifier{}
	svc := newTestPurchaseService(db, verifier)

	_, err := svc.PurchaseListing(context.Background(), buyer.ID, listing.ID, "proof", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindMissingWallet))
	assert.Zero(t, verifier.calls)
}

func TestPurchaseListing_InactiveListingNotFound(t *testing.T) {
	db := setupTestDB(t)
	seller := createTestUser(t, db, "seller", sellerWallet)
	buyer := createTestUser(t, db, "buyer", buyerWallet)
	item := createTestFile(t, db, seller, "report.pdf", nil)
	listing := createTestListing(t, db, seller, item, "10.00")
	require.NoError(t, db.Model(listing).Update("status", models.ListingStatusInactive).Error)

	svc := newTestPurchaseService(db, &stubVerifier{})

	_, err := svc.PurchaseListing(context.Background(), buyer.ID, listing.ID, "proof", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestPurchaseListing_CommissionRecorded(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	seller := createTestUser(t, db, "seller", sellerWallet)
	buyer := createTestUser(t, db, "buyer", buyerWallet)
	promoter := createTestUser(t, db, "promoter", "0x3333333333333333333333333333333333333333")
	item := createTestFile(t, db, seller, "report.pdf", nil)
	listing := createTestListing(t, db, seller, item, "10.00")

	affiliates := NewAffiliateService(db, cfg)
	rate := decimal.RequireFromString("15")
	affiliate, err := affiliates.CreateAffiliate(seller.ID, &CreateAffiliateRequest{
		ListingID:       &listing.ID,
		AffiliateUserID: promoter.ID,
		CommissionRate:  &rate,
	})
	require.NoError(t, err)

	svc := NewPurchaseService(db, cfg, &stubVerifier{}, NewReplicationService(db), affiliates, nil)

	result, err := svc.PurchaseListing(context.Background(), buyer.ID, listing.ID, "proof", affiliate.AffiliateCode)
	require.NoError(t, err)
	require.NotNil(t, result.Commission)

	// 15% of $10.00 is exactly $1.50 at cent precision.
	assert.True(t, result.Commission.CommissionAmount.Equal(decimal.RequireFromString("1.50")),
		"got %s", result.Commission.CommissionAmount)
	assert.True(t, result.Commission.CommissionRate.Equal(rate))
	assert.Equal(t, models.CommissionStatusPending, result.Commission.Status)

	var affiliateAfter models.Affiliate
	require.NoError(t, db.First(&affiliateAfter, "id = ?", affiliate.ID).Error)
	assert.True(t, affiliateAfter.PendingEarnings.Equal(decimal.RequireFromString("1.50")))
	assert.True(t, affiliateAfter.TotalEarnings.IsZero())
	assert.Equal(t, int64(1), affiliateAfter.TotalSales)
}

func TestPurchaseListing_UnknownAffiliateCodeIgnored(t *testing.T) {
	db := setupTestDB(t)
	seller := createTestUser(t, db, "seller", sellerWallet)
	buyer := createTestUser(t, db, "buyer", buyerWallet)
	item := createTestFile(t, db, seller, "report.pdf", nil)
	listing := createTestListing(t, db, seller, item, "10.00")

	svc := newTestPurchaseService(db, &stubVerifier{})

	result, err := svc.PurchaseListing(context.Background(), buyer.ID, listing.ID, "proof", "NOSUCHCODE")
	require.NoError(t, err)
	assert.Nil(t, result.Commission)
	assert.Empty(t, result.Warnings)
}

func TestPaySharedLink_Completes(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", sellerWallet)
	buyer := createTestUser(t, db, "buyer", buyerWallet)
	item := createTestFile(t, db, owner, "notes.txt", nil)

	links := NewSharedLinkService(db, NewReplicationService(db))
	price := decimal.RequireFromString("2.50")
	link, err := links.CreateLink(owner.ID, &CreateSharedLinkRequest{
		ItemID: item.ID,
		Kind:   "monetized",
		Price:  &price,
	})
	require.NoError(t, err)

	svc := newTestPurchaseService(db, &stubVerifier{})

	result, err := svc.PaySharedLink(context.Background(), buyer.ID, link.LinkToken, "proof", "")
	require.NoError(t, err)
	require.NotNil(t, result.CopiedItem)
	assert.Equal(t, "notes.txt (Shared)", result.CopiedItem.Name)
	assert.Equal(t, models.ContentSourceShared, result.CopiedItem.ContentSource)

	var paid int64
	require.NoError(t, db.Model(&models.SharedLinkPaidUser{}).
		Where("shared_link_id = ? AND user_id = ?", link.ID, buyer.ID).Count(&paid).Error)
	assert.Equal(t, int64(1), paid)

	// Second payment attempt is rejected.
	_, err = svc.PaySharedLink(context.Background(), buyer.ID, link.LinkToken, "proof", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAlreadyPurchased))
}

func TestPaySharedLink_SecondBuyerKeepsFirstRegistered(t *testing.T) {
	// Payment registration is a keyed insert per buyer; a later buyer's
	// payment must not displace an earlier buyer's membership.
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", sellerWallet)
	first := createTestUser(t, db, "first", buyerWallet)
	second := createTestUser(t, db, "second", "0x3333333333333333333333333333333333333333")
	item := createTestFile(t, db, owner, "notes.txt", nil)

	links := NewSharedLinkService(db, NewReplicationService(db))
	price := decimal.RequireFromString("2.50")
	link, err := links.CreateLink(owner.ID, &CreateSharedLinkRequest{
		ItemID: item.ID,
		Kind:   "monetized",
		Price:  &price,
	})
	require.NoError(t, err)

	svc := newTestPurchaseService(db, &stubVerifier{})

	_, err = svc.PaySharedLink(context.Background(), first.ID, link.LinkToken, "proof", "")
	require.NoError(t, err)
	_, err = svc.PaySharedLink(context.Background(), second.ID, link.LinkToken, "proof", "")
	require.NoError(t, err)

	for _, buyer := range []*models.User{first, second} {
		var paid int64
		require.NoError(t, db.Model(&models.SharedLinkPaidUser{}).
			Where("shared_link_id = ? AND user_id = ?", link.ID, buyer.ID).Count(&paid).Error)
		assert.Equal(t, int64(1), paid, "buyer %s lost their payment registration", buyer.Username)
	}

	// The composite key rejects a raw duplicate row.
	err = db.Create(&models.SharedLinkPaidUser{SharedLinkID: link.ID, UserID: first.ID}).Error
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestPaySharedLink_ExpiredLink(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", sellerWallet)
	buyer := createTestUser(t, db, "buyer", buyerWallet)
	item := createTestFile(t, db, owner, "notes.txt", nil)

	price := decimal.RequireFromString("2.50")
	past := time.Now().Add(-time.Hour)
	link := &models.SharedLink{
		ItemID:    item.ID,
		OwnerID:   owner.ID,
		LinkToken: "expired-token",
		Kind:      models.SharedLinkKindMonetized,
		Price:     &price,
		IsActive:  true,
		ExpiresAt: &past,
	}
	require.NoError(t, db.Create(link).Error)

	svc := newTestPurchaseService(db, &stubVerifier{})

	_, err := svc.PaySharedLink(context.Background(), buyer.ID, link.LinkToken, "proof", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindExpired))
}

func TestPaySharedLink_PublicLinkNeedsNoPayment(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", sellerWallet)
	buyer := createTestUser(t, db, "buyer", buyerWallet)
	item := createTestFile(t, db, owner, "notes.txt", nil)

	links := NewSharedLinkService(db, NewReplicationService(db))
	link, err := links.CreateLink(owner.ID, &CreateSharedLinkRequest{
		ItemID: item.ID,
		Kind:   "public",
	})
	require.NoError(t, err)

	svc := newTestPurchaseService(db, &stubVerifier{})

	_, err = svc.PaySharedLink(context.Background(), buyer.ID, link.LinkToken, "proof", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestListingRequirements(t *testing.T) {
	db := setupTestDB(t)
	seller := createTestUser(t, db, "seller", sellerWallet)
	item := createTestFile(t, db, seller, "report.pdf", nil)
	listing := createTestListing(t, db, seller, item, "10.00")

	svc := newTestPurchaseService(db, &stubVerifier{})

	req, err := svc.ListingRequirements(listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "exact", req.Scheme)
	assert.Equal(t, "base-sepolia", req.Network)
	assert.Equal(t, "USDC", req.Asset)
	assert.Equal(t, "10.00", req.Amount)
	assert.Equal(t, sellerWallet, req.PayTo)
}
