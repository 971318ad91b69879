// internal/services/settlement_service_test.go
package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/models"
)

const promoterWallet = "0x4444444444444444444444444444444444444444"

// settlementFixture buys through an affiliate code n times with distinct
// buyers, leaving n pending commissions of $1.00 each ($10 sale at 10%).
func settlementFixture(t *testing.T, db *gorm.DB, n int) (*models.User, *models.User, *models.Affiliate) {
	t.Helper()
	cfg := testConfig()

	seller := createTestUser(t, db, "seller", sellerWallet)
	promoter := createTestUser(t, db, "promoter", promoterWallet)
	item := createTestFile(t, db, seller, "report.pdf", nil)
	listing := createTestListing(t, db, seller, item, "10.00")

	affiliates := NewAffiliateService(db, cfg)
	affiliate, err := affiliates.CreateAffiliate(seller.ID, &CreateAffiliateRequest{
		ListingID:       &listing.ID,
		AffiliateUserID: promoter.ID,
	})
	require.NoError(t, err)

	svc := NewPurchaseService(db, cfg, &stubVerifier{}, NewReplicationService(db), affiliates, nil)
	for i := 0; i < n; i++ {
		buyer := createTestUser(t, db, "buyer"+string(rune('a'+i)), buyerWallet)
		result, err := svc.PurchaseListing(context.Background(), buyer.ID, listing.ID, "proof", affiliate.AffiliateCode)
		require.NoError(t, err)
		require.NotNil(t, result.Commission)
	}

	return seller, promoter, affiliate
}

func TestSettlePending_AllPaid(t *testing.T) {
	db := setupTestDB(t)
	seller, _, affiliate := settlementFixture(t, db, 3)

	treasury := newStubTreasury()
	treasury.balances[sellerWallet] = decimal.RequireFromString("100.00")

	svc := NewSettlementService(db, testConfig(), treasury, nil)

	summary, err := svc.SettlePending(context.Background(), seller.ID, &SettleRequest{PayAll: true})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Paid)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, treasury.transfers, 3)

	for _, tr := range treasury.transfers {
		assert.Equal(t, sellerWallet, tr.From)
		assert.Equal(t, promoterWallet, tr.To)
		assert.True(t, tr.Amount.Equal(decimal.RequireFromString("1.00")))
	}

	var affiliateAfter models.Affiliate
	require.NoError(t, db.First(&affiliateAfter, "id = ?", affiliate.ID).Error)
	assert.True(t, affiliateAfter.PendingEarnings.IsZero())
	assert.True(t, affiliateAfter.TotalEarnings.Equal(decimal.RequireFromString("3.00")))

	var paid int64
	require.NoError(t, db.Model(&models.AffiliateTransaction{}).
		Where("status = ?", models.CommissionStatusPaid).Count(&paid).Error)
	assert.Equal(t, int64(3), paid)
}

func TestSettlePending_InsufficientFundsIsolatedPerItem(t *testing.T) {
	db := setupTestDB(t)
	seller, _, affiliate := settlementFixture(t, db, 3)

	// Enough for two commissions; the third fails its live balance check.
	treasury := newStubTreasury()
	treasury.balances[sellerWallet] = decimal.RequireFromString("2.00")

	svc := NewSettlementService(db, testConfig(), treasury, nil)

	summary, err := svc.SettlePending(context.Background(), seller.ID, &SettleRequest{PayAll: true})
	require.NoError(t, err, "a failed item must not fail the batch")
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Paid)
	assert.Equal(t, 1, summary.Failed)

	// Failed commission never reaches confirmed earnings.
	var affiliateAfter models.Affiliate
	require.NoError(t, db.First(&affiliateAfter, "id = ?", affiliate.ID).Error)
	assert.True(t, affiliateAfter.TotalEarnings.Equal(decimal.RequireFromString("2.00")))
	assert.True(t, affiliateAfter.PendingEarnings.IsZero())

	var failed []models.AffiliateTransaction
	require.NoError(t, db.Where("status = ?", models.CommissionStatusFailed).Find(&failed).Error)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Metadata["failure_reason"], "insufficient funds")
}

func TestSettlePending_TransferFailureRecorded(t *testing.T) {
	db := setupTestDB(t)
	seller, _, _ := settlementFixture(t, db, 1)

	treasury := newStubTreasury()
	treasury.balances[sellerWallet] = decimal.RequireFromString("100.00")
	treasury.transferErr[promoterWallet] = apperrors.New(apperrors.KindPaymentRejected, "treasury rejected transfer")

	svc := NewSettlementService(db, testConfig(), treasury, nil)

	summary, err := svc.SettlePending(context.Background(), seller.ID, &SettleRequest{PayAll: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Results[0].Error, "transfer failed")
}

func TestSettlePending_OwnerWithoutWallet(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", "")

	svc := NewSettlementService(db, testConfig(), newStubTreasury(), nil)

	_, err := svc.SettlePending(context.Background(), owner.ID, &SettleRequest{PayAll: true})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindMissingWallet))
}

func TestSettlePending_AffiliateWithoutWallet(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()

	seller := createTestUser(t, db, "seller", sellerWallet)
	promoter := createTestUser(t, db, "promoter", "")
	buyer := createTestUser(t, db, "buyer", buyerWallet)
	item := createTestFile(t, db, seller, "report.pdf", nil)
	listing := createTestListing(t, db, seller, item, "10.00")

	affiliates := NewAffiliateService(db, cfg)
	affiliate, err := affiliates.CreateAffiliate(seller.ID, &CreateAffiliateRequest{
		ListingID:       &listing.ID,
		AffiliateUserID: promoter.ID,
	})
	require.NoError(t, err)

	purchases := NewPurchaseService(db, cfg, &stubVerifier{}, NewReplicationService(db), affiliates, nil)
	_, err = purchases.PurchaseListing(context.Background(), buyer.ID, listing.ID, "proof", affiliate.AffiliateCode)
	require.NoError(t, err)

	treasury := newStubTreasury()
	treasury.balances[sellerWallet] = decimal.RequireFromString("100.00")

	svc := NewSettlementService(db, cfg, treasury, nil)
	summary, err := svc.SettlePending(context.Background(), seller.ID, &SettleRequest{PayAll: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, treasury.transfers)
	assert.Contains(t, summary.Results[0].Error, "no wallet address")
}

func TestSettlePending_SelectedSubset(t *testing.T) {
	db := setupTestDB(t)
	seller, _, _ := settlementFixture(t, db, 2)

	var pending []models.AffiliateTransaction
	require.NoError(t, db.Where("status = ?", models.CommissionStatusPending).
		Order("created_at asc").Find(&pending).Error)
	require.Len(t, pending, 2)

	treasury := newStubTreasury()
	treasury.balances[sellerWallet] = decimal.RequireFromString("100.00")

	svc := NewSettlementService(db, testConfig(), treasury, nil)
	summary, err := svc.SettlePending(context.Background(), seller.ID, &SettleRequest{
		TransactionIDs: []uuid.UUID{pending[0].ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Paid)

	var stillPending int64
	require.NoError(t, db.Model(&models.AffiliateTransaction{}).
		Where("status = ?", models.CommissionStatusPending).Count(&stillPending).Error)
	assert.Equal(t, int64(1), stillPending)
}

func TestSettlePending_NothingToSettle(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", sellerWallet)

	svc := NewSettlementService(db, testConfig(), newStubTreasury(), nil)

	_, err := svc.SettlePending(context.Background(), owner.ID, &SettleRequest{PayAll: true})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestGetPayments_Totals(t *testing.T) {
	db := setupTestDB(t)
	seller, _, _ := settlementFixture(t, db, 2)

	treasury := newStubTreasury()
	treasury.balances[sellerWallet] = decimal.RequireFromString("1.00")

	svc := NewSettlementService(db, testConfig(), treasury, nil)
	_, err := svc.SettlePending(context.Background(), seller.ID, &SettleRequest{PayAll: true})
	require.NoError(t, err)

	commissions, total, totals, err := svc.GetPayments(seller.ID, paginationDefaults())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, commissions, 2)
	assert.True(t, totals.PaidAmount.Equal(decimal.RequireFromString("1.00")))
	assert.True(t, totals.FailedAmount.Equal(decimal.RequireFromString("1.00")))
	assert.True(t, totals.PendingAmount.IsZero())
}
