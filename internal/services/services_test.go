// internal/services/services_test.go
package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stackdrive/stackdrive-backend/internal/chain"
	"github.com/stackdrive/stackdrive-backend/internal/config"
	"github.com/stackdrive/stackdrive-backend/internal/database"
	"github.com/stackdrive/stackdrive-backend/internal/models"
	"github.com/stackdrive/stackdrive-backend/internal/payproto"
	"github.com/stackdrive/stackdrive-backend/internal/utils"
)

var testDBCounter int64

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", atomic.AddInt64(&testDBCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, database.RunMigrations(db))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Chain: config.ChainConfig{
			Network:         "base-sepolia",
			SettlementAsset: "USDC",
			RequestTimeout:  5,
		},
		Affiliate: config.AffiliateConfig{
			DefaultCommissionRate: 10.0,
			MaxCommissionRate:     50.0,
		},
		JWT: config.JWTConfig{
			SecretKey:      "test-secret",
			AccessTokenTTL: 1,
		},
	}
}

func createTestUser(t *testing.T, db *gorm.DB, username, wallet string) *models.User {
	t.Helper()

	user := &models.User{
		Username:      username,
		Email:         username + "@example.com",
		WalletAddress: wallet,
		Status:        models.UserStatusActive,
	}
	require.NoError(t, user.SetPassword("Passw0rd123"))
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestFile(t *testing.T, db *gorm.DB, owner *models.User, name string, parentID *uuid.UUID) *models.Item {
	t.Helper()

	item := &models.Item{
		Name:          name,
		Kind:          models.ItemKindFile,
		ParentID:      parentID,
		OwnerID:       owner.ID,
		Size:          1024,
		MimeType:      "application/pdf",
		BlobRef:       "drive/" + owner.ID.String() + "/" + uuid.NewString(),
		ContentSource: models.ContentSourceUser,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func createTestFolder(t *testing.T, db *gorm.DB, owner *models.User, name string, parentID *uuid.UUID) *models.Item {
	t.Helper()

	item := &models.Item{
		Name:          name,
		Kind:          models.ItemKindFolder,
		ParentID:      parentID,
		OwnerID:       owner.ID,
		ContentSource: models.ContentSourceUser,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func createTestListing(t *testing.T, db *gorm.DB, seller *models.User, item *models.Item, price string) *models.Listing {
	t.Helper()

	listing := &models.Listing{
		ItemID:   item.ID,
		SellerID: seller.ID,
		Title:    item.Name,
		Price:    decimal.RequireFromString(price),
		Status:   models.ListingStatusActive,
	}
	require.NoError(t, db.Create(listing).Error)
	return listing
}

// stubVerifier accepts every proof without talking to a facilitator.
type stubVerifier struct {
	err     error
	receipt payproto.Receipt
	calls   int
}

func (v *stubVerifier) Verify(_ context.Context, header string, req payproto.Requirements) (*payproto.Receipt, error) {
	v.calls++
	if header == "" {
		return nil, fmt.Errorf("empty payment header")
	}
	if v.err != nil {
		return nil, v.err
	}
	r := v.receipt
	if r.TransactionHash == "" {
		r.TransactionHash = "0xabc123"
	}
	if r.Network == "" {
		r.Network = req.Network
	}
	r.Success = true
	return &r, nil
}

// stubTreasury serves balances from a map and records transfers.
type stubTreasury struct {
	balances    map[string]decimal.Decimal
	transferErr map[string]error
	transfers   []stubTransfer
}

type stubTransfer struct {
	From   string
	To     string
	Amount decimal.Decimal
}

func newStubTreasury() *stubTreasury {
	return &stubTreasury{
		balances:    map[string]decimal.Decimal{},
		transferErr: map[string]error{},
	}
}

func (s *stubTreasury) Balance(_ context.Context, address string) (decimal.Decimal, error) {
	balance, ok := s.balances[address]
	if !ok {
		return decimal.Zero, nil
	}
	return balance, nil
}

func (s *stubTreasury) Transfer(_ context.Context, from, to string, amount decimal.Decimal, _ string) (*chain.TransferResult, error) {
	if err, ok := s.transferErr[to]; ok {
		return nil, err
	}
	s.balances[from] = s.balances[from].Sub(amount)
	s.transfers = append(s.transfers, stubTransfer{From: from, To: to, Amount: amount})
	return &chain.TransferResult{TxHash: fmt.Sprintf("0xpayout%d", len(s.transfers)), Network: "base-sepolia"}, nil
}

func paginationDefaults() utils.PaginationParams {
	return utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}
}

func newTestPurchaseService(db *gorm.DB, verifier ProofVerifier) *PurchaseService {
	cfg := testConfig()
	replication := NewReplicationService(db)
	affiliates := NewAffiliateService(db, cfg)
	return NewPurchaseService(db, cfg, verifier, replication, affiliates, nil)
}
