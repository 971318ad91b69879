// internal/services/listing_service_test.go
package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/models"
)

func TestCreateListing(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", "")
	item := createTestFile(t, db, owner, "report.pdf", nil)
	svc := NewListingService(db)

	listing, err := svc.CreateListing(owner.ID, &CreateListingRequest{
		ItemID: item.ID,
		Title:  "Quarterly report",
		Price:  decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusActive, listing.Status)

	// One listing per item.
	_, err = svc.CreateListing(owner.ID, &CreateListingRequest{
		ItemID: item.ID,
		Title:  "Same item again",
		Price:  decimal.RequireFromString("5.00"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestCreateListing_Rejections(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", "")
	other := createTestUser(t, db, "other", "")
	item := createTestFile(t, db, owner, "report.pdf", nil)
	svc := NewListingService(db)

	// Zero price.
	_, err := svc.CreateListing(owner.ID, &CreateListingRequest{
		ItemID: item.ID,
		Title:  "Free",
		Price:  decimal.Zero,
	})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	// Someone else's item.
	_, err = svc.CreateListing(other.ID, &CreateListingRequest{
		ItemID: item.ID,
		Title:  "Not mine",
		Price:  decimal.RequireFromString("1.00"),
	})
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestSearchListings(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", "")
	svc := NewListingService(db)

	for _, title := range []string{"Go patterns", "Rust basics", "Go advanced"} {
		item := createTestFile(t, db, owner, title+".pdf", nil)
		_, err := svc.CreateListing(owner.ID, &CreateListingRequest{
			ItemID: item.ID,
			Title:  title,
			Price:  decimal.RequireFromString("5.00"),
		})
		require.NoError(t, err)
	}

	// Inactive listings stay out of search.
	item := createTestFile(t, db, owner, "hidden.pdf", nil)
	hidden, err := svc.CreateListing(owner.ID, &CreateListingRequest{
		ItemID: item.ID,
		Title:  "Go hidden",
		Price:  decimal.RequireFromString("5.00"),
	})
	require.NoError(t, err)
	require.NoError(t, db.Model(hidden).Update("status", models.ListingStatusInactive).Error)

	params := ListingSearchParams{PaginationParams: paginationDefaults()}
	params.Search = "go"

	results, total, err := svc.SearchListings(params)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, results, 2)
}

func TestUpdateListing(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", "")
	other := createTestUser(t, db, "other", "")
	item := createTestFile(t, db, owner, "report.pdf", nil)
	svc := NewListingService(db)

	listing, err := svc.CreateListing(owner.ID, &CreateListingRequest{
		ItemID: item.ID,
		Title:  "Report",
		Price:  decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)

	newPrice := decimal.RequireFromString("12.50")
	status := string(models.ListingStatusInactive)
	updated, err := svc.UpdateListing(listing.ID, owner.ID, &UpdateListingRequest{
		Price:  &newPrice,
		Status: &status,
	})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(newPrice))
	assert.Equal(t, models.ListingStatusInactive, updated.Status)

	// Non-owner cannot edit.
	_, err = svc.UpdateListing(listing.ID, other.ID, &UpdateListingRequest{Price: &newPrice})
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}
