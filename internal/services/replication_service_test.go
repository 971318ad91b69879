// internal/services/replication_service_test.go
package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/models"
)

func TestReplicate_SingleFile(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", "")
	buyer := createTestUser(t, db, "buyer", "")
	file := createTestFile(t, db, owner, "photo.jpg", nil)

	svc := NewReplicationService(db)

	copied, err := svc.Replicate(file.ID, buyer.ID, models.ContentSourceMarketplace)
	require.NoError(t, err)

	assert.Equal(t, "photo.jpg (Purchased)", copied.Name)
	assert.Equal(t, buyer.ID, copied.OwnerID)
	assert.Equal(t, file.BlobRef, copied.BlobRef, "blob is shared by reference")
	assert.NotEqual(t, file.ID, copied.ID)

	// The source item is untouched.
	var source models.Item
	require.NoError(t, db.First(&source, "id = ?", file.ID).Error)
	assert.Equal(t, owner.ID, source.OwnerID)
}

func TestReplicate_FolderSubtree(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", "")
	buyer := createTestUser(t, db, "buyer", "")

	root := createTestFolder(t, db, owner, "album", nil)
	sub := createTestFolder(t, db, owner, "raw", &root.ID)
	createTestFile(t, db, owner, "a.jpg", &root.ID)
	createTestFile(t, db, owner, "b.jpg", &sub.ID)

	svc := NewReplicationService(db)

	copied, err := svc.Replicate(root.ID, buyer.ID, models.ContentSourceMarketplace)
	require.NoError(t, err)
	assert.Equal(t, "album (Purchased)", copied.Name)

	// Structure is preserved: copy root has a.jpg and raw/, raw/ has b.jpg.
	var children []models.Item
	require.NoError(t, db.Where("parent_id = ?", copied.ID).Order("name").Find(&children).Error)
	require.Len(t, children, 2)
	assert.Equal(t, "a.jpg", children[0].Name)
	assert.Equal(t, "raw", children[1].Name)

	var grandchildren []models.Item
	require.NoError(t, db.Where("parent_id = ?", children[1].ID).Find(&grandchildren).Error)
	require.Len(t, grandchildren, 1)
	assert.Equal(t, "b.jpg", grandchildren[0].Name)
	assert.Equal(t, buyer.ID, grandchildren[0].OwnerID)
	assert.Equal(t, models.ContentSourceMarketplace, grandchildren[0].ContentSource)
}

func TestReplicate_MirrorFolderReused(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", "")
	buyer := createTestUser(t, db, "buyer", "")
	first := createTestFile(t, db, owner, "one.txt", nil)
	second := createTestFile(t, db, owner, "two.txt", nil)

	svc := NewReplicationService(db)

	copy1, err := svc.Replicate(first.ID, buyer.ID, models.ContentSourceMarketplace)
	require.NoError(t, err)
	copy2, err := svc.Replicate(second.ID, buyer.ID, models.ContentSourceMarketplace)
	require.NoError(t, err)

	assert.Equal(t, *copy1.ParentID, *copy2.ParentID)

	var mirrors int64
	require.NoError(t, db.Model(&models.Item{}).
		Where("owner_id = ? AND parent_id IS NULL AND name = ?", buyer.ID, "marketplace").
		Count(&mirrors).Error)
	assert.Equal(t, int64(1), mirrors)
}

func TestReplicate_NameCollisionGetsSuffix(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", "")
	buyer := createTestUser(t, db, "buyer", "")
	file := createTestFile(t, db, owner, "doc.pdf", nil)

	svc := NewReplicationService(db)

	copy1, err := svc.Replicate(file.ID, buyer.ID, models.ContentSourceMarketplace)
	require.NoError(t, err)
	copy2, err := svc.Replicate(file.ID, buyer.ID, models.ContentSourceMarketplace)
	require.NoError(t, err)

	assert.Equal(t, "doc.pdf (Purchased)", copy1.Name)
	assert.Equal(t, "doc.pdf (Purchased) (2)", copy2.Name)
}

func TestReplicate_SharedSourceUsesSharedMirror(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db, "owner", "")
	buyer := createTestUser(t, db, "buyer", "")
	file := createTestFile(t, db, owner, "notes.txt", nil)

	svc := NewReplicationService(db)

	copied, err := svc.Replicate(file.ID, buyer.ID, models.ContentSourceShared)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt (Shared)", copied.Name)

	var mirror models.Item
	require.NoError(t, db.First(&mirror, "id = ?", *copied.ParentID).Error)
	assert.Equal(t, "shared", mirror.Name)
}

func TestReplicate_MissingSource(t *testing.T) {
	db := setupTestDB(t)
	buyer := createTestUser(t, db, "buyer", "")

	svc := NewReplicationService(db)

	_, err := svc.Replicate(uuid.New(), buyer.ID, models.ContentSourceMarketplace)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}
