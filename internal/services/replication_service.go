// internal/services/replication_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/models"
)

// ReplicationService grants a buyer a durable copy of acquired content by
// duplicating item metadata into their tree. Blobs are shared by reference;
// only the metadata rows are new. The copy lands under a mirror folder
// ("marketplace" or "shared") that is created on first use and reused after.
type ReplicationService struct {
	db *gorm.DB
}

func NewReplicationService(db *gorm.DB) *ReplicationService {
	return &ReplicationService{db: db}
}

func mirrorFolderName(source models.ContentSource) string {
	if source == models.ContentSourceShared {
		return "shared"
	}
	return "marketplace"
}

func provenanceSuffix(source models.ContentSource) string {
	if source == models.ContentSourceShared {
		return " (Shared)"
	}
	return " (Purchased)"
}

// Replicate copies sourceItem (and, for folders, its full subtree) into
// destOwner's mirror folder. The whole copy happens in one database
// transaction: either the complete subtree lands or nothing does.
func (s *ReplicationService) Replicate(sourceItemID, destOwnerID uuid.UUID, source models.ContentSource) (*models.Item, error) {
	var sourceItem models.Item
	if err := s.db.First(&sourceItem, "id = ?", sourceItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "source item not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	var destOwner models.User
	if err := s.db.First(&destOwner, "id = ?", destOwnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "destination owner not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	var rootCopy *models.Item
	err := s.db.Transaction(func(tx *gorm.DB) error {
		mirror, err := s.lookupOrCreateMirror(tx, destOwnerID, mirrorFolderName(source))
		if err != nil {
			return err
		}

		rootCopy, err = s.copySubtree(tx, &sourceItem, destOwnerID, mirror.ID, source)
		return err
	})
	if err != nil {
		return nil, err
	}

	return rootCopy, nil
}

func (s *ReplicationService) lookupOrCreateMirror(tx *gorm.DB, ownerID uuid.UUID, name string) (*models.Item, error) {
	var mirror models.Item
	err := tx.Where("owner_id = ? AND parent_id IS NULL AND name = ? AND kind = ?",
		ownerID, name, models.ItemKindFolder).First(&mirror).Error
	if err == nil {
		return &mirror, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up mirror folder: %w", err)
	}

	mirror = models.Item{
		Name:          name,
		Kind:          models.ItemKindFolder,
		OwnerID:       ownerID,
		ContentSource: models.ContentSourceUser,
	}
	if err := tx.Create(&mirror).Error; err != nil {
		return nil, fmt.Errorf("failed to create mirror folder: %w", err)
	}

	return &mirror, nil
}

// copySubtree duplicates item under destParentID with an explicit worklist,
// so deep trees cannot blow the stack and depth is bounded.
func (s *ReplicationService) copySubtree(tx *gorm.DB, item *models.Item, destOwnerID, destParentID uuid.UUID, source models.ContentSource) (*models.Item, error) {
	rootName, err := s.availableName(tx, destOwnerID, destParentID, item.Name+provenanceSuffix(source))
	if err != nil {
		return nil, err
	}

	rootCopy := &models.Item{
		Name:          rootName,
		Kind:          item.Kind,
		ParentID:      &destParentID,
		OwnerID:       destOwnerID,
		Size:          item.Size,
		MimeType:      item.MimeType,
		BlobRef:       item.BlobRef,
		ContentSource: source,
	}
	if err := tx.Create(rootCopy).Error; err != nil {
		return nil, fmt.Errorf("failed to copy item: %w", err)
	}

	if item.Kind != models.ItemKindFolder {
		return rootCopy, nil
	}

	type workEntry struct {
		sourceID uuid.UUID
		destID   uuid.UUID
		depth    int
	}
	worklist := []workEntry{{sourceID: item.ID, destID: rootCopy.ID, depth: 0}}

	for len(worklist) > 0 {
		entry := worklist[0]
		worklist = worklist[1:]

		if entry.depth >= maxTreeDepth {
			return nil, fmt.Errorf("subtree of item %s exceeds maximum tree depth", item.ID)
		}

		var children []models.Item
		if err := tx.Where("parent_id = ?", entry.sourceID).Find(&children).Error; err != nil {
			return nil, fmt.Errorf("failed to read children: %w", err)
		}

		for _, child := range children {
			childCopy := models.Item{
				Name:          child.Name,
				Kind:          child.Kind,
				ParentID:      &entry.destID,
				OwnerID:       destOwnerID,
				Size:          child.Size,
				MimeType:      child.MimeType,
				BlobRef:       child.BlobRef,
				ContentSource: source,
			}
			if err := tx.Create(&childCopy).Error; err != nil {
				return nil, fmt.Errorf("failed to copy item %s: %w", child.ID, err)
			}

			if child.Kind == models.ItemKindFolder {
				worklist = append(worklist, workEntry{sourceID: child.ID, destID: childCopy.ID, depth: entry.depth + 1})
			}
		}
	}

	return rootCopy, nil
}

// availableName returns base, or base with a numeric suffix when a sibling
// already holds it. A retried purchase makes a second copy on purpose; the
// transaction record decides whether someone paid, not the copy.
func (s *ReplicationService) availableName(tx *gorm.DB, ownerID, parentID uuid.UUID, base string) (string, error) {
	name := base
	for attempt := 2; attempt <= 50; attempt++ {
		var count int64
		err := tx.Model(&models.Item{}).
			Where("owner_id = ? AND parent_id = ? AND name = ?", ownerID, parentID, name).
			Count(&count).Error
		if err != nil {
			return "", fmt.Errorf("failed to check name availability: %w", err)
		}
		if count == 0 {
			return name, nil
		}
		name = fmt.Sprintf("%s (%d)", base, attempt)
	}

	return "", fmt.Errorf("no available name for %q", base)
}
