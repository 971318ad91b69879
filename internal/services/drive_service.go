// internal/services/drive_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/models"
	"github.com/stackdrive/stackdrive-backend/internal/utils"
)

// maxTreeDepth bounds every tree walk. Anything deeper than this is either a
// corrupted parent chain or abuse; both should fail loudly instead of
// overflowing the stack.
const maxTreeDepth = 64

// DriveService owns the per-user item tree: folders, file metadata, moves,
// renames and cascading deletes.
type DriveService struct {
	db             *gorm.DB
	storageService *StorageService
}

type CreateFolderRequest struct {
	Name     string     `json:"name" validate:"required,min=1,max=255"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}

type RegisterFileRequest struct {
	Name     string     `json:"name" validate:"required,min=1,max=255"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
	Size     int64      `json:"size"`
	MimeType string     `json:"mime_type"`
	BlobRef  string     `json:"blob_ref"`
}

type MoveItemRequest struct {
	NewParentID *uuid.UUID `json:"new_parent_id,omitempty"`
}

type RenameItemRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

func NewDriveService(db *gorm.DB, storageService *StorageService) *DriveService {
	return &DriveService{
		db:             db,
		storageService: storageService,
	}
}

func (s *DriveService) CreateFolder(ownerID uuid.UUID, req *CreateFolderRequest) (*models.Item, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "validation failed", err)
	}

	if err := s.checkParent(s.db, ownerID, req.ParentID); err != nil {
		return nil, err
	}

	folder := &models.Item{
		Name:          req.Name,
		Kind:          models.ItemKindFolder,
		ParentID:      req.ParentID,
		OwnerID:       ownerID,
		ContentSource: models.ContentSourceUser,
	}

	if err := s.db.Create(folder).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Newf(apperrors.KindConflict, "an item named %q already exists here", req.Name)
		}
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	return folder, nil
}

func (s *DriveService) RegisterFile(ownerID uuid.UUID, req *RegisterFileRequest) (*models.Item, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "validation failed", err)
	}

	if err := s.checkParent(s.db, ownerID, req.ParentID); err != nil {
		return nil, err
	}

	item := &models.Item{
		Name:          req.Name,
		Kind:          models.ItemKindFile,
		ParentID:      req.ParentID,
		OwnerID:       ownerID,
		Size:          req.Size,
		MimeType:      req.MimeType,
		BlobRef:       req.BlobRef,
		ContentSource: models.ContentSourceUser,
	}

	if err := s.db.Create(item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Newf(apperrors.KindConflict, "an item named %q already exists here", req.Name)
		}
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return item, nil
}

func (s *DriveService) GetItem(ownerID, itemID uuid.UUID) (*models.Item, error) {
	var item models.Item
	if err := s.db.Where("id = ? AND owner_id = ?", itemID, ownerID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "item not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &item, nil
}

func (s *DriveService) ListChildren(ownerID uuid.UUID, parentID *uuid.UUID) ([]models.Item, error) {
	query := s.db.Where("owner_id = ?", ownerID)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}

	var items []models.Item
	if err := query.Order("kind desc, name asc").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (s *DriveService) Rename(ownerID, itemID uuid.UUID, req *RenameItemRequest) (*models.Item, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "validation failed", err)
	}

	item, err := s.GetItem(ownerID, itemID)
	if err != nil {
		return nil, err
	}

	if err := s.db.Model(item).Update("name", req.Name).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Newf(apperrors.KindConflict, "an item named %q already exists here", req.Name)
		}
		return nil, fmt.Errorf("failed to rename item: %w", err)
	}

	item.Name = req.Name
	return item, nil
}

// Move reparents an item. A folder may never become a descendant of itself;
// the ancestor walk is capped at maxTreeDepth.
func (s *DriveService) Move(ownerID, itemID uuid.UUID, req *MoveItemRequest) (*models.Item, error) {
	item, err := s.GetItem(ownerID, itemID)
	if err != nil {
		return nil, err
	}

	if req.NewParentID != nil {
		if *req.NewParentID == itemID {
			return nil, apperrors.New(apperrors.KindValidation, "cannot move an item into itself")
		}

		if err := s.checkParent(s.db, ownerID, req.NewParentID); err != nil {
			return nil, err
		}

		isDescendant, err := s.isAncestor(itemID, *req.NewParentID)
		if err != nil {
			return nil, err
		}
		if isDescendant {
			return nil, apperrors.New(apperrors.KindValidation, "cannot move a folder into its own subtree")
		}
	}

	if err := s.db.Model(item).Update("parent_id", req.NewParentID).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Newf(apperrors.KindConflict, "an item named %q already exists in the destination", item.Name)
		}
		return nil, fmt.Errorf("failed to move item: %w", err)
	}

	item.ParentID = req.NewParentID
	return item, nil
}

// Delete removes an item and its whole subtree. Rows go atomically; blobs are
// removed best-effort afterwards since the metadata is the source of truth.
func (s *DriveService) Delete(ownerID, itemID uuid.UUID) error {
	item, err := s.GetItem(ownerID, itemID)
	if err != nil {
		return err
	}

	doomed, err := s.collectSubtree(item)
	if err != nil {
		return err
	}

	ids := make([]uuid.UUID, 0, len(doomed))
	for _, d := range doomed {
		ids = append(ids, d.ID)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("id IN ?", ids).Delete(&models.Item{}).Error; err != nil {
			return fmt.Errorf("failed to delete items: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.storageService != nil {
		for _, d := range doomed {
			if d.Kind == models.ItemKindFile && d.BlobRef != "" && d.ContentSource == models.ContentSourceUser {
				if err := s.storageService.DeleteBlob(d.BlobRef); err != nil {
					logrus.WithError(err).WithField("item_id", d.ID).Warn("Blob cleanup failed")
				}
			}
		}
	}

	return nil
}

// Path resolves the slash-joined path of an item from the owner's root.
func (s *DriveService) Path(item *models.Item) (string, error) {
	segments := []string{item.Name}

	current := item
	for depth := 0; current.ParentID != nil; depth++ {
		if depth >= maxTreeDepth {
			return "", fmt.Errorf("item %s exceeds maximum tree depth", item.ID)
		}

		var parent models.Item
		if err := s.db.First(&parent, "id = ?", *current.ParentID).Error; err != nil {
			return "", fmt.Errorf("failed to resolve parent: %w", err)
		}

		segments = append([]string{parent.Name}, segments...)
		current = &parent
	}

	path := "/"
	for i, seg := range segments {
		if i > 0 {
			path += "/"
		}
		path += seg
	}
	return path, nil
}

func (s *DriveService) checkParent(db *gorm.DB, ownerID uuid.UUID, parentID *uuid.UUID) error {
	if parentID == nil {
		return nil
	}

	var parent models.Item
	if err := db.Where("id = ? AND owner_id = ?", *parentID, ownerID).First(&parent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(apperrors.KindNotFound, "parent folder not found")
		}
		return fmt.Errorf("database error: %w", err)
	}

	if !parent.IsFolder() {
		return apperrors.New(apperrors.KindValidation, "parent must be a folder")
	}

	return nil
}

// isAncestor reports whether candidate sits below ancestorID, by walking up
// from candidate's parents.
func (s *DriveService) isAncestor(ancestorID, candidateID uuid.UUID) (bool, error) {
	currentID := candidateID
	for depth := 0; depth < maxTreeDepth; depth++ {
		var current models.Item
		if err := s.db.Select("id", "parent_id").First(&current, "id = ?", currentID).Error; err != nil {
			return false, fmt.Errorf("failed to walk ancestors: %w", err)
		}

		if current.ParentID == nil {
			return false, nil
		}
		if *current.ParentID == ancestorID {
			return true, nil
		}
		currentID = *current.ParentID
	}

	return false, fmt.Errorf("ancestor walk exceeded maximum tree depth")
}

// collectSubtree gathers item and every descendant breadth-first.
func (s *DriveService) collectSubtree(item *models.Item) ([]models.Item, error) {
	collected := []models.Item{*item}
	frontier := []uuid.UUID{item.ID}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= maxTreeDepth {
			return nil, fmt.Errorf("subtree of item %s exceeds maximum tree depth", item.ID)
		}

		var children []models.Item
		if err := s.db.Where("parent_id IN ?", frontier).Find(&children).Error; err != nil {
			return nil, fmt.Errorf("failed to collect subtree: %w", err)
		}

		frontier = frontier[:0]
		for _, child := range children {
			collected = append(collected, child)
			if child.Kind == models.ItemKindFolder {
				frontier = append(frontier, child.ID)
			}
		}
	}

	return collected, nil
}
