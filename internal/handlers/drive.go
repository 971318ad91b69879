// internal/handlers/drive.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stackdrive/stackdrive-backend/internal/models"
	"github.com/stackdrive/stackdrive-backend/internal/services"
	"github.com/stackdrive/stackdrive-backend/internal/utils"
)

type DriveHandler struct {
	driveService   *services.DriveService
	storageService *services.StorageService
}

func NewDriveHandler(driveService *services.DriveService, storageService *services.StorageService) *DriveHandler {
	return &DriveHandler{
		driveService:   driveService,
		storageService: storageService,
	}
}

// CreateFolder creates a folder in the caller's drive.
// POST /v1/drive/folders
func (h *DriveHandler) CreateFolder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", nil)
		return
	}

	folder, err := h.driveService.CreateFolder(userID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, folder)
}

// Upload stores a file blob and registers its metadata.
// POST /v1/drive/files (multipart: file, optional parent_id)
func (h *DriveHandler) Upload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, "file is required", nil)
		return
	}
	defer file.Close()

	var parentID *uuid.UUID
	if raw := c.PostForm("parent_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, "invalid parent_id", nil)
			return
		}
		parentID = &id
	}

	upload, err := h.storageService.UploadFile(file, header, userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	item, err := h.driveService.RegisterFile(userID, &services.RegisterFileRequest{
		Name:     header.Filename,
		ParentID: parentID,
		Size:     upload.Size,
		MimeType: upload.MimeType,
		BlobRef:  upload.Key,
	})
	if err != nil {
		// The row failed; don't leave the blob behind.
		h.storageService.DeleteBlob(upload.Key)
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, item)
}

// List returns the children of a folder, or the root when parent_id is absent.
// GET /v1/drive/items?parent_id=...
func (h *DriveHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var parentID *uuid.UUID
	if raw := c.Query("parent_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.BadRequestResponse(c, "invalid parent_id", nil)
			return
		}
		parentID = &id
	}

	items, err := h.driveService.ListChildren(userID, parentID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, items)
}

// Get returns one item with its resolved path.
// GET /v1/drive/items/:id
func (h *DriveHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	itemID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	item, err := h.driveService.GetItem(userID, itemID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	path, err := h.driveService.Path(item)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"item": item, "path": path})
}

// Rename changes an item's name.
// PUT /v1/drive/items/:id/name
func (h *DriveHandler) Rename(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	itemID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req services.RenameItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", nil)
		return
	}

	item, err := h.driveService.Rename(userID, itemID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, item)
}

// Move reparents an item.
// PUT /v1/drive/items/:id/parent
func (h *DriveHandler) Move(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	itemID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req services.MoveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid request body", nil)
		return
	}

	item, err := h.driveService.Move(userID, itemID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, item)
}

// Delete removes an item and its subtree.
// DELETE /v1/drive/items/:id
func (h *DriveHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	itemID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.driveService.Delete(userID, itemID); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"deleted": true})
}

// Download returns a short-lived URL for a file's content.
// GET /v1/drive/items/:id/download
func (h *DriveHandler) Download(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	itemID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	item, err := h.driveService.GetItem(userID, itemID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	if item.Kind != models.ItemKindFile || item.BlobRef == "" {
		utils.BadRequestResponse(c, "item has no downloadable content", nil)
		return
	}

	url, err := h.storageService.DownloadURL(item.BlobRef, 15*time.Minute)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"url": url, "expires_in": 900})
}
