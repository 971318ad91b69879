// internal/models/item.go
package models

import (
	"github.com/google/uuid"
)

// Item is a node in a per-owner content tree. Folders parent other items;
// files point at a blob in object storage. Sibling names are unique per
// owner; the guard index lives in database.RunMigrations because root items
// have a NULL parent and a plain composite index would let them collide.
type Item struct {
	BaseModel
	Name          string        `json:"name" gorm:"size:255;not null"`
	Kind          ItemKind      `json:"kind" gorm:"type:varchar(10);not null;index"`
	ParentID      *uuid.UUID    `json:"parent_id" gorm:"type:uuid;index"`
	OwnerID       uuid.UUID     `json:"owner_id" gorm:"type:uuid;not null;index"`
	Size          int64         `json:"size" gorm:"default:0"`
	MimeType      string        `json:"mime_type" gorm:"size:100"`
	BlobRef       string        `json:"blob_ref" gorm:"size:512"`
	ContentSource ContentSource `json:"content_source" gorm:"type:varchar(20);default:'user';index"`

	// Relationships
	Owner    User    `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Parent   *Item   `json:"parent,omitempty" gorm:"foreignKey:ParentID"`
	Children []Item  `json:"children,omitempty" gorm:"foreignKey:ParentID"`
	Listing  *Listing `json:"listing,omitempty" gorm:"foreignKey:ItemID"`
}

func (i *Item) IsFolder() bool {
	return i.Kind == ItemKindFolder
}
