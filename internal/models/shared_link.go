// internal/models/shared_link.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SharedLink is a token-addressable distribution channel for an item,
// either free (public) or paid (monetized). Monetized links require a
// positive price; paid users are remembered so access survives revisits.
type SharedLink struct {
	BaseModel
	ItemID      uuid.UUID        `json:"item_id" gorm:"type:uuid;not null;index"`
	OwnerID     uuid.UUID        `json:"owner_id" gorm:"type:uuid;not null;index"`
	LinkToken   string           `json:"link_token" gorm:"size:64;uniqueIndex;not null"`
	Kind        SharedLinkKind   `json:"kind" gorm:"type:varchar(20);not null"`
	Price       *decimal.Decimal `json:"price,omitempty" gorm:"type:decimal(20,2)"`
	IsActive    bool             `json:"is_active" gorm:"default:true;index"`
	ExpiresAt   *time.Time       `json:"expires_at"`
	AccessCount int64            `json:"access_count" gorm:"default:0"`

	// Relationships
	Item  Item `json:"item,omitempty" gorm:"foreignKey:ItemID"`
	Owner User `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
}

func (l *SharedLink) IsExpired() bool {
	return l.ExpiresAt != nil && time.Now().After(*l.ExpiresAt)
}

// SharedLinkPaidUser is one row per (link, payer). The composite primary key
// lets concurrent payments register independently and makes replays no-ops.
type SharedLinkPaidUser struct {
	SharedLinkID uuid.UUID `json:"shared_link_id" gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	CreatedAt    time.Time `json:"created_at"`
}
