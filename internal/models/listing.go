// internal/models/listing.go
package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Listing offers a single item for sale. An item carries at most one listing.
type Listing struct {
	BaseModel
	ItemID      uuid.UUID       `json:"item_id" gorm:"type:uuid;not null;uniqueIndex"`
	SellerID    uuid.UUID       `json:"seller_id" gorm:"type:uuid;not null;index"`
	Title       string          `json:"title" gorm:"size:255;not null"`
	Description string          `json:"description" gorm:"type:text"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(20,2);not null"`
	Status      ListingStatus   `json:"status" gorm:"type:varchar(20);default:'active';index"`
	Tags        JSONB           `json:"tags" gorm:"type:jsonb"`
	ViewCount   int64           `json:"view_count" gorm:"default:0"`
	SalesCount  int64           `json:"sales_count" gorm:"default:0"`

	// Relationships
	Item   Item `json:"item,omitempty" gorm:"foreignKey:ItemID"`
	Seller User `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
}
