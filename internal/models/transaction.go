// internal/models/transaction.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is the immutable settlement record of one sale. The partial
// unique index on (buyer_id, item_id) for completed rows is the at-most-once
// purchase guard; it is created in database.RunMigrations.
type Transaction struct {
	BaseModel
	ListingID     *uuid.UUID        `json:"listing_id" gorm:"type:uuid;index"`
	SharedLinkID  *uuid.UUID        `json:"shared_link_id" gorm:"type:uuid;index"`
	BuyerID       uuid.UUID         `json:"buyer_id" gorm:"type:uuid;not null;index"`
	SellerID      uuid.UUID         `json:"seller_id" gorm:"type:uuid;not null;index"`
	ItemID        uuid.UUID         `json:"item_id" gorm:"type:uuid;not null;index"`
	Amount        decimal.Decimal   `json:"amount" gorm:"type:decimal(20,2);not null"`
	Status        TransactionStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	TransactionID string            `json:"transaction_id" gorm:"size:64;uniqueIndex;not null"`
	ReceiptNumber string            `json:"receipt_number" gorm:"size:64;uniqueIndex;not null"`
	PurchaseDate  time.Time         `json:"purchase_date"`
	Metadata      JSONB             `json:"metadata" gorm:"type:jsonb"`

	// Relationships
	Listing    *Listing    `json:"listing,omitempty" gorm:"foreignKey:ListingID"`
	SharedLink *SharedLink `json:"shared_link,omitempty" gorm:"foreignKey:SharedLinkID"`
	Buyer      User        `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
	Seller     User        `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
	Item       Item        `json:"item,omitempty" gorm:"foreignKey:ItemID"`
}
