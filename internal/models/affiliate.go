// internal/models/affiliate.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Affiliate is a commission agreement between a content owner and an earner,
// scoped to exactly one listing or one shared link. total_earnings holds
// settled commissions only; pending_earnings holds recorded-but-unsettled
// amounts, so failed payouts never inflate confirmed earnings.
type Affiliate struct {
	BaseModel
	ListingID       *uuid.UUID      `json:"listing_id" gorm:"type:uuid;index;uniqueIndex:idx_affiliates_listing_user"`
	SharedLinkID    *uuid.UUID      `json:"shared_link_id" gorm:"type:uuid;index;uniqueIndex:idx_affiliates_link_user"`
	OwnerID         uuid.UUID       `json:"owner_id" gorm:"type:uuid;not null;index"`
	AffiliateUserID uuid.UUID       `json:"affiliate_user_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_affiliates_listing_user;uniqueIndex:idx_affiliates_link_user"`
	CommissionRate  decimal.Decimal `json:"commission_rate" gorm:"type:decimal(5,2);not null"`
	AffiliateCode   string          `json:"affiliate_code" gorm:"size:32;uniqueIndex;not null"`
	Status          AffiliateStatus `json:"status" gorm:"type:varchar(20);default:'active';index"`
	TotalEarnings   decimal.Decimal `json:"total_earnings" gorm:"type:decimal(20,2);default:0"`
	PendingEarnings decimal.Decimal `json:"pending_earnings" gorm:"type:decimal(20,2);default:0"`
	TotalSales      int64           `json:"total_sales" gorm:"default:0"`

	// Relationships
	Listing       *Listing    `json:"listing,omitempty" gorm:"foreignKey:ListingID"`
	SharedLink    *SharedLink `json:"shared_link,omitempty" gorm:"foreignKey:SharedLinkID"`
	Owner         User        `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	AffiliateUser User        `json:"affiliate_user,omitempty" gorm:"foreignKey:AffiliateUserID"`
}

// AffiliateTransaction is a commission owed or paid for one sale. The rate is
// snapshotted at sale time so later agreement changes never rewrite history.
// (affiliate_id, original_transaction_id) is unique: one commission per sale.
type AffiliateTransaction struct {
	BaseModel
	AffiliateID           uuid.UUID        `json:"affiliate_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_affiliate_tx_unique"`
	OriginalTransactionID uuid.UUID        `json:"original_transaction_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_affiliate_tx_unique"`
	AffiliateUserID       uuid.UUID        `json:"affiliate_user_id" gorm:"type:uuid;not null;index"`
	OwnerID               uuid.UUID        `json:"owner_id" gorm:"type:uuid;not null;index"`
	BuyerID               uuid.UUID        `json:"buyer_id" gorm:"type:uuid;not null"`
	SaleAmount            decimal.Decimal  `json:"sale_amount" gorm:"type:decimal(20,2);not null"`
	CommissionRate        decimal.Decimal  `json:"commission_rate" gorm:"type:decimal(5,2);not null"`
	CommissionAmount      decimal.Decimal  `json:"commission_amount" gorm:"type:decimal(20,2);not null"`
	Status                CommissionStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	PaidAt                *time.Time       `json:"paid_at"`
	Metadata              JSONB            `json:"metadata" gorm:"type:jsonb"`

	// Relationships
	Affiliate           Affiliate   `json:"affiliate,omitempty" gorm:"foreignKey:AffiliateID"`
	OriginalTransaction Transaction `json:"original_transaction,omitempty" gorm:"foreignKey:OriginalTransactionID"`
	AffiliateUser       User        `json:"affiliate_user,omitempty" gorm:"foreignKey:AffiliateUserID"`
	Owner               User        `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
}
