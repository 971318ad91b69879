// internal/models/user.go
package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Username      string     `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email         string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash  string     `json:"-" gorm:"size:255;not null"`
	WalletAddress string     `json:"wallet_address" gorm:"size:64;index"`
	Status        UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	ProfileData   JSONB      `json:"profile_data" gorm:"type:jsonb"`
	LastLoginAt   *time.Time `json:"last_login_at"`

	// Relationships
	Items    []Item    `json:"items,omitempty" gorm:"foreignKey:OwnerID"`
	Listings []Listing `json:"listings,omitempty" gorm:"foreignKey:SellerID"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}
