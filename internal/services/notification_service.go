// internal/services/notification_service.go
package services

import (
	"fmt"
	"net/smtp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stackdrive/stackdrive-backend/internal/config"
	"github.com/stackdrive/stackdrive-backend/internal/models"
)

// NotificationService sends transactional email. Every send is best-effort
// and called from goroutines; a mail failure never fails a purchase.
type NotificationService struct {
	db     *gorm.DB
	config *config.Config
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	return &NotificationService{
		db:     db,
		config: config,
	}
}

func (s *NotificationService) SendPurchaseReceipt(transaction *models.Transaction) {
	buyer, err := s.loadUser(transaction.BuyerID)
	if err != nil {
		logrus.WithError(err).Warn("Cannot send purchase receipt: buyer lookup failed")
		return
	}

	subject := fmt.Sprintf("Your receipt %s", transaction.ReceiptNumber)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour purchase is complete.\n\nReceipt: %s\nAmount: %s %s\nDate: %s\n\nThe content is now available in your drive.\n",
		buyer.Username,
		transaction.ReceiptNumber,
		transaction.Amount.StringFixed(2),
		s.config.Chain.SettlementAsset,
		transaction.PurchaseDate.Format("2006-01-02 15:04 MST"),
	)

	s.send(buyer.Email, subject, body)
}

func (s *NotificationService) SendSaleNotice(transaction *models.Transaction) {
	seller, err := s.loadUser(transaction.SellerID)
	if err != nil {
		logrus.WithError(err).Warn("Cannot send sale notice: seller lookup failed")
		return
	}

	subject := "You made a sale"
	body := fmt.Sprintf(
		"Hi %s,\n\nYour content just sold for %s %s.\nReceipt: %s\n",
		seller.Username,
		transaction.Amount.StringFixed(2),
		s.config.Chain.SettlementAsset,
		transaction.ReceiptNumber,
	)

	s.send(seller.Email, subject, body)
}

func (s *NotificationService) SendCommissionPaidNotice(commission *models.AffiliateTransaction, txHash string) {
	affiliate, err := s.loadUser(commission.AffiliateUserID)
	if err != nil {
		logrus.WithError(err).Warn("Cannot send commission notice: affiliate lookup failed")
		return
	}

	subject := "Commission paid out"
	body := fmt.Sprintf(
		"Hi %s,\n\nYour commission of %s %s has been paid to your wallet.\nTransaction hash: %s\n",
		affiliate.Username,
		commission.CommissionAmount.StringFixed(2),
		s.config.Chain.SettlementAsset,
		txHash,
	)

	s.send(affiliate.Email, subject, body)
}

func (s *NotificationService) loadUser(userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *NotificationService) send(to, subject, body string) {
	// No SMTP credentials means local development; log instead of sending.
	if s.config.Email.SMTPUsername == "" {
		logrus.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Debug("Email sending skipped (SMTP not configured)")
		return
	}

	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.config.Email.FromName, s.config.Email.FromEmail, to, subject, body)

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)
	addr := s.config.Email.SMTPHost + ":" + s.config.Email.SMTPPort

	if err := smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, []byte(msg)); err != nil {
		logrus.WithError(err).WithField("to", to).Warn("Failed to send email")
	}
}
