// internal/services/settlement_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/chain"
	"github.com/stackdrive/stackdrive-backend/internal/config"
	"github.com/stackdrive/stackdrive-backend/internal/models"
	"github.com/stackdrive/stackdrive-backend/internal/utils"
)

// BalanceTransferrer is the treasury surface settlement needs. Satisfied by
// *chain.TreasuryClient; tests substitute their own.
type BalanceTransferrer interface {
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal, reference string) (*chain.TransferResult, error)
}

// SettlementService pays out pending affiliate commissions on-chain. Each
// commission settles independently: one failed transfer marks that item
// failed and the batch keeps going.
type SettlementService struct {
	db            *gorm.DB
	config        *config.Config
	treasury      BalanceTransferrer
	notifications *NotificationService
}

type SettleRequest struct {
	TransactionIDs []uuid.UUID `json:"transaction_ids,omitempty"`
	PayAll         bool        `json:"pay_all,omitempty"`
}

// SettleItemResult reports the outcome for one commission in a batch.
type SettleItemResult struct {
	AffiliateTransactionID uuid.UUID       `json:"affiliate_transaction_id"`
	AffiliateUserID        uuid.UUID       `json:"affiliate_user_id"`
	Amount                 decimal.Decimal `json:"amount"`
	Status                 string          `json:"status"`
	TxHash                 string          `json:"tx_hash,omitempty"`
	Error                  string          `json:"error,omitempty"`
}

type SettleSummary struct {
	Total   int                `json:"total"`
	Paid    int                `json:"paid"`
	Failed  int                `json:"failed"`
	Results []SettleItemResult `json:"results"`
}

// PaymentTotals aggregates an owner's commission ledger by status.
type PaymentTotals struct {
	PendingAmount decimal.Decimal `json:"pending_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	FailedAmount  decimal.Decimal `json:"failed_amount"`
}

func NewSettlementService(db *gorm.DB, cfg *config.Config, treasury BalanceTransferrer, notifications *NotificationService) *SettlementService {
	return &SettlementService{
		db:            db,
		config:        cfg,
		treasury:      treasury,
		notifications: notifications,
	}
}

// SettlePending pays ownerID's selected pending commissions. The owner's
// wallet balance is re-read before every single transfer, so commission K
// failing for funds never blocks commission K+1 if a concurrent top-up lands
// in between. Per-item failures are recorded, not raised; the summary always
// comes back.
func (s *SettlementService) SettlePending(ctx context.Context, ownerID uuid.UUID, req *SettleRequest) (*SettleSummary, error) {
	if !req.PayAll && len(req.TransactionIDs) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "select transaction_ids or set pay_all")
	}

	var owner models.User
	if err := s.db.First(&owner, "id = ?", ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "owner not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if owner.WalletAddress == "" {
		return nil, apperrors.New(apperrors.KindMissingWallet, "configure a wallet address before settling")
	}

	query := s.db.Preload("AffiliateUser").
		Where("owner_id = ? AND status = ?", ownerID, models.CommissionStatusPending)
	if !req.PayAll {
		query = query.Where("id IN ?", req.TransactionIDs)
	}

	var pending []models.AffiliateTransaction
	if err := query.Order("created_at asc").Find(&pending).Error; err != nil {
		return nil, fmt.Errorf("failed to load pending commissions: %w", err)
	}
	if len(pending) == 0 {
		return nil, apperrors.New(apperrors.KindNotFound, "no pending commissions to settle")
	}

	summary := &SettleSummary{Total: len(pending)}
	for i := range pending {
		item := s.settleOne(ctx, &owner, &pending[i])
		if item.Status == string(models.CommissionStatusPaid) {
			summary.Paid++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, item)
	}

	logrus.WithFields(logrus.Fields{
		"owner_id": ownerID,
		"total":    summary.Total,
		"paid":     summary.Paid,
		"failed":   summary.Failed,
	}).Info("Commission settlement batch finished")

	return summary, nil
}

func (s *SettlementService) settleOne(ctx context.Context, owner *models.User, commission *models.AffiliateTransaction) SettleItemResult {
	result := SettleItemResult{
		AffiliateTransactionID: commission.ID,
		AffiliateUserID:        commission.AffiliateUserID,
		Amount:                 commission.CommissionAmount,
	}

	fail := func(reason string) SettleItemResult {
		result.Status = string(models.CommissionStatusFailed)
		result.Error = reason
		if err := s.markFailed(commission, reason); err != nil {
			logrus.WithError(err).WithField("commission_id", commission.ID).
				Error("Failed to persist commission failure")
		}
		return result
	}

	recipient := commission.AffiliateUser.WalletAddress
	if recipient == "" {
		return fail("affiliate has no wallet address configured")
	}

	balance, err := s.treasury.Balance(ctx, owner.WalletAddress)
	if err != nil {
		return fail(fmt.Sprintf("balance check failed: %v", err))
	}
	if balance.LessThan(commission.CommissionAmount) {
		return fail(fmt.Sprintf("insufficient funds: balance %s, commission %s",
			balance.StringFixed(2), commission.CommissionAmount.StringFixed(2)))
	}

	transfer, err := s.treasury.Transfer(ctx, owner.WalletAddress, recipient,
		commission.CommissionAmount, commission.ID.String())
	if err != nil {
		return fail(fmt.Sprintf("transfer failed: %v", err))
	}

	if err := s.markPaid(commission, transfer); err != nil {
		// Funds moved but the ledger write failed. Keep the hash in the
		// result and log loudly; the row stays pending for reconciliation.
		logrus.WithError(err).WithFields(logrus.Fields{
			"commission_id": commission.ID,
			"tx_hash":       transfer.TxHash,
		}).Error("Transfer succeeded but ledger update failed")
		result.Status = string(models.CommissionStatusFailed)
		result.TxHash = transfer.TxHash
		result.Error = "transfer submitted but could not be recorded"
		return result
	}

	result.Status = string(models.CommissionStatusPaid)
	result.TxHash = transfer.TxHash

	if s.notifications != nil {
		go s.notifications.SendCommissionPaidNotice(commission, transfer.TxHash)
	}

	return result
}

// markPaid flips one commission to paid and moves its amount from pending to
// confirmed earnings, in one transaction. The status guard in the WHERE
// clause makes retries idempotent.
func (s *SettlementService) markPaid(commission *models.AffiliateTransaction, transfer *chain.TransferResult) error {
	now := time.Now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		metadata := models.JSONB{}
		for k, v := range commission.Metadata {
			metadata[k] = v
		}
		metadata["payout_tx_hash"] = transfer.TxHash
		metadata["payout_network"] = transfer.Network

		update := tx.Model(&models.AffiliateTransaction{}).
			Where("id = ? AND status = ?", commission.ID, models.CommissionStatusPending).
			Updates(map[string]interface{}{
				"status":   models.CommissionStatusPaid,
				"paid_at":  now,
				"metadata": metadata,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return fmt.Errorf("commission %s is no longer pending", commission.ID)
		}

		return tx.Model(&models.Affiliate{}).Where("id = ?", commission.AffiliateID).
			Updates(map[string]interface{}{
				"pending_earnings": gorm.Expr("pending_earnings - ?", commission.CommissionAmount),
				"total_earnings":   gorm.Expr("total_earnings + ?", commission.CommissionAmount),
			}).Error
	})
}

// markFailed flips one commission to failed and releases its pending amount.
// Failed commissions never count toward confirmed earnings.
func (s *SettlementService) markFailed(commission *models.AffiliateTransaction, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		metadata := models.JSONB{}
		for k, v := range commission.Metadata {
			metadata[k] = v
		}
		metadata["failure_reason"] = reason

		update := tx.Model(&models.AffiliateTransaction{}).
			Where("id = ? AND status = ?", commission.ID, models.CommissionStatusPending).
			Updates(map[string]interface{}{
				"status":   models.CommissionStatusFailed,
				"metadata": metadata,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return fmt.Errorf("commission %s is no longer pending", commission.ID)
		}

		return tx.Model(&models.Affiliate{}).Where("id = ?", commission.AffiliateID).
			UpdateColumn("pending_earnings", gorm.Expr("pending_earnings - ?", commission.CommissionAmount)).Error
	})
}

// GetPayments returns ownerID's commission ledger, optionally filtered by
// status, with aggregate totals per status.
func (s *SettlementService) GetPayments(ownerID uuid.UUID, params utils.PaginationParams) ([]models.AffiliateTransaction, int64, *PaymentTotals, error) {
	query := s.db.Model(&models.AffiliateTransaction{}).
		Preload("AffiliateUser").Preload("OriginalTransaction").
		Where("owner_id = ?", ownerID)

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, nil, fmt.Errorf("failed to count commissions: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "commission_amount", "paid_at"})
	query = utils.ApplyPagination(query, params)

	var commissions []models.AffiliateTransaction
	if err := query.Find(&commissions).Error; err != nil {
		return nil, 0, nil, fmt.Errorf("failed to fetch commissions: %w", err)
	}

	totals, err := s.paymentTotals(ownerID)
	if err != nil {
		return nil, 0, nil, err
	}

	return commissions, total, totals, nil
}

// GetEarnings is the affiliate-side view of the same ledger.
func (s *SettlementService) GetEarnings(affiliateUserID uuid.UUID, params utils.PaginationParams) ([]models.AffiliateTransaction, int64, error) {
	query := s.db.Model(&models.AffiliateTransaction{}).
		Preload("Owner").Preload("OriginalTransaction").
		Where("affiliate_user_id = ?", affiliateUserID)

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count earnings: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "commission_amount", "paid_at"})
	query = utils.ApplyPagination(query, params)

	var earnings []models.AffiliateTransaction
	if err := query.Find(&earnings).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch earnings: %w", err)
	}

	return earnings, total, nil
}

func (s *SettlementService) paymentTotals(ownerID uuid.UUID) (*PaymentTotals, error) {
	type row struct {
		Status string
		Amount decimal.Decimal
	}

	var rows []row
	err := s.db.Model(&models.AffiliateTransaction{}).
		Select("status, COALESCE(SUM(commission_amount), 0) AS amount").
		Where("owner_id = ?", ownerID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate commissions: %w", err)
	}

	totals := &PaymentTotals{
		PendingAmount: decimal.Zero,
		PaidAmount:    decimal.Zero,
		FailedAmount:  decimal.Zero,
	}
	for _, r := range rows {
		switch models.CommissionStatus(r.Status) {
		case models.CommissionStatusPending:
			totals.PendingAmount = r.Amount
		case models.CommissionStatusPaid:
			totals.PaidAmount = r.Amount
		case models.CommissionStatusFailed:
			totals.FailedAmount = r.Amount
		}
	}

	return totals, nil
}
