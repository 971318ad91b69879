// internal/chain/treasury.go

// Package chain talks to the external treasury signer service that custodies
// owner wallets and submits stablecoin transfers. Key management and node
// operation live entirely on the other side of this API.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/config"
)

type TreasuryClient struct {
	baseURL    string
	network    string
	asset      string
	httpClient *http.Client
}

// TransferResult reports a submitted on-chain transfer.
type TransferResult struct {
	TxHash  string `json:"tx_hash"`
	Network string `json:"network"`
}

type balanceResponse struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

type transferRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Asset     string `json:"asset"`
	Network   string `json:"network"`
	Reference string `json:"reference,omitempty"`
}

type transferResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash"`
	Error   string `json:"error,omitempty"`
}

func NewTreasuryClient(cfg config.ChainConfig) *TreasuryClient {
	return &TreasuryClient{
		baseURL: cfg.TreasuryURL,
		network: cfg.Network,
		asset:   cfg.SettlementAsset,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Second,
		},
	}
}

// Balance returns the live settlement-asset balance of address. Settlement
// re-reads this before every transfer; never cache it across payouts.
func (c *TreasuryClient) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/balance?asset=%s",
		c.baseURL, url.PathEscape(address), url.QueryEscape(c.asset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build balance request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.KindUnavailable, "treasury service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, apperrors.Newf(apperrors.KindUnavailable,
			"treasury service returned status %d", resp.StatusCode)
	}

	var result balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.KindUnavailable, "invalid treasury response", err)
	}

	balance, err := decimal.NewFromString(result.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("treasury returned malformed balance %q: %w", result.Balance, err)
	}

	return balance, nil
}

// Transfer submits a transfer from→to for amount in the settlement asset and
// returns the transaction hash once the treasury accepts it.
func (c *TreasuryClient) Transfer(ctx context.Context, from, to string, amount decimal.Decimal, reference string) (*TransferResult, error) {
	body, err := json.Marshal(transferRequest{
		From:      from,
		To:        to,
		Amount:    amount.StringFixed(2),
		Asset:     c.asset,
		Network:   c.network,
		Reference: reference,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnavailable, "treasury service unreachable", err)
	}
	defer resp.Body.Close()

	var result transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnavailable, "invalid treasury response", err)
	}

	if resp.StatusCode != http.StatusOK || !result.Success {
		reason := result.Error
		if reason == "" {
			reason = fmt.Sprintf("treasury rejected transfer with status %d", resp.StatusCode)
		}
		return nil, apperrors.New(apperrors.KindPaymentRejected, reason)
	}

	return &TransferResult{TxHash: result.TxHash, Network: c.network}, nil
}
