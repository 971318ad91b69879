// internal/payproto/payproto.go

// Package payproto verifies inbound payment proofs against an external
// facilitator. The model is post-payment confirmation: the buyer pays
// on-chain first, then presents a signed payment payload in the X-Payment
// header, and the facilitator confirms the transfer matches what the
// resource demanded. Nothing here moves funds.
package payproto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
)

// PaymentHeader is the HTTP header carrying the payment payload.
const PaymentHeader = "X-Payment"

// Requirements describes the transfer a resource demands before access.
type Requirements struct {
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	PayTo       string `json:"pay_to"`
	Resource    string `json:"resource"`
	Description string `json:"description,omitempty"`
}

// NewRequirements builds the exact-amount requirements for a priced resource.
func NewRequirements(amount decimal.Decimal, payTo, network, asset, resource string) Requirements {
	return Requirements{
		Scheme:   "exact",
		Network:  network,
		Asset:    asset,
		Amount:   amount.StringFixed(2),
		PayTo:    payTo,
		Resource: resource,
	}
}

// Payload is the decoded X-Payment header content.
type Payload struct {
	Version int             `json:"version"`
	Scheme  string          `json:"scheme"`
	Network string          `json:"network"`
	Proof   json.RawMessage `json:"proof"`
}

// Receipt is the structured result of a verified payment proof.
type Receipt struct {
	TransactionHash string `json:"transaction_hash"`
	Network         string `json:"network"`
	PayerAddress    string `json:"payer_address"`
	Success         bool   `json:"success"`
}

// DecodeHeader parses the base64-encoded JSON payment payload. An absent or
// malformed header is an InvalidProof error so the caller can answer 402.
func DecodeHeader(header string) (*Payload, error) {
	if header == "" {
		return nil, apperrors.New(apperrors.KindInvalidProof, "payment proof header is missing")
	}

	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidProof, "payment proof is not valid base64", err)
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidProof, "payment proof is not valid JSON", err)
	}

	if payload.Scheme == "" || payload.Network == "" {
		return nil, apperrors.New(apperrors.KindInvalidProof, "payment proof is missing scheme or network")
	}

	return &payload, nil
}

// EncodePayload is the inverse of DecodeHeader. Used by tests and tooling.
func EncodePayload(payload *Payload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
