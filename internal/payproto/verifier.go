// internal/payproto/verifier.go
package payproto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stackdrive/stackdrive-backend/internal/apperrors"
	"github.com/stackdrive/stackdrive-backend/internal/config"
)

// Verifier checks payment payloads against a facilitator service.
type Verifier struct {
	baseURL    string
	httpClient *http.Client
}

type verifyRequest struct {
	Payload      *Payload     `json:"payment_payload"`
	Requirements Requirements `json:"payment_requirements"`
}

type verifyResponse struct {
	IsValid       bool   `json:"is_valid"`
	InvalidReason string `json:"invalid_reason,omitempty"`
	Transaction   string `json:"transaction,omitempty"`
	Network       string `json:"network,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

func NewVerifier(cfg config.ChainConfig) *Verifier {
	return &Verifier{
		baseURL: cfg.FacilitatorURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Second,
		},
	}
}

// Verify decodes the payment header and asks the facilitator to confirm the
// transfer satisfies the requirements. A proof the facilitator rejects comes
// back as PaymentRejected; a proof we cannot even parse as InvalidProof. The
// returned receipt always has Success=true; unsuccessful proofs are errors.
func (v *Verifier) Verify(ctx context.Context, header string, req Requirements) (*Receipt, error) {
	payload, err := DecodeHeader(header)
	if err != nil {
		return nil, err
	}

	if payload.Scheme != req.Scheme {
		return nil, apperrors.Newf(apperrors.KindInvalidProof,
			"payment proof scheme %q does not match required %q", payload.Scheme, req.Scheme)
	}

	if payload.Network != req.Network {
		return nil, apperrors.Newf(apperrors.KindInvalidProof,
			"payment proof network %q does not match required %q", payload.Network, req.Network)
	}

	body, err := json.Marshal(verifyRequest{Payload: payload, Requirements: req})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verify request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnavailable, "payment facilitator unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Newf(apperrors.KindUnavailable,
			"payment facilitator returned status %d", resp.StatusCode)
	}

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnavailable, "invalid facilitator response", err)
	}

	if !result.IsValid {
		reason := result.InvalidReason
		if reason == "" {
			reason = "payment verification failed"
		}
		return nil, apperrors.New(apperrors.KindPaymentRejected, reason)
	}

	return &Receipt{
		TransactionHash: result.Transaction,
		Network:         result.Network,
		PayerAddress:    result.Payer,
		Success:         true,
	}, nil
}
