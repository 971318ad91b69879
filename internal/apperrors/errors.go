// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so handlers can map it to an HTTP status and a
// stable machine-readable code without matching on message text.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindExpired
	KindAlreadyPurchased
	KindSelfPurchase
	KindInvalidProof
	KindPaymentRejected
	KindMissingWallet
	KindInsufficientFunds
	KindForbidden
	KindUnauthorized
	KindValidation
	KindConflict
	KindUnavailable
)

var kindInfo = map[Kind]struct {
	status int
	code   string
}{
	KindInternal:          {http.StatusInternalServerError, "INTERNAL_ERROR"},
	KindNotFound:          {http.StatusNotFound, "NOT_FOUND"},
	KindExpired:           {http.StatusGone, "EXPIRED"},
	KindAlreadyPurchased:  {http.StatusBadRequest, "ALREADY_PURCHASED"},
	KindSelfPurchase:      {http.StatusBadRequest, "SELF_PURCHASE"},
	KindInvalidProof:      {http.StatusPaymentRequired, "INVALID_PAYMENT_PROOF"},
	KindPaymentRejected:   {http.StatusPaymentRequired, "PAYMENT_REJECTED"},
	KindMissingWallet:     {http.StatusBadRequest, "MISSING_WALLET"},
	KindInsufficientFunds: {http.StatusBadRequest, "INSUFFICIENT_FUNDS"},
	KindForbidden:         {http.StatusForbidden, "FORBIDDEN"},
	KindUnauthorized:      {http.StatusUnauthorized, "UNAUTHORIZED"},
	KindValidation:        {http.StatusBadRequest, "VALIDATION_ERROR"},
	KindConflict:          {http.StatusConflict, "CONFLICT"},
	KindUnavailable:       {http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status maps err to the HTTP status of its kind.
func Status(err error) int {
	return kindInfo[KindOf(err)].status
}

// Code returns the stable error code of err's kind.
func Code(err error) string {
	return kindInfo[KindOf(err)].code
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
