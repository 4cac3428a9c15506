package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentState string

const (
	StateCreated   PaymentState = "created"
	StatePending   PaymentState = "pending"
	StateConfirmed PaymentState = "confirmed"
	StateFailed    PaymentState = "failed"
)

// Sentinel error kinds for the host's payment store. The plugin branches on
// these with errors.Is; store implementations wrap them as needed.
var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrCapacityExceeded = errors.New("order capacity exceeded")
	ErrNoIntent         = errors.New("no payment intent in session")
)

// PaymentRecord is the plugin's view of the host's payment row. Info is the
// free-form metadata blob the host persists alongside the payment; the plugin
// merges callback payloads and flags into it but does not own its schema.
type PaymentRecord struct {
	ID        uint
	OrderCode string
	State     PaymentState
	Amount    decimal.Decimal
	Currency  string
	Info      map[string]any
	CreatedAt time.Time
}

// PaymentStore is the order/payment storage contract the host fulfills.
type PaymentStore interface {
	// PaymentByID returns the payment with the given internal id, or
	// ErrPaymentNotFound.
	PaymentByID(ctx context.Context, id uint) (*PaymentRecord, error)

	// LatestPaymentByOrderCode returns the payment for the given order code.
	// When duplicate codes exist it must return the most recently created
	// match, or ErrPaymentNotFound when there is none.
	LatestPaymentByOrderCode(ctx context.Context, code string) (*PaymentRecord, error)

	// MergeInfo merges key/value into the payment's info metadata. Existing
	// keys are overwritten; other keys are preserved.
	MergeInfo(ctx context.Context, id uint, key string, value any) error

	// Confirm transitions the payment into the confirmed state. It must be
	// idempotent: confirming an already-confirmed payment is a no-op. Returns
	// ErrCapacityExceeded when the backing resource (ticket quota) ran out
	// between payment creation and confirmation.
	Confirm(ctx context.Context, id uint) error
}

// PaymentIntent is the buyer-session-scoped record of a not-yet-confirmed
// crypto payment. It is created at checkout, completed when the payment is
// created on the processor, and read by the pay view. It has no persistence
// beyond the session.
type PaymentIntent struct {
	Currency   string          `json:"currency"`
	PayAmount  decimal.Decimal `json:"pay_amount"`
	PayAddress string          `json:"pay_address"`
	PaymentID  uint            `json:"payment_id"`
	OrderCode  string          `json:"order_code"`
}

// IntentStore holds payment intents keyed by the host's session id.
type IntentStore interface {
	Put(ctx context.Context, sessionID string, intent *PaymentIntent) error
	Get(ctx context.Context, sessionID string) (*PaymentIntent, error)
	Delete(ctx context.Context, sessionID string) error
}

// Decision is the outcome of a checkout negotiation. Ordinary processor
// failures never surface as errors; they come back as a rejection with a
// buyer-facing message.
type Decision struct {
	OK        bool
	Message   string
	Currency  string
	PayAmount decimal.Decimal
}

// PaymentError is a fatal payment-creation failure. By the time a payment is
// being created the buyer has confirmed checkout, so there is no
// "continue shopping" fallback and the error propagates to the host.
type PaymentError struct {
	Op  string
	Err error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}
