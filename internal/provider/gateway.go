package provider

import (
	"context"
	"net/http"

	"bookstore-payments/internal/model"

	"github.com/shopspring/decimal"
)

// CheckoutSession is a provider-issued checkout the buyer is redirected to.
type CheckoutSession struct {
	SessionID   string
	RedirectURL string
}

type CaptureStatus string

const (
	CaptureStatusCompleted CaptureStatus = "completed"
	CaptureStatusPending   CaptureStatus = "pending"
	CaptureStatusFailed    CaptureStatus = "failed"
)

// CaptureResult is the normalized outcome of a capture/retrieve call.
// Settlement only ever reasons about this shape, regardless of provider.
type CaptureResult struct {
	Status           CaptureStatus
	AmountMinorUnits int64
	Currency         string
	// Reference is the correlation id embedded at checkout creation (the
	// local order/contribution id echoed back by the provider).
	Reference string
	CaptureID string
}

type RefundResult struct {
	RefundID string
}

type EventKind string

const (
	EventPaymentCompleted EventKind = "payment_completed"
	EventRefundCompleted  EventKind = "refund_completed"
	EventIgnored          EventKind = "ignored"
)

// Event is a provider webhook normalized for the settlement engine.
type Event struct {
	EventID   string
	EventType string
	Kind      EventKind

	SessionID        string
	CaptureID        string
	RefundID         string
	AmountMinorUnits int64
	Currency         string
	Reference        string
}

// Gateway is the provider-agnostic contract every payment provider adapter
// implements. Provider calls are slow, externally retried I/O and must
// complete before any store transaction begins.
type Gateway interface {
	Name() model.PaymentProvider

	CreateCheckout(ctx context.Context, reference string, amount decimal.Decimal, currency, successURL, cancelURL string) (*CheckoutSession, error)

	// CaptureOrRetrieve is idempotent from the caller's perspective: repeated
	// calls with the same session id are safe.
	CaptureOrRetrieve(ctx context.Context, sessionID string) (*CaptureResult, error)

	Refund(ctx context.Context, captureID string, amount *decimal.Decimal) (*RefundResult, error)

	// VerifyWebhookSignature runs over the raw request bytes, before any
	// business field is parsed.
	VerifyWebhookSignature(ctx context.Context, header http.Header, body []byte) error

	ParseWebhook(body []byte) (*Event, error)
}

// Registry maps provider names to their adapters.
type Registry map[model.PaymentProvider]Gateway

func (r Registry) Get(name model.PaymentProvider) (Gateway, bool) {
	gw, ok := r[name]
	return gw, ok
}
