package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"bookstore-payments/internal/config"
	"bookstore-payments/internal/model"

	"github.com/braintree-go/braintree-go"
	"github.com/shopspring/decimal"
)

// cardGateway integrates the card-checkout provider through its SDK. A
// checkout hands the buyer to the hosted card page with a client token; the
// page creates the provider transaction carrying our session id as its order
// reference, which is how CaptureOrRetrieve finds it again.
type cardGateway struct {
	bt          *braintree.Braintree
	checkoutURL string
}

func NewCardGateway(cfg *config.Card) Gateway {
	env := braintree.Sandbox
	if cfg.Environment == "production" {
		env = braintree.Production
	}

	return &cardGateway{
		bt:          braintree.New(env, cfg.MerchantID, cfg.PublicKey, cfg.PrivateKey),
		checkoutURL: cfg.CheckoutURL,
	}
}

func (g *cardGateway) Name() model.PaymentProvider { return model.ProviderCard }

func (g *cardGateway) CreateCheckout(ctx context.Context, reference string, amount decimal.Decimal, currency, successURL, cancelURL string) (*CheckoutSession, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, model.ErrInvalidAmount
	}

	clientToken, err := g.bt.ClientToken().Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: generate client token: %v", model.ErrProviderUnavailable, err)
	}

	// The session id doubles as the transaction order reference set by the
	// hosted page when it submits the card nonce.
	sessionID := "card_" + reference

	q := url.Values{}
	q.Set("session", sessionID)
	q.Set("token", clientToken)
	q.Set("amount", amount.StringFixed(2))
	q.Set("currency", currency)
	q.Set("success_url", successURL)
	q.Set("cancel_url", cancelURL)

	return &CheckoutSession{
		SessionID:   sessionID,
		RedirectURL: g.checkoutURL + "?" + q.Encode(),
	}, nil
}

func (g *cardGateway) CaptureOrRetrieve(ctx context.Context, sessionID string) (*CaptureResult, error) {
	query := &braintree.SearchQuery{}
	orderID := query.AddTextField("order-id")
	orderID.Is = sessionID

	result, err := g.bt.Transaction().Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: search transactions: %v", model.ErrProviderUnavailable, err)
	}
	if len(result.Transactions) == 0 {
		return &CaptureResult{Status: CaptureStatusPending}, nil
	}

	return normalizeCardTransaction(result.Transactions[0]), nil
}

func normalizeCardTransaction(tx *braintree.Transaction) *CaptureResult {
	result := &CaptureResult{
		Status:    CaptureStatusPending,
		Currency:  tx.CurrencyISOCode,
		Reference: stripCardPrefix(tx.OrderId),
		CaptureID: tx.Id,
	}
	if tx.Amount != nil {
		amount := decimal.New(tx.Amount.Unscaled, -int32(tx.Amount.Scale))
		result.AmountMinorUnits = model.MinorUnits(amount)
	}

	switch tx.Status {
	case braintree.TransactionStatusSubmittedForSettlement,
		braintree.TransactionStatusSettling,
		braintree.TransactionStatusSettled:
		result.Status = CaptureStatusCompleted
	case braintree.TransactionStatusProcessorDeclined,
		braintree.TransactionStatusGatewayRejected,
		braintree.TransactionStatusVoided:
		result.Status = CaptureStatusFailed
	}
	return result
}

// stripCardPrefix recovers the local correlation id from the session id the
// hosted page stored as the transaction order reference.
func stripCardPrefix(sessionID string) string {
	if len(sessionID) > 5 && sessionID[:5] == "card_" {
		return sessionID[5:]
	}
	return sessionID
}

func (g *cardGateway) Refund(ctx context.Context, captureID string, amount *decimal.Decimal) (*RefundResult, error) {
	var (
		tx  *braintree.Transaction
		err error
	)
	if amount != nil {
		tx, err = g.bt.Transaction().Refund(ctx, captureID, braintree.NewDecimal(model.MinorUnits(*amount), 2))
	} else {
		tx, err = g.bt.Transaction().Refund(ctx, captureID)
	}
	if err != nil {
		return nil, fmt.Errorf("card refund transaction: %w", err)
	}

	return &RefundResult{RefundID: tx.Id}, nil
}

func parseCardWebhookForm(body []byte) (signature, payload string, err error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return "", "", fmt.Errorf("parse webhook form: %w", err)
	}
	return values.Get("bt_signature"), values.Get("bt_payload"), nil
}

// VerifyWebhookSignature delegates to the SDK, which checks the payload
// signature against the gateway key pair.
func (g *cardGateway) VerifyWebhookSignature(_ context.Context, _ http.Header, body []byte) error {
	signature, payload, err := parseCardWebhookForm(body)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidSignature, err)
	}
	if _, err := g.bt.WebhookNotification().Parse(signature, payload); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidSignature, err)
	}
	return nil
}

func (g *cardGateway) ParseWebhook(body []byte) (*Event, error) {
	signature, payload, err := parseCardWebhookForm(body)
	if err != nil {
		return nil, err
	}
	notification, err := g.bt.WebhookNotification().Parse(signature, payload)
	if err != nil {
		return nil, fmt.Errorf("parse webhook notification: %w", err)
	}

	evt := &Event{
		EventType: string(notification.Kind),
		Kind:      EventIgnored,
	}

	tx := notification.Subject.Transaction
	if tx == nil {
		// Notifications without a transaction subject carry nothing the
		// settlement engine acts on; still deduplicate them by kind+time.
		evt.EventID = fmt.Sprintf("%s:%d", notification.Kind, notification.Timestamp.Unix())
		return evt, nil
	}

	capture := normalizeCardTransaction(tx)
	// The provider's notifications carry no standalone event id; kind plus
	// transaction id is stable across redeliveries of the same notification.
	evt.EventID = fmt.Sprintf("%s:%s", notification.Kind, tx.Id)
	evt.SessionID = tx.OrderId
	evt.CaptureID = tx.Id
	evt.AmountMinorUnits = capture.AmountMinorUnits
	evt.Currency = capture.Currency
	evt.Reference = capture.Reference

	switch string(notification.Kind) {
	case "transaction_settled":
		evt.Kind = EventPaymentCompleted
	case "transaction_settlement_declined":
		evt.Kind = EventIgnored
	}

	return evt, nil
}
