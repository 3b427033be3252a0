package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"bookstore-payments/internal/config"
	"bookstore-payments/internal/model"

	"github.com/shopspring/decimal"
)

// signatureTolerance bounds how old a timestamped webhook signature may be.
const signatureTolerance = 5 * time.Minute

// mobileMoneyGateway integrates the mobile-money provider. Webhooks carry an
// HMAC-SHA256 signature over "<timestamp>.<raw body>" with a shared secret.
type mobileMoneyGateway struct {
	httpClient    *http.Client
	baseApiURL    string
	apiKey        string
	webhookSecret []byte
	now           func() time.Time
}

func NewMobileMoneyGateway(cfg *config.MobileMoney) Gateway {
	return &mobileMoneyGateway{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseApiURL:    cfg.BaseApiURL,
		apiKey:        cfg.APIKey,
		webhookSecret: []byte(cfg.WebhookSecret),
		now:           time.Now,
	}
}

func (g *mobileMoneyGateway) Name() model.PaymentProvider { return model.ProviderMobileMoney }

func (g *mobileMoneyGateway) doJSON(ctx context.Context, method, url string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal req payload: %w", err)
		}
		body = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: mobile money error %d: %s", model.ErrProviderUnavailable, resp.StatusCode, string(b))
		}
		return fmt.Errorf("mobile money error %d: %s", resp.StatusCode, string(b))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode mobile money response: %w", err)
		}
	}
	return nil
}

type mobileMoneyCheckout struct {
	CheckoutID       string `json:"checkout_id"`
	Status           string `json:"status"`
	RedirectURL      string `json:"redirect_url"`
	AmountMinorUnits int64  `json:"amount_minor"`
	Currency         string `json:"currency"`
	Reference        string `json:"reference"`
	ChargeID         string `json:"charge_id"`
}

func (g *mobileMoneyGateway) CreateCheckout(ctx context.Context, reference string, amount decimal.Decimal, currency, successURL, cancelURL string) (*CheckoutSession, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, model.ErrInvalidAmount
	}

	payload := map[string]interface{}{
		"reference":    reference,
		"amount_minor": model.MinorUnits(amount),
		"currency":     currency,
		"success_url":  successURL,
		"cancel_url":   cancelURL,
	}

	var result mobileMoneyCheckout
	if err := g.doJSON(ctx, http.MethodPost, g.baseApiURL+"/v1/checkouts", payload, &result); err != nil {
		return nil, fmt.Errorf("mobile money create checkout: %w", err)
	}

	return &CheckoutSession{
		SessionID:   result.CheckoutID,
		RedirectURL: result.RedirectURL,
	}, nil
}

func (g *mobileMoneyGateway) CaptureOrRetrieve(ctx context.Context, sessionID string) (*CaptureResult, error) {
	var result mobileMoneyCheckout
	url := fmt.Sprintf("%s/v1/checkouts/%s", g.baseApiURL, sessionID)
	if err := g.doJSON(ctx, http.MethodGet, url, nil, &result); err != nil {
		return nil, fmt.Errorf("mobile money retrieve checkout: %w", err)
	}

	status := CaptureStatusPending
	switch result.Status {
	case "completed":
		status = CaptureStatusCompleted
	case "failed", "expired":
		status = CaptureStatusFailed
	}

	return &CaptureResult{
		Status:           status,
		AmountMinorUnits: result.AmountMinorUnits,
		Currency:         result.Currency,
		Reference:        result.Reference,
		CaptureID:        result.ChargeID,
	}, nil
}

func (g *mobileMoneyGateway) Refund(ctx context.Context, captureID string, amount *decimal.Decimal) (*RefundResult, error) {
	payload := map[string]interface{}{}
	if amount != nil {
		payload["amount_minor"] = model.MinorUnits(*amount)
	}

	var result struct {
		RefundID string `json:"refund_id"`
	}
	url := fmt.Sprintf("%s/v1/charges/%s/refunds", g.baseApiURL, captureID)
	if err := g.doJSON(ctx, http.MethodPost, url, payload, &result); err != nil {
		return nil, fmt.Errorf("mobile money refund charge: %w", err)
	}

	return &RefundResult{RefundID: result.RefundID}, nil
}

func (g *mobileMoneyGateway) VerifyWebhookSignature(_ context.Context, header http.Header, body []byte) error {
	signature := header.Get("X-MM-Signature")
	timestamp := header.Get("X-MM-Timestamp")
	if signature == "" || timestamp == "" {
		return fmt.Errorf("%w: missing signature headers", model.ErrInvalidSignature)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", model.ErrInvalidSignature)
	}
	age := g.now().Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return fmt.Errorf("%w: signature timestamp outside tolerance", model.ErrInvalidSignature)
	}

	expected := computeSignature(g.webhookSecret, timestamp, body)
	got, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature not hex", model.ErrInvalidSignature)
	}
	if !hmac.Equal(got, expected) {
		return model.ErrInvalidSignature
	}
	return nil
}

func computeSignature(secret []byte, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

type mobileMoneyWebhookEvent struct {
	EventID          string `json:"event_id"`
	EventType        string `json:"event_type"`
	CheckoutID       string `json:"checkout_id"`
	ChargeID         string `json:"charge_id"`
	RefundID         string `json:"refund_id"`
	AmountMinorUnits int64  `json:"amount_minor"`
	Currency         string `json:"currency"`
	Reference        string `json:"reference"`
}

func (g *mobileMoneyGateway) ParseWebhook(body []byte) (*Event, error) {
	var payload mobileMoneyWebhookEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if payload.EventID == "" {
		return nil, fmt.Errorf("missing event id in webhook payload")
	}

	evt := &Event{
		EventID:          payload.EventID,
		EventType:        payload.EventType,
		Kind:             EventIgnored,
		SessionID:        payload.CheckoutID,
		CaptureID:        payload.ChargeID,
		RefundID:         payload.RefundID,
		AmountMinorUnits: payload.AmountMinorUnits,
		Currency:         payload.Currency,
		Reference:        payload.Reference,
	}

	switch payload.EventType {
	case "charge.completed":
		evt.Kind = EventPaymentCompleted
	case "charge.refunded":
		evt.Kind = EventRefundCompleted
	}

	return evt, nil
}
