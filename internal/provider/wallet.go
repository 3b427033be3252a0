package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bookstore-payments/internal/config"
	"bookstore-payments/internal/model"

	"github.com/shopspring/decimal"
)

// walletGateway integrates the wallet provider's REST checkout API. The
// provider signs webhooks asymmetrically against a per-webhook certificate,
// so signature verification calls back to its verification endpoint instead
// of being computed locally.
type walletGateway struct {
	httpClient   *http.Client
	baseApiURL   string
	clientID     string
	clientSecret string
	webhookID    string
}

func NewWalletGateway(cfg *config.Wallet) Gateway {
	return &walletGateway{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseApiURL:   cfg.BaseApiURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		webhookID:    cfg.WebhookID,
	}
}

func (g *walletGateway) Name() model.PaymentProvider { return model.ProviderWallet }

func (g *walletGateway) getAccessToken(ctx context.Context) (string, error) {
	auth := base64.StdEncoding.EncodeToString(
		[]byte(g.clientID + ":" + g.clientSecret),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseApiURL+"/v1/oauth2/token",
		bytes.NewBufferString("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token endpoint returned %d", model.ErrProviderUnavailable, resp.StatusCode)
	}

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	return res.AccessToken, nil
}

func (g *walletGateway) doJSON(ctx context.Context, method, url string, payload any, out any) error {
	accessToken, err := g.getAccessToken(ctx)
	if err != nil {
		return err
	}

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
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: wallet error %d: %s", model.ErrProviderUnavailable, resp.StatusCode, string(b))
		}
		return fmt.Errorf("wallet error %d: %s", resp.StatusCode, string(b))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode wallet response: %w", err)
		}
	}
	return nil
}

type walletLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type walletAmount struct {
	Currency string `json:"currency_code"`
	Value    string `json:"value"`
}

type walletCapture struct {
	ID       string       `json:"id"`
	Status   string       `json:"status"`
	Amount   walletAmount `json:"amount"`
	CustomID string       `json:"custom_id"`
}

type walletPurchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	CustomID    string `json:"custom_id"`
	Payments    struct {
		Captures []walletCapture `json:"captures"`
	} `json:"payments"`
}

type walletOrder struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	Links         []walletLink         `json:"links"`
	PurchaseUnits []walletPurchaseUnit `json:"purchase_units"`
}

func (g *walletGateway) CreateCheckout(ctx context.Context, reference string, amount decimal.Decimal, currency, successURL, cancelURL string) (*CheckoutSession, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, model.ErrInvalidAmount
	}

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": reference,
				"custom_id":    reference,
				"amount": map[string]string{
					"currency_code": currency,
					"value":         amount.StringFixed(2),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": successURL,
			"cancel_url": cancelURL,
		},
	}

	var result walletOrder
	if err := g.doJSON(ctx, http.MethodPost, g.baseApiURL+"/v2/checkout/orders", payload, &result); err != nil {
		return nil, fmt.Errorf("wallet create order: %w", err)
	}

	approveURL := ""
	for _, link := range result.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
		}
	}

	return &CheckoutSession{
		SessionID:   result.ID,
		RedirectURL: approveURL,
	}, nil
}

func (g *walletGateway) CaptureOrRetrieve(ctx context.Context, sessionID string) (*CaptureResult, error) {
	var order walletOrder
	url := fmt.Sprintf("%s/v2/checkout/orders/%s", g.baseApiURL, sessionID)
	if err := g.doJSON(ctx, http.MethodGet, url, nil, &order); err != nil {
		return nil, fmt.Errorf("wallet retrieve order: %w", err)
	}

	// An approved order still needs its funds collected; a completed one has
	// already been captured (e.g. by the webhook racing the return path).
	if order.Status == "APPROVED" {
		captureURL := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", g.baseApiURL, sessionID)
		if err := g.doJSON(ctx, http.MethodPost, captureURL, struct{}{}, &order); err != nil {
			return nil, fmt.Errorf("wallet capture order: %w", err)
		}
	}

	return normalizeWalletOrder(&order), nil
}

func normalizeWalletOrder(order *walletOrder) *CaptureResult {
	result := &CaptureResult{Status: CaptureStatusPending}

	if len(order.PurchaseUnits) == 0 {
		return result
	}
	unit := order.PurchaseUnits[0]
	result.Reference = unit.CustomID
	if result.Reference == "" {
		result.Reference = unit.ReferenceID
	}

	if len(unit.Payments.Captures) == 0 {
		return result
	}
	capture := unit.Payments.Captures[0]
	result.CaptureID = capture.ID
	result.Currency = capture.Amount.Currency
	if capture.CustomID != "" {
		result.Reference = capture.CustomID
	}
	if amount, err := decimal.NewFromString(capture.Amount.Value); err == nil {
		result.AmountMinorUnits = model.MinorUnits(amount)
	}

	switch capture.Status {
	case "COMPLETED":
		result.Status = CaptureStatusCompleted
	case "DECLINED", "FAILED":
		result.Status = CaptureStatusFailed
	}
	return result
}

func (g *walletGateway) Refund(ctx context.Context, captureID string, amount *decimal.Decimal) (*RefundResult, error) {
	payload := map[string]interface{}{}
	if amount != nil {
		payload["amount"] = map[string]string{
			"value": amount.StringFixed(2),
		}
	}

	var result struct {
		ID string `json:"id"`
	}
	url := fmt.Sprintf("%s/v2/payments/captures/%s/refund", g.baseApiURL, captureID)
	if err := g.doJSON(ctx, http.MethodPost, url, payload, &result); err != nil {
		return nil, fmt.Errorf("wallet refund capture: %w", err)
	}

	return &RefundResult{RefundID: result.ID}, nil
}

// VerifyWebhookSignature delegates to the provider's remote verification
// endpoint: the webhook signature is certificate-based and cannot be checked
// locally with a shared secret.
func (g *walletGateway) VerifyWebhookSignature(ctx context.Context, header http.Header, body []byte) error {
	payload := map[string]interface{}{
		"auth_algo":         header.Get("Paypal-Auth-Algo"),
		"cert_url":          header.Get("Paypal-Cert-Url"),
		"transmission_id":   header.Get("Paypal-Transmission-Id"),
		"transmission_sig":  header.Get("Paypal-Transmission-Sig"),
		"transmission_time": header.Get("Paypal-Transmission-Time"),
		"webhook_id":        g.webhookID,
		"webhook_event":     json.RawMessage(body),
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	url := g.baseApiURL + "/v1/notifications/verify-webhook-signature"
	if err := g.doJSON(ctx, http.MethodPost, url, payload, &result); err != nil {
		return fmt.Errorf("remote signature verification: %w", err)
	}

	if result.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("%w: verification status %s", model.ErrInvalidSignature, result.VerificationStatus)
	}
	return nil
}

type walletWebhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string       `json:"id"`
		Status   string       `json:"status"`
		Amount   walletAmount `json:"amount"`
		CustomID string       `json:"custom_id"`

		SupplementaryData struct {
			RelatedIDs struct {
				OrderID   string `json:"order_id"`
				CaptureID string `json:"capture_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (g *walletGateway) ParseWebhook(body []byte) (*Event, error) {
	var payload walletWebhookEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("missing event id in webhook payload")
	}

	evt := &Event{
		EventID:   payload.ID,
		EventType: payload.EventType,
		Kind:      EventIgnored,
		SessionID: payload.Resource.SupplementaryData.RelatedIDs.OrderID,
		Reference: payload.Resource.CustomID,
		Currency:  payload.Resource.Amount.Currency,
	}
	if amount, err := decimal.NewFromString(payload.Resource.Amount.Value); err == nil {
		evt.AmountMinorUnits = model.MinorUnits(amount)
	}

	switch payload.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		evt.Kind = EventPaymentCompleted
		evt.CaptureID = payload.Resource.ID
	case "PAYMENT.CAPTURE.REFUNDED":
		evt.Kind = EventRefundCompleted
		evt.RefundID = payload.Resource.ID
		evt.CaptureID = payload.Resource.SupplementaryData.RelatedIDs.CaptureID
	}

	return evt, nil
}
