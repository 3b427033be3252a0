package dto

import "time"

type OrderItemRequest struct {
	BookID   string `json:"book_id"`
	Quantity int64  `json:"quantity"`
}

type CreateOrderRequest struct {
	Items    []OrderItemRequest `json:"items"`
	Provider string             `json:"provider"`
}

type CreateContributionRequest struct {
	BookID   string `json:"book_id"`
	Amount   string `json:"amount"`
	Reward   string `json:"reward"`
	IsPublic bool   `json:"is_public"`
	Provider string `json:"provider"`
}

type CheckoutResponse struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

type CompletePaymentRequest struct {
	SessionID string `json:"session_id"`
}

type OrderResponse struct {
	ID               string              `json:"id"`
	Status           string              `json:"status"`
	SaleType         string              `json:"sale_type"`
	Total            string              `json:"total"`
	Currency         string              `json:"currency"`
	PaymentMethod    string              `json:"payment_method"`
	PaymentReference string              `json:"payment_reference,omitempty"`
	TransactionID    string              `json:"transaction_id,omitempty"`
	InvoiceNumber    string              `json:"invoice_number"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	Items            []OrderItemResponse `json:"items"`
}

type OrderItemResponse struct {
	BookID    string `json:"book_id"`
	Title     string `json:"title"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type ContributionResponse struct {
	ID            string     `json:"id"`
	BookID        string     `json:"book_id"`
	Status        string     `json:"status"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Reward        string     `json:"reward,omitempty"`
	IsPublic      bool       `json:"is_public"`
	PaymentMethod string     `json:"payment_method"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
