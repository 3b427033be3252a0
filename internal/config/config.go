package config

type Config struct {
	Environment Environment
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	SqlitePath  string `env:"SQLITE_PATH" envDefault:"bookstore.db"`

	// DisableTransactions forces the sequential settlement fallback even when
	// the store would support multi-statement transactions.
	DisableTransactions bool `env:"DB_DISABLE_TRANSACTIONS" envDefault:"false"`

	Currency string `env:"CURRENCY" envDefault:"USD"`

	OperatorToken string `env:"OPERATOR_TOKEN"`

	Card        Card        `envPrefix:"CARD_"`
	Wallet      Wallet      `envPrefix:"WALLET_"`
	MobileMoney MobileMoney `envPrefix:"MOBILE_MONEY_"`
}

// Card is the card-checkout provider (Braintree gateway).
type Card struct {
	Environment string `env:"ENVIRONMENT" envDefault:"sandbox"`
	MerchantID  string `env:"MERCHANT_ID"`
	PublicKey   string `env:"PUBLIC_KEY"`
	PrivateKey  string `env:"PRIVATE_KEY"`
	CheckoutURL string `env:"CHECKOUT_URL" envDefault:"http://localhost:8080/checkout/card"`
}

// Wallet is the PayPal-style wallet provider.
type Wallet struct {
	BaseApiURL   string `env:"BASE_API_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	WebhookID    string `env:"WEBHOOK_ID"`
}

// MobileMoney is the mobile-money provider (HMAC-signed webhooks).
type MobileMoney struct {
	BaseApiURL    string `env:"BASE_API_URL"`
	APIKey        string `env:"API_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
