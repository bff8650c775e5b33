package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"

	"horizon.shop/internal/obs"
)

// StripeConfig configures the Stripe client.
type StripeConfig struct {
	SecretKey string
	BaseURL   string
	Currency  string
	Timeout   time.Duration
}

// Stripe creates card payment intents through the Stripe API.
type Stripe struct {
	intents  *paymentintent.Client
	currency string
}

// NewStripe validates cfg and returns a client with its own backend. The
// stripe package globals are left untouched.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil, ErrDisabled
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = stripe.APIURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("payment api url: %w", err)
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(base),
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     obs.Logger(),
	})
	return &Stripe{
		intents:  &paymentintent.Client{B: backend, Key: key},
		currency: currency,
	}, nil
}

func (s *Stripe) CreateIntent(ctx context.Context, amount decimal.Decimal) (Intent, error) {
	minor, err := ToMinorUnits(amount)
	if err != nil {
		return Intent{}, err
	}
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(minor),
		Currency:           stripe.String(s.currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx

	pi, err := s.intents.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) {
			return Intent{}, fmt.Errorf("%w: status %d: %s %s", ErrUpstream, se.HTTPStatusCode, se.Type, se.Msg)
		}
		return Intent{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if pi.ClientSecret == "" {
		return Intent{}, fmt.Errorf("%w: response without client secret", ErrUpstream)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Amount: pi.Amount, Currency: string(pi.Currency)}, nil
}
