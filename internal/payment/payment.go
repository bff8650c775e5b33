// Package payment creates payment intents with an external processor.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("payment: amount must be greater than zero")
	// ErrUpstream wraps every processor-side failure.
	ErrUpstream = errors.New("payment: processor error")
	ErrDisabled = errors.New("payment: processor not configured")
)

// Intent is a created payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}

// Processor creates payment intents for an amount in major units.
type Processor interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal) (Intent, error)
}

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit amount to whole cents, rounding half
// away from zero.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Mul(hundred).Round(0)
	if !minor.IsPositive() {
		return 0, ErrInvalidAmount
	}
	if !minor.IsInteger() || minor.GreaterThan(decimal.NewFromInt(99_999_999)) {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, amount)
	}
	return minor.IntPart(), nil
}

// Disabled rejects every request; used when no processor key is configured.
type Disabled struct{}

func (Disabled) CreateIntent(context.Context, decimal.Decimal) (Intent, error) {
	return Intent{}, ErrDisabled
}

// Fake records intents in memory.
type Fake struct {
	Currency string

	mu      sync.Mutex
	err     error
	intents []Intent
}

// SetErr makes subsequent calls fail with err.
func (f *Fake) SetErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *Fake) CreateIntent(ctx context.Context, amount decimal.Decimal) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}
	minor, err := ToMinorUnits(amount)
	if err != nil {
		return Intent{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Intent{}, f.err
	}
	currency := f.Currency
	if currency == "" {
		currency = "usd"
	}
	id := "pi_" + uuid.NewString()
	in := Intent{ID: id, ClientSecret: id + "_secret", Amount: minor, Currency: currency}
	f.intents = append(f.intents, in)
	return in, nil
}

// Intents returns the intents created so far.
func (f *Fake) Intents() []Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Intent(nil), f.intents...)
}
