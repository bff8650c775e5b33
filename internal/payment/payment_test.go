package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"19.99": 1999,
		"0.015": 2,
		"120":   12000,
	}
	for in, want := range cases {
		got, err := ToMinorUnits(decimal.RequireFromString(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"0", "-5", "0.004", "1000000000"} {
		_, err := ToMinorUnits(decimal.RequireFromString(bad))
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestStripeCreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "1999", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "card", r.PostForm.Get("payment_method_types[0]"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","client_secret":"pi_1_secret_x","amount":1999,"currency":"usd"}`))
	}))
	defer srv.Close()

	s, err := NewStripe(StripeConfig{SecretKey: "sk_test", BaseURL: srv.URL, Currency: "USD"})
	require.NoError(t, err)
	in, err := s.CreateIntent(context.Background(), decimal.RequireFromString("19.99"))
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret_x", in.ClientSecret)
	assert.Equal(t, int64(1999), in.Amount)
}

func TestStripeErrorsAreUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","message":"declined"}}`))
	}))
	defer srv.Close()

	s, err := NewStripe(StripeConfig{SecretKey: "sk_test", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = s.CreateIntent(context.Background(), decimal.NewFromInt(5))
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "declined")
	assert.Contains(t, err.Error(), "402")
}

func TestStripeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	s, err := NewStripe(StripeConfig{SecretKey: "sk_test", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	_, err = s.CreateIntent(context.Background(), decimal.NewFromInt(5))
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestNewStripeRequiresKey(t *testing.T) {
	_, err := NewStripe(StripeConfig{})
	assert.True(t, errors.Is(err, ErrDisabled))
	_, err = Disabled{}.CreateIntent(context.Background(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestFakeRecordsIntents(t *testing.T) {
	f := &Fake{}
	in, err := f.CreateIntent(context.Background(), decimal.RequireFromString("2.50"))
	require.NoError(t, err)
	assert.Equal(t, int64(250), in.Amount)
	assert.NotEmpty(t, in.ClientSecret)
	assert.Len(t, f.Intents(), 1)
}
