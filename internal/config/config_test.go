package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresTokenSecret(t *testing.T) {
	t.Setenv("HORIZON_TOKEN_SECRET", "")

	_, err := Load("")
	require.ErrorIs(t, err, ErrMissingTokenSecret)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HORIZON_TOKEN_SECRET", "s3cret")
	t.Setenv("PORT", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, "usd", cfg.PaymentCurrency)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HORIZON_TOKEN_SECRET", "s3cret")
	t.Setenv("HORIZON_TOKEN_TTL", "1h")
	t.Setenv("HORIZON_CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("PORT", "7000")
	t.Setenv("HORIZON_TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.TrustedProxies)
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "horizon.yaml")
	body := []byte("token_secret: from-file\nhttp_addr: \":8081\"\npayment_currency: EUR\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("HORIZON_TOKEN_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.TokenSecret)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "eur", cfg.PaymentCurrency)
}

func TestValidateRejectsNonPositiveTimeouts(t *testing.T) {
	cfg := &Config{TokenSecret: "x", TokenTTL: time.Hour, StoreTimeout: 0, PaymentTimeout: time.Second, RateBurst: 1, RatePerSec: 1}
	assert.Error(t, cfg.Validate())
}
