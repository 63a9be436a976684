package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
  public_url: "https://app.example.com"
stripe:
  secret_key: sk_test_file
  webhook_secret: whsec_file
business:
  plans:
    - name: Pro
      amount_cents: 1999
      credits: 100
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sk_test_file", cfg.Stripe.SecretKey)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.Equal(t, 5*time.Minute, cfg.Stripe.Tolerance())
	assert.Equal(t, 3, cfg.Business.MaxRetryCount)
	assert.Equal(t, 200*time.Millisecond, cfg.Business.RetryInterval())
	assert.Equal(t, "credit.granted", cfg.Kafka.Topic.CreditGranted)

	plan, ok := cfg.FindPlan("Pro")
	require.True(t, ok)
	assert.Equal(t, int64(100), plan.Credits)

	_, ok = cfg.FindPlan("Gold")
	assert.False(t, ok)
}

func TestLoadConfig_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_env")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "whsec_env", cfg.Stripe.WebhookSecret)
}

func TestLoadConfig_MissingSecretsIsFatal(t *testing.T) {
	body := `
server:
  public_url: "https://app.example.com"
stripe:
  secret_key: sk_test_file
`
	_, err := LoadConfig(writeConfig(t, body))
	require.ErrorIs(t, err, ErrMissingSecret)
	assert.Contains(t, err.Error(), "stripe.webhook_secret")
}

func TestValidate_RejectsBadPlan(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{PublicURL: "https://app.example.com"},
		Stripe: StripeConfig{SecretKey: "sk", WebhookSecret: "whsec"},
		Business: BusinessConfig{Plans: []PlanConfig{
			{Name: "Free", AmountCents: 0, Credits: 5},
		}},
	}
	assert.Error(t, cfg.Validate())
}
