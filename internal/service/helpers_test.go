package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"creditpay/internal/config"
	"creditpay/internal/infrastructure/database"
	"creditpay/internal/infrastructure/payment"
	"creditpay/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test_secret"

type testEnv struct {
	db       *gorm.DB
	cfg      *config.Config
	rdb      *redis.Client
	stripe   *payment.StripeClient
	accounts *AccountService
	credits  *CreditService
	ledger   *LedgerService
	webhooks *WebhookService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{PublicURL: "https://app.example.com/"},
		Kafka:  config.KafkaConfig{Topic: config.KafkaTopicConfig{CreditGranted: "credit.granted"}},
		Stripe: config.StripeConfig{
			SecretKey:        "sk_test_123",
			WebhookSecret:    testWebhookSecret,
			Currency:         "usd",
			ToleranceSeconds: 300,
		},
		Business: config.BusinessConfig{
			MaxRetryCount:   3,
			RetryIntervalMs: 1,
			LockTTLSeconds:  10,
		},
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	db := database.NewTestDB(t)
	logger := discardLogger()
	stripeClient := payment.NewStripeClient(&cfg.Stripe)
	credits := NewCreditService(db, cfg, logger)
	ledger := NewLedgerService(db, rdb, cfg, credits, logger)

	return &testEnv{
		db:       db,
		cfg:      cfg,
		rdb:      rdb,
		stripe:   stripeClient,
		accounts: NewAccountService(db),
		credits:  credits,
		ledger:   ledger,
		webhooks: NewWebhookService(cfg, stripeClient, ledger, logger),
	}
}

func (e *testEnv) createAccount(t *testing.T, userID string) {
	t.Helper()
	_, err := e.accounts.CreateAccount(context.Background(), userID)
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := e.accounts.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (e *testEnv) count(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(m).Count(&n).Error)
	return n
}

func (e *testEnv) transactionCount(t *testing.T) int64 {
	return e.count(t, &model.Transaction{})
}

// completedEvent 构造 checkout.session.completed 事件报文
func completedEvent(t *testing.T, eventID string, object map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":     eventID,
		"object": "event",
		"type":   "checkout.session.completed",
		"data":   map[string]any{"object": object},
	})
	require.NoError(t, err)
	return body
}

func sign(body []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	}).Header
}
