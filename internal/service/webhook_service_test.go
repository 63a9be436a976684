package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"creditpay/internal/config"
	"creditpay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proObject() map[string]any {
	return map[string]any{
		"id":           "cs_evt_1",
		"amount_total": 1999,
		"metadata": map[string]any{
			"plan":    "Pro",
			"credits": "100",
			"buyerId": "u1",
		},
	}
}

func TestWebhookService_CompletedEventAndRedelivery(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "u1")
	ctx := context.Background()

	body := completedEvent(t, "evt_1", proObject())
	res, err := env.webhooks.Handle(ctx, body, sign(body))
	require.NoError(t, err)
	require.True(t, res.Handled)
	require.NotNil(t, res.Record)
	assert.True(t, res.Record.Granted)

	trans := res.Record.Transaction
	assert.Equal(t, "cs_evt_1", trans.ExternalID)
	assert.Equal(t, "19.99", trans.Amount.StringFixed(2))
	assert.Equal(t, int64(100), trans.Credits)
	assert.Equal(t, "u1", trans.BuyerID)
	assert.Equal(t, int64(100), env.balance(t, "u1"))

	// 同一事件重投，余额不变
	res, err = env.webhooks.Handle(ctx, body, sign(body))
	require.NoError(t, err)
	assert.True(t, res.Record.Duplicate)
	assert.Equal(t, int64(100), env.balance(t, "u1"))
	assert.Equal(t, int64(1), env.transactionCount(t))
}

func TestWebhookService_RejectsTampering(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "u1")
	ctx := context.Background()

	body := completedEvent(t, "evt_1", proObject())
	header := sign(body)

	tampered := []byte(string(body[:len(body)-1]) + " }")
	_, err := env.webhooks.Handle(ctx, tampered, header)
	assert.ErrorIs(t, err, ErrVerification)

	_, err = env.webhooks.Handle(ctx, body, "t=123,v1=0000")
	assert.ErrorIs(t, err, ErrVerification)

	_, err = env.webhooks.Handle(ctx, body, "")
	assert.ErrorIs(t, err, ErrVerification)

	_, err = env.webhooks.Handle(ctx, []byte("not json"), sign([]byte("not json")))
	assert.ErrorIs(t, err, ErrVerification)

	assert.Equal(t, int64(0), env.transactionCount(t))
	assert.Equal(t, int64(0), env.balance(t, "u1"))
}

func TestWebhookService_DefaultsMissingFields(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "u1")

	body := completedEvent(t, "evt_2", map[string]any{
		"id":       "cs_partial",
		"metadata": map[string]any{"plan": "Custom", "buyerId": "u1"},
	})
	res, err := env.webhooks.Handle(context.Background(), body, sign(body))
	require.NoError(t, err)
	assert.False(t, res.Checkout.Valid)
	assert.ElementsMatch(t, []string{"amount_total", "metadata.credits"}, res.Checkout.Defaulted)

	trans := res.Record.Transaction
	assert.True(t, trans.Amount.IsZero())
	assert.Equal(t, int64(0), trans.Credits)
	assert.Equal(t, int64(0), env.balance(t, "u1"))
}

func TestWebhookService_OutOfRangeNumbersAreRecordedAsZero(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "u1")

	for i, credits := range []string{"9223372036854775808", "18446744073709551716"} {
		externalID := fmt.Sprintf("cs_overflow_%d", i)
		body := completedEvent(t, fmt.Sprintf("evt_overflow_%d", i), map[string]any{
			"id":           externalID,
			"amount_total": json.Number("18446744073709551716"),
			"metadata":     map[string]any{"plan": "Custom", "credits": credits, "buyerId": "u1"},
		})
		res, err := env.webhooks.Handle(context.Background(), body, sign(body))
		require.NoError(t, err, credits)
		assert.False(t, res.Checkout.Valid)
		assert.ElementsMatch(t, []string{"amount_total", "metadata.credits"}, res.Checkout.Defaulted)

		require.NotNil(t, res.Record)
		assert.True(t, res.Record.Granted)
		assert.Equal(t, externalID, res.Record.Transaction.ExternalID)
		assert.Equal(t, int64(0), res.Record.Transaction.Credits)
		assert.True(t, res.Record.Transaction.Amount.IsZero())
	}
	assert.Equal(t, int64(2), env.transactionCount(t))
	assert.Equal(t, int64(0), env.balance(t, "u1"))
}

func TestWebhookService_UnknownBuyerIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "u1")

	obj := proObject()
	obj["metadata"] = map[string]any{"plan": "Pro", "credits": "100", "buyerId": "ghost"}
	body := completedEvent(t, "evt_3", obj)

	res, err := env.webhooks.Handle(context.Background(), body, sign(body))
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.NotNil(t, res.Record)
	assert.False(t, IsRetryable(res, err))
	assert.Equal(t, int64(1), env.transactionCount(t))
	assert.Equal(t, int64(0), env.balance(t, "u1"))
}

func TestWebhookService_IgnoresOtherEventTypes(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(map[string]any{
		"id":     "evt_4",
		"object": "event",
		"type":   "payment_intent.created",
		"data":   map[string]any{"object": map[string]any{"id": "pi_1"}},
	})
	require.NoError(t, err)

	res, err := env.webhooks.Handle(context.Background(), body, sign(body))
	require.NoError(t, err)
	assert.False(t, res.Handled)
	assert.Nil(t, res.Record)
	assert.Equal(t, "payment_intent.created", res.EventType)
	assert.Equal(t, int64(0), env.transactionCount(t))
}

func TestWebhookService_PlanCatalogOverridesMetadataCredits(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Business.Plans = []config.PlanConfig{{Name: "Pro", AmountCents: 1999, Credits: 100}}
	})
	env.createAccount(t, "u1")

	obj := proObject()
	obj["metadata"] = map[string]any{"plan": "Pro", "credits": "1000000", "buyerId": "u1"}
	body := completedEvent(t, "evt_5", obj)

	res, err := env.webhooks.Handle(context.Background(), body, sign(body))
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Record.Transaction.Credits)
	assert.Equal(t, int64(100), env.balance(t, "u1"))
}

func TestWebhookService_PersistenceFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	body := completedEvent(t, "evt_6", proObject())
	res, err := env.webhooks.Handle(context.Background(), body, sign(body))
	require.ErrorIs(t, err, ErrPersistence)
	assert.True(t, IsRetryable(res, err))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil, nil))
	assert.False(t, IsRetryable(nil, ErrVerification))
	assert.True(t, IsRetryable(&WebhookResult{}, wrapPersistence("x", assert.AnError)))
	assert.False(t, IsRetryable(&WebhookResult{Record: &RecordResult{Transaction: &model.Transaction{}}}, wrapPersistence("x", assert.AnError)))
}
