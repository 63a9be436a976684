package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"creditpay/internal/config"
	"creditpay/internal/infrastructure/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStripe struct {
	srv   *httptest.Server
	calls atomic.Int32
	last  atomic.Value // url.Values
}

func newFakeStripe(t *testing.T, status int, body string) *fakeStripe {
	t.Helper()
	f := &fakeStripe{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if err := r.ParseForm(); err == nil {
			f.last.Store(r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeStripe) form() url.Values {
	v, _ := f.last.Load().(url.Values)
	return v
}

const sessionOK = `{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`

func newCheckoutService(t *testing.T, env *testEnv, apiURL string) *CheckoutService {
	t.Helper()
	stripeCfg := env.cfg.Stripe
	stripeCfg.APIURL = apiURL
	return NewCheckoutService(env.cfg, payment.NewStripeClient(&stripeCfg), env.accounts, discardLogger())
}

func TestCheckoutService_CreatesSession(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "u1")
	fake := newFakeStripe(t, http.StatusOK, sessionOK)
	svc := newCheckoutService(t, env, fake.srv.URL)

	sessionURL, err := svc.CreateCheckoutSession(context.Background(), &CheckoutRequest{
		Plan: "Custom", AmountCents: 500, Credits: 25, BuyerID: "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", sessionURL)

	form := fake.form()
	assert.Equal(t, "Custom", form.Get("metadata[plan]"))
	assert.Equal(t, "25", form.Get("metadata[credits]"))
	assert.Equal(t, "u1", form.Get("metadata[buyerId]"))
	assert.Equal(t, "500", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "https://app.example.com/profile?success=true", form.Get("success_url"))
	assert.Equal(t, "https://app.example.com/?canceled=true", form.Get("cancel_url"))

	// 不落本地数据
	assert.Equal(t, int64(0), env.transactionCount(t))
}

func TestCheckoutService_PlanCatalogIsAuthoritative(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Business.Plans = []config.PlanConfig{{Name: "Pro", AmountCents: 1999, Credits: 100}}
	})
	env.createAccount(t, "u1")
	fake := newFakeStripe(t, http.StatusOK, sessionOK)
	svc := newCheckoutService(t, env, fake.srv.URL)

	_, err := svc.CreateCheckoutSession(context.Background(), &CheckoutRequest{
		Plan: "Pro", AmountCents: 1, Credits: 999999, BuyerID: "u1",
	})
	require.NoError(t, err)

	form := fake.form()
	assert.Equal(t, "100", form.Get("metadata[credits]"))
	assert.Equal(t, "1999", form.Get("line_items[0][price_data][unit_amount]"))
}

func TestCheckoutService_RejectsInvalidRequests(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "u1")
	fake := newFakeStripe(t, http.StatusOK, sessionOK)
	svc := newCheckoutService(t, env, fake.srv.URL)

	cases := []*CheckoutRequest{
		{Plan: "Custom", AmountCents: 0, Credits: 1, BuyerID: "u1"},
		{Plan: "Custom", AmountCents: -100, Credits: 1, BuyerID: "u1"},
		{Plan: "Custom", AmountCents: 100, Credits: -1, BuyerID: "u1"},
		{Plan: "Custom", AmountCents: 100, Credits: 1, BuyerID: ""},
		{Plan: "", AmountCents: 100, Credits: 1, BuyerID: "u1"},
		{Plan: "Custom", AmountCents: 100, Credits: 1, BuyerID: "ghost"},
	}
	for _, req := range cases {
		_, err := svc.CreateCheckoutSession(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidCheckout, "%+v", req)
	}
	assert.Equal(t, int32(0), fake.calls.Load())
}

func TestCheckoutService_GatewayFailure(t *testing.T) {
	env := newTestEnv(t)
	env.createAccount(t, "u1")
	fake := newFakeStripe(t, http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"bad"}}`)
	svc := newCheckoutService(t, env, fake.srv.URL)

	_, err := svc.CreateCheckoutSession(context.Background(), &CheckoutRequest{
		Plan: "Custom", AmountCents: 100, Credits: 1, BuyerID: "u1",
	})
	assert.ErrorIs(t, err, ErrGateway)
	// 不做本地重试
	assert.Equal(t, int32(1), fake.calls.Load())
}
