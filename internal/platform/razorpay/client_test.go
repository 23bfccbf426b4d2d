package razorpay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{KeyID: "rzp_test_key", KeySecret: "secret", WebhookSecret: "whsec", BaseURL: srv.URL, Timeout: time.Second})
}

func TestCreateSubscription_SendsBasicAuthAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/subscriptions", r.URL.Path)

		var body SubscriptionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "plan_1", body.PlanID)
		assert.Equal(t, 12, body.TotalCount)
		assert.Equal(t, 1, body.CustomerNotify)
		assert.Equal(t, "u1", body.Notes["user_id"])

		_, _ = w.Write([]byte(`{"id":"sub_123","plan_id":"plan_1","status":"created"}`))
	})

	sub, err := c.CreateSubscription(context.Background(), SubscriptionRequest{
		PlanID: "plan_1", CustomerID: "cust_1", TotalCount: 12, Quantity: 1, CustomerNotify: 1,
		Notes: map[string]string{"user_id": "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sub_123", sub.ID)
}

func TestFetchPayment_DecodesCard(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"pay_1","amount":49900,"currency":"INR","method":"card","invoice_id":"inv_1",
			"card":{"last4":"4242","network":"Visa","exp_month":12,"exp_year":2030}}`))
	})

	p, err := c.FetchPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, int64(49900), p.Amount)
	assert.Equal(t, "inv_1", p.InvoiceID)
	require.NotNil(t, p.Card)
	assert.Equal(t, "4242", p.Card.Last4)
	assert.Equal(t, 2030, p.Card.ExpYear)
}

func TestCancelSubscription_AtCycleEnd(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscriptions/sub_1/cancel", r.URL.Path)
		var body map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 1, body["cancel_at_cycle_end"])
		_, _ = w.Write([]byte(`{"id":"sub_1","status":"active"}`))
	})

	_, err := c.CancelSubscription(context.Background(), "sub_1", true)
	require.NoError(t, err)
}

func TestDo_MapsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`))
	})

	_, err := c.FetchInvoice(context.Background(), "inv_x")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "BAD_REQUEST_ERROR", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "does not exist")
}

func TestDo_TimeoutMapsToErrTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	c := New(Options{KeyID: "k", KeySecret: "s", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})

	_, err := c.FetchSubscription(context.Background(), "sub_slow")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestVerifySubscriptionSignature(t *testing.T) {
	c := New(Options{KeyID: "k", KeySecret: "secret"})
	good := Sign("pay_1|sub_1", "secret")

	assert.NoError(t, c.VerifySubscriptionSignature("sub_1", "pay_1", good))
	assert.ErrorIs(t, c.VerifySubscriptionSignature("sub_1", "pay_2", good), ErrSignatureMismatch)
	assert.ErrorIs(t, c.VerifySubscriptionSignature("sub_1", "pay_1", "deadbeef"), ErrSignatureMismatch)

	noSecret := New(Options{KeyID: "k"})
	err := noSecret.VerifySubscriptionSignature("sub_1", "pay_1", good)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSignatureMismatch))
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := New(Options{WebhookSecret: "whsec"})
	body := []byte(`{"event":"subscription.charged"}`)

	assert.NoError(t, c.VerifyWebhookSignature(body, Sign(string(body), "whsec")))
	assert.ErrorIs(t, c.VerifyWebhookSignature(body, Sign(string(body), "other")), ErrSignatureMismatch)
	assert.Error(t, New(Options{}).VerifyWebhookSignature(body, "x"))
}
