package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/aspy/internal/platform/razorpay"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/metrics"
)

func TestMock_Refs(t *testing.T) {
	at := time.Unix(1735689600, 0)
	m := NewMock("", func() time.Time { return at })
	ctx := context.Background()

	assert.Equal(t, config.GatewayModeMock, m.Mode())
	assert.Equal(t, "dummy_key_id", m.KeyID())

	cust, err := m.CreateCustomer(ctx, Customer{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "cust_mock_u1", cust)

	ref, err := m.CreateSubscription(ctx, SubscriptionRequest{UserID: "u1", GatewayPlanID: "plan_1"})
	require.NoError(t, err)
	assert.Regexp(t, `^sub_mock_u1_1735689600_[0-9a-f]{12}$`, ref)
	assert.True(t, IsMockRef(ref))

	// Same clock reading, different checkout.
	again, err := m.CreateSubscription(ctx, SubscriptionRequest{UserID: "u1", GatewayPlanID: "plan_1"})
	require.NoError(t, err)
	assert.NotEqual(t, ref, again)

	assert.NoError(t, m.VerifySignature(ctx, ref, "pay_1", "anything"))
	assert.Equal(t, "inv_mock_1735689600", m.InvoiceRef())

	p, err := m.FetchPayment(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "card", p.Method)
	assert.Nil(t, p.Card)
}

func TestIsMockRef(t *testing.T) {
	assert.True(t, IsMockRef("sub_mock_abc_1"))
	assert.True(t, IsMockRef("inv_mock_1"))
	assert.False(t, IsMockRef("sub_Ny7bk2"))
	assert.False(t, IsMockRef(""))
}

func TestLive_MapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/payments/pay_slow":
			<-r.Context().Done()
		case "/payments/pay_ok":
			_, _ = w.Write([]byte(`{"id":"pay_ok","amount":49900,"currency":"INR","method":"card","invoice_id":"inv_1","card":{"last4":"1111","network":"Visa","exp_month":1,"exp_year":2031}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"not found"}}`))
		}
	}))
	t.Cleanup(srv.Close)

	live := NewLive(razorpay.New(razorpay.Options{KeyID: "rzp_live_x", KeySecret: "secret", BaseURL: srv.URL, Timeout: 50 * time.Millisecond}))
	ctx := context.Background()

	_, err := live.FetchPayment(ctx, "pay_slow")
	assert.ErrorIs(t, err, ErrGatewayTimeout)

	_, err = live.FetchInvoice(ctx, "inv_missing")
	var apiErr *razorpay.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.False(t, errors.Is(err, ErrGatewayTimeout))

	p, err := live.FetchPayment(ctx, "pay_ok")
	require.NoError(t, err)
	assert.Equal(t, int64(49900), p.AmountMinor)
	require.NotNil(t, p.Card)
	assert.Equal(t, "Visa", p.Card.Brand)

	assert.ErrorIs(t, live.VerifySignature(ctx, "sub_1", "pay_1", "bad"), ErrInvalidSignature)
	assert.NoError(t, live.VerifySignature(ctx, "sub_1", "pay_1", razorpay.Sign("pay_1|sub_1", "secret")))
}

func TestNew_ResolvesModeOnce(t *testing.T) {
	log := zap.NewNop().Sugar()

	mock := New(&config.Config{Gateway: config.GatewayConfig{KeyID: "dummy", KeySecret: "x"}}, log, nil)
	assert.Equal(t, config.GatewayModeMock, mock.Mode())

	live := New(&config.Config{Gateway: config.GatewayConfig{KeyID: "rzp_live_abc", KeySecret: "s"}}, log, nil)
	assert.Equal(t, config.GatewayModeLive, live.Mode())
	assert.Equal(t, "rzp_live_abc", live.KeyID())
}

type failingClient struct{ *Mock }

func (f failingClient) Cancel(context.Context, string, bool) error { return errors.New("boom") }

func TestInstrument_RecordsDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)
	c := Instrument(failingClient{NewMock("", nil)}, zap.NewNop().Sugar(), rec)

	require.Error(t, c.Cancel(context.Background(), "sub_1", true))
	_, err := c.CreateCustomer(context.Background(), Customer{UserID: "u1"})
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "bp_dur")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
