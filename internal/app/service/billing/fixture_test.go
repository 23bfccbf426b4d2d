package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/aspy/internal/app/service/gateway"
	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/internal/testutil"
	"github.com/fatflowers/aspy/pkg/config"
)

// stubGateway behaves like the mock unless a field overrides a call.
type stubGateway struct {
	*gateway.Mock
	mode config.GatewayMode

	ref             string
	createSubErr    error
	createCustErr   error
	sigErr          error
	payment         *gateway.PaymentDetails
	fetchPaymentErr error
	invoiceURL      string
	cancelErr       error

	customerCalls int
	createCalls   int
	cancelCalls   int
}

func newStubGateway(mode config.GatewayMode, now func() time.Time) *stubGateway {
	return &stubGateway{Mock: gateway.NewMock("rzp_test_key", now), mode: mode}
}

func (g *stubGateway) Mode() config.GatewayMode { return g.mode }

func (g *stubGateway) CreateCustomer(ctx context.Context, c gateway.Customer) (string, error) {
	g.customerCalls++
	if g.createCustErr != nil {
		return "", g.createCustErr
	}
	return "cust_" + c.UserID, nil
}

func (g *stubGateway) CreateSubscription(ctx context.Context, req gateway.SubscriptionRequest) (string, error) {
	g.createCalls++
	if g.createSubErr != nil {
		return "", g.createSubErr
	}
	if g.ref != "" {
		return g.ref, nil
	}
	return g.Mock.CreateSubscription(ctx, req)
}

func (g *stubGateway) VerifySignature(context.Context, string, string, string) error { return g.sigErr }

func (g *stubGateway) FetchPayment(ctx context.Context, ref string) (*gateway.PaymentDetails, error) {
	if g.fetchPaymentErr != nil {
		return nil, g.fetchPaymentErr
	}
	if g.payment != nil {
		return g.payment, nil
	}
	return g.Mock.FetchPayment(ctx, ref)
}

func (g *stubGateway) FetchSubscription(context.Context, string) (*gateway.SubscriptionDetails, error) {
	return nil, errors.New("subscription fetch unavailable")
}

func (g *stubGateway) FetchInvoice(_ context.Context, ref string) (*gateway.InvoiceDetails, error) {
	return &gateway.InvoiceDetails{ID: ref, DownloadURL: g.invoiceURL}, nil
}

func (g *stubGateway) Cancel(context.Context, string, bool) error {
	g.cancelCalls++
	return g.cancelErr
}

type fixture struct {
	db    *gorm.DB
	store *ledger.Store
	svc   *Service
	gw    *stubGateway
	user  *models.User
	free  *models.Plan
	pro   *models.Plan
	now   time.Time
}

func newFixture(t *testing.T, mode config.GatewayMode) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{
		db:    db,
		store: ledger.NewStore(db),
		now:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.gw = newStubGateway(mode, clock)
	f.svc = NewService(&config.Config{}, zap.NewNop().Sugar(), f.store, f.gw, NewLocalLocker(time.Second), nil)
	f.svc.now = clock

	f.user = testutil.CreateUser(t, db, "asha")
	f.free = testutil.CreateFreePlan(t, db)
	f.pro = testutil.CreateProPlan(t, db, "plan_pro_monthly")
	return f
}

// register gives the user the free plan the way sign-up does.
func (f *fixture) register(t *testing.T) *models.Subscription {
	t.Helper()
	var sub *models.Subscription
	require.NoError(t, f.store.Transaction(context.Background(), func(tx *ledger.Store) error {
		var err error
		sub, err = f.svc.AssignFreePlan(context.Background(), tx, f.user.ID)
		return err
	}))
	return sub
}

func count(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func reloadSubscription(t *testing.T, db *gorm.DB, id string) *models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, db.Where("id = ?", id).Take(&sub).Error)
	return &sub
}
