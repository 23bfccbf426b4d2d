package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/internal/testutil"
	"github.com/fatflowers/aspy/pkg/types"
)

func TestPlanFeatures_RoundTrip(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewStore(db)
	ctx := context.Background()

	features := map[string]any{
		"ides":      "1 IDE (full access)",
		"code_runs": "Unlimited",
		"export":    true,
		"max_files": float64(10),
	}
	created, err := s.UpsertPlanByType(ctx, types.PlanConfig{
		Name: "Pro", Type: types.PlanTypePro, Price: 49900, Currency: "INR", Features: features,
	})
	require.NoError(t, err)

	got, err := s.GetPlan(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.JSONMap(features), got.Features)
}

func TestUpsertPlanByType_KeepsGatewayRefWhenUnset(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewStore(db)
	ctx := context.Background()

	first, err := s.UpsertPlanByType(ctx, types.PlanConfig{Name: "Pro", Type: types.PlanTypePro, Price: 49900, Currency: "INR", GatewayPlanID: "plan_abc"})
	require.NoError(t, err)

	second, err := s.UpsertPlanByType(ctx, types.PlanConfig{Name: "Pro Monthly", Type: types.PlanTypePro, Price: 59900, Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := s.GetPlanByType(ctx, types.PlanTypePro)
	require.NoError(t, err)
	assert.Equal(t, "Pro Monthly", got.Name)
	assert.Equal(t, int64(59900), got.Price)
	require.NotNil(t, got.GatewayPlanID)
	assert.Equal(t, "plan_abc", *got.GatewayPlanID)
}

func TestActiveSubscription_ToleratesDuplicates(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewStore(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "dup")
	free := testutil.CreateFreePlan(t, db)
	pro := testutil.CreateProPlan(t, db, "plan_x")

	older := testutil.CreateActiveSubscription(t, db, user.ID, free, 0)
	newer := testutil.CreateActiveSubscription(t, db, user.ID, pro, 30*24*time.Hour)
	require.NoError(t, db.Model(older).UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)

	got, err := s.ActiveSubscription(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
	require.NotNil(t, got.Plan)
	assert.Equal(t, types.PlanTypePro, got.Plan.Type)

	_, err = s.ActiveSubscription(ctx, "missing-user")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPendingInvoiceForUpdate_PicksMostRecent(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewStore(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "inv")

	old := &models.Invoice{UserID: user.ID, Amount: decimal.NewFromInt(499), Currency: "INR", Status: types.InvoiceStatusPending, GatewayRef: "sub_1", CreatedAt: time.Now().Add(-time.Hour)}
	recent := &models.Invoice{UserID: user.ID, Amount: decimal.NewFromInt(499), Currency: "INR", Status: types.InvoiceStatusPending, GatewayRef: "sub_1", CreatedAt: time.Now()}
	paid := &models.Invoice{UserID: user.ID, Amount: decimal.NewFromInt(499), Currency: "INR", Status: types.InvoiceStatusPaid, GatewayRef: "sub_2"}
	require.NoError(t, s.CreateInvoice(ctx, old))
	require.NoError(t, s.CreateInvoice(ctx, recent))
	require.NoError(t, s.CreateInvoice(ctx, paid))

	got, err := s.PendingInvoiceForUpdate(ctx, user.ID, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, recent.ID, got.ID)

	_, err = s.PendingInvoiceForUpdate(ctx, user.ID, "sub_2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.PendingInvoiceForUpdate(ctx, "someone-else", "sub_1")
	assert.ErrorIs(t, err, ErrNotFound)

	gotPaid, err := s.PaidInvoiceByRef(ctx, user.ID, "sub_2")
	require.NoError(t, err)
	assert.Equal(t, paid.ID, gotPaid.ID)
}

func TestPaymentHistory_NewestFirstWithPlanName(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewStore(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "hist")
	pro := testutil.CreateProPlan(t, db, "plan_x")

	inv := &models.Invoice{UserID: user.ID, PlanID: &pro.ID, Amount: decimal.NewFromInt(499), Currency: "INR", Status: types.InvoiceStatusPaid, GatewayRef: "sub_1"}
	require.NoError(t, s.CreateInvoice(ctx, inv))

	first := &models.Payment{UserID: user.ID, InvoiceID: &inv.ID, Amount: decimal.NewFromInt(499), Currency: "INR", Status: types.PaymentStatusCompleted,
		Provider: types.PaymentProviderRazorpay, GatewayPaymentID: "pay_1", MethodDetails: datatypes.JSONMap{"method": "card"}, CreatedAt: time.Now().Add(-time.Hour)}
	second := &models.Payment{UserID: user.ID, Amount: decimal.RequireFromString("10.50"), Currency: "INR", Status: types.PaymentStatusCompleted,
		Provider: types.PaymentProviderRazorpay, GatewayPaymentID: "pay_2", MethodDetails: datatypes.JSONMap{"method": "upi"}, CreatedAt: time.Now()}
	require.NoError(t, s.CreatePayment(ctx, first))
	require.NoError(t, s.CreatePayment(ctx, second))

	rows, err := s.PaymentHistory(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, second.ID, rows[0].ID)
	assert.Nil(t, rows[0].PlanName)
	assert.True(t, decimal.RequireFromString("10.5").Equal(rows[0].Amount))
	assert.Equal(t, "upi", rows[0].MethodDetails["method"])

	assert.Equal(t, first.ID, rows[1].ID)
	require.NotNil(t, rows[1].PlanName)
	assert.Equal(t, "Pro", *rows[1].PlanName)
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewStore(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "rb")

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx *Store) error {
		require.NoError(t, tx.CreateInvoice(ctx, &models.Invoice{UserID: user.ID, Amount: decimal.NewFromInt(1), Currency: "INR", Status: types.InvoiceStatusPending, GatewayRef: "sub_rb"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&models.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSetGatewayCustomerID(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewStore(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "cust")

	require.NoError(t, s.SetGatewayCustomerID(ctx, user.ID, "cust_1"))
	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.GatewayCustomerID)
	assert.Equal(t, "cust_1", *got.GatewayCustomerID)

	assert.ErrorIs(t, s.SetGatewayCustomerID(ctx, "missing", "cust_2"), ErrNotFound)
}

func TestTransaction_BeginFailureSurfaces(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

	called := false
	err = NewStore(gdb).Transaction(context.Background(), func(tx *Store) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}
