package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/tool"
	"github.com/fatflowers/aspy/pkg/types"
)

// proSubscription stores an ACTIVE pro subscription whose period started a
// week before the fixture clock.
func (f *fixture) proSubscription(t *testing.T, ref string) *models.Subscription {
	t.Helper()
	start := f.now.Add(-7 * 24 * time.Hour)
	end := start.Add(BillingPeriod)
	sub := &models.Subscription{
		ID:                    tool.GenerateUUIDV7(),
		UserID:                f.user.ID,
		PlanID:                f.pro.ID,
		Status:                types.SubscriptionStatusActive,
		GatewaySubscriptionID: lo.EmptyableToPtr(ref),
		CurrentPeriodStart:    &start,
		CurrentPeriodEnd:      &end,
	}
	require.NoError(t, f.db.Create(sub).Error)
	return sub
}

func TestCancel_NoActiveSubscription(t *testing.T) {
	f := newFixture(t, config.GatewayModeLive)
	_, err := f.svc.Cancel(context.Background(), f.user.ID)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestCancel_TwiceKeepsFirstCancelledAt(t *testing.T) {
	f := newFixture(t, config.GatewayModeLive)
	sub := f.proSubscription(t, "sub_live_c")
	ctx := context.Background()

	res, err := f.svc.Cancel(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, CancelStatusSuccess, res.Status)
	require.NotNil(t, res.AccessUntil)
	assert.True(t, res.AccessUntil.Equal(*sub.CurrentPeriodEnd))
	assert.Equal(t, 1, f.gw.cancelCalls)

	first := reloadSubscription(t, f.db, sub.ID)
	require.True(t, first.CancelAtPeriodEnd)
	require.NotNil(t, first.CancelledAt)

	f.now = f.now.Add(time.Hour)
	res, err = f.svc.Cancel(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, CancelStatusAlreadyCancelled, res.Status)
	assert.Equal(t, 1, f.gw.cancelCalls)

	second := reloadSubscription(t, f.db, sub.ID)
	assert.True(t, second.CancelledAt.Equal(*first.CancelledAt))
	assert.Equal(t, types.SubscriptionStatusActive, second.Status)
}

func TestCancel_UnlinkedSkipsGateway(t *testing.T) {
	f := newFixture(t, config.GatewayModeLive)
	f.proSubscription(t, "")

	res, err := f.svc.Cancel(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Subscription cancelled. No further charges will be made.", res.Message)
	assert.Nil(t, res.AccessUntil)
	assert.Zero(t, f.gw.cancelCalls)
}

func TestCancel_MockRefSkipsGateway(t *testing.T) {
	f := newFixture(t, config.GatewayModeLive)
	f.proSubscription(t, "sub_mock_u_1")

	_, err := f.svc.Cancel(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Zero(t, f.gw.cancelCalls)
}

func TestCancel_GatewayFailureLeavesFlags(t *testing.T) {
	f := newFixture(t, config.GatewayModeLive)
	sub := f.proSubscription(t, "sub_live_c")
	f.gw.cancelErr = errors.New("subscription is not cancellable")

	_, err := f.svc.Cancel(context.Background(), f.user.ID)
	assert.ErrorIs(t, err, ErrCancellationFailed)

	got := reloadSubscription(t, f.db, sub.ID)
	assert.False(t, got.CancelAtPeriodEnd)
	assert.Nil(t, got.CancelledAt)
	assert.Zero(t, count(t, f.db, &models.SubscriptionLog{}, "subscription_id = ?", sub.ID))
}

func TestCancel_LocalFailureAfterGatewayCancelIsLogged(t *testing.T) {
	f := newFixture(t, config.GatewayModeLive)
	sub := f.proSubscription(t, "sub_live_c")
	core, logs := observer.New(zap.ErrorLevel)
	f.svc.log = zap.New(core).Sugar()

	const cb = "fail_cancel_log"
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register(cb, func(tx *gorm.DB) {
		if tx.Statement.Table == "subscription_log" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))
	t.Cleanup(func() { _ = f.db.Callback().Create().Remove(cb) })

	_, err := f.svc.Cancel(context.Background(), f.user.ID)
	assert.ErrorIs(t, err, ErrCancellationFailed)
	assert.Equal(t, 1, f.gw.cancelCalls)

	got := reloadSubscription(t, f.db, sub.ID)
	assert.False(t, got.CancelAtPeriodEnd)

	entries := logs.FilterMessage("gateway cancelled but local update failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "sub_live_c", entries[0].ContextMap()["gateway_ref"])
	assert.Equal(t, f.user.ID, entries[0].ContextMap()["user_id"])
}

func TestCancel_GatewayFailureIsNotReportedAsInconsistent(t *testing.T) {
	f := newFixture(t, config.GatewayModeLive)
	f.proSubscription(t, "sub_live_c")
	core, logs := observer.New(zap.ErrorLevel)
	f.svc.log = zap.New(core).Sugar()
	f.gw.cancelErr = errors.New("subscription is not cancellable")

	_, err := f.svc.Cancel(context.Background(), f.user.ID)
	assert.ErrorIs(t, err, ErrCancellationFailed)
	assert.Zero(t, logs.FilterMessage("gateway cancelled but local update failed").Len())
}

func TestResume(t *testing.T) {
	f := newFixture(t, config.GatewayModeLive)
	sub := f.proSubscription(t, "sub_live_r")
	ctx := context.Background()

	res, err := f.svc.Resume(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, ResumeStatusNotCancelled, res.Status)
	assert.Zero(t, count(t, f.db, &models.SubscriptionLog{}, "subscription_id = ?", sub.ID))

	_, err = f.svc.Cancel(ctx, f.user.ID)
	require.NoError(t, err)
	res, err = f.svc.Resume(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, ResumeStatusSuccess, res.Status)

	got := reloadSubscription(t, f.db, sub.ID)
	assert.False(t, got.CancelAtPeriodEnd)
	assert.Nil(t, got.CancelledAt)
	assert.Equal(t, 1, f.gw.cancelCalls, "resume does not call the gateway")
	assert.Equal(t, int64(2), count(t, f.db, &models.SubscriptionLog{}, "subscription_id = ?", sub.ID))
}

func TestExpireDue(t *testing.T) {
	f := newFixture(t, config.GatewayModeMock)
	ctx := context.Background()

	due := f.proSubscription(t, "sub_mock_a_1")
	require.NoError(t, f.db.Model(due).Updates(map[string]any{"cancel_at_period_end": true}).Error)

	other := testUser(t, f, "ravi")
	running := f.proSubscription(t, "sub_mock_b_1")
	require.NoError(t, f.db.Model(running).Update("user_id", other).Error)

	f.now = f.now.Add(BillingPeriod)
	n, err := f.svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, types.SubscriptionStatusExpired, reloadSubscription(t, f.db, due.ID).Status)
	assert.Equal(t, types.SubscriptionStatusActive, reloadSubscription(t, f.db, running.ID).Status)

	n, err = f.svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testUser(t *testing.T, f *fixture, name string) string {
	t.Helper()
	u := &models.User{ID: tool.GenerateUUIDV7(), Username: name, Email: name + "@example.com", PasswordHash: "x", UserType: types.UserTypeUser, IsActive: true}
	require.NoError(t, f.db.Create(u).Error)
	return u.ID
}

func TestApplyGatewayEvent(t *testing.T) {
	f := newFixture(t, config.GatewayModeLive)
	sub := f.proSubscription(t, "sub_live_ev")
	ctx := context.Background()

	out, err := f.svc.ApplyGatewayEvent(ctx, GatewayEvent{Event: "payment.captured", SubscriptionRef: "sub_live_ev"})
	require.NoError(t, err)
	assert.False(t, out.Applied)

	charged := GatewayEvent{Event: EventSubscriptionCharged, SubscriptionRef: "sub_live_ev", PaymentID: "pay_renew_1", AmountMinor: 49900, Currency: "INR", Method: "upi"}
	out, err = f.svc.ApplyGatewayEvent(ctx, charged)
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, types.SubscriptionStatusActive, out.Status)

	got := reloadSubscription(t, f.db, sub.ID)
	assert.True(t, got.CurrentPeriodEnd.Equal(sub.CurrentPeriodEnd.Add(BillingPeriod)))
	var p models.Payment
	require.NoError(t, f.db.Where("gateway_payment_id = ?", "pay_renew_1").Take(&p).Error)
	assert.True(t, decimal.NewFromInt(499).Equal(p.Amount))
	assert.Equal(t, sub.ID, lo.FromPtr(p.SubscriptionID))

	out, err = f.svc.ApplyGatewayEvent(ctx, charged)
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.True(t, reloadSubscription(t, f.db, sub.ID).CurrentPeriodEnd.Equal(*got.CurrentPeriodEnd))
	assert.Equal(t, int64(1), count(t, f.db, &models.Payment{}, ""))

	out, err = f.svc.ApplyGatewayEvent(ctx, GatewayEvent{Event: EventSubscriptionHalted, SubscriptionRef: "sub_live_ev"})
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusPastDue, out.Status)

	out, err = f.svc.ApplyGatewayEvent(ctx, GatewayEvent{Event: EventSubscriptionCancelled, SubscriptionRef: "sub_live_ev"})
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusExpired, out.Status)
	assert.NotNil(t, reloadSubscription(t, f.db, sub.ID).CancelledAt)

	_, err = f.svc.ApplyGatewayEvent(ctx, GatewayEvent{Event: EventSubscriptionHalted, SubscriptionRef: "sub_unknown"})
	assert.ErrorIs(t, err, ErrSubscriptionUnknown)
}

func TestSubscriptionInfo(t *testing.T) {
	f := newFixture(t, config.GatewayModeMock)
	ctx := context.Background()

	info, err := f.svc.SubscriptionInfo(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PlanTypeFree, info.PlanType)

	f.proSubscription(t, "sub_mock_x_1")
	info, err = f.svc.SubscriptionInfo(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PlanTypePro, info.PlanType)
	assert.Equal(t, types.SubscriptionStatusActive, info.Status)
}

func TestCurrentPaymentMethod(t *testing.T) {
	f := newFixture(t, config.GatewayModeLive)
	ctx := context.Background()

	info, err := f.svc.CurrentPaymentMethod(ctx, f.user.ID)
	require.NoError(t, err)
	assert.False(t, info.HasPaymentMethod)
	assert.Equal(t, "No active subscription found", info.Message)

	sub := f.proSubscription(t, "sub_live_pm")
	info, err = f.svc.CurrentPaymentMethod(ctx, f.user.ID)
	require.NoError(t, err)
	assert.False(t, info.HasPaymentMethod)

	require.NoError(t, f.db.Create(&models.Payment{
		ID: tool.GenerateUUIDV7(), UserID: f.user.ID, SubscriptionID: &sub.ID, Amount: decimal.NewFromInt(499),
		Currency: "INR", Status: types.PaymentStatusCompleted, Provider: types.PaymentProviderRazorpay,
		GatewayPaymentID: "pay_pm", MethodDetails: datatypes.JSONMap{"method": "upi"}, CreatedAt: f.now,
	}).Error)
	info, err = f.svc.CurrentPaymentMethod(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, info.HasPaymentMethod)
	assert.Equal(t, "upi", info.PaymentMethod["type"])

	require.NoError(t, f.db.Model(sub).Updates(map[string]any{"card_last4": "1111", "card_brand": "MasterCard"}).Error)
	info, err = f.svc.CurrentPaymentMethod(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "card", info.PaymentMethod["type"])
	assert.Equal(t, "1111", info.PaymentMethod["card_last4"])
	assert.Equal(t, "MasterCard", info.PaymentMethod["card_brand"])
}

func TestPaymentHistory(t *testing.T) {
	f := newFixture(t, config.GatewayModeMock)
	ctx := context.Background()
	purchase, err := f.svc.InitiatePurchase(ctx, f.user, f.pro.ID)
	require.NoError(t, err)
	_, err = f.svc.VerifyAndActivate(ctx, f.user, VerifyRequest{OrderID: purchase.OrderID, PaymentID: "pay_h"})
	require.NoError(t, err)

	items, err := f.svc.PaymentHistory(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 499.0, items[0].Amount)
	assert.Equal(t, "card", items[0].PaymentMethod)
	assert.Equal(t, "Pro", lo.FromPtr(items[0].PlanName))
}

func TestInvoiceDownload(t *testing.T) {
	f := newFixture(t, config.GatewayModeLive)
	ctx := context.Background()

	_, err := f.svc.InvoiceDownload(ctx, f.user.ID, tool.GenerateUUIDV7())
	assert.ErrorIs(t, err, ErrInvoiceNotFound)

	paymentID := tool.GenerateUUIDV7()
	require.NoError(t, f.db.Create(&models.Payment{
		ID: paymentID, UserID: f.user.ID, Amount: decimal.NewFromInt(499), Currency: "INR",
		Status: types.PaymentStatusCompleted, Provider: types.PaymentProviderRazorpay,
		GatewayPaymentID: "pay_dl", GatewayInvoiceID: lo.ToPtr("inv_live_dl"), CreatedAt: f.now,
	}).Error)
	inv := &models.Invoice{
		ID: tool.GenerateUUIDV7(), UserID: f.user.ID, Amount: decimal.NewFromInt(499), Currency: "INR",
		Status: types.InvoiceStatusPaid, GatewayRef: "sub_live_dl", PaymentID: &paymentID,
	}
	require.NoError(t, f.db.Create(inv).Error)

	_, err = f.svc.InvoiceDownload(ctx, f.user.ID, inv.ID)
	assert.ErrorIs(t, err, ErrInvoiceURLUnavailable)

	f.gw.invoiceURL = "https://rzp.io/i/dl"
	dl, err := f.svc.InvoiceDownload(ctx, f.user.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://rzp.io/i/dl", dl.InvoiceURL)

	var stored models.Invoice
	require.NoError(t, f.db.Where("id = ?", inv.ID).Take(&stored).Error)
	assert.Equal(t, "https://rzp.io/i/dl", lo.FromPtr(stored.InvoiceURL))

	other := testUser(t, f, "ravi")
	_, err = f.svc.InvoiceDownload(ctx, other, inv.ID)
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestUpdatePaymentMethod(t *testing.T) {
	f := newFixture(t, config.GatewayModeLive)
	ctx := context.Background()

	_, err := f.svc.UpdatePaymentMethod(ctx, f.user.ID)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)

	sub := f.proSubscription(t, "")
	_, err = f.svc.UpdatePaymentMethod(ctx, f.user.ID)
	assert.ErrorIs(t, err, ErrNotLinkedToGateway)

	require.NoError(t, f.db.Model(sub).Update("gateway_subscription_id", "sub_mock_u_1").Error)
	_, err = f.svc.UpdatePaymentMethod(ctx, f.user.ID)
	assert.ErrorIs(t, err, ErrUpdateInTestMode)
}

func TestFormatFeatures(t *testing.T) {
	got := FormatFeatures(map[string]any{
		"code_runs":        "Unlimited",
		"priority_support": true,
		"export":           false,
	})
	assert.Equal(t, "Code Runs: Unlimited | Export: No | Priority Support: Yes", got)
	assert.Empty(t, FormatFeatures(nil))
}
