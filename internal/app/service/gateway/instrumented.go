package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/logctx"
	"github.com/fatflowers/aspy/pkg/metrics"
)

// instrumented times every call under bp_dur{type="gateway"} and logs failures.
type instrumented struct {
	next Client
	log  *zap.SugaredLogger
	rec  *metrics.Recorder
}

func Instrument(next Client, log *zap.SugaredLogger, rec *metrics.Recorder) Client {
	return &instrumented{next: next, log: log, rec: rec}
}

func (i *instrumented) done(ctx context.Context, op string, start time.Time, err error) {
	i.rec.ObserveProcess(metrics.ProcessTypeGateway, op, start)
	if err != nil {
		logctx.FromCtx(ctx, i.log).Warnw("gateway call failed", "op", op, "mode", i.next.Mode(), "error", err.Error())
	}
}

func (i *instrumented) Mode() config.GatewayMode { return i.next.Mode() }

func (i *instrumented) KeyID() string { return i.next.KeyID() }

func (i *instrumented) CreateCustomer(ctx context.Context, c Customer) (ref string, err error) {
	defer func(start time.Time) { i.done(ctx, "create_customer", start, err) }(time.Now())
	return i.next.CreateCustomer(ctx, c)
}

func (i *instrumented) CreateSubscription(ctx context.Context, req SubscriptionRequest) (ref string, err error) {
	defer func(start time.Time) { i.done(ctx, "create_subscription", start, err) }(time.Now())
	return i.next.CreateSubscription(ctx, req)
}

func (i *instrumented) VerifySignature(ctx context.Context, ref, paymentRef, signature string) (err error) {
	defer func(start time.Time) { i.done(ctx, "verify_signature", start, err) }(time.Now())
	return i.next.VerifySignature(ctx, ref, paymentRef, signature)
}

func (i *instrumented) VerifyWebhook(ctx context.Context, body []byte, signature string) (err error) {
	defer func(start time.Time) { i.done(ctx, "verify_webhook", start, err) }(time.Now())
	return i.next.VerifyWebhook(ctx, body, signature)
}

func (i *instrumented) FetchPayment(ctx context.Context, paymentRef string) (p *PaymentDetails, err error) {
	defer func(start time.Time) { i.done(ctx, "fetch_payment", start, err) }(time.Now())
	return i.next.FetchPayment(ctx, paymentRef)
}

func (i *instrumented) FetchSubscription(ctx context.Context, ref string) (s *SubscriptionDetails, err error) {
	defer func(start time.Time) { i.done(ctx, "fetch_subscription", start, err) }(time.Now())
	return i.next.FetchSubscription(ctx, ref)
}

func (i *instrumented) FetchInvoice(ctx context.Context, invoiceRef string) (inv *InvoiceDetails, err error) {
	defer func(start time.Time) { i.done(ctx, "fetch_invoice", start, err) }(time.Now())
	return i.next.FetchInvoice(ctx, invoiceRef)
}

func (i *instrumented) Cancel(ctx context.Context, ref string, atCycleEnd bool) (err error) {
	defer func(start time.Time) { i.done(ctx, "cancel", start, err) }(time.Now())
	return i.next.Cancel(ctx, ref, atCycleEnd)
}
