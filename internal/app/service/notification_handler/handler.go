package notification_handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/aspy/internal/app/service/billing"
	"github.com/fatflowers/aspy/internal/app/service/gateway"
	notificationlog "github.com/fatflowers/aspy/internal/app/service/notification_log"
	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/logctx"
	"github.com/fatflowers/aspy/pkg/types"
)

var ErrUnsupportedProvider = errors.New("unsupported notification provider")

type NotificationHandler struct {
	gw         gateway.Client
	notifSvc   *notificationlog.Service
	billingSvc *billing.Service
	Logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewNotificationHandler(gw gateway.Client, notif *notificationlog.Service, billingSvc *billing.Service, log *zap.SugaredLogger) *NotificationHandler {
	return &NotificationHandler{gw: gw, notifSvc: notif, billingSvc: billingSvc, Logger: log, now: time.Now}
}

// HandleNotification authenticates a webhook body, records it and applies it
// to the ledger. An invalid signature is rejected before anything is logged.
// Events for subscriptions this ledger does not know are logged as handled.
func (h *NotificationHandler) HandleNotification(ctx context.Context, provider types.PaymentProvider, body []byte, signature string) (outcome *billing.EventOutcome, resErr error) {
	if provider != types.PaymentProviderRazorpay {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	if err := h.gw.VerifyWebhook(ctx, body, signature); err != nil {
		return nil, err
	}
	parser, err := NewRazorpayNotificationParser(body, h.now())
	if err != nil {
		return nil, err
	}

	log := logctx.FromCtx(ctx, h.Logger)
	base := models.PaymentNotificationLog{
		Provider:         string(parser.GetProvider(ctx)),
		Event:            parser.GetEvent(ctx),
		GatewayRef:       parser.GetGatewayRef(ctx),
		UserID:           lo.EmptyableToPtr(parser.GetUserID(ctx)),
		TraceID:          logctx.TraceID(ctx),
		NotificationTime: parser.GetNotificationTime(ctx),
		Data:             datatypes.JSON(body),
	}

	received := base
	received.Status = models.PaymentNotificationLogStatusReceived
	h.notifSvc.Save(ctx, &received)

	defer func() {
		result := datatypes.JSONMap{"outcome": outcome}
		status := models.PaymentNotificationLogStatusHandled
		if resErr != nil {
			result["error"] = resErr.Error()
			status = models.PaymentNotificationLogStatusHandleFailed
		}
		handled := base
		handled.NotificationTime = h.now()
		handled.Result = result
		handled.Status = status
		h.notifSvc.Save(ctx, &handled)
	}()

	outcome, resErr = h.billingSvc.ApplyGatewayEvent(ctx, parser.GetGatewayEvent(ctx))
	if errors.Is(resErr, billing.ErrSubscriptionUnknown) {
		log.Warnw("notification for unknown subscription", "event", base.Event, "gateway_ref", base.GatewayRef)
		outcome, resErr = &billing.EventOutcome{Reason: "unknown subscription"}, nil
	}
	if resErr != nil {
		log.Errorw("failed to apply notification", "event", base.Event, "error", resErr.Error())
		return nil, resErr
	}

	log.Infow("notification applied", "event", base.Event, "gateway_ref", base.GatewayRef, "applied", outcome.Applied)
	return outcome, nil
}

var Module = fx.Options(
	fx.Provide(NewNotificationHandler),
)
