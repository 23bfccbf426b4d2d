package notification_handler

import (
	"context"
	"time"

	"github.com/fatflowers/aspy/internal/app/service/billing"
	"github.com/fatflowers/aspy/pkg/types"
)

type NotificationParser interface {
	GetProvider(ctx context.Context) types.PaymentProvider
	GetEvent(ctx context.Context) string
	GetNotificationTime(ctx context.Context) time.Time
	GetUserID(ctx context.Context) string
	GetGatewayRef(ctx context.Context) string
	GetGatewayEvent(ctx context.Context) billing.GatewayEvent
	GetData(ctx context.Context) any
}
