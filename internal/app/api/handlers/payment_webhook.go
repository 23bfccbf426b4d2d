package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	nh "github.com/fatflowers/aspy/internal/app/service/notification_handler"
	"github.com/fatflowers/aspy/pkg/logctx"
	"github.com/fatflowers/aspy/pkg/types"
)

const (
	razorpaySignatureHeader = "X-Razorpay-Signature"
	maxWebhookBody          = 1 << 20
)

// @Summary      Razorpay Webhook
// @Description  Handles Razorpay subscription events. The body is authenticated with the X-Razorpay-Signature HMAC.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        X-Razorpay-Signature header string true "HMAC-SHA256 of the body with the webhook secret"
// @Param        payload body object true "Razorpay event"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payments/razorpay/webhook [post]
// ApiRazorpayWebhook handles Razorpay webhook deliveries
func ApiRazorpayWebhook(h *nh.NotificationHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logctx.FromGin(c, h.Logger)
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			writeBindError(c, err)
			return
		}
		log.Infow("webhook_razorpay_received", "bytes", len(body))

		out, err := h.HandleNotification(c.Request.Context(), types.PaymentProviderRazorpay, body, c.GetHeader(razorpaySignatureHeader))
		if err != nil {
			log.Errorw("webhook_razorpay_handle_error", "error", err.Error())
			writeError(c, h.Logger, err)
			return
		}
		log.Infow("webhook_razorpay_handled", "applied", out.Applied)
		ok(c, out)
	}
}

func RegisterPaymentWebhookRoutes(r gin.IRouter, h *nh.NotificationHandler) {
	r.POST("/payments/razorpay/webhook", ApiRazorpayWebhook(h))
}
