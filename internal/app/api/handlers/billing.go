package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/aspy/internal/app/api/middleware"
	"github.com/fatflowers/aspy/internal/app/service/billing"
	"github.com/fatflowers/aspy/pkg/types"
)

func requireRazorpay(c *gin.Context, log *zap.SugaredLogger) bool {
	if c.Param("provider") != string(types.PaymentProviderRazorpay) {
		writeError(c, log, billing.ErrUnsupportedProvider)
		return false
	}
	return true
}

// @Summary      Start a subscription checkout
// @Description  Creates the gateway subscription and a pending invoice. The response feeds the checkout widget.
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        provider path string true "Payment provider" Enums(razorpay)
// @Param        request body billing.PurchaseRequest true "Plan to purchase"
// @Success      200  {object}  handlers.RespPurchase
// @Router       /api/v1/payments/{provider}/create-subscription [post]
func ApiCreateSubscription(svc *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireRazorpay(c, log) {
			return
		}
		var req billing.PurchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		res, err := svc.InitiatePurchase(c.Request.Context(), mw.CurrentUser(c), req.PlanID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Verify a checkout
// @Description  Checks the payment signature and activates the subscription. Repeating a verified checkout returns status already_processed.
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        provider path string true "Payment provider" Enums(razorpay)
// @Param        request body billing.VerifyRequest true "Checkout result"
// @Success      200  {object}  handlers.RespVerify
// @Router       /api/v1/payments/{provider}/verify [post]
func ApiVerifyPayment(svc *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireRazorpay(c, log) {
			return
		}
		var req billing.VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		res, err := svc.VerifyAndActivate(c.Request.Context(), mw.CurrentUser(c), req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Cancel at period end
// @Tags         Subscriptions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespCancel
// @Router       /api/v1/subscriptions/cancel [post]
func ApiCancelSubscription(svc *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Cancel(c.Request.Context(), mw.CurrentUser(c).ID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Undo a pending cancellation
// @Tags         Subscriptions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespResume
// @Router       /api/v1/subscriptions/resume [post]
func ApiResumeSubscription(svc *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Resume(c.Request.Context(), mw.CurrentUser(c).ID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Payment history
// @Tags         Payments
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespPaymentHistory
// @Router       /api/v1/payments/history [get]
func ApiPaymentHistory(svc *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.PaymentHistory(c.Request.Context(), mw.CurrentUser(c).ID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Accepted payment methods
// @Tags         Payments
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payments/methods [get]
func ApiPaymentMethods(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok(c, svc.AvailablePaymentMethods())
	}
}

// @Summary      Current payment method
// @Tags         Payment Methods
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespPaymentMethod
// @Router       /api/v1/payment-method/current [get]
func ApiCurrentPaymentMethod(svc *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.CurrentPaymentMethod(c.Request.Context(), mw.CurrentUser(c).ID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Update payment method
// @Tags         Payment Methods
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payment-method/update [post]
func ApiUpdatePaymentMethod(svc *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.UpdatePaymentMethod(c.Request.Context(), mw.CurrentUser(c).ID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Invoice download link
// @Tags         Invoices
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Invoice id"
// @Success      200  {object}  handlers.RespInvoiceDownload
// @Router       /api/v1/invoices/download/{id} [get]
func ApiInvoiceDownload(svc *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.InvoiceDownload(c.Request.Context(), mw.CurrentUser(c).ID, c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Plan catalog
// @Tags         Plans
// @Produce      json
// @Success      200  {object}  handlers.RespPlans
// @Router       /api/v1/plans [get]
func ApiListPlans(svc *billing.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.ListPlans(c.Request.Context())
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

func RegisterBillingRoutes(pub, authed gin.IRouter, svc *billing.Service, log *zap.SugaredLogger) {
	pub.GET("/plans", ApiListPlans(svc, log))

	authed.POST("/subscriptions/cancel", ApiCancelSubscription(svc, log))
	authed.POST("/subscriptions/resume", ApiResumeSubscription(svc, log))
	authed.POST("/payments/:provider/create-subscription", ApiCreateSubscription(svc, log))
	authed.POST("/payments/:provider/verify", ApiVerifyPayment(svc, log))
	authed.GET("/payments/history", ApiPaymentHistory(svc, log))
	authed.GET("/payments/methods", ApiPaymentMethods(svc))
	authed.GET("/payment-method/current", ApiCurrentPaymentMethod(svc, log))
	authed.POST("/payment-method/update", ApiUpdatePaymentMethod(svc, log))
	authed.GET("/invoices/download/:id", ApiInvoiceDownload(svc, log))
}
