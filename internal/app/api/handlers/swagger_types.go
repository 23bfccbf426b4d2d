package handlers

import (
	"github.com/fatflowers/aspy/internal/app/service/billing"
	"github.com/fatflowers/aspy/internal/app/service/certificates"
	"github.com/fatflowers/aspy/internal/app/service/execution"
	"github.com/fatflowers/aspy/internal/app/service/statistics"
	"github.com/fatflowers/aspy/internal/app/service/user"
	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespAuth struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    user.AuthResult          `json:"data"`
}

type RespMe struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    user.MeResult            `json:"data"`
}

type RespStats struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    user.Stats               `json:"data"`
}

// RespPurchase carries what the checkout widget needs.
type RespPurchase struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    billing.PurchaseResult   `json:"data"`
}

type RespVerify struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    billing.VerifyResult     `json:"data"`
}

type RespCancel struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    billing.CancelResult     `json:"data"`
}

type RespResume struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    billing.ResumeResult     `json:"data"`
}

type RespPaymentHistory struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    []billing.PaymentHistoryItem `json:"data"`
}

type RespPaymentMethod struct {
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    billing.PaymentMethodInfo `json:"data"`
}

type RespInvoiceDownload struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    billing.InvoiceDownload  `json:"data"`
}

type RespPlans struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []billing.PlanView       `json:"data"`
}

type RespRun struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    execution.RunResult      `json:"data"`
}

type RespLanguages struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.Language        `json:"data"`
}

type RespCertificates struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    certificates.Result      `json:"data"`
}

// RespOverview wraps the admin dashboard figures in the standard envelope.
type RespOverview struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    statistics.Overview      `json:"data"`
}

type RespSubscriptionPage struct {
	Code    response.APIResponseCode    `json:"code"`
	Message string                      `json:"message"`
	Data    statistics.SubscriptionPage `json:"data"`
}

// RespDailyStatistic wraps DailyStatisticResponse in the standard envelope.
type RespDailyStatistic struct {
	Code    response.APIResponseCode          `json:"code"`
	Message string                            `json:"message"`
	Data    statistics.DailyStatisticResponse `json:"data"`
}
