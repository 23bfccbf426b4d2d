package handlers

import (
	"errors"
	"net/http"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/aspy/internal/app/service/billing"
	"github.com/fatflowers/aspy/internal/app/service/execution"
	nh "github.com/fatflowers/aspy/internal/app/service/notification_handler"
	"github.com/fatflowers/aspy/internal/app/service/user"
	"github.com/fatflowers/aspy/internal/platform/social"
	"github.com/fatflowers/aspy/pkg/logctx"
	"github.com/fatflowers/aspy/pkg/response"
)

type errorClass struct {
	err  error
	code response.APIResponseCode
	// message replaces the error text when set.
	message string
	// detail serves the full wrapped error text.
	detail bool
}

// Checked in order: a timeout wrapped inside an upstream failure must
// surface as a timeout.
var errorClasses = []errorClass{
	{err: billing.ErrGatewayTimeout, code: response.APIResponseCodeGatewayTimeout},

	{err: billing.ErrPlanNotFound, code: response.APIResponseCodeNotFound},
	{err: billing.ErrInvoiceNotFound, code: response.APIResponseCodeNotFound},
	{err: billing.ErrNoActiveSubscription, code: response.APIResponseCodeNotFound},
	{err: billing.ErrInvoiceURLUnavailable, code: response.APIResponseCodeNotFound},

	{err: billing.ErrInvalidSignature, code: response.APIResponseCodeBadRequest, message: "Invalid payment signature"},
	{err: billing.ErrPlanNotConfigured, code: response.APIResponseCodeBadRequest},
	{err: billing.ErrNotLinkedToGateway, code: response.APIResponseCodeBadRequest},
	{err: billing.ErrUpdateInTestMode, code: response.APIResponseCodeBadRequest},
	{err: billing.ErrUnsupportedProvider, code: response.APIResponseCodeBadRequest},
	{err: nh.ErrUnsupportedProvider, code: response.APIResponseCodeBadRequest},

	{err: billing.ErrVerifyInProgress, code: response.APIResponseCodeConflict},

	{err: user.ErrEmailTaken, code: response.APIResponseCodeBadRequest},
	{err: user.ErrUsernameTaken, code: response.APIResponseCodeBadRequest},
	{err: user.ErrEmailRequired, code: response.APIResponseCodeBadRequest},
	{err: user.ErrUnsupportedProvider, code: response.APIResponseCodeBadRequest},
	{err: social.ErrNotConfigured, code: response.APIResponseCodeBadRequest},
	{err: user.ErrInvalidCredentials, code: response.APIResponseCodeUnauthorized, message: "Incorrect email or password"},
	{err: social.ErrInvalidCredential, code: response.APIResponseCodeUnauthorized},
	{err: user.ErrInactiveUser, code: response.APIResponseCodeForbidden},

	{err: execution.ErrRunLimitReached, code: response.APIResponseCodeForbidden, detail: true},
}

func classify(err error) (response.APIResponseCode, string) {
	for _, ec := range errorClasses {
		if errors.Is(err, ec.err) {
			if ec.message != "" {
				return ec.code, ec.message
			}
			if ec.detail {
				return ec.code, err.Error()
			}
			return ec.code, capitalize(ec.err.Error())
		}
	}
	return response.APIResponseCodeError, capitalize(err.Error())
}

func writeError(c *gin.Context, log *zap.SugaredLogger, err error) {
	code, msg := classify(err)
	if code == response.APIResponseCodeError || code == response.APIResponseCodeGatewayTimeout {
		logctx.FromGin(c, log).Errorw("request failed", "path", c.FullPath(), "error", err.Error())
	}
	c.JSON(code.HTTPStatus(), response.ErrorMsg(code, msg))
}

func writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.ErrorMsg(response.APIResponseCodeBadRequest, err.Error()))
}

func ok[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, response.OKT(data))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
