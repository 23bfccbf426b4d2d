package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/aspy/internal/app/api/middleware"
	"github.com/fatflowers/aspy/internal/app/service/certificates"
	"github.com/fatflowers/aspy/internal/app/service/execution"
)

// @Summary      Run code
// @Description  Translates the code to Python and runs it. Free plans are limited to a fixed number of runs.
// @Tags         Execution
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body execution.RunRequest true "Code to run"
// @Success      200  {object}  handlers.RespRun
// @Router       /api/v1/execute [post]
func ApiExecute(svc *execution.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req execution.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		res, err := svc.Run(c.Request.Context(), mw.CurrentUser(c), req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Supported languages
// @Tags         Execution
// @Produce      json
// @Success      200  {object}  handlers.RespLanguages
// @Router       /api/v1/languages [get]
func ApiLanguages(svc *execution.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Languages(c.Request.Context())
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Certificates
// @Description  One certificate per language used, for paid plans.
// @Tags         Certificates
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespCertificates
// @Router       /api/v1/certificates [get]
func ApiCertificates(svc *certificates.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.List(c.Request.Context(), mw.CurrentUser(c).ID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

func RegisterExecutionRoutes(pub, authed gin.IRouter, exec *execution.Service, certs *certificates.Service, log *zap.SugaredLogger) {
	pub.GET("/languages", ApiLanguages(exec, log))
	authed.POST("/execute", ApiExecute(exec, log))
	authed.GET("/certificates", ApiCertificates(certs, log))
}
