package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/aspy/internal/app/api/middleware"
	"github.com/fatflowers/aspy/internal/app/service/user"
	"github.com/fatflowers/aspy/pkg/response"
)

// @Summary      Register
// @Description  Creates an account on the free plan and returns an access token.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request body user.RegisterRequest true "New account"
// @Success      201  {object}  handlers.RespAuth
// @Router       /api/v1/auth/register [post]
func ApiRegister(svc *user.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req user.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		res, err := svc.Register(c.Request.Context(), req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, response.OKT(res))
	}
}

// @Summary      Login
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request body user.LoginRequest true "Credentials"
// @Success      200  {object}  handlers.RespAuth
// @Router       /api/v1/auth/login [post]
func ApiLogin(svc *user.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req user.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		res, err := svc.Login(c.Request.Context(), req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Social login
// @Description  Signs in with a Google access token, a GitHub authorization code or an Apple id token.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request body user.SocialLoginRequest true "Provider credential"
// @Success      200  {object}  handlers.RespAuth
// @Router       /api/v1/auth/social-login [post]
func ApiSocialLogin(svc *user.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req user.SocialLoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		res, err := svc.SocialLogin(c.Request.Context(), req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Current user
// @Tags         Authentication
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespMe
// @Router       /api/v1/auth/me [get]
func ApiMe(svc *user.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Me(c.Request.Context(), mw.CurrentUser(c))
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Usage statistics
// @Tags         Authentication
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespStats
// @Router       /api/v1/auth/stats [get]
func ApiStats(svc *user.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Stats(c.Request.Context(), mw.CurrentUser(c).ID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

func RegisterAuthRoutes(pub, authed gin.IRouter, svc *user.Service, log *zap.SugaredLogger) {
	pub.POST("/auth/register", ApiRegister(svc, log))
	pub.POST("/auth/login", ApiLogin(svc, log))
	pub.POST("/auth/social-login", ApiSocialLogin(svc, log))
	authed.GET("/auth/me", ApiMe(svc, log))
	authed.GET("/auth/stats", ApiStats(svc, log))
}
