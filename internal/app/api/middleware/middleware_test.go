package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/types"
)

var errInactive = errors.New("inactive")

type stubAuth map[string]*models.User

func (s stubAuth) Authenticate(_ context.Context, token string) (*models.User, error) {
	if token == "disabled" {
		return nil, errInactive
	}
	if u, ok := s[token]; ok {
		return u, nil
	}
	return nil, errors.New("bad token")
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth := stubAuth{
		"user-token":  {ID: "u1", UserType: types.UserTypeUser},
		"admin-token": {ID: "a1", UserType: types.UserTypeAdmin},
	}
	log := zap.NewNop().Sugar()
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(log))
	authed := r.Group("/", AuthMiddleware(auth, func(err error) bool { return errors.Is(err, errInactive) }, log))
	authed.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, CurrentUser(c).ID) })
	authed.GET("/admin", AdminMiddleware(), func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func do(r http.Handler, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(t)
	tests := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"no header", "/me", "", http.StatusUnauthorized, "Not authenticated"},
		{"wrong scheme", "/me", "Basic abc", http.StatusUnauthorized, "Not authenticated"},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized, "Could not validate credentials"},
		{"inactive", "/me", "Bearer disabled", http.StatusForbidden, "Inactive user"},
		{"ok", "/me", "Bearer user-token", http.StatusOK, "u1"},
		{"lowercase scheme", "/me", "bearer user-token", http.StatusOK, "u1"},
		{"not admin", "/admin", "Bearer user-token", http.StatusForbidden, "privileges"},
		{"admin", "/admin", "Bearer admin-token", http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.path, tt.header)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestTraceAndRequestLogger(t *testing.T) {
	r := newRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(RequestIDHead, "trace-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "trace-1", w.Header().Get(RequestIDHead))

	w = do(r, "/me", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHead))
}

func TestAccessLog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core).Sugar()
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(log), AccessLogMiddleware(log))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do(r, "/items/7", "")
	entries := logs.FilterMessage("http_access").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "/items/:id", fields["path"])
		assert.EqualValues(t, http.StatusNoContent, fields["status"])
		assert.NotEmpty(t, fields["trace_id"])
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware(config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
