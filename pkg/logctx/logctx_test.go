package logctx

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromCtx_EnrichesTraceAndUser(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := WithUserID(WithTraceID(context.Background(), "t-1"), "u-1")
	FromCtx(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "t-1", fields["trace_id"])
		assert.Equal(t, "u-1", fields["user_id"])
	}
	assert.Equal(t, "t-1", TraceID(ctx))
}

func TestFromCtx_PrefersStoredLogger(t *testing.T) {
	base := zap.NewNop().Sugar()
	stored := zap.NewNop().Sugar().With("k", "v")

	ctx := WithLogger(context.Background(), stored)
	assert.Same(t, stored, FromCtx(ctx, base))
	assert.Same(t, base, FromCtx(context.Background(), base))
}

func TestFromGin_UsesContextKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)
	base := zap.NewNop().Sugar()
	reqLogger := base.With("trace_id", "x")

	assert.Same(t, base, FromGin(c, base))
	c.Set(LoggerKey, reqLogger)
	assert.Same(t, reqLogger, FromGin(c, base))
}
