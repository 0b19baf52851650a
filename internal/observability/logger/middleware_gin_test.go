package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	obscontext "github.com/verma04/thrico-backend-services-sub003/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newRouter(log *zap.Logger, seen *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{Logger: log}))
	r.GET("/leaderboards/:entityId", func(c *gin.Context) {
		*seen = obscontext.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return r
}

func TestGinMiddlewarePropagatesRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var seen string
	r := newRouter(zap.New(core), &seen)

	req := httptest.NewRequest(http.MethodGet, "/leaderboards/e1", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", seen)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.InfoLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, "/leaderboards/:entityId", fields["route"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	core, _ := observer.New(zap.DebugLevel)
	var seen string
	r := newRouter(zap.New(core), &seen)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leaderboards/e1", nil))

	generated := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, seen)
}

func TestGinMiddlewareLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var seen string
	r := newRouter(zap.New(core), &seen)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zap.DebugLevel, logs.All()[0].Level)
	assert.Equal(t, zap.ErrorLevel, logs.All()[1].Level)
}
