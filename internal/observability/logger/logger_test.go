package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/carebill/internal/callercontext"
	obscontext "github.com/smallbiznis/carebill/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsRequestAndCaller(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = callercontext.WithCaller(ctx, callercontext.Caller{Role: callercontext.RolePatient, PatientID: 3})

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "patient:3", fields["caller"])
	}
}

func TestGormLoggerSkipsNotFound(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(DefaultGormLoggerConfig())
	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "INSERT INTO x", 0 }, errors.New("boom"))
	if assert.Equal(t, 1, logs.Len()) {
		assert.Equal(t, "INSERT", logs.All()[0].ContextMap()["operation"])
	}
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("  select * from payment_records"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestAccessEntryLevel(t *testing.T) {
	cases := []struct {
		entry accessEntry
		want  zapcore.Level
	}{
		{accessEntry{route: "/health", status: 500}, zapcore.DebugLevel},
		{accessEntry{route: "/api/payments", status: 502}, zapcore.ErrorLevel},
		{accessEntry{route: "/api/payments", status: 409}, zapcore.InfoLevel},
		{accessEntry{status: 404}, zapcore.InfoLevel},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.entry.level(), tc.entry.route)
	}
}

func TestGinMiddlewareLogsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "conflict", "payment_conflict" },
	}))
	r.POST("/api/payments/callback", func(c *gin.Context) {
		_ = c.Error(errors.New("held"))
		c.Status(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	if assert.Equal(t, 1, logs.Len()) {
		fields := logs.All()[0].ContextMap()
		assert.Equal(t, "req-42", fields["request_id"])
		assert.Equal(t, "/api/payments/callback", fields["route"])
		assert.Equal(t, int64(http.StatusConflict), fields["status"])
		assert.Equal(t, "payment_conflict", fields["error_code"])
		assert.NotContains(t, fields, "error")
	}
}
