package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/carebill/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const RequestIDHeader = "X-Request-Id"

// ErrorClassifier maps a handler error to a stable type and code for the
// access log.
type ErrorClassifier func(err error) (errType string, code string)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier ErrorClassifier
}

// quietRoutes are logged at debug level only.
var quietRoutes = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// GinMiddleware tags the request with an id and client details and writes
// one access log entry when the handler chain returns.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = obscontext.WithClient(ctx, obscontext.Client{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		entry := accessEntry{
			method:   c.Request.Method,
			route:    c.FullPath(),
			status:   c.Writer.Status(),
			elapsed:  time.Since(start),
			bytesOut: c.Writer.Size(),
		}
		if last := c.Errors.Last(); last != nil {
			entry.err = last.Err
			if cfg.ErrorClassifier != nil {
				entry.errType, entry.errCode = cfg.ErrorClassifier(last.Err)
			}
		}

		// Handlers may have attached a caller after this middleware ran.
		entry.write(FromContext(c.Request.Context()), cfg.Debug)
	}
}

func requestIDFor(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
	if id == "" {
		id = uuid.NewString()
	}
	c.Set("request_id", id)
	c.Header(RequestIDHeader, id)
	return id
}

type accessEntry struct {
	method   string
	route    string
	status   int
	elapsed  time.Duration
	bytesOut int

	err     error
	errType string
	errCode string
}

func (e accessEntry) level() zapcore.Level {
	if _, ok := quietRoutes[e.route]; ok {
		return zapcore.DebugLevel
	}
	if e.status >= http.StatusInternalServerError {
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

func (e accessEntry) write(log *zap.Logger, debug bool) {
	if log == nil {
		return
	}
	ce := log.Check(e.level(), "http_request")
	if ce == nil {
		return
	}

	route := e.route
	if route == "" {
		route = "unknown"
	}
	fields := []zap.Field{
		zap.String("method", e.method),
		zap.String("route", route),
		zap.Int("status", e.status),
		zap.Int64("duration_ms", e.elapsed.Milliseconds()),
		zap.Int("bytes_out", max(e.bytesOut, 0)),
	}
	if e.err != nil {
		fields = append(fields, zap.String("error_type", e.errType), zap.String("error_code", e.errCode))
		if debug {
			fields = append(fields, zap.Error(e.err))
		}
	}
	ce.Write(fields...)
}
