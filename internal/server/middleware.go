package server

import (
	"context"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/carebill/internal/callercontext"
	"github.com/smallbiznis/carebill/internal/ratelimit"
	"go.uber.org/zap"
)

// Set by the upstream auth proxy after it has authenticated the user.
const (
	HeaderCallerRole      = "X-Caller-Role"
	HeaderCallerPatientID = "X-Caller-Patient-ID"

	contextCallerKey = "caller"
)

// CallerRequired resolves the caller from proxy headers and rejects the
// request when they are missing or malformed.
func (s *Server) CallerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := callercontext.New(c.GetHeader(HeaderCallerRole), c.GetHeader(HeaderCallerPatientID))
		if err != nil {
			if s.log != nil {
				s.log.Debug("caller rejected", zap.Error(err))
			}
			AbortWithError(c, err)
			return
		}

		c.Set(contextCallerKey, caller)
		c.Request = c.Request.WithContext(callercontext.WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

func callerFrom(c *gin.Context) (callercontext.Caller, bool) {
	value, ok := c.Get(contextCallerKey)
	if !ok {
		return callercontext.Caller{}, false
	}
	caller, ok := value.(callercontext.Caller)
	return caller, ok
}

// paymentLimiter is satisfied by *ratelimit.PaymentLimiter.
type paymentLimiter interface {
	AllowOrder(ctx context.Context, subject string) (*ratelimit.RateLimitResult, error)
	AllowCallback(ctx context.Context, clientIP string) (*ratelimit.RateLimitResult, error)
	TryLockCallback(ctx context.Context, gatewayPaymentID string) (string, bool, error)
	ReleaseCallback(ctx context.Context, gatewayPaymentID, token string) error
}

// OrderRateLimit throttles checkout order creation per caller. Limiter
// failures let the request through.
func (s *Server) OrderRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		caller, _ := callerFrom(c)
		res, err := s.limiter.AllowOrder(c.Request.Context(), caller.String())
		s.applyRateLimit(c, res, err)
	}
}

// CallbackRateLimit throttles gateway callbacks per client address.
func (s *Server) CallbackRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		res, err := s.limiter.AllowCallback(c.Request.Context(), c.ClientIP())
		s.applyRateLimit(c, res, err)
	}
}

func (s *Server) applyRateLimit(c *gin.Context, res *ratelimit.RateLimitResult, err error) {
	if err != nil {
		s.log.Warn("rate limiter unavailable", zap.String("route", c.FullPath()), zap.Error(err))
		c.Next()
		return
	}
	if res != nil && !res.Allowed {
		if res.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		}
		AbortWithError(c, ErrTooManyRequests)
		return
	}
	c.Next()
}
