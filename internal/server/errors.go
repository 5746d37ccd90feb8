package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/callercontext"
	chargedomain "github.com/smallbiznis/carebill/internal/charge/domain"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	gatewaydomain "github.com/smallbiznis/carebill/internal/gateway/domain"
	ledgerdomain "github.com/smallbiznis/carebill/internal/ledger/domain"
	settlementdomain "github.com/smallbiznis/carebill/internal/settlement/domain"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
	"github.com/smallbiznis/carebill/pkg/money"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("not_found")
	ErrTooManyRequests = errors.New("too_many_requests")
)

// ErrorHandlingMiddleware renders the last handler error unless the handler
// already wrote a response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		last := c.Errors.Last()
		if last == nil {
			return
		}

		status, payload := mapError(last.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{{Field: field, Code: code, Message: message}},
	}
}

// errorClass maps a group of sentinel errors onto one response shape.
type errorClass struct {
	status  int
	kind    string
	message string
	errs    []error
}

func (ec errorClass) match(err error) (error, bool) {
	for _, target := range ec.errs {
		if errors.Is(err, target) {
			return target, true
		}
	}
	return nil, false
}

// Order matters: invalid_signature is reported on its own so forged
// callbacks stand out from malformed ones.
var errorClasses = []errorClass{
	{
		status:  http.StatusBadRequest,
		kind:    "invalid_signature",
		message: "payment signature verification failed",
		errs:    []error{settlementdomain.ErrInvalidSignature},
	},
	{
		status:  http.StatusBadRequest,
		kind:    "validation_error",
		message: "validation error",
		errs: []error{
			money.ErrInvalidAmount,
			money.ErrInvalidCurrency,
			chargedomain.ErrInvalidItemKey,
			ledgerdomain.ErrInvalidMethod,
			ledgerdomain.ErrInvalidPatient,
			ledgerdomain.ErrInvalidID,
			ledgerdomain.ErrInvalidTimeRange,
			ledgerdomain.ErrInvalidPageToken,
			ledgerdomain.ErrDescriptionLength,
			pagination.ErrInvalidCursor,
			settlementdomain.ErrInvalidCallback,
			settlementdomain.ErrOrderMismatch,
			settlementdomain.ErrOrderExpired,
		},
	},
	{
		status:  http.StatusUnauthorized,
		kind:    "unauthorized",
		message: "unauthorized",
		errs: []error{
			ErrUnauthorized,
			callercontext.ErrMissingCaller,
			callercontext.ErrInvalidRole,
			callercontext.ErrInvalidCaller,
			authorization.ErrInvalidActor,
		},
	},
	{
		status:  http.StatusForbidden,
		kind:    "forbidden",
		message: "forbidden",
		errs:    []error{authorization.ErrForbidden},
	},
	{
		status:  http.StatusConflict,
		kind:    "conflict",
		message: "conflict",
		errs:    []error{ErrConflict, ledgerdomain.ErrDuplicatePayment},
	},
	{
		status:  http.StatusNotFound,
		kind:    "not_found",
		message: "not found",
		errs: []error{
			ErrNotFound,
			ledgerdomain.ErrNotFound,
			encounterdomain.ErrPatientNotFound,
			gorm.ErrRecordNotFound,
		},
	},
	{
		status:  http.StatusTooManyRequests,
		kind:    "too_many_requests",
		message: "too many requests",
		errs:    []error{ErrTooManyRequests},
	},
	{
		status:  http.StatusServiceUnavailable,
		kind:    "service_unavailable",
		message: "service unavailable",
		errs:    []error{gatewaydomain.ErrGatewayUnavailable},
	},
}

var specificMessages = map[error]string{
	encounterdomain.ErrPatientNotFound: "patient not found",
	ledgerdomain.ErrDuplicatePayment:   "payment already recorded",
	settlementdomain.ErrOrderMismatch:  "payment does not match the checkout order",
	settlementdomain.ErrOrderExpired:   "checkout order is unknown or expired",
}

func mapError(err error) (int, errorPayload) {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if err != nil {
		for _, ec := range errorClasses {
			target, ok := ec.match(err)
			if !ok {
				continue
			}
			if ec.kind == "validation_error" {
				return ec.status, errorPayload{
					Type:    ec.kind,
					Message: ec.message,
					Errors:  []ValidationError{sentinelValidation(target)},
				}
			}
			message := ec.message
			if specific, ok := specificMessages[target]; ok {
				message = specific
			}
			return ec.status, errorPayload{Type: ec.kind, Message: message}
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// sentinelValidation derives the field from the code: invalid_amount
// reports field amount, order_* codes report field order.
func sentinelValidation(target error) ValidationError {
	code := target.Error()
	field := ""
	switch {
	case strings.HasPrefix(code, "invalid_"):
		field = strings.TrimPrefix(code, "invalid_")
	case strings.HasPrefix(code, "order_"):
		field = "order"
	}
	message := "invalid value"
	if specific, ok := specificMessages[target]; ok {
		message = specific
	}
	return ValidationError{Field: field, Code: code, Message: message}
}

// classifyErrorForLog returns the error type and code written to the
// request log line.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}
