package authorization

import (
	"context"
	"errors"

	"github.com/smallbiznis/carebill/internal/callercontext"
)

type Service interface {
	// Authorize checks the caller's role policy. Record ownership is checked
	// by the caller's service.
	Authorize(ctx context.Context, caller callercontext.Caller, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
