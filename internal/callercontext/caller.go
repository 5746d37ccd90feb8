// Package callercontext carries the authenticated caller that every billing
// entry point receives explicitly.
package callercontext

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleStaff   Role = "staff"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
	// RoleSystem is used by internal tooling such as the backfill command.
	RoleSystem Role = "system"
)

var (
	ErrMissingCaller = errors.New("missing_caller")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidCaller = errors.New("invalid_caller")
)

// Caller identifies who is invoking an operation. PatientID is set only for
// the patient role.
type Caller struct {
	PatientID int64
	Role      Role
}

func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RolePatient:
		return RolePatient, nil
	case RoleStaff, "receptionist":
		return RoleStaff, nil
	case RoleDoctor:
		return RoleDoctor, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleSystem:
		return RoleSystem, nil
	default:
		return "", ErrInvalidRole
	}
}

// New validates a role/patient pair as supplied by the upstream proxy.
func New(role string, patientID string) (Caller, error) {
	if strings.TrimSpace(role) == "" {
		return Caller{}, ErrMissingCaller
	}
	parsed, err := ParseRole(role)
	if err != nil {
		return Caller{}, err
	}

	caller := Caller{Role: parsed}
	if parsed != RolePatient {
		return caller, nil
	}

	id, err := strconv.ParseInt(strings.TrimSpace(patientID), 10, 64)
	if err != nil || id <= 0 {
		return Caller{}, ErrInvalidCaller
	}
	caller.PatientID = id
	return caller, nil
}

func System() Caller {
	return Caller{Role: RoleSystem}
}

// Subject is the authorization subject for the caller's role.
func (c Caller) Subject() string {
	return "role:" + string(c.Role)
}

// CanAccessPatient reports whether the caller may see data for patientID.
// Patients are restricted to their own records, everyone else is gated by
// role policy alone.
func (c Caller) CanAccessPatient(patientID int64) bool {
	if c.Role == "" {
		return false
	}
	if c.Role != RolePatient {
		return true
	}
	return c.PatientID != 0 && c.PatientID == patientID
}

func (c Caller) String() string {
	if c.Role == RolePatient {
		return string(c.Role) + ":" + strconv.FormatInt(c.PatientID, 10)
	}
	return string(c.Role)
}

type callerKey struct{}

// WithCaller stores the caller for request logging only. Services take the
// caller as an explicit argument.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func FromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok
}
