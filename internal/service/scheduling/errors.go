package scheduling

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"chairside/backend/internal/domain"
	"chairside/backend/internal/store"
)

// Reason is the machine-readable cause of a rejected request.
type Reason string

const (
	ReasonPractitionerConflict Reason = "conflict:practitioner"
	ReasonRoomConflict         Reason = "conflict:room"
	ReasonInvalidDuration      Reason = "invalid:duration"
	ReasonInvalidInterval      Reason = "invalid:interval"
	ReasonInvalidType          Reason = "invalid:type"
	ReasonInvalidStatus        Reason = "invalid:status"
	ReasonInvalidArgument      Reason = "invalid:argument"
	ReasonInvalidTemplate      Reason = "invalid:template"
	ReasonNotFound             Reason = "not_found"
	ReasonIdempotencyConflict  Reason = "idempotency_conflict"
)

type ValidationError struct {
	Reason Reason
	msg    string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(reason Reason, msg string) error {
	return &ValidationError{Reason: reason, msg: msg}
}

// ConflictError lists every resource whose active bookings overlap the
// candidate interval. Practitioner conflicts come before room
// conflicts.
type ConflictError struct {
	Resources  []domain.ResourceRef
	BookingIDs []uuid.UUID
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Resources))
	for _, r := range e.Resources {
		parts = append(parts, r.String())
	}
	return "booking conflicts on " + strings.Join(parts, ", ")
}

func (e *ConflictError) Reasons() []Reason {
	out := make([]Reason, 0, len(e.Resources))
	for _, r := range e.Resources {
		switch r.Kind {
		case domain.ResourceKindPractitioner:
			out = append(out, ReasonPractitionerConflict)
		case domain.ResourceKindRoom:
			out = append(out, ReasonRoomConflict)
		}
	}
	return out
}

func (e *ConflictError) Reason() Reason {
	if rs := e.Reasons(); len(rs) > 0 {
		return rs[0]
	}
	return ReasonPractitionerConflict
}

// Is lets callers match a ConflictError against store.ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == store.ErrConflict
}

type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("booking %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == store.ErrNotFound
}

// ReasonsOf returns the reasons carried by err, or nil when err is not
// a rejection (a storage failure, say).
func ReasonsOf(err error) []Reason {
	if err == nil {
		return nil
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return []Reason{vErr.Reason}
	}
	var cErr *ConflictError
	if errors.As(err, &cErr) {
		return cErr.Reasons()
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return []Reason{ReasonNotFound}
	case errors.Is(err, store.ErrIdempotencyConflict):
		return []Reason{ReasonIdempotencyConflict}
	case errors.Is(err, store.ErrPractitionerOverlap):
		return []Reason{ReasonPractitionerConflict}
	case errors.Is(err, store.ErrRoomOverlap):
		return []Reason{ReasonRoomConflict}
	}
	return nil
}

// ReasonOf returns the primary reason for err, or "".
func ReasonOf(err error) Reason {
	if rs := ReasonsOf(err); len(rs) > 0 {
		return rs[0]
	}
	return ""
}
