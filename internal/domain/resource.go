package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ResourceKind names the two things a booking can double-book.
type ResourceKind string

const (
	ResourceKindPractitioner ResourceKind = "practitioner"
	ResourceKindRoom         ResourceKind = "room"
)

func (k ResourceKind) Valid() bool {
	return k == ResourceKindPractitioner || k == ResourceKindRoom
}

type ResourceRef struct {
	Kind ResourceKind
	ID   uuid.UUID
}

func Practitioner(id uuid.UUID) ResourceRef {
	return ResourceRef{Kind: ResourceKindPractitioner, ID: id}
}

func Room(id uuid.UUID) ResourceRef {
	return ResourceRef{Kind: ResourceKindRoom, ID: id}
}

func (r ResourceRef) String() string {
	return string(r.Kind) + ":" + r.ID.String()
}

func (r ResourceRef) IsZero() bool {
	return r.Kind == "" && r.ID == uuid.Nil
}

var ErrInvalidResourceRef = errors.New("invalid resource reference")

// ParseResourceRef accepts "practitioner:<uuid>" or "room:<uuid>".
func ParseResourceRef(s string) (ResourceRef, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ResourceRef{}, fmt.Errorf("%w: %q", ErrInvalidResourceRef, s)
	}
	k := ResourceKind(strings.ToLower(kind))
	if !k.Valid() {
		return ResourceRef{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidResourceRef, kind)
	}
	parsed, err := uuid.Parse(id)
	if err != nil || parsed == uuid.Nil {
		return ResourceRef{}, fmt.Errorf("%w: bad id %q", ErrInvalidResourceRef, id)
	}
	return ResourceRef{Kind: k, ID: parsed}, nil
}
