// Package domain holds the typed identifiers shared across modules.
// Distinct UUID wrappers keep a registration ID from being passed where a
// biometric record ID is expected; the compiler enforces the distinction.
package domain

import (
	"github.com/google/uuid"

	dErrors "idregistry/pkg/domain-errors"
)

// RegistrationID identifies one registration record. Immutable once assigned.
type RegistrationID uuid.UUID

// BiometricRecordID identifies one persisted biometric sample.
type BiometricRecordID uuid.UUID

func (id RegistrationID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID.
func (id RegistrationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id BiometricRecordID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID.
func (id BiometricRecordID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders the ID in canonical UUID form for JSON and cache
// round-trips.
func (id RegistrationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText parses the canonical UUID form.
func (id *RegistrationID) UnmarshalText(text []byte) error {
	parsed, err := parseUUID(string(text))
	if err != nil {
		return err
	}
	*id = RegistrationID(parsed)
	return nil
}

// MarshalText renders the ID in canonical UUID form.
func (id BiometricRecordID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText parses the canonical UUID form.
func (id *BiometricRecordID) UnmarshalText(text []byte) error {
	parsed, err := parseUUID(string(text))
	if err != nil {
		return err
	}
	*id = BiometricRecordID(parsed)
	return nil
}

// NewRegistrationID returns a fresh random registration ID.
func NewRegistrationID() RegistrationID { return RegistrationID(uuid.New()) }

// NewBiometricRecordID returns a fresh random biometric record ID.
func NewBiometricRecordID() BiometricRecordID { return BiometricRecordID(uuid.New()) }

// ParseRegistrationID parses and validates a registration ID from its string
// form. IDs must be valid, non-empty, non-nil UUIDs.
func ParseRegistrationID(raw string) (RegistrationID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return RegistrationID{}, err
	}
	return RegistrationID(parsed), nil
}

func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "id must not be nil")
	}
	return parsed, nil
}
