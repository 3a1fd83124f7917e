// Package store persists registration records and their biometric samples.
//
// The record store is the single shared mutable resource in the system.
// Every lifecycle transition goes through UpdateIf, a conditional update
// that only commits when the stored status still equals the expected status.
// Losing that race returns sentinel.ErrConflict, which services surface as a
// precondition failure instead of double-applying effects.
package store

import (
	"context"

	"idregistry/internal/registration/models"
	id "idregistry/pkg/domain"
)

// RecordStore is the durable home of registration records.
//
// Implementations must enforce a uniqueness constraint on identity numbers:
// a mutation assigning an already-issued number fails with
// sentinel.ErrAlreadyUsed so the issuer can retry with a fresh number.
type RecordStore interface {
	// Insert creates a new record. The ID must be unused.
	Insert(ctx context.Context, record *models.Registration) error

	// FindByID returns the record or sentinel.ErrNotFound.
	FindByID(ctx context.Context, registrationID id.RegistrationID) (*models.Registration, error)

	// UpdateIf atomically applies mutate to the record only while its stored
	// status equals expected. Returns sentinel.ErrConflict when another actor
	// transitioned the record first, sentinel.ErrNotFound when it does not
	// exist. Errors returned by mutate abort the update unchanged.
	UpdateIf(ctx context.Context, registrationID id.RegistrationID, expected models.Status,
		mutate func(*models.Registration) error) (*models.Registration, error)

	// InsertBiometrics appends accepted samples for one capture attempt.
	InsertBiometrics(ctx context.Context, records []models.BiometricRecord) error

	// MarkDedupStatus moves every pending biometric record of a registration
	// to the given dedup status.
	MarkDedupStatus(ctx context.Context, registrationID id.RegistrationID, status models.DedupStatus) error

	// ListBiometrics returns all persisted samples for a registration in
	// capture order.
	ListBiometrics(ctx context.Context, registrationID id.RegistrationID) ([]models.BiometricRecord, error)
}
