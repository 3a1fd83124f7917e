package store

import (
	"context"
	"sync"

	"idregistry/internal/registration/models"
	id "idregistry/pkg/domain"
	"idregistry/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded RecordStore for development and unit tests.
// The single lock makes UpdateIf trivially atomic, which is exactly the
// compare-and-swap contract postgres provides with row locking.
type InMemory struct {
	mu            sync.Mutex
	records       map[id.RegistrationID]*models.Registration
	biometrics    map[id.RegistrationID][]models.BiometricRecord
	issuedNumbers map[string]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{
		records:       make(map[id.RegistrationID]*models.Registration),
		biometrics:    make(map[id.RegistrationID][]models.BiometricRecord),
		issuedNumbers: make(map[string]struct{}),
	}
}

func (s *InMemory) Insert(_ context.Context, record *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = cloneRecord(record)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, registrationID id.RegistrationID) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[registrationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(record), nil
}

func (s *InMemory) UpdateIf(_ context.Context, registrationID id.RegistrationID, expected models.Status,
	mutate func(*models.Registration) error) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[registrationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if stored.Status != expected {
		return nil, sentinel.ErrConflict
	}

	// Mutate a copy so a failing mutator leaves the stored record untouched.
	candidate := cloneRecord(stored)
	if err := mutate(candidate); err != nil {
		return nil, err
	}
	if err := candidate.CheckInvariants(); err != nil {
		return nil, err
	}

	if candidate.IdentityNumber != nil && (stored.IdentityNumber == nil || *stored.IdentityNumber != *candidate.IdentityNumber) {
		if _, taken := s.issuedNumbers[*candidate.IdentityNumber]; taken {
			return nil, sentinel.ErrAlreadyUsed
		}
		s.issuedNumbers[*candidate.IdentityNumber] = struct{}{}
	}

	s.records[registrationID] = candidate
	return cloneRecord(candidate), nil
}

func (s *InMemory) InsertBiometrics(_ context.Context, records []models.BiometricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		s.biometrics[record.RegistrationID] = append(s.biometrics[record.RegistrationID], record)
	}
	return nil
}

func (s *InMemory) MarkDedupStatus(_ context.Context, registrationID id.RegistrationID, status models.DedupStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.biometrics[registrationID]
	for i := range records {
		if records[i].DedupStatus == models.DedupPending {
			records[i].DedupStatus = status
		}
	}
	return nil
}

func (s *InMemory) ListBiometrics(_ context.Context, registrationID id.RegistrationID) ([]models.BiometricRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.BiometricRecord(nil), s.biometrics[registrationID]...), nil
}

func cloneRecord(record *models.Registration) *models.Registration {
	clone := *record
	if record.IdentityNumber != nil {
		number := *record.IdentityNumber
		clone.IdentityNumber = &number
	}
	if record.ScheduledCaptureAt != nil {
		when := *record.ScheduledCaptureAt
		clone.ScheduledCaptureAt = &when
	}
	clone.CorrectionFields = append([]string(nil), record.CorrectionFields...)
	return &clone
}
