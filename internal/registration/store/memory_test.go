package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idregistry/internal/registration/models"
	id "idregistry/pkg/domain"
	"idregistry/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) newRecord() *models.Registration {
	record, err := models.NewRegistration(id.NewRegistrationID(), "Amina Diallo", "1990-04-12", "12 Harbour Road", time.Now())
	s.Require().NoError(err)
	return record
}

func (s *MemoryStoreSuite) insert(record *models.Registration) {
	s.Require().NoError(s.store.Insert(s.ctx, record))
}

// TestInsertAndFind verifies record round-trips and isolation of the stored copy.
func (s *MemoryStoreSuite) TestInsertAndFind() {
	s.Run("inserts and finds by ID", func() {
		record := s.newRecord()
		s.insert(record)

		found, err := s.store.FindByID(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(record.FullName, found.FullName)
		s.Equal(models.StatusPendingVerification, found.Status)
	})

	s.Run("returns ErrNotFound for unknown ID", func() {
		_, err := s.store.FindByID(s.ctx, id.NewRegistrationID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects duplicate ID", func() {
		record := s.newRecord()
		s.insert(record)
		s.Require().ErrorIs(s.store.Insert(s.ctx, record), sentinel.ErrConflict)
	})

	s.Run("mutating a returned record does not touch the store", func() {
		record := s.newRecord()
		s.insert(record)

		found, err := s.store.FindByID(s.ctx, record.ID)
		s.Require().NoError(err)
		found.FullName = "Someone Else"

		again, err := s.store.FindByID(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Equal("Amina Diallo", again.FullName)
	})
}

// TestUpdateIf verifies the conditional-update contract.
func (s *MemoryStoreSuite) TestUpdateIf() {
	s.Run("applies mutation while status matches", func() {
		record := s.newRecord()
		s.insert(record)

		updated, err := s.store.UpdateIf(s.ctx, record.ID, models.StatusPendingVerification, func(r *models.Registration) error {
			r.ApplyApprove(time.Now())
			return nil
		})
		s.Require().NoError(err)
		s.Equal(models.StatusApprovedForBiometric, updated.Status)
	})

	s.Run("returns ErrConflict on status mismatch", func() {
		record := s.newRecord()
		s.insert(record)

		_, err := s.store.UpdateIf(s.ctx, record.ID, models.StatusBiometricsVerified, func(r *models.Registration) error {
			return nil
		})
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("returns ErrNotFound for unknown ID", func() {
		_, err := s.store.UpdateIf(s.ctx, id.NewRegistrationID(), models.StatusPendingVerification, func(r *models.Registration) error {
			return nil
		})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("a failing mutator leaves the record untouched", func() {
		record := s.newRecord()
		s.insert(record)

		_, err := s.store.UpdateIf(s.ctx, record.ID, models.StatusPendingVerification, func(r *models.Registration) error {
			r.Status = models.StatusRejected
			return sentinel.ErrConflict
		})
		s.Require().Error(err)

		found, err := s.store.FindByID(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPendingVerification, found.Status)
	})

	s.Run("an invariant-breaking mutator aborts the update", func() {
		record := s.newRecord()
		s.insert(record)

		_, err := s.store.UpdateIf(s.ctx, record.ID, models.StatusPendingVerification, func(r *models.Registration) error {
			number := "784123456782"
			r.IdentityNumber = &number
			return nil
		})
		s.Require().Error(err)

		found, err := s.store.FindByID(s.ctx, record.ID)
		s.Require().NoError(err)
		s.Nil(found.IdentityNumber)
	})
}

// TestIdentityNumberUniqueness verifies ErrAlreadyUsed on reissued numbers.
func (s *MemoryStoreSuite) TestIdentityNumberUniqueness() {
	issue := func(record *models.Registration, number string) error {
		_, err := s.store.UpdateIf(s.ctx, record.ID, models.StatusBiometricsVerified, func(r *models.Registration) error {
			return r.ApplyIssueIdentity(number, "hash", time.Now())
		})
		return err
	}

	verified := func() *models.Registration {
		record := s.newRecord()
		record.ApplyApprove(time.Now())
		s.Require().NoError(record.ApplyBiometricsVerified(time.Now()))
		s.insert(record)
		return record
	}

	first := verified()
	second := verified()

	s.Require().NoError(issue(first, "784123456782"))
	s.Require().ErrorIs(issue(second, "784123456782"), sentinel.ErrAlreadyUsed)
	s.Require().NoError(issue(second, "784998877663"))
}

// TestConcurrentUpdateIf verifies exactly one of many racing transitions wins.
func (s *MemoryStoreSuite) TestConcurrentUpdateIf() {
	record := s.newRecord()
	s.insert(record)

	const goroutines = 32
	var wg sync.WaitGroup
	results := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.UpdateIf(s.ctx, record.ID, models.StatusPendingVerification, func(r *models.Registration) error {
				r.ApplyApprove(time.Now())
				return nil
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		default:
			s.Require().ErrorIs(err, sentinel.ErrConflict)
			conflicts++
		}
	}
	s.Equal(1, wins)
	s.Equal(goroutines-1, conflicts)
}

// TestBiometrics verifies sample persistence and dedup status marking.
func (s *MemoryStoreSuite) TestBiometrics() {
	record := s.newRecord()
	s.insert(record)

	samples := []models.BiometricRecord{
		{ID: id.NewBiometricRecordID(), RegistrationID: record.ID, Modality: models.ModalityFace, DedupStatus: models.DedupPending},
		{ID: id.NewBiometricRecordID(), RegistrationID: record.ID, Modality: models.ModalityFingerprint, Position: models.LeftThumb, DedupStatus: models.DedupPending},
	}
	s.Require().NoError(s.store.InsertBiometrics(s.ctx, samples))

	s.Require().NoError(s.store.MarkDedupStatus(s.ctx, record.ID, models.DedupUnique))

	listed, err := s.store.ListBiometrics(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Len(listed, 2)
	for _, b := range listed {
		s.Equal(models.DedupUnique, b.DedupStatus)
	}
}
