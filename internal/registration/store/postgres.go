package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"idregistry/internal/registration/models"
	id "idregistry/pkg/domain"
	"idregistry/pkg/platform/sentinel"
)

// uniqueViolation is the postgres error code for unique-constraint breaches.
const uniqueViolation = "23505"

// Postgres implements RecordStore on PostgreSQL. UpdateIf takes a row lock
// (SELECT ... FOR UPDATE) so validate and mutate happen under the same lock,
// and the identity-number uniqueness constraint turns duplicate numbers into
// sentinel.ErrAlreadyUsed for the issuer's retry loop.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Insert(ctx context.Context, record *models.Registration) error {
	fields, err := json.Marshal(record.CorrectionFields)
	if err != nil {
		return fmt.Errorf("marshal correction fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO registrations
			(id, full_name, date_of_birth, address, status, biometric_status,
			 identity_number, token_hash, scheduled_capture_at,
			 correction_fields, resolution_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		uuid.UUID(record.ID), record.FullName, record.DateOfBirth, record.Address,
		string(record.Status), string(record.BiometricStatus),
		record.IdentityNumber, record.TokenHash, record.ScheduledCaptureAt,
		fields, record.ResolutionNotes, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, registrationID id.RegistrationID) (*models.Registration, error) {
	row := s.db.QueryRowContext(ctx, selectRegistration+` WHERE id = $1`, uuid.UUID(registrationID))
	return scanRegistration(row)
}

func (s *Postgres) UpdateIf(ctx context.Context, registrationID id.RegistrationID, expected models.Status,
	mutate func(*models.Registration) error) (*models.Registration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	row := tx.QueryRowContext(ctx, selectRegistration+` WHERE id = $1 FOR UPDATE`, uuid.UUID(registrationID))
	record, err := scanRegistration(row)
	if err != nil {
		return nil, err
	}
	if record.Status != expected {
		return nil, sentinel.ErrConflict
	}

	if err := mutate(record); err != nil {
		return nil, err
	}
	if err := record.CheckInvariants(); err != nil {
		return nil, err
	}

	fields, err := json.Marshal(record.CorrectionFields)
	if err != nil {
		return nil, fmt.Errorf("marshal correction fields: %w", err)
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE registrations
		SET full_name = $2, date_of_birth = $3, address = $4, status = $5,
		    biometric_status = $6, identity_number = $7, token_hash = $8,
		    scheduled_capture_at = $9, correction_fields = $10,
		    resolution_notes = $11, updated_at = $12
		WHERE id = $1 AND status = $13
	`,
		uuid.UUID(record.ID), record.FullName, record.DateOfBirth, record.Address,
		string(record.Status), string(record.BiometricStatus),
		record.IdentityNumber, record.TokenHash, record.ScheduledCaptureAt,
		fields, record.ResolutionNotes, record.UpdatedAt, string(expected),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, sentinel.ErrAlreadyUsed
		}
		return nil, fmt.Errorf("update registration: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update registration: %w", err)
	}
	if affected == 0 {
		// Should not happen under FOR UPDATE; kept as a belt for drivers
		// that do not honor the row lock.
		return nil, sentinel.ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return record, nil
}

func (s *Postgres) InsertBiometrics(ctx context.Context, records []models.BiometricRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin biometric insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, record := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO biometric_records
				(id, registration_id, modality, position, quality_score,
				 template_hash, dedup_status, captured_by, captured_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			uuid.UUID(record.ID), uuid.UUID(record.RegistrationID),
			string(record.Modality), string(record.Position), record.QualityScore,
			record.TemplateHash, string(record.DedupStatus), record.CapturedBy, record.CapturedAt,
		)
		if err != nil {
			return fmt.Errorf("insert biometric record: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Postgres) MarkDedupStatus(ctx context.Context, registrationID id.RegistrationID, status models.DedupStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE biometric_records
		SET dedup_status = $2
		WHERE registration_id = $1 AND dedup_status = $3
	`, uuid.UUID(registrationID), string(status), string(models.DedupPending))
	if err != nil {
		return fmt.Errorf("mark dedup status: %w", err)
	}
	return nil
}

func (s *Postgres) ListBiometrics(ctx context.Context, registrationID id.RegistrationID) ([]models.BiometricRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, registration_id, modality, position, quality_score,
		       template_hash, dedup_status, captured_by, captured_at
		FROM biometric_records
		WHERE registration_id = $1
		ORDER BY captured_at, id
	`, uuid.UUID(registrationID))
	if err != nil {
		return nil, fmt.Errorf("list biometric records: %w", err)
	}
	defer rows.Close()

	var records []models.BiometricRecord
	for rows.Next() {
		var record models.BiometricRecord
		var recordID, regID uuid.UUID
		var modality, position, dedupStatus string
		if err := rows.Scan(&recordID, &regID, &modality, &position, &record.QualityScore,
			&record.TemplateHash, &dedupStatus, &record.CapturedBy, &record.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan biometric record: %w", err)
		}
		record.ID = id.BiometricRecordID(recordID)
		record.RegistrationID = id.RegistrationID(regID)
		record.Modality = models.Modality(modality)
		record.Position = models.FingerPosition(position)
		record.DedupStatus = models.DedupStatus(dedupStatus)
		records = append(records, record)
	}
	return records, rows.Err()
}

const selectRegistration = `
	SELECT id, full_name, date_of_birth, address, status, biometric_status,
	       identity_number, token_hash, scheduled_capture_at,
	       correction_fields, resolution_notes, created_at, updated_at
	FROM registrations`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*models.Registration, error) {
	var (
		record     models.Registration
		recordID   uuid.UUID
		status     string
		bioStatus  string
		number     sql.NullString
		scheduled  sql.NullTime
		fieldsJSON []byte
	)
	err := row.Scan(&recordID, &record.FullName, &record.DateOfBirth, &record.Address,
		&status, &bioStatus, &number, &record.TokenHash, &scheduled,
		&fieldsJSON, &record.ResolutionNotes, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan registration: %w", err)
	}

	record.ID = id.RegistrationID(recordID)
	record.Status = models.Status(status)
	record.BiometricStatus = models.BiometricStatus(bioStatus)
	if number.Valid {
		record.IdentityNumber = &number.String
	}
	if scheduled.Valid {
		when := scheduled.Time.UTC()
		record.ScheduledCaptureAt = &when
	}
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &record.CorrectionFields); err != nil {
			return nil, fmt.Errorf("unmarshal correction fields: %w", err)
		}
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return &record, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// EnsureSchema creates the tables when they do not exist. Used by main at
// startup and by integration tests; production migrations can replace it
// without touching the store.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS registrations (
	id UUID PRIMARY KEY,
	full_name TEXT NOT NULL,
	date_of_birth TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	biometric_status TEXT NOT NULL,
	identity_number TEXT UNIQUE,
	token_hash TEXT NOT NULL DEFAULT '',
	scheduled_capture_at TIMESTAMPTZ,
	correction_fields JSONB NOT NULL DEFAULT '[]',
	resolution_notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS biometric_records (
	id UUID PRIMARY KEY,
	registration_id UUID NOT NULL REFERENCES registrations(id),
	modality TEXT NOT NULL,
	position TEXT NOT NULL DEFAULT '',
	quality_score INT NOT NULL,
	template_hash TEXT NOT NULL,
	dedup_status TEXT NOT NULL,
	captured_by TEXT NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS biometric_records_registration_idx
	ON biometric_records (registration_id, captured_at);
`
