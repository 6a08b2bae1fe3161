// Package postgres stores candidates and directory entries in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"lifeline/internal/directory/models"
	id "lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
	txcontext "lifeline/pkg/platform/tx"
)

const uniqueViolation = "23505"

const candidateColumns = `
	id, name, category, phone, address, city, latitude, longitude,
	submitted_by, submitted_at, status, reviewed_by, reviewed_at,
	rejection_reason, override_warnings, directory_entry_id`

// Store implements the non-transactional directory store. Queries join a
// transaction carried in the context when one is present.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateCandidate(ctx context.Context, c *models.Candidate) error {
	query := `
		INSERT INTO candidates (
			id, name, category, phone, address, city, latitude, longitude,
			submitted_by, submitted_at, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		c.Name,
		string(c.Category),
		c.Phone,
		nullString(c.Address),
		nullString(c.City),
		c.Latitude,
		c.Longitude,
		uuid.UUID(c.SubmittedBy),
		c.SubmittedAt,
		string(c.Status),
	)
	if err != nil {
		return translate(err, "insert candidate")
	}
	return nil
}

func (s *Store) FindCandidate(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error) {
	return findCandidate(ctx, txcontext.Exec(ctx, s.db), candidateID, false)
}

func (s *Store) ListPending(ctx context.Context) ([]*models.Candidate, error) {
	query := `SELECT ` + candidateColumns + `
		FROM candidates
		WHERE status = 'pending'
		ORDER BY submitted_at ASC, id ASC
	`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, translate(err, "query pending candidates")
	}
	defer rows.Close()

	out := make([]*models.Candidate, 0)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, translate(err, "scan pending candidate")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "iterate pending candidates")
	}
	return out, nil
}

func (s *Store) ListEntries(ctx context.Context) ([]*models.DirectoryEntry, error) {
	query := `
		SELECT id, candidate_id, name, category, phone, address, city,
			   latitude, longitude, approved_by, approved_at
		FROM directory_entries
		ORDER BY approved_at ASC, id ASC
	`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, translate(err, "query directory entries")
	}
	defer rows.Close()

	out := make([]*models.DirectoryEntry, 0)
	for rows.Next() {
		var (
			e                       models.DirectoryEntry
			entryID, candID, apprBy uuid.UUID
			category                string
			address, city           sql.NullString
		)
		if err := rows.Scan(&entryID, &candID, &e.Name, &category, &e.Phone, &address, &city,
			&e.Latitude, &e.Longitude, &apprBy, &e.ApprovedAt); err != nil {
			return nil, translate(err, "scan directory entry")
		}
		e.ID = id.EntryID(entryID)
		e.CandidateID = id.CandidateID(candID)
		e.ApprovedBy = id.UserID(apprBy)
		e.Category = models.Category(category)
		e.Address = stringPtr(address)
		e.City = stringPtr(city)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "iterate directory entries")
	}
	return out, nil
}

// ListApprovedSummaries reads only the columns duplicate detection needs.
func (s *Store) ListApprovedSummaries(ctx context.Context) ([]models.EntrySummary, error) {
	query := `SELECT name, phone, latitude, longitude FROM directory_entries ORDER BY approved_at ASC, id ASC`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, translate(err, "query directory summaries")
	}
	defer rows.Close()

	out := make([]models.EntrySummary, 0)
	for rows.Next() {
		var e models.EntrySummary
		if err := rows.Scan(&e.Name, &e.Phone, &e.Latitude, &e.Longitude); err != nil {
			return nil, translate(err, "scan directory summary")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "iterate directory summaries")
	}
	return out, nil
}

func findCandidate(ctx context.Context, exec txcontext.Executor, candidateID id.CandidateID, forUpdate bool) (*models.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	c, err := scanCandidate(exec.QueryRowContext(ctx, query, uuid.UUID(candidateID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, translate(err, "find candidate")
	}
	return c, nil
}

// updateCandidateReview only touches a pending row, so a lost race surfaces
// as zero affected rows rather than a silent overwrite.
func updateCandidateReview(ctx context.Context, exec txcontext.Executor, c *models.Candidate) error {
	query := `
		UPDATE candidates
		SET status = $2,
			reviewed_by = $3,
			reviewed_at = $4,
			rejection_reason = $5,
			override_warnings = $6,
			directory_entry_id = $7
		WHERE id = $1 AND status = 'pending'
	`
	var reviewedBy uuid.NullUUID
	if c.ReviewedBy != nil {
		reviewedBy = uuid.NullUUID{UUID: uuid.UUID(*c.ReviewedBy), Valid: true}
	}
	var entryID uuid.NullUUID
	if c.DirectoryEntryID != nil {
		entryID = uuid.NullUUID{UUID: uuid.UUID(*c.DirectoryEntryID), Valid: true}
	}
	var reason sql.NullString
	if c.RejectionReason != "" {
		reason = sql.NullString{String: c.RejectionReason, Valid: true}
	}
	warnings := c.OverrideWarnings
	if warnings == nil {
		warnings = []string{}
	}

	res, err := exec.ExecContext(ctx, query,
		uuid.UUID(c.ID),
		string(c.Status),
		reviewedBy,
		c.ReviewedAt,
		reason,
		pq.Array(warnings),
		entryID,
	)
	if err != nil {
		return translate(err, "update candidate review")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return translate(err, "update candidate review")
	}
	if affected == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}

func insertEntry(ctx context.Context, exec txcontext.Executor, e *models.DirectoryEntry) error {
	query := `
		INSERT INTO directory_entries (
			id, candidate_id, name, category, phone, address, city,
			latitude, longitude, approved_by, approved_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := exec.ExecContext(ctx, query,
		uuid.UUID(e.ID),
		uuid.UUID(e.CandidateID),
		e.Name,
		string(e.Category),
		e.Phone,
		nullString(e.Address),
		nullString(e.City),
		e.Latitude,
		e.Longitude,
		uuid.UUID(e.ApprovedBy),
		e.ApprovedAt,
	)
	if err != nil {
		return translate(err, "insert directory entry")
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows. Errors are returned
// untranslated so callers can tell sql.ErrNoRows apart.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*models.Candidate, error) {
	var (
		c                     models.Candidate
		candID, submittedBy   uuid.UUID
		category, status      string
		address, city, reason sql.NullString
		reviewedBy, entryID   uuid.NullUUID
		reviewedAt            sql.NullTime
		warnings              []string
	)
	err := row.Scan(&candID, &c.Name, &category, &c.Phone, &address, &city, &c.Latitude, &c.Longitude,
		&submittedBy, &c.SubmittedAt, &status, &reviewedBy, &reviewedAt,
		&reason, pq.Array(&warnings), &entryID)
	if err != nil {
		return nil, err
	}

	c.ID = id.CandidateID(candID)
	c.SubmittedBy = id.UserID(submittedBy)
	c.Category = models.Category(category)
	c.Status = models.Status(status)
	c.Address = stringPtr(address)
	c.City = stringPtr(city)
	c.RejectionReason = reason.String
	if len(warnings) > 0 {
		c.OverrideWarnings = warnings
	}
	if reviewedBy.Valid {
		u := id.UserID(reviewedBy.UUID)
		c.ReviewedBy = &u
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		c.ReviewedAt = &t
	}
	if entryID.Valid {
		e := id.EntryID(entryID.UUID)
		c.DirectoryEntryID = &e
	}
	return &c, nil
}

// translate maps driver errors onto sentinel errors the service understands.
func translate(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, errors.Join(sentinel.ErrUnavailable, err))
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
