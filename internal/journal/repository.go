package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/mqtt2file/internal/persist"
)

// timeFormat is fixed-width so that received_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Listing limits.
const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Entry is one row of the saved_files table.
type Entry struct {
	ID         string         `json:"id"`
	Topic      string         `json:"topic"`
	Filename   string         `json:"filename,omitempty"`
	Path       string         `json:"path,omitempty"`
	Size       int            `json:"size"`
	SHA256     string         `json:"sha256,omitempty"`
	Status     persist.Status `json:"status"`
	Error      string         `json:"error,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Status   persist.Status // optional
	Filename string         // optional
	Limit    int            // default 50, max 1000
}

// Repository defines the journal operations.
type Repository interface {
	Record(ctx context.Context, rec persist.Record) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	List(ctx context.Context, filter Filter) ([]Entry, error)
	LatestByFilename(ctx context.Context, filename string) (*Entry, error)
}

// SQLiteRepository stores the journal in SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a journal repository on an open, migrated
// database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

var (
	_ Repository       = (*SQLiteRepository)(nil)
	_ persist.Recorder = (*SQLiteRepository)(nil)
)

// Record inserts one entry for a handled message.
func (r *SQLiteRepository) Record(ctx context.Context, rec persist.Record) error {
	receivedAt := rec.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = r.now()
	}

	errText := ""
	if rec.Err != nil {
		errText = rec.Err.Error()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO saved_files (id, topic, filename, path, size, sha256, status, error, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), rec.Topic, rec.Filename, rec.Path, rec.Size, rec.SHA256,
		string(rec.Status), errText, receivedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return r.List(ctx, Filter{Limit: limit})
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}

	var conditions []string
	var args []any
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Filename != "" {
		conditions = append(conditions, "filename = ?")
		args = append(args, filter.Filename)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, topic, filename, path, size, sha256, status, error, received_at
		 FROM saved_files %s ORDER BY received_at DESC, rowid DESC LIMIT ?`,
		where,
	)
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}

	return entries, nil
}

// LatestByFilename returns the newest entry for filename, or ErrNotFound.
func (r *SQLiteRepository) LatestByFilename(ctx context.Context, filename string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, topic, filename, path, size, sha256, status, error, received_at
		 FROM saved_files WHERE filename = ? ORDER BY received_at DESC, rowid DESC LIMIT 1`,
		filename,
	)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var status, receivedAt string

	if err := s.Scan(&e.ID, &e.Topic, &e.Filename, &e.Path, &e.Size, &e.SHA256,
		&status, &e.Error, &receivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning journal entry: %w", err)
	}

	e.Status = persist.Status(status)

	t, err := time.Parse(timeFormat, receivedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing journal timestamp %q: %w", receivedAt, err)
	}
	e.ReceivedAt = t

	return &e, nil
}
