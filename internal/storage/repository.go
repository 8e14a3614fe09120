// Package storage persists categories and entries in SQLite and computes the
// windowed aggregates the analysis dialog asks for.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"spendingcalc/internal/core"

	_ "modernc.org/sqlite"
)

// Repository is the SQLite-backed persistence layer. Writes are serialized
// through a single connection so two conversations mutating the store at the
// same time never interleave.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (and if necessary creates) the database at dbPath and
// applies pending migrations.
func NewRepository(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ListCategories returns the names of every category the owner has ever
// created, ordered by position hint where present, then insertion order.
func (r *Repository) ListCategories(ctx context.Context, owner int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name FROM categories
		WHERE owner_id = ?
		ORDER BY position IS NULL, position, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CreateCategory inserts a category for the owner. Creating a name the owner
// already has is a no-op, backed by the UNIQUE(owner_id, name) constraint.
func (r *Repository) CreateCategory(ctx context.Context, owner int64, name string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO categories (owner_id, name) VALUES (?, ?)`,
		owner, name)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// CreateEntry records one expense under the named category of the owner.
// The category lookup and the insert run in one transaction; a category name
// the owner does not have yields core.ErrNotFound.
func (r *Repository) CreateEntry(ctx context.Context, owner int64, category string, value core.Money, date core.Date, comment string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	categoryID, err := categoryIDByName(ctx, tx, owner, category)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO entries (category_id, value_cents, date, comment) VALUES (?, ?, ?, ?)`,
		categoryID, value.Cents, date.ISO(), nullableComment(comment))
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("entry id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit entry: %w", err)
	}

	slog.InfoContext(ctx, "Entry saved",
		"id", id,
		"owner", owner,
		"category", category,
		"value", value.String(),
		"date", date.ISO())

	return id, nil
}

// Aggregate sums the owner's entries grouped by category, restricted to the
// named category when one is given ("" means all) and to the period's date
// window relative to now. Sums are exact integer cent additions.
func (r *Repository) Aggregate(ctx context.Context, owner int64, category string, period core.Period, now time.Time) ([]core.CategorySum, error) {
	query := `
		SELECT c.name, SUM(e.value_cents)
		FROM entries e
		JOIN categories c ON c.id = e.category_id
		WHERE c.owner_id = ?`
	args := []any{owner}

	if category != "" {
		query += ` AND c.name = ?`
		args = append(args, category)
	}
	if bound, ok := period.LowerBound(now); ok {
		query += ` AND e.date >= ?`
		args = append(args, bound)
	}
	query += ` GROUP BY c.id, c.name ORDER BY c.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate entries: %w", err)
	}
	defer rows.Close()

	var sums []core.CategorySum
	for rows.Next() {
		var s core.CategorySum
		if err := rows.Scan(&s.Category, &s.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		sums = append(sums, s)
	}
	return sums, rows.Err()
}

// ListEntries returns the owner's entries with the same filter semantics as
// Aggregate, ordered by insertion id.
func (r *Repository) ListEntries(ctx context.Context, owner int64, category string, period core.Period, now time.Time) ([]core.Entry, error) {
	query := `
		SELECT e.id, e.category_id, c.name, e.value_cents, e.date, e.comment
		FROM entries e
		JOIN categories c ON c.id = e.category_id
		WHERE c.owner_id = ?`
	args := []any{owner}

	if category != "" {
		query += ` AND c.name = ?`
		args = append(args, category)
	}
	if bound, ok := period.LowerBound(now); ok {
		query += ` AND e.date >= ?`
		args = append(args, bound)
	}
	query += ` ORDER BY e.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []core.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetEntry loads one entry by id, or core.ErrNotFound.
func (r *Repository) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT e.id, e.category_id, c.name, e.value_cents, e.date, e.comment
		FROM entries e
		JOIN categories c ON c.id = e.category_id
		WHERE e.id = ?`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, core.ErrNotFound
	}
	return e, err
}

// UpdateEntry replaces every field of the stored entry except its id.
// Updating an id that no longer exists returns core.ErrNotFound.
func (r *Repository) UpdateEntry(ctx context.Context, e core.Entry) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE entries SET category_id = ?, value_cents = ?, date = ?, comment = ?
		WHERE id = ?`,
		e.CategoryID, e.Value.Cents, e.Date.ISO(), nullableComment(e.Comment), e.ID)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}

	slog.InfoContext(ctx, "Entry updated", "id", e.ID, "value", e.Value.String(), "date", e.Date.ISO())
	return nil
}

// DeleteEntry permanently removes the entry. Deleting an id that no longer
// exists returns core.ErrNotFound rather than succeeding silently.
func (r *Repository) DeleteEntry(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}

	slog.InfoContext(ctx, "Entry deleted", "id", id)
	return nil
}

func categoryIDByName(ctx context.Context, tx *sql.Tx, owner int64, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM categories WHERE owner_id = ? AND name = ?`,
		owner, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup category: %w", err)
	}
	return id, nil
}

func nullableComment(comment string) sql.NullString {
	return sql.NullString{String: comment, Valid: comment != ""}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (core.Entry, error) {
	var (
		e       core.Entry
		date    string
		comment sql.NullString
	)
	if err := row.Scan(&e.ID, &e.CategoryID, &e.Category, &e.Value.Cents, &date, &comment); err != nil {
		return core.Entry{}, err
	}
	d, err := core.ParseISO(date)
	if err != nil {
		return core.Entry{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	e.Date = d
	e.Comment = comment.String
	return e, nil
}
