package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	ports "pagos/internal/sheets"

	_ "modernc.org/sqlite"
)

var _ ports.RowStore = (*SQLiteRepository)(nil)

// SQLiteRepository stores the ledger as ordered rows of JSON-encoded cells.
// Position 0 holds the header row.
type SQLiteRepository struct {
	db            *sql.DB
	schemaVersion uint
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := migrateLedgerSchema(dbPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db, schemaVersion: version}, nil
}

// SchemaVersion reports the migration version applied when the repository
// was opened.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schemaVersion
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ReadAll implements sheets.RowStore
func (r *SQLiteRepository) ReadAll(ctx context.Context) ([][]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT cells FROM ledger_rows ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query ledger rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("decode ledger row %d: %w", len(out), err)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return out, nil
}

// OverwriteAll implements sheets.RowStore. The swap runs in one
// transaction.
func (r *SQLiteRepository) OverwriteAll(ctx context.Context, rows [][]string) error {
	if len(rows) == 0 {
		return fmt.Errorf("overwrite: missing header row")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_rows`); err != nil {
		return fmt.Errorf("clear ledger rows: %w", err)
	}
	if err := insertRows(ctx, tx, rows); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit overwrite: %w", err)
	}

	slog.InfoContext(ctx, "Ledger saved to SQLite", "rows", len(rows)-1)
	return nil
}

// EnsureHeaders implements sheets.RowStore
func (r *SQLiteRepository) EnsureHeaders(ctx context.Context, headers []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_rows`).Scan(&n); err != nil {
		return fmt.Errorf("count ledger rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	if err := insertRows(ctx, tx, [][]string{headers}); err != nil {
		return err
	}
	return tx.Commit()
}

// LastUpdated returns when the rows were last written, or the zero time
// when the store is empty.
func (r *SQLiteRepository) LastUpdated(ctx context.Context) (time.Time, error) {
	var raw sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM ledger_rows`).Scan(&raw); err != nil {
		return time.Time{}, fmt.Errorf("query last update: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, raw.String); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse last update %q", raw.String)
}

func insertRows(ctx context.Context, tx *sql.Tx, rows [][]string) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ledger_rows (position, cells) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if row == nil {
			row = []string{}
		}
		b, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode ledger row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, i, string(b)); err != nil {
			return fmt.Errorf("insert ledger row %d: %w", i, err)
		}
	}
	return nil
}
