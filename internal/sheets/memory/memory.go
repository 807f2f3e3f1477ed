package memory

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ports "pagos/internal/sheets"
)

var _ ports.RowStore = (*Store)(nil)

// Store keeps the ledger rows in process memory.
type Store struct {
	mu   sync.Mutex
	rows [][]string
}

func New(rows [][]string) *Store {
	return &Store{rows: cloneRows(rows)}
}

// NewFromFiles seeds the store from <base>/seed_pagos.csv when present.
func NewFromFiles(base string) *Store {
	rows, err := readCSV(filepath.Join(base, "seed_pagos.csv"))
	if err != nil {
		return New(nil)
	}
	return New(rows)
}

// ReadAll returns a copy of the stored rows.
func (s *Store) ReadAll(_ context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRows(s.rows), nil
}

// OverwriteAll swaps the stored rows under the lock.
func (s *Store) OverwriteAll(_ context.Context, rows [][]string) error {
	if len(rows) == 0 {
		return fmt.Errorf("overwrite: missing header row")
	}
	next := cloneRows(rows)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = next
	return nil
}

// EnsureHeaders writes the header row into an empty store.
func (s *Store) EnsureHeaders(_ context.Context, headers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rows) > 0 {
		return nil
	}
	s.rows = [][]string{append([]string(nil), headers...)}
	return nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	for i := range rows {
		for j := range rows[i] {
			rows[i][j] = strings.TrimSpace(rows[i][j])
		}
	}
	return rows, nil
}

func cloneRows(in [][]string) [][]string {
	if in == nil {
		return nil
	}
	out := make([][]string, len(in))
	for i, row := range in {
		out[i] = append([]string(nil), row...)
	}
	return out
}
