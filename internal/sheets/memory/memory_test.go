package memory

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMemoryStoreEnsureAndOverwrite(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	headers := []string{"A", "B"}

	if err := s.EnsureHeaders(ctx, headers); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	rows, _ := s.ReadAll(ctx)
	if !reflect.DeepEqual(rows, [][]string{{"A", "B"}}) {
		t.Fatalf("unexpected rows after ensure: %v", rows)
	}

	want := [][]string{{"A", "B"}, {"1", "2"}}
	if err := s.OverwriteAll(ctx, want); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	// Idempotent: existing content is left alone.
	if err := s.EnsureHeaders(ctx, []string{"X"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	rows, _ = s.ReadAll(ctx)
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("unexpected rows: %v", rows)
	}

	// Callers cannot mutate the stored rows through returned slices.
	rows[1][0] = "mutated"
	again, _ := s.ReadAll(ctx)
	if again[1][0] != "1" {
		t.Fatalf("store leaked internal slice")
	}

	if err := s.OverwriteAll(ctx, nil); err == nil {
		t.Fatalf("expected error for empty overwrite")
	}
}

func TestNewFromFilesSeeds(t *testing.T) {
	dir := t.TempDir()
	s := NewFromFiles(dir)
	rows, _ := s.ReadAll(context.Background())
	if len(rows) != 0 {
		t.Fatalf("expected empty store when seed missing, got %v", rows)
	}

	content := "# seed\nProveedor,Monto\nAcme,\"1,200.50\"\nBeta,3\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_pagos.csv"), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s = NewFromFiles(dir)
	rows, _ = s.ReadAll(context.Background())
	want := [][]string{{"Proveedor", "Monto"}, {"Acme", "1,200.50"}, {"Beta", "3"}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("unexpected seeded rows: %v", rows)
	}
}
