package sheets

import (
	"context"
)

// Ports for outbound adapters.
type (
	// RowStore is the shared backing collection of the ledger. Rows are raw
	// string cells; the first row is the header.
	RowStore interface {
		// ReadAll returns every row, header included.
		ReadAll(ctx context.Context) ([][]string, error)

		// OverwriteAll replaces the whole content with rows (header
		// included). Readers never observe a partially written table.
		OverwriteAll(ctx context.Context, rows [][]string) error

		// EnsureHeaders creates the collection with the given header row if
		// it does not exist and leaves it untouched otherwise.
		EnsureHeaders(ctx context.Context, headers []string) error
	}
)
