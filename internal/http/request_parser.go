// Package http serves the ledger dashboard.
//
// This file turns form and query values into filters and records.
package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"pagos/internal/core"
)

const (
	paramPriority = "prioridad"
	paramStatus   = "estado"
	paramRefresh  = "refresh"
	paramRows     = "rows"
	paramMessage  = "msg"

	// maxEditedRows bounds the editor form; the worksheet starts at 2000.
	maxEditedRows = 10000
)

// ParseFilters reads the sidebar selection. Missing values mean "(Todas)".
func ParseFilters(values url.Values) core.Filters {
	return core.Filters{
		Priority: sanitizeInput(values.Get(paramPriority)),
		Status:   sanitizeInput(values.Get(paramStatus)),
	}
}

// FilterQuery encodes f back into a query string, omitting unset filters.
func FilterQuery(f core.Filters) url.Values {
	q := url.Values{}
	if f.Priority != "" && f.Priority != core.AllOption {
		q.Set(paramPriority, f.Priority)
	}
	if f.Status != "" && f.Status != core.AllOption {
		q.Set(paramStatus, f.Status)
	}
	return q
}

func cellField(row, col int) string {
	return "row-" + strconv.Itoa(row) + "-" + strconv.Itoa(col)
}

func deleteField(row int) string {
	return "row-" + strconv.Itoa(row) + "-delete"
}

func newField(col int) string {
	return "new-" + strconv.Itoa(col)
}

// ParseEditedRows rebuilds the edited view from the editor form: "rows"
// gives the number of submitted rows and row-<i>-<col> each cell. Rows
// marked for deletion and rows left entirely blank are dropped.
func ParseEditedRows(form url.Values) ([]core.Record, error) {
	raw := strings.TrimSpace(form.Get(paramRows))
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxEditedRows {
		return nil, fmt.Errorf("invalid row count %q", raw)
	}

	records := make([]core.Record, 0, n)
	for i := 0; i < n; i++ {
		if form.Get(deleteField(i)) != "" {
			continue
		}
		cells := make([]string, core.NumColumns)
		blank := true
		for c := range cells {
			cells[c] = sanitizeInput(form.Get(cellField(i, c)))
			if cells[c] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		records = append(records, core.RecordFromCells(cells))
	}
	return records, nil
}

// ParseRecordForm reads the add-record form (fields new-<col>). A blank
// registration date defaults to today and blank due flags are computed.
func ParseRecordForm(form url.Values, today core.Date) core.Record {
	cells := make([]string, core.NumColumns)
	for c := range cells {
		cells[c] = sanitizeInput(form.Get(newField(c)))
	}
	r := core.RecordFromCells(cells)
	if r.RegistrationDate.IsEmpty() {
		r.RegistrationDate = today
	}
	return r.WithComputedFlags(today)
}

// sanitizeInput trims and strips control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
