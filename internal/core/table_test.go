package core

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func row(cells ...string) []string { return cells }

func sampleRaw() [][]string {
	return [][]string{
		Headers,
		row("2025-01-02", "Finanzas", "Factura", "Acme", "R-1", "USD", "1,200.50", "3.70", "4,441.85", "2025-01-10", "Alta", "Pendiente", "", "No", "Sí"),
		row("2025-01-03", "Logística", "Recibo", "Beta", "R-2", "PEN", "", "", "", "not a date", "Baja", "Pagado", "sin monto", "No", "No"),
		row("", "", "", "", "", "", "", "", "", "", "", "", "", "", ""),
		row("2025-01-04", "Finanzas", "Factura", "Acme", "R-3", "USD", "abc", "3.7", "100", "2025-01-12", "Media", "Pendiente"),
	}
}

func TestNormalize(t *testing.T) {
	tbl := Normalize(sampleRaw())
	if tbl.Len() != 3 {
		t.Fatalf("expected 3 records (blank row dropped), got %d", tbl.Len())
	}
	if len(tbl.Missing) != 0 {
		t.Fatalf("unexpected missing columns: %v", tbl.Missing)
	}

	r := tbl.Records[0]
	if r.Provider != "Acme" || r.Currency != "USD" || r.Status != StatusPending {
		t.Fatalf("unexpected text fields: %+v", r)
	}
	if !r.Amount.Decimal().Equal(decimal.RequireFromString("1200.50")) {
		t.Fatalf("amount: got %s", r.Amount)
	}
	if !r.AmountLocal.Decimal().Equal(decimal.RequireFromString("4441.85")) {
		t.Fatalf("amount_local: got %s", r.AmountLocal)
	}
	if !r.DueDate.Equal(NewDate(2025, 1, 10).Time) {
		t.Fatalf("due date: got %v", r.DueDate)
	}

	empty := tbl.Records[1]
	if empty.Amount.Valid() || empty.ExchangeRate.Valid() || empty.AmountLocal.Valid() {
		t.Fatalf("expected null amounts, got %+v", empty)
	}
	if !empty.DueDate.IsEmpty() {
		t.Fatalf("expected null due date, got %v", empty.DueDate)
	}

	short := tbl.Records[2]
	if short.Amount.Valid() {
		t.Fatalf("unparseable amount should be null")
	}
	if short.Notes != "" || short.DueWithin7Flag != "" {
		t.Fatalf("short row should pad with empty cells: %+v", short)
	}
}

func TestNormalizeHeaderOnly(t *testing.T) {
	for name, raw := range map[string][][]string{
		"nil":         nil,
		"header only": {Headers},
	} {
		tbl := Normalize(raw)
		if tbl.Len() != 0 {
			t.Fatalf("%s: expected empty table, got %d rows", name, tbl.Len())
		}
		rows := tbl.Rows()
		if len(rows) != 1 || !reflect.DeepEqual(rows[0], Headers) {
			t.Fatalf("%s: expected header row only, got %v", name, rows)
		}
		if len(rows[0]) != 15 {
			t.Fatalf("%s: expected 15 columns, got %d", name, len(rows[0]))
		}
	}
}

func TestNormalizeMissingAndReorderedColumns(t *testing.T) {
	raw := [][]string{
		{"Estado", "Proveedor", "Monto", "Extra"},
		{"Pendiente", "Acme", "50", "ignored"},
	}
	tbl := Normalize(raw)
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", tbl.Len())
	}
	if len(tbl.Missing) != 12 {
		t.Fatalf("expected 12 missing columns, got %v", tbl.Missing)
	}
	r := tbl.Records[0]
	if r.Provider != "Acme" || r.Status != "Pendiente" || r.Amount.String() != "50" {
		t.Fatalf("unexpected record: %+v", r)
	}
	if !r.DueDate.IsEmpty() || r.AmountLocal.Valid() {
		t.Fatalf("missing columns should read as null")
	}

	// Aggregation must tolerate the absent columns.
	k := ComputeKPIs(tbl, tbl, NewDate(2025, 1, 1))
	if got, ok := k.PendingByProvider.Find("Acme"); !ok || got.SumAmount.String() != "50" {
		t.Fatalf("pending by provider: %+v", k.PendingByProvider)
	}
	if len(k.DueToday.Rows) != 0 {
		t.Fatalf("no due date column means no due-today rows")
	}

	rows := tbl.Rows()
	if len(rows[1]) != 15 || rows[1][ColAmount] != "50" || rows[1][ColDueDate] != "" {
		t.Fatalf("rows should synthesize missing columns: %v", rows[1])
	}
}

func TestRowsRoundTripEditedAmount(t *testing.T) {
	tbl := Normalize(sampleRaw())
	cells := tbl.Records[0].Cells()
	if cells[ColAmount] != "1200.5" {
		t.Fatalf("expected canonical amount, got %q", cells[ColAmount])
	}

	cells[ColAmount] = "1300"
	edited := RecordFromCells(cells)
	if !edited.Amount.Decimal().Equal(decimal.NewFromInt(1300)) {
		t.Fatalf("expected 1300, got %s", edited.Amount)
	}
	out := Merge(tbl, tbl, []Record{edited}).Rows()
	if out[1][ColAmount] != "1300" {
		t.Fatalf("persisted amount: got %q", out[1][ColAmount])
	}
}
