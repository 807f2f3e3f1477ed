package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Column titles of the aggregate sums.
const (
	SumAmountColumn      = "Suma Monto"
	SumAmountLocalColumn = "Suma Monto en S/"
)

// KPIRow is one group of an aggregate view.
type KPIRow struct {
	Key            string
	SumAmount      decimal.Decimal
	SumAmountLocal decimal.Decimal
}

// KPI is a grouped sum table. Rows are sorted by Key and may be empty; the
// column names are always available.
type KPI struct {
	Name      string
	Title     string
	KeyColumn string
	Rows      []KPIRow
}

// Columns returns the three column names of the view.
func (k KPI) Columns() []string {
	return []string{k.KeyColumn, SumAmountColumn, SumAmountLocalColumn}
}

// Total sums every row of the view.
func (k KPI) Total() KPIRow {
	total := KPIRow{Key: "Total"}
	for _, r := range k.Rows {
		total.SumAmount = total.SumAmount.Add(r.SumAmount)
		total.SumAmountLocal = total.SumAmountLocal.Add(r.SumAmountLocal)
	}
	return total
}

// Find returns the row for key.
func (k KPI) Find(key string) (KPIRow, bool) {
	for _, r := range k.Rows {
		if r.Key == key {
			return r, true
		}
	}
	return KPIRow{}, false
}

// KPIs holds the five dashboard views.
type KPIs struct {
	DueToday          KPI
	DueNext7          KPI
	DueNext30         KPI
	ByStatus          KPI
	PendingByProvider KPI
}

// All returns the views in display order.
func (k KPIs) All() []KPI {
	return []KPI{k.DueToday, k.DueNext7, k.DueNext30, k.ByStatus, k.PendingByProvider}
}

// ComputeKPIs derives the five views. view is the sidebar-filtered table;
// the totals-by-status view always uses all, the unfiltered ledger.
func ComputeKPIs(view, all Table, today Date) KPIs {
	byProvider := func(r Record) string { return r.Provider }
	byCurrency := func(r Record) string { return r.Currency }
	byStatus := func(r Record) string { return r.Status }

	return KPIs{
		DueToday: group("due_today", "Pagos de hoy", Headers[ColProvider], view.Records, byProvider,
			func(r Record) bool { return r.IsDueToday(today) }),
		DueNext7: group("due_next_7", "Próximos 7 días", Headers[ColProvider], view.Records, byProvider,
			func(r Record) bool { return r.IsDueWithin(today, 7) }),
		DueNext30: group("due_next_30", "Próximos 30 días por moneda", Headers[ColCurrency], view.Records, byCurrency,
			func(r Record) bool { return r.IsDueWithin(today, 30) }),
		ByStatus: group("by_status", "Totales por estado", Headers[ColStatus], all.Records, byStatus,
			func(Record) bool { return true }),
		PendingByProvider: group("pending_by_provider", "Pendientes por proveedor", Headers[ColProvider], view.Records, byProvider,
			func(r Record) bool { return r.Status == StatusPending }),
	}
}

// group sums Amount and AmountLocal of the records accepted by keep,
// grouped by key. Null amounts count as zero.
func group(name, title, keyColumn string, records []Record, key func(Record) string, keep func(Record) bool) KPI {
	sums := map[string]*KPIRow{}
	for _, r := range records {
		if !keep(r) {
			continue
		}
		k := key(r)
		row, ok := sums[k]
		if !ok {
			row = &KPIRow{Key: k}
			sums[k] = row
		}
		row.SumAmount = row.SumAmount.Add(r.Amount.Decimal())
		row.SumAmountLocal = row.SumAmountLocal.Add(r.AmountLocal.Decimal())
	}

	rows := make([]KPIRow, 0, len(sums))
	for _, row := range sums {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return KPI{Name: name, Title: title, KeyColumn: keyColumn, Rows: rows}
}
