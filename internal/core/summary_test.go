package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func amt(s string) Amount {
	return NewAmount(decimal.RequireFromString(s))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestKPIDueTodayScenario(t *testing.T) {
	today := NewDate(2025, 6, 15)
	tbl := Table{Records: []Record{
		{Provider: "Acme", DueDate: today, Amount: amt("100.00"), AmountLocal: amt("370.00"), Status: "Pagado"},
	}}
	k := ComputeKPIs(tbl, tbl, today)
	if len(k.DueToday.Rows) != 1 {
		t.Fatalf("expected one group, got %+v", k.DueToday.Rows)
	}
	got := k.DueToday.Rows[0]
	if got.Key != "Acme" || !got.SumAmount.Equal(dec("100")) || !got.SumAmountLocal.Equal(dec("370")) {
		t.Fatalf("unexpected row %+v", got)
	}
}

func TestKPIPendingByProviderScenario(t *testing.T) {
	tbl := Table{Records: []Record{
		{Provider: "Acme", Status: StatusPending, Amount: amt("50")},
		{Provider: "Acme", Status: StatusPending, Amount: amt("75")},
		{Provider: "Acme", Status: "Pagado", Amount: amt("1000")},
	}}
	k := ComputeKPIs(tbl, tbl, NewDate(2025, 6, 15))
	if len(k.PendingByProvider.Rows) != 1 {
		t.Fatalf("unexpected rows: %+v", k.PendingByProvider.Rows)
	}
	if got := k.PendingByProvider.Rows[0]; got.Key != "Acme" || !got.SumAmount.Equal(dec("125")) {
		t.Fatalf("unexpected row %+v", got)
	}
}

func TestKPIDateWindows(t *testing.T) {
	today := NewDate(2025, 6, 15)
	tbl := Table{Records: []Record{
		{Provider: "Y", Currency: "USD", DueDate: today.AddDays(-1), Amount: amt("1")},
		{Provider: "T", Currency: "USD", DueDate: today, Amount: amt("2")},
		{Provider: "A", Currency: "USD", DueDate: today.AddDays(1), Amount: amt("4"), AmountLocal: amt("14.8")},
		{Provider: "A", Currency: "PEN", DueDate: today.AddDays(7), Amount: amt("8"), AmountLocal: amt("8")},
		{Provider: "B", Currency: "PEN", DueDate: today.AddDays(8), Amount: amt("16")},
		{Provider: "", Currency: "USD", DueDate: today.AddDays(30), Amount: amt("32")},
		{Provider: "C", Currency: "EUR", DueDate: today.AddDays(31), Amount: amt("64")},
		{Provider: "N", Currency: "EUR", Amount: amt("128")},
		{Provider: "Z", Currency: "EUR", DueDate: today.AddDays(3)},
	}}
	k := ComputeKPIs(tbl, tbl, today)

	if len(k.DueToday.Rows) != 1 || k.DueToday.Rows[0].Key != "T" {
		t.Fatalf("due today: %+v", k.DueToday.Rows)
	}

	wantNext7 := map[string]string{"A": "12", "Z": "0"}
	if len(k.DueNext7.Rows) != len(wantNext7) {
		t.Fatalf("next 7: %+v", k.DueNext7.Rows)
	}
	for key, want := range wantNext7 {
		got, ok := k.DueNext7.Find(key)
		if !ok || !got.SumAmount.Equal(dec(want)) {
			t.Fatalf("next 7 %s: got %+v", key, got)
		}
	}
	if a, _ := k.DueNext7.Find("A"); !a.SumAmountLocal.Equal(dec("22.8")) {
		t.Fatalf("next 7 local: %+v", a)
	}

	wantNext30 := map[string]string{"USD": "36", "PEN": "24", "EUR": "0"}
	if len(k.DueNext30.Rows) != len(wantNext30) {
		t.Fatalf("next 30: %+v", k.DueNext30.Rows)
	}
	for key, want := range wantNext30 {
		got, ok := k.DueNext30.Find(key)
		if !ok || !got.SumAmount.Equal(dec(want)) {
			t.Fatalf("next 30 %s: got %+v", key, got)
		}
	}
}

// The grouped sums of a date window must add up to the sum of the window
// itself, whatever the grouping key looks like.
func TestKPIWindowTotals(t *testing.T) {
	today := NewDate(2025, 6, 15)
	var records []Record
	providersList := []string{"Acme", "", "Beta", "acme", "Gamma"}
	currencies := []string{"USD", "PEN", "", "EUR"}
	for i := 0; i < 60; i++ {
		r := Record{
			Provider: providersList[i%len(providersList)],
			Currency: currencies[i%len(currencies)],
			DueDate:  today.AddDays(i%40 - 5),
		}
		if i%7 != 0 {
			r.Amount = NewAmount(decimal.NewFromFloat(float64(i) * 1.25))
		}
		records = append(records, r)
	}
	tbl := Table{Records: records}
	k := ComputeKPIs(tbl, tbl, today)

	for _, tc := range []struct {
		kpi  KPI
		days int
	}{{k.DueNext7, 7}, {k.DueNext30, 30}} {
		want := decimal.Zero
		for _, r := range records {
			if r.IsDueWithin(today, tc.days) {
				want = want.Add(r.Amount.Decimal())
			}
		}
		if got := tc.kpi.Total().SumAmount; !got.Equal(want) {
			t.Fatalf("%s: grouped total %s, window total %s", tc.kpi.Name, got, want)
		}
	}
}

func TestKPIByStatusIgnoresFilter(t *testing.T) {
	all := Table{Records: []Record{
		{Provider: "A", Priority: "Alta", Status: "Pendiente", Amount: amt("10")},
		{Provider: "B", Priority: "Baja", Status: "Pagado", Amount: amt("20")},
		{Provider: "C", Priority: "Baja", Status: "Pendiente", Amount: amt("40")},
	}}
	view := Filter(all, Filters{Priority: "Alta"})
	k := ComputeKPIs(view, all, NewDate(2025, 1, 1))

	if p, _ := k.ByStatus.Find("Pendiente"); !p.SumAmount.Equal(dec("50")) {
		t.Fatalf("by status should use the whole ledger: %+v", k.ByStatus.Rows)
	}
	if len(k.ByStatus.Rows) != 2 || k.ByStatus.Rows[0].Key != "Pagado" {
		t.Fatalf("by status rows should be sorted: %+v", k.ByStatus.Rows)
	}
	if p, _ := k.PendingByProvider.Find("C"); !p.SumAmount.IsZero() {
		t.Fatalf("pending by provider should honor the filter: %+v", k.PendingByProvider.Rows)
	}
}

func TestKPIEmptyInput(t *testing.T) {
	empty := Normalize([][]string{Headers})
	k := ComputeKPIs(empty, empty, NewDate(2025, 1, 1))
	for _, kpi := range k.All() {
		if kpi.Rows == nil {
			t.Fatalf("%s: rows should be empty, not nil", kpi.Name)
		}
		if len(kpi.Rows) != 0 {
			t.Fatalf("%s: expected no rows", kpi.Name)
		}
		cols := kpi.Columns()
		if len(cols) != 3 || cols[0] == "" || cols[1] != SumAmountColumn || cols[2] != SumAmountLocalColumn {
			t.Fatalf("%s: unexpected columns %v", kpi.Name, cols)
		}
		if kpi.Title == "" {
			t.Fatalf("%s: missing title", kpi.Name)
		}
	}
	if k.ByStatus.KeyColumn != "Estado" || k.DueNext30.KeyColumn != "Moneda" || k.DueToday.KeyColumn != "Proveedor" {
		t.Fatalf("unexpected key columns")
	}
}
