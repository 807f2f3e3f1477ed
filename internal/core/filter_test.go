package core

import (
	"reflect"
	"testing"
)

func ledger() Table {
	return Table{Records: []Record{
		{Provider: "A", Priority: "Alta", Status: "Pendiente"},
		{Provider: "B", Priority: "Baja", Status: "Pagado"},
		{Provider: "C", Priority: "Alta", Status: "Pagado"},
		{Provider: "D", Priority: "Media", Status: "Pendiente"},
		{Provider: "E", Priority: "Alta", Status: "Pendiente"},
	}}
}

func providers(t Table) []string {
	var out []string
	for _, r := range t.Records {
		out = append(out, r.Provider)
	}
	return out
}

func TestFilter(t *testing.T) {
	cases := []struct {
		name      string
		f         Filters
		providers []string
		positions []int
	}{
		{"unset", Filters{}, []string{"A", "B", "C", "D", "E"}, []int{0, 1, 2, 3, 4}},
		{"all option", Filters{Priority: AllOption, Status: AllOption}, []string{"A", "B", "C", "D", "E"}, []int{0, 1, 2, 3, 4}},
		{"priority", Filters{Priority: "Alta"}, []string{"A", "C", "E"}, []int{0, 2, 4}},
		{"status", Filters{Status: "Pagado"}, []string{"B", "C"}, []int{1, 2}},
		{"both", Filters{Priority: "Alta", Status: "Pendiente"}, []string{"A", "E"}, []int{0, 4}},
		{"no match", Filters{Priority: "Urgente"}, nil, []int{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Filter(ledger(), tc.f)
			if !reflect.DeepEqual(providers(got), tc.providers) {
				t.Fatalf("providers = %v, want %v", providers(got), tc.providers)
			}
			if !reflect.DeepEqual(got.Positions, tc.positions) {
				t.Fatalf("positions = %v, want %v", got.Positions, tc.positions)
			}
		})
	}
}

func TestFilterIdempotent(t *testing.T) {
	for _, f := range []Filters{{}, {Priority: "Alta"}, {Status: "Pendiente"}, {Priority: "Alta", Status: "Pagado"}} {
		once := Filter(ledger(), f)
		twice := Filter(once, f)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("filter %+v not idempotent: %+v vs %+v", f, once, twice)
		}
	}
}

func TestFiltersActive(t *testing.T) {
	if (Filters{}).Active() || (Filters{Priority: AllOption, Status: " "}).Active() {
		t.Fatalf("unset filters reported active")
	}
	if !(Filters{Status: "Pagado"}).Active() {
		t.Fatalf("status filter should be active")
	}
}

func TestOptions(t *testing.T) {
	got := Options(ledger(), func(r Record) string { return r.Status })
	if !reflect.DeepEqual(got, []string{"Pendiente", "Pagado"}) {
		t.Fatalf("unexpected options: %v", got)
	}
}
