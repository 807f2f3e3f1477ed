package http

import (
	"html/template"

	"pagos/internal/core"
	"pagos/internal/services"
)

// Choices always offered by the sidebar, before values found in the ledger.
var (
	defaultPriorities = []string{"Alta", "Media", "Baja"}
	defaultStatuses   = []string{core.StatusPending, "Pagado"}
)

type rowView struct {
	Index    int
	Cells    []string
	DueToday bool
	DueSoon  bool
}

type kpiRowView struct {
	Key            string
	SumAmount      string
	SumAmountLocal string
}

type kpiView struct {
	Name    string
	Title   string
	Columns []string
	Rows    []kpiRowView
	Total   kpiRowView
}

type pageData struct {
	Today           string
	Filters         core.Filters
	FilterQuery     template.URL
	AllOption       string
	PriorityOptions []string
	StatusOptions   []string
	Headers         []string
	Rows            []rowView
	RowCount        int
	Missing         []string
	TotalRows       int
	HeadlineToday   string
	KPIs            []kpiView
	Message         string
	Error           string
}

var templateFuncs = template.FuncMap{
	"money": core.FormatMoney,
	"cellName": func(row, col int) string {
		return cellField(row, col)
	},
	"deleteName": deleteField,
	"newName":    newField,
	"isDate": func(col int) bool {
		return col == core.ColRegistrationDate || col == core.ColDueDate
	},
	"isAmount": func(col int) bool {
		return col == core.ColAmount || col == core.ColExchangeRate || col == core.ColAmountLocal
	},
}

// buildPage turns a dashboard into template data. The editor gets one extra
// blank row for new entries.
func buildPage(d *services.Dashboard) pageData {
	p := pageData{
		Today:           d.Today.String(),
		Filters:         d.Filters,
		FilterQuery:     template.URL(FilterQuery(d.Filters).Encode()),
		AllOption:       core.AllOption,
		PriorityOptions: mergeOptions(defaultPriorities, d.PriorityOptions),
		StatusOptions:   mergeOptions(defaultStatuses, d.StatusOptions),
		Headers:         core.Headers,
		Missing:         d.All.Missing,
		TotalRows:       d.All.Len(),
		HeadlineToday:   core.FormatMoney(d.KPIs.DueToday.Total().SumAmountLocal),
		KPIs:            buildKPIs(d.KPIs),
	}

	p.Rows = make([]rowView, 0, d.View.Len()+1)
	for i, r := range d.View.Records {
		p.Rows = append(p.Rows, rowView{
			Index:    i,
			Cells:    r.Cells(),
			DueToday: r.IsDueToday(d.Today),
			DueSoon:  r.IsDueWithin(d.Today, 7),
		})
	}
	p.Rows = append(p.Rows, rowView{Index: d.View.Len(), Cells: make([]string, core.NumColumns)})
	p.RowCount = len(p.Rows)
	return p
}

func buildKPIs(k core.KPIs) []kpiView {
	all := k.All()
	out := make([]kpiView, 0, len(all))
	for _, kpi := range all {
		v := kpiView{
			Name:    kpi.Name,
			Title:   kpi.Title,
			Columns: kpi.Columns(),
			Rows:    make([]kpiRowView, 0, len(kpi.Rows)),
			Total:   formatKPIRow(kpi.Total()),
		}
		for _, r := range kpi.Rows {
			v.Rows = append(v.Rows, formatKPIRow(r))
		}
		out = append(out, v)
	}
	return out
}

func formatKPIRow(r core.KPIRow) kpiRowView {
	key := r.Key
	if key == "" {
		key = "(sin valor)"
	}
	return kpiRowView{
		Key:            key,
		SumAmount:      core.FormatMoney(r.SumAmount),
		SumAmountLocal: core.FormatMoney(r.SumAmountLocal),
	}
}

// mergeOptions returns defaults followed by any extra observed values.
func mergeOptions(defaults, observed []string) []string {
	seen := make(map[string]struct{}, len(defaults)+len(observed))
	out := make([]string, 0, len(defaults)+len(observed))
	for _, list := range [][]string{defaults, observed} {
		for _, v := range list {
			if _, ok := seen[v]; ok || v == "" {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
