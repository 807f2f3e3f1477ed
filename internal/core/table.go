package core

import "strings"

// Table is the typed, in-memory ledger.
//
// Positions maps each record to its row position in the table it was
// derived from; nil means records are at their own index. Missing lists
// canonical headers that were absent from the loaded header row.
type Table struct {
	Records   []Record
	Positions []int
	Missing   []string
}

// Len returns the number of records.
func (t Table) Len() int {
	return len(t.Records)
}

// Position returns the original row position of the i-th record.
func (t Table) Position(i int) int {
	if t.Positions == nil {
		return i
	}
	return t.Positions[i]
}

// Rows returns the table as raw cells, header first, always with the 15
// canonical columns in order.
func (t Table) Rows() [][]string {
	rows := make([][]string, 0, len(t.Records)+1)
	rows = append(rows, append([]string(nil), Headers...))
	for _, r := range t.Records {
		rows = append(rows, r.Cells())
	}
	return rows
}

// Normalize turns raw sheet rows (first row = header) into a typed table.
//
// Columns are matched by header text, so their order in the sheet does not
// matter. Unknown columns are ignored; canonical columns that are absent
// are reported in Missing and read as empty cells. Cell parse failures
// degrade to null values and never abort the load.
func Normalize(raw [][]string) Table {
	if len(raw) == 0 {
		return Table{Records: []Record{}}
	}

	index := make(map[string]int, len(raw[0]))
	for i, h := range raw[0] {
		h = strings.TrimSpace(h)
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	cols := make([]int, NumColumns)
	var missing []string
	for c, h := range Headers {
		i, ok := index[h]
		if !ok {
			i = -1
			missing = append(missing, h)
		}
		cols[c] = i
	}

	records := make([]Record, 0, len(raw)-1)
	for _, row := range raw[1:] {
		if isBlank(row) {
			continue
		}
		cells := make([]string, NumColumns)
		for c, i := range cols {
			if i >= 0 && i < len(row) {
				cells[c] = row[i]
			}
		}
		records = append(records, RecordFromCells(cells))
	}
	return Table{Records: records, Missing: missing}
}

// RecordFromCells parses cells given in canonical column order. Short
// input is treated as empty trailing cells.
func RecordFromCells(cells []string) Record {
	get := func(c int) string {
		if c < len(cells) {
			return strings.TrimSpace(cells[c])
		}
		return ""
	}
	return Record{
		RegistrationDate: ParseDate(get(ColRegistrationDate)),
		Area:             get(ColArea),
		PaymentType:      get(ColPaymentType),
		Provider:         get(ColProvider),
		RecordID:         get(ColRecordID),
		Currency:         get(ColCurrency),
		Amount:           ParseAmount(get(ColAmount)),
		ExchangeRate:     ParseAmount(get(ColExchangeRate)),
		AmountLocal:      ParseAmount(get(ColAmountLocal)),
		DueDate:          ParseDate(get(ColDueDate)),
		Priority:         get(ColPriority),
		Status:           get(ColStatus),
		Notes:            get(ColNotes),
		DueTodayFlag:     get(ColDueTodayFlag),
		DueWithin7Flag:   get(ColDueWithin7Flag),
	}
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
