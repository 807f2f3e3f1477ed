package core

// Merge rebuilds the full ledger after an edit session on a (possibly)
// filtered view.
//
// Rows of full whose position is not part of view are kept unchanged and
// come first; edited follows, whatever its length. When view is the
// unfiltered table every position is covered and the result is edited
// alone.
func Merge(full, view Table, edited []Record) Table {
	shown := make(map[int]struct{}, view.Len())
	for i := range view.Records {
		shown[view.Position(i)] = struct{}{}
	}

	records := make([]Record, 0, max(0, full.Len()-view.Len())+len(edited))
	for i, r := range full.Records {
		if _, ok := shown[full.Position(i)]; ok {
			continue
		}
		records = append(records, r)
	}
	records = append(records, edited...)
	return Table{Records: records}
}

// Append returns t with r added at the end.
func Append(t Table, r Record) Table {
	records := make([]Record, 0, t.Len()+1)
	records = append(records, t.Records...)
	records = append(records, r)
	return Table{Records: records}
}
