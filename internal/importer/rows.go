package importer

const (
	RowNew       = "new"
	RowDuplicate = "duplicate"
	RowExisting  = "existing"
	RowError     = "error"
)

// RowSummary is one file row as shown for review before a commit.
type RowSummary struct {
	RowNumber int               `json:"rowNumber"`
	Status    string            `json:"status"`
	Duplicate bool              `json:"duplicate"`
	Fields    map[string]string `json:"fields"`
}

// Rows lists every record of the preview in file order with the status the
// outcome gave it. Duplicate is set for exactly the rows counted in
// Outcome.Duplicates.
func Rows(p *Preview, out Outcome) []RowSummary {
	status := make(map[int]string, len(out.DuplicateRows)+len(out.ExistingRows)+len(out.RowErrors))
	for _, row := range out.DuplicateRows {
		status[row] = RowDuplicate
	}
	for _, row := range out.ExistingRows {
		status[row] = RowExisting
	}
	for _, e := range out.RowErrors {
		status[e.RowNumber] = RowError
	}

	columns := p.Kind.Columns()
	rows := make([]RowSummary, 0, len(p.Records))
	for _, rec := range p.Records {
		fields := make(map[string]string, len(columns))
		for _, col := range columns {
			fields[col] = rec.Text(col)
		}
		st, ok := status[rec.RowNumber]
		if !ok {
			st = RowNew
		}
		rows = append(rows, RowSummary{
			RowNumber: rec.RowNumber,
			Status:    st,
			Duplicate: st == RowDuplicate || st == RowExisting,
			Fields:    fields,
		})
	}
	return rows
}
