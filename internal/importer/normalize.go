package importer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeHeader folds a column name for comparison: accents removed,
// upper-cased, surrounding whitespace trimmed. "Pröduit " and "PRODUIT" fold
// to the same key.
func NormalizeHeader(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(strings.ToUpper(b.String()))
}

// Normalize re-keys decoded records onto the kind's canonical columns. The
// header set of the first record decides presence; if any required column is
// absent nothing is normalized.
func Normalize(records []RawRecord, kind Kind) ([]NormalizedRecord, error) {
	if len(records) == 0 {
		return nil, &DecodeError{Reason: ErrNoData.Error(), Err: ErrNoData}
	}

	required := kind.Columns()
	canonical := make(map[string]string, len(required))
	for _, col := range required {
		canonical[NormalizeHeader(col)] = col
	}

	present := make(map[string]bool, len(records[0].Fields))
	for _, key := range records[0].Keys() {
		present[NormalizeHeader(key)] = true
	}
	var missing []string
	for _, col := range required {
		if !present[NormalizeHeader(col)] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Kind: kind, Missing: missing}
	}

	out := make([]NormalizedRecord, 0, len(records))
	for idx, rec := range records {
		fields := make([]Field, 0, len(rec.Fields)+len(required))
		seen := make(map[string]bool, len(required))
		for _, f := range rec.Fields {
			if col, ok := canonical[NormalizeHeader(f.Key)]; ok {
				if seen[col] {
					continue
				}
				seen[col] = true
				fields = append(fields, Field{Key: col, Value: f.Value})
				continue
			}
			fields = append(fields, f)
		}
		for _, col := range required {
			if !seen[col] {
				fields = append(fields, Field{Key: col, Value: StringValue("")})
			}
		}
		out = append(out, NormalizedRecord{RowNumber: idx + 2, Fields: fields})
	}
	return out, nil
}
