package importer

import "strings"

const keySeparator = "|"

// Partition is the detector's output. Both lists keep input order.
type Partition struct {
	Valid      []ClassifiedRecord
	Duplicates []ClassifiedRecord
}

// DedupKey joins the trimmed, lower-cased values of the given columns.
func DedupKey(rec NormalizedRecord, columns []string) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = keyPart(rec.Text(col))
	}
	return strings.Join(parts, keySeparator)
}

func keyPart(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Classify flags every record whose key was already seen earlier in the same
// batch. A repeated key is a duplicate of its first occurrence only.
func Classify(records []NormalizedRecord, columns []string) Partition {
	seen := make(map[string]struct{}, len(records))
	p := Partition{
		Valid: make([]ClassifiedRecord, 0, len(records)),
	}
	for _, rec := range records {
		key := DedupKey(rec, columns)
		if _, dup := seen[key]; dup {
			p.Duplicates = append(p.Duplicates, ClassifiedRecord{NormalizedRecord: rec, Key: key, Duplicate: true})
			continue
		}
		seen[key] = struct{}{}
		p.Valid = append(p.Valid, ClassifiedRecord{NormalizedRecord: rec, Key: key})
	}
	return p
}
