package importer

import (
	"encoding/json"
	"strconv"
	"time"
)

type ValueKind uint8

const (
	ValueString ValueKind = iota
	ValueNumber
	ValueDate
)

// Value is a decoded cell: text from CSV, text or number from a workbook.
type Value struct {
	kind ValueKind
	text string
	num  float64
	date time.Time
}

func StringValue(s string) Value  { return Value{kind: ValueString, text: s} }
func NumberValue(f float64) Value { return Value{kind: ValueNumber, num: f} }
func DateValue(t time.Time) Value { return Value{kind: ValueDate, date: t} }

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) Number() (float64, bool) { return v.num, v.kind == ValueNumber }

func (v Value) Date() (time.Time, bool) { return v.date, v.kind == ValueDate }

func (v Value) String() string {
	switch v.kind {
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ValueDate:
		return v.date.Format(dateLayout)
	default:
		return v.text
	}
}

func (v Value) IsEmpty() bool {
	return v.kind == ValueString && v.text == ""
}

func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

type Field struct {
	Key   string
	Value Value
}

// RawRecord keeps the header order of the source file.
type RawRecord struct {
	Fields []Field
}

func (r RawRecord) Get(key string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

func (r RawRecord) Keys() []string {
	keys := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		keys[i] = f.Key
	}
	return keys
}

func (r RawRecord) MarshalJSON() ([]byte, error) {
	return marshalFields(r.Fields)
}

// NormalizedRecord is a RawRecord whose schema columns carry canonical names.
type NormalizedRecord struct {
	RowNumber int
	Fields    []Field
}

func (r NormalizedRecord) Get(column string) Value {
	for _, f := range r.Fields {
		if f.Key == column {
			return f.Value
		}
	}
	return StringValue("")
}

func (r NormalizedRecord) Text(column string) string {
	return r.Get(column).String()
}

// ClassifiedRecord is a NormalizedRecord tagged by the duplicate detector.
type ClassifiedRecord struct {
	NormalizedRecord
	Key       string
	Duplicate bool
}

func marshalFields(fields []Field) ([]byte, error) {
	buf := make([]byte, 0, 64*len(fields)+2)
	buf = append(buf, '{')
	for i, f := range fields {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		if n, ok := f.Value.Number(); ok {
			buf = strconv.AppendFloat(buf, n, 'f', -1, 64)
			continue
		}
		val, err := json.Marshal(f.Value.String())
		if err != nil {
			return nil, err
		}
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	return buf, nil
}
