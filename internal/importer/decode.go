package importer

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

const sampleSize = 2

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Diagnostics describes how a file was decoded. It is informational only.
type Diagnostics struct {
	Format    string      `json:"format"`
	Encoding  string      `json:"encoding,omitempty"`
	Delimiter string      `json:"delimiter,omitempty"`
	Sheet     string      `json:"sheet,omitempty"`
	Headers   []string    `json:"headers"`
	RowCount  int         `json:"rowCount"`
	Sample    []RawRecord `json:"sample"`
}

type Decoded struct {
	Records     []RawRecord
	Diagnostics Diagnostics
}

// CheckExtension validates the upload by filename suffix and returns the
// lower-cased extension.
func CheckExtension(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	for _, accepted := range AcceptedExtensions {
		if ext == accepted {
			return ext, nil
		}
	}
	return "", &UnsupportedFormatError{Filename: filename}
}

// Decode turns an uploaded file into one RawRecord per data row.
func Decode(filename string, data []byte) (Decoded, error) {
	ext, err := CheckExtension(filename)
	if err != nil {
		return Decoded{}, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Decoded{}, &DecodeError{Reason: "file is empty", Err: ErrNoData}
	}

	var out Decoded
	if ext == ".csv" {
		out, err = decodeCSV(data)
	} else {
		out, err = decodeWorkbook(data, strings.TrimPrefix(ext, "."))
	}
	if err != nil {
		return Decoded{}, err
	}
	if len(out.Records) == 0 {
		return Decoded{}, &DecodeError{Reason: ErrNoData.Error(), Err: ErrNoData}
	}

	out.Diagnostics.RowCount = len(out.Records)
	n := min(sampleSize, len(out.Records))
	out.Diagnostics.Sample = out.Records[:n:n]
	return out, nil
}

func decodeCSV(data []byte) (Decoded, error) {
	text, encoding, err := toUTF8(data)
	if err != nil {
		return Decoded{}, &DecodeError{Reason: "file is not readable text", Err: err}
	}

	lines := make([]string, 0, 256)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return Decoded{}, &DecodeError{Reason: ErrNoData.Error(), Err: ErrNoData}
	}

	delimiter := detectDelimiter(lines[0])
	headers := uniqueHeaders(splitCSVLine(lines[0], delimiter))

	records := make([]RawRecord, 0, len(lines)-1)
	for _, line := range lines[1:] {
		values := splitCSVLine(strings.TrimSpace(line), delimiter)
		fields := make([]Field, len(headers))
		hasData := false
		for i, header := range headers {
			value := ""
			if i < len(values) {
				value = values[i]
			}
			if value != "" {
				hasData = true
			}
			fields[i] = Field{Key: header, Value: StringValue(value)}
		}
		if hasData {
			records = append(records, RawRecord{Fields: fields})
		}
	}

	return Decoded{
		Records: records,
		Diagnostics: Diagnostics{
			Format:    "csv",
			Encoding:  encoding,
			Delimiter: delimiter,
			Headers:   headers,
		},
	}, nil
}

func toUTF8(data []byte) (string, string, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		return string(data[len(utf8BOM):]), "utf-8-bom", nil
	}
	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", err
	}
	return string(decoded), "windows-1252", nil
}

func detectDelimiter(header string) string {
	switch {
	case strings.Contains(header, ";"):
		return ";"
	case strings.Contains(header, "\t"):
		return "\t"
	default:
		return ","
	}
}

func splitCSVLine(line, delimiter string) []string {
	parts := strings.Split(line, delimiter)
	for i, part := range parts {
		parts[i] = stripQuotes(strings.TrimSpace(part))
	}
	return parts
}

// stripQuotes drops one leading and one trailing quote character.
func stripQuotes(s string) string {
	if s != "" && (s[0] == '"' || s[0] == '\'') {
		s = s[1:]
	}
	if s != "" && (s[len(s)-1] == '"' || s[len(s)-1] == '\'') {
		s = s[:len(s)-1]
	}
	return s
}

// uniqueHeaders suffixes repeated headers with _1, _2 and names blank ones
// __EMPTY, the way spreadsheet-to-JSON converters key their row objects.
func uniqueHeaders(raw []string) []string {
	used := make(map[string]bool, len(raw))
	suffix := make(map[string]int, len(raw))
	out := make([]string, len(raw))
	for i, h := range raw {
		base := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if base == "" {
			base = "__EMPTY"
		}
		name := base
		for used[name] {
			suffix[base]++
			name = base + "_" + strconv.Itoa(suffix[base])
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func decodeWorkbook(data []byte, format string) (Decoded, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Decoded{}, &DecodeError{Reason: "file is not a readable Excel workbook", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Decoded{}, &DecodeError{Reason: "workbook has no sheets"}
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Decoded{}, &DecodeError{Reason: fmt.Sprintf("cannot read sheet %q", sheet), Err: err}
	}

	headerIdx := -1
	for i, row := range rows {
		if !blankRow(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return Decoded{}, &DecodeError{Reason: ErrNoData.Error(), Err: ErrNoData}
	}
	headers := uniqueHeaders(rows[headerIdx])

	records := make([]RawRecord, 0, len(rows)-headerIdx)
	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		if blankRow(row) {
			continue
		}
		fields := make([]Field, 0, len(headers))
		for col, header := range headers {
			if col >= len(row) || row[col] == "" {
				fields = append(fields, Field{Key: header, Value: StringValue("")})
				continue
			}
			fields = append(fields, Field{Key: header, Value: workbookValue(f, sheet, col, i, row[col])})
		}
		records = append(records, RawRecord{Fields: fields})
	}

	return Decoded{
		Records: records,
		Diagnostics: Diagnostics{
			Format:  format,
			Sheet:   sheet,
			Headers: headers,
		},
	}, nil
}

// workbookValue types a raw cell: numeric cells stay numbers (dates are
// serials), strings stay strings.
func workbookValue(f *excelize.File, sheet string, col, row int, raw string) Value {
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return StringValue(raw)
	}
	cellType, err := f.GetCellType(sheet, cell)
	if err != nil {
		return StringValue(raw)
	}

	switch cellType {
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return NumberValue(n)
		}
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return DateValue(t)
		}
		if t, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
			return DateValue(t)
		}
	case excelize.CellTypeBool:
		if raw == "1" {
			return StringValue("TRUE")
		}
		return StringValue("FALSE")
	}
	return StringValue(raw)
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
