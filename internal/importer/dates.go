package importer

import (
	"math"
	"regexp"
	"strings"
	"time"
)

const (
	dateLayout = "2006-01-02"

	// excelEpochOffset is the serial number of 1970-01-01 in the 1900 date
	// system (epoch 1899-12-30).
	excelEpochOffset = 25569
	msPerDay         = 86400 * 1000
)

var (
	isoLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"2006-1-2",
		"2006/01/02",
		"2006/1/2",
	}
	dateSeparators = regexp.MustCompile(`[/\-.]`)
)

// ParseDate renders a cell as YYYY-MM-DD. Numbers are Excel serials; strings
// are tried as ISO dates, then as day/month/year. It returns "" when the
// value cannot be understood.
func ParseDate(v Value) string {
	switch v.Kind() {
	case ValueNumber:
		n, _ := v.Number()
		return excelSerialDate(n)
	case ValueDate:
		t, _ := v.Date()
		return t.Format(dateLayout)
	default:
		return parseDateString(v.String())
	}
}

func excelSerialDate(serial float64) string {
	if math.IsNaN(serial) || math.IsInf(serial, 0) {
		return ""
	}
	ms := math.Round((serial - excelEpochOffset) * msPerDay)
	t := time.UnixMilli(int64(ms)).UTC()
	if t.Year() < 1 || t.Year() > 9999 {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDateString(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if layout == time.RFC3339Nano {
				t = t.UTC()
			}
			return t.Format(dateLayout)
		}
	}

	parts := dateSeparators.Split(s, -1)
	if len(parts) != 3 {
		return ""
	}
	day, okDay := leadingInt(parts[0])
	month, okMonth := leadingInt(parts[1])
	year, okYear := leadingInt(parts[2])
	if !okDay || !okMonth || !okYear {
		return ""
	}
	if year >= 0 && year < 100 {
		if year > 50 {
			year += 1900
		} else {
			year += 2000
		}
	}
	if year <= 1900 || month < 1 || month > 12 || day < 1 || day > 31 {
		return ""
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		// 31/02 and friends
		return ""
	}
	return t.Format(dateLayout)
}

// leadingInt reads an optionally signed run of leading digits, ignoring
// surrounding whitespace and anything after the digits.
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n, digits := 0, 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		if n > (math.MaxInt32-9)/10 {
			return 0, false
		}
		n = n*10 + int(s[digits]-'0')
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}
