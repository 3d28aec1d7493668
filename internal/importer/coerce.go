package importer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// coercer accumulates warnings for the values it had to default.
type coercer struct {
	warnings []Warning
}

func (c *coercer) warn(row int, column string, raw Value, format string, args ...any) {
	c.warnings = append(c.warnings, Warning{
		RowNumber: row,
		Column:    column,
		RawValue:  raw.String(),
		Message:   fmt.Sprintf(format, args...),
	})
}

// quantity reads an integer the lenient way: leading digits win, anything
// unreadable becomes 0.
func (c *coercer) quantity(rec NormalizedRecord, column string) int {
	v := rec.Get(column)
	if n, ok := v.Number(); ok {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			c.warn(rec.RowNumber, column, v, "not a number, defaulted to 0")
			return 0
		}
		q := int(math.Trunc(n))
		if float64(q) != n {
			c.warn(rec.RowNumber, column, v, "fraction dropped, read as %d", q)
		}
		return q
	}

	raw := strings.TrimSpace(v.String())
	if raw == "" {
		c.warn(rec.RowNumber, column, v, "empty, defaulted to 0")
		return 0
	}
	q, ok := leadingInt(raw)
	if !ok {
		c.warn(rec.RowNumber, column, v, "not an integer, defaulted to 0")
		return 0
	}
	if _, err := strconv.Atoi(raw); err != nil {
		c.warn(rec.RowNumber, column, v, "read as %d", q)
	}
	return q
}

// amount reads a currency value, accepting a comma as decimal separator.
func (c *coercer) amount(rec NormalizedRecord, column string) decimal.Decimal {
	v := rec.Get(column)
	if n, ok := v.Number(); ok {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			c.warn(rec.RowNumber, column, v, "not a number, defaulted to 0")
			return decimal.Zero
		}
		return decimal.NewFromFloat(n)
	}

	raw := strings.TrimSpace(v.String())
	if raw == "" {
		c.warn(rec.RowNumber, column, v, "empty, defaulted to 0")
		return decimal.Zero
	}
	s := strings.Replace(raw, ",", ".", 1)
	match := leadingNumber.FindString(s)
	if match == "" {
		c.warn(rec.RowNumber, column, v, "not an amount, defaulted to 0")
		return decimal.Zero
	}
	d, err := decimal.NewFromString(match)
	if err != nil {
		c.warn(rec.RowNumber, column, v, "not an amount, defaulted to 0")
		return decimal.Zero
	}
	if match != s {
		c.warn(rec.RowNumber, column, v, "read as %s", d.String())
	}
	return d
}

func (c *coercer) date(rec NormalizedRecord, column string) string {
	v := rec.Get(column)
	date := ParseDate(v)
	if date == "" {
		c.warn(rec.RowNumber, column, v, "unrecognized date")
	}
	return date
}
