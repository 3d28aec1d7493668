package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV  = "text/csv"

	templateSheet = "Template"
)

// templateRows holds example values in the kind's column order.
var templateRows = map[Kind][][]any{
	KindSales: {
		{"Caisse 1", "Coca-Cola", "Boissons", 5, 14.00, "Jean", "2024-01-15"},
		{"Caisse 2", "Sandwich Jambon", "Alimentation", 2, 9.00, "Sophie", "2024-01-15"},
	},
	KindStock: {
		{"Coca-Cola", "Boissons", 100},
		{"Sandwich Jambon", "Alimentation", 50},
	},
}

var templateNames = map[Kind]string{
	KindSales: "template_import_ventes",
	KindStock: "template_import_stock",
}

type TemplateFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Template builds a downloadable example file whose header row is the kind's
// canonical schema.
func Template(kind Kind, format string) (TemplateFile, error) {
	if !kind.Valid() {
		return TemplateFile{}, fmt.Errorf("unknown import kind %q", kind)
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "xlsx":
		data, err := xlsxTemplate(kind)
		if err != nil {
			return TemplateFile{}, err
		}
		return TemplateFile{Filename: templateNames[kind] + ".xlsx", ContentType: ContentTypeXLSX, Data: data}, nil
	case "csv":
		data, err := csvTemplate(kind)
		if err != nil {
			return TemplateFile{}, err
		}
		return TemplateFile{Filename: templateNames[kind] + ".csv", ContentType: ContentTypeCSV, Data: data}, nil
	default:
		return TemplateFile{}, fmt.Errorf("unknown template format %q (expected xlsx or csv)", format)
	}
}

func xlsxTemplate(kind Kind) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", templateSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	columns := kind.Columns()
	header := make([]any, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := f.SetSheetRow(templateSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range templateRows[kind] {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := row
		if err := f.SetSheetRow(templateSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write example row: %w", err)
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(templateSheet, "A1", last, style); err != nil {
		return nil, fmt.Errorf("apply header style: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func csvTemplate(kind Kind) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	if err := w.Write(kind.Columns()); err != nil {
		return nil, err
	}
	for _, row := range templateRows[kind] {
		record := make([]string, len(row))
		for i, v := range row {
			switch n := v.(type) {
			case float64:
				record[i] = fmt.Sprintf("%.2f", n)
			default:
				record[i] = fmt.Sprint(n)
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
