package importer

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const defaultRegister = "Import"

// Sale is a sales row shaped for the storage collaborator.
type Sale struct {
	Date        string          `json:"date"`
	Product     string          `json:"product"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
	Seller      string          `json:"seller"`
	Register    string          `json:"register"`
	ImportKey   string          `json:"importKey"`
	SourceRow   int             `json:"sourceRow"`
}

// StockLevel sets the on-hand quantity of a product.
type StockLevel struct {
	Product   string `json:"product"`
	Category  string `json:"category"`
	Quantity  int    `json:"quantity"`
	SourceRow int    `json:"sourceRow"`
}

// SaleKey identifies a sale across imports. It is built from the same
// canonical columns as the in-batch key, over the coerced values, so that
// "14,00" and 14 name the same amount once persisted.
func SaleKey(s Sale) string {
	return strings.Join([]string{
		keyPart(s.Register),
		keyPart(s.Product),
		keyPart(s.Category),
		strconv.Itoa(s.Quantity),
		s.Total.String(),
		keyPart(s.Seller),
		s.Date,
	}, keySeparator)
}

// ToSales converts classified records into sales. The unit price is derived
// from the line total since files carry totals only.
func ToSales(records []ClassifiedRecord) ([]Sale, []Warning) {
	c := &coercer{}
	sales := make([]Sale, 0, len(records))
	for _, rec := range records {
		quantity := c.quantity(rec.NormalizedRecord, ColumnQuantity)
		total := c.amount(rec.NormalizedRecord, ColumnAmount)
		price := decimal.Zero
		if quantity > 0 {
			price = total.Div(decimal.NewFromInt(int64(quantity)))
		}

		register := strings.TrimSpace(rec.Text(ColumnRegister))
		if register == "" {
			register = defaultRegister
		}

		s := Sale{
			Date:        c.date(rec.NormalizedRecord, ColumnDate),
			Product:     strings.TrimSpace(rec.Text(ColumnProduct)),
			Category:    strings.TrimSpace(rec.Text(ColumnCategory)),
			Subcategory: "",
			Price:       price,
			Quantity:    quantity,
			Total:       total,
			Seller:      strings.TrimSpace(rec.Text(ColumnSeller)),
			Register:    register,
			SourceRow:   rec.RowNumber,
		}
		s.ImportKey = SaleKey(s)
		sales = append(sales, s)
	}
	return sales, c.warnings
}

func ToStockLevels(records []ClassifiedRecord) ([]StockLevel, []Warning) {
	c := &coercer{}
	levels := make([]StockLevel, 0, len(records))
	for _, rec := range records {
		levels = append(levels, StockLevel{
			Product:   strings.TrimSpace(rec.Text(ColumnProduct)),
			Category:  strings.TrimSpace(rec.Text(ColumnCategory)),
			Quantity:  c.quantity(rec.NormalizedRecord, ColumnQuantity),
			SourceRow: rec.RowNumber,
		})
	}
	return levels, c.warnings
}

// missingSaleFields lists what keeps a sale from being committed.
func missingSaleFields(s Sale) []string {
	var missing []string
	if s.Date == "" {
		missing = append(missing, "date")
	}
	if s.Product == "" {
		missing = append(missing, "product")
	}
	if s.Seller == "" {
		missing = append(missing, "seller")
	}
	if s.Quantity <= 0 {
		missing = append(missing, "quantity")
	}
	if !s.Total.IsPositive() {
		missing = append(missing, "total")
	}
	return missing
}
