package importer

import (
	"fmt"
	"strings"
)

// Kind selects the canonical schema and the transformation rules of an import.
type Kind string

const (
	KindSales Kind = "sales"
	KindStock Kind = "stock"
)

const (
	ColumnRegister = "CAISSE"
	ColumnProduct  = "PRODUIT"
	ColumnCategory = "TYPES"
	ColumnQuantity = "QUANTITE"
	ColumnAmount   = "MONTANT"
	ColumnSeller   = "VENDEUR"
	ColumnDate     = "DATE"
)

var (
	salesColumns = []string{ColumnRegister, ColumnProduct, ColumnCategory, ColumnQuantity, ColumnAmount, ColumnSeller, ColumnDate}
	stockColumns = []string{ColumnProduct, ColumnCategory, ColumnQuantity}
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindSales:
		return KindSales, nil
	case KindStock:
		return KindStock, nil
	default:
		return "", fmt.Errorf("unknown import kind %q (expected sales or stock)", raw)
	}
}

// Columns returns a copy of the kind's required columns in schema order.
func (k Kind) Columns() []string {
	var cols []string
	switch k {
	case KindSales:
		cols = salesColumns
	case KindStock:
		cols = stockColumns
	}
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}

func (k Kind) Valid() bool {
	return k == KindSales || k == KindStock
}

func (k Kind) auditAction() string {
	return "import_" + string(k)
}
