package importer

import (
	"errors"
	"strings"
	"testing"
)

func rawRecord(pairs ...string) RawRecord {
	var r RawRecord
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Fields = append(r.Fields, Field{Key: pairs[i], Value: StringValue(pairs[i+1])})
	}
	return r
}

func TestNormalizeHeader(t *testing.T) {
	for _, input := range []string{"produit", "Produit", "Prôduit ", "PRODUIT ", " Pröduit", "PRODUIT"} {
		t.Run(input, func(t *testing.T) {
			if got := NormalizeHeader(input); got != "PRODUIT" {
				t.Errorf("NormalizeHeader(%q) = %q", input, got)
			}
		})
	}
	if got := NormalizeHeader("Quantité"); got != "QUANTITE" {
		t.Errorf("Quantité: got %q", got)
	}
}

func TestNormalizeRekeysToCanonicalColumns(t *testing.T) {
	records := []RawRecord{
		rawRecord("Prôduit ", "Eau", "types", "Boissons", "Quantité", "4", "Note", "promo"),
		rawRecord("Prôduit ", "Pain", "types", "Boulangerie", "Quantité", "2", "Note", ""),
	}
	got, err := Normalize(records, KindStock)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Text(ColumnProduct) != "Eau" || got[0].Text(ColumnCategory) != "Boissons" || got[0].Text(ColumnQuantity) != "4" {
		t.Fatalf("unexpected values: %+v", got[0])
	}
	if got[0].Text("Note") != "promo" {
		t.Fatalf("non-schema key should be kept unchanged")
	}
	if got[0].RowNumber != 2 || got[1].RowNumber != 3 {
		t.Fatalf("row numbers: %d, %d", got[0].RowNumber, got[1].RowNumber)
	}
}

func TestNormalizeFillsEveryColumn(t *testing.T) {
	records := []RawRecord{
		rawRecord("PRODUIT", "Eau", "TYPES", "Boissons", "QUANTITE", "1"),
		rawRecord("PRODUIT", "Pain"),
	}
	got, err := Normalize(records, KindStock)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	var keys []string
	for _, f := range got[1].Fields {
		keys = append(keys, f.Key)
	}
	if strings.Join(keys, ",") != "PRODUIT,TYPES,QUANTITE" {
		t.Fatalf("expected every schema column on the short row, got %v", keys)
	}
}

func TestNormalizeMissingColumns(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		records := []RawRecord{rawRecord("Caisse", "1", "Produit", "Eau", "Types", "B", "Quantite", "1", "Montant", "2", "Date", "2024-01-01")}
		_, err := Normalize(records, KindSales)
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
		if strings.Join(schemaErr.Missing, ",") != "VENDEUR" {
			t.Fatalf("missing: %v", schemaErr.Missing)
		}
	})

	t.Run("several in schema order", func(t *testing.T) {
		records := []RawRecord{rawRecord("produit", "Eau", "montant", "2")}
		_, err := Normalize(records, KindSales)
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("expected SchemaError, got %v", err)
		}
		want := "CAISSE,TYPES,QUANTITE,VENDEUR,DATE"
		if strings.Join(schemaErr.Missing, ",") != want {
			t.Fatalf("missing: got %v, want %s", schemaErr.Missing, want)
		}
		if err.Error() != "missing columns: CAISSE, TYPES, QUANTITE, VENDEUR, DATE" {
			t.Fatalf("message: %q", err.Error())
		}
	})

	t.Run("only the first row decides", func(t *testing.T) {
		records := []RawRecord{
			rawRecord("PRODUIT", "Eau", "TYPES", "B"),
			rawRecord("PRODUIT", "Eau", "TYPES", "B", "QUANTITE", "3"),
		}
		if _, err := Normalize(records, KindStock); err == nil {
			t.Fatal("expected SchemaError from first row header set")
		}
	})
}
