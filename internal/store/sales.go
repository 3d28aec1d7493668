package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/suivivente/apps/api/internal/importer"
)

func (s *Store) FindExistingSales(ctx context.Context, importKeys []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(importKeys) == 0 {
		return found, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT import_key FROM sales WHERE import_key = ANY($1)`, importKeys)
	if err != nil {
		return nil, fmt.Errorf("query existing sales: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan existing sales: %w", err)
	}
	for _, k := range keys {
		found[k] = struct{}{}
	}
	return found, nil
}

// InsertSales writes the batch and decrements product stock in a single
// transaction. Rows whose import key is already stored are skipped and do
// not touch stock; the returned keys cover inserted rows only.
func (s *Store) InsertSales(ctx context.Context, sales []importer.Sale) ([]string, error) {
	if len(sales) == 0 {
		return nil, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	deltas := map[string]int{}
	inserted := make([]string, 0, len(sales))
	for _, sale := range sales {
		var product, key string
		var quantity int
		err := tx.QueryRow(ctx, `
			INSERT INTO sales (date, product, category, subcategory, price, quantity, total, seller, register, import_key)
			VALUES ($1::date, $2, $3, $4, $5::numeric, $6, $7::numeric, $8, $9, $10)
			ON CONFLICT (import_key) DO NOTHING
			RETURNING product, quantity, import_key
		`, sale.Date, sale.Product, sale.Category, sale.Subcategory, sale.Price.String(), sale.Quantity,
			sale.Total.String(), sale.Seller, sale.Register, sale.ImportKey).Scan(&product, &quantity, &key)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert sale row %d: %w", sale.SourceRow, err)
		}
		deltas[strings.ToLower(product)] += quantity
		inserted = append(inserted, key)
	}

	// one statement per product, in a stable order so concurrent batches lock alike
	products := make([]string, 0, len(deltas))
	for p := range deltas {
		products = append(products, p)
	}
	sort.Strings(products)
	for _, p := range products {
		if _, err := tx.Exec(ctx, `
			UPDATE products
			SET current_stock = current_stock - $2, updated_at = now()
			WHERE lower(name) = $1
		`, p, deltas[p]); err != nil {
			return nil, fmt.Errorf("update stock for %s: %w", p, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

type SaleRow struct {
	ID          string
	Date        time.Time
	Product     string
	Category    string
	Subcategory string
	Price       decimal.Decimal
	Quantity    int
	Total       decimal.Decimal
	Seller      string
	Register    string
	CreatedAt   time.Time
}

// SalesFilter bounds an export by sale date, inclusive. Zero values are open.
type SalesFilter struct {
	From time.Time
	To   time.Time
}

func (s *Store) ListSales(ctx context.Context, filter SalesFilter) ([]SaleRow, error) {
	var from, to *time.Time
	if !filter.From.IsZero() {
		from = &filter.From
	}
	if !filter.To.IsZero() {
		to = &filter.To
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, date, product, category, subcategory, price::text, quantity, total::text, seller, register, created_at
		FROM sales
		WHERE ($1::date IS NULL OR date >= $1::date)
		  AND ($2::date IS NULL OR date <= $2::date)
		ORDER BY date, created_at
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	var out []SaleRow
	for rows.Next() {
		var row SaleRow
		var price, total string
		if err := rows.Scan(&row.ID, &row.Date, &row.Product, &row.Category, &row.Subcategory, &price,
			&row.Quantity, &total, &row.Seller, &row.Register, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		if row.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if row.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
