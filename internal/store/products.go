package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/suivivente/apps/api/internal/importer"
)

// UpsertStockLevels sets current_stock for each product, creating unknown
// products with an initial stock equal to the imported quantity.
func (s *Store) UpsertStockLevels(ctx context.Context, levels []importer.StockLevel) (int, error) {
	if len(levels) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, level := range levels {
		batch.Queue(`
			INSERT INTO products (name, category, initial_stock, current_stock)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT ((lower(name))) DO UPDATE
			SET current_stock = EXCLUDED.current_stock,
			    category = COALESCE(NULLIF(EXCLUDED.category, ''), products.category),
			    updated_at = now()
		`, level.Product, level.Category, level.Quantity)
	}
	results := tx.SendBatch(ctx, batch)
	for _, level := range levels {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("upsert stock for %s: %w", level.Product, err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return len(levels), nil
}

type Product struct {
	ID           string
	Name         string
	Category     string
	Subcategory  string
	InitialStock int
	CurrentStock int
	Price        decimal.Decimal
	Threshold    int
	UpdatedAt    time.Time
}

// LowStock reports whether the product reached its alert threshold.
func (p Product) LowStock() bool {
	return p.Threshold > 0 && p.CurrentStock <= p.Threshold
}

func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, name, category, subcategory, initial_stock, current_stock, price::text, threshold, updated_at
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		var price string
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Subcategory, &p.InitialStock, &p.CurrentStock,
			&price, &p.Threshold, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type NewProduct struct {
	Name        string
	Category    string
	Subcategory string
	Stock       int
	Price       decimal.Decimal
	Threshold   int
}

// EnsureProduct inserts the product unless one with the same name exists.
func (s *Store) EnsureProduct(ctx context.Context, p NewProduct) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO products (name, category, subcategory, initial_stock, current_stock, price, threshold)
		VALUES ($1, $2, $3, $4, $4, $5::numeric, $6)
		ON CONFLICT ((lower(name))) DO NOTHING
	`, p.Name, p.Category, p.Subcategory, p.Stock, p.Price.String(), p.Threshold); err != nil {
		return fmt.Errorf("insert product %s: %w", p.Name, err)
	}
	return nil
}
