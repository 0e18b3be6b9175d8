// Package postgres reads the product catalog from PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/repressales/salescart/internal/domain"
	"github.com/repressales/salescart/pkg/database"
	apperrors "github.com/repressales/salescart/pkg/errors"
)

const productColumns = `id, name, article, category, price::text, price_wholesale::text, stock_count`

// Source implements catalog.Source over a products table.
type Source struct {
	db database.DBTX
}

// NewSource creates a PostgreSQL-backed catalog source.
func NewSource(db database.DBTX) *Source {
	return &Source{db: db}
}

// Get retrieves one product by ID.
func (s *Source) Get(ctx context.Context, productID string) (p *domain.ProductEntry, err error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetProduct", query)
	defer func() { end(err) }()

	entry, err := scanProduct(s.db.QueryRow(ctx, query, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", productID)
		}
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	return &entry, nil
}

// GetMany retrieves the products among ids that exist.
func (s *Source) GetMany(ctx context.Context, ids []string) (out map[string]domain.ProductEntry, err error) {
	out = make(map[string]domain.ProductEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	ctx, end := database.TraceQuery(ctx, "GetProducts", query)
	defer func() { end(err) }()

	rows, err := s.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[entry.ProductID] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

// List returns a page of products ordered by name, then ID.
func (s *Source) List(ctx context.Context, offset, limit int) (items []domain.ProductEntry, total int, err error) {
	query := `SELECT ` + productColumns + `, COUNT(*) OVER() AS total_count
		FROM products
		ORDER BY name, id
		LIMIT $1 OFFSET $2`

	ctx, end := database.TraceQuery(ctx, "ListProducts", query)
	defer func() { end(err) }()

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	items = []domain.ProductEntry{}
	for rows.Next() {
		var (
			row      productRow
			rowTotal int
		)
		if err := rows.Scan(append(row.dest(), &rowTotal)...); err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		entry, err := row.entry()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, entry)
		total = rowTotal
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate products: %w", err)
	}

	// A page past the end returns no rows, so the window count is lost.
	if len(items) == 0 && offset > 0 {
		if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count products: %w", err)
		}
	}
	return items, total, nil
}

// Ping checks the database answers queries.
func (s *Source) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping catalog database: %w", err)
	}
	return nil
}

// productRow holds the raw column values of one products row.
type productRow struct {
	id, name, article, category string
	price, priceWholesale       *string
	stock                       int
}

func (r *productRow) dest() []any {
	return []any{&r.id, &r.name, &r.article, &r.category, &r.price, &r.priceWholesale, &r.stock}
}

func (r *productRow) entry() (domain.ProductEntry, error) {
	price, err := parseDecimal(r.price)
	if err != nil {
		return domain.ProductEntry{}, fmt.Errorf("product %s price: %w", r.id, err)
	}
	wholesale, err := parseDecimal(r.priceWholesale)
	if err != nil {
		return domain.ProductEntry{}, fmt.Errorf("product %s wholesale price: %w", r.id, err)
	}
	return domain.ProductEntry{
		ProductID:      r.id,
		Name:           r.name,
		Article:        r.article,
		Category:       r.category,
		Price:          price,
		PriceWholesale: wholesale,
		StockCount:     r.stock,
	}, nil
}

func scanProduct(row pgx.Row) (domain.ProductEntry, error) {
	var r productRow
	if err := row.Scan(r.dest()...); err != nil {
		return domain.ProductEntry{}, err
	}
	return r.entry()
}

func parseDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
