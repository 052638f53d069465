package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pricetrack/models"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when no product has the requested id or URL.
	ErrNotFound = errors.New("product not found")
	// ErrDuplicate is returned when the URL is already tracked.
	ErrDuplicate = errors.New("product already tracked")
)

const uniqueViolation = "23505"

const productColumns = `id, url, name, current_price, original_price, currency, on_sale, last_checked, created_at, updated_at`

// ProductRepository stores tracked products and their price history.
type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.ID, &p.URL, &p.Name,
		&p.CurrentPrice, &p.OriginalPrice, &p.Currency, &p.OnSale,
		&p.LastChecked, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AddProduct starts tracking url with its first snapshot. The product row
// and the first history row are written in one transaction.
func (r *ProductRepository) AddProduct(ctx context.Context, url string, snap *models.PriceSnapshot) (*models.Product, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO products (url, name, current_price, original_price, currency, on_sale, last_checked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $7)
		RETURNING ` + productColumns

	product, err := scanProduct(tx.QueryRowContext(ctx, query,
		url, snap.Name, snap.CurrentPrice, snap.OriginalPrice, snap.Currency, snap.OnSale, snap.FetchedAt,
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to add product: %w", err)
	}

	if err := insertHistory(ctx, tx, product.ID, snap); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit product: %w", err)
	}
	return product, nil
}

// ListProducts returns all tracked products, newest first.
func (r *ProductRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// GetProduct returns a product by id.
func (r *ProductRepository) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetProductByURL returns the product tracking url.
func (r *ProductRepository) GetProductByURL(ctx context.Context, url string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE url = $1`
	return r.getOne(ctx, query, url)
}

func (r *ProductRepository) getOne(ctx context.Context, query string, arg any) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// RecordSnapshot stores a new price check: the product's current fields are
// updated and a history row is appended in one transaction.
func (r *ProductRepository) RecordSnapshot(ctx context.Context, id int, snap *models.PriceSnapshot) (*models.Product, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE products
		SET name = $2, current_price = $3, original_price = $4, currency = $5, on_sale = $6, last_checked = $7, updated_at = $7
		WHERE id = $1
		RETURNING ` + productColumns

	product, err := scanProduct(tx.QueryRowContext(ctx, query,
		id, snap.Name, snap.CurrentPrice, snap.OriginalPrice, snap.Currency, snap.OnSale, snap.FetchedAt,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update product price: %w", err)
	}

	if err := insertHistory(ctx, tx, id, snap); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit price check: %w", err)
	}
	return product, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, productID int, snap *models.PriceSnapshot) error {
	query := `
		INSERT INTO price_history (product_id, price, original_price, currency, on_sale, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		productID, snap.CurrentPrice, snap.OriginalPrice, snap.Currency, snap.OnSale, snap.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record price history: %w", err)
	}
	return nil
}

// GetPriceHistory returns up to limit price points for a product, newest
// first.
func (r *ProductRepository) GetPriceHistory(ctx context.Context, productID, limit int) ([]models.PriceHistory, error) {
	query := `
		SELECT id, product_id, price, original_price, currency, on_sale, checked_at
		FROM price_history
		WHERE product_id = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	defer rows.Close()

	history := []models.PriceHistory{}
	for rows.Next() {
		var h models.PriceHistory
		if err := rows.Scan(&h.ID, &h.ProductID, &h.Price, &h.OriginalPrice, &h.Currency, &h.OnSale, &h.CheckedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// DeleteProduct stops tracking a product. Its history is removed with it.
func (r *ProductRepository) DeleteProduct(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
