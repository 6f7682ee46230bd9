package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaar-live/backend/internal/models"
)

const productColumns = `id, vendor_id, title, description, price_cents, currency, image_url, image_s3_key, active, created_at, updated_at`

// Repository handles product persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new product.
func (r *Repository) Create(ctx context.Context, p *models.Product) error {
	const query = `INSERT INTO products (id, vendor_id, title, description, price_cents, currency, image_url, image_s3_key, active)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING id, active, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, p.VendorID, p.Title, p.Description, p.PriceCents, p.Currency, p.ImageURL, p.ImageS3Key).
		Scan(&p.ID, &p.Active, &p.CreatedAt, &p.UpdatedAt)
}

// GetByID returns a product by ID, or nil if not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.VendorID, &p.Title, &p.Description, &p.PriceCents, &p.Currency, &p.ImageURL, &p.ImageS3Key, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetMany returns the products for the given IDs, preserving input order.
func (r *Repository) GetMany(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byID := make(map[uuid.UUID]models.Product, len(ids))
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.VendorID, &p.Title, &p.Description, &p.PriceCents, &p.Currency, &p.ImageURL, &p.ImageS3Key, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var list []models.Product
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			list = append(list, p)
		}
	}
	return list, nil
}

// ListByVendor returns a vendor's products, newest first.
func (r *Repository) ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE vendor_id = $1 ORDER BY created_at DESC`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.VendorID, &p.Title, &p.Description, &p.PriceCents, &p.Currency, &p.ImageURL, &p.ImageS3Key, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Update updates mutable product fields.
func (r *Repository) Update(ctx context.Context, p *models.Product) error {
	const query = `UPDATE products SET title = $2, description = $3, price_cents = $4, currency = $5, active = $6, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	return r.pool.QueryRow(ctx, query, p.ID, p.Title, p.Description, p.PriceCents, p.Currency, p.Active).Scan(&p.UpdatedAt)
}

// SetImage records the uploaded image URL and S3 key for a product.
func (r *Repository) SetImage(ctx context.Context, id uuid.UUID, imageURL, s3Key string) error {
	_, err := r.pool.Exec(ctx, `UPDATE products SET image_url = $2, image_s3_key = $3, updated_at = NOW() WHERE id = $1`, id, imageURL, s3Key)
	return err
}

// Deactivate soft-deletes a product so past session catalogs keep resolving.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE products SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	return err
}
