package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/siprems/backend-go/internal/domain"
	"github.com/siprems/backend-go/internal/repository"
)

type productRepository struct {
	db *DB
}

func NewProductRepository(db *DB) repository.ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	release, err := r.db.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `SELECT sku, name, stock FROM products WHERE sku = $1`

	var product domain.Product
	if err := r.db.GetContext(ctx, &product, query, sku); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, sku)
		}
		return nil, fmt.Errorf("failed to fetch product %s: %w", sku, err)
	}

	return &product, nil
}

func (r *productRepository) ListSKUs(ctx context.Context) ([]string, error) {
	release, err := r.db.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var skus []string
	if err := r.db.SelectContext(ctx, &skus, `SELECT sku FROM products ORDER BY sku ASC`); err != nil {
		return nil, fmt.Errorf("failed to list product SKUs: %w", err)
	}

	return skus, nil
}
