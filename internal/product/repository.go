package product

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the product does not exist in the catalog.
var ErrNotFound = errors.New("product not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, p *Product) (*Product, error) {
	p.ProductID = uuid.NewString()
	query := `INSERT INTO products (product_id, seller_id, name, description, price, stock)
              VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		p.ProductID, p.SellerID, p.Name, p.Description, p.Price, p.Stock,
	).Scan(&p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetWithSeller fetches a product together with its owning seller's identity.
func (r *Repository) GetWithSeller(ctx context.Context, productID string) (*Product, error) {
	p := &Product{}
	query := `
		SELECT p.product_id, p.seller_id, u.username, p.name, p.description, p.price, p.stock, p.created_at
		FROM products p
		JOIN users u ON p.seller_id = u.id
		WHERE p.product_id = $1
	`
	err := r.db.QueryRowContext(ctx, query, productID).Scan(
		&p.ProductID, &p.SellerID, &p.SellerUsername,
		&p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) List(ctx context.Context, limit int) ([]Product, error) {
	query := `
		SELECT p.product_id, p.seller_id, u.username, p.name, p.description, p.price, p.stock, p.created_at
		FROM products p
		JOIN users u ON p.seller_id = u.id
		ORDER BY p.created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ProductID, &p.SellerID, &p.SellerUsername,
			&p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
