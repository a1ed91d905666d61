package product

import "time"

// Product mirrors the catalog row. SellerUsername is denormalized via a JOIN
// so the chat handshake never needs a second lookup.
type Product struct {
	ProductID      string    `json:"product_id"`
	SellerID       int       `json:"seller_id"`
	SellerUsername string    `json:"seller_username,omitempty"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Price          float64   `json:"price"`
	Stock          int       `json:"stock"`
	CreatedAt      time.Time `json:"created_at"`
}

type CreateRequest struct {
	Name        string  `json:"name" validate:"required,max=250"`
	Description string  `json:"description"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
}
