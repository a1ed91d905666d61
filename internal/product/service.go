package product

import "context"

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, sellerID int, req *CreateRequest) (*Product, error) {
	p := &Product{
		SellerID:    sellerID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, productID string) (*Product, error) {
	return s.repo.GetWithSeller(ctx, productID)
}

func (s *Service) List(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.List(ctx, limit)
}

// GetProductWithSeller satisfies the chat handshake's product lookup.
// Flat returns keep the chat package free of a product import.
func (s *Service) GetProductWithSeller(ctx context.Context, productID string) (sellerID int, sellerUsername, productName string, err error) {
	p, err := s.repo.GetWithSeller(ctx, productID)
	if err != nil {
		return 0, "", "", err
	}
	return p.SellerID, p.SellerUsername, p.Name, nil
}
