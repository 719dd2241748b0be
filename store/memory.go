// Package store provides storage implementations for the products API.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"productsapi/domain"
)

// InMemoryStore is a thread-safe in-memory domain.Store
type InMemoryStore struct {
	mu       sync.RWMutex
	products map[uint]domain.Product
	sales    []domain.Sale

	nextProductID uint
	nextSaleID    uint
	nextLineID    uint
}

// NewInMemoryStore constructs a new InMemoryStore
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		products:      make(map[uint]domain.Product),
		nextProductID: 1,
		nextSaleID:    1,
		nextLineID:    1,
	}
}

// compile-time assertion that InMemoryStore implements domain.Store
var _ domain.Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) CreateProduct(ctx context.Context, product *domain.Product) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := domain.ValidateProduct(*product); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertLocked(product)
	return nil
}

func (s *InMemoryStore) insertLocked(product *domain.Product) {
	now := time.Now()
	product.ID = s.nextProductID
	product.CreatedAt = now
	product.UpdatedAt = now
	s.nextProductID++
	s.products[product.ID] = *product
}

func (s *InMemoryStore) GetProduct(ctx context.Context, id uint) (domain.Product, error) {
	select {
	case <-ctx.Done():
		return domain.Product{}, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.NewProductNotFoundError(id)
	}
	return p, nil
}

func (s *InMemoryStore) UpdateProduct(ctx context.Context, product *domain.Product) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := domain.ValidateProduct(*product); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.products[product.ID]
	if !ok {
		return domain.NewProductNotFoundError(product.ID)
	}
	product.CreatedAt = old.CreatedAt
	product.UpdatedAt = time.Now()
	s.products[product.ID] = *product
	return nil
}

func (s *InMemoryStore) SetAvailability(ctx context.Context, id uint, availability *bool) (domain.Product, error) {
	select {
	case <-ctx.Done():
		return domain.Product{}, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.NewProductNotFoundError(id)
	}
	if availability != nil {
		p.Availability = *availability
	} else {
		p.Availability = !p.Availability
	}
	p.UpdatedAt = time.Now()
	s.products[id] = p
	return p, nil
}

func (s *InMemoryStore) DeleteProduct(ctx context.Context, id uint) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return domain.NewProductNotFoundError(id)
	}
	for _, sale := range s.sales {
		for _, line := range sale.SaleProducts {
			if line.ProductID == id {
				return domain.NewProductInUseError(id)
			}
		}
	}
	delete(s.products, id)
	return nil
}

func (s *InMemoryStore) ListProducts(ctx context.Context, filter domain.ListFilter) ([]domain.Product, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.Match(p) {
			out = append(out, p)
		}
	}

	desc := filter.Order == "desc"
	switch filter.SortBy {
	case "name":
		sort.Slice(out, func(i, j int) bool {
			if desc {
				return out[i].Name > out[j].Name
			}
			return out[i].Name < out[j].Name
		})
	case "price":
		sort.Slice(out, func(i, j int) bool {
			if desc {
				return out[i].Price > out[j].Price
			}
			return out[i].Price < out[j].Price
		})
	default:
		sort.Slice(out, func(i, j int) bool {
			if desc {
				return out[i].ID > out[j].ID
			}
			return out[i].ID < out[j].ID
		})
	}

	return out, nil
}

// BulkImport stores every valid product and reports the invalid ones.
// Imported products always receive fresh ids.
func (s *InMemoryStore) BulkImport(ctx context.Context, products []domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i := range products {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := products[i]
		if err := domain.ValidateProduct(p); err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		s.insertLocked(&p)
	}
	return errors.Join(errs...)
}

func (s *InMemoryStore) ListSales(ctx context.Context) ([]domain.Sale, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		out = append(out, s.hydrateLocked(sale))
	}
	return out, nil
}

// CreateSale records the sale and its lines atomically: nothing is stored
// when any line references an unknown product.
func (s *InMemoryStore) CreateSale(ctx context.Context, sale *domain.Sale) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range sale.SaleProducts {
		if _, ok := s.products[line.ProductID]; !ok {
			return domain.NewProductNotFoundError(line.ProductID)
		}
	}

	now := time.Now()
	sale.ID = s.nextSaleID
	sale.CreatedAt = now
	sale.UpdatedAt = now
	s.nextSaleID++

	lines := make([]domain.SaleProduct, 0, len(sale.SaleProducts))
	for _, line := range sale.SaleProducts {
		line.ID = s.nextLineID
		line.SaleID = sale.ID
		line.Product = nil
		line.CreatedAt = now
		line.UpdatedAt = now
		s.nextLineID++
		lines = append(lines, line)
	}
	stored := *sale
	stored.SaleProducts = lines
	s.sales = append(s.sales, stored)

	*sale = s.hydrateLocked(stored)
	return nil
}

// hydrateLocked returns a copy of sale whose lines carry their products.
func (s *InMemoryStore) hydrateLocked(sale domain.Sale) domain.Sale {
	lines := make([]domain.SaleProduct, len(sale.SaleProducts))
	for i, line := range sale.SaleProducts {
		if p, ok := s.products[line.ProductID]; ok {
			line.Product = &p
		}
		lines[i] = line
	}
	sale.SaleProducts = lines
	return sale
}

// Close is a no-op for the in-memory store
func (s *InMemoryStore) Close() error {
	return nil
}
