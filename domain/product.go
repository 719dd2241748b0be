// Package domain defines core business types and interfaces.
package domain

import (
	"context"
	"time"
)

// Product represents a sellable item
type Product struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name" gorm:"size:100;not null"`
	Price        float64   `json:"price" gorm:"not null"`
	Availability bool      `json:"availability" gorm:"not null"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName returns the table name for Product
func (Product) TableName() string {
	return "products"
}

// Sale is a recorded transaction owning its SaleProducts rows
type Sale struct {
	ID           uint          `json:"id" gorm:"primaryKey"`
	Total        float64       `json:"total" gorm:"not null"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	SaleProducts []SaleProduct `json:"saleProducts" gorm:"foreignKey:SaleID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the table name for Sale
func (Sale) TableName() string {
	return "sales"
}

// SaleProduct joins a Sale with one of the Products it sold
type SaleProduct struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Quantity  int       `json:"quantity" gorm:"not null"`
	SaleID    uint      `json:"sale_id" gorm:"not null;index"`
	ProductID uint      `json:"product_id" gorm:"not null;index"`
	Product   *Product  `json:"product,omitempty" gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the table name for SaleProduct
func (SaleProduct) TableName() string {
	return "sale_products"
}

// SaleLine is one client-supplied entry of a sale: which product and how many
type SaleLine struct {
	ProductID uint `json:"id"`
	Quantity  int  `json:"quantity"`
}

// NewSale builds an unsaved Sale with one SaleProduct per line
func NewSale(total float64, lines []SaleLine) Sale {
	sale := Sale{Total: total, SaleProducts: make([]SaleProduct, 0, len(lines))}
	for _, l := range lines {
		sale.SaleProducts = append(sale.SaleProducts, SaleProduct{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
		})
	}
	return sale
}

// ListFilter allows filtering and sorting results from ListProducts
type ListFilter struct {
	Available *bool
	MinPrice  *float64
	MaxPrice  *float64
	SortBy    string // "id", "name", "price"
	Order     string // "asc" or "desc"
}

// Match reports whether p passes the filter's predicates
func (f ListFilter) Match(p Product) bool {
	if f.Available != nil && p.Availability != *f.Available {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	return true
}

// ValidateProduct checks the invariants every stored product must hold
func ValidateProduct(p Product) error {
	if p.Name == "" {
		return NewInvalidProductError("name", "cannot be empty", p.Name)
	}
	if !(p.Price > 0) {
		return NewInvalidProductError("price", "must be greater than zero", p.Price)
	}
	return nil
}

// ProductStore defines the storage interface for products
type ProductStore interface {
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, error)
	GetProduct(ctx context.Context, id uint) (Product, error)
	CreateProduct(ctx context.Context, product *Product) error
	UpdateProduct(ctx context.Context, product *Product) error
	// SetAvailability stores availability, or flips the stored value when
	// availability is nil, and returns the updated product.
	SetAvailability(ctx context.Context, id uint, availability *bool) (Product, error)
	DeleteProduct(ctx context.Context, id uint) error
	BulkImport(ctx context.Context, products []Product) error
}

// SaleStore defines the storage interface for sales
type SaleStore interface {
	ListSales(ctx context.Context) ([]Sale, error)
	CreateSale(ctx context.Context, sale *Sale) error
}

// Store is the full data access layer handed to the HTTP handlers and the CLI
type Store interface {
	ProductStore
	SaleStore
	Close() error
}
