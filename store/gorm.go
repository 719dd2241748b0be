package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"productsapi/domain"
)

const importBatchSize = 100

// Migrator is implemented by stores that own a schema
type Migrator interface {
	Migrate(ctx context.Context) error
}

// GormStore is a relational domain.Store backed by GORM
type GormStore struct {
	db *gorm.DB
}

// compile-time assertions
var (
	_ domain.Store = (*GormStore)(nil)
	_ Migrator     = (*GormStore)(nil)
)

// NewGormStore opens a connection through the given dialector.
// SQL statements are only logged when verbose is set.
func NewGormStore(dialector gorm.Dialector, verbose bool) (*GormStore, error) {
	level := logger.Silent
	if verbose {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SQLiteDialector returns a SQLite dialector with foreign keys enforced.
func SQLiteDialector(path string) gorm.Dialector {
	if !strings.Contains(path, "_foreign_keys=") && !strings.Contains(path, "_fk=") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + "_foreign_keys=on"
	}
	return sqlite.Open(path)
}

// MySQLDialector returns a MySQL dialector; the DSN is forced to parse
// DATETIME columns into time.Time.
func MySQLDialector(dsn string) (gorm.Dialector, error) {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return mysql.Open(cfg.FormatDSN()), nil
}

// Migrate creates or updates the products, sales and sale_products tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(&domain.Product{}, &domain.Sale{}, &domain.SaleProduct{})
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *GormStore) ListProducts(ctx context.Context, filter domain.ListFilter) ([]domain.Product, error) {
	q := s.db.WithContext(ctx).Model(&domain.Product{})
	if filter.Available != nil {
		q = q.Where("availability = ?", *filter.Available)
	}
	if filter.MinPrice != nil {
		q = q.Where("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		q = q.Where("price <= ?", *filter.MaxPrice)
	}

	column := "id"
	switch filter.SortBy {
	case "name", "price":
		column = filter.SortBy
	}
	q = q.Order(clause.OrderByColumn{
		Column: clause.Column{Name: column},
		Desc:   filter.Order == "desc",
	})

	products := []domain.Product{}
	if err := q.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *GormStore) GetProduct(ctx context.Context, id uint) (domain.Product, error) {
	var p domain.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return domain.Product{}, productErr(id, err)
	}
	return p, nil
}

func (s *GormStore) CreateProduct(ctx context.Context, product *domain.Product) error {
	if err := domain.ValidateProduct(*product); err != nil {
		return err
	}
	product.ID = 0
	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (s *GormStore) UpdateProduct(ctx context.Context, product *domain.Product) error {
	if err := domain.ValidateProduct(*product); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Product
		if err := tx.First(&existing, product.ID).Error; err != nil {
			return productErr(product.ID, err)
		}
		product.CreatedAt = existing.CreatedAt
		if err := tx.Save(product).Error; err != nil {
			return fmt.Errorf("update product %d: %w", product.ID, err)
		}
		return nil
	})
}

// SetAvailability toggles with a single UPDATE so concurrent calls never
// read a stale value.
func (s *GormStore) SetAvailability(ctx context.Context, id uint, availability *bool) (domain.Product, error) {
	var product domain.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Product{}).Where("id = ?", id)
		if availability != nil {
			res = res.Update("availability", *availability)
		} else {
			res = res.Update("availability", gorm.Expr("NOT availability"))
		}
		if res.Error != nil {
			return fmt.Errorf("update availability of product %d: %w", id, res.Error)
		}
		if err := tx.First(&product, id).Error; err != nil {
			return productErr(id, err)
		}
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (s *GormStore) DeleteProduct(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Product
		if err := tx.First(&existing, id).Error; err != nil {
			return productErr(id, err)
		}

		var refs int64
		if err := tx.Model(&domain.SaleProduct{}).Where("product_id = ?", id).Count(&refs).Error; err != nil {
			return fmt.Errorf("count sales of product %d: %w", id, err)
		}
		if refs > 0 {
			return domain.NewProductInUseError(id)
		}

		if err := tx.Delete(&domain.Product{}, id).Error; err != nil {
			return fmt.Errorf("delete product %d: %w", id, err)
		}
		return nil
	})
}

// BulkImport inserts the valid products in one transaction and reports
// the invalid ones alongside any insert failure.
func (s *GormStore) BulkImport(ctx context.Context, products []domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var errs []error
	valid := make([]domain.Product, 0, len(products))
	for i, p := range products {
		if err := domain.ValidateProduct(p); err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		p.ID = 0
		valid = append(valid, p)
	}

	if len(valid) > 0 {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(&valid, importBatchSize).Error
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("import products: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *GormStore) ListSales(ctx context.Context) ([]domain.Sale, error) {
	sales := []domain.Sale{}
	err := s.preloadSales(s.db.WithContext(ctx)).
		Order("id").
		Find(&sales).Error
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return sales, nil
}

// CreateSale writes the sale row and then its lines in a single
// transaction, after checking every referenced product exists.
func (s *GormStore) CreateSale(ctx context.Context, sale *domain.Sale) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkProductsExist(tx, sale.SaleProducts); err != nil {
			return err
		}

		lines := sale.SaleProducts
		sale.ID = 0
		if err := tx.Omit(clause.Associations).Create(sale).Error; err != nil {
			return fmt.Errorf("create sale: %w", err)
		}

		if len(lines) > 0 {
			for i := range lines {
				lines[i].ID = 0
				lines[i].SaleID = sale.ID
				lines[i].Product = nil
			}
			if err := tx.Omit(clause.Associations).CreateInBatches(&lines, importBatchSize).Error; err != nil {
				return fmt.Errorf("create sale products: %w", err)
			}
		}

		var loaded domain.Sale
		if err := s.preloadSales(tx).First(&loaded, sale.ID).Error; err != nil {
			return fmt.Errorf("reload sale %d: %w", sale.ID, err)
		}
		*sale = loaded
		return nil
	})
}

// Close releases the underlying connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) preloadSales(db *gorm.DB) *gorm.DB {
	return db.
		Preload("SaleProducts", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("SaleProducts.Product")
}

func checkProductsExist(tx *gorm.DB, lines []domain.SaleProduct) error {
	if len(lines) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}

	var found []uint
	if err := tx.Model(&domain.Product{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return fmt.Errorf("check sale products: %w", err)
	}
	known := make(map[uint]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return domain.NewProductNotFoundError(id)
		}
	}
	return nil
}

func productErr(id uint, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewProductNotFoundError(id)
	}
	return fmt.Errorf("load product %d: %w", id, err)
}
