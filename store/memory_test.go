package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"productsapi/domain"
)

func TestCreateProductValidation_TableDriven(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	cases := []struct {
		name    string
		product domain.Product
		wantErr bool
	}{
		{"empty name", domain.Product{Name: "", Price: 1}, true},
		{"zero price", domain.Product{Name: "A", Price: 0}, true},
		{"negative price", domain.Product{Name: "A", Price: -1}, true},
		{"valid", domain.Product{Name: "A", Price: 1, Availability: true}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.product
			err := s.CreateProduct(ctx, &p)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for case %s", tc.name)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.wantErr && p.ID == 0 {
				t.Fatalf("expected id to be assigned")
			}
		})
	}
}

func TestCreateProduct_AssignsSequentialIDs(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	a := domain.Product{Name: "A", Price: 1}
	b := domain.Product{Name: "B", Price: 2}
	if err := s.CreateProduct(ctx, &a); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateProduct(ctx, &b); err != nil {
		t.Fatal(err)
	}
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", a.ID, b.ID)
	}
	if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set")
	}
}

func TestGetUpdateDelete_NotFoundAndInvalid(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	t.Run("get not found", func(t *testing.T) {
		_, err := s.GetProduct(ctx, 2000)
		if !domain.IsProductNotFoundError(err) {
			t.Fatalf("expected ProductNotFoundError, got %v", err)
		}
	})

	t.Run("update not found", func(t *testing.T) {
		err := s.UpdateProduct(ctx, &domain.Product{ID: 2000, Name: "A", Price: 1})
		if !domain.IsProductNotFoundError(err) {
			t.Fatalf("expected ProductNotFoundError, got %v", err)
		}
	})

	t.Run("delete not found", func(t *testing.T) {
		err := s.DeleteProduct(ctx, 2000)
		if !domain.IsProductNotFoundError(err) {
			t.Fatalf("expected ProductNotFoundError, got %v", err)
		}
	})

	p := domain.Product{Name: "V", Price: 2, Availability: true}
	if err := s.CreateProduct(ctx, &p); err != nil {
		t.Fatalf("setup create failed: %v", err)
	}
	t.Run("update invalid", func(t *testing.T) {
		if err := s.UpdateProduct(ctx, &domain.Product{ID: p.ID, Name: "", Price: 1}); !domain.IsInvalidProductError(err) {
			t.Fatalf("expected InvalidProductError, got %v", err)
		}
	})

	t.Run("update keeps creation time", func(t *testing.T) {
		upd := domain.Product{ID: p.ID, Name: "W", Price: 3, Availability: false}
		if err := s.UpdateProduct(ctx, &upd); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		got, _ := s.GetProduct(ctx, p.ID)
		if got.Name != "W" || got.Availability {
			t.Fatalf("update not applied: %+v", got)
		}
		if !got.CreatedAt.Equal(p.CreatedAt) {
			t.Fatalf("createdAt changed on update")
		}
	})

	t.Run("delete twice", func(t *testing.T) {
		if err := s.DeleteProduct(ctx, p.ID); err != nil {
			t.Fatalf("first delete failed: %v", err)
		}
		if err := s.DeleteProduct(ctx, p.ID); !domain.IsProductNotFoundError(err) {
			t.Fatalf("expected ProductNotFoundError on second delete, got %v", err)
		}
	})
}

func TestListProductsSortingAndFiltering(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for _, p := range []domain.Product{
		{Name: "Alpha", Price: 5, Availability: true},
		{Name: "Beta", Price: 2, Availability: false},
		{Name: "Gamma", Price: 9, Availability: true},
	} {
		p := p
		_ = s.CreateProduct(ctx, &p)
	}

	t.Run("default order is by id", func(t *testing.T) {
		out, err := s.ListProducts(ctx, domain.ListFilter{})
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(out) != 3 || out[0].ID != 1 || out[2].ID != 3 {
			t.Fatalf("unexpected order: %+v", out)
		}
	})

	t.Run("filter by availability", func(t *testing.T) {
		yes := true
		out, _ := s.ListProducts(ctx, domain.ListFilter{Available: &yes})
		if len(out) != 2 {
			t.Fatalf("expected 2, got %d", len(out))
		}
	})

	t.Run("sort by price desc", func(t *testing.T) {
		out, _ := s.ListProducts(ctx, domain.ListFilter{SortBy: "price", Order: "desc"})
		if len(out) < 3 || out[0].Price < out[1].Price {
			t.Fatalf("unexpected sort order by price desc")
		}
	})
}

func TestCreateSale(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	p := domain.Product{Name: "Teclado", Price: 20, Availability: true}
	_ = s.CreateProduct(ctx, &p)

	t.Run("unknown product stores nothing", func(t *testing.T) {
		sale := domain.NewSale(20, []domain.SaleLine{{ProductID: p.ID, Quantity: 1}, {ProductID: 99, Quantity: 1}})
		err := s.CreateSale(ctx, &sale)
		var pnf *domain.ProductNotFoundError
		if !errors.As(err, &pnf) || pnf.ProductID != 99 {
			t.Fatalf("expected not found for 99, got %v", err)
		}
		sales, _ := s.ListSales(ctx)
		if len(sales) != 0 {
			t.Fatalf("expected no sales stored, got %d", len(sales))
		}
	})

	t.Run("lines are linked and hydrated", func(t *testing.T) {
		sale := domain.NewSale(40, []domain.SaleLine{{ProductID: p.ID, Quantity: 2}})
		if err := s.CreateSale(ctx, &sale); err != nil {
			t.Fatalf("create sale failed: %v", err)
		}
		if sale.ID == 0 || sale.SaleProducts[0].SaleID != sale.ID {
			t.Fatalf("sale ids not linked: %+v", sale)
		}
		if sale.SaleProducts[0].Product == nil || sale.SaleProducts[0].Product.Name != "Teclado" {
			t.Fatalf("product not hydrated: %+v", sale.SaleProducts[0])
		}

		sales, _ := s.ListSales(ctx)
		if len(sales) != 1 || sales[0].SaleProducts[0].Quantity != 2 {
			t.Fatalf("unexpected sales listing: %+v", sales)
		}
	})

	t.Run("sold product cannot be deleted", func(t *testing.T) {
		if err := s.DeleteProduct(ctx, p.ID); !domain.IsProductInUseError(err) {
			t.Fatalf("expected ProductInUseError, got %v", err)
		}
	})
}

func TestBulkImport_ErrorsAndCancellation(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	products := []domain.Product{
		{Name: "A", Price: 1, Availability: true},
		{Name: "", Price: 1},
		{Name: "C", Price: 3},
	}
	err := s.BulkImport(ctx, products)
	if err == nil || !domain.IsInvalidProductError(err) {
		t.Fatalf("expected invalid product error, got %v", err)
	}
	out, _ := s.ListProducts(ctx, domain.ListFilter{})
	if len(out) != 2 {
		t.Fatalf("expected valid products to be imported, got %d", len(out))
	}

	canceledCtx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.BulkImport(canceledCtx, []domain.Product{{Name: "N", Price: 1}}); err == nil {
		t.Fatalf("expected context error on canceled context")
	}
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	var wg sync.WaitGroup

	n := 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			p := domain.Product{Name: "X", Price: 1.0, Availability: true}
			_ = s.CreateProduct(ctx, &p)
			_, _ = s.GetProduct(ctx, p.ID)
		}()
	}
	wg.Wait()

	out, err := s.ListProducts(ctx, domain.ListFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(out) != n {
		t.Fatalf("expected %d products, got %d", n, len(out))
	}
	seen := make(map[uint]bool, n)
	for _, p := range out {
		if seen[p.ID] {
			t.Fatalf("duplicate id %d", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestCanceledContext(t *testing.T) {
	s := NewInMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.GetProduct(ctx, 1); err == nil {
		t.Fatalf("expected context error from GetProduct")
	}
	if _, err := s.ListSales(ctx); err == nil {
		t.Fatalf("expected context error from ListSales")
	}
}

func TestSetAvailability(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	p := domain.Product{Name: "Monitor", Price: 300, Availability: true}
	if err := s.CreateProduct(ctx, &p); err != nil {
		t.Fatal(err)
	}

	got, err := s.SetAvailability(ctx, p.ID, nil)
	if err != nil || got.Availability {
		t.Fatalf("expected toggle to false, got %+v %v", got, err)
	}

	on := true
	for i := 0; i < 2; i++ {
		if got, err = s.SetAvailability(ctx, p.ID, &on); err != nil || !got.Availability {
			t.Fatalf("expected availability true, got %+v %v", got, err)
		}
	}

	if _, err := s.SetAvailability(ctx, 999, nil); !domain.IsProductNotFoundError(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetAvailability_ConcurrentToggles(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	p := domain.Product{Name: "Monitor", Price: 300, Availability: true}
	if err := s.CreateProduct(ctx, &p); err != nil {
		t.Fatal(err)
	}

	const toggles = 100
	var wg sync.WaitGroup
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.SetAvailability(ctx, p.ID, nil); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.GetProduct(ctx, p.ID)
	if !got.Availability {
		t.Fatalf("an even number of toggles must restore availability")
	}
}
