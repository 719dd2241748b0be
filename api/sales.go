package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"productsapi/domain"
	"productsapi/validate"
)

const publishTimeout = 5 * time.Second

const (
	msgSaleEmpty       = "La venta debe contener productos"
	msgSaleFormat      = "Formato de venta no válido"
	msgSaleProductID   = "ID de producto no válido"
	msgSaleQuantity    = "Cantidad no válida"
	msgSaleTotalFormat = "Total no válido"
)

var createSaleRules = validate.Rules{
	validate.BodyRule("total", validate.IsNumeric, msgSaleTotalFormat),
	validate.BodyRule("sale", validate.NotEmpty, msgSaleEmpty),
}

// (GET /api/sales)
func (h *Handler) GetSales(c *gin.Context) {
	sales, err := h.store.ListSales(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sales})
}

// (POST /api/sales)
func (h *Handler) CreateSale(c *gin.Context) {
	body := bodyOf(c)
	lines, errs := parseSaleLines(body["sale"])
	if len(errs) > 0 {
		respondErrors(c, errs)
		return
	}

	ctx := c.Request.Context()
	sale := domain.NewSale(validate.AsFloat(body["total"]), lines)
	if err := h.store.CreateSale(ctx, &sale); err != nil {
		respondError(c, err)
		return
	}
	logger(c).Info("sale created", "sale_id", sale.ID, "lines", len(sale.SaleProducts))

	// the sale is committed; a broker failure must not turn it into an error
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := h.events.PublishSale(pubCtx, sale); err != nil {
		logger(c).Warn("sale event not published", "sale_id", sale.ID, "error", err)
	}

	c.JSON(http.StatusCreated, gin.H{"data": sale})
}

// parseSaleLines reads the sale field, given either as a JSON-encoded
// string or as an inline array of {id, quantity} objects.
func parseSaleLines(v any) ([]domain.SaleLine, []validate.FieldError) {
	fail := func(field, msg string, value any) []validate.FieldError {
		return []validate.FieldError{{Field: field, Location: validate.Body, Message: msg, Value: value}}
	}

	var items []any
	switch x := v.(type) {
	case string:
		dec := json.NewDecoder(strings.NewReader(x))
		dec.UseNumber()
		if err := dec.Decode(&items); err != nil {
			return nil, fail("sale", msgSaleFormat, x)
		}
	case []any:
		items = x
	default:
		return nil, fail("sale", msgSaleFormat, v)
	}
	if len(items) == 0 {
		return nil, fail("sale", msgSaleEmpty, v)
	}

	var errs []validate.FieldError
	lines := make([]domain.SaleLine, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			errs = append(errs, fail(fmt.Sprintf("sale[%d]", i), msgSaleFormat, item)...)
			continue
		}
		id, idOK := positiveInt(obj["id"])
		if !idOK {
			errs = append(errs, fail(fmt.Sprintf("sale[%d].id", i), msgSaleProductID, obj["id"])...)
		}
		qty, qtyOK := positiveInt(obj["quantity"])
		if !qtyOK {
			errs = append(errs, fail(fmt.Sprintf("sale[%d].quantity", i), msgSaleQuantity, obj["quantity"])...)
		}
		if idOK && qtyOK {
			lines = append(lines, domain.SaleLine{ProductID: uint(id), Quantity: qty})
		}
	}
	return lines, errs
}

func positiveInt(v any) (int, bool) {
	if !validate.IsInt(v) {
		return 0, false
	}
	f := validate.AsFloat(v)
	if f < 1 || f > float64(1<<31-1) {
		return 0, false
	}
	return int(f), true
}
