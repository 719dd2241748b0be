package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"productsapi/domain"
	"productsapi/validate"
)

var (
	idRules = validate.Rules{
		validate.ParamRule("id", validate.IsInt, "ID no Válido"),
	}

	productBodyRules = validate.Rules{
		validate.BodyRule("name", validate.NotEmpty, "El nombre es obligatorio"),
		validate.BodyRule("price", validate.IsNumeric, "Valor no válido"),
		validate.BodyRule("price", validate.NotEmpty, "El precio es obligatorio"),
		validate.BodyRule("price", validate.Positive, "El precio no es válido"),
	}

	createProductRules = productBodyRules.With(
		validate.BodyRule("availability", validate.Optional(validate.IsBoolean), "Valor para disponibilidad no válido"),
	)

	updateProductRules = idRules.With(productBodyRules...).With(
		validate.BodyRule("availability", validate.IsBoolean, "Valor para disponibilidad no válido"),
	)

	patchProductRules = idRules.With(
		validate.BodyRule("availability", validate.Optional(validate.IsBoolean), "Valor para disponibilidad no válido"),
	)
)

// (GET /api/products)
func (h *Handler) GetProducts(c *gin.Context) {
	products, err := h.store.ListProducts(c.Request.Context(), domain.ListFilter{})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": products})
}

// (GET /api/products/:id)
func (h *Handler) GetProductByID(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	product, err := h.store.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": product})
}

// (POST /api/products)
func (h *Handler) CreateProduct(c *gin.Context) {
	body := bodyOf(c)
	product := domain.Product{
		Name:         validate.AsString(body["name"]),
		Price:        validate.AsFloat(body["price"]),
		Availability: true,
	}
	if v, ok := body["availability"]; ok {
		product.Availability, _ = validate.AsBool(v)
	}

	if err := h.store.CreateProduct(c.Request.Context(), &product); err != nil {
		respondError(c, err)
		return
	}
	logger(c).Info("product created", "product_id", product.ID)
	c.JSON(http.StatusCreated, gin.H{"data": product})
}

// (PUT /api/products/:id)
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	body := bodyOf(c)
	availability, _ := validate.AsBool(body["availability"])
	product := domain.Product{
		ID:           id,
		Name:         validate.AsString(body["name"]),
		Price:        validate.AsFloat(body["price"]),
		Availability: availability,
	}

	if err := h.store.UpdateProduct(c.Request.Context(), &product); err != nil {
		respondError(c, err)
		return
	}
	logger(c).Info("product updated", "product_id", id)
	c.JSON(http.StatusOK, gin.H{"data": product})
}

// (PATCH /api/products/:id)
// Sets availability when the body carries it and toggles it otherwise.
func (h *Handler) UpdateAvailability(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	var availability *bool
	if v, ok := bodyOf(c)["availability"]; ok {
		b, _ := validate.AsBool(v)
		availability = &b
	}

	product, err := h.store.SetAvailability(c.Request.Context(), id, availability)
	if err != nil {
		respondError(c, err)
		return
	}
	logger(c).Info("product availability changed", "product_id", id, "availability", product.Availability)
	c.JSON(http.StatusOK, gin.H{"data": product})
}

// (DELETE /api/products/:id)
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	logger(c).Info("product deleted", "product_id", id)
	c.JSON(http.StatusOK, gin.H{"data": msgProductDeleted})
}

// productID reads the already validated :id parameter. Ids that cannot
// name a stored row are answered with 404.
func productID(c *gin.Context) (uint, bool) {
	n, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || n < 1 || uint64(n) > uint64(^uint(0)) {
		c.JSON(http.StatusNotFound, gin.H{"error": msgProductNotFound})
		return 0, false
	}
	return uint(n), true
}
