// Package api exposes the products and sales REST endpoints over Gin.
package api

import (
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"productsapi/domain"
	"productsapi/events"
)

// Handler serves the products and sales endpoints
type Handler struct {
	store  domain.Store
	events events.Publisher
}

// NewHandler creates a Handler backed by the provided store. A nil
// publisher disables sale events.
func NewHandler(store domain.Store, publisher events.Publisher) *Handler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Handler{store: store, events: publisher}
}

// Options tunes the router
type Options struct {
	// FrontendURL is the only CORS origin allowed; empty allows all.
	FrontendURL string
}

// NewRouter wires middleware, the resource routes and the API docs.
func NewRouter(h *Handler, opts Options) (*gin.Engine, error) {
	corsMw, err := corsMiddleware(opts.FrontendURL)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(requestID(), accessLog(), recovery(), corsMw)

	r.GET("/api", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "DESDE API"})
	})

	products := r.Group("/api/products")
	{
		products.GET("", h.GetProducts)
		products.GET("/:id", handleInputErrors(idRules), h.GetProductByID)
		products.POST("", handleInputErrors(createProductRules), h.CreateProduct)
		products.PUT("/:id", handleInputErrors(updateProductRules), h.UpdateProduct)
		products.PATCH("/:id", handleInputErrors(patchProductRules), h.UpdateAvailability)
		products.DELETE("/:id", handleInputErrors(idRules), h.DeleteProduct)
	}

	sales := r.Group("/api/sales")
	{
		sales.GET("", h.GetSales)
		sales.POST("", handleInputErrors(createSaleRules), h.CreateSale)
	}

	if err := registerDocs(r); err != nil {
		return nil, err
	}
	return r, nil
}

// NewServer wraps handler in an http.Server listening on host:port
func NewServer(handler http.Handler, host, port string) *http.Server {
	return &http.Server{
		Handler:           handler,
		Addr:              net.JoinHostPort(host, port),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
