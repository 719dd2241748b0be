package api

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/swaggest/swgui/v5emb"
)

const docsTitle = "Documentación REST API"

//go:embed openapi.yaml
var openapiYAML []byte

// LoadOpenAPI parses and validates the embedded API document
func LoadOpenAPI(ctx context.Context) (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromData(openapiYAML)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return doc, nil
}

func registerDocs(r *gin.Engine) error {
	doc, err := LoadOpenAPI(context.Background())
	if err != nil {
		return err
	}

	swUi := v5emb.New(docsTitle, "/openapi.yaml", "/docs/")

	r.GET("/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", openapiYAML)
	})
	r.GET("/openapi.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, doc)
	})

	docs := r.Group("/docs/")
	{
		docs.GET("/*any", gin.WrapH(swUi))
	}
	return nil
}
