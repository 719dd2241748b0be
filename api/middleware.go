package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"productsapi/validate"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
	bodyKey         = "validated_body"
)

// requestID tags every request with the caller's X-Request-ID or a fresh one
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// accessLog writes one structured record per request
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger(c).Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// recovery turns panics into the uniform 500 response
func recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger(c).Error("panic recovered", "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
	})
}

// corsMiddleware allows only frontendURL when set, every origin otherwise
func corsMiddleware(frontendURL string) (gin.HandlerFunc, error) {
	cfg := cors.DefaultConfig()
	if frontendURL != "" {
		cfg.AllowOrigins = []string{frontendURL}
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AllowMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	cfg.AddAllowHeaders(requestIDHeader)
	cfg.ExposeHeaders = []string{requestIDHeader}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cors.New(cfg), nil
}

// handleInputErrors runs rules against the path parameters and the JSON
// body. The request stops with 400 when any rule fails; otherwise the
// decoded body is handed to the next handler.
func handleInputErrors(rules validate.Rules) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := decodeBody(c.Request)
		if err != nil {
			respondErrors(c, []validate.FieldError{{
				Location: validate.Body,
				Message:  msgInvalidJSON,
			}})
			return
		}

		params := make(map[string]string, len(c.Params))
		for _, p := range c.Params {
			params[p.Key] = p.Value
		}

		if errs := rules.Run(validate.Input{Body: body, Params: params}); len(errs) > 0 {
			respondErrors(c, errs)
			return
		}

		c.Set(bodyKey, body)
		c.Next()
	}
}

var (
	errNotObject    = errors.New("request body is not a JSON object")
	errTrailingData = errors.New("unexpected data after the JSON body")
)

// decodeBody reads a JSON object body keeping numbers as json.Number.
// An empty body decodes to an empty object.
func decodeBody(r *http.Request) (map[string]any, error) {
	body := map[string]any{}
	if r.Body == nil {
		return body, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return body, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errNotObject
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return body, nil
}

// bodyOf returns the body decoded by handleInputErrors
func bodyOf(c *gin.Context) map[string]any {
	if v, ok := c.Get(bodyKey); ok {
		if body, ok := v.(map[string]any); ok {
			return body
		}
	}
	return map[string]any{}
}
