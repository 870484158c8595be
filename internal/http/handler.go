package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/hptrack/internal/adapter/zarr"
	"go.ngs.io/hptrack/internal/usecase"
)

// Handler handles HTTP requests for the level store browser.
type Handler struct {
	browser *usecase.StoreBrowser
}

// NewHandler creates a new HTTP handler.
func NewHandler(browser *usecase.StoreBrowser) *Handler {
	return &Handler{
		browser: browser,
	}
}

// ListStores handles GET /v1/stores.
func (h *Handler) ListStores(c *gin.Context) {
	stores, err := h.browser.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if stores == nil {
		stores = []usecase.StoreInfo{}
	}
	c.JSON(http.StatusOK, gin.H{
		"stores": stores,
		"count":  len(stores),
	})
}

// GetMetadata handles GET /v1/stores/:name/metadata.
func (h *Handler) GetMetadata(c *gin.Context) {
	b, err := h.browser.Metadata(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", b)
}

// GetValue handles GET /v1/stores/:name/value.
func (h *Handler) GetValue(c *gin.Context) {
	// Parse query parameters.
	varName := c.Query("var")
	latStr := c.Query("lat")
	lonStr := c.Query("lon")

	if varName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "var parameter is required"})
		return
	}
	if latStr == "" || lonStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon parameters are required"})
		return
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid latitude: %v", err)})
		return
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid longitude: %v", err)})
		return
	}

	// Every other integer parameter selects a position along the
	// dimension of that name, e.g. time=3.
	req := usecase.ValueRequest{
		Store: c.Param("name"),
		Var:   varName,
		Lat:   lat,
		Lon:   lon,
		Index: map[string]int{},
	}
	for key, values := range c.Request.URL.Query() {
		if key == "var" || key == "lat" || key == "lon" || len(values) == 0 {
			continue
		}
		i, err := strconv.Atoi(values[0])
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid index %s: %v", key, err)})
			return
		}
		req.Index[key] = i
	}

	res, err := h.browser.Value(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetKey handles GET /zarr/:name/*key.
func (h *Handler) GetKey(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	b, err := h.browser.Key(c.Request.Context(), c.Param("name"), key)
	if err != nil {
		writeError(c, err)
		return
	}
	contentType := "application/octet-stream"
	if strings.HasPrefix(key, ".z") || strings.Contains(key, "/.z") {
		contentType = "application/json"
	}
	c.Data(http.StatusOK, contentType, b)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, usecase.ErrStoreNotFound), errors.Is(err, zarr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, usecase.ErrInvalidQuery):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
