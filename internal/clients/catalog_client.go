package clients

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"catalog-import-service/internal/models"
)

var (
	// ErrProductNotFound means the catalog has no product for the given slug
	ErrProductNotFound = errors.New("product not found")
	// ErrSlugConflict means the slug is already taken by another product
	ErrSlugConflict = errors.New("slug already exists")
)

// CatalogClient handles communication with the products-service write API
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
}

// productResponse is the products-service envelope for a single product
type productResponse struct {
	Success bool                   `json:"success"`
	Data    *models.CatalogProduct `json:"data,omitempty"`
	Message *string                `json:"message,omitempty"`
}

// NewCatalogClient creates a new catalog client
func NewCatalogClient() *CatalogClient {
	baseURL := os.Getenv("CATALOG_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://products-service:8080"
	}

	return &CatalogClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetProductBySlug looks up a product by its slug within the tenant.
// Returns ErrProductNotFound when the catalog has no such product.
func (c *CatalogClient) GetProductBySlug(tenantID, slug string) (*models.CatalogProduct, error) {
	reqURL := fmt.Sprintf("%s/api/v1/products/slug/%s", c.baseURL, url.PathEscape(slug))

	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrProductNotFound
	default:
		return nil, fmt.Errorf("catalog lookup failed: %d", resp.StatusCode)
	}

	var result productResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, ErrProductNotFound
	}
	return result.Data, nil
}

// CreateProduct creates a product in the catalog. Returns ErrSlugConflict when
// the payload's slug is already taken; the caller decides how to resolve it.
func (c *CatalogClient) CreateProduct(tenantID, createdByID string, payload *models.ProductPayload) (*models.CatalogProduct, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", fmt.Sprintf("%s/api/v1/products", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("X-User-ID", createdByID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return nil, ErrSlugConflict
	default:
		return nil, fmt.Errorf("catalog create failed: %d", resp.StatusCode)
	}

	var result productResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, fmt.Errorf("catalog create returned no product")
	}
	return result.Data, nil
}

// UpdateProduct applies a field-level update to an existing product. Only the
// fields present in the map are touched.
func (c *CatalogClient) UpdateProduct(tenantID, userID, productID string, fields map[string]interface{}) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("PATCH", fmt.Sprintf("%s/api/v1/products/%s", c.baseURL, productID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("X-User-ID", userID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[CatalogClient] Update failed for product %s: %d", productID, resp.StatusCode)
		return fmt.Errorf("catalog update failed: %d", resp.StatusCode)
	}
	return nil
}
