package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"catalog-import-service/internal/models"
)

func newTestHandler() *ImportHandler {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewImportHandler(nil, nil, nil, logger)
}

func performRequest(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDetectSourceType(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		filename string
		expected models.SourceType
		wantErr  bool
	}{
		{"explicit wildberries", "wildberries", "отчёт.xlsx", models.SourceTypeWildberries, false},
		{"explicit moysklad", "moysklad", "export.csv", models.SourceTypeMoySklad, false},
		{"csv by extension", "", "прайс.csv", models.SourceTypeCSV, false},
		{"xlsx by extension", "", "products.XLSX", models.SourceTypeXLSX, false},
		{"yml by extension", "", "catalog.yml", models.SourceTypeYML, false},
		{"xml maps to yml", "", "catalog.xml", models.SourceTypeYML, false},
		{"unknown explicit", "1c", "export.csv", "", true},
		{"unknown extension", "", "data.pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := detectSourceType(tt.explicit, tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestGetTargetFields(t *testing.T) {
	h := newTestHandler()
	router := gin.New()
	router.GET("/api/v1/imports/fields", h.GetTargetFields)

	w := performRequest(router, "GET", "/api/v1/imports/fields")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool                    `json:"success"`
		Version string                  `json:"version"`
		Fields  []models.TargetFieldDef `json:"fields"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, models.TargetFieldCatalogVersion, body.Version)
	assert.Len(t, body.Fields, len(models.TargetFieldCatalog()))
	assert.Equal(t, models.FieldName, body.Fields[0].Name)
	assert.True(t, body.Fields[0].Required)
}

func TestGetImportTemplateJSON(t *testing.T) {
	h := newTestHandler()
	router := gin.New()
	router.GET("/api/v1/imports/template", h.GetImportTemplate)

	w := performRequest(router, "GET", "/api/v1/imports/template")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success  bool                  `json:"success"`
		Template models.ImportTemplate `json:"template"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "products", body.Template.Entity)
	assert.Equal(t, models.TargetFieldCatalogVersion, body.Template.Version)
}

func TestGetImportTemplateCSV(t *testing.T) {
	h := newTestHandler()
	router := gin.New()
	router.GET("/api/v1/imports/template", h.GetImportTemplate)

	w := performRequest(router, "GET", "/api/v1/imports/template?format=csv")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "products_import_template.csv")

	header := strings.TrimSpace(w.Body.String())
	assert.True(t, strings.HasPrefix(header, models.FieldName+","))
	assert.Contains(t, header, models.FieldGalleryURLs)
}

func TestGetImportTemplateXLSX(t *testing.T) {
	h := newTestHandler()
	router := gin.New()
	router.GET("/api/v1/imports/template", h.GetImportTemplate)

	w := performRequest(router, "GET", "/api/v1/imports/template?format=xlsx")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")
	// XLSX is a zip archive
	assert.Equal(t, "PK", w.Body.String()[:2])
}

func TestInvalidJobIDRejected(t *testing.T) {
	h := newTestHandler()
	router := gin.New()
	router.GET("/api/v1/imports/:id", h.GetImportJob)

	w := performRequest(router, "GET", "/api/v1/imports/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body models.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "INVALID_ID", body.Error.Code)
}
