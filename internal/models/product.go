package models

// MappedRow is a source row projected through the saved field mapping.
// It is derived per pass and never persisted.
type MappedRow struct {
	RowNumber int               `json:"rowNumber"`
	Fields    map[string]string `json:"fields"`
}

// Get returns the value of a target field, if populated
func (r MappedRow) Get(field string) (string, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// ProductPayload is the normalized product record handed to the catalog write
// API. Pointer fields are omitted from field-level updates when nil.
type ProductPayload struct {
	Name             string   `json:"name"`
	Slug             string   `json:"slug"`
	SKU              *string  `json:"sku,omitempty"`
	Barcode          *string  `json:"barcode,omitempty"`
	PriceCents       *int64   `json:"priceCents,omitempty"`
	StockQuantity    *int     `json:"stockQuantity,omitempty"`
	Category         *string  `json:"category,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	MainImageURL     *string  `json:"mainImageUrl,omitempty"`
	GalleryURLs      []string `json:"galleryUrls,omitempty"`
	Description      *string  `json:"description,omitempty"`
	ShortDescription *string  `json:"shortDescription,omitempty"`
	ExternalURL      *string  `json:"externalUrl,omitempty"`
}

// CatalogProduct is the catalog service's view of a product, as returned by
// the catalog write API
type CatalogProduct struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
}
