package models

// TargetField is one normalized product attribute recognized by the catalog
const (
	FieldName             = "name"
	FieldSlug             = "slug"
	FieldSKU              = "sku"
	FieldBarcode          = "barcode"
	FieldPrice            = "price"
	FieldStockQuantity    = "stock_quantity"
	FieldCategory         = "category"
	FieldTags             = "tags"
	FieldMainImageURL     = "main_image_url"
	FieldGalleryURLs      = "gallery_urls"
	FieldDescription      = "description"
	FieldShortDescription = "short_description"
	FieldExternalURL      = "external_url"
)

// TargetFieldDef describes one entry of the target-field catalog
type TargetFieldDef struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // string, price, number, urls
	Example     string `json:"example"`
}

// TargetFieldCatalogVersion is bumped whenever the normalized attribute set changes
const TargetFieldCatalogVersion = "1.2"

// TargetFieldCatalog returns the fixed set of normalized product attributes.
// Both mapping suggestions and mapped-row validation are checked against it.
func TargetFieldCatalog() []TargetFieldDef {
	return []TargetFieldDef{
		{Name: FieldName, Description: "Product name", Required: true, Type: "string", Example: "Мёд липовый 500г"},
		{Name: FieldSlug, Description: "URL slug (generated from name when absent)", Required: false, Type: "string", Example: "myod-lipovyj-500g"},
		{Name: FieldSKU, Description: "Stock keeping unit", Required: false, Type: "string", Example: "HNY-LIP-500"},
		{Name: FieldBarcode, Description: "EAN/UPC barcode", Required: false, Type: "string", Example: "4600000000017"},
		{Name: FieldPrice, Description: "Price, converted to minor units", Required: false, Type: "price", Example: "350.50"},
		{Name: FieldStockQuantity, Description: "Units in stock", Required: false, Type: "number", Example: "12"},
		{Name: FieldCategory, Description: "Category name", Required: false, Type: "string", Example: "Продукты"},
		{Name: FieldTags, Description: "Comma-separated tags", Required: false, Type: "string", Example: "мёд,фермерское"},
		{Name: FieldMainImageURL, Description: "Primary image URL", Required: false, Type: "urls", Example: "https://cdn.example.com/honey.jpg"},
		{Name: FieldGalleryURLs, Description: "Additional image URLs (multi-URL cell)", Required: false, Type: "urls", Example: "https://a.jpg;https://b.jpg"},
		{Name: FieldDescription, Description: "Full description", Required: false, Type: "string", Example: ""},
		{Name: FieldShortDescription, Description: "Short description", Required: false, Type: "string", Example: ""},
		{Name: FieldExternalURL, Description: "Source listing URL", Required: false, Type: "string", Example: ""},
	}
}

// IsTargetField reports whether name is part of the target-field catalog
func IsTargetField(name string) bool {
	for _, def := range TargetFieldCatalog() {
		if def.Name == name {
			return true
		}
	}
	return false
}

// ImportTemplate defines the downloadable template for manual uploads
type ImportTemplate struct {
	Entity  string           `json:"entity"`
	Version string           `json:"version"`
	Columns []TargetFieldDef `json:"columns"`
}

// ProductImportTemplate returns the template definition built from the catalog
func ProductImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "products",
		Version: TargetFieldCatalogVersion,
		Columns: TargetFieldCatalog(),
	}
}
