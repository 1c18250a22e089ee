package engine

import (
	"strconv"
	"strings"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/parsers"
)

// buildPayload converts a validated mapped row into the catalog write payload.
// The row must already have passed validation; conversion errors are not
// expected here.
func buildPayload(row models.MappedRow) *models.ProductPayload {
	payload := &models.ProductPayload{}

	name, _ := row.Get(models.FieldName)
	payload.Name = strings.TrimSpace(name)

	if slug, ok := row.Get(models.FieldSlug); ok {
		payload.Slug = parsers.Slugify(slug)
	} else {
		payload.Slug = parsers.Slugify(payload.Name)
	}

	payload.SKU = optional(row, models.FieldSKU)
	payload.Barcode = optional(row, models.FieldBarcode)
	payload.Category = optional(row, models.FieldCategory)
	payload.Description = optional(row, models.FieldDescription)
	payload.ShortDescription = optional(row, models.FieldShortDescription)
	payload.ExternalURL = optional(row, models.FieldExternalURL)

	if raw, ok := row.Get(models.FieldPrice); ok {
		if cents, err := parsers.ParsePrice(raw); err == nil {
			payload.PriceCents = &cents
		}
	}
	if raw, ok := row.Get(models.FieldStockQuantity); ok {
		if stock, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			payload.StockQuantity = &stock
		}
	}
	if raw, ok := row.Get(models.FieldTags); ok {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				payload.Tags = append(payload.Tags, tag)
			}
		}
	}
	if raw, ok := row.Get(models.FieldMainImageURL); ok {
		if urls := parsers.SplitURLs(raw); len(urls) > 0 {
			payload.MainImageURL = &urls[0]
			// Extra URLs in the main-image cell spill into the gallery
			payload.GalleryURLs = append(payload.GalleryURLs, urls[1:]...)
		}
	}
	if raw, ok := row.Get(models.FieldGalleryURLs); ok {
		payload.GalleryURLs = append(payload.GalleryURLs, parsers.SplitURLs(raw)...)
	}

	return payload
}

// updateFields renders the payload as a field-level update map so that
// update-existing imports only touch the columns present in the file.
func updateFields(payload *models.ProductPayload) map[string]interface{} {
	fields := map[string]interface{}{
		"name": payload.Name,
	}
	if payload.SKU != nil {
		fields["sku"] = *payload.SKU
	}
	if payload.Barcode != nil {
		fields["barcode"] = *payload.Barcode
	}
	if payload.PriceCents != nil {
		fields["priceCents"] = *payload.PriceCents
	}
	if payload.StockQuantity != nil {
		fields["stockQuantity"] = *payload.StockQuantity
	}
	if payload.Category != nil {
		fields["category"] = *payload.Category
	}
	if len(payload.Tags) > 0 {
		fields["tags"] = payload.Tags
	}
	if payload.Description != nil {
		fields["description"] = *payload.Description
	}
	if payload.ShortDescription != nil {
		fields["shortDescription"] = *payload.ShortDescription
	}
	if payload.ExternalURL != nil {
		fields["externalUrl"] = *payload.ExternalURL
	}
	return fields
}

func optional(row models.MappedRow, field string) *string {
	if value, ok := row.Get(field); ok {
		value = strings.TrimSpace(value)
		if value != "" {
			return &value
		}
	}
	return nil
}
