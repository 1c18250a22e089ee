package validator

import (
	"strconv"
	"strings"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/parsers"
)

// Validation messages are user-facing and rendered verbatim in the storefront
// admin UI, which is Russian-first.
const (
	MsgNameRequired  = "Название товара обязательно"
	MsgPriceInvalid  = "Некорректное значение цены"
	MsgPriceNegative = "Цена не может быть отрицательной"
	MsgStockInvalid  = "Некорректное значение остатка"
	MsgStockNegative = "Остаток не может быть отрицательным"
	MsgURLInvalid    = "Некорректная ссылка на изображение"
	MsgRowUnreadable = "Строка не может быть прочитана"
)

// ApplyMapping projects a source row through the confirmed field mapping.
// Unmapped columns are dropped; mapped but empty cells are dropped too, so a
// missing cell and an empty cell are indistinguishable downstream.
func ApplyMapping(row parsers.SourceRow, mapping models.FieldMapping) models.MappedRow {
	fields := make(map[string]string, len(mapping))
	for _, entry := range mapping {
		if value, ok := row.Values[entry.Source]; ok && value != "" {
			fields[entry.Target] = value
		}
	}
	return models.MappedRow{RowNumber: row.RowNumber, Fields: fields}
}

// ValidateRow checks one mapped row against the target-field rules. A row with
// no fields at all is reported as unreadable (the parsers yield such rows for
// lines they could not decode).
func ValidateRow(row models.MappedRow) []models.ValidationError {
	var errs []models.ValidationError
	fail := func(field, message string) {
		errs = append(errs, models.ValidationError{
			RowNumber: row.RowNumber,
			Field:     field,
			Message:   message,
		})
	}

	if len(row.Fields) == 0 {
		fail("", MsgRowUnreadable)
		return errs
	}

	if name, _ := row.Get(models.FieldName); strings.TrimSpace(name) == "" {
		fail(models.FieldName, MsgNameRequired)
	}

	if raw, ok := row.Get(models.FieldPrice); ok {
		cents, err := parsers.ParsePrice(raw)
		switch {
		case err != nil:
			fail(models.FieldPrice, MsgPriceInvalid)
		case cents < 0:
			fail(models.FieldPrice, MsgPriceNegative)
		}
	}

	if raw, ok := row.Get(models.FieldStockQuantity); ok {
		stock, err := strconv.Atoi(strings.TrimSpace(raw))
		switch {
		case err != nil:
			fail(models.FieldStockQuantity, MsgStockInvalid)
		case stock < 0:
			fail(models.FieldStockQuantity, MsgStockNegative)
		}
	}

	for _, field := range []string{models.FieldMainImageURL, models.FieldGalleryURLs} {
		raw, ok := row.Get(field)
		if !ok {
			continue
		}
		for _, u := range parsers.SplitURLs(raw) {
			if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
				fail(field, MsgURLInvalid)
				break
			}
		}
	}

	return errs
}

// Summary accumulates streaming validation results with a capped error sample
type Summary struct {
	TotalRows   int
	ValidRows   int
	InvalidRows int
	ErrorCount  int
	Sample      models.ValidationErrorList
}

// Capped reports whether errors beyond the sample cap were seen
func (s *Summary) Capped() bool {
	return s.ErrorCount > len(s.Sample)
}

// Importable reports whether the file is worth executing: at least one row
// passed validation. A file with no importable rows is rejected outright.
func (s *Summary) Importable() bool {
	return s.ValidRows > 0
}

// Observe folds one row's validation result into the summary
func (s *Summary) Observe(errs []models.ValidationError) {
	s.TotalRows++
	if len(errs) == 0 {
		s.ValidRows++
		return
	}
	s.InvalidRows++
	s.ErrorCount += len(errs)
	for _, e := range errs {
		if len(s.Sample) >= models.MaxValidationErrors {
			break
		}
		s.Sample = append(s.Sample, e)
	}
}

// ValidateFile runs one streaming pass over every data row, validating each
// against the mapping. Memory stays bounded by the error sample cap.
func ValidateFile(p parsers.Parser, path string, mapping models.FieldMapping) (*Summary, error) {
	iter, err := p.Rows(path)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	summary := &Summary{}
	for {
		row, ok, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return summary, nil
		}
		summary.Observe(ValidateRow(ApplyMapping(row, mapping)))
	}
}
