package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/parsers"
)

var testMapping = models.FieldMapping{
	{Source: "Название", Target: models.FieldName},
	{Source: "Цена", Target: models.FieldPrice},
	{Source: "Остаток", Target: models.FieldStockQuantity},
	{Source: "Фото", Target: models.FieldMainImageURL},
}

func TestApplyMapping(t *testing.T) {
	row := parsers.SourceRow{
		RowNumber: 7,
		Values: map[string]string{
			"Название":  "Молоко",
			"Цена":      "89,90",
			"Поставщик": "ООО Ферма", // unmapped, dropped
			"Остаток":   "",          // empty, dropped
		},
	}

	mapped := ApplyMapping(row, testMapping)
	assert.Equal(t, 7, mapped.RowNumber)
	assert.Equal(t, map[string]string{
		"name":  "Молоко",
		"price": "89,90",
	}, mapped.Fields)
}

func TestValidateRowValid(t *testing.T) {
	errs := ValidateRow(models.MappedRow{RowNumber: 1, Fields: map[string]string{
		"name":           "Молоко",
		"price":          "89,90",
		"stock_quantity": "12",
		"main_image_url": "https://cdn.test/milk.jpg",
	}})
	assert.Empty(t, errs)
}

func TestValidateRowMissingName(t *testing.T) {
	errs := ValidateRow(models.MappedRow{RowNumber: 3, Fields: map[string]string{
		"price": "100",
	}})
	assert.Len(t, errs, 1)
	assert.Equal(t, 3, errs[0].RowNumber)
	assert.Equal(t, "name", errs[0].Field)
	assert.Equal(t, "Название товара обязательно", errs[0].Message)
}

func TestValidateRowPrice(t *testing.T) {
	errs := ValidateRow(models.MappedRow{RowNumber: 1, Fields: map[string]string{
		"name": "Товар", "price": "договорная",
	}})
	assert.Len(t, errs, 1)
	assert.Equal(t, "Некорректное значение цены", errs[0].Message)

	errs = ValidateRow(models.MappedRow{RowNumber: 1, Fields: map[string]string{
		"name": "Товар", "price": "-50",
	}})
	assert.Len(t, errs, 1)
	assert.Equal(t, "Цена не может быть отрицательной", errs[0].Message)

	// Price is optional: absent means no error
	errs = ValidateRow(models.MappedRow{RowNumber: 1, Fields: map[string]string{
		"name": "Товар",
	}})
	assert.Empty(t, errs)
}

func TestValidateRowStock(t *testing.T) {
	errs := ValidateRow(models.MappedRow{RowNumber: 1, Fields: map[string]string{
		"name": "Товар", "stock_quantity": "много",
	}})
	assert.Len(t, errs, 1)
	assert.Equal(t, "Некорректное значение остатка", errs[0].Message)

	errs = ValidateRow(models.MappedRow{RowNumber: 1, Fields: map[string]string{
		"name": "Товар", "stock_quantity": "-1",
	}})
	assert.Len(t, errs, 1)
	assert.Equal(t, "Остаток не может быть отрицательным", errs[0].Message)
}

func TestValidateRowImageURL(t *testing.T) {
	errs := ValidateRow(models.MappedRow{RowNumber: 1, Fields: map[string]string{
		"name": "Товар", "main_image_url": "ftp://old.server/img.jpg",
	}})
	assert.Len(t, errs, 1)
	assert.Equal(t, "Некорректная ссылка на изображение", errs[0].Message)
}

func TestValidateRowUnreadable(t *testing.T) {
	errs := ValidateRow(models.MappedRow{RowNumber: 9, Fields: map[string]string{}})
	assert.Len(t, errs, 1)
	assert.Equal(t, "Строка не может быть прочитана", errs[0].Message)
}

func TestValidateRowCollectsMultipleErrors(t *testing.T) {
	errs := ValidateRow(models.MappedRow{RowNumber: 1, Fields: map[string]string{
		"price":          "abc",
		"stock_quantity": "-2",
	}})
	assert.Len(t, errs, 3)
}

func TestValidateFile(t *testing.T) {
	content := "Название,Цена\n" +
		"Молоко,89.90\n" +
		",100\n" +
		"Хлеб,дорого\n" +
		"Сыр,350\n"
	path := filepath.Join(t.TempDir(), "products.csv")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0644))

	mapping := models.FieldMapping{
		{Source: "Название", Target: models.FieldName},
		{Source: "Цена", Target: models.FieldPrice},
	}

	summary, err := ValidateFile(parsers.NewCSVParser(), path, mapping)
	assert.NoError(t, err)
	assert.Equal(t, 4, summary.TotalRows)
	assert.Equal(t, 2, summary.ValidRows)
	assert.Equal(t, 2, summary.InvalidRows)
	assert.Len(t, summary.Sample, 2)
	assert.False(t, summary.Capped())
	assert.True(t, summary.Importable())
	assert.Equal(t, 2, summary.Sample[0].RowNumber)
	assert.Equal(t, "Название товара обязательно", summary.Sample[0].Message)
	assert.Equal(t, 3, summary.Sample[1].RowNumber)
}

func TestValidateFileNoImportableRows(t *testing.T) {
	content := "Название,Цена\n" +
		",100\n" +
		",договорная\n"
	path := filepath.Join(t.TempDir(), "broken.csv")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0644))

	mapping := models.FieldMapping{
		{Source: "Название", Target: models.FieldName},
		{Source: "Цена", Target: models.FieldPrice},
	}

	summary, err := ValidateFile(parsers.NewCSVParser(), path, mapping)
	assert.NoError(t, err)
	assert.Equal(t, 0, summary.ValidRows)
	assert.Equal(t, 2, summary.InvalidRows)
	assert.False(t, summary.Importable())
}

func TestValidateFileErrorSampleCapped(t *testing.T) {
	var content = "Название,Цена\n"
	for i := 0; i < models.MaxValidationErrors+50; i++ {
		content += fmt.Sprintf("Товар %d,нет цены\n", i)
	}
	path := filepath.Join(t.TempDir(), "big.csv")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0644))

	mapping := models.FieldMapping{
		{Source: "Название", Target: models.FieldName},
		{Source: "Цена", Target: models.FieldPrice},
	}

	summary, err := ValidateFile(parsers.NewCSVParser(), path, mapping)
	assert.NoError(t, err)
	assert.Equal(t, models.MaxValidationErrors+50, summary.InvalidRows)
	assert.Len(t, summary.Sample, models.MaxValidationErrors)
	assert.True(t, summary.Capped())
	assert.Equal(t, models.MaxValidationErrors+50, summary.ErrorCount)
}
