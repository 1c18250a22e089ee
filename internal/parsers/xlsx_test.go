package parsers

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xuri/excelize/v2"
)

func writeTempWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		assert.NoError(t, err)
		assert.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(t.TempDir(), "import.xlsx")
	assert.NoError(t, f.SaveAs(path))
	return path
}

func TestXLSXParser(t *testing.T) {
	path := writeTempWorkbook(t, [][]interface{}{
		{"Название", "Цена", "Остаток"},
		{"Молоко", "89,90", 12},
		{"Хлеб", 45, 3},
	})

	p := NewXLSXParser()

	columns, err := p.Columns(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Название", "Цена", "Остаток"}, columns)

	rows := collectRows(t, p, path)
	assert.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].RowNumber)
	assert.Equal(t, "Молоко", rows[0].Values["Название"])
	assert.Equal(t, "89,90", rows[0].Values["Цена"])
	assert.Equal(t, "12", rows[0].Values["Остаток"])
}

func TestXLSXParserRestartable(t *testing.T) {
	path := writeTempWorkbook(t, [][]interface{}{
		{"name", "price"},
		{"А", 1},
		{"Б", 2},
	})

	p := NewXLSXParser()
	first := collectRows(t, p, path)
	second := collectRows(t, p, path)
	assert.Equal(t, first, second)
}

func TestXLSXParserShortRows(t *testing.T) {
	path := writeTempWorkbook(t, [][]interface{}{
		{"name", "price", "stock"},
		{"Короткая", 100},
	})

	rows := collectRows(t, NewXLSXParser(), path)
	assert.Len(t, rows, 1)
	assert.Equal(t, "100", rows[0].Values["price"])
	_, hasStock := rows[0].Values["stock"]
	assert.False(t, hasStock)
}

func TestWildberriesParserHeaderScan(t *testing.T) {
	path := writeTempWorkbook(t, [][]interface{}{
		{"Отчёт по остаткам"},
		{""},
		{"Сформирован: 01.09.2026"},
		{"Артикул продавца", "Баркод", "Наименование", "Цена", "Остатки"},
		{"WB-001", "4600000000017", "Футболка базовая", "1 299,00", 42},
	})

	p := NewWildberriesParser()

	columns, err := p.Columns(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Артикул продавца", "Баркод", "Наименование", "Цена", "Остатки"}, columns)

	rows := collectRows(t, p, path)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].RowNumber)
	assert.Equal(t, "WB-001", rows[0].Values["Артикул продавца"])
	assert.Equal(t, "Футболка базовая", rows[0].Values["Наименование"])

	m := p.SuggestedMapping()
	assert.Equal(t, "sku", m["артикул продавца"])
	assert.Equal(t, "barcode", m["баркод"])
	assert.Equal(t, "stock_quantity", m["остатки"])
}

func TestWildberriesParserHeaderNotFound(t *testing.T) {
	path := writeTempWorkbook(t, [][]interface{}{
		{"просто", "какая-то", "таблица"},
		{"a", "b", "c"},
	})

	_, err := NewWildberriesParser().Columns(path)
	assert.Error(t, err)
}
