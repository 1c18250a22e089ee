package parsers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/encoding/charmap"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, []byte(content), 0644)
	assert.NoError(t, err)
	return path
}

func collectRows(t *testing.T, p Parser, path string) []SourceRow {
	t.Helper()
	iter, err := p.Rows(path)
	assert.NoError(t, err)
	defer iter.Close()

	var rows []SourceRow
	for {
		row, ok, err := iter.Next()
		assert.NoError(t, err)
		if !ok {
			return rows
		}
		rows = append(rows, row)
	}
}

func TestCSVParserRussianHeaders(t *testing.T) {
	path := writeTempFile(t, "products.csv",
		"Название,Цена,Остаток\n"+
			"Молоко,89.90,12\n"+
			"Хлеб,45,3\n")

	p := NewCSVParser()

	columns, err := p.Columns(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Название", "Цена", "Остаток"}, columns)

	rows := collectRows(t, p, path)
	assert.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].RowNumber)
	assert.Equal(t, "Молоко", rows[0].Values["Название"])
	assert.Equal(t, "89.90", rows[0].Values["Цена"])
	assert.Equal(t, 2, rows[1].RowNumber)
	assert.Equal(t, "Хлеб", rows[1].Values["Название"])
}

func TestCSVParserSniffsSemicolon(t *testing.T) {
	path := writeTempFile(t, "semi.csv",
		"name;price\n"+
			"Сыр, выдержанный;350\n")

	p := NewCSVParser()
	columns, err := p.Columns(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"name", "price"}, columns)

	rows := collectRows(t, p, path)
	assert.Len(t, rows, 1)
	assert.Equal(t, "Сыр, выдержанный", rows[0].Values["name"])
}

func TestCSVParserRaggedRows(t *testing.T) {
	path := writeTempFile(t, "ragged.csv",
		"name,price,stock\n"+
			"Короткая,100\n"+
			"Длинная,200,5,лишнее\n")

	rows := collectRows(t, NewCSVParser(), path)
	assert.Len(t, rows, 2)

	// Missing trailing cell is simply absent
	_, hasStock := rows[0].Values["stock"]
	assert.False(t, hasStock)
	assert.Equal(t, "100", rows[0].Values["price"])

	// Extra cells beyond the header are dropped
	assert.Equal(t, "5", rows[1].Values["stock"])
	assert.Len(t, rows[1].Values, 3)
}

func TestCSVParserRestartable(t *testing.T) {
	path := writeTempFile(t, "restart.csv",
		"name,price\nА,1\nБ,2\nВ,3\n")

	p := NewCSVParser()
	first := collectRows(t, p, path)
	second := collectRows(t, p, path)
	assert.Equal(t, first, second)
	assert.Equal(t, 3, second[2].RowNumber)
}

func TestCSVParserWindows1251(t *testing.T) {
	content, err := charmap.Windows1251.NewEncoder().String(
		"Название;Цена\nПельмени;250,50\n")
	assert.NoError(t, err)
	path := writeTempFile(t, "cp1251.csv", content)

	p := NewCSVParser()
	columns, err := p.Columns(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Название", "Цена"}, columns)

	rows := collectRows(t, p, path)
	assert.Equal(t, "Пельмени", rows[0].Values["Название"])
	assert.Equal(t, "250,50", rows[0].Values["Цена"])
}

func TestCSVParserUTF8BOM(t *testing.T) {
	path := writeTempFile(t, "bom.csv", "\xEF\xBB\xBFname,price\nТовар,10\n")

	columns, err := NewCSVParser().Columns(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"name", "price"}, columns)
}

func TestCSVParserRequiredMarkerStripped(t *testing.T) {
	path := writeTempFile(t, "marker.csv", "Название *,Цена *\nТовар,10\n")

	columns, err := NewCSVParser().Columns(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Название", "Цена"}, columns)
}

func TestCSVParserSuggestedMapping(t *testing.T) {
	m := NewCSVParser().SuggestedMapping()
	assert.Equal(t, "name", m["название"])
	assert.Equal(t, "price", m["цена"])
	assert.Equal(t, "stock_quantity", m["остаток"])
	assert.Equal(t, "sku", m["артикул"])
	assert.Equal(t, "main_image_url", m["фото"])
}

func TestCSVParserEmptyCells(t *testing.T) {
	path := writeTempFile(t, "dash.csv", "name,barcode\nТовар,-\n")

	rows := collectRows(t, NewCSVParser(), path)
	assert.Equal(t, "", rows[0].Values["barcode"])
}

func TestCSVParserValidateFile(t *testing.T) {
	path := writeTempFile(t, "ok.csv", "name,price\n")
	assert.NoError(t, NewCSVParser().ValidateFile(path))

	assert.Error(t, NewCSVParser().ValidateFile(filepath.Join(t.TempDir(), "missing.csv")))
}

func TestMoySkladParser(t *testing.T) {
	content, err := charmap.Windows1251.NewEncoder().String(
		"Наименование;Код;Цена продажи;Остаток;Группы\n" +
			"Творог 5%;TV-001;120,00;8;Молочные продукты\n")
	assert.NoError(t, err)
	path := writeTempFile(t, "moysklad.csv", content)

	p := NewMoySkladParser()
	rows := collectRows(t, p, path)
	assert.Len(t, rows, 1)
	assert.Equal(t, "Творог 5%", rows[0].Values["Наименование"])
	assert.Equal(t, "120,00", rows[0].Values["Цена продажи"])

	m := p.SuggestedMapping()
	assert.Equal(t, "name", m["наименование"])
	assert.Equal(t, "price", m["цена продажи"])
	assert.Equal(t, "category", m["группы"])
}

func TestCountRows(t *testing.T) {
	path := writeTempFile(t, "count.csv", "name\nА\nБ\nВ\nГ\n")

	count, err := CountRows(NewCSVParser(), path)
	assert.NoError(t, err)
	assert.Equal(t, 4, count)
}
