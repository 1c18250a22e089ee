package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/encoding/charmap"
)

const ymlCatalog = `<?xml version="1.0" encoding="UTF-8"?>
<yml_catalog date="2026-09-01 10:00">
  <shop>
    <name>Тестовый магазин</name>
    <categories>
      <category id="1">Молочные продукты</category>
      <category id="2" parentId="1">Сыры</category>
    </categories>
    <offers>
      <offer id="101" available="true">
        <name>Сыр Гауда</name>
        <vendorCode>G-100</vendorCode>
        <price>450.00</price>
        <currencyId>RUR</currencyId>
        <categoryId>2</categoryId>
        <picture>https://shop.test/gauda-1.jpg</picture>
        <picture>https://shop.test/gauda-2.jpg</picture>
        <description>Твёрдый сыр</description>
        <url>https://shop.test/gauda</url>
        <param name="Вес">250 г</param>
        <outlets>
          <outlet id="5" instock="12"/>
        </outlets>
      </offer>
      <offer id="102" available="false">
        <name>Молоко</name>
        <price>89.90</price>
        <categoryId>1</categoryId>
      </offer>
    </offers>
  </shop>
</yml_catalog>`

func TestYMLParser(t *testing.T) {
	path := writeTempFile(t, "catalog.yml", ymlCatalog)

	p := NewYMLParser()
	rows := collectRows(t, p, path)
	assert.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, 1, first.RowNumber)
	assert.Equal(t, "101", first.Values["id"])
	assert.Equal(t, "true", first.Values["available"])
	assert.Equal(t, "Сыр Гауда", first.Values["name"])
	assert.Equal(t, "G-100", first.Values["vendorCode"])
	assert.Equal(t, "450.00", first.Values["price"])

	// categoryId resolves to the category name
	assert.Equal(t, "Сыры", first.Values["category"])

	// First picture is the main image, the rest join into "pictures"
	assert.Equal(t, "https://shop.test/gauda-1.jpg", first.Values["picture"])
	assert.Equal(t, "https://shop.test/gauda-2.jpg", first.Values["pictures"])

	// Params become prefixed columns
	assert.Equal(t, "250 г", first.Values["param:вес"])

	// Nested markup is serialized, not dropped
	assert.Contains(t, first.Values["outlets"], "<outlet")
	assert.Contains(t, first.Values["outlets"], `instock="12"`)

	second := rows[1]
	assert.Equal(t, 2, second.RowNumber)
	assert.Equal(t, "Молоко", second.Values["name"])
	assert.Equal(t, "Молочные продукты", second.Values["category"])
}

func TestYMLParserColumns(t *testing.T) {
	path := writeTempFile(t, "catalog.yml", ymlCatalog)

	columns, err := NewYMLParser().Columns(path)
	assert.NoError(t, err)

	// First-appearance order across the scanned offers
	assert.Equal(t, "id", columns[0])
	assert.Contains(t, columns, "name")
	assert.Contains(t, columns, "price")
	assert.Contains(t, columns, "category")
	assert.Contains(t, columns, "param:вес")
}

func TestYMLParserWindows1251(t *testing.T) {
	body := `<?xml version="1.0" encoding="windows-1251"?>
<yml_catalog date="2026-09-01">
  <shop>
    <offers>
      <offer id="1"><name>Пельмени</name><price>250</price></offer>
    </offers>
  </shop>
</yml_catalog>`
	encoded, err := charmap.Windows1251.NewEncoder().String(body)
	assert.NoError(t, err)
	path := writeTempFile(t, "cp1251.yml", encoded)

	rows := collectRows(t, NewYMLParser(), path)
	assert.Len(t, rows, 1)
	assert.Equal(t, "Пельмени", rows[0].Values["name"])
}

func TestYMLParserRestartable(t *testing.T) {
	path := writeTempFile(t, "catalog.yml", ymlCatalog)

	p := NewYMLParser()
	first := collectRows(t, p, path)
	second := collectRows(t, p, path)
	assert.Equal(t, first, second)
}

func TestYMLParserSuggestedMapping(t *testing.T) {
	m := NewYMLParser().SuggestedMapping()
	assert.Equal(t, "name", m["name"])
	assert.Equal(t, "sku", m["vendorcode"])
	assert.Equal(t, "main_image_url", m["picture"])
	assert.Equal(t, "gallery_urls", m["pictures"])
	assert.Equal(t, "external_url", m["url"])
}

func TestYMLParserValidateFile(t *testing.T) {
	empty := writeTempFile(t, "empty.yml",
		`<?xml version="1.0"?><yml_catalog><shop><offers></offers></shop></yml_catalog>`)
	assert.Error(t, NewYMLParser().ValidateFile(empty))

	valid := writeTempFile(t, "catalog.yml", ymlCatalog)
	assert.NoError(t, NewYMLParser().ValidateFile(valid))
}
