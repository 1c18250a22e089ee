package parsers

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// xlsxParser is the shared implementation behind the generic XLSX parser and
// the marketplace XLSX variants. headerScanRows > 1 enables scanning the
// first rows for a recognizable header hidden behind metadata rows.
type xlsxParser struct {
	headerScanRows int
	synonyms       map[string]string
	// headerSignature: a scanned row is accepted as the header when it
	// contains at least one of these cell values (case-insensitive).
	headerSignature []string
}

// NewXLSXParser returns the generic XLSX parser: first sheet, first row is
// the header.
func NewXLSXParser() Parser {
	generic := NewCSVParser().(*csvParser)
	return &xlsxParser{
		headerScanRows: 1,
		synonyms:       generic.synonyms,
	}
}

// NewWildberriesParser returns the parser for Wildberries seller exports.
// Their XLSX files lead with metadata rows; the real header is located by
// scanning for known marketplace column names.
func NewWildberriesParser() Parser {
	return &xlsxParser{
		headerScanRows:  10,
		headerSignature: []string{"артикул продавца", "баркод", "наименование", "номенклатура"},
		synonyms: map[string]string{
			"артикул продавца":  "sku",
			"артикул wb":        "external_url",
			"номенклатура":      "name",
			"наименование":      "name",
			"баркод":            "barcode",
			"цена":              "price",
			"текущая цена":      "price",
			"остатки":           "stock_quantity",
			"остаток":           "stock_quantity",
			"предмет":           "category",
			"категория":         "category",
			"фото":              "gallery_urls",
			"описание":          "description",
		},
	}
}

func (p *xlsxParser) SuggestedMapping() map[string]string {
	return p.synonyms
}

func (p *xlsxParser) ValidateFile(path string) error {
	columns, err := p.Columns(path)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("file has no columns")
	}
	return nil
}

func (p *xlsxParser) Columns(path string) ([]string, error) {
	iter, err := p.open(path)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	return iter.headers, nil
}

func (p *xlsxParser) Rows(path string) (RowIterator, error) {
	iter, err := p.open(path)
	if err != nil {
		return nil, err
	}
	return iter, nil
}

// open reopens the workbook and advances a streaming row iterator past the
// header, locating it within the first headerScanRows rows when a signature
// is configured.
func (p *xlsxParser) open(path string) (*xlsxRowIterator, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	headers, err := p.locateHeader(rows)
	if err != nil {
		rows.Close()
		f.Close()
		return nil, err
	}

	return &xlsxRowIterator{
		file:    f,
		rows:    rows,
		headers: headers,
	}, nil
}

func (p *xlsxParser) locateHeader(rows *excelize.Rows) ([]string, error) {
	for scanned := 0; scanned < p.headerScanRows && rows.Next(); scanned++ {
		record, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if p.isHeader(record) {
			headers := make([]string, len(record))
			for i, h := range record {
				h = strings.TrimSpace(h)
				h = strings.TrimSuffix(h, " *")
				headers[i] = h
			}
			return headers, nil
		}
	}
	return nil, fmt.Errorf("header row not found")
}

func (p *xlsxParser) isHeader(record []string) bool {
	if len(p.headerSignature) == 0 {
		// No signature configured: the first non-empty row is the header
		for _, cell := range record {
			if strings.TrimSpace(cell) != "" {
				return true
			}
		}
		return false
	}
	for _, cell := range record {
		cell = strings.ToLower(strings.TrimSpace(cell))
		for _, sig := range p.headerSignature {
			if cell == sig {
				return true
			}
		}
	}
	return false
}

type xlsxRowIterator struct {
	file    *excelize.File
	rows    *excelize.Rows
	headers []string
	rowNum  int
}

func (it *xlsxRowIterator) Next() (SourceRow, bool, error) {
	if !it.rows.Next() {
		if err := it.rows.Error(); err != nil {
			return SourceRow{}, false, fmt.Errorf("failed to read row: %w", err)
		}
		return SourceRow{}, false, nil
	}

	record, err := it.rows.Columns()
	if err != nil {
		return SourceRow{}, false, fmt.Errorf("failed to read row: %w", err)
	}

	values := make(map[string]string, len(it.headers))
	for i, cell := range record {
		if i >= len(it.headers) {
			break
		}
		if it.headers[i] == "" {
			continue
		}
		values[it.headers[i]] = NormalizeCell(cell)
	}
	it.rowNum++
	return SourceRow{RowNumber: it.rowNum, Values: values}, true, nil
}

func (it *xlsxRowIterator) Close() error {
	it.rows.Close()
	return it.file.Close()
}
