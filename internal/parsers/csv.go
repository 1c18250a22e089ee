package parsers

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// csvParser is the shared implementation behind the generic CSV parser and
// the ERP-specific CSV variants. A zero delimiter means "sniff from the
// header line".
type csvParser struct {
	delimiter rune
	synonyms  map[string]string
}

// NewCSVParser returns the generic CSV parser. Delimiter and encoding are
// detected per file.
func NewCSVParser() Parser {
	return &csvParser{
		synonyms: map[string]string{
			"name":          "name",
			"title":         "name",
			"название":      "name",
			"наименование":  "name",
			"товар":         "name",
			"sku":           "sku",
			"артикул":       "sku",
			"barcode":       "barcode",
			"штрихкод":      "barcode",
			"price":         "price",
			"цена":          "price",
			"стоимость":     "price",
			"stock":         "stock_quantity",
			"quantity":      "stock_quantity",
			"остаток":       "stock_quantity",
			"количество":    "stock_quantity",
			"category":      "category",
			"категория":     "category",
			"tags":          "tags",
			"теги":          "tags",
			"image":         "main_image_url",
			"photo":         "main_image_url",
			"фото":          "main_image_url",
			"изображение":   "main_image_url",
			"картинка":      "main_image_url",
			"images":        "gallery_urls",
			"галерея":       "gallery_urls",
			"description":   "description",
			"описание":      "description",
			"краткое описание": "short_description",
			"url":           "external_url",
			"ссылка":        "external_url",
			"slug":          "slug",
		},
	}
}

func (p *csvParser) SuggestedMapping() map[string]string {
	return p.synonyms
}

func (p *csvParser) ValidateFile(path string) error {
	columns, err := p.Columns(path)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("file has no columns")
	}
	return nil
}

func (p *csvParser) Columns(path string) ([]string, error) {
	iter, err := p.open(path)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	return iter.headers, nil
}

func (p *csvParser) Rows(path string) (RowIterator, error) {
	iter, err := p.open(path)
	if err != nil {
		return nil, err
	}
	return iter, nil
}

// open reopens the file, detects encoding and delimiter, and positions the
// iterator past the header row.
func (p *csvParser) open(path string) (*csvRowIterator, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	decoder, err := detectFileDecoder(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	var reader io.Reader = file
	if decoder != nil {
		reader = transform.NewReader(file, decoder)
	}
	buffered := bufio.NewReaderSize(reader, 64*1024)

	// Skip a UTF-8 BOM left in place by spreadsheet exports
	if bom, err := buffered.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		buffered.Discard(3)
	}

	delimiter := p.delimiter
	if delimiter == 0 {
		delimiter = sniffDelimiter(buffered)
	}

	csvReader := csv.NewReader(buffered)
	csvReader.Comma = delimiter
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true

	headerRecord, err := csvReader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	headers := make([]string, len(headerRecord))
	for i, h := range headerRecord {
		h = strings.TrimSpace(h)
		h = strings.TrimSuffix(h, " *")
		headers[i] = h
	}

	return &csvRowIterator{
		file:    file,
		reader:  csvReader,
		headers: headers,
	}, nil
}

// sniffDelimiter inspects the header line without consuming it
func sniffDelimiter(buffered *bufio.Reader) rune {
	peeked, _ := buffered.Peek(8 * 1024)
	line := string(peeked)
	if idx := strings.IndexAny(line, "\r\n"); idx >= 0 {
		line = line[:idx]
	}
	best, bestCount := ',', strings.Count(line, ",")
	for _, candidate := range []rune{';', '\t'} {
		if count := strings.Count(line, string(candidate)); count > bestCount {
			best, bestCount = candidate, count
		}
	}
	return best
}

// detectFileDecoder samples the file head and picks a decoder; nil means the
// input is already UTF-8. The file offset is rewound afterwards.
func detectFileDecoder(file *os.File) (*encoding.Decoder, error) {
	sample := make([]byte, 64*1024)
	n, err := file.Read(sample)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	sample = sample[:n]
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	// The sample may cut a multibyte rune at its edge
	trimmed := sample
	for i := 0; i < 3 && len(trimmed) > 0 && !utf8.Valid(trimmed); i++ {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if utf8.Valid(trimmed) {
		return nil, nil
	}
	for _, decoder := range candidateDecoders() {
		if decoded, err := decoder.Bytes(sample); err == nil && utf8.Valid(decoded) {
			return decoder, nil
		}
	}
	return nil, fmt.Errorf("unable to detect file encoding")
}

type csvRowIterator struct {
	file    *os.File
	reader  *csv.Reader
	headers []string
	rowNum  int
}

func (it *csvRowIterator) Next() (SourceRow, bool, error) {
	for {
		record, err := it.reader.Read()
		if errors.Is(err, io.EOF) {
			return SourceRow{}, false, nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// Malformed line: count it as a row so numbering stays stable,
			// but yield no values; validation will reject it.
			it.rowNum++
			return SourceRow{RowNumber: it.rowNum, Values: map[string]string{}}, true, nil
		}
		if err != nil {
			return SourceRow{}, false, fmt.Errorf("failed to read row: %w", err)
		}

		values := make(map[string]string, len(it.headers))
		for i, cell := range record {
			if i >= len(it.headers) {
				break // extra cells beyond the header are ignored
			}
			if it.headers[i] == "" {
				continue
			}
			values[it.headers[i]] = NormalizeCell(cell)
		}
		it.rowNum++
		return SourceRow{RowNumber: it.rowNum, Values: values}, true, nil
	}
}

func (it *csvRowIterator) Close() error {
	return it.file.Close()
}

// NewMoySkladParser returns the parser for MoySklad ERP CSV exports:
// semicolon-delimited, usually windows-1251, with the ERP's fixed column set.
func NewMoySkladParser() Parser {
	return &csvParser{
		delimiter: ';',
		synonyms: map[string]string{
			"наименование":     "name",
			"код":              "sku",
			"артикул":          "sku",
			"штрихкод":         "barcode",
			"штрихкод ean13":   "barcode",
			"цена продажи":     "price",
			"цена":             "price",
			"остаток":          "stock_quantity",
			"доступно":         "stock_quantity",
			"группа":           "category",
			"группы":           "category",
			"описание":         "description",
			"внешний код":      "external_url",
			"изображение":      "main_image_url",
		},
	}
}
