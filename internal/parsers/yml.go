package parsers

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// ymlParser decodes YML (Yandex Market Language) catalog exports. Offers are
// hierarchical XML records; child elements are flattened into the common flat
// row shape, and children that themselves contain nested markup are
// serialized to a string instead of failing.
type ymlParser struct {
	synonyms map[string]string
}

// NewYMLParser returns the parser for YML catalog exports
func NewYMLParser() Parser {
	return &ymlParser{
		synonyms: map[string]string{
			"name":        "name",
			"model":       "name",
			"vendorcode":  "sku",
			"barcode":     "barcode",
			"price":       "price",
			"count":       "stock_quantity",
			"category":    "category",
			"picture":     "main_image_url",
			"pictures":    "gallery_urls",
			"description": "description",
			"url":         "external_url",
		},
	}
}

func (p *ymlParser) SuggestedMapping() map[string]string {
	return p.synonyms
}

func (p *ymlParser) ValidateFile(path string) error {
	columns, err := p.Columns(path)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("file has no offers")
	}
	return nil
}

// columnScanLimit bounds the offers scanned for column discovery. The union
// of flattened keys over the scanned prefix, in first-appearance order, is
// deterministic for an unmodified file.
const columnScanLimit = 100

func (p *ymlParser) Columns(path string) ([]string, error) {
	iter, err := p.open(path)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var columns []string
	seen := map[string]bool{}
	for scanned := 0; scanned < columnScanLimit; scanned++ {
		row, ok, err := iter.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		for _, key := range row.orderedKeys {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	return columns, nil
}

func (p *ymlParser) Rows(path string) (RowIterator, error) {
	iter, err := p.open(path)
	if err != nil {
		return nil, err
	}
	return iter, nil
}

func (p *ymlParser) open(path string) (*ymlRowIterator, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	decoder := xml.NewDecoder(file)
	decoder.CharsetReader = charsetReader

	return &ymlRowIterator{
		file:       file,
		decoder:    decoder,
		categories: map[string]string{},
	}, nil
}

// charsetReader handles the legacy encodings YML feeds declare
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "utf-8", "":
		return input, nil
	case "windows-1251", "cp1251":
		return charmap.Windows1251.NewDecoder().Reader(input), nil
	case "koi8-r":
		return charmap.KOI8R.NewDecoder().Reader(input), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("unsupported charset: %s", charset)
}

// xmlNode is a generic element tree used to flatten offers
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []xmlNode  `xml:",any"`
}

type ymlRowIterator struct {
	file       *os.File
	decoder    *xml.Decoder
	categories map[string]string
	rowNum     int
}

// ymlRow carries key order alongside the flat map for column discovery
type ymlRow struct {
	SourceRow
	orderedKeys []string
}

func (it *ymlRowIterator) Next() (SourceRow, bool, error) {
	row, ok, err := it.next()
	return row.SourceRow, ok, err
}

func (it *ymlRowIterator) next() (ymlRow, bool, error) {
	for {
		token, err := it.decoder.Token()
		if err == io.EOF {
			return ymlRow{}, false, nil
		}
		if err != nil {
			return ymlRow{}, false, fmt.Errorf("failed to parse XML: %w", err)
		}

		start, isStart := token.(xml.StartElement)
		if !isStart {
			continue
		}

		switch start.Name.Local {
		case "category":
			// Categories precede offers in document order; remember them
			// so categoryId can resolve to a human-readable name.
			var node xmlNode
			if err := it.decoder.DecodeElement(&node, &start); err != nil {
				continue
			}
			id := attrValue(node.Attrs, "id")
			if id != "" {
				it.categories[id] = strings.TrimSpace(node.Content)
			}
		case "offer":
			var node xmlNode
			if err := it.decoder.DecodeElement(&node, &start); err != nil {
				// A malformed offer still occupies a row number
				it.rowNum++
				return ymlRow{SourceRow: SourceRow{RowNumber: it.rowNum, Values: map[string]string{}}}, true, nil
			}
			it.rowNum++
			values, keys := it.flattenOffer(node)
			return ymlRow{
				SourceRow:   SourceRow{RowNumber: it.rowNum, Values: values},
				orderedKeys: keys,
			}, true, nil
		}
	}
}

// flattenOffer projects an offer element tree onto a flat column map.
// Repeated <picture> elements become "picture" (first) and "pictures" (rest),
// <param name="X"> becomes "param:x", categoryId resolves through the
// categories table, and any child with nested markup is serialized verbatim.
func (it *ymlRowIterator) flattenOffer(node xmlNode) (map[string]string, []string) {
	values := map[string]string{}
	var keys []string
	set := func(key, value string) {
		if _, exists := values[key]; !exists {
			keys = append(keys, key)
		}
		values[key] = value
	}

	for _, attr := range node.Attrs {
		set(attr.Name.Local, NormalizeCell(attr.Value))
	}

	var pictures []string
	for _, child := range node.Nodes {
		name := child.XMLName.Local
		switch {
		case name == "picture":
			pictures = append(pictures, strings.TrimSpace(child.Content))
		case name == "param":
			paramName := strings.ToLower(attrValue(child.Attrs, "name"))
			if paramName != "" {
				set("param:"+paramName, NormalizeCell(child.Content))
			}
		case name == "categoryId":
			id := strings.TrimSpace(child.Content)
			if resolved, ok := it.categories[id]; ok && resolved != "" {
				set("category", resolved)
			} else {
				set("categoryId", id)
			}
		case len(child.Nodes) > 0:
			set(name, serializeNode(child))
		default:
			set(name, NormalizeCell(child.Content))
		}
	}

	if len(pictures) > 0 {
		set("picture", pictures[0])
	}
	if len(pictures) > 1 {
		set("pictures", strings.Join(pictures[1:], ";"))
	}

	return values, keys
}

func (it *ymlRowIterator) Close() error {
	return it.file.Close()
}

func attrValue(attrs []xml.Attr, name string) string {
	for _, attr := range attrs {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}

// serializeNode renders a nested element back to a compact XML string
func serializeNode(node xmlNode) string {
	var b strings.Builder
	writeNode(&b, node)
	return b.String()
}

func writeNode(b *strings.Builder, node xmlNode) {
	b.WriteString("<" + node.XMLName.Local)
	for _, attr := range node.Attrs {
		fmt.Fprintf(b, " %s=%q", attr.Name.Local, attr.Value)
	}
	b.WriteString(">")
	if text := strings.TrimSpace(node.Content); text != "" {
		b.WriteString(text)
	}
	for _, child := range node.Nodes {
		writeNode(b, child)
	}
	b.WriteString("</" + node.XMLName.Local + ">")
}
