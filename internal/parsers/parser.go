package parsers

import (
	"fmt"

	"catalog-import-service/internal/models"
)

// SourceRow is one record decoded from the staged file, keyed by the original
// column names. RowNumber is 1-based over data rows and reproducible across
// independent passes of an unmodified file.
type SourceRow struct {
	RowNumber int
	Values    map[string]string
}

// RowIterator yields source rows lazily, in file order
type RowIterator interface {
	// Next returns the next row. ok is false once the sequence is exhausted.
	Next() (row SourceRow, ok bool, err error)
	Close() error
}

// Parser decodes one export format into the common row shape. Implementations
// must be restartable: every Rows call reopens and rescans the file.
type Parser interface {
	// Columns returns the ordered column names, deterministic across calls
	// on an unmodified file.
	Columns(path string) ([]string, error)
	// Rows returns a fresh lazy iterator over the data rows. Ragged rows
	// (missing or extra cells) never abort the sequence.
	Rows(path string) (RowIterator, error)
	// SuggestedMapping returns the format's static, case-insensitive synonym
	// table from known source column names to target fields.
	SuggestedMapping() map[string]string
	// ValidateFile is a cheap sanity probe: the file is readable and exposes
	// at least one column.
	ValidateFile(path string) error
}

var registry = map[models.SourceType]func() Parser{
	models.SourceTypeCSV:         func() Parser { return NewCSVParser() },
	models.SourceTypeXLSX:        func() Parser { return NewXLSXParser() },
	models.SourceTypeWildberries: func() Parser { return NewWildberriesParser() },
	models.SourceTypeMoySklad:    func() Parser { return NewMoySkladParser() },
	models.SourceTypeYML:         func() Parser { return NewYMLParser() },
}

// ForSourceType returns the parser registered for the given source type
func ForSourceType(sourceType models.SourceType) (Parser, error) {
	factory, ok := registry[sourceType]
	if !ok {
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
	return factory(), nil
}

// SupportedSourceTypes lists the registered source types
func SupportedSourceTypes() []models.SourceType {
	return []models.SourceType{
		models.SourceTypeCSV,
		models.SourceTypeXLSX,
		models.SourceTypeWildberries,
		models.SourceTypeMoySklad,
		models.SourceTypeYML,
	}
}

// CountRows runs a full pass and returns the number of data rows. Used once
// at job creation to fix total_rows.
func CountRows(p Parser, path string) (int, error) {
	iter, err := p.Rows(path)
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	count := 0
	for {
		_, ok, err := iter.Next()
		if err != nil {
			return count, err
		}
		if !ok {
			return count, nil
		}
		count++
	}
}
