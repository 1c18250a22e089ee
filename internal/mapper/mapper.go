package mapper

import (
	"fmt"
	"strings"

	"catalog-import-service/internal/models"
)

// Suggest matches source columns against a format's synonym table and returns
// the proposed column -> target field mapping. Matching is case-insensitive on
// the trimmed column name; unknown columns are left out and every target field
// is claimed by at most one column (first in column order wins).
func Suggest(columns []string, synonyms map[string]string) models.FieldMapping {
	var mapping models.FieldMapping
	claimed := map[string]bool{}
	for _, column := range columns {
		key := strings.ToLower(strings.TrimSpace(column))
		target, ok := synonyms[key]
		if !ok || claimed[target] {
			continue
		}
		claimed[target] = true
		mapping = append(mapping, models.FieldMappingEntry{Source: column, Target: target})
	}
	return mapping
}

// Normalize validates a user-submitted column -> target mapping and returns it
// in source column order. It rejects unknown target fields, duplicate targets,
// and sources that do not exist in the file's columns.
func Normalize(raw map[string]string, columns []string) (models.FieldMapping, error) {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}

	targetBy := map[string]string{}
	for source, target := range raw {
		if !known[source] {
			return nil, fmt.Errorf("unknown source column: %s", source)
		}
		if !models.IsTargetField(target) {
			return nil, fmt.Errorf("unknown target field: %s", target)
		}
		if prev, dup := findSource(targetBy, target); dup {
			return nil, fmt.Errorf("target field %s mapped from both %s and %s", target, prev, source)
		}
		targetBy[source] = target
	}

	// Deterministic order: follow the file's column order
	var mapping models.FieldMapping
	for _, column := range columns {
		if target, ok := targetBy[column]; ok {
			mapping = append(mapping, models.FieldMappingEntry{Source: column, Target: target})
		}
	}
	if len(mapping) == 0 {
		return nil, fmt.Errorf("mapping is empty")
	}
	if !mapping.HasTarget(models.FieldName) {
		return nil, fmt.Errorf("mapping must include the %s field", models.FieldName)
	}
	return mapping, nil
}

func findSource(targetBy map[string]string, target string) (string, bool) {
	for source, t := range targetBy {
		if t == target {
			return source, true
		}
	}
	return "", false
}
