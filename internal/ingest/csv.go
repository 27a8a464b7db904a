// Package ingest loads flat-file datasets into records with stable row
// indices and resolves each dataset's logical field mapping from its headers.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/meridian-data/crossmatch/internal/match"
	"github.com/meridian-data/crossmatch/internal/model"
)

// Dataset is one loaded flat file: its records in row order, the raw column
// headers, and the resolved field mapping.
type Dataset struct {
	Mapping model.FieldMapping
	Columns []string
	Records []model.Record
}

// headerSynonyms are the header names recognized per role when no explicit
// hint is configured. Comparison happens on normalized headers.
var headerSynonyms = map[model.FieldRole][]string{
	model.RoleVendor:   {"vendor", "manufacturer", "brand", "supplier"},
	model.RoleProduct:  {"product", "product name", "name", "title"},
	model.RoleSKU:      {"sku", "part number", "mpn", "item number"},
	model.RoleMarket:   {"market", "country", "region"},
	model.RoleLanguage: {"language", "lang", "locale"},
}

// LoadCSV reads a CSV dataset, handling byte-order marks and falling back to
// Windows-1252 when the bytes are not valid UTF-8. Row indices are assigned
// in file order and stay stable for the life of the load. maxRows caps the
// dataset size; exceeding it is an error.
func LoadCSV(path string, hints map[model.FieldRole]string, maxRows int) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}

	decoded, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", path, err)
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("dataset %s has no data rows", path)
	}

	columns := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		columns[i] = strings.TrimSpace(h)
	}

	dataRows := rows[1:]
	if maxRows > 0 && len(dataRows) > maxRows {
		return nil, fmt.Errorf("dataset %s has %d rows, exceeding the %d row cap", path, len(dataRows), maxRows)
	}

	records := make([]model.Record, len(dataRows))
	for i, row := range dataRows {
		records[i] = model.NewRecord(i, columns, row)
	}

	mapping, err := resolveMapping(columns, hints)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}

	slog.Info("Loaded dataset",
		"path", path,
		"rows", len(records),
		"columns", len(columns))

	return &Dataset{
		Records: records,
		Columns: columns,
		Mapping: mapping,
	}, nil
}

// decode handles byte-order marks (UTF-8 and both UTF-16 flavors) and falls
// back to Windows-1252 when BOM-less bytes are not valid UTF-8.
func decode(raw []byte) ([]byte, error) {
	if hasBOM(raw) {
		bomAware := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		decoded, _, err := transform.Bytes(bomAware, raw)
		if err != nil {
			return nil, err
		}
		return decoded, nil
	}

	if utf8.Valid(raw) {
		return raw, nil
	}

	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), raw)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func hasBOM(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) ||
		bytes.HasPrefix(raw, []byte{0xFE, 0xFF}) ||
		bytes.HasPrefix(raw, []byte{0xFF, 0xFE})
}

// resolveMapping binds logical roles to physical columns. Explicit hints win
// and must name an existing column; otherwise headers are matched against the
// synonym table on their normalized form. Vendor and product are required.
func resolveMapping(columns []string, hints map[model.FieldRole]string) (model.FieldMapping, error) {
	normalized := make(map[string]string, len(columns))
	for _, col := range columns {
		key := match.Normalize(col)
		if _, exists := normalized[key]; !exists {
			normalized[key] = col
		}
	}

	mapping := make(model.FieldMapping)

	for role, hint := range hints {
		if hint == "" {
			continue
		}
		col, ok := normalized[match.Normalize(hint)]
		if !ok {
			return nil, fmt.Errorf("configured %s column %q not found in headers", role, hint)
		}
		mapping[role] = col
	}

	for role, synonyms := range headerSynonyms {
		if _, done := mapping[role]; done {
			continue
		}
		for _, synonym := range synonyms {
			if col, ok := normalized[match.Normalize(synonym)]; ok {
				mapping[role] = col
				break
			}
		}
	}

	if mapping[model.RoleVendor] == "" || mapping[model.RoleProduct] == "" {
		return nil, fmt.Errorf("could not resolve vendor and product columns from headers %v", columns)
	}

	return mapping, nil
}
