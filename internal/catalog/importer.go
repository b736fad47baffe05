package catalog

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/kanadeck/pkg/models"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for files whose extension has no loader
var ErrUnsupportedFormat = errors.New("catalog: unsupported file format")

// ImportConfig defines how rows are read from csv and xlsx files
type ImportConfig struct {
	FilePath              string // Path to the catalog file
	SymbolColumn          string // Column with the symbol
	TransliterationColumn string // Column with the transliteration
	CategoryColumn        string // Column with the category, may be empty
	SheetName             string // Sheet to import, empty means the first sheet
	StartRow              int    // The row to start importing from (1-based), 0 detects a header row
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		SymbolColumn:          "A",
		TransliterationColumn: "B",
		CategoryColumn:        "C",
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	Items          []models.Item
	TotalProcessed int
	Skipped        int
	Errors         []string
}

// Import reads catalog items from a json, yaml, csv or xlsx file
func Import(config ImportConfig) (*ImportResult, error) {
	switch ext := strings.ToLower(filepath.Ext(config.FilePath)); ext {
	case ".json":
		return importStructured(config.FilePath, decodeJSON)
	case ".yaml", ".yml":
		return importStructured(config.FilePath, decodeYAML)
	case ".csv":
		return importFromCSV(config)
	case ".xlsx":
		return importFromExcel(config)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Load imports a file with the default configuration and validates the result
func Load(path string) ([]models.Item, error) {
	config := DefaultImportConfig()
	config.FilePath = path

	result, err := Import(config)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("failed to import %s: %s", path, strings.Join(result.Errors, "; "))
	}
	if err := Validate(result.Items); err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", path, err)
	}
	return result.Items, nil
}

// Export writes items as a JSON array that Import reads back
func Export(w io.Writer, items []models.Item) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return nil
}

// rawItem accepts both our field names and the kana/roumaji/type names of older exports
type rawItem struct {
	Symbol          string `json:"symbol" yaml:"symbol"`
	Kana            string `json:"kana" yaml:"kana"`
	Transliteration string `json:"transliteration" yaml:"transliteration"`
	Roumaji         string `json:"roumaji" yaml:"roumaji"`
	Category        string `json:"category" yaml:"category"`
	Type            string `json:"type" yaml:"type"`
}

func (r rawItem) item() models.Item {
	item := models.Item{
		Symbol:          r.Symbol,
		Transliteration: r.Transliteration,
		Category:        r.Category,
	}
	if item.Symbol == "" {
		item.Symbol = r.Kana
	}
	if item.Transliteration == "" {
		item.Transliteration = r.Roumaji
	}
	if item.Category == "" {
		item.Category = r.Type
	}
	item.Symbol = strings.TrimSpace(item.Symbol)
	item.Transliteration = cleanTransliteration(item.Transliteration)
	item.Category = strings.TrimSpace(item.Category)
	return item
}

func decodeJSON(data []byte) ([]rawItem, error) {
	var raw []rawItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	return raw, nil
}

func decodeYAML(data []byte) ([]rawItem, error) {
	var raw []rawItem
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}
	return raw, nil
}

// importStructured imports a json or yaml array of items
func importStructured(path string, decode func([]byte) ([]rawItem, error)) (*ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	raw, err := decode(data)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, r := range raw {
		result.TotalProcessed++
		if err := result.add(r.item()); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Item %d: %v", i+1, err))
		}
	}
	return result, nil
}

// importFromExcel imports items from an Excel file
func importFromExcel(config ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := config.SheetName
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("excel file %s has no sheets", config.FilePath)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	return importRows(rows, config), nil
}

// importFromCSV imports items from a CSV file
func importFromCSV(config ImportConfig) (*ImportResult, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV: %w", err)
	}

	return importRows(rows, config), nil
}

// importRows turns spreadsheet rows into items, collecting per-row errors
func importRows(rows [][]string, config ImportConfig) *ImportResult {
	result := &ImportResult{Errors: make([]string, 0)}

	startRow := config.StartRow
	if startRow <= 0 {
		startRow = 1
		if len(rows) > 0 && isHeaderRow(rows[0], config) {
			startRow = 2
		}
	}

	for i, row := range rows {
		rowNum := i + 1
		if rowNum < startRow {
			continue
		}
		if isBlankRow(row) {
			result.Skipped++
			continue
		}

		result.TotalProcessed++
		if err := result.add(rowItem(row, config)); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
		}
	}

	return result
}

func (r *ImportResult) add(item models.Item) error {
	if item.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if item.Transliteration == "" {
		return fmt.Errorf("transliteration cannot be empty")
	}
	r.Items = append(r.Items, item)
	return nil
}

// rowItem extracts an item from a row using the configured columns
func rowItem(row []string, config ImportConfig) models.Item {
	var item models.Item
	if colIdx := columnToIndex(config.SymbolColumn); colIdx >= 0 && colIdx < len(row) {
		item.Symbol = strings.TrimSpace(row[colIdx])
	}
	if colIdx := columnToIndex(config.TransliterationColumn); colIdx >= 0 && colIdx < len(row) {
		item.Transliteration = cleanTransliteration(row[colIdx])
	}
	if config.CategoryColumn != "" {
		if colIdx := columnToIndex(config.CategoryColumn); colIdx >= 0 && colIdx < len(row) {
			item.Category = strings.TrimSpace(row[colIdx])
		}
	}
	return item
}

var headerNames = map[string]bool{
	"symbol":    true,
	"kana":      true,
	"character": true,
}

func isHeaderRow(row []string, config ImportConfig) bool {
	colIdx := columnToIndex(config.SymbolColumn)
	if colIdx < 0 || colIdx >= len(row) {
		return false
	}
	return headerNames[strings.ToLower(strings.TrimSpace(row[colIdx]))]
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// cleanTransliteration drops alternative spellings in parentheses, "shi (si)" → "shi"
func cleanTransliteration(s string) string {
	if idx := strings.Index(s, "("); idx > 0 {
		s = s[:idx]
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// columnToIndex converts an Excel column letter to a zero-based index
func columnToIndex(column string) int {
	column = strings.ToUpper(strings.TrimSpace(column))
	index := 0
	for i := 0; i < len(column); i++ {
		if column[i] < 'A' || column[i] > 'Z' {
			return -1
		}
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
