// Package dataset reads question sheets: spreadsheets, CSV, parquet or JSONL
// files holding pre-written questions for a test run.
package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"
)

// SupportedExtensions lists the question sheet formats Load understands
var SupportedExtensions = []string{".xlsx", ".xlsm", ".csv", ".parquet", ".jsonl", ".json"}

// IsSheet reports whether path has a question sheet extension
func IsSheet(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Loader handles loading of question sheets
type Loader struct {
	datasetPath string
}

// NewLoader creates a new dataset loader
func NewLoader(datasetPath string) *Loader {
	return &Loader{
		datasetPath: datasetPath,
	}
}

// Load loads every row with a question. Rows without a category take the
// sheet's file name; relative image paths are resolved against the sheet's
// directory when the file exists there.
func (l *Loader) Load() ([]Row, error) {
	return l.LoadSample(0)
}

// LoadSample loads at most limit rows. A limit of zero or less loads all.
func (l *Loader) LoadSample(limit int) ([]Row, error) {
	ext := strings.ToLower(filepath.Ext(l.datasetPath))

	var rows []Row
	var err error
	switch ext {
	case ".xlsx", ".xlsm":
		rows, err = l.loadExcel()
	case ".csv":
		rows, err = l.loadCSV()
	case ".parquet":
		rows, err = l.loadParquet()
	case ".jsonl", ".json":
		rows, err = l.loadJSONL()
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: %s)", ext, strings.Join(SupportedExtensions, ", "))
	}
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	defaultCategory := strings.TrimSuffix(filepath.Base(l.datasetPath), filepath.Ext(l.datasetPath))
	dir := filepath.Dir(l.datasetPath)
	for i := range rows {
		if rows[i].Category == "" {
			rows[i].Category = defaultCategory
		}
		rows[i].ImagePath = resolveImage(dir, rows[i].ImagePath)
	}

	slog.Debug("Loaded question sheet", "path", l.datasetPath, "rows", len(rows))
	return rows, nil
}

func resolveImage(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	candidate := filepath.Join(dir, p)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return p
}

// loadExcel reads the first worksheet of a workbook
func (l *Loader) loadExcel() ([]Row, error) {
	slog.Debug("Opening workbook", "path", l.datasetPath)

	f, err := excelize.OpenFile(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", l.datasetPath)
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	slog.Debug("Workbook sheet read", "sheet", sheets[0], "rows", len(records))
	return fromRecords(records)
}

// loadCSV reads a comma separated file with a header row
func (l *Loader) loadCSV() ([]Row, error) {
	file, err := os.Open(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(bufio.NewReader(file))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return fromRecords(records)
}

func fromRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("sheet is empty")
	}

	cols, err := DetectColumns(records[0])
	if err != nil {
		return nil, err
	}

	var rows []Row
	for i, record := range records[1:] {
		if r, ok := cols.row(i+1, record); ok {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// loadJSONL loads one object per line
func (l *Loader) loadJSONL() ([]Row, error) {
	slog.Debug("Opening JSONL file", "path", l.datasetPath)

	file, err := os.Open(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	var rows []Row
	scanner := bufio.NewScanner(file)

	// Increase buffer size for long answers
	const maxCapacity = 10 * 1024 * 1024 // 10MB per line
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()

		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var record map[string]interface{}
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}

		header := make([]string, 0, len(record))
		values := make([]string, 0, len(record))
		for k, v := range record {
			header = append(header, k)
			values = append(values, stringify(v))
		}

		cols, err := DetectColumns(header)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if r, ok := cols.row(lineNum, values); ok {
			rows = append(rows, r)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading dataset: %w", err)
	}

	slog.Debug("Finished reading JSONL file", "total_rows", len(rows), "total_lines", lineNum)

	return rows, nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// loadParquet loads rows from a Parquet file. Parquet sheets use the
// canonical column names: question, image_path, category, expected_answer.
func (l *Loader) loadParquet() ([]Row, error) {
	slog.Debug("Opening Parquet file", "path", l.datasetPath)

	file, err := os.Open(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	slog.Debug("Parquet file opened successfully", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[parquetRow](pf)
	defer reader.Close()

	var rows []Row
	batch := make([]parquetRow, 128) // Read in batches
	number := 0

	for {
		n, err := reader.Read(batch)
		for _, pr := range batch[:n] {
			number++
			r, ok := Columns{Question: 0, Image: 1, Category: 2, Expected: 3}.row(number, []string{
				pr.Question, pr.ImagePath, pr.Category, pr.Expected,
			})
			if ok {
				rows = append(rows, r)
			}
		}
		if err != nil {
			break
		}
	}

	slog.Debug("Finished reading Parquet file", "total_rows", len(rows))

	return rows, nil
}
