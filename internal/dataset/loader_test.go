package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func TestNewLoader(t *testing.T) {
	path := "./questions.xlsx"
	loader := NewLoader(path)

	if loader.datasetPath != path {
		t.Errorf("Expected path %s, got %s", path, loader.datasetPath)
	}
}

func TestDetectColumns(t *testing.T) {
	tests := []struct {
		name     string
		header   []string
		expected Columns
		wantErr  bool
	}{
		{
			name:     "canonical",
			header:   []string{"question", "image_path", "category"},
			expected: Columns{Question: 0, Image: 1, Category: 2, Expected: -1},
		},
		{
			name:     "chinese headers",
			header:   []string{"編號", "問題", "圖片路徑"},
			expected: Columns{Question: 1, Image: 2, Category: -1, Expected: -1},
		},
		{
			name:     "case and space",
			header:   []string{" User_Query ", "Image"},
			expected: Columns{Question: 0, Image: 1, Category: -1, Expected: -1},
		},
		{
			name:     "priority order",
			header:   []string{"query", "question"},
			expected: Columns{Question: 1, Image: -1, Category: -1, Expected: -1},
		},
		{
			name:    "missing question",
			header:  []string{"prompt", "image"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectColumns(tt.header)
			if tt.wantErr {
				if !errors.Is(err, ErrNoQuestionColumn) {
					t.Errorf("Expected ErrNoQuestionColumn, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "img"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "img", "a.png"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "smoke.csv")
	content := "\ufeff問題,圖片路徑\n什麼是連接器？,img/a.png\n,\nnan,\nPCB板的作用是什麼？,missing.png\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rows, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d: %+v", len(rows), rows)
	}

	if rows[0].Question != "什麼是連接器？" || rows[0].Number != 1 {
		t.Errorf("Unexpected first row %+v", rows[0])
	}
	if rows[0].ImagePath != filepath.Join(dir, "img", "a.png") {
		t.Errorf("Expected image resolved against sheet dir, got %s", rows[0].ImagePath)
	}
	if rows[1].ImagePath != "missing.png" {
		t.Errorf("Expected unresolvable path kept as-is, got %s", rows[1].ImagePath)
	}
	if rows[0].Category != "smoke" {
		t.Errorf("Expected category from file name, got %s", rows[0].Category)
	}
}

func TestLoadJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.jsonl")
	content := `{"query": "What is FFC preload?", "category": "ffc"}

{"question": "How is LVDS cable tested?", "expected_answer": "With a TDR."}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rows, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].Category != "ffc" || rows[1].Category != "questions" {
		t.Errorf("Unexpected categories %q, %q", rows[0].Category, rows[1].Category)
	}
	if rows[1].Expected != "With a TDR." {
		t.Errorf("Expected reference answer, got %q", rows[1].Expected)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.xlsx")
	if err := WriteTemplate(path, nil); err != nil {
		t.Fatalf("WriteTemplate failed: %v", err)
	}

	rows, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(rows) != len(SampleRows) {
		t.Fatalf("Expected %d rows, got %d", len(SampleRows), len(rows))
	}
	for i, r := range rows {
		if r.Question != SampleRows[i].Question {
			t.Errorf("Row %d: expected %q, got %q", i, SampleRows[i].Question, r.Question)
		}
		if r.Category != SampleRows[i].Category {
			t.Errorf("Row %d: expected category %q, got %q", i, SampleRows[i].Category, r.Category)
		}
	}
}

func TestWriteTemplateRejectsOtherFormats(t *testing.T) {
	if err := WriteTemplate(filepath.Join(t.TempDir(), "t.csv"), nil); err == nil {
		t.Error("Expected error for non-xlsx template")
	}
}

func TestLoadParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.parquet")
	input := []parquetRow{
		{Question: "What is the strip length?", Category: "wiring"},
		{Question: ""},
		{Question: "Which solder alloy is used?", ImagePath: "/abs/solder.jpg"},
	}
	if err := parquet.WriteFile(path, input); err != nil {
		t.Fatalf("failed to write parquet: %v", err)
	}

	rows, err := NewLoader(path).LoadSample(5)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[1].ImagePath != "/abs/solder.jpg" || rows[1].Number != 3 {
		t.Errorf("Unexpected row %+v", rows[1])
	}
}

func TestLoadSampleLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.csv")
	if err := os.WriteFile(path, []byte("question\na?\nb?\nc?\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rows, err := NewLoader(path).LoadSample(2)
	if err != nil {
		t.Fatalf("LoadSample failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(rows))
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := NewLoader("questions.txt").Load(); err == nil {
		t.Error("Expected error for unsupported format")
	}
	if IsSheet("a.txt") || !IsSheet("A.XLSX") {
		t.Error("IsSheet misclassified extensions")
	}
}
