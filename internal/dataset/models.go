package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// Row is one pre-written question from a question sheet
type Row struct {
	// Number is the 1-based data row in the source file
	Number    int    `json:"number"`
	Question  string `json:"question"`
	ImagePath string `json:"image_path,omitempty"`
	Category  string `json:"category,omitempty"`
	// Expected is an optional reference answer handed to the judge
	Expected string `json:"expected_answer,omitempty"`
}

// parquetRow maps the fixed column names a parquet question sheet must use
type parquetRow struct {
	Question  string `parquet:"question,optional"`
	ImagePath string `parquet:"image_path,optional"`
	Category  string `parquet:"category,optional"`
	Expected  string `parquet:"expected_answer,optional"`
}

// Recognized header names, in priority order
var (
	QuestionColumns = []string{"question", "questions", "問題", "query", "user_query"}
	ImageColumns    = []string{"image_path", "image", "圖片路徑", "image_file"}
	CategoryColumns = []string{"category", "類別", "分類"}
	ExpectedColumns = []string{"expected_answer", "reference_answer", "標準答案"}
)

// ErrNoQuestionColumn means no header matched QuestionColumns
var ErrNoQuestionColumn = errors.New("no question column found")

// Columns holds the header index for each field; -1 when the sheet lacks it
type Columns struct {
	Question int
	Image    int
	Category int
	Expected int
}

// DetectColumns finds the question column (required) and the optional
// columns in a header row. Matching ignores case and surrounding space.
func DetectColumns(header []string) (Columns, error) {
	cols := Columns{
		Question: find(header, QuestionColumns),
		Image:    find(header, ImageColumns),
		Category: find(header, CategoryColumns),
		Expected: find(header, ExpectedColumns),
	}
	if cols.Question < 0 {
		return cols, fmt.Errorf("%w: expected one of %s, got %s",
			ErrNoQuestionColumn,
			strings.Join(QuestionColumns, ", "),
			strings.Join(header, ", "))
	}
	return cols, nil
}

func find(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

// row builds a Row from a record, returning false for blank questions
func (c Columns) row(number int, record []string) (Row, bool) {
	r := Row{
		Number:    number,
		Question:  cell(record, c.Question),
		ImagePath: cell(record, c.Image),
		Category:  cell(record, c.Category),
		Expected:  cell(record, c.Expected),
	}
	if r.Question == "" || strings.EqualFold(r.Question, "nan") {
		return r, false
	}
	return r, true
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	v := strings.TrimSpace(record[idx])
	if strings.EqualFold(v, "nan") {
		return ""
	}
	return v
}
