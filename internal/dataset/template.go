package dataset

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const templateSheet = "questions"

// SampleRows are written by WriteTemplate to show the expected layout
var SampleRows = []Row{
	{Question: "什麼是焊接式連接器？它的主要特點和應用場景是什麼？", Category: "connectors"},
	{Question: "除了PCB板以外，電子產品中還有哪些重要的材料？請詳細說明。", Category: "materials"},
	{Question: "連接器有哪些不同的分類方式？每種類型有什麼特點？", Category: "connectors"},
	{Question: "What crimp height is required for a 22 AWG terminal?", ImagePath: "images/wiring/crimp.png", Category: "wiring"},
}

// WriteTemplate writes a question workbook with the recognized headers and
// the given rows. Nil rows writes SampleRows.
func WriteTemplate(path string, rows []Row) error {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".xlsx" {
		return fmt.Errorf("template must be an .xlsx file, got %s", ext)
	}
	if rows == nil {
		rows = SampleRows
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", templateSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := []string{"question", "image_path", "category", "expected_answer"}
	for i, h := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(templateSheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetCellStyle(templateSheet, "A1", "D1", bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetColWidth(templateSheet, "A", "A", 70); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}
	if err := f.SetColWidth(templateSheet, "B", "D", 30); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	for i, r := range rows {
		values := []string{r.Question, r.ImagePath, r.Category, r.Expected}
		for j, v := range values {
			if v == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(templateSheet, cell, v); err != nil {
				return fmt.Errorf("failed to write row %d: %w", i+1, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
