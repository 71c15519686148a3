// Пакет export — выгрузка спроецированных списков в XLSX.
// Колонки берутся из проекции роли: поле, скрытое от роли, не попадает
// в файл даже заголовком.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bigkaa/pastorale/internal/domain/projection"
)

// SheetVisitors — имя листа выгрузки посетителей.
const SheetVisitors = "Visiteurs"

// ContentType — MIME-тип XLSX.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// VisitorsXLSX формирует книгу с одним листом: заголовок из fields,
// далее по строке на запись.
func VisitorsXLSX(fields []string, records []projection.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetVisitors)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания листа: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("ошибка удаления листа по умолчанию: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания стиля заголовка: %w", err)
	}

	for col, field := range fields {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("ошибка адреса ячейки: %w", err)
		}
		if err := f.SetCellValue(SheetVisitors, cell, field); err != nil {
			return nil, fmt.Errorf("ошибка записи заголовка %s: %w", cell, err)
		}
		if err := f.SetCellStyle(SheetVisitors, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("ошибка стиля заголовка: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("ошибка имени колонки: %w", err)
		}
		if err := f.SetColWidth(SheetVisitors, name, name, 20); err != nil {
			return nil, fmt.Errorf("ошибка ширины колонки: %w", err)
		}
	}

	for i, rec := range records {
		row := i + 2
		for col, field := range fields {
			value := cellValue(rec[field])
			if value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, fmt.Errorf("ошибка адреса ячейки: %w", err)
			}
			if err := f.SetCellValue(SheetVisitors, cell, value); err != nil {
				return nil, fmt.Errorf("ошибка записи ячейки %s: %w", cell, err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("ошибка формирования XLSX: %w", err)
	}
	return buf.Bytes(), nil
}

// cellValue приводит значение проекции к тексту ячейки.
func cellValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case bool:
		if x {
			return "oui"
		}
		return "non"
	case []string:
		return strings.Join(x, ", ")
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.UTC().Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
