package httpapi

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/domain"

	"github.com/xuri/excelize/v2"
)

// AlertExportHeader 报警导出表头
var AlertExportHeader = []string{
	"Alert ID",
	"Sensor ID",
	"Alert Type",
	"Triggered Value",
	"Limit Value",
	"Unit",
	"Message",
	"Topic",
	"Resolved",
	"Triggered At",
	"Resolved At",
}

// GenerateAlertExport 生成报警导出Excel文件
// alerts为空时只生成表头
func GenerateAlertExport(alerts []*domain.Alert) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo需要文件保持打开，错误路径上单独Close

	sheetName := "Alerts"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range AlertExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for row, item := range alerts {
		resolvedAt := ""
		if item.ResolvedAt != nil {
			resolvedAt = item.ResolvedAt.UTC().Format(time.RFC3339)
		}
		values := []any{
			item.AlertID,
			item.SensorID,
			string(item.Kind),
			item.TriggeredValue,
			item.LimitValue,
			item.Unit,
			item.Message,
			item.Topic,
			item.IsResolved,
			item.TriggeredAt.UTC().Format(time.RFC3339),
			resolvedAt,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	// 列宽按内容手工调校
	columnWidths := []float64{38, 20, 12, 15, 12, 8, 45, 30, 10, 22, 22}
	for col, width := range columnWidths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resolve column name: %w", err)
		}
		if err := f.SetColWidth(sheetName, name, name, width); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write excel: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close excel file: %w", err)
	}

	return buf.Bytes(), nil
}
