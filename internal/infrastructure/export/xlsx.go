package export

import (
	"context"
	"fmt"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	summarySheet = "Request"
	historySheet = "History"
	timeLayout   = "2006-01-02 15:04:05"
)

var historyHeader = []string{"#", "Time", "Actor", "Action", "From", "To", "Description", "Comment", "Client IP"}

// XLSXExporter renders request history as an Excel workbook
type XLSXExporter struct {
	logger *zap.Logger
}

// NewXLSXExporter creates a new XLSXExporter
func NewXLSXExporter(logger *zap.Logger) port.HistoryExporter {
	return &XLSXExporter{logger: logger}
}

func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *XLSXExporter) FileExtension() string { return "xlsx" }

// Export writes a summary sheet for req and one row per history entry
func (e *XLSXExporter) Export(ctx context.Context, req *entity.PurchaseRequest, entries []*entity.HistoryEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// the default sheet becomes the summary
	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	e.fillSummary(f, req)

	if _, err := f.NewSheet(historySheet); err != nil {
		return nil, fmt.Errorf("failed to create history sheet: %w", err)
	}
	if err := e.fillHistory(f, entries); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("History exported",
		zap.Int64("request_id", req.ID),
		zap.Int("entries", len(entries)),
		zap.Int("size", buf.Len()))

	return buf.Bytes(), nil
}

func (e *XLSXExporter) fillSummary(f *excelize.File, req *entity.PurchaseRequest) {
	amount := ""
	if req.Amount != nil {
		amount = req.Amount.StringFixed(2)
	}
	category := ""
	if req.Category != nil {
		category = *req.Category
	}

	rows := [][2]interface{}{
		{"Request", req.ID},
		{"Title", req.Title},
		{"Requester", req.RequesterID},
		{"Amount", amount},
		{"Category", category},
		{"Status", req.Status},
		{"Created", req.CreatedAt.Format(timeLayout)},
		{"Rejection reason", req.RejectionReason},
		{"Notes", req.Notes},
	}
	for i, row := range rows {
		e.setCell(f, summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		e.setCell(f, summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}
}

func (e *XLSXExporter) fillHistory(f *excelize.File, entries []*entity.HistoryEntry) error {
	header := make([]interface{}, len(historyHeader))
	for i, h := range historyHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(historySheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, entry := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		row := []interface{}{
			i + 1,
			entry.CreatedAt.Format(timeLayout),
			entry.ActorID,
			entry.Action,
			entry.StatusFrom,
			entry.StatusTo,
			entry.Description,
			entry.Comment,
			entry.ClientIP,
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	return nil
}

// setCell sets a cell value, logging instead of failing on a bad cell
func (e *XLSXExporter) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		e.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}
