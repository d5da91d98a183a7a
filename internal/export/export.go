package export

import (
	"fmt"
	"io"
	"sort"

	"courtbook/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Bookings"

var reportHeaders = []string{
	"ID", "Court", "Date", "Start", "End", "Requester",
	"Status", "Payment", "Price", "Currency", "Created At",
}

// WriteBookingsReport renders a month of bookings as an xlsx workbook. Rows
// are ordered by date then start time so the sheet reads like a schedule.
func WriteBookingsReport(w io.Writer, month string, bookings []*models.Booking) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Bookings report: %s", month))
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)
	lastCol, _ := excelize.ColumnNumberToName(len(reportHeaders))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range reportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	sorted := append([]*models.Booking(nil), bookings...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		if sorted[i].StartTime != sorted[j].StartTime {
			return sorted[i].StartTime < sorted[j].StartTime
		}
		return sorted[i].CourtID < sorted[j].CourtID
	})

	for i, booking := range sorted {
		row := i + 3
		values := []interface{}{
			booking.ID,
			booking.CourtID,
			booking.Date,
			booking.StartTime,
			booking.EndTime,
			booking.RequesterID,
			booking.Status,
			booking.PaymentStatus,
			float64(booking.Price) / 100,
			booking.Currency,
			booking.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, value)
		}
		if styleID, err := rowStyle(f, booking.Status); err == nil && styleID != 0 {
			startCell, _ := excelize.CoordinatesToCellName(1, row)
			endCell, _ := excelize.CoordinatesToCellName(len(values), row)
			_ = f.SetCellStyle(sheetName, startCell, endCell, styleID)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "F", 14)
	_ = f.SetColWidth(sheetName, "G", "K", 12)

	_ = f.DeleteSheet("Sheet1")

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func rowStyle(f *excelize.File, status string) (int, error) {
	var color string
	switch status {
	case models.StatusConfirmed, models.StatusCompleted:
		color = "#C6EFCE"
	case models.StatusHolding:
		color = "#FFEB9C"
	case models.StatusCancelled:
		color = "#FFC7CE"
	default:
		return 0, nil
	}
	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
}
