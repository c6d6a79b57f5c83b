// Package export renders booking listings as spreadsheets.
package export

import (
	"fmt"
	"io"
	"time"

	"safepaw/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Bookings"

var headers = []string{
	"ID", "Status", "Service", "Start date", "Start time", "End date", "End time",
	"Pet", "Pet type", "Address", "Price (COP)", "Payment reference", "Created at",
}

// ContentType is the media type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// FileName builds the attachment name for a caregiver export.
func FileName(caregiverID string, now time.Time) string {
	return fmt.Sprintf("safepaw_%s_%s.xlsx", caregiverID, now.Format("2006-01-02"))
}

// WriteBookings writes bookings to w as a single-sheet workbook, one row each,
// with timestamps rendered in loc.
func WriteBookings(w io.Writer, bookings []*models.Booking, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("error deleting default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle)

	for i, b := range bookings {
		row := []interface{}{
			b.ID,
			string(b.Status),
			b.Service,
			b.StartDate,
			b.StartTime,
			b.EndDate,
			b.EndTime,
			b.PetName,
			b.PetType,
			b.Address,
			float64(b.PriceInCents) / 100,
			b.PaymentReference,
			b.CreatedAt.In(loc).Format("2006-01-02 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("error writing row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", lastCol, 16)
	_ = f.SetColWidth(sheetName, "J", "J", 32)
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}
