package export

import (
	"fmt"
	"io"
	"time"

	"roadassist/internal/models"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the request rows.
const SheetName = "Requests"

const timeLayout = "2006-01-02 15:04"

var headers = []string{
	"Request ID", "Status", "Service", "Vehicle", "Customer ID", "Mechanic ID",
	"Address", "Latitude", "Longitude", "Cost", "Created", "Accepted", "Completed", "Cancelled",
}

var statusFill = map[string]string{
	models.StatusPending:    "#FFEB9C",
	models.StatusAccepted:   "#DDEBF7",
	models.StatusInProgress: "#DDEBF7",
	models.StatusCompleted:  "#C6EFCE",
	models.StatusCancelled:  "#FFC7CE",
	models.StatusRejected:   "#FFC7CE",
}

// WriteRequests renders reqs as an XLSX workbook into w.
func WriteRequests(w io.Writer, reqs []*models.ServiceRequest, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(SheetName); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")
	if index, err := f.GetSheetIndex(SheetName); err == nil {
		f.SetActiveSheet(index)
	}

	if err := writeHeaders(f); err != nil {
		return err
	}

	styles := make(map[string]int, len(statusFill))
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return fmt.Errorf("create style: %w", err)
		}
		styles[status] = id
	}

	for i, req := range reqs {
		row := i + 2
		if err := f.SetSheetRow(SheetName, fmt.Sprintf("A%d", row), &[]any{
			req.RequestID,
			req.Status,
			req.ServiceType,
			vehicle(req),
			req.EndUserID,
			optionalInt(req.MechanicID),
			req.Address,
			req.Latitude,
			req.Longitude,
			optionalFloat(req.Cost),
			req.CreatedAt.UTC().Format(timeLayout),
			optionalTime(req.AcceptedAt),
			optionalTime(req.CompletedAt),
			optionalTime(req.CancelledAt),
		}); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		if style, ok := styles[req.Status]; ok {
			cell := fmt.Sprintf("B%d", row)
			_ = f.SetCellStyle(SheetName, cell, cell, style)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 24)
	_ = f.SetColWidth(SheetName, "B", "D", 16)
	_ = f.SetColWidth(SheetName, "G", "G", 36)
	_ = f.SetColWidth(SheetName, "K", "N", 18)
	_ = f.SetDocProps(&excelize.DocProperties{
		Title:   "Service requests",
		Created: generatedAt.UTC().Format(time.RFC3339),
	})

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeHeaders(f *excelize.File) error {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &row); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(SheetName, "A1", last, style)
	return f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func vehicle(req *models.ServiceRequest) string {
	out := req.VehicleType
	if req.VehicleMake != "" || req.VehicleModel != "" {
		out = fmt.Sprintf("%s %s %s", req.VehicleType, req.VehicleMake, req.VehicleModel)
	}
	if req.VehicleNumber != "" {
		out += " (" + req.VehicleNumber + ")"
	}
	return out
}

func optionalInt(v *int64) any {
	if v == nil {
		return ""
	}
	return *v
}

func optionalFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
