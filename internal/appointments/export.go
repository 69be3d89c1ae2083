package appointments

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

var exportHeaders = []string{
	"ID",
	"Ticket Number",
	"Name",
	"Phone",
	"National ID (Masked)",
	"Created At",
	"Scheduled Date",
	"Status",
	"Completion Hour",
	"Symptoms",
	"Procedures",
	"Image Paths",
	"Voice Note Path",
}

var exportWidths = []float64{38, 18, 24, 14, 22, 22, 14, 12, 14, 40, 40, 50, 50}

func exportRow(a *Appointment) []string {
	nid := "N/A"
	if a.NationalID != "" {
		nid = logging.MaskID(a.NationalID)
	}
	return []string{
		a.ID,
		strconv.FormatInt(a.TicketNumber, 10),
		a.Name,
		a.Phone,
		nid,
		a.CreatedAt.UTC().Format(time.RFC3339),
		a.ScheduledDate,
		string(a.Status),
		a.CompletionHour,
		a.Symptoms,
		strings.Join(a.ProceduresDone, "; "),
		strings.Join(a.ImagePaths, ";"),
		a.VoiceNotePath,
	}
}

// WriteCSV writes appointments as CSV with national IDs masked.
func WriteCSV(w io.Writer, items []*Appointment) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return fmt.Errorf("appointments: write csv header: %w", err)
	}
	for _, a := range items {
		if err := cw.Write(exportRow(a)); err != nil {
			return fmt.Errorf("appointments: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("appointments: flush csv: %w", err)
	}
	return nil
}

// WriteXLSX writes appointments as a single-sheet workbook with national IDs masked.
func WriteXLSX(w io.Writer, items []*Appointment) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Appointments"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("appointments: create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("appointments: drop default sheet: %w", err)
	}
	if index, err := f.GetSheetIndex(sheet); err == nil {
		f.SetActiveSheet(index)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("appointments: header style: %w", err)
	}

	for col, header := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("appointments: header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("appointments: set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("appointments: style header %s: %w", cell, err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("appointments: column name: %w", err)
		}
		if err := f.SetColWidth(sheet, name, name, exportWidths[col]); err != nil {
			return fmt.Errorf("appointments: column width: %w", err)
		}
	}

	for i, a := range items {
		for col, value := range exportRow(a) {
			if value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("appointments: data cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("appointments: set %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("appointments: freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("appointments: write xlsx: %w", err)
	}
	return nil
}
