package inquiry

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Inquiries"

var exportHeaders = []string{
	"ID", "Created At", "Status", "First Name", "Last Name", "Email",
	"Nationality", "Spoken Language", "Contact Method", "Contact ID",
	"Treatment", "Preferred Date", "Flexible", "Lead Quality", "Priority Score",
	"Attachments", "Message",
}

var exportWidths = []float64{8, 20, 12, 16, 16, 28, 12, 14, 14, 22, 20, 14, 9, 12, 12, 12, 60}

// WriteXLSX renders rows (already decrypted) as a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []Inquiry) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, headerStyle); err != nil {
			return err
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(exportSheet, name, name, exportWidths[col]); err != nil {
			return err
		}
	}

	for i, inq := range rows {
		values := []interface{}{
			inq.ID,
			inq.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			inq.Status,
			deref(inq.FirstName),
			deref(inq.LastName),
			deref(inq.Email),
			deref(inq.Nationality),
			deref(inq.SpokenLanguage),
			deref(inq.ContactMethod),
			deref(inq.ContactID),
			inq.TreatmentType,
			deref(inq.PreferredDate),
			inq.PreferredDateFlex,
			deref(inq.LeadQuality),
			derefInt(inq.PriorityScore),
			attachmentCount(&inq),
			deref(inq.Message),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	_, err = f.WriteTo(w)
	return err
}

func attachmentCount(inq *Inquiry) int {
	n := len(inq.AttachmentList())
	if inq.Attachment != nil && strings.TrimSpace(*inq.Attachment) != "" {
		n++
	}
	return n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int) interface{} {
	if n == nil {
		return ""
	}
	return *n
}
