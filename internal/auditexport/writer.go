// Package auditexport renders a document's mapping audit trail as an XLSX workbook.
package auditexport

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"certmap/internal/domain"
)

// SheetName is the name of the single worksheet in the export.
const SheetName = "Audit"

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// columns defines the header row.
var columns = []string{
	"Mapping ID",
	"Created At",
	"Method",
	"Accepted By",
	"Error",
	"Title",
	"Issuer",
	"Issued Date",
	"Start Date",
	"End Date",
	"Recipient",
	"Recipient Address",
	"Category",
	"Useful Links",
	"Skills",
	"Description",
}

// Writer streams audit entries into a workbook.
type Writer struct {
	file   *excelize.File
	stream *excelize.StreamWriter
	row    int
}

// NewWriter creates a Writer backed by a fresh workbook.
func NewWriter() (*Writer, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("auditexport.NewWriter: %w", err)
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("auditexport.NewWriter: %w", err)
	}
	if err := sw.SetColWidth(1, len(columns), 22); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("auditexport.NewWriter: %w", err)
	}
	return &Writer{file: f, stream: sw, row: 1}, nil
}

// WriteHeader writes the bold header row.
func (w *Writer) WriteHeader() error {
	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("auditexport.WriteHeader: %w", err)
	}
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	return w.writeRow(row, excelize.RowOpts{StyleID: style})
}

// WriteEntries appends one row per audit entry.
func (w *Writer) WriteEntries(entries []domain.AuditEntry) error {
	for i := range entries {
		if err := w.writeRow(entryToRow(&entries[i])); err != nil {
			return err
		}
	}
	return nil
}

// WriteTo flushes the sheet and writes the workbook to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	if err := w.stream.Flush(); err != nil {
		return 0, fmt.Errorf("auditexport.WriteTo: %w", err)
	}
	return w.file.WriteTo(out)
}

// Close releases the workbook's temporary resources.
func (w *Writer) Close() error {
	return w.file.Close()
}

func (w *Writer) writeRow(values []interface{}, opts ...excelize.RowOpts) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.stream.SetRow(cell, values, opts...); err != nil {
		return fmt.Errorf("auditexport: row %d: %w", w.row, err)
	}
	w.row++
	return nil
}

func entryToRow(e *domain.AuditEntry) []interface{} {
	m := e.Mapping
	if m == nil {
		m = &domain.Mapping{}
	}
	return []interface{}{
		e.MappingID.String(),
		e.CreatedAt.UTC().Format(time.RFC3339),
		string(e.Method),
		e.AcceptedBy,
		e.Error,
		fieldValue(m.Title),
		fieldValue(m.Issuer),
		fieldValue(m.IssuedDate),
		fieldValue(m.StartDate),
		fieldValue(m.EndDate),
		fieldValue(m.Recipient),
		fieldValue(m.RecipientAddress),
		fieldValue(m.Category),
		listValue(m.UsefulLinks),
		listValue(m.Skills),
		fieldValue(m.Description),
	}
}

func fieldValue(f *domain.Field) string {
	if f == nil {
		return ""
	}
	return f.Value
}

func listValue(f *domain.ListField) string {
	if f == nil {
		return ""
	}
	return strings.Join(f.Value, "\n")
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a name for use in Content-Disposition.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns {name}_audit_{YYYY-MM-DD}.xlsx for a document file name.
func BuildFilename(fileName string) string {
	base := strings.TrimSuffix(fileName, ".pdf")
	sanitized := SanitizeFilename(base)
	if sanitized == "" {
		sanitized = "document"
	}
	return fmt.Sprintf("%s_audit_%s.xlsx", sanitized, time.Now().Format("2006-01-02"))
}
