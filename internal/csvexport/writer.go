// Package csvexport writes document listings with their mapped fields as CSV.
package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"certmap/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// ContentType is the MIME type of the export.
const ContentType = "text/csv; charset=utf-8"

// columns defines the CSV header row (20 columns).
var columns = []string{
	"Document ID",
	"File Name",
	"Content Type",
	"File Size",
	"Status",
	"Uploader",
	"Mapping Accepted",
	"Title",
	"Issuer",
	"Recipient",
	"Issued Date",
	"Start Date",
	"End Date",
	"Category",
	"Skills",
	"Useful Links",
	"Processing Error",
	"Accepted At",
	"Processed At",
	"Created At",
}

// Writer wraps csv.Writer for exporting documents as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteDocuments converts a batch of documents to CSV rows and writes them.
func (w *Writer) WriteDocuments(docs []domain.Document) error {
	for i := range docs {
		if err := w.csv.Write(documentToRow(&docs[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// documentToRow converts a single document to a row. Mapping columns stay
// empty until the document has a mapping.
func documentToRow(doc *domain.Document) []string {
	row := make([]string, len(columns))

	row[0] = doc.ID.String()
	row[1] = doc.FileName
	row[2] = doc.ContentType
	row[3] = strconv.FormatInt(doc.FileSize, 10)
	row[4] = string(doc.Status)
	row[5] = doc.Uploader
	row[6] = formatBool(doc.MappingAccepted)
	row[16] = doc.ProcessingError
	row[17] = formatTime(doc.MappingAcceptedAt)
	row[18] = formatTime(doc.ProcessingFinishedAt)
	row[19] = doc.CreatedAt.UTC().Format(time.RFC3339)

	m := doc.Mapping
	if m == nil {
		return row
	}
	row[7] = fieldValue(m.Title)
	row[8] = fieldValue(m.Issuer)
	row[9] = fieldValue(m.Recipient)
	row[10] = fieldValue(m.IssuedDate)
	row[11] = fieldValue(m.StartDate)
	row[12] = fieldValue(m.EndDate)
	row[13] = fieldValue(m.Category)
	row[14] = listValue(m.Skills)
	row[15] = listValue(m.UsefulLinks)

	return row
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
	return strings.Join(f.Value, "; ")
}

func formatBool(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// BuildFilename returns documents_{YYYY-MM-DD}.csv.
func BuildFilename(now time.Time) string {
	return fmt.Sprintf("documents_%s.csv", now.Format("2006-01-02"))
}
