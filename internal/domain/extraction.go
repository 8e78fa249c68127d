package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// PageBreak separates page texts inside Extraction.PlainText.
const PageBreak = "\n\f\n"

// BBox is an axis-aligned rectangle in viewport coordinates (origin top-left).
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// TextItem is one positioned run of text shown on a page.
type TextItem struct {
	Str       string     `json:"str"`
	BBox      BBox       `json:"bbox"`
	Transform [6]float64 `json:"transform"`
	FontSize  float64    `json:"fontSize,omitempty"`
	Width     float64    `json:"width"`
}

// Page holds the text items of a single page in content-stream order.
type Page struct {
	PageNumber int        `json:"pageNumber"`
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
	Items      []TextItem `json:"items"`
}

// Text joins the page's item strings with single spaces.
func (p *Page) Text() string {
	parts := make([]string, len(p.Items))
	for i := range p.Items {
		parts[i] = p.Items[i].Str
	}
	return strings.Join(parts, " ")
}

// Extraction is the layout-aware text content of a document.
type Extraction struct {
	Pages     []Page `json:"pages"`
	PlainText string `json:"plainText"`
}

// PageTexts splits PlainText back into per-page text.
func (e *Extraction) PageTexts() []string {
	if e == nil || e.PlainText == "" {
		return nil
	}
	parts := strings.Split(e.PlainText, PageBreak)
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// Scan implements sql.Scanner for JSON columns.
func (e *Extraction) Scan(src interface{}) error {
	return scanJSON(src, e)
}

// Value implements driver.Valuer for JSON columns.
func (e Extraction) Value() (driver.Value, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
