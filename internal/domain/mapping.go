package domain

import (
	"database/sql/driver"
	"encoding/json"
)

// DateFormatISO is the format tag set on dates normalized to YYYY-MM-DD.
const DateFormatISO = "YYYY-MM-DD"

// Source points a mapped field back at the text item it was derived from.
type Source struct {
	Page      int    `json:"page,omitempty"`
	ItemIndex *int   `json:"itemIndex,omitempty"`
	BBox      *BBox  `json:"bbox,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Field is a single-valued mapped field.
type Field struct {
	Value      string   `json:"value"`
	Original   string   `json:"original,omitempty"`
	Format     string   `json:"format,omitempty"`
	Confidence float64  `json:"confidence"`
	Sources    []Source `json:"sources,omitempty"`
}

// ListField is a multi-valued mapped field.
type ListField struct {
	Value      []string `json:"value"`
	Original   string   `json:"original,omitempty"`
	Confidence float64  `json:"confidence"`
	Sources    []Source `json:"sources,omitempty"`
}

// Mapping is the sparse set of suggested form fields for a certificate.
// A nil field means no value was found.
type Mapping struct {
	Title            *Field     `json:"title,omitempty"`
	Issuer           *Field     `json:"issuer,omitempty"`
	UsefulLinks      *ListField `json:"usefulLinks,omitempty"`
	StartDate        *Field     `json:"startDate,omitempty"`
	EndDate          *Field     `json:"endDate,omitempty"`
	IssuedDate       *Field     `json:"issuedDate,omitempty"`
	Description      *Field     `json:"description,omitempty"`
	Skills           *ListField `json:"skills,omitempty"`
	Recipient        *Field     `json:"recipient,omitempty"`
	RecipientAddress *Field     `json:"recipientAddress,omitempty"`
	Category         *Field     `json:"category,omitempty"`
}

// IsEmpty reports whether no field is set.
func (m *Mapping) IsEmpty() bool {
	if m == nil {
		return true
	}
	for _, f := range m.StringFields() {
		if *f.Field != nil {
			return false
		}
	}
	return m.UsefulLinks == nil && m.Skills == nil
}

// NamedField addresses one single-valued field of a Mapping by its JSON name.
type NamedField struct {
	Name  string
	Field **Field
}

// StringFields lists the single-valued fields in declaration order.
func (m *Mapping) StringFields() []NamedField {
	return []NamedField{
		{"title", &m.Title},
		{"issuer", &m.Issuer},
		{"startDate", &m.StartDate},
		{"endDate", &m.EndDate},
		{"issuedDate", &m.IssuedDate},
		{"description", &m.Description},
		{"recipient", &m.Recipient},
		{"recipientAddress", &m.RecipientAddress},
		{"category", &m.Category},
	}
}

// Summary returns field name to display value, each value cut to maxLen runes.
func (m *Mapping) Summary(maxLen int) map[string]string {
	out := map[string]string{}
	if m == nil {
		return out
	}
	for _, nf := range m.StringFields() {
		if f := *nf.Field; f != nil {
			out[nf.Name] = Truncate(f.Value, maxLen)
		}
	}
	if m.UsefulLinks != nil {
		out["usefulLinks"] = Truncate(joinList(m.UsefulLinks.Value), maxLen)
	}
	if m.Skills != nil {
		out["skills"] = Truncate(joinList(m.Skills.Value), maxLen)
	}
	return out
}

// Truncate cuts s to n runes and marks the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func joinList(vals []string) string {
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

// Scan implements sql.Scanner for JSON columns.
func (m *Mapping) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// Value implements driver.Valuer for JSON columns.
func (m Mapping) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
