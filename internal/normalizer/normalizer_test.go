package normalizer_test

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certmap/internal/domain"
	"certmap/internal/mapper"
	"certmap/internal/normalizer"
)

func field(v string, conf float64) *domain.Field {
	return &domain.Field{Value: v, Confidence: conf}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12.03.2024", "2024-03-12", true},
		{"12 . 03 . 2024", "2024-03-12", true},
		{"March 12, 2024", "2024-03-12", true},
		{"12 März 2024", "2024-03-12", true},
		{"12 Marz 2024", "2024-03-12", true},
		{"3. Oktober 2023", "2023-10-03", true},
		{"Sept 5 2022", "2022-09-05", true},
		{"2024-03-12", "2024-03-12", true},
		{"2024/03/12", "2024-03-12", true},
		{"2024-03-12T10:00:00Z", "2024-03-12", true},
		{"01/02/30", "2030-02-01", true},
		{"01-02-85", "1985-02-01", true},
		{"01.02.50", "2050-02-01", true},
		{"31.02.2024", "", false},
		{"12 Foo 2024", "", false},
		{"sometime in spring", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizer.ParseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_DateFields(t *testing.T) {
	out := normalizer.Normalize(&domain.Mapping{
		IssuedDate: field("  12 März 2024 ", 0.6),
		StartDate:  field("next spring", 0.6),
	})

	require.NotNil(t, out)
	assert.Equal(t, "2024-03-12", out.IssuedDate.Value)
	assert.Equal(t, domain.DateFormatISO, out.IssuedDate.Format)
	assert.Equal(t, "  12 März 2024 ", out.IssuedDate.Original)

	assert.Equal(t, "next spring", out.StartDate.Value)
	assert.Empty(t, out.StartDate.Format)
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
		{-0.5, 0},
		{1.7, 1},
		{0.456, 0.46},
		{0.6 + 0.4, 1},
		{0.333333, 0.33},
	}
	for _, tt := range tests {
		got := normalizer.Confidence(tt.in)
		assert.Equal(t, tt.want, got)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
		assert.Equal(t, got, math.Round(got*100)/100)
	}
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "ACME Corp", normalizer.CleanString("Issued by: \x00ACME\t\n  Corp\x7f"))
	assert.Equal(t, "Go Basics", normalizer.CleanString("Title: Certificate - Go Basics"))
	assert.Equal(t, "Jane Doe", normalizer.CleanString("recipient - Jane Doe"))
	assert.Equal(t, "Certificate of Completion", normalizer.CleanString("Certificate of Completion"))
	assert.Equal(t, "Issuer Relations Team", normalizer.CleanString("Issuer Relations Team"))
	assert.Equal(t, "", normalizer.CleanString("issuer:"))

	long := strings.Repeat("abc ", 600)
	assert.Len(t, []rune(normalizer.CleanString(long)), normalizer.MaxFieldLength-1)
}

func TestNormalize_RecipientAddress(t *testing.T) {
	valid := "0x" + strings.Repeat("AbCdEf0123", 4)
	short := "0x" + strings.Repeat("A", 39)
	long := "0x" + strings.Repeat("B", 41)

	out := normalizer.Normalize(&domain.Mapping{RecipientAddress: field(valid, 0.98)})
	require.NotNil(t, out)
	assert.Equal(t, strings.ToLower(valid), out.RecipientAddress.Value)

	out = normalizer.Normalize(&domain.Mapping{RecipientAddress: field(short, 0.98)})
	assert.Equal(t, short, out.RecipientAddress.Value)

	out = normalizer.Normalize(&domain.Mapping{RecipientAddress: field(long, 0.98)})
	assert.Equal(t, long, out.RecipientAddress.Value)

	out = normalizer.Normalize(&domain.Mapping{RecipientAddress: field("0xABCDEF0123456789ABCDEF0123456789ABCDEF01", 0.98)})
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", out.RecipientAddress.Value)
}

func TestNormalize_Lists(t *testing.T) {
	out := normalizer.Normalize(&domain.Mapping{
		Skills: &domain.ListField{Value: []string{" Go ", "SQL", "", "Go", "  ", "Docker\n"}, Confidence: 0.6},
	})

	require.NotNil(t, out)
	assert.Equal(t, []string{"Go", "SQL", "Docker"}, out.Skills.Value)
	assert.Equal(t, " Go , SQL, , Go,   , Docker\n", out.Skills.Original)

	assert.Nil(t, normalizer.Normalize(&domain.Mapping{Skills: &domain.ListField{Value: []string{" ", ""}}}))
}

func TestNormalize_LinkBackfillFromDescription(t *testing.T) {
	out := normalizer.Normalize(&domain.Mapping{
		Description: &domain.Field{
			Value:    "Verify at http://verify.example.com/abc/ today",
			Original: "Verify at https://verify.example.com/abc",
		},
	})

	require.NotNil(t, out)
	require.NotNil(t, out.UsefulLinks)
	assert.Equal(t, []string{"https://verify.example.com/abc"}, out.UsefulLinks.Value)
	assert.Equal(t, 0.8, out.UsefulLinks.Confidence)
}

func TestNormalize_EmptyResults(t *testing.T) {
	assert.Nil(t, normalizer.Normalize(nil))
	assert.Nil(t, normalizer.Normalize(&domain.Mapping{}))
	assert.Nil(t, normalizer.Normalize(&domain.Mapping{Title: field(" \t ", 0.9), Issuer: field("issued by:", 0.5)}))
}

func TestNormalize_KeepsSourcesTrimmed(t *testing.T) {
	idx := 2
	out := normalizer.Normalize(&domain.Mapping{Title: &domain.Field{
		Value:   "Title",
		Sources: []domain.Source{{Page: 1, ItemIndex: &idx, BBox: &domain.BBox{X: 1, Y: 2, W: 3, H: 4}, Text: "  Title "}},
	}})

	require.NotNil(t, out)
	require.Len(t, out.Title.Sources, 1)
	assert.Equal(t, "Title", out.Title.Sources[0].Text)
	assert.Equal(t, 2, *out.Title.Sources[0].ItemIndex)
	assert.Equal(t, 4.0, out.Title.Sources[0].BBox.H)
}

func TestNormalize_Idempotent(t *testing.T) {
	cases := []*domain.Mapping{
		{
			Title:            field("Title:  Certificate: Advanced\tGo ", 1.2),
			Issuer:           field("issued by - issuer: Gophers e.V.", math.NaN()),
			StartDate:        field("12 . 03 . 2024", 0.6),
			EndDate:          field("März 14, 2024", 0.6),
			IssuedDate:       field("tomorrow", -1),
			Description:      field("see http://example.com/x/ for details", 0.5),
			Recipient:        field("Recipient: Jane", 0.75),
			RecipientAddress: field("0xABCDEF0123456789ABCDEF0123456789ABCDEF01", 0.98),
			Category:         field("Course", 0.754),
			Skills:           &domain.ListField{Value: []string{"Go", " go", "Go "}, Confidence: 0.55},
		},
		{Title: field(strings.Repeat("x ", 800)+"end", 0.5)},
		mapper.Map(&domain.Extraction{PlainText: "Hackathon 2024\nIssued by: Devs\n2024-01-01 to 02.01.2024\nSkills: Go, Rust\n" + domain.PageBreak}),
		mapper.Map(nil),
	}
	for i, m := range cases {
		once := normalizer.Normalize(m)
		twice := normalizer.Normalize(once)
		assert.Equal(t, once, twice, "case %d", i)
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	in := &domain.Mapping{Title: field("  Title: X ", 2)}
	normalizer.Normalize(in)
	assert.Equal(t, "  Title: X ", in.Title.Value)
	assert.Equal(t, 2.0, in.Title.Confidence)
}
