package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certmap/internal/domain"
)

func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(stdin)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rawMapping = false
		compact = false
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name string, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func certificateExtraction() *domain.Extraction {
	lines := []string{"Certificate of Completion", "Issued by: Go Academy", "Awarded to Jane Doe", "12.03.2024"}
	page := domain.Page{PageNumber: 1, Width: 612, Height: 792}
	for i, l := range lines {
		h := 12.0
		if i == 0 {
			h = 28
		}
		page.Items = append(page.Items, domain.TextItem{
			Str:  l,
			BBox: domain.BBox{X: 72, Y: 100 + float64(i)*40, W: 300, H: h},
		})
	}
	return &domain.Extraction{Pages: []domain.Page{page}, PlainText: strings.Join(lines, "\n") + domain.PageBreak}
}

func TestCommands_Registered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["extract"])
	assert.True(t, names["map"])
	assert.True(t, names["normalize"])
}

func TestMapCmd_FromExtractionJSON(t *testing.T) {
	path := writeFile(t, "extraction.json", certificateExtraction())

	out, err := execute(t, nil, "map", path)
	require.NoError(t, err)

	var m domain.Mapping
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	require.NotNil(t, m.Title)
	assert.Equal(t, "Certificate of Completion", m.Title.Value)
	require.NotNil(t, m.IssuedDate)
	assert.Equal(t, "2024-03-12", m.IssuedDate.Value)
	assert.Equal(t, domain.DateFormatISO, m.IssuedDate.Format)
}

func TestMapCmd_Compact(t *testing.T) {
	path := writeFile(t, "extraction.json", certificateExtraction())

	out, err := execute(t, nil, "map", "--compact", path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestMapCmd_NoFieldsFallsBackToOtherCategory(t *testing.T) {
	path := writeFile(t, "empty.json", &domain.Extraction{})

	out, err := execute(t, nil, "map", path)
	require.NoError(t, err)

	var m domain.Mapping
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	require.NotNil(t, m.Category)
	assert.Equal(t, "Other", m.Category.Value)
	assert.Equal(t, 0.35, m.Category.Confidence)
	assert.Nil(t, m.Title)
	assert.Nil(t, m.Issuer)
}

func TestMapCmd_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := execute(t, nil, "map", path)
	assert.Error(t, err)
}

func TestExtractCmd_MissingFile(t *testing.T) {
	_, err := execute(t, nil, "extract", filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInputNotFound)
}

func TestExtractCmd_RequiresOneArg(t *testing.T) {
	_, err := execute(t, nil, "extract")
	assert.Error(t, err)
}

func TestNormalizeCmd_FromFile(t *testing.T) {
	path := writeFile(t, "mapping.json", &domain.Mapping{
		Title:      &domain.Field{Value: "Title: Certificate - Go Basics", Confidence: 1.7},
		IssuedDate: &domain.Field{Value: "12 März 2024", Confidence: 0.5},
	})

	out, err := execute(t, nil, "normalize", path)
	require.NoError(t, err)

	var m domain.Mapping
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	require.NotNil(t, m.Title)
	assert.Equal(t, "Go Basics", m.Title.Value)
	assert.LessOrEqual(t, m.Title.Confidence, 1.0)
	require.NotNil(t, m.IssuedDate)
	assert.Equal(t, "2024-03-12", m.IssuedDate.Value)
}

func TestNormalizeCmd_FromStdin(t *testing.T) {
	in := strings.NewReader(`{"issuedDate":{"value":"March 12, 2024","confidence":0.6}}`)

	out, err := execute(t, in, "normalize", "-")
	require.NoError(t, err)

	var m domain.Mapping
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	require.NotNil(t, m.IssuedDate)
	assert.Equal(t, "2024-03-12", m.IssuedDate.Value)
}
