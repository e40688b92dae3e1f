package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strings"
	"testing"

	"insight-assistant-be/internal/pkg/logger"
	"insight-assistant-be/pkg/assistant"
	"insight-assistant-be/pkg/assistant/assistanttest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newNormalizer() (*Normalizer, *assistanttest.Client) {
	client := assistanttest.New()
	return NewNormalizer(client, logger.NewNopLogger()), client
}

func ingestedRecords(t *testing.T, client *assistanttest.Client, contextID string) []map[string]any {
	t.Helper()
	raw, ok := client.Ingested[contextID]
	require.True(t, ok, "context %s was not ingested", contextID)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(raw, &records))
	return records
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestNormalizeCSV(t *testing.T) {
	n, client := newNormalizer()
	body := "region,sales,active\nNorth,100,true\n\nSouth,250.5,false\nEast,,TRUE\n"

	staged, err := n.Normalize(t.Context(), Upload{
		Filename: "reports/q3.csv",
		MIMEType: "text/csv; charset=utf-8",
		Body:     strings.NewReader(body),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, staged.RecordCount)
	assert.Equal(t, "reports/q3.csv", staged.SourceFilename)
	assert.Equal(t, []string{"region", "sales", "active"}, staged.Columns)
	assert.False(t, staged.StagedAt.IsZero())
	assert.Equal(t, "q3.json", client.Files[staged.ContextID])

	records := ingestedRecords(t, client, staged.ContextID)
	require.Len(t, records, 3)
	assert.Equal(t, "North", records[0]["region"])
	assert.Equal(t, 100.0, records[0]["sales"])
	assert.Equal(t, true, records[0]["active"])
	assert.Equal(t, 250.5, records[1]["sales"])
	assert.Nil(t, records[2]["sales"])
	assert.Equal(t, true, records[2]["active"])
}

func TestNormalizeKeepsColumnOrderAndIndent(t *testing.T) {
	n, client := newNormalizer()

	staged, err := n.Normalize(t.Context(), Upload{
		Filename: "z.csv",
		MIMEType: MIMECSV,
		Body:     strings.NewReader("zeta,alpha\n1,x\n"),
	})
	require.NoError(t, err)

	want := "[\n    {\n        \"zeta\": 1,\n        \"alpha\": \"x\"\n    }\n]"
	assert.Equal(t, want, string(client.Ingested[staged.ContextID]))
}

func TestNormalizeRecordCountAndFieldSets(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		body     string
		headers  []string
		rows     int
	}{
		{"comma", MIMECSV, "a,b,c\n1,2,3\n4,5,6\n", []string{"a", "b", "c"}, 2},
		{"application csv", MIMECSVAlt, "id,name\n1,x\n", []string{"id", "name"}, 1},
		{"plain text", MIMEText, "id,name\n1,x\n2,y\n3,z\n", []string{"id", "name"}, 3},
		{"tab", MIMETSV, "id\tnote\n1\thello, world\n", []string{"id", "note"}, 1},
		{"header only", MIMECSV, "id,name\n", []string{"id", "name"}, 0},
		{"short rows padded", MIMECSV, "a,b,c\n1\n2,3\n", []string{"a", "b", "c"}, 2},
		{"delimiter only row", MIMECSV, "a,b\n1,2\n,\n3,4\n", []string{"a", "b"}, 3},
		{"empty lines skipped", MIMECSV, "a,b\n1,2\n\n3,4\n", []string{"a", "b"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, client := newNormalizer()
			staged, err := n.Normalize(t.Context(), Upload{Filename: "d.csv", MIMEType: tt.mimeType, Body: strings.NewReader(tt.body)})
			require.NoError(t, err)
			assert.Equal(t, tt.rows, staged.RecordCount)

			records := ingestedRecords(t, client, staged.ContextID)
			assert.Len(t, records, tt.rows)
			want := append([]string(nil), tt.headers...)
			sort.Strings(want)
			for _, rec := range records {
				assert.Equal(t, want, keys(rec))
			}
		})
	}
}

func TestNormalizeBlankHeaderGetsPositionalName(t *testing.T) {
	n, client := newNormalizer()

	staged, err := n.Normalize(t.Context(), Upload{Filename: "x.csv", MIMEType: MIMECSV, Body: strings.NewReader("id,,name\n1,a,b\n")})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "Unnamed: 1", "name"}, staged.Columns)

	records := ingestedRecords(t, client, staged.ContextID)
	assert.Equal(t, "a", records[0]["Unnamed: 1"])
}

func TestNormalizeXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"product", "units", "price"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"widget", 3, 9.5}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"gadget", 7, 12}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	n, client := newNormalizer()
	staged, err := n.Normalize(t.Context(), Upload{Filename: "inventory.xlsx", MIMEType: MIMEXLSX, Body: buf})
	require.NoError(t, err)

	assert.Equal(t, 2, staged.RecordCount)
	assert.Equal(t, []string{"product", "units", "price"}, staged.Columns)
	assert.Equal(t, "inventory.json", client.Files[staged.ContextID])

	records := ingestedRecords(t, client, staged.ContextID)
	assert.Equal(t, "gadget", records[1]["product"])
	assert.Equal(t, 7.0, records[1]["units"])
	assert.Equal(t, 9.5, records[0]["price"])
}

func TestNormalizeDelimiterOnlyRowIsAllNull(t *testing.T) {
	n, client := newNormalizer()

	staged, err := n.Normalize(t.Context(), Upload{Filename: "gaps.csv", MIMEType: MIMECSV, Body: strings.NewReader("a,b\n1,2\n,\n3,4\n")})
	require.NoError(t, err)
	assert.Equal(t, 3, staged.RecordCount)

	records := ingestedRecords(t, client, staged.ContextID)
	require.Len(t, records, 3)
	assert.Equal(t, map[string]any{"a": nil, "b": nil}, records[1])
	assert.Equal(t, 3.0, records[2]["a"])
}

func TestNormalizeXLS(t *testing.T) {
	body, err := os.ReadFile("testdata/sample.xls")
	require.NoError(t, err)

	n, client := newNormalizer()
	staged, err := n.Normalize(t.Context(), Upload{Filename: "regions.xls", MIMEType: MIMEXLS, Body: bytes.NewReader(body)})
	require.NoError(t, err)

	// row 3 is absent from the sheet and row 5 has no values
	assert.Equal(t, 2, staged.RecordCount)
	assert.Equal(t, []string{"region", "units", "price", "active"}, staged.Columns)
	assert.Equal(t, "regions.json", client.Files[staged.ContextID])

	records := ingestedRecords(t, client, staged.ContextID)
	require.Len(t, records, 2)
	assert.Equal(t, "North", records[0]["region"])
	assert.Equal(t, 3.0, records[0]["units"])
	assert.Equal(t, 9.5, records[0]["price"])
	assert.Equal(t, true, records[0]["active"])
	assert.Equal(t, "South", records[1]["region"])
	assert.Equal(t, 7.0, records[1]["units"])
	assert.Nil(t, records[1]["price"])
	assert.Equal(t, false, records[1]["active"])
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		body     string
		wantErr  error
	}{
		{"unsupported type", "application/pdf", "%PDF-1.4", ErrUnsupportedFormat},
		{"json is not sniffed", "application/json", `[{"a":1}]`, ErrUnsupportedFormat},
		{"empty file", MIMECSV, "", ErrMalformedInput},
		{"whitespace only", MIMECSV, " \n\n", ErrMalformedInput},
		{"duplicate headers", MIMECSV, "id,id\n1,2\n", ErrMalformedInput},
		{"row wider than header", MIMECSV, "a,b\n1,2,3\n", ErrMalformedInput},
		{"broken quoting", MIMECSV, "a,b\n\"x,1\n", ErrMalformedInput},
		{"corrupt xlsx", MIMEXLSX, "not a zip archive", ErrMalformedInput},
		{"corrupt xls", MIMEXLS, "not a compound document", ErrMalformedInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, client := newNormalizer()
			_, err := n.Normalize(t.Context(), Upload{Filename: "bad", MIMEType: tt.mimeType, Body: strings.NewReader(tt.body)})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, client.Count("IngestDocument"))
		})
	}
}

func TestNormalizeIngestionFailure(t *testing.T) {
	n, client := newNormalizer()
	client.IngestErr = assistant.Transient(errors.New("connection reset"))

	_, err := n.Normalize(t.Context(), Upload{Filename: "a.csv", MIMEType: MIMECSV, Body: strings.NewReader("a\n1\n")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIngestionFailed)
	assert.True(t, assistant.IsTransient(err))
	assert.Equal(t, 1, client.Count("IngestDocument"))
}

func TestIngestName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"sales.csv", "sales.json"},
		{"dir/sub/q3.xlsx", "q3.json"},
		{`C:\Users\me\data.tsv`, "data.json"},
		{"noext", "noext.json"},
		{"", "dataset.json"},
		{"archive.tar.gz", "archive.tar.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IngestName(tt.in), tt.in)
	}
}
