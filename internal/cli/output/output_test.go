package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "table", input: "table", want: FormatTable},
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "JSON uppercase", input: "JSON", want: FormatJSON},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "whitespace trimmed", input: "  yaml  ", want: FormatYAML},
		{name: "invalid format", input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type worker struct {
	Name     string `json:"name" yaml:"name"`
	InFlight int    `json:"in_flight" yaml:"in_flight"`
}

func TestPrint_Table(t *testing.T) {
	tbl := NewTable("NAME", "IN FLIGHT")
	tbl.AddRow("key-1", "2")
	tbl.AddRow("key-2", "0")

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, FormatTable, nil, tbl))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "key-1")
	assert.Contains(t, out, "key-2")
}

func TestPrint_JSONAndYAML(t *testing.T) {
	data := []worker{{Name: "key-1", InFlight: 2}}

	var js bytes.Buffer
	require.NoError(t, Print(&js, FormatJSON, data, nil))
	assert.JSONEq(t, `[{"name":"key-1","in_flight":2}]`, js.String())

	var ym bytes.Buffer
	require.NoError(t, Print(&ym, FormatYAML, data, nil))
	assert.Contains(t, ym.String(), "name: key-1")
	assert.Contains(t, ym.String(), "in_flight: 2")
}

func TestPrint_TableWithoutRendererFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, FormatTable, worker{Name: "x"}, nil))
	assert.JSONEq(t, `{"name":"x","in_flight":0}`, buf.String())
}

func TestPrintPairs(t *testing.T) {
	var buf bytes.Buffer
	PrintPairs(&buf, [][2]string{{"Entries", "3"}, {"Bytes", "3.1 MB"}})
	assert.Contains(t, buf.String(), "Entries")
	assert.Contains(t, buf.String(), "3.1 MB")
}
