package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeParams, "invalid parameters", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParams, resp.Error.Code)
	assert.Equal(t, "invalid parameters", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "params.yaml", "field": "steps"}
	err := formatter.Error(ErrCodeParams, "invalid parameters", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("parameters valid")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "parameters valid")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error(ErrCodeIO, "failed to read reference", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E_IO]")
	assert.Contains(t, buf.String(), "failed to read reference")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"file": "params.yaml"}
	err := formatter.Error(ErrCodeParams, "invalid parameters", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E_PARAMS]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Loading %s", "params.yaml")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Loading params.yaml")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestCLIResponse_JSON(t *testing.T) {
	resp := CLIResponse{
		Status: "ok",
		Data:   map[string]int{"count": 42},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded CLIResponse
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "ok", decoded.Status)
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    ErrCodeMismatch,
		Message: "stream does not match reference",
		Details: []string{"line 3"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, ErrCodeMismatch, decoded.Code)
	assert.Equal(t, "stream does not match reference", decoded.Message)
}

type renderedResult struct{ n int }

func (r renderedResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "rendered %d\n", r.n)
}

func TestOutputFormatter_TextRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(renderedResult{n: 3}))
	assert.Equal(t, "rendered 3\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Error(ErrCodeEngine, "simulation failed", renderedResult{n: 4}))
	assert.Equal(t, "Error [E_ENGINE]: simulation failed\nrendered 4\n", buf.String())
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("Loaded %d records", 12)
	assert.Empty(t, out.String())
	assert.Equal(t, "Loaded 12 records\n", errOut.String())
}
