package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paysim/paysim/internal/params"
)

func executeValidate(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateDefaults(t *testing.T) {
	out, err := executeValidate(t, "text")
	require.NoError(t, err)

	fp, err := params.Fingerprint(params.Default())
	require.NoError(t, err)
	assert.Contains(t, out, "✓ default parameters valid")
	assert.Contains(t, out, "fingerprint: "+fp)
}

func TestValidateConfigJSON(t *testing.T) {
	config := writeConfig(t, "seed: 9\nsteps: 4\nclients: 12\n")

	out, err := executeValidate(t, "json", "--config", config)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, config, resp.Data.Config)
	assert.Equal(t, int64(9), resp.Data.Seed)
	assert.Equal(t, 4, resp.Data.Steps)
	assert.Equal(t, 12, resp.Data.Clients)

	p, err := params.Load(config)
	require.NoError(t, err)
	fp, err := params.Fingerprint(p)
	require.NoError(t, err)
	assert.Equal(t, fp, resp.Data.Fingerprint)
}

func TestValidateFingerprintFollowsOverrides(t *testing.T) {
	config := writeConfig(t, "seed: 9\n")

	a, err := executeValidate(t, "text", "--config", config)
	require.NoError(t, err)
	b, err := executeValidate(t, "text", "--config", config, "--seed", "10")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name     string
		config   string
		exitCode int
		wantOut  string
	}{
		{
			name:     "schema violation",
			config:   "clients: 1\n",
			exitCode: ExitFailure,
			wantOut:  "do not match schema",
		},
		{
			name:     "semantic violation",
			config:   "initial_balance_min: \"500\"\ninitial_balance_max: \"100\"\n",
			exitCode: ExitFailure,
			wantOut:  "field: initial_balance",
		},
		{
			name:     "malformed yaml",
			config:   "seed: [1\n",
			exitCode: ExitCommandError,
			wantOut:  "Error [E_PARAMS]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeValidate(t, "text", "--config", writeConfig(t, tt.config))
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestValidateMissingFile(t *testing.T) {
	out, err := executeValidate(t, "json", "--config", "/nonexistent/params.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParams, resp.Error.Code)
}
