package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	code := Run([]string{"attestixd", "version"}, strings.NewReader(""), &stdout, &bytes.Buffer{})
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "attestixd")
}

func TestRun_Help(t *testing.T) {
	var stdout bytes.Buffer
	code := Run([]string{"attestixd", "help"}, strings.NewReader(""), &stdout, &bytes.Buffer{})
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "usage:")
}

func TestRun_Health(t *testing.T) {
	var stdout bytes.Buffer
	code := Run([]string{"attestixd", "health"}, strings.NewReader(""), &stdout, &bytes.Buffer{})
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "OK")
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"attestixd", "bogus"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "unknown command")
}

func TestRun_Serve_DispatchesOneRequestThenExitsOnEOF(t *testing.T) {
	t.Setenv("STORE_DIR", t.TempDir())
	t.Setenv("ANCHORING_DISABLED", "true")
	t.Setenv("OTEL_ENABLED", "false")

	input := `{"id":1,"tool":"create_agent_identity","args":{"display_name":"test"}}` + "\n"
	var stdout, stderr bytes.Buffer

	code := Run([]string{"attestixd", "serve"}, strings.NewReader(input), &stdout, &stderr)
	require.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 1)

	var resp struct {
		ID     float64 `json:"id"`
		Result map[string]any
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &resp))
	require.Equal(t, float64(1), resp.ID)
	require.NotEmpty(t, resp.Result["agent_id"])
}

func TestRun_Serve_UnknownToolRendersErrorEnvelope(t *testing.T) {
	t.Setenv("STORE_DIR", t.TempDir())
	t.Setenv("ANCHORING_DISABLED", "true")
	t.Setenv("OTEL_ENABLED", "false")

	input := `{"id":"x","tool":"no_such_tool","args":{}}` + "\n"
	var stdout, stderr bytes.Buffer

	code := Run([]string{"attestixd", "serve"}, strings.NewReader(input), &stdout, &stderr)
	require.Equal(t, 0, code)

	var resp struct {
		Result map[string]any
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp))
	require.Contains(t, resp.Result["error"], "unknown tool")
}
