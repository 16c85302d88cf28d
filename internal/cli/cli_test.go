package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "weft")

	out, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRootRejectsInvalidFormat(t *testing.T) {
	_, err := execute(t, "version", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	jsonl := writeFile(t, dir, "docs.jsonl", `{"id":"a"}`)
	pipeline := writeFile(t, dir, "pipeline.yaml", pipelineYAML(jsonl))

	out, err := execute(t, "validate", pipeline)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestValidateCommandRejectsBrokenPipeline(t *testing.T) {
	dir := t.TempDir()
	broken := writeFile(t, dir, "pipeline.yaml", `
name: p
collection: docs
source: {id: s, type: jsonl}
destinations: [{name: out, type: table}]
edges: [{from: s, to: nowhere}]
`)

	_, err := execute(t, "validate", broken)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestValidateCommandMissingFile(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRunCommandEndToEnd(t *testing.T) {
	dir := t.TempDir()
	jsonl := writeFile(t, dir, "docs.jsonl", "{\"id\":\"a\",\"title\":\"one\"}\n{\"id\":\"b\",\"title\":\"two\"}\n")
	pipeline := writeFile(t, dir, "pipeline.yaml", pipelineYAML(jsonl))
	db := filepath.Join(dir, "weft.db")

	out, err := execute(t, "run", "--db", db, pipeline, "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "COMPLETED", data["status"])
	assert.Equal(t, float64(2), data["inserted"])

	// Second run against the same database keeps everything.
	out, err = execute(t, "run", "--db", db, pipeline, "--format", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data = resp.Data.(map[string]any)
	assert.Equal(t, "COMPLETED", data["status"])
	assert.Equal(t, float64(2), data["kept"])
	assert.Equal(t, float64(0), data["inserted"])
}

func TestRunCommandFailsOnMissingSourceFile(t *testing.T) {
	dir := t.TempDir()
	pipeline := writeFile(t, dir, "pipeline.yaml", pipelineYAML(filepath.Join(dir, "absent.jsonl")))
	db := filepath.Join(dir, "weft.db")

	_, err := execute(t, "run", "--db", db, pipeline)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestJobsCommandListsHistory(t *testing.T) {
	dir := t.TempDir()
	jsonl := writeFile(t, dir, "docs.jsonl", `{"id":"a"}`)
	pipeline := writeFile(t, dir, "pipeline.yaml", pipelineYAML(jsonl))
	db := filepath.Join(dir, "weft.db")

	_, err := execute(t, "run", "--db", db, pipeline)
	require.NoError(t, err)

	out, err := execute(t, "jobs", "--db", db, "--source", "files", "--collection", "docs", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data := resp.Data.(map[string]any)
	jobs := data["jobs"].([]any)
	require.Len(t, jobs, 1)
	assert.Equal(t, "COMPLETED", jobs[0].(map[string]any)["status"])
}

func pipelineYAML(jsonlPath string) string {
	return `
name: docs-sync
collection: docs
source:
  id: files
  type: jsonl
  params:
    path: "` + jsonlPath + `"
    id_field: id
destinations:
  - name: out
    type: table
edges:
  - {from: files, to: out}
`
}
