package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/maxkimambo/assetpipe/internal/errors"
)

const siteConfig = `
root   = "."
output = "dist"

task "copyPages" {
  transform = "copy"
  inputs {
    include = ["app/**/*.html"]
  }
  output  = "dist"
  options = { strip = "app" }
}

task "bundle" {
  transform = "concat"
  inputs {
    include = ["app/js/*.js"]
  }
  output     = "dist/app.js"
  depends_on = ["copyPages"]
  options    = { separator = ";\n" }
}
`

func writeSite(t *testing.T, config string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"assetpipe.hcl":  config,
		"app/index.html": "<html><body>hi</body></html>",
		"app/js/a.js":    "var a = 1",
		"app/js/b.js":    "var b = 2",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	return execute(t, append([]string{"--quiet", "--config", filepath.Join(dir, "assetpipe.hcl")}, args...)...)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestBuild_WritesOutputs(t *testing.T) {
	dir := writeSite(t, siteConfig)

	_, err := run(t, dir, "build")
	require.NoError(t, err)

	page, err := os.ReadFile(filepath.Join(dir, "dist", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html><body>hi</body></html>", string(page))

	bundle, err := os.ReadFile(filepath.Join(dir, "dist", "app.js"))
	require.NoError(t, err)
	assert.Equal(t, "var a = 1;\nvar b = 2", string(bundle))
}

func TestBuild_NamedTaskRunsDependencies(t *testing.T) {
	dir := writeSite(t, siteConfig)

	_, err := run(t, dir, "build", "bundle")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "dist", "index.html"))
	assert.FileExists(t, filepath.Join(dir, "dist", "app.js"))
}

func TestBuild_ExitCodes(t *testing.T) {
	failing := siteConfig + `
task "lint" {
  transform = "lint"
  inputs {
    include = ["app/js/*.js"]
  }
  options = { command = "sh", args = ["-c", "exit 3", "sh"] }
}
`
	cycle := strings.Replace(siteConfig, `task "copyPages" {`, `task "copyPages" {
  depends_on = ["bundle"]`, 1)

	tests := []struct {
		name   string
		config string
		args   []string
		want   int
	}{
		{"success", siteConfig, []string{"build"}, apperrors.ExitSuccess},
		{"task failure", failing, []string{"build"}, apperrors.ExitTaskFailure},
		{"cycle", cycle, []string{"build"}, apperrors.ExitConfigError},
		{"unknown task", siteConfig, []string{"build", "nope"}, apperrors.ExitConfigError},
		{"unknown flag", siteConfig, []string{"build", "--bogus"}, apperrors.ExitInvalidUsage},
		{"bad argument count", siteConfig, []string{"graph", "extra"}, apperrors.ExitInvalidUsage},
		{"bad format", siteConfig, []string{"graph", "--format", "svg"}, apperrors.ExitInvalidUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeSite(t, tt.config)
			_, err := run(t, dir, tt.args...)
			assert.Equal(t, tt.want, apperrors.ExitCode(err))
		})
	}
}

func TestBuild_MissingConfig(t *testing.T) {
	_, err := run(t, t.TempDir(), "build")
	assert.Equal(t, apperrors.ExitConfigError, apperrors.ExitCode(err))
}

func TestGraph_Formats(t *testing.T) {
	dir := writeSite(t, siteConfig)

	out, err := run(t, dir, "graph")
	require.NoError(t, err)
	assert.Contains(t, out, " 1. copyPages (copy)")
	assert.Contains(t, out, " 2. bundle (concat) <- copyPages")

	out, err = run(t, dir, "graph", "--format", "dot")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph assetpipe {")

	out, err = run(t, dir, "graph", "--format", "json")
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Contains(t, decoded, "nodes")
	assert.Equal(t, []interface{}{"copyPages"}, decoded["roots"])
}

func TestClean_RemovesOutput(t *testing.T) {
	dir := writeSite(t, siteConfig)
	_, err := run(t, dir, "build")
	require.NoError(t, err)

	_, err = run(t, dir, "clean")
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(dir, "dist"))
	assert.FileExists(t, filepath.Join(dir, "app", "index.html"))

	// Cleaning twice is fine
	_, err = run(t, dir, "clean")
	assert.NoError(t, err)
}

func TestClean_DryRunKeepsOutput(t *testing.T) {
	dir := writeSite(t, siteConfig)
	_, err := run(t, dir, "build")
	require.NoError(t, err)

	_, err = run(t, dir, "clean", "--dry-run")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, "dist"))
}

func TestCleanTarget(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		output  string
		wantErr string
	}{
		{"inside root", filepath.Join(root, "dist"), ""},
		{"nested", filepath.Join(root, "build", "out"), ""},
		{"root itself", root, "source root"},
		{"parent of root", filepath.Dir(root), "outside the source root"},
		{"sibling", filepath.Join(filepath.Dir(root), "elsewhere"), "outside the source root"},
		{"dot-dot escape", filepath.Join(root, "dist", "..", ".."), "outside the source root"},
		{"not configured", "", "no output directory"},
		{"name starting with dots", filepath.Join(root, "..cache"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := cleanTarget(root, tt.output)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotEmpty(t, target)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, apperrors.IsConfigurationFailure(err))
		})
	}
}

func TestClean_RefusesRoot(t *testing.T) {
	dir := writeSite(t, strings.Replace(siteConfig, `output = "dist"`, `output = "."`, 1))

	_, err := run(t, dir, "clean")
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, "assetpipe.hcl"))
}

func TestHistory_ShowsJournaledBuilds(t *testing.T) {
	dir := writeSite(t, siteConfig)
	db := filepath.Join(dir, ".assetpipe", "history.db")

	_, err := run(t, dir, "build", "--journal", db)
	require.NoError(t, err)

	out, err := run(t, dir, "history", "--journal", db)
	require.NoError(t, err)
	assert.Contains(t, out, "build")
	assert.Contains(t, out, "RUN")
}

func TestHistory_ShowsTasksOfOneRun(t *testing.T) {
	dir := writeSite(t, siteConfig)
	db := filepath.Join(dir, ".assetpipe", "history.db")

	_, err := run(t, dir, "build", "--journal", db)
	require.NoError(t, err)

	out, err := run(t, dir, "history", "--journal", db)
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Greater(t, len(lines), 3)
	short := strings.Fields(lines[3])[1]

	out, err = run(t, dir, "history", "--journal", db, "--run", short)
	require.NoError(t, err)
	assert.Contains(t, out, "Run "+short)
	assert.Contains(t, out, "copyPages")
	assert.Contains(t, out, "bundle")
	assert.Contains(t, out, "succeeded")

	_, err = run(t, dir, "history", "--journal", db, "--run", "zzzz")
	assert.Equal(t, apperrors.ExitInvalidUsage, apperrors.ExitCode(err))
}

func TestHistory_RequiresJournal(t *testing.T) {
	dir := writeSite(t, siteConfig)

	_, err := run(t, dir, "history")
	assert.Equal(t, apperrors.ExitConfigError, apperrors.ExitCode(err))
}

func TestMissingRootAbortsBeforeTasks(t *testing.T) {
	for _, args := range [][]string{{"build"}, {"watch", "--no-serve"}} {
		t.Run(args[0], func(t *testing.T) {
			dir := writeSite(t, strings.Replace(siteConfig, `root   = "."`, `root   = "missing"`, 1))
			db := filepath.Join(dir, "history.db")

			cmdArgs := append([]string{"--config", filepath.Join(dir, "assetpipe.hcl")}, args...)
			out, err := execute(t, append(cmdArgs, "--journal", db)...)

			require.Error(t, err)
			assert.Equal(t, apperrors.ExitConfigError, apperrors.ExitCode(err))
			assert.NotContains(t, out, "TASK")
			assert.NoFileExists(t, db)
			assert.NoDirExists(t, filepath.Join(dir, "dist"))
		})
	}
}
