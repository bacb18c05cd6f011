package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	missingEnv := filepath.Join(t.TempDir(), "absent.env")
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", missingEnv, "--log-level", "error"}, args...))
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestNarrativeCommandRevealsOnce(t *testing.T) {
	out := runCommand(t, "narrative", "--progress", "0.3,0.62,0.8,0.62")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Contains(t, lines[0], "PROGRESS")
	assert.Regexp(t, `^0\.620\s+3\.400\s+3\s+true\s+true\s+false\s+fiber$`, lines[2])
	assert.Contains(t, out, "reveals: 1")
}

func TestNarrativeCommandLoadsScheduleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	schedule := `segments:
  - {from: 0, to: 0.5, base: 1, rate: 2}
  - {from: 0.5, to: 1, base: 2, rate: 2}
`
	require.NoError(t, os.WriteFile(path, []byte(schedule), 0o600))

	out := runCommand(t, "narrative", "--schedule", path, "--progress", "0.75")
	assert.Regexp(t, `0\.750\s+2\.500\s+1\s+false`, out)
	assert.Contains(t, out, "reveals: 0")
}

func TestNarrativeCommandPrintsWindows(t *testing.T) {
	out := runCommand(t, "narrative", "--progress", "0", "--windows")

	assert.Regexp(t, `(?m)^olive\s+1\.0\s+2\.2$`, out)
	assert.Regexp(t, `(?m)^biomaterial\s+4\.0\s+open$`, out)
}

func TestCatalogCommandFallsBackToDemo(t *testing.T) {
	t.Setenv("STOREFRONT_COMMERCE_DOMAIN", "")
	t.Setenv("STOREFRONT_COMMERCE_TOKEN", "")

	out := runCommand(t, "catalog", "--sort", "price-high")
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "€")
	assert.Contains(t, out, "(demo)")
}

func TestVersionCommand(t *testing.T) {
	out := runCommand(t, "version")
	assert.Equal(t, "storefront dev (unknown)\n", out)
}
