package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleFlowYAML = `
project: reports
name: etl
version: "1"
tasks:
  - name: extract
  - name: transform
  - name: load
edges:
  - upstream: extract
    downstream: transform
  - upstream: transform
    downstream: load
`

func writeFlowFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIDsCmd(t *testing.T) {
	path := writeFlowFile(t, sampleFlowYAML)

	var out bytes.Buffer
	cmd := NewIDsCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("output has %d lines, want 3:\n%s", len(lines), out.String())
	}
	for _, name := range []string{"extract", "transform", "load"} {
		if !strings.Contains(out.String(), name) {
			t.Errorf("output missing task %q", name)
		}
	}
}

func TestIDsCmd_Debug(t *testing.T) {
	path := writeFlowFile(t, sampleFlowYAML)

	var out bytes.Buffer
	cmd := NewIDsCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--debug", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := strings.Count(out.String(), "step "); got != 5 {
		t.Errorf("debug trace printed %d steps, want 5:\n%s", got, out.String())
	}
}

func TestIDsCmd_BadFormat(t *testing.T) {
	path := writeFlowFile(t, sampleFlowYAML)

	cmd := NewIDsCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "decimal", path})

	err := cmd.Execute()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitValidation {
		t.Errorf("err = %v, want validation ExitError", err)
	}
}

func TestIDsCmd_FileNotFound(t *testing.T) {
	cmd := NewIDsCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "absent.yaml")})

	err := cmd.Execute()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitFileNotFound {
		t.Errorf("err = %v, want file-not-found ExitError", err)
	}
}

func TestRegistryCmd_ExportImportRoundTrip(t *testing.T) {
	t.Setenv("STEMFLOW__REGISTRY__ENCRYPTION_KEY", "cli-test-key")

	flowPath := writeFlowFile(t, sampleFlowYAML)
	snapPath := filepath.Join(t.TempDir(), "registry.snap")

	var out bytes.Buffer
	export := NewRegistryCmd()
	export.SetOut(&out)
	export.SetErr(&out)
	export.SetArgs([]string{"export", flowPath, "--out", snapPath})
	if err := export.Execute(); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(snapPath); err != nil {
		t.Fatalf("snapshot file not written: %v", err)
	}

	out.Reset()
	imp := NewRegistryCmd()
	imp.SetOut(&out)
	imp.SetErr(&out)
	imp.SetArgs([]string{"import", snapPath})
	if err := imp.Execute(); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out.String(), "reports/etl version 1") {
		t.Errorf("import output missing flow listing:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "3 tasks") {
		t.Errorf("import output missing task count:\n%s", out.String())
	}
}

func TestRegistryCmd_ImportCorrupt(t *testing.T) {
	snapPath := filepath.Join(t.TempDir(), "bad.snap")
	if err := os.WriteFile(snapPath, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := NewRegistryCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"import", snapPath})

	err := cmd.Execute()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitRegistry {
		t.Errorf("err = %v, want registry ExitError", err)
	}
}
