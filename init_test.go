package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mayflower/rpg-explainer/internal/config"
)

// TestApplySectionCreate verifies that an empty document gets just the section.
func TestApplySectionCreate(t *testing.T) {
	t.Parallel()
	section := wrapSection("# Orders\n\nbody")

	got := applySection("", section)
	want := sentinelStart + "\n# Orders\n\nbody\n" + sentinelEnd + "\n"
	if got != want {
		t.Errorf("applySection = %q, want %q", got, want)
	}
}

// TestApplySectionAppend verifies that existing prose is kept and separated
// from the appended section by a blank line.
func TestApplySectionAppend(t *testing.T) {
	t.Parallel()
	section := wrapSection("generated")

	for _, existing := range []string{"# Project\n\nNotes.\n", "# Project\n\nNotes."} {
		got := applySection(existing, section)
		want := "# Project\n\nNotes.\n\n" + section + "\n"
		if got != want {
			t.Errorf("applySection(%q) = %q, want %q", existing, got, want)
		}
	}
}

// TestApplySectionUpdate verifies that a previous block is replaced in place.
func TestApplySectionUpdate(t *testing.T) {
	t.Parallel()
	existing := "# Project\n\n" + wrapSection("old report") + "\n\n## Footer\n"

	got := applySection(existing, wrapSection("new report"))

	if strings.Contains(got, "old report") {
		t.Error("old section should have been replaced")
	}
	want := "# Project\n\n" + wrapSection("new report") + "\n\n## Footer\n"
	if got != want {
		t.Errorf("applySection = %q, want %q", got, want)
	}
}

func TestWrapSection(t *testing.T) {
	t.Parallel()
	got := wrapSection("report\n\n")
	want := sentinelStart + "\nreport\n" + sentinelEnd
	if got != want {
		t.Errorf("wrapSection = %q, want %q", got, want)
	}
}

func TestInitWritesConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"init", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}

	path := filepath.Join(dir, config.FileName)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("loading written config: %v", err)
	}
	if cfg.Report.Model != config.DefaultConfig().Report.Model {
		t.Errorf("model = %q", cfg.Report.Model)
	}
	if !strings.Contains(stderr.String(), "wrote default configuration to "+path) {
		t.Errorf("missing confirmation:\n%s", stderr.String())
	}
}

func TestInitDryRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"init", "--dry-run", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}

	if !strings.Contains(stdout.String(), "api_key_env: GEMINI_API_KEY") {
		t.Errorf("dry run should print the config:\n%s", stdout.String())
	}
	if _, err := os.Stat(filepath.Join(dir, config.FileName)); !os.IsNotExist(err) {
		t.Errorf("dry run should not write a file, stat err = %v", err)
	}
}

func TestInitExisting(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeTestFile(t, dir, config.FileName, "report:\n  model: custom\n")

	var stdout, stderr bytes.Buffer
	err := run([]string{"init", dir}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already exists error, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "model: custom") {
		t.Error("existing config should be untouched")
	}

	if err := run([]string{"init", "--force", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("init --force: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Report.Model == "custom" {
		t.Error("--force should overwrite the config")
	}
}
