package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [path|name]",
	Short: "Initialize a new triage project",
	Long: `Initialize a new triage project by creating a project manifest (triage.toml)
and an example trace file (example.trc). If [path|name] is omitted, initializes
the current directory. If a non-existing name is provided, a directory will be
created.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

// runInit initializes a triage project at the specified target path (or the
// current working directory when no argument or "." is provided) by creating
// a triage.toml manifest and an example.trc trace file.
//
// It resolves the target path, creates the directory if it does not exist,
// derives a project name from the directory basename (falling back to
// "triage-project" for invalid names), and refuses to initialize if
// triage.toml already exists.
func runInit(cmd *cobra.Command, args []string) error {
	// Resolve target directory
	var target string
	if len(args) == 0 || args[0] == "." {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		target = wd
	} else {
		// treat as path or name relative to cwd
		arg := args[0]
		if !filepath.IsAbs(arg) {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			target = filepath.Join(wd, arg)
		} else {
			target = arg
		}
	}

	// Ensure directory exists
	if st, err := os.Stat(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err = os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %q: %w", target, err)
			}
		} else {
			return err
		}
	} else if !st.IsDir() {
		return fmt.Errorf("%q is not a directory", target)
	}

	// Determine project name from directory basename
	name := filepath.Base(target)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "triage-project"
	}

	// Create manifest file if not exists
	manifestPath := filepath.Join(target, "triage.toml")
	if _, err := os.Stat(manifestPath); err == nil {
		return fmt.Errorf("project already initialized: %s exists", manifestPath)
	}

	manifest := buildDefaultManifest(name)
	if err := os.WriteFile(manifestPath, []byte(manifest), os.FileMode(0o600)); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	// Create example.trc if not exists
	tracePath := filepath.Join(target, "example.trc")
	createdTrace := false
	if _, err := os.Stat(tracePath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(tracePath, []byte(defaultExampleTrace()), 0o600); err != nil {
			return fmt.Errorf("failed to write example.trc: %w", err)
		}
		createdTrace = true
	}

	rel := target
	if wd, err := os.Getwd(); err == nil {
		if r, err2 := filepath.Rel(wd, target); err2 == nil {
			rel = r
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized triage project in %s\n", rel)
	fmt.Fprintf(cmd.OutOrStdout(), "  - triage.toml\n")
	if createdTrace {
		fmt.Fprintf(cmd.OutOrStdout(), "  - example.trc\n")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "  - example.trc (existing)\n")
	}
	return nil
}

// buildDefaultManifest returns a minimal TOML manifest for a triage project
// using the provided package name.
func buildDefaultManifest(name string) string {
	// Minimal TOML manifest used as a project marker.
	return fmt.Sprintf(`# Triage project manifest
[package]
name = "%s"

[minify]
budget = 1024
after = "after-trace"
depth = "off"

[cache]
limit = 8
`, name)
}

// defaultExampleTrace returns a small trace with one injected lowering
// failure, enough to exercise run, minify, and profile end to end.
func defaultExampleTrace() string {
	return `# example trace: one fragment, one injected lowering fault
func demo
input %0 x shape=(2,2) dtype=f32
input %1 y shape=(2,2) dtype=f32
%2 = add %0 %1
%3 = relu %2 !fail(lower)
%4 = mul %3 %0
output %4

call demo x=f32(2,2) y=f32(2,2)
call demo x=f32(4,2) y=f32(4,2)
`
}
