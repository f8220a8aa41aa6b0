package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"triage/internal/version"
)

const versionTagline = "shrink the failure, keep the bug"

// buildStamp is the printable subset of build metadata; fields left empty
// are hidden from both output formats.
type buildStamp struct {
	Tool    string `json:"tool"`
	Version string `json:"version"`
	Tagline string `json:"tagline"`
	Commit  string `json:"commit,omitempty"`
	Message string `json:"message,omitempty"`
	Built   string `json:"built,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show triage build fingerprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return fmt.Errorf("failed to get format flag: %w", err)
		}
		full, err := cmd.Flags().GetBool("full")
		if err != nil {
			return fmt.Errorf("failed to get full flag: %w", err)
		}
		want := func(name string) bool {
			on, err := cmd.Flags().GetBool(name)
			return err == nil && (on || full)
		}

		stamp := buildStamp{
			Tool:    "triage",
			Version: orDefault(version.Version, "dev"),
			Tagline: versionTagline,
		}
		if want("hash") {
			stamp.Commit = orDefault(version.GitCommit, "unknown")
		}
		if want("message") {
			stamp.Message = orDefault(version.GitMessage, "unknown")
		}
		if want("date") {
			stamp.Built = orDefault(version.BuildDate, "unknown")
		}

		out := cmd.OutOrStdout()
		switch strings.ToLower(format) {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(stamp)
		case "pretty":
			fmt.Fprintf(out, "triage %s: %s\n", stamp.Version, stamp.Tagline)
			rows := [][2]string{{"commit", stamp.Commit}, {"message", stamp.Message}, {"built", stamp.Built}}
			shown := 0
			for _, row := range rows {
				if row[1] == "" {
					continue
				}
				fmt.Fprintf(out, "%-8s %s\n", row[0]+":", row[1])
				shown++
			}
			if shown == 0 {
				fmt.Fprintln(out, "set --hash, --message, --date, or --full for more build trivia")
			}
			return nil
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
		}
	},
}

func init() {
	versionCmd.Flags().Bool("hash", false, "include git commit hash")
	versionCmd.Flags().Bool("message", false, "include git commit message")
	versionCmd.Flags().Bool("date", false, "include build timestamp")
	versionCmd.Flags().Bool("full", false, "show every recorded bit of build metadata")
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

func orDefault(s, fallback string) string {
	if v := strings.TrimSpace(s); v != "" {
		return v
	}
	return fallback
}
