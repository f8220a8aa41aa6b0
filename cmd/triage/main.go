package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"triage/internal/prof"
	"triage/internal/version"
)

// exitError carries an explicit process exit code through cobra.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Compiler diagnostic minifier and triage toolchain",
	Long:  `Triage captures computation graphs from trace files, isolates backend failures, minimizes failing graphs to minimal reproducers, and profiles guard-driven recompilation`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := prof.Config{}
		var err error
		if cfg.CPUPath, err = cmd.Flags().GetString("cpuprofile"); err != nil {
			return err
		}
		if cfg.MemPath, err = cmd.Flags().GetString("memprofile"); err != nil {
			return err
		}
		if cfg.TracePath, err = cmd.Flags().GetString("runtime-trace"); err != nil {
			return err
		}
		profSession, err = prof.Start(cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		profSession.Stop()
	},
}

// profSession profiles the tool itself when the hidden flags ask for it.
var profSession *prof.Session

// main initializes the CLI by setting the command version, registering
// subcommands and persistent flags, and then executes the root command.
// If command execution returns an error, the process exits with status code 1.
func main() {
	// Устанавливаем версию для автоматического флага --version
	rootCmd.Version = version.Version

	// Добавляем команды
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(minifyCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)

	// Глобальные флаги
	rootCmd.PersistentFlags().String("log-level", "off", "log verbosity (off|error|warn|info|debug)")
	rootCmd.PersistentFlags().String("log-output", "", "log destination file (\"-\" for stderr)")
	rootCmd.PersistentFlags().String("log-mode", "ring", "log storage mode (stream|ring|both)")
	rootCmd.PersistentFlags().String("log-format", "text", "log event format (text|ndjson)")
	rootCmd.PersistentFlags().Int("log-ring-size", 4096, "ring buffer capacity for ring mode")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to show")
	rootCmd.PersistentFlags().Bool("timings", false, "print per-phase wall-clock timings")

	// Профилирование самого инструмента.
	rootCmd.PersistentFlags().String("cpuprofile", "", "write a CPU profile to this file")
	rootCmd.PersistentFlags().String("memprofile", "", "write a heap profile to this file on exit")
	rootCmd.PersistentFlags().String("runtime-trace", "", "write a runtime trace to this file")
	_ = rootCmd.PersistentFlags().MarkHidden("cpuprofile")
	_ = rootCmd.PersistentFlags().MarkHidden("memprofile")
	_ = rootCmd.PersistentFlags().MarkHidden("runtime-trace")

	if err := rootCmd.Execute(); err != nil {
		var xe exitError
		if errors.As(err, &xe) {
			os.Exit(xe.code)
		}
		os.Exit(1)
	}
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// applyColorMode updates the global color switch from the --color flag.
func applyColorMode(mode string) {
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		color.NoColor = !isTerminal(os.Stdout)
	}
}
