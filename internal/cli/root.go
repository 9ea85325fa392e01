// Package cli is the exambulldozer command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/FreelineGuide/ExamBulldozer/internal/common"
)

// Exit codes. Per-batch failures never change the exit code.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitConfig = 2
)

var (
	cfgFile  string
	logLevel string
	cfg      *common.Config
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "exambulldozer",
	Short: "Convert free-form exam questions into structured, schema-valid records",
	Long: `exambulldozer splits pasted exam text into questions, packs them into
token-budgeted batches, asks a language model to rewrite each batch as JSON,
and keeps only records that match the question type's JSON Schema.

Example usage:
  exambulldozer convert -t single_choice questions.txt
  exambulldozer plan -t 多选题 < questions.txt
  exambulldozer schemas list
  exambulldozer serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = common.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger = common.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return ExitOK
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	if common.IsConfigError(err) {
		return ExitConfig
	}
	return ExitFailed
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+common.DefaultConfigFile+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
}
