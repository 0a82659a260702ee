// patternforge is the command-line client for the pattern engine: list
// and inspect patterns, run them one-shot, or chat against a session.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "patternforge",
	Short: "Declarative LLM pattern engine",
	Long: `PatternForge invokes declaratively defined LLM patterns: markdown
documents with typed inputs, typed outputs, and model configuration.

Patterns load from the builtin directory (PATTERNFORGE_PATTERN_DIR) with
an optional private tier (PATTERNFORGE_PRIVATE_PATTERN_DIR) whose ids
replace builtin ones.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	},
}

func main() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
