package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	provtraceerrors "provtrace/errors"
	"provtrace/internal/config"
	"provtrace/internal/driver"
	"provtrace/internal/tagpool"
	"provtrace/logging"
)

var (
	analyzeConfigPath string
	analyzeTagPool    string
	analyzeMaxHops    int
	analyzeReportDir  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [log-file]",
	Short: "Run causal provenance analysis over an NDJSON audit log",
	Long: `analyze reads a normalized NDJSON audit log, matches events against the
configured suspicious-tag pool, and reconstructs a backward and forward
causal provenance subgraph for every match.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeConfigPath, "config", "", "path to the engine YAML config (optional)")
	analyzeCmd.Flags().StringVar(&analyzeTagPool, "tag-pool", "", "path to the tag pool JSON file (overrides config)")
	analyzeCmd.Flags().IntVar(&analyzeMaxHops, "max-hops", 0, "hop bound for both tracers (0 = use config default)")
	analyzeCmd.Flags().StringVar(&analyzeReportDir, "report-dir", "", "directory reports are written to (overrides config)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	cfg, err := config.Load(analyzeConfigPath)
	if err != nil {
		return err
	}
	if analyzeTagPool != "" {
		cfg.TagPoolFile = analyzeTagPool
	}
	if analyzeMaxHops > 0 {
		cfg.MaxHops = analyzeMaxHops
	}
	if analyzeReportDir != "" {
		cfg.ReportDir = analyzeReportDir
	}

	logFile := cfg.LogFile
	if len(args) == 1 {
		logFile = args[0]
	}

	pool, err := tagpool.Load(cfg.TagPoolFile)
	if err != nil {
		if provtraceerrors.IsKind(err, provtraceerrors.ErrEmptyTagPool) {
			fmt.Fprintln(cmd.ErrOrStderr(), "tag pool is empty")
		}
		return err
	}

	f, err := os.Open(logFile)
	if err != nil {
		return provtraceerrors.Wrap(err, provtraceerrors.ErrInvalidConfig, "analyze: open log file")
	}
	defer f.Close()

	result, err := driver.Run(ctx, f, pool, cfg)
	if err != nil {
		if provtraceerrors.IsKind(err, provtraceerrors.ErrNoEventsParsed) {
			fmt.Fprintln(cmd.ErrOrStderr(), "no events parsed from log file")
		} else if provtraceerrors.IsKind(err, provtraceerrors.ErrEmptyTagPool) {
			fmt.Fprintln(cmd.ErrOrStderr(), "tag pool is empty")
		}
		return err
	}

	logging.InfoContext(ctx, "analysis complete",
		"run_id", result.RunID,
		"detections", len(result.Detections))
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d detections\n", result.RunID, len(result.Detections))
	return nil
}
