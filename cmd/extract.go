package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/keeminlee/meepo/internal/graph"
	"github.com/keeminlee/meepo/internal/store"
	"github.com/keeminlee/meepo/internal/transcript"
)

var extractCmd = &cobra.Command{
	Use:   "extract <session-id>",
	Short: "Extract causal links from a session transcript",
	Long: `Extract causal links from a session transcript and store the result.

Examples:
  meepo extract goblin-caves --transcript session.jsonl
  meepo extract goblin-caves --transcript session.jsonl --spans regimes.json --params tuning.yaml --overwrite`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		transcriptPath, _ := cmd.Flags().GetString("transcript")
		spansPath, _ := cmd.Flags().GetString("spans")
		actorsPath, _ := cmd.Flags().GetString("actors")
		paramsPath, _ := cmd.Flags().GetString("params")
		includeSoft, _ := cmd.Flags().GetBool("include-ooc-soft")
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		verbose, _ := cmd.Flags().GetBool("verbose")
		return runExtract(args[0], transcriptPath, spansPath, actorsPath, paramsPath, includeSoft, overwrite, verbose)
	},
}

func init() {
	extractCmd.Flags().String("transcript", "", "Transcript JSONL file (required)")
	extractCmd.Flags().String("spans", "", "Regime spans JSON file (ooc_hard, ooc_soft, combat)")
	extractCmd.Flags().String("actors", "", "Participant list JSON file")
	extractCmd.Flags().String("params", "", "Graph params YAML file (defaults used when omitted)")
	extractCmd.Flags().Bool("include-ooc-soft", false, "Re-include soft out-of-character spans")
	extractCmd.Flags().Bool("overwrite", false, "Replace an existing run with the same params hash")
	extractCmd.Flags().Bool("verbose", false, "Enable debug logging")
	extractCmd.MarkFlagRequired("transcript")
}

func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

func runExtract(sessionID, transcriptPath, spansPath, actorsPath, paramsPath string, includeSoft, overwrite, verbose bool) error {
	logger, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	lines, err := transcript.LoadLines(transcriptPath)
	if err != nil {
		return err
	}
	var spans []transcript.RegimeSpan
	if spansPath != "" {
		if spans, err = transcript.LoadSpans(spansPath); err != nil {
			return err
		}
	}
	var actors []transcript.Actor
	if actorsPath != "" {
		if actors, err = transcript.LoadActors(actorsPath); err != nil {
			return err
		}
	}
	params := graph.DefaultParams()
	if paramsPath != "" {
		if params, err = graph.LoadParams(paramsPath); err != nil {
			return err
		}
	}

	mask, err := transcript.BuildMask(len(lines), spans, includeSoft)
	if err != nil {
		return err
	}
	nodes, metrics, err := graph.Run(sessionID, lines, mask, actors, params, logger)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	st, err := store.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer st.Close()

	policy := store.Skip
	if overwrite {
		policy = store.Overwrite
	}
	run, err := st.SaveRun(context.Background(), sessionID, params, nodes, metrics, policy)
	if err != nil {
		return fmt.Errorf("save failed: %w", err)
	}

	fmt.Printf("✅ Extracted %d nodes over %d rounds (run %s, params %s)\n",
		len(nodes), len(metrics), run.ID, run.ParamsHash)
	return nil
}
