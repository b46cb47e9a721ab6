package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keeminlee/meepo/internal/graph"
	"github.com/keeminlee/meepo/internal/store"
	"github.com/keeminlee/meepo/internal/transcript"
)

var outlineCmd = &cobra.Command{
	Use:   "outline <session-id>",
	Short: "Render a stored run as an indented timeline outline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		transcriptPath, _ := cmd.Flags().GetString("transcript")
		runID, _ := cmd.Flags().GetString("run")
		return runOutline(args[0], transcriptPath, runID)
	},
}

func init() {
	outlineCmd.Flags().String("transcript", "", "Transcript JSONL file (required)")
	outlineCmd.Flags().String("run", "", "Run ID (defaults to the session's latest run)")
	outlineCmd.MarkFlagRequired("transcript")
}

func runOutline(sessionID, transcriptPath, runID string) error {
	lines, err := transcript.LoadLines(transcriptPath)
	if err != nil {
		return err
	}
	st, err := store.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	var run *store.Run
	if runID != "" {
		run, err = st.GetRun(ctx, runID)
	} else {
		run, err = st.LatestRun(ctx, sessionID)
	}
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("no stored run for session %q", sessionID)
	}

	out, err := graph.RenderOutline(run.Links, lines)
	if err != nil {
		return fmt.Errorf("render outline: %w", err)
	}
	fmt.Print(out)
	return nil
}
