package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keeminlee/meepo/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored extraction runs and their round metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		showMetrics, _ := cmd.Flags().GetBool("metrics")
		return runRuns(limit, showMetrics)
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "Maximum runs to list")
	runsCmd.Flags().Bool("metrics", false, "Show per-round metrics for each run")
}

func runRuns(limit int, showMetrics bool) error {
	st, err := store.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No stored runs.")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  session=%s  %s  params=%s  %s\n",
			r.ID, r.SessionID, r.KernelVersion, r.ParamsHash, r.ExtractedAt.Format("2006-01-02 15:04"))
		if !showMetrics {
			continue
		}
		metrics, err := st.GetMetrics(ctx, r.ID)
		if err != nil {
			return err
		}
		for _, m := range metrics {
			fmt.Printf("  round %d (%s): %d singletons, %d links, %d composites | mass p50=%.2f p90=%.2f | strength p50=%.2f p90=%.2f\n",
				m.Round, m.Phase, m.Singletons, m.Links, m.Composites,
				m.Mass.P50, m.Mass.P90, m.Strength.P50, m.Strength.P90)
		}
	}
	return nil
}
