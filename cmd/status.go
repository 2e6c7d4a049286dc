package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
	"github.com/chadRoberge/avitar-suite-sub003/internal/monitoring"
)

var (
	statusMunicipality string
	statusYear         int
	statusStaleAfter   time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show assessment and job status",
	Long:  "Displays assessment counts, stale cards, and recent recalculation job history for a municipality's tax year.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if statusYear == 0 {
			statusYear = time.Now().Year()
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		collector := monitoring.NewCollector(st, statusStaleAfter)
		snap, err := collector.Collect(ctx, statusMunicipality, statusYear)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		formatSnapshot(os.Stdout, snap)
		return nil
	},
}

// formatSnapshot writes a tabular representation of a snapshot to w.
func formatSnapshot(out io.Writer, snap *monitoring.Snapshot) {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = p.Fprintf(w, "MUNICIPALITY\t%s\n", snap.MunicipalityID)
	_, _ = p.Fprintf(w, "YEAR\t%d\n", snap.EffectiveYear)
	_, _ = p.Fprintf(w, "ASSESSMENTS\t%d\n", snap.AssessmentCount)
	_, _ = p.Fprintf(w, "STALE\t%d\n", snap.StaleCount)
	_, _ = p.Fprintf(w, "RECORD ERRORS\t%d\n", snap.RecordErrors)

	for _, status := range []model.JobStatus{model.JobRunning, model.JobPending, model.JobCompleted, model.JobFailed} {
		if n := snap.JobCounts[status]; n > 0 {
			_, _ = p.Fprintf(w, "JOBS %s\t%d\n", status, n)
		}
	}

	if snap.Running != nil {
		pr := snap.Running.Progress
		_, _ = p.Fprintf(w, "RUNNING\t%s (%d/%d, %.0f/s, eta %s)\n",
			snap.Running.ID, pr.ProcessedCount, pr.TotalCount, pr.RatePerSecond, pr.ETA.Round(time.Second))
	}
	if snap.LastCompleted != nil {
		completed := "-"
		if snap.LastCompleted.CompletedAt != nil {
			completed = snap.LastCompleted.CompletedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "LAST COMPLETED\t%s (%s)\n", snap.LastCompleted.ID, completed)
	}

	_ = w.Flush()
}

func init() {
	statusCmd.Flags().StringVarP(&statusMunicipality, "municipality", "m", "", "municipality ID (required)")
	statusCmd.Flags().IntVarP(&statusYear, "year", "y", 0, "effective tax year (default: current year)")
	statusCmd.Flags().DurationVar(&statusStaleAfter, "stale-after", 7*24*time.Hour, "age after which a card counts as stale")
	_ = statusCmd.MarkFlagRequired("municipality")

	rootCmd.AddCommand(statusCmd)
}
