package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chadRoberge/avitar-suite-sub003/internal/aggregate"
	"github.com/chadRoberge/avitar-suite-sub003/internal/billing"
	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
	"github.com/chadRoberge/avitar-suite-sub003/internal/recalc"
)

var (
	recalcMunicipality string
	recalcYear         int
	recalcChangeType   string
	recalcChangeID     string
	recalcBatchSize    int
	recalcOnlyMissing  bool
	recalcForceClear   bool
)

var recalcCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Run recalculation jobs",
	Long:  "Recalculates land, building, and parcel assessed values for a municipality's tax year.",
}

var recalcAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Recalculate every assessment in the year",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecalc(cmd, func(o *recalc.Orchestrator) (*model.JobSummary, error) {
			return o.RecalculateAll(cmd.Context(), recalcMunicipality, recalcYear, recalc.Options{
				BatchSize:   recalcBatchSize,
				OnlyMissing: recalcOnlyMissing,
				ForceClear:  recalcForceClear,
			})
		})
	},
}

var recalcAffectedCmd = &cobra.Command{
	Use:   "affected",
	Short: "Recalculate properties touched by a reference data change",
	RunE: func(cmd *cobra.Command, args []string) error {
		if recalcChangeType == "" || recalcChangeID == "" {
			return eris.New("--change-type and --change-id are required")
		}
		return runRecalc(cmd, func(o *recalc.Orchestrator) (*model.JobSummary, error) {
			return o.RecalculateAffected(cmd.Context(), recalcMunicipality, recalcYear,
				model.ChangeType(recalcChangeType), recalcChangeID)
		})
	},
}

var recalcZoneCmd = &cobra.Command{
	Use:   "zone <zone-id>",
	Short: "Recalculate a zone, redistributing excess acreage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecalc(cmd, func(o *recalc.Orchestrator) (*model.JobSummary, error) {
			return o.RecalculateZone(cmd.Context(), recalcMunicipality, recalcYear, args[0])
		})
	},
}

var recalcParcelCmd = &cobra.Command{
	Use:   "parcel <property-id>",
	Short: "Rebuild one property's parcel rollup from stored card values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if recalcYear == 0 {
			recalcYear = time.Now().Year()
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := billing.NewValidator(st).Validate(ctx, recalcMunicipality, recalcYear); err != nil {
			return err
		}

		p, err := aggregate.NewService(st).AggregateParcel(ctx, recalcMunicipality, args[0], recalcYear)
		if err != nil {
			return err
		}

		zap.L().Info("parcel rollup rebuilt",
			zap.String("property_id", p.PropertyID),
			zap.Float64("land", p.Totals.LandValue),
			zap.Float64("building", p.Totals.BuildingValue),
			zap.Float64("features", p.Totals.FeatureValue),
			zap.Float64("total", p.Totals.TotalValue),
		)
		return nil
	},
}

func runRecalc(cmd *cobra.Command, run func(*recalc.Orchestrator) (*model.JobSummary, error)) error {
	ctx := cmd.Context()

	if recalcYear == 0 {
		recalcYear = time.Now().Year()
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	provider, err := initProvider(st)
	if err != nil {
		return err
	}

	o := recalc.New(st, provider, billing.NewValidator(st), cfg.Recalc)
	summary, err := run(o)
	if err != nil {
		return err
	}

	zap.L().Info("recalculation finished",
		zap.String("job_id", summary.JobID),
		zap.String("status", string(summary.Status)),
		zap.Int("processed", summary.ProcessedCount),
		zap.Int("updated", summary.UpdatedCount),
		zap.Int("errors", summary.ErrorCount),
		zap.Duration("duration", summary.Duration),
	)
	for _, re := range summary.Errors {
		fmt.Printf("error: property %s card %d: %s\n", re.PropertyID, re.CardNumber, re.Message)
	}
	return nil
}

func init() {
	recalcCmd.PersistentFlags().StringVarP(&recalcMunicipality, "municipality", "m", "", "municipality ID (required)")
	recalcCmd.PersistentFlags().IntVarP(&recalcYear, "year", "y", 0, "effective tax year (default: current year)")
	_ = recalcCmd.MarkPersistentFlagRequired("municipality")

	recalcAllCmd.Flags().IntVar(&recalcBatchSize, "batch-size", 0, "override the configured batch size")
	recalcAllCmd.Flags().BoolVar(&recalcOnlyMissing, "only-missing", false, "skip cards that already carry a calculated value")
	recalcAllCmd.Flags().BoolVar(&recalcForceClear, "force-clear", false, "zero computed values before recalculating")

	recalcAffectedCmd.Flags().StringVar(&recalcChangeType, "change-type", "", "changed entity kind: zone, neighborhood, current_use, taxation_category, view_attribute, filter")
	recalcAffectedCmd.Flags().StringVar(&recalcChangeID, "change-id", "", "ID of the changed reference entity")

	recalcCmd.AddCommand(recalcAllCmd, recalcAffectedCmd, recalcZoneCmd, recalcParcelCmd)
	rootCmd.AddCommand(recalcCmd)
}
