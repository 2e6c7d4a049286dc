package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chadRoberge/avitar-suite-sub003/internal/export"
)

var (
	exportMunicipality string
	exportYear         int
	exportOut          string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export parcel assessments to a spreadsheet",
	Long:  "Writes every parcel rollup for a municipality's tax year to an XLSX workbook with summary and per-card sheets.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if exportYear == 0 {
			exportYear = time.Now().Year()
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := export.NewXLSX(st).WriteParcels(ctx, exportMunicipality, exportYear, exportOut)
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.Int("parcels", n),
			zap.String("path", exportOut),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportMunicipality, "municipality", "m", "", "municipality ID (required)")
	exportCmd.Flags().IntVarP(&exportYear, "year", "y", 0, "effective tax year (default: current year)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "parcels.xlsx", "output file path")
	_ = exportCmd.MarkFlagRequired("municipality")

	rootCmd.AddCommand(exportCmd)
}
