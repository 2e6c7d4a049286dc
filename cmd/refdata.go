package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chadRoberge/avitar-suite-sub003/internal/refdata"
)

var refdataCmd = &cobra.Command{
	Use:   "refdata",
	Short: "Manage reference data",
}

var refdataImportCmd = &cobra.Command{
	Use:   "import <seed.yaml>",
	Short: "Import a reference data seed file",
	Long:  "Loads zones, ladders, attribute factors, current use categories, feature points, and the calculation config from a YAML seed document.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		seed, err := refdata.ParseSeedFile(args[0])
		if err != nil {
			return err
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
		importer, ok := provider.(refdata.SeedImporter)
		if !ok {
			return eris.New("configured store driver cannot import seed files")
		}

		if err := importer.ImportSeed(ctx, seed); err != nil {
			return err
		}

		zap.L().Info("seed import complete", zap.String("file", args[0]))
		return nil
	},
}

func init() {
	refdataCmd.AddCommand(refdataImportCmd)
	rootCmd.AddCommand(refdataCmd)
}
