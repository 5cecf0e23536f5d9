package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekballo/heatmap-api/internal/grid"
)

var importCmd = &cobra.Command{
	Use:   "import <shapefile.shp>",
	Short: "Load admin units from a shapefile",
	Long: `Parses an administrative-boundary shapefile and upserts its units
into the admin_units table. Re-running with a newer shapefile updates
existing units in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "import"))

		env, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.units.Migrate(ctx); err != nil {
			return eris.Wrap(err, "import: migrate")
		}

		units, err := grid.ParseShapefile(args[0])
		if err != nil {
			return eris.Wrap(err, "import: parse shapefile")
		}
		log.Info("parsed shapefile", zap.String("path", args[0]), zap.Int("units", len(units)))

		n, err := env.units.BulkUpsertUnits(ctx, units)
		if err != nil {
			return eris.Wrap(err, "import: upsert units")
		}
		log.Info("import complete", zap.Int64("upserted", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
