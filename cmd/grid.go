package main

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ekballo/heatmap-api/internal/cache"
	"github.com/ekballo/heatmap-api/internal/grid"
	"github.com/ekballo/heatmap-api/internal/reports"
	"github.com/ekballo/heatmap-api/internal/saturation"
)

var gridCmd = &cobra.Command{
	Use:   "grid <grid_id>",
	Short: "Inspect one admin unit's saturation stats",
	Long:  "Prints the unit's self detail plus its stat at every level it rolls up to, as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		gridID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "bad grid id %q", args[0])
		}

		env, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		c := cache.NewMemory(16)
		defer c.Close()

		policy := policyFromConfig(cfg.Saturation)
		reportsSvc := reports.NewService(env.reports, env.units, nil, cfg.Saturation.PostType)
		satSvc, err := saturation.NewService(env.units, reportsSvc, c, policy)
		if err != nil {
			return err
		}

		self, err := satSvc.GetSelf(ctx, gridID, policy.GlobalDivisor)
		if err != nil {
			return err
		}

		out := struct {
			Self   *saturation.SelfDetail               `json:"self"`
			Levels map[grid.Level]*saturation.LevelStat `json:"levels"`
		}{
			Self:   self,
			Levels: make(map[grid.Level]*saturation.LevelStat),
		}

		for _, level := range append(grid.AdminLevels(), grid.LevelWorld) {
			stat, ok, err := satSvc.GetLevel(ctx, gridID, level, policy.GlobalDivisor)
			if err != nil {
				return err
			}
			if ok {
				out.Levels[level] = stat
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(gridCmd)
}
