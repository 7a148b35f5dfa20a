package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/geospatial"
)

var postgisMaintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run atm schema maintenance tasks",
	Long:  "Prune old publication records, run VACUUM ANALYZE and report table statistics for the atm schema.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("postgis"); err != nil {
			return err
		}

		pool, err := postgisPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		vacuum, _ := cmd.Flags().GetBool("vacuum")
		stats, _ := cmd.Flags().GetBool("stats")
		keep, _ := cmd.Flags().GetInt("prune-publications")

		if !vacuum && !stats && keep == 0 {
			stats = true
		}

		if keep > 0 {
			n, err := geospatial.PrunePublications(ctx, pool, keep)
			if err != nil {
				return eris.Wrap(err, "postgis maintenance prune")
			}
			zap.L().Info("pruned publication records", zap.Int64("deleted", n), zap.Int("kept_per_city", keep))
		}

		if vacuum {
			zap.L().Info("running VACUUM ANALYZE on atm tables")
			if err := geospatial.VacuumAnalyze(ctx, pool); err != nil {
				return eris.Wrap(err, "postgis maintenance vacuum")
			}
			zap.L().Info("VACUUM ANALYZE complete")
		}

		if stats {
			tableStats, err := geospatial.GetTableStats(ctx, pool)
			if err != nil {
				return eris.Wrap(err, "postgis maintenance stats")
			}
			formatTableStats(os.Stdout, tableStats)
		}

		return nil
	},
}

func init() {
	postgisMaintenanceCmd.Flags().Bool("vacuum", false, "run VACUUM ANALYZE on atm tables")
	postgisMaintenanceCmd.Flags().Bool("stats", false, "show table statistics (default when no action given)")
	postgisMaintenanceCmd.Flags().Int("prune-publications", 0, "keep only the newest N publication records per city and access mode")
	postgisCmd.AddCommand(postgisMaintenanceCmd)
}

func formatTableStats(out io.Writer, stats []geospatial.TableStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tLIVE\tDEAD\tSIZE\tSPATIAL\tLAST_VACUUM")
	_, _ = fmt.Fprintln(w, "-----\t----\t----\t----\t-------\t-----------")
	for _, s := range stats {
		spatial := "no"
		if s.HasSpatial {
			spatial = "yes"
		}
		vacuumed := "never"
		if s.LastVacuum != nil {
			vacuumed = s.LastVacuum.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d (%.0f%%)\t%s\t%s\t%s\n",
			s.TableName, s.LiveRows, s.DeadRows, s.DeadRatio()*100, s.TotalSize, spatial, vacuumed)
	}
	_ = w.Flush()
}
