package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/geospatial"
)

var postgisMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply atm schema migrations",
	Long:  "Applies pending SQL migrations to the atm schema in lexicographic order. With --status, only lists them.",
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

		if status, _ := cmd.Flags().GetBool("status"); status {
			st, err := geospatial.Status(ctx, pool)
			if err != nil {
				return eris.Wrap(err, "postgis migrate status")
			}
			formatMigrationStatus(os.Stdout, st)
			return nil
		}

		n, err := geospatial.Migrate(ctx, pool)
		if err != nil {
			return eris.Wrap(err, "postgis migrate")
		}
		zap.L().Info("atm schema up to date", zap.Int("applied", n))
		return nil
	},
}

func init() {
	postgisMigrateCmd.Flags().Bool("status", false, "list migrations without applying them")
	postgisCmd.AddCommand(postgisMigrateCmd)
}

func formatMigrationStatus(w io.Writer, st []geospatial.MigrationStatus) {
	for _, s := range st {
		mark := "pending"
		if s.Applied {
			mark = "applied"
		}
		_, _ = fmt.Fprintf(w, "%-8s %s\n", mark, s.Name)
	}
}
