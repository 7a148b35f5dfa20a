package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/atm-scoring/internal/artifact"
	"github.com/sells-group/atm-scoring/internal/model"
)

var citiesCmd = &cobra.Command{
	Use:   "cities",
	Short: "List the configured cities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatCities(os.Stdout, cfg.Cities)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(citiesCmd)
}

// formatCities writes the city catalog to w.
func formatCities(out io.Writer, cities []model.City) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tOSM_ID\tREGION\tPOPULATION\tARTIFACT")
	_, _ = fmt.Fprintln(w, "----\t------\t------\t----------\t--------")
	for _, c := range cities {
		pop := "fallback (building=apartments)"
		if c.HasRegistry() {
			pop = "registry " + c.Registry
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Name, c.OSMID, c.Region, pop, artifact.Key(c.Name))
	}
	_ = w.Flush()
}
