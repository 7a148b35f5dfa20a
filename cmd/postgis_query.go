package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/atm-scoring/internal/geospatial"
	"github.com/sells-group/atm-scoring/internal/scorer"
)

// -- postgis top --

var postgisTopCmd = &cobra.Command{
	Use:   "top",
	Short: "List the best-scoring cells of a city",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("postgis"); err != nil {
			return err
		}

		city, _ := cmd.Flags().GetString("city")
		modeFlag, _ := cmd.Flags().GetString("access-mode")
		limit, _ := cmd.Flags().GetInt("limit")

		if modeFlag == "" {
			modeFlag = cfg.Pipeline.AccessMode
		}
		mode, err := scorer.ParseAccessMode(modeFlag)
		if err != nil {
			return err
		}

		pool, err := postgisPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		cells, err := geospatial.NewPostgresStore(pool, cfg.Pipeline.H3Resolution).TopCells(ctx, city, string(mode), limit)
		if err != nil {
			return eris.Wrap(err, "postgis top")
		}
		formatCellScores(os.Stdout, cells)
		return nil
	},
}

// -- postgis cell --

var postgisCellCmd = &cobra.Command{
	Use:   "cell",
	Short: "Show the scored cell containing a coordinate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("postgis"); err != nil {
			return err
		}

		city, _ := cmd.Flags().GetString("city")
		modeFlag, _ := cmd.Flags().GetString("access-mode")
		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")

		if modeFlag == "" {
			modeFlag = cfg.Pipeline.AccessMode
		}
		mode, err := scorer.ParseAccessMode(modeFlag)
		if err != nil {
			return err
		}

		pool, err := postgisPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		cell, err := geospatial.NewPostgresStore(pool, cfg.Pipeline.H3Resolution).CellAt(ctx, city, string(mode), lng, lat)
		if err != nil {
			return eris.Wrap(err, "postgis cell")
		}
		if cell == nil {
			fmt.Fprintln(os.Stderr, "No scored cell at that location.")
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cell)
	},
}

// -- postgis publications --

var postgisPublicationsCmd = &cobra.Command{
	Use:   "publications",
	Short: "List exported artifacts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("postgis"); err != nil {
			return err
		}

		city, _ := cmd.Flags().GetString("city")
		limit, _ := cmd.Flags().GetInt("limit")

		pool, err := postgisPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		pubs, err := geospatial.NewPostgresStore(pool, cfg.Pipeline.H3Resolution).ListPublications(ctx, city, limit)
		if err != nil {
			return eris.Wrap(err, "postgis publications")
		}
		if len(pubs) == 0 {
			fmt.Fprintln(os.Stderr, "No publications found.")
			return nil
		}
		formatPublications(os.Stdout, pubs)
		return nil
	},
}

func init() {
	postgisTopCmd.Flags().String("city", "", "city to query (required)")
	postgisTopCmd.Flags().String("access-mode", "", "access mode (default from config)")
	postgisTopCmd.Flags().Int("limit", 10, "number of cells")
	_ = postgisTopCmd.MarkFlagRequired("city")

	postgisCellCmd.Flags().String("city", "", "city to query (required)")
	postgisCellCmd.Flags().String("access-mode", "", "access mode (default from config)")
	postgisCellCmd.Flags().Float64("lat", 0, "latitude (required)")
	postgisCellCmd.Flags().Float64("lng", 0, "longitude (required)")
	_ = postgisCellCmd.MarkFlagRequired("city")
	_ = postgisCellCmd.MarkFlagRequired("lat")
	_ = postgisCellCmd.MarkFlagRequired("lng")

	postgisPublicationsCmd.Flags().String("city", "", "filter by city")
	postgisPublicationsCmd.Flags().Int("limit", 20, "max number of publications")

	postgisCmd.AddCommand(postgisTopCmd)
	postgisCmd.AddCommand(postgisCellCmd)
	postgisCmd.AddCommand(postgisPublicationsCmd)
}

func formatCellScores(out io.Writer, cells []geospatial.CellScore) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CELL\tSCORE\tPLACEMENT\tACCESS\tPOPULATION\tPOIS")
	_, _ = fmt.Fprintln(w, "----\t-----\t---------\t------\t----------\t----")
	for _, c := range cells {
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			c.Cell, c.LocationScore, c.Placement, c.Access, c.Population, c.POIs)
	}
	_ = w.Flush()
}

func formatPublications(out io.Writer, pubs []geospatial.Publication) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CITY\tACCESS_MODE\tCELLS\tPROFILE\tRUN\tPUBLISHED")
	_, _ = fmt.Fprintln(w, "----\t-----------\t-----\t-------\t---\t---------")
	for _, p := range pubs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			p.City, p.AccessMode, p.Cells, p.ProfileVersion, truncateID(p.RunID),
			p.PublishedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
