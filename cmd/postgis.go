package main

import "github.com/spf13/cobra"

var postgisCmd = &cobra.Command{
	Use:   "postgis",
	Short: "PostGIS export schema and queries",
	Long:  "Manage the atm schema that receives scored cells, POIs and publications, and query the exported grids.",
}

func init() { rootCmd.AddCommand(postgisCmd) }
