package cmd

import (
	"pricetrack/scraper"

	"github.com/spf13/cobra"
)

var markersCmd = &cobra.Command{
	Use:   "markers",
	Short: "Print the marker data in effect as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		markers, err := scraper.LoadMarkers(cfg.MarkersFile)
		if err != nil {
			return err
		}
		out, err := markers.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(markersCmd)
}
