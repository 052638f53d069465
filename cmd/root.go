// Package cmd implements the pricetrack command line.
package cmd

import (
	"fmt"
	"os"

	"pricetrack/config"
	"pricetrack/logger"
	"pricetrack/scraper"

	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pricetrack",
	Short: "Track product prices on paulsmith.com",
	Long: `pricetrack renders product pages in headless Chromium and extracts the
current selling price, the original price when the item is reduced, and
the currency.

Examples:
  # Run the HTTP API
  pricetrack serve

  # Extract prices once, without storing anything
  pricetrack extract https://www.paulsmith.com/uk/... --format table

  # Show the marker data in effect
  pricetrack markers`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flags.Bool("log-json", false, "emit JSON logs (overrides LOG_JSON)")
	flags.String("markers", "", "marker override file (overrides MARKERS_FILE)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		c.LogJSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("markers") {
		c.MarkersFile, _ = flags.GetString("markers")
		if err := c.Validate(); err != nil {
			return err
		}
	}

	logger.Init(logger.Options{Level: c.LogLevel, JSON: c.LogJSON, Output: os.Stderr})
	cfg = c
	return nil
}

// newExtractor builds the extraction pipeline from the loaded config.
// metrics may be nil.
func newExtractor(metrics *scraper.Metrics) (*scraper.Extractor, error) {
	markers, err := scraper.LoadMarkers(cfg.MarkersFile)
	if err != nil {
		return nil, err
	}

	fetcher := scraper.NewBrowserFetcher(scraper.FetcherOptions{
		BrowserBin: cfg.BrowserBin,
		Headless:   cfg.Headless,
	})

	extractor, err := scraper.NewExtractor(scraper.Config{
		DefaultCurrency: cfg.DefaultCurrency,
		FetchTimeout:    cfg.FetchTimeout,
		PriceCeiling:    cfg.PriceCeiling,
		AllowedDomains:  cfg.AllowedDomains,
	}, fetcher, markers, metrics)
	if err != nil {
		fetcher.Close()
		return nil, err
	}
	return extractor, nil
}
