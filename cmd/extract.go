package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"pricetrack/models"
	"pricetrack/scraper"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type priceExtractor interface {
	ExtractPrice(ctx context.Context, url string) (*models.PriceSnapshot, error)
}

type extractResult struct {
	URL      string                   `json:"url"`
	Snapshot *models.PriceSnapshot    `json:"snapshot,omitempty"`
	Error    *scraper.ExtractionError `json:"error,omitempty"`
}

var extractCmd = &cobra.Command{
	Use:   "extract URL...",
	Short: "Extract prices from product pages without storing them",
	Long: `Extract renders each product page and prints the price it finds.
URLs are processed concurrently. Output is one JSON object per line, or an
aligned table with --format table.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	flags := extractCmd.Flags()
	flags.IntP("concurrency", "c", 3, "pages rendered at once")
	flags.String("format", "jsonl", "output format: jsonl, table")
	flags.Duration("timeout", 0, "per-page render timeout (overrides FETCH_TIMEOUT)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := cmd.Flags()
	concurrency, _ := flags.GetInt("concurrency")
	format, _ := flags.GetString("format")
	if format != "jsonl" && format != "table" {
		return fmt.Errorf("unknown format %q", format)
	}
	if flags.Changed("timeout") {
		cfg.FetchTimeout, _ = flags.GetDuration("timeout")
	}
	if concurrency < 1 {
		concurrency = 1
	}

	extractor, err := newExtractor(nil)
	if err != nil {
		return err
	}
	defer extractor.Close()

	results, runErr := extractAll(ctx, extractor, args, concurrency)
	if err := writeResults(cmd.OutOrStdout(), format, results); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("extraction interrupted: %w", runErr)
	}

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d extractions failed", failed, len(results))
	}
	return nil
}

// extractAll runs the extractions with at most concurrency in flight.
// Results keep the order of urls. Per-URL failures are recorded on the
// result; the returned error is set only when ctx ends the run.
func extractAll(ctx context.Context, extractor priceExtractor, urls []string, concurrency int) ([]extractResult, error) {
	results := make([]extractResult, len(urls))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, u := range urls {
		results[i] = extractResult{URL: u}
		g.Go(func() error {
			snap, err := extractor.ExtractPrice(ctx, u)
			if err != nil {
				results[i].Error = asExtractionError(err)
				return ctx.Err()
			}
			results[i].Snapshot = snap
			return nil
		})
	}
	return results, g.Wait()
}

func asExtractionError(err error) *scraper.ExtractionError {
	var extractionErr *scraper.ExtractionError
	if errors.As(err, &extractionErr) {
		return extractionErr
	}
	return &scraper.ExtractionError{
		Stage:  scraper.StageFetch,
		Kind:   scraper.KindUnreachable,
		Detail: "The product page could not be reached.",
		Err:    err,
	}
}

func writeResults(w io.Writer, format string, results []extractResult) error {
	if format == "table" {
		return writeTable(w, results)
	}

	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func writeTable(w io.Writer, results []extractResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tNAME\tPRICE\tWAS\tCURRENCY\tSTATUS")
	for _, r := range results {
		if r.Error != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t%s/%s\n", r.URL, r.Error.Stage, r.Error.Kind)
			continue
		}
		s := r.Snapshot
		was := "-"
		if s.OriginalPrice.Valid {
			was = s.OriginalPrice.Decimal.String()
		}
		status := "ok"
		if s.LowConfidence() {
			status = "ok (" + strings.Join(s.Warnings, ", ") + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.URL, s.Name, s.CurrentPrice.String(), was, s.Currency, status)
	}
	return tw.Flush()
}
