package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"pricetrack/logger"
	"pricetrack/models"

	"github.com/shopspring/decimal"
)

// DefaultFetchTimeout bounds a single page render.
const DefaultFetchTimeout = 25 * time.Second

// Config holds the extraction settings.
type Config struct {
	DefaultCurrency string
	FetchTimeout    time.Duration
	PriceCeiling    decimal.Decimal
	AllowedDomains  []string // empty allows any host
}

// Extractor is the single entry point for price extraction. It holds no
// per-call state and may be used from many goroutines.
type Extractor struct {
	cfg        Config
	renderer   Renderer
	detector   *BotDetector
	parser     *Parser
	normalizer *Normalizer
	metrics    *Metrics
	now        func() time.Time
}

// NewExtractor wires the pipeline. metrics may be nil.
func NewExtractor(cfg Config, renderer Renderer, markers *Markers, metrics *Metrics) (*Extractor, error) {
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if markers == nil {
		var err error
		if markers, err = DefaultMarkers(); err != nil {
			return nil, err
		}
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "GBP"
	}

	detector, err := NewBotDetector(markers.Challenge)
	if err != nil {
		return nil, err
	}

	parser := NewParser(markers)
	if !parser.Currencies().Known(cfg.DefaultCurrency) {
		logger.Warn("default currency is not in the currency table", "currency", cfg.DefaultCurrency)
	}

	return &Extractor{
		cfg:        cfg,
		renderer:   renderer,
		detector:   detector,
		parser:     parser,
		normalizer: NewNormalizer(cfg.DefaultCurrency, cfg.PriceCeiling),
		metrics:    metrics,
		now:        time.Now,
	}, nil
}

// ExtractPrice renders the product page at rawURL and returns a verified
// price snapshot. Failures are *ExtractionError values.
func (e *Extractor) ExtractPrice(ctx context.Context, rawURL string) (*models.PriceSnapshot, error) {
	start := e.now()
	log := logger.With("url", rawURL)

	snap, err := e.extract(ctx, rawURL)
	elapsed := e.now().Sub(start)

	if err != nil {
		var extractionErr *ExtractionError
		if !errors.As(err, &extractionErr) {
			extractionErr = newError(StageFetch, KindUnreachable, err)
		}
		e.metrics.ObserveFailure(extractionErr.Kind, elapsed)
		log.Warn("price extraction failed",
			"stage", extractionErr.Stage,
			"kind", extractionErr.Kind,
			"duration", elapsed,
			"error", extractionErr.Err,
		)
		return nil, extractionErr
	}

	e.metrics.ObserveSuccess(snap.Strategy, elapsed)
	log.Info("price extracted",
		"strategy", snap.Strategy,
		"price", snap.CurrentPrice.String(),
		"currency", snap.Currency,
		"on_sale", snap.OnSale,
		"warnings", snap.Warnings,
		"duration", elapsed,
	)
	return snap, nil
}

func (e *Extractor) extract(ctx context.Context, rawURL string) (*models.PriceSnapshot, error) {
	target, err := e.CheckURL(rawURL)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	doc, err := e.renderer.Render(fetchCtx, target)
	if err != nil {
		var extractionErr *ExtractionError
		if errors.As(err, &extractionErr) {
			return nil, extractionErr
		}
		if fetchCtx.Err() != nil {
			return nil, newError(StageFetch, KindTimeout, err)
		}
		return nil, newError(StageFetch, KindUnreachable, err)
	}

	if blocked, reason := e.detector.Detect(doc); blocked {
		return nil, newError(StageFetch, KindBlockedOrChallenged, errors.New(reason))
	}
	if doc.StatusCode >= 400 {
		return nil, newError(StageFetch, KindUnreachable, fmt.Errorf("HTTP status %d", doc.StatusCode))
	}

	parsed, err := e.parser.Parse(doc)
	if err != nil {
		return nil, err
	}
	logger.Debug("price candidates",
		"url", target,
		"strategy", parsed.Strategy,
		"candidates", len(parsed.Candidates),
		"lang", parsed.Lang,
	)

	fetchedAt := doc.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = e.now()
	}
	return e.normalizer.Normalize(parsed, fetchedAt)
}

// CheckURL verifies that rawURL is an absolute http(s) URL on an allowed
// domain and returns it trimmed.
func (e *Extractor) CheckURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", newError(StageInput, KindInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", newError(StageInput, KindInvalidURL, fmt.Errorf("not an absolute http(s) URL: %q", rawURL))
	}
	if !e.allowedHost(u.Hostname()) {
		return "", newError(StageInput, KindUnsupportedSite, fmt.Errorf("host %s is not tracked", u.Hostname()))
	}
	return rawURL, nil
}

func (e *Extractor) allowedHost(host string) bool {
	if len(e.cfg.AllowedDomains) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, domain := range e.cfg.AllowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// Close releases the renderer's browser, if it holds one.
func (e *Extractor) Close() error {
	if closer, ok := e.renderer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
