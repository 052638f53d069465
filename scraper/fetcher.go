package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"pricetrack/logger"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	systemChromium   = "/usr/bin/chromium-browser"
	stableWindow     = time.Second
)

// RenderedDocument is a product page after client-side rendering.
type RenderedDocument struct {
	URL        string
	FinalURL   string
	Title      string
	HTML       string
	StatusCode int
	Lang       string
	FetchedAt  time.Time
}

// Renderer loads a URL in a browser and returns the rendered document.
// Failures are *ExtractionError values with stage fetch.
type Renderer interface {
	Render(ctx context.Context, url string) (*RenderedDocument, error)
}

// FetcherOptions configures the browser process.
type FetcherOptions struct {
	BrowserBin string // empty: system Chromium if present, else auto-download
	UserAgent  string
	Headless   bool
}

// BrowserFetcher renders pages with a shared headless Chromium. Every call
// gets its own incognito context, so calls are independent and may run
// concurrently.
type BrowserFetcher struct {
	opts FetcherOptions

	launch       func() (*rod.Browser, error)
	closeBrowser func(*rod.Browser) error

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowserFetcher creates a fetcher. The browser is launched on first use.
func NewBrowserFetcher(opts FetcherOptions) *BrowserFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = desktopUserAgent
	}
	bf := &BrowserFetcher{opts: opts, closeBrowser: (*rod.Browser).Close}
	bf.launch = bf.launchBrowser
	return bf
}

// newLauncher configures the Chromium process. Leakless stays on so the
// browser is killed when this process exits.
func newLauncher(opts FetcherOptions) *launcher.Launcher {
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(true).
		Leakless(true)

	switch {
	case opts.BrowserBin != "":
		l = l.Bin(opts.BrowserBin)
	default:
		if _, err := os.Stat(systemChromium); err == nil {
			l = l.Bin(systemChromium)
		}
	}
	return l
}

func (bf *BrowserFetcher) launchBrowser() (*rod.Browser, error) {
	controlURL, err := newLauncher(bf.opts).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	logger.Info("browser launched", "control_url", controlURL)
	return browser, nil
}

func (bf *BrowserFetcher) connect() (*rod.Browser, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.browser != nil {
		return bf.browser, nil
	}
	browser, err := bf.launch()
	if err != nil {
		return nil, err
	}
	bf.browser = browser
	return browser, nil
}

// discard drops a browser that stopped answering so the next call
// relaunches. A browser already replaced by another call is left alone.
func (bf *BrowserFetcher) discard(stale *rod.Browser) {
	bf.mu.Lock()
	if bf.browser != stale {
		bf.mu.Unlock()
		return
	}
	bf.browser = nil
	bf.mu.Unlock()

	logger.Warn("browser unresponsive, relaunching on next request")
	if err := bf.closeBrowser(stale); err != nil {
		logger.Debug("failed to close browser", "error", err)
	}
}

// Render opens url in a fresh incognito context, waits for the page to
// settle and captures its HTML. The context and page are always released.
func (bf *BrowserFetcher) Render(ctx context.Context, url string) (*RenderedDocument, error) {
	browser, err := bf.connect()
	if err != nil {
		return nil, newError(StageFetch, KindUnreachable, err)
	}

	incognito, err := browser.Incognito()
	if err != nil {
		bf.discard(browser)
		return nil, newError(StageFetch, KindUnreachable, fmt.Errorf("failed to create browser context: %w", err))
	}
	defer func() {
		if err := incognito.Close(); err != nil {
			logger.Debug("failed to close browser context", "error", err)
		}
	}()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		bf.discard(browser)
		return nil, newError(StageFetch, KindUnreachable, fmt.Errorf("failed to open page: %w", err))
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Debug("failed to close page", "error", err)
		}
	}()

	doc, err := bf.render(page.Context(ctx), url)
	if err != nil {
		return nil, classifyFetchError(ctx, err)
	}
	return doc, nil
}

func (bf *BrowserFetcher) render(page *rod.Page, url string) (*RenderedDocument, error) {
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, err
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      bf.opts.UserAgent,
		AcceptLanguage: "en-GB,en;q=0.9",
	}); err != nil {
		return nil, err
	}
	if _, err := page.EvalOnNewDocument(stealthScript); err != nil {
		return nil, err
	}

	if err := page.Navigate(url); err != nil {
		return nil, err
	}
	if err := page.WaitLoad(); err != nil {
		return nil, err
	}
	if err := page.WaitStable(stableWindow); err != nil {
		return nil, err
	}

	if _, err := page.Eval(markStruckScript); err != nil {
		logger.Debug("failed to tag struck elements", "url", url, "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, err
	}
	info, err := page.Info()
	if err != nil {
		return nil, err
	}

	doc := &RenderedDocument{
		URL:       url,
		FinalURL:  info.URL,
		Title:     info.Title,
		HTML:      html,
		FetchedAt: time.Now().UTC(),
	}
	if res, err := page.Eval(statusScript); err == nil {
		doc.StatusCode = res.Value.Int()
	}
	if res, err := page.Eval(langScript); err == nil {
		doc.Lang = res.Value.Str()
	}
	return doc, nil
}

// Close shuts the browser process down.
func (bf *BrowserFetcher) Close() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.browser == nil {
		return nil
	}
	err := bf.closeBrowser(bf.browser)
	bf.browser = nil
	return err
}

func classifyFetchError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return newError(StageFetch, KindTimeout, ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(StageFetch, KindTimeout, err)
	}
	// navigation errors (DNS, refused connections, aborted loads) and
	// everything else the browser reports
	return newError(StageFetch, KindUnreachable, err)
}

const stealthScript = `
	Object.defineProperty(navigator, 'webdriver', {
		get: () => undefined,
	});

	Object.defineProperty(navigator, 'plugins', {
		get: () => [1, 2, 3, 4, 5],
	});

	Object.defineProperty(navigator, 'languages', {
		get: () => ['en-GB', 'en'],
	});

	Object.defineProperty(navigator, 'platform', {
		get: () => 'Win32',
	});

	window.chrome = {
		runtime: {},
	};

	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications' ?
			Promise.resolve({ state: Notification.permission }) :
			originalQuery(parameters)
	);
`

// markStruckScript exposes computed line-through styling to the static
// parser as a data-pt-struck attribute.
const markStruckScript = `() => {
	let tagged = 0;
	for (const el of document.querySelectorAll('body *')) {
		const line = getComputedStyle(el).textDecorationLine || '';
		if (line.includes('line-through')) {
			el.setAttribute('data-pt-struck', '1');
			tagged++;
		}
	}
	return tagged;
}`

const statusScript = `() => {
	const nav = performance.getEntriesByType('navigation')[0];
	return nav && nav.responseStatus ? nav.responseStatus : 0;
}`

const langScript = `() => document.documentElement.lang || ''`
