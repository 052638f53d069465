package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyFetchError(t *testing.T) {
	expired, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		kind Kind
	}{
		{"caller context done", expired, errors.New("use of closed connection"), KindTimeout},
		{"wrapped deadline", context.Background(), fmt.Errorf("wait stable: %w", context.DeadlineExceeded), KindTimeout},
		{"navigation failure", context.Background(), &rod.NavigationError{Reason: "net::ERR_NAME_NOT_RESOLVED"}, KindUnreachable},
		{"other browser error", context.Background(), errors.New("target closed"), KindUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyFetchError(tt.ctx, tt.err)
			var extractionErr *ExtractionError
			if assert.ErrorAs(t, err, &extractionErr) {
				assert.Equal(t, StageFetch, extractionErr.Stage)
				assert.Equal(t, tt.kind, extractionErr.Kind)
			}
		})
	}
}

func TestBrowserFetcherDefaults(t *testing.T) {
	bf := NewBrowserFetcher(FetcherOptions{Headless: true})

	assert.Equal(t, desktopUserAgent, bf.opts.UserAgent)
	assert.NoError(t, bf.Close(), "closing before first use is a no-op")

	var _ Renderer = bf
}

func TestNewLauncherEnablesLeakless(t *testing.T) {
	l := newLauncher(FetcherOptions{Headless: true, BrowserBin: "/opt/chromium/chrome"})

	assert.True(t, l.Has(flags.Leakless))
	assert.Equal(t, "/opt/chromium/chrome", l.Get(flags.Bin))
}

func TestBrowserFetcherRelaunchesAfterDiscard(t *testing.T) {
	bf := NewBrowserFetcher(FetcherOptions{Headless: true})

	var launched, closed []*rod.Browser
	bf.launch = func() (*rod.Browser, error) {
		b := rod.New()
		launched = append(launched, b)
		return b, nil
	}
	bf.closeBrowser = func(b *rod.Browser) error {
		closed = append(closed, b)
		return nil
	}

	first, err := bf.connect()
	require.NoError(t, err)
	again, err := bf.connect()
	require.NoError(t, err)
	assert.Same(t, first, again, "a live browser is reused")
	assert.Len(t, launched, 1)

	bf.discard(first)
	assert.Equal(t, []*rod.Browser{first}, closed)

	second, err := bf.connect()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Len(t, launched, 2)

	bf.discard(first)
	current, err := bf.connect()
	require.NoError(t, err)
	assert.Same(t, second, current, "a stale browser does not evict its replacement")
	assert.Len(t, closed, 1)

	require.NoError(t, bf.Close())
	assert.Equal(t, []*rod.Browser{first, second}, closed)
}

func TestBrowserFetcherLaunchFailureIsNotCached(t *testing.T) {
	bf := NewBrowserFetcher(FetcherOptions{Headless: true})

	attempts := 0
	bf.launch = func() (*rod.Browser, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("failed to launch browser: exec: not found")
		}
		return rod.New(), nil
	}
	bf.closeBrowser = func(*rod.Browser) error { return nil }

	_, err := bf.Render(context.Background(), "https://www.paulsmith.com/p/shirt")
	var extractionErr *ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, StageFetch, extractionErr.Stage)
	assert.Equal(t, KindUnreachable, extractionErr.Kind)

	b, err := bf.connect()
	require.NoError(t, err)
	assert.NotNil(t, b)
	assert.Equal(t, 2, attempts)
}
