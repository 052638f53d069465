package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// shortPageChars is the visible-text length below which a page is treated
// as an interstitial rather than a product page.
const shortPageChars = 1500

// BotDetector detects bot walls and CAPTCHA interstitials in rendered pages.
type BotDetector struct {
	strongPatterns []*regexp.Regexp
	weakPatterns   []*regexp.Regexp
}

// NewBotDetector compiles the challenge markers.
func NewBotDetector(markers ChallengeMarkers) (*BotDetector, error) {
	bd := &BotDetector{}
	for _, expr := range markers.Strong {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("invalid strong challenge marker %q: %w", expr, err)
		}
		bd.strongPatterns = append(bd.strongPatterns, re)
	}
	for _, expr := range markers.Weak {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("invalid weak challenge marker %q: %w", expr, err)
		}
		bd.weakPatterns = append(bd.weakPatterns, re)
	}
	return bd, nil
}

// Detect reports whether the rendered document is a bot-protection page
// and, if so, which marker gave it away.
//
// Strong markers are matched against the raw HTML and are decisive. Weak
// markers are matched against the title and visible text and only count
// on short pages or when the response status was 403, 429 or 503.
func (bd *BotDetector) Detect(doc *RenderedDocument) (bool, string) {
	if doc == nil {
		return false, ""
	}

	for _, pattern := range bd.strongPatterns {
		if pattern.MatchString(doc.HTML) || pattern.MatchString(doc.Title) {
			return true, "challenge marker: " + pattern.String()
		}
	}

	text := doc.Title + " " + visibleText(doc.HTML)
	var reasons []string
	for _, pattern := range bd.weakPatterns {
		if pattern.MatchString(text) {
			reasons = append(reasons, pattern.String())
		}
	}
	if len(reasons) == 0 {
		return false, ""
	}

	short := len(strings.TrimSpace(text)) < shortPageChars
	if short || blockingStatus(doc.StatusCode) {
		return true, fmt.Sprintf("weak challenge markers (status %d, %d chars): %s",
			doc.StatusCode, len(text), strings.Join(reasons, "; "))
	}
	return false, ""
}

func blockingStatus(code int) bool {
	return code == 403 || code == 429 || code == 503
}

// visibleText returns the collapsed text content of the page body with
// scripts and styles removed.
func visibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body = body.Clone()
	body.Find("script, style, noscript, template").Remove()
	return collapseSpace(body.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
