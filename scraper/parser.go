package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

// UnknownProductName is used when no product name can be found.
const UnknownProductName = "Unknown product"

// Role says how a candidate was classified on the page.
type Role string

const (
	RoleCurrent  Role = "current"
	RoleOriginal Role = "original"
	RoleUnknown  Role = "unknown"
)

// Candidate is one price value found on the page.
type Candidate struct {
	Raw      string
	Amount   decimal.Decimal
	Currency string // ISO code, empty when the page gave none
	Role     Role
	Region   int // candidates sharing a region sat in one price block; -1 when scattered
}

// ParsedCandidates is the output of the first strategy that found a price.
type ParsedCandidates struct {
	Name       string
	Candidates []Candidate
	Strategy   string
	Lang       string
}

// Strategy is one way of locating price candidates in a document.
type Strategy struct {
	Name    string
	Extract func(p *Parser, pg *page) []Candidate
}

// page is a parsed document plus what strategies need to read it.
type page struct {
	doc  *goquery.Document
	lang string
}

// Parser turns a rendered document into price candidates. It is stateless
// after construction and safe for concurrent use.
type Parser struct {
	markers    *Markers
	locale     *LocaleParser
	strategies []Strategy

	regionSel   string
	currentSel  string
	originalSel string
	excludeSel  string
}

// asciiSpace collapses layout whitespace but keeps no-break spaces, which
// some locales use as a group separator.
var asciiSpace = regexp.MustCompile(`[ \t\r\n\f]+`)

// struckSelector matches elements rendered with a strikethrough.
const struckSelector = "s, del, strike, [data-pt-struck], [style*='line-through']"

// NewParser builds a parser from marker data.
func NewParser(markers *Markers) *Parser {
	p := &Parser{
		markers:    markers,
		locale:     NewLocaleParser(NewCurrencyTable(markers.CurrencySymbols)),
		strategies: DefaultStrategies(),
	}

	p.currentSel = strings.Join(markers.CurrentPriceSelectors, ", ")
	p.originalSel = joinSelectors(append([]string{struckSelector}, markers.OriginalPriceSelectors...))
	p.excludeSel = strings.Join(markers.ExcludeSelectors, ", ")

	regions := append([]string{}, markers.PriceSelectors...)
	regions = append(regions, markers.CurrentPriceSelectors...)
	regions = append(regions, markers.OriginalPriceSelectors...)
	p.regionSel = joinSelectors(regions)
	return p
}

// Currencies returns the currency table built from the marker data.
func (p *Parser) Currencies() *CurrencyTable {
	return p.locale.Currencies()
}

// Parse runs the strategies in order and returns the candidates of the
// first one that yields a positive amount. If none does but some strategy
// produced candidates, the first such result is returned so the caller can
// reject it as implausible.
func (p *Parser) Parse(rd *RenderedDocument) (*ParsedCandidates, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rd.HTML))
	if err != nil {
		return nil, newError(StageParse, KindNoPriceFound, fmt.Errorf("failed to parse HTML: %w", err))
	}

	pg := &page{doc: doc, lang: pageLang(rd, doc)}
	name := p.extractName(doc, rd.Title)

	var fallback *ParsedCandidates
	for _, strategy := range p.strategies {
		candidates := strategy.Extract(p, pg)
		if len(candidates) == 0 {
			continue
		}
		result := &ParsedCandidates{
			Name:       name,
			Candidates: candidates,
			Strategy:   strategy.Name,
			Lang:       pg.lang,
		}
		if anyPositive(candidates) {
			return result, nil
		}
		if fallback == nil {
			fallback = result
		}
	}

	if fallback != nil {
		return fallback, nil
	}
	return nil, newError(StageParse, KindNoPriceFound, fmt.Errorf("no strategy matched %s", rd.URL))
}

// tokenCandidates scans text for currency-adjacent amounts.
func (p *Parser) tokenCandidates(text string, role Role, region int, lang string) []Candidate {
	var out []Candidate
	for _, tok := range p.locale.ExtractTokens(text) {
		amount, err := parseTokenAmount(tok.Number, DetectStyle(lang, tok.Currency), tok.Currency)
		if err != nil {
			continue
		}
		out = append(out, Candidate{
			Raw:      tok.Raw,
			Amount:   amount,
			Currency: tok.Currency,
			Role:     role,
			Region:   region,
		})
	}
	return out
}

// classifyRegion reads every price token inside region. Struck or
// original-price elements are claimed first, then current-price elements;
// whatever text remains is unclassified.
func (p *Parser) classifyRegion(region *goquery.Selection, regionID int, lang string) []Candidate {
	claimed := make(map[*html.Node]bool)
	var out []Candidate

	collect := func(sel string, role Role) {
		if sel == "" {
			return
		}
		matches := region.Filter(sel).AddSelection(region.Find(sel))
		matches.Each(func(_ int, s *goquery.Selection) {
			node := s.Get(0)
			if claimed[node] || hasClaimedAncestor(node, claimed) {
				return
			}
			text := textExcluding(node, claimed)
			claimed[node] = true
			out = append(out, p.tokenCandidates(text, role, regionID, lang)...)
		})
	}

	collect(p.originalSel, RoleOriginal)
	collect(p.currentSel, RoleCurrent)

	for _, node := range region.Nodes {
		if claimed[node] {
			continue
		}
		out = append(out, p.tokenCandidates(textExcluding(node, claimed), RoleUnknown, regionID, lang)...)
	}
	return out
}

func (p *Parser) excluded(s *goquery.Selection) bool {
	return p.excludeSel != "" && s.Closest(p.excludeSel).Length() > 0
}

func (p *Parser) extractName(doc *goquery.Document, title string) string {
	for _, sel := range p.markers.NameSelectors {
		var name string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if p.excluded(s) {
				return true
			}
			text := collapseSpace(s.Text())
			if text == "" || len(text) > 300 {
				return true
			}
			name = text
			return false
		})
		if name != "" {
			return name
		}
	}

	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if og = collapseSpace(og); og != "" {
			return og
		}
	}

	if title == "" {
		title = doc.Find("title").First().Text()
	}
	if title = stripSiteSuffix(collapseSpace(title)); title != "" {
		return title
	}
	return UnknownProductName
}

// stripSiteSuffix removes a trailing " | Site" or " - Site".
func stripSiteSuffix(title string) string {
	for _, sep := range []string{" | ", " - ", " – "} {
		if i := strings.LastIndex(title, sep); i > 0 {
			return strings.TrimSpace(title[:i])
		}
	}
	return title
}

func pageLang(rd *RenderedDocument, doc *goquery.Document) string {
	if rd.Lang != "" {
		return rd.Lang
	}
	if lang, ok := doc.Find("html").Attr("lang"); ok && lang != "" {
		return lang
	}
	if locale, ok := doc.Find(`meta[property="og:locale"]`).Attr("content"); ok {
		return locale
	}
	return ""
}

func anyPositive(candidates []Candidate) bool {
	for _, c := range candidates {
		if c.Amount.IsPositive() {
			return true
		}
	}
	return false
}

func joinSelectors(selectors []string) string {
	var kept []string
	for _, s := range selectors {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ", ")
}

func hasClaimedAncestor(n *html.Node, claimed map[*html.Node]bool) bool {
	for a := n.Parent; a != nil; a = a.Parent {
		if claimed[a] {
			return true
		}
	}
	return false
}

// textExcluding returns the text under n, skipping claimed subtrees and
// non-visible elements. Element boundaries become spaces so adjacent
// prices never run together.
func textExcluding(n *html.Node, claimed map[*html.Node]bool) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			b.WriteString(node.Data)
			return
		case html.ElementNode:
			if node != n && claimed[node] {
				return
			}
			switch node.Data {
			case "script", "style", "noscript", "template":
				return
			}
			b.WriteByte(' ')
			defer b.WriteByte(' ')
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(asciiSpace.ReplaceAllString(b.String(), " "))
}
