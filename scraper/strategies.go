package scraper

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Strategy names, reported on snapshots.
const (
	StrategyStructuredData = "structured_data"
	StrategyMarkers        = "markers"
	StrategyTextScan       = "text_scan"
)

// DefaultStrategies returns the strategies in the order they are tried.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: StrategyStructuredData, Extract: structuredData},
		{Name: StrategyMarkers, Extract: markerRegions},
		{Name: StrategyTextScan, Extract: textScan},
	}
}

var structuredNumber = regexp.MustCompile(numberPattern)

// structuredData reads JSON-LD offers, then microdata, then product meta
// tags. The first source with any price wins.
func structuredData(p *Parser, pg *page) []Candidate {
	var out []Candidate
	pg.doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(s.Text())))
		dec.UseNumber()
		var data any
		if err := dec.Decode(&data); err != nil {
			return true
		}
		w := &jsonLDWalker{parser: p}
		w.collect(data)
		out = w.out
		return len(out) == 0
	})
	if len(out) > 0 {
		return out
	}

	if out = microdataPrices(p, pg.doc); len(out) > 0 {
		return out
	}
	return metaPrices(p, pg.doc)
}

type jsonLDWalker struct {
	parser *Parser
	out    []Candidate
}

var productTypes = []string{"Product", "ProductGroup", "IndividualProduct", "ProductModel"}

// collect reads the offers of the page's primary product: the first
// top-level Product, else a top-level node's mainEntity, else bare
// top-level offers. Products nested under another product, such as
// isSimilarTo or isRelatedTo, are never read.
func (w *jsonLDWalker) collect(data any) {
	nodes := topLevelNodes(data)
	for _, n := range nodes {
		if hasType(n, productTypes...) {
			if w.productOffers(n); len(w.out) > 0 {
				return
			}
		}
	}
	for _, n := range nodes {
		if m, ok := n["mainEntity"].(map[string]any); ok && hasType(m, productTypes...) {
			if w.productOffers(m); len(w.out) > 0 {
				return
			}
		}
	}
	for _, n := range nodes {
		if hasType(n, "Offer", "AggregateOffer") {
			w.offer(n)
		}
	}
}

// productOffers reads a product's own offers, or its variants' offers for
// a ProductGroup without any.
func (w *jsonLDWalker) productOffers(product map[string]any) {
	w.offers(product["offers"])
	if len(w.out) > 0 {
		return
	}
	variants, _ := product["hasVariant"].([]any)
	for _, v := range variants {
		if m, ok := v.(map[string]any); ok {
			w.offers(m["offers"])
		}
	}
}

func (w *jsonLDWalker) offers(v any) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			w.offers(item)
		}
	case map[string]any:
		_, price := t["price"]
		_, low := t["lowPrice"]
		_, spec := t["priceSpecification"]
		if price || low || spec {
			w.offer(t)
			return
		}
		// an AggregateOffer may only list its member offers
		w.offers(t["offers"])
	}
}

// topLevelNodes flattens arrays and @graph into the typed objects of a
// JSON-LD document.
func topLevelNodes(v any) []map[string]any {
	var nodes []map[string]any
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			nodes = append(nodes, topLevelNodes(item)...)
		}
	case map[string]any:
		if _, ok := t["@type"]; ok {
			nodes = append(nodes, t)
		}
		if graph, ok := t["@graph"]; ok {
			nodes = append(nodes, topLevelNodes(graph)...)
		}
	}
	return nodes
}

func (w *jsonLDWalker) offer(o map[string]any) {
	currency := w.parser.structuredCurrency(stringValue(o["priceCurrency"]))

	if raw, ok := numberValue(o["price"]); ok {
		w.add(raw, currency, RoleCurrent)
	} else if raw, ok := numberValue(o["lowPrice"]); ok {
		w.add(raw, currency, RoleCurrent)
	}

	var specs []any
	switch s := o["priceSpecification"].(type) {
	case []any:
		specs = s
	case map[string]any:
		specs = []any{s}
	}
	for _, item := range specs {
		ps, ok := item.(map[string]any)
		if !ok {
			continue
		}
		raw, ok := numberValue(ps["price"])
		if !ok {
			continue
		}
		psCurrency := currency
		if c := w.parser.structuredCurrency(stringValue(ps["priceCurrency"])); c != "" {
			psCurrency = c
		}
		role := RoleCurrent
		priceType := stringValue(ps["priceType"])
		if strings.Contains(priceType, "ListPrice") || strings.Contains(priceType, "StrikethroughPrice") {
			role = RoleOriginal
		}
		w.add(raw, psCurrency, role)
	}
}

func (w *jsonLDWalker) add(raw, currency string, role Role) {
	if c, ok := structuredCandidate(raw, currency, role); ok {
		w.out = append(w.out, c)
	}
}

func structuredCandidate(raw, currency string, role Role) (Candidate, bool) {
	// schema.org and Open Graph amounts use a point decimal mark
	amount, err := ParseAmount(raw, DecimalPoint)
	if err != nil {
		return Candidate{}, false
	}
	return Candidate{Raw: raw, Amount: amount, Currency: currency, Role: role, Region: 0}, true
}

func microdataPrices(p *Parser, doc *goquery.Document) []Candidate {
	var out []Candidate
	doc.Find(`[itemprop="price"], [itemprop="lowPrice"]`).Each(func(_ int, s *goquery.Selection) {
		value, ok := s.Attr("content")
		if !ok {
			value = s.Text()
		}
		raw := structuredNumber.FindString(value)
		if raw == "" {
			return
		}

		scope := s.Closest("[itemscope]")
		if scope.Length() == 0 {
			scope = doc.Selection
		}
		currencyNode := scope.Find(`[itemprop="priceCurrency"]`).First()
		code, ok := currencyNode.Attr("content")
		if !ok {
			code = currencyNode.Text()
		}
		if c, ok := structuredCandidate(raw, p.structuredCurrency(code), RoleCurrent); ok {
			out = append(out, c)
		}
	})
	return out
}

func metaPrices(p *Parser, doc *goquery.Document) []Candidate {
	meta := func(names ...string) string {
		for _, name := range names {
			sel := `meta[property="` + name + `"], meta[name="` + name + `"]`
			if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	currency := p.structuredCurrency(meta("product:price:currency", "og:price:currency", "product:sale_price:currency"))
	price := structuredNumber.FindString(meta("product:price:amount", "og:price:amount"))
	sale := structuredNumber.FindString(meta("product:sale_price:amount"))
	original := structuredNumber.FindString(meta("product:original_price:amount"))

	var out []Candidate
	add := func(raw string, role Role) {
		if raw == "" {
			return
		}
		if c, ok := structuredCandidate(raw, currency, role); ok {
			out = append(out, c)
		}
	}
	if sale != "" {
		add(sale, RoleCurrent)
		add(price, RoleOriginal)
	} else {
		add(price, RoleCurrent)
	}
	add(original, RoleOriginal)
	return out
}

// markerRegions reads the first price block, in document order, that holds
// a positive amount. Blocks that are siblings of it are read with it, so a
// was/now pair split across two elements stays together.
func markerRegions(p *Parser, pg *page) []Candidate {
	regions := p.priceRegions(pg.doc)

	var fallback []Candidate
	for i, region := range regions {
		candidates := p.classifyRegion(region, i, pg.lang)
		if len(candidates) == 0 {
			continue
		}
		if !anyPositive(candidates) {
			if fallback == nil {
				fallback = candidates
			}
			continue
		}

		parent := region.Get(0).Parent
		for j, sibling := range regions {
			if j == i || sibling.Get(0).Parent != parent {
				continue
			}
			if extra := p.classifyRegion(sibling, i, pg.lang); anyPositive(extra) {
				candidates = append(candidates, extra...)
			}
		}
		return candidates
	}
	return fallback
}

// priceRegions returns the outermost elements matching a price selector,
// outside excluded page chrome, in document order.
func (p *Parser) priceRegions(doc *goquery.Document) []*goquery.Selection {
	if p.regionSel == "" {
		return nil
	}
	kept := make(map[*html.Node]bool)
	var regions []*goquery.Selection
	doc.Find(p.regionSel).Each(func(_ int, s *goquery.Selection) {
		if p.excluded(s) || hasClaimedAncestor(s.Get(0), kept) {
			return
		}
		kept[s.Get(0)] = true
		regions = append(regions, s)
	})
	return regions
}

// textScan reads every currency-adjacent amount in the main content area.
func textScan(p *Parser, pg *page) []Candidate {
	var main *goquery.Selection
	for _, sel := range p.markers.MainContentSelectors {
		if found := pg.doc.Find(sel).First(); found.Length() > 0 {
			main = found
			break
		}
	}
	if main == nil {
		main = pg.doc.Selection
	}

	main = main.Clone()
	main.Find("script, style, noscript, template").Remove()
	if p.excludeSel != "" {
		main.Find(p.excludeSel).Remove()
	}
	return p.classifyRegion(main, -1, pg.lang)
}

// structuredCurrency accepts any three-letter code; structured data is not
// limited to the symbols the page text parser knows.
func (p *Parser) structuredCurrency(code string) string {
	code = strings.TrimSpace(code)
	if c := p.Currencies().Resolve(code); c != "" {
		return c
	}
	if len(code) == 3 && isAlpha(code) {
		return strings.ToUpper(code)
	}
	return ""
}

func hasType(o map[string]any, types ...string) bool {
	matches := func(v string) bool {
		v = strings.TrimPrefix(strings.TrimPrefix(v, "https://schema.org/"), "http://schema.org/")
		for _, t := range types {
			if v == t {
				return true
			}
		}
		return false
	}
	switch t := o["@type"].(type) {
	case string:
		return matches(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && matches(s) {
				return true
			}
		}
	}
	return false
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	return ""
}

func numberValue(v any) (string, bool) {
	switch t := v.(type) {
	case json.Number:
		return t.String(), true
	case string:
		raw := structuredNumber.FindString(t)
		return raw, raw != ""
	}
	return "", false
}
