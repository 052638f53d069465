package scraper

import (
	"regexp"
	"sort"
	"strings"
)

// defaultCurrencySymbols maps price symbols to ISO-4217 codes.
var defaultCurrencySymbols = map[string]string{
	"US$": "USD",
	"HK$": "HKD",
	"A$":  "AUD",
	"C$":  "CAD",
	"$":   "USD",
	"£":   "GBP",
	"€":   "EUR",
	"¥":   "JPY",
	"₹":   "INR",
	"₩":   "KRW",
}

// defaultCurrencyCodes are accepted verbatim in page text and structured data.
var defaultCurrencyCodes = []string{
	"USD", "GBP", "EUR", "JPY", "CHF", "AUD", "CAD", "HKD",
	"SEK", "DKK", "NOK", "INR", "KRW", "CNY",
}

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
}

type symbolCode struct {
	symbol string
	code   string
}

// CurrencyTable resolves currency symbols and codes. It is immutable once
// built and safe for concurrent use.
type CurrencyTable struct {
	symbols []symbolCode // longest first so "HK$" wins over "$"
	codes   map[string]bool
}

// NewCurrencyTable builds a table from the defaults plus extra symbol→code
// mappings (which override defaults for the same symbol).
func NewCurrencyTable(extra map[string]string) *CurrencyTable {
	merged := make(map[string]string, len(defaultCurrencySymbols)+len(extra))
	for s, c := range defaultCurrencySymbols {
		merged[s] = c
	}
	codes := make(map[string]bool, len(defaultCurrencyCodes))
	for _, c := range defaultCurrencyCodes {
		codes[c] = true
	}
	for s, c := range extra {
		s = strings.TrimSpace(s)
		c = strings.ToUpper(strings.TrimSpace(c))
		if s == "" || c == "" {
			continue
		}
		merged[s] = c
		codes[c] = true
	}

	t := &CurrencyTable{codes: codes}
	for s, c := range merged {
		t.symbols = append(t.symbols, symbolCode{symbol: s, code: c})
	}
	sort.Slice(t.symbols, func(i, j int) bool {
		if len(t.symbols[i].symbol) != len(t.symbols[j].symbol) {
			return len(t.symbols[i].symbol) > len(t.symbols[j].symbol)
		}
		return t.symbols[i].symbol < t.symbols[j].symbol
	})
	return t
}

// Resolve maps a symbol or ISO code to a currency code, or returns "" when
// the token is not recognised.
func (t *CurrencyTable) Resolve(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if upper := strings.ToUpper(token); t.codes[upper] {
		return upper
	}
	for _, sc := range t.symbols {
		if strings.EqualFold(token, sc.symbol) {
			return sc.code
		}
	}
	return ""
}

// Known reports whether code is a supported ISO code.
func (t *CurrencyTable) Known(code string) bool {
	return t.codes[strings.ToUpper(strings.TrimSpace(code))]
}

// pattern returns a regexp alternation matching any symbol or code. Codes
// may touch the amount ("EUR120", "120EUR"), so the word boundary is only
// required on the side away from it.
func (t *CurrencyTable) pattern(beforeAmount bool) string {
	var symbols, words []string
	for _, sc := range t.symbols {
		if isAlpha(sc.symbol) {
			words = append(words, regexp.QuoteMeta(sc.symbol))
		} else {
			symbols = append(symbols, regexp.QuoteMeta(sc.symbol))
		}
	}
	codes := make([]string, 0, len(t.codes))
	for c := range t.codes {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	words = append(words, codes...)

	alt := strings.Join(symbols, "|")
	if len(words) > 0 {
		if alt != "" {
			alt += "|"
		}
		if beforeAmount {
			alt += `\b(?:` + strings.Join(words, "|") + `)`
		} else {
			alt += `(?:` + strings.Join(words, "|") + `)\b`
		}
	}
	return "(?:" + alt + ")"
}

// MinorUnits returns the number of decimal places used by a currency.
func MinorUnits(code string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(code)] {
		return 0
	}
	return 2
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return s != ""
}

var defaultCurrencyTable = NewCurrencyTable(nil)

// CurrencyForSymbol resolves a symbol or code against the built-in table.
func CurrencyForSymbol(symbol string) string {
	return defaultCurrencyTable.Resolve(symbol)
}
