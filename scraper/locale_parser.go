package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DecimalStyle is the decimal separator convention of a locale.
type DecimalStyle int

const (
	// DecimalUnknown means no locale evidence; the trailing-digit heuristic decides.
	DecimalUnknown DecimalStyle = iota
	// DecimalPoint is 1,234.56.
	DecimalPoint
	// DecimalComma is 1.234,56.
	DecimalComma
)

// commaDecimalLanguages are page languages that write 1.234,56.
var commaDecimalLanguages = map[string]bool{
	"de": true, "fr": true, "es": true, "it": true, "nl": true, "pt": true,
	"da": true, "sv": true, "nb": true, "no": true, "fi": true, "pl": true,
	"cs": true, "sk": true, "hu": true, "ro": true, "el": true, "tr": true,
	"ru": true, "uk": true, "id": true, "vi": true,
}

// pointDecimalLanguages are page languages that write 1,234.56.
var pointDecimalLanguages = map[string]bool{
	"en": true, "ja": true, "zh": true, "ko": true, "th": true, "he": true,
	"ms": true, "hi": true,
}

// groupSeparators never act as decimal marks.
var groupSeparators = strings.NewReplacer(
	" ", "",
	" ", "",
	" ", "",
	" ", "",
	"'", "",
	"’", "",
)

// numberPattern matches a grouped or plain amount.
const numberPattern = `\d{1,3}(?:[., \x{00A0}\x{202F}\x{2009}'’]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`

// LocaleParser turns locale-formatted price tokens into decimals.
type LocaleParser struct {
	currencies *CurrencyTable
	tokenRe    *regexp.Regexp
}

// PriceToken is a currency-adjacent amount found in text.
type PriceToken struct {
	Raw      string
	Number   string
	Symbol   string
	Currency string
}

// NewLocaleParser creates a parser whose token scanner recognises every
// symbol and code in the table.
func NewLocaleParser(currencies *CurrencyTable) *LocaleParser {
	if currencies == nil {
		currencies = NewCurrencyTable(nil)
	}
	// symbol before the amount, or amount before the symbol
	gap := `[\s\x{00A0}\x{202F}\x{2009}]?`
	expr := `(` + currencies.pattern(true) + `)` + gap + `(` + numberPattern + `)|(` +
		numberPattern + `)` + gap + `(` + currencies.pattern(false) + `)`
	return &LocaleParser{
		currencies: currencies,
		tokenRe:    regexp.MustCompile(expr),
	}
}

// Currencies returns the currency table used by the parser.
func (lp *LocaleParser) Currencies() *CurrencyTable {
	return lp.currencies
}

// ExtractTokens finds every currency-adjacent amount in text, in order.
func (lp *LocaleParser) ExtractTokens(text string) []PriceToken {
	var tokens []PriceToken
	for _, m := range lp.tokenRe.FindAllStringSubmatch(text, -1) {
		tok := PriceToken{Raw: strings.TrimSpace(m[0])}
		if m[1] != "" {
			tok.Symbol, tok.Number = m[1], m[2]
		} else {
			tok.Number, tok.Symbol = m[3], m[4]
		}
		tok.Currency = lp.currencies.Resolve(tok.Symbol)
		tokens = append(tokens, tok)
	}
	return tokens
}

// DetectStyle derives the decimal convention from the page language and,
// failing that, from the currency.
func DetectStyle(lang, currency string) DecimalStyle {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	switch {
	case commaDecimalLanguages[lang]:
		return DecimalComma
	case pointDecimalLanguages[lang]:
		return DecimalPoint
	}
	switch strings.ToUpper(currency) {
	case "EUR", "SEK", "DKK", "NOK":
		return DecimalComma
	case "USD", "GBP", "JPY", "AUD", "CAD", "HKD", "INR", "KRW", "CNY":
		return DecimalPoint
	}
	return DecimalUnknown
}

// ParseAmount converts a numeric token such as "1.234,56" into a decimal.
//
// When both '.' and ',' appear the right-most one is the decimal mark. A
// separator repeated more than once is a group separator. A single
// separator followed by one or two digits is a decimal mark. Followed by
// exactly three digits it is ambiguous: the locale style decides, and with
// no style it is read as a group separator.
func ParseAmount(token string, style DecimalStyle) (decimal.Decimal, error) {
	s := groupSeparators.Replace(strings.TrimSpace(token))
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9') && r != '.' && r != ',' {
			return decimal.Zero, fmt.Errorf("unexpected character %q in amount %q", r, token)
		}
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		s = resolveSingleSeparator(s, '.', style)
	case lastComma >= 0:
		s = resolveSingleSeparator(s, ',', style)
	}

	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", token, err)
	}
	return d, nil
}

// parseTokenAmount reads a scanned amount. When the style would leave more
// fraction digits than the currency has, as in "€1.234" on an English page,
// the separator is read as grouping instead.
func parseTokenAmount(number string, style DecimalStyle, currency string) (decimal.Decimal, error) {
	amount, err := ParseAmount(number, style)
	places := MinorUnits(currency)
	if err != nil || -amount.Exponent() <= places {
		return amount, err
	}
	if grouped, err := ParseAmount(number, DecimalUnknown); err == nil && -grouped.Exponent() <= places {
		return grouped, nil
	}
	return amount, nil
}

func resolveSingleSeparator(s string, sep byte, style DecimalStyle) string {
	sepStr := string(sep)
	if strings.Count(s, sepStr) > 1 {
		return strings.ReplaceAll(s, sepStr, "")
	}

	trailing := len(s) - strings.Index(s, sepStr) - 1
	isDecimal := false
	switch {
	case trailing == 3:
		isDecimal = (sep == ',' && style == DecimalComma) || (sep == '.' && style == DecimalPoint)
	case trailing == 0:
		isDecimal = false
	default:
		isDecimal = true
	}

	if isDecimal {
		return strings.Replace(s, sepStr, ".", 1)
	}
	return strings.ReplaceAll(s, sepStr, "")
}
