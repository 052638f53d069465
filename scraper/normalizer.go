package scraper

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"pricetrack/models"

	"github.com/shopspring/decimal"
)

// DefaultPriceCeiling is the largest price accepted as a real product price.
var DefaultPriceCeiling = decimal.NewFromInt(100000)

// Normalizer reconciles parsed candidates into a verified snapshot.
type Normalizer struct {
	defaultCurrency string
	ceiling         decimal.Decimal
}

// NewNormalizer creates a normalizer. A zero ceiling means DefaultPriceCeiling.
func NewNormalizer(defaultCurrency string, ceiling decimal.Decimal) *Normalizer {
	if !ceiling.IsPositive() {
		ceiling = DefaultPriceCeiling
	}
	return &Normalizer{
		defaultCurrency: strings.ToUpper(strings.TrimSpace(defaultCurrency)),
		ceiling:         ceiling,
	}
}

// Normalize picks the currency, separates current and original prices,
// rounds to the currency's minor unit and applies the plausibility bounds.
func (n *Normalizer) Normalize(pc *ParsedCandidates, fetchedAt time.Time) (*models.PriceSnapshot, error) {
	if pc == nil || len(pc.Candidates) == 0 {
		return nil, newError(StageParse, KindNoPriceFound, fmt.Errorf("no candidates"))
	}

	currency := n.chooseCurrency(pc.Candidates)
	places := MinorUnits(currency)

	var current, original, unknown []decimal.Decimal
	unknownRegions := make(map[int]bool)
	lossy := false
	for _, c := range pc.Candidates {
		if c.Currency != "" && c.Currency != currency {
			continue
		}
		amount := c.Amount.Round(places)
		if !amount.Equal(c.Amount) {
			lossy = true
		}
		switch c.Role {
		case RoleCurrent:
			current = append(current, amount)
		case RoleOriginal:
			original = append(original, amount)
		default:
			unknown = append(unknown, amount)
			unknownRegions[c.Region] = true
		}
	}
	current, original, unknown = distinct(current), distinct(original), distinct(unknown)

	if len(current) == 0 && len(unknown) == 0 {
		// a lone struck or "was" price is the only price shown
		unknown, original = original, nil
	}

	r := reconcile(current, original, unknown, len(unknownRegions) == 1 && !unknownRegions[-1])
	// more precision than the currency carries means the separator was misread
	r.ambiguous = r.ambiguous || lossy

	snap := &models.PriceSnapshot{
		Name:         pc.Name,
		CurrentPrice: r.current,
		Currency:     currency,
		FetchedAt:    fetchedAt.UTC(),
		Strategy:     pc.Strategy,
	}
	if strings.TrimSpace(snap.Name) == "" {
		snap.Name = UnknownProductName
	}

	if !r.current.IsPositive() || r.current.GreaterThan(n.ceiling) {
		return nil, newError(StageValidation, KindImplausiblePrice,
			fmt.Errorf("current price %s %s outside (0, %s]", r.current, currency, n.ceiling))
	}

	if r.original != nil {
		switch {
		case r.original.GreaterThan(n.ceiling):
			snap.Warnings = append(snap.Warnings, WarnOriginalDropped)
		case r.original.GreaterThan(r.current):
			snap.OriginalPrice = decimal.NewNullDecimal(*r.original)
			snap.OnSale = true
		case r.original.LessThan(r.current):
			r.ambiguous = true
		}
	}
	if r.ambiguous {
		snap.Warnings = append([]string{WarnAmbiguousCandidates}, snap.Warnings...)
	}
	return snap, nil
}

func (n *Normalizer) chooseCurrency(candidates []Candidate) string {
	for _, c := range candidates {
		if c.Role == RoleCurrent && c.Currency != "" {
			return c.Currency
		}
	}
	for _, c := range candidates {
		if c.Currency != "" {
			return c.Currency
		}
	}
	return n.defaultCurrency
}

type reconciled struct {
	current   decimal.Decimal
	original  *decimal.Decimal
	ambiguous bool
}

// reconcile chooses the current and original price from distinct sorted
// values per role. At least one of current or unknown is non-empty.
func reconcile(current, original, unknown []decimal.Decimal, unknownOneRegion bool) reconciled {
	var r reconciled
	switch {
	case len(current) > 0:
		r.current = current[0]
		r.ambiguous = len(current) > 1
		if len(original) > 0 {
			r.original = last(original)
			r.ambiguous = r.ambiguous || len(original) > 1
		} else if len(unknown) == 1 && unknown[0].GreaterThan(r.current) {
			r.original = &unknown[0]
		}

	case len(original) > 0:
		r.original = last(original)
		r.ambiguous = len(original) > 1 || len(unknown) > 1
		// the largest unclassified value below the struck price; smaller
		// ones are typically "save £x" amounts
		r.current = unknown[0]
		for _, v := range unknown {
			if v.LessThan(*r.original) {
				r.current = v
			}
		}

	default:
		r.current = unknown[0]
		if len(unknown) > 1 {
			r.original = last(unknown)
			r.ambiguous = len(unknown) > 2 || !unknownOneRegion
		}
	}

	if r.original != nil && r.original.Equal(r.current) {
		r.original = nil
	}
	return r
}

// distinct returns the unique values in ascending order.
func distinct(values []decimal.Decimal) []decimal.Decimal {
	sort.Slice(values, func(i, j int) bool { return values[i].LessThan(values[j]) })
	var out []decimal.Decimal
	for _, v := range values {
		if len(out) == 0 || !out[len(out)-1].Equal(v) {
			out = append(out, v)
		}
	}
	return out
}

func last(values []decimal.Decimal) *decimal.Decimal {
	v := values[len(values)-1]
	return &v
}
