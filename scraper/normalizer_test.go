package scraper

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLocale = NewLocaleParser(nil)

// cand builds a candidate from a displayed price such as "£1,234.56".
func cand(t *testing.T, raw string, role Role, region int) Candidate {
	t.Helper()
	tokens := testLocale.ExtractTokens(raw)
	require.Len(t, tokens, 1, "token %q", raw)
	tok := tokens[0]
	amount, err := ParseAmount(tok.Number, DetectStyle("", tok.Currency))
	require.NoError(t, err)
	return Candidate{Raw: tok.Raw, Amount: amount, Currency: tok.Currency, Role: role, Region: region}
}

func bare(amount string, role Role) Candidate {
	return Candidate{Raw: amount, Amount: decimal.RequireFromString(amount), Role: role}
}

func normalize(t *testing.T, candidates ...Candidate) (*ParsedCandidates, *Normalizer) {
	t.Helper()
	return &ParsedCandidates{Name: "Oxford Shirt", Candidates: candidates, Strategy: StrategyMarkers},
		NewNormalizer("GBP", decimal.Zero)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "got %s, want %s", got, want)
}

var fetchedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.FixedZone("CET", 3600))

func TestNormalizeLocaleFormats(t *testing.T) {
	tests := []struct {
		raw      string
		amount   string
		currency string
	}{
		{"£1,234.56", "1234.56", "GBP"},
		{"€1.234,56", "1234.56", "EUR"},
		{"1\u00a0234,56 €", "1234.56", "EUR"},
		{"US$ 99", "99.00", "USD"},
		{"¥1,234", "1234", "JPY"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			pc, n := normalize(t, cand(t, tt.raw, RoleUnknown, 0))
			snap, err := n.Normalize(pc, fetchedAt)
			require.NoError(t, err)
			assertDecimal(t, tt.amount, snap.CurrentPrice)
			assert.Equal(t, tt.currency, snap.Currency)
			assert.False(t, snap.OnSale)
			assert.False(t, snap.OriginalPrice.Valid)
			assert.Empty(t, snap.Warnings)
		})
	}
}

func TestNormalizeSale(t *testing.T) {
	pc, n := normalize(t,
		cand(t, "£120.00", RoleOriginal, 0),
		cand(t, "£95.00", RoleCurrent, 0),
	)
	snap, err := n.Normalize(pc, fetchedAt)
	require.NoError(t, err)

	assertDecimal(t, "95", snap.CurrentPrice)
	require.True(t, snap.OriginalPrice.Valid)
	assertDecimal(t, "120", snap.OriginalPrice.Decimal)
	assert.True(t, snap.OnSale)
	assert.Empty(t, snap.Warnings)
	assert.Equal(t, "Oxford Shirt", snap.Name)
	assert.Equal(t, StrategyMarkers, snap.Strategy)
	assert.Equal(t, time.UTC, snap.FetchedAt.Location())
	assert.True(t, fetchedAt.Equal(snap.FetchedAt))
}

func TestNormalizeEqualPricesCollapse(t *testing.T) {
	pc, n := normalize(t,
		cand(t, "£120.00", RoleOriginal, 0),
		cand(t, "£120.00", RoleCurrent, 0),
	)
	snap, err := n.Normalize(pc, fetchedAt)
	require.NoError(t, err)

	assertDecimal(t, "120", snap.CurrentPrice)
	assert.False(t, snap.OriginalPrice.Valid)
	assert.False(t, snap.OnSale)
	assert.Empty(t, snap.Warnings)
}

func TestNormalizeImplausible(t *testing.T) {
	for _, raw := range []string{"£0.00", "£999,999,999"} {
		t.Run(raw, func(t *testing.T) {
			pc, n := normalize(t, cand(t, raw, RoleCurrent, 0))
			snap, err := n.Normalize(pc, fetchedAt)
			require.Error(t, err)
			assert.Nil(t, snap)

			var extractionErr *ExtractionError
			require.ErrorAs(t, err, &extractionErr)
			assert.Equal(t, StageValidation, extractionErr.Stage)
			assert.Equal(t, KindImplausiblePrice, extractionErr.Kind)
		})
	}
}

func TestNormalizeCustomCeiling(t *testing.T) {
	pc := &ParsedCandidates{Candidates: []Candidate{bare("250", RoleCurrent)}}

	_, err := NewNormalizer("GBP", decimal.NewFromInt(200)).Normalize(pc, fetchedAt)
	assert.Equal(t, KindImplausiblePrice, KindOf(err))

	snap, err := NewNormalizer("GBP", decimal.NewFromInt(300)).Normalize(pc, fetchedAt)
	require.NoError(t, err)
	assertDecimal(t, "250", snap.CurrentPrice)
}

func TestNormalizeAmbiguousCandidates(t *testing.T) {
	pc, n := normalize(t,
		cand(t, "£30.00", RoleUnknown, -1),
		cand(t, "£45.00", RoleUnknown, -1),
		cand(t, "£60.00", RoleUnknown, -1),
	)
	snap, err := n.Normalize(pc, fetchedAt)
	require.NoError(t, err)

	assertDecimal(t, "30", snap.CurrentPrice)
	assertDecimal(t, "60", snap.OriginalPrice.Decimal)
	assert.Equal(t, []string{WarnAmbiguousCandidates}, snap.Warnings)
	assert.True(t, snap.LowConfidence())
}

func TestNormalizeTwoUnclassifiedValues(t *testing.T) {
	pc, n := normalize(t,
		cand(t, "£120.00", RoleUnknown, 2),
		cand(t, "£95.00", RoleUnknown, 2),
	)
	snap, err := n.Normalize(pc, fetchedAt)
	require.NoError(t, err)
	assertDecimal(t, "95", snap.CurrentPrice)
	assertDecimal(t, "120", snap.OriginalPrice.Decimal)
	assert.True(t, snap.OnSale)
	assert.Empty(t, snap.Warnings, "two values from one price block")

	pc, n = normalize(t,
		cand(t, "£120.00", RoleUnknown, -1),
		cand(t, "£95.00", RoleUnknown, -1),
	)
	snap, err = n.Normalize(pc, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, []string{WarnAmbiguousCandidates}, snap.Warnings, "values scattered over the page")
}

func TestNormalizeRoleHeuristics(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		current    string
		original   string // empty: no original price
		warned     bool
	}{
		{
			name:       "lone struck price is the price",
			candidates: []Candidate{bare("80", RoleOriginal)},
			current:    "80",
		},
		{
			name:       "unclassified larger value beside a current price",
			candidates: []Candidate{bare("95", RoleCurrent), bare("120", RoleUnknown)},
			current:    "95",
			original:   "120",
		},
		{
			name:       "saving amount is not the price",
			candidates: []Candidate{bare("120", RoleOriginal), bare("95", RoleUnknown), bare("25", RoleUnknown)},
			current:    "95",
			original:   "120",
			warned:     true,
		},
		{
			name:       "original below current is dropped",
			candidates: []Candidate{bare("80", RoleOriginal), bare("95", RoleCurrent)},
			current:    "95",
			warned:     true,
		},
		{
			name:       "several current prices",
			candidates: []Candidate{bare("95", RoleCurrent), bare("105", RoleCurrent)},
			current:    "95",
			warned:     true,
		},
		{
			name:       "duplicates are one value",
			candidates: []Candidate{bare("95", RoleCurrent), bare("95.00", RoleCurrent), bare("95", RoleUnknown)},
			current:    "95",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, n := normalize(t, tt.candidates...)
			snap, err := n.Normalize(pc, fetchedAt)
			require.NoError(t, err)

			assertDecimal(t, tt.current, snap.CurrentPrice)
			if tt.original == "" {
				assert.False(t, snap.OriginalPrice.Valid)
				assert.False(t, snap.OnSale)
			} else {
				require.True(t, snap.OriginalPrice.Valid)
				assertDecimal(t, tt.original, snap.OriginalPrice.Decimal)
				assert.True(t, snap.OnSale)
			}
			assert.Equal(t, tt.warned, snap.LowConfidence(), "warnings: %v", snap.Warnings)
		})
	}
}

func TestNormalizeCurrencySelection(t *testing.T) {
	pc, n := normalize(t,
		cand(t, "€110.00", RoleUnknown, 0),
		cand(t, "£95.00", RoleCurrent, 0),
	)
	snap, err := n.Normalize(pc, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, "GBP", snap.Currency)
	assertDecimal(t, "95", snap.CurrentPrice)
	assert.False(t, snap.OnSale, "prices in other currencies are ignored")

	pc = &ParsedCandidates{Candidates: []Candidate{bare("42.5", RoleUnknown)}}
	snap, err = NewNormalizer("eur", decimal.Zero).Normalize(pc, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, "EUR", snap.Currency, "configured default when the page shows none")
}

func TestNormalizeRoundsToMinorUnits(t *testing.T) {
	pc := &ParsedCandidates{Candidates: []Candidate{
		{Raw: "¥1234.5", Amount: decimal.RequireFromString("1234.5"), Currency: "JPY", Role: RoleCurrent},
	}}
	snap, err := NewNormalizer("GBP", decimal.Zero).Normalize(pc, fetchedAt)
	require.NoError(t, err)
	assertDecimal(t, "1235", snap.CurrentPrice)
	assert.Equal(t, []string{WarnAmbiguousCandidates}, snap.Warnings)

	pc = &ParsedCandidates{Candidates: []Candidate{bare("19.995", RoleCurrent)}}
	snap, err = NewNormalizer("GBP", decimal.Zero).Normalize(pc, fetchedAt)
	require.NoError(t, err)
	assertDecimal(t, "20", snap.CurrentPrice)
	assert.Equal(t, []string{WarnAmbiguousCandidates}, snap.Warnings)

	pc = &ParsedCandidates{Candidates: []Candidate{bare("19.990", RoleCurrent)}}
	snap, err = NewNormalizer("GBP", decimal.Zero).Normalize(pc, fetchedAt)
	require.NoError(t, err)
	assertDecimal(t, "19.99", snap.CurrentPrice)
	assert.Empty(t, snap.Warnings)
}

func TestNormalizeOriginalAboveCeiling(t *testing.T) {
	pc := &ParsedCandidates{Candidates: []Candidate{bare("500", RoleCurrent), bare("5000", RoleOriginal)}}

	snap, err := NewNormalizer("GBP", decimal.NewFromInt(1000)).Normalize(pc, fetchedAt)
	require.NoError(t, err)
	assertDecimal(t, "500", snap.CurrentPrice)
	assert.False(t, snap.OriginalPrice.Valid)
	assert.False(t, snap.OnSale)
	assert.Equal(t, []string{WarnOriginalDropped}, snap.Warnings)
}

func TestNormalizeNameFallbackAndEmptyInput(t *testing.T) {
	n := NewNormalizer("GBP", decimal.Zero)

	snap, err := n.Normalize(&ParsedCandidates{Candidates: []Candidate{bare("10", RoleCurrent)}}, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, UnknownProductName, snap.Name)

	_, err = n.Normalize(&ParsedCandidates{}, fetchedAt)
	assert.Equal(t, KindNoPriceFound, KindOf(err))

	_, err = n.Normalize(nil, fetchedAt)
	assert.Equal(t, KindNoPriceFound, KindOf(err))
}
