package scraper

import (
	"errors"
	"fmt"
)

// Stage identifies the extraction step that failed.
type Stage string

const (
	StageInput      Stage = "input"
	StageFetch      Stage = "fetch"
	StageParse      Stage = "parse"
	StageValidation Stage = "validation"
)

// Kind is the stable machine-readable failure class.
type Kind string

const (
	KindInvalidURL          Kind = "invalid_url"
	KindUnsupportedSite     Kind = "unsupported_site"
	KindTimeout             Kind = "timeout"
	KindUnreachable         Kind = "unreachable"
	KindBlockedOrChallenged Kind = "blocked_or_challenged"
	KindNoPriceFound        Kind = "no_price_found"
	KindImplausiblePrice    Kind = "implausible_price"
)

// Warning kinds attached to otherwise successful snapshots.
const (
	WarnAmbiguousCandidates = "ambiguous_candidates"
	WarnOriginalDropped     = "original_price_dropped"
)

// ExtractionError is the caller-facing failure of an extraction. Detail is
// a single sentence suitable for display; Err carries the internal cause
// and is never rendered to clients.
type ExtractionError struct {
	Stage  Stage  `json:"stage"`
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
	Err    error  `json:"-"`
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Stage, e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Stage, e.Kind, e.Detail)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func newError(stage Stage, kind Kind, err error) *ExtractionError {
	return &ExtractionError{
		Stage:  stage,
		Kind:   kind,
		Detail: detailFor(kind),
		Err:    err,
	}
}

func detailFor(kind Kind) string {
	switch kind {
	case KindInvalidURL:
		return "The URL is not a valid absolute http(s) address."
	case KindUnsupportedSite:
		return "The URL does not belong to a supported site."
	case KindTimeout:
		return "The product page did not finish loading in time."
	case KindUnreachable:
		return "The product page could not be reached."
	case KindBlockedOrChallenged:
		return "The site returned a bot-protection page instead of the product."
	case KindNoPriceFound:
		return "No price could be found on the product page."
	case KindImplausiblePrice:
		return "The extracted price is not plausible for a product."
	default:
		return "The price could not be extracted."
	}
}

// KindOf returns the failure kind of err, or the empty string when err is
// not an extraction error.
func KindOf(err error) Kind {
	var extractionErr *ExtractionError
	if errors.As(err, &extractionErr) {
		return extractionErr.Kind
	}
	return ""
}
