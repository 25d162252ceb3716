// Package search holds helpers shared by the search-results sources.
package search

import (
	"net/url"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

// DefaultBaseURL is the results host queried by both sources.
const DefaultBaseURL = "https://www.youtube.com"

// ResultsURL builds the results-page URL for a query in the given locale.
func ResultsURL(base, query string, locale ranker.Locale) string {
	if base == "" {
		base = DefaultBaseURL
	}
	v := url.Values{}
	v.Set("search_query", query)
	v.Set("hl", string(locale))
	return base + "/results?" + v.Encode()
}

// AcceptLanguage returns the Accept-Language header sent for a locale.
func AcceptLanguage(locale ranker.Locale) string {
	if locale == ranker.LocaleES {
		return "es-419,es;q=0.9"
	}
	return "en-US,en;q=0.9"
}
