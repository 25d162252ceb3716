package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

var viewsNoise = map[string]struct{}{
	"views": {}, "view": {}, "vistas": {}, "vista": {}, "visualizaciones": {},
	"visualizacion": {}, "reproducciones": {}, "de": {}, "•": {},
}

// Longer suffixes come first so "mil" is not read as "m".
var viewsRe = regexp.MustCompile(
	`^(\d+(?:[.,]\d+)*)\s*(millones|millon|mil|billones|billon|bn|k|m|b)?$`,
)

var suffixMultiplier = map[string]int64{
	"":         1,
	"k":        1_000,
	"mil":      1_000,
	"m":        1_000_000,
	"millon":   1_000_000,
	"millones": 1_000_000,
	"b":        1_000_000_000,
	"bn":       1_000_000_000,
	"billon":   1_000_000_000,
	"billones": 1_000_000_000,
}

// ParseViewCount interprets view-count text such as "1.2K views", "1,2 mil
// vistas", "1,234,567 views" or "No views".
func ParseViewCount(text string, loc ranker.Locale) (int64, error) {
	folded := fold(text)
	if folded == "" {
		return 0, unrecognized(FieldViews, text)
	}
	if strings.Contains(folded, "no views") || strings.Contains(folded, "sin vistas") ||
		strings.Contains(folded, "sin visualizaciones") {
		return 0, nil
	}
	cleaned := removeWords(folded, viewsNoise)
	m := viewsRe.FindStringSubmatch(cleaned)
	if m == nil {
		return 0, unrecognized(FieldViews, text)
	}
	intPart, frac, ok := splitNumber(m[1], m[2] != "", loc)
	if !ok {
		return 0, unrecognized(FieldViews, text)
	}
	value, ok := scale(intPart, frac, suffixMultiplier[m[2]])
	if !ok {
		return 0, unrecognized(FieldViews, text)
	}
	return value, nil
}

// splitNumber separates integer and fractional digits according to the
// separator rules: with both separators present the last one is decimal; a
// lone separator is decimal when a magnitude suffix follows; otherwise the
// locale's thousands separator applies, and the other separator is thousands
// only when exactly three digits follow it.
func splitNumber(num string, hasSuffix bool, loc ranker.Locale) (string, string, bool) {
	lastDot := strings.LastIndex(num, ".")
	lastComma := strings.LastIndex(num, ",")

	var decimal byte
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			decimal = ','
		} else {
			decimal = '.'
		}
	case lastDot < 0 && lastComma < 0:
		return num, "", true
	default:
		sep := byte('.')
		if lastComma >= 0 {
			sep = ','
		}
		groups := strings.Split(num, string(sep))
		switch {
		case len(groups) > 2:
			// Repeated separator can only be grouping.
			decimal = 0
		case hasSuffix:
			decimal = sep
		case sep == thousandsSeparator(loc):
			decimal = 0
		case len(groups[1]) == 3:
			decimal = 0
		default:
			decimal = sep
		}
	}

	intPart, frac := num, ""
	if decimal != 0 {
		i := strings.LastIndexByte(num, decimal)
		intPart, frac = num[:i], num[i+1:]
		if strings.ContainsAny(frac, ".,") {
			return "", "", false
		}
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if intPart == "" {
		return "", "", false
	}
	return intPart, frac, true
}

func thousandsSeparator(loc ranker.Locale) byte {
	if loc == ranker.LocaleES {
		return '.'
	}
	return ','
}

// scale computes (intPart.frac) * mult exactly, truncating toward zero.
func scale(intPart, frac string, mult int64) (int64, bool) {
	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || whole > math.MaxInt64/mult {
		return 0, false
	}
	value := whole * mult
	if frac == "" || mult == 1 {
		return value, true
	}
	// Nine digits are exact for every supported multiplier.
	if len(frac) > 9 {
		frac = frac[:9]
	}
	fracValue, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, false
	}
	pow := int64(1)
	for range frac {
		pow *= 10
	}
	return value + fracValue*mult/pow, true
}
