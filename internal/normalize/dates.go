package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

var datePrefixes = []string{
	"se emitio", "premiered", "streamed", "emitido", "estrenado", "transmitido", "publicado", "hace",
}

var (
	relativeENRe = regexp.MustCompile(
		`(\d+)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?|days?|weeks?|months?|years?)\b`,
	)
	relativeESRe = regexp.MustCompile(
		`(\d+)\s*(segundos?|minutos?|horas?|dias?|semanas?|meses|mes|anos?)\b`,
	)
	numericDateRe = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})$`)
)

var unitDurations = map[string]time.Duration{
	"second": time.Second, "sec": time.Second, "segundo": time.Second,
	"minute": time.Minute, "min": time.Minute, "minuto": time.Minute,
	"hour": time.Hour, "hr": time.Hour, "hora": time.Hour,
	"day": day, "dia": day,
	"week": week, "semana": week,
	"month": month, "mes": month, "meses": month,
	"year": year, "ano": year,
}

// Spanish and English month tokens mapped to names dateparse understands.
var monthNames = map[string]string{
	"enero": "January", "ene": "January", "january": "January", "jan": "January",
	"febrero": "February", "feb": "February", "february": "February",
	"marzo": "March", "mar": "March", "march": "March",
	"abril": "April", "abr": "April", "april": "April", "apr": "April",
	"mayo": "May", "may": "May",
	"junio": "June", "jun": "June", "june": "June",
	"julio": "July", "jul": "July", "july": "July",
	"agosto": "August", "ago": "August", "august": "August", "aug": "August",
	"septiembre": "September", "setiembre": "September", "sept": "September", "sep": "September",
	"september": "September",
	"octubre": "October", "oct": "October", "october": "October",
	"noviembre": "November", "nov": "November", "november": "November",
	"diciembre": "December", "dic": "December", "december": "December", "dec": "December",
}

// ParseDate resolves relative phrases ("3 weeks ago", "hace 3 semanas",
// "yesterday", "ayer") against ref, or parses an absolute date. The result is
// always UTC. Months count as 30 days and years as 365.
func ParseDate(text string, loc ranker.Locale, ref time.Time) (time.Time, error) {
	folded := fold(text)
	for _, p := range datePrefixes {
		folded = strings.ReplaceAll(folded, p, " ")
	}
	folded = strings.Join(strings.Fields(folded), " ")
	if folded == "" {
		return time.Time{}, unrecognized(FieldPublished, text)
	}
	ref = ref.UTC()

	switch {
	case strings.Contains(folded, "yesterday") || strings.Contains(folded, "ayer"):
		return ref.Add(-day), nil
	case folded == "today" || folded == "hoy" || folded == "just now" || folded == "justo ahora":
		return ref, nil
	}

	grammars := []*regexp.Regexp{relativeENRe, relativeESRe}
	if loc == ranker.LocaleES {
		grammars[0], grammars[1] = grammars[1], grammars[0]
	}
	for _, re := range grammars {
		if m := re.FindStringSubmatch(folded); m != nil {
			if d, ok := relativeOffset(m[1], m[2]); ok {
				return ref.Add(-d), nil
			}
		}
	}

	if t, ok := parseAbsolute(folded, loc); ok {
		return t, nil
	}
	return time.Time{}, unrecognized(FieldPublished, text)
}

func relativeOffset(qty, unit string) (time.Duration, bool) {
	n, err := strconv.Atoi(qty)
	if err != nil {
		return 0, false
	}
	d, ok := unitDurations[unit]
	if !ok {
		d, ok = unitDurations[strings.TrimSuffix(unit, "s")]
	}
	if !ok {
		return 0, false
	}
	return time.Duration(n) * d, true
}

func parseAbsolute(folded string, loc ranker.Locale) (time.Time, bool) {
	if m := numericDateRe.FindStringSubmatch(folded); m != nil {
		first, _ := strconv.Atoi(m[1])
		second, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		d, mo := second, first
		if loc == ranker.LocaleES {
			d, mo = first, second
		}
		if mo < 1 || mo > 12 || d < 1 || d > 31 {
			return time.Time{}, false
		}
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		if t.Day() != d {
			return time.Time{}, false
		}
		return t, true
	}

	tokens := strings.Fields(strings.ReplaceAll(folded, ".", " "))
	kept := tokens[:0]
	for _, tok := range tokens {
		if tok == "de" || tok == "del" || tok == "el" || tok == "on" {
			continue
		}
		if name, ok := monthNames[strings.TrimSuffix(tok, ",")]; ok {
			if strings.HasSuffix(tok, ",") {
				name += ","
			}
			tok = name
		}
		kept = append(kept, tok)
	}
	t, err := dateparse.ParseIn(strings.Join(kept, " "), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
