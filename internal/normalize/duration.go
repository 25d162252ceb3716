package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	hoursRe   = regexp.MustCompile(`(\d+)\s*(?:h|hr|hrs|hours?|horas?)\b`)
	minutesRe = regexp.MustCompile(`(\d+)\s*(?:m|min|mins|minutes?|minutos?)\b`)
	secondsRe = regexp.MustCompile(`(\d+)\s*(?:s|sec|secs|seconds?|segundos?)\b`)
)

// ParseDuration converts "MM:SS", "H:MM:SS", or unit-labelled text such as
// "1 hour, 2 minutes" or "25 minutos y 10 segundos" into seconds.
func ParseDuration(text string) (int, error) {
	folded := fold(text)
	if folded == "" {
		return 0, unrecognized(FieldDuration, text)
	}
	if strings.Contains(folded, ":") {
		if secs, ok := parseClock(folded); ok {
			return secs, nil
		}
		return 0, unrecognized(FieldDuration, text)
	}

	folded = strings.NewReplacer(",", " ", "·", " ").Replace(folded)
	total, matched := 0, false
	for _, unit := range []struct {
		re   *regexp.Regexp
		mult int
	}{
		{hoursRe, 3600},
		{minutesRe, 60},
		{secondsRe, 1},
	} {
		m := unit.re.FindStringSubmatch(folded)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, unrecognized(FieldDuration, text)
		}
		total += n * unit.mult
		matched = true
	}
	if !matched {
		return 0, unrecognized(FieldDuration, text)
	}
	return total, nil
}

func parseClock(s string) (int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return 0, false
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, false
		}
		// Only the leading component may exceed 59.
		if i > 0 && n > 59 {
			return 0, false
		}
		nums[i] = n
	}
	if len(nums) == 2 {
		return nums[0]*60 + nums[1], true
	}
	return nums[0]*3600 + nums[1]*60 + nums[2], true
}
