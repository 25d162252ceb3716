// Package normalize converts locale-dependent search-result text into
// canonical view counts, UTC timestamps, and durations, and gates the
// results against configurable minimum-quality thresholds.
//
// The locale is always an explicit argument. Both grammars are attempted
// for every input; the locale only decides ambiguous cases such as a lone
// "1.234" or a numeric "03/04/2024".
package normalize
