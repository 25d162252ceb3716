// Package analysis detects a channel's current publishing cycle and decides
// whether the channel qualifies for scoring.
//
// Analyze is pure. Runner drives it over claimed channels and persists one
// append-only row per channel.
package analysis
