// Package ranker holds the domain types, collaborator contracts, and error
// taxonomy shared by every pipeline stage: discovery, normalization,
// enrichment, analysis, and scoring.
package ranker
