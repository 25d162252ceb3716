// Package initialdata extracts search results from the ytInitialData document
// embedded in a results page.
package initialdata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

const baseURL = "https://www.youtube.com"

// Video types assigned to results.
const (
	TypeVideo = "video"
	TypeShort = "short"
	TypeLive  = "live"
)

// ErrNotFound reports a page without an ytInitialData payload.
var ErrNotFound = errors.New("ytInitialData not found")

var assignmentRe = regexp.MustCompile(`(?:var\s+|window\[["'])ytInitialData["']?\]?\s*=\s*`)

type text struct {
	SimpleText string `json:"simpleText"`
	Runs       []run  `json:"runs"`
}

func (t text) String() string {
	if t.SimpleText != "" {
		return strings.TrimSpace(t.SimpleText)
	}
	var b strings.Builder
	for _, r := range t.Runs {
		b.WriteString(r.Text)
	}
	return strings.TrimSpace(b.String())
}

type run struct {
	Text               string `json:"text"`
	NavigationEndpoint struct {
		BrowseEndpoint struct {
			CanonicalBaseURL string `json:"canonicalBaseUrl"`
			BrowseID         string `json:"browseId"`
		} `json:"browseEndpoint"`
		CommandMetadata struct {
			WebCommandMetadata struct {
				URL string `json:"url"`
			} `json:"webCommandMetadata"`
		} `json:"commandMetadata"`
		ShowDialogCommand json.RawMessage `json:"showDialogCommand"`
	} `json:"navigationEndpoint"`
}

type badge struct {
	MetadataBadgeRenderer struct {
		Style string `json:"style"`
		Label string `json:"label"`
	} `json:"metadataBadgeRenderer"`
}

type videoRenderer struct {
	VideoID           string  `json:"videoId"`
	LengthText        text    `json:"lengthText"`
	ViewCountText     text    `json:"viewCountText"`
	PublishedTimeText text    `json:"publishedTimeText"`
	OwnerText         text    `json:"ownerText"`
	LongBylineText    text    `json:"longBylineText"`
	Badges            []badge `json:"badges"`
}

// Extract pulls the ytInitialData JSON object out of an HTML page.
func Extract(html []byte) ([]byte, error) {
	loc := assignmentRe.FindIndex(html)
	if loc == nil {
		return nil, ErrNotFound
	}
	rest := html[loc[1]:]
	start := bytes.IndexByte(rest, '{')
	if start < 0 {
		return nil, ErrNotFound
	}
	dec := json.NewDecoder(bytes.NewReader(rest[start:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode ytInitialData: %w", err)
	}
	return raw, nil
}

// Parse walks the document for videoRenderer objects, in page order, and
// drops repeated video IDs.
func Parse(doc []byte) ([]ranker.SearchResult, error) {
	var root any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode ytInitialData: %w", err)
	}

	var renderers []json.RawMessage
	collect(root, &renderers)

	seen := make(map[string]struct{}, len(renderers))
	results := make([]ranker.SearchResult, 0, len(renderers))
	for _, raw := range renderers {
		var vr videoRenderer
		if err := json.Unmarshal(raw, &vr); err != nil || vr.VideoID == "" {
			continue
		}
		if _, dup := seen[vr.VideoID]; dup {
			continue
		}
		seen[vr.VideoID] = struct{}{}
		results = append(results, toResult(vr))
	}
	return results, nil
}

// collect gathers videoRenderer values depth-first. Arrays keep page order;
// object keys are visited sorted so the result is deterministic.
func collect(node any, out *[]json.RawMessage) {
	switch v := node.(type) {
	case map[string]any:
		if vr, ok := v["videoRenderer"]; ok {
			if raw, err := json.Marshal(vr); err == nil {
				*out = append(*out, raw)
			}
		}
		keys := make([]string, 0, len(v))
		for key := range v {
			if key != "videoRenderer" {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			collect(v[key], out)
		}
	case []any:
		for _, child := range v {
			collect(child, out)
		}
	}
}

func toResult(vr videoRenderer) ranker.SearchResult {
	res := ranker.SearchResult{
		VideoID:       vr.VideoID,
		DurationText:  vr.LengthText.String(),
		ViewsText:     vr.ViewCountText.String(),
		PublishedText: vr.PublishedTimeText.String(),
		Creators:      creators(vr),
	}
	switch {
	case isLive(vr.Badges):
		res.VideoType = TypeLive
	case strings.Contains(res.DurationText, ":"):
		res.VideoType = TypeVideo
	default:
		res.VideoType = TypeShort
	}
	return res
}

func creators(vr videoRenderer) []ranker.Creator {
	runs := vr.OwnerText.Runs
	if len(vr.LongBylineText.Runs) > len(runs) {
		runs = vr.LongBylineText.Runs
	}
	seen := map[string]struct{}{}
	var out []ranker.Creator
	for _, r := range runs {
		path := r.NavigationEndpoint.BrowseEndpoint.CanonicalBaseURL
		if path == "" {
			path = r.NavigationEndpoint.CommandMetadata.WebCommandMetadata.URL
		}
		if path == "" && r.NavigationEndpoint.BrowseEndpoint.BrowseID != "" {
			path = "/channel/" + r.NavigationEndpoint.BrowseEndpoint.BrowseID
		}
		if !isChannelPath(path) {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, ranker.Creator{Name: strings.TrimSpace(r.Text), URL: baseURL + path})
	}
	return out
}

func isChannelPath(path string) bool {
	return strings.HasPrefix(path, "/@") ||
		strings.HasPrefix(path, "/channel/") ||
		strings.HasPrefix(path, "/c/") ||
		strings.HasPrefix(path, "/user/")
}

func isLive(badges []badge) bool {
	for _, b := range badges {
		style := b.MetadataBadgeRenderer.Style
		if strings.Contains(style, "LIVE") || strings.EqualFold(b.MetadataBadgeRenderer.Label, "live") {
			return true
		}
	}
	return false
}
