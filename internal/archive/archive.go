// Package archive stores raw extractor dumps in a blob store.
package archive

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

const contentTypeJSON = "application/json"

var slugUnsafe = regexp.MustCompile(`[^a-z0-9._@-]+`)

// Archiver writes dumps under <prefix>/<yyyy>/<mm>/<dd>/<slug>.json.
type Archiver struct {
	store  ranker.BlobStore
	prefix string
}

// New returns an Archiver. A nil store yields nil, which callers treat as
// archiving disabled.
func New(store ranker.BlobStore, prefix string) *Archiver {
	if store == nil {
		return nil
	}
	return &Archiver{store: store, prefix: strings.Trim(prefix, "/")}
}

// Put uploads one channel dump taken at ts and returns its URI.
func (a *Archiver) Put(ctx context.Context, channelURL string, ts time.Time, data []byte) (string, error) {
	if a == nil {
		return "", nil
	}
	uri, err := a.store.PutObject(ctx, ObjectPath(a.prefix, channelURL, ts), contentTypeJSON, data)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", channelURL, err)
	}
	return uri, nil
}

// ObjectPath builds the dated object key for a channel.
func ObjectPath(prefix, channelURL string, ts time.Time) string {
	ts = ts.UTC()
	parts := []string{
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", int(ts.Month())),
		fmt.Sprintf("%02d", ts.Day()),
		Slug(channelURL) + ".json",
	}
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return path.Join(parts...)
}

// Slug reduces a channel URL to a filesystem-safe name, e.g.
// "https://www.youtube.com/@Some.Handle" becomes "@some.handle".
func Slug(channelURL string) string {
	raw := channelURL
	if u, err := url.Parse(channelURL); err == nil && u.Host != "" {
		raw = strings.Trim(u.Path, "/")
		if raw == "" {
			raw = u.Host
		}
	}
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	slug := slugUnsafe.ReplaceAllString(strings.ToLower(raw), "_")
	slug = strings.Trim(slug, "_.")
	if slug == "" {
		return "channel"
	}
	return slug
}
