package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/store"
)

// VideoStore persists raw and normalized search results.
type VideoStore struct {
	pool dbPool
}

// NewVideoStore constructs a VideoStore over an existing pool.
func NewVideoStore(pool dbPool) (*VideoStore, error) {
	if err := checkPool(pool); err != nil {
		return nil, err
	}
	return &VideoStore{pool: pool}, nil
}

// InsertRawVideos writes a batch with insert-if-absent semantics. Duplicates
// inside the batch are collapsed first and counted as ignored.
func (s *VideoStore) InsertRawVideos(ctx context.Context, videos []ranker.RawVideo) (store.InsertResult, error) {
	unique := dedupeBy(videos, func(v ranker.RawVideo) string { return v.VideoID })
	if len(unique) == 0 {
		return store.InsertResult{Ignored: len(videos)}, nil
	}

	n := len(unique)
	var (
		ids          = make([]string, n)
		runIDs       = make([]string, n)
		queries      = make([]string, n)
		locales      = make([]string, n)
		videoURLs    = make([]string, n)
		channelURLs  = make([]*string, n)
		channelNames = make([]*string, n)
		thumbs       = make([]*string, n)
		durations    = make([]*string, n)
		views        = make([]*string, n)
		published    = make([]*string, n)
		types        = make([]*string, n)
		multi        = make([]bool, n)
		discovered   = make([]time.Time, n)
	)
	for i, v := range unique {
		ids[i] = v.VideoID
		runIDs[i] = v.SearchRunID
		queries[i] = v.Query
		locales[i] = string(v.Locale)
		videoURLs[i] = v.VideoURL
		channelURLs[i] = nullableText(v.ChannelURL)
		channelNames[i] = nullableText(v.ChannelName)
		thumbs[i] = nullableText(v.ThumbnailURL)
		durations[i] = nullableText(v.DurationText)
		views[i] = nullableText(v.ViewsText)
		published[i] = nullableText(v.PublishedText)
		types[i] = nullableText(v.VideoType)
		multi[i] = v.MultiCreator
		discovered[i] = v.DiscoveredAt
	}

	const query = `
INSERT INTO videos_raw (
	video_id, search_run_id, query, locale, video_url, channel_url, channel_name,
	thumbnail_url, duration_text, views_text, published_text, video_type,
	is_multi_creator, discovered_at
)
SELECT t.video_id, t.search_run_id::uuid, t.query, t.locale, t.video_url, t.channel_url, t.channel_name,
	t.thumbnail_url, t.duration_text, t.views_text, t.published_text, t.video_type,
	t.is_multi_creator, t.discovered_at
FROM unnest(
	$1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[], $7::text[],
	$8::text[], $9::text[], $10::text[], $11::text[], $12::text[], $13::bool[], $14::timestamptz[]
) AS t(
	video_id, search_run_id, query, locale, video_url, channel_url, channel_name,
	thumbnail_url, duration_text, views_text, published_text, video_type,
	is_multi_creator, discovered_at
)
ON CONFLICT (video_id) DO NOTHING`
	tag, err := s.pool.Exec(ctx, query,
		ids, runIDs, queries, locales, videoURLs, channelURLs, channelNames,
		thumbs, durations, views, published, types, multi, discovered,
	)
	if err != nil {
		return store.InsertResult{}, wrapWriteError("insert raw videos", err)
	}
	inserted := int(tag.RowsAffected())
	return store.InsertResult{Inserted: inserted, Ignored: len(videos) - inserted}, nil
}

// ListUnnormalized returns raw rows lacking a normalized row, oldest first.
func (s *VideoStore) ListUnnormalized(ctx context.Context, limit int) ([]ranker.RawVideo, error) {
	if limit <= 0 {
		limit = 1000
	}
	const query = `
SELECT r.video_id, r.search_run_id::text, r.query, r.locale, r.video_url, r.channel_url, r.channel_name,
	r.thumbnail_url, r.duration_text, r.views_text, r.published_text, r.video_type,
	r.is_multi_creator, r.discovered_at
FROM videos_raw r
WHERE NOT EXISTS (SELECT 1 FROM videos_normalized n WHERE n.video_id = r.video_id)
ORDER BY r.discovered_at, r.video_id
LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, wrapReadError("list unnormalized videos", err)
	}
	defer rows.Close()

	var out []ranker.RawVideo
	for rows.Next() {
		var (
			v                                         ranker.RawVideo
			locale                                    string
			channelURL, channelName, thumb            *string
			durationText, viewsText, published, vType *string
		)
		if err := rows.Scan(
			&v.VideoID, &v.SearchRunID, &v.Query, &locale, &v.VideoURL, &channelURL, &channelName,
			&thumb, &durationText, &viewsText, &published, &vType,
			&v.MultiCreator, &v.DiscoveredAt,
		); err != nil {
			return nil, fmt.Errorf("scan raw video: %w", err)
		}
		v.Locale = ranker.Locale(locale)
		v.ChannelURL = derefText(channelURL)
		v.ChannelName = derefText(channelName)
		v.ThumbnailURL = derefText(thumb)
		v.DurationText = derefText(durationText)
		v.ViewsText = derefText(viewsText)
		v.PublishedText = derefText(published)
		v.VideoType = derefText(vType)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw videos: %w", err)
	}
	return out, nil
}

// InsertNormalized writes normalized rows; existing rows are never overwritten.
func (s *VideoStore) InsertNormalized(
	ctx context.Context,
	videos []ranker.NormalizedVideo,
) (store.InsertResult, error) {
	unique := dedupeBy(videos, func(v ranker.NormalizedVideo) string { return v.VideoID })
	if len(unique) == 0 {
		return store.InsertResult{Ignored: len(videos)}, nil
	}

	n := len(unique)
	var (
		ids         = make([]string, n)
		channelURLs = make([]*string, n)
		queries     = make([]*string, n)
		views       = make([]*int64, n)
		published   = make([]*time.Time, n)
		durations   = make([]*int32, n)
		passed      = make([]bool, n)
		reasons     = make([]string, n)
		normalized  = make([]time.Time, n)
	)
	for i, v := range unique {
		ids[i] = v.VideoID
		channelURLs[i] = nullableText(v.ChannelURL)
		queries[i] = nullableText(v.Query)
		views[i] = v.Views
		published[i] = v.PublishedAt
		if v.DurationSeconds != nil {
			d := int32(*v.DurationSeconds) //nolint:gosec // durations are bounded by parser
			durations[i] = &d
		}
		passed[i] = v.Passed
		reasons[i] = v.Reason
		normalized[i] = v.NormalizedAt
	}

	const query = `
INSERT INTO videos_normalized (
	video_id, channel_url, query, views_estimated, published_at_estimated,
	duration_seconds_estimated, validation_passed, validation_reason, normalized_at
)
SELECT * FROM unnest(
	$1::text[], $2::text[], $3::text[], $4::bigint[], $5::timestamptz[],
	$6::integer[], $7::bool[], $8::text[], $9::timestamptz[]
)
ON CONFLICT (video_id) DO NOTHING`
	tag, err := s.pool.Exec(ctx, query,
		ids, channelURLs, queries, views, published, durations, passed, reasons, normalized,
	)
	if err != nil {
		return store.InsertResult{}, wrapWriteError("insert normalized videos", err)
	}
	inserted := int(tag.RowsAffected())
	return store.InsertResult{Inserted: inserted, Ignored: len(videos) - inserted}, nil
}

// dedupeBy keeps the first occurrence of each key, skipping empty keys.
func dedupeBy[T any](items []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := key(item)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}
