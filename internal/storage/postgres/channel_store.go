package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

// ChannelStore persists channel profiles and their recent uploads.
type ChannelStore struct {
	pool dbPool
}

// NewChannelStore constructs a ChannelStore over an existing pool.
func NewChannelStore(pool dbPool) (*ChannelStore, error) {
	if err := checkPool(pool); err != nil {
		return nil, err
	}
	return &ChannelStore{pool: pool}, nil
}

// UpsertProfile writes the latest extraction. Missing fields keep their stored values.
func (s *ChannelStore) UpsertProfile(ctx context.Context, profile ranker.ChannelProfile) error {
	if profile.ChannelURL == "" {
		return fmt.Errorf("channel url is required")
	}
	const query = `
INSERT INTO channels_raw (channel_url, channel_id, channel_name, subscriber_count, is_verified, extracted_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (channel_url) DO UPDATE SET
	channel_id = COALESCE(EXCLUDED.channel_id, channels_raw.channel_id),
	channel_name = COALESCE(EXCLUDED.channel_name, channels_raw.channel_name),
	subscriber_count = COALESCE(EXCLUDED.subscriber_count, channels_raw.subscriber_count),
	is_verified = COALESCE(EXCLUDED.is_verified, channels_raw.is_verified),
	extracted_at = EXCLUDED.extracted_at`
	if _, err := s.pool.Exec(ctx, query,
		profile.ChannelURL,
		nullableText(profile.ChannelID),
		nullableText(profile.Name),
		profile.Subscribers,
		profile.Verified,
		profile.ExtractedAt,
	); err != nil {
		return wrapWriteError("upsert channel profile", err)
	}
	return nil
}

// UpsertVideos writes a channel's recent uploads in one statement.
func (s *ChannelStore) UpsertVideos(ctx context.Context, channelURL string, videos []ranker.ChannelVideo) error {
	unique := dedupeBy(videos, func(v ranker.ChannelVideo) string { return v.VideoID })
	if len(unique) == 0 {
		return nil
	}
	n := len(unique)
	var (
		ids       = make([]string, n)
		dates     = make([]*time.Time, n)
		durations = make([]*int32, n)
		views     = make([]*int64, n)
	)
	for i, v := range unique {
		ids[i] = v.VideoID
		dates[i] = v.UploadDate
		if v.DurationSeconds != nil {
			d := int32(*v.DurationSeconds) //nolint:gosec // extractor durations fit int32
			durations[i] = &d
		}
		views[i] = v.Views
	}
	const query = `
INSERT INTO channel_videos_raw (channel_url, video_id, upload_date, duration_seconds, view_count)
SELECT $1, t.video_id, t.upload_date, t.duration_seconds, t.view_count
FROM unnest($2::text[], $3::date[], $4::integer[], $5::bigint[])
	AS t(video_id, upload_date, duration_seconds, view_count)
ON CONFLICT (channel_url, video_id) DO UPDATE SET
	upload_date = COALESCE(EXCLUDED.upload_date, channel_videos_raw.upload_date),
	duration_seconds = COALESCE(EXCLUDED.duration_seconds, channel_videos_raw.duration_seconds),
	view_count = COALESCE(EXCLUDED.view_count, channel_videos_raw.view_count)`
	if _, err := s.pool.Exec(ctx, query, channelURL, ids, dates, durations, views); err != nil {
		return wrapWriteError("upsert channel videos", err)
	}
	return nil
}

// GetProfile loads a channel profile or returns store.ErrNotFound.
func (s *ChannelStore) GetProfile(ctx context.Context, channelURL string) (ranker.ChannelProfile, error) {
	const query = `
SELECT channel_url, channel_id, channel_name, subscriber_count, is_verified, extracted_at
FROM channels_raw
WHERE channel_url = $1`
	var (
		p        ranker.ChannelProfile
		id, name *string
	)
	err := s.pool.QueryRow(ctx, query, channelURL).Scan(
		&p.ChannelURL, &id, &name, &p.Subscribers, &p.Verified, &p.ExtractedAt,
	)
	if err != nil {
		return ranker.ChannelProfile{}, wrapReadError("get channel profile", err)
	}
	p.ChannelID = derefText(id)
	p.Name = derefText(name)
	return p, nil
}

// ListVideos returns a channel's uploads, newest first.
func (s *ChannelStore) ListVideos(ctx context.Context, channelURL string) ([]ranker.ChannelVideo, error) {
	return listChannelVideos(ctx, s.pool, channelURL)
}

func listChannelVideos(ctx context.Context, pool dbPool, channelURL string) ([]ranker.ChannelVideo, error) {
	const query = `
SELECT channel_url, video_id, upload_date, duration_seconds, view_count
FROM channel_videos_raw
WHERE channel_url = $1
ORDER BY upload_date DESC NULLS LAST, video_id DESC`
	rows, err := pool.Query(ctx, query, channelURL)
	if err != nil {
		return nil, wrapReadError("list channel videos", err)
	}
	defer rows.Close()

	var out []ranker.ChannelVideo
	for rows.Next() {
		var v ranker.ChannelVideo
		if err := rows.Scan(&v.ChannelURL, &v.VideoID, &v.UploadDate, &v.DurationSeconds, &v.Views); err != nil {
			return nil, fmt.Errorf("scan channel video: %w", err)
		}
		if v.UploadDate != nil {
			d := v.UploadDate.UTC()
			v.UploadDate = &d
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel videos: %w", err)
	}
	return out, nil
}
