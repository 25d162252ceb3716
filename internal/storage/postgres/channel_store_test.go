package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

func TestUpsertProfileKeepsKnownValues(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewChannelStore(mock)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := ranker.ChannelProfile{ChannelURL: testChannel, Name: "Docs", Subscribers: ptr(int64(1200)), ExtractedAt: now}
	mock.ExpectExec("INSERT INTO channels_raw").
		WithArgs(testChannel, (*string)(nil), ptr("Docs"), ptr(int64(1200)), (*bool)(nil), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertProfile(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVideosSkipsEmptyBatch(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewChannelStore(mock)
	require.NoError(t, err)
	require.NoError(t, s.UpsertVideos(context.Background(), testChannel, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListVideosNewestFirst(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewChannelStore(mock)
	require.NoError(t, err)

	d1 := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM channel_videos_raw").WithArgs(testChannel).
		WillReturnRows(mock.NewRows([]string{"channel_url", "video_id", "upload_date", "duration_seconds", "view_count"}).
			AddRow(testChannel, "v2", ptr(d1), ptr(1500), ptr(int64(900))).
			AddRow(testChannel, "v1", (*time.Time)(nil), (*int)(nil), (*int64)(nil)))

	got, err := s.ListVideos(context.Background(), testChannel)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, d1, *got[0].UploadDate)
	require.Nil(t, got[1].UploadDate)
	require.NoError(t, mock.ExpectationsWereMet())
}
