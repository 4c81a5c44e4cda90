package youtube

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/youtube/v3"
)

func TestMapChannel(t *testing.T) {
	t.Run("maps all parts", func(t *testing.T) {
		raw := mapChannel(&youtube.Channel{
			Id: "UCabc",
			Snippet: &youtube.ChannelSnippet{
				Title:       "Sri Lanka Cricket",
				Description: "Official channel",
				Country:     "LK",
			},
			Statistics: &youtube.ChannelStatistics{
				SubscriberCount: 120000,
				VideoCount:      431,
			},
			ContentDetails: &youtube.ChannelContentDetails{
				RelatedPlaylists: &youtube.ChannelContentDetailsRelatedPlaylists{
					Uploads: "UUabc",
				},
			},
		})

		assert.Equal(t, "UCabc", raw.ChannelID)
		assert.Equal(t, "Sri Lanka Cricket", raw.Title)
		require.NotNil(t, raw.Country)
		assert.Equal(t, "LK", *raw.Country)
		assert.Equal(t, "UUabc", raw.UploadsPlaylistID)
		assert.Equal(t, int64(120000), raw.SubscriberCount)
		assert.Equal(t, int64(431), raw.VideoCount)
	})

	t.Run("undeclared country stays nil", func(t *testing.T) {
		raw := mapChannel(&youtube.Channel{
			Id:      "UCdef",
			Snippet: &youtube.ChannelSnippet{Title: "No Country"},
		})

		assert.Nil(t, raw.Country)
	})

	t.Run("hidden subscriber count maps to zero", func(t *testing.T) {
		raw := mapChannel(&youtube.Channel{
			Id: "UCghi",
			Statistics: &youtube.ChannelStatistics{
				SubscriberCount:       99,
				HiddenSubscriberCount: true,
			},
		})

		assert.Zero(t, raw.SubscriberCount)
	})

	t.Run("missing parts are tolerated", func(t *testing.T) {
		raw := mapChannel(&youtube.Channel{Id: "UCjkl"})

		assert.Equal(t, "UCjkl", raw.ChannelID)
		assert.Empty(t, raw.UploadsPlaylistID)
	})
}

func TestMapVideo(t *testing.T) {
	t.Run("maps all parts", func(t *testing.T) {
		raw := mapVideo(&youtube.Video{
			Id: "vid123",
			Snippet: &youtube.VideoSnippet{
				ChannelId:   "UCabc",
				Title:       "Match Highlights",
				Description: "Full highlights",
				PublishedAt: "2026-01-10T08:30:00Z",
				CategoryId:  "17",
				Tags:        []string{"cricket", "highlights"},
			},
			ContentDetails: &youtube.VideoContentDetails{Duration: "PT4M13S"},
			Statistics: &youtube.VideoStatistics{
				ViewCount:    15000,
				LikeCount:    1200,
				CommentCount: 85,
			},
		})

		assert.Equal(t, "vid123", raw.VideoID)
		assert.Equal(t, "UCabc", raw.ChannelID)
		assert.Equal(t, "PT4M13S", raw.Duration)
		assert.Equal(t, "17", raw.CategoryID)
		assert.Equal(t, []string{"cricket", "highlights"}, raw.Tags)

		require.NotNil(t, raw.PublishedAt)
		assert.Equal(t, time.Date(2026, 1, 10, 8, 30, 0, 0, time.UTC), raw.PublishedAt.UTC())

		require.NotNil(t, raw.ViewCount)
		assert.Equal(t, int64(15000), *raw.ViewCount)
		require.NotNil(t, raw.LikeCount)
		assert.Equal(t, int64(1200), *raw.LikeCount)
		require.NotNil(t, raw.CommentCount)
		assert.Equal(t, int64(85), *raw.CommentCount)
	})

	t.Run("zero counters map to absent", func(t *testing.T) {
		raw := mapVideo(&youtube.Video{
			Id:         "vid456",
			Statistics: &youtube.VideoStatistics{ViewCount: 42},
		})

		require.NotNil(t, raw.ViewCount)
		assert.Equal(t, int64(42), *raw.ViewCount)
		assert.Nil(t, raw.LikeCount)
		assert.Nil(t, raw.CommentCount)
	})

	t.Run("missing statistics leave counts nil", func(t *testing.T) {
		raw := mapVideo(&youtube.Video{Id: "vid789"})

		assert.Nil(t, raw.ViewCount)
		assert.Nil(t, raw.LikeCount)
		assert.Nil(t, raw.CommentCount)
	})

	t.Run("unparseable publish time stays nil", func(t *testing.T) {
		raw := mapVideo(&youtube.Video{
			Id:      "vid000",
			Snippet: &youtube.VideoSnippet{PublishedAt: "not-a-time"},
		})

		assert.Nil(t, raw.PublishedAt)
	})
}

func TestBatchVideoIDs(t *testing.T) {
	ids := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		ids = append(ids, string(rune('a'+i%26)))
	}

	t.Run("splits into batches of the requested size", func(t *testing.T) {
		batches := BatchVideoIDs(ids, 50)

		require.Len(t, batches, 3)
		assert.Len(t, batches[0], 50)
		assert.Len(t, batches[1], 50)
		assert.Len(t, batches[2], 20)
	})

	t.Run("oversized batch size falls back to the maximum", func(t *testing.T) {
		batches := BatchVideoIDs(ids, 500)

		require.Len(t, batches, 3)
		assert.Len(t, batches[0], MaxBatchSize)
	})

	t.Run("preserves order", func(t *testing.T) {
		batches := BatchVideoIDs([]string{"a", "b", "c", "d", "e"}, 2)

		require.Len(t, batches, 3)
		assert.Equal(t, []string{"a", "b"}, batches[0])
		assert.Equal(t, []string{"c", "d"}, batches[1])
		assert.Equal(t, []string{"e"}, batches[2])
	})

	t.Run("empty input yields no batches", func(t *testing.T) {
		assert.Nil(t, BatchVideoIDs(nil, 50))
	})
}
