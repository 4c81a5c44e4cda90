package harvest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/models"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/quota"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/retry"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/youtube"
)

// Fake YouTube API backed by maps. Page tokens are "page-N" indexes into
// the configured page list.
type fakeAPI struct {
	mu       sync.Mutex
	channels map[string]*youtube.RawChannel
	uploads  map[string][]*youtube.UploadsPage
	videos   map[string]*youtube.RawVideo
	searches map[string][]string

	uploadsErr error
	batchErr   error
	searchErr  map[string]error
	channelErr map[string]error

	uploadsCalls int
	batchCalls   [][]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		channels:   make(map[string]*youtube.RawChannel),
		uploads:    make(map[string][]*youtube.UploadsPage),
		videos:     make(map[string]*youtube.RawVideo),
		searches:   make(map[string][]string),
		searchErr:  make(map[string]error),
		channelErr: make(map[string]error),
	}
}

func (f *fakeAPI) GetChannel(_ context.Context, _ string, channelID string) (*youtube.RawChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.channelErr[channelID]; err != nil {
		return nil, err
	}
	channel, ok := f.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, youtube.ErrNotFound)
	}
	return channel, nil
}

func (f *fakeAPI) ListUploads(_ context.Context, _ string, playlistID, pageToken string) (*youtube.UploadsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploadsCalls++
	if f.uploadsErr != nil {
		return nil, f.uploadsErr
	}

	pages := f.uploads[playlistID]
	index := 0
	if pageToken != "" {
		index, _ = strconv.Atoi(pageToken[len("page-"):])
	}
	if index >= len(pages) {
		return &youtube.UploadsPage{}, nil
	}
	return pages[index], nil
}

func (f *fakeAPI) GetVideosBatch(_ context.Context, _ string, videoIDs []string) ([]*youtube.RawVideo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batchCalls = append(f.batchCalls, append([]string(nil), videoIDs...))
	if f.batchErr != nil {
		return nil, f.batchErr
	}

	var out []*youtube.RawVideo
	for _, id := range videoIDs {
		if video, ok := f.videos[id]; ok {
			out = append(out, video)
		}
	}
	return out, nil
}

func (f *fakeAPI) SearchChannels(_ context.Context, _ string, query, _ string, _ int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.searchErr[query]; err != nil {
		return nil, err
	}
	return f.searches[query], nil
}

type fakeChannelStore struct {
	mu        sync.Mutex
	verified  []*models.Channel
	harvested map[string]time.Time
}

func newFakeChannelStore(verified ...*models.Channel) *fakeChannelStore {
	return &fakeChannelStore{verified: verified, harvested: make(map[string]time.Time)}
}

func (f *fakeChannelStore) GetVerifiedChannels(context.Context) ([]*models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Channel(nil), f.verified...), nil
}

func (f *fakeChannelStore) MarkChannelHarvested(_ context.Context, channelID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.harvested[channelID] = at
	return nil
}

type fakeVideoStore struct {
	mu       sync.Mutex
	existing map[string]bool
	created  map[string]*models.Video
}

func newFakeVideoStore(existing ...string) *fakeVideoStore {
	store := &fakeVideoStore{
		existing: make(map[string]bool),
		created:  make(map[string]*models.Video),
	}
	for _, id := range existing {
		store.existing[id] = true
	}
	return store
}

func (f *fakeVideoStore) FilterExistingIDs(_ context.Context, videoIDs []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]bool)
	for _, id := range videoIDs {
		if f.existing[id] {
			out[id] = true
		}
		if _, ok := f.created[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeVideoStore) CreateVideo(_ context.Context, video *models.Video) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.existing[video.VideoID] {
		return false, nil
	}
	if _, ok := f.created[video.VideoID]; ok {
		return false, nil
	}
	f.created[video.VideoID] = video
	return true, nil
}

func testPool(t *testing.T, dailyCap int64) *quota.Pool {
	t.Helper()
	return quota.NewPool([]quota.Credential{{ID: "key-1", DailyCap: dailyCap}}, nil)
}

func testRetrier() *retry.Controller {
	return retry.NewController(retry.Config{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, nil)
}

func quotaError() *googleapi.Error {
	return &googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
	}
}

func verifiedChannel(channelID string) *models.Channel {
	channel := models.NewChannel(channelID, "", "UU"+channelID[2:])
	channel.Verified = true
	return channel
}

func rawVideo(videoID, channelID string, publishedAt time.Time) *youtube.RawVideo {
	views, likes, comments := int64(100), int64(10), int64(2)
	return &youtube.RawVideo{
		VideoID:      videoID,
		ChannelID:    channelID,
		Title:        "video " + videoID,
		PublishedAt:  &publishedAt,
		Duration:     "PT4M13S",
		ViewCount:    &views,
		LikeCount:    &likes,
		CommentCount: &comments,
	}
}

func TestHarvester_Run(t *testing.T) {
	ctx := context.Background()
	tick := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	cfg := Config{
		Lookback:       30 * 24 * time.Hour,
		TrackingWindow: 30 * 24 * time.Hour,
		BatchSize:      50,
		MaxPages:       5,
		Workers:        2,
	}

	t.Run("persists uploads within the lookback window", func(t *testing.T) {
		channel := verifiedChannel("UCaaa")
		api := newFakeAPI()
		api.uploads[channel.UploadsPlaylistID] = []*youtube.UploadsPage{{
			Items: []youtube.UploadItem{
				{VideoID: "vid1", PublishedAt: tick.Add(-24 * time.Hour)},
				{VideoID: "vid2", PublishedAt: tick.Add(-48 * time.Hour)},
				{VideoID: "vid3", PublishedAt: tick.Add(-40 * 24 * time.Hour)},
			},
		}}
		api.videos["vid1"] = rawVideo("vid1", channel.ChannelID, tick.Add(-24*time.Hour))
		api.videos["vid2"] = rawVideo("vid2", channel.ChannelID, tick.Add(-48*time.Hour))

		store := newFakeVideoStore()
		channels := newFakeChannelStore(channel)
		h := NewHarvester(api, testPool(t, 10000), testRetrier(), channels, store, cfg, nil)

		job := models.NewCollectionJob(models.JobTypeHarvest)
		usage := quota.NewUsage()
		require.NoError(t, h.Run(ctx, job, usage, tick))

		assert.Equal(t, 2, job.Processed)
		assert.Zero(t, job.Skipped)
		assert.Zero(t, job.Errored)
		assert.Equal(t, int64(2), usage.Total(), "one page plus one batch")

		require.Len(t, store.created, 2)
		vid1 := store.created["vid1"]
		require.NotNil(t, vid1)
		assert.Equal(t, models.TrackingActive, vid1.TrackingStatus)
		require.NotNil(t, vid1.NextPollAt)
		assert.Equal(t, tick, *vid1.NextPollAt)
		assert.Equal(t, models.ContentTypeLong, vid1.ContentType)

		assert.Contains(t, channels.harvested, channel.ChannelID)
	})

	t.Run("skips videos already stored", func(t *testing.T) {
		channel := verifiedChannel("UCbbb")
		api := newFakeAPI()
		api.uploads[channel.UploadsPlaylistID] = []*youtube.UploadsPage{{
			Items: []youtube.UploadItem{
				{VideoID: "vidOld", PublishedAt: tick.Add(-time.Hour)},
				{VideoID: "vidNew", PublishedAt: tick.Add(-2 * time.Hour)},
			},
		}}
		api.videos["vidNew"] = rawVideo("vidNew", channel.ChannelID, tick.Add(-2*time.Hour))

		store := newFakeVideoStore("vidOld")
		h := NewHarvester(api, testPool(t, 10000), testRetrier(), newFakeChannelStore(channel), store, cfg, nil)

		job := models.NewCollectionJob(models.JobTypeHarvest)
		require.NoError(t, h.Run(ctx, job, quota.NewUsage(), tick))

		assert.Equal(t, 1, job.Processed)
		assert.Equal(t, 1, job.Skipped)
		require.Len(t, api.batchCalls, 1)
		assert.Equal(t, []string{"vidNew"}, api.batchCalls[0], "detail units only for new IDs")
	})

	t.Run("videos past the tracking window arrive retired", func(t *testing.T) {
		wideCfg := cfg
		wideCfg.Lookback = 60 * 24 * time.Hour

		channel := verifiedChannel("UCccc")
		stale := tick.Add(-45 * 24 * time.Hour)
		api := newFakeAPI()
		api.uploads[channel.UploadsPlaylistID] = []*youtube.UploadsPage{{
			Items: []youtube.UploadItem{{VideoID: "vidStale", PublishedAt: stale}},
		}}
		api.videos["vidStale"] = rawVideo("vidStale", channel.ChannelID, stale)

		store := newFakeVideoStore()
		h := NewHarvester(api, testPool(t, 10000), testRetrier(), newFakeChannelStore(channel), store, wideCfg, nil)

		job := models.NewCollectionJob(models.JobTypeHarvest)
		require.NoError(t, h.Run(ctx, job, quota.NewUsage(), tick))

		created := store.created["vidStale"]
		require.NotNil(t, created)
		assert.Equal(t, models.TrackingRetired, created.TrackingStatus)
		assert.Nil(t, created.NextPollAt)
	})

	t.Run("walks pages until the cutoff", func(t *testing.T) {
		channel := verifiedChannel("UCddd")
		api := newFakeAPI()
		api.uploads[channel.UploadsPlaylistID] = []*youtube.UploadsPage{
			{
				Items:         []youtube.UploadItem{{VideoID: "vidA", PublishedAt: tick.Add(-time.Hour)}},
				NextPageToken: "page-1",
			},
			{
				Items: []youtube.UploadItem{
					{VideoID: "vidB", PublishedAt: tick.Add(-2 * time.Hour)},
					{VideoID: "vidC", PublishedAt: tick.Add(-31 * 24 * time.Hour)},
				},
				NextPageToken: "page-2",
			},
		}
		api.videos["vidA"] = rawVideo("vidA", channel.ChannelID, tick.Add(-time.Hour))
		api.videos["vidB"] = rawVideo("vidB", channel.ChannelID, tick.Add(-2*time.Hour))

		store := newFakeVideoStore()
		h := NewHarvester(api, testPool(t, 10000), testRetrier(), newFakeChannelStore(channel), store, cfg, nil)

		job := models.NewCollectionJob(models.JobTypeHarvest)
		usage := quota.NewUsage()
		require.NoError(t, h.Run(ctx, job, usage, tick))

		assert.Equal(t, 2, job.Processed)
		assert.Equal(t, 2, api.uploadsCalls, "stops at the page that crosses the cutoff")
		assert.Equal(t, int64(3), usage.Total(), "two pages plus one batch")
	})

	t.Run("pauses when the pool is exhausted", func(t *testing.T) {
		first := verifiedChannel("UCeee")
		second := verifiedChannel("UCfff")
		api := newFakeAPI()
		api.uploads[first.UploadsPlaylistID] = []*youtube.UploadsPage{{
			Items: []youtube.UploadItem{{VideoID: "vidQ", PublishedAt: tick.Add(-time.Hour)}},
		}}
		api.videos["vidQ"] = rawVideo("vidQ", first.ChannelID, tick.Add(-time.Hour))

		serialCfg := cfg
		serialCfg.Workers = 1
		// One unit covers the page; the detail batch cannot be reserved.
		h := NewHarvester(api, testPool(t, 1), testRetrier(), newFakeChannelStore(first, second), newFakeVideoStore(), serialCfg, nil)

		job := models.NewCollectionJob(models.JobTypeHarvest)
		err := h.Run(ctx, job, quota.NewUsage(), tick)

		require.Error(t, err)
		assert.True(t, quota.IsExhausted(err))
		assert.Zero(t, job.Processed)
		assert.Equal(t, 1, api.uploadsCalls, "second channel never starts")
	})

	t.Run("upstream quota rejection exhausts the credential", func(t *testing.T) {
		channel := verifiedChannel("UCggg")
		api := newFakeAPI()
		api.uploadsErr = quotaError()

		pool := testPool(t, 10000)
		h := NewHarvester(api, pool, testRetrier(), newFakeChannelStore(channel), newFakeVideoStore(), cfg, nil)

		job := models.NewCollectionJob(models.JobTypeHarvest)
		err := h.Run(ctx, job, quota.NewUsage(), tick)

		require.Error(t, err)
		assert.True(t, retry.IsQuotaSignal(err))

		status := pool.Snapshot()
		require.Len(t, status, 1)
		assert.Zero(t, status[0].Remaining)
	})

	t.Run("rejections and missing videos are counted", func(t *testing.T) {
		channel := verifiedChannel("UChhh")
		api := newFakeAPI()
		api.uploads[channel.UploadsPlaylistID] = []*youtube.UploadsPage{{
			Items: []youtube.UploadItem{
				{VideoID: "vidOK", PublishedAt: tick.Add(-time.Hour)},
				{VideoID: "vidBad", PublishedAt: tick.Add(-time.Hour)},
				{VideoID: "vidGone", PublishedAt: tick.Add(-time.Hour)},
			},
		}}
		api.videos["vidOK"] = rawVideo("vidOK", channel.ChannelID, tick.Add(-time.Hour))
		bad := rawVideo("vidBad", channel.ChannelID, tick.Add(-time.Hour))
		bad.PublishedAt = nil
		api.videos["vidBad"] = bad

		store := newFakeVideoStore()
		h := NewHarvester(api, testPool(t, 10000), testRetrier(), newFakeChannelStore(channel), store, cfg, nil)

		job := models.NewCollectionJob(models.JobTypeHarvest)
		require.NoError(t, h.Run(ctx, job, quota.NewUsage(), tick))

		assert.Equal(t, 1, job.Processed)
		assert.Equal(t, 2, job.Errored, "one rejection, one missing from the response")
		assert.Len(t, store.created, 1)
	})

	t.Run("transient batch failure is surfaced as skips", func(t *testing.T) {
		channel := verifiedChannel("UCiii")
		api := newFakeAPI()
		api.uploads[channel.UploadsPlaylistID] = []*youtube.UploadsPage{{
			Items: []youtube.UploadItem{{VideoID: "vidT", PublishedAt: tick.Add(-time.Hour)}},
		}}
		api.batchErr = &googleapi.Error{Code: 503}

		h := NewHarvester(api, testPool(t, 10000), testRetrier(), newFakeChannelStore(channel), newFakeVideoStore(), cfg, nil)

		job := models.NewCollectionJob(models.JobTypeHarvest)
		require.NoError(t, h.Run(ctx, job, quota.NewUsage(), tick))

		assert.Zero(t, job.Processed)
		assert.Equal(t, 1, job.Skipped)
	})
}
