package youtube

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// ErrNotFound is returned when the API reports no resource for the requested
// identifier. Callers treat it as a permanent per-record failure.
var ErrNotFound = errors.New("youtube: resource not found")

// APIKey pairs a credential identifier from the quota pool with its key
// material.
type APIKey struct {
	ID  string
	Key string
}

// Client wraps the YouTube Data API v3 with one service per credential, so
// every call can be issued on whichever credential the quota pool reserved
// for it.
type Client struct {
	services map[string]*youtube.Service
	log      *zap.Logger
}

// NewClient builds one API service per credential. All keys must be
// non-empty; an unknown credential ID at call time is a programming error
// and fails fast.
func NewClient(ctx context.Context, keys []APIKey, log *zap.Logger) (*Client, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	services := make(map[string]*youtube.Service, len(keys))
	for _, k := range keys {
		if k.Key == "" {
			return nil, fmt.Errorf("API key for credential %q is empty", k.ID)
		}
		if _, dup := services[k.ID]; dup {
			return nil, fmt.Errorf("duplicate credential id %q", k.ID)
		}
		service, err := youtube.NewService(ctx, option.WithAPIKey(k.Key))
		if err != nil {
			return nil, fmt.Errorf("failed to create YouTube service for credential %q: %w", k.ID, err)
		}
		services[k.ID] = service
	}

	return &Client{services: services, log: log}, nil
}

func (c *Client) service(credentialID string) (*youtube.Service, error) {
	service, ok := c.services[credentialID]
	if !ok {
		return nil, fmt.Errorf("no API service for credential %q", credentialID)
	}
	return service, nil
}

// GetChannel fetches one channel's snippet, statistics and uploads playlist.
// Costs CostChannelsList units.
func (c *Client) GetChannel(ctx context.Context, credentialID, channelID string) (*RawChannel, error) {
	service, err := c.service(credentialID)
	if err != nil {
		return nil, err
	}

	response, err := service.Channels.
		List([]string{"snippet", "statistics", "contentDetails"}).
		Id(channelID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("channels.list %s: %w", channelID, err)
	}
	if len(response.Items) == 0 {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}

	return mapChannel(response.Items[0]), nil
}

// ListUploads fetches one page of a channel's uploads playlist, newest
// first. An empty pageToken requests the first page. Costs
// CostPlaylistItemsList units per page.
func (c *Client) ListUploads(ctx context.Context, credentialID, playlistID, pageToken string) (*UploadsPage, error) {
	service, err := c.service(credentialID)
	if err != nil {
		return nil, err
	}

	call := service.PlaylistItems.
		List([]string{"contentDetails"}).
		PlaylistId(playlistID).
		MaxResults(int64(MaxBatchSize)).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	response, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("playlistItems.list %s: %w", playlistID, err)
	}

	page := &UploadsPage{NextPageToken: response.NextPageToken}
	for _, item := range response.Items {
		if item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
			continue
		}
		publishedAt, err := time.Parse(time.RFC3339, item.ContentDetails.VideoPublishedAt)
		if err != nil {
			// Scheduled premieres can list an item before the video has a
			// publish time; they show up again once published.
			c.log.Debug("skipping playlist item without publish time",
				zap.String("video_id", item.ContentDetails.VideoId))
			continue
		}
		page.Items = append(page.Items, UploadItem{
			VideoID:     item.ContentDetails.VideoId,
			PublishedAt: publishedAt,
		})
	}

	return page, nil
}

// GetVideosBatch fetches snippet, contentDetails and statistics for up to
// MaxBatchSize videos in one call. Identifiers the platform no longer knows
// are simply absent from the result; the caller decides what absence means.
// Costs CostVideosList units per call regardless of batch size.
func (c *Client) GetVideosBatch(ctx context.Context, credentialID string, videoIDs []string) ([]*RawVideo, error) {
	if len(videoIDs) == 0 {
		return nil, fmt.Errorf("no video IDs provided")
	}
	if len(videoIDs) > MaxBatchSize {
		return nil, fmt.Errorf("too many video IDs (max %d, got %d)", MaxBatchSize, len(videoIDs))
	}

	service, err := c.service(credentialID)
	if err != nil {
		return nil, err
	}

	response, err := service.Videos.
		List([]string{"snippet", "contentDetails", "statistics"}).
		Id(videoIDs...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("videos.list: %w", err)
	}

	videos := make([]*RawVideo, 0, len(response.Items))
	for _, item := range response.Items {
		videos = append(videos, mapVideo(item))
	}

	return videos, nil
}

// SearchChannels returns channel IDs matching the query within a region.
// This is by far the most expensive call, CostSearchList units, so it is
// reserved for discovery runs.
func (c *Client) SearchChannels(ctx context.Context, credentialID, query, regionCode string, maxResults int64) ([]string, error) {
	service, err := c.service(credentialID)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 25
	}

	call := service.Search.
		List([]string{"snippet"}).
		Q(query).
		Type("channel").
		MaxResults(maxResults).
		Context(ctx)
	if regionCode != "" {
		call = call.RegionCode(regionCode)
	}

	response, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("search.list %q: %w", query, err)
	}

	ids := make([]string, 0, len(response.Items))
	for _, item := range response.Items {
		if item.Id != nil && item.Id.ChannelId != "" {
			ids = append(ids, item.Id.ChannelId)
		}
	}

	return ids, nil
}

func mapChannel(item *youtube.Channel) *RawChannel {
	raw := &RawChannel{ChannelID: item.Id}

	if item.Snippet != nil {
		raw.Title = item.Snippet.Title
		raw.Description = item.Snippet.Description
		if item.Snippet.Country != "" {
			country := item.Snippet.Country
			raw.Country = &country
		}
	}
	if item.Statistics != nil {
		raw.VideoCount = int64(item.Statistics.VideoCount)
		if !item.Statistics.HiddenSubscriberCount {
			raw.SubscriberCount = int64(item.Statistics.SubscriberCount)
		}
	}
	if item.ContentDetails != nil && item.ContentDetails.RelatedPlaylists != nil {
		raw.UploadsPlaylistID = item.ContentDetails.RelatedPlaylists.Uploads
	}

	return raw
}

func mapVideo(item *youtube.Video) *RawVideo {
	raw := &RawVideo{VideoID: item.Id}

	if item.Snippet != nil {
		raw.ChannelID = item.Snippet.ChannelId
		raw.Title = item.Snippet.Title
		raw.Description = item.Snippet.Description
		raw.CategoryID = item.Snippet.CategoryId
		if item.Snippet.Tags != nil {
			raw.Tags = item.Snippet.Tags
		}
		if item.Snippet.PublishedAt != "" {
			if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
				raw.PublishedAt = &t
			}
		}
	}
	if item.ContentDetails != nil {
		raw.Duration = item.ContentDetails.Duration
	}
	if item.Statistics != nil {
		viewCount := int64(item.Statistics.ViewCount)
		raw.ViewCount = &viewCount
		// The generated types collapse a JSON-absent counter to zero. The
		// platform omits these counters when comments are disabled or
		// ratings are hidden, so zero maps back to absent here; a video
		// with a literal zero after its first snapshot is indistinguishable
		// and accepted as the cost of the typed API.
		if item.Statistics.CommentCount > 0 {
			commentCount := int64(item.Statistics.CommentCount)
			raw.CommentCount = &commentCount
		}
		if item.Statistics.LikeCount > 0 {
			likeCount := int64(item.Statistics.LikeCount)
			raw.LikeCount = &likeCount
		}
	}

	return raw
}
