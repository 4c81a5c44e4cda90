// Package handler exposes the collector's read-only HTTP surface: the
// query API downstream consumers poll, health probes, and metrics.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/cache"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db"
	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/models"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// ErrorResponse is the JSON error body for the query API.
type ErrorResponse struct {
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}

// VideoReader is the slice of the video repository the query API reads.
type VideoReader interface {
	GetVideoByID(ctx context.Context, videoID string) (*models.Video, error)
	GetActiveTrackingSet(ctx context.Context) ([]*models.Video, error)
}

// SnapshotReader serves snapshot range queries.
type SnapshotReader interface {
	GetSnapshotRange(ctx context.Context, videoID string, from, to time.Time) ([]*models.Snapshot, error)
}

// ChannelReader serves channel confidence queries.
type ChannelReader interface {
	GetChannelsByMinScore(ctx context.Context, minScore float64, limit int) ([]*models.Channel, error)
}

// JobReader serves collection run summaries.
type JobReader interface {
	GetJobByID(ctx context.Context, id uuid.UUID) (*models.CollectionJob, error)
	GetCredentialUsage(ctx context.Context, jobID uuid.UUID) ([]*models.CredentialUsage, error)
	ListRecentJobs(ctx context.Context, limit int) ([]*models.CollectionJob, error)
}

// QueryHandler answers read-only queries over the collected corpus. Video
// lookups go through the cache; everything else hits the repositories
// directly.
type QueryHandler struct {
	videos   VideoReader
	snaps    SnapshotReader
	channels ChannelReader
	jobs     JobReader
	cache    cache.Cache
	cacheTTL time.Duration
	log      *zap.Logger
}

// NewQueryHandler creates a QueryHandler. The cache may be nil, in which
// case every lookup goes to the repositories.
func NewQueryHandler(videos VideoReader, snaps SnapshotReader, channels ChannelReader,
	jobs JobReader, c cache.Cache, cacheTTL time.Duration, log *zap.Logger) *QueryHandler {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &QueryHandler{
		videos:   videos,
		snaps:    snaps,
		channels: channels,
		jobs:     jobs,
		cache:    c,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// GetVideo returns one video record by its platform ID.
func (h *QueryHandler) GetVideo(c *gin.Context) {
	ctx := c.Request.Context()
	videoID := c.Param("id")
	key := cache.VideoKey(videoID)

	if h.cache != nil {
		if body, ok, err := h.cache.Get(ctx, key); err == nil && ok {
			c.Data(http.StatusOK, "application/json", body)
			return
		}
	}

	video, err := h.videos.GetVideoByID(ctx, videoID)
	if err != nil {
		h.respondError(c, err, "video not found")
		return
	}

	if h.cache != nil {
		if body, err := json.Marshal(video); err == nil {
			if err := h.cache.Set(ctx, key, body, h.cacheTTL); err != nil {
				h.log.Warn("Caching video failed", zap.String("video_id", videoID), zap.Error(err))
			}
		}
	}

	c.JSON(http.StatusOK, video)
}

// GetVideoSnapshots returns a video's snapshot series inside an optional
// [from, to] range, ordered by observation time.
func (h *QueryHandler) GetVideoSnapshots(c *gin.Context) {
	ctx := c.Request.Context()
	videoID := c.Param("id")

	from, err := parseTimeQuery(c, "from", time.Time{})
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	to, err := parseTimeQuery(c, "to", time.Now())
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}

	snapshots, err := h.snaps.GetSnapshotRange(ctx, videoID, from, to)
	if err != nil {
		h.respondError(c, err, "snapshots unavailable")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"video_id":  videoID,
		"count":     len(snapshots),
		"snapshots": snapshots,
	})
}

// GetActiveTracking returns the videos currently in the tracking rotation.
func (h *QueryHandler) GetActiveTracking(c *gin.Context) {
	videos, err := h.videos.GetActiveTrackingSet(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "tracking set unavailable")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(videos),
		"videos": videos,
	})
}

// ListChannels returns channels at or above a relevance score.
func (h *QueryHandler) ListChannels(c *gin.Context) {
	minScore := 0.0
	if raw := c.Query("min_score"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			h.badRequest(c, "min_score must be a number between 0 and 1")
			return
		}
		minScore = parsed
	}

	channels, err := h.channels.GetChannelsByMinScore(c.Request.Context(), minScore, parseLimitQuery(c))
	if err != nil {
		h.respondError(c, err, "channels unavailable")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(channels),
		"min_score": minScore,
		"channels":  channels,
	})
}

// GetJob returns one collection run with its per-credential unit usage.
func (h *QueryHandler) GetJob(c *gin.Context) {
	ctx := c.Request.Context()

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.badRequest(c, "job id must be a UUID")
		return
	}

	job, err := h.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		h.respondError(c, err, "job not found")
		return
	}

	usage, err := h.jobs.GetCredentialUsage(ctx, jobID)
	if err != nil {
		h.respondError(c, err, "credential usage unavailable")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":              job,
		"credential_usage": usage,
	})
}

// ListJobs returns the most recent collection runs.
func (h *QueryHandler) ListJobs(c *gin.Context) {
	jobs, err := h.jobs.ListRecentJobs(c.Request.Context(), parseLimitQuery(c))
	if err != nil {
		h.respondError(c, err, "jobs unavailable")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(jobs),
		"jobs":  jobs,
	})
}

func (h *QueryHandler) respondError(c *gin.Context, err error, message string) {
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Status:    http.StatusNotFound,
			Error:     "Not Found",
			Message:   message,
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
		})
		return
	}

	h.log.Error("Query failed",
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Status:    http.StatusInternalServerError,
		Error:     "Internal Server Error",
		Message:   "query failed",
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	})
}

func (h *QueryHandler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Status:    http.StatusBadRequest,
		Error:     "Bad Request",
		Message:   message,
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	})
}

func parseLimitQuery(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func parseTimeQuery(c *gin.Context, key string, fallback time.Time) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: expected RFC3339 timestamp", key)
	}
	return t, nil
}
