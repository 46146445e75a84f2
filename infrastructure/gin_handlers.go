package infrastructure

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/visionpipe/video-detection-service/domain"
	"github.com/visionpipe/video-detection-service/usecase"
)

type VideoHandlers struct {
	Upload *usecase.UploadVideoUseCase
	Query  *usecase.QueryUseCase
}

func NewVideoHandlers(upload *usecase.UploadVideoUseCase, query *usecase.QueryUseCase) *VideoHandlers {
	return &VideoHandlers{Upload: upload, Query: query}
}

func (h *VideoHandlers) Register(router *gin.Engine, authSecret string) {
	router.GET("/videos", h.ListVideos)
	router.GET("/videos/:id", h.GetVideo)
	router.GET("/tasks", h.ListTasks)
	router.GET("/processed-frames", h.ListFrames)
	router.GET("/detected-objects", h.ListObjects)

	auth := router.Group("/")
	auth.Use(AuthMiddleware(authSecret))
	auth.POST("/videos", h.UploadVideo)
}

func (h *VideoHandlers) UploadVideo(c *gin.Context) {
	fileHeader, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("missing video file: %v", err)})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("open uploaded file: %v", err)})
		return
	}
	defer file.Close()

	out, err := h.Upload.Execute(c.Request.Context(), usecase.UploadVideoInput{
		Content:     file,
		Filename:    fileHeader.Filename,
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			UploadsTotal.WithLabelValues("rejected").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	UploadsTotal.WithLabelValues("accepted").Inc()
	c.JSON(http.StatusCreated, gin.H{
		"videoId": out.VideoID,
		"status":  out.Status,
	})
}

func (h *VideoHandlers) ListVideos(c *gin.Context) {
	videos, err := h.Query.ListVideos(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := make([]gin.H, 0, len(videos))
	for i := range videos {
		resp = append(resp, videoJSON(&videos[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *VideoHandlers) GetVideo(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	video, err := h.Query.GetVideo(c.Request.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, videoJSON(video))
}

func (h *VideoHandlers) ListTasks(c *gin.Context) {
	videoID, ok := optionalVideoID(c)
	if !ok {
		return
	}
	tasks, err := h.Query.ListTasks(c.Request.Context(), videoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]gin.H, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, gin.H{
			"id":            t.ID,
			"video_id":      t.VideoID,
			"status":        t.Status,
			"attempts":      t.Attempts,
			"error_message": t.ErrorMessage,
			"started_at":    t.StartedAt,
			"finished_at":   t.FinishedAt,
			"created_at":    t.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *VideoHandlers) ListFrames(c *gin.Context) {
	videoID, ok := optionalVideoID(c)
	if !ok {
		return
	}
	frames, err := h.Query.ListFrames(c.Request.Context(), videoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]gin.H, 0, len(frames))
	for _, f := range frames {
		resp = append(resp, gin.H{
			"id":                f.ID,
			"video_id":          f.VideoID,
			"frame_index":       f.FrameIndex,
			"timestamp_seconds": f.TimestampSeconds,
			"storage_key":       f.StorageKey,
			"object_count":      f.ObjectCount,
			"processing_millis": f.ProcessingMillis,
			"created_at":        f.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *VideoHandlers) ListObjects(c *gin.Context) {
	videoID, ok := optionalVideoID(c)
	if !ok {
		return
	}
	objects, err := h.Query.ListObjects(c.Request.Context(), videoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]gin.H, 0, len(objects))
	for _, o := range objects {
		resp = append(resp, gin.H{
			"id":         o.ID,
			"frame_id":   o.FrameID,
			"video_id":   o.VideoID,
			"label":      o.Label,
			"confidence": o.Confidence,
			"bbox":       o.Box,
			"created_at": o.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func optionalVideoID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Query("video_id")
	if raw == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video_id"})
		return uuid.Nil, false
	}
	return id, true
}

func videoJSON(v *domain.Video) gin.H {
	return gin.H{
		"id":                v.ID,
		"title":             v.Title,
		"description":       v.Description,
		"original_filename": v.OriginalFilename,
		"storage_key":       v.StorageKey,
		"status":            v.Status,
		"error_message":     v.ErrorMessage,
		"duration_seconds":  v.Metadata.DurationSeconds,
		"frame_count":       v.Metadata.FrameCount,
		"fps":               v.Metadata.FPS,
		"resolution":        fmt.Sprintf("%dx%d", v.Metadata.Width, v.Metadata.Height),
		"size_bytes":        v.Metadata.SizeBytes,
		"created_at":        v.CreatedAt,
		"updated_at":        v.UpdatedAt,
	}
}

// HealthHandler reports connectivity of the three backing services.
func HealthHandler(db *sql.DB, queue *RabbitMQQueue, store *MinioObjectStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		dbStatus := "connected"
		if err := db.PingContext(ctx); err != nil {
			dbStatus = fmt.Sprintf("error: %v", err)
		}

		queueStatus := "connected"
		if !queue.Healthy() {
			queueStatus = "disconnected"
		}

		storeStatus := "connected"
		if !store.Healthy(ctx) {
			storeStatus = "disconnected"
		}

		status := http.StatusOK
		overall := "UP"
		if dbStatus != "connected" || queueStatus != "connected" || storeStatus != "connected" {
			status = http.StatusInternalServerError
			overall = "DOWN"
		}
		c.JSON(status, gin.H{
			"status":   overall,
			"database": dbStatus,
			"rabbitmq": queueStatus,
			"minio":    storeStatus,
			"time":     time.Now().UTC(),
		})
	}
}
