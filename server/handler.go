// Package server is the thin HTTP surface that triggers pipeline runs and
// exposes readiness and task status.
package server

import (
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/krau/lenstagger/config"
	"github.com/krau/lenstagger/model"
	"github.com/krau/lenstagger/queue"
	"github.com/krau/lenstagger/store"
)

var errUnauthorized = errors.New("unauthorized")

type Server struct {
	store      *store.Store
	dispatcher *queue.Dispatcher
	registry   *model.Registry
	logger     *slog.Logger
}

func New(st *store.Store, dispatcher *queue.Dispatcher, registry *model.Registry, logger *slog.Logger) *Server {
	return &Server{store: st, dispatcher: dispatcher, registry: registry, logger: logger}
}

func (s *Server) Register(r *gin.Engine) {
	r.GET("/health", s.handleHealth)
	r.POST("/photos", s.handleUpload)
	r.POST("/photos/:id/reprocess", s.handleReprocess)
	r.GET("/photos/:id", s.handlePhoto)
	r.GET("/untagged", s.handleUntagged)
	r.GET("/tags/stats", s.handleTagStats)
	r.GET("/tasks/:id", s.handleTask)
}

func authenticate(c *gin.Context) error {
	auth := c.GetHeader("Authorization")

	expectedToken := config.C().Token
	if expectedToken == "" {
		return nil
	}
	providedToken := ""
	if len(auth) > 7 && auth[:7] == "Bearer " {
		providedToken = auth[7:]
	}
	if subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) != 1 {
		return errUnauthorized
	}

	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":       "healthy",
		"models_ready": s.registry.Ready(),
	})
}

func (s *Server) handleUpload(c *gin.Context) {
	if err := authenticate(c); err != nil {
		c.JSON(401, gin.H{"error": "authentication failed"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(400, gin.H{"error": "no file uploaded"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(400, gin.H{"error": "cannot open uploaded file"})
		return
	}
	defer file.Close()

	cfg := config.C()
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		c.JSON(500, gin.H{"error": "cannot store file"})
		return
	}
	path := filepath.Join(cfg.UploadDir, uuid.NewString()+filepath.Ext(fileHeader.Filename))
	dst, err := os.Create(path)
	if err != nil {
		c.JSON(500, gin.H{"error": "cannot store file"})
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(path)
		c.JSON(500, gin.H{"error": "cannot store file"})
		return
	}
	dst.Close()

	photoID, err := s.store.CreatePhoto(c.Request.Context(), path)
	if err != nil {
		s.logger.Error("photo create failed", slog.String("error", err.Error()))
		c.JSON(500, gin.H{"error": "cannot create photo record"})
		return
	}

	taskID, err := s.dispatcher.EnqueueProcess(c.Request.Context(), photoID, path)
	if err != nil {
		s.logger.Error("enqueue failed",
			slog.Int64("photo_id", photoID), slog.String("error", err.Error()))
		c.JSON(500, gin.H{"error": "cannot queue processing"})
		return
	}

	c.JSON(202, gin.H{"photo_id": photoID, "task_id": taskID})
}

func (s *Server) handleReprocess(c *gin.Context) {
	if err := authenticate(c); err != nil {
		c.JSON(401, gin.H{"error": "authentication failed"})
		return
	}

	photoID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid photo id"})
		return
	}

	photo, err := s.store.Photo(c.Request.Context(), photoID)
	if errors.Is(err, store.ErrPhotoNotFound) {
		c.JSON(404, gin.H{"error": "photo not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": "lookup failed"})
		return
	}

	taskID, err := s.dispatcher.EnqueueProcess(c.Request.Context(), photo.ID, photo.FilePath)
	if errors.Is(err, queue.ErrAlreadyQueued) {
		c.JSON(409, gin.H{"error": "photo already queued"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": "cannot queue processing"})
		return
	}

	c.JSON(202, gin.H{"photo_id": photo.ID, "task_id": taskID})
}

func (s *Server) handlePhoto(c *gin.Context) {
	photoID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid photo id"})
		return
	}

	photo, err := s.store.Photo(c.Request.Context(), photoID)
	if errors.Is(err, store.ErrPhotoNotFound) {
		c.JSON(404, gin.H{"error": "photo not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(200, photo)
}

func (s *Server) handleUntagged(c *gin.Context) {
	photos, err := s.store.UntaggedPhotos(c.Request.Context())
	if err != nil {
		c.JSON(500, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(200, gin.H{"photos": photos})
}

func (s *Server) handleTagStats(c *gin.Context) {
	stats, err := s.store.TagStats(c.Request.Context())
	if err != nil {
		c.JSON(500, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(200, gin.H{"tags": stats})
}

func (s *Server) handleTask(c *gin.Context) {
	state, err := s.dispatcher.TaskState(c.Request.Context(), c.Param("id"))
	if errors.Is(err, queue.ErrTaskNotFound) {
		c.JSON(404, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(200, state)
}
