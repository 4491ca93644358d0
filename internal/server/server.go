// Package server is the HTTP front end: viewpoint CRUD plus the pixel- and
// metadata-serving endpoints, all gated by the viewpoint state machine.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tileview/internal/models"
	"tileview/internal/pool"
)

// endpointVersion is baked into pagination tokens; a token minted by one
// version of the list endpoint is rejected by another.
const endpointVersion = "1.0"

// StatusStore is the slice of the status store the handlers need.
type StatusStore interface {
	Get(ctx context.Context, id string) (*models.ViewpointRecord, error)
	List(ctx context.Context, limit int, afterID string) ([]models.ViewpointRecord, string, error)
	Insert(ctx context.Context, rec *models.ViewpointRecord) error
	Update(ctx context.Context, rec *models.ViewpointRecord) error
}

// Enqueuer hands viewpoint requests to the ingestion worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, rec *models.ViewpointRecord, correlationID string) error
}

// Sealer protects pagination continuation tokens.
type Sealer interface {
	Seal(plain string) (string, error)
	Open(tok string) (string, error)
}

type Server struct {
	cfg    *models.Config
	router *gin.Engine
	http   *http.Server
	store  StatusStore
	queue  Enqueuer
	pools  *pool.Cache
	sealer Sealer
	log    zerolog.Logger

	now func() time.Time
}

func NewServer(cfg *models.Config, store StatusStore, queue Enqueuer, pools *pool.Cache,
	sealer Sealer, log zerolog.Logger) *Server {
	r := gin.Default()

	s := &Server{
		cfg:    cfg,
		router: r,
		store:  store,
		queue:  queue,
		pools:  pools,
		sealer: sealer,
		log:    log,
		now:    time.Now,
	}

	r.GET("/", s.handleRoot)
	r.GET("/ping", s.handlePing)

	v1 := r.Group("/v1")
	v1.GET("/viewpoints", s.handleListViewpoints)
	v1.POST("/viewpoints", s.handleCreateViewpoint)
	v1.PUT("/viewpoints", s.handleUpdateViewpoint)
	v1.GET("/viewpoints/:id", s.handleDescribeViewpoint)
	v1.DELETE("/viewpoints/:id", s.handleDeleteViewpoint)

	img := v1.Group("/viewpoints/:id/image")
	img.GET("/metadata", s.sidecarHandler(models.OpMetadata, models.MetadataSuffix))
	img.GET("/bounds", s.sidecarHandler(models.OpBounds, models.BoundsSuffix))
	img.GET("/info", s.sidecarHandler(models.OpInfo, models.InfoSuffix))
	img.GET("/statistics", s.sidecarHandler(models.OpStatistics, models.StatisticsSuffix))
	img.GET("/:file", s.handlePreview)
	img.GET("/tiles/:z/:x/:file", s.handleTile)
	img.GET("/crop/:bbox", s.handleCrop)

	maps := v1.Group("/viewpoints/:id/map/tiles")
	maps.GET("", s.handleListTilesets)
	maps.GET("/:tms", s.handleTilesetMetadata)
	maps.GET("/:tms/:z/:x/:file", s.handleMapTile)

	s.http = &http.Server{Addr: cfg.ServerAddr, Handler: r}
	return s
}

// Router exposes the handler tree, primarily for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) Start() error {
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "tileview",
		"description": "a minimalistic tile server for imagery hosted in the cloud",
		"api_version": endpointVersion,
	})
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// lookup fetches the record and applies the state-machine gate for op. It
// writes the response itself on failure and returns nil.
func (s *Server) lookup(c *gin.Context, op models.Operation) *models.ViewpointRecord {
	rec, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, op, err)
		return nil
	}
	if err := models.CheckOperation(rec.Status, op); err != nil {
		s.writeError(c, op, err)
		return nil
	}
	return rec
}

// writeError maps the shared error taxonomy onto HTTP responses. The
// "not ready yet" and "already deleted" rejections must stay distinguishable
// so clients know whether to keep polling or stop.
func (s *Server) writeError(c *gin.Context, op models.Operation, err error) {
	var statusErr *models.StatusError
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "viewpoint does not exist, provide a correct viewpoint id"})
	case errors.Is(err, models.ErrAlreadyDeleted):
		c.JSON(http.StatusGone, gin.H{"error": "cannot " + string(op) + " this viewpoint since it has already been deleted"})
	case errors.Is(err, models.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "cannot " + string(op) + " yet, this viewpoint has been requested and is not in READY state, try again later"})
	case errors.Is(err, models.ErrIngestFailed):
		c.JSON(http.StatusConflict, gin.H{"error": "cannot " + string(op) + " this viewpoint because its ingestion failed"})
	case errors.As(err, &statusErr):
		c.JSON(statusErr.Code, gin.H{"error": statusErr.Message})
	default:
		s.log.Error().Err(err).Str("operation", string(op)).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error handling " + string(op) + " request"})
	}
}
