package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tileview/internal/models"
)

// tokenTTL bounds how long a pagination token stays usable.
const tokenTTL = 24 * time.Hour

func (s *Server) handleListViewpoints(c *gin.Context) {
	const op = "server.handleListViewpoints"

	limit := 0
	if raw := c.Query("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_results must be a positive integer"})
			return
		}
		limit = n
	}

	afterID := ""
	if tok := c.Query("next_token"); tok != "" {
		var ok bool
		afterID, ok = s.openToken(c, tok)
		if !ok {
			return
		}
	}

	items, next, err := s.store.List(c.Request.Context(), limit, afterID)
	if err != nil {
		s.writeError(c, "list", err)
		return
	}

	resp := models.ViewpointListResponse{Items: items}
	if next != "" {
		sealed, err := s.sealToken(next)
		if err != nil {
			s.log.Error().Err(err).Msgf("%s: sealing next_token", op)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error handling list request"})
			return
		}
		resp.NextToken = sealed
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) sealToken(afterID string) (string, error) {
	expiry := s.now().Add(tokenTTL).UTC().Format(time.RFC3339)
	return s.sealer.Seal(afterID + "|" + expiry + "|" + endpointVersion)
}

// openToken validates the continuation token and returns the cursor. Each
// rejection carries its own message so a client can tell a stale token from a
// corrupt one.
func (s *Server) openToken(c *gin.Context, tok string) (string, bool) {
	plain, err := s.sealer.Open(tok)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "next_token is invalid"})
		return "", false
	}
	parts := strings.SplitN(plain, "|", 3)
	if len(parts) != 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "next_token is invalid"})
		return "", false
	}
	expiry, err := time.Parse(time.RFC3339, parts[1])
	if err != nil || s.now().After(expiry) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "next_token has expired, submit a new request"})
		return "", false
	}
	if parts[2] != endpointVersion {
		c.JSON(http.StatusBadRequest, gin.H{"error": "next_token is not compatible with this endpoint version, submit a new request"})
		return "", false
	}
	return parts[0], true
}

func (s *Server) handleCreateViewpoint(c *gin.Context) {
	const op = "server.handleCreateViewpoint"
	ctx := c.Request.Context()

	var req models.CreateViewpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid create request: " + err.Error()})
		return
	}
	if !req.RangeAdjustment.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "range_adjustment must be one of NONE, MINMAX, DRA"})
		return
	}
	if !models.ValidViewpointID(req.ViewpointID) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "viewpoint_id must be non-empty and URL-safe"})
		return
	}

	if existing, err := s.store.Get(ctx, req.ViewpointID); err == nil {
		// Idempotent create: the request was already accepted.
		c.JSON(http.StatusAccepted, existing)
		return
	} else if !errors.Is(err, models.ErrNotFound) {
		s.writeError(c, "create", err)
		return
	}

	rec := &models.ViewpointRecord{
		ID:              req.ViewpointID,
		Name:            req.ViewpointName,
		Status:          models.StatusRequested,
		BucketName:      req.BucketName,
		ObjectKey:       req.ObjectKey,
		TileSize:        req.TileSize,
		RangeAdjustment: req.RangeAdjustment,
		ExpireTime:      s.now().Add(time.Duration(s.cfg.RecordTTLDays) * 24 * time.Hour).Unix(),
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			if existing, getErr := s.store.Get(ctx, rec.ID); getErr == nil {
				c.JSON(http.StatusAccepted, existing)
				return
			}
		}
		s.writeError(c, "create", err)
		return
	}

	if err := s.queue.Enqueue(ctx, rec, uuid.NewString()); err != nil {
		// The record exists but no worker will pick it up until the request
		// is resubmitted. Surface it loudly instead of rolling back.
		s.log.Error().Err(err).Str("viewpoint_id", rec.ID).Msgf("%s: enqueue failed after insert", op)
	}

	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleUpdateViewpoint(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.UpdateViewpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update request: " + err.Error()})
		return
	}

	if !req.RangeAdjustment.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "range_adjustment must be one of NONE, MINMAX, DRA"})
		return
	}

	rec, err := s.store.Get(ctx, req.ViewpointID)
	if err != nil {
		s.writeError(c, models.OpUpdate, err)
		return
	}
	if err := models.CheckOperation(rec.Status, models.OpUpdate); err != nil {
		s.writeError(c, models.OpUpdate, err)
		return
	}

	restore := rec.Status
	if rec.Status == models.StatusReady {
		// Readers racing this update observe UPDATING, which still admits
		// pixel operations.
		rec.Status = models.StatusUpdating
		if err := s.store.Update(ctx, rec); err != nil {
			s.writeError(c, models.OpUpdate, err)
			return
		}
		restore = models.StatusReady
	}

	rec.Name = req.ViewpointName
	rec.TileSize = req.TileSize
	rec.RangeAdjustment = req.RangeAdjustment
	rec.Status = restore

	if err := s.store.Update(ctx, rec); err != nil {
		s.writeError(c, models.OpUpdate, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDescribeViewpoint(c *gin.Context) {
	rec, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, models.OpDescribe, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDeleteViewpoint(c *gin.Context) {
	rec := s.lookup(c, models.OpDelete)
	if rec == nil {
		return
	}

	if rec.LocalPath != "" {
		if err := os.RemoveAll(filepath.Dir(rec.LocalPath)); err != nil {
			s.log.Warn().Err(err).Str("viewpoint_id", rec.ID).Msg("removing cached imagery")
		}
	}

	rec.Status = models.StatusDeleted
	rec.LocalPath = ""
	rec.ExpireTime = s.now().Add(time.Duration(s.cfg.RecordTTLDays) * 24 * time.Hour).Unix()
	if err := s.store.Update(c.Request.Context(), rec); err != nil {
		s.writeError(c, models.OpDelete, err)
		return
	}
	c.Status(http.StatusNoContent)
}
