package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/logger"
	"github.com/vityasyyy/dalam-kemasan/internal/model"
	"github.com/vityasyyy/dalam-kemasan/internal/query"
	"github.com/vityasyyy/dalam-kemasan/internal/queue"
)

const ownerHeader = "X-Owner-Id"

type createRequest struct {
	Kind      model.Kind      `json:"kind" binding:"required"`
	Name      string          `json:"name" binding:"required"`
	ParentID  string          `json:"parentId"`
	OwnerID   string          `json:"ownerId"`
	MediaType model.MediaType `json:"mediaType"`
	SizeBytes int64           `json:"sizeBytes"`
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

type moveRequest struct {
	ParentID string `json:"parentId"`
}

type flagRequest struct {
	Value *bool `json:"value" binding:"required"`
}

type idsResponse struct {
	IDs []string `json:"ids"`
}

type listResponse struct {
	Items []query.Item `json:"items"`
	Count int          `json:"count"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "revision": s.store.Revision()})
}

// viewer resolves who is asking: the X-Owner-Id header, else the configured
// default owner.
func (s *Server) viewer(c *gin.Context) string {
	if id := c.GetHeader(ownerHeader); id != "" {
		return id
	}
	return s.cfg.DefaultOwner
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	owner := req.OwnerID
	if owner == "" {
		owner = s.viewer(c)
	}
	e, err := s.store.Create(drive.CreateInput{
		Kind:      req.Kind,
		Name:      req.Name,
		ParentID:  req.ParentID,
		OwnerID:   owner,
		MediaType: req.MediaType,
		SizeBytes: req.SizeBytes,
	})
	if respondDriveError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, s.engine.Describe(e))
}

func (s *Server) handleGet(c *gin.Context) {
	e, err := s.store.Get(c.Param("id"))
	if respondDriveError(c, err) {
		return
	}
	c.JSON(http.StatusOK, s.engine.Describe(e))
}

func (s *Server) handleRename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	e, err := s.store.Rename(c.Param("id"), req.Name)
	if respondDriveError(c, err) {
		return
	}
	c.JSON(http.StatusOK, s.engine.Describe(e))
}

func (s *Server) handleMove(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	e, err := s.store.Move(c.Param("id"), req.ParentID)
	if respondDriveError(c, err) {
		return
	}
	c.JSON(http.StatusOK, s.engine.Describe(e))
}

func (s *Server) handleSetStarred(c *gin.Context) {
	s.handleFlag(c, s.store.SetStarred)
}

func (s *Server) handleSetShared(c *gin.Context) {
	s.handleFlag(c, s.store.SetShared)
}

func (s *Server) handleFlag(c *gin.Context, set func(string, bool) (model.Entity, error)) {
	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	e, err := set(c.Param("id"), *req.Value)
	if respondDriveError(c, err) {
		return
	}
	c.JSON(http.StatusOK, s.engine.Describe(e))
}

func (s *Server) handleOpen(c *gin.Context) {
	e, err := s.store.TouchOpened(c.Param("id"), s.now())
	if respondDriveError(c, err) {
		return
	}
	c.JSON(http.StatusOK, s.engine.Describe(e))
}

func (s *Server) handleTrash(c *gin.Context) {
	e, err := s.store.Trash(c.Param("id"), s.now())
	if respondDriveError(c, err) {
		return
	}
	c.JSON(http.StatusOK, s.engine.Describe(e))
}

func (s *Server) handleRestore(c *gin.Context) {
	e, err := s.store.Restore(c.Param("id"))
	if respondDriveError(c, err) {
		return
	}
	c.JSON(http.StatusOK, s.engine.Describe(e))
}

func (s *Server) handlePurge(c *gin.Context) {
	ids, err := s.store.Purge(c.Param("id"))
	if respondDriveError(c, err) {
		return
	}
	c.JSON(http.StatusOK, idsResponse{IDs: ids})
}

func (s *Server) handleEmptyTrash(c *gin.Context) {
	ids, err := s.store.EmptyTrash()
	if respondDriveError(c, err) {
		return
	}
	c.JSON(http.StatusOK, idsResponse{IDs: nonNil(ids)})
}

func (s *Server) handleRestoreAll(c *gin.Context) {
	ids, err := s.store.RestoreAll()
	if respondDriveError(c, err) {
		return
	}
	c.JSON(http.StatusOK, idsResponse{IDs: nonNil(ids)})
}

func (s *Server) handleSweep(c *gin.Context) {
	if s.queue != nil {
		if err := queue.EnqueueSweep(c.Request.Context(), s.queue, queue.SweepPayload{}); err != nil {
			logger.LogError(err, "enqueue sweep failed", nil)
			respondError(c, http.StatusInternalServerError, "failed to queue sweep")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
		return
	}
	ids, err := s.retention.Sweep(s.now())
	if respondDriveError(c, err) {
		return
	}
	c.JSON(http.StatusOK, idsResponse{IDs: nonNil(ids)})
}

func bindFilter(c *gin.Context) (query.Filter, bool) {
	var f query.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return f, false
	}
	return f, true
}

func (s *Server) handleChildren(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	items, err := s.engine.ListActiveChildren(c.Query("parent"), f)
	respondList(c, items, err)
}

func (s *Server) handleRecent(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	limit := s.cfg.Views.RecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	items, err := s.engine.ListRecent(limit, f)
	respondList(c, items, err)
}

func (s *Server) handleShared(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	viewer := c.Query("viewer")
	if viewer == "" {
		viewer = s.viewer(c)
	}
	items, err := s.engine.ListShared(viewer, f)
	respondList(c, items, err)
}

func (s *Server) handleStarred(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	items, err := s.engine.ListStarred(f)
	respondList(c, items, err)
}

func (s *Server) handleListTrash(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	items, err := s.retention.ListTrash(f)
	respondList(c, items, err)
}

func respondList(c *gin.Context, items []query.Item, err error) {
	if respondDriveError(c, err) {
		return
	}
	if items == nil {
		items = []query.Item{}
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Count: len(items)})
}

// respondDriveError writes the HTTP form of err and reports whether it did.
func respondDriveError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	var de *drive.Error
	switch {
	case errors.As(err, &de):
		respondError(c, statusFor(de.Kind), de.Error())
	case errors.Is(err, query.ErrInvalidFilter):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, drive.ErrHalted), errors.Is(err, drive.ErrInvariant):
		logger.LogError(err, "drive unavailable", map[string]interface{}{"path": c.FullPath()})
		respondError(c, http.StatusInternalServerError, "drive is halted")
	default:
		logger.LogError(err, "request failed", map[string]interface{}{"path": c.FullPath()})
		respondError(c, http.StatusInternalServerError, "internal error")
	}
	return true
}

func statusFor(kind drive.ErrorKind) int {
	switch kind {
	case drive.KindValidation:
		return http.StatusBadRequest
	case drive.KindNotFound:
		return http.StatusNotFound
	case drive.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
