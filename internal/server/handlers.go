package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/teangalab/beal/internal/conversation"
	"github.com/teangalab/beal/internal/diarize"
	"github.com/teangalab/beal/internal/record"
)

// userID extracts the acting user from the X-User-ID header. Authentication
// itself happens upstream; the engine only needs a stable identity.
func userID(c *gin.Context) (string, bool) {
	id := c.GetHeader("X-User-ID")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return "", false
	}
	return id, true
}

func (s *Server) writeSessionResponse(c *gin.Context, resp conversation.Response, err error) {
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		s.log.Error("session operation failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleDiarizationWebhook ingests one diarization callback. A rejected
// payload maps to 422; the reconciler never errors.
func (s *Server) handleDiarizationWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ok := s.opts.Reconciler.HandleWebhook(c.Request.Context(), c.Param("id"), body)
	s.opts.Metrics.RecordWebhookEvent(c.Request.Context(), ok)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": "rejected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListRecordings(c *gin.Context) {
	recordings, err := s.opts.Store.ListRecordings(c.Request.Context())
	if err != nil {
		s.log.Error("list recordings failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": recordings})
}

// handleRandomRecording picks one recording that still has unconfirmed
// entries, uniformly at random. 404 when everything is reviewed.
func (s *Server) handleRandomRecording(c *gin.Context) {
	r, ok, err := s.opts.Queue.RandomPendingRecording(c.Request.Context())
	if err != nil {
		s.log.Error("random recording failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "nothing left to review"})
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleGetRecording(c *gin.Context) {
	r, err := s.opts.Store.GetRecording(c.Request.Context(), c.Param("id"))
	if errors.Is(err, record.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "recording not found"})
		return
	}
	if err != nil {
		s.log.Error("get recording failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleListEntries(c *gin.Context) {
	filter := record.EntryFilter{RecordingID: c.Param("id")}
	if acc := c.Query("accuracy"); acc != "" {
		status := record.AccuracyStatus(acc)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid accuracy filter"})
			return
		}
		filter.Accuracy = status
	}

	entries, err := s.opts.Store.ListEntries(c.Request.Context(), filter)
	if err != nil {
		s.log.Error("list entries failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// handleImportVTT bulk-imports WebVTT cues as unconfirmed entries.
func (s *Server) handleImportVTT(c *gin.Context) {
	recordingID := c.Param("id")
	if _, err := s.opts.Store.GetRecording(c.Request.Context(), recordingID); err != nil {
		if errors.Is(err, record.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recording not found"})
			return
		}
		s.log.Error("import vtt failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	created, err := record.ImportWebVTT(c.Request.Context(), s.opts.Store, recordingID, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created})
}

type mergeRequest struct {
	TargetID string `json:"target_id"`
}

// handleMergeSpeakers reassigns all of a speaker's entries to another
// speaker in one atomic update.
func (s *Server) handleMergeSpeakers(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TargetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_id is required"})
		return
	}

	moved, err := s.opts.Store.MergeSpeakers(c.Request.Context(), c.Param("id"), req.TargetID)
	if errors.Is(err, record.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "speaker not found"})
		return
	}
	if err != nil {
		s.log.Error("merge speakers failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"moved": moved})
}

func (s *Server) handleMergeSuggestions(c *gin.Context) {
	limit := 5
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	candidates, err := diarize.SuggestMerge(c.Request.Context(), s.opts.Store, c.Param("id"), limit)
	if errors.Is(err, record.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "speaker not found"})
		return
	}
	if err != nil {
		s.log.Error("merge suggestions failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

func (s *Server) handleGetSession(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	sess, err := s.opts.Manager.Session(c.Request.Context(), uid)
	if errors.Is(err, record.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session yet"})
		return
	}
	if err != nil {
		s.log.Error("get session failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

type sessionInputRequest struct {
	// Input is free text or a server-local path to recorded audio.
	Input string `json:"input"`
}

func (s *Server) handleSessionInput(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req sessionInputRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Input == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "input is required"})
		return
	}
	resp, err := s.opts.Manager.Submit(c.Request.Context(), uid, req.Input)
	s.writeSessionResponse(c, resp, err)
}

func (s *Server) handleStartRecording(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	resp, err := s.opts.Manager.StartRecording(c.Request.Context(), uid, c.Param("id"))
	s.writeSessionResponse(c, resp, err)
}

func (s *Server) handleSelectRandom(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	resp, err := s.opts.Manager.SelectRandom(c.Request.Context(), uid)
	s.writeSessionResponse(c, resp, err)
}

func (s *Server) handleConfirm(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	resp, err := s.opts.Manager.Submit(c.Request.Context(), uid, "confirm")
	s.writeSessionResponse(c, resp, err)
}

func (s *Server) handlePlayback(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	resp, err := s.opts.Manager.Submit(c.Request.Context(), uid, "play")
	s.writeSessionResponse(c, resp, err)
}

func (s *Server) handleAdvance(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	resp, err := s.opts.Manager.Advance(c.Request.Context(), uid)
	s.writeSessionResponse(c, resp, err)
}

func (s *Server) handleReset(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	resp, err := s.opts.Manager.Reset(c.Request.Context(), uid)
	s.writeSessionResponse(c, resp, err)
}
