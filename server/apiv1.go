package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/askmatch/askmatch/engine"
)

// reloadTimeout bounds one administrative reload, including the knowledge
// directory read.
const reloadTimeout = 30 * time.Second

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Answer    string  `json:"answer"`
	Score     float64 `json:"score,omitempty"`
	Matched   bool    `json:"matched"`
	SessionID string  `json:"session_id,omitempty"`
}

func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	// A session is minted on first contact so follow-up questions can lean
	// on conversation context.
	sessionID := req.SessionID
	if sessionID == "" && s.Profile.ContextAugment {
		sessionID = uuid.NewString()
	}

	result := s.Engine.Answer(req.Message, sessionID)
	return c.JSON(http.StatusOK, chatResponse{
		Answer:    result.Answer,
		Score:     result.Score,
		Matched:   result.Matched,
		SessionID: sessionID,
	})
}

type suggestResponse struct {
	Suggestions []engine.Suggestion `json:"suggestions"`
}

func (s *Server) suggest(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = parsed
	}

	suggestions := s.Engine.Suggest(c.QueryParam("q"), limit)
	if suggestions == nil {
		suggestions = []engine.Suggestion{}
	}
	return c.JSON(http.StatusOK, suggestResponse{Suggestions: suggestions})
}

type reloadResponse struct {
	Status         string `json:"status"`
	QuestionsCount int    `json:"questions_count"`
}

func (s *Server) reload(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), reloadTimeout)
	defer cancel()

	count, err := s.Engine.Reload(ctx)
	if err != nil {
		s.logger.Error("reload failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "knowledge base reload failed; previous snapshot kept",
		})
	}
	return c.JSON(http.StatusOK, reloadResponse{Status: "ok", QuestionsCount: count})
}

type healthResponse struct {
	Status         string `json:"status"`
	QuestionsCount int    `json:"questions_count"`
	IndexReady     bool   `json:"index_ready"`
}

func (s *Server) health(c echo.Context) error {
	questions, ready := s.Engine.Health()
	resp := healthResponse{Status: "ok", QuestionsCount: questions, IndexReady: ready}
	if !ready {
		resp.Status = "not_ready"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
