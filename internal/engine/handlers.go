package engine

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sentra-auth/sentra/internal/behavior"
	"github.com/sentra-auth/sentra/internal/credential"
	"github.com/sentra-auth/sentra/internal/session"
	"github.com/sentra-auth/sentra/internal/validation"
)

// Handler provides HTTP handlers for the trust pipeline. All routes assume
// the session middleware already ran.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new pipeline handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes sets up the session-scoped pipeline routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/events", h.SubmitEvents)
	r.GET("/events", h.EventHistory)
	r.GET("/trust", h.TrustStatus)
	r.POST("/trust/evaluate", h.ForceEvaluate)
	r.POST("/stepup/begin", h.BeginStepUp)
	r.POST("/stepup/complete", h.CompleteStepUp)
	r.GET("/alerts", h.Alerts)
}

type eventInput struct {
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp float64                `json:"timestamp"`
}

type submitEventsRequest struct {
	Events []eventInput `json:"events"`
}

// SubmitEvents handles POST /api/v1/events
func (h *Handler) SubmitEvents(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		internalError(c, "No session in context")
		return
	}

	var req submitEventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if len(req.Events) == 0 {
		badRequest(c, "Batch must contain at least one event")
		return
	}
	if len(req.Events) > validation.MaxBatchEvents {
		badRequest(c, "Batch exceeds maximum size")
		return
	}

	events := make([]*behavior.Event, 0, len(req.Events))
	for _, in := range req.Events {
		t := behavior.EventType(in.Type)
		if t != behavior.EventKeystroke && t != behavior.EventMouse {
			badRequest(c, "Unknown event type: "+in.Type)
			return
		}
		events = append(events, &behavior.Event{
			Type:      t,
			Payload:   in.Payload,
			Timestamp: in.Timestamp,
		})
	}

	result, err := h.engine.SubmitEventBatch(c.Request.Context(), sess, events)
	if err != nil {
		if sessionTerminal(c, err) {
			return
		}
		internalError(c, "Failed to process batch")
		return
	}
	c.JSON(http.StatusOK, result)
}

// EventHistory handles GET /api/v1/events
func (h *Handler) EventHistory(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		internalError(c, "No session in context")
		return
	}
	events, err := h.engine.EventHistory(c.Request.Context(), sess.ID, queryLimit(c, 100))
	if err != nil {
		internalError(c, "Failed to load events")
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// TrustStatus handles GET /api/v1/trust
func (h *Handler) TrustStatus(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		internalError(c, "No session in context")
		return
	}
	s, decision, err := h.engine.TrustStatus(c.Request.Context(), sess.ID)
	if err != nil {
		internalError(c, "Failed to load trust status")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId":     s.ID,
		"trustScore":    s.TrustScore,
		"status":        s.Status,
		"action":        decision.Action,
		"message":       decision.Message,
		"requireStepUp": decision.RequireStepUp,
	})
}

// ForceEvaluate handles POST /api/v1/trust/evaluate
func (h *Handler) ForceEvaluate(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		internalError(c, "No session in context")
		return
	}
	result, err := h.engine.ForceEvaluate(c.Request.Context(), sess)
	if err != nil {
		if sessionTerminal(c, err) {
			return
		}
		internalError(c, "Failed to evaluate")
		return
	}
	c.JSON(http.StatusOK, result)
}

// BeginStepUp handles POST /api/v1/stepup/begin
func (h *Handler) BeginStepUp(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		internalError(c, "No session in context")
		return
	}
	nonce, err := h.engine.BeginStepUp(c.Request.Context(), sess)
	if err != nil {
		internalError(c, "Failed to begin step-up")
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": nonce})
}

type completeStepUpRequest struct {
	Signature string `json:"signature"`
	Counter   uint32 `json:"counter"`
}

// CompleteStepUp handles POST /api/v1/stepup/complete
func (h *Handler) CompleteStepUp(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		internalError(c, "No session in context")
		return
	}

	var req completeStepUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if errs := validation.Validate(
		validation.Required("signature", req.Signature),
		validation.ValidBase64("signature", req.Signature),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
		})
		return
	}

	sig, _ := base64.StdEncoding.DecodeString(req.Signature)
	err := h.engine.CompleteStepUp(c.Request.Context(), sess, sig, req.Counter)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoStepUpPending):
			c.JSON(http.StatusGone, gin.H{
				"error":   "challenge_expired",
				"message": "No step-up challenge pending",
			})
		case errors.Is(err, credential.ErrVerificationFailed):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "verification_failed",
				"message": "Step-up verification failed",
			})
		case errors.Is(err, session.ErrRevoked), errors.Is(err, session.ErrExpired):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "session_inactive",
				"message": "Session is no longer active",
			})
		default:
			internalError(c, "Failed to complete step-up")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "verified",
		"trustScore": session.InitialTrustScore,
	})
}

// Alerts handles GET /api/v1/alerts
func (h *Handler) Alerts(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		internalError(c, "No session in context")
		return
	}
	list, err := h.engine.SessionAlerts(c.Request.Context(), sess.ID, queryLimit(c, 50))
	if err != nil {
		internalError(c, "Failed to load alerts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": list})
}

func queryLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 1000 {
		return fallback
	}
	return n
}

// sessionTerminal reports whether the error means the session was
// deactivated out from under the request, and answers 401 if so.
func sessionTerminal(c *gin.Context, err error) bool {
	if errors.Is(err, session.ErrRevoked) || errors.Is(err, session.ErrExpired) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "session_inactive",
			"message": "Session is no longer active",
		})
		return true
	}
	return false
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": msg,
	})
}

func internalError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": msg,
	})
}
