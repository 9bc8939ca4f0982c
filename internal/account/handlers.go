package account

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentra-auth/sentra/internal/credential"
	"github.com/sentra-auth/sentra/internal/session"
	"github.com/sentra-auth/sentra/internal/validation"
)

// Handler provides HTTP handlers for registration, login, and logout.
type Handler struct {
	service *Service
}

// NewHandler creates a new account handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the public auth routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/auth/register/begin", h.BeginRegistration)
	r.POST("/auth/register/complete", h.CompleteRegistration)
	r.POST("/auth/login/begin", h.BeginLogin)
	r.POST("/auth/login/complete", h.CompleteLogin)
}

// RegisterSessionRoutes sets up routes behind the session middleware.
func (h *Handler) RegisterSessionRoutes(r *gin.RouterGroup) {
	r.POST("/auth/logout", h.Logout)
	r.GET("/auth/session", h.SessionInfo)
}

type beginRequest struct {
	Username string `json:"username"`
}

// BeginRegistration handles POST /api/v1/auth/register/begin
func (h *Handler) BeginRegistration(c *gin.Context) {
	var req beginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if errs := validation.Validate(
		validation.Required("username", req.Username),
		validation.ValidUsername("username", req.Username),
	); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	nonce, err := h.service.BeginRegistration(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, credential.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "username_taken",
				"message": "Username already registered",
			})
			return
		}
		internalError(c, "Failed to begin registration")
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": nonce})
}

type completeRegistrationRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Key         string `json:"key"`       // base64 authenticator key
	Signature   string `json:"signature"` // base64 response over the challenge
}

// CompleteRegistration handles POST /api/v1/auth/register/complete
func (h *Handler) CompleteRegistration(c *gin.Context) {
	var req completeRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if errs := validation.Validate(
		validation.Required("username", req.Username),
		validation.ValidUsername("username", req.Username),
		validation.Required("key", req.Key),
		validation.ValidBase64("key", req.Key),
		validation.Required("signature", req.Signature),
		validation.ValidBase64("signature", req.Signature),
		validation.MaxLength("displayName", req.DisplayName, 128),
	); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	key, _ := base64.StdEncoding.DecodeString(req.Key)
	sig, _ := base64.StdEncoding.DecodeString(req.Signature)
	displayName := validation.SanitizeString(req.DisplayName, 128)
	if displayName == "" {
		displayName = req.Username
	}

	user, err := h.service.CompleteRegistration(c.Request.Context(), req.Username, displayName, key, sig)
	if err != nil {
		switch {
		case errors.Is(err, ErrChallengeExpired):
			c.JSON(http.StatusGone, gin.H{
				"error":   "challenge_expired",
				"message": "Challenge expired or already used",
			})
		case errors.Is(err, credential.ErrVerificationFailed):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "verification_failed",
				"message": "Credential verification failed",
			})
		case errors.Is(err, credential.ErrUserExists):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "username_taken",
				"message": "Username already registered",
			})
		default:
			internalError(c, "Failed to complete registration")
		}
		return
	}
	c.JSON(http.StatusCreated, user)
}

// BeginLogin handles POST /api/v1/auth/login/begin
func (h *Handler) BeginLogin(c *gin.Context) {
	var req beginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if errs := validation.Validate(
		validation.Required("username", req.Username),
		validation.ValidUsername("username", req.Username),
	); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	nonce, err := h.service.BeginLogin(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, credential.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "unknown_user",
				"message": "No such user",
			})
			return
		}
		internalError(c, "Failed to begin login")
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": nonce})
}

type completeLoginRequest struct {
	Username  string `json:"username"`
	Signature string `json:"signature"`
	Counter   uint32 `json:"counter"`
}

// CompleteLogin handles POST /api/v1/auth/login/complete
func (h *Handler) CompleteLogin(c *gin.Context) {
	var req completeLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if errs := validation.Validate(
		validation.Required("username", req.Username),
		validation.Required("signature", req.Signature),
		validation.ValidBase64("signature", req.Signature),
	); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	sig, _ := base64.StdEncoding.DecodeString(req.Signature)
	sess, token, err := h.service.CompleteLogin(c.Request.Context(), req.Username, sig, req.Counter)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "unknown_user",
				"message": "No such user",
			})
		case errors.Is(err, ErrChallengeExpired):
			c.JSON(http.StatusGone, gin.H{
				"error":   "challenge_expired",
				"message": "Challenge expired or already used",
			})
		case errors.Is(err, credential.ErrVerificationFailed):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "verification_failed",
				"message": "Credential verification failed",
			})
		default:
			internalError(c, "Failed to complete login")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"session": sess,
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	s, ok := session.FromContext(c)
	if !ok {
		internalError(c, "No session in context")
		return
	}
	if err := h.service.Logout(c.Request.Context(), s.ID); err != nil {
		internalError(c, "Failed to log out")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// SessionInfo handles GET /api/v1/auth/session
func (h *Handler) SessionInfo(c *gin.Context) {
	s, ok := session.FromContext(c)
	if !ok {
		internalError(c, "No session in context")
		return
	}
	c.JSON(http.StatusOK, s)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": msg,
	})
}

func validationFailed(c *gin.Context, errs validation.ValidationErrors) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_failed",
		"message": errs.Error(),
	})
}

func internalError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": msg,
	})
}
