package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/thereayou/letstalk/internal/database"
	"github.com/thereayou/letstalk/internal/handlers/dto"
	"github.com/thereayou/letstalk/internal/metrics"
	"github.com/thereayou/letstalk/internal/middleware"
	"github.com/thereayou/letstalk/internal/models"
	"github.com/thereayou/letstalk/pkg/auth"
)

// Revoker invalidates a token before it expires.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

type AuthHandler struct {
	db         *database.Database
	jwtManager *auth.JWTManager
	revoker    Revoker
	metrics    *metrics.Metrics
}

func NewAuthHandler(db *database.Database, jwtMgr *auth.JWTManager, revoker Revoker, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{db: db, jwtManager: jwtMgr, revoker: revoker, metrics: m}
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot hash password"})
		return
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := h.db.SaveUser(c.Request.Context(), user); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
		return
	}
	h.metrics.IncSignup()

	h.respondWithToken(c, http.StatusCreated, user)
}

// Signin issues a token and refreshes last_seen.
func (h *AuthHandler) Signin(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.db.FindUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load user"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if err := h.db.UpdateLastSeen(c.Request.Context(), user.ID.String()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update last seen"})
		return
	}
	h.metrics.IncLogin()

	h.respondWithToken(c, http.StatusOK, user)
}

// Logout blacklists the caller's token until it expires.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString(middleware.TokenKey)
	err := h.revoker.Revoke(c.Request.Context(), token)
	switch {
	case errors.Is(err, auth.ErrRevocationUnavailable):
		c.JSON(http.StatusNotImplemented, gin.H{"error": "logout is not available on this server"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not revoke token"})
		return
	}
	c.Status(http.StatusOK)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, err := h.jwtManager.Generate(user.ID.String(), user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}
	claims, err := h.jwtManager.Verify(token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}

	c.JSON(status, dto.AuthResponse{
		Uid:            user.ID.String(),
		Username:       user.Username,
		Token:          token,
		TokenExpiresAt: claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
	})
}
