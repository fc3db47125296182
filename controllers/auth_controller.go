package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/middleware"
	"github.com/smartfix-dev/smartfix-api/services"
)

// RegisterRequest represents the request body for self-registration
type RegisterRequest struct {
	Name     string  `json:"name" binding:"required"`
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required,min=6"`
	Phone    *string `json:"phone"`
}

// LoginRequest represents the request body for logging in
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles POST /api/v1/auth/register - creates an unverified client account
func Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := identityStore().Register(c.Request.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, user)
}

// Login handles POST /api/v1/auth/login - verifies credentials and issues a bearer token
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := identityStore().Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	withAvatarURL(c, result.User)
	respondOK(c, http.StatusOK, result)
}

// Logout handles POST /api/v1/auth/logout - revokes the presented token
func Logout(c *gin.Context) {
	jti, expiresAt, err := middleware.GetTokenID(c)
	if err != nil {
		respondErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract token information")
		return
	}

	if err := services.GetDenylist().Revoke(c.Request.Context(), jti, expiresAt); err != nil {
		log.Error().Err(err).Msg("failed to revoke token")
		respondErrorCode(c, http.StatusServiceUnavailable, "TRANSIENT_ERROR", "Could not log out right now, try again")
		return
	}

	respondOK(c, http.StatusOK, gin.H{"loggedOut": true})
}

// Me handles GET /api/v1/auth/me - returns the caller's profile
func Me(c *gin.Context) {
	caller := middleware.GetCaller(c)
	user, err := identityStore().GetUser(c.Request.Context(), caller, caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	withAvatarURL(c, user)
	respondOK(c, http.StatusOK, user)
}
