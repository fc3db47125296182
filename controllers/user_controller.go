package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/middleware"
	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/smartfix-dev/smartfix-api/services"
)

// CreateUserRequest represents the request body for an administrator creating an account
type CreateUserRequest struct {
	Name       string       `json:"name" binding:"required"`
	Email      string       `json:"email" binding:"required,email"`
	Password   string       `json:"password" binding:"required,min=6"`
	Role       *models.Role `json:"role" binding:"required"`
	IsVerified *bool        `json:"isVerified"`
	Phone      *string      `json:"phone"`
}

func withAvatarURLs(c *gin.Context, users []models.User) {
	for i := range users {
		withAvatarURL(c, &users[i])
	}
}

// ListUsers handles GET /api/v1/users - every account, admin only
func ListUsers(c *gin.Context) {
	users, err := identityStore().ListUsers(c.Request.Context(), middleware.GetCaller(c))
	if err != nil {
		respondError(c, err)
		return
	}

	withAvatarURLs(c, users)
	respondOK(c, http.StatusOK, users)
}

// ListTechnicians handles GET /api/v1/users/technicians
func ListTechnicians(c *gin.Context) {
	users, err := identityStore().ListTechnicians(c.Request.Context(), middleware.GetCaller(c))
	if err != nil {
		respondError(c, err)
		return
	}

	withAvatarURLs(c, users)
	respondOK(c, http.StatusOK, users)
}

// GetUser handles GET /api/v1/users/:id
func GetUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	user, err := identityStore().GetUser(c.Request.Context(), middleware.GetCaller(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	withAvatarURL(c, user)
	respondOK(c, http.StatusOK, user)
}

// CreateUser handles POST /api/v1/users - creates an account with any role
func CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	// Admin-created accounts are verified unless stated otherwise
	verified := true
	if req.IsVerified != nil {
		verified = *req.IsVerified
	}

	user, err := identityStore().CreateUser(c.Request.Context(), middleware.GetCaller(c), services.CreateUserInput{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		Role:       *req.Role,
		IsVerified: verified,
		Phone:      req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, user)
}

// UpdateUser handles PUT /api/v1/users/:id - partial profile update
func UpdateUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var patch services.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := identityStore().UpdateUser(c.Request.Context(), middleware.GetCaller(c), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}

	withAvatarURL(c, user)
	respondOK(c, http.StatusOK, user)
}

// DeleteUser handles DELETE /api/v1/users/:id
func DeleteUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	caller := middleware.GetCaller(c)
	store := identityStore()
	// Read the avatar first so the stored image can be removed with the account
	user, err := store.GetUser(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := store.DeleteUser(c.Request.Context(), caller, id); err != nil {
		respondError(c, err)
		return
	}

	if user.AvatarRef != nil {
		if images := services.GetImageService(); images != nil {
			if err := images.DeleteImage(c.Request.Context(), *user.AvatarRef); err != nil {
				log.Warn().Err(err).Uint("user_id", id).Msg("failed to remove avatar of deleted user")
			}
		}
	}

	respondOK(c, http.StatusOK, gin.H{"id": id})
}
