package controllers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/middleware"
	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/smartfix-dev/smartfix-api/services"
	"github.com/smartfix-dev/smartfix-api/utils"
)

// uploadDir is where locally stored avatars live
func uploadDir() string {
	if local, ok := services.GetImageService().(*services.LocalImageService); ok {
		return local.Dir()
	}
	return utils.UploadDir
}

// withAvatarURL resolves the user's avatar reference into a fetchable URL
func withAvatarURL(c *gin.Context, user *models.User) {
	if user == nil || user.AvatarRef == nil || *user.AvatarRef == "" {
		return
	}
	images := services.GetImageService()
	if images == nil {
		return
	}
	url, err := images.GetImageURL(c.Request.Context(), *user.AvatarRef)
	if err != nil {
		log.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to resolve avatar URL")
		return
	}
	user.AvatarURL = &url
}

// UploadAvatar handles POST /api/v1/users/:id/avatar - stores a new avatar for the user
func UploadAvatar(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	caller := middleware.GetCaller(c)
	if err := services.AuthorizeUserUpdate(caller, id, false); err != nil {
		respondError(c, err)
		return
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", "An image file is required in the 'avatar' field")
		return
	}

	images := services.GetImageService()
	if images == nil {
		respondErrorCode(c, http.StatusServiceUnavailable, "TRANSIENT_ERROR", "Image storage is not configured")
		return
	}

	key, err := images.UploadImage(c.Request.Context(), fileHeader)
	if err != nil {
		if uploadErr, ok := err.(*utils.FileUploadError); ok {
			respondErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", uploadErr.Message)
			return
		}
		log.Error().Err(err).Msg("failed to store avatar")
		respondErrorCode(c, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to store the image")
		return
	}

	user, previous, err := identityStore().SetAvatar(c.Request.Context(), caller, id, key)
	if err != nil {
		if delErr := images.DeleteImage(c.Request.Context(), key); delErr != nil {
			log.Warn().Err(delErr).Str("key", key).Msg("failed to remove orphaned avatar")
		}
		respondError(c, err)
		return
	}
	if previous != nil && *previous != key {
		if delErr := images.DeleteImage(c.Request.Context(), *previous); delErr != nil {
			log.Warn().Err(delErr).Str("key", *previous).Msg("failed to remove previous avatar")
		}
	}

	withAvatarURL(c, user)
	respondOK(c, http.StatusOK, user)
}

// GetUploadedImage handles GET /api/v1/uploads/:filename - serves locally stored avatars
func GetUploadedImage(c *gin.Context) {
	filename := c.Param("filename")

	// Validate filename is not empty
	if filename == "" {
		respondErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "Filename is required")
		return
	}

	// Security: Prevent directory traversal attacks
	if strings.Contains(filename, "..") || strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		respondErrorCode(c, http.StatusBadRequest, "INVALID_FILENAME", "Invalid filename")
		return
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, allowed := utils.AllowedImageFormats[ext]; !allowed {
		respondErrorCode(c, http.StatusBadRequest, "INVALID_FILE_TYPE", "Only .png, .jpg and .jpeg files are supported")
		return
	}

	filePath := filepath.Join(uploadDir(), filename)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		respondErrorCode(c, http.StatusNotFound, "FILE_NOT_FOUND", "Image not found")
		return
	}

	c.Header("Content-Type", utils.ImageContentType(filename))
	c.Header("Cache-Control", "public, max-age=86400") // Cache for 24 hours
	c.File(filePath)
}
