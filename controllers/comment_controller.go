package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smartfix-dev/smartfix-api/middleware"
)

// AddCommentRequest represents the request body for commenting on a repair request
type AddCommentRequest struct {
	RepairRequestID uint   `json:"repairRequestId" binding:"required"`
	Text            string `json:"text" binding:"required"`
}

// EditCommentRequest represents the request body for editing a comment
type EditCommentRequest struct {
	Text string `json:"text" binding:"required"`
}

// ListComments handles GET /api/v1/comments/:id - the comments of request :id, oldest first
func ListComments(c *gin.Context) {
	requestID, ok := idParam(c, "id")
	if !ok {
		return
	}

	comments, err := commentLog().List(c.Request.Context(), middleware.GetCaller(c), requestID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, comments)
}

// AddComment handles POST /api/v1/comments
func AddComment(c *gin.Context) {
	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	comment, err := commentLog().Append(c.Request.Context(), middleware.GetCaller(c), req.RepairRequestID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, comment)
}

// EditComment handles PUT /api/v1/comments/:id
func EditComment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req EditCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	comment, err := commentLog().Edit(c.Request.Context(), middleware.GetCaller(c), id, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, comment)
}

// DeleteComment handles DELETE /api/v1/comments/:id
func DeleteComment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := commentLog().Delete(c.Request.Context(), middleware.GetCaller(c), id); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{"id": id})
}
