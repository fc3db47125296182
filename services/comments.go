package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/models"
	"gorm.io/gorm"
)

// MaxCommentLength limits a single comment's text
const MaxCommentLength = 4000

// CommentLog stores annotations on repair requests. Reading and appending
// require that the caller can see the parent request.
type CommentLog struct {
	db      *gorm.DB
	timeout time.Duration
	now     func() time.Time
}

// NewCommentLog creates a comment log over db
func NewCommentLog(db *gorm.DB, timeout time.Duration) *CommentLog {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &CommentLog{db: db, timeout: timeout, now: func() time.Time { return time.Now().UTC() }}
}

func validateCommentText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ValidationError("text is required")
	}
	if len([]rune(text)) > MaxCommentLength {
		return "", ValidationError("text must be at most %d characters", MaxCommentLength)
	}
	return text, nil
}

func visibleRequest(tx *gorm.DB, caller Caller, requestID uint) error {
	var req models.RepairRequest
	if err := tx.First(&req, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundError("repair request %d not found", requestID)
		}
		return err
	}
	if !CanView(caller, &req) {
		return NotFoundError("repair request %d not found", requestID)
	}
	return nil
}

// List returns the comments of a visible request, oldest first
func (l *CommentLog) List(ctx context.Context, caller Caller, requestID uint) ([]models.CommentView, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	db := l.db.WithContext(ctx)
	if err := visibleRequest(db, caller, requestID); err != nil {
		return nil, classifyStoreError("list comments", err)
	}

	comments := []models.CommentView{}
	err := commentViewQuery(db).
		Where("comments.repair_request_id = ?", requestID).
		Order("comments.date ASC, comments.id ASC").
		Scan(&comments).Error
	if err != nil {
		return nil, classifyStoreError("list comments", err)
	}
	return comments, nil
}

// Append adds a comment authored by the caller
func (l *CommentLog) Append(ctx context.Context, caller Caller, requestID uint, text string) (*models.CommentView, error) {
	if !caller.IsAuthenticated() {
		return nil, UnauthorizedError("authentication required")
	}
	text, err := validateCommentText(text)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	authorID := caller.UserID
	comment := models.Comment{
		RepairRequestID: requestID,
		AuthorID:        &authorID,
		Text:            text,
		Date:            l.now(),
	}
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := visibleRequest(tx, caller, requestID); err != nil {
			return err
		}
		return tx.Create(&comment).Error
	})
	if err != nil {
		return nil, classifyStoreError("add comment", err)
	}

	log.Debug().Uint("comment_id", comment.ID).Uint("request_id", requestID).Msg("comment added")
	return &models.CommentView{Comment: comment, AuthorName: caller.Name}, nil
}

// Edit replaces the text of a comment; author or admin only
func (l *CommentLog) Edit(ctx context.Context, caller Caller, id uint, text string) (*models.Comment, error) {
	if !caller.IsAuthenticated() {
		return nil, UnauthorizedError("authentication required")
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var comment models.Comment
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&comment, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFoundError("comment %d not found", id)
			}
			return err
		}
		if err := AuthorizeCommentEdit(caller, &comment); err != nil {
			return err
		}
		cleaned, err := validateCommentText(text)
		if err != nil {
			return err
		}
		comment.Text = cleaned
		return tx.Model(&comment).Update("text", cleaned).Error
	})
	if err != nil {
		return nil, classifyStoreError("edit comment", err)
	}
	return &comment, nil
}

// Delete removes a comment; admins only
func (l *CommentLog) Delete(ctx context.Context, caller Caller, id uint) error {
	if err := AuthorizeDelete(caller); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res := l.db.WithContext(ctx).Delete(&models.Comment{}, id)
	if res.Error != nil {
		return classifyStoreError("delete comment", res.Error)
	}
	if res.RowsAffected == 0 {
		return NotFoundError("comment %d not found", id)
	}
	return nil
}
