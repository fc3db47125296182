package models

import "time"

// Comment is an annotation appended to a repair request
type Comment struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	RepairRequestID uint           `gorm:"not null;index" json:"repairRequestId"`
	RepairRequest   *RepairRequest `gorm:"foreignKey:RepairRequestID;constraint:OnDelete:CASCADE" json:"-"`
	AuthorID        *uint          `gorm:"index" json:"authorUserId"` // cleared when the author is deleted
	Author          *User          `gorm:"foreignKey:AuthorID;constraint:OnDelete:SET NULL" json:"-"`
	Text            string         `gorm:"type:text;not null" json:"text"`
	Date            time.Time      `gorm:"index" json:"date"`
}

// TableName specifies the table name for the Comment model
func (Comment) TableName() string {
	return "comments"
}

// CommentView adds the author's current display name
type CommentView struct {
	Comment
	AuthorName string `json:"authorName"`
}
