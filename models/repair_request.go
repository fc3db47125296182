package models

import "time"

// RepairRequest is a client's device repair ticket
type RepairRequest struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ClientID         uint      `gorm:"not null;index" json:"clientId"`
	Client           *User     `gorm:"foreignKey:ClientID;constraint:OnDelete:CASCADE" json:"-"`
	TechnicianID     *uint     `gorm:"index" json:"technicianId"` // nullable, set when a technician claims or is assigned
	Technician       *User     `gorm:"foreignKey:TechnicianID;constraint:OnDelete:SET NULL" json:"-"`
	Device           string    `gorm:"not null" json:"device"`
	IssueDescription string    `gorm:"type:text;not null" json:"issueDescription"`
	Status           Status    `gorm:"size:20;not null;default:'New';index" json:"status"`
	Version          int       `gorm:"not null;default:1" json:"version"` // bumped on every update
	CreatedAt        time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TableName specifies the table name for the RepairRequest model
func (RepairRequest) TableName() string {
	return "repair_requests"
}

// RepairRequestView is the read shape of a request. Display names are joined
// from users at query time and never stored.
type RepairRequestView struct {
	RepairRequest
	ClientName     string        `json:"clientName"`
	TechnicianName *string       `json:"technicianName"`
	Comments       []CommentView `gorm:"-" json:"comments"`
}

// All returns every persisted model in migration order
func All() []interface{} {
	return []interface{}{&User{}, &Service{}, &RepairRequest{}, &Comment{}}
}
