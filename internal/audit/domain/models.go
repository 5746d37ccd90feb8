package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypePatient ActorType = "patient"
	ActorTypeStaff   ActorType = "staff"
	ActorTypeSystem  ActorType = "system"
	ActorTypeGateway ActorType = "gateway"
)

// AuditLog records a ledger write. Rows are never updated.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ActorType  string            `gorm:"size:16;not null" json:"actor_type"`
	ActorID    *string           `gorm:"size:64" json:"actor_id,omitempty"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	TargetType string            `gorm:"size:32;not null" json:"target_type"`
	TargetID   *string           `gorm:"size:64" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	RequestID  *string           `gorm:"size:64" json:"request_id,omitempty"`
	IPAddress  *string           `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent  *string           `json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
