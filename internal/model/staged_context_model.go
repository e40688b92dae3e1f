package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type StagedContext struct {
	Id             uuid.UUID                   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId      string                      `gorm:"type:text;not null;index"`
	OwnerId        string                      `gorm:"type:text;not null;index"`
	ContextId      string                      `gorm:"type:text;not null;uniqueIndex"`
	SourceFilename string                      `gorm:"type:text;not null"`
	RecordCount    int                         `gorm:"not null;default:0"`
	Columns        datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Status         string                      `gorm:"type:varchar(20);not null;default:'active';index"`
	CreatedAt      time.Time                   `gorm:"autoCreateTime"`
	UpdatedAt      time.Time                   `gorm:"autoUpdateTime"`
	ReleasedAt     *time.Time
}

func (StagedContext) TableName() string {
	return "staged_contexts"
}
