package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type RunRecord struct {
	Id         uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId  string         `gorm:"type:text;not null;index"`
	OwnerId    string         `gorm:"type:text;not null;index"`
	ThreadId   string         `gorm:"type:text;not null"`
	RunId      string         `gorm:"type:text;not null;uniqueIndex"`
	Phase      string         `gorm:"type:varchar(20);not null"`
	Status     string         `gorm:"type:varchar(20)"`
	Polls      int            `gorm:"not null;default:0"`
	RetryCount int            `gorm:"not null;default:0"`
	Reason     string         `gorm:"type:text"`
	Metadata   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
	FinishedAt *time.Time
}

func (RunRecord) TableName() string {
	return "run_records"
}
