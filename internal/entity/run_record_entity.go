package entity

import (
	"time"

	"github.com/google/uuid"
)

// RunRecord is the persisted history of one remote run.
type RunRecord struct {
	Id         uuid.UUID
	SessionId  string
	OwnerId    string
	ThreadId   string
	RunId      string
	Phase      string
	Status     string
	Polls      int
	RetryCount int
	Reason     string
	Metadata   map[string]interface{}
	CreatedAt  time.Time
	UpdatedAt  *time.Time
	FinishedAt *time.Time
}
