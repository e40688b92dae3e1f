package entity

import (
	"time"

	"github.com/google/uuid"
)

// Ledger states of an ingested dataset.
const (
	ContextStatusActive     = "active"
	ContextStatusSuperseded = "superseded"
	ContextStatusReleased   = "released"
)

type StagedContext struct {
	Id             uuid.UUID
	SessionId      string
	OwnerId        string
	ContextId      string
	SourceFilename string
	RecordCount    int
	Columns        []string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	ReleasedAt     *time.Time
}
