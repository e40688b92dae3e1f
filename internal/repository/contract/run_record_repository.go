package contract

import (
	"context"

	"insight-assistant-be/internal/entity"
	"insight-assistant-be/internal/repository/specification"
)

type RunRecordRepository interface {
	// Upsert inserts the record or updates the row with the same run id.
	Upsert(ctx context.Context, record *entity.RunRecord) error
	FindByRunId(ctx context.Context, runId string) (*entity.RunRecord, error)
	FindBySession(ctx context.Context, sessionId string, limit int) ([]*entity.RunRecord, error)
	DeleteBySession(ctx context.Context, sessionId string) error
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
