package unitofwork

import (
	"context"

	"insight-assistant-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	StagedContextRepository() contract.StagedContextRepository
	RunRecordRepository() contract.RunRecordRepository
}
