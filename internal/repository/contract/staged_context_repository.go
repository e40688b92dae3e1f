package contract

import (
	"context"
	"errors"

	"insight-assistant-be/internal/entity"
	"insight-assistant-be/internal/repository/specification"
)

// ErrDuplicateContext is returned when a remote context id is recorded twice.
var ErrDuplicateContext = errors.New("staged context already recorded")

type StagedContextRepository interface {
	Create(ctx context.Context, staged *entity.StagedContext) error
	Update(ctx context.Context, staged *entity.StagedContext) error
	// SupersedeActive flips every active context of the session to superseded
	// and returns the ones it touched.
	SupersedeActive(ctx context.Context, sessionId string) ([]*entity.StagedContext, error)
	FindBySession(ctx context.Context, sessionId string, statuses ...string) ([]*entity.StagedContext, error)
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.StagedContext, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.StagedContext, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
