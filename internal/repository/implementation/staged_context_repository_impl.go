package implementation

import (
	"context"
	"errors"
	"time"

	"insight-assistant-be/internal/entity"
	"insight-assistant-be/internal/mapper"
	"insight-assistant-be/internal/model"
	"insight-assistant-be/internal/repository/contract"
	"insight-assistant-be/internal/repository/specification"

	"gorm.io/gorm"
)

type StagedContextRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.AssistantMapper
}

func NewStagedContextRepository(db *gorm.DB) contract.StagedContextRepository {
	return &StagedContextRepositoryImpl{
		db:     db,
		mapper: mapper.NewAssistantMapper(),
	}
}

func (r *StagedContextRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *StagedContextRepositoryImpl) Create(ctx context.Context, staged *entity.StagedContext) error {
	m := r.mapper.StagedContextToModel(staged)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return contract.ErrDuplicateContext
		}
		return err
	}
	*staged = *r.mapper.StagedContextToEntity(m)
	return nil
}

func (r *StagedContextRepositoryImpl) Update(ctx context.Context, staged *entity.StagedContext) error {
	m := r.mapper.StagedContextToModel(staged)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*staged = *r.mapper.StagedContextToEntity(m)
	return nil
}

func (r *StagedContextRepositoryImpl) SupersedeActive(ctx context.Context, sessionId string) ([]*entity.StagedContext, error) {
	var models []*model.StagedContext
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.BySessionID{SessionID: sessionId},
		specification.ByStatuses{Statuses: []string{entity.ContextStatusActive}},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}

	ids := make([]interface{}, len(models))
	for i, m := range models {
		ids[i] = m.Id
		m.Status = entity.ContextStatusSuperseded
	}
	err := r.db.WithContext(ctx).Model(&model.StagedContext{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"status": entity.ContextStatusSuperseded, "updated_at": time.Now()}).Error
	if err != nil {
		return nil, err
	}
	return r.mapper.StagedContextsToEntities(models), nil
}

func (r *StagedContextRepositoryImpl) FindBySession(ctx context.Context, sessionId string, statuses ...string) ([]*entity.StagedContext, error) {
	return r.FindAll(ctx,
		specification.BySessionID{SessionID: sessionId},
		specification.ByStatuses{Statuses: statuses},
		specification.OrderBy{Field: "created_at"},
	)
}

func (r *StagedContextRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.StagedContext, error) {
	var m model.StagedContext
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.StagedContextToEntity(&m), nil
}

func (r *StagedContextRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.StagedContext, error) {
	var models []*model.StagedContext
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.StagedContextsToEntities(models), nil
}

func (r *StagedContextRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.StagedContext{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
