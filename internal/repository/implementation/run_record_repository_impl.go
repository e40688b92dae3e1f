package implementation

import (
	"context"
	"errors"

	"insight-assistant-be/internal/entity"
	"insight-assistant-be/internal/mapper"
	"insight-assistant-be/internal/model"
	"insight-assistant-be/internal/repository/contract"
	"insight-assistant-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RunRecordRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.AssistantMapper
}

func NewRunRecordRepository(db *gorm.DB) contract.RunRecordRepository {
	return &RunRecordRepositoryImpl{
		db:     db,
		mapper: mapper.NewAssistantMapper(),
	}
}

func (r *RunRecordRepositoryImpl) Upsert(ctx context.Context, record *entity.RunRecord) error {
	if record.Id == uuid.Nil {
		record.Id = uuid.New()
	}
	m := r.mapper.RunRecordToModel(record)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"phase", "status", "polls", "retry_count", "reason", "metadata", "updated_at", "finished_at",
		}),
	}).Create(m).Error
	if err != nil {
		return err
	}

	// on conflict the row keeps its original id
	var stored model.RunRecord
	if err := (specification.ByRunID{RunID: m.RunId}).Apply(r.db.WithContext(ctx)).First(&stored).Error; err != nil {
		return err
	}
	*record = *r.mapper.RunRecordToEntity(&stored)
	return nil
}

func (r *RunRecordRepositoryImpl) FindByRunId(ctx context.Context, runId string) (*entity.RunRecord, error) {
	var m model.RunRecord
	query := specification.ByRunID{RunID: runId}.Apply(r.db.WithContext(ctx))
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.RunRecordToEntity(&m), nil
}

func (r *RunRecordRepositoryImpl) FindBySession(ctx context.Context, sessionId string, limit int) ([]*entity.RunRecord, error) {
	var models []*model.RunRecord
	query := r.db.WithContext(ctx)
	for _, spec := range []specification.Specification{
		specification.BySessionID{SessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Limit{N: limit},
	} {
		query = spec.Apply(query)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.RunRecordsToEntities(models), nil
}

func (r *RunRecordRepositoryImpl) DeleteBySession(ctx context.Context, sessionId string) error {
	return r.db.WithContext(ctx).Where("session_id = ?", sessionId).Delete(&model.RunRecord{}).Error
}

func (r *RunRecordRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&model.RunRecord{})
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
