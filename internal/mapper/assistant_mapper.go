package mapper

import (
	"encoding/json"
	"time"

	"insight-assistant-be/internal/entity"
	"insight-assistant-be/internal/model"

	"gorm.io/datatypes"
)

type AssistantMapper struct{}

func NewAssistantMapper() *AssistantMapper {
	return &AssistantMapper{}
}

// Staged Context Mappers

func (m *AssistantMapper) StagedContextToEntity(s *model.StagedContext) *entity.StagedContext {
	if s == nil {
		return nil
	}

	var updatedAt *time.Time
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		updatedAt = &t
	}

	return &entity.StagedContext{
		Id:             s.Id,
		SessionId:      s.SessionId,
		OwnerId:        s.OwnerId,
		ContextId:      s.ContextId,
		SourceFilename: s.SourceFilename,
		RecordCount:    s.RecordCount,
		Columns:        []string(s.Columns),
		Status:         s.Status,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      updatedAt,
		ReleasedAt:     s.ReleasedAt,
	}
}

func (m *AssistantMapper) StagedContextToModel(s *entity.StagedContext) *model.StagedContext {
	if s == nil {
		return nil
	}

	var updatedAt time.Time
	if s.UpdatedAt != nil {
		updatedAt = *s.UpdatedAt
	}

	return &model.StagedContext{
		Id:             s.Id,
		SessionId:      s.SessionId,
		OwnerId:        s.OwnerId,
		ContextId:      s.ContextId,
		SourceFilename: s.SourceFilename,
		RecordCount:    s.RecordCount,
		Columns:        datatypes.JSONSlice[string](s.Columns),
		Status:         s.Status,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      updatedAt,
		ReleasedAt:     s.ReleasedAt,
	}
}

func (m *AssistantMapper) StagedContextsToEntities(models []*model.StagedContext) []*entity.StagedContext {
	entities := make([]*entity.StagedContext, len(models))
	for i, s := range models {
		entities[i] = m.StagedContextToEntity(s)
	}
	return entities
}

// Run Record Mappers

func (m *AssistantMapper) RunRecordToEntity(r *model.RunRecord) *entity.RunRecord {
	if r == nil {
		return nil
	}

	var metadata map[string]interface{}
	if len(r.Metadata) > 0 {
		// Metadata is written by RunRecordToModel, a decode failure leaves it empty
		_ = json.Unmarshal(r.Metadata, &metadata)
	}

	var updatedAt *time.Time
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		updatedAt = &t
	}

	return &entity.RunRecord{
		Id:         r.Id,
		SessionId:  r.SessionId,
		OwnerId:    r.OwnerId,
		ThreadId:   r.ThreadId,
		RunId:      r.RunId,
		Phase:      r.Phase,
		Status:     r.Status,
		Polls:      r.Polls,
		RetryCount: r.RetryCount,
		Reason:     r.Reason,
		Metadata:   metadata,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  updatedAt,
		FinishedAt: r.FinishedAt,
	}
}

func (m *AssistantMapper) RunRecordToModel(r *entity.RunRecord) *model.RunRecord {
	if r == nil {
		return nil
	}

	var metadata datatypes.JSON
	if len(r.Metadata) > 0 {
		if raw, err := json.Marshal(r.Metadata); err == nil {
			metadata = datatypes.JSON(raw)
		}
	}

	var updatedAt time.Time
	if r.UpdatedAt != nil {
		updatedAt = *r.UpdatedAt
	}

	return &model.RunRecord{
		Id:         r.Id,
		SessionId:  r.SessionId,
		OwnerId:    r.OwnerId,
		ThreadId:   r.ThreadId,
		RunId:      r.RunId,
		Phase:      r.Phase,
		Status:     r.Status,
		Polls:      r.Polls,
		RetryCount: r.RetryCount,
		Reason:     r.Reason,
		Metadata:   metadata,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  updatedAt,
		FinishedAt: r.FinishedAt,
	}
}

func (m *AssistantMapper) RunRecordsToEntities(models []*model.RunRecord) []*entity.RunRecord {
	entities := make([]*entity.RunRecord, len(models))
	for i, r := range models {
		entities[i] = m.RunRecordToEntity(r)
	}
	return entities
}
