package dto

import (
	"time"

	"insight-assistant-be/pkg/citation"
)

type CreateSessionResponse struct {
	Id string `json:"id"`
}

type SessionResponse struct {
	Id         string                 `json:"id"`
	ThreadId   string                 `json:"thread_id,omitempty"`
	Context    *StagedContextResponse `json:"context,omitempty"`
	Run        *RunResponse           `json:"run,omitempty"`
	RetryCount int                    `json:"retry_count"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

type StagedContextResponse struct {
	ContextId      string    `json:"context_id"`
	SourceFilename string    `json:"source_filename"`
	RecordCount    int       `json:"record_count"`
	Columns        []string  `json:"columns"`
	StagedAt       time.Time `json:"staged_at"`
}

type RunResponse struct {
	Id        string    `json:"id"`
	ThreadId  string    `json:"thread_id"`
	Status    string    `json:"status"`
	Phase     string    `json:"phase"`
	Polls     int       `json:"polls"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SubmitTurnRequest struct {
	Text  string `json:"text" validate:"required,max=32000"`
	Drive bool   `json:"drive"` // poll in the background and push outcomes on the websocket
}

type OutcomeResponse struct {
	Kind     string                    `json:"kind"` // pending | completed | failed
	RunId    string                    `json:"run_id"`
	Phase    string                    `json:"phase"`
	Status   string                    `json:"status"`
	DelayMs  int64                     `json:"delay_ms"`
	Reason   string                    `json:"reason,omitempty"`
	Messages []citation.DisplayMessage `json:"messages,omitempty"`
}

type RunRecordResponse struct {
	RunId      string     `json:"run_id"`
	ThreadId   string     `json:"thread_id"`
	Phase      string     `json:"phase"`
	Status     string     `json:"status"`
	Polls      int        `json:"polls"`
	RetryCount int        `json:"retry_count"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunEventMessage travels on the in-process bus after every run step.
type RunEventMessage struct {
	SessionId  string           `json:"session_id"`
	OwnerId    string           `json:"owner_id"`
	ThreadId   string           `json:"thread_id"`
	RunId      string           `json:"run_id"`
	Kind       string           `json:"kind"` // submitted | pending | completed | failed
	Phase      string           `json:"phase"`
	Status     string           `json:"status"`
	Polls      int              `json:"polls"`
	RetryCount int              `json:"retry_count"`
	Reason     string           `json:"reason,omitempty"`
	DelayMs    int64            `json:"delay_ms,omitempty"`
	Outcome    *OutcomeResponse `json:"outcome,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
