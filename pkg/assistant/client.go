package assistant

import (
	"context"
	"time"
)

// Role of a thread message
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Remote run statuses as reported by the assistant service.
const (
	RunStatusQueued         = "queued"
	RunStatusInProgress     = "in_progress"
	RunStatusRunning        = "running"
	RunStatusRequiresAction = "requires_action"
	RunStatusCancelling     = "cancelling"
	RunStatusCancelled      = "cancelled"
	RunStatusFailed         = "failed"
	RunStatusCompleted      = "completed"
	RunStatusIncomplete     = "incomplete"
	RunStatusExpired        = "expired"
)

// Annotation kinds
const (
	AnnotationFileCitation = "file_citation"
	AnnotationFilePath     = "file_path"
)

// Annotation marks a span of segment text that refers to a source file.
// The span is identified by exact substring match, not by offset.
type Annotation struct {
	Kind        string `json:"kind"`
	MatchedText string `json:"matched_text"`
	FileID      string `json:"file_id"`
}

// IsFileReference reports whether the annotation points at an uploaded file.
func (a Annotation) IsFileReference() bool {
	return a.Kind == AnnotationFileCitation || a.Kind == AnnotationFilePath
}

type TextSegment struct {
	Text        string       `json:"text"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Message is one immutable entry of a remote thread.
type Message struct {
	ID        string        `json:"id"`
	ThreadID  string        `json:"thread_id"`
	Role      string        `json:"role"`
	Segments  []TextSegment `json:"segments"`
	CreatedAt time.Time     `json:"created_at"`
}

type RunInfo struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    string    `json:"status"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type FileInfo struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
}

// Client is the contract of the remote assistant service.
// Every call may fail with a transient error (see IsTransient) or a permanent one.
type Client interface {
	CreateThread(ctx context.Context, metadata map[string]string) (string, error)
	CreateMessage(ctx context.Context, threadID, role, text string, contextIDs []string) (*Message, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (*RunInfo, error)
	GetRun(ctx context.Context, threadID, runID string) (*RunInfo, error)
	// ListMessages returns the thread's messages oldest first.
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
	GetFile(ctx context.Context, fileID string) (*FileInfo, error)
	IngestDocument(ctx context.Context, filename string, data []byte) (string, error)
	DeleteFile(ctx context.Context, fileID string) error
}
