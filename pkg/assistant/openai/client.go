package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"insight-assistant-be/pkg/assistant"

	openaisdk "github.com/sashabaranov/go-openai"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	listPageSize   = 100

	ToolFileSearch      = "file_search"
	ToolCodeInterpreter = "code_interpreter"
)

// AssistantsClient adapts the go-openai Assistants v2 calls to assistant.Client.
type AssistantsClient struct {
	api            *openaisdk.Client
	AttachmentTool string
}

// Ensure AssistantsClient implements assistant.Client
var _ assistant.Client = &AssistantsClient{}

// NewAssistantsClient builds a client for baseURL, which includes the API
// version path ("https://api.openai.com/v1").
func NewAssistantsClient(baseURL, apiKey, attachmentTool string, timeout time.Duration) *AssistantsClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if attachmentTool == "" {
		attachmentTool = ToolFileSearch
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	cfg := openaisdk.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &AssistantsClient{
		api:            openaisdk.NewClientWithConfig(cfg),
		AttachmentTool: attachmentTool,
	}
}

// annotationObject is the wire shape of a text annotation; go-openai leaves
// annotations untyped.
type annotationObject struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	FileCitation *struct {
		FileID string `json:"file_id"`
	} `json:"file_citation,omitempty"`
	FilePath *struct {
		FileID string `json:"file_id"`
	} `json:"file_path,omitempty"`
}

func (c *AssistantsClient) CreateThread(ctx context.Context, metadata map[string]string) (string, error) {
	req := openaisdk.ThreadRequest{}
	if len(metadata) > 0 {
		req.Metadata = make(map[string]any, len(metadata))
		for k, v := range metadata {
			req.Metadata[k] = v
		}
	}

	thread, err := c.api.CreateThread(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", classify(err))
	}
	return thread.ID, nil
}

func (c *AssistantsClient) CreateMessage(ctx context.Context, threadID, role, text string, contextIDs []string) (*assistant.Message, error) {
	req := openaisdk.MessageRequest{Role: role, Content: text}
	for _, id := range contextIDs {
		req.Attachments = append(req.Attachments, openaisdk.ThreadAttachment{
			FileID: id,
			Tools:  []openaisdk.ThreadAttachmentTool{{Type: c.AttachmentTool}},
		})
	}

	msg, err := c.api.CreateMessage(ctx, threadID, req)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", classify(err))
	}
	out := toMessage(msg)
	return &out, nil
}

func (c *AssistantsClient) CreateRun(ctx context.Context, threadID, assistantID string) (*assistant.RunInfo, error) {
	run, err := c.api.CreateRun(ctx, threadID, openaisdk.RunRequest{AssistantID: assistantID})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", classify(err))
	}
	return toRunInfo(run), nil
}

func (c *AssistantsClient) GetRun(ctx context.Context, threadID, runID string) (*assistant.RunInfo, error) {
	run, err := c.api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", classify(err))
	}
	return toRunInfo(run), nil
}

func (c *AssistantsClient) ListMessages(ctx context.Context, threadID string) ([]assistant.Message, error) {
	var out []assistant.Message
	limit := listPageSize
	order := "asc"
	var after *string
	for {
		page, err := c.api.ListMessage(ctx, threadID, &limit, &order, after, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", classify(err))
		}
		for _, m := range page.Messages {
			out = append(out, toMessage(m))
		}
		if !page.HasMore || page.LastID == nil || *page.LastID == "" {
			return out, nil
		}
		next := *page.LastID
		after = &next
	}
}

func (c *AssistantsClient) GetFile(ctx context.Context, fileID string) (*assistant.FileInfo, error) {
	f, err := c.api.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", classify(err))
	}
	return &assistant.FileInfo{ID: f.ID, Filename: f.FileName, Bytes: int64(f.Bytes)}, nil
}

func (c *AssistantsClient) IngestDocument(ctx context.Context, filename string, data []byte) (string, error) {
	f, err := c.api.CreateFileBytes(ctx, openaisdk.FileBytesRequest{
		Name:    filename,
		Bytes:   data,
		Purpose: openaisdk.PurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("upload file: %w", classify(err))
	}
	return f.ID, nil
}

func (c *AssistantsClient) DeleteFile(ctx context.Context, fileID string) error {
	if err := c.api.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("delete file: %w", classify(err))
	}
	return nil
}

// classify turns go-openai errors into *assistant.APIError, wrapped with
// assistant.ErrTransient when a retry may succeed.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openaisdk.APIError
	if errors.As(err, &apiErr) {
		return byStatus(&assistant.APIError{
			StatusCode: apiErr.HTTPStatusCode,
			Type:       apiErr.Type,
			Message:    apiErr.Message,
		})
	}

	var reqErr *openaisdk.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.HTTPStatus
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return byStatus(&assistant.APIError{StatusCode: reqErr.HTTPStatusCode, Message: msg})
	}

	// transport failure, no response from the service
	return assistant.Transient(err)
}

func byStatus(apiErr *assistant.APIError) error {
	switch {
	case apiErr.StatusCode == http.StatusRequestTimeout,
		apiErr.StatusCode == http.StatusConflict,
		apiErr.StatusCode == http.StatusTooManyRequests,
		apiErr.StatusCode >= 500:
		return assistant.Transient(apiErr)
	default:
		return apiErr
	}
}

func toRunInfo(r openaisdk.Run) *assistant.RunInfo {
	info := &assistant.RunInfo{
		ID:        r.ID,
		ThreadID:  r.ThreadID,
		Status:    string(r.Status),
		CreatedAt: time.Unix(int64(r.CreatedAt), 0).UTC(),
	}
	if r.LastError != nil {
		info.LastError = r.LastError.Message
	}
	return info
}

func toMessage(m openaisdk.Message) assistant.Message {
	msg := assistant.Message{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Role:      m.Role,
		CreatedAt: time.Unix(int64(m.CreatedAt), 0).UTC(),
	}
	for _, content := range m.Content {
		if content.Type != "text" || content.Text == nil {
			continue
		}
		seg := assistant.TextSegment{Text: content.Text.Value}
		for _, raw := range content.Text.Annotations {
			ann, ok := toAnnotation(raw)
			if !ok {
				continue
			}
			seg.Annotations = append(seg.Annotations, ann)
		}
		msg.Segments = append(msg.Segments, seg)
	}
	return msg
}

func toAnnotation(raw any) (assistant.Annotation, bool) {
	data, err := json.Marshal(raw)
	if err != nil {
		return assistant.Annotation{}, false
	}
	var a annotationObject
	if err := json.Unmarshal(data, &a); err != nil {
		return assistant.Annotation{}, false
	}

	ann := assistant.Annotation{Kind: a.Type, MatchedText: a.Text}
	switch {
	case a.FileCitation != nil:
		ann.FileID = a.FileCitation.FileID
	case a.FilePath != nil:
		ann.FileID = a.FilePath.FileID
	}
	return ann, true
}
