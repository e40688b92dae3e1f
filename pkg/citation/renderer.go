package citation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"insight-assistant-be/internal/pkg/logger"
	"insight-assistant-be/pkg/assistant"
)

const moduleName = "CitationRenderer"

type Citation struct {
	Number   int    `json:"number"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
}

// DisplayMessage is a thread message with its citation markers substituted.
type DisplayMessage struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
	CreatedAt time.Time  `json:"created_at"`
}

// FileResolver maps a remote file id to a human readable name.
type FileResolver interface {
	Filename(ctx context.Context, fileID string) (string, error)
}

type Renderer struct {
	resolver FileResolver
	logger   logger.ILogger
}

func NewRenderer(resolver FileResolver, logger logger.ILogger) *Renderer {
	return &Renderer{resolver: resolver, logger: logger}
}

// Render converts thread messages, oldest first, into display form. Only
// user and assistant messages are kept. Resolution problems never fail the
// render.
func (r *Renderer) Render(ctx context.Context, messages []assistant.Message) []DisplayMessage {
	out := make([]DisplayMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != assistant.RoleUser && msg.Role != assistant.RoleAssistant {
			continue
		}
		out = append(out, r.RenderMessage(ctx, msg))
	}
	return out
}

// RenderMessage numbers the file references of one message from 1 in the
// order they are first seen.
func (r *Renderer) RenderMessage(ctx context.Context, msg assistant.Message) DisplayMessage {
	var (
		text        strings.Builder
		annotations []assistant.Annotation
	)
	for _, seg := range msg.Segments {
		text.WriteString(seg.Text)
		annotations = append(annotations, seg.Annotations...)
	}

	body := text.String()
	citations := make([]Citation, 0)
	for _, ann := range annotations {
		if !ann.IsFileReference() || ann.MatchedText == "" {
			continue
		}
		if !strings.Contains(body, ann.MatchedText) {
			r.logger.Debug(moduleName, "Annotation text not found in message", map[string]interface{}{
				"message_id": msg.ID,
				"matched":    ann.MatchedText,
			})
			continue
		}

		c := Citation{
			Number:   len(citations) + 1,
			FileID:   ann.FileID,
			Filename: r.filename(ctx, ann.FileID),
		}
		citations = append(citations, c)
		body = strings.Replace(body, ann.MatchedText, fmt.Sprintf("[%d]", c.Number), 1)
	}

	if len(citations) > 0 {
		lines := make([]string, len(citations))
		for i, c := range citations {
			lines[i] = fmt.Sprintf("[%d] %s", c.Number, c.Filename)
		}
		body += "\n\n" + strings.Join(lines, "\n")
	}

	return DisplayMessage{
		ID:        msg.ID,
		Role:      msg.Role,
		Text:      body,
		Citations: citations,
		CreatedAt: msg.CreatedAt,
	}
}

func (r *Renderer) filename(ctx context.Context, fileID string) string {
	if r.resolver == nil || fileID == "" {
		return fileID
	}
	name, err := r.resolver.Filename(ctx, fileID)
	if err != nil || name == "" {
		r.logger.Warn(moduleName, "Falling back to raw file id", map[string]interface{}{
			"file_id": fileID,
			"error":   fmt.Sprint(err),
		})
		return fileID
	}
	return name
}
