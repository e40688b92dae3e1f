package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"insight-assistant-be/internal/pkg/logger"
	"insight-assistant-be/pkg/assistant"
	"insight-assistant-be/pkg/store"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrMalformedInput    = errors.New("malformed dataset")
	ErrIngestionFailed   = errors.New("dataset ingestion failed")
)

const moduleName = "DatasetNormalizer"

// Upload is a file received from the caller.
type Upload struct {
	Filename string
	MIMEType string
	Body     io.Reader
}

type Normalizer struct {
	client assistant.Client
	logger logger.ILogger
	now    func() time.Time
}

func NewNormalizer(client assistant.Client, logger logger.ILogger) *Normalizer {
	return &Normalizer{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Normalize converts an uploaded table into a JSON record array and ingests it
// into the remote context store. The session is left untouched; attaching the
// returned context is the caller's job.
func (n *Normalizer) Normalize(ctx context.Context, up Upload) (*store.StagedContext, error) {
	if !Supported(up.MIMEType) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, up.MIMEType)
	}
	if up.Body == nil {
		return nil, fmt.Errorf("%w: empty upload", ErrMalformedInput)
	}

	raw, err := io.ReadAll(up.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", ErrMalformedInput, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrMalformedInput)
	}

	doc, err := Parse(raw, up.MIMEType)
	if err != nil {
		n.logger.Warn(moduleName, "Rejected upload", map[string]interface{}{
			"filename":  up.Filename,
			"mime_type": up.MIMEType,
			"error":     err.Error(),
		})
		return nil, err
	}

	payload, err := Encode(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode records: %v", ErrMalformedInput, err)
	}

	name := IngestName(up.Filename)
	contextID, err := n.client.IngestDocument(ctx, name, payload)
	if err != nil {
		n.logger.Error(moduleName, "Ingestion failed", map[string]interface{}{
			"filename": name,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", ErrIngestionFailed, err)
	}

	n.logger.Info(moduleName, "Dataset staged", map[string]interface{}{
		"context_id": contextID,
		"filename":   name,
		"records":    len(doc.Rows),
		"columns":    len(doc.Columns),
	})

	return &store.StagedContext{
		ContextID:      contextID,
		SourceFilename: up.Filename,
		RecordCount:    len(doc.Rows),
		Columns:        doc.Columns,
		StagedAt:       n.now().UTC(),
	}, nil
}

// Encode renders the document as a four-space indented JSON array.
func Encode(doc *Document) ([]byte, error) {
	compact, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "    "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// IngestName is the remote filename for an upload: its base name with a
// .json extension.
func IngestName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "dataset"
	}
	return base + ".json"
}
