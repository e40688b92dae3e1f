// Package assistanttest provides an in-memory assistant.Client for tests.
package assistanttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"insight-assistant-be/pkg/assistant"
)

// Poll is one scripted GetRun response. Err wins over Status.
type Poll struct {
	Status string
	Err    error
}

// Client records every call and answers GetRun from a script. When the
// script is exhausted the last entry repeats.
type Client struct {
	mu sync.Mutex

	Polls    []Poll
	Messages []assistant.Message
	Files    map[string]string // file id -> filename

	CreateThreadErr  error
	CreateMessageErr error
	CreateRunErr     error
	ListMessagesErr  error
	IngestErr        error
	DeleteFileErr    error
	GetFileErr       error

	Calls       map[string]int
	Threads     []map[string]string
	Sent        []SentMessage
	Ingested    map[string][]byte
	Deleted     []string
	GetRunCalls int
	seq         int
}

type SentMessage struct {
	ThreadID   string
	Role       string
	Text       string
	ContextIDs []string
}

var _ assistant.Client = (*Client)(nil)

func New() *Client {
	return &Client{
		Files:    map[string]string{},
		Calls:    map[string]int{},
		Ingested: map[string][]byte{},
	}
}

// Script builds a poll script from bare statuses.
func Script(statuses ...string) []Poll {
	out := make([]Poll, len(statuses))
	for i, s := range statuses {
		out[i] = Poll{Status: s}
	}
	return out
}

// Count returns how often method was called.
func (c *Client) Count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[method]
}

// Total returns the number of remote calls of any kind.
func (c *Client) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.Calls {
		n += v
	}
	return n
}

func (c *Client) record(method string) {
	if c.Calls == nil {
		c.Calls = map[string]int{}
	}
	c.Calls[method]++
}

func (c *Client) nextID(prefix string) string {
	c.seq++
	return fmt.Sprintf("%s_%d", prefix, c.seq)
}

func (c *Client) CreateThread(ctx context.Context, metadata map[string]string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("CreateThread")
	if c.CreateThreadErr != nil {
		return "", c.CreateThreadErr
	}
	c.Threads = append(c.Threads, metadata)
	return c.nextID("thread"), nil
}

func (c *Client) CreateMessage(ctx context.Context, threadID, role, text string, contextIDs []string) (*assistant.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("CreateMessage")
	if c.CreateMessageErr != nil {
		return nil, c.CreateMessageErr
	}
	c.Sent = append(c.Sent, SentMessage{ThreadID: threadID, Role: role, Text: text, ContextIDs: contextIDs})
	return &assistant.Message{
		ID:        c.nextID("msg"),
		ThreadID:  threadID,
		Role:      role,
		Segments:  []assistant.TextSegment{{Text: text}},
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*assistant.RunInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("CreateRun")
	if c.CreateRunErr != nil {
		return nil, c.CreateRunErr
	}
	return &assistant.RunInfo{
		ID:        c.nextID("run"),
		ThreadID:  threadID,
		Status:    assistant.RunStatusQueued,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*assistant.RunInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("GetRun")
	if len(c.Polls) == 0 {
		return nil, fmt.Errorf("no scripted poll for run %s", runID)
	}
	idx := c.GetRunCalls
	if idx >= len(c.Polls) {
		idx = len(c.Polls) - 1
	}
	c.GetRunCalls++
	p := c.Polls[idx]
	if p.Err != nil {
		return nil, p.Err
	}
	return &assistant.RunInfo{ID: runID, ThreadID: threadID, Status: p.Status}, nil
}

func (c *Client) ListMessages(ctx context.Context, threadID string) ([]assistant.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("ListMessages")
	if c.ListMessagesErr != nil {
		return nil, c.ListMessagesErr
	}
	out := make([]assistant.Message, len(c.Messages))
	copy(out, c.Messages)
	return out, nil
}

func (c *Client) GetFile(ctx context.Context, fileID string) (*assistant.FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("GetFile")
	if c.GetFileErr != nil {
		return nil, c.GetFileErr
	}
	name, ok := c.Files[fileID]
	if !ok {
		return nil, &assistant.APIError{StatusCode: 404, Message: "No such File object: " + fileID}
	}
	return &assistant.FileInfo{ID: fileID, Filename: name}, nil
}

func (c *Client) IngestDocument(ctx context.Context, filename string, data []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("IngestDocument")
	if c.IngestErr != nil {
		return "", c.IngestErr
	}
	id := c.nextID("file")
	if c.Ingested == nil {
		c.Ingested = map[string][]byte{}
	}
	c.Ingested[id] = data
	if c.Files == nil {
		c.Files = map[string]string{}
	}
	c.Files[id] = filename
	return id, nil
}

func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("DeleteFile")
	if c.DeleteFileErr != nil {
		return c.DeleteFileErr
	}
	c.Deleted = append(c.Deleted, fileID)
	return nil
}
