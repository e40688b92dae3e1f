package main

import (
	"testing"
	"time"

	"insight-assistant-be/pkg/events"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	e := events.BaseEvent{
		Type:       events.RunPending,
		Data:       map[string]interface{}{"run_id": "run_1", "phase": "RUNNING", "occurred_at": "x"},
		OccurredAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "10:00:00.000 run.pending    phase=RUNNING run_id=run_1", format(e))
}
