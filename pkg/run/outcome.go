package run

import (
	"time"

	"insight-assistant-be/pkg/citation"
	"insight-assistant-be/pkg/store"
)

type OutcomeKind string

const (
	OutcomePending   OutcomeKind = "pending"
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the result of one Advance call.
type Outcome struct {
	Kind     OutcomeKind               `json:"kind"`
	RunID    string                    `json:"run_id"`
	Phase    store.Phase               `json:"phase"`
	Status   string                    `json:"status"`
	Delay    time.Duration             `json:"delay"`
	Messages []citation.DisplayMessage `json:"messages,omitempty"`
	Reason   string                    `json:"reason,omitempty"`
}

func Pending(r *store.Run, delay time.Duration) Outcome {
	return Outcome{Kind: OutcomePending, RunID: r.ID, Phase: r.Phase, Status: r.Status, Delay: delay}
}

// Completed carries the rendered thread. Messages is nil when the outcome is
// replayed for a run that already finished.
func Completed(r *store.Run, messages []citation.DisplayMessage) Outcome {
	return Outcome{Kind: OutcomeCompleted, RunID: r.ID, Phase: r.Phase, Status: r.Status, Messages: messages}
}

func Failed(r *store.Run, reason string) Outcome {
	return Outcome{Kind: OutcomeFailed, RunID: r.ID, Phase: r.Phase, Status: r.Status, Reason: reason}
}

func (o Outcome) Terminal() bool {
	return o.Kind != OutcomePending
}
