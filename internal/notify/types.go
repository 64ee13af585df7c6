package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	TriggerCompleted = "completed"
	TriggerFailed    = "failed"
	TriggerCancelled = "cancelled"
)

var AllTriggers = []string{
	TriggerCompleted,
	TriggerFailed,
	TriggerCancelled,
}

// JobResult is one queue job's outcome inside a Payload.
type JobResult struct {
	Role       string `json:"role"`
	ID         string `json:"id"`
	State      string `json:"state"`
	ExitStatus *int   `json:"exit_status,omitempty"`
	Progress   int    `json:"progress"`
}

type Payload struct {
	Event     string      `json:"event"`
	SessionID string      `json:"session_id"`
	WorkDir   string      `json:"work_dir"`
	Pool      string      `json:"pool,omitempty"`
	ExitCode  int         `json:"exit_code"`
	Error     string      `json:"error,omitempty"`
	Jobs      []JobResult `json:"jobs"`
	Timestamp string      `json:"timestamp"`
}

type Sender interface {
	Name() string
	Send(ctx context.Context, payload Payload) error
}

type ChannelResult struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func IsValidTrigger(trigger string) bool {
	switch trigger {
	case TriggerCompleted, TriggerFailed, TriggerCancelled:
		return true
	default:
		return false
	}
}

func TriggerSet(triggers []string) map[string]struct{} {
	if triggers == nil {
		triggers = AllTriggers
	}
	out := make(map[string]struct{}, len(triggers))
	for _, trigger := range triggers {
		normalized := strings.ToLower(strings.TrimSpace(trigger))
		if IsValidTrigger(normalized) {
			out[normalized] = struct{}{}
		}
	}
	return out
}

func EventLabel(event string) string {
	switch event {
	case TriggerCompleted:
		return "Run Completed"
	case TriggerCancelled:
		return "Run Cancelled"
	default:
		return "Run Failed"
	}
}

func TestPayload() Payload {
	exit := 0
	return Payload{
		Event:     TriggerCompleted,
		SessionID: "00000000-test",
		WorkDir:   "/tmp/emrun-test",
		Pool:      "sc_normal",
		Jobs: []JobResult{
			{Role: "x", ID: "1001", State: "completed", ExitStatus: &exit, Progress: 100},
			{Role: "y", ID: "1002", State: "completed", ExitStatus: &exit, Progress: 100},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func SlackText(payload Payload) string {
	text := fmt.Sprintf("emrun: %s\nDir: %s\nSession: %s\nExit code: %d",
		EventLabel(payload.Event), payload.WorkDir, payload.SessionID, payload.ExitCode)
	for _, j := range payload.Jobs {
		text += fmt.Sprintf("\n%s job %s: %s (exit %s, %d%%)", strings.ToUpper(j.Role), j.ID, j.State, exitText(j.ExitStatus), j.Progress)
	}
	if payload.Error != "" {
		text += "\nError: " + payload.Error
	}
	return text
}
