package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// SlackSender posts to a Slack incoming webhook. Text carries the plain
// summary for clients that do not render blocks.
type SlackSender struct {
	endpoint
}

func NewSlackSender(webhookURL string, client *http.Client) *SlackSender {
	return &SlackSender{endpoint: newEndpoint("slack", webhookURL, client)}
}

func (s *SlackSender) Name() string {
	return s.channel
}

func (s *SlackSender) Send(ctx context.Context, payload Payload) error {
	return s.post(ctx, payload, slackMessageFor(payload))
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(text string) slackText {
	return slackText{Type: "mrkdwn", Text: text}
}

// slackMessageFor lays a session out as a heading section followed by one
// field per job. The error, if any, gets its own section.
func slackMessageFor(payload Payload) slackMessage {
	heading := fmt.Sprintf("*emrun: %s* (exit %d)\n`%s`", EventLabel(payload.Event), payload.ExitCode, payload.WorkDir)
	if payload.Pool != "" {
		heading += " on " + payload.Pool
	}
	head := mrkdwn(heading)
	blocks := []slackBlock{{Type: "section", Text: &head}}

	if len(payload.Jobs) > 0 {
		fields := make([]slackText, 0, len(payload.Jobs))
		for _, j := range payload.Jobs {
			fields = append(fields, mrkdwn(fmt.Sprintf("*%s job %s*\n%s, exit %s, %d%%",
				strings.ToUpper(j.Role), j.ID, j.State, exitText(j.ExitStatus), j.Progress)))
		}
		blocks = append(blocks, slackBlock{Type: "section", Fields: fields})
	}
	if payload.Error != "" {
		e := mrkdwn("*Error:* " + payload.Error)
		blocks = append(blocks, slackBlock{Type: "section", Text: &e})
	}
	return slackMessage{Text: SlackText(payload), Blocks: blocks}
}

func exitText(status *int) string {
	if status == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *status)
}
