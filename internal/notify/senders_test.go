package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"emrun/internal/config"
)

type fakeSender struct {
	name string
	err  error
	got  []Payload
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(_ context.Context, p Payload) error {
	f.got = append(f.got, p)
	return f.err
}

func TestSanitizeChannelErrorRedactsURLs(t *testing.T) {
	t.Parallel()
	err := errors.New(`Post "https://hooks.slack.com/services/T000/B000/SECRET": context deadline exceeded`)
	msg := sanitizeChannelError(err)
	if strings.Contains(msg, "SECRET") {
		t.Fatalf("expected webhook URL secret to be redacted, got %q", msg)
	}
	if !strings.Contains(msg, "https://hooks.slack.com/REDACTED") {
		t.Fatalf("expected redacted host marker, got %q", msg)
	}
}

func TestBuildSendersFromConfig(t *testing.T) {
	t.Parallel()

	if got := BuildSenders(config.NotificationsConfig{}, nil); len(got) != 0 {
		t.Fatalf("expected no senders, got %d", len(got))
	}
	got := BuildSenders(config.NotificationsConfig{
		WebhookURL:   "https://example.com/hook",
		SlackWebhook: "https://hooks.slack.com/services/x",
	}, nil)
	if len(got) != 2 || got[0].Name() != "webhook" || got[1].Name() != "slack" {
		t.Fatalf("unexpected senders %v", got)
	}
}

func TestSendAllCollectsResults(t *testing.T) {
	t.Parallel()

	ok := &fakeSender{name: "webhook"}
	bad := &fakeSender{name: "slack", err: errors.New("post https://hooks.slack.com/services/T/B/SECRET: 500")}
	results := SendAll(context.Background(), []Sender{ok, nil, bad}, TestPayload(), 0)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Success || results[1].Success {
		t.Fatalf("unexpected results %+v", results)
	}
	summary := SummarizeFailures(results)
	if !strings.HasPrefix(summary, "slack: ") || strings.Contains(summary, "SECRET") {
		t.Fatalf("unexpected failure summary %q", summary)
	}
	if len(ok.got) != 1 || ok.got[0].Event != TriggerCompleted {
		t.Fatalf("expected payload delivered once, got %+v", ok.got)
	}
}

func TestTriggerSet(t *testing.T) {
	t.Parallel()

	set := TriggerSet([]string{" Failed ", "bogus"})
	if _, ok := set[TriggerFailed]; !ok || len(set) != 1 {
		t.Fatalf("unexpected trigger set %v", set)
	}
	if all := TriggerSet(nil); len(all) != 3 {
		t.Fatalf("nil triggers must enable all, got %v", all)
	}
}
