package cli

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"emrun/internal/config"
	"emrun/internal/notify"
)

type notifyStubSender struct {
	name string
}

func (s notifyStubSender) Name() string { return s.name }

func (s notifyStubSender) Send(context.Context, notify.Payload) error { return nil }

func stubNotify(t *testing.T, senders []notify.Sender, results []notify.ChannelResult) *notify.Payload {
	t.Helper()
	origBuild, origSend := buildNotifySenders, sendNotifyAll
	t.Cleanup(func() {
		buildNotifySenders = origBuild
		sendNotifyAll = origSend
	})
	var sent notify.Payload
	buildNotifySenders = func(config.NotificationsConfig, *http.Client) []notify.Sender { return senders }
	sendNotifyAll = func(_ context.Context, _ []notify.Sender, p notify.Payload, _ time.Duration) []notify.ChannelResult {
		sent = p
		return results
	}
	return &sent
}

func TestRunNotifyTestSuccess(t *testing.T) {
	sent := stubNotify(t,
		[]notify.Sender{notifyStubSender{name: "slack"}, notifyStubSender{name: "webhook"}},
		[]notify.ChannelResult{{Channel: "slack", Success: false, Error: "timeout"}, {Channel: "webhook", Success: true}})

	cfg := &config.Config{WorkDir: "/scratch/run1", Queue: config.QueueConfig{Pool: "sc_long"}}
	results, err := runNotifyTest(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run notify test: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("unexpected results: %#v", results)
	}
	if sent.WorkDir != "/scratch/run1" || sent.Pool != "sc_long" {
		t.Fatalf("expected payload from config, got %+v", *sent)
	}
}

func TestRunNotifyTestNoChannels(t *testing.T) {
	stubNotify(t, nil, nil)
	_, err := runNotifyTest(context.Background(), &config.Config{})
	if err == nil || !strings.Contains(err.Error(), "no notification channels configured") {
		t.Fatalf("expected no-channel error, got %v", err)
	}
}

func TestRunNotifyTestAllFailures(t *testing.T) {
	stubNotify(t,
		[]notify.Sender{notifyStubSender{name: "webhook"}},
		[]notify.ChannelResult{{Channel: "webhook", Success: false, Error: "timeout"}})

	results, err := runNotifyTest(context.Background(), &config.Config{})
	if err == nil || !strings.Contains(err.Error(), "all notification channels failed") {
		t.Fatalf("expected all-failed error, got %v", err)
	}
	if len(results) != 1 || results[0].Success {
		t.Fatalf("unexpected results: %#v", results)
	}
}

func TestRunNotifyRequiresTestFlag(t *testing.T) {
	prev := notifyTest
	notifyTest = false
	t.Cleanup(func() { notifyTest = prev })

	if _, err := runWithOutput(t, runNotify); err == nil || !strings.Contains(err.Error(), "--test") {
		t.Fatalf("expected --test error, got %v", err)
	}
}
