package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "DexAI-Chain/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (n *recordingNotifier) Channel() Channel { return n.channel }

func (n *recordingNotifier) Notify(_ context.Context, event Event) error {
	n.events = append(n.events, event)
	return n.err
}

func TestFromError(t *testing.T) {
	t.Parallel()

	err := xerrors.New(xerrors.CodeChainFailure, "提交桥接交易失败")
	event, ok := FromError(err, "session-9", "bsc")
	if !ok {
		t.Fatal("chain failure should produce an alert event")
	}
	if event.Code != xerrors.CodeChainFailure {
		t.Fatalf("unexpected code %s", event.Code)
	}
	if event.SessionID != "session-9" || event.Chain != "bsc" {
		t.Fatalf("unexpected event context %+v", event)
	}
	if event.Severity != xerrors.SeverityCritical {
		t.Fatalf("unexpected severity %s", event.Severity)
	}

	if _, ok := FromError(xerrors.New(xerrors.CodeInvalidArgument, "bad input"), "s", "c"); ok {
		t.Fatal("invalid argument should not alert")
	}
	if _, ok := FromError(errors.New("plain"), "s", "c"); ok {
		t.Fatal("untyped errors should not alert")
	}
}

func TestFanoutDispatcherBroadcasts(t *testing.T) {
	t.Parallel()

	first := &recordingNotifier{channel: ChannelEmail}
	second := &recordingNotifier{channel: ChannelSlack, err: errors.New("slack down")}
	dispatcher := NewFanout(first, second, nil)

	event := Event{Code: xerrors.CodeChainFailure, SessionID: "s1"}
	err := dispatcher.Notify(context.Background(), event)
	if err == nil || !strings.Contains(err.Error(), "slack down") {
		t.Fatalf("expected joined notifier error, got %v", err)
	}
	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatalf("expected both channels notified, got %d/%d", len(first.events), len(second.events))
	}
	if first.events[0].SessionID != "s1" {
		t.Fatalf("unexpected event %+v", first.events[0])
	}
}

func TestEmailNotifierFormatsMessage(t *testing.T) {
	t.Parallel()

	var gotSubject, gotContent string
	var gotTo []string
	notifier := &EmailNotifier{
		Sender: emailSenderFunc(func(_ context.Context, subject, content string, to []string) error {
			gotSubject, gotContent, gotTo = subject, content, to
			return nil
		}),
		To:            []string{"ops@example.com"},
		SubjectPrefix: "[dexai]",
	}

	event := Event{
		Code:      xerrors.CodeChainFailure,
		Message:   "提交桥接交易失败",
		Severity:  xerrors.SeverityCritical,
		SessionID: "s1",
		Chain:     "bsc",
	}
	if err := notifier.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.HasPrefix(gotSubject, "[dexai]") || !strings.Contains(gotSubject, "CHAIN_FAILURE") {
		t.Fatalf("unexpected subject %q", gotSubject)
	}
	if !strings.Contains(gotContent, "提交桥接交易失败") || !strings.Contains(gotContent, "bsc") {
		t.Fatalf("unexpected content %q", gotContent)
	}
	if len(gotTo) != 1 || gotTo[0] != "ops@example.com" {
		t.Fatalf("unexpected recipients %v", gotTo)
	}
}

type emailSenderFunc func(ctx context.Context, subject, content string, to []string) error

func (f emailSenderFunc) Send(ctx context.Context, subject, content string, to []string) error {
	return f(ctx, subject, content, to)
}

func TestDingTalkWebhookSender(t *testing.T) {
	t.Parallel()

	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	sender := NewDingTalkWebhookSender(srv.URL)
	if err := sender.Send(context.Background(), "链上失败"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if payload["msgtype"] != "text" {
		t.Fatalf("unexpected msgtype %v", payload["msgtype"])
	}
	text, _ := payload["text"].(map[string]any)
	if text["content"] != "链上失败" {
		t.Fatalf("unexpected content %v", text)
	}
}

func TestSlackWebhookSender(t *testing.T) {
	t.Parallel()

	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	sender := NewSlackWebhookSender(srv.URL)
	if err := sender.Send(context.Background(), "#alerts", "chain failure"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if payload["channel"] != "#alerts" || payload["text"] != "chain failure" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestWebhookSenderRejectsNon200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sender := NewSlackWebhookSender(srv.URL)
	err := sender.Send(context.Background(), "#alerts", "chain failure")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}
