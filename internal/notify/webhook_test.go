package notify_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentoven/ragjenkins/internal/notify"
	"github.com/agentoven/ragjenkins/pkg/models"
)

func failedTurn() *models.AgentTurn {
	return &models.AgentTurn{
		ID:          "run-1",
		Instruction: "build it",
		JobName:     "my-job",
		State:       models.StateFailed,
		Error:       "budget exceeded",
		Invocations: []models.ToolInvocation{{Tool: "search"}, {Tool: "trigger_build"}},
		Iterations:  3,
	}
}

func TestWebhook_RunFinishedDeliversSignedEvent(t *testing.T) {
	var (
		got    notify.Event
		sig    string
		header string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		header = r.Header.Get("X-Ragjenkins-Signature")
		mac := hmac.New(sha256.New, []byte("s3cret"))
		mac.Write(body)
		sig = "sha256=" + hex.EncodeToString(mac.Sum(nil))
	}))
	defer srv.Close()

	wh := notify.NewWebhook(srv.URL, notify.WithSecret("s3cret"))
	wh.RunFinished(context.Background(), failedTurn())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wh.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if got.Type != notify.EventRunFailed {
		t.Errorf("Type = %q, want %q", got.Type, notify.EventRunFailed)
	}
	if got.RunID != "run-1" || got.JobName != "my-job" {
		t.Errorf("event = %+v, want run-1 / my-job", got)
	}
	if len(got.Tools) != 2 || got.Tools[1] != "trigger_build" {
		t.Errorf("Tools = %v, want [search trigger_build]", got.Tools)
	}
	if header == "" || header != sig {
		t.Errorf("signature = %q, want %q", header, sig)
	}
}

func TestWebhook_SendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	wh := notify.NewWebhook(srv.URL, notify.WithRetries(2))
	if err := wh.Send(context.Background(), notify.NewEvent(failedTurn())); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestWebhook_SendClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	wh := notify.NewWebhook(srv.URL, notify.WithRetries(3))
	if err := wh.Send(context.Background(), notify.NewEvent(failedTurn())); err == nil {
		t.Fatal("Send() error = nil, want error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestNewEvent_Completed(t *testing.T) {
	ev := notify.NewEvent(&models.AgentTurn{ID: "r", State: models.StateDone, FinalAnswer: "ok"})
	if ev.Type != notify.EventRunCompleted {
		t.Errorf("Type = %q, want %q", ev.Type, notify.EventRunCompleted)
	}
	if ev.Tools == nil {
		t.Error("Tools = nil, want empty slice")
	}
}
