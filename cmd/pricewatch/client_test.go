package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/NasaVasa/pricewatch/internal/offline"
)

func runClient(t *testing.T, args ...string) string {
	t.Helper()
	cmd := clientCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("client %v: %v", args, err)
	}
	return out.String()
}

func TestClientAck_QueuesWhileOfflineAndSyncsLater(t *testing.T) {
	var (
		mu    sync.Mutex
		acked []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/health":
			w.Write([]byte(`{"status":"ok"}`))
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/alerts/"):
			mu.Lock()
			acked = append(acked, r.URL.Path)
			mu.Unlock()
			w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	t.Setenv("CLIENT_DATA_DIR", t.TempDir())
	t.Setenv("CLIENT_API_URL", "http://127.0.0.1:1")
	t.Setenv("LOG_LEVEL", "error")

	out := runClient(t, "ack", "42")
	if !strings.Contains(out, "queued for replay") {
		t.Fatalf("expected queued notice, got %q", out)
	}

	out = runClient(t, "status")
	if !strings.Contains(out, string(offline.KindAlertAck)) || !strings.Contains(out, string(offline.StatusPending)) {
		t.Fatalf("expected PENDING ALERT_ACK in status, got %q", out)
	}

	t.Setenv("CLIENT_API_URL", server.URL)
	out = runClient(t, "sync")
	if !strings.Contains(out, "replayed=1") {
		t.Fatalf("expected one replayed item, got %q", out)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(acked) != 1 || acked[0] != "/api/alerts/42/read" {
		t.Fatalf("unexpected server calls %v", acked)
	}

	out = runClient(t, "status")
	if !strings.Contains(out, "queue is empty") {
		t.Fatalf("expected empty queue, got %q", out)
	}
}

func TestReportQueued(t *testing.T) {
	var out bytes.Buffer
	if err := reportQueued(&out, fmt.Errorf("wrapped: %w", offline.ErrQueued)); err != nil {
		t.Fatalf("expected queued error to be reported, got %v", err)
	}
	if !strings.Contains(out.String(), "queued") {
		t.Fatalf("unexpected output %q", out.String())
	}

	other := fmt.Errorf("boom")
	if err := reportQueued(&out, other); err != other {
		t.Fatalf("expected other errors to pass through, got %v", err)
	}
}

func TestParseUintArg(t *testing.T) {
	if got, err := parseUintArg("17", "alert id"); err != nil || got != 17 {
		t.Fatalf("expected 17, got %d %v", got, err)
	}
	for _, value := range []string{"0", "-1", "abc", ""} {
		if _, err := parseUintArg(value, "alert id"); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
}
