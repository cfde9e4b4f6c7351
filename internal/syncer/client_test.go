package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clubsync/clubsyncgo/internal/models"
)

func TestClientUnauthorizedFailsFast(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "not trusted", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad-credential")
	_, err := client.Push(context.Background(), &Envelope{SchemaVersion: models.SchemaVersion})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("Rejected credential should not be retried, got %d attempts", n)
	}
}

func TestClientSchemaRejectionFailsFast(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "upgrade required", http.StatusUpgradeRequired)
	}))
	defer server.Close()

	client := NewClient(server.URL, "cred")
	_, err := client.Push(context.Background(), &Envelope{SchemaVersion: models.SchemaVersion})
	if !errors.Is(err, ErrSchemaIncompatible) {
		t.Fatalf("Expected ErrSchemaIncompatible, got %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("Schema rejection should not be retried, got %d attempts", n)
	}
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(PushResult{Status: "ok"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "cred")
	result, err := client.Push(context.Background(), &Envelope{SchemaVersion: models.SchemaVersion})
	if err != nil {
		t.Fatalf("Push should succeed after retries: %v", err)
	}
	if result.Status != "ok" {
		t.Errorf("Expected ok, got %s", result.Status)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("Expected 3 attempts, got %d", n)
	}
}

func TestClientStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" || r.Method != http.MethodGet {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(StatusInfo{
			DeviceID:      "peer-1",
			Role:          models.RoleMaster,
			SchemaVersion: models.SchemaVersion,
			Time:          time.Now(),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	info, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status probe failed: %v", err)
	}
	if info.DeviceID != "peer-1" {
		t.Errorf("Expected peer-1, got %s", info.DeviceID)
	}
}

func TestClientUnreachablePeer(t *testing.T) {
	// Nothing listens here
	client := NewClient("http://127.0.0.1:1", "cred")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := client.Status(ctx)
	if err == nil {
		t.Fatal("Expected an error against a dead endpoint")
	}
	if !errors.Is(err, ErrPeerUnreachable) && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected unreachable classification, got %v", err)
	}
}
