package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logadapter "github.com/extropian/motionsync/internal/adapters/log"
	"github.com/extropian/motionsync/internal/domain"
)

func testPayload() *domain.SessionPayload {
	return &domain.SessionPayload{
		ID:        "20260102T030405.000Z",
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Slots: []domain.SlotRecord{
			{Slot: domain.SlotTorso, DeviceID: "dev-t", Samples: []domain.SensorSample{{Timestamp: 1}}},
		},
	}
}

func TestDocumentSink_Persist(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotType string
	var gotDoc domain.SessionDocument

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotDoc)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewDocumentSink(srv.Client(), srv.URL, "secret", logadapter.NewNoopLogger())
	if err := sink.Persist(context.Background(), testPayload()); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/v1/sessions/20260102T030405.000Z" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotDoc.Devices["torso"] != "dev-t" || len(gotDoc.Samples["torso"]) != 1 {
		t.Errorf("document = %+v", gotDoc)
	}
}

func TestDocumentSink_NoAuthHeaderWithoutKey(t *testing.T) {
	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
	}))
	defer srv.Close()

	sink := NewDocumentSink(srv.Client(), srv.URL, "", logadapter.NewNoopLogger())
	if err := sink.Persist(context.Background(), testPayload()); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if hasAuth {
		t.Error("Authorization header sent without key")
	}
}

func TestDocumentSink_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sink := NewDocumentSink(srv.Client(), srv.URL, "k", logadapter.NewNoopLogger())
	err := sink.Persist(context.Background(), testPayload())
	if err == nil {
		t.Fatal("Persist() should fail on 429")
	}
}
