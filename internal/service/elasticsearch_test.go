package service_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ledgerai/ledgerai/internal/security"
	"github.com/ledgerai/ledgerai/internal/service"
)

func TestElasticsearchAuditSinkRecord(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		_ = json.Unmarshal(raw, &body)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	sink, err := service.NewElasticsearchAuditSink(service.ElasticsearchConfig{
		Addresses: []string{srv.URL},
		Index:     "audit",
	})
	if err != nil {
		t.Fatalf("NewElasticsearchAuditSink() error = %v", err)
	}

	evt := security.AuditEvent{
		Event:     "query_audit",
		Timestamp: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		OwnerHash: security.HashID("u1"),
		Success:   true,
		RowCount:  1,
	}
	if err := sink.Record(context.Background(), evt); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/audit-2025.03/_doc" {
		t.Errorf("path = %q, want /audit-2025.03/_doc", path)
	}
	if body["owner_hash"] != security.HashID("u1") {
		t.Errorf("owner_hash = %v", body["owner_hash"])
	}
	if _, leaked := body["owner_id"]; leaked {
		t.Error("raw owner id must not be indexed")
	}
}

func TestElasticsearchAuditSinkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"forbidden"}`))
	}))
	defer srv.Close()

	sink, err := service.NewElasticsearchAuditSink(service.ElasticsearchConfig{Addresses: []string{srv.URL}})
	if err != nil {
		t.Fatalf("NewElasticsearchAuditSink() error = %v", err)
	}
	if err := sink.Record(context.Background(), security.AuditEvent{Event: "query_audit"}); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestElasticsearchAuditSinkRequiresAddress(t *testing.T) {
	if _, err := service.NewElasticsearchAuditSink(service.ElasticsearchConfig{}); err == nil {
		t.Fatal("expected error without addresses")
	}
}
