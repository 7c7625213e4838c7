package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u
}

func TestProbeCheckReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "com.missing.app" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("<html>detail page</html>"))
	}))
	defer server.Close()

	probe := NewProbe(Options{UserAgent: "harvester-test", Timeout: 5 * time.Second})

	ok, err := probe.Check(context.Background(), mustParse(t, server.URL+"?id=com.example.app"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", ok.StatusCode)
	}
	if ok.BodyBytes == 0 {
		t.Errorf("expected non-empty body")
	}

	missing, err := probe.Check(context.Background(), mustParse(t, server.URL+"?id=com.missing.app"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", missing.StatusCode)
	}
}

func TestProbeSendsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	probe := NewProbe(Options{UserAgent: "harvester-test/1.0"})
	if _, err := probe.Check(context.Background(), mustParse(t, server.URL)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUA != "harvester-test/1.0" {
		t.Errorf("expected custom user agent, got %q", gotUA)
	}
}

func TestProbeDecodesGzipBody(t *testing.T) {
	payload := strings.Repeat("review ", 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte(payload))
		gz.Close()
		// The probe sets Accept-Encoding itself, so the transport leaves
		// decompression to readBody.
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/html")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	probe := NewProbe(Options{})
	result, err := probe.Check(context.Background(), mustParse(t, server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.BodyBytes != len(payload) {
		t.Errorf("expected decoded length %d, got %d", len(payload), result.BodyBytes)
	}
}

func TestProbeBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 2048))
	}))
	defer server.Close()

	probe := NewProbe(Options{MaxBodyBytes: 1024})
	if _, err := probe.Check(context.Background(), mustParse(t, server.URL)); err == nil {
		t.Fatalf("expected error for oversized body")
	}
}

func TestProbeNilTarget(t *testing.T) {
	probe := NewProbe(Options{})
	if _, err := probe.Check(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil target")
	}
}
