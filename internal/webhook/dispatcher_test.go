package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/storage"
)

func TestValidURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://example.com/hook", true},
		{"http://example.com/hook", true},
		{"ftp://example.com/hook", false},
		{"not a url", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidURL(c.url); got != c.want {
			t.Errorf("ValidURL(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestDispatcher_DeliversSuccessfully(t *testing.T) {
	var gotSignature, gotEvent string
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		gotSignature = r.Header.Get("X-Webhook-Signature")
		gotEvent = r.Header.Get("X-Webhook-Event")
		body, _ := io.ReadAll(r.Body)
		mac := hmac.New(sha256.New, []byte("shh"))
		mac.Write(body)
		expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
		if gotSignature != expected {
			t.Errorf("signature mismatch: got %q want %q", gotSignature, expected)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := storage.NewMemoryStore(0)
	defer store.Close()
	d := New(store, nil, nil)

	err := d.Enqueue(context.Background(), "del-1", "ver_1", srv.URL, "shh", EventVerificationCompleted, map[string]string{"wallet": "GWALLET1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.Close()

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if gotEvent != EventVerificationCompleted {
		t.Errorf("event header = %q, want %q", gotEvent, EventVerificationCompleted)
	}
}

func TestDispatcher_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := storage.NewMemoryStore(0)
	defer store.Close()
	d := New(store, nil, nil)

	err := d.Enqueue(context.Background(), "del-2", "ver_2", srv.URL, "", EventVerificationCompleted, map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.Close()

	if calls != 2 {
		t.Errorf("calls = %d, want 2 (one failure then a retry success)", calls)
	}
}

func TestDispatcher_DoesNotRetryOn4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	store := storage.NewMemoryStore(0)
	defer store.Close()
	d := New(store, nil, nil)

	err := d.Enqueue(context.Background(), "del-3", "ver_3", srv.URL, "", EventVerificationCompleted, map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.Close()

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (4xx is a permanent failure, no retry)", calls)
	}
}

func TestDispatcher_RejectsBadURLAtParseTime(t *testing.T) {
	if ValidURL("javascript:alert(1)") {
		t.Error("expected non-http(s) scheme to be rejected")
	}
}

func TestDispatcher_CloseWaitsForInFlightDeliveries(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := storage.NewMemoryStore(0)
	defer store.Close()
	d := New(store, nil, nil)

	if err := d.Enqueue(context.Background(), "del-4", "ver_4", srv.URL, "", EventVerificationCompleted, map[string]string{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()

	<-started
	select {
	case <-done:
		t.Fatal("Close returned before the in-flight delivery finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-done
}
