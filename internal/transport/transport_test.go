package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hooklinehq/hookline/internal/signature"
)

func TestDoInjectsHeadersAndSignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"order_id":42}`)

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := New(Config{Signer: signature.New(secret)})
	res, err := tr.Do(context.Background(), Request{
		DeliveryID: "del_123",
		EventType:  "order.created",
		URL:        srv.URL,
		Headers:    map[string]string{"X-Custom": "yes"},
		Body:       body,
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", res.StatusCode)
	}

	if v := got.Get("Content-Type"); v != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", v)
	}
	if v := got.Get(HeaderWebhookID); v != "del_123" {
		t.Errorf("%s = %q, want del_123", HeaderWebhookID, v)
	}
	if v := got.Get(HeaderWebhookEvent); v != "order.created" {
		t.Errorf("%s = %q, want order.created", HeaderWebhookEvent, v)
	}
	if v := got.Get(HeaderWebhookTimestamp); v == "" {
		t.Errorf("%s missing", HeaderWebhookTimestamp)
	}
	if v := got.Get("X-Custom"); v != "yes" {
		t.Errorf("custom header = %q, want yes", v)
	}

	sig := got.Get(DefaultSignatureHeader)
	if sig == "" {
		t.Fatalf("%s missing", DefaultSignatureHeader)
	}
	if !signature.New(secret).Verify(sig, body) {
		t.Errorf("signature %q does not verify against the sent body", sig)
	}
}

func TestDoNoSignerSkipsSignatureHeader(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := New(Config{})
	if _, err := tr.Do(context.Background(), Request{URL: srv.URL, Body: []byte("{}")}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if v := got.Get(DefaultSignatureHeader); v != "" {
		t.Errorf("unexpected signature header %q without a signer", v)
	}
}

func TestDoServerErrorIsResultNotError(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"internal error", http.StatusInternalServerError},
		{"bad gateway", http.StatusBadGateway},
		{"too many requests", http.StatusTooManyRequests},
		{"not found", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			tr := New(Config{})
			res, err := tr.Do(context.Background(), Request{URL: srv.URL, Body: []byte("{}")})
			if err != nil {
				t.Fatalf("Do() error = %v, want nil (responses are never errors)", err)
			}
			if res.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", res.StatusCode, tt.status)
			}
		})
	}
}

func TestDoTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := New(Config{Timeout: 50 * time.Millisecond})
	_, err := tr.Do(context.Background(), Request{URL: srv.URL, Body: []byte("{}")})
	if err == nil {
		t.Fatal("Do() error = nil, want timeout")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("Do() error = %T, want *Error", err)
	}
	if !terr.Timeout {
		t.Errorf("Timeout = false, want true for a stalled endpoint: %v", terr)
	}
}

func TestDoConnectionRefused(t *testing.T) {
	// Grab a port that nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr := New(Config{Timeout: time.Second})
	_, err := tr.Do(context.Background(), Request{URL: url, Body: []byte("{}")})
	if err == nil {
		t.Fatal("Do() error = nil, want connection failure")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("Do() error = %T, want *Error", err)
	}
	if terr.Timeout {
		t.Errorf("Timeout = true, want false for a refused connection: %v", terr)
	}
}

func TestDoCapsResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64<<10)))
	}))
	defer srv.Close()

	tr := New(Config{})
	res, err := tr.Do(context.Background(), Request{URL: srv.URL, Body: []byte("{}")})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(res.Body) != maxResponseBody {
		t.Errorf("body length = %d, want %d", len(res.Body), maxResponseBody)
	}
}

func TestDoDefaultsMethodToPost(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := New(Config{})
	if _, err := tr.Do(context.Background(), Request{URL: srv.URL, Body: []byte("{}")}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if method != http.MethodPost {
		t.Errorf("method = %q, want POST", method)
	}
}
