// fake-receiver is a test endpoint for the delivery engine: it verifies
// request signatures and can simulate a flaky receiver via FAIL_FIRST_N.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/hooklinehq/hookline/internal/signature"
	"github.com/hooklinehq/hookline/internal/transport"
)

var (
	mu             sync.Mutex
	reqCount       = 0
	failFirstN     = 0
	endpointSecret = ""
	verifier       *signature.Signer
)

func main() {
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			failFirstN = n
		}
	}
	if v := os.Getenv("ENDPOINT_SECRET"); v != "" {
		endpointSecret = v
		tolerance := signature.DefaultTolerance
		if s := os.Getenv("SIGNING_LEEWAY_SECONDS"); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				tolerance = time.Duration(n) * time.Second
			}
		}
		verifier = signature.New(endpointSecret, signature.WithTolerance(tolerance))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", handleHook)

	addr := ":8081"
	if v := os.Getenv("FAKE_RECEIVER_PORT"); v != "" {
		addr = v
	}
	log.Printf("fake-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleHook(w http.ResponseWriter, r *http.Request) {
	mu.Lock()
	reqCount++
	count := reqCount
	mu.Unlock()

	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if verifier != nil {
		sig := r.Header.Get(transport.DefaultSignatureHeader)
		if sig == "" {
			http.Error(w, "missing signature header", http.StatusUnauthorized)
			return
		}
		if !verifier.Verify(sig, b) {
			log.Printf("fake-receiver rejected signature for delivery %s", r.Header.Get(transport.HeaderWebhookID))
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	// Simulate flakiness: first N requests -> 500
	if count <= failFirstN {
		log.Printf("FAILING (%d/%d) %s event=%s body=%s", count, failFirstN, r.URL.Path,
			r.Header.Get(transport.HeaderWebhookEvent), truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK %s delivery=%s event=%s body=%q", r.URL.Path,
		r.Header.Get(transport.HeaderWebhookID), r.Header.Get(transport.HeaderWebhookEvent), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
