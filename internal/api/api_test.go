package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hooklinehq/hookline/internal/engine"
	"github.com/hooklinehq/hookline/internal/signature"
)

func setup(t *testing.T, receiver http.HandlerFunc) (*engine.Engine, *engine.MemoryDeadLetterStore, http.Handler, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(receiver)
	t.Cleanup(srv.Close)

	cfg := engine.DefaultConfig()
	cfg.Backoff.Jitter = false
	cfg.Backoff.InitialDelay = 10 * time.Millisecond

	deliveries := engine.NewMemoryDeliveryStore()
	dlq := engine.NewMemoryDeadLetterStore()
	eng := engine.New(cfg, deliveries, dlq)
	return eng, dlq, Handlers(eng), srv
}

func doRequest(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitEndpoint(t *testing.T) {
	_, _, h, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := doRequest(h, http.MethodPost, "/v1/deliveries", engine.Payload{
		URL:       srv.URL,
		EventType: "order.created",
		OrgID:     "acme",
		Body:      map[string]any{"order_id": 42},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var d engine.Delivery
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, engine.StatusDelivered, d.Status)
	assert.Len(t, d.Attempts, 1)
}

func TestSubmitEndpointRejectsInvalidPayload(t *testing.T) {
	_, _, h, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		name string
		body any
	}{
		{"missing url", engine.Payload{EventType: "order.created"}},
		{"missing event type", engine.Payload{URL: "http://example.com/hook"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(h, http.MethodPost, "/v1/deliveries", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubmitEndpointRejectsMalformedJSON(t *testing.T) {
	_, _, h, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodPost, "/v1/deliveries", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDeliveryEndpoint(t *testing.T) {
	eng, _, h, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	d, err := eng.Submit(context.Background(), engine.Payload{
		URL: srv.URL, EventType: "order.created", Body: map[string]any{"n": 1},
	})
	require.NoError(t, err)

	rec := doRequest(h, http.MethodGet, "/v1/deliveries/"+d.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got engine.Delivery
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, d.ID, got.ID)

	rec = doRequest(h, http.MethodGet, "/v1/deliveries/del_missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulkSubmitEndpoint(t *testing.T) {
	_, _, h, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := doRequest(h, http.MethodPost, "/v1/deliveries/bulk", map[string]any{
		"payloads": []engine.Payload{
			{URL: srv.URL, EventType: "order.created"},
			{URL: "bogus", EventType: "order.created"},
		},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Deliveries []*engine.Delivery `json:"deliveries"`
		Errors     []string           `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Deliveries, 2)
	assert.NotNil(t, resp.Deliveries[0])
	assert.Nil(t, resp.Deliveries[1])
	assert.NotEmpty(t, resp.Errors)
}

func TestDLQEndpoints(t *testing.T) {
	eng, dlq, h, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	// A non-retryable failure lands in the DLQ immediately.
	_, err := eng.Submit(context.Background(), engine.Payload{
		URL: srv.URL, EventType: "order.created", OrgID: "acme", Body: map[string]any{"n": 1},
	})
	require.NoError(t, err)

	rec := doRequest(h, http.MethodGet, "/v1/dlq?org=acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listResp struct {
		Entries []*engine.DeadLetterEntry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listResp))
	require.Len(t, listResp.Entries, 1)
	entry := listResp.Entries[0]
	assert.Equal(t, "order.created", entry.Payload.EventType)
	assert.True(t, entry.CanRetry)

	rec = doRequest(h, http.MethodGet, "/v1/dlq?org=other", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listResp.Entries = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listResp))
	assert.Empty(t, listResp.Entries)

	rec = doRequest(h, http.MethodGet, "/v1/dlq?can_retry=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Retry by id against a still-failing endpoint keeps the entry around.
	rec = doRequest(h, http.MethodPost, "/v1/dlq/"+entry.ID+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	kept, err := dlq.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, kept.RetryCount)

	rec = doRequest(h, http.MethodPost, "/v1/dlq/dlq_missing/retry", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDLQRetryConflictWhenExhausted(t *testing.T) {
	_, dlq, h, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {})

	entry := &engine.DeadLetterEntry{
		ID:         "dlq_spent",
		DeliveryID: "del_1",
		Payload:    engine.Payload{URL: srv.URL, EventType: "order.created"},
		Reason:     "max retries exceeded",
		At:         time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
		CanRetry:   false,
	}
	require.NoError(t, dlq.Put(context.Background(), entry))

	rec := doRequest(h, http.MethodPost, "/v1/dlq/dlq_spent/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDLQBulkRetryEndpoint(t *testing.T) {
	_, dlq, h, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	entry := &engine.DeadLetterEntry{
		ID:         "dlq_1",
		DeliveryID: "del_1",
		Payload:    engine.Payload{URL: srv.URL, EventType: "order.created", OrgID: "acme"},
		Reason:     "max retries exceeded",
		At:         time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
		CanRetry:   true,
	}
	require.NoError(t, dlq.Put(context.Background(), entry))

	rec := doRequest(h, http.MethodPost, "/v1/dlq/retry", map[string]any{"org": "acme"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res engine.BulkRetryResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 0, res.Failed)
}

func TestPurgeEndpoint(t *testing.T) {
	_, dlq, h, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {})

	expired := &engine.DeadLetterEntry{
		ID:         "dlq_old",
		DeliveryID: "del_1",
		Payload:    engine.Payload{URL: "http://example.com/hook", EventType: "order.created"},
		Reason:     "max retries exceeded",
		At:         time.Now().Add(-48 * time.Hour),
		ExpiresAt:  time.Now().Add(-time.Hour),
		CanRetry:   true,
	}
	require.NoError(t, dlq.Put(context.Background(), expired))

	rec := doRequest(h, http.MethodPost, "/v1/dlq/purge", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)

	var res map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 1, res["purged"])
}

func TestStatsEndpoint(t *testing.T) {
	eng, _, h, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := eng.Submit(context.Background(), engine.Payload{
		URL: srv.URL, EventType: "order.created", OrgID: "acme", Body: map[string]any{"n": 1},
	})
	require.NoError(t, err)

	rec := doRequest(h, http.MethodGet, "/v1/stats?org=acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var m engine.Metrics
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&m))
	assert.Equal(t, 1, m.TotalDeliveries)
	assert.Equal(t, 1, m.SuccessfulDeliveries)
	assert.Equal(t, 1.0, m.SuccessRate)
}

func TestVerifySignatureEndpoint(t *testing.T) {
	_, _, h, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {})

	secret := "whsec_test"
	body := `{"order_id":42}`
	sig := signature.New(secret).Sign([]byte(body))

	rec := doRequest(h, http.MethodPost, "/v1/signature/verify", map[string]string{
		"signature": sig,
		"body":      body,
		"secret":    secret,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res map[string]bool
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.True(t, res["valid"])

	rec = doRequest(h, http.MethodPost, "/v1/signature/verify", map[string]string{
		"signature": sig,
		"body":      body,
		"secret":    "wrong",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.False(t, res["valid"])
}
