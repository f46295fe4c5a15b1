// Package api exposes the delivery engine over a JSON HTTP surface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog"

	"github.com/hooklinehq/hookline/internal/engine"
	"github.com/hooklinehq/hookline/internal/signature"
)

// Handlers builds the router for the engine API.
func Handlers(eng *engine.Engine) *chi.Mux {
	logger := httplog.NewLogger("hookline-api", httplog.Options{
		JSON: true,
	})
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))

	h := &handler{eng: eng}
	r.Post("/v1/deliveries", h.submit)
	r.Post("/v1/deliveries/bulk", h.submitBulk)
	r.Get("/v1/deliveries/{id}", h.getDelivery)
	r.Get("/v1/dlq", h.listDLQ)
	r.Post("/v1/dlq/retry", h.bulkRetryDLQ)
	r.Post("/v1/dlq/purge", h.purgeDLQ)
	r.Post("/v1/dlq/{id}/retry", h.retryDLQ)
	r.Get("/v1/stats", h.stats)
	r.Post("/v1/signature/verify", h.verifySignature)

	return r
}

type handler struct {
	eng *engine.Engine
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var p engine.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	d, err := h.eng.Submit(r.Context(), p)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidPayload) {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusAccepted, d)
}

type bulkSubmitRequest struct {
	Payloads []engine.Payload `json:"payloads"`
}

type bulkSubmitResponse struct {
	Deliveries []*engine.Delivery `json:"deliveries"`
	Errors     []string           `json:"errors,omitempty"`
}

func (h *handler) submitBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	deliveries, err := h.eng.SubmitBulk(r.Context(), req.Payloads)
	resp := bulkSubmitResponse{Deliveries: deliveries}
	if err != nil {
		resp.Errors = append(resp.Errors, err.Error())
	}
	respondJSON(w, http.StatusAccepted, resp)
}

func (h *handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := h.eng.GetDelivery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			respondError(w, http.StatusNotFound, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// dlqFilterFromQuery reads list filters from query parameters.
func dlqFilterFromQuery(r *http.Request) (engine.DLQFilter, error) {
	f := engine.DLQFilter{
		OrgID:     r.URL.Query().Get("org"),
		EventType: r.URL.Query().Get("event_type"),
	}
	if v := r.URL.Query().Get("can_retry"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, err
		}
		f.CanRetry = &b
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.Since = t
	}
	return f, nil
}

func (h *handler) listDLQ(w http.ResponseWriter, r *http.Request) {
	f, err := dlqFilterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	entries, err := h.eng.ListDLQ(r.Context(), f)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *handler) retryDLQ(w http.ResponseWriter, r *http.Request) {
	d, err := h.eng.RetryDLQ(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNotFound):
			respondError(w, http.StatusNotFound, err)
		case errors.Is(err, engine.ErrCannotRetry):
			respondError(w, http.StatusConflict, err)
		default:
			respondError(w, http.StatusInternalServerError, err)
		}
		return
	}
	respondJSON(w, http.StatusOK, d)
}

type bulkRetryRequest struct {
	Org       string     `json:"org,omitempty"`
	EventType string     `json:"event_type,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
}

func (h *handler) bulkRetryDLQ(w http.ResponseWriter, r *http.Request) {
	var req bulkRetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	f := engine.DLQFilter{OrgID: req.Org, EventType: req.EventType}
	if req.Since != nil {
		f.Since = *req.Since
	}

	res, err := h.eng.BulkRetryDLQ(r.Context(), f)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *handler) purgeDLQ(w http.ResponseWriter, r *http.Request) {
	purged, err := h.eng.PurgeExpired(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"purged": purged})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	m, err := h.eng.Stats(r.Context(), r.URL.Query().Get("org"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

type verifyRequest struct {
	Signature string `json:"signature"`
	Body      string `json:"body"`
	Secret    string `json:"secret"`
}

// verifySignature lets webhook receivers elsewhere in the platform validate
// inbound signatures without reimplementing the scheme.
func (h *handler) verifySignature(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	valid := signature.Verify(req.Signature, []byte(req.Body), req.Secret)
	respondJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}
