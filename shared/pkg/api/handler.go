package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/psantana5/euclid/pkg/batch"
	"github.com/psantana5/euclid/pkg/logging"
	"github.com/psantana5/euclid/pkg/metrics"
	"github.com/psantana5/euclid/pkg/models"
	"github.com/psantana5/euclid/pkg/numeric"
	"github.com/psantana5/euclid/pkg/store"
	"github.com/psantana5/euclid/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const (
	maxComputeBody = 4 << 10
	// maxPairBytes bounds one encoded pair with generous whitespace
	maxPairBytes = 128
)

// MetricsRecorder is an interface for recording computation metrics
type MetricsRecorder interface {
	ObserveComputation(outcome string, d time.Duration)
	ObserveBatch(size int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveComputation(string, time.Duration) {}
func (nopRecorder) ObserveBatch(int)                         {}

// Options tune the handler
type Options struct {
	BatchWorkers  int
	BatchMaxPairs int
}

// Handler serves the GCD API
type Handler struct {
	store   store.Store
	logger  *logging.Logger
	metrics MetricsRecorder
	opts    Options
	now     func() time.Time
}

// NewHandler creates a new API handler
func NewHandler(s store.Store, logger *logging.Logger, opts Options) *Handler {
	if opts.BatchWorkers < 1 {
		opts.BatchWorkers = 1
	}
	if opts.BatchMaxPairs < 1 {
		opts.BatchMaxPairs = 10000
	}
	return &Handler{
		store:   s,
		logger:  logger.WithComponent("api"),
		metrics: nopRecorder{},
		opts:    opts,
		now:     time.Now,
	}
}

// SetMetricsRecorder sets the metrics recorder for the handler
func (h *Handler) SetMetricsRecorder(recorder MetricsRecorder) {
	h.metrics = recorder
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// /gcd/batch is registered before any parameterized /gcd route
	r.HandleFunc("/gcd/batch", h.ComputeBatch).Methods("POST")
	r.HandleFunc("/gcd", h.Compute).Methods("POST")
	r.HandleFunc("/gcd", h.ComputeQuery).Methods("GET")

	r.HandleFunc("/computations", h.ListComputations).Methods("GET")
	r.HandleFunc("/computations/{id}", h.GetComputation).Methods("GET")

	r.HandleFunc("/stats", h.Stats).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
}

// Compute handles POST /gcd
func (h *Handler) Compute(w http.ResponseWriter, r *http.Request) {
	var req models.ComputeRequest
	if !decodeBody(w, r, maxComputeBody, &req) {
		return
	}

	h.computeAndRespond(w, r, req.N, req.M, http.StatusCreated)
}

// ComputeQuery handles GET /gcd?n=&m=
func (h *Handler) ComputeQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := batch.ParseOperand(q.Get("n"))
	if err != nil {
		writeError(w, http.StatusBadRequest, models.CodeBadRequest, "n: "+err.Error())
		return
	}
	m, err := batch.ParseOperand(q.Get("m"))
	if err != nil {
		writeError(w, http.StatusBadRequest, models.CodeBadRequest, "m: "+err.Error())
		return
	}

	h.computeAndRespond(w, r, n, m, http.StatusOK)
}

func (h *Handler) computeAndRespond(w http.ResponseWriter, r *http.Request, n, m uint64, status int) {
	ctx := r.Context()

	start := time.Now()
	result, err := numeric.GCD(n, m)
	elapsed := time.Since(start)

	if err != nil {
		h.metrics.ObserveComputation(metrics.OutcomeInvalidArgument, elapsed)
		tracing.AddEvent(ctx, "gcd.rejected", attribute.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, models.CodeInvalidArgument, err.Error())
		return
	}
	h.metrics.ObserveComputation(metrics.OutcomeOK, elapsed)
	tracing.AddEvent(ctx, "gcd.computed", attribute.Int64("elapsed_ns", elapsed.Nanoseconds()))

	c := &models.Computation{
		ID:        uuid.New().String(),
		N:         n,
		M:         m,
		Result:    result,
		Source:    models.SourceSingle,
		CreatedAt: h.now(),
	}
	if err := h.store.SaveComputation(c); err != nil {
		tracing.SetError(ctx, err)
		h.logger.Error("Failed to save computation", logging.Fields{"id": c.ID, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, models.CodeInternal, "failed to save computation")
		return
	}

	h.logger.Debug("Computed gcd", logging.Fields{"id": c.ID, "n": n, "m": m, "result": result})
	writeJSON(w, status, c)
}

// ComputeBatch handles POST /gcd/batch. Successful pairs are stored together
// or not at all.
func (h *Handler) ComputeBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.BatchRequest
	if !decodeBody(w, r, h.batchBodyLimit(), &req) {
		return
	}
	if len(req.Pairs) > h.opts.BatchMaxPairs {
		writeError(w, http.StatusRequestEntityTooLarge, models.CodeTooLarge,
			"batch exceeds "+strconv.Itoa(h.opts.BatchMaxPairs)+" pairs")
		return
	}
	h.metrics.ObserveBatch(len(req.Pairs))

	pairs := make([]batch.Pair, len(req.Pairs))
	for i, p := range req.Pairs {
		pairs[i] = batch.Pair{N: p.N, M: p.M}
	}

	outcomes, err := batch.Compute(ctx, pairs, h.opts.BatchWorkers)
	if err != nil {
		h.logger.Warn("Batch cancelled", logging.Fields{"pairs": len(pairs), "error": err.Error()})
		writeError(w, http.StatusServiceUnavailable, models.CodeCancelled, "batch cancelled before completion")
		return
	}

	createdAt := h.now()
	resp := models.BatchResponse{Results: make([]models.BatchItem, len(outcomes))}
	toSave := make([]*models.Computation, 0, len(outcomes))
	for i, o := range outcomes {
		item := models.BatchItem{N: o.N, M: o.M}
		if o.Err != nil {
			h.metrics.ObserveComputation(metrics.OutcomeInvalidArgument, 0)
			item.Error = o.Err.Error()
			resp.Failed++
			resp.Results[i] = item
			continue
		}
		h.metrics.ObserveComputation(metrics.OutcomeOK, 0)

		c := &models.Computation{
			ID:        uuid.New().String(),
			N:         o.N,
			M:         o.M,
			Result:    o.Result,
			Source:    models.SourceBatch,
			CreatedAt: createdAt,
		}
		toSave = append(toSave, c)
		item.ID = c.ID
		item.Result = c.Result
		resp.Results[i] = item
	}

	if err := h.store.SaveComputations(toSave); err != nil {
		tracing.SetError(ctx, err)
		h.logger.Error("Failed to save batch", logging.Fields{"pairs": len(toSave), "error": err.Error()})
		writeError(w, http.StatusInternalServerError, models.CodeInternal, "failed to save computations")
		return
	}

	tracing.AddEvent(ctx, "gcd.batch",
		attribute.Int("pairs", len(pairs)),
		attribute.Int("failed", resp.Failed))
	h.logger.Info("Batch computed", logging.Fields{"pairs": len(pairs), "failed": resp.Failed})
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) batchBodyLimit() int64 {
	return int64(h.opts.BatchMaxPairs)*maxPairBytes + maxComputeBody
}

// ListComputations handles GET /computations?limit=
func (h *Handler) ListComputations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, models.CodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = v
	}

	computations, err := h.store.ListComputations(limit)
	if err != nil {
		h.logger.Error("Failed to list computations", logging.Fields{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, models.CodeInternal, "failed to list computations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"computations": computations,
		"count":        len(computations),
	})
}

// GetComputation handles GET /computations/{id}
func (h *Handler) GetComputation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	c, err := h.store.GetComputation(id)
	if errors.Is(err, store.ErrComputationNotFound) {
		writeError(w, http.StatusNotFound, models.CodeNotFound, "computation not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get computation", logging.Fields{"id": id, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, models.CodeInternal, "failed to get computation")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// Stats handles GET /stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats()
	if err != nil {
		h.logger.Error("Failed to get stats", logging.Fields{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, models.CodeInternal, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthCheck(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// decodeBody reads at most limit bytes of JSON into v. It writes the error
// response itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, models.CodeTooLarge,
				"request body exceeds "+strconv.FormatInt(limit, 10)+" bytes")
			return false
		}
		writeError(w, http.StatusBadRequest, models.CodeBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message, Code: code})
}
