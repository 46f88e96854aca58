// Package httpapi implements the REST surface of the matching service.
//
// Caller identity arrives in the x-user-id and x-institution-id headers
// forwarded by the Gateway.
//
// Routes:
//
//	POST /group/jobs                       → create a group job
//	PUT  /group/jobs                       → update a group job
//	POST /nongroup/jobs                    → create a non-group job
//	PUT  /nongroup/jobs                    → update a non-group job
//	GET  /jobs/{id}                        → fetch a job
//	GET  /jobs/re-open/{id}?expirationDate → re-open (or close without a date)
//	PUT  /jobs/re-open/{id}                → same, date in the body
//	PUT  /jobs/close/{id}                  → close
//	PUT  /jobs/archive/{id}                → archive
//	POST /jobs/recompute/{id}              → re-run matching for an OPEN job
//	GET  /job/matches/{jobId}              → qualified candidates (paginated)
//	GET  /job/group/matches/{jobId}        → qualified candidates of a group job
//	GET  /job/filters?jobId&skills&gpa     → qualified candidates, narrowed
//	GET  /job/explain/{jobId}/{userId}     → why a candidate does or does not qualify
//	GET  /calculate/job/matches/{userId}   → candidate-centric run
//	GET  /job/affliation/matches/{userId}  → candidate-centric run over group jobs
//	GET  /student/matches/{userId}         → a candidate's matched jobs
//	GET  /student/matches/{userId}/count   → a candidate's match counts
//	PUT  /matchedjobs                      → extend offers
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/job"
	"jobmate/matching-service/internal/match"
)

// Handler holds shared dependencies.
type Handler struct {
	registry *job.Registry
	orch     *match.Orchestrator
	dispatch match.Dispatcher
	query    *match.QueryService
	log      *zap.Logger
	version  string
}

// NewHandler returns a configured Handler.
func NewHandler(registry *job.Registry, orch *match.Orchestrator, dispatch match.Dispatcher, query *match.QueryService, log *zap.Logger, version string) *Handler {
	return &Handler{
		registry: registry,
		orch:     orch,
		dispatch: dispatch,
		query:    query,
		log:      log,
		version:  version,
	}
}

// RegisterRoutes mounts all matching-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("POST /group/jobs", h.createJob(true))
	mux.HandleFunc("PUT /group/jobs", h.updateJob(true))
	mux.HandleFunc("POST /nongroup/jobs", h.createJob(false))
	mux.HandleFunc("PUT /nongroup/jobs", h.updateJob(false))
	mux.HandleFunc("GET /jobs/{id}", h.getJob)
	mux.HandleFunc("GET /jobs/re-open/{id}", h.reopenFromQuery)
	mux.HandleFunc("PUT /jobs/re-open/{id}", h.reopenFromBody)
	mux.HandleFunc("PUT /jobs/close/{id}", h.closeJob)
	mux.HandleFunc("PUT /jobs/archive/{id}", h.archiveJob)
	mux.HandleFunc("POST /jobs/recompute/{id}", h.recomputeJob)

	mux.HandleFunc("GET /job/matches/{jobId}", h.qualifiedCandidates(false))
	mux.HandleFunc("GET /job/group/matches/{jobId}", h.qualifiedCandidates(true))
	mux.HandleFunc("GET /job/filters", h.filteredCandidates)
	mux.HandleFunc("GET /job/explain/{jobId}/{userId}", h.explain)

	mux.HandleFunc("GET /calculate/job/matches/{userId}", h.runForCandidate(false))
	mux.HandleFunc("GET /job/affliation/matches/{userId}", h.runForCandidate(true))
	mux.HandleFunc("GET /student/matches/{userId}", h.candidateMatches)
	mux.HandleFunc("GET /student/matches/{userId}/count", h.candidateCounts)

	mux.HandleFunc("PUT /matchedjobs", h.extendOffers)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, map[string]string{
		"status":  "ok",
		"service": "matching-service",
		"version": h.version,
	})
}

// actorFrom reads the caller identity. ok=false means the response was written.
func actorFrom(w http.ResponseWriter, r *http.Request) (job.Actor, bool) {
	userID := r.Header.Get("x-user-id")
	if userID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return job.Actor{}, false
	}
	return job.Actor{UserID: userID, InstitutionID: r.Header.Get("x-institution-id")}, true
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		jsonError(w, ve.Msg, http.StatusBadRequest)
	case errors.Is(err, apperr.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, apperr.ErrAccessDenied):
		jsonError(w, "access denied", http.StatusForbidden)
	case errors.Is(err, apperr.ErrRunInProgress):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, match.ErrQueueFull), apperr.IsComputation(err):
		h.log.Warn("request deferred", zap.String("path", r.URL.Path), zap.Error(err))
		jsonError(w, "match computation unavailable, retry later", http.StatusServiceUnavailable)
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	jsonStatus(w, http.StatusOK, v)
}

func jsonStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonStatus(w, code, map[string]string{"error": msg})
}
