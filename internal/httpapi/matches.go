package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/match"
)

func (h *Handler) qualifiedCandidates(group bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serveQualified(w, r, r.PathValue("jobId"), group)
	}
}

func (h *Handler) filteredCandidates(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		jsonError(w, "jobId is required", http.StatusBadRequest)
		return
	}
	h.serveQualified(w, r, jobID, false)
}

func (h *Handler) serveQualified(w http.ResponseWriter, r *http.Request, jobID string, group bool) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	f, pr, err := parseQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var page *match.Page[match.CandidateMatchView]
	if group {
		page, err = h.query.GroupQualifiedCandidates(r.Context(), actor, jobID, f, pr)
	} else {
		page, err = h.query.QualifiedCandidates(r.Context(), actor, jobID, f, pr)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, page)
}

func (h *Handler) explain(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	res, err := h.orch.Explain(r.Context(), actor, r.PathValue("jobId"), r.PathValue("userId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, res)
}

// runForCandidate serves both candidate-centric triggers. Synchronous
// dispatch answers 200 with the summary, queued dispatch answers 202.
func (h *Handler) runForCandidate(groupsOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("userId")
		sum, err := h.dispatch.DispatchCandidate(r.Context(), userID, match.CandidateRunOptions{GroupsOnly: groupsOnly})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if sum == nil {
			jsonStatus(w, http.StatusAccepted, map[string]string{"status": "queued", "userId": userID})
			return
		}
		jsonOK(w, sum)
	}
}

func (h *Handler) candidateMatches(w http.ResponseWriter, r *http.Request) {
	f, pr, err := parseQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.query.MatchesForCandidate(r.Context(), r.PathValue("userId"), f, pr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, page)
}

func (h *Handler) candidateCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.query.CountForCandidate(r.Context(), r.PathValue("userId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, counts)
}

func (h *Handler) extendOffers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var body struct {
		JobMatchIDs []string `json:"jobMatchIds"`
	}
	if err := decodeValid(r.Body, offerBodySchema, &body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	ms, err := h.orch.ExtendOffers(r.Context(), actor, body.JobMatchIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, ms)
}

// parseQuery reads skills, gpa, status, page and size. List parameters may
// repeat or be comma-separated.
func parseQuery(q url.Values) (match.Filters, match.PageRequest, error) {
	var (
		f  match.Filters
		pr match.PageRequest
	)
	f.Skills = splitList(q["skills"])

	if v := q.Get("gpa"); v != "" {
		g, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, pr, apperr.Invalid("gpa must be a number")
		}
		f.MinGPA = &g
	}
	for _, raw := range splitList(q["status"]) {
		st, err := match.ParseStatus(strings.ToUpper(raw))
		if err != nil {
			return f, pr, apperr.Invalid("%v", err)
		}
		f.Statuses = append(f.Statuses, st)
	}

	var err error
	if pr.Page, err = intParam(q, "page"); err != nil {
		return f, pr, err
	}
	if pr.Size, err = intParam(q, "size"); err != nil {
		return f, pr, err
	}
	return f, pr, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Invalid("%s must be an integer", name)
	}
	return n, nil
}
