package httpapi

import (
	"net/http"
	"time"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/candidate"
	"jobmate/matching-service/internal/job"
)

// jobRequest is the create/update body. Dates use YYYY-MM-DD.
type jobRequest struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	InstitutionID    string   `json:"institutionId"`
	GroupID          string   `json:"groupId"`
	EmployerID       string   `json:"employerId"`
	JobPostStartDate string   `json:"jobPostStartDate"`
	ExpirationDate   *string  `json:"expirationDate"`
	DegreeTypes      []string `json:"degreeTypes"`
	FieldsOfStudy    []string `json:"fieldsOfStudy"`
	MinGPA           *float64 `json:"minGpa"`
	Skills           []string `json:"skills"`
	Keywords         []string `json:"keywords"`
	ZipCodes         []string `json:"zipCodes"`
	States           []string `json:"states"`
}

func (req *jobRequest) draft() (job.Draft, error) {
	start, err := parseDate("jobPostStartDate", req.JobPostStartDate)
	if err != nil {
		return job.Draft{}, err
	}
	exp, err := parseOptionalDate("expirationDate", req.ExpirationDate)
	if err != nil {
		return job.Draft{}, err
	}
	degrees := make([]candidate.DegreeType, 0, len(req.DegreeTypes))
	for _, raw := range req.DegreeTypes {
		dt, err := candidate.ParseDegreeType(raw)
		if err != nil {
			return job.Draft{}, apperr.Invalid("%v", err)
		}
		degrees = append(degrees, dt)
	}
	return job.Draft{
		Title:            req.Title,
		Description:      req.Description,
		InstitutionID:    req.InstitutionID,
		GroupID:          req.GroupID,
		EmployerID:       req.EmployerID,
		JobPostStartDate: start,
		ExpirationDate:   exp,
		Requirements: job.Requirements{
			DegreeTypes:   degrees,
			FieldsOfStudy: req.FieldsOfStudy,
			MinGPA:        req.MinGPA,
			Skills:        req.Skills,
			Keywords:      req.Keywords,
			ZipCodes:      req.ZipCodes,
			States:        req.States,
		},
	}, nil
}

func (h *Handler) createJob(group bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		var req jobRequest
		if err := decodeValid(r.Body, jobBodySchema, &req); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.ID != "" {
			jsonError(w, "id must not be set on create", http.StatusBadRequest)
			return
		}
		d, err := req.draft()
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		var j *job.Job
		if group {
			j, err = h.registry.CreateGroupJob(r.Context(), actor, d)
		} else {
			j, err = h.registry.CreateNonGroupJob(r.Context(), actor, d)
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		jsonStatus(w, http.StatusCreated, j)
	}
}

func (h *Handler) updateJob(group bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		var req jobRequest
		if err := decodeValid(r.Body, jobBodySchema, &req); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.ID == "" {
			jsonError(w, "id is required", http.StatusBadRequest)
			return
		}
		d, err := req.draft()
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		var j *job.Job
		if group {
			j, err = h.registry.UpdateGroupJob(r.Context(), actor, req.ID, d)
		} else {
			j, err = h.registry.UpdateNonGroupJob(r.Context(), actor, req.ID, d)
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		jsonOK(w, j)
	}
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, j)
}

func (h *Handler) reopenFromQuery(w http.ResponseWriter, r *http.Request) {
	var raw *string
	if v := r.URL.Query().Get("expirationDate"); v != "" {
		raw = &v
	}
	h.reopen(w, r, raw)
}

func (h *Handler) reopenFromBody(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ExpirationDate *string `json:"expirationDate"`
	}
	if r.ContentLength != 0 {
		if err := decodeValid(r.Body, reopenBodySchema, &body); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	h.reopen(w, r, body.ExpirationDate)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request, raw *string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	exp, err := parseOptionalDate("expirationDate", raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	j, err := h.registry.Reopen(r.Context(), actor, r.PathValue("id"), exp)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, j)
}

func (h *Handler) closeJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	j, err := h.registry.Close(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, j)
}

func (h *Handler) archiveJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	j, err := h.registry.Archive(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, j)
}

func (h *Handler) recomputeJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	j, err := h.registry.RequestRecompute(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonStatus(w, http.StatusAccepted, j)
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, apperr.Invalid("%s must be a YYYY-MM-DD date", field)
	}
	return t, nil
}

func parseOptionalDate(field string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDate(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
