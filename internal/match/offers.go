package match

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/events"
	"jobmate/matching-service/internal/job"
)

// ExtendOffers moves the given matches from MATCHED to OFFERED on behalf of
// the owner of their jobs. Matches already OFFERED are left alone; APPLIED
// and WITHDRAWN matches cannot be offered. Either every id is processed or
// none is.
func (o *Orchestrator) ExtendOffers(ctx context.Context, actor job.Actor, matchIDs []string) ([]Match, error) {
	ids := dedupe(matchIDs)
	if len(ids) == 0 {
		return nil, apperr.Invalid("at least one job match id is required")
	}

	ms, err := o.matches.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("extendOffers: %w", err)
	}
	if len(ms) != len(ids) {
		return nil, apperr.NotFoundf("job matches %s", strings.Join(missing(ids, ms), ", "))
	}

	jobIDs := make([]string, 0, len(ms))
	for i := range ms {
		jobIDs = append(jobIDs, ms[i].JobID)
	}
	jobs, err := o.jobs.GetMany(ctx, dedupe(jobIDs))
	if err != nil {
		return nil, fmt.Errorf("extendOffers: %w", err)
	}

	var offer []string
	for i := range ms {
		m := &ms[i]
		j, ok := jobs[m.JobID]
		if !ok {
			return nil, apperr.NotFoundf("job %s", m.JobID)
		}
		if err := job.CheckOwnership(ctx, o.authz, actor, j); err != nil {
			return nil, err
		}
		if j.Status != job.StatusOpen || j.Archived {
			return nil, apperr.Invalid("job %s is %s; offers need an OPEN job", j.ID, j.Status)
		}
		switch m.Status {
		case StatusMatched:
			offer = append(offer, m.ID)
		case StatusOffered:
		default:
			return nil, apperr.Invalid("job match %s is %s and cannot be offered", m.ID, m.Status)
		}
	}

	if _, err := o.matches.SetStatus(ctx, offer, StatusOffered); err != nil {
		return nil, fmt.Errorf("extendOffers: %w", err)
	}

	users := make([]string, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		users = append(users, m.UserID)
		if m.Status != StatusMatched {
			continue
		}
		o.publish(ctx, events.MatchOfferExtended, map[string]any{
			"matchId": m.ID,
			"jobId":   m.JobID,
			"userId":  m.UserID,
		})
	}
	o.invalidateCounts(ctx, users...)
	o.log.Info("offers extended", zap.Int("requested", len(ids)), zap.Int("offered", len(offer)))

	return o.matches.GetMany(ctx, ids)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func missing(ids []string, found []Match) []string {
	have := make(map[string]bool, len(found))
	for _, m := range found {
		have[m.ID] = true
	}
	var out []string
	for _, id := range ids {
		if !have[id] {
			out = append(out, id)
		}
	}
	return out
}
