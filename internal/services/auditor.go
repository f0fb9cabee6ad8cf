package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/clubstack/memberhub/internal/models"
	"github.com/clubstack/memberhub/internal/store"
	"github.com/clubstack/memberhub/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Auditor periodically recomputes seat and flagship bookkeeping from the raw
// records and logs any drift. It is strictly read-only: repairs are a human
// decision, not an automated one.
type Auditor struct {
	store store.Store
	spec  string
	cron  *cron.Cron
}

// AuditFinding describes one detected inconsistency.
type AuditFinding struct {
	Kind   string `json:"kind"` // seat_drift, capacity_exceeded, flagship_drift
	Key    string `json:"key"`
	Detail string `json:"detail"`
}

func NewAuditor(st store.Store, spec string) *Auditor {
	return &Auditor{store: st, spec: spec}
}

// Start schedules the audit. Invalid cron expressions are logged and the
// auditor stays idle.
func (a *Auditor) Start() {
	a.cron = cron.New()
	_, err := a.cron.AddFunc(a.spec, func() {
		if _, err := a.RunOnce(context.Background()); err != nil {
			logger.Error().Err(err).Msg("consistency audit failed")
		}
	})
	if err != nil {
		logger.Error().Err(err).Str("cron", a.spec).Msg("invalid audit schedule")
		return
	}
	a.cron.Start()
	logger.Info().Str("cron", a.spec).Msg("consistency auditor started")
}

func (a *Auditor) Stop() {
	if a.cron != nil {
		a.cron.Stop()
	}
}

// RunOnce walks every project, request and member and returns the findings.
// Reads are non-transactional, so a finding observed while allocations are in
// flight may be stale; persistent findings are the signal to act on.
func (a *Auditor) RunOnce(ctx context.Context) ([]AuditFinding, error) {
	var findings []AuditFinding

	acceptedFlagship := make(map[string]map[string]string) // memberID -> semester -> projectID
	reqKeys, err := a.store.Keys(ctx, models.JoinRequestKeyPrefix)
	if err != nil {
		return nil, err
	}
	for _, key := range reqKeys {
		var req models.JoinRequest
		ok, err := a.store.Get(ctx, key, &req)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if req.Status == models.RequestStatusAccepted && req.ProjectType == models.ProjectTypeFlagship {
			bySem := acceptedFlagship[req.MemberID]
			if bySem == nil {
				bySem = make(map[string]string)
				acceptedFlagship[req.MemberID] = bySem
			}
			if other, dup := bySem[req.Semester]; dup {
				findings = append(findings, AuditFinding{
					Kind:   "flagship_drift",
					Key:    key,
					Detail: fmt.Sprintf("member %s holds accepted flagship seats in both %s and %s for %s", req.MemberID, other, req.ProjectID, req.Semester),
				})
			}
			bySem[req.Semester] = req.ProjectID
		}
	}

	projKeys, err := a.store.Keys(ctx, models.ProjectKeyPrefix)
	if err != nil {
		return nil, err
	}
	for _, key := range projKeys {
		var project models.Project
		ok, err := a.store.Get(ctx, key, &project)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		memberKeys, err := a.store.Keys(ctx, models.ProjectMemberScope(project.ID))
		if err != nil {
			return nil, err
		}
		if project.CurrentSeats != len(memberKeys) {
			findings = append(findings, AuditFinding{
				Kind:   "seat_drift",
				Key:    key,
				Detail: fmt.Sprintf("current_seats=%d but %d member records exist", project.CurrentSeats, len(memberKeys)),
			})
		}
		if project.MaxSeats != nil && project.CurrentSeats > *project.MaxSeats {
			findings = append(findings, AuditFinding{
				Kind:   "capacity_exceeded",
				Key:    key,
				Detail: fmt.Sprintf("current_seats=%d exceeds max_seats=%d", project.CurrentSeats, *project.MaxSeats),
			})
		}
	}

	memberKeys, err := a.store.Keys(ctx, models.MemberKeyPrefix)
	if err != nil {
		return nil, err
	}
	for _, key := range memberKeys {
		var member models.MemberProfile
		ok, err := a.store.Get(ctx, key, &member)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for semester, projectID := range member.ActiveFlagship {
			if acceptedFlagship[member.ID][semester] == projectID {
				continue
			}
			// manual additions have no join request; the seat record vouches
			var pm models.ProjectMember
			seated, err := a.store.Get(ctx, models.ProjectMemberKey(projectID, member.ID), &pm)
			if err != nil {
				return nil, err
			}
			if !seated {
				findings = append(findings, AuditFinding{
					Kind:   "flagship_drift",
					Key:    key,
					Detail: fmt.Sprintf("active_flagship[%s]=%s has no accepted request or seat record", semester, projectID),
				})
			}
		}
	}

	if len(findings) == 0 {
		logger.Info().Int("projects", len(projKeys)).Int("requests", len(reqKeys)).Msg("consistency audit clean")
	} else {
		kinds := make([]string, 0, len(findings))
		for _, f := range findings {
			kinds = append(kinds, f.Kind+":"+f.Key)
			logger.Warn().Str("kind", f.Kind).Str("key", f.Key).Msg(f.Detail)
		}
		logger.Warn().Int("findings", len(findings)).Msg("consistency audit found drift: " + strings.Join(kinds, ", "))
	}
	return findings, nil
}
