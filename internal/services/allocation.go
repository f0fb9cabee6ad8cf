package services

import (
	"context"
	"errors"
	"time"

	"github.com/clubstack/memberhub/internal/models"
	"github.com/clubstack/memberhub/internal/store"
	"github.com/clubstack/memberhub/pkg/logger"
)

// AllocationService is the transactional join-request and seat-allocation
// engine. Every operation executes as one atomic transaction against the
// record store: all reads happen before any write, and the store re-runs the
// whole read-validate-write sequence when a read key changes before commit.
// There is no lock over a project's seats; capacity correctness relies
// entirely on that conflict detection.
type AllocationService struct {
	store    store.Store
	notifier Notifier
	now      func() time.Time
}

// NewAllocationService wires the engine to a record store and an optional
// notifier. A nil notifier disables status email.
func NewAllocationService(st store.Store, notifier Notifier) *AllocationService {
	return &AllocationService{
		store:    st,
		notifier: notifier,
		now:      time.Now,
	}
}

// CreateJoinRequest files a pending request for a project seat and mirrors it
// into the member's project history. Pending requests never consume seats.
// Returns the composite request id.
func (s *AllocationService) CreateJoinRequest(ctx context.Context, projectID, memberID, semester string) (string, error) {
	if projectID == "" || memberID == "" || semester == "" {
		return "", errors.New("project id, member id and semester are required")
	}
	requestID := models.JoinRequestID(memberID, projectID)

	err := s.store.RunTransaction(ctx, func(tx store.Txn) error {
		var member models.MemberProfile
		ok, err := tx.Get(models.MemberKey(memberID), &member)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Entity: EntityMember, ID: memberID}
		}

		var project models.Project
		ok, err = tx.Get(models.ProjectKey(projectID), &project)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Entity: EntityProject, ID: projectID}
		}
		if !project.AcceptingMembers() {
			return ErrNotAcceptingMembers
		}

		if project.Type == models.ProjectTypeFlagship {
			if existing, held := member.FlagshipFor(semester); held && existing != projectID {
				return &FlagshipConflictError{Semester: semester, ExistingProjectID: existing}
			}
			// one in-flight flagship application per semester: a second
			// pending request would only set up an approve-time race
			for _, h := range member.ProjectHistory {
				if h.Semester == semester && h.Type == models.ProjectTypeFlagship &&
					h.ProjectID != projectID && h.Status == models.RequestStatusPending {
					return &FlagshipConflictError{Semester: semester, ExistingProjectID: h.ProjectID}
				}
			}
		}

		var existing models.JoinRequest
		ok, err = tx.Get(models.JoinRequestKey(requestID), &existing)
		if err != nil {
			return err
		}
		if ok {
			return ErrDuplicateRequest
		}

		req, err := models.NewJoinRequest(&project, &member, semester, s.now().UTC())
		if err != nil {
			return err
		}
		if err := tx.Set(models.JoinRequestKey(requestID), req); err != nil {
			return err
		}

		member.UpsertHistory(models.ProjectHistoryEntry{
			ProjectID: projectID,
			Semester:  semester,
			Type:      project.Type,
			Status:    models.RequestStatusPending,
		})
		member.UpdatedAt = s.now().UTC()
		return tx.Set(models.MemberKey(memberID), &member)
	})
	if err != nil {
		return "", err
	}
	return requestID, nil
}

// ApproveRequest grants the seat: increments the project's seat count, marks
// the request accepted, syncs the member's history and flagship assignment,
// and creates the project member record — all in one transaction. The
// applicant is notified after commit, best-effort.
func (s *AllocationService) ApproveRequest(ctx context.Context, requestID, approverID string) error {
	var note *StatusNotification

	err := s.store.RunTransaction(ctx, func(tx store.Txn) error {
		note = nil

		var req models.JoinRequest
		ok, err := tx.Get(models.JoinRequestKey(requestID), &req)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Entity: EntityRequest, ID: requestID}
		}
		if !req.IsPending() {
			return &InvalidStateError{RequestID: requestID, Status: req.Status}
		}

		var project models.Project
		ok, err = tx.Get(models.ProjectKey(req.ProjectID), &project)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Entity: EntityProject, ID: req.ProjectID}
		}

		var member models.MemberProfile
		ok, err = tx.Get(models.MemberKey(req.MemberID), &member)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Entity: EntityMember, ID: req.MemberID}
		}

		// a manual add may have seated the applicant while the request was
		// still pending; approving on top would double count the seat
		var seated models.ProjectMember
		ok, err = tx.Get(models.ProjectMemberKey(req.ProjectID, req.MemberID), &seated)
		if err != nil {
			return err
		}
		if ok {
			return ErrAlreadyMember
		}

		// checked against the latest committed seat count on every retry
		if !project.HasFreeSeat() {
			return ErrCapacityExceeded
		}

		if req.ProjectType == models.ProjectTypeFlagship {
			// guards the race where two flagship approvals for the same
			// member run concurrently
			if existing, held := member.FlagshipFor(req.Semester); held && existing != req.ProjectID {
				return &FlagshipConflictError{Semester: req.Semester, ExistingProjectID: existing}
			}
		}

		now := s.now().UTC()

		project.CurrentSeats++
		project.UpdatedAt = now
		if err := tx.Set(models.ProjectKey(project.ID), &project); err != nil {
			return err
		}

		req.Status = models.RequestStatusAccepted
		req.ApprovedBy = approverID
		req.UpdatedAt = now
		if err := tx.Set(models.JoinRequestKey(requestID), &req); err != nil {
			return err
		}

		member.SetHistoryStatus(req.ProjectID, req.Semester, models.RequestStatusAccepted)
		if req.ProjectType == models.ProjectTypeFlagship {
			member.SetFlagship(req.Semester, req.ProjectID)
		}
		member.UpdatedAt = now
		if err := tx.Set(models.MemberKey(member.ID), &member); err != nil {
			return err
		}

		pm := models.ProjectMember{
			ProjectID: req.ProjectID,
			MemberID:  req.MemberID,
			Name:      req.MemberName,
			Email:     req.MemberEmail,
			Role:      models.MemberRoleMember,
			JoinedAt:  now,
		}
		if err := tx.Set(models.ProjectMemberKey(req.ProjectID, req.MemberID), &pm); err != nil {
			return err
		}

		note = &StatusNotification{
			RequestID:    requestID,
			MemberID:     req.MemberID,
			MemberName:   req.MemberName,
			MemberEmail:  req.MemberEmail,
			ProjectTitle: req.ProjectTitle,
			Semester:     req.Semester,
			Status:       models.RequestStatusAccepted,
			ActorID:      approverID,
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx, note)
	return nil
}

// RejectRequest declines a pending request. Like approval, it only applies to
// pending requests; rejecting an accepted request would strand its seat and
// flagship bookkeeping. No seat or flagship state changes: a pending request
// never held any.
func (s *AllocationService) RejectRequest(ctx context.Context, requestID, rejecterID string) error {
	var note *StatusNotification

	err := s.store.RunTransaction(ctx, func(tx store.Txn) error {
		note = nil

		var req models.JoinRequest
		ok, err := tx.Get(models.JoinRequestKey(requestID), &req)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Entity: EntityRequest, ID: requestID}
		}
		if !req.IsPending() {
			return &InvalidStateError{RequestID: requestID, Status: req.Status}
		}

		var member models.MemberProfile
		ok, err = tx.Get(models.MemberKey(req.MemberID), &member)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Entity: EntityMember, ID: req.MemberID}
		}

		now := s.now().UTC()
		if err := tx.Update(models.JoinRequestKey(requestID), map[string]interface{}{
			"status":      models.RequestStatusRejected,
			"rejected_by": rejecterID,
			"updated_at":  now,
		}); err != nil {
			return err
		}

		member.SetHistoryStatus(req.ProjectID, req.Semester, models.RequestStatusRejected)
		member.UpdatedAt = now
		if err := tx.Set(models.MemberKey(member.ID), &member); err != nil {
			return err
		}

		note = &StatusNotification{
			RequestID:    requestID,
			MemberID:     req.MemberID,
			MemberName:   req.MemberName,
			MemberEmail:  req.MemberEmail,
			ProjectTitle: req.ProjectTitle,
			Semester:     req.Semester,
			Status:       models.RequestStatusRejected,
			ActorID:      rejecterID,
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx, note)
	return nil
}

// CancelJoinRequest removes a request entirely. For an accepted request it
// also releases the seat, deletes the project member record and clears the
// member's flagship assignment. This is the only hard delete of a request and
// the only operation that frees a seat.
func (s *AllocationService) CancelJoinRequest(ctx context.Context, requestID string) error {
	return s.store.RunTransaction(ctx, func(tx store.Txn) error {
		var req models.JoinRequest
		ok, err := tx.Get(models.JoinRequestKey(requestID), &req)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Entity: EntityRequest, ID: requestID}
		}

		var member models.MemberProfile
		ok, err = tx.Get(models.MemberKey(req.MemberID), &member)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Entity: EntityMember, ID: req.MemberID}
		}

		now := s.now().UTC()

		if req.Status == models.RequestStatusAccepted {
			var project models.Project
			ok, err = tx.Get(models.ProjectKey(req.ProjectID), &project)
			if err != nil {
				return err
			}
			if ok {
				if project.CurrentSeats > 0 {
					project.CurrentSeats--
				}
				project.UpdatedAt = now
				if err := tx.Set(models.ProjectKey(project.ID), &project); err != nil {
					return err
				}
			}
			// a deleted project orphans its requests; release what we can
			tx.Delete(models.ProjectMemberKey(req.ProjectID, req.MemberID))
			member.ClearFlagship(req.Semester, req.ProjectID)
		}

		member.RemoveHistory(req.ProjectID, req.Semester)
		member.UpdatedAt = now
		if err := tx.Set(models.MemberKey(member.ID), &member); err != nil {
			return err
		}

		tx.Delete(models.JoinRequestKey(requestID))
		return nil
	})
}

// ManualAddMember seats a member without a prior join request, for admin
// backfills. Capacity and flagship invariants apply exactly as for approval.
func (s *AllocationService) ManualAddMember(ctx context.Context, projectID, memberID, role string) error {
	if !models.ValidMemberRole(role) {
		return errors.New("role must be 'member' or 'lead'")
	}

	return s.store.RunTransaction(ctx, func(tx store.Txn) error {
		var project models.Project
		ok, err := tx.Get(models.ProjectKey(projectID), &project)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Entity: EntityProject, ID: projectID}
		}

		var member models.MemberProfile
		ok, err = tx.Get(models.MemberKey(memberID), &member)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Entity: EntityMember, ID: memberID}
		}

		var existing models.ProjectMember
		ok, err = tx.Get(models.ProjectMemberKey(projectID, memberID), &existing)
		if err != nil {
			return err
		}
		if ok {
			return ErrAlreadyMember
		}

		if !project.HasFreeSeat() {
			return ErrCapacityExceeded
		}
		if project.Type == models.ProjectTypeFlagship {
			if held, has := member.FlagshipFor(project.Semester); has && held != projectID {
				return &FlagshipConflictError{Semester: project.Semester, ExistingProjectID: held}
			}
		}

		now := s.now().UTC()

		project.CurrentSeats++
		project.UpdatedAt = now
		if err := tx.Set(models.ProjectKey(project.ID), &project); err != nil {
			return err
		}

		pm := models.ProjectMember{
			ProjectID: projectID,
			MemberID:  memberID,
			Name:      member.Name,
			Email:     member.Email,
			Role:      role,
			JoinedAt:  now,
		}
		if err := tx.Set(models.ProjectMemberKey(projectID, memberID), &pm); err != nil {
			return err
		}

		member.UpsertHistory(models.ProjectHistoryEntry{
			ProjectID: projectID,
			Semester:  project.Semester,
			Type:      project.Type,
			Status:    models.RequestStatusAccepted,
		})
		if project.Type == models.ProjectTypeFlagship {
			member.SetFlagship(project.Semester, projectID)
		}
		member.UpdatedAt = now
		return tx.Set(models.MemberKey(member.ID), &member)
	})
}

// notify delivers a status email outside the transaction. Failures are
// logged and never undo the committed allocation decision.
func (s *AllocationService) notify(ctx context.Context, note *StatusNotification) {
	if s.notifier == nil || note == nil {
		return
	}
	if err := s.notifier.NotifyStatusChange(ctx, note); err != nil {
		logger.Warn().
			Err(err).
			Str("request_id", note.RequestID).
			Str("status", string(note.Status)).
			Msg("status notification failed")
	}
}
