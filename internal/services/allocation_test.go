package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/clubstack/memberhub/internal/models"
	"github.com/clubstack/memberhub/internal/store"
	"github.com/clubstack/memberhub/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	m.Run()
}

func intPtr(n int) *int { return &n }

// fakeNotifier records every notification so tests can assert on the
// post-commit delivery path.
type fakeNotifier struct {
	mu    sync.Mutex
	notes []*StatusNotification
	err   error
}

func (f *fakeNotifier) NotifyStatusChange(ctx context.Context, n *StatusNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.notes = append(f.notes, n)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notes)
}

func (f *fakeNotifier) last() *StatusNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.notes) == 0 {
		return nil
	}
	return f.notes[len(f.notes)-1]
}

func newTestEngine(t *testing.T) (*store.MemoryStore, *AllocationService, *fakeNotifier) {
	t.Helper()
	st := store.NewMemoryStore()
	notifier := &fakeNotifier{}
	return st, NewAllocationService(st, notifier), notifier
}

func seed(t *testing.T, st store.Store, key string, value interface{}) {
	t.Helper()
	err := st.RunTransaction(context.Background(), func(tx store.Txn) error {
		return tx.Set(key, value)
	})
	if err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

func seedProject(t *testing.T, st store.Store, id string, typ models.ProjectType, status models.ProjectStatus, maxSeats *int) {
	t.Helper()
	p, err := models.NewProject(id, "Project "+id, typ, "Fall 2025", status, maxSeats, "admin1")
	if err != nil {
		t.Fatalf("project %s: %v", id, err)
	}
	seed(t, st, models.ProjectKey(id), p)
}

func seedMember(t *testing.T, st store.Store, id string) {
	t.Helper()
	m, err := models.NewMemberProfile(id, "Member "+id, id+"@club.org", "member")
	if err != nil {
		t.Fatalf("member %s: %v", id, err)
	}
	seed(t, st, models.MemberKey(id), m)
}

func getProject(t *testing.T, st store.Store, id string) *models.Project {
	t.Helper()
	var p models.Project
	ok, err := st.Get(context.Background(), models.ProjectKey(id), &p)
	if err != nil || !ok {
		t.Fatalf("load project %s: ok=%v err=%v", id, ok, err)
	}
	return &p
}

func getMember(t *testing.T, st store.Store, id string) *models.MemberProfile {
	t.Helper()
	var m models.MemberProfile
	ok, err := st.Get(context.Background(), models.MemberKey(id), &m)
	if err != nil || !ok {
		t.Fatalf("load member %s: ok=%v err=%v", id, ok, err)
	}
	return &m
}

func getRequest(t *testing.T, st store.Store, id string) (*models.JoinRequest, bool) {
	t.Helper()
	var r models.JoinRequest
	ok, err := st.Get(context.Background(), models.JoinRequestKey(id), &r)
	if err != nil {
		t.Fatalf("load request %s: %v", id, err)
	}
	return &r, ok
}

// snapshot captures every committed record for whole-store comparison after a
// failed operation.
func snapshot(t *testing.T, st store.Store) map[string]interface{} {
	t.Helper()
	keys, err := st.Keys(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		var v map[string]interface{}
		if _, err := st.Get(context.Background(), k, &v); err != nil {
			t.Fatal(err)
		}
		out[k] = v
	}
	return out
}

func TestCreateJoinRequest(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeFlagship, models.ProjectStatusRecruiting, intPtr(3))
	seedMember(t, st, "m1")

	id, err := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")
	if err != nil {
		t.Fatalf("CreateJoinRequest: %v", err)
	}
	if id != "m1_p1" {
		t.Errorf("request id = %q, expected m1_p1", id)
	}

	req, ok := getRequest(t, st, id)
	if !ok {
		t.Fatal("request record should exist")
	}
	if req.Status != models.RequestStatusPending {
		t.Errorf("status = %s, expected pending", req.Status)
	}
	if req.ProjectTitle != "Project p1" || req.MemberName != "Member m1" {
		t.Errorf("snapshot fields = %q/%q", req.ProjectTitle, req.MemberName)
	}

	// pending requests never consume seats
	if seats := getProject(t, st, "p1").CurrentSeats; seats != 0 {
		t.Errorf("CurrentSeats = %d, expected 0", seats)
	}

	e := getMember(t, st, "m1").HistoryEntry("p1", "Fall 2025")
	if e == nil || e.Status != models.RequestStatusPending {
		t.Errorf("history entry = %+v, expected pending", e)
	}
}

func TestCreateJoinRequest_MissingInput(t *testing.T) {
	_, svc, _ := newTestEngine(t)
	if _, err := svc.CreateJoinRequest(context.Background(), "", "m1", "Fall 2025"); err == nil {
		t.Error("empty project id should fail")
	}
	if _, err := svc.CreateJoinRequest(context.Background(), "p1", "m1", ""); err == nil {
		t.Error("empty semester should fail")
	}
}

func TestCreateJoinRequest_NotFound(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeNonFlagship, models.ProjectStatusRecruiting, nil)

	var nf *NotFoundError
	_, err := svc.CreateJoinRequest(context.Background(), "p1", "ghost", "Fall 2025")
	if !errors.As(err, &nf) || nf.Entity != EntityMember {
		t.Errorf("err = %v, expected member NotFoundError", err)
	}

	seedMember(t, st, "m1")
	_, err = svc.CreateJoinRequest(context.Background(), "nope", "m1", "Fall 2025")
	if !errors.As(err, &nf) || nf.Entity != EntityProject {
		t.Errorf("err = %v, expected project NotFoundError", err)
	}
}

func TestCreateJoinRequest_ProjectClosed(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedMember(t, st, "m1")
	for _, status := range []models.ProjectStatus{models.ProjectStatusCompleted, models.ProjectStatusOnHold} {
		seedProject(t, st, "p_"+string(status), models.ProjectTypeNonFlagship, status, nil)
		_, err := svc.CreateJoinRequest(context.Background(), "p_"+string(status), "m1", "Fall 2025")
		if !errors.Is(err, ErrNotAcceptingMembers) {
			t.Errorf("status %s: err = %v, expected ErrNotAcceptingMembers", status, err)
		}
	}
}

func TestCreateJoinRequest_Duplicate(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeNonFlagship, models.ProjectStatusRecruiting, nil)
	seedMember(t, st, "m1")

	if _, err := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("err = %v, expected ErrDuplicateRequest", err)
	}
}

func TestCreateJoinRequest_FlagshipHeld(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeFlagship, models.ProjectStatusRecruiting, nil)
	m, _ := models.NewMemberProfile("m1", "Member m1", "", "member")
	m.SetFlagship("Fall 2025", "other")
	seed(t, st, models.MemberKey("m1"), m)

	var fc *FlagshipConflictError
	_, err := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")
	if !errors.As(err, &fc) {
		t.Fatalf("err = %v, expected FlagshipConflictError", err)
	}
	if fc.ExistingProjectID != "other" || fc.Semester != "Fall 2025" {
		t.Errorf("conflict = %+v", fc)
	}

	// a different semester is unaffected
	if _, err := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Spring 2026"); err != nil {
		t.Errorf("different semester should be allowed: %v", err)
	}
}

func TestCreateJoinRequest_SecondPendingFlagship(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeFlagship, models.ProjectStatusRecruiting, nil)
	seedProject(t, st, "p2", models.ProjectTypeFlagship, models.ProjectStatusRecruiting, nil)
	seedProject(t, st, "p3", models.ProjectTypeNonFlagship, models.ProjectStatusRecruiting, nil)
	seedMember(t, st, "m1")

	if _, err := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025"); err != nil {
		t.Fatal(err)
	}

	var fc *FlagshipConflictError
	_, err := svc.CreateJoinRequest(context.Background(), "p2", "m1", "Fall 2025")
	if !errors.As(err, &fc) {
		t.Errorf("second pending flagship application: err = %v, expected FlagshipConflictError", err)
	}

	// non-flagship applications are not limited
	if _, err := svc.CreateJoinRequest(context.Background(), "p3", "m1", "Fall 2025"); err != nil {
		t.Errorf("non-flagship request should be allowed: %v", err)
	}
}

func TestApproveRequest(t *testing.T) {
	st, svc, notifier := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeFlagship, models.ProjectStatusRecruiting, intPtr(2))
	seedMember(t, st, "m1")

	id, err := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.ApproveRequest(context.Background(), id, "admin1"); err != nil {
		t.Fatalf("ApproveRequest: %v", err)
	}

	req, _ := getRequest(t, st, id)
	if req.Status != models.RequestStatusAccepted || req.ApprovedBy != "admin1" {
		t.Errorf("request = %s/%s, expected accepted/admin1", req.Status, req.ApprovedBy)
	}
	if seats := getProject(t, st, "p1").CurrentSeats; seats != 1 {
		t.Errorf("CurrentSeats = %d, expected 1", seats)
	}

	m := getMember(t, st, "m1")
	if e := m.HistoryEntry("p1", "Fall 2025"); e == nil || e.Status != models.RequestStatusAccepted {
		t.Errorf("history entry = %+v, expected accepted", e)
	}
	if flagship, ok := m.FlagshipFor("Fall 2025"); !ok || flagship != "p1" {
		t.Errorf("flagship = %q,%v, expected p1,true", flagship, ok)
	}

	var pm models.ProjectMember
	ok, err := st.Get(context.Background(), models.ProjectMemberKey("p1", "m1"), &pm)
	if err != nil || !ok {
		t.Fatalf("project member record: ok=%v err=%v", ok, err)
	}
	if pm.Role != models.MemberRoleMember {
		t.Errorf("role = %q, expected member", pm.Role)
	}

	if notifier.count() != 1 {
		t.Fatalf("notifications = %d, expected 1", notifier.count())
	}
	note := notifier.last()
	if note.Status != models.RequestStatusAccepted || note.MemberID != "m1" || note.ActorID != "admin1" {
		t.Errorf("notification = %+v", note)
	}
}

func TestApproveRequest_NotPending(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeNonFlagship, models.ProjectStatusRecruiting, nil)
	seedMember(t, st, "m1")
	id, _ := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")
	if err := svc.ApproveRequest(context.Background(), id, "admin1"); err != nil {
		t.Fatal(err)
	}

	var ise *InvalidStateError
	err := svc.ApproveRequest(context.Background(), id, "admin1")
	if !errors.As(err, &ise) {
		t.Fatalf("double approval: err = %v, expected InvalidStateError", err)
	}
	if ise.Status != models.RequestStatusAccepted {
		t.Errorf("reported status = %s", ise.Status)
	}
	// the seat must not be double counted
	if seats := getProject(t, st, "p1").CurrentSeats; seats != 1 {
		t.Errorf("CurrentSeats = %d, expected 1", seats)
	}
}

func TestApproveRequest_CapacityFull_NoPartialWrites(t *testing.T) {
	st, svc, notifier := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeNonFlagship, models.ProjectStatusRecruiting, intPtr(1))
	seedMember(t, st, "m1")
	seedMember(t, st, "m2")

	first, _ := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")
	second, _ := svc.CreateJoinRequest(context.Background(), "p1", "m2", "Fall 2025")
	if err := svc.ApproveRequest(context.Background(), first, "admin1"); err != nil {
		t.Fatal(err)
	}

	before := snapshot(t, st)
	sent := notifier.count()

	err := svc.ApproveRequest(context.Background(), second, "admin1")
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("err = %v, expected ErrCapacityExceeded", err)
	}

	// the failed approval must leave no trace: not in the request, not in the
	// member, not in the seat count, and no notification
	if after := snapshot(t, st); !reflect.DeepEqual(before, after) {
		t.Errorf("store changed across a failed approval:\nbefore: %v\nafter:  %v", before, after)
	}
	if notifier.count() != sent {
		t.Error("failed approval must not notify")
	}
	req, _ := getRequest(t, st, second)
	if !req.IsPending() {
		t.Errorf("request status = %s, expected still pending", req.Status)
	}
}

func TestApproveRequest_FlagshipRace(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeFlagship, models.ProjectStatusRecruiting, nil)
	seedMember(t, st, "m1")
	id, _ := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")

	// the member grabs a different flagship seat between request and approval
	err := st.RunTransaction(context.Background(), func(tx store.Txn) error {
		var m models.MemberProfile
		if _, err := tx.Get(models.MemberKey("m1"), &m); err != nil {
			return err
		}
		m.SetFlagship("Fall 2025", "other")
		return tx.Set(models.MemberKey("m1"), &m)
	})
	if err != nil {
		t.Fatal(err)
	}

	var fc *FlagshipConflictError
	if err := svc.ApproveRequest(context.Background(), id, "admin1"); !errors.As(err, &fc) {
		t.Errorf("err = %v, expected FlagshipConflictError", err)
	}
	if seats := getProject(t, st, "p1").CurrentSeats; seats != 0 {
		t.Errorf("CurrentSeats = %d, expected 0", seats)
	}
}

func TestApproveRequest_AfterManualAdd(t *testing.T) {
	st, svc, notifier := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeNonFlagship, models.ProjectStatusRecruiting, intPtr(5))
	seedMember(t, st, "m1")

	id, err := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")
	if err != nil {
		t.Fatal(err)
	}
	// admin seats the applicant by hand while the request is still pending
	if err := svc.ManualAddMember(context.Background(), "p1", "m1", models.MemberRoleLead); err != nil {
		t.Fatal(err)
	}

	if err := svc.ApproveRequest(context.Background(), id, "admin1"); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("err = %v, expected ErrAlreadyMember", err)
	}

	// the seat must be counted once and the manual role must survive
	if seats := getProject(t, st, "p1").CurrentSeats; seats != 1 {
		t.Errorf("CurrentSeats = %d, expected 1", seats)
	}
	var pm models.ProjectMember
	if ok, _ := st.Get(context.Background(), models.ProjectMemberKey("p1", "m1"), &pm); !ok || pm.Role != models.MemberRoleLead {
		t.Errorf("project member = ok=%v role=%q, expected lead preserved", ok, pm.Role)
	}
	req, _ := getRequest(t, st, id)
	if !req.IsPending() {
		t.Errorf("request status = %s, expected still pending", req.Status)
	}
	if notifier.count() != 0 {
		t.Error("failed approval must not notify")
	}

	findings, err := NewAuditor(st, "@hourly").RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 0 {
		t.Errorf("findings = %+v, expected consistent seat bookkeeping", findings)
	}
}

func TestApproveRequest_NotifierFailure(t *testing.T) {
	st, svc, notifier := newTestEngine(t)
	notifier.err = errors.New("smtp down")
	seedProject(t, st, "p1", models.ProjectTypeNonFlagship, models.ProjectStatusRecruiting, nil)
	seedMember(t, st, "m1")
	id, _ := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")

	// delivery is best-effort: the committed decision stands
	if err := svc.ApproveRequest(context.Background(), id, "admin1"); err != nil {
		t.Fatalf("ApproveRequest: %v", err)
	}
	req, _ := getRequest(t, st, id)
	if req.Status != models.RequestStatusAccepted {
		t.Errorf("status = %s, expected accepted", req.Status)
	}
}

func TestRejectRequest(t *testing.T) {
	st, svc, notifier := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeNonFlagship, models.ProjectStatusRecruiting, intPtr(3))
	seedMember(t, st, "m1")
	id, _ := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")

	if err := svc.RejectRequest(context.Background(), id, "admin1"); err != nil {
		t.Fatalf("RejectRequest: %v", err)
	}

	req, _ := getRequest(t, st, id)
	if req.Status != models.RequestStatusRejected || req.RejectedBy != "admin1" {
		t.Errorf("request = %s/%s, expected rejected/admin1", req.Status, req.RejectedBy)
	}
	if seats := getProject(t, st, "p1").CurrentSeats; seats != 0 {
		t.Errorf("CurrentSeats = %d, rejection must not touch seats", seats)
	}
	if e := getMember(t, st, "m1").HistoryEntry("p1", "Fall 2025"); e == nil || e.Status != models.RequestStatusRejected {
		t.Errorf("history entry = %+v, expected rejected", e)
	}
	if note := notifier.last(); note == nil || note.Status != models.RequestStatusRejected {
		t.Errorf("notification = %+v, expected rejected", note)
	}

	// a decided request cannot be decided again
	var ise *InvalidStateError
	if err := svc.RejectRequest(context.Background(), id, "admin1"); !errors.As(err, &ise) {
		t.Errorf("double rejection: err = %v, expected InvalidStateError", err)
	}
	if err := svc.ApproveRequest(context.Background(), id, "admin1"); !errors.As(err, &ise) {
		t.Errorf("approve after reject: err = %v, expected InvalidStateError", err)
	}
}

func TestRejectRequest_AcceptedRequest(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeNonFlagship, models.ProjectStatusRecruiting, nil)
	seedMember(t, st, "m1")
	id, _ := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")
	if err := svc.ApproveRequest(context.Background(), id, "admin1"); err != nil {
		t.Fatal(err)
	}

	var ise *InvalidStateError
	if err := svc.RejectRequest(context.Background(), id, "admin1"); !errors.As(err, &ise) {
		t.Errorf("rejecting an accepted request: err = %v, expected InvalidStateError", err)
	}
}

func TestCancelJoinRequest_Pending(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeNonFlagship, models.ProjectStatusRecruiting, nil)
	seedMember(t, st, "m1")
	id, _ := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")

	if err := svc.CancelJoinRequest(context.Background(), id); err != nil {
		t.Fatalf("CancelJoinRequest: %v", err)
	}
	if _, ok := getRequest(t, st, id); ok {
		t.Error("cancelled request should be deleted")
	}
	if e := getMember(t, st, "m1").HistoryEntry("p1", "Fall 2025"); e != nil {
		t.Errorf("history entry = %+v, expected removed", e)
	}

	// cancellation frees the pair for a fresh request
	if _, err := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025"); err != nil {
		t.Errorf("re-request after cancel: %v", err)
	}
}

func TestCancelJoinRequest_Accepted(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeFlagship, models.ProjectStatusRecruiting, intPtr(2))
	seedMember(t, st, "m1")
	id, _ := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")
	if err := svc.ApproveRequest(context.Background(), id, "admin1"); err != nil {
		t.Fatal(err)
	}

	if err := svc.CancelJoinRequest(context.Background(), id); err != nil {
		t.Fatalf("CancelJoinRequest: %v", err)
	}
	if seats := getProject(t, st, "p1").CurrentSeats; seats != 0 {
		t.Errorf("CurrentSeats = %d, expected seat released", seats)
	}
	var pm models.ProjectMember
	if ok, _ := st.Get(context.Background(), models.ProjectMemberKey("p1", "m1"), &pm); ok {
		t.Error("project member record should be deleted")
	}
	m := getMember(t, st, "m1")
	if _, ok := m.FlagshipFor("Fall 2025"); ok {
		t.Error("flagship assignment should be cleared")
	}
	if m.HistoryEntry("p1", "Fall 2025") != nil {
		t.Error("history entry should be removed")
	}
}

func TestCancelJoinRequest_OrphanedProject(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeNonFlagship, models.ProjectStatusRecruiting, nil)
	seedMember(t, st, "m1")
	id, _ := svc.CreateJoinRequest(context.Background(), "p1", "m1", "Fall 2025")
	if err := svc.ApproveRequest(context.Background(), id, "admin1"); err != nil {
		t.Fatal(err)
	}

	// project deleted out from under the accepted request
	err := st.RunTransaction(context.Background(), func(tx store.Txn) error {
		tx.Delete(models.ProjectKey("p1"))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.CancelJoinRequest(context.Background(), id); err != nil {
		t.Fatalf("cancel with orphaned project: %v", err)
	}
	if _, ok := getRequest(t, st, id); ok {
		t.Error("request should be deleted")
	}
}

func TestCancelJoinRequest_NotFound(t *testing.T) {
	_, svc, _ := newTestEngine(t)
	var nf *NotFoundError
	if err := svc.CancelJoinRequest(context.Background(), "m1_p1"); !errors.As(err, &nf) {
		t.Errorf("err = %v, expected NotFoundError", err)
	}
}

func TestManualAddMember(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedProject(t, st, "p1", models.ProjectTypeFlagship, models.ProjectStatusRecruiting, intPtr(2))
	seedMember(t, st, "m1")

	if err := svc.ManualAddMember(context.Background(), "p1", "m1", models.MemberRoleLead); err != nil {
		t.Fatalf("ManualAddMember: %v", err)
	}
	if seats := getProject(t, st, "p1").CurrentSeats; seats != 1 {
		t.Errorf("CurrentSeats = %d, expected 1", seats)
	}
	var pm models.ProjectMember
	ok, _ := st.Get(context.Background(), models.ProjectMemberKey("p1", "m1"), &pm)
	if !ok || pm.Role != models.MemberRoleLead {
		t.Errorf("project member = ok=%v role=%q", ok, pm.Role)
	}
	m := getMember(t, st, "m1")
	if e := m.HistoryEntry("p1", "Fall 2025"); e == nil || e.Status != models.RequestStatusAccepted {
		t.Errorf("history entry = %+v, expected accepted", e)
	}
	if flagship, ok := m.FlagshipFor("Fall 2025"); !ok || flagship != "p1" {
		t.Errorf("flagship = %q,%v", flagship, ok)
	}

	if err := svc.ManualAddMember(context.Background(), "p1", "m1", models.MemberRoleMember); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("re-add: err = %v, expected ErrAlreadyMember", err)
	}
}

func TestManualAddMember_Guards(t *testing.T) {
	st, svc, _ := newTestEngine(t)
	seedProject(t, st, "full", models.ProjectTypeNonFlagship, models.ProjectStatusRecruiting, intPtr(1))
	seedProject(t, st, "ship", models.ProjectTypeFlagship, models.ProjectStatusRecruiting, nil)
	seedMember(t, st, "m1")
	seedMember(t, st, "m2")

	if err := svc.ManualAddMember(context.Background(), "full", "m1", "chief"); err == nil {
		t.Error("invalid role should fail")
	}

	if err := svc.ManualAddMember(context.Background(), "full", "m1", models.MemberRoleMember); err != nil {
		t.Fatal(err)
	}
	if err := svc.ManualAddMember(context.Background(), "full", "m2", models.MemberRoleMember); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("err = %v, expected ErrCapacityExceeded", err)
	}

	// flagship exclusivity applies to manual adds too
	m, _ := models.NewMemberProfile("m3", "Member m3", "", "member")
	m.SetFlagship("Fall 2025", "other")
	seed(t, st, models.MemberKey("m3"), m)
	var fc *FlagshipConflictError
	if err := svc.ManualAddMember(context.Background(), "ship", "m3", models.MemberRoleMember); !errors.As(err, &fc) {
		t.Errorf("err = %v, expected FlagshipConflictError", err)
	}
}

// Concurrent approvals must never oversubscribe a project: the capacity check
// rides on the store's conflict detection, not on any lock.
func TestConcurrentApprovals_CapacityInvariant(t *testing.T) {
	st := store.NewMemoryStore().WithMaxAttempts(100)
	svc := NewAllocationService(st, nil)

	const seats = 3
	const applicants = 10
	seedProject(t, st, "p1", models.ProjectTypeNonFlagship, models.ProjectStatusRecruiting, intPtr(seats))

	ids := make([]string, applicants)
	for i := 0; i < applicants; i++ {
		memberID := fmt.Sprintf("m%d", i)
		seedMember(t, st, memberID)
		id, err := svc.CreateJoinRequest(context.Background(), "p1", memberID, "Fall 2025")
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = id
	}

	var wg sync.WaitGroup
	results := make(chan error, applicants)
	for _, id := range ids {
		wg.Add(1)
		go func(requestID string) {
			defer wg.Done()
			results <- svc.ApproveRequest(context.Background(), requestID, "admin1")
		}(id)
	}
	wg.Wait()
	close(results)

	approved, capacity := 0, 0
	for err := range results {
		switch {
		case err == nil:
			approved++
		case errors.Is(err, ErrCapacityExceeded):
			capacity++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if approved != seats {
		t.Errorf("approved = %d, expected exactly %d", approved, seats)
	}
	if capacity != applicants-seats {
		t.Errorf("capacity rejections = %d, expected %d", capacity, applicants-seats)
	}
	if got := getProject(t, st, "p1").CurrentSeats; got != seats {
		t.Errorf("CurrentSeats = %d, expected %d", got, seats)
	}

	members, err := st.Keys(context.Background(), models.ProjectMemberScope("p1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != seats {
		t.Errorf("project member records = %d, expected %d", len(members), seats)
	}
}
