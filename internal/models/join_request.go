package models

import (
	"errors"
	"time"
)

// RequestStatus is the state of a join request. pending can move to accepted
// or rejected; any state can end in deletion via cancellation.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

// JoinRequest is a member's application for a project seat. Project title,
// type and the member display fields are snapshotted at creation time so later
// admin edits do not rewrite historical requests.
type JoinRequest struct {
	ID           string        `json:"id"` // composite memberID_projectID
	ProjectID    string        `json:"project_id"`
	ProjectTitle string        `json:"project_title"`
	ProjectType  ProjectType   `json:"project_type"`
	Semester     string        `json:"semester"`
	MemberID     string        `json:"member_id"`
	MemberName   string        `json:"member_name"`
	MemberEmail  string        `json:"member_email,omitempty"`
	Status       RequestStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	ApprovedBy   string        `json:"approved_by,omitempty"`
	RejectedBy   string        `json:"rejected_by,omitempty"`
}

// NewJoinRequest snapshots the project and member into a pending request.
func NewJoinRequest(project *Project, member *MemberProfile, semester string, now time.Time) (*JoinRequest, error) {
	if project == nil || member == nil {
		return nil, errors.New("join request needs a project and a member")
	}
	if semester == "" {
		return nil, errors.New("join request semester is required")
	}
	return &JoinRequest{
		ID:           JoinRequestID(member.ID, project.ID),
		ProjectID:    project.ID,
		ProjectTitle: project.Title,
		ProjectType:  project.Type,
		Semester:     semester,
		MemberID:     member.ID,
		MemberName:   member.Name,
		MemberEmail:  member.Email,
		Status:       RequestStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsPending reports whether the request can still be decided.
func (r *JoinRequest) IsPending() bool { return r.Status == RequestStatusPending }
