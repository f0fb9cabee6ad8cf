package models

import (
	"errors"
	"strings"
	"time"
)

// ProjectHistoryEntry mirrors the status of one join request in the member's
// own record, one logical entry per (project, semester) pair.
type ProjectHistoryEntry struct {
	ProjectID string        `json:"project_id"`
	Semester  string        `json:"semester"`
	Type      ProjectType   `json:"type"`
	Status    RequestStatus `json:"status"`
}

// MemberProfile is the per-member record the allocation engine maintains.
// ActiveFlagship maps a semester label to the single flagship project the
// member holds an accepted seat in for that semester.
type MemberProfile struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Email          string                `json:"email,omitempty"`
	Role           string                `json:"role,omitempty"` // admin, member
	ActiveFlagship map[string]string     `json:"active_flagship,omitempty"`
	ProjectHistory []ProjectHistoryEntry `json:"project_history,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// NewMemberProfile validates and builds a member record.
func NewMemberProfile(id, name, email, role string) (*MemberProfile, error) {
	if id == "" {
		return nil, errors.New("member id is required")
	}
	if strings.Contains(id, "_") {
		// the join-request key is memberID_projectID; an underscore in the
		// member id would let two different pairs collide on one key
		return nil, errors.New("member id cannot contain '_'")
	}
	if name == "" {
		return nil, errors.New("member name is required")
	}
	if role == "" {
		role = "member"
	}
	now := time.Now().UTC()
	return &MemberProfile{
		ID:        id,
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HistoryEntry returns the entry for a project and semester, or nil.
func (m *MemberProfile) HistoryEntry(projectID, semester string) *ProjectHistoryEntry {
	for i := range m.ProjectHistory {
		e := &m.ProjectHistory[i]
		if e.ProjectID == projectID && e.Semester == semester {
			return e
		}
	}
	return nil
}

// UpsertHistory appends the entry, or overwrites the existing entry for the
// same project and semester.
func (m *MemberProfile) UpsertHistory(entry ProjectHistoryEntry) {
	if e := m.HistoryEntry(entry.ProjectID, entry.Semester); e != nil {
		*e = entry
		return
	}
	m.ProjectHistory = append(m.ProjectHistory, entry)
}

// SetHistoryStatus updates the status of the matching entry. It reports
// whether an entry was found.
func (m *MemberProfile) SetHistoryStatus(projectID, semester string, status RequestStatus) bool {
	e := m.HistoryEntry(projectID, semester)
	if e == nil {
		return false
	}
	e.Status = status
	return true
}

// RemoveHistory deletes the matching entry, preserving order of the rest.
func (m *MemberProfile) RemoveHistory(projectID, semester string) {
	for i := range m.ProjectHistory {
		e := m.ProjectHistory[i]
		if e.ProjectID == projectID && e.Semester == semester {
			m.ProjectHistory = append(m.ProjectHistory[:i], m.ProjectHistory[i+1:]...)
			return
		}
	}
}

// FlagshipFor returns the project id of the member's accepted flagship seat
// for the semester, if any.
func (m *MemberProfile) FlagshipFor(semester string) (string, bool) {
	id, ok := m.ActiveFlagship[semester]
	return id, ok
}

// SetFlagship records an accepted flagship seat for the semester.
func (m *MemberProfile) SetFlagship(semester, projectID string) {
	if m.ActiveFlagship == nil {
		m.ActiveFlagship = make(map[string]string)
	}
	m.ActiveFlagship[semester] = projectID
}

// ClearFlagship removes the flagship assignment for the semester if it points
// at the given project.
func (m *MemberProfile) ClearFlagship(semester, projectID string) {
	if m.ActiveFlagship[semester] == projectID {
		delete(m.ActiveFlagship, semester)
	}
}
