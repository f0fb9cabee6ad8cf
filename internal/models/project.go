package models

import (
	"errors"
	"fmt"
	"time"
)

// ProjectType classifies a project for the membership rules. Flagship projects
// are subject to the one-accepted-seat-per-member-per-semester limit.
type ProjectType string

const (
	ProjectTypeFlagship    ProjectType = "flagship"
	ProjectTypeNonFlagship ProjectType = "non_flagship"
)

// ProjectStatus is the lifecycle stage of a project.
type ProjectStatus string

const (
	ProjectStatusPlanning   ProjectStatus = "planning"
	ProjectStatusRecruiting ProjectStatus = "recruiting"
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusOnHold     ProjectStatus = "on_hold"
)

// Project represents a club project with bounded seating.
// CurrentSeats is mutated only by the allocation engine; the remaining fields
// are owned by admin edits.
type Project struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Type         ProjectType   `json:"type"`
	Semester     string        `json:"semester"` // opaque label, e.g. "Spring 2025"
	Status       ProjectStatus `json:"status"`
	MaxSeats     *int          `json:"max_seats,omitempty"` // nil means unlimited
	CurrentSeats int           `json:"current_seats"`
	Progress     int           `json:"progress"` // 0-100
	CreatedBy    string        `json:"created_by,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewProject validates and builds a project record.
func NewProject(id, title string, typ ProjectType, semester string, status ProjectStatus, maxSeats *int, createdBy string) (*Project, error) {
	p := &Project{
		ID:        id,
		Title:     title,
		Type:      typ,
		Semester:  semester,
		Status:    status,
		MaxSeats:  maxSeats,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	p.UpdatedAt = p.CreatedAt
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate rejects records with missing or out-of-range required fields.
func (p *Project) Validate() error {
	if p.ID == "" {
		return errors.New("project id is required")
	}
	if p.Title == "" {
		return errors.New("project title is required")
	}
	if p.Semester == "" {
		return errors.New("project semester is required")
	}
	switch p.Type {
	case ProjectTypeFlagship, ProjectTypeNonFlagship:
	default:
		return fmt.Errorf("invalid project type %q", p.Type)
	}
	switch p.Status {
	case ProjectStatusPlanning, ProjectStatusRecruiting, ProjectStatusInProgress,
		ProjectStatusCompleted, ProjectStatusOnHold:
	default:
		return fmt.Errorf("invalid project status %q", p.Status)
	}
	if p.MaxSeats != nil && *p.MaxSeats <= 0 {
		// unlimited capacity is expressed by omitting max_seats, not by zero
		return errors.New("max_seats must be positive when set")
	}
	if p.CurrentSeats < 0 {
		return errors.New("current_seats cannot be negative")
	}
	if p.MaxSeats != nil && p.CurrentSeats > *p.MaxSeats {
		// shrinking capacity below the occupied seats would strand members
		return errors.New("max_seats cannot be lower than current_seats")
	}
	if p.Progress < 0 || p.Progress > 100 {
		return errors.New("progress must be between 0 and 100")
	}
	return nil
}

// AcceptingMembers reports whether new join requests are allowed.
func (p *Project) AcceptingMembers() bool {
	return p.Status != ProjectStatusCompleted && p.Status != ProjectStatusOnHold
}

// HasFreeSeat reports whether one more seat can be taken.
func (p *Project) HasFreeSeat() bool {
	return p.MaxSeats == nil || p.CurrentSeats < *p.MaxSeats
}
