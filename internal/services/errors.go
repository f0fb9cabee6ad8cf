package services

import (
	"errors"
	"fmt"

	"github.com/clubstack/memberhub/internal/models"
)

// Entity names used by NotFoundError.
const (
	EntityProject = "project"
	EntityMember  = "member"
	EntityRequest = "join request"
)

// Business-rule failures of the allocation engine. All of them abort the whole
// transaction: none of the operation's writes are visible afterwards.
var (
	// ErrDuplicateRequest means a join request already exists for this
	// member/project pair.
	ErrDuplicateRequest = errors.New("a join request already exists for this member and project")

	// ErrNotAcceptingMembers means the project's status forbids new requests.
	ErrNotAcceptingMembers = errors.New("project is not accepting new members")

	// ErrCapacityExceeded means the project has no free seats.
	ErrCapacityExceeded = errors.New("project has no free seats")

	// ErrAlreadyMember means the member already occupies a seat in the project.
	ErrAlreadyMember = errors.New("member already belongs to this project")
)

// NotFoundError reports a missing referenced entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// InvalidStateError reports an operation against a request that is not in the
// required status, e.g. approving an already-rejected request.
type InvalidStateError struct {
	RequestID string
	Status    models.RequestStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("join request %q is %s, not pending", e.RequestID, e.Status)
}

// FlagshipConflictError reports that the member already holds the single
// flagship slot for the semester, naming the conflicting project so the UI
// can explain the rejection.
type FlagshipConflictError struct {
	Semester          string
	ExistingProjectID string
}

func (e *FlagshipConflictError) Error() string {
	return fmt.Sprintf("member already has flagship project %q for semester %q", e.ExistingProjectID, e.Semester)
}
