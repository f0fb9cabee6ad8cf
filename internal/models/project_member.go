package models

import "time"

// Member roles within a project.
const (
	MemberRoleMember = "member"
	MemberRoleLead   = "lead"
)

// ProjectMember is the sub-record under a project marking an occupied seat.
// It exists exactly while the member's join request is accepted (or the member
// was added manually) and is deleted when the seat is released.
type ProjectMember struct {
	ProjectID string    `json:"project_id"`
	MemberID  string    `json:"member_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"` // member, lead
	JoinedAt  time.Time `json:"joined_at"`
}

// ValidMemberRole reports whether role is one of the known project roles.
func ValidMemberRole(role string) bool {
	return role == MemberRoleMember || role == MemberRoleLead
}
