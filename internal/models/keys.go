package models

// Record key layout shared by the allocation engine, handlers and the auditor.
// A join request's key embeds the member/project pair, so at most one request
// can ever exist for a pair: uniqueness is enforced by key collision, not by
// querying.
const (
	ProjectKeyPrefix       = "project:"
	MemberKeyPrefix        = "member:"
	JoinRequestKeyPrefix   = "joinRequest:"
	ProjectMemberKeyPrefix = "projectMember:"
)

func ProjectKey(projectID string) string { return ProjectKeyPrefix + projectID }

func MemberKey(memberID string) string { return MemberKeyPrefix + memberID }

// JoinRequestID builds the composite request id for a member/project pair.
func JoinRequestID(memberID, projectID string) string {
	return memberID + "_" + projectID
}

func JoinRequestKey(requestID string) string { return JoinRequestKeyPrefix + requestID }

func ProjectMemberKey(projectID, memberID string) string {
	return ProjectMemberKeyPrefix + projectID + "/" + memberID
}

// ProjectMemberScope returns the key prefix covering every member record of a
// single project, for prefix scans.
func ProjectMemberScope(projectID string) string {
	return ProjectMemberKeyPrefix + projectID + "/"
}
