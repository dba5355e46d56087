package model

import "strings"

// Role is the caller identity attached to administrative enqueues. The
// pipeline itself is role-agnostic; the role is recorded so the audit-log
// collaborator can attribute who triggered what.
type Role string

const (
	// RoleAdmin may trigger bulk audits and retry failed jobs.
	RoleAdmin Role = "ADMIN"
	// RoleEditor may trigger single-POI audits.
	RoleEditor Role = "EDITOR"
	// RoleViewer is read-only.
	RoleViewer Role = "VIEWER"
)

// ParseRole normalises a header value into a Role; unknown values map to
// RoleViewer, the least-privileged identity.
func ParseRole(s string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleEditor:
		return RoleEditor
	default:
		return RoleViewer
	}
}

// CanEnqueue reports whether the role may submit pipeline work.
func (r Role) CanEnqueue() bool {
	return r == RoleAdmin || r == RoleEditor
}

// CanRetryFailed reports whether the role may resubmit failed jobs.
func (r Role) CanRetryFailed() bool {
	return r == RoleAdmin
}
