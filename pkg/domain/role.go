package domain

import (
	"strings"

	dErrors "oddcert/pkg/domain-errors"
)

// Role is the caller's role as asserted by the upstream identity gateway.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOperator  Role = "operator"
	RoleApplicant Role = "applicant"
	RoleLicensee  Role = "licensee"
)

// ParseRole validates a role header value.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleOperator, RoleApplicant, RoleLicensee:
		return r, nil
	case "":
		return "", dErrors.New(dErrors.CodeUnauthorized, "actor role is required")
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown actor role")
	}
}

// IsReviewer reports whether the role may take reviewer actions.
func (r Role) IsReviewer() bool {
	return r == RoleAdmin || r == RoleOperator
}

func (r Role) String() string { return string(r) }

// Actor identifies who performed an action.
type Actor struct {
	ID   string
	Role Role
}

// System is the actor recorded for transitions fired by background timers.
var System = Actor{ID: "system", Role: RoleAdmin}

// IsZero reports whether no actor was resolved.
func (a Actor) IsZero() bool {
	return a.ID == "" && a.Role == ""
}
