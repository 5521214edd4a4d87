// Package authz decides whether a principal may perform an operation.
//
// Evaluation is a pure function of the principal, the policy describing the
// operation and, for owner-scoped operations, the resolved owner of the
// target resource. HTTP wiring lives in the handlers package.
package authz

import (
	"github.com/alagamento-br/apiserver/internal/auth"
)

// Requirement is the access level demanded by a policy.
type Requirement int

const (
	// Public operations need no credential.
	Public Requirement = iota
	// Authenticated operations accept any verified principal.
	Authenticated
	// OwnerScoped operations are limited to the resource owner or an admin.
	OwnerScoped
	// AdminOnly operations are limited to admins.
	AdminOnly
)

// Policy names an operation and its requirement. Table is the resource
// table whose owner is resolved for OwnerScoped policies.
type Policy struct {
	Name        string
	Requirement Requirement
	Table       string
}

// Decision is the terminal outcome of an authorization check.
type Decision int

const (
	Authorized Decision = iota
	Unauthorized
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Authorized:
		return "authorized"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Operations exposed by the service.
var (
	ListUsers      = Policy{Name: "list_users", Requirement: AdminOnly}
	PromoteUser    = Policy{Name: "promote_user", Requirement: AdminOnly}
	DeleteUser     = Policy{Name: "delete_user", Requirement: AdminOnly}
	CurrentUser    = Policy{Name: "current_user", Requirement: Authenticated}
	ListIncidents  = Policy{Name: "list_incidents", Requirement: Public}
	CreateIncident = Policy{Name: "create_incident", Requirement: Authenticated}
	UpdateIncident = Policy{Name: "update_incident", Requirement: OwnerScoped, Table: "incidents"}
	DeleteIncident = Policy{Name: "delete_incident", Requirement: OwnerScoped, Table: "incidents"}
	AssessRisk     = Policy{Name: "assess_risk", Requirement: Public}
	CurrentWeather = Policy{Name: "current_weather", Requirement: Public}
)

// Authorize evaluates policy for principal. principal is nil when the
// request carried no valid credential. ownerID is nil when the resource has
// no owner or does not exist, which denies every non-admin.
func Authorize(principal *auth.Principal, policy Policy, ownerID *int) Decision {
	if policy.Requirement == Public {
		return Authorized
	}
	if principal == nil {
		return Unauthorized
	}
	if principal.IsAdmin() {
		return Authorized
	}

	switch policy.Requirement {
	case Authenticated:
		return Authorized
	case OwnerScoped:
		if ownerID != nil && *ownerID == principal.SubjectID {
			return Authorized
		}
		return Forbidden
	default:
		return Forbidden
	}
}
