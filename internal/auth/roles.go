// Package auth resolves the calling principal and enforces payroll role sets.
package auth

// Role is the CRM role code carried in the access token.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleDirectorGen  Role = "DIRECTOR_GEN"
	RoleDirectorComm Role = "DIRECTOR_COMM"
	RoleDirectorDev  Role = "DIRECTOR_DEV"
	RolePM           Role = "PM"
	RoleHeadPM       Role = "HEAD_PM"
	RoleAccountant   Role = "BUH"
)

// Role sets used by the payroll endpoints.
var (
	DirectorRoles = []Role{RoleDirectorGen, RoleDirectorComm, RoleDirectorDev}
	PayrollRoles  = []Role{RoleAdmin, RoleDirectorGen, RoleDirectorComm, RoleDirectorDev, RolePM, RoleHeadPM, RoleAccountant}
	ApproveRoles  = []Role{RoleAdmin, RoleDirectorGen, RoleDirectorComm, RoleDirectorDev}
	PayRoles      = []Role{RoleAdmin, RoleDirectorGen, RoleDirectorComm, RoleDirectorDev, RoleAccountant}
	SheetCreators = []Role{RoleAdmin, RoleDirectorGen, RoleDirectorComm, RoleDirectorDev, RolePM}
	StatsRoles    = []Role{RoleAdmin, RoleDirectorGen, RoleDirectorComm, RoleDirectorDev, RoleAccountant}
)

// NotifyDirectorRoles lists the roles that receive approval requests.
var NotifyDirectorRoles = []Role{RoleAdmin, RoleDirectorGen, RoleDirectorComm, RoleDirectorDev}

// In reports whether r satisfies any role of the set.
// ADMIN satisfies everything; HEAD_PM satisfies any set admitting PM.
func (r Role) In(set ...Role) bool {
	if r == RoleAdmin {
		return true
	}
	for _, candidate := range set {
		if candidate == r {
			return true
		}
		if r == RoleHeadPM && candidate == RolePM {
			return true
		}
	}
	return false
}

// IsProjectManager reports whether the role is scoped to its own works.
func (r Role) IsProjectManager() bool {
	return r == RolePM || r == RoleHeadPM
}

// Strings converts a role set for SQL parameters.
func Strings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
