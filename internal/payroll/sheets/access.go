package sheets

import "github.com/opscrm/opscrm/internal/auth"

// Scope limits project managers to sheets they created or whose work they manage.
type Scope struct {
	UserID     int64
	Restricted bool
}

// ScopeFor derives the visibility scope of a principal.
func ScopeFor(p auth.Principal) Scope {
	return Scope{UserID: p.UserID, Restricted: p.Role.IsProjectManager()}
}

// Allows reports whether the scope may see and change s.
func (sc Scope) Allows(s *Sheet) bool {
	if !sc.Restricted {
		return true
	}
	if s.CreatedBy == sc.UserID {
		return true
	}
	return s.PMID != nil && *s.PMID == sc.UserID
}

// AllowsWork reports whether the scope may bind a sheet to w.
func (sc Scope) AllowsWork(w *Work) bool {
	if !sc.Restricted {
		return true
	}
	if w.PMID != nil && *w.PMID == sc.UserID {
		return true
	}
	return w.CreatedBy != nil && *w.CreatedBy == sc.UserID
}
