// Package roles is the client-side permission predicate consulted before a
// role-restricted mutation. It is an affordance gate only: the backend
// enforces roles on its own, so nothing here is a security boundary.
package roles

import "strings"

type Role string

const (
	Doctor     Role = "doctor"
	Technician Role = "technician"
)

// Parse normalises a role name. Unknown names yield "" which every check
// denies.
func Parse(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case Doctor:
		return Doctor
	case Technician:
		return Technician
	}
	return ""
}

func (r Role) Valid() bool {
	return r == Doctor || r == Technician
}

type Action string

const (
	ViewPatients        Action = "viewPatients"
	MutatePatients      Action = "mutatePatients"
	ViewScans           Action = "viewScans"
	UploadScan          Action = "uploadScan"
	AddOrEditAssessment Action = "addOrEditAssessment"
	DeleteScan          Action = "deleteScan"
)

// Actions lists the closed action set in a stable order.
var Actions = []Action{
	ViewPatients,
	MutatePatients,
	ViewScans,
	UploadScan,
	AddOrEditAssessment,
	DeleteScan,
}

// restricted maps an action to the only roles allowed to perform it. Actions
// absent from the map are open to every valid role.
var restricted = map[Action][]Role{
	AddOrEditAssessment: {Doctor},
}

func known(a Action) bool {
	for _, k := range Actions {
		if k == a {
			return true
		}
	}
	return false
}

// CanPerform reports whether role may perform action. It fails closed on an
// unknown role or action.
func CanPerform(action Action, role Role) bool {
	if !role.Valid() || !known(action) {
		return false
	}
	allowed, ok := restricted[action]
	if !ok {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// Allowed returns the actions role may perform, in Actions order.
func Allowed(role Role) []Action {
	var out []Action
	for _, a := range Actions {
		if CanPerform(a, role) {
			out = append(out, a)
		}
	}
	return out
}
