package permission

import "strings"

// Module and action names used across the suite. Checks against names not
// listed here deny.
const (
	ModuleCRM      = "crm"
	ModuleBilling  = "billing"
	ModuleProjects = "projects"
	ModuleTasks    = "tasks"
	ModuleTickets  = "tickets"
	ModuleChat     = "chat"
	ModuleWiki     = "wiki"
	ModuleTraining = "training"
	ModuleSupport  = "support"
	ModuleSettings = "settings"

	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
	ActionManage = "manage"
)

// Built-in role names. Matching is case-insensitive.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleSupport = "support"
	RoleStaff   = "staff"
)

// Grants maps module → action → allowed for one role.
type Grants map[string]map[string]bool

// Allows reports whether the grant set contains the module/action pair.
func (g Grants) Allows(module, action string) bool {
	actions, ok := g[module]
	if !ok {
		return false
	}
	return actions[action]
}

var allModules = []string{
	ModuleCRM, ModuleBilling, ModuleProjects, ModuleTasks, ModuleTickets,
	ModuleChat, ModuleWiki, ModuleTraining, ModuleSupport, ModuleSettings,
}

var allActions = []string{ActionRead, ActionWrite, ActionDelete, ActionManage}

func grant(actions ...string) map[string]bool {
	m := make(map[string]bool, len(actions))
	for _, a := range actions {
		m[a] = true
	}
	return m
}

func fullGrants() Grants {
	g := make(Grants, len(allModules))
	for _, mod := range allModules {
		g[mod] = grant(allActions...)
	}
	return g
}

// builtinMatrix is pure data: no I/O, safe to consult inline on every
// request.
var builtinMatrix = map[string]Grants{
	RoleAdmin: fullGrants(),
	RoleManager: {
		ModuleCRM:      grant(ActionRead, ActionWrite, ActionDelete),
		ModuleBilling:  grant(ActionRead, ActionWrite, ActionDelete),
		ModuleProjects: grant(ActionRead, ActionWrite, ActionDelete, ActionManage),
		ModuleTasks:    grant(ActionRead, ActionWrite, ActionDelete, ActionManage),
		ModuleTickets:  grant(ActionRead, ActionWrite, ActionDelete),
		ModuleChat:     grant(ActionRead, ActionWrite),
		ModuleWiki:     grant(ActionRead, ActionWrite),
		ModuleTraining: grant(ActionRead, ActionWrite),
		ModuleSupport:  grant(ActionRead, ActionWrite),
		ModuleSettings: grant(ActionRead),
	},
	RoleSupport: {
		ModuleCRM:      grant(ActionRead),
		ModuleTickets:  grant(ActionRead, ActionWrite),
		ModuleChat:     grant(ActionRead, ActionWrite),
		ModuleWiki:     grant(ActionRead),
		ModuleTraining: grant(ActionRead),
		ModuleSupport:  grant(ActionRead, ActionWrite),
	},
	RoleStaff: {
		ModuleProjects: grant(ActionRead),
		ModuleTasks:    grant(ActionRead, ActionWrite),
		ModuleTickets:  grant(ActionRead),
		ModuleChat:     grant(ActionRead, ActionWrite),
		ModuleWiki:     grant(ActionRead, ActionWrite),
		ModuleTraining: grant(ActionRead),
	},
}

// BuiltinGrants returns the static grant set for a built-in role name, or
// false when the name is not a built-in role.
func BuiltinGrants(role string) (Grants, bool) {
	g, ok := builtinMatrix[strings.ToLower(role)]
	return g, ok
}

// IsBuiltin reports whether the role name is one of the fixed roles.
func IsBuiltin(role string) bool {
	_, ok := builtinMatrix[strings.ToLower(role)]
	return ok
}
