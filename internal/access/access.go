// Package access implements AccessPolicy (spec.md 4.6): a pure decision
// function over (actor, action, target) with no I/O of its own. Every
// rule lives here as a literal Go switch rather than a database table —
// the role lattice is fixed and small enough that a data-driven rules
// engine would be accidental complexity, not flexibility.
package access

import "github.com/bpsong/mailroom/internal/models"

// Action enumerates every operation AccessPolicy can be asked about.
type Action string

const (
	ActionViewDashboard    Action = "view_dashboard"
	ActionSearchPackages   Action = "search_packages"
	ActionRegisterPackage  Action = "register_package"
	ActionUpdatePackage    Action = "update_package_status"
	ActionChangeOwnPassword Action = "change_own_password"
	ActionManageRecipients Action = "manage_recipients"
	ActionImportRecipients Action = "import_recipients"
	ActionViewReports      Action = "view_reports"
	ActionManageUser       Action = "manage_user"
	ActionChangeUserRole   Action = "change_user_role"
	ActionResetUserPassword Action = "reset_user_password"
	ActionViewAuditLogs    Action = "view_audit_logs"
	ActionEditSettings     Action = "edit_settings"
)

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  string // stable reason code; non-empty only when denied
}

func allow() Decision        { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Actor is the minimal actor shape the policy needs: id and role.
// Check's target arguments are empty for actions with no specific
// target (e.g. search).
type Actor struct {
	ID   string
	Role models.Role
}

// Check evaluates action for actor, optionally against targetUserID /
// targetRole (for user-management actions) or an analogous zero value
// for actions that don't target a user.
func Check(actor Actor, action Action, targetUserID string, targetRole models.Role) Decision {
	switch action {
	case ActionViewDashboard, ActionSearchPackages, ActionRegisterPackage, ActionUpdatePackage, ActionChangeOwnPassword:
		return allow() // every role

	case ActionManageRecipients, ActionImportRecipients, ActionViewReports:
		if actor.Role.Rank() >= models.RoleAdmin.Rank() {
			return allow()
		}
		return deny("insufficient_role")

	case ActionViewAuditLogs, ActionEditSettings:
		if actor.Role == models.RoleSuperAdmin {
			return allow()
		}
		return deny("insufficient_role")

	case ActionChangeUserRole:
		if actor.Role != models.RoleSuperAdmin {
			return deny("insufficient_role")
		}
		if targetUserID == actor.ID {
			return deny("no_self_role_change")
		}
		return allow()

	case ActionManageUser, ActionResetUserPassword:
		return checkManageUser(actor, action, targetUserID, targetRole)

	default:
		return deny("unknown_action")
	}
}

func checkManageUser(actor Actor, action Action, targetUserID string, targetRole models.Role) Decision {
	if actor.Role.Rank() < models.RoleAdmin.Rank() {
		return deny("insufficient_role")
	}
	if targetUserID == actor.ID && action == ActionManageUser {
		// Self-modification is allowed for profile edits elsewhere
		// (ActionChangeOwnPassword), but never through the admin
		// management action: it must not be usable to self-deactivate.
		return deny("no_self_deactivation")
	}
	if actor.Role == models.RoleAdmin && targetRole != models.RoleOperator {
		return deny("admin_target_must_be_operator")
	}
	if actor.Role == models.RoleSuperAdmin {
		return allow()
	}
	if actor.Role == models.RoleAdmin {
		return allow()
	}
	return deny("insufficient_role")
}

// CanDeactivate reports whether actor may deactivate the target account,
// folding in the "never remove own recovery ability" rule on top of
// Check(ActionManageUser, ...).
func CanDeactivate(actor Actor, targetUserID string, targetRole models.Role) Decision {
	if targetUserID == actor.ID {
		return deny("no_self_deactivation")
	}
	return checkManageUser(actor, ActionManageUser, targetUserID, targetRole)
}

// CanChangeRole reports whether actor may change target's role to
// newRole, enforcing "no self-downgrade" in addition to the
// super_admin-only rule in Check.
func CanChangeRole(actor Actor, targetUserID string, newRole models.Role) Decision {
	if targetUserID == actor.ID && newRole.Rank() < actor.Role.Rank() {
		return deny("no_self_role_downgrade")
	}
	return Check(actor, ActionChangeUserRole, targetUserID, newRole)
}
