package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpsong/mailroom/internal/models"
)

func TestCheck_UniversalActionsAllowedForEveryRole(t *testing.T) {
	for _, role := range []models.Role{models.RoleOperator, models.RoleAdmin, models.RoleSuperAdmin} {
		for _, action := range []Action{ActionViewDashboard, ActionSearchPackages, ActionRegisterPackage, ActionUpdatePackage, ActionChangeOwnPassword} {
			d := Check(Actor{ID: "a", Role: role}, action, "", "")
			require.Truef(t, d.Allowed, "role=%s action=%s", role, action)
		}
	}
}

func TestCheck_ManageRecipients_OperatorDenied(t *testing.T) {
	d := Check(Actor{ID: "a", Role: models.RoleOperator}, ActionManageRecipients, "", "")
	require.False(t, d.Allowed)
	require.Equal(t, "insufficient_role", d.Reason)
}

func TestCheck_ManageRecipients_AdminAndSuperAdminAllowed(t *testing.T) {
	require.True(t, Check(Actor{Role: models.RoleAdmin}, ActionManageRecipients, "", "").Allowed)
	require.True(t, Check(Actor{Role: models.RoleSuperAdmin}, ActionManageRecipients, "", "").Allowed)
}

func TestCheck_AuditLogsAndSettings_SuperAdminOnly(t *testing.T) {
	for _, action := range []Action{ActionViewAuditLogs, ActionEditSettings} {
		require.False(t, Check(Actor{Role: models.RoleOperator}, action, "", "").Allowed)
		require.False(t, Check(Actor{Role: models.RoleAdmin}, action, "", "").Allowed)
		require.True(t, Check(Actor{Role: models.RoleSuperAdmin}, action, "", "").Allowed)
	}
}

func TestCheck_AdminCanOnlyManageOperators(t *testing.T) {
	admin := Actor{ID: "admin1", Role: models.RoleAdmin}

	d := Check(admin, ActionManageUser, "op1", models.RoleOperator)
	require.True(t, d.Allowed)

	d = Check(admin, ActionManageUser, "admin2", models.RoleAdmin)
	require.False(t, d.Allowed)
	require.Equal(t, "admin_target_must_be_operator", d.Reason)

	d = Check(admin, ActionManageUser, "super1", models.RoleSuperAdmin)
	require.False(t, d.Allowed)
}

func TestCheck_SuperAdminCanManageAnyone(t *testing.T) {
	sa := Actor{ID: "sa1", Role: models.RoleSuperAdmin}
	for _, role := range []models.Role{models.RoleOperator, models.RoleAdmin, models.RoleSuperAdmin} {
		d := Check(sa, ActionManageUser, "other", role)
		require.Truef(t, d.Allowed, "role=%s", role)
	}
}

func TestCheck_NoSelfDeactivationThroughManageUser(t *testing.T) {
	sa := Actor{ID: "sa1", Role: models.RoleSuperAdmin}
	d := Check(sa, ActionManageUser, "sa1", models.RoleSuperAdmin)
	require.False(t, d.Allowed)
	require.Equal(t, "no_self_deactivation", d.Reason)
}

func TestCanDeactivate_NeverSelf(t *testing.T) {
	sa := Actor{ID: "sa1", Role: models.RoleSuperAdmin}
	d := CanDeactivate(sa, "sa1", models.RoleSuperAdmin)
	require.False(t, d.Allowed)
	require.Equal(t, "no_self_deactivation", d.Reason)
}

func TestCheck_ChangeUserRole_SuperAdminOnlyAndNotSelf(t *testing.T) {
	admin := Actor{ID: "a1", Role: models.RoleAdmin}
	d := Check(admin, ActionChangeUserRole, "op1", models.RoleAdmin)
	require.False(t, d.Allowed)
	require.Equal(t, "insufficient_role", d.Reason)

	sa := Actor{ID: "sa1", Role: models.RoleSuperAdmin}
	d = Check(sa, ActionChangeUserRole, "sa1", models.RoleAdmin)
	require.False(t, d.Allowed)
	require.Equal(t, "no_self_role_change", d.Reason)

	d = Check(sa, ActionChangeUserRole, "op1", models.RoleAdmin)
	require.True(t, d.Allowed)
}

func TestCanChangeRole_NoSelfDowngrade(t *testing.T) {
	sa := Actor{ID: "sa1", Role: models.RoleSuperAdmin}
	d := CanChangeRole(sa, "sa1", models.RoleAdmin)
	require.False(t, d.Allowed)
	require.Equal(t, "no_self_role_downgrade", d.Reason)
}
