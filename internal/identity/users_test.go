package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpsong/mailroom/internal/models"
)

func TestCreateUser_Success(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, models.CreateUserRequest{
		Username: "newop",
		Password: "Sup3r$ecretPW!",
		FullName: "New Operator",
		Role:     models.RoleOperator,
	}, "admin-1")
	require.NoError(t, err)
	assert.True(t, user.MustChangePassword)
	assert.Equal(t, models.RoleOperator, user.Role)
}

func TestCreateUser_DuplicateUsernameConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	q := svc.queue
	ctx := context.Background()
	seedUser(t, svc, q, "taken", "Sup3r$ecretPW!")

	_, err := svc.CreateUser(ctx, models.CreateUserRequest{
		Username: "taken",
		Password: "Sup3r$ecretPW!",
		FullName: "Dup",
		Role:     models.RoleOperator,
	}, "admin-1")
	require.Error(t, err)
}

func TestUpdateUser_DeactivateTerminatesSessions(t *testing.T) {
	svc, _, audit := newTestService(t)
	q := svc.queue
	ctx := context.Background()
	uid := seedUser(t, svc, q, "bob", "Sup3r$ecretPW!")

	_, _, err := svc.createSession(ctx, uid, "1.2.3.4", "ua")
	require.NoError(t, err)

	inactive := false
	updated, err := svc.UpdateUser(ctx, uid, models.UpdateUserRequest{Active: &inactive}, "admin-1")
	require.NoError(t, err)
	assert.False(t, updated.Active)

	sessions, err := svc.ListSessions(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Contains(t, audit.events, models.EventUserDeactivated)
}

func TestListUsers_ReturnsSeeded(t *testing.T) {
	svc, _, _ := newTestService(t)
	q := svc.queue
	seedUser(t, svc, q, "alice", "Sup3r$ecretPW!")

	users, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
}

func TestAdminResetPassword_ForcesChangeAndLogsOutUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	q := svc.queue
	ctx := context.Background()
	uid := seedUser(t, svc, q, "carol", "Sup3r$ecretPW!")
	_, _, err := svc.createSession(ctx, uid, "", "")
	require.NoError(t, err)

	err = svc.AdminResetPassword(ctx, uid, "An0ther$trongPW!", "admin-1")
	require.NoError(t, err)

	user, err := svc.GetUser(ctx, uid)
	require.NoError(t, err)
	assert.True(t, user.MustChangePassword)

	sessions, err := svc.ListSessions(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
