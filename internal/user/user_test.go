package user_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/user"
)

func TestVerifyPasswordAcceptsCorrectRejectsWrong(t *testing.T) {
	u, err := user.New(1, "alice", "hunter2", user.Permissions{})
	require.NoError(t, err)

	require.NoError(t, u.VerifyPassword("hunter2"))
	require.Error(t, u.VerifyPassword("wrong"))
}

func TestVerifyPasswordRejectsInactiveUser(t *testing.T) {
	u, err := user.New(1, "alice", "hunter2", user.Permissions{})
	require.NoError(t, err)
	u.Status = user.StatusInactive
	require.Error(t, u.VerifyPassword("hunter2"))
}

func TestCreateTokenThenAuthenticate(t *testing.T) {
	u, err := user.New(1, "alice", "hunter2", user.Permissions{})
	require.NoError(t, err)

	raw, err := u.CreateToken("ci", nil)
	require.NoError(t, err)
	require.Len(t, raw, 64)

	require.NoError(t, u.AuthenticateToken(raw, time.Now()))
	require.Error(t, u.AuthenticateToken("not-the-token-0000000000000000000000000000000000000000000000", time.Now()))
}

func TestCreateTokenRejectsDuplicateName(t *testing.T) {
	u, err := user.New(1, "alice", "hunter2", user.Permissions{})
	require.NoError(t, err)
	_, err = u.CreateToken("ci", nil)
	require.NoError(t, err)
	_, err = u.CreateToken("ci", nil)
	require.Error(t, err)
}

func TestAuthenticateTokenRejectsExpired(t *testing.T) {
	u, err := user.New(1, "alice", "hunter2", user.Permissions{})
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	raw, err := u.CreateToken("ci", &past)
	require.NoError(t, err)
	require.Error(t, u.AuthenticateToken(raw, time.Now()))
}

func TestPruneExpiredTokensRemovesOnlyExpired(t *testing.T) {
	u, err := user.New(1, "alice", "hunter2", user.Permissions{})
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	_, err = u.CreateToken("expired", &past)
	require.NoError(t, err)
	_, err = u.CreateToken("live", &future)
	require.NoError(t, err)

	removed := u.PruneExpiredTokens(time.Now())
	require.Equal(t, 1, removed)
	require.Len(t, u.Tokens(), 1)
}

func TestPermissionsAllowsGlobalOverridesScoped(t *testing.T) {
	perms := user.Permissions{Global: user.GlobalPermissions{SendMessages: true}}
	require.True(t, perms.Allows(user.ActionSendMessages, 7, 3))
}

func TestPermissionsAllowsPerTopicOverride(t *testing.T) {
	perms := user.Permissions{
		PerStream: map[uint32]user.StreamPermissions{
			1: {
				PerTopic: map[uint32]user.TopicPermissions{
					5: {SendMessages: true},
				},
			},
		},
	}
	require.True(t, perms.Allows(user.ActionSendMessages, 1, 5))
	require.False(t, perms.Allows(user.ActionSendMessages, 1, 6))
	require.False(t, perms.Allows(user.ActionSendMessages, 2, 5))
}

func TestPermissionsFallsBackToStreamLevelWithoutTopicOverride(t *testing.T) {
	perms := user.Permissions{
		PerStream: map[uint32]user.StreamPermissions{
			1: {SendMessages: true},
		},
	}
	require.True(t, perms.Allows(user.ActionSendMessages, 1, 9))
}
