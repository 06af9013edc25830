package user_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/identifier"
	"github.com/ridgeline/flowvault/internal/user"
)

func TestRegistryCreateRejectsDuplicateUsername(t *testing.T) {
	r := user.NewRegistry()
	_, err := r.Create("alice", "pw", user.Permissions{})
	require.NoError(t, err)
	_, err = r.Create("alice", "pw2", user.Permissions{})
	require.Error(t, err)
}

func TestRegistryGetByIDAndUsername(t *testing.T) {
	r := user.NewRegistry()
	u, err := r.Create("alice", "pw", user.Permissions{})
	require.NoError(t, err)

	byID, err := r.Get(identifier.Numeric(u.ID))
	require.NoError(t, err)
	require.Same(t, u, byID)

	name, err := identifier.Name("alice")
	require.NoError(t, err)
	byName, err := r.Get(name)
	require.NoError(t, err)
	require.Same(t, u, byName)
}

func TestRegistryDeleteRemovesUser(t *testing.T) {
	r := user.NewRegistry()
	u, err := r.Create("alice", "pw", user.Permissions{})
	require.NoError(t, err)
	require.NoError(t, r.Delete(identifier.Numeric(u.ID)))
	_, err = r.Get(identifier.Numeric(u.ID))
	require.Error(t, err)
}

func TestRegistryPruneExpiredTokensAcrossUsers(t *testing.T) {
	r := user.NewRegistry()
	_, err := r.Create("alice", "pw", user.Permissions{})
	require.NoError(t, err)
	require.Equal(t, 0, r.PruneExpiredTokens(time.Now()))
}
