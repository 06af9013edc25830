package group_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/group"
	"github.com/ridgeline/flowvault/internal/identifier"
)

func TestRegistryCreateRejectsDuplicateName(t *testing.T) {
	tp := testTopic(t, testSystem(t), 1)
	r := group.NewRegistry(tp)

	_, err := r.Create("billing")
	require.NoError(t, err)
	_, err = r.Create("billing")
	require.Error(t, err)
}

func TestRegistryGetByIDAndName(t *testing.T) {
	tp := testTopic(t, testSystem(t), 1)
	r := group.NewRegistry(tp)

	c, err := r.Create("billing")
	require.NoError(t, err)

	byID, err := r.Get(identifier.Numeric(c.ID))
	require.NoError(t, err)
	require.Same(t, c, byID)

	name, err := identifier.Name("billing")
	require.NoError(t, err)
	byName, err := r.Get(name)
	require.NoError(t, err)
	require.Same(t, c, byName)
}

func TestRegistryDeleteRemovesGroup(t *testing.T) {
	tp := testTopic(t, testSystem(t), 1)
	r := group.NewRegistry(tp)

	c, err := r.Create("billing")
	require.NoError(t, err)

	require.NoError(t, r.Delete(identifier.Numeric(c.ID)))
	_, err = r.Get(identifier.Numeric(c.ID))
	require.Error(t, err)
}
