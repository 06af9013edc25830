package command_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/command"
)

func TestDispatchInvokesRegisteredHandler(t *testing.T) {
	d := command.NewDispatcher(nil)
	d.Register(command.Ping, func(_ context.Context, _ command.Session, payload any) (any, error) {
		return "pong", nil
	})

	resp, err := d.Dispatch(context.Background(), command.Session{ID: 1}, command.Ping, nil)
	require.NoError(t, err)
	require.Equal(t, "pong", resp)
}

func TestDispatchRejectsUnregisteredCode(t *testing.T) {
	d := command.NewDispatcher(nil)
	_, err := d.Dispatch(context.Background(), command.Session{}, command.SendMessages, nil)
	require.Error(t, err)
}

func TestCodeNameMatchesWireTable(t *testing.T) {
	name, ok := command.Name(command.CreateStream)
	require.True(t, ok)
	require.Equal(t, "stream.create", name)
	require.Equal(t, "stream.create", command.CreateStream.String())
}
