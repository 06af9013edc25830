package system_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/command"
	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/partition"
	"github.com/ridgeline/flowvault/internal/system"
	"github.com/ridgeline/flowvault/internal/topic"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.System.Path = t.TempDir()
	return cfg
}

func rootSession(t *testing.T, sys *system.System) command.Session {
	t.Helper()
	resp, err := sys.Execute(context.Background(), command.Session{}, command.LoginUser, system.LoginRequest{
		Username: "root", Password: "root",
	})
	require.NoError(t, err)
	return resp.(system.LoginResponse).Session
}

func TestNewSeedsRootUserExactlyOnce(t *testing.T) {
	cfg := testConfig(t)
	sys, err := system.New(cfg, nil)
	require.NoError(t, err)
	defer sys.Close(time.Second)

	require.Len(t, sys.Users().All(), 1)

	session := rootSession(t, sys)
	require.NotZero(t, session.ID)

	restarted, err := system.New(cfg, nil)
	require.NoError(t, err)
	defer restarted.Close(time.Second)

	require.Len(t, restarted.Users().All(), 1, "restart must not reseed a second root account")
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	sys, err := system.New(testConfig(t), nil)
	require.NoError(t, err)
	defer sys.Close(time.Second)

	_, err = sys.Execute(context.Background(), command.Session{}, command.LoginUser, system.LoginRequest{
		Username: "root", Password: "wrong",
	})
	require.Error(t, err)
}

func TestCreateUserRequiresAuthenticatedManageUsersSession(t *testing.T) {
	sys, err := system.New(testConfig(t), nil)
	require.NoError(t, err)
	defer sys.Close(time.Second)

	_, err = sys.Execute(context.Background(), command.Session{}, command.CreateUser, system.CreateUserRequest{
		Username: "alice", Password: "secretpw",
	})
	require.Error(t, err, "an unauthenticated session must not be able to create users")

	session := rootSession(t, sys)
	_, err = sys.Execute(context.Background(), session, command.CreateUser, system.CreateUserRequest{
		Username: "alice", Password: "secretpw",
	})
	require.NoError(t, err)
}

func TestSendAndPollMessagesRoundTrip(t *testing.T) {
	sys, err := system.New(testConfig(t), nil)
	require.NoError(t, err)
	defer sys.Close(time.Second)

	session := rootSession(t, sys)

	_, err = sys.Execute(context.Background(), session, command.CreateStream, system.CreateStreamRequest{Name: "orders"})
	require.NoError(t, err)

	topicAny, err := sys.Execute(context.Background(), session, command.CreateTopic, system.CreateTopicRequest{
		StreamID: 1,
		Name:     "events",
		Settings: topic.Settings{
			Segment: config.SegmentConfig{
				Size:             1 << 20,
				CacheIndexes:     true,
				CacheTimeIndexes: true,
			},
			Partition:         config.PartitionConfig{MessagesRequiredToSave: 1},
			PartitionerPolicy: topic.Balanced,
		},
		InitialPartitions: 1,
	})
	require.NoError(t, err)
	tp := topicAny.(*topic.Topic)

	sendResp, err := sys.Execute(context.Background(), session, command.SendMessages, system.SendMessagesRequest{
		StreamID:    1,
		TopicID:     tp.Keys.TopicID,
		PartitionID: 1,
		Messages:    []system.MessageInput{{Payload: []byte("hello")}},
		Mode:        partition.Wait,
	})
	require.NoError(t, err)
	sent := sendResp.(system.SendMessagesResponse)
	require.Equal(t, uint64(0), sent.LowOffset)

	pollResp, err := sys.Execute(context.Background(), session, command.PollMessages, system.PollMessagesRequest{
		StreamID:    1,
		TopicID:     tp.Keys.TopicID,
		PartitionID: 1,
		ConsumerID:  1,
		Count:       10,
	})
	require.NoError(t, err)
	polled := pollResp.(system.PollMessagesResponse)
	require.Len(t, polled.Messages, 1)
	require.Equal(t, []byte("hello"), polled.Messages[0].Payload)
}

func TestStreamCountReflectsCreatedStreams(t *testing.T) {
	sys, err := system.New(testConfig(t), nil)
	require.NoError(t, err)
	defer sys.Close(time.Second)

	require.Equal(t, 0, sys.StreamCount())

	session := rootSession(t, sys)
	_, err = sys.Execute(context.Background(), session, command.CreateStream, system.CreateStreamRequest{Name: "metrics"})
	require.NoError(t, err)

	require.Equal(t, 1, sys.StreamCount())
}
