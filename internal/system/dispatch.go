// Command handlers: every command.Code the process accepts, wired to its
// domain package and permission check. Grounded on vaultaire's
// internal/api/server.go route-handler style (a thin permission check, a
// domain-package call, a response struct) narrowed from HTTP
// request/response to the command.Handler signature.
package system

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ridgeline/flowvault/internal/command"
	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/identifier"
	"github.com/ridgeline/flowvault/internal/model"
	"github.com/ridgeline/flowvault/internal/partition"
	"github.com/ridgeline/flowvault/internal/statelog"
	"github.com/ridgeline/flowvault/internal/stream"
	"github.com/ridgeline/flowvault/internal/topic"
	"github.com/ridgeline/flowvault/internal/user"
)

// streamTopicLabels resolves the "stream"/"topic" metric label pair by id,
// falling back to an empty label when a name lookup fails (the
// handler's own error path already rejects an unknown stream/topic before
// any metric is recorded, so this only ever sees valid ids).
func (s *System) streamTopicLabels(streamID, topicID uint32) (string, string) {
	st, err := s.streamByID(streamID)
	if err != nil {
		return "", ""
	}
	t, err := st.Topic(identifier.Numeric(topicID))
	if err != nil {
		return st.Name, ""
	}
	return st.Name, t.Name
}

// authenticatedUser resolves the session's owning user, failing if the
// session is unknown (never issued, logged out, or expired).
func (s *System) authenticatedUser(session command.Session) (*user.User, error) {
	const op = "system.authenticatedUser"
	userID, ok := s.sessions.userID(session.ID)
	if !ok {
		return nil, flowerr.New(flowerr.KindAuthenticationFailed, op, "no active session")
	}
	return s.users.Get(identifier.Numeric(userID))
}

func (s *System) requirePermission(session command.Session, action user.Action, streamID, topicID uint32) error {
	const op = "system.requirePermission"
	u, err := s.authenticatedUser(session)
	if err != nil {
		return err
	}
	if !u.Permissions.Allows(action, streamID, topicID) {
		return flowerr.Newf(flowerr.KindPermissionDenied, op, "user %d lacks permission for this action", u.ID)
	}
	return nil
}

// registerCommandHandlers wires every command.Code this process accepts.
func (s *System) registerCommandHandlers() {
	s.cmdDisp.Register(command.Ping, func(ctx context.Context, session command.Session, payload any) (any, error) {
		return "pong", nil
	})

	s.registerUserHandlers()
	s.registerStreamHandlers()
	s.registerTopicHandlers()
	s.registerMessageHandlers()
	s.registerGroupHandlers()
}

// ---- users, tokens, sessions ----

type CreateUserRequest struct {
	Username    string
	Password    string
	Permissions user.Permissions
}

type LoginRequest struct {
	Username string
	Password string
}

type LoginWithTokenRequest struct {
	Token string
}

type LoginResponse struct {
	Session command.Session
	UserID  uint32
}

type CreateTokenRequest struct {
	Name      string
	ExpiresAt *time.Time
}

type CreateTokenResponse struct {
	RawToken string
}

type DeleteTokenRequest struct {
	Name string
}

type UpdateUserRequest struct {
	Username string
	Status   user.Status
}

type ChangePasswordRequest struct {
	NewPassword string
}

type UpdatePermissionsRequest struct {
	Permissions user.Permissions
}

func (s *System) registerUserHandlers() {
	s.cmdDisp.Register(command.CreateUser, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.CreateUser"
		if err := s.requirePermission(session, user.ActionManageUsers, 0, 0); err != nil {
			return nil, err
		}
		req, ok := payload.(CreateUserRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		u, err := s.users.Create(req.Username, req.Password, req.Permissions)
		if err != nil {
			return nil, err
		}
		if _, err := s.journal(statelog.CodeCreateUser, encodeJSON(op, createUserPayload{
			ID: u.ID, Username: u.Username, PasswordHash: u.PasswordHash,
			Status: u.Status, CreatedAt: u.CreatedAt, Permissions: u.Permissions,
		})); err != nil {
			_ = s.users.Delete(identifier.Numeric(u.ID))
			return nil, err
		}
		return u, nil
	})

	s.cmdDisp.Register(command.DeleteUser, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.DeleteUser"
		if err := s.requirePermission(session, user.ActionManageUsers, 0, 0); err != nil {
			return nil, err
		}
		id, ok := payload.(identifier.Identifier)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		u, err := s.users.Get(id)
		if err != nil {
			return nil, err
		}
		if err := s.users.Delete(id); err != nil {
			return nil, err
		}
		if _, err := s.journal(statelog.CodeDeleteUser, encodeJSON(op, deleteUserPayload{ID: u.ID})); err != nil {
			s.users.Restore(u)
			return nil, err
		}
		return nil, nil
	})

	s.cmdDisp.Register(command.GetUser, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.GetUser"
		if err := s.requirePermission(session, user.ActionReadUsers, 0, 0); err != nil {
			return nil, err
		}
		id, ok := payload.(identifier.Identifier)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		return s.users.Get(id)
	})

	s.cmdDisp.Register(command.GetUsers, func(ctx context.Context, session command.Session, payload any) (any, error) {
		if err := s.requirePermission(session, user.ActionReadUsers, 0, 0); err != nil {
			return nil, err
		}
		return s.users.All(), nil
	})

	s.cmdDisp.Register(command.UpdateUser, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.UpdateUser"
		if err := s.requirePermission(session, user.ActionManageUsers, 0, 0); err != nil {
			return nil, err
		}
		req, ok := payload.(UpdateUserRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		u, err := s.authenticatedUser(session)
		if err != nil {
			return nil, err
		}
		prevUsername, prevStatus := u.Username, u.Status
		u.Username = req.Username
		u.Status = req.Status
		if _, err := s.journal(statelog.CodeUpdateUser, encodeJSON(op, updateUserPayload{
			ID: u.ID, Username: u.Username, Status: u.Status,
		})); err != nil {
			u.Username, u.Status = prevUsername, prevStatus
			return nil, err
		}
		return nil, nil
	})

	s.cmdDisp.Register(command.ChangePassword, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.ChangePassword"
		req, ok := payload.(ChangePasswordRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		u, err := s.authenticatedUser(session)
		if err != nil {
			return nil, err
		}
		prevHash := u.PasswordHash
		if err := u.ChangePassword(req.NewPassword); err != nil {
			return nil, err
		}
		if _, err := s.journal(statelog.CodeChangePassword, encodeJSON(op, changePasswordPayload{
			ID: u.ID, PasswordHash: u.PasswordHash,
		})); err != nil {
			u.PasswordHash = prevHash
			return nil, err
		}
		return nil, nil
	})

	s.cmdDisp.Register(command.UpdatePermissions, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.UpdatePermissions"
		if err := s.requirePermission(session, user.ActionManageUsers, 0, 0); err != nil {
			return nil, err
		}
		req, ok := payload.(UpdatePermissionsRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		u, err := s.authenticatedUser(session)
		if err != nil {
			return nil, err
		}
		prevPermissions := u.Permissions
		u.Permissions = req.Permissions
		if _, err := s.journal(statelog.CodeUpdatePermissions, encodeJSON(op, updatePermissionsPayload{
			ID: u.ID, Permissions: u.Permissions,
		})); err != nil {
			u.Permissions = prevPermissions
			return nil, err
		}
		return nil, nil
	})

	s.cmdDisp.Register(command.LoginUser, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.LoginUser"
		req, ok := payload.(LoginRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		uname, err := identifier.Name(req.Username)
		if err != nil {
			return nil, err
		}
		u, err := s.users.Get(uname)
		if err != nil {
			return nil, err
		}
		if err := u.VerifyPassword(req.Password); err != nil {
			return nil, err
		}
		sessID := s.sessions.open(u.ID)
		return LoginResponse{Session: command.Session{ID: sessID, UserID: u.ID}, UserID: u.ID}, nil
	})

	s.cmdDisp.Register(command.LogoutUser, func(ctx context.Context, session command.Session, payload any) (any, error) {
		s.sessions.close(session.ID)
		return nil, nil
	})

	s.cmdDisp.Register(command.LoginWithPersonalAccessToken, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.LoginWithPersonalAccessToken"
		req, ok := payload.(LoginWithTokenRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		hash := user.HashToken(req.Token)
		var matched *user.User
		for _, u := range s.users.All() {
			for _, t := range u.Tokens() {
				if t.Hash == hash {
					matched = u
				}
			}
		}
		if matched == nil {
			return nil, flowerr.New(flowerr.KindAuthenticationFailed, op, "unknown token")
		}
		if err := matched.AuthenticateToken(req.Token, time.Now()); err != nil {
			return nil, err
		}
		sessID := s.sessions.open(matched.ID)
		return LoginResponse{Session: command.Session{ID: sessID, UserID: matched.ID}, UserID: matched.ID}, nil
	})

	s.cmdDisp.Register(command.CreatePersonalAccessToken, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.CreatePersonalAccessToken"
		req, ok := payload.(CreateTokenRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		u, err := s.authenticatedUser(session)
		if err != nil {
			return nil, err
		}
		raw, err := u.CreateToken(req.Name, req.ExpiresAt)
		if err != nil {
			return nil, err
		}
		tokens := u.Tokens()
		var tok user.Token
		for _, t := range tokens {
			if t.Name == req.Name {
				tok = t
			}
		}
		if _, err := s.journal(statelog.CodeCreatePersonalAccessToken, encodeJSON(op, createTokenPayload{
			UserID: u.ID, Token: tok,
		})); err != nil {
			_ = u.DeleteToken(req.Name)
			return nil, err
		}
		return CreateTokenResponse{RawToken: raw}, nil
	})

	s.cmdDisp.Register(command.DeletePersonalAccessToken, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.DeletePersonalAccessToken"
		req, ok := payload.(DeleteTokenRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		u, err := s.authenticatedUser(session)
		if err != nil {
			return nil, err
		}
		var deleted user.Token
		for _, t := range u.Tokens() {
			if t.Name == req.Name {
				deleted = t
			}
		}
		if err := u.DeleteToken(req.Name); err != nil {
			return nil, err
		}
		if _, err := s.journal(statelog.CodeDeletePersonalAccessToken, encodeJSON(op, deleteTokenPayload{
			UserID: u.ID, Name: req.Name,
		})); err != nil {
			_ = u.RestoreToken(deleted)
			return nil, err
		}
		return nil, nil
	})

	s.cmdDisp.Register(command.GetPersonalAccessTokens, func(ctx context.Context, session command.Session, payload any) (any, error) {
		u, err := s.authenticatedUser(session)
		if err != nil {
			return nil, err
		}
		return u.Tokens(), nil
	})

	s.cmdDisp.Register(command.GetMe, func(ctx context.Context, session command.Session, payload any) (any, error) {
		return s.authenticatedUser(session)
	})
}

// ---- streams ----

type CreateStreamRequest struct {
	Name string
}

func (s *System) registerStreamHandlers() {
	s.cmdDisp.Register(command.CreateStream, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.CreateStream"
		if err := s.requirePermission(session, user.ActionManageStreams, 0, 0); err != nil {
			return nil, err
		}
		req, ok := payload.(CreateStreamRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		s.mu.Lock()
		if _, exists := s.idByName[req.Name]; exists {
			s.mu.Unlock()
			return nil, flowerr.Newf(flowerr.KindAlreadyExists, op, "stream %q already exists", req.Name)
		}
		id := s.maxStreamID + 1
		st, err := stream.Create(s.sysCfg, id, req.Name)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		s.streamsByID[id] = st
		s.idByName[req.Name] = id
		s.maxStreamID = id
		s.mu.Unlock()
		if _, err := s.journal(statelog.CodeCreateStream, encodeJSON(op, createStreamPayload{ID: id, Name: req.Name})); err != nil {
			s.mu.Lock()
			_ = s.deleteStreamLocked(id)
			s.mu.Unlock()
			return nil, err
		}
		return st, nil
	})

	s.cmdDisp.Register(command.DeleteStream, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.DeleteStream"
		if err := s.requirePermission(session, user.ActionManageStreams, 0, 0); err != nil {
			return nil, err
		}
		id, ok := payload.(identifier.Identifier)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		st, err := s.resolveStream(id)
		if err != nil {
			return nil, err
		}
		// Journaled before the on-disk tree is removed: DeleteStream's
		// mutation destroys data and can't be rolled back, so the record
		// must already be durable before that happens. A crash (or disk
		// failure) between the two leaves an orphan directory the next
		// startup's reconciliation quarantines or adopts, never silent loss.
		if _, err := s.journal(statelog.CodeDeleteStream, encodeJSON(op, deleteStreamPayload{ID: st.ID})); err != nil {
			return nil, err
		}
		s.mu.Lock()
		err = s.deleteStreamLocked(st.ID)
		s.mu.Unlock()
		return nil, err
	})

	s.cmdDisp.Register(command.GetStream, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.GetStream"
		if err := s.requirePermission(session, user.ActionReadStreams, 0, 0); err != nil {
			return nil, err
		}
		id, ok := payload.(identifier.Identifier)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		return s.resolveStream(id)
	})

	s.cmdDisp.Register(command.GetStreams, func(ctx context.Context, session command.Session, payload any) (any, error) {
		if err := s.requirePermission(session, user.ActionReadStreams, 0, 0); err != nil {
			return nil, err
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := make([]*stream.Stream, 0, len(s.streamsByID))
		for _, st := range s.streamsByID {
			out = append(out, st)
		}
		return out, nil
	})

	s.cmdDisp.Register(command.PurgeStream, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.PurgeStream"
		id, ok := payload.(identifier.Identifier)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		st, err := s.resolveStream(id)
		if err != nil {
			return nil, err
		}
		if err := s.requirePermission(session, user.ActionManageStreams, st.ID, 0); err != nil {
			return nil, err
		}
		return nil, st.Purge()
	})
}

// resolveStream resolves a stream by numeric id or name under s.mu.
func (s *System) resolveStream(id identifier.Identifier) (*stream.Stream, error) {
	const op = "system.resolveStream"
	s.mu.RLock()
	defer s.mu.RUnlock()
	var streamID uint32
	if id.IsNumeric() {
		streamID = id.NumericValue()
	} else {
		sid, ok := s.idByName[id.NameValue()]
		if !ok {
			return nil, flowerr.Newf(flowerr.KindNotFound, op, "stream %q not found", id.NameValue())
		}
		streamID = sid
	}
	st, ok := s.streamsByID[streamID]
	if !ok {
		return nil, flowerr.Newf(flowerr.KindNotFound, op, "stream %s not found", id.String())
	}
	return st, nil
}

// ---- topics ----

type CreateTopicRequest struct {
	StreamID          uint32
	Name              string
	Settings          topic.Settings
	InitialPartitions uint32
}

type CreatePartitionsRequest struct {
	StreamID uint32
	TopicID  uint32
	Count    uint32
}

func (s *System) registerTopicHandlers() {
	s.cmdDisp.Register(command.CreateTopic, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.CreateTopic"
		req, ok := payload.(CreateTopicRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionManageTopics, req.StreamID, 0); err != nil {
			return nil, err
		}
		st, err := s.streamByID(req.StreamID)
		if err != nil {
			return nil, err
		}
		t, err := st.CreateTopic(s.deps(), req.Name, req.Settings, req.InitialPartitions)
		if err != nil {
			return nil, err
		}
		if _, err := s.journal(statelog.CodeCreateTopic, encodeJSON(op, createTopicPayload{
			StreamID: req.StreamID, TopicID: t.Keys.TopicID, Name: req.Name,
			Settings: req.Settings, InitialPartitions: req.InitialPartitions,
		})); err != nil {
			_ = st.DeleteTopic(identifier.Numeric(t.Keys.TopicID))
			return nil, err
		}
		return t, nil
	})

	s.cmdDisp.Register(command.DeleteTopic, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.DeleteTopic"
		req, ok := payload.(struct {
			StreamID uint32
			TopicID  identifier.Identifier
		})
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionManageTopics, req.StreamID, 0); err != nil {
			return nil, err
		}
		st, err := s.streamByID(req.StreamID)
		if err != nil {
			return nil, err
		}
		t, err := st.Topic(req.TopicID)
		if err != nil {
			return nil, err
		}
		// Journaled before the partitions' on-disk data is removed, for the
		// same reason as DeleteStream: this mutation can't be undone once
		// applied.
		if _, err := s.journal(statelog.CodeDeleteTopic, encodeJSON(op, deleteTopicPayload{
			StreamID: req.StreamID, TopicID: t.Keys.TopicID,
		})); err != nil {
			return nil, err
		}
		if err := st.DeleteTopic(req.TopicID); err != nil {
			return nil, err
		}
		s.groupsMu.Lock()
		delete(s.groupsByTopic, t)
		s.groupsMu.Unlock()
		return nil, nil
	})

	s.cmdDisp.Register(command.GetTopic, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.GetTopic"
		req, ok := payload.(struct {
			StreamID uint32
			TopicID  identifier.Identifier
		})
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionReadTopics, req.StreamID, 0); err != nil {
			return nil, err
		}
		st, err := s.streamByID(req.StreamID)
		if err != nil {
			return nil, err
		}
		return st.Topic(req.TopicID)
	})

	s.cmdDisp.Register(command.GetTopics, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.GetTopics"
		streamID, ok := payload.(uint32)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionReadTopics, streamID, 0); err != nil {
			return nil, err
		}
		st, err := s.streamByID(streamID)
		if err != nil {
			return nil, err
		}
		return st.Topics(), nil
	})

	s.cmdDisp.Register(command.PurgeTopic, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.PurgeTopic"
		req, ok := payload.(struct {
			StreamID uint32
			TopicID  identifier.Identifier
		})
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionManageTopics, req.StreamID, 0); err != nil {
			return nil, err
		}
		t, err := s.resolveTopic(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		return nil, t.Purge()
	})

	s.cmdDisp.Register(command.CreatePartitions, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.CreatePartitions"
		req, ok := payload.(CreatePartitionsRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionManageTopics, req.StreamID, req.TopicID); err != nil {
			return nil, err
		}
		t, err := s.topicByID(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		if err := t.CreatePartitions(req.Count); err != nil {
			return nil, err
		}
		if _, err := s.journal(statelog.CodeCreatePartitions, encodeJSON(op, partitionCountPayload{
			StreamID: req.StreamID, TopicID: req.TopicID, Count: req.Count,
		})); err != nil {
			_ = t.DeletePartitions(req.Count)
			return nil, err
		}
		return nil, nil
	})

	s.cmdDisp.Register(command.DeletePartitions, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.DeletePartitions"
		req, ok := payload.(CreatePartitionsRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionManageTopics, req.StreamID, req.TopicID); err != nil {
			return nil, err
		}
		t, err := s.topicByID(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		// Journaled before the dropped partitions' segment data is removed:
		// DeletePartitions can't be undone once applied.
		if _, err := s.journal(statelog.CodeDeletePartitions, encodeJSON(op, partitionCountPayload{
			StreamID: req.StreamID, TopicID: req.TopicID, Count: req.Count,
		})); err != nil {
			return nil, err
		}
		if err := t.DeletePartitions(req.Count); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

func (s *System) resolveTopic(streamID uint32, topicID identifier.Identifier) (*topic.Topic, error) {
	st, err := s.streamByID(streamID)
	if err != nil {
		return nil, err
	}
	return st.Topic(topicID)
}

// ---- messages ----

type MessageInput struct {
	Payload []byte
	Headers model.Headers
}

type SendMessagesRequest struct {
	StreamID, TopicID uint32
	PartitionID       uint32
	Key               []byte
	Messages          []MessageInput
	Mode              partition.ConfirmMode
}

type SendMessagesResponse struct {
	PartitionID uint32
	LowOffset   uint64
	HighOffset  uint64
}

type PollMessagesRequest struct {
	StreamID, TopicID uint32
	PartitionID       uint32 // explicit poll when GroupID == 0
	ConsumerID        uint32 // offset identity for explicit poll
	GroupID           uint32 // consumer-group poll when nonzero
	Count             uint32
	AutoCommit        bool
}

type PollMessagesResponse struct {
	PartitionID uint32
	Messages    []model.Message
}

type ConsumerOffsetRequest struct {
	StreamID, TopicID, PartitionID uint32
	ConsumerID                     uint32
	GroupID                        uint32
	Offset                         uint64
}

type FlushUnsavedBufferRequest struct {
	StreamID, TopicID, PartitionID uint32
}

func (s *System) registerMessageHandlers() {
	s.cmdDisp.Register(command.SendMessages, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.SendMessages"
		req, ok := payload.(SendMessagesRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionSendMessages, req.StreamID, req.TopicID); err != nil {
			return nil, err
		}
		t, err := s.topicByID(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		messages := make([]model.Message, len(req.Messages))
		var payloadBytes int
		for i, in := range req.Messages {
			messages[i] = model.Message{ID: uuid.New(), Payload: in.Payload, Headers: in.Headers}
			payloadBytes += len(in.Payload)
		}

		streamLabel, topicLabel := s.streamTopicLabels(req.StreamID, req.TopicID)
		timer := prometheus.NewTimer(s.metrics.AppendLatency.WithLabelValues(streamLabel, topicLabel))
		partitionID, lo, hi, err := t.Publish(messages, req.PartitionID, req.Key, req.Mode)
		timer.ObserveDuration()
		if err != nil {
			return nil, err
		}
		s.metrics.MessagesAppended.WithLabelValues(streamLabel, topicLabel).Add(float64(len(messages)))
		s.metrics.BytesAppended.WithLabelValues(streamLabel, topicLabel).Add(float64(payloadBytes))
		return SendMessagesResponse{PartitionID: partitionID, LowOffset: lo, HighOffset: hi}, nil
	})

	s.cmdDisp.Register(command.PollMessages, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.PollMessages"
		req, ok := payload.(PollMessagesRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionPollMessages, req.StreamID, req.TopicID); err != nil {
			return nil, err
		}
		t, err := s.topicByID(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		streamLabel, topicLabel := s.streamTopicLabels(req.StreamID, req.TopicID)
		timer := prometheus.NewTimer(s.metrics.PollLatency.WithLabelValues(streamLabel, topicLabel))
		defer timer.ObserveDuration()

		if req.GroupID != 0 {
			coord, err := s.groupRegistry(t).Get(identifier.Numeric(req.GroupID))
			if err != nil {
				return nil, err
			}
			partitionID, messages, err := coord.Poll(s.sysCfg, session.ID, req.Count, req.AutoCommit)
			if err != nil {
				return nil, err
			}
			s.metrics.MessagesPolled.WithLabelValues(streamLabel, topicLabel).Add(float64(len(messages)))
			if p, ok := t.Partition(partitionID); ok {
				lag := p.CurrentOffset() + 1 - int64(p.GroupOffset(req.GroupID))
				if lag < 0 {
					lag = 0
				}
				s.metrics.ConsumerGroupLag.WithLabelValues(streamLabel, topicLabel, coord.Name).Set(float64(lag))
			}
			return PollMessagesResponse{PartitionID: partitionID, Messages: messages}, nil
		}

		p, ok := t.Partition(req.PartitionID)
		if !ok {
			return nil, flowerr.Newf(flowerr.KindNotFound, op, "partition %d not found", req.PartitionID)
		}
		lo := p.ConsumerOffset(req.ConsumerID)
		current := p.CurrentOffset()
		if current < 0 || lo > uint64(current) {
			return PollMessagesResponse{PartitionID: req.PartitionID}, nil
		}
		hi := lo + uint64(req.Count) - 1
		if hi > uint64(current) {
			hi = uint64(current)
		}
		messages, err := p.ReadRange(lo, hi)
		if err != nil {
			return nil, err
		}
		if req.AutoCommit && len(messages) > 0 {
			last := messages[len(messages)-1]
			if err := p.StoreConsumerOffset(s.sysCfg, req.ConsumerID, last.Offset+1); err != nil {
				return nil, err
			}
		}
		s.metrics.MessagesPolled.WithLabelValues(streamLabel, topicLabel).Add(float64(len(messages)))
		return PollMessagesResponse{PartitionID: req.PartitionID, Messages: messages}, nil
	})

	s.cmdDisp.Register(command.GetConsumerOffset, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.GetConsumerOffset"
		req, ok := payload.(ConsumerOffsetRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionPollMessages, req.StreamID, req.TopicID); err != nil {
			return nil, err
		}
		t, err := s.topicByID(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		p, ok := t.Partition(req.PartitionID)
		if !ok {
			return nil, flowerr.Newf(flowerr.KindNotFound, op, "partition %d not found", req.PartitionID)
		}
		if req.GroupID != 0 {
			return p.GroupOffset(req.GroupID), nil
		}
		return p.ConsumerOffset(req.ConsumerID), nil
	})

	s.cmdDisp.Register(command.StoreConsumerOffset, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.StoreConsumerOffset"
		req, ok := payload.(ConsumerOffsetRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionPollMessages, req.StreamID, req.TopicID); err != nil {
			return nil, err
		}
		t, err := s.topicByID(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		p, ok := t.Partition(req.PartitionID)
		if !ok {
			return nil, flowerr.Newf(flowerr.KindNotFound, op, "partition %d not found", req.PartitionID)
		}
		if req.GroupID != 0 {
			return nil, p.StoreGroupOffset(s.sysCfg, req.GroupID, req.Offset)
		}
		return nil, p.StoreConsumerOffset(s.sysCfg, req.ConsumerID, req.Offset)
	})

	s.cmdDisp.Register(command.FlushUnsavedBuffer, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.FlushUnsavedBuffer"
		req, ok := payload.(FlushUnsavedBufferRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionSendMessages, req.StreamID, req.TopicID); err != nil {
			return nil, err
		}
		t, err := s.topicByID(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		p, ok := t.Partition(req.PartitionID)
		if !ok {
			return nil, flowerr.Newf(flowerr.KindNotFound, op, "partition %d not found", req.PartitionID)
		}
		_, err = p.Flush(s.sysCfg)
		return nil, err
	})
}

// ---- consumer groups ----

type CreateConsumerGroupRequest struct {
	StreamID, TopicID uint32
	Name              string
}

type ConsumerGroupMemberRequest struct {
	StreamID, TopicID, GroupID uint32
}

func (s *System) registerGroupHandlers() {
	s.cmdDisp.Register(command.CreateConsumerGroup, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.CreateConsumerGroup"
		req, ok := payload.(CreateConsumerGroupRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionManageTopics, req.StreamID, req.TopicID); err != nil {
			return nil, err
		}
		t, err := s.topicByID(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		coord, err := s.groupRegistry(t).Create(req.Name)
		if err != nil {
			return nil, err
		}
		if _, err := s.journal(statelog.CodeCreateConsumerGroup, encodeJSON(op, createGroupPayload{
			StreamID: req.StreamID, TopicID: req.TopicID, GroupID: coord.ID, Name: req.Name,
		})); err != nil {
			_ = s.groupRegistry(t).Delete(identifier.Numeric(coord.ID))
			return nil, err
		}
		return coord, nil
	})

	s.cmdDisp.Register(command.DeleteConsumerGroup, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.DeleteConsumerGroup"
		req, ok := payload.(ConsumerGroupMemberRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionManageTopics, req.StreamID, req.TopicID); err != nil {
			return nil, err
		}
		t, err := s.topicByID(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		registry := s.groupRegistry(t)
		coord, err := registry.Get(identifier.Numeric(req.GroupID))
		if err != nil {
			return nil, err
		}
		if err := registry.Delete(identifier.Numeric(req.GroupID)); err != nil {
			return nil, err
		}
		if _, err := s.journal(statelog.CodeDeleteConsumerGroup, encodeJSON(op, deleteGroupPayload{
			StreamID: req.StreamID, TopicID: req.TopicID, GroupID: req.GroupID,
		})); err != nil {
			registry.Restore(coord.ID, coord.Name)
			return nil, err
		}
		return nil, nil
	})

	s.cmdDisp.Register(command.GetConsumerGroup, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.GetConsumerGroup"
		req, ok := payload.(ConsumerGroupMemberRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionReadTopics, req.StreamID, req.TopicID); err != nil {
			return nil, err
		}
		t, err := s.topicByID(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		return s.groupRegistry(t).Get(identifier.Numeric(req.GroupID))
	})

	s.cmdDisp.Register(command.GetConsumerGroups, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.GetConsumerGroups"
		req, ok := payload.(struct{ StreamID, TopicID uint32 })
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionReadTopics, req.StreamID, req.TopicID); err != nil {
			return nil, err
		}
		t, err := s.topicByID(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		return s.groupRegistry(t).All(), nil
	})

	s.cmdDisp.Register(command.JoinConsumerGroup, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.JoinConsumerGroup"
		req, ok := payload.(ConsumerGroupMemberRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		if err := s.requirePermission(session, user.ActionPollMessages, req.StreamID, req.TopicID); err != nil {
			return nil, err
		}
		t, err := s.topicByID(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		coord, err := s.groupRegistry(t).Get(identifier.Numeric(req.GroupID))
		if err != nil {
			return nil, err
		}
		return nil, coord.Join(session.ID)
	})

	s.cmdDisp.Register(command.LeaveConsumerGroup, func(ctx context.Context, session command.Session, payload any) (any, error) {
		const op = "system.LeaveConsumerGroup"
		req, ok := payload.(ConsumerGroupMemberRequest)
		if !ok {
			return nil, flowerr.New(flowerr.KindInvalidInput, op, "malformed request")
		}
		t, err := s.topicByID(req.StreamID, req.TopicID)
		if err != nil {
			return nil, err
		}
		coord, err := s.groupRegistry(t).Get(identifier.Numeric(req.GroupID))
		if err != nil {
			return nil, err
		}
		return nil, coord.Leave(session.ID)
	})
}
