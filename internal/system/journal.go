// Journal payload encoding for the state log (internal/statelog). Each
// record's data is a JSON-encoded struct; JSON is used rather than a
// bespoke binary layout because these are infrequent control-plane
// mutations (user/stream/topic/group CRUD), not the hot append/poll path
// the segment format is optimized for — mirroring how vaultaire's own API
// layer marshals its request/response bodies as JSON rather than a custom
// framing. No pack library offers a better fit for a small, evolving set of
// Go structs than the standard library's encoding/json.
package system

import (
	"encoding/json"
	"time"

	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/statelog"
	"github.com/ridgeline/flowvault/internal/topic"
	"github.com/ridgeline/flowvault/internal/user"
)

type createUserPayload struct {
	ID           uint32
	Username     string
	PasswordHash string
	Status       user.Status
	CreatedAt    time.Time
	Permissions  user.Permissions
}

type updateUserPayload struct {
	ID       uint32
	Username string
	Status   user.Status
}

type deleteUserPayload struct {
	ID uint32
}

type changePasswordPayload struct {
	ID           uint32
	PasswordHash string
}

type updatePermissionsPayload struct {
	ID          uint32
	Permissions user.Permissions
}

type createTokenPayload struct {
	UserID uint32
	Token  user.Token
}

type deleteTokenPayload struct {
	UserID uint32
	Name   string
}

type createStreamPayload struct {
	ID   uint32
	Name string
}

type deleteStreamPayload struct {
	ID uint32
}

type createTopicPayload struct {
	StreamID          uint32
	TopicID           uint32
	Name              string
	Settings          topic.Settings
	InitialPartitions uint32
}

type deleteTopicPayload struct {
	StreamID uint32
	TopicID  uint32
}

type partitionCountPayload struct {
	StreamID uint32
	TopicID  uint32
	Count    uint32
}

type createGroupPayload struct {
	StreamID uint32
	TopicID  uint32
	GroupID  uint32
	Name     string
}

type deleteGroupPayload struct {
	StreamID uint32
	TopicID  uint32
	GroupID  uint32
}

func encodeJSON(op string, v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Every payload here is a plain struct of primitives/maps; a marshal
		// failure would mean a programming error, not a runtime condition
		// callers can recover from.
		panic(op + ": " + err.Error())
	}
	return data
}

func decodeJSON[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, flowerr.Wrap(flowerr.KindCorruption, "system.decodeJSON", err)
	}
	return v, nil
}

// registerStateHandlers wires every statelog.Code to a closure that folds
// a replayed record into the in-memory registries. User, token and group
// records only update memory; stream, topic and partition records also go
// through the same domain calls as live commands, so they open or create the
// entity's directories on create and remove its on-disk data on delete.
func (s *System) registerStateHandlers() {
	s.stateDisp.Register(statelog.CodeCreateUser, func(data []byte) error {
		p, err := decodeJSON[createUserPayload](data)
		if err != nil {
			return err
		}
		u := user.Restore(p.ID, p.Username, p.PasswordHash, p.Status, p.CreatedAt, p.Permissions, nil)
		s.users.Restore(u)
		return nil
	})

	s.stateDisp.Register(statelog.CodeUpdateUser, func(data []byte) error {
		p, err := decodeJSON[updateUserPayload](data)
		if err != nil {
			return err
		}
		return s.withUserLocked(p.ID, func(u *user.User) error {
			u.Username = p.Username
			u.Status = p.Status
			return nil
		})
	})

	s.stateDisp.Register(statelog.CodeDeleteUser, func(data []byte) error {
		p, err := decodeJSON[deleteUserPayload](data)
		if err != nil {
			return err
		}
		return s.users.Delete(numericID(p.ID))
	})

	s.stateDisp.Register(statelog.CodeChangePassword, func(data []byte) error {
		p, err := decodeJSON[changePasswordPayload](data)
		if err != nil {
			return err
		}
		return s.withUserLocked(p.ID, func(u *user.User) error {
			u.PasswordHash = p.PasswordHash
			return nil
		})
	})

	s.stateDisp.Register(statelog.CodeUpdatePermissions, func(data []byte) error {
		p, err := decodeJSON[updatePermissionsPayload](data)
		if err != nil {
			return err
		}
		return s.withUserLocked(p.ID, func(u *user.User) error {
			u.Permissions = p.Permissions
			return nil
		})
	})

	s.stateDisp.Register(statelog.CodeCreatePersonalAccessToken, func(data []byte) error {
		p, err := decodeJSON[createTokenPayload](data)
		if err != nil {
			return err
		}
		return s.withUserLocked(p.UserID, func(u *user.User) error {
			return u.RestoreToken(p.Token)
		})
	})

	s.stateDisp.Register(statelog.CodeDeletePersonalAccessToken, func(data []byte) error {
		p, err := decodeJSON[deleteTokenPayload](data)
		if err != nil {
			return err
		}
		return s.withUserLocked(p.UserID, func(u *user.User) error {
			return u.DeleteToken(p.Name)
		})
	})

	s.stateDisp.Register(statelog.CodeCreateStream, func(data []byte) error {
		p, err := decodeJSON[createStreamPayload](data)
		if err != nil {
			return err
		}
		return s.restoreStream(p.ID, p.Name)
	})

	s.stateDisp.Register(statelog.CodeDeleteStream, func(data []byte) error {
		p, err := decodeJSON[deleteStreamPayload](data)
		if err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.deleteStreamLocked(p.ID)
	})

	s.stateDisp.Register(statelog.CodeCreateTopic, func(data []byte) error {
		p, err := decodeJSON[createTopicPayload](data)
		if err != nil {
			return err
		}
		return s.restoreTopic(p.StreamID, p.TopicID, p.Name, p.Settings, p.InitialPartitions, true)
	})

	s.stateDisp.Register(statelog.CodeDeleteTopic, func(data []byte) error {
		p, err := decodeJSON[deleteTopicPayload](data)
		if err != nil {
			return err
		}
		str, err := s.streamByID(p.StreamID)
		if err != nil {
			return err
		}
		return str.DeleteTopic(numericID(p.TopicID))
	})

	s.stateDisp.Register(statelog.CodeCreatePartitions, func(data []byte) error {
		p, err := decodeJSON[partitionCountPayload](data)
		if err != nil {
			return err
		}
		t, err := s.topicByID(p.StreamID, p.TopicID)
		if err != nil {
			return err
		}
		return t.CreatePartitions(p.Count)
	})

	s.stateDisp.Register(statelog.CodeDeletePartitions, func(data []byte) error {
		p, err := decodeJSON[partitionCountPayload](data)
		if err != nil {
			return err
		}
		t, err := s.topicByID(p.StreamID, p.TopicID)
		if err != nil {
			return err
		}
		return t.DeletePartitions(p.Count)
	})

	s.stateDisp.Register(statelog.CodeCreateConsumerGroup, func(data []byte) error {
		p, err := decodeJSON[createGroupPayload](data)
		if err != nil {
			return err
		}
		t, err := s.topicByID(p.StreamID, p.TopicID)
		if err != nil {
			return err
		}
		s.groupRegistry(t).Restore(p.GroupID, p.Name)
		return nil
	})

	s.stateDisp.Register(statelog.CodeDeleteConsumerGroup, func(data []byte) error {
		p, err := decodeJSON[deleteGroupPayload](data)
		if err != nil {
			return err
		}
		t, err := s.topicByID(p.StreamID, p.TopicID)
		if err != nil {
			return err
		}
		return s.groupRegistry(t).Delete(numericID(p.GroupID))
	})
}
