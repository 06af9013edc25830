// Package stream implements the Stream entity: a named container of
// topics, resolved by either numeric id or name. Grounded on vaultaire's
// StreamManager (CreateStream/DeleteStream/GetStream) narrowed from "all
// streams in the process" to one stream's topic namespace, since here the
// System owns the map of streams, not a flat manager.
package stream

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ridgeline/flowvault/internal/cache"
	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/cryptoutil"
	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/identifier"
	"github.com/ridgeline/flowvault/internal/retrypolicy"
	"github.com/ridgeline/flowvault/internal/topic"
)

// Stream is a named collection of topics, unique by name within the process.
type Stream struct {
	ID        uint32
	Name      string
	CreatedAt time.Time

	sys *config.SystemConfig

	mu          sync.RWMutex
	topicsByID  map[uint32]*topic.Topic
	idByName    map[string]uint32
	maxTopicID  uint32
}

// Deps bundles the shared infrastructure every topic created under this
// stream needs, so callers don't thread it through every method.
type Deps struct {
	Cache               *cache.LRU
	RetryPolicy         *retrypolicy.Policy
	Encryptor           cryptoutil.Encryptor
	PersisterQueueDepth int
	Logger              *zap.Logger
}

// Create builds a new, empty stream and its on-disk directory tree.
func Create(sys *config.SystemConfig, id uint32, name string) (*Stream, error) {
	if err := identifier.ValidateName(name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(sys.TopicsPath(id), 0o755); err != nil {
		return nil, flowerr.Wrap(flowerr.KindFatalIO, "stream.Create", err)
	}
	return &Stream{
		ID:         id,
		Name:       name,
		CreatedAt:  time.Now().UTC(),
		sys:        sys,
		topicsByID: make(map[uint32]*topic.Topic),
		idByName:   make(map[string]uint32),
	}, nil
}

// CreateTopic creates a new topic within the stream, failing with
// AlreadyExists if the name is taken.
func (s *Stream) CreateTopic(deps Deps, name string, settings topic.Settings, initialPartitions uint32) (*topic.Topic, error) {
	const op = "stream.CreateTopic"
	if err := identifier.ValidateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.idByName[name]; exists {
		return nil, flowerr.Newf(flowerr.KindAlreadyExists, op, "topic %q already exists in stream %d", name, s.ID)
	}

	id := s.maxTopicID + 1
	t, err := topic.Create(topic.Keys{StreamID: s.ID, TopicID: id}, s.sys, topic.Config{
		Name:                name,
		Settings:            settings,
		InitialPartitions:   initialPartitions,
		Cache:               deps.Cache,
		RetryPolicy:         deps.RetryPolicy,
		Encryptor:           deps.Encryptor,
		PersisterQueueDepth: deps.PersisterQueueDepth,
		Logger:              deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	s.topicsByID[id] = t
	s.idByName[name] = id
	s.maxTopicID = id
	return t, nil
}

// AttachTopic inserts an already-constructed topic (e.g. reconstructed via
// topic.Open during startup recovery) into the stream's topic table.
func (s *Stream) AttachTopic(t *topic.Topic) error {
	const op = "stream.AttachTopic"
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.idByName[t.Name]; exists {
		return flowerr.Newf(flowerr.KindAlreadyExists, op, "topic %q already attached to stream %d", t.Name, s.ID)
	}
	s.topicsByID[t.Keys.TopicID] = t
	s.idByName[t.Name] = t.Keys.TopicID
	if t.Keys.TopicID > s.maxTopicID {
		s.maxTopicID = t.Keys.TopicID
	}
	return nil
}

// Topic resolves an identifier (numeric id or name) to a topic.
func (s *Stream) Topic(id identifier.Identifier) (*topic.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(id)
}

func (s *Stream) resolveLocked(id identifier.Identifier) (*topic.Topic, error) {
	const op = "stream.Topic"
	var topicID uint32
	if id.IsNumeric() {
		topicID = id.NumericValue()
	} else {
		tid, ok := s.idByName[id.NameValue()]
		if !ok {
			return nil, flowerr.Newf(flowerr.KindNotFound, op, "topic %q not found", id.NameValue())
		}
		topicID = tid
	}
	t, ok := s.topicsByID[topicID]
	if !ok {
		return nil, flowerr.Newf(flowerr.KindNotFound, op, "topic %s not found", id.String())
	}
	return t, nil
}

// Topics returns every topic in the stream.
func (s *Stream) Topics() []*topic.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*topic.Topic, 0, len(s.topicsByID))
	for _, t := range s.topicsByID {
		out = append(out, t)
	}
	return out
}

// DeleteTopic removes a topic's on-disk data and its name/id mapping.
func (s *Stream) DeleteTopic(id identifier.Identifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.resolveLocked(id)
	if err != nil {
		return err
	}
	if err := t.Delete(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.sys.TopicPath(s.ID, t.Keys.TopicID)); err != nil {
		return flowerr.Wrap(flowerr.KindFatalIO, "stream.DeleteTopic", err)
	}
	delete(s.topicsByID, t.Keys.TopicID)
	for name, tid := range s.idByName {
		if tid == t.Keys.TopicID {
			delete(s.idByName, name)
			break
		}
	}
	return nil
}

// Purge empties every topic's partitions without deleting them.
func (s *Stream) Purge() error {
	s.mu.RLock()
	topics := make([]*topic.Topic, 0, len(s.topicsByID))
	for _, t := range s.topicsByID {
		topics = append(topics, t)
	}
	s.mu.RUnlock()

	for _, t := range topics {
		if err := t.Purge(); err != nil {
			return err
		}
	}
	return nil
}

// RunRetentionSweep runs a retention sweep over every topic, summing results.
func (s *Stream) RunRetentionSweep() (topic.RetentionResult, error) {
	s.mu.RLock()
	topics := make([]*topic.Topic, 0, len(s.topicsByID))
	for _, t := range s.topicsByID {
		topics = append(topics, t)
	}
	s.mu.RUnlock()

	var total topic.RetentionResult
	for _, t := range topics {
		r, err := t.RunRetentionSweep()
		if err != nil {
			return total, err
		}
		total.SegmentsDeleted += r.SegmentsDeleted
		total.MessagesDeleted += r.MessagesDeleted
	}
	return total, nil
}

// Shutdown flushes every topic's partitions before process exit.
func (s *Stream) Shutdown(deadline time.Duration) error {
	s.mu.RLock()
	topics := make([]*topic.Topic, 0, len(s.topicsByID))
	for _, t := range s.topicsByID {
		topics = append(topics, t)
	}
	s.mu.RUnlock()

	for _, t := range topics {
		if err := t.Shutdown(deadline); err != nil {
			return err
		}
	}
	return nil
}
