// Package system wires every domain package (stream, topic, partition,
// group, user, statelog) into one process: the root object owning the
// shared message cache, state log, and command dispatcher, plus startup
// recovery that folds the state log's replayed records into memory and
// reconciles them against what actually sits on disk. Grounded on
// vaultaire's internal/container/app.go (the single root object owning every
// subsystem's lifecycle, built once at startup and threaded through the API
// layer) adapted from its DI-container wiring to the spec's own dependency
// set.
package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ridgeline/flowvault/internal/cache"
	"github.com/ridgeline/flowvault/internal/command"
	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/cryptoutil"
	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/group"
	"github.com/ridgeline/flowvault/internal/identifier"
	"github.com/ridgeline/flowvault/internal/memtracker"
	"github.com/ridgeline/flowvault/internal/metrics"
	"github.com/ridgeline/flowvault/internal/retrypolicy"
	"github.com/ridgeline/flowvault/internal/statelog"
	"github.com/ridgeline/flowvault/internal/stream"
	"github.com/ridgeline/flowvault/internal/topic"
	"github.com/ridgeline/flowvault/internal/user"
)

// System is the process root: every stream, the user registry, the shared
// message cache, and the state log that makes every mutation crash-safe.
type System struct {
	cfg    *config.Config
	sysCfg *config.SystemConfig
	logger *zap.Logger

	users       *user.Registry
	msgCache    *cache.LRU
	memTracker  *memtracker.Tracker
	retryPolicy *retrypolicy.Policy
	metrics     *metrics.Collector
	encryptor   cryptoutil.Encryptor

	stateLog  *statelog.Log
	stateDisp *statelog.Dispatcher
	cmdDisp   *command.Dispatcher
	sessions  *sessionTable

	mu          sync.RWMutex
	streamsByID map[uint32]*stream.Stream
	idByName    map[string]uint32
	maxStreamID uint32

	groupsMu      sync.Mutex
	groupsByTopic map[*topic.Topic]*group.Registry

	persisterQueueDepth int
}

// New bootstraps a System: creates the root directory layout, opens and
// replays the state log, folds every replayed record into memory, then
// reconciles the result against whatever stream/topic directories actually
// exist on disk (a directory the log never mentions is either adopted or
// quarantined, governed by cfg.Recovery.RecreateMissingState).
func New(cfg *config.Config, logger *zap.Logger) (*System, error) {
	const op = "system.New"
	if logger == nil {
		logger = zap.NewNop()
	}
	sysCfg := &cfg.System

	for _, dir := range []string{sysCfg.StreamsPath(), sysCfg.StatePath(), sysCfg.RuntimePath(), sysCfg.BackupPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
		}
	}

	capacityBytes := int64(cfg.Cache.Size.ResolveBytes(totalSystemMemoryBytes()))
	if !cfg.Cache.Enabled {
		capacityBytes = 0
	}
	msgCache := cache.NewLRU(capacityBytes)
	memTracker := memtracker.New(msgCache, capacityBytes, logger)
	// 50 attempts/sec across every partition's no_wait persister sharing this
	// Policy, burst 10 — bounds the retry storm a simultaneous multi-partition
	// write failure (e.g. a failing disk) would otherwise produce.
	retryPolicy := retrypolicy.New(
		retrypolicy.WithLogger(logger),
		retrypolicy.WithRateLimiter(rate.NewLimiter(rate.Limit(50), 10)),
	)
	encryptor, err := cryptoutil.New(cfg.Encryption.Enabled, cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}

	stateLog, records, err := statelog.OpenAndReplay(sysCfg.StateLogPath(), cfg.State.EnforceFsync, logger)
	if err != nil {
		return nil, err
	}

	s := &System{
		cfg:                 cfg,
		sysCfg:              sysCfg,
		logger:              logger,
		users:               user.NewRegistry(),
		msgCache:            msgCache,
		memTracker:          memTracker,
		retryPolicy:         retryPolicy,
		metrics:             metrics.NewCollector(&metrics.CollectorConfig{Namespace: "flowvault"}),
		encryptor:           encryptor,
		stateLog:            stateLog,
		streamsByID:         make(map[uint32]*stream.Stream),
		idByName:            make(map[string]uint32),
		groupsByTopic:       make(map[*topic.Topic]*group.Registry),
		sessions:            newSessionTable(),
		persisterQueueDepth: 1024,
	}

	s.stateDisp = statelog.NewDispatcher(logger)
	s.registerStateHandlers()
	if err := s.stateDisp.Apply(records); err != nil {
		stateLog.Close()
		return nil, err
	}

	if err := s.reconcileOnDisk(); err != nil {
		stateLog.Close()
		return nil, err
	}

	if err := s.bootstrapRootUser(); err != nil {
		stateLog.Close()
		return nil, err
	}

	s.cmdDisp = command.NewDispatcher(logger)
	s.registerCommandHandlers()

	return s, nil
}

// defaultRootUsername and defaultRootPassword seed the only account able to
// create every other user on a brand new system. Operators are expected to
// change this password immediately after first login (ChangePassword), the
// same expectation Iggy itself sets for its iggy/iggy default.
const (
	defaultRootUsername = "root"
	defaultRootPassword = "root"
)

// bootstrapRootUser seeds a full-permission root account the first time a
// system starts with no users at all, closing the otherwise circular
// dependency where CreateUser requires an authenticated session and every
// session requires an existing user. It never fires again on restart: once
// the CodeCreateUser record lands in the state log, replay repopulates the
// registry before this runs, so the length check below is false from then
// on.
func (s *System) bootstrapRootUser() error {
	if len(s.users.All()) > 0 {
		return nil
	}
	const op = "system.bootstrapRootUser"

	rootPermissions := user.Permissions{
		Global: user.GlobalPermissions{
			ManageServers: true,
			ReadServers:   true,
			ManageUsers:   true,
			ReadUsers:     true,
			ManageStreams: true,
			ReadStreams:   true,
			ManageTopics:  true,
			ReadTopics:    true,
			PollMessages:  true,
			SendMessages:  true,
		},
	}

	u, err := s.users.Create(defaultRootUsername, defaultRootPassword, rootPermissions)
	if err != nil {
		return flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	s.logger.Warn("seeded default root user, change its password before exposing this instance",
		zap.String("username", defaultRootUsername))

	if _, err := s.journal(statelog.CodeCreateUser, encodeJSON(op, createUserPayload{
		ID: u.ID, Username: u.Username, PasswordHash: u.PasswordHash,
		Status: u.Status, CreatedAt: u.CreatedAt, Permissions: u.Permissions,
	})); err != nil {
		return err
	}
	return nil
}

// Metrics exposes the process's Prometheus collector, for wiring into the
// ops HTTP surface (internal/opsapi).
func (s *System) Metrics() *metrics.Collector {
	return s.metrics
}

// StreamCount reports the number of streams currently held in memory, used
// by the ops readiness probe as a cheap liveness signal that startup
// recovery completed.
func (s *System) StreamCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streamsByID)
}

// Streams returns a snapshot of every stream currently held, for background
// tasks (retention sweep, periodic flush) that iterate the whole tree
// outside the command path.
func (s *System) Streams() []*stream.Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*stream.Stream, 0, len(s.streamsByID))
	for _, st := range s.streamsByID {
		out = append(out, st)
	}
	return out
}

// Users returns the process's user registry, for the personal-access-token
// expirer background task.
func (s *System) Users() *user.Registry {
	return s.users
}

// SystemConfig exposes the on-disk path layout, for background tasks that
// call partition/topic methods taking *config.SystemConfig directly rather
// than going through a command handler.
func (s *System) SystemConfig() *config.SystemConfig {
	return s.sysCfg
}

// Execute runs one command against the system's dispatcher. Transports
// (TCP/QUIC/HTTP framing) decode a wire request into (code, payload) at the
// edge and call this; the dispatcher itself never sees raw bytes (§
// Wire command surface).
func (s *System) Execute(ctx context.Context, session command.Session, code command.Code, payload any) (any, error) {
	return s.cmdDisp.Dispatch(ctx, session, code, payload)
}

// Close flushes every stream's partitions and closes the state log. Callers
// should stop issuing commands before calling Close.
func (s *System) Close(deadline time.Duration) error {
	s.mu.RLock()
	streams := make([]*stream.Stream, 0, len(s.streamsByID))
	for _, st := range s.streamsByID {
		streams = append(streams, st)
	}
	s.mu.RUnlock()

	for _, st := range streams {
		if err := st.Shutdown(deadline); err != nil {
			return err
		}
	}
	s.memTracker.Stop()
	return s.stateLog.Close()
}

// deps bundles the shared infrastructure passed to stream.CreateTopic / the
// topic.Config built by restoreTopic.
func (s *System) deps() stream.Deps {
	return stream.Deps{
		Cache:               s.msgCache,
		RetryPolicy:         s.retryPolicy,
		Encryptor:           s.encryptor,
		PersisterQueueDepth: s.persisterQueueDepth,
		Logger:              s.logger,
	}
}

// withUserLocked resolves a user by numeric id and runs fn against it. The
// registry's own RWMutex guards the byID/idByName maps; a User's exported
// fields are mutated here only from the single-threaded command dispatch or
// replay path, so no further locking is needed beyond what User itself holds
// for its token set.
func (s *System) withUserLocked(id uint32, fn func(*user.User) error) error {
	u, err := s.users.Get(identifier.Numeric(id))
	if err != nil {
		return err
	}
	return fn(u)
}

// restoreStream folds a replayed (or reconciliation-synthesized)
// CreateStream record into memory, building the stream's directory tree if
// it is not already there.
func (s *System) restoreStream(id uint32, name string) error {
	const op = "system.restoreStream"
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.idByName[name]; exists {
		return flowerr.Newf(flowerr.KindAlreadyExists, op, "stream %q already exists", name)
	}
	st, err := stream.Create(s.sysCfg, id, name)
	if err != nil {
		return err
	}
	s.streamsByID[id] = st
	s.idByName[name] = id
	if id > s.maxStreamID {
		s.maxStreamID = id
	}
	return nil
}

// deleteStreamLocked removes a stream's on-disk tree and its bookkeeping.
// Callers must hold s.mu for writing.
func (s *System) deleteStreamLocked(id uint32) error {
	const op = "system.deleteStreamLocked"
	st, ok := s.streamsByID[id]
	if !ok {
		return flowerr.Newf(flowerr.KindNotFound, op, "stream %d not found", id)
	}
	if err := os.RemoveAll(s.sysCfg.StreamPath(id)); err != nil {
		return flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	s.dropGroupsForStream(st)
	delete(s.streamsByID, id)
	delete(s.idByName, st.Name)
	return nil
}

// dropGroupsForStream discards any consumer-group registries held for the
// stream's topics, so a later topic id reuse never resolves the old
// registry by pointer confusion.
func (s *System) dropGroupsForStream(st *stream.Stream) {
	topics := st.Topics()
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()
	for _, t := range topics {
		delete(s.groupsByTopic, t)
	}
}

// restoreTopic folds a CreateTopic record into memory, via topic.Open so any
// segment data already on disk (a prior run's messages) is recovered rather
// than discarded. requireExisting is true for a genuine state log replay
// (the topic must already have its partitions on disk) and false when
// adopting an on-disk topic directory reconcileTopicsOnDisk found with no
// matching state record (see topic.Open).
func (s *System) restoreTopic(streamID, topicID uint32, name string, settings topic.Settings, initialPartitions uint32, requireExisting bool) error {
	st, err := s.streamByID(streamID)
	if err != nil {
		return err
	}
	deps := s.deps()
	t, err := topic.Open(topic.Keys{StreamID: streamID, TopicID: topicID}, s.sysCfg, topic.Config{
		Name:                name,
		Settings:            settings,
		InitialPartitions:   initialPartitions,
		Cache:               deps.Cache,
		RetryPolicy:         deps.RetryPolicy,
		Encryptor:           deps.Encryptor,
		PersisterQueueDepth: deps.PersisterQueueDepth,
		Logger:              deps.Logger,
	}, requireExisting)
	if err != nil {
		return err
	}
	return st.AttachTopic(t)
}

// streamByID resolves a stream by numeric id.
func (s *System) streamByID(id uint32) (*stream.Stream, error) {
	const op = "system.streamByID"
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streamsByID[id]
	if !ok {
		return nil, flowerr.Newf(flowerr.KindNotFound, op, "stream %d not found", id)
	}
	return st, nil
}

// topicByID resolves a topic scoped to its stream by numeric id.
func (s *System) topicByID(streamID, topicID uint32) (*topic.Topic, error) {
	st, err := s.streamByID(streamID)
	if err != nil {
		return nil, err
	}
	return st.Topic(identifier.Numeric(topicID))
}

// groupRegistry returns (lazily creating) the consumer-group registry for
// t. Keyed by the topic's pointer rather than its id, since topic ids are
// only unique within a stream, not across the whole process.
func (s *System) groupRegistry(t *topic.Topic) *group.Registry {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()
	g, ok := s.groupsByTopic[t]
	if !ok {
		g = group.NewRegistry(t)
		s.groupsByTopic[t] = g
	}
	return g
}

// GroupsFor returns the consumer-group registry already created for t, if
// any, without the side effect of lazily creating one (unlike
// groupRegistry, used by the metrics publisher background task so merely
// inspecting lag never conjures a registry no client has joined).
func (s *System) GroupsFor(t *topic.Topic) (*group.Registry, bool) {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()
	g, ok := s.groupsByTopic[t]
	return g, ok
}

// journal appends a control-plane record to the state log, counting it
// toward the state_log_appends_total metric. Every command handler that
// mutates durable state goes through this instead of s.stateLog.Append
// directly, so the metric can never drift out of sync with an added call
// site.
func (s *System) journal(code statelog.Code, data []byte) (statelog.Record, error) {
	s.metrics.StateLogAppends.Inc()
	return s.stateLog.Append(code, data)
}

// numericID is a small readability wrapper around identifier.Numeric for
// call sites in this package that only ever address by numeric id (state
// log payloads always carry numeric ids, never names).
func numericID(id uint32) identifier.Identifier { return identifier.Numeric(id) }

// reconcileOnDisk scans the streams directory for entries the state log
// replay never mentioned — orphaned either by a crash between writing the
// directory and journaling its creation, or by restoring a data directory
// without its matching state log. With RecreateMissingState it synthesizes
// a CreateStream/CreateTopic record for each orphan (assigning a generated
// name, since the real one was never journaled) so the orphan becomes a
// normal, addressable stream/topic. Otherwise it quarantines the orphan
// under the backup directory rather than silently losing or silently
// exposing it.
func (s *System) reconcileOnDisk() error {
	const op = "system.reconcileOnDisk"
	entries, err := os.ReadDir(s.sysCfg.StreamsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		streamID := uint32(id)

		s.mu.RLock()
		_, known := s.streamsByID[streamID]
		s.mu.RUnlock()
		if known {
			continue
		}

		if !s.cfg.Recovery.RecreateMissingState {
			dest := filepath.Join(s.sysCfg.BackupPath(), fmt.Sprintf("orphan_stream_%d", streamID))
			if err := os.Rename(filepath.Join(s.sysCfg.StreamsPath(), e.Name()), dest); err != nil {
				return flowerr.Wrap(flowerr.KindFatalIO, op, err)
			}
			s.logger.Warn("moved orphan stream directory to backup, no matching state log record",
				zap.Uint32("stream_id", streamID), zap.String("backup_path", dest))
			continue
		}

		name := fmt.Sprintf("recovered-stream-%d", streamID)
		s.logger.Warn("recreating missing state for orphan stream directory",
			zap.Uint32("stream_id", streamID), zap.String("synthesized_name", name))
		if _, err := s.journal(statelog.CodeCreateStream, encodeJSON(op, createStreamPayload{ID: streamID, Name: name})); err != nil {
			return err
		}
		if err := s.restoreStream(streamID, name); err != nil {
			return err
		}
		if err := s.reconcileTopicsOnDisk(streamID); err != nil {
			return err
		}
	}
	return nil
}

func (s *System) reconcileTopicsOnDisk(streamID uint32) error {
	const op = "system.reconcileTopicsOnDisk"
	entries, err := os.ReadDir(s.sysCfg.TopicsPath(streamID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		topicID := uint32(id)
		name := fmt.Sprintf("recovered-topic-%d", topicID)
		settings := topic.Settings{
			Segment:              s.cfg.Segment,
			Partition:            s.cfg.Partition,
			MaxSize:              s.cfg.Topic.MaxSize,
			DeleteOldestSegments: s.cfg.Topic.DeleteOldestSegments,
			PartitionerPolicy:    topic.Balanced,
		}

		s.logger.Warn("recreating missing state for orphan topic directory",
			zap.Uint32("stream_id", streamID), zap.Uint32("topic_id", topicID), zap.String("synthesized_name", name))

		// restoreTopic discovers whatever partitions already sit on disk via
		// topic.Open; InitialPartitions here only matters as the fallback for
		// a topic directory with zero partition subdirectories.
		if err := s.restoreTopic(streamID, topicID, name, settings, 1, false); err != nil {
			return err
		}
		if _, err := s.journal(statelog.CodeCreateTopic, encodeJSON(op, createTopicPayload{
			StreamID: streamID, TopicID: topicID, Name: name, Settings: settings, InitialPartitions: 1,
		})); err != nil {
			return err
		}
	}
	return nil
}
