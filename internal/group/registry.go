package group

import (
	"sync"

	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/identifier"
	"github.com/ridgeline/flowvault/internal/topic"
)

// Registry is a topic's consumer_groups map, kept outside internal/topic to
// avoid a dependency cycle (a coordinator needs a topic's partition count
// and lookups; a topic has no need to know about coordinators).
type Registry struct {
	topic *topic.Topic

	mu         sync.RWMutex
	byID       map[uint32]*Coordinator
	idByName   map[string]uint32
	maxGroupID uint32
}

// NewRegistry builds an empty consumer-group registry for t.
func NewRegistry(t *topic.Topic) *Registry {
	return &Registry{
		topic:    t,
		byID:     make(map[uint32]*Coordinator),
		idByName: make(map[string]uint32),
	}
}

// Create adds a new consumer group, failing with AlreadyExists if the name
// is taken.
func (r *Registry) Create(name string) (*Coordinator, error) {
	const op = "group.Registry.Create"
	if err := identifier.ValidateName(name); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.idByName[name]; exists {
		return nil, flowerr.Newf(flowerr.KindAlreadyExists, op, "consumer group %q already exists", name)
	}

	id := r.maxGroupID + 1
	c := New(id, name, r.topic)
	r.byID[id] = c
	r.idByName[name] = id
	r.maxGroupID = id
	return c, nil
}

// Restore re-inserts a consumer group at its already-assigned id (state log
// replay), rather than Create's auto-increment, so a group's id survives a
// restart even if groups were created and deleted out of order.
func (r *Registry) Restore(id uint32, name string) *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := New(id, name, r.topic)
	r.byID[id] = c
	r.idByName[name] = id
	if id > r.maxGroupID {
		r.maxGroupID = id
	}
	return c
}

// Delete removes a consumer group.
func (r *Registry) Delete(id identifier.Identifier) error {
	const op = "group.Registry.Delete"
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.resolveLocked(id)
	if err != nil {
		return flowerr.Wrap(flowerr.KindNotFound, op, err)
	}
	delete(r.byID, c.ID)
	delete(r.idByName, c.Name)
	return nil
}

// Get resolves a consumer group by numeric id or name.
func (r *Registry) Get(id identifier.Identifier) (*Coordinator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(id)
}

func (r *Registry) resolveLocked(id identifier.Identifier) (*Coordinator, error) {
	const op = "group.Registry.resolve"
	var groupID uint32
	if id.IsNumeric() {
		groupID = id.NumericValue()
	} else {
		gid, ok := r.idByName[id.NameValue()]
		if !ok {
			return nil, flowerr.Newf(flowerr.KindNotFound, op, "consumer group %q not found", id.NameValue())
		}
		groupID = gid
	}
	c, ok := r.byID[groupID]
	if !ok {
		return nil, flowerr.Newf(flowerr.KindNotFound, op, "consumer group %s not found", id.String())
	}
	return c, nil
}

// All returns every consumer group in the registry.
func (r *Registry) All() []*Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Coordinator, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}
