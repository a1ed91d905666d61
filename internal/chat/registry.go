package chat

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"
)

// Member is one delivery endpoint inside a group. Deliver must never
// block; it reports false when the frame could not be queued.
type Member interface {
	Deliver(frame []byte) bool
}

// Registry is the broadcast-group abstraction: a string key maps to the
// set of currently connected endpoints. Implementations must be safe for
// concurrent use from many connections at once.
type Registry interface {
	Join(groupKey string, m Member)
	Leave(groupKey string, m Member)
	Broadcast(ctx context.Context, groupKey string, event GroupEvent)
}

const shardCount = 16

// LocalRegistry fans out within this process. Groups are sharded so
// traffic on one room never contends with another.
type LocalRegistry struct {
	shards [shardCount]registryShard
	log    *zap.SugaredLogger
}

type registryShard struct {
	mu     sync.RWMutex
	groups map[string]map[Member]struct{}
}

func NewLocalRegistry(log *zap.SugaredLogger) *LocalRegistry {
	r := &LocalRegistry{log: log}
	for i := range r.shards {
		r.shards[i].groups = make(map[string]map[Member]struct{})
	}
	return r
}

func (r *LocalRegistry) shard(groupKey string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(groupKey))
	return &r.shards[h.Sum32()%shardCount]
}

// Join is idempotent: re-adding a member is a no-op.
// It returns the member count after the join for the Redis wrapper.
func (r *LocalRegistry) join(groupKey string, m Member) int {
	s := r.shard(groupKey)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.groups[groupKey]
	if !ok {
		members = make(map[Member]struct{})
		s.groups[groupKey] = members
	}
	members[m] = struct{}{}
	return len(members)
}

// leave is a no-op if the member is absent. Empty groups are forgotten.
// It returns the member count after the leave.
func (r *LocalRegistry) leave(groupKey string, m Member) int {
	s := r.shard(groupKey)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.groups[groupKey]
	if !ok {
		return 0
	}
	delete(members, m)
	if len(members) == 0 {
		delete(s.groups, groupKey)
		return 0
	}
	return len(members)
}

func (r *LocalRegistry) Join(groupKey string, m Member) {
	r.join(groupKey, m)
}

func (r *LocalRegistry) Leave(groupKey string, m Member) {
	r.leave(groupKey, m)
}

// Broadcast delivers the event's wire frame to every current member of
// the group, the sender included. A member that cannot accept the frame
// is skipped; failures never abort delivery to the rest and are only
// surfaced as a log notice.
func (r *LocalRegistry) Broadcast(ctx context.Context, groupKey string, event GroupEvent) {
	frame, err := json.Marshal(event.wireFrame())
	if err != nil {
		r.log.Errorw("broadcast marshal failed", "group", groupKey, "err", err)
		return
	}

	// Snapshot under the read lock, deliver outside it.
	s := r.shard(groupKey)
	s.mu.RLock()
	members := make([]Member, 0, len(s.groups[groupKey]))
	for m := range s.groups[groupKey] {
		members = append(members, m)
	}
	s.mu.RUnlock()

	dropped := 0
	for _, m := range members {
		if !m.Deliver(frame) {
			dropped++
		}
	}
	if dropped > 0 {
		r.log.Warnw("broadcast dropped for slow members", "group", groupKey, "dropped", dropped)
	}
}
