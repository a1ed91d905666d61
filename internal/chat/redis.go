package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// subscriber is the slice of redis.PubSub that membership management
// drives. Kept small so subscription bookkeeping is testable.
type subscriber interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
}

// RedisRegistry makes the broadcast groups cluster-wide. Broadcast only
// publishes; local delivery happens when the subscription echoes the
// event back, so every instance (this one included) fans out the same
// way. Group channels are subscribed on first local member and dropped
// when the group empties.
type RedisRegistry struct {
	local  *LocalRegistry
	rdb    *redis.Client
	pubsub *redis.PubSub
	subs   subscriber
	log    *zap.SugaredLogger

	// subMu serializes the membership-count transition together with
	// the pubsub call it triggers. Without this, a Leave that observes
	// count 0 can interleave with a Join that observes count 1 and the
	// late Unsubscribe strands the new member on a channel the
	// instance no longer listens to. Held only at connection setup and
	// teardown, never on the frame path.
	subMu sync.Mutex
}

func NewRedisRegistry(rdb *redis.Client, local *LocalRegistry, log *zap.SugaredLogger) *RedisRegistry {
	pubsub := rdb.Subscribe(context.Background())
	r := &RedisRegistry{
		local:  local,
		rdb:    rdb,
		pubsub: pubsub,
		subs:   pubsub,
		log:    log,
	}
	go r.listen()
	return r
}

func (r *RedisRegistry) Join(groupKey string, m Member) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.local.join(groupKey, m) == 1 {
		if err := r.subs.Subscribe(context.Background(), groupKey); err != nil {
			r.log.Errorw("redis subscribe failed", "group", groupKey, "err", err)
		}
	}
}

func (r *RedisRegistry) Leave(groupKey string, m Member) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.local.leave(groupKey, m) == 0 {
		if err := r.subs.Unsubscribe(context.Background(), groupKey); err != nil {
			r.log.Warnw("redis unsubscribe failed", "group", groupKey, "err", err)
		}
	}
}

func (r *RedisRegistry) Broadcast(ctx context.Context, groupKey string, event GroupEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.log.Errorw("broadcast marshal failed", "group", groupKey, "err", err)
		return
	}
	if err := r.rdb.Publish(ctx, groupKey, payload).Err(); err != nil {
		r.log.Errorw("redis publish failed", "group", groupKey, "err", err)
	}
}

// listen pipes subscription echoes into the local fan-out.
func (r *RedisRegistry) listen() {
	for msg := range r.pubsub.Channel() {
		r.dispatch(msg.Channel, []byte(msg.Payload))
	}
}

func (r *RedisRegistry) dispatch(channel string, payload []byte) {
	var event GroupEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		r.log.Warnw("dropping malformed group event", "channel", channel, "err", err)
		return
	}
	r.local.Broadcast(context.Background(), channel, event)
}

func (r *RedisRegistry) Close() error {
	return r.pubsub.Close()
}
