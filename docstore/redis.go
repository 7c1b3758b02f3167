package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	docKeyPrefix     = "doc:"
	idSetKeyPrefix   = "ids:"
	channelKeyPrefix = "ch:"
)

// RedisStore keeps each document in its own hash, with every field value
// JSON-encoded. A partial update is an HSET of only the changed fields, which
// gives field-level last-writer-wins across server instances. Change fanout
// rides a pub/sub channel per collection; subscribers re-read the collection
// on every notification.
type RedisStore struct {
	client *redis.Client

	// NowFunc supplies write timestamps. Redis assigns none, so this is the
	// writing client's clock.
	NowFunc func() time.Time
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		NowFunc: time.Now,
	}
}

func docKey(collection, id string) string { return docKeyPrefix + collection + ":" + id }
func idSetKey(collection string) string   { return idSetKeyPrefix + collection }
func channelKey(collection string) string { return channelKeyPrefix + collection }

func (s *RedisStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	raw, err := s.client.HGetAll(ctx, docKey(collection, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get %s/%s: %w", collection, id, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	return decodeHash(raw)
}

func (s *RedisStore) List(ctx context.Context, collection string) (map[string]Doc, error) {
	ids, err := s.client.SMembers(ctx, idSetKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", collection, err)
	}
	out := make(map[string]Doc, len(ids))
	for _, id := range ids {
		doc, err := s.Get(ctx, collection, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = doc
	}
	return out, nil
}

func (s *RedisStore) Update(ctx context.Context, collection, id string, fields Doc) error {
	exists, err := s.client.SIsMember(ctx, idSetKey(collection), id).Result()
	if err != nil {
		return fmt.Errorf("redis update %s/%s: %w", collection, id, err)
	}
	if !exists {
		return ErrNotFound
	}
	encoded, err := encodeFields(resolveDoc(fields, s.NowFunc()))
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, docKey(collection, id), encoded).Err(); err != nil {
		return fmt.Errorf("redis update %s/%s: %w", collection, id, err)
	}
	s.publish(ctx, collection, id)
	return nil
}

func (s *RedisStore) CreateIfAbsent(ctx context.Context, collection, id string, doc Doc) (bool, error) {
	// SADD is the arbitration point: exactly one concurrent caller adds the
	// id and goes on to populate the hash.
	added, err := s.client.SAdd(ctx, idSetKey(collection), id).Result()
	if err != nil {
		return false, fmt.Errorf("redis create %s/%s: %w", collection, id, err)
	}
	if added == 0 {
		return false, nil
	}
	encoded, err := encodeFields(resolveDoc(doc, s.NowFunc()))
	if err != nil {
		return false, err
	}
	if err := s.client.HSet(ctx, docKey(collection, id), encoded).Err(); err != nil {
		return false, fmt.Errorf("redis create %s/%s: %w", collection, id, err)
	}
	s.publish(ctx, collection, id)
	return true, nil
}

func (s *RedisStore) Subscribe(ctx context.Context, collection string) (<-chan map[string]Doc, func()) {
	ch := make(chan map[string]Doc, 16)
	pubsub := s.client.Subscribe(ctx, channelKey(collection))
	done := make(chan struct{})

	go func() {
		defer close(ch)
		if snapshot, err := s.List(ctx, collection); err == nil {
			ch <- snapshot
		}
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				snapshot, err := s.List(ctx, collection)
				if err != nil {
					continue
				}
				select {
				case ch <- snapshot:
				default:
					select {
					case <-ch:
					default:
					}
					ch <- snapshot
				}
			}
		}
	}()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
}

func (s *RedisStore) SubscribeDoc(ctx context.Context, collection, id string) (<-chan Doc, func()) {
	ch := make(chan Doc, 16)
	pubsub := s.client.Subscribe(ctx, channelKey(collection))
	done := make(chan struct{})

	push := func() {
		doc, err := s.Get(ctx, collection, id)
		if err != nil && err != ErrNotFound {
			return
		}
		select {
		case ch <- doc:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- doc
		}
	}

	go func() {
		defer close(ch)
		push()
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload != id {
					continue
				}
				push()
			}
		}
	}()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) publish(ctx context.Context, collection, id string) {
	_ = s.client.Publish(ctx, channelKey(collection), id).Err()
}

func encodeFields(fields Doc) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", k, err)
		}
		out[k] = string(raw)
	}
	return out, nil
}

func decodeHash(raw map[string]string) (Doc, error) {
	doc := make(Doc, len(raw))
	for k, v := range raw {
		var val interface{}
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			return nil, fmt.Errorf("decode field %q: %w", k, err)
		}
		doc[k] = val
	}
	return doc, nil
}
