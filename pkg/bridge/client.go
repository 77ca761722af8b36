package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/tuplespace/pkg/space"
)

// Client bridges a space to Redis. As a space.EventSink it publishes every event
// on the instance's Pub/Sub channels and, when mirroring is enabled, keeps a copy
// of each live tuple in a Redis hash that expires with the tuple's lease.
// The client is safe for concurrent use.
type Client struct {
	rdb          *redis.Client
	instanceName string
	mirror       bool
}

var _ space.EventSink = (*Client)(nil)

// NewClient creates a bridge client for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: namespace for keys and channels (must not be empty)
//   - mirror: whether to maintain the tuple mirror in addition to publishing events
func NewClient(redisOpts *redis.Options, instanceName string, mirror bool) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		mirror:       mirror,
	}, nil
}

// NewClientFromURL parses a redis:// URL and creates a client.
func NewClientFromURL(url, instanceName string, mirror bool) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return NewClient(opts, instanceName, mirror)
}

// InstanceName returns the namespace used for keys and channels.
func (c *Client) InstanceName() string { return c.instanceName }

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Used by the health check.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish mirrors the event's effect and announces it on the instance and tag
// channels.
func (c *Client) Publish(ctx context.Context, ev space.Event) error {
	if err := ev.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	if c.mirror {
		if err := c.applyMirror(ctx, ev); err != nil {
			return err
		}
	}

	eventJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, EventsChannel(c.instanceName), eventJSON)
		pipe.Publish(ctx, TagEventsChannel(c.instanceName, ev.Tag), eventJSON)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish tuple event: %w", err)
	}
	return nil
}

func (c *Client) applyMirror(ctx context.Context, ev space.Event) error {
	key := TupleKey(c.instanceName, ev.TupleID)
	tagKey := TagIndexKey(c.instanceName, ev.Tag)
	member := strconv.FormatUint(ev.TupleID, 10)

	var err error
	switch ev.Kind {
	case space.EventAvailable:
		hash, herr := EventToHash(ev)
		if herr != nil {
			return fmt.Errorf("failed to serialize tuple: %w", herr)
		}
		_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, hash)
			if ev.LiveUntil != space.Forever {
				pipe.PExpireAt(ctx, key, msToTime(ev.LiveUntil))
			}
			pipe.SAdd(ctx, tagKey, member)
			pipe.SAdd(ctx, TagsKey(c.instanceName), ev.Tag)
			return nil
		})
	case space.EventRenewed:
		_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "live_until", ev.LiveUntil, "updated_at_ms", ev.At)
			if ev.LiveUntil == space.Forever {
				pipe.Persist(ctx, key)
			} else {
				pipe.PExpireAt(ctx, key, msToTime(ev.LiveUntil))
			}
			return nil
		})
	case space.EventTaken, space.EventExpired:
		_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, tagKey, member)
			return nil
		})
	}
	if err != nil {
		return fmt.Errorf("failed to mirror %s event for tuple %d: %w", ev.Kind, ev.TupleID, err)
	}
	return nil
}

// GetTuple retrieves a mirrored tuple by id.
// Returns (nil, redis.Nil) if it is not mirrored. Use IsNotFound to check.
func (c *Client) GetTuple(ctx context.Context, id uint64) (*space.Tuple, error) {
	hashData, err := c.rdb.HGetAll(ctx, TupleKey(c.instanceName, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tuple from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	t, err := HashToTuple(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize tuple: %w", err)
	}
	return t, nil
}

// Tags returns every tag that has had mirrored tuples, sorted.
func (c *Client) Tags(ctx context.Context) ([]string, error) {
	tags, err := c.rdb.SMembers(ctx, TagsKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}
	sort.Strings(tags)
	return tags, nil
}

// ListTuples returns the mirrored tuples of tag ordered by id. Ids whose hash has
// already expired in Redis are dropped from the tag index as they are found.
func (c *Client) ListTuples(ctx context.Context, tag string) ([]*space.Tuple, error) {
	tagKey := TagIndexKey(c.instanceName, tag)
	members, err := c.rdb.SMembers(ctx, tagKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tag index: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	var stale []interface{}
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			stale = append(stale, m)
			continue
		}
		ids = append(ids, id)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, TupleKey(c.instanceName, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read mirrored tuples: %w", err)
	}

	var tuples []*space.Tuple
	for i, cmd := range cmds {
		hash := cmd.Val()
		if len(hash) == 0 {
			stale = append(stale, strconv.FormatUint(ids[i], 10))
			continue
		}
		t, err := HashToTuple(hash)
		if err != nil {
			log.Printf("[Bridge] Skipping malformed tuple %d: %v", ids[i], err)
			continue
		}
		tuples = append(tuples, t)
	}

	if len(stale) > 0 {
		if err := c.rdb.SRem(ctx, tagKey, stale...).Err(); err != nil {
			log.Printf("[Bridge] Failed to drop %d stale ids from %s: %v", len(stale), tagKey, err)
		}
	}

	sort.Slice(tuples, func(i, j int) bool { return tuples[i].ID < tuples[j].ID })
	return tuples, nil
}

// Subscription is an active Pub/Sub subscription to tuple events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *space.Event
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of tuple events. It is closed when the
// subscription is closed or its context is cancelled.
func (s *Subscription) Events() <-chan *space.Event {
	return s.events
}

// Errors returns the channel of non-fatal subscription errors, such as
// malformed messages. The subscription continues after an error.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeEvents subscribes to the events of one tag, or of the whole instance
// when tag is empty. Delivery is at-most-once: Redis drops messages for slow
// subscribers.
func (c *Client) SubscribeEvents(ctx context.Context, tag string) (*Subscription, error) {
	channel := EventsChannel(c.instanceName)
	if tag != "" {
		channel = TagEventsChannel(c.instanceName, tag)
	}

	pubsub := c.rdb.Subscribe(ctx, channel)
	// Wait for the subscription to be confirmed so no event published after
	// this call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	eventsChan := make(chan *space.Event, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				ev, err := DecodeEvent([]byte(msg.Payload))
				if err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal tuple event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
