package recorder

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisSink keeps the latest record under a key, with a TTL so that a dead
// vehicle's state expires, and announces it on the key's channel.
//
// Write only hands the record to a background writer. A record not yet
// stored is replaced by the next one, so a slow server never holds up the
// caller.
type RedisSink struct {
	client  *redis.Client
	key     string
	ttl     time.Duration
	timeout time.Duration
	store   func(ctx context.Context, msg []byte) error

	latest    chan []byte
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRedisSink connects to the server at addr and checks it answers.
func NewRedisSink(addr, key string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "Recorder: couldn't reach Redis at %s", addr)
	}
	s := &RedisSink{client: client, key: key, ttl: 10 * time.Second, timeout: 200 * time.Millisecond}
	s.store = s.set
	s.start()
	return s, nil
}

func (s *RedisSink) start() {
	s.latest = make(chan []byte, 1)
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.run()
}

// set stores msg and publishes it in one transaction.
func (s *RedisSink) set(ctx context.Context, msg []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key, msg, s.ttl)
	pipe.Publish(ctx, s.key, msg)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisSink) run() {
	defer s.wg.Done()
	failing := false
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.latest:
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			err := s.store(ctx, msg)
			cancel()
			switch {
			case err != nil && !failing:
				log.Printf("Recorder: couldn't store %s: %s\n", s.key, err)
				failing = true
			case err == nil && failing:
				log.Printf("Recorder: storing %s again\n", s.key)
				failing = false
			}
		}
	}
}

func (s *RedisSink) Write(r *Record) error {
	msg, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "Recorder: couldn't marshal record")
	}
	// Drop the unsent record, if any
	select {
	case <-s.latest:
	default:
	}
	select {
	case s.latest <- msg:
	default:
	}
	return nil
}

func (s *RedisSink) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
