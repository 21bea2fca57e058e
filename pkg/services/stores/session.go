package stores

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/liut/agrochat/pkg/models/aigc"
)

// errors
var (
	ErrEmptyID = errors.New("empty session id")
)

// SessionStore keeps sessions by id. Get never fails for an unknown id, it returns a fresh session.
type SessionStore interface {
	Get(ctx context.Context, id string) (*aigc.Session, error)
	Save(ctx context.Context, sess *aigc.Session) error
	Reset(ctx context.Context, id string) error
}

// NewSessionStore uses redis when redisURI is set, memory otherwise
func NewSessionStore(ctx context.Context, redisURI string, ttl time.Duration) (SessionStore, error) {
	if len(redisURI) == 0 {
		logger().Infow("sessions in memory")
		return NewMemorySessions(), nil
	}
	rc, err := NewRedisClient(ctx, redisURI)
	if err != nil {
		return nil, err
	}
	logger().Infow("sessions in redis", "ttl", ttl)
	return NewRedisSessions(rc, ttl), nil
}

type redisSessions struct {
	rc  RedisClient
	ttl time.Duration // zero keeps forever
}

// NewRedisSessions ...
func NewRedisSessions(rc RedisClient, ttl time.Duration) SessionStore {
	return &redisSessions{rc: rc, ttl: ttl}
}

func (s *redisSessions) Get(ctx context.Context, id string) (*aigc.Session, error) {
	if len(id) == 0 {
		return nil, ErrEmptyID
	}
	sess := new(aigc.Session)
	err := s.rc.Get(ctx, sessionKey(id)).Scan(sess)
	if errors.Is(err, redis.Nil) {
		return aigc.NewSession(id), nil
	}
	if err != nil {
		logger().Infow("load session fail", "id", id, "err", err)
		return nil, err
	}
	sess.ID = id
	return sess, nil
}

func (s *redisSessions) Save(ctx context.Context, sess *aigc.Session) error {
	if sess == nil || len(sess.ID) == 0 {
		return ErrEmptyID
	}
	err := s.rc.Set(ctx, sessionKey(sess.ID), sess, s.ttl).Err()
	if err != nil {
		logger().Infow("save session fail", "id", sess.ID, "err", err)
		return err
	}
	logger().Debugw("save session ok", "id", sess.ID, "turns", len(sess.History))
	return nil
}

func (s *redisSessions) Reset(ctx context.Context, id string) error {
	if len(id) == 0 {
		return ErrEmptyID
	}
	return s.rc.Del(ctx, sessionKey(id)).Err()
}

func sessionKey(id string) string {
	return "sess-" + id
}

type memorySessions struct {
	mu   sync.RWMutex
	data map[string]*aigc.Session
}

// NewMemorySessions keeps sessions in process, nothing expires
func NewMemorySessions() SessionStore {
	return &memorySessions{data: make(map[string]*aigc.Session)}
}

func (s *memorySessions) Get(ctx context.Context, id string) (*aigc.Session, error) {
	if len(id) == 0 {
		return nil, ErrEmptyID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.data[id]; ok {
		return cloneSession(sess), nil
	}
	return aigc.NewSession(id), nil
}

func (s *memorySessions) Save(ctx context.Context, sess *aigc.Session) error {
	if sess == nil || len(sess.ID) == 0 {
		return ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sess.ID] = cloneSession(sess)
	return nil
}

func (s *memorySessions) Reset(ctx context.Context, id string) error {
	if len(id) == 0 {
		return ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

func cloneSession(sess *aigc.Session) *aigc.Session {
	out := *sess
	out.History = sess.History.Clone()
	out.Docs = aigc.Docs{
		Milvus:   append([]string(nil), sess.Docs.Milvus...),
		BM25:     append([]string(nil), sess.Docs.BM25...),
		Reranked: append([]string(nil), sess.Docs.Reranked...),
	}
	return &out
}
