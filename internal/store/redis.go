package store

import (
    "context"
    "encoding/json"
    "fmt"
    "net/url"
    "sort"
    "strconv"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// Redis mirrors snapshots as JSON under duel:session:<id> with a TTL,
// indexed by the duel:sessions set for restore.
type Redis struct {
    rdb *redis.Client
    ttl time.Duration
}

// OpenRedis connects using a redis:// or rediss:// URL and pings the server.
func OpenRedis(ctx context.Context, rawURL string, ttl time.Duration) (*Redis, error) {
    if strings.TrimSpace(rawURL) == "" {
        return nil, fmt.Errorf("REDIS_URL required for redis snapshot store")
    }
    opts, err := ParseRedisURL(rawURL)
    if err != nil { return nil, fmt.Errorf("parse redis url: %w", err) }
    rdb := redis.NewClient(opts)
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    return NewRedis(rdb, ttl), nil
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
    if ttl <= 0 { ttl = defaultTTL }
    return &Redis{rdb: rdb, ttl: ttl}
}

func (s *Redis) Close() error {
    if s == nil || s.rdb == nil { return nil }
    return s.rdb.Close()
}

func sessionKey(id string) string { return "duel:session:" + strings.TrimSpace(id) }
func indexKey() string             { return "duel:sessions" }

// Save writes the snapshot if its version is newer than the stored one.
func (s *Redis) Save(ctx context.Context, snap *Snapshot) error {
    if snap == nil || strings.TrimSpace(snap.ID) == "" { return ErrInvalidArgs }
    key := sessionKey(snap.ID)
    raw, err := json.Marshal(snap)
    if err != nil { return err }

    // 동일 세션에 대한 역순 저장 방지 (버전 비교)
    return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
        prev, err := tx.Get(ctx, key).Bytes()
        if err != nil && err != redis.Nil { return err }
        if err == nil {
            var cur Snapshot
            if jerr := json.Unmarshal(prev, &cur); jerr == nil && cur.Version >= snap.Version {
                return ErrStaleSnapshot
            }
        }
        pipe := tx.TxPipeline()
        pipe.Set(ctx, key, raw, s.ttl)
        pipe.SAdd(ctx, indexKey(), snap.ID)
        pipe.Expire(ctx, indexKey(), s.ttl)
        _, perr := pipe.Exec(ctx)
        return perr
    }, key)
}

func (s *Redis) Load(ctx context.Context, id string) (*Snapshot, error) {
    raw, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
    if err == redis.Nil { return nil, nil }
    if err != nil { return nil, err }
    var snap Snapshot
    if err := json.Unmarshal(raw, &snap); err != nil { return nil, err }
    return &snap, nil
}

// List returns every indexed snapshot, pruning index entries whose key expired.
func (s *Redis) List(ctx context.Context) ([]*Snapshot, error) {
    ids, err := s.rdb.SMembers(ctx, indexKey()).Result()
    if err != nil { return nil, err }
    out := make([]*Snapshot, 0, len(ids))
    for _, id := range ids {
        snap, err := s.Load(ctx, id)
        if err != nil { return nil, fmt.Errorf("load %s: %w", id, err) }
        if snap == nil {
            _ = s.rdb.SRem(ctx, indexKey(), id).Err()
            continue
        }
        out = append(out, snap)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
    return out, nil
}

func (s *Redis) Delete(ctx context.Context, id string) error {
    pipe := s.rdb.TxPipeline()
    pipe.Del(ctx, sessionKey(id))
    pipe.SRem(ctx, indexKey(), strings.TrimSpace(id))
    _, err := pipe.Exec(ctx)
    return err
}

// ParseRedisURL converts redis://[:password@]host:port[/db] into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
    u, err := url.Parse(raw)
    if err != nil { return nil, err }
    if u.Scheme != "redis" && u.Scheme != "rediss" { return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme) }
    db := 0
    if p := strings.TrimPrefix(u.Path, "/"); p != "" {
        n, err := strconv.Atoi(p)
        if err != nil { return nil, fmt.Errorf("invalid db %q: %w", p, err) }
        db = n
    }
    pass, _ := u.User.Password()
    return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
