package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vault-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores de decisões (rate limit e concorrência) em
// hashes do Redis, todos sob o mesmo prefixo:
//
//	<prefix>:total                      allowed/denied acumulado
//	<prefix>:scope:<escopo>             allowed/denied por escopo
//	<prefix>:minute:<escopo>:<yyyymmddhhmm>  série por minuto (expira em ttl)
//	<prefix>:route                      "<escopo>:<método> <path>:<campo>"
//	<prefix>:key:<chave>                por chave, se trackKeys (expira em ttl)
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "gateway:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	scope := string(ev.ScopeOrDefault())
	totalKey := s.prefix + ":total"

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)
	pipe.HIncrBy(ctx, s.prefix+":scope:"+scope, field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s:%s", s.prefix, scope, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if ev.Method != "" || ev.Path != "" {
		routeKey := s.prefix + ":route"
		routeField := strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path)
		routeField = strings.TrimSpace(routeField)
		if routeField != "" {
			pipe.HIncrBy(ctx, routeKey, scope+":"+routeField+":"+field, 1)
		}
	}

	if s.trackKeys {
		k := strings.TrimSpace(string(ev.Key))
		if k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals lê os contadores acumulados de um escopo.
func (s *RedisStatsStore) Totals(ctx context.Context, scope domain.StatsScope) (Counters, error) {
	if s == nil || s.rdb == nil {
		return Counters{}, nil
	}
	if scope == "" {
		scope = domain.ScopeRateLimit
	}

	vals, err := s.rdb.HGetAll(ctx, s.prefix+":scope:"+string(scope)).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("reading %s totals: %w", scope, err)
	}

	var c Counters
	if v, ok := vals["allowed"]; ok {
		c.Allowed, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := vals["denied"]; ok {
		c.Denied, _ = strconv.ParseInt(v, 10, 64)
	}
	return c, nil
}

// RecordOccupancy publica a ocupação atual de um vault em <prefix>:vault:<name>.
func (s *RedisStatsStore) RecordOccupancy(ctx context.Context, name string, inUse, capacity int, at time.Time) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	key := s.prefix + ":vault:" + name
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, "in_use", inUse, "capacity", capacity, "at", at.UTC().Format(time.RFC3339))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// OccupancySource é o mínimo que o reporter precisa de um pool.
type OccupancySource interface {
	Len() int
	Capacity() int
}

// StartOccupancyReporter publica a ocupação de src a cada `every` até ctx
// encerrar. Erros são best-effort e vão para onErr (pode ser nil).
func (s *RedisStatsStore) StartOccupancyReporter(ctx DoneContext, name string, src OccupancySource, every time.Duration, onErr func(error)) {
	if s == nil || s.rdb == nil || every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				recCtx, cancel := context.WithTimeout(context.Background(), every)
				err := s.RecordOccupancy(recCtx, name, src.Len(), src.Capacity(), now)
				cancel()
				if err != nil && onErr != nil {
					onErr(err)
				}
			}
		}
	}()
}
