package infra

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vault-gateway/middleware/ratelimit/domain"
	"vault-gateway/vault"
)

// Store é uma implementação de infra baseada em token-bucket (x/time/rate)
// com uma tabela de chaves de tamanho fixo e limpeza periódica.
//
// Os limiters ficam em slots de um vault.Vault; o mapa index só aponta a chave
// para o slot. Com a tabela cheia, Get tenta despejar chaves ociosas e, se não
// houver nenhuma, todas as chaves novas dividem o limiter de transbordo.
//
// s.mu protege só o index: leitura com RLock no caminho de chave conhecida,
// escrita exclusiva para inserir e despejar. O entry de cada chave é protegido
// pelo mutex do slot.
type Store struct {
	mu       sync.RWMutex
	index    map[string]int
	table    *vault.Vault[storeEntry]
	overflow *rate.Limiter

	rps          rate.Limit
	burst        int
	tableSize    int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	observer     vault.Observer
}

type storeEntry struct {
	key      string
	lim      *rate.Limiter
	lastSeen time.Time
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// WithTableSize define quantas chaves cabem na tabela. Valores <= 0 mantêm o padrão.
func WithTableSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.tableSize = n
		}
	}
}

func WithTableObserver(o vault.Observer) StoreOption {
	return func(s *Store) { s.observer = o }
}

func NewStore(rps float64, burst int, opts ...StoreOption) *Store {
	s := &Store{
		index:        make(map[string]int),
		rps:          rate.Limit(rps),
		burst:        burst,
		tableSize:    4096,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.table = vault.New[storeEntry](s.tableSize, vault.WithObserver(s.observer))
	s.overflow = rate.NewLimiter(s.rps, s.burst)
	return s
}

func (s *Store) RPS() float64                { return float64(s.rps) }
func (s *Store) Burst() int                  { return s.burst }
func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }
func (s *Store) TableSize() int              { return s.table.Cap() }

// Len retorna quantas chaves ocupam a tabela.
func (s *Store) Len() int { return s.table.Len() }

// Get implementa domain.LimiterStore.
func (s *Store) Get(key domain.Key) domain.Limiter {
	return bucket{s.GetString(string(key))}
}

func (s *Store) GetString(key string) *rate.Limiter {
	now := time.Now()

	// caminho rápido: chave conhecida. lastSeen é atualizado sob o mutex do
	// slot, então leitores concorrentes não disputam s.mu.
	s.mu.RLock()
	idx, ok := s.index[key]
	s.mu.RUnlock()
	if ok {
		if lim := s.touch(idx, key, now); lim != nil {
			return lim
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.index[key]; ok {
		if lim := s.touch(idx, key, now); lim != nil {
			return lim
		}
		delete(s.index, key)
	}

	view, ok := s.table.Allocate()
	if !ok {
		s.evictIdle(now.Add(-s.idleTTL))
		if view, ok = s.table.Allocate(); !ok {
			return s.overflow
		}
	}
	defer view.Release()

	lim := rate.NewLimiter(s.rps, s.burst)
	_ = view.Set(storeEntry{key: key, lim: lim, lastSeen: now})
	s.index[key] = view.Index()
	return lim
}

// Overflow retorna o limiter compartilhado usado quando a tabela está cheia.
func (s *Store) Overflow() *rate.Limiter { return s.overflow }

func (s *Store) touch(idx int, key string, now time.Time) *rate.Limiter {
	view, err := s.table.View(idx)
	if err != nil {
		return nil
	}
	defer view.Release()

	ent, err := view.Data()
	if err != nil || ent.key != key {
		return nil
	}
	ent.lastSeen = now
	return ent.lim
}

func (s *Store) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictIdle(cutoff)
}

// evictIdle exige s.mu travado.
func (s *Store) evictIdle(cutoff time.Time) int {
	n := s.table.DrainFunc(func(e storeEntry) bool { return e.lastSeen.Before(cutoff) })
	if n == 0 {
		return 0
	}

	live := make(map[string]int, len(s.index))
	for i, view := range s.table.All() {
		if ent, err := view.Get(); err == nil {
			live[ent.key] = i
		}
	}
	s.index = live
	return n
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}

// bucket adapta *rate.Limiter para domain.Limiter e domain.RetryHinter.
type bucket struct {
	lim *rate.Limiter
}

func (b bucket) Allow() bool { return b.lim.Allow() }

// RetryAfter estima quanto falta para o bucket ter um token inteiro.
func (b bucket) RetryAfter() time.Duration {
	limit := b.lim.Limit()
	if limit == rate.Inf || limit <= 0 {
		return 0
	}
	missing := 1 - b.lim.Tokens()
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(limit) * float64(time.Second))
}
