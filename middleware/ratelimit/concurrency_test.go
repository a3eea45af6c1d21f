package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"vault-gateway/middleware/ratelimit/domain"
	"vault-gateway/middleware/ratelimit/infra"
)

func TestConcurrencyMiddleware_TimesOutWhenNoSlot(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	secondDone := make(chan struct{})
	var startedOnce sync.Once

	// handler que segura a vaga até liberarmos.
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedOnce.Do(func() { close(started) })
		<-release
		w.WriteHeader(http.StatusOK)
	})

	h := ConcurrencyMiddleware(ConcurrencyOptions{
		Max:            1,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: 25 * time.Millisecond,
	})(next)

	var wg sync.WaitGroup
	wg.Add(2)

	// request 1: ocupa a única vaga e fica pendurado
	go func() {
		defer wg.Done()
		r1 := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		w1 := httptest.NewRecorder()
		h.ServeHTTP(w1, r1)
		if w1.Code != http.StatusOK {
			t.Errorf("expected first request 200, got %d", w1.Code)
		}
	}()

	// espera a primeira realmente entrar no handler
	select {
	case <-started:
	case <-time.After(200 * time.Millisecond):
		close(release)
		wg.Wait()
		t.Fatalf("timeout waiting first request to start")
	}

	// request 2: deve falhar por timeout ao tentar adquirir
	go func() {
		defer wg.Done()
		r2 := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		w2 := httptest.NewRecorder()
		h.ServeHTTP(w2, r2)
		if w2.Code != http.StatusServiceUnavailable {
			t.Errorf("expected second request 503, got %d", w2.Code)
		}
		close(secondDone)
	}()

	// garante que a segunda terminou antes de liberar a primeira (senão a 2ª pode adquirir)
	select {
	case <-secondDone:
	case <-time.After(500 * time.Millisecond):
		close(release)
		wg.Wait()
		t.Fatalf("timeout waiting second request to finish")
	}

	// libera a primeira
	close(release)
	wg.Wait()
}

func TestConcurrencyMiddleware_SharedPoolShowsInFlight(t *testing.T) {
	pool := infra.NewVaultPool(2)
	stats := infra.NewMemoryStatsStore()

	entered := make(chan struct{})
	release := make(chan struct{})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
	})

	h := ConcurrencyMiddleware(ConcurrencyOptions{
		Pool:  pool,
		Stats: stats,
		KeyFn: func(*http.Request) string { return "client-a" },
	})(next)

	done := make(chan int, 1)
	go func() {
		r := httptest.NewRequest(http.MethodPost, "http://example/upload", nil)
		r.Header.Set(RequestIDHeader, "req-1")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		done <- w.Code
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting request to enter handler")
	}

	inFlight := pool.InFlight()
	if len(inFlight) != 1 {
		close(release)
		t.Fatalf("expected 1 in-flight request, got %d", len(inFlight))
	}
	got := inFlight[0]
	if got.ID != "req-1" || got.Key != "client-a" || got.Method != http.MethodPost || got.Path != "/upload" {
		t.Errorf("unexpected in-flight request: %+v", got)
	}
	if got.Start.IsZero() {
		t.Errorf("expected Start to be stamped")
	}

	close(release)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if n := pool.Len(); n != 0 {
		t.Errorf("expected pool empty after request, got %d", n)
	}

	c := stats.Scope(domain.ScopeConcurrency)
	if c.Allowed != 1 || c.Denied != 0 {
		t.Errorf("unexpected concurrency stats: %+v", c)
	}
}

func TestConcurrencyMiddleware_GeneratesRequestID(t *testing.T) {
	h := ConcurrencyMiddleware(ConcurrencyOptions{Max: 1})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if _, err := uuid.Parse(w.Header().Get(RequestIDHeader)); err != nil {
		t.Errorf("expected generated UUID in %s, got %q", RequestIDHeader, w.Header().Get(RequestIDHeader))
	}
}

func TestConcurrencyMiddleware_DisabledPassesThrough(t *testing.T) {
	called := false
	h := ConcurrencyMiddleware(ConcurrencyOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://example/", nil))
	if !called {
		t.Fatalf("expected next handler to be called")
	}
}
