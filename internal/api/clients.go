package api

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// clientTable keeps per-client state keyed by IP address.
// Both request limiters store their bookkeeping here.
type clientTable[T any] struct {
	mu      sync.Mutex
	entries map[string]*clientEntry[T]
	now     func() time.Time
}

type clientEntry[T any] struct {
	state    T
	lastSeen time.Time
}

func newClientTable[T any](now func() time.Time) *clientTable[T] {
	if now == nil {
		now = time.Now
	}
	return &clientTable[T]{
		entries: make(map[string]*clientEntry[T]),
		now:     now,
	}
}

// update runs fn on the state for ip, creating a zero state first.
// fn runs under the table lock and must not call back into the table.
func (t *clientTable[T]) update(ip string, fn func(state *T, now time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e, ok := t.entries[ip]
	if !ok {
		e = &clientEntry[T]{}
		t.entries[ip] = e
	}
	e.lastSeen = now
	fn(&e.state, now)
}

// lookup returns a copy of the state for ip without creating one.
func (t *clientTable[T]) lookup(ip string) (state T, now time.Time, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now = t.now()
	e, ok := t.entries[ip]
	if !ok {
		return state, now, false
	}
	return e.state, now, true
}

func (t *clientTable[T]) remove(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, ip)
}

// prune drops every entry for which stale returns true and reports how many went.
func (t *clientTable[T]) prune(stale func(state *T, lastSeen, now time.Time) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	n := 0
	for ip, e := range t.entries {
		if stale(&e.state, e.lastSeen, now) {
			delete(t.entries, ip)
			n++
		}
	}
	return n
}

func (t *clientTable[T]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// extractIP extracts the client IP from the request.
// RemoteAddr is rewritten by chi's RealIP middleware when the server
// trusts a reverse proxy; otherwise it is the peer address.
func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
