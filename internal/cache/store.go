// Package cache holds upstream responses in process memory and serves them
// stale-while-revalidate: fresh entries return as-is, stale entries return
// immediately while a single background refresh runs, and misses fetch
// synchronously with concurrent callers sharing one fetch.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultFreshTTL       = 5 * time.Minute
	DefaultStaleTTL       = 10 * time.Minute
	DefaultRefreshTimeout = 30 * time.Second
)

// State classifies what a lookup returned.
type State int

const (
	Miss State = iota
	Fresh
	Stale
	// Expired marks data older than the stale TTL that was served only
	// because the synchronous fetch failed.
	Expired
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Expired:
		return "expired"
	default:
		return "miss"
	}
}

// FetchFunc loads the current value for a key from the upstream source.
type FetchFunc[T any] func(ctx context.Context) (T, error)

type entry[T any] struct {
	data       T
	hasData    bool
	timestamp  time.Time
	refreshing bool
	// gen is bumped by Invalidate. A fetch that read an older gen must not
	// install its result.
	gen uint64
}

type options struct {
	freshTTL       time.Duration
	staleTTL       time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
	baseCtx        context.Context
	onRefreshError func(key string, err error)
}

// Option configures a Store.
type Option func(*options)

// WithTTL sets the fresh and stale windows. staleTTL below freshTTL is raised
// to freshTTL.
func WithTTL(freshTTL, staleTTL time.Duration) Option {
	return func(o *options) {
		if freshTTL > 0 {
			o.freshTTL = freshTTL
		}
		if staleTTL > 0 {
			o.staleTTL = staleTTL
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRefreshTimeout bounds each background refresh and shared miss fetch.
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.refreshTimeout = d
		}
	}
}

// WithContext parents background refreshes and shared miss fetches on ctx so
// shutdown can cancel them.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.baseCtx = ctx }
}

// WithRefreshErrorHandler receives background refresh failures. The original
// caller already has its stale response and never sees these.
func WithRefreshErrorHandler(fn func(key string, err error)) Option {
	return func(o *options) { o.onRefreshError = fn }
}

// Store is a keyed stale-while-revalidate cache. It is safe for concurrent use.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	opts    options

	group singleflight.Group
	wg    sync.WaitGroup
}

// New creates an empty store.
func New[T any](opts ...Option) *Store[T] {
	o := options{
		freshTTL:       DefaultFreshTTL,
		staleTTL:       DefaultStaleTTL,
		refreshTimeout: DefaultRefreshTimeout,
		now:            time.Now,
		baseCtx:        context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.staleTTL < o.freshTTL {
		o.staleTTL = o.freshTTL
	}
	return &Store[T]{entries: make(map[string]*entry[T]), opts: o}
}

// Get classifies the entry for key by age. Stale results oblige the caller to
// trigger a refresh; Miss results oblige it to fetch synchronously.
func (s *Store[T]) Get(key string) (T, State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	e, ok := s.entries[key]
	if !ok || !e.hasData {
		return zero, Miss
	}
	age := s.opts.now().Sub(e.timestamp)
	switch {
	case age < s.opts.freshTTL:
		return e.data, Fresh
	case age < s.opts.staleTTL:
		return e.data, Stale
	default:
		return zero, Miss
	}
}

// Peek returns whatever data is held for key regardless of age.
func (s *Store[T]) Peek(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	e, ok := s.entries[key]
	if !ok || !e.hasData {
		return zero, false
	}
	return e.data, true
}

// Set stores data for key stamped with the current time and clears any
// in-flight refresh claim.
func (s *Store[T]) Set(key string, data T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	e.data = data
	e.hasData = true
	e.timestamp = s.opts.now()
	e.refreshing = false
}

// BeginRefresh claims the refresh for key. Only one caller gets true until
// the refresh ends through Set, CompleteRefresh, EndRefresh or Invalidate.
func (s *Store[T]) BeginRefresh(key string) bool {
	_, ok := s.beginRefresh(key)
	return ok
}

// Generation returns the invalidation generation of key. Read it before
// fetching and pass it to CompleteRefresh.
func (s *Store[T]) Generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryLocked(key).gen
}

// CompleteRefresh installs data fetched under generation gen and clears the
// refresh claim. It reports false and leaves the entry alone when key was
// invalidated since gen was read.
func (s *Store[T]) CompleteRefresh(key string, gen uint64, data T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	if e.gen != gen {
		return false
	}
	e.data = data
	e.hasData = true
	e.timestamp = s.opts.now()
	e.refreshing = false
	return true
}

// EndRefresh drops the refresh claim for key and leaves data untouched.
func (s *Store[T]) EndRefresh(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.refreshing = false
	}
}

// Refreshing reports whether a refresh is claimed for key.
func (s *Store[T]) Refreshing(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && e.refreshing
}

// Invalidate empties the given keys, or every key when none are given. A
// fetch in flight for an invalidated key is discarded when it lands, and
// later misses start a new fetch instead of joining it.
func (s *Store[T]) Invalidate(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(keys) == 0 {
		for key, e := range s.entries {
			e.reset()
			s.group.Forget(key)
		}
		return
	}
	for _, key := range keys {
		if e, ok := s.entries[key]; ok {
			e.reset()
		}
		s.group.Forget(key)
	}
}

// Load applies the read-through policy: fresh data returns directly, stale
// data returns directly and starts at most one background refresh, and a
// miss fetches synchronously. When that fetch fails but older data is still
// held, the older data is served as Expired instead of the error.
func (s *Store[T]) Load(ctx context.Context, key string, fetch FetchFunc[T]) (T, State, error) {
	data, state := s.Get(key)
	switch state {
	case Fresh:
		return data, Fresh, nil
	case Stale:
		s.revalidate(key, fetch)
		return data, Stale, nil
	}

	gen := s.Generation(key)
	ch := s.group.DoChan(key, func() (any, error) {
		s.wg.Add(1)
		defer s.wg.Done()
		// Detached from ctx: every waiter shares this fetch.
		fetchCtx, cancel := context.WithTimeout(s.opts.baseCtx, s.opts.refreshTimeout)
		defer cancel()

		fetched, err := safeFetch(fetchCtx, fetch)
		if err != nil {
			return nil, err
		}
		s.CompleteRefresh(key, gen, fetched)
		return fetched, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, Miss, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if held, ok := s.Peek(key); ok {
				return held, Expired, nil
			}
			return zero, Miss, res.Err
		}
		return res.Val.(T), Miss, nil
	}
}

// Wait blocks until background refreshes and shared miss fetches started so
// far have finished.
func (s *Store[T]) Wait() {
	s.wg.Wait()
}

func (s *Store[T]) revalidate(key string, fetch FetchFunc[T]) {
	gen, ok := s.beginRefresh(key)
	if !ok {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.opts.baseCtx, s.opts.refreshTimeout)
		defer cancel()

		data, err := safeFetch(ctx, fetch)
		if err != nil {
			s.endRefresh(key, gen)
			if s.opts.onRefreshError != nil {
				s.opts.onRefreshError(key, err)
			}
			return
		}
		s.CompleteRefresh(key, gen, data)
	}()
}

func (s *Store[T]) beginRefresh(key string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	if e.refreshing {
		return 0, false
	}
	e.refreshing = true
	return e.gen, true
}

// endRefresh releases a failed background refresh unless an invalidation
// already released it.
func (s *Store[T]) endRefresh(key string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.gen == gen {
		e.refreshing = false
	}
}

func (s *Store[T]) entryLocked(key string) *entry[T] {
	e, ok := s.entries[key]
	if !ok {
		e = &entry[T]{}
		s.entries[key] = e
	}
	return e
}

func (e *entry[T]) reset() {
	var zero T
	e.data = zero
	e.hasData = false
	e.timestamp = time.Time{}
	e.refreshing = false
	e.gen++
}

func safeFetch[T any](ctx context.Context, fetch FetchFunc[T]) (data T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
		}
	}()
	return fetch(ctx)
}
