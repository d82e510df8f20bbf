package memkv

import (
	"container/heap"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Options struct {
	Shards        int           // number of shards (default 64)
	SweepInterval time.Duration // upper bound on expirer sleep (default 1s)
	MaxBytes      uint64        // total value size limit, 0 = unlimited
}

func (o Options) withDefaults() Options {
	if o.Shards <= 0 {
		o.Shards = 64
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Second
	}
	return o
}

type Store struct {
	opts    Options
	shards  []shard
	closeCh chan struct{}
	wakeCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	nowFn   func() time.Time

	expMu sync.Mutex
	expq  expQueue

	bytes atomic.Int64 // sum of live value sizes, checked against MaxBytes
}

type shard struct {
	mu sync.RWMutex
	m  map[string]*entry
}

type entry struct {
	val      []byte
	expireAt int64 // unix nano; 0 = no expiry
}

func (e *entry) expired(now int64) bool { return e.expireAt != 0 && e.expireAt <= now }

func New(opts Options) *Store { return newStore(opts, time.Now) }

func newStore(opts Options, now func() time.Time) *Store {
	opts = opts.withDefaults()
	s := &Store{
		opts:    opts,
		shards:  make([]shard, opts.Shards),
		closeCh: make(chan struct{}),
		wakeCh:  make(chan struct{}, 1),
		nowFn:   now,
	}
	for i := range s.shards {
		s.shards[i].m = make(map[string]*entry)
	}
	s.wg.Add(1)
	go s.expirer()
	return s
}

// Close stops the expirer. The store stays readable.
func (s *Store) Close() {
	s.once.Do(func() { close(s.closeCh) })
	s.wg.Wait()
}

func (s *Store) shardFor(key string) *shard {
	// FNV-1a 64
	var h uint64 = 1469598103934665603
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return &s.shards[int(h%uint64(len(s.shards)))]
}

func (s *Store) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.nowFn().Add(ttl).UnixNano()
}

func (s *Store) fits(delta int64) bool {
	if s.opts.MaxBytes == 0 || delta <= 0 {
		return true
	}
	return uint64(s.bytes.Load()+delta) <= s.opts.MaxBytes
}

// Set stores a copy of val. ttl <= 0 keeps the key until deleted.
// Returns false when MaxBytes would be exceeded.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
	sh := s.shardFor(key)
	v := append([]byte(nil), val...)
	exp := s.deadline(ttl)
	sh.mu.Lock()
	old, had := sh.m[key]
	delta := int64(len(v))
	if had {
		delta -= int64(len(old.val))
	}
	if !s.fits(delta) {
		sh.mu.Unlock()
		return false
	}
	sh.m[key] = &entry{val: v, expireAt: exp}
	sh.mu.Unlock()
	s.bytes.Add(delta)
	if exp != 0 {
		s.enqueueExpire(key, exp)
	}
	return true
}

// Get returns a copy of the value for key.
func (s *Store) Get(key string) ([]byte, bool) {
	sh := s.shardFor(key)
	now := s.nowFn().UnixNano()
	sh.mu.RLock()
	e, ok := sh.m[key]
	if !ok || e.expired(now) {
		sh.mu.RUnlock()
		return nil, false
	}
	out := append([]byte(nil), e.val...)
	sh.mu.RUnlock()
	return out, true
}

// Exists reports whether key is present and not expired.
func (s *Store) Exists(key string) bool {
	sh := s.shardFor(key)
	now := s.nowFn().UnixNano()
	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()
	return ok && !e.expired(now)
}

// Delete removes key. Returns true if it was present and not expired.
func (s *Store) Delete(key string) bool {
	sh := s.shardFor(key)
	now := s.nowFn().UnixNano()
	sh.mu.Lock()
	e, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
	}
	sh.mu.Unlock()
	if !ok {
		return false
	}
	s.bytes.Add(-int64(len(e.val)))
	return !e.expired(now)
}

// Update applies fn to the current value (nil if absent) and stores the result,
// keeping the existing deadline. Returning nil deletes the key.
func (s *Store) Update(key string, fn func(old []byte) []byte) bool {
	sh := s.shardFor(key)
	now := s.nowFn().UnixNano()
	sh.mu.Lock()
	e, had := sh.m[key]
	var old []byte
	var exp int64
	if had && !e.expired(now) {
		old, exp = e.val, e.expireAt
	}
	nv := fn(old)
	if nv == nil {
		if had {
			delete(sh.m, key)
			s.bytes.Add(-int64(len(e.val)))
		}
		sh.mu.Unlock()
		return had
	}
	delta := int64(len(nv))
	if had {
		delta -= int64(len(e.val))
	}
	if !s.fits(delta) {
		sh.mu.Unlock()
		return false
	}
	sh.m[key] = &entry{val: append([]byte(nil), nv...), expireAt: exp}
	sh.mu.Unlock()
	s.bytes.Add(delta)
	return true
}

// Expire sets a new ttl on an existing key.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	sh := s.shardFor(key)
	exp := s.deadline(ttl)
	sh.mu.Lock()
	e, ok := sh.m[key]
	if ok {
		e.expireAt = exp
	}
	sh.mu.Unlock()
	if ok && exp != 0 {
		s.enqueueExpire(key, exp)
	}
	return ok
}

// Keys returns the live keys with the given prefix, in no particular order.
func (s *Store) Keys(prefix string) []string {
	now := s.nowFn().UnixNano()
	var out []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for k, e := range sh.m {
			if !e.expired(now) && strings.HasPrefix(k, prefix) {
				out = append(out, k)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// ---- expiry ----

type expItem struct {
	key  string
	when int64
}

type expQueue []expItem

func (q expQueue) Len() int           { return len(q) }
func (q expQueue) Less(i, j int) bool { return q[i].when < q[j].when }
func (q expQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *expQueue) Push(x any)        { *q = append(*q, x.(expItem)) }
func (q *expQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

func (s *Store) enqueueExpire(key string, when int64) {
	s.expMu.Lock()
	heap.Push(&s.expq, expItem{key: key, when: when})
	first := s.expq[0].when == when
	s.expMu.Unlock()
	if first {
		select {
		case s.wakeCh <- struct{}{}:
		default:
		}
	}
}

func (s *Store) expirer() {
	defer s.wg.Done()
	t := time.NewTimer(s.opts.SweepInterval)
	defer t.Stop()
	for {
		wait := s.sweep()
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(wait)
		select {
		case <-s.closeCh:
			return
		case <-s.wakeCh:
		case <-t.C:
		}
	}
}

// sweep removes due keys and returns how long to sleep until the next deadline.
func (s *Store) sweep() time.Duration {
	now := s.nowFn().UnixNano()
	for {
		s.expMu.Lock()
		if len(s.expq) == 0 {
			s.expMu.Unlock()
			return s.opts.SweepInterval
		}
		next := s.expq[0]
		if next.when > now {
			s.expMu.Unlock()
			wait := time.Duration(next.when - now)
			if wait > s.opts.SweepInterval {
				wait = s.opts.SweepInterval
			}
			return wait
		}
		heap.Pop(&s.expq)
		s.expMu.Unlock()

		// The key may have been rewritten with another deadline since queuing.
		sh := s.shardFor(next.key)
		sh.mu.Lock()
		e, ok := sh.m[next.key]
		if ok && e.expireAt != 0 && e.expireAt <= now {
			delete(sh.m, next.key)
			sh.mu.Unlock()
			s.bytes.Add(-int64(len(e.val)))
			continue
		}
		sh.mu.Unlock()
	}
}
