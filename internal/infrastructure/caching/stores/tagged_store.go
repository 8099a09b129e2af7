// Package stores provides the capacity-bounded cache store with TTL expiry,
// LRU eviction and tag-based group invalidation.
package stores

import (
	"container/list"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
)

// Eviction reasons reported to an Observer.
const (
	ReasonCapacity = "capacity"
	ReasonExpired  = "expired"
	ReasonTag      = "tag"
	ReasonDeleted  = "deleted"
)

// Sizer lets cached values report their own approximate size in bytes.
type Sizer interface {
	Size() int64
}

// Observer receives cache events, typically a metrics exporter.
type Observer interface {
	ObserveHit()
	ObserveMiss()
	ObserveRemoval(reason string, count int)
}

// Entry is a single cached value. Entries are owned by the store.
type Entry struct {
	Key       string
	Value     any
	ExpiresAt time.Time
	Tags      map[string]struct{}

	size int64
	elem *list.Element
}

// Config holds the store bounds.
type Config struct {
	MaxEntries int
	DefaultTTL time.Duration
}

// Stats is a point-in-time snapshot of store effectiveness.
type Stats struct {
	EntryCount     int     `json:"entryCount"`
	MaxEntries     int     `json:"maxEntries"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	HitRate        float64 `json:"hitRate"`
	Evictions      int64   `json:"evictions"`
	Expirations    int64   `json:"expirations"`
	Invalidations  int64   `json:"invalidations"`
	Deletes        int64   `json:"deletes"`
	Clears         int64   `json:"clears"`
	TagCount       int     `json:"tagCount"`
	MemoryEstimate int64   `json:"memoryEstimate"`
}

// TaggedStore is a bounded key/value store. Structural changes take mu
// exclusively; lookups share mu and serialize only the recency bump on lruMu.
type TaggedStore struct {
	config  Config
	entries map[string]*Entry
	order   *list.List // front is most recently used
	tags    map[string]map[string]struct{}
	bytes   int64

	mu    sync.RWMutex
	lruMu sync.Mutex

	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	expirations   atomic.Int64
	invalidations atomic.Int64
	deletes       atomic.Int64
	clears        atomic.Int64

	observer Observer
	logger   *logging.ChanneledLogger
	now      func() time.Time
}

// NewTaggedStore creates an empty store. MaxEntries below one is treated as one.
func NewTaggedStore(config Config, logger *logging.ChanneledLogger) *TaggedStore {
	if config.MaxEntries < 1 {
		config.MaxEntries = 1
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if logger != nil {
		logger.Cache().Info("Initializing cache store", "maxEntries", config.MaxEntries, "defaultTtl", config.DefaultTTL)
	}
	return &TaggedStore{
		config:  config,
		entries: make(map[string]*Entry),
		order:   list.New(),
		tags:    make(map[string]map[string]struct{}),
		logger:  logger,
		now:     time.Now,
	}
}

// SetObserver attaches an event observer. It must be called before the store is shared.
func (s *TaggedStore) SetObserver(o Observer) {
	s.observer = o
}

// SetClock replaces the time source; tests use it to step through expiry.
func (s *TaggedStore) SetClock(now func() time.Time) {
	s.now = now
}

// MaxEntries returns the configured capacity.
func (s *TaggedStore) MaxEntries() int {
	return s.config.MaxEntries
}

// Set stores value under key. A non-positive ttl uses the default TTL.
// Overwriting refreshes value, expiry, tags and recency.
func (s *TaggedStore) Set(key string, value any, ttl time.Duration, tags ...string) {
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}
	expiresAt := s.now().Add(ttl)
	size := estimateSize(key, value, tags)

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.entries[key]; exists {
		s.untagLocked(entry)
		s.bytes += size - entry.size
		entry.Value = value
		entry.ExpiresAt = expiresAt
		entry.size = size
		entry.Tags = tagSet(tags)
		s.tagLocked(entry)
		s.order.MoveToFront(entry.elem)
		return
	}

	evicted := 0
	for len(s.entries) >= s.config.MaxEntries {
		back := s.order.Back()
		if back == nil {
			break
		}
		s.removeLocked(back.Value.(*Entry))
		evicted++
	}
	if evicted > 0 {
		s.evictions.Add(int64(evicted))
		s.notifyRemoval(ReasonCapacity, evicted)
	}

	entry := &Entry{
		Key:       key,
		Value:     value,
		ExpiresAt: expiresAt,
		Tags:      tagSet(tags),
		size:      size,
	}
	entry.elem = s.order.PushFront(entry)
	s.entries[key] = entry
	s.bytes += size
	s.tagLocked(entry)
}

// Get returns the live value for key. An expired entry is removed and
// reported as a miss.
func (s *TaggedStore) Get(key string) (any, bool) {
	now := s.now()

	s.mu.RLock()
	entry, exists := s.entries[key]
	if exists && now.Before(entry.ExpiresAt) {
		s.lruMu.Lock()
		s.order.MoveToFront(entry.elem)
		s.lruMu.Unlock()
		value := entry.Value
		s.mu.RUnlock()

		s.hits.Add(1)
		if s.observer != nil {
			s.observer.ObserveHit()
		}
		return value, true
	}
	s.mu.RUnlock()

	if exists {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if current, ok := s.entries[key]; ok && !now.Before(current.ExpiresAt) {
			s.removeLocked(current)
			s.expirations.Add(1)
			s.notifyRemoval(ReasonExpired, 1)
		}
		s.mu.Unlock()
	}

	s.misses.Add(1)
	if s.observer != nil {
		s.observer.ObserveMiss()
	}
	return nil, false
}

// Delete removes key if present and reports whether it was.
func (s *TaggedStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return false
	}
	s.removeLocked(entry)
	s.deletes.Add(1)
	s.notifyRemoval(ReasonDeleted, 1)
	return true
}

// InvalidateByTag removes every entry carrying tag in one critical section
// and drops the tag from the index. It returns the number of entries removed.
func (s *TaggedStore) InvalidateByTag(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, exists := s.tags[tag]
	if !exists {
		return 0
	}

	removed := 0
	for key := range keys {
		if entry, ok := s.entries[key]; ok {
			s.removeLocked(entry)
			removed++
		}
	}
	delete(s.tags, tag)

	s.invalidations.Add(int64(removed))
	s.notifyRemoval(ReasonTag, removed)
	if s.logger != nil {
		s.logger.Cache().Debug("Invalidated cache tag", "tag", tag, "removed", removed)
	}
	return removed
}

// Clear drops every entry and tag. Counters are kept.
func (s *TaggedStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.entries)
	s.entries = make(map[string]*Entry)
	s.order.Init()
	s.tags = make(map[string]map[string]struct{})
	s.bytes = 0
	s.clears.Add(1)

	s.notifyRemoval(ReasonDeleted, count)
	if s.logger != nil {
		s.logger.Cache().Info("Cache cleared", "removed", count)
	}
}

// PurgeExpired removes every expired entry and returns how many were removed.
func (s *TaggedStore) PurgeExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, entry := range s.entries {
		if !now.Before(entry.ExpiresAt) {
			s.removeLocked(entry)
			removed++
		}
	}
	if removed > 0 {
		s.expirations.Add(int64(removed))
		s.notifyRemoval(ReasonExpired, removed)
	}
	return removed
}

// Keys returns the cached keys from most to least recently used.
func (s *TaggedStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*Entry).Key)
	}
	return keys
}

// TagKeys returns the sorted keys currently registered under tag.
func (s *TaggedStore) TagKeys(tag string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.tags[tag]))
	for key := range s.tags[tag] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns a snapshot of the store counters.
func (s *TaggedStore) Stats() Stats {
	s.mu.RLock()
	entryCount := len(s.entries)
	tagCount := len(s.tags)
	bytes := s.bytes
	s.mu.RUnlock()

	hits := s.hits.Load()
	misses := s.misses.Load()
	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		EntryCount:     entryCount,
		MaxEntries:     s.config.MaxEntries,
		Hits:           hits,
		Misses:         misses,
		HitRate:        hitRate,
		Evictions:      s.evictions.Load(),
		Expirations:    s.expirations.Load(),
		Invalidations:  s.invalidations.Load(),
		Deletes:        s.deletes.Load(),
		Clears:         s.clears.Load(),
		TagCount:       tagCount,
		MemoryEstimate: bytes,
	}
}

// removeLocked unlinks entry from the map, the access list and every tag set.
func (s *TaggedStore) removeLocked(entry *Entry) {
	s.untagLocked(entry)
	s.order.Remove(entry.elem)
	delete(s.entries, entry.Key)
	s.bytes -= entry.size
}

func (s *TaggedStore) tagLocked(entry *Entry) {
	for tag := range entry.Tags {
		keys, exists := s.tags[tag]
		if !exists {
			keys = make(map[string]struct{})
			s.tags[tag] = keys
		}
		keys[entry.Key] = struct{}{}
	}
}

func (s *TaggedStore) untagLocked(entry *Entry) {
	for tag := range entry.Tags {
		keys, exists := s.tags[tag]
		if !exists {
			continue
		}
		delete(keys, entry.Key)
		if len(keys) == 0 {
			delete(s.tags, tag)
		}
	}
}

func (s *TaggedStore) notifyRemoval(reason string, count int) {
	if s.observer != nil && count > 0 {
		s.observer.ObserveRemoval(reason, count)
	}
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag != "" {
			set[tag] = struct{}{}
		}
	}
	return set
}

// estimateSize approximates the retained bytes of an entry.
func estimateSize(key string, value any, tags []string) int64 {
	const entryOverhead = 96

	size := int64(entryOverhead + len(key))
	for _, tag := range tags {
		size += int64(len(tag)) + 16
	}

	switch v := value.(type) {
	case Sizer:
		size += v.Size()
	case string:
		size += int64(len(v))
	case []byte:
		size += int64(len(v))
	default:
		size += 64
	}
	return size
}
