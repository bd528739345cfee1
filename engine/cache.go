package engine

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"blade_view/engine/store"
)

// Artifact là một template đã compile, kèm thời điểm compile
type Artifact struct {
	ViewID     string    `json:"view_id"`
	CompiledAt time.Time `json:"compiled_at"`
	SourceSize int       `json:"source_size"`
	Program    *Program  `json:"program"`
}

// Key returns the stable cache key for a view id: the sha1 of the id, hex encoded.
func Key(viewID string) string {
	sum := sha1.Sum([]byte(viewID))
	return hex.EncodeToString(sum[:])
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	// Store persists artifacts between processes. Nil keeps artifacts in memory only.
	Store store.Store
	// Disabled compiles on every Get. Used in development without a watcher.
	Disabled bool
	Logger   *slog.Logger
	// Now is the clock used for CompiledAt; tests replace it.
	Now func() time.Time
}

// Cache quản lý các template đã compile, theo dõi độ mới của source
type Cache struct {
	loader   SourceLoader
	compiler ProgramCompiler
	store    store.Store
	disabled bool
	logger   *slog.Logger
	now      func() time.Time

	mutex sync.RWMutex // bảo vệ items
	items map[string]*Artifact
	group singleflight.Group

	hits         atomic.Int64
	misses       atomic.Int64
	compiles     atomic.Int64
	storeLoads   atomic.Int64
	persistFails atomic.Int64
	lastCompile  atomic.Int64 // unix nanos
}

func NewCache(loader SourceLoader, compiler ProgramCompiler, opts CacheOptions) *Cache {
	c := &Cache{
		loader:   loader,
		compiler: compiler,
		store:    opts.Store,
		disabled: opts.Disabled,
		logger:   opts.Logger,
		now:      opts.Now,
		items:    make(map[string]*Artifact),
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Get returns the compiled program for a view, compiling it when there is no
// artifact or the source was modified after the artifact was compiled. A hit
// only stats the source; it never reads it.
func (c *Cache) Get(viewID string) (*Program, error) {
	modified, err := c.loader.Stat(viewID)
	if err != nil {
		return nil, err
	}
	if c.disabled {
		c.misses.Add(1)
		a, err := c.compile(viewID)
		if err != nil {
			return nil, err
		}
		return a.Program, nil
	}

	key := Key(viewID)
	c.mutex.RLock()
	a := c.items[key]
	c.mutex.RUnlock()
	if a != nil && a.ViewID == viewID && !modified.After(a.CompiledAt) {
		c.hits.Add(1)
		return a.Program, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.load(viewID, key, modified)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact).Program, nil
}

// load fills a miss from the store when the persisted artifact is still
// fresh, otherwise compiles.
func (c *Cache) load(viewID, key string, modified time.Time) (*Artifact, error) {
	c.mutex.RLock()
	a := c.items[key]
	c.mutex.RUnlock()
	if a != nil && a.ViewID == viewID && !modified.After(a.CompiledAt) {
		return a, nil
	}

	if a := c.fromStore(viewID, key, modified); a != nil {
		c.storeLoads.Add(1)
		c.publish(key, a)
		return a, nil
	}

	a, err := c.compile(viewID)
	if err != nil {
		return nil, err
	}
	c.publish(key, a)
	c.persist(key, a)
	return a, nil
}

func (c *Cache) compile(viewID string) (*Artifact, error) {
	src, err := c.loader.Load(viewID)
	if err != nil {
		return nil, err
	}
	compiledAt := c.now()
	prog, err := c.compiler.Compile(src.Raw)
	if err != nil {
		var ce *CompileError
		if errors.As(err, &ce) && ce.View == "" {
			ce.View = viewID
		}
		return nil, err
	}
	c.compiles.Add(1)
	c.lastCompile.Store(compiledAt.UnixNano())
	return &Artifact{ViewID: viewID, CompiledAt: compiledAt, SourceSize: len(src.Raw), Program: prog}, nil
}

func (c *Cache) fromStore(viewID, key string, modified time.Time) *Artifact {
	if c.store == nil {
		return nil
	}
	data, err := c.store.Get(key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("reading cached artifact failed", "view", viewID, "error", err)
		}
		return nil
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil || a.Program == nil {
		c.logger.Warn("discarding unreadable artifact", "view", viewID, "error", err)
		return nil
	}
	if a.ViewID != viewID || modified.After(a.CompiledAt) {
		return nil
	}
	if err := a.Program.prepare(); err != nil {
		c.logger.Warn("discarding invalid artifact", "view", viewID, "error", err)
		return nil
	}
	return &a
}

// publish makes an artifact visible with a single map assignment.
func (c *Cache) publish(key string, a *Artifact) {
	c.mutex.Lock()
	c.items[key] = a
	c.mutex.Unlock()
}

// persist is best effort: a failure is logged and the render carries on with
// the in-memory program.
func (c *Cache) persist(key string, a *Artifact) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(a)
	if err == nil {
		err = c.store.Put(key, data)
	}
	if err != nil {
		c.persistFails.Add(1)
		c.logger.Warn("could not persist compiled template", "view", a.ViewID, "error", err)
	}
}

// Remove drops one view's artifact from memory and the store.
func (c *Cache) Remove(viewID string) {
	key := Key(viewID)
	c.mutex.Lock()
	delete(c.items, key)
	c.mutex.Unlock()
	if c.store != nil {
		if err := c.store.Delete(key); err != nil {
			c.logger.Warn("could not delete cached artifact", "view", viewID, "error", err)
		}
	}
}

// Clear removes every artifact and returns how many distinct artifacts were
// dropped. Programs already handed out stay valid: the map is replaced, not
// emptied in place.
func (c *Cache) Clear() (int, error) {
	c.mutex.Lock()
	old := c.items
	c.items = make(map[string]*Artifact)
	c.mutex.Unlock()

	removed := make(map[string]struct{}, len(old))
	for k := range old {
		removed[k] = struct{}{}
	}
	if c.store == nil {
		return len(removed), nil
	}
	keys, err := c.store.Keys()
	if err != nil {
		return len(removed), fmt.Errorf("listing cached artifacts: %w", err)
	}
	for _, k := range keys {
		removed[k] = struct{}{}
	}
	if _, err := c.store.Clear(); err != nil {
		return len(removed), fmt.Errorf("clearing cached artifacts: %w", err)
	}
	return len(removed), nil
}

// Views returns the ids of the views held in memory, sorted.
func (c *Cache) Views() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	views := make([]string, 0, len(c.items))
	for _, a := range c.items {
		views = append(views, a.ViewID)
	}
	sort.Strings(views)
	return views
}

// Stats trả về thống kê cache
func (c *Cache) Stats() map[string]interface{} {
	c.mutex.RLock()
	items := len(c.items)
	var sourceBytes uint64
	for _, a := range c.items {
		sourceBytes += uint64(a.SourceSize)
	}
	c.mutex.RUnlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	stats := map[string]interface{}{
		"cache_enabled":    !c.disabled,
		"total_items":      items,
		"source_size":      humanize.Bytes(sourceBytes),
		"hits":             hits,
		"misses":           misses,
		"hit_rate":         fmt.Sprintf("%.1f%%", hitRate),
		"compiles":         humanize.Comma(c.compiles.Load()),
		"store_loads":      c.storeLoads.Load(),
		"persist_failures": c.persistFails.Load(),
		"last_compile":     "never",
	}
	if ns := c.lastCompile.Load(); ns != 0 {
		stats["last_compile"] = humanize.Time(time.Unix(0, ns))
	}
	if c.store != nil {
		if keys, err := c.store.Keys(); err == nil {
			stats["persisted_items"] = len(keys)
		}
	}
	return stats
}
