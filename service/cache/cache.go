package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gigapi/gigaview/metrics"
	"github.com/gigapi/gigaview/model"
	"github.com/gigapi/gigaview/utils/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

type Options struct {
	Root     string
	MaxBytes int64
	// TTL since last access. Zero disables expiry.
	TTL time.Duration
	// TmpDir holds downloads before they are admitted. Defaults to os.TempDir().
	TmpDir string
}

type entry struct {
	size       int64
	lastAccess time.Time
	gen        uint64
}

type Stats struct {
	Entries int
	Bytes   int64
}

// Manager resolves data sources to local files, caching remote ones under
// Root within a byte budget.
type Manager struct {
	opts    Options
	fetcher Fetcher

	// mu guards entries
	mu      sync.Mutex
	entries map[string]*entry
	// spaceMu serializes eviction, admission and expiry on disk
	spaceMu sync.Mutex

	group   singleflight.Group
	sweeper *sweeper
	log     *slog.Logger
}

func NewManager(opts Options, fetcher Fetcher) (*Manager, error) {
	if opts.Root == "" {
		return nil, errors.New("cache root is required")
	}
	if opts.MaxBytes <= 0 {
		return nil, fmt.Errorf("cache budget must be positive, got %d", opts.MaxBytes)
	}
	if opts.TmpDir == "" {
		opts.TmpDir = os.TempDir()
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	opts.Root = root
	for _, dir := range []string{opts.Root, opts.TmpDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	m := &Manager{
		opts:    opts,
		fetcher: fetcher,
		entries: map[string]*entry{},
		log:     logger.With("cache"),
	}
	m.sweeper = newSweeper(m.expire)
	return m, nil
}

func (m *Manager) TargetPath(rawURL string) (string, error) {
	return TargetPath(m.opts.Root, rawURL)
}

// Resolve returns the local path of src. Local sources are returned as is.
func (m *Manager) Resolve(ctx context.Context, src model.DataSource) (string, error) {
	switch src.SourceType {
	case model.SourceLocal:
		return src.Source, nil
	case model.SourceRemote:
	default:
		return "", model.NewCompileErr("unknown source type", map[string]any{"type": src.SourceType})
	}
	target, err := m.TargetPath(src.Source)
	if err != nil {
		return "", model.NewCacheErr("cannot cache remote source", map[string]any{"source": src.Source}, err)
	}
	res, err, _ := m.group.Do(target, func() (any, error) {
		return target, m.resolveRemote(ctx, src.Source, target)
	})
	if err != nil {
		metrics.CacheRequests.WithLabelValues("error").Inc()
		return "", err
	}
	return res.(string), nil
}

func (m *Manager) resolveRemote(ctx context.Context, rawURL, target string) error {
	if m.touch(target) {
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return nil
	}
	if m.restore(target) {
		metrics.CacheRequests.WithLabelValues("restored").Inc()
		m.log.Debug("restored untracked file", "path", target)
		return nil
	}
	metrics.CacheRequests.WithLabelValues("miss").Inc()

	tmp, size, err := m.download(ctx, rawURL)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	if err := m.admit(tmp, target, size); err != nil {
		return err
	}
	m.log.Info("cached remote dataset", "source", rawURL, "path", target, "bytes", size)
	return nil
}

// touch resets the TTL of a tracked entry.
func (m *Manager) touch(target string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[target]
	if !ok {
		return false
	}
	if _, err := os.Stat(target); err != nil {
		delete(m.entries, target)
		m.sweeper.cancel(target)
		metrics.CacheEntries.Set(float64(len(m.entries)))
		return false
	}
	now := time.Now()
	e.lastAccess = now
	e.gen++
	os.Chtimes(target, now, now)
	m.scheduleLocked(target, e)
	return true
}

// restore tracks a file left on disk by an earlier process. It holds spaceMu
// so a file being expired or evicted is never picked up again.
func (m *Manager) restore(target string) bool {
	m.spaceMu.Lock()
	defer m.spaceMu.Unlock()
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	m.track(target, info.Size())
	return true
}

func (m *Manager) track(target string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[target]
	if !ok {
		e = &entry{}
		m.entries[target] = e
	}
	e.size = size
	e.lastAccess = time.Now()
	e.gen++
	m.scheduleLocked(target, e)
	metrics.CacheEntries.Set(float64(len(m.entries)))
}

func (m *Manager) scheduleLocked(target string, e *entry) {
	if m.opts.TTL > 0 {
		m.sweeper.schedule(target, e.gen, e.lastAccess.Add(m.opts.TTL))
	}
}

func (m *Manager) untrack(target string) {
	m.mu.Lock()
	delete(m.entries, target)
	metrics.CacheEntries.Set(float64(len(m.entries)))
	m.sweeper.cancel(target)
	m.mu.Unlock()
}

// download streams rawURL into a temp file and returns its path and size.
// Anything above the budget is cut short since it could never be admitted.
func (m *Manager) download(ctx context.Context, rawURL string) (string, int64, error) {
	body, err := m.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", 0, model.NewCacheErr("download failed", map[string]any{"source": rawURL}, err)
	}
	defer body.Close()

	tmp := filepath.Join(m.opts.TmpDir, "gigaview-"+uuid.NewString()+".download")
	f, err := os.Create(tmp)
	if err != nil {
		return "", 0, model.NewCacheErr("failed to create temp file", nil, err)
	}
	n, err := io.Copy(f, io.LimitReader(body, m.opts.MaxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	metrics.CacheDownloadedBytes.Add(float64(n))
	if err != nil {
		os.Remove(tmp)
		return "", 0, model.NewCacheErr("download failed", map[string]any{"source": rawURL}, err)
	}
	if n > m.opts.MaxBytes {
		os.Remove(tmp)
		return "", 0, tooLarge(rawURL, n, m.opts.MaxBytes)
	}
	return tmp, n, nil
}

func tooLarge(target string, size, limit int64) error {
	return model.NewCacheErr("dataset exceeds the cache budget",
		map[string]any{"source": target, "bytes": size, "limit": limit}, nil)
}

// admit makes room for size bytes and copies tmp into target.
func (m *Manager) admit(tmp, target string, size int64) error {
	if size > m.opts.MaxBytes {
		return tooLarge(target, size, m.opts.MaxBytes)
	}
	m.spaceMu.Lock()
	defer m.spaceMu.Unlock()

	files, used, err := walkFiles(m.opts.Root)
	if err != nil {
		return model.NewCacheErr("failed to scan cache", nil, err)
	}
	if used+size > m.opts.MaxBytes {
		freed := m.evict(files, used+size-m.opts.MaxBytes)
		if used+size-freed > m.opts.MaxBytes {
			return model.NewCacheErr("not enough cache space",
				map[string]any{"used": used - freed, "incoming": size, "limit": m.opts.MaxBytes}, nil)
		}
	}
	if err := copyAtomic(tmp, target); err != nil {
		pruneEmptyParents(m.opts.Root, filepath.Dir(target))
		return model.NewCacheErr("failed to store dataset", map[string]any{"path": target}, err)
	}
	m.track(target, size)
	return nil
}

// evict deletes least recently accessed files until need bytes are freed or
// nothing is left. Caller holds spaceMu.
func (m *Manager) evict(files []diskFile, need int64) int64 {
	m.mu.Lock()
	for i := range files {
		if e, ok := m.entries[files[i].path]; ok {
			files[i].mod = e.lastAccess.UnixNano()
		}
	}
	m.mu.Unlock()
	sort.Slice(files, func(i, j int) bool { return files[i].mod < files[j].mod })

	var freed int64
	for _, f := range files {
		if freed >= need {
			break
		}
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			m.log.Warn("failed to evict file", "path", f.path, "error", err)
			continue
		}
		freed += f.size
		m.untrack(f.path)
		pruneEmptyParents(m.opts.Root, filepath.Dir(f.path))
		metrics.CacheEvictions.WithLabelValues("space").Inc()
		m.log.Info("evicted file", "path", f.path, "bytes", f.size, "reason", "space")
	}
	return freed
}

// expire is the sweeper callback. Stale generations are ignored. The file is
// removed while mu is held so a concurrent hit never returns a deleted path.
func (m *Manager) expire(target string, gen uint64) {
	m.spaceMu.Lock()
	defer m.spaceMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[target]
	if !ok || e.gen != gen {
		return
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		m.log.Warn("failed to expire file", "path", target, "error", err)
	}
	pruneEmptyParents(m.opts.Root, filepath.Dir(target))
	delete(m.entries, target)
	metrics.CacheEntries.Set(float64(len(m.entries)))
	metrics.CacheEvictions.WithLabelValues("ttl").Inc()
	m.log.Debug("expired file", "path", target)
}

// Contains reports whether target is a tracked entry.
func (m *Manager) Contains(target string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[target]
	return ok
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{Entries: len(m.entries)}
	for _, e := range m.entries {
		s.Bytes += e.size
	}
	return s
}

// Close stops the expiry sweeper. Cached files stay on disk.
func (m *Manager) Close() {
	m.sweeper.Close()
}
