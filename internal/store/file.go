package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"tabserve/internal/errors"
)

// FileStore keeps artifacts as files in one directory. Downloads of small
// artifacts are served from an LRU cache after the first read. With a retention set, a janitor goroutine deletes artifacts
// older than it; call Stop to end the janitor.
type FileStore struct {
	dir       string
	logger    *zap.Logger
	cache     *lru.Cache[string, []byte]
	cacheSize int
	retention time.Duration
	interval  time.Duration
	now       func() time.Time

	ticker   *time.Ticker
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// maxCachedArtifact bounds the read cache to cacheSize * 1 MiB. Larger
// artifacts are always read from disk.
const maxCachedArtifact = 1 << 20

type FileOption func(*FileStore)

func WithLogger(l *zap.Logger) FileOption {
	return func(s *FileStore) { s.logger = l }
}

// WithCacheSize sets how many artifacts the read cache holds. Zero disables it.
func WithCacheSize(n int) FileOption {
	return func(s *FileStore) { s.cacheSize = n }
}

// WithRetention deletes artifacts older than ttl, checking every interval.
// A zero ttl keeps artifacts forever.
func WithRetention(ttl, interval time.Duration) FileOption {
	return func(s *FileStore) {
		s.retention = ttl
		s.interval = interval
	}
}

func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	s := &FileStore{
		dir:       dir,
		logger:    zap.NewNop(),
		cacheSize: 128,
		interval:  10 * time.Minute,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(errors.Mark(err, errors.ErrStorage), "create artifact dir %s", dir)
	}
	if s.cacheSize > 0 {
		c, err := lru.New[string, []byte](s.cacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "create artifact cache")
		}
		s.cache = c
	}
	if s.retention > 0 {
		if s.interval <= 0 {
			s.interval = time.Minute
		}
		s.ticker = time.NewTicker(s.interval)
		s.stopCh = make(chan struct{})
		s.doneCh = make(chan struct{})
		go s.runJanitor()
	}
	return s, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Persist(ctx context.Context, p Payload) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, errors.Wrap(errors.Mark(err, errors.ErrTimeout), "persist")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	b, err := encode(p)
	if err != nil {
		return Artifact{}, err
	}
	name := newName(p.SourceFile, p.CreatedAt)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Artifact{}, errors.Wrapf(errors.Mark(err, errors.ErrStorage), "create artifact %s", name)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(path)
		return Artifact{}, errors.Wrapf(errors.Mark(err, errors.ErrStorage), "write artifact %s", name)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Artifact{}, errors.Wrapf(errors.Mark(err, errors.ErrStorage), "close artifact %s", name)
	}
	return Artifact{Name: name, Path: path, CreatedAt: p.CreatedAt, Size: int64(len(b))}, nil
}

func (s *FileStore) Retrieve(ctx context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrTimeout), "retrieve")
	}
	path := filepath.Join(s.dir, name)
	if s.cache != nil {
		if b, ok := s.cache.Get(name); ok {
			// a file removed behind our back is gone, cached or not
			if _, err := os.Stat(path); err == nil {
				return b, nil
			}
			s.cache.Remove(name)
		}
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.ErrNotFound, "artifact %s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.Mark(err, errors.ErrStorage), "read artifact %s", name)
	}
	if s.cache != nil && len(b) <= maxCachedArtifact {
		s.cache.Add(name, b)
	}
	return b, nil
}

// Sweep deletes artifacts whose modification time is older than the
// retention and returns how many it removed.
func (s *FileStore) Sweep() (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, errors.Wrapf(errors.Mark(err, errors.ErrStorage), "list %s", s.dir)
	}
	cutoff := s.now().Add(-s.retention)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, nameSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove expired artifact", zap.String("artifact", name), zap.Error(err))
			continue
		}
		if s.cache != nil {
			s.cache.Remove(name)
		}
		removed++
	}
	return removed, nil
}

func (s *FileStore) runJanitor() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.ticker.C:
			n, err := s.Sweep()
			if err != nil {
				s.logger.Warn("artifact sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("expired artifacts removed", zap.Int("count", n), zap.Duration("retention", s.retention))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop ends the janitor and waits for it. Safe to call more than once, and
// on a store without retention.
func (s *FileStore) Stop() {
	if s.ticker == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		s.ticker.Stop()
	})
}
