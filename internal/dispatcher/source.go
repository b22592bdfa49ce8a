package dispatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Source produces dispatcher member sets.
type Source interface {
	// Watch calls update with the current member set and again on every
	// change until ctx is cancelled.
	Watch(ctx context.Context, update func(addrs []string)) error
}

// Static is a fixed member set.
type Static []string

func (s Static) Watch(ctx context.Context, update func(addrs []string)) error {
	update(normalize(s))
	<-ctx.Done()
	return nil
}

// FileConfig is the YAML layout read by FileSource.
type FileConfig struct {
	Dispatchers []FileEntry `yaml:"dispatchers"`
}

type FileEntry struct {
	Addr     string `yaml:"addr"`
	Disabled bool   `yaml:"disabled"`
}

// LoadFile reads a dispatcher YAML file and returns the enabled addresses.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dispatchers file: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse dispatchers file: %w", err)
	}
	addrs := make([]string, 0, len(fc.Dispatchers))
	for i, d := range fc.Dispatchers {
		if d.Addr == "" {
			return nil, fmt.Errorf("dispatchers[%d].addr: required", i)
		}
		if d.Disabled {
			continue
		}
		addrs = append(addrs, d.Addr)
	}
	return normalize(addrs), nil
}

// FileSource reloads a YAML file whenever it changes on disk.
type FileSource struct {
	Path   string
	Logger *zap.Logger
}

func (s FileSource) Watch(ctx context.Context, update func(addrs []string)) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("path", s.Path))

	addrs, err := LoadFile(s.Path)
	if err != nil {
		return err
	}
	update(addrs)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so atomic renames by editors and config
	// management are seen.
	if err := w.Add(filepath.Dir(s.Path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.Path), err)
	}
	target := filepath.Clean(s.Path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			next, err := LoadFile(s.Path)
			if err != nil {
				logger.Warn("dispatchers file reload failed", zap.Error(err))
				continue
			}
			if slices.Equal(next, addrs) {
				continue
			}
			addrs = next
			logger.Info("dispatchers file reloaded", zap.Strings("dispatchers", addrs))
			update(addrs)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("dispatchers file watch error", zap.Error(err))
		}
	}
}

// RedisSource polls a Redis set of dispatcher addresses.
type RedisSource struct {
	Client   *redis.Client
	Key      string
	Interval time.Duration
	Logger   *zap.Logger
}

// Fetch reads the current member set.
func (s RedisSource) Fetch(ctx context.Context) ([]string, error) {
	members, err := s.Client.SMembers(ctx, s.Key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", s.Key, err)
	}
	return normalize(members), nil
}

func (s RedisSource) Watch(ctx context.Context, update func(addrs []string)) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("key", s.Key))
	interval := s.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	var current []string
	refresh := func() {
		next, err := s.Fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("dispatcher registry refresh failed", zap.Error(err))
			}
			return
		}
		if current != nil && slices.Equal(next, current) {
			return
		}
		current = next
		logger.Info("dispatcher registry refreshed", zap.Strings("dispatchers", current))
		update(current)
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			refresh()
		}
	}
}

// normalize sorts and dedupes addrs, dropping empty entries.
func normalize(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a != "" {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return slices.Compact(out)
}
