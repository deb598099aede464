// Package curriculum loads study topics from YAML files and keeps them fresh
// with a directory watcher.
package curriculum

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tutord/pkg/models"
)

// Library holds the loaded topics. Reads are safe during reloads; a session
// keeps the Topic pointer it started with, so an edited file never changes a
// lesson mid-flight.
type Library struct {
	mu     sync.RWMutex
	dir    string
	topics map[string]*models.Topic
	log    *zap.Logger
}

// NewLibrary loads every topic file under dir. Files that fail to parse or
// validate are skipped with a warning; an empty directory is an error.
func NewLibrary(dir string, log *zap.Logger) (*Library, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Library{dir: dir, topics: make(map[string]*models.Topic), log: log}
	if err := l.reload(); err != nil {
		return nil, err
	}
	if len(l.topics) == 0 {
		return nil, fmt.Errorf("no valid topics in %s", dir)
	}
	return l, nil
}

// Get returns a topic by id.
func (l *Library) Get(id string) (*models.Topic, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.topics[id]
	return t, ok
}

// List returns all topics sorted by id.
func (l *Library) List() []*models.Topic {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*models.Topic, 0, len(l.topics))
	for _, t := range l.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Watch reloads the library whenever a topic file changes, until ctx ends.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("curriculum watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch %s: %w", l.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isTopicFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := l.reload(); err != nil {
				l.log.Warn("curriculum reload failed", zap.Error(err))
				continue
			}
			l.log.Info("curriculum reloaded", zap.String("trigger", filepath.Base(ev.Name)))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.log.Warn("curriculum watcher error", zap.Error(err))
		}
	}
}

// reload parses the whole directory and swaps the topic map atomically.
func (l *Library) reload() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("read curriculum dir: %w", err)
	}

	fresh := make(map[string]*models.Topic)
	for _, ent := range entries {
		if ent.IsDir() || !isTopicFile(ent.Name()) {
			continue
		}
		path := filepath.Join(l.dir, ent.Name())
		topic, err := LoadTopic(path)
		if err != nil {
			l.log.Warn("skipping topic file", zap.String("file", ent.Name()), zap.Error(err))
			continue
		}
		if _, dup := fresh[topic.ID]; dup {
			l.log.Warn("duplicate topic id, keeping first", zap.String("id", topic.ID), zap.String("file", ent.Name()))
			continue
		}
		fresh[topic.ID] = topic
	}

	l.mu.Lock()
	l.topics = fresh
	l.mu.Unlock()
	return nil
}

// LoadTopic parses and validates one topic file.
func LoadTopic(path string) (*models.Topic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var topic models.Topic
	if err := yaml.Unmarshal(data, &topic); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := topic.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", filepath.Base(path), err)
	}
	return &topic, nil
}

func isTopicFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
