package model

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eruption-duration/backend/internal/metrics"
	"github.com/eruption-duration/backend/pkg/logger"
)

const ArtifactExt = ".json"

// Store is a read-through cache of model artifacts in a directory, keyed by
// model id. Models load on first use and are never evicted; failed loads are
// not cached.
type Store struct {
	dir string

	mu     sync.Mutex
	models map[string]*Model
}

func NewStore(dir string) *Store {
	return &Store{
		dir:    dir,
		models: make(map[string]*Model),
	}
}

func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+ArtifactExt)
}

// Get returns the model with the given id, loading <dir>/<id>.json if needed.
func (s *Store) Get(id string) (Predictor, error) {
	m, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) load(id string) (*Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.models[id]; ok {
		return m, nil
	}

	start := time.Now()
	m, err := LoadFile(s.Path(id))
	if err != nil {
		metrics.ModelLoads.WithLabelValues(id, "error").Inc()
		logger.Error("Failed to load survival model", zap.String("model", id), zap.Error(err))
		return nil, err
	}
	if m.ID() != "" && m.ID() != id {
		metrics.ModelLoads.WithLabelValues(id, "error").Inc()
		return nil, fmt.Errorf("%w: %s contains model %q", ErrModelLoad, s.Path(id), m.ID())
	}

	s.models[id] = m
	metrics.ModelLoads.WithLabelValues(id, "ok").Inc()
	logger.Info("Survival model loaded",
		zap.String("model", id),
		zap.String("version", m.Version()),
		zap.Int("features", m.NumFeatures()),
		zap.Int("trees", len(m.artifact.Trees)),
		zap.Duration("took", time.Since(start)),
	)
	return m, nil
}

// Preload loads each id, stopping at the first failure.
func (s *Store) Preload(ids ...string) error {
	for _, id := range ids {
		if _, err := s.load(id); err != nil {
			return err
		}
	}
	return nil
}

// Loaded lists ids currently cached.
func (s *Store) Loaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.models))
	for id := range s.models {
		ids = append(ids, id)
	}
	return ids
}
