// Package storagemem implements modules.Mem directly on top of
// internal/storage, the way session.RecordStore persists its own state:
// one JSON file per memory token under memory/identities/, keeping
// observations in arrival order and returning the most recent ones first.
package storagemem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/uep-dev/uepd/internal/storage"
)

// Observation is one stored memory snapshot.
type Observation struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type identityFile struct {
	Observations []Observation `json:"observations"`
}

// Mem satisfies modules.Mem, partitioning storage per memory token
// (spec.md §3) by keying each token's file under its own path segment.
type Mem struct {
	mu    sync.Mutex
	store *storage.Storage
	path  []string
}

// New creates a Mem rooted at path (typically []string{"memory", "identities"}).
func New(store *storage.Storage, path []string) *Mem {
	return &Mem{store: store, path: path}
}

func (m *Mem) Name() string { return "mem" }
func (m *Mem) Close() error { return nil }

func (m *Mem) tokenPath(memoryToken string) []string {
	p := make([]string, len(m.path)+1)
	copy(p, m.path)
	p[len(m.path)] = memoryToken
	return p
}

func (m *Mem) load(ctx context.Context, memoryToken string) (identityFile, error) {
	var file identityFile
	if err := m.store.Get(ctx, m.tokenPath(memoryToken), &file); err != nil {
		if err == storage.ErrNotFound {
			return identityFile{}, nil
		}
		return identityFile{}, err
	}
	return file, nil
}

// StoreObservation appends observation under memoryToken's file,
// per-token serialized the way spec.md §5 requires.
func (m *Mem) StoreObservation(ctx context.Context, memoryToken string, observation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := m.load(ctx, memoryToken)
	if err != nil {
		return fmt.Errorf("storagemem: loading %q: %w", memoryToken, err)
	}
	file.Observations = append(file.Observations, Observation{Text: observation, CreatedAt: time.Now()})

	if err := m.store.Put(ctx, m.tokenPath(memoryToken), file); err != nil {
		return fmt.Errorf("storagemem: saving %q: %w", memoryToken, err)
	}
	return nil
}

// RetrieveSnapshots returns up to limit of the most recent observations
// under memoryToken, newest first.
func (m *Mem) RetrieveSnapshots(ctx context.Context, memoryToken string, limit int) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := m.load(ctx, memoryToken)
	if err != nil {
		return nil, fmt.Errorf("storagemem: loading %q: %w", memoryToken, err)
	}

	obs := file.Observations
	if limit > 0 && len(obs) > limit {
		obs = obs[len(obs)-limit:]
	}

	out := make([]map[string]any, 0, len(obs))
	for i := len(obs) - 1; i >= 0; i-- {
		out = append(out, map[string]any{
			"text":       obs[i].Text,
			"created_at": obs[i].CreatedAt,
		})
	}
	return out, nil
}
