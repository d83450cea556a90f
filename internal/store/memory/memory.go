package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vansales/internal/core"
	"vansales/internal/store"
)

// Store keeps every collection in process memory, in insertion order.
type Store struct {
	mu    sync.Mutex
	items map[core.Kind][]core.Record
	now   func() time.Time
}

func New() *Store {
	return &Store{items: make(map[core.Kind][]core.Record), now: time.Now}
}

// NewFromFiles returns a store whose product catalogue is seeded from
// seed_products.txt in base, one product name per line.
func NewFromFiles(base string) *Store {
	s := New()
	names := readLines(filepath.Join(base, "seed_products.txt"))
	if len(names) == 0 {
		names = []string{"Water 500ml", "Water 1.5L", "Juice 250ml"}
	}
	created := s.now().UTC().Format(time.RFC3339)
	for _, n := range names {
		s.items[core.KindProducts] = append(s.items[core.KindProducts], core.Record{
			core.FieldID:        core.NewID(),
			core.FieldName:      n,
			core.FieldActive:    true,
			core.FieldCreatedAt: created,
		})
	}
	return s
}

func (s *Store) List(_ context.Context, kind core.Kind) ([]core.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.Ordered(kind, cloneAll(s.items[kind])), nil
}

func (s *Store) Get(_ context.Context, kind core.Kind, id string) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(kind, id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	return s.items[kind][i].Clone(), nil
}

func (s *Store) Create(_ context.Context, kind core.Kind, rec core.Record) (core.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	out := store.PrepareCreate(rec)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(kind, out.ID()) >= 0 {
		return nil, fmt.Errorf("create %s %s: %w", kind, out.ID(), store.ErrDuplicateID)
	}
	s.items[kind] = append(s.items[kind], out)
	return out.Clone(), nil
}

func (s *Store) Update(_ context.Context, kind core.Kind, id string, patch core.Record) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(kind, id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	merged := s.items[kind][i].Merge(patch)
	s.items[kind][i] = merged
	return merged.Clone(), nil
}

func (s *Store) Delete(_ context.Context, kind core.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(kind, id)
	if i < 0 {
		return store.ErrNotFound
	}
	recs := s.items[kind]
	s.items[kind] = append(recs[:i:i], recs[i+1:]...)
	return nil
}

func (s *Store) Replace(_ context.Context, kind core.Kind, recs []core.Record) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[kind] = cloneAll(store.InsertionOrder(kind, recs))
	return nil
}

func (s *Store) indexOf(kind core.Kind, id string) int {
	if id == "" {
		return -1
	}
	for i, r := range s.items[kind] {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

func cloneAll(in []core.Record) []core.Record {
	out := make([]core.Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

// dedupe drops blanks and repeats, keeping first occurrence order.
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
