package catalog

import (
	"fmt"
	"strings"
)

// DefaultSearchLimit applies when a caller passes a non-positive limit
const DefaultSearchLimit = 50

type indexEntry struct {
	key  string
	text string
}

// Index maps each searchable entity to one lowercase string.
// It is built in full from a loaded store and never updated incrementally.
type Index struct {
	parts    []indexEntry
	sets     []indexEntry
	minifigs []indexEntry
}

func indexText(fields ...string) string {
	return strings.ToLower(strings.Join(fields, " "))
}

// BuildIndex rebuilds the search index from the current tables
func (s *Store) BuildIndex() {
	s.mu.RLock()
	idx := &Index{
		parts:    make([]indexEntry, 0, s.parts.len()),
		sets:     make([]indexEntry, 0, s.sets.len()),
		minifigs: make([]indexEntry, 0, s.minifigs.len()),
	}
	for _, p := range s.parts.all() {
		idx.parts = append(idx.parts, indexEntry{p.PartNum, indexText(p.PartNum, p.Name, p.Material)})
	}
	for _, st := range s.sets.all() {
		idx.sets = append(idx.sets, indexEntry{st.SetNum, indexText(st.SetNum, st.Name)})
	}
	for _, m := range s.minifigs.all() {
		idx.minifigs = append(idx.minifigs, indexEntry{m.FigNum, indexText(m.FigNum, m.Name)})
	}
	s.mu.RUnlock()

	s.mu.Lock()
	s.index = idx
	s.mu.Unlock()
}

// Indexed reports whether a search index has been built
func (s *Store) Indexed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index != nil
}

func match(entries []indexEntry, query string, limit int) []string {
	q := strings.ToLower(query)
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	var keys []string
	for _, e := range entries {
		if strings.Contains(e.text, q) {
			keys = append(keys, e.key)
			if len(keys) == limit {
				break
			}
		}
	}
	return keys
}

// SearchParts returns parts whose number, name or material contains query
func (s *Store) SearchParts(query string, limit int) []Part {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil
	}
	var out []Part
	for _, k := range match(s.index.parts, query, limit) {
		if p, ok := s.parts.get(k); ok {
			out = append(out, p)
		}
	}
	return out
}

// SearchSets returns sets whose number or name contains query
func (s *Store) SearchSets(query string, limit int) []Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil
	}
	var out []Set
	for _, k := range match(s.index.sets, query, limit) {
		if st, ok := s.sets.get(k); ok {
			out = append(out, st)
		}
	}
	return out
}

// SearchMinifigs returns minifigs whose number or name contains query
func (s *Store) SearchMinifigs(query string, limit int) []Minifig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil
	}
	var out []Minifig
	for _, k := range match(s.index.minifigs, query, limit) {
		if m, ok := s.minifigs.get(k); ok {
			out = append(out, m)
		}
	}
	return out
}

// Search dispatches to the search for a searchable kind
func (s *Store) Search(kind Kind, query string, limit int) ([]any, error) {
	switch kind {
	case KindParts:
		return toAny(s.SearchParts(query, limit)), nil
	case KindSets:
		return toAny(s.SearchSets(query, limit)), nil
	case KindMinifigs:
		return toAny(s.SearchMinifigs(query, limit)), nil
	}
	return nil, fmt.Errorf("%w: %q is not searchable", ErrUnknownKind, kind)
}
