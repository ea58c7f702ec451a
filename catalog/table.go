package catalog

// table keeps rows by key in first-insertion order.
// Putting an existing key replaces the row in place.
type table[K comparable, V any] struct {
	keys []K
	rows map[K]V
}

func newTable[K comparable, V any]() *table[K, V] {
	return &table[K, V]{rows: make(map[K]V)}
}

func (t *table[K, V]) put(key K, row V) {
	if _, ok := t.rows[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.rows[key] = row
}

func (t *table[K, V]) get(key K) (V, bool) {
	row, ok := t.rows[key]
	return row, ok
}

func (t *table[K, V]) all() []V {
	out := make([]V, 0, len(t.keys))
	for _, k := range t.keys {
		out = append(out, t.rows[k])
	}
	return out
}

func (t *table[K, V]) len() int { return len(t.keys) }

// groups holds multi-row associations keyed by set number
type groups[V any] struct {
	keys []string
	rows map[string][]V
	size int
}

func newGroups[V any]() *groups[V] {
	return &groups[V]{rows: make(map[string][]V)}
}

func (g *groups[V]) add(key string, row V) {
	if _, ok := g.rows[key]; !ok {
		g.keys = append(g.keys, key)
	}
	g.rows[key] = append(g.rows[key], row)
	g.size++
}

func (g *groups[V]) get(key string) []V {
	return g.rows[key]
}

func (g *groups[V]) all() []V {
	out := make([]V, 0, g.size)
	for _, k := range g.keys {
		out = append(out, g.rows[k]...)
	}
	return out
}

func (g *groups[V]) reset() {
	g.keys = nil
	g.rows = make(map[string][]V)
	g.size = 0
}
