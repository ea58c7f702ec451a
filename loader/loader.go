package loader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"brick-catalog/catalog"
	"brick-catalog/parsers"
)

// Phase is the coarse state of a load
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseLoading    Phase = "loading"
	PhaseIndexed    Phase = "indexed"
	PhaseFailed     Phase = "failed"
)

// TotalSteps is the number of sources loaded by LoadAll
const TotalSteps = 10

// Progress is sent to observers after each source completes
type Progress struct {
	Loaded int    `json:"loaded"`
	Total  int    `json:"total"`
	Label  string `json:"label"`
}

// State describes where the loader is
type State struct {
	Phase Phase  `json:"phase"`
	Step  int    `json:"step"`
	Label string `json:"label"`
	Error string `json:"error,omitempty"`
}

// Files names the data files relative to the source root
type Files struct {
	Colors            string `toml:"colors"`
	Themes            string `toml:"themes"`
	Categories        string `toml:"categories"`
	Parts             string `toml:"parts"`
	Sets              string `toml:"sets"`
	Minifigs          string `toml:"minifigs"`
	Inventories       string `toml:"inventories"`
	InventorySets     string `toml:"inventory_sets"`
	InventoryMinifigs string `toml:"inventory_minifigs"`

	SplitDir      string `toml:"split_dir"`
	Manifest      string `toml:"manifest"`
	SplitPattern  string `toml:"split_pattern"`
	MaxSplitFiles int    `toml:"max_split_files"`
}

// DefaultFiles returns the layout of the bundled data directory
func DefaultFiles() Files {
	return Files{
		Colors:            "colors.csv",
		Themes:            "themes.csv",
		Categories:        "part_categories.csv",
		Parts:             "parts.csv",
		Sets:              "sets.csv",
		Minifigs:          "minifigs.csv",
		Inventories:       "inventories.csv",
		InventorySets:     "inventory_sets.csv",
		InventoryMinifigs: "inventory_minifigs.csv",
		SplitDir:          "inventory_parts_split",
		Manifest:          "parts_info.txt",
		SplitPattern:      "inventory_parts_part_%03d.csv",
		MaxSplitFiles:     50,
	}
}

type step struct {
	label string
	kind  catalog.Kind
	file  string
}

// Loader populates a catalog store from a source, one file at a time
type Loader struct {
	store       *catalog.Store
	source      Source
	files       Files
	concurrency int

	mu        sync.Mutex
	state     State
	observers []func(Progress)
	byteObs   []func(ByteProgress)

	// serializes byte observers across parallel split-file reads
	bytesMu sync.Mutex
}

// New creates a loader. concurrency bounds parallel split-file reads;
// values below 1 load them one at a time.
func New(store *catalog.Store, source Source, files Files, concurrency int) *Loader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Loader{
		store:       store,
		source:      source,
		files:       files,
		concurrency: concurrency,
		state:       State{Phase: PhaseNotStarted},
	}
}

// OnProgress registers an observer for per-source progress
func (l *Loader) OnProgress(fn func(Progress)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// OnBytes registers an observer for byte-level progress within a file.
// Observers are called one at a time, even while split files load in parallel.
func (l *Loader) OnBytes(fn func(ByteProgress)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byteObs = append(l.byteObs, fn)
}

// State returns a snapshot of the loader state
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Store returns the store being populated
func (l *Loader) Store() *catalog.Store { return l.store }

func (l *Loader) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Loader) notify(p Progress) {
	l.mu.Lock()
	observers := append([]func(Progress){}, l.observers...)
	l.mu.Unlock()
	for _, fn := range observers {
		fn(p)
	}
}

func (l *Loader) notifyBytes(p ByteProgress) {
	l.mu.Lock()
	observers := append([]func(ByteProgress){}, l.byteObs...)
	l.mu.Unlock()

	l.bytesMu.Lock()
	defer l.bytesMu.Unlock()
	for _, fn := range observers {
		fn(p)
	}
}

func (l *Loader) steps() []step {
	f := l.files
	return []step{
		{"colors", catalog.KindColors, f.Colors},
		{"themes", catalog.KindThemes, f.Themes},
		{"part categories", catalog.KindCategories, f.Categories},
		{"parts", catalog.KindParts, f.Parts},
		{"sets", catalog.KindSets, f.Sets},
		{"minifigs", catalog.KindMinifigs, f.Minifigs},
		{"inventories", catalog.KindInventories, f.Inventories},
		{"inventory sets", catalog.KindInventorySets, f.InventorySets},
		{"inventory minifigs", catalog.KindInventoryMinifigs, f.InventoryMinifigs},
		{"inventory parts", catalog.KindInventoryParts, ""},
	}
}

// LoadAll loads every source in dependency order and builds the search
// index. It returns false when a required file fails; data merged by
// earlier steps stays in the store.
func (l *Loader) LoadAll(ctx context.Context) bool {
	l.mu.Lock()
	if l.state.Phase == PhaseLoading {
		l.mu.Unlock()
		log.Println("Loader: load already in progress")
		return false
	}
	l.state = State{Phase: PhaseLoading, Label: "Initializing"}
	l.mu.Unlock()

	l.notify(Progress{Loaded: 0, Total: TotalSteps, Label: "Initializing"})

	for i, st := range l.steps() {
		l.setState(State{Phase: PhaseLoading, Step: i + 1, Label: "Loading " + st.label})

		var err error
		if st.kind == catalog.KindInventoryParts {
			err = l.loadSplit(ctx)
		} else {
			err = l.loadStep(ctx, st)
		}
		if err != nil {
			log.Printf("Loader: failed loading %s: %v", st.label, err)
			l.setState(State{Phase: PhaseFailed, Step: i + 1, Label: "Failed loading " + st.label, Error: err.Error()})
			return false
		}

		l.notify(Progress{Loaded: i + 1, Total: TotalSteps, Label: "Loaded " + st.label})
	}

	l.store.BuildIndex()
	stats := l.store.Statistics()
	log.Printf("Loader: catalog indexed (%d parts, %d sets, %d minifigs, %d warnings)",
		stats.Parts, stats.Sets, stats.Minifigs, stats.Warnings)
	l.setState(State{Phase: PhaseIndexed, Step: TotalSteps, Label: "Ready"})
	return true
}

func (l *Loader) loadStep(ctx context.Context, st step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.kind.Grouped() {
		l.store.ResetGroup(st.kind)
	}
	rows, err := l.readFile(ctx, st.file, func(rec parsers.Record, rowNum int) error {
		_, err := l.store.AddRecord(st.kind, rec, rowNum)
		return err
	})
	if err != nil {
		return err
	}
	log.Printf("Loader: %s loaded (%d rows)", st.file, rows)
	return nil
}

// readFile streams one file through the parser, handing each record to fn
// as it arrives and reporting byte progress along the way.
func (l *Loader) readFile(ctx context.Context, name string, fn func(parsers.Record, int) error) (int, error) {
	body, size, err := l.source.Open(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", name, err)
	}
	defer body.Close()

	if size < 0 {
		size = 0
	}
	reader := &progressReader{r: body, file: name, total: size, report: l.notifyBytes}
	recordCh, errCh := parsers.ParseCSV(reader)

	var (
		dropped int
		readErr error
		done    = make(chan struct{})
	)
	go func() {
		defer close(done)
		for err := range errCh {
			var rowErr *parsers.RowError
			if errors.As(err, &rowErr) {
				dropped++
				continue
			}
			readErr = err
		}
	}()

	rows := 0
	var fnErr error
	for rec := range recordCh {
		rows++
		// Keep draining after a failure so the parser goroutine can exit
		if fnErr == nil {
			// Row 1 is the header
			fnErr = fn(rec, rows+1)
		}
	}
	<-done

	if readErr != nil {
		return rows, fmt.Errorf("read %s: %w", name, readErr)
	}
	if fnErr != nil {
		return rows, fmt.Errorf("load %s: %w", name, fnErr)
	}
	if dropped > 0 {
		log.Printf("Loader: %s: dropped %d malformed rows", name, dropped)
	}
	return rows, nil
}
