package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"brick-catalog/api"
	"brick-catalog/catalog"
	"brick-catalog/config"
	"brick-catalog/loader"
	"brick-catalog/server"
	"brick-catalog/storage"
)

func newSource(cfg config.Config) (loader.Source, error) {
	if cfg.IsRemoteData() {
		return loader.NewHTTPSource(cfg.DataPath, nil)
	}
	return loader.DirSource{Root: cfg.DataDir()}, nil
}

// logDownloads reports remote file downloads in quarter steps
func logDownloads() func(loader.ByteProgress) {
	reported := make(map[string]int)
	return func(p loader.ByteProgress) {
		if !p.HasPercent {
			return
		}
		quarter := int(p.Percent) / 25
		if last, ok := reported[p.File]; ok && quarter <= last {
			return
		}
		reported[p.File] = quarter
		log.Printf("Loader: %s %.0f%% (%d/%d bytes)", p.File, p.Percent, p.Loaded, p.Total)
	}
}

// catalogLoads runs full loads and records each one in the run history
type catalogLoads struct {
	loader *loader.Loader
	runs   *storage.LoadRuns

	mu    sync.Mutex
	runID string
}

func newCatalogLoads(l *loader.Loader, runs *storage.LoadRuns) *catalogLoads {
	cl := &catalogLoads{loader: l, runs: runs}
	l.OnProgress(cl.progress)
	return cl
}

func (cl *catalogLoads) progress(p loader.Progress) {
	cl.mu.Lock()
	id := cl.runID
	cl.mu.Unlock()
	if id == "" {
		return
	}
	if err := cl.runs.Progress(context.Background(), id, p.Loaded, p.Label); err != nil {
		log.Println("Failed to update load run:", err)
	}
}

func (cl *catalogLoads) run(ctx context.Context) {
	run, err := cl.runs.Start(ctx)
	if err != nil {
		log.Println("Failed to record load run:", err)
	} else {
		cl.mu.Lock()
		cl.runID = run.ID
		cl.mu.Unlock()
	}

	ok := cl.loader.LoadAll(ctx)
	stats := cl.loader.Store().Statistics()
	log.Printf("Catalog load finished: ok=%t parts=%d sets=%d minifigs=%d warnings=%d",
		ok, stats.Parts, stats.Sets, stats.Minifigs, stats.Warnings)

	if run == nil {
		return
	}
	cl.mu.Lock()
	cl.runID = ""
	cl.mu.Unlock()

	totals := storage.RunTotals{
		Parts:    stats.Parts,
		Sets:     stats.Sets,
		Minifigs: stats.Minifigs,
		Warnings: stats.Warnings,
	}
	if err := cl.runs.Finish(context.Background(), run.ID, ok, totals, cl.loader.State().Error); err != nil {
		log.Println("Failed to finish load run:", err)
	}
}

func main() {
	configPath := flag.String("config", "catalog.toml", "path to the TOML config file")
	envFile := flag.String("env", ".env", "optional .env file with API keys")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if err := config.LoadEnv(&cfg, *envFile); err != nil {
		log.Fatal("Failed to load environment:", err)
	}

	// Initialize database
	db, err := storage.Open(cfg.Cache.DBPath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Println("Failed to get sql.DB:", err)
	} else {
		defer sqlDB.Close()
	}

	cache := storage.NewCache(db, cfg.CacheTTL(), cfg.CacheMaxBytes())
	runs := storage.NewLoadRuns(db)
	metrics := storage.NewMetrics(db)

	pool := api.NewPool(cfg.API.Proxies, cfg.API.Keys, cfg.Cooldown())
	pool.SetEnabled(cfg.API.ProxyEnabled)
	engine := api.NewEngine(cfg.Engine(), pool, cache, nil)
	defer engine.Close()
	if len(cfg.API.Keys) == 0 {
		log.Println("No REBRICKABLE_API_KEYS configured, remote requests are sent unauthenticated")
	}

	source, err := newSource(cfg)
	if err != nil {
		log.Fatal("Failed to create data source:", err)
	}
	l := loader.New(catalog.NewStore(cfg.Rules()), source, cfg.Files, cfg.SplitConcurrency)
	l.OnProgress(func(p loader.Progress) {
		log.Printf("Loader: %d/%d %s", p.Loaded, p.Total, p.Label)
	})
	if cfg.IsRemoteData() {
		l.OnBytes(logDownloads())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	loads := newCatalogLoads(l, runs)
	go loads.run(ctx)

	h := &server.Handler{
		Loader: l,
		Remote: engine,
		Images: engine,
		Runs:   runs,
		Cache:  cache,
		Reload: func() { go loads.run(ctx) },
	}
	opts := server.Options{Metrics: metrics}
	if !cfg.IsRemoteData() {
		opts.DataDir = cfg.DataDir()
	}
	r := server.NewRouter(h, opts)

	log.Printf("Server starting on %s...", cfg.Server.Addr)
	if err := r.Run(cfg.Server.Addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
