package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mbheramil/smart-seo-fixer/internal/cli"
	"github.com/mbheramil/smart-seo-fixer/internal/config"
	"github.com/mbheramil/smart-seo-fixer/internal/coordinator"
	"github.com/mbheramil/smart-seo-fixer/internal/queue"
	"github.com/mbheramil/smart-seo-fixer/internal/store"
)

const cfgPath = "seoqueue_config.json"

func main() {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(2)
	}

	st, err := openStore(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open store:", err)
		os.Exit(2)
	}
	defer st.Close()

	limiter := cfg.BuildLimiter()

	reg := coordinator.NewRegistry()
	reg.Register("command", &coordinator.CommandProcessor{})
	reg.Register("noop", &coordinator.NoopProcessor{Limiter: limiter, Service: "content_gen"})
	reg.Register("ai_fix", &coordinator.CommandProcessor{Limiter: limiter, Service: "content_gen"})
	reg.Register("schema_regen", &coordinator.CommandProcessor{Limiter: limiter, Service: "content_gen"})
	reg.Register("analysis", &coordinator.CommandProcessor{Limiter: limiter, Service: "search_analytics"})
	reg.Register("migration_batch", &coordinator.CommandProcessor{})

	coord := &coordinator.Coordinator{
		Store:      st,
		Registry:   reg,
		ChunkSize:  cfg.ChunkSize,
		ChunkSizes: cfg.ChunkSizes,
	}
	mgr := queue.NewManager(st, coord, cfg.Lease())

	app := &cli.App{
		Manager: mgr,
		Store:   st,
		Config:  cfg,
		CfgPath: cfgPath,
	}
	if err := cli.Execute(app); err != nil {
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		s := store.NewSQLiteStore()
		if err := s.Init(cfg.DBPath); err != nil {
			return nil, err
		}
		return s, nil
	case "mongo":
		return store.ConnectMongo(context.Background(), cfg.MongoURI)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
