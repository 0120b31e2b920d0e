package app

import (
	"database/sql"
	"fmt"
	"time"

	"travelcatalog/internal/catalog"
	"travelcatalog/internal/config"
	"travelcatalog/internal/db"
	"travelcatalog/internal/logging"
	"travelcatalog/internal/migrate"
	"travelcatalog/internal/repo"
	"travelcatalog/internal/store"
)

const defaultCacheTTL = 5 * time.Minute

// Catalog bundles the read side wired from config.
type Catalog struct {
	Config     *config.Config
	Registry   *catalog.Registry
	Resolver   *catalog.Resolver
	Aggregator *catalog.Aggregator
	Store      store.Store
	DB         *sql.DB
}

// Open builds the catalog for a workspace, picking the content backend from cfg.
// The sqlite backend opens (and migrates) the workspace database.
func Open(workspace string, cfg *config.Config, logs logging.Provider) (*Catalog, error) {
	var (
		st   store.Store
		conn *sql.DB
	)
	switch cfg.Content.Backend {
	case config.BackendSQLite:
		c, err := db.Open(db.Config{Workspace: workspace})
		if err != nil {
			return nil, err
		}
		if err := migrate.Migrate(c, migrate.WithLogger(logging.ModuleLogger(logs, logging.StorageModule))); err != nil {
			c.Close()
			return nil, err
		}
		conn = c
		st = repo.Repo{DB: c}
	case config.BackendFS, "":
		dir, err := store.NewDirStore(cfg.ContentRoot(workspace))
		if err != nil {
			return nil, err
		}
		st = dir
	default:
		return nil, fmt.Errorf("unknown content backend %q", cfg.Content.Backend)
	}
	cat, err := Build(cfg, st, logs)
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, err
	}
	cat.DB = conn
	return cat, nil
}

// Build wires registry, resolver and aggregator over an existing store.
func Build(cfg *config.Config, st store.Store, logs logging.Provider) (*Catalog, error) {
	reg, err := catalog.NewRegistry(cfg.Descriptors(), cfg.Schemas())
	if err != nil {
		return nil, err
	}
	if cc := cfg.Content.Cache; cc.Enabled {
		ttl := cc.TTL
		if ttl == 0 {
			ttl = defaultCacheTTL
		}
		st = store.NewCached(st, cc.Size, ttl)
	}
	res := catalog.NewResolver(reg, st, logging.ModuleLogger(logs, logging.CatalogModule))
	return &Catalog{
		Config:     cfg,
		Registry:   reg,
		Resolver:   res,
		Aggregator: catalog.NewAggregator(res),
		Store:      st,
	}, nil
}

func (c *Catalog) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
