package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"travelcatalog/internal/app"
	"travelcatalog/internal/catalog"
	"travelcatalog/internal/config"
	"travelcatalog/internal/db"
	"travelcatalog/internal/engine"
	"travelcatalog/internal/events"
	"travelcatalog/internal/logging"
	"travelcatalog/internal/markup"
	"travelcatalog/internal/migrate"
	"travelcatalog/internal/repo"
	"travelcatalog/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tcat",
	Short: "Travel catalog CLI",
	Long: `tcat serves a localized travel content catalog (adventures, crafts, treks, regions, ...).
Core concepts:
- Category: one content vertical with a listing (master index) and per-item detail records.
- Locale fallback: a record missing in the requested locale is served from the category's default locale.
- Backends: content is read from a directory tree (fs) or from the workspace database (sqlite, filled with 'tcat import').
- Publishing: cards and records with is_live=false are hidden from the API unless a preview token is sent.
- Event log: imports and removals are recorded, view with 'tcat log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TCAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("locale", "l", "", "requested locale (defaults to the category default)")
	rootCmd.PersistentFlags().String("actor-id", events.DefaultActor, "actor identifier recorded in events")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides config)")
	rootCmd.PersistentFlags().String("log-format", "", "log format: json or console (overrides config)")
	for _, name := range []string{"workspace", "json", "locale", "actor-id", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(categoriesCmd())
	rootCmd.AddCommand(cardsCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(prefetchCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(previewTokenCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var prefetchLimit int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(func(cfg *config.Config, cat *app.Catalog, logs logging.Provider) error {
				if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
					addr = cfg.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
					basePath = cfg.Server.BasePath
				}
				logger := logging.ModuleLogger(logs, logging.ServerModule)
				authCfg := server.AuthConfig{PreviewSecret: previewSecret(cfg)}
				if authCfg.PreviewSecret == "" {
					logger.Warn("no preview secret configured; unpublished content stays hidden")
				}
				handler, err := server.New(server.Config{
					Resolver:      cat.Resolver,
					Aggregator:    cat.Aggregator,
					BasePath:      basePath,
					Auth:          authCfg,
					Logger:        logger,
					PrefetchLimit: prefetchLimit,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-cmd.Context().Done()
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(ctx)
				}()
				logger.Info("serving catalog API", "addr", addr, "base_path", basePath, "backend", cfg.Content.Backend)
				fmt.Printf("Serving catalog API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().IntVar(&prefetchLimit, "prefetch-limit", 4, "concurrent loads per prefetch request")
	return cmd
}

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List registered categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(func(_ *config.Config, cat *app.Catalog, _ logging.Provider) error {
				descs := cat.Registry.Categories()
				if viper.GetBool("json") {
					return printJSON(descs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Default", "Locales", "Master", "Item"})
				for _, d := range descs {
					tw.AppendRow(table.Row{d.ID, d.DefaultLocale, strings.Join(d.Locales, ","), d.MasterPathTemplate, d.ItemPathTemplate})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func cardsCmd() *cobra.Command {
	var query, subcategory string
	var all bool
	cmd := &cobra.Command{
		Use:   "cards <category>",
		Short: "List a category's cards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(func(_ *config.Config, cat *app.Catalog, _ logging.Provider) error {
				res, err := cat.Aggregator.Index(cmd.Context(), args[0], viper.GetString("locale"))
				if err != nil {
					return err
				}
				pred := catalog.All(catalog.TitleContains(query), catalog.InSubcategory(subcategory))
				if !all {
					pred = catalog.All(catalog.Published(), pred)
				}
				cards := catalog.FilterCards(res.Value, pred)
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"category":         args[0],
						"requested_locale": res.RequestedLocale,
						"locale":           res.LocaleServed,
						"fallback":         res.Fallback(),
						"title":            res.Value.Title,
						"cards":            cards,
					})
				}
				fmt.Printf("%s [%s]%s\n", res.Value.Title, res.LocaleServed, fallbackNote(res.Fallback(), res.RequestedLocale))
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Slug", "Title", "Subtitle", "Category", "Live"})
				for _, c := range cards {
					tw.AppendRow(table.Row{c.Slug, c.Title, c.Subtitle, c.Category, c.IsLive()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "title or subtitle contains")
	cmd.Flags().StringVar(&subcategory, "subcategory", "", "sub-category tag filter")
	cmd.Flags().BoolVar(&all, "all", false, "include unpublished cards")
	return cmd
}

func showCmd() *cobra.Command {
	var html bool
	cmd := &cobra.Command{
		Use:   "show <category> <slug>",
		Short: "Show one detail record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(func(_ *config.Config, cat *app.Catalog, _ logging.Provider) error {
				res, err := cat.Resolver.ResolveRecord(cmd.Context(), args[0], args[1], viper.GetString("locale"))
				if err != nil {
					return err
				}
				rec := res.Value
				body := rec.LongDescription
				if html {
					if body, err = markup.New().HTML(rec.LongDescription); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					out := map[string]any{
						"requested_locale": res.RequestedLocale,
						"locale":           res.LocaleServed,
						"fallback":         res.Fallback(),
						"item":             rec,
					}
					if html {
						out["html"] = body
					}
					return printJSON(out)
				}
				fmt.Printf("%s [%s]%s\n", rec.Title, res.LocaleServed, fallbackNote(res.Fallback(), res.RequestedLocale))
				if !rec.IsLive {
					fmt.Println("(unpublished)")
				}
				if len(rec.Tags) > 0 {
					fmt.Println("tags:", strings.Join(rec.Tags, ", "))
				}
				if rec.HeroImageRef != "" {
					fmt.Println("image:", rec.HeroImageRef)
				}
				if body != "" {
					fmt.Println()
					fmt.Println(body)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "render the long description as HTML")
	return cmd
}

func prefetchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "prefetch <category> <slug>...",
		Short: "Resolve several records concurrently",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(func(_ *config.Config, cat *app.Catalog, _ logging.Provider) error {
				results, err := cat.Resolver.Prefetch(cmd.Context(), args[0], args[1:], viper.GetString("locale"), limit)
				if err != nil {
					return err
				}
				type row struct {
					Slug     string `json:"slug"`
					Status   string `json:"status"`
					Locale   string `json:"locale,omitempty"`
					Fallback bool   `json:"fallback,omitempty"`
					Error    string `json:"error,omitempty"`
				}
				rows := make([]row, 0, len(results))
				for _, r := range results {
					out := row{Slug: r.Slug}
					switch {
					case r.Err != nil:
						out.Status, out.Error = "error", r.Err.Error()
					case !r.Result.Found:
						out.Status = "not_found"
					default:
						out.Status, out.Locale, out.Fallback = "found", r.Result.LocaleServed, r.Result.Fallback()
					}
					rows = append(rows, out)
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Slug", "Status", "Locale", "Fallback", "Error"})
				for _, r := range rows {
					tw.AppendRow(table.Row{r.Slug, r.Status, r.Locale, r.Fallback, r.Error})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 4, "max concurrent loads")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Import a content tree into the workspace database",
		Long:  "Copies every .json record (and converts .md records with front matter) under dir into the sqlite backend, in one transaction.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.ImportDir(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("imported %d documents (batch %s), skipped %d files\n", len(report.Imported), report.BatchID, len(report.Skipped))
				return nil
			})
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a document from the workspace database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RemoveDocument(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"removed": args[0]})
				}
				fmt.Println("removed", args[0])
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Imports and removals of documents in the workspace database.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Path", "Actor"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityID, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityID, "path", "", "document path filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage catalog.yml",
		Long:  "catalog.yml declares the site locales, the content backend and cache, and every category with its path templates.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default catalog.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate catalog.yml and its categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := validateConfig(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

// validateConfig also builds the registry so path templates and detail schemas are checked.
func validateConfig(workspace string) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	_, err = catalog.NewRegistry(cfg.Descriptors(), cfg.Schemas())
	return err
}

func previewTokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "preview-token",
		Short: "Mint a token that reveals unpublished content",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			secret := previewSecret(cfg)
			if secret == "" {
				return errors.New("set TCAT_PREVIEW_SECRET or server.preview_secret first")
			}
			token, err := server.MintPreviewToken(secret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "expires_in": ttl.String()})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "editor", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// --- helpers ---

func previewSecret(cfg *config.Config) string {
	if s := viper.GetString("preview_secret"); s != "" {
		return s
	}
	return cfg.Server.PreviewSecret
}

func newLogProvider(cfg *config.Config) (logging.Provider, error) {
	opts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if v := viper.GetString("log-level"); v != "" {
		opts.Level = v
	}
	if v := viper.GetString("log-format"); v != "" {
		opts.Format = v
	}
	return logging.NewGoLogger(opts)
}

func withCatalog(fn func(*config.Config, *app.Catalog, logging.Provider) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	logs, err := newLogProvider(cfg)
	if err != nil {
		return err
	}
	if cfg.Content.Backend == config.BackendSQLite {
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
	}
	cat, err := app.Open(workspace, cfg, logs)
	if err != nil {
		return err
	}
	defer cat.Close()
	return fn(cfg, cat, logs)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	logs, err := newLogProvider(cfg)
	if err != nil {
		return err
	}
	logger := logging.ModuleLogger(logs, logging.ImporterModule)
	if cfg.Content.Backend != config.BackendSQLite {
		logger.Warn("content backend is not sqlite; imported documents are not served until content.backend is sqlite", "backend", cfg.Content.Backend)
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn, migrate.WithLogger(logging.ModuleLogger(logs, logging.StorageModule))); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, logger))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func fallbackNote(fallback bool, requested string) string {
	if !fallback {
		return ""
	}
	return fmt.Sprintf(" (fallback, %s unavailable)", requested)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
