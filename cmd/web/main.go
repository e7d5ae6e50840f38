// cmd/web/main.go
//
// Sitewide Archive – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load env vars (jail-wide file → .env fallback).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Load and validate config (YAML + SWARCH_ env overlay); resolve a
//     `vault:` database password through the Vault client when present.
//
//  4. Open the shared multisite cluster DB and run network-table
//     migrations.
//
//  5. Assemble the domain services: blog directory, per-blog session
//     factory, settings repository, and the one-shot admin token store.
//
//  6. Mount routes on a chi mux:
//
//     • /metrics  – Prometheus handler
//     • /api      – admin surface (settings, populate, reset, events)
//     • /browse   – read-side listings with query redirection
//
//  7. Serve with hardened timeouts.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"log"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/klandestino/sitewide-archive/internal/admin"
	"github.com/klandestino/sitewide-archive/internal/blog"
	"github.com/klandestino/sitewide-archive/internal/browse"
	"github.com/klandestino/sitewide-archive/internal/config"
	"github.com/klandestino/sitewide-archive/internal/database"
	"github.com/klandestino/sitewide-archive/internal/logger"
	"github.com/klandestino/sitewide-archive/internal/middleware"
	"github.com/klandestino/sitewide-archive/internal/secret"
	"github.com/klandestino/sitewide-archive/internal/server"
	"github.com/klandestino/sitewide-archive/internal/settings"
	"github.com/klandestino/sitewide-archive/internal/store"
)

const serverEnvPath = "/usr/local/etc/sitewide-archive/global.env"

// loadEnv prefers the jail-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	//
	// ── 1.  Config + logger ─────────────────────────────────────────────
	//
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logOut, err := logger.New(cfg.Paths.Root, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer func() { _ = logOut.Sync() }()

	//
	// ── 2.  Secret resolution (vault: references) ───────────────────────
	//
	password := cfg.Database.Password
	if secret.IsRef(password) {
		cli, err := secret.New()
		if err != nil {
			logOut.Fatalw("vault client init failed", "err", err)
		}
		password, err = cli.Resolve(context.Background(), password)
		if err != nil {
			logOut.Fatalw("vault password resolve failed", "err", err)
		}
	}

	//
	// ── 3.  Cluster DB connect + migrations ─────────────────────────────
	//
	dsn := database.BuildDSN(cfg.Database.DSN, password)
	logOut.Infow("connecting to cluster DB")
	db, err := database.Open(dsn)
	if err != nil {
		logOut.Fatalw("connect cluster DB", "err", err)
	}
	defer db.Close()
	logOut.Infow("cluster DB online")

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		logOut.Fatalw("migrations failed", "err", err)
	}
	logOut.Infow("migrations applied", "version", version, "dirty", dirty)

	//
	// ── 4.  Domain services ─────────────────────────────────────────────
	//
	prefix := cfg.Database.TablePrefix
	blogs := blog.NewDirectory(db, prefix)
	factory := store.NewMySQL(db, prefix)
	repo := settings.NewRepository(db, prefix)
	tokens := admin.NewTokenStore()

	// Log blog count as an early sanity check.
	if n, err := blogs.Count(context.Background()); err == nil {
		logOut.Infow("network online", "blogs", n)
	}

	adminH := admin.NewHandler(factory, blogs, repo, tokens, cfg.Network.MainBlogID, logOut)
	browseH := browse.NewHandler(factory, blogs, repo, cfg.Network.MainBlogID, logOut)

	//
	// ── 5.  Routes ──────────────────────────────────────────────────────
	//
	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Security)

	mux.Handle("/metrics", promhttp.Handler())
	mux.Mount("/api", adminH.Routes())
	mux.Mount("/browse", browseH.Routes())

	//
	// ── 6.  Serve ───────────────────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, mux)
	logOut.Infow("listening", "addr", cfg.HTTP.ListenAddr)
	if err := server.Run(srv, logOut); err != nil {
		logOut.Fatalw("http server", "err", err)
	}
}
