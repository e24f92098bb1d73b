package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gigapi/gigaview/config"
	handlers "github.com/gigapi/gigaview/handler"
	"github.com/gigapi/gigaview/model"
	"github.com/gigapi/gigaview/router"
	"github.com/gigapi/gigaview/service/cache"
	"github.com/gigapi/gigaview/service/dataset"
	"github.com/gigapi/gigaview/service/db"
	"github.com/gigapi/gigaview/service/executor"
	"github.com/gigapi/gigaview/service/geo"
	"github.com/gigapi/gigaview/stdin"
	"github.com/gigapi/gigaview/utils/logger"
)

// initFlags initializes the command line flags
func initFlags() *model.CommandLineFlags {
	appFlags := &model.CommandLineFlags{}
	appFlags.Host = flag.String("host", "0.0.0.0", "API host. Default 0.0.0.0")
	appFlags.Port = flag.String("port", "8123", "API port. Default 8123")
	appFlags.Stdin = flag.Bool("stdin", false, "Read one request from STDIN. Default false")
	appFlags.Format = flag.String("format", "JSON", "STDIN output format (JSON, JSONCompact, CSVWithNames, TSVWithNames). Default JSON")
	appFlags.Config = flag.String("config", "", "Config file path. Default to none")
	flag.Parse()
	return appFlags
}

func newFetcher(cfg config.CacheConfiguration) (cache.Fetcher, error) {
	httpFetcher := &cache.HTTPFetcher{Client: &http.Client{Timeout: 10 * time.Minute}}
	fetchers := cache.SchemeFetcher{
		"http":  httpFetcher,
		"https": httpFetcher,
	}
	if cfg.S3.Endpoint != "" {
		s3, err := cache.NewS3Fetcher(cache.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Secure:    cfg.S3.Secure,
		})
		if err != nil {
			return nil, err
		}
		fetchers["s3"] = s3
	}
	return fetchers, nil
}

func run(appFlags *model.CommandLineFlags) error {
	cfg, err := config.Load(*appFlags.Config)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logger.Get()

	pool, err := db.ConnectDuckDB(cfg.Engine.Path, cfg.Engine.PoolSize, cfg.Engine.InitQueries)
	if err != nil {
		return err
	}
	defer pool.Close()

	exec, err := executor.New(pool, executor.Options{
		Permits:       cfg.Engine.Permits,
		PermitTimeout: cfg.Engine.PermitTimeout(),
		Workers:       cfg.Engine.Workers,
		QueueDepth:    cfg.Engine.QueueDepth,
	})
	if err != nil {
		return err
	}
	defer exec.Close()

	fetcher, err := newFetcher(cfg.Cache)
	if err != nil {
		return err
	}
	ttl, err := cfg.Cache.TTLDuration()
	if err != nil {
		return err
	}
	locator, err := cache.NewManager(cache.Options{
		Root:     cfg.Cache.Root,
		MaxBytes: cfg.Cache.MaxBytes,
		TTL:      ttl,
		TmpDir:   cfg.Cache.TmpDir,
	}, fetcher)
	if err != nil {
		return err
	}
	defer locator.Close()

	svc := &dataset.Service{
		Locator:    locator,
		Executor:   exec,
		Aggregator: geo.Aggregator{Precision: cfg.Geo.Precision},
	}
	if cfg.Catalog != "" {
		catalog, err := config.LoadCatalog(cfg.Catalog)
		if err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
		svc.Catalog = catalog
		log.Info("catalog loaded", "datasets", catalog.Names())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *appFlags.Stdin {
		return stdin.Run(ctx, svc, os.Stdin, os.Stdout, *appFlags.Format)
	}

	srv := &http.Server{
		Addr:    *appFlags.Host + ":" + *appFlags.Port,
		Handler: router.NewRouter(&handlers.Handler{Service: svc}),
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("GigaView API Running", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := run(initFlags()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
