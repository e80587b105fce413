package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/tweet-store/internal/app"
	"github.com/lueurxax/tweet-store/internal/platform/config"
	db "github.com/lueurxax/tweet-store/internal/storage"
)

const (
	modeMigrate   = "migrate"
	modeApply     = "apply-script"
	modeStatus    = "status"
	modeRollback  = "rollback"
	modeIngestOCR = "ingest-ocr"
	modeIngestXHR = "ingest-xhr"
	modeSpool     = "spool"
	modeList      = "list"

	usage = "Usage: %s --mode=[migrate|apply-script|status|rollback|ingest-ocr|ingest-xhr|spool|list|like|unlike|bookmark|unbookmark]"
)

type options struct {
	mode    string
	version int64
	file    string
	url     string
	id      int64
	tweetID string
	limit   int
	source  string
}

func main() {
	var opts options

	flag.StringVar(&opts.mode, "mode", "", "Run mode")
	flag.Int64Var(&opts.version, "version", 0, "Target schema version for migrate mode (0 applies all)")
	flag.StringVar(&opts.file, "file", "", "Capture file for ingest modes (- reads stdin), migration file for apply-script")
	flag.StringVar(&opts.url, "url", "", "Tweet URL for mark modes")
	flag.Int64Var(&opts.id, "id", 0, "Row id for mark modes")
	flag.StringVar(&opts.tweetID, "tweet-id", "", "External tweet id for mark modes")
	flag.IntVar(&opts.limit, "limit", db.DefaultRecentLimit, "Rows to show in list mode")
	flag.StringVar(&opts.source, "source", "", "Restrict list mode to one source (ocr, xhr)")

	flag.Parse()

	if !knownMode(opts.mode) {
		log.Fatalf(usage, os.Args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolOpts := db.PoolOptions{
		MaxConns:          cfg.DBMaxConnections,
		MinConns:          cfg.DBMinConnections,
		MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
		MaxConnLifetime:   cfg.DBMaxConnLifetime,
		HealthCheckPeriod: cfg.DBHealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, cfg.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if cfg.MigrateOnStart && !isSchemaMode(opts.mode) {
		if err := database.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	application := app.New(cfg, database, &logger)

	if err := runMode(ctx, application, opts); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Str("mode", opts.mode).Msg("application error")
	}
}

func newLogger(appEnv, level string) zerolog.Logger {
	var logger zerolog.Logger

	if appEnv == config.AppEnvLocal {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return logger.Level(lvl)
}

func runMode(ctx context.Context, application *app.App, opts options) error {
	switch opts.mode {
	case modeMigrate:
		return application.RunMigrate(ctx, opts.version)
	case modeApply:
		return application.RunApplyScript(ctx, opts.file)
	case modeStatus:
		return application.RunStatus(ctx)
	case modeRollback:
		return application.RunRollback(ctx)
	case modeIngestOCR:
		return application.RunIngestOCR(ctx, opts.file)
	case modeIngestXHR:
		return application.RunIngestXHR(ctx, opts.file)
	case modeSpool:
		return application.RunSpool(ctx)
	case modeList:
		return application.RunList(ctx, opts.limit, opts.source)
	case app.ActionLike, app.ActionUnlike, app.ActionBookmark, app.ActionUnbookmark:
		return application.RunMark(ctx, opts.mode, db.TweetRef{URL: opts.url, ID: opts.id}, opts.tweetID)
	default:
		return fmt.Errorf("unknown mode %q", opts.mode)
	}
}

func knownMode(mode string) bool {
	switch mode {
	case modeMigrate, modeApply, modeStatus, modeRollback, modeIngestOCR, modeIngestXHR, modeSpool, modeList,
		app.ActionLike, app.ActionUnlike, app.ActionBookmark, app.ActionUnbookmark:
		return true
	default:
		return false
	}
}

// isSchemaMode reports whether the mode manages migrations itself.
func isSchemaMode(mode string) bool {
	switch mode {
	case modeMigrate, modeApply, modeStatus, modeRollback:
		return true
	default:
		return false
	}
}
