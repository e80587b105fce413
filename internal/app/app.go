// Package app provides the application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// the operational modes of the tweetstore binary:
//
//   - Schema modes: migrate, status and rollback
//   - Ingest modes: one-shot OCR or XHR capture files, or a long-running spool consumer
//   - Query modes: list recent tweets and toggle liked or bookmarked flags
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/lueurxax/tweet-store/internal/core/domain"
	errs "github.com/lueurxax/tweet-store/internal/core/errors"
	"github.com/lueurxax/tweet-store/internal/ingest"
	"github.com/lueurxax/tweet-store/internal/ingest/spool"
	"github.com/lueurxax/tweet-store/internal/ingest/xhr"
	"github.com/lueurxax/tweet-store/internal/platform/config"
	"github.com/lueurxax/tweet-store/internal/platform/observability"
	db "github.com/lueurxax/tweet-store/internal/storage"
)

const stdinFile = "-"

// Mark actions accepted by RunMark.
const (
	ActionLike       = "like"
	ActionUnlike     = "unlike"
	ActionBookmark   = "bookmark"
	ActionUnbookmark = "unbookmark"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
	out      io.Writer
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
		out:      os.Stdout,
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunMigrate applies pending migrations, up to target when it is positive.
func (a *App) RunMigrate(ctx context.Context, target int64) error {
	migrate := a.database.Migrate
	if target > 0 {
		migrate = func(ctx context.Context) error { return a.database.MigrateTo(ctx, target) }
	}

	if err := migrate(ctx); err != nil {
		return err
	}

	version, err := a.database.MigrationVersion(ctx)
	if err != nil {
		return err
	}

	a.logger.Info().Int64("version", version).Msg("schema is up to date")

	return nil
}

// RunApplyScript runs the Up section of one embedded migration outside goose
// version tracking.
func (a *App) RunApplyScript(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: migration file name is required", errs.ErrInvalidInput)
	}

	return a.database.ApplyScript(ctx, name)
}

// RunRollback reverts the most recently applied migration.
func (a *App) RunRollback(ctx context.Context) error {
	if err := a.database.Rollback(ctx); err != nil {
		return err
	}

	version, err := a.database.MigrationVersion(ctx)
	if err != nil {
		return err
	}

	a.logger.Info().Int64("version", version).Msg("rolled back one migration")

	return nil
}

// RunStatus prints the migration state and the number of stored tweets per source.
func (a *App) RunStatus(ctx context.Context) error {
	states, err := a.database.MigrationStatus(ctx)
	if err != nil {
		return err
	}

	renderMigrations(a.out, states)

	if pending := countPending(states); pending > 0 {
		// Source counts need the data_source column
		a.logger.Warn().Int("pending", pending).Msg("schema has pending migrations")
		return nil
	}

	counts, err := a.database.CountBySource(ctx)
	if err != nil {
		return err
	}

	renderCounts(a.out, counts)

	return nil
}

// RunIngestOCR ingests a single file of OCR text. A path of "-" reads stdin.
func (a *App) RunIngestOCR(ctx context.Context, path string) error {
	data, err := readInput(path)
	if err != nil {
		return err
	}

	res, err := a.newIngestService().IngestOCR(ctx, string(data))
	if err != nil {
		return err
	}

	renderResult(a.out, res)

	return nil
}

// RunIngestXHR ingests a single intercepted XHR payload. A path of "-" reads stdin.
func (a *App) RunIngestXHR(ctx context.Context, path string) error {
	data, err := readInput(path)
	if err != nil {
		return err
	}

	res, err := a.newIngestService().IngestXHR(ctx, data)
	if err != nil {
		return err
	}

	renderResult(a.out, res)

	return nil
}

// RunSpool consumes the spool directory until ctx is canceled.
// The health server runs alongside for liveness and metrics.
func (a *App) RunSpool(ctx context.Context) error {
	a.logger.Info().
		Str("dir", a.cfg.SpoolDir).
		Dur("interval", a.cfg.SpoolPollInterval).
		Msg("Starting spool mode")

	lock, ok, err := a.database.TryAcquireAdvisoryLock(ctx, db.SpoolLockID)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("spool consumer: %w", errs.ErrLockHeld)
	}

	defer func() {
		// ctx is likely canceled by now
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn().Err(err).Msg("failed to release spool lock")
		}
	}()

	go func() {
		if err := a.StartHealthServer(ctx); err != nil {
			a.logger.Error().Err(err).Msg("health check server error")
		}
	}()

	s := spool.New(a.cfg.SpoolDir, a.newIngestService(), a.logger)

	return s.Run(ctx, a.cfg.SpoolPollInterval)
}

// RunList prints the most recent tweets, optionally restricted to one source.
func (a *App) RunList(ctx context.Context, limit int, source string) error {
	var filter domain.DataSource

	if source != "" {
		parsed, err := domain.ParseDataSource(source)
		if err != nil {
			return err
		}

		filter = parsed
	}

	tweets, err := a.database.RecentTweets(ctx, limit, filter)
	if err != nil {
		return err
	}

	renderTweets(a.out, tweets)

	return nil
}

// RunMark sets or clears the liked or bookmarked flag of one tweet.
// A non-empty tweetID is resolved to the stored row and takes precedence over ref.
func (a *App) RunMark(ctx context.Context, action string, ref db.TweetRef, tweetID string) error {
	var (
		found bool
		err   error
	)

	if !isMarkAction(action) {
		return fmt.Errorf("%w: unknown mark action %q", errs.ErrInvalidInput, action)
	}

	resolved, err := a.resolveRef(ctx, ref, tweetID)
	if err != nil {
		return err
	}

	ref = resolved

	switch action {
	case ActionLike, ActionUnlike:
		found, err = a.database.MarkLiked(ctx, ref, action == ActionLike)
	case ActionBookmark, ActionUnbookmark:
		found, err = a.database.MarkBookmarked(ctx, ref, action == ActionBookmark)
	default:
		return fmt.Errorf("%w: unknown mark action %q", errs.ErrInvalidInput, action)
	}

	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("%s %s: %w", action, describeRef(ref), errs.ErrNotFound)
	}

	a.logger.Info().Str("action", action).Str("tweet", describeRef(ref)).Msg("tweet updated")

	return nil
}

// resolveRef prefers the external tweet id, given directly or taken from a status URL,
// so x.com and twitter.com links reach the same row.
func (a *App) resolveRef(ctx context.Context, ref db.TweetRef, tweetID string) (db.TweetRef, error) {
	explicit := tweetID != ""

	if !explicit && ref.URL != "" {
		if id, err := xhr.ExtractTweetID(ref.URL); err == nil {
			tweetID = id
		}
	}

	if tweetID == "" {
		return ref, nil
	}

	t, err := a.database.TweetByExternalID(ctx, tweetID)
	if err != nil {
		if !explicit && errors.Is(err, errs.ErrNotFound) {
			// OCR rows carry no tweet_id, match them by URL
			return ref, nil
		}

		return db.TweetRef{}, err
	}

	return db.TweetRef{ID: t.ID}, nil
}

func (a *App) newIngestService() *ingest.Service {
	return ingest.NewService(a.database, ingest.Options{
		BatchSize:     a.cfg.IngestBatchSize,
		RetainRawJSON: a.cfg.RetainRawJSON,
	}, a.logger)
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: input file is required", errs.ErrInvalidInput)
	}

	if path == stdinFile {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}

		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}

	return data, nil
}

func isMarkAction(action string) bool {
	switch action {
	case ActionLike, ActionUnlike, ActionBookmark, ActionUnbookmark:
		return true
	default:
		return false
	}
}

func countPending(states []db.MigrationState) int {
	n := 0

	for _, s := range states {
		if !s.Applied {
			n++
		}
	}

	return n
}

func describeRef(ref db.TweetRef) string {
	if ref.ID != 0 {
		return fmt.Sprintf("id=%d", ref.ID)
	}

	return ref.URL
}
