// Package spool consumes capture files dropped into a directory by the
// screenshot and XHR collectors.
//
// Files ending in .txt are OCR text, files ending in .json are intercepted
// XHR payloads. Each processed file is moved to done/, or to failed/ together
// with a .err file when its content can never be stored. Files that hit a
// transient error, such as a lost database connection, stay in place and are
// retried on the next pass.
package spool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	errs "github.com/lueurxax/tweet-store/internal/core/errors"
	"github.com/lueurxax/tweet-store/internal/ingest"
	"github.com/lueurxax/tweet-store/internal/platform/observability"
	"github.com/lueurxax/tweet-store/internal/platform/worker"
)

const (
	// DoneDir receives files that were ingested successfully.
	DoneDir = "done"
	// FailedDir receives files that could not be ingested.
	FailedDir = "failed"

	extOCR   = ".txt"
	extXHR   = ".json"
	extError = ".err"

	statusDone   = "done"
	statusFailed = "failed"
	statusRetry  = "retry"

	defaultFailedScanInterval = time.Minute

	dirPerm  = 0o755
	filePerm = 0o644

	logFieldFile = "file"
)

var errUnknownExtension = errors.New("unknown spool file extension")

// Ingester stores parsed captures.
type Ingester interface {
	IngestOCR(ctx context.Context, text string) (ingest.Result, error)
	IngestXHR(ctx context.Context, payload []byte) (ingest.Result, error)
}

// Spool watches a directory for capture files.
type Spool struct {
	dir      string
	ingester Ingester
	logger   *zerolog.Logger

	failedScanInterval time.Duration
}

// New creates a Spool reading from dir.
func New(dir string, ingester Ingester, logger *zerolog.Logger) *Spool {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Spool{
		dir:                dir,
		ingester:           ingester,
		logger:             logger,
		failedScanInterval: defaultFailedScanInterval,
	}
}

// Run polls the spool directory until ctx is canceled.
// A pass that stops on a transient error is retried after interval.
func (s *Spool) Run(ctx context.Context, interval time.Duration) error {
	return worker.Loop(ctx, worker.Config{
		Name:         "spool",
		PollInterval: interval,
		OnStart:      func(context.Context) error { return s.ensureDirs() },
		Process: func(ctx context.Context) error {
			_, err := s.ProcessOnce(ctx)
			return err
		},
		PeriodicTasks: []worker.PeriodicTask{{
			Name:     "failed-files",
			Interval: s.failedScanInterval,
			Run:      s.reportFailed,
		}},
		OnError: func(err error) bool {
			s.logger.Warn().Err(err).Msg("spool pass stopped, retrying")
			return true
		},
		OnStop: func() {
			if pending, err := s.Pending(); err == nil {
				s.logger.Info().Int("pending", len(pending)).Msg("spool consumer stopped")
			}
		},
		Logger: s.logger,
	})
}

// ProcessOnce ingests every pending file once and returns how many were handled.
// A file with permanently bad content is moved aside and does not stop the pass.
// Any other failure leaves the file in place and ends the pass with that error.
func (s *Spool) ProcessOnce(ctx context.Context) (int, error) {
	if err := s.ensureDirs(); err != nil {
		return 0, err
	}

	pending, err := s.Pending()
	if err != nil {
		return 0, err
	}

	observability.SpoolBacklog.Set(float64(len(pending)))

	handled := 0

	for _, name := range pending {
		if err := ctx.Err(); err != nil {
			return handled, fmt.Errorf("spool pass interrupted: %w", err)
		}

		if err := s.processFile(ctx, name); err != nil {
			return handled, err
		}

		handled++

		observability.SpoolBacklog.Set(float64(len(pending) - handled))
	}

	return handled, nil
}

// Pending lists capture files waiting in the spool directory in name order.
func (s *Spool) Pending() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read spool dir: %w", err)
	}

	var names []string

	for _, e := range entries {
		if !e.Type().IsRegular() || !isCapture(e.Name()) {
			continue
		}

		names = append(names, e.Name())
	}

	sort.Strings(names)

	return names, nil
}

// FailedCount returns how many capture files sit in failed/.
func (s *Spool) FailedCount() (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, FailedDir))
	if err != nil {
		return 0, fmt.Errorf("read failed dir: %w", err)
	}

	n := 0

	for _, e := range entries {
		if e.Type().IsRegular() && isCapture(e.Name()) {
			n++
		}
	}

	return n, nil
}

func (s *Spool) reportFailed(context.Context) {
	n, err := s.FailedCount()
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to count failed spool files")
		return
	}

	observability.SpoolFailedFiles.Set(float64(n))
}

// processFile ingests one file and moves it out of the spool. Permanent
// ingest errors send the file to failed/. Transient ones leave it for the
// next pass and are returned.
func (s *Spool) processFile(ctx context.Context, name string) error {
	path := filepath.Join(s.dir, name)
	logger := s.logger.With().Str(logFieldFile, name).Logger()

	res, ingestErr := s.ingestFile(ctx, path)
	if ingestErr != nil {
		if !isPermanent(ingestErr) {
			if !errors.Is(ingestErr, context.Canceled) {
				observability.SpoolFilesProcessed.WithLabelValues(statusRetry).Inc()
				logger.Warn().Err(ingestErr).Msg("spool file left for retry")
			}

			return fmt.Errorf("ingest %s: %w", name, ingestErr)
		}

		observability.SpoolFilesProcessed.WithLabelValues(statusFailed).Inc()
		logger.Error().Err(ingestErr).Msg("spool file failed")

		return s.moveFailed(name, ingestErr)
	}

	observability.SpoolFilesProcessed.WithLabelValues(statusDone).Inc()
	logger.Info().
		Str("batch_id", res.BatchID).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Msg("spool file ingested")

	return s.move(name, DoneDir)
}

func (s *Spool) ingestFile(ctx context.Context, path string) (ingest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("read spool file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case extOCR:
		return s.ingester.IngestOCR(ctx, string(data))
	case extXHR:
		return s.ingester.IngestXHR(ctx, data)
	default:
		return ingest.Result{}, fmt.Errorf("%w: %s", errUnknownExtension, filepath.Ext(path))
	}
}

// isPermanent reports whether retrying the same file content can never succeed.
func isPermanent(err error) bool {
	for _, target := range []error{
		errs.ErrMalformedPayload,
		errs.ErrEmptyResponse,
		errs.ErrNoResults,
		errs.ErrInvalidInput,
		errs.ErrInvalidDataSource,
		errs.ErrInvalidTweetURL,
		errs.ErrRawJSONNotAllowed,
		errs.ErrDuplicateTweetID,
		errUnknownExtension,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

func (s *Spool) moveFailed(name string, cause error) error {
	if err := s.move(name, FailedDir); err != nil {
		return err
	}

	errPath := filepath.Join(s.dir, FailedDir, name+extError)
	if err := os.WriteFile(errPath, []byte(cause.Error()+"\n"), filePerm); err != nil {
		return fmt.Errorf("write spool error file: %w", err)
	}

	return nil
}

func (s *Spool) move(name, sub string) error {
	src := filepath.Join(s.dir, name)
	dst := filepath.Join(s.dir, sub, name)

	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(name)
		dst = filepath.Join(s.dir, sub, fmt.Sprintf("%s.%d%s", strings.TrimSuffix(name, ext), time.Now().UnixNano(), ext))
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move spool file to %s: %w", sub, err)
	}

	return nil
}

func (s *Spool) ensureDirs() error {
	for _, sub := range []string{DoneDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(s.dir, sub), dirPerm); err != nil {
			return fmt.Errorf("create spool dir %s: %w", sub, err)
		}
	}

	return nil
}

// isCapture reports whether a file name looks like a finished capture.
// Hidden files and editor or download temporaries are skipped.
func isCapture(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case extOCR, extXHR:
		return true
	default:
		return false
	}
}
