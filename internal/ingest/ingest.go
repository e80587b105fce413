// Package ingest stores tweets captured by the two collection paths.
//
// OCR captures carry no external id and are always inserted. XHR captures
// are keyed by tweet_id and upserted, so re-capturing a tweet refreshes its
// counters instead of duplicating it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/tweet-store/internal/core/domain"
	errs "github.com/lueurxax/tweet-store/internal/core/errors"
	"github.com/lueurxax/tweet-store/internal/ingest/ocr"
	"github.com/lueurxax/tweet-store/internal/ingest/xhr"
	"github.com/lueurxax/tweet-store/internal/platform/observability"
)

const (
	defaultBatchSize = 100

	logFieldBatchID = "batch_id"
	logFieldSource  = "source"

	outcomeInserted = "inserted"
	outcomeUpdated  = "updated"

	reasonInvalid = "invalid"
)

// Options configures a Service.
type Options struct {
	// BatchSize bounds the number of tweets written per transaction.
	BatchSize int
	// RetainRawJSON keeps the intercepted payload of each XHR tweet in raw_json.
	RetainRawJSON bool
	// OCR overrides the OCR parser, mainly to pin the clock in tests.
	OCR ocr.Parser
}

// Result summarises one ingestion call.
type Result struct {
	BatchID  string
	Source   domain.DataSource
	Parsed   int
	Inserted int
	Updated  int
	Rejected int
}

// Service parses captures and writes them through a Repository.
type Service struct {
	repo   Repository
	opts   Options
	logger *zerolog.Logger
}

// NewService creates a Service. A non-positive batch size falls back to the default.
func NewService(repo Repository, opts Options, logger *zerolog.Logger) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Service{repo: repo, opts: opts, logger: logger}
}

// IngestOCR parses recognised screenshot text and inserts the tweets found.
func (s *Service) IngestOCR(ctx context.Context, text string) (Result, error) {
	started := time.Now()
	res := s.newResult(domain.SourceOCR)

	tweets := s.opts.OCR.Parse(text)
	res.Parsed = len(tweets)

	valid := s.filterValid(tweets, &res)

	for _, chunk := range chunks(valid, s.opts.BatchSize) {
		if err := s.repo.InsertTweets(ctx, chunk); err != nil {
			return s.fail(res, fmt.Errorf("store ocr tweets: %w", err))
		}

		res.Inserted += len(chunk)
	}

	s.finish(res, started)

	return res, nil
}

// IngestXHR parses an intercepted API payload and upserts the tweets found.
// A payload without tweets is not an error.
func (s *Service) IngestXHR(ctx context.Context, payload []byte) (Result, error) {
	started := time.Now()
	res := s.newResult(domain.SourceXHR)

	tweets, err := xhr.Parse(payload)
	if err != nil {
		if errors.Is(err, errs.ErrNoResults) {
			s.logger.Debug().Str(logFieldBatchID, res.BatchID).Msg("xhr payload contains no tweets")
			s.finish(res, started)

			return res, nil
		}

		return s.fail(res, fmt.Errorf("parse xhr payload: %w", err))
	}

	res.Parsed = len(tweets)

	if !s.opts.RetainRawJSON {
		for i := range tweets {
			tweets[i].RawJSON = nil
		}
	}

	valid := s.filterValid(tweets, &res)

	for _, chunk := range chunks(valid, s.opts.BatchSize) {
		up, err := s.repo.UpsertTweets(ctx, chunk)
		if err != nil {
			return s.fail(res, fmt.Errorf("store xhr tweets: %w", err))
		}

		res.Inserted += up.Inserted
		res.Updated += up.Updated
	}

	s.finish(res, started)

	return res, nil
}

func (s *Service) newResult(source domain.DataSource) Result {
	return Result{BatchID: uuid.NewString(), Source: source}
}

func (s *Service) filterValid(tweets []domain.Tweet, res *Result) []domain.Tweet {
	valid := tweets[:0]

	for _, t := range tweets {
		if err := t.Validate(); err != nil {
			res.Rejected++
			observability.TweetsRejected.WithLabelValues(res.Source.String(), reasonInvalid).Inc()
			s.logger.Warn().Err(err).
				Str(logFieldBatchID, res.BatchID).
				Str("author", t.Author).
				Str("tweet_id", t.TweetID).
				Msg("dropping invalid tweet")

			continue
		}

		valid = append(valid, t)
	}

	return valid
}

func (s *Service) fail(res Result, err error) (Result, error) {
	observability.IngestErrors.WithLabelValues(res.Source.String()).Inc()
	s.logger.Error().Err(err).
		Str(logFieldBatchID, res.BatchID).
		Str(logFieldSource, res.Source.String()).
		Int("stored", res.Inserted+res.Updated).
		Msg("ingestion failed")

	return res, err
}

func (s *Service) finish(res Result, started time.Time) {
	source := res.Source.String()

	observability.IngestBatchDurationSeconds.WithLabelValues(source).Observe(time.Since(started).Seconds())
	observability.TweetsIngested.WithLabelValues(source, outcomeInserted).Add(float64(res.Inserted))
	observability.TweetsIngested.WithLabelValues(source, outcomeUpdated).Add(float64(res.Updated))

	s.logger.Info().
		Str(logFieldBatchID, res.BatchID).
		Str(logFieldSource, source).
		Int("parsed", res.Parsed).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("rejected", res.Rejected).
		Dur("took", time.Since(started)).
		Msg("ingestion batch stored")
}

func chunks(tweets []domain.Tweet, size int) [][]domain.Tweet {
	var out [][]domain.Tweet

	for start := 0; start < len(tweets); start += size {
		end := start + size
		if end > len(tweets) {
			end = len(tweets)
		}

		out = append(out, tweets[start:end])
	}

	return out
}
