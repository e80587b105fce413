package spool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/tweet-store/internal/core/domain"
	errs "github.com/lueurxax/tweet-store/internal/core/errors"
	"github.com/lueurxax/tweet-store/internal/ingest"
	"github.com/lueurxax/tweet-store/internal/platform/observability"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

type fakeIngester struct {
	ocr    []string
	xhr    [][]byte
	xhrErr error

	// xhrFailures limits xhrErr to the first n calls when positive.
	xhrFailures int
	xhrCalls    int
}

func (f *fakeIngester) IngestOCR(_ context.Context, text string) (ingest.Result, error) {
	f.ocr = append(f.ocr, text)
	return ingest.Result{Source: domain.SourceOCR, Inserted: 1}, nil
}

func (f *fakeIngester) IngestXHR(_ context.Context, payload []byte) (ingest.Result, error) {
	f.xhrCalls++

	if f.xhrErr != nil && (f.xhrFailures == 0 || f.xhrCalls <= f.xhrFailures) {
		return ingest.Result{}, f.xhrErr
	}

	f.xhr = append(f.xhr, payload)

	return ingest.Result{Source: domain.SourceXHR, Inserted: 1}, nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestPending_SkipsHiddenAndTemporary(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", "{}")
	writeFile(t, dir, "a.txt", "x")
	writeFile(t, dir, ".hidden.txt", "x")
	writeFile(t, dir, "c.json.part", "x")
	writeFile(t, dir, "d.txt~", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755))

	got, err := New(dir, &fakeIngester{}, nil).Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.json"}, got)
}

func TestProcessOnce_RoutesByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shot.txt", "@alice · 1h\nhello")
	writeFile(t, dir, "capture.json", `{"data":{}}`)

	ing := &fakeIngester{}

	n, err := New(dir, ing, nil).ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []string{"@alice · 1h\nhello"}, ing.ocr)
	require.Len(t, ing.xhr, 1)
	assert.JSONEq(t, `{"data":{}}`, string(ing.xhr[0]))

	assert.FileExists(t, filepath.Join(dir, DoneDir, "shot.txt"))
	assert.FileExists(t, filepath.Join(dir, DoneDir, "capture.json"))
	assert.NoFileExists(t, filepath.Join(dir, "shot.txt"))
}

func TestProcessOnce_FailedFileMovedAside(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", "{")
	writeFile(t, dir, "good.txt", "@bob\nhi")

	ing := &fakeIngester{xhrErr: fmt.Errorf("parse xhr payload: %w", errs.ErrMalformedPayload)}

	n, err := New(dir, ing, nil).ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.FileExists(t, filepath.Join(dir, FailedDir, "bad.json"))

	msg, err := os.ReadFile(filepath.Join(dir, FailedDir, "bad.json.err"))
	require.NoError(t, err)
	assert.Contains(t, string(msg), "malformed payload")

	assert.FileExists(t, filepath.Join(dir, DoneDir, "good.txt"))
}

func TestProcessOnce_TransientErrorKeepsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"data":{}}`)
	writeFile(t, dir, "b.txt", "@bob\nhi")

	ing := &fakeIngester{xhrErr: fmt.Errorf("store batch: %w", errConnRefused)}

	n, err := New(dir, ing, nil).ProcessOnce(context.Background())
	require.ErrorIs(t, err, errConnRefused)
	assert.Zero(t, n)

	assert.FileExists(t, filepath.Join(dir, "a.json"))
	assert.NoFileExists(t, filepath.Join(dir, FailedDir, "a.json"))
	assert.NoFileExists(t, filepath.Join(dir, FailedDir, "a.json.err"))

	// The pass stops at the first transient failure.
	assert.FileExists(t, filepath.Join(dir, "b.txt"))
	assert.Empty(t, ing.ocr)
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "malformed", err: fmt.Errorf("parse: %w", errs.ErrMalformedPayload), want: true},
		{name: "empty", err: errs.ErrEmptyResponse, want: true},
		{name: "invalid input", err: fmt.Errorf("%w: author is required", errs.ErrInvalidInput), want: true},
		{name: "invalid source", err: errs.ErrInvalidDataSource, want: true},
		{name: "duplicate", err: fmt.Errorf("%w: 23505", errs.ErrDuplicateTweetID), want: true},
		{name: "unknown extension", err: fmt.Errorf("%w: .csv", errUnknownExtension), want: true},
		{name: "connection refused", err: errConnRefused, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: fmt.Errorf("store: %w", context.DeadlineExceeded), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isPermanent(tt.err))
		})
	}
}

func TestFailedCount(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, &fakeIngester{}, nil)
	require.NoError(t, s.ensureDirs())

	failed := filepath.Join(dir, FailedDir)
	writeFile(t, failed, "a.json", "{")
	writeFile(t, failed, "a.json.err", "malformed payload")
	writeFile(t, failed, "b.txt", "")

	n, err := s.FailedCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	s.reportFailed(context.Background())
	assert.InDelta(t, 2, testutil.ToFloat64(observability.SpoolFailedFiles), 0)
}

func TestProcessOnce_NameCollisionInDone(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, &fakeIngester{}, nil)

	writeFile(t, dir, "same.txt", "@a\none")
	_, err := s.ProcessOnce(context.Background())
	require.NoError(t, err)

	writeFile(t, dir, "same.txt", "@a\ntwo")
	_, err = s.ProcessOnce(context.Background())
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, DoneDir))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestProcessOnce_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "@a\none")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := New(dir, &fakeIngester{}, nil).ProcessOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	assert.FileExists(t, filepath.Join(dir, "a.txt"))
}

func TestProcessOnce_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "spool")

	n, err := New(dir, &fakeIngester{}, nil).ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.DirExists(t, filepath.Join(dir, FailedDir))
}

func TestRun_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "@a\none")

	ing := &fakeIngester{}
	s := New(dir, ing, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, DoneDir, "a.txt"))
		return err == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRun_RetriesAfterTransientError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"data":{}}`)

	ing := &fakeIngester{xhrErr: errConnRefused, xhrFailures: 2}
	s := New(dir, ing, nil)
	s.failedScanInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, DoneDir, "a.json"))
		return err == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.NoFileExists(t, filepath.Join(dir, FailedDir, "a.json"))
}
