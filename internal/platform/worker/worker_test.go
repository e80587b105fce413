package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errFatal = errors.New("fatal")

func TestLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32

	stopped := false

	err := Loop(ctx, Config{
		Name:         "test",
		PollInterval: time.Millisecond,
		Process: func(context.Context) error {
			if calls.Add(1) == 3 {
				cancel()
			}

			return nil
		},
		OnStop: func() { stopped = true },
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Loop() error = %v, want context.Canceled", err)
	}

	if calls.Load() != 3 {
		t.Errorf("process calls = %d, want 3", calls.Load())
	}

	if !stopped {
		t.Error("OnStop was not called")
	}
}

func TestLoop_OnErrorStops(t *testing.T) {
	err := Loop(context.Background(), Config{
		Name:    "test",
		Process: func(context.Context) error { return errFatal },
		OnError: func(error) bool { return false },
	})

	if !errors.Is(err, errFatal) {
		t.Fatalf("Loop() error = %v, want %v", err, errFatal)
	}
}

func TestLoop_OnStartError(t *testing.T) {
	called := false

	err := Loop(context.Background(), Config{
		Name:    "test",
		OnStart: func(context.Context) error { return errFatal },
		Process: func(context.Context) error {
			called = true
			return nil
		},
	})

	if !errors.Is(err, errFatal) {
		t.Fatalf("Loop() error = %v, want %v", err, errFatal)
	}

	if called {
		t.Error("Process ran after OnStart failed")
	}
}

func TestLoop_RecoversPanic(t *testing.T) {
	var gotErr error

	err := Loop(context.Background(), Config{
		Name:    "test",
		Process: func(context.Context) error { panic("boom") },
		OnError: func(err error) bool {
			gotErr = err
			return false
		},
	})

	if err == nil || gotErr == nil {
		t.Fatal("expected panic to surface as an error")
	}
}

func TestLoop_PeriodicTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32

	_ = Loop(ctx, Config{
		Name:         "test",
		PollInterval: time.Millisecond,
		PeriodicTasks: []PeriodicTask{{
			Name:     "tick",
			Interval: time.Hour,
			Run:      func(context.Context) { runs.Add(1) },
		}},
		Process: func() ProcessFunc {
			var n int

			return func(context.Context) error {
				n++
				if n == 5 {
					cancel()
				}

				return nil
			}
		}(),
	})

	if runs.Load() != 1 {
		t.Errorf("periodic runs = %d, want 1", runs.Load())
	}
}

func TestWait(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Wait(0) error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}
