package apify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultPollInitial = 2 * time.Second
	defaultPollCap     = 10 * time.Second
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	cap     time.Duration
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.initial = d
		}
	}
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.cap = d
		}
	}
}

// WaitForRun polls the run until it reaches a terminal status or ctx ends.
// Runs that end in anything but SUCCEEDED are returned as errors.
func WaitForRun(ctx context.Context, client Client, runID string, opts ...PollOption) (*Run, error) {
	cfg := pollConfig{initial: defaultPollInitial, cap: defaultPollCap}
	for _, opt := range opts {
		opt(&cfg)
	}

	interval := cfg.initial
	for {
		run, err := client.GetRun(ctx, runID)
		if err != nil {
			return nil, eris.Wrapf(err, "apify: poll run %s", runID)
		}

		if run.Terminal() {
			if run.Status != StatusSucceeded {
				return run, eris.Errorf("apify: run %s ended with status %s", runID, run.Status)
			}
			return run, nil
		}
		zap.L().Debug("apify: run in progress",
			zap.String("run_id", runID),
			zap.String("status", run.Status),
		)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, eris.Wrapf(ctx.Err(), "apify: poll run %s", runID)
		case <-timer.C:
		}

		interval *= 2
		if interval > cfg.cap {
			interval = cfg.cap
		}
	}
}

// RunActor starts actorID with input, waits for it and returns up to limit
// dataset items.
func RunActor(ctx context.Context, client Client, actorID string, input any, limit int, opts ...PollOption) ([]map[string]any, error) {
	run, err := client.StartRun(ctx, actorID, input)
	if err != nil {
		return nil, err
	}
	zap.L().Info("apify: actor run started",
		zap.String("actor", actorID),
		zap.String("run_id", run.ID),
	)

	if !run.Terminal() {
		run, err = WaitForRun(ctx, client, run.ID, opts...)
		if err != nil {
			return nil, err
		}
	} else if run.Status != StatusSucceeded {
		return nil, eris.Errorf("apify: run %s ended with status %s", run.ID, run.Status)
	}

	return client.DatasetItems(ctx, run.DefaultDatasetID, limit)
}
