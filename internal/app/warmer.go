package app

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// warmTarget is the part of Service the warmer drives.
type warmTarget interface {
	Warm(ctx context.Context) error
}

// Warmer refreshes every domain's cache on a cron schedule so the first
// request after a quiet period does not pay for the upstream fetch.
type Warmer struct {
	target  warmTarget
	spec    string
	timeout time.Duration
	loc     *time.Location
	log     zerolog.Logger

	mu     sync.Mutex
	c      *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWarmer(target warmTarget, spec string, timeout time.Duration, loc *time.Location, log zerolog.Logger) *Warmer {
	if timeout <= 0 {
		timeout = time.Minute
	}
	if loc == nil {
		loc = time.Local
	}
	return &Warmer{target: target, spec: spec, timeout: timeout, loc: loc, log: log}
}

// Start registers the schedule and runs one warm-up immediately. An empty
// spec disables the warmer.
func (w *Warmer) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c != nil || w.spec == "" {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(w.loc))
	ctx, cancel := context.WithCancel(ctx)
	if _, err := c.AddFunc(w.spec, func() { w.run(ctx) }); err != nil {
		cancel()
		return err
	}
	w.c = c
	w.cancel = cancel
	c.Start()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	w.log.Info().Str("schedule", w.spec).Str("tz", w.loc.String()).Msg("cache warmer started")
	return nil
}

// Stop halts the schedule and waits for a running warm-up to return.
func (w *Warmer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c == nil {
		return
	}
	w.cancel()
	<-w.c.Stop().Done()
	w.wg.Wait()
	w.c = nil
}

func (w *Warmer) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	started := time.Now()
	if err := w.target.Warm(ctx); err != nil {
		w.log.Warn().Err(err).Msg("cache warm failed")
		return
	}
	w.log.Debug().Dur("took", time.Since(started)).Msg("cache warmed")
}
