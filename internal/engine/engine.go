package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Default timings. The menu delays give the host UI time to finish its open animations.
const (
	DefaultMenuSettle     = 500 * time.Millisecond
	DefaultPickerSettle   = 800 * time.Millisecond
	DefaultPostAction     = 1800 * time.Millisecond
	DefaultScrollDelay    = 600 * time.Millisecond
	DefaultMaxProbes      = 20
	DefaultScrollFraction = 0.8
	DefaultAddActionLabel = "добавить в плейлист"
)

// Options configures an Engine. Zero values fall back to the defaults above.
type Options struct {
	MenuSettle     time.Duration
	PickerSettle   time.Duration
	PostAction     time.Duration
	ScrollDelay    time.Duration
	MaxProbes      int
	ScrollFraction float64

	// AddActionLabel is matched case-insensitively as a substring of menu entry text.
	AddActionLabel string

	// DryRun claims and counts items without opening any menu.
	DryRun bool

	Logger    *zerolog.Logger
	Observers []Observer

	// Sleep waits between interactions. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Candidate is an unprocessed item found by a scan.
type Candidate struct {
	Item     Item
	Identity string
}

// Engine walks a virtualized list and adds every item to a target playlist.
// An Engine is not safe for concurrent use; items are driven strictly one at a time
// because the host UI supports a single open menu.
type Engine struct {
	page Page
	opts Options
	log  zerolog.Logger
}

// New creates an Engine driving page.
func New(page Page, opts Options) *Engine {
	if opts.MenuSettle == 0 {
		opts.MenuSettle = DefaultMenuSettle
	}
	if opts.PickerSettle == 0 {
		opts.PickerSettle = DefaultPickerSettle
	}
	if opts.PostAction == 0 {
		opts.PostAction = DefaultPostAction
	}
	if opts.ScrollDelay == 0 {
		opts.ScrollDelay = DefaultScrollDelay
	}
	if opts.MaxProbes <= 0 {
		opts.MaxProbes = DefaultMaxProbes
	}
	if opts.ScrollFraction <= 0 {
		opts.ScrollFraction = DefaultScrollFraction
	}
	if opts.AddActionLabel == "" {
		opts.AddActionLabel = DefaultAddActionLabel
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	return &Engine{
		page: page,
		opts: opts,
		log:  log.With().Str("component", "engine").Logger(),
	}
}

// Run processes every item reachable by scrolling and returns exactly one Result.
//
// A non-nil error means the page itself could not be read or driven, or ctx was
// cancelled; per-item failures are only counted in the Result.
func (e *Engine) Run(ctx context.Context, target string) (Result, error) {
	run := NewRun(target)
	e.log.Info().Str("target", target).Bool("dry_run", e.opts.DryRun).Msg("starting run")

	candidates, err := e.FindUnprocessed(ctx, run)
	if err != nil {
		return Result{}, err
	}
	if len(candidates) > 0 {
		e.log.Debug().Msg("processing first item before scrolling")
		outcome, err := e.ProcessItem(ctx, run, candidates[0])
		if err != nil {
			return Result{}, err
		}
		if outcome == Halted {
			return e.finish(ctx, run, run.abort()), nil
		}
		run.enter(Draining)
	} else {
		e.log.Debug().Msg("no items rendered at start, probing")
		run.enter(Probing)
	}

	for {
		candidates, err := e.FindUnprocessed(ctx, run)
		if err != nil {
			return Result{}, err
		}

		if len(candidates) > 0 {
			run.enter(Draining)
			run.probes = 0
			e.log.Debug().Int("unprocessed", len(candidates)).Msg("draining")

			outcome, err := e.ProcessItem(ctx, run, candidates[0])
			if err != nil {
				return Result{}, err
			}
			if outcome == Halted {
				return e.finish(ctx, run, run.abort()), nil
			}
			if err := e.advance(ctx); err != nil {
				return Result{}, err
			}
			continue
		}

		run.enter(Probing)
		run.probes++
		if run.probes >= e.opts.MaxProbes {
			e.log.Info().Int("probes", run.probes).Msg("no new items, finishing")
			return e.finish(ctx, run, run.complete()), nil
		}
		e.log.Debug().Int("probe", run.probes).Int("max", e.opts.MaxProbes).Msg("no unprocessed items, scrolling")
		if err := e.advance(ctx); err != nil {
			return Result{}, err
		}
	}
}

// FindUnprocessed returns the rendered items whose identity has not been claimed,
// in document order. Items that cannot be read are left out. It does not modify run.
func (e *Engine) FindUnprocessed(ctx context.Context, run *Run) ([]Candidate, error) {
	items, err := e.page.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	var candidates []Candidate
	for i, item := range items {
		snap, err := item.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// recycled by the list between the query and the read, the next scan sees it again
			e.log.Debug().Err(err).Int("position", i).Msg("skipping unreadable item")
			continue
		}
		snap.Position = i

		id := ResolveIdentity(snap)
		if run.IsClaimed(id) {
			continue
		}
		candidates = append(candidates, Candidate{Item: item, Identity: id})
	}

	return candidates, nil
}

// advance scrolls the viewport forward and waits for the list to render.
func (e *Engine) advance(ctx context.Context) error {
	if err := e.page.Scroll(ctx, e.opts.ScrollFraction); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return e.opts.Sleep(ctx, e.opts.ScrollDelay)
}

func (e *Engine) finish(ctx context.Context, run *Run, res Result) Result {
	ev := e.log.Info()
	if !res.Success {
		ev = e.log.Error()
	}
	ev.Str("state", run.State().String()).
		Int("claimed", run.Claimed()).
		Int("processed", run.Processed()).
		Int("errors", run.Errors()).
		Msg("run finished")

	for _, o := range e.opts.Observers {
		o.RunFinished(ctx, res)
	}
	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
