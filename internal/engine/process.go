package engine

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ProcessItem drives the add-to-playlist interaction for one candidate.
//
// The identity is claimed before any interaction so a slow item can never be
// picked up by a later scan. Recoverable failures are counted in run and
// reported through the returned Outcome; Halted means the target playlist was
// missing on the first claimed item and the run must stop. The error is
// non-nil only when ctx is done.
func (e *Engine) ProcessItem(ctx context.Context, run *Run, c Candidate) (Outcome, error) {
	if !run.Claim(c.Identity) {
		e.log.Debug().Str("identity", c.Identity).Msg("already processed, skipping")
		return Duplicate, nil
	}
	seq := run.Claimed()

	log := e.log.With().Str("identity", c.Identity).Int("seq", seq).Logger()
	log.Debug().Msg("processing item")

	outcome, err := e.interact(ctx, run, c, log)
	if err != nil {
		return outcome, err
	}

	report := ItemReport{Seq: seq, Identity: c.Identity, Outcome: outcome, At: time.Now()}
	for _, o := range e.opts.Observers {
		o.ItemSettled(ctx, report)
	}
	return outcome, nil
}

func (e *Engine) interact(ctx context.Context, run *Run, c Candidate, log zerolog.Logger) (Outcome, error) {
	if e.opts.DryRun {
		run.processed++
		return Seen, nil
	}

	opened, err := c.Item.OpenMenu(ctx)
	if err != nil {
		return e.interactionFailed(ctx, run, log, "open context menu", err)
	}
	if !opened {
		run.errors++
		log.Warn().Msg("context menu control not found")
		return NoMenuControl, nil
	}

	if err := e.opts.Sleep(ctx, e.opts.MenuSettle); err != nil {
		return InteractionFailed, err
	}

	entries, err := e.page.MenuEntries(ctx)
	if err != nil {
		return e.interactionFailed(ctx, run, log, "read context menu", err)
	}
	action := findAddAction(entries, e.opts.AddActionLabel)
	if action == nil {
		run.errors++
		log.Warn().Str("label", e.opts.AddActionLabel).Msg("add-to-playlist action not found")
		e.dismiss(ctx, log)
		return NoAddAction, nil
	}
	if err := action.Click(ctx); err != nil {
		return e.interactionFailed(ctx, run, log, "click add-to-playlist action", err)
	}

	if err := e.opts.Sleep(ctx, e.opts.PickerSettle); err != nil {
		return InteractionFailed, err
	}

	entries, err = e.page.MenuEntries(ctx)
	if err != nil {
		return e.interactionFailed(ctx, run, log, "read playlist picker", err)
	}
	entry := findTarget(entries, run.Target())
	if entry == nil {
		run.errors++
		e.dismiss(ctx, log)
		if run.IsFirstClaim() {
			log.Error().Str("target", run.Target()).Msg("target playlist not found on the first item, stopping")
			return Halted, nil
		}
		log.Warn().Str("target", run.Target()).Msg("target playlist not found, skipping item")
		return TargetMissing, nil
	}

	if entry.Marked() {
		run.processed++
		log.Info().Msg("already in playlist")
		e.dismiss(ctx, log)
		return AlreadyPresent, nil
	}

	if err := entry.Click(ctx); err != nil {
		return e.interactionFailed(ctx, run, log, "click playlist entry", err)
	}
	run.processed++
	log.Info().Msg("added to playlist")

	if err := e.opts.Sleep(ctx, e.opts.PostAction); err != nil {
		return Added, err
	}
	return Added, nil
}

// interactionFailed counts a failed page interaction as a per-item error,
// unless the failure came from ctx itself.
func (e *Engine) interactionFailed(ctx context.Context, run *Run, log zerolog.Logger, step string, err error) (Outcome, error) {
	if ctx.Err() != nil {
		return InteractionFailed, ctx.Err()
	}
	run.errors++
	log.Warn().Err(err).Str("step", step).Msg("interaction failed")
	e.dismiss(ctx, log)
	return InteractionFailed, nil
}

func (e *Engine) dismiss(ctx context.Context, log zerolog.Logger) {
	if err := e.page.Dismiss(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to dismiss menu")
	}
}

func findAddAction(entries []MenuEntry, label string) MenuEntry {
	label = strings.ToLower(strings.TrimSpace(label))
	for _, entry := range entries {
		if strings.Contains(strings.ToLower(strings.TrimSpace(entry.Text())), label) {
			return entry
		}
	}
	return nil
}

func findTarget(entries []MenuEntry, target string) MenuEntry {
	target = strings.TrimSpace(target)
	for _, entry := range entries {
		if strings.EqualFold(strings.TrimSpace(entry.Text()), target) {
			return entry
		}
	}
	return nil
}
