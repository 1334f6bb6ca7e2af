// Package launcher validates user input, checks the page precondition and
// runs the engine exactly once.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/v0xg/playlistfill/internal/engine"
)

var (
	// ErrEmptyName is returned for a blank playlist name
	ErrEmptyName = errors.New("enter a playlist name")
	// ErrWrongSite is returned when the working page is not on the expected site
	ErrWrongSite = errors.New("not on a Yandex Music page")
)

// TransportError wraps a failure of the browser connection itself,
// as opposed to a run that completed with a failure result.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Locator reports the address of the page a run would work on
type Locator interface {
	URL(ctx context.Context) (string, error)
}

// PrepareFunc is called once the preconditions hold and before the engine
// starts. The observers it returns are attached to the run.
type PrepareFunc func(ctx context.Context, target, url string) ([]engine.Observer, error)

// Launcher runs the engine against one page
type Launcher struct {
	Site    string
	Locator Locator
	Page    engine.Page
	Options engine.Options
	Prepare PrepareFunc
	Logger  zerolog.Logger
}

// Launch validates name, checks that the page belongs to Site and runs the engine.
//
// Input errors (ErrEmptyName, ErrWrongSite) are returned before any run state
// exists. Browser failures come back as *TransportError. A cancelled ctx is
// returned as is.
func (l *Launcher) Launch(ctx context.Context, name string) (engine.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return engine.Result{}, ErrEmptyName
	}

	url, err := l.Locator.URL(ctx)
	if err != nil {
		return engine.Result{}, &TransportError{Err: err}
	}
	if !strings.Contains(url, l.Site) {
		return engine.Result{}, fmt.Errorf("%w: %s", ErrWrongSite, url)
	}

	opts := l.Options
	if l.Prepare != nil {
		observers, err := l.Prepare(ctx, name, url)
		if err != nil {
			return engine.Result{}, err
		}
		opts.Observers = append(append([]engine.Observer{}, opts.Observers...), observers...)
	}
	if opts.Logger == nil {
		opts.Logger = &l.Logger
	}

	l.Logger.Info().Str("target", name).Str("url", url).Msg("launching engine")

	res, err := engine.New(l.Page, opts).Run(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return engine.Result{}, ctx.Err()
		}
		return engine.Result{}, &TransportError{Err: err}
	}
	return res, nil
}

// Render turns the outcome of Launch into the one-line status shown to the user
func Render(res engine.Result, err error) string {
	var te *TransportError
	switch {
	case errors.Is(err, ErrEmptyName):
		return "Error: enter a playlist name."
	case errors.Is(err, ErrWrongSite):
		return "Error: not on a Yandex Music page!"
	case errors.Is(err, context.Canceled):
		return "Stopped: interrupted."
	case errors.As(err, &te):
		return fmt.Sprintf("Script execution error: %v", te.Err)
	case err != nil:
		return fmt.Sprintf("Error: %v", err)
	case res.Success:
		return fmt.Sprintf("Done: %d tracks processed. Errors: %d.", res.Processed, res.ErrorCount)
	default:
		return fmt.Sprintf("Error: %s", res.Message)
	}
}
