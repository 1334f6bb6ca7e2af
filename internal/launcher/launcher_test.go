package launcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/playlistfill/internal/engine"
)

type fakeLocator struct {
	url string
	err error
}

func (f fakeLocator) URL(ctx context.Context) (string, error) { return f.url, f.err }

// emptyPage renders no items at all
type emptyPage struct {
	scans   int
	scrolls int
	err     error
}

func (p *emptyPage) Items(ctx context.Context) ([]engine.Item, error) {
	p.scans++
	return nil, p.err
}
func (p *emptyPage) MenuEntries(ctx context.Context) ([]engine.MenuEntry, error) { return nil, nil }
func (p *emptyPage) Dismiss(ctx context.Context) error                           { return nil }
func (p *emptyPage) Scroll(ctx context.Context, fraction float64) error {
	p.scrolls++
	return nil
}

type nopObserver struct{ finished int }

func (o *nopObserver) ItemSettled(context.Context, engine.ItemReport) {}
func (o *nopObserver) RunFinished(context.Context, engine.Result)     { o.finished++ }

func newLauncher(url string, page *emptyPage) *Launcher {
	return &Launcher{
		Site:    "music.yandex.ru/",
		Locator: fakeLocator{url: url},
		Page:    page,
		Options: engine.Options{
			MaxProbes: 2,
			Sleep:     func(ctx context.Context, d time.Duration) error { return nil },
		},
		Logger: zerolog.Nop(),
	}
}

func TestLaunchRejectsEmptyName(t *testing.T) {
	page := &emptyPage{}
	l := newLauncher("https://music.yandex.ru/users/me/tracks", page)

	_, err := l.Launch(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Zero(t, page.scans)
}

func TestLaunchRejectsWrongSite(t *testing.T) {
	page := &emptyPage{}
	l := newLauncher("https://example.com/", page)
	prepared := false
	l.Prepare = func(ctx context.Context, target, url string) ([]engine.Observer, error) {
		prepared = true
		return nil, nil
	}

	_, err := l.Launch(context.Background(), "Workout")
	assert.ErrorIs(t, err, ErrWrongSite)
	assert.Zero(t, page.scans, "engine must not run")
	assert.False(t, prepared)
}

func TestLaunchRunsEngine(t *testing.T) {
	page := &emptyPage{}
	l := newLauncher("https://music.yandex.ru/users/me/playlists/3", page)
	obs := &nopObserver{}
	var gotTarget string
	l.Prepare = func(ctx context.Context, target, url string) ([]engine.Observer, error) {
		gotTarget = target
		return []engine.Observer{obs}, nil
	}

	res, err := l.Launch(context.Background(), "  Workout ")
	require.NoError(t, err)

	assert.Equal(t, engine.Result{Success: true}, res)
	assert.Equal(t, "Workout", gotTarget)
	assert.Equal(t, 1, obs.finished)
	assert.Equal(t, 1, page.scrolls)
}

func TestLaunchPrepareFailure(t *testing.T) {
	page := &emptyPage{}
	l := newLauncher("https://music.yandex.ru/", page)
	l.Prepare = func(ctx context.Context, target, url string) ([]engine.Observer, error) {
		return nil, errors.New("history unavailable")
	}

	_, err := l.Launch(context.Background(), "Workout")
	require.Error(t, err)
	assert.Zero(t, page.scans)
}

func TestLaunchTransportErrors(t *testing.T) {
	t.Run("url", func(t *testing.T) {
		l := newLauncher("", &emptyPage{})
		l.Locator = fakeLocator{err: errors.New("websocket closed")}

		_, err := l.Launch(context.Background(), "Workout")
		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.Contains(t, Render(engine.Result{}, err), "Script execution error: websocket closed")
	})

	t.Run("engine", func(t *testing.T) {
		page := &emptyPage{err: errors.New("target closed")}
		l := newLauncher("https://music.yandex.ru/", page)

		_, err := l.Launch(context.Background(), "Workout")
		var te *TransportError
		require.ErrorAs(t, err, &te)
	})
}

func TestLaunchCancelled(t *testing.T) {
	page := &emptyPage{}
	l := newLauncher("https://music.yandex.ru/", page)
	l.Options.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Launch(ctx, "Workout")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "Stopped: interrupted.", Render(engine.Result{}, err))
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		res  engine.Result
		err  error
		want string
	}{
		{"success", engine.Result{Success: true, Processed: 12, ErrorCount: 2}, nil, "Done: 12 tracks processed. Errors: 2."},
		{"failure", engine.Result{Message: "playlist 'X' not found while processing the first item; run stopped"}, nil, "Error: playlist 'X' not found while processing the first item; run stopped"},
		{"empty name", engine.Result{}, ErrEmptyName, "Error: enter a playlist name."},
		{"wrong site", engine.Result{}, ErrWrongSite, "Error: not on a Yandex Music page!"},
		{"other", engine.Result{}, errors.New("boom"), "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.res, tt.err))
		})
	}
}
