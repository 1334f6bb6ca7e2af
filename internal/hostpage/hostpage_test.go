package hostpage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/playlistfill/internal/config"
	"github.com/v0xg/playlistfill/internal/engine"
)

// These tests drive a real Chromium and are skipped unless PLAYLISTFILL_BROWSER_TESTS=1.
func newFixturePage(t *testing.T) *rod.Page {
	t.Helper()
	if os.Getenv("PLAYLISTFILL_BROWSER_TESTS") != "1" {
		t.Skip("set PLAYLISTFILL_BROWSER_TESTS=1 to run browser tests")
	}

	srv := httptest.NewServer(http.FileServer(http.Dir("testdata")))
	t.Cleanup(srv.Close)

	l := launcher.New().Headless(true)
	u, err := l.Launch()
	require.NoError(t, err)
	t.Cleanup(l.Cleanup)
	t.Cleanup(l.Kill)

	browser := rod.New().ControlURL(u)
	require.NoError(t, browser.Connect())

	page := browser.MustPage(srv.URL + "/list.html")
	page.MustWaitLoad()
	return page
}

func TestItemsAndSnapshots(t *testing.T) {
	p := New(newFixturePage(t), config.Default().Selectors)
	ctx := context.Background()

	items, err := p.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 5)

	var ids []string
	for i, it := range items {
		snap, err := it.Snapshot(ctx)
		require.NoError(t, err)
		snap.Position = i
		ids = append(ids, engine.ResolveIdentity(snap))
	}

	assert.Equal(t, []string{
		"/album/1/track/11",
		"/album/1/track/12",
		"Band - Three",
		"index_3",
		"/album/2/track/21",
	}, ids)
}

func TestSnapshotsReadBeforeRowIsRecycled(t *testing.T) {
	page := newFixturePage(t)
	p := New(page, config.Default().Selectors)
	ctx := context.Background()

	items, err := p.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 5)

	page.MustEval(`() => document.querySelectorAll('#list > div').forEach((row) => row.remove())`)

	for i, want := range []string{"/album/1/track/11", "/album/1/track/12"} {
		snap, err := items[i].Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, snap.Href)
	}
}

func TestMenuEntriesRejectsInvalidMarker(t *testing.T) {
	sel := config.Default().Selectors
	sel.PresentMarker = "svg[aria-label="
	p := New(newFixturePage(t), sel)
	ctx := context.Background()

	items, err := p.Items(ctx)
	require.NoError(t, err)
	opened, err := items[0].OpenMenu(ctx)
	require.NoError(t, err)
	require.True(t, opened)

	entries, err := p.MenuEntries(ctx)
	assert.Error(t, err)
	assert.Empty(t, entries)
}

func TestCheckSelectors(t *testing.T) {
	page := newFixturePage(t)
	ctx := context.Background()

	require.NoError(t, New(page, config.Default().Selectors).CheckSelectors(ctx))

	sel := config.Default().Selectors
	sel.PresentMarker = "svg[aria-label="
	err := New(page, sel).CheckSelectors(ctx)
	assert.ErrorIs(t, err, ErrInvalidSelector)
	assert.Contains(t, err.Error(), "svg[aria-label=")
}

func TestMenuInteraction(t *testing.T) {
	page := newFixturePage(t)
	p := New(page, config.Default().Selectors)
	ctx := context.Background()

	items, err := p.Items(ctx)
	require.NoError(t, err)

	opened, err := items[3].OpenMenu(ctx)
	require.NoError(t, err)
	assert.False(t, opened, "row without a menu button")

	opened, err = items[1].OpenMenu(ctx)
	require.NoError(t, err)
	require.True(t, opened)

	entries, err := p.MenuEntries(ctx)
	require.NoError(t, err)

	var add engine.MenuEntry
	for _, e := range entries {
		if e.Text() == "  Добавить в плейлист " {
			add = e
		}
	}
	require.NotNil(t, add)
	require.NoError(t, add.Click(ctx))

	entries, err = p.MenuEntries(ctx)
	require.NoError(t, err)
	marked := map[string]bool{}
	for _, e := range entries {
		marked[e.Text()] = e.Marked()
	}
	assert.True(t, marked["Workout"])
	assert.False(t, marked["Favourites"])

	require.NoError(t, p.Dismiss(ctx))
	n := page.MustEval(`() => document.querySelectorAll('#menu [role="menuitem"]').length`).Int()
	assert.Zero(t, n)
}

func TestEngineRunOnFixture(t *testing.T) {
	page := newFixturePage(t)
	cfg := config.Default()
	p := New(page, cfg.Selectors)

	e := engine.New(p, engine.Options{
		MenuSettle:     50 * time.Millisecond,
		PickerSettle:   50 * time.Millisecond,
		PostAction:     50 * time.Millisecond,
		ScrollDelay:    10 * time.Millisecond,
		MaxProbes:      3,
		AddActionLabel: cfg.Labels.AddAction,
	})

	res, err := e.Run(context.Background(), "workout")
	require.NoError(t, err)
	assert.Equal(t, engine.Result{Success: true, Processed: 4, ErrorCount: 1}, res)

	added := page.MustEval(`() => window.added`).Arr()
	var got []string
	for _, v := range added {
		got = append(got, v.Str())
	}
	assert.Equal(t, []string{"One:Workout", "Three:Workout", "Five:Workout"}, got)
}

func TestScreenshot(t *testing.T) {
	p := New(newFixturePage(t), config.Default().Selectors)

	data, err := p.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
}
