package hostpage

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/v0xg/playlistfill/internal/config"
	"github.com/v0xg/playlistfill/internal/engine"
)

// ErrInvalidSelector is returned by CheckSelectors for a selector the page cannot parse
var ErrInvalidSelector = errors.New("invalid selector")

// Page drives a rendered track list through Rod.
type Page struct {
	page *rod.Page
	sel  config.SelectorConfig
}

var _ engine.Page = (*Page)(nil)

// New wraps page using the given selectors
func New(page *rod.Page, sel config.SelectorConfig) *Page {
	return &Page{page: page, sel: sel}
}

// Items returns the rendered list rows in document order.
//
// The identity signals of all rows are read in one round trip, so a row
// recycled by the list while reading cannot make the scan fail. Rows the batch
// could not read fall back to reading themselves on Snapshot.
func (p *Page) Items(ctx context.Context) ([]engine.Item, error) {
	els, err := p.page.Context(ctx).Elements(p.sel.Item)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", p.sel.Item, err)
	}

	rows := make([]*item, 0, len(els))
	for _, el := range els {
		rows = append(rows, &item{el: el, sel: p.sel})
	}

	if len(els) > 0 {
		args := []interface{}{p.sel.TrackLink, p.sel.Title, p.sel.Artist, p.sel.IndexAttr}
		res, err := p.page.Context(ctx).Eval(readRowsJS, append(args, objects(els)...)...)
		switch {
		case err == nil:
			for i, v := range res.Value.Arr() {
				if i < len(rows) && !v.Nil() {
					snap := snapshotFrom(v)
					rows[i].snap = &snap
				}
			}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}
	}

	items := make([]engine.Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, r)
	}
	return items, nil
}

// MenuEntries returns the connected elements matching the menu entry selector
// with their visible text and whether they carry the already-present marker.
func (p *Page) MenuEntries(ctx context.Context) ([]engine.MenuEntry, error) {
	els, err := p.page.Context(ctx).Elements(p.sel.MenuEntry)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", p.sel.MenuEntry, err)
	}
	if len(els) == 0 {
		return nil, nil
	}

	args := append([]interface{}{p.sel.PresentMarker}, objects(els)...)
	res, err := p.page.Context(ctx).Eval(readEntriesJS, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu entries: %w", err)
	}

	var entries []engine.MenuEntry
	for i, v := range res.Value.Arr() {
		// detached while the menu was closing
		if i >= len(els) || v.Nil() {
			continue
		}
		entries = append(entries, &entry{el: els[i], text: v.Get("text").Str(), marked: v.Get("marked").Bool()})
	}
	return entries, nil
}

// CheckSelectors reports the first configured selector the page rejects as
// invalid CSS.
func (p *Page) CheckSelectors(ctx context.Context) error {
	sels := []string{}
	for _, s := range []string{
		p.sel.Item, p.sel.TrackLink, p.sel.Title, p.sel.Artist,
		p.sel.MenuButton, p.sel.MenuEntry, p.sel.PresentMarker,
	} {
		if s != "" {
			sels = append(sels, s)
		}
	}

	res, err := p.page.Context(ctx).Eval(checkSelectorsJS, sels)
	if err != nil {
		return fmt.Errorf("failed to check selectors: %w", err)
	}
	if bad := res.Value.Str(); bad != "" {
		return fmt.Errorf("%w: %q", ErrInvalidSelector, bad)
	}
	return nil
}

// Dismiss presses Escape to close any open menu
func (p *Page) Dismiss(ctx context.Context) error {
	return p.page.Context(ctx).KeyActions().Press(input.Escape).Do()
}

// Scroll moves the window down by fraction of its inner height
func (p *Page) Scroll(ctx context.Context, fraction float64) error {
	_, err := p.page.Context(ctx).Eval(`(f) => window.scrollBy(0, window.innerHeight * f)`, fraction)
	return err
}

// Screenshot captures the visible viewport as PNG
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

const readRowJS = `(row, link, title, artist, indexAttr) => {
	const q = (sel) => sel ? row.querySelector(sel) : null;
	const a = q(link);
	const t = q(title);
	const r = q(artist);
	const hasIndex = !!indexAttr && row.hasAttribute(indexAttr);
	return {
		href: a ? (a.getAttribute('href') || '') : '',
		title: t ? (t.textContent || '') : '',
		artist: r ? (r.textContent || '') : '',
		index: hasIndex ? row.getAttribute(indexAttr) : '',
		hasIndex: hasIndex,
	};
}`

const readRowsJS = `(link, title, artist, indexAttr, ...rows) => rows.map((row) => {
	try {
		return (` + readRowJS + `)(row, link, title, artist, indexAttr);
	} catch (e) {
		return null;
	}
})`

const snapshotJS = `(link, title, artist, indexAttr) => (` + readRowJS + `)(this, link, title, artist, indexAttr)`

const readEntriesJS = `(marker, ...els) => els.map((el) => {
	if (!el.isConnected) return null;
	return {
		text: el.textContent || '',
		marked: !!marker && !!el.querySelector(marker),
	};
})`

const checkSelectorsJS = `(sels) => {
	for (const s of sels) {
		try {
			document.querySelector(s);
		} catch (e) {
			return s;
		}
	}
	return '';
}`

func objects(els rod.Elements) []interface{} {
	out := make([]interface{}, 0, len(els))
	for _, el := range els {
		out = append(out, el.Object)
	}
	return out
}

func snapshotFrom(v gson.JSON) engine.ItemSnapshot {
	return engine.ItemSnapshot{
		Href:     v.Get("href").Str(),
		Title:    v.Get("title").Str(),
		Artist:   v.Get("artist").Str(),
		Index:    v.Get("index").Str(),
		HasIndex: v.Get("hasIndex").Bool(),
	}
}

type item struct {
	el   *rod.Element
	sel  config.SelectorConfig
	snap *engine.ItemSnapshot
}

func (i *item) Snapshot(ctx context.Context) (engine.ItemSnapshot, error) {
	if i.snap != nil {
		return *i.snap, nil
	}

	res, err := i.el.Context(ctx).Eval(snapshotJS, i.sel.TrackLink, i.sel.Title, i.sel.Artist, i.sel.IndexAttr)
	if err != nil {
		return engine.ItemSnapshot{}, err
	}
	snap := snapshotFrom(res.Value)
	i.snap = &snap
	return snap, nil
}

func (i *item) OpenMenu(ctx context.Context) (bool, error) {
	has, btn, err := i.el.Context(ctx).Has(i.sel.MenuButton)
	if err != nil {
		return false, err
	}
	if !has {
		return false, nil
	}

	if _, err := btn.Eval(`() => this.scrollIntoView({behavior: 'smooth', block: 'center'})`); err != nil {
		return false, err
	}
	// HTMLElement.click: the button is only visible while the row is hovered
	if _, err := btn.Eval(`() => this.click()`); err != nil {
		return false, err
	}
	return true, nil
}

type entry struct {
	el     *rod.Element
	text   string
	marked bool
}

func (e *entry) Text() string { return e.text }
func (e *entry) Marked() bool { return e.marked }

func (e *entry) Click(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => this.click()`)
	return err
}
