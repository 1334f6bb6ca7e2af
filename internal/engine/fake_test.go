package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type menuState int

const (
	menuClosed menuState = iota
	menuContext
	menuPicker
)

type fakeTrack struct {
	href, title, artist string
	noMenu              bool
	noAddAction         bool
	hideTarget          bool
	present             bool
	failTargetClick     bool
	// unreadable makes the next n snapshots of this track fail
	unreadable int
}

// fakePage renders a window of tracks the way a virtualized list does.
// Opening a menu centers its row, scrolling moves the window by step rows.
type fakePage struct {
	tracks    []*fakeTrack
	window    int
	step      int
	offset    int
	playlists []string
	target    string
	addLabel  string

	menu        menuState
	open        *fakeTrack
	opened      []*fakeTrack
	added       map[*fakeTrack]int
	targetClick map[*fakeTrack]int
	scrolls     int
	dismisses   int
	scans       int
	itemsErr    error
}

func newFakePage(target string, tracks ...*fakeTrack) *fakePage {
	return &fakePage{
		tracks:      tracks,
		window:      10,
		step:        3,
		playlists:   []string{"Favourites", target, "Road trip"},
		target:      target,
		addLabel:    "  Add to Playlist ",
		added:       make(map[*fakeTrack]int),
		targetClick: make(map[*fakeTrack]int),
	}
}

func tracks(n int) []*fakeTrack {
	out := make([]*fakeTrack, n)
	for i := range out {
		out[i] = &fakeTrack{
			href:   fmt.Sprintf("/album/%d/track/%d", 100+i, 1000+i),
			title:  fmt.Sprintf("Song %d", i),
			artist: "Artist",
		}
	}
	return out
}

func (p *fakePage) maxOffset() int {
	if len(p.tracks) <= p.window {
		return 0
	}
	return len(p.tracks) - p.window
}

func (p *fakePage) clamp(off int) int {
	if off < 0 {
		return 0
	}
	if m := p.maxOffset(); off > m {
		return m
	}
	return off
}

func (p *fakePage) Items(ctx context.Context) ([]Item, error) {
	p.scans++
	if p.itemsErr != nil {
		return nil, p.itemsErr
	}
	end := p.offset + p.window
	if end > len(p.tracks) {
		end = len(p.tracks)
	}
	var items []Item
	for i := p.offset; i < end; i++ {
		items = append(items, &fakeItem{page: p, track: p.tracks[i], index: i})
	}
	return items, nil
}

func (p *fakePage) MenuEntries(ctx context.Context) ([]MenuEntry, error) {
	switch p.menu {
	case menuContext:
		entries := []MenuEntry{&fakeEntry{page: p, text: "Play next", kind: "noop"}}
		if !p.open.noAddAction {
			entries = append(entries, &fakeEntry{page: p, text: p.addLabel, kind: "add"})
		}
		return entries, nil
	case menuPicker:
		var entries []MenuEntry
		for _, name := range p.playlists {
			if name == p.target && p.open.hideTarget {
				continue
			}
			e := &fakeEntry{page: p, text: " " + name + "\n", kind: "playlist", playlist: name}
			if name == p.target {
				e.marked = p.open.present || p.added[p.open] > 0
			}
			entries = append(entries, e)
		}
		return entries, nil
	}
	return nil, nil
}

func (p *fakePage) Dismiss(ctx context.Context) error {
	p.dismisses++
	p.menu = menuClosed
	p.open = nil
	return nil
}

func (p *fakePage) Scroll(ctx context.Context, fraction float64) error {
	p.scrolls++
	p.offset = p.clamp(p.offset + p.step)
	return nil
}

type fakeItem struct {
	page  *fakePage
	track *fakeTrack
	index int
}

func (i *fakeItem) Snapshot(ctx context.Context) (ItemSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return ItemSnapshot{}, err
	}
	if i.track.unreadable > 0 {
		i.track.unreadable--
		return ItemSnapshot{}, errors.New("Cannot find context with specified id")
	}
	return ItemSnapshot{
		Href:     i.track.href,
		Title:    i.track.title,
		Artist:   i.track.artist,
		Index:    fmt.Sprint(i.index),
		HasIndex: true,
	}, nil
}

func (i *fakeItem) OpenMenu(ctx context.Context) (bool, error) {
	if i.page.menu != menuClosed {
		return false, errors.New("a menu is already open")
	}
	if i.track.noMenu {
		return false, nil
	}
	i.page.offset = i.page.clamp(i.index - i.page.window/2)
	i.page.menu = menuContext
	i.page.open = i.track
	i.page.opened = append(i.page.opened, i.track)
	return true, nil
}

type fakeEntry struct {
	page     *fakePage
	text     string
	kind     string
	playlist string
	marked   bool
}

func (e *fakeEntry) Text() string { return e.text }
func (e *fakeEntry) Marked() bool { return e.marked }

func (e *fakeEntry) Click(ctx context.Context) error {
	p := e.page
	switch e.kind {
	case "add":
		p.menu = menuPicker
	case "playlist":
		if e.playlist == p.target {
			p.targetClick[p.open]++
			if p.open.failTargetClick {
				return errors.New("node is detached from document")
			}
			p.added[p.open]++
		}
		p.menu = menuClosed
		p.open = nil
	}
	return nil
}

// recordingSleeper never blocks and records every requested delay.
type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *recordingSleeper) total() time.Duration {
	var sum time.Duration
	for _, d := range s.delays {
		sum += d
	}
	return sum
}

type recordingObserver struct {
	reports  []ItemReport
	finished []Result
}

func (o *recordingObserver) ItemSettled(ctx context.Context, r ItemReport) {
	o.reports = append(o.reports, r)
}

func (o *recordingObserver) RunFinished(ctx context.Context, res Result) {
	o.finished = append(o.finished, res)
}
