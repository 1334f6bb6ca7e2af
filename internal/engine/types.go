package engine

import (
	"context"
	"time"
)

// ItemSnapshot holds the identity signals read from one rendered list item.
type ItemSnapshot struct {
	Href     string // track link href, empty when the item has no track link
	Title    string
	Artist   string
	Index    string // value of the virtualization index attribute
	HasIndex bool   // the index attribute exists, even if empty
	Position int    // ordinal among the items rendered at scan time
}

// Item is a handle to a list row as currently rendered on the page.
// Handles are only valid until the next scroll; never keep them across scans.
type Item interface {
	// Snapshot reads the row's identity signals. Position is filled in by the finder.
	Snapshot(ctx context.Context) (ItemSnapshot, error)
	// OpenMenu scrolls the row into view and clicks its context-menu control.
	// It reports false when the row has no such control.
	OpenMenu(ctx context.Context) (bool, error)
}

// MenuEntry is one clickable entry of an open context menu or playlist picker.
type MenuEntry interface {
	Text() string
	// Marked reports whether the entry carries the "already in this playlist" indicator.
	Marked() bool
	Click(ctx context.Context) error
}

// Page is the part of the host page the engine reads and drives.
type Page interface {
	// Items returns the currently rendered list rows in document order.
	Items(ctx context.Context) ([]Item, error)
	// MenuEntries returns every entry of the menus currently open on the page.
	MenuEntries(ctx context.Context) ([]MenuEntry, error)
	// Dismiss closes any open menu.
	Dismiss(ctx context.Context) error
	// Scroll moves the viewport down by fraction of the window height.
	Scroll(ctx context.Context, fraction float64) error
}

// Result is the terminal value of a run.
type Result struct {
	Success    bool   `json:"success"`
	Processed  int    `json:"processed"`
	ErrorCount int    `json:"errorCount"`
	Message    string `json:"message,omitempty"`
}

// Outcome is how a single item settled.
type Outcome int

const (
	Duplicate Outcome = iota
	Added
	AlreadyPresent
	NoMenuControl
	NoAddAction
	TargetMissing
	InteractionFailed
	Halted
	Seen
)

var outcomeNames = map[Outcome]string{
	Duplicate:         "duplicate",
	Added:             "added",
	AlreadyPresent:    "already_present",
	NoMenuControl:     "no_menu_control",
	NoAddAction:       "no_add_action",
	TargetMissing:     "target_missing",
	InteractionFailed: "interaction_failed",
	Halted:            "halted",
	Seen:              "seen",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Failed reports whether the outcome was counted as an error.
func (o Outcome) Failed() bool {
	switch o {
	case NoMenuControl, NoAddAction, TargetMissing, InteractionFailed, Halted:
		return true
	}
	return false
}

// State is a step of the scroll-and-drive state machine.
type State int

const (
	SeekingFirst State = iota
	Draining
	Probing
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case SeekingFirst:
		return "seeking_first"
	case Draining:
		return "draining"
	case Probing:
		return "probing"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// ItemReport describes a settled item.
type ItemReport struct {
	Seq      int // claim order within the run, starting at 1
	Identity string
	Outcome  Outcome
	At       time.Time
}

// Observer is notified as a run progresses. Implementations must not block for long;
// they run on the engine's only thread of control.
type Observer interface {
	ItemSettled(ctx context.Context, r ItemReport)
	RunFinished(ctx context.Context, res Result)
}
