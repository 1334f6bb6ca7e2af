package engine

import (
	"fmt"
	"strings"
)

// ResolveIdentity derives the de-duplication key for an item.
//
// Signals are tried from most to least stable: the track link, artist and
// title together, the virtualization index attribute, and finally the
// ordinal position among rendered rows. The last one shifts as the list
// reflows, so two scans of the same track may disagree under that fallback.
func ResolveIdentity(s ItemSnapshot) string {
	if s.Href != "" {
		return s.Href
	}

	title := strings.TrimSpace(s.Title)
	artist := strings.TrimSpace(s.Artist)
	if title != "" && artist != "" {
		return artist + " - " + title
	}

	if s.HasIndex {
		return "index_" + s.Index
	}

	return fmt.Sprintf("dom_index_%d", s.Position)
}
