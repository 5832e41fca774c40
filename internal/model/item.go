// Package model defines the work items, results, and progress cursor shared by
// the enrichment engine and its collaborators.
package model

import (
	"sort"
	"strings"
)

// maxRowCells is the widest row still treated as unprocessed: a name plus an
// optional known profile URL. Wider rows already carry results.
const maxRowCells = 2

// WorkItem is one company to enrich.
type WorkItem struct {
	Name            string `json:"name"`
	KnownProfileURL string `json:"known_profile_url,omitempty"`
}

// ItemSet is the deduplicated view of one slice of rows.
type ItemSet struct {
	// Known maps each name to the profile URL supplied by the last row
	// carrying that name (possibly empty).
	Known map[string]string
	// Skipped counts rows rejected as empty, blank-named, or malformed.
	Skipped int
}

// ParseRow converts a raw row into a WorkItem. It reports false for empty
// rows, rows with a blank name, and rows with more than two cells.
func ParseRow(row []string) (WorkItem, bool) {
	if len(row) == 0 || len(row) > maxRowCells {
		return WorkItem{}, false
	}
	if strings.TrimSpace(row[0]) == "" {
		return WorkItem{}, false
	}
	item := WorkItem{Name: row[0]}
	if len(row) == maxRowCells {
		item.KnownProfileURL = row[1]
	}
	return item, true
}

// BuildItems deduplicates a slice of rows by name.
func BuildItems(rows [][]string) ItemSet {
	set := ItemSet{Known: make(map[string]string, len(rows))}
	for _, row := range rows {
		item, ok := ParseRow(row)
		if !ok {
			set.Skipped++
			continue
		}
		set.Known[item.Name] = item.KnownProfileURL
	}
	return set
}

// Names returns the unique names in ascending order.
func (s ItemSet) Names() []string {
	names := make([]string, 0, len(s.Known))
	for name := range s.Known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Items returns the work items in name order.
func (s ItemSet) Items() []WorkItem {
	names := s.Names()
	items := make([]WorkItem, len(names))
	for i, name := range names {
		items[i] = WorkItem{Name: name, KnownProfileURL: s.Known[name]}
	}
	return items
}

// Len returns the number of unique names.
func (s ItemSet) Len() int {
	return len(s.Known)
}
