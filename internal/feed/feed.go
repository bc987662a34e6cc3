// Package feed defines the value types flowing through the pipeline: one
// immutable Snapshot per successful scrape cycle, holding the live and
// upcoming odds records plus the league index extracted from the dashboard.
package feed

import (
	"sort"
	"strings"
	"time"
)

// Record is one odds line. Fields are extraction-defined: the dashboard
// exposes a different odds column set per league (odd_W1, odd_X, odd_Total,
// ...), so records stay a typed-value map rather than a fixed struct.
// Well-known keys: sport, country, league, team1, team2, status, score,
// match_id, match_url, match_date, start_time.
type Record map[string]any

// League is one league found on the dashboard.
type League struct {
	Sport   string `json:"sport"`
	Country string `json:"country"`
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
}

// Snapshot is one complete, timestamped extraction result. It is created
// once by a successful scrape cycle and never mutated; the next cycle
// supersedes it with a fresh value.
type Snapshot struct {
	Live       []Record      `json:"live"`
	Upcoming   []Record      `json:"upcoming"`
	Leagues    []League      `json:"leagues"`
	CapturedAt time.Time     `json:"captured_at"`
	Engine     string        `json:"engine"`
	Duration   time.Duration `json:"duration"`
}

// Staleness classifies a snapshot's age against the freshness threshold.
// It is metadata, not an error: stale data is still served.
type Staleness string

const (
	Fresh Staleness = "fresh"
	Stale Staleness = "stale"
)

// Sports returns the distinct sport names across live and upcoming records,
// sorted alphabetically.
func (s *Snapshot) Sports() []string {
	seen := map[string]bool{}
	for _, rs := range [][]Record{s.Live, s.Upcoming} {
		for _, r := range rs {
			if name := r.str("sport"); name != "" {
				seen[name] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Filter selects records by optional sport, league, team and date criteria.
// String matches are case-insensitive; team matches either side.
type Filter struct {
	Sport  string
	League string
	Team   string
	Date   string
}

// Apply returns the records matching every set criterion.
func (f Filter) Apply(records []Record) []Record {
	if f.Sport == "" && f.League == "" && f.Team == "" && f.Date == "" {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Sport != "" && !strings.EqualFold(r.str("sport"), f.Sport) {
			continue
		}
		if f.League != "" && !strings.EqualFold(r.str("league"), f.League) {
			continue
		}
		if f.Team != "" && !containsFold(r.str("team1"), f.Team) && !containsFold(r.str("team2"), f.Team) {
			continue
		}
		if f.Date != "" && r.str("match_date") != f.Date {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (r Record) str(key string) string {
	v, _ := r[key].(string)
	return v
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
