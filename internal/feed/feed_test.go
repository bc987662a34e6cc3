package feed

import (
	"reflect"
	"testing"
	"time"
)

func rec(sport, league, t1, t2 string) Record {
	return Record{"sport": sport, "league": league, "team1": t1, "team2": t2}
}

func TestFilter_Apply(t *testing.T) {
	// WHAT: Sport/league/team filters select matching records, case-insensitively.
	// WHY: The API exposes these filters; matching must not depend on casing.
	records := []Record{
		rec("Football", "Premier League", "Arsenal", "Chelsea"),
		rec("Football", "La Liga", "Barcelona", "Sevilla"),
		rec("Tennis", "ATP Madrid", "Alcaraz", "Sinner"),
	}

	got := Filter{Sport: "football"}.Apply(records)
	if len(got) != 2 {
		t.Fatalf("sport filter: got %d records, want 2", len(got))
	}

	got = Filter{League: "la liga"}.Apply(records)
	if len(got) != 1 || got[0]["team1"] != "Barcelona" {
		t.Fatalf("league filter: got %v", got)
	}

	got = Filter{Team: "chel"}.Apply(records)
	if len(got) != 1 || got[0]["team2"] != "Chelsea" {
		t.Fatalf("team filter: got %v", got)
	}

	got = Filter{Sport: "Tennis", Team: "nadal"}.Apply(records)
	if len(got) != 0 {
		t.Fatalf("combined filter: got %v, want none", got)
	}
}

func TestFilter_Empty(t *testing.T) {
	// WHAT: An empty filter returns the input unchanged.
	records := []Record{rec("Football", "L", "A", "B")}
	if got := (Filter{}).Apply(records); !reflect.DeepEqual(got, records) {
		t.Fatalf("empty filter: got %v", got)
	}
}

func TestFilter_Date(t *testing.T) {
	// WHAT: The date filter matches the match_date field exactly.
	records := []Record{
		{"sport": "Football", "match_date": "24.08"},
		{"sport": "Football", "match_date": "25.08"},
	}
	got := Filter{Date: "25.08"}.Apply(records)
	if len(got) != 1 || got[0]["match_date"] != "25.08" {
		t.Fatalf("date filter: got %v", got)
	}
}

func TestSnapshot_Sports(t *testing.T) {
	// WHAT: Sports() deduplicates across live and upcoming and sorts.
	s := &Snapshot{
		Live:       []Record{rec("Tennis", "", "", ""), rec("Football", "", "", "")},
		Upcoming:   []Record{rec("Football", "", "", ""), rec("Basketball", "", "", "")},
		CapturedAt: time.Now(),
	}
	want := []string{"Basketball", "Football", "Tennis"}
	if got := s.Sports(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sports: got %v, want %v", got, want)
	}
}
