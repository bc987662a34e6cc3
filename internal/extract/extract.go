// Package extract parses the rendered dashboard document into odds records.
// Selectors target the bookmaker's event dashboard: one container for live
// events, one for upcoming, each split into league sections with a header
// row (sport icon, country flag, league link, odds column titles) followed
// by match rows.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/courtside/linefeed/internal/feed"
)

// ErrSchemaMismatch means the document parsed but neither dashboard container
// was present: the upstream layout changed and the selectors need attention.
var ErrSchemaMismatch = errors.New("extract: schema mismatch")

// ErrParseFailure means matched containers held only malformed sections.
// A subset of malformed sections is tolerated and counted in Result.Skipped.
var ErrParseFailure = errors.New("extract: parse failure")

// Result is one complete extraction. Zero records with a nil error is the
// expected quiet-hours outcome, not a failure.
type Result struct {
	Live     []feed.Record
	Upcoming []feed.Record
	Leagues  []feed.League

	// Skipped counts league sections dropped for malformed content.
	Skipped int
}

// Extract parses doc and returns the structured result.
func Extract(doc []byte) (*Result, error) {
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	liveRoot := d.Find(`div#line_bets_on_main.c-events.greenBack`)
	upcomingRoot := d.Find(`div#line_bets_on_main.c-events.blueBack`)
	if liveRoot.Length() == 0 && upcomingRoot.Length() == 0 {
		return nil, ErrSchemaMismatch
	}

	res := &Result{
		Live:     []feed.Record{},
		Upcoming: []feed.Record{},
		Leagues:  []feed.League{},
	}
	leagueSeen := map[string]bool{}
	var sections, failed int

	liveRoot.Find(".dashboard-champ-content").Each(func(_ int, sec *goquery.Selection) {
		sections++
		if !parseSection(sec, true, res, leagueSeen) {
			failed++
		}
	})
	upcomingRoot.Find(".dashboard-champ-content").Each(func(_ int, sec *goquery.Selection) {
		sections++
		if !parseSection(sec, false, res, leagueSeen) {
			failed++
		}
	})

	res.Skipped = failed
	if sections > 0 && failed == sections {
		return nil, fmt.Errorf("%w: all %d sections malformed", ErrParseFailure, sections)
	}
	return res, nil
}

// parseSection handles one league section. Returns false when the section is
// structurally unusable (no header row).
func parseSection(sec *goquery.Selection, live bool, res *Result, leagueSeen map[string]bool) bool {
	header := sec.Find(".c-events__item_head").First()
	if header.Length() == 0 {
		return false
	}

	sport := sportFromIcon(header)
	country := countryFromFlag(header)
	leagueLink := header.Find(".c-events__liga").First()
	league := text(leagueLink)
	leagueURL, _ := leagueLink.Attr("href")

	var betTypes []string
	header.Find(".c-bets__title").Each(func(_ int, t *goquery.Selection) {
		betTypes = append(betTypes, text(t))
	})

	if league != "" {
		key := sport + "|" + league
		if !leagueSeen[key] {
			leagueSeen[key] = true
			res.Leagues = append(res.Leagues, feed.League{
				Sport: sport, Country: country, Name: league, URL: leagueURL,
			})
		}
	}

	base := func() feed.Record {
		r := feed.Record{
			"sport":   sport,
			"country": country,
			"league":  league,
		}
		if leagueURL != "" {
			r["league_url"] = leagueURL
		}
		return r
	}

	if live {
		sec.Find(".c-events__item_col .c-events__item_game").Each(func(_ int, match *goquery.Selection) {
			if rec := parseMatch(match, base(), betTypes, true); rec != nil {
				res.Live = append(res.Live, rec)
			}
		})
		return true
	}

	// Upcoming sections interleave date header rows with match rows; the
	// date applies to every match until the next header.
	currentDate := ""
	sec.Find(".c-events__item_col").Each(func(_ int, item *goquery.Selection) {
		if date := item.Find(".c-events__date").First(); date.Length() > 0 {
			currentDate = text(date)
			return
		}
		match := item.Find(".c-events__item_game").First()
		if match.Length() == 0 {
			return
		}
		rec := base()
		if currentDate != "" {
			rec["match_date"] = currentDate
		}
		if rec := parseMatch(match, rec, betTypes, false); rec != nil {
			res.Upcoming = append(res.Upcoming, rec)
		}
	})
	return true
}

// parseMatch fills one record from a match row. Rows without two team names
// are navigation chrome, not matches, and are dropped.
func parseMatch(match *goquery.Selection, rec feed.Record, betTypes []string, live bool) feed.Record {
	teams := match.Find(".c-events__teams .c-events__team")
	if teams.Length() < 2 {
		return nil
	}
	team1 := text(teams.Eq(0))
	team2 := text(teams.Eq(1))
	rec["team1"] = team1
	rec["team2"] = team2

	sport, _ := rec["sport"].(string)
	league, _ := rec["league"].(string)
	rec["match_id"] = fmt.Sprintf("%s_%s_%s_%s", sport, league, team1, team2)

	if live {
		if status := text(match.Find(".c-events__time").First()); status != "" {
			rec["status"] = status
		}
		var scores []string
		match.Find(".c-events-scoreboard__cell--all").Each(func(_ int, cell *goquery.Selection) {
			if s := text(cell); s != "" {
				scores = append(scores, s)
			}
		})
		if len(scores) > 0 {
			rec["score"] = strings.Join(scores, " - ")
		}
	} else {
		if start := text(match.Find(".c-events-time__val").First()); start != "" {
			rec["start_time"] = start
		}
	}

	match.Find(".c-bets__bet").Each(func(i int, cell *goquery.Selection) {
		if i >= len(betTypes) || cell.HasClass("non") {
			return // "non" marks a suspended market
		}
		if v := text(cell.Find(".c-bets__inner").First()); v != "" {
			rec["odd_"+betTypes[i]] = v
		}
	})

	if href, ok := match.Find("a.c-events__name").First().Attr("href"); ok && href != "" {
		rec["match_url"] = href
	}
	return rec
}

func sportFromIcon(header *goquery.Selection) string {
	href, ok := useHref(header.Find(".icon use").First())
	if !ok {
		return "Unknown"
	}
	id := strings.TrimPrefix(lastFragment(href), "sports_")
	if name, ok := sportNames[id]; ok {
		return name
	}
	return id
}

func countryFromFlag(header *goquery.Selection) string {
	href, ok := useHref(header.Find(".flag-icon use").First())
	if !ok {
		return "International"
	}
	return lastFragment(href)
}

// useHref reads the sprite reference off an svg <use> element. The HTML5
// parser's foreign-attribute adjustment stores xlink:href with Key "href" and
// Namespace "xlink", so a lookup by the literal "xlink:href" name misses;
// matching on Key alone covers both the xlink form and a plain href.
func useHref(sel *goquery.Selection) (string, bool) {
	if sel.Length() == 0 {
		return "", false
	}
	for _, a := range sel.Nodes[0].Attr {
		if a.Key == "href" && a.Val != "" {
			return a.Val, true
		}
	}
	return "", false
}

func lastFragment(href string) string {
	if i := strings.LastIndexByte(href, '#'); i >= 0 {
		return href[i+1:]
	}
	return href
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}

// sportNames maps the dashboard's numeric sport ids to readable names.
var sportNames = map[string]string{
	"1":  "Football",
	"2":  "Ice Hockey",
	"3":  "Basketball",
	"4":  "Tennis",
	"6":  "Volleyball",
	"10": "Table Tennis",
	"12": "American Football",
	"13": "Baseball",
	"28": "Handball",
	"40": "Esports",
	"66": "Cricket",
}
