package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/courtside/linefeed/internal/feed"
)

func TestGet_NoDataYet(t *testing.T) {
	// WHAT: An empty cache reports ok=false instead of a nil snapshot.
	c := New(30 * time.Second)
	if _, _, ok := c.Get(); ok {
		t.Fatal("empty cache should report no data")
	}
}

func TestGet_Staleness(t *testing.T) {
	// WHAT: Snapshots age from fresh to stale as the clock passes the threshold.
	// WHY: Staleness is metadata the API forwards; it must flip exactly at the
	// threshold, not clear the data.
	c := New(30 * time.Second)
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.Put(&feed.Snapshot{CapturedAt: base})

	if _, st, _ := c.Get(); st != feed.Fresh {
		t.Fatalf("at capture time: got %s, want fresh", st)
	}

	c.now = func() time.Time { return base.Add(29 * time.Second) }
	if _, st, _ := c.Get(); st != feed.Fresh {
		t.Fatalf("before threshold: got %s, want fresh", st)
	}

	c.now = func() time.Time { return base.Add(31 * time.Second) }
	s, st, ok := c.Get()
	if !ok || st != feed.Stale {
		t.Fatalf("past threshold: got ok=%v st=%s, want stale data", ok, st)
	}
	if s == nil || !s.CapturedAt.Equal(base) {
		t.Fatal("stale snapshot must still carry the original data")
	}
}

func TestPut_Supersedes(t *testing.T) {
	// WHAT: A new snapshot atomically replaces the previous one.
	c := New(time.Minute)
	first := &feed.Snapshot{CapturedAt: time.Now(), Live: []feed.Record{{"match_id": "a"}}}
	second := &feed.Snapshot{CapturedAt: time.Now(), Live: []feed.Record{{"match_id": "b"}}}

	c.Put(first)
	c.Put(second)

	s, _, _ := c.Get()
	if s != second {
		t.Fatal("get should return the latest snapshot")
	}
}

func TestGet_ConcurrentReaders(t *testing.T) {
	// WHAT: Readers racing with the writer always see a complete snapshot
	// whose records all belong to one capture.
	// WHY: The atomic-publish invariant is the core correctness property.
	c := New(time.Minute)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			ts := time.Now()
			c.Put(&feed.Snapshot{
				CapturedAt: ts,
				Live:       []feed.Record{{"captured": ts}, {"captured": ts}},
			})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				s, _, ok := c.Get()
				if !ok {
					continue
				}
				for _, rec := range s.Live {
					if rec["captured"] != s.CapturedAt {
						t.Error("record from a different capture observed")
						return
					}
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(stop)
	wg.Wait()
}
