package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	persistlog "dynlights.ai/internal/persistence/log"
	"dynlights.ai/internal/persistence/snapshot"
	"dynlights.ai/internal/sim/lighting/chunkpos"
	"dynlights.ai/internal/sim/runner"
)

type summary struct {
	entries    uint64
	firstTick  uint64
	lastTick   uint64
	recomputes uint64
	throttled  uint64
	requests   uint64
	rebuilds   uint64
	removed    uint64
	finals     uint64
	modes      map[string]uint64
	perChunk   map[chunkpos.Pos]uint64
}

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst (optional)")
		eventsDir = flag.String("events", "", "events dir containing events-*.jsonl.zst (optional)")
		fromTick  = flag.Uint64("from_tick", 0, "first tick to include (inclusive, optional)")
		toTick    = flag.Uint64("to_tick", 0, "last tick to include (inclusive, optional)")
		top       = flag.Int("top", 10, "print the N most rebuilt chunks")
		verbose   = flag.Bool("v", false, "print one line per tick with rebuilds")
	)
	flag.Parse()

	if *snapPath == "" && *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot or -events")
		os.Exit(2)
	}

	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		tracked := 0
		for _, l := range snap.Lights {
			tracked += len(l.Tracked)
		}
		fmt.Printf("snapshot v%d world=%s tick=%d chunk_size=%d mode=%s entities=%t lights=%d tracked_chunks=%d\n",
			snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.ChunkSize, snap.Mode,
			snap.EntitiesLightSource, len(snap.Lights), tracked)
	}

	if *eventsDir == "" {
		return
	}
	files, err := persistlog.ListTickLogs(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *eventsDir)
		os.Exit(1)
	}

	s := &summary{modes: map[string]uint64{}, perChunk: map[chunkpos.Pos]uint64{}}
	for _, path := range files {
		err := persistlog.ReadTickLog(path, func(e runner.TickLogEntry) error {
			if e.Tick < *fromTick || (*toTick != 0 && e.Tick > *toTick) {
				return nil
			}
			if err := s.add(e); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if *verbose && len(e.Rebuilds) > 0 {
				fmt.Printf("tick=%d mode=%s lights=%d recomputes=%d rebuilds=%d final=%t\n",
					e.Tick, e.Mode, e.Lights, e.Recomputes, len(e.Rebuilds), e.Final)
			}
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	s.print(*top)
}

// add folds one entry into the summary and checks the log's ordering rules:
// ticks never go backwards and a batch holds each chunk once.
func (s *summary) add(e runner.TickLogEntry) error {
	if s.entries > 0 && e.Tick < s.lastTick {
		return fmt.Errorf("tick went backwards: %d after %d", e.Tick, s.lastTick)
	}
	if s.entries == 0 {
		s.firstTick = e.Tick
	}
	seen := make(map[chunkpos.Pos]struct{}, len(e.Rebuilds))
	for _, c := range e.Rebuilds {
		p := chunkpos.FromArray(c)
		if _, dup := seen[p]; dup {
			return fmt.Errorf("tick %d: chunk %s rebuilt twice in one batch", e.Tick, p)
		}
		seen[p] = struct{}{}
		s.perChunk[p]++
	}
	s.entries++
	s.lastTick = e.Tick
	s.recomputes += e.Recomputes
	s.throttled += e.Throttled
	s.requests += e.Requests
	s.rebuilds += uint64(len(e.Rebuilds))
	s.removed += uint64(len(e.Removed))
	s.modes[e.Mode]++
	if e.Final {
		s.finals++
	}
	return nil
}

func (s *summary) print(top int) {
	fmt.Printf("ticks=%d..%d entries=%d finals=%d\n", s.firstTick, s.lastTick, s.entries, s.finals)
	fmt.Printf("recomputes=%d throttled=%d removed=%d requests=%d rebuilds=%d unique_chunks=%d\n",
		s.recomputes, s.throttled, s.removed, s.requests, s.rebuilds, len(s.perChunk))

	modes := make([]string, 0, len(s.modes))
	for m := range s.modes {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	for _, m := range modes {
		fmt.Printf("mode %s: %d ticks\n", m, s.modes[m])
	}

	if top <= 0 {
		return
	}
	chunks := make([]chunkpos.Pos, 0, len(s.perChunk))
	for p := range s.perChunk {
		chunks = append(chunks, p)
	}
	sort.Slice(chunks, func(i, j int) bool {
		ci, cj := s.perChunk[chunks[i]], s.perChunk[chunks[j]]
		if ci != cj {
			return ci > cj
		}
		return chunks[i].Less(chunks[j])
	})
	if len(chunks) > top {
		chunks = chunks[:top]
	}
	for _, p := range chunks {
		fmt.Printf("chunk %s rebuilt %d times\n", p, s.perChunk[p])
	}
}
