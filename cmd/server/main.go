package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dynlights.ai/internal/persistence/indexdb"
	persistlog "dynlights.ai/internal/persistence/log"
	"dynlights.ai/internal/persistence/snapshot"
	"dynlights.ai/internal/sim/runner"
	"dynlights.ai/internal/sim/scenario"
	"dynlights.ai/internal/sim/tuning"
	"dynlights.ai/internal/transport/ws"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		worldID      = flag.String("world", "world_1", "world id")
		configDir    = flag.String("configs", "./configs", "config directory")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		tuningPath   = flag.String("tuning", "", "path to lighting.yaml (default: <configs>/lighting.yaml)")
		scenarioPath = flag.String("scenario", "", "path to scenario.yaml (default: <configs>/scenario.yaml)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite rebuild index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[lightsim] ", log.LstdFlags|log.Lmicroseconds)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Fatalf("load .env: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "lighting.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
		if err := tune.ApplyEnv(os.LookupEnv); err != nil {
			logger.Fatalf("tuning env: %v", err)
		}
		if err := tune.Validate(); err != nil {
			logger.Fatalf("tuning: %v", err)
		}
	}

	sp := strings.TrimSpace(*scenarioPath)
	if sp == "" {
		sp = filepath.Join(*configDir, "scenario.yaml")
	}
	sc, err := scenario.Load(sp)
	if err != nil {
		logger.Fatalf("load scenario: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapDir := filepath.Join(worldDir, "snapshots")
	_ = os.MkdirAll(worldDir, 0o755)

	// Optional read-model index (does not affect tracking).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
	}

	hub, err := ws.NewHub(ws.Config{
		WorldID:       *worldID,
		ChunkSize:     tune.ChunkSize,
		TickRateHz:    tune.TickRateHz,
		Mode:          tune.Mode,
		MaxClients:    tune.Observer.MaxClients,
		SendQueueSize: tune.Observer.SendQueueSize,
		Logger:        log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("ws hub: %v", err)
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	defer tickLog.Close()

	sinks := []runner.TickSink{tickLog, hub}
	if idx != nil {
		sinks = append(sinks, idx)
	}

	r := runner.New(runner.Config{
		WorldID: *worldID,
		Tuning:  tune,
		Logger:  logger,
		Sinks:   sinks,
		Control: hub.Control(),
		OnSnapshot: func(snap snapshot.SnapshotV1) {
			path := snapshot.PathForTick(snapDir, snap.Header.Tick)
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("snapshot write: %v", err)
				return
			}
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
		},
	}, sc.NewLights())

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(snapDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		if snap.ChunkSize != tune.ChunkSize {
			logger.Fatalf("snapshot chunk size mismatch: tuning=%d snap=%d", tune.ChunkSize, snap.ChunkSize)
		}
		pruned := r.ImportSnapshot(snap)
		logger.Printf("resumed from snapshot=%s tick=%d pruned=%d", filepath.Base(snapshotToLoad), r.CurrentTick(), pruned)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("runner stopped: %v", err)
		}
		hub.Close()
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, req *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, req *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, *worldID, r.Metrics(), hub, idx)
	})
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, req *http.Request) {
		if !isLoopbackRemote(req.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			WorldID string         `json:"world_id"`
			Tuning  tuning.Tuning  `json:"tuning"`
			Metrics runner.Metrics `json:"metrics"`
			Clients int            `json:"clients"`
		}{
			WorldID: *worldID,
			Tuning:  tune,
			Metrics: r.Metrics(),
			Clients: hub.Len(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.Handle("/v1/ws", hub)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		<-done
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s mode=%s lights=%d", *addr, *worldID, tune.Mode, len(sc.Lights))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-done
}

func writeMetrics(rw http.ResponseWriter, worldID string, m runner.Metrics, hub *ws.Hub, idx *indexdb.SQLiteIndex) {
	fmt.Fprintf(rw, "# HELP dynlights_tick Current tick.\n")
	fmt.Fprintf(rw, "# TYPE dynlights_tick gauge\n")
	fmt.Fprintf(rw, "dynlights_tick{world=%q,mode=%q} %d\n", worldID, m.Mode, m.Tick)

	fmt.Fprintf(rw, "# HELP dynlights_sources Light sources by state.\n")
	fmt.Fprintf(rw, "# TYPE dynlights_sources gauge\n")
	fmt.Fprintf(rw, "dynlights_sources{world=%q,state=%q} %d\n", worldID, "live", m.Lights)
	fmt.Fprintf(rw, "dynlights_sources{world=%q,state=%q} %d\n", worldID, "tracked", m.Tracked)

	fmt.Fprintf(rw, "# HELP dynlights_tracker_total Tracker counters.\n")
	fmt.Fprintf(rw, "# TYPE dynlights_tracker_total counter\n")
	fmt.Fprintf(rw, "dynlights_tracker_total{world=%q,counter=%q} %d\n", worldID, "ticks", m.Tracker.Ticks)
	fmt.Fprintf(rw, "dynlights_tracker_total{world=%q,counter=%q} %d\n", worldID, "recomputes", m.Tracker.Recomputes)
	fmt.Fprintf(rw, "dynlights_tracker_total{world=%q,counter=%q} %d\n", worldID, "throttled", m.Tracker.Throttled)
	fmt.Fprintf(rw, "dynlights_tracker_total{world=%q,counter=%q} %d\n", worldID, "unchanged", m.Tracker.Unchanged)
	fmt.Fprintf(rw, "dynlights_tracker_total{world=%q,counter=%q} %d\n", worldID, "removed", m.Tracker.Removed)
	fmt.Fprintf(rw, "dynlights_tracker_total{world=%q,counter=%q} %d\n", worldID, "requests", m.Tracker.Requests)

	fmt.Fprintf(rw, "# HELP dynlights_rebuilds_total Rebuild requests and unique drained chunks.\n")
	fmt.Fprintf(rw, "# TYPE dynlights_rebuilds_total counter\n")
	fmt.Fprintf(rw, "dynlights_rebuilds_total{world=%q,kind=%q} %d\n", worldID, "requested", m.Queue.Requested)
	fmt.Fprintf(rw, "dynlights_rebuilds_total{world=%q,kind=%q} %d\n", worldID, "drained", m.Queue.Drained)

	fmt.Fprintf(rw, "# HELP dynlights_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE dynlights_step_ms gauge\n")
	fmt.Fprintf(rw, "dynlights_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	fmt.Fprintf(rw, "# HELP dynlights_ws_clients Connected renderers.\n")
	fmt.Fprintf(rw, "# TYPE dynlights_ws_clients gauge\n")
	fmt.Fprintf(rw, "dynlights_ws_clients{world=%q} %d\n", worldID, hub.Len())
	fmt.Fprintf(rw, "dynlights_ws_dropped_total{world=%q} %d\n", worldID, hub.Dropped())

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP dynlights_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE dynlights_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "dynlights_index_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)
	fmt.Fprintf(rw, "dynlights_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "dynlights_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", s.DropSnapshotTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
