package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"

	"dynlights.ai/internal/protocol"
	"dynlights.ai/internal/sim/lighting/chunkpos"
	"dynlights.ai/internal/sim/lighting/mode"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "viewer", "client name")
		setMode  = flag.String("mode", "", "request a lighting mode after WELCOME (off|fastest|fast|fancy)")
		final    = flag.Bool("final", true, "receive the shutdown batch")
		chunkLog = flag.Bool("chunks", false, "print every chunk of each batch")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[viewer] ", log.LstdFlags|log.Lmicroseconds)

	requested := ""
	if m := strings.TrimSpace(*setMode); m != "" {
		parsed, err := mode.Parse(m)
		if err != nil {
			logger.Fatalf("-mode: %v", err)
		}
		requested = parsed.String()
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Final:           *final,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	// Chunks whose lighting is stale, as a renderer would keep them until rebuilt.
	dirty := map[chunkpos.Pos]uint64{}
	var batches uint64

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("disconnected: batches=%d distinct_chunks=%d", batches, len(dirty))
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			_ = json.Unmarshal(msg, &w)
			logger.Printf("WELCOME world=%s id=%s chunk_size=%d tick_rate=%d mode=%s tick=%d",
				w.WorldID, w.ClientID, w.ChunkSize, w.TickRateHz, w.Mode, w.Tick)
			if requested != "" {
				req := protocol.ModeMsg{Type: protocol.TypeMode, ProtocolVersion: protocol.Version, Mode: requested}
				if err := conn.WriteJSON(req); err != nil {
					logger.Printf("send MODE: %v", err)
				}
			}
		case protocol.TypeRebuild:
			var rb protocol.RebuildMsg
			if err := json.Unmarshal(msg, &rb); err != nil {
				logger.Printf("bad REBUILD: %v", err)
				continue
			}
			batches++
			for _, c := range rb.Chunks {
				p := chunkpos.FromArray(c)
				dirty[p]++
				if *chunkLog {
					logger.Printf("  rebuild %s", p)
				}
			}
			logger.Printf("REBUILD tick=%d chunks=%d final=%t", rb.Tick, len(rb.Chunks), rb.Final)
		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			logger.Printf("ERROR %s: %s", e.Code, e.Message)
		}
	}
}
