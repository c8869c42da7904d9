// Command echo runs a demonstration echo server on top of the wsgorilla
// coordinator: it greets every connection, answers "ping" with "pong",
// echoes everything else, and exposes registry statistics over HTTP.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/gobwas/wsbridge"
	"github.com/gobwas/wsbridge/wsgorilla"
)

var (
	addr          = flag.String("listen", ":8080", "address to listen on")
	staleAfter    = flag.Duration("stale", 5*time.Minute, "idle time after which connections are closed")
	cleanupPeriod = flag.Duration("cleanup", 30*time.Second, "how often to scan for stale connections")
)

func main() {
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	reg := wsbridge.NewRegistryWithLogger(log)
	coord := wsgorilla.NewCoordinator(reg)
	coord.Log = log

	go func() {
		for range time.Tick(*cleanupPeriod) {
			if n := reg.CleanupStale(*staleAfter); n > 0 {
				log.Info().Int("count", n).Msg("closed stale connections")
			}
		}
	}()

	accept := func(s *wsbridge.Socket, r *http.Request) {
		s.OnOpen(func(wsbridge.OpenEvent) {
			s.Send("Welcome")
		})
		s.OnMessage(func(ev wsbridge.MessageEvent) {
			switch {
			case ev.Text && string(ev.Data) == "ping":
				s.Send("pong")
			case ev.Text:
				s.Send("Echo: " + string(ev.Data))
			default:
				s.Send(ev.Data)
			}
		})
		s.OnClose(func(ev wsbridge.CloseEvent) {
			log.Info().
				Uint16("code", uint16(ev.Code)).
				Bool("clean", ev.WasClean).
				Msg("connection closed")
		})
		s.OnError(func(ev wsbridge.ErrorEvent) {
			log.Warn().Err(ev.Err).Msg("connection error")
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", coord.Handler(accept, nil))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reg.Stats())
	})

	log.Info().Str("addr", *addr).Msg("echo server listening")
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
